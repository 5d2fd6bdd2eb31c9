// Package http provides HTTP server configuration options.
package http

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

// Options contains HTTP server configuration.
type Options struct {
	Addr         string        `json:"addr" mapstructure:"addr"`
	ReadTimeout  time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	// WriteTimeout 为 0 时不限制，SSE 长连接依赖请求上下文控制时长。
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	IdleTimeout  time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`
	// Mode 对应 gin 运行模式：debug、release、test。
	Mode string `json:"mode" mapstructure:"mode"`
	// MaxUploadBytes 单个文件允许的最大字节数。
	MaxUploadBytes int64 `json:"max-upload-bytes" mapstructure:"max-upload-bytes"`
	// UserHeader 携带调用者身份的请求头。
	UserHeader string `json:"user-header" mapstructure:"user-header"`
	// CORSOrigins 允许跨域的来源，为空时不启用 CORS。
	CORSOrigins []string `json:"cors-origins" mapstructure:"cors-origins"`
}

// NewOptions creates a new Options with default values.
func NewOptions() *Options {
	return &Options{
		Addr:           ":8080",
		ReadTimeout:    30 * time.Second,
		IdleTimeout:    120 * time.Second,
		Mode:           gin.ReleaseMode,
		MaxUploadBytes: 50 << 20,
		UserHeader:     "X-User-ID",
	}
}

// AddFlags adds flags for HTTP options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, namePrefix string) {
	fs.StringVar(&o.Addr, namePrefix+"addr", o.Addr, "HTTP server listen address")
	fs.DurationVar(&o.ReadTimeout, namePrefix+"read-timeout", o.ReadTimeout, "HTTP server read timeout")
	fs.DurationVar(&o.WriteTimeout, namePrefix+"write-timeout", o.WriteTimeout, "HTTP server write timeout (0 disables it)")
	fs.DurationVar(&o.IdleTimeout, namePrefix+"idle-timeout", o.IdleTimeout, "HTTP server idle timeout")
	fs.StringVar(&o.Mode, namePrefix+"mode", o.Mode, "Gin mode (debug, release, test)")
	fs.Int64Var(&o.MaxUploadBytes, namePrefix+"max-upload-bytes", o.MaxUploadBytes, "Maximum accepted file size in bytes")
	fs.StringVar(&o.UserHeader, namePrefix+"user-header", o.UserHeader, "Request header carrying the caller identity")
	fs.StringSliceVar(&o.CORSOrigins, namePrefix+"cors-origins", o.CORSOrigins, "Allowed CORS origins")
}

// Complete completes the HTTP options.
func (o *Options) Complete() error {
	if o.UserHeader == "" {
		o.UserHeader = "X-User-ID"
	}
	return nil
}

// Validate validates the HTTP options.
func (o *Options) Validate() error {
	if o.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	switch o.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		return fmt.Errorf("http.mode %q is invalid", o.Mode)
	}
	if o.MaxUploadBytes <= 0 {
		return fmt.Errorf("http.max-upload-bytes must be positive")
	}
	return nil
}
