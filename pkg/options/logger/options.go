// Package logger wraps the kart-io logger options for command-line use.
package logger

import (
	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"github.com/kart-io/logger/option"
	"github.com/spf13/pflag"
)

// Options wraps option.LogOption.
type Options struct {
	*option.LogOption `mapstructure:",squash"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{LogOption: option.DefaultLogOption()}
}

// AddFlags adds flags for logger options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, namePrefix string) {
	fs.StringVar(&o.Engine, namePrefix+"engine", o.Engine, "Logging engine (zap|slog)")
	fs.StringVar(&o.Level, namePrefix+"level", o.Level, "Log level (DEBUG|INFO|WARN|ERROR|FATAL)")
	fs.StringVar(&o.Format, namePrefix+"format", o.Format, "Log format (json|console)")
	fs.StringSliceVar(&o.OutputPaths, namePrefix+"output-paths", o.OutputPaths, "Output paths for logs")
	fs.BoolVar(&o.Development, namePrefix+"development", o.Development, "Enable development mode")
	fs.BoolVar(&o.DisableCaller, namePrefix+"disable-caller", o.DisableCaller, "Disable caller detection")
	fs.BoolVar(&o.DisableStacktrace, namePrefix+"disable-stacktrace", o.DisableStacktrace, "Disable stacktrace capture")
	fs.StringVar(&o.OTLPEndpoint, namePrefix+"otlp-endpoint", o.OTLPEndpoint, "OTLP endpoint URL")
}

// Complete completes the logger options with defaults.
func (o *Options) Complete() error {
	return nil
}

// Validate validates the logger options.
func (o *Options) Validate() error {
	return o.LogOption.Validate()
}

// AddInitialField 为所有日志添加一个固定字段。
func (o *Options) AddInitialField(key string, value any) {
	o.WithInitialFields(map[string]any{key: value})
}

// Init 使用当前配置创建日志实例并设置为全局日志。
func (o *Options) Init() error {
	l, err := logger.New(o.LogOption)
	if err != nil {
		return err
	}
	logger.SetGlobal(l)
	return nil
}

// CreateLogger creates a new logger instance based on the options.
func (o *Options) CreateLogger() (core.Logger, error) {
	return logger.New(o.LogOption)
}
