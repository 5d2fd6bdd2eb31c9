// Package tracing configures OpenTelemetry tracing for docqa and provides
// small helpers for starting and ending spans.
package tracing

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Exporter 导出器类型。
type Exporter string

const (
	ExporterOTLPGRPC Exporter = "otlp-grpc"
	ExporterOTLPHTTP Exporter = "otlp-http"
	ExporterStdout   Exporter = "stdout"
	ExporterNoop     Exporter = "noop"
)

// Options defines configuration for OpenTelemetry tracing.
type Options struct {
	Enabled  bool     `json:"enabled" mapstructure:"enabled"`
	Exporter Exporter `json:"exporter" mapstructure:"exporter"`
	// Endpoint OTLP 地址，gRPC 为 host:port，HTTP 为 host:port/path。
	Endpoint string            `json:"endpoint" mapstructure:"endpoint"`
	Insecure bool              `json:"insecure" mapstructure:"insecure"`
	Headers  map[string]string `json:"-" mapstructure:"headers"`
	// SampleRatio 根 span 的采样率，子 span 跟随父 span 的采样决定。
	SampleRatio  float64       `json:"sample-ratio" mapstructure:"sample-ratio"`
	BatchTimeout time.Duration `json:"batch-timeout" mapstructure:"batch-timeout"`
	Environment  string        `json:"environment" mapstructure:"environment"`
}

// NewOptions creates default tracing options. Tracing is off by default.
func NewOptions() *Options {
	return &Options{
		Exporter:     ExporterOTLPGRPC,
		Endpoint:     "localhost:4317",
		Insecure:     true,
		SampleRatio:  1.0,
		BatchTimeout: 5 * time.Second,
		Environment:  "development",
	}
}

// AddFlags adds flags for tracing options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, namePrefix string) {
	fs.BoolVar(&o.Enabled, namePrefix+"enabled", o.Enabled, "Enable OpenTelemetry tracing")
	fs.StringVar((*string)(&o.Exporter), namePrefix+"exporter", string(o.Exporter), "Span exporter (otlp-grpc, otlp-http, stdout, noop)")
	fs.StringVar(&o.Endpoint, namePrefix+"endpoint", o.Endpoint, "OTLP collector endpoint")
	fs.BoolVar(&o.Insecure, namePrefix+"insecure", o.Insecure, "Disable TLS for the OTLP connection")
	fs.StringToStringVar(&o.Headers, namePrefix+"headers", o.Headers, "Extra OTLP request headers")
	fs.Float64Var(&o.SampleRatio, namePrefix+"sample-ratio", o.SampleRatio, "Root span sampling ratio in [0,1]")
	fs.DurationVar(&o.BatchTimeout, namePrefix+"batch-timeout", o.BatchTimeout, "Maximum delay before a span batch is exported")
	fs.StringVar(&o.Environment, namePrefix+"environment", o.Environment, "Deployment environment resource attribute")
}

// Complete fills in defaults.
func (o *Options) Complete() error {
	if o.Headers == nil {
		o.Headers = map[string]string{}
	}
	return nil
}

// Validate validates the tracing options. Disabled options are always valid.
func (o *Options) Validate() error {
	if !o.Enabled {
		return nil
	}
	switch o.Exporter {
	case ExporterOTLPGRPC, ExporterOTLPHTTP:
		if o.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required for exporter %s", o.Exporter)
		}
	case ExporterStdout, ExporterNoop:
	default:
		return fmt.Errorf("tracing.exporter %q is invalid", o.Exporter)
	}
	if o.SampleRatio < 0 || o.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample-ratio must be in [0,1], got %g", o.SampleRatio)
	}
	if o.BatchTimeout <= 0 {
		return fmt.Errorf("tracing.batch-timeout must be positive")
	}
	return nil
}
