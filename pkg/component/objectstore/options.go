package objectstore

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// Provider names.
const (
	ProviderS3     = "s3"
	ProviderGCS    = "gcs"
	ProviderMemory = "memory"
)

// Options defines configuration options for the object store.
type Options struct {
	Provider        string        `json:"provider" mapstructure:"provider"`
	Bucket          string        `json:"bucket" mapstructure:"bucket"`
	Endpoint        string        `json:"endpoint" mapstructure:"endpoint"`
	Region          string        `json:"region" mapstructure:"region"`
	AccessKey       string        `json:"access-key" mapstructure:"access-key"`
	SecretKey       string        `json:"-" mapstructure:"secret-key"`
	UsePathStyle    bool          `json:"use-path-style" mapstructure:"use-path-style"`
	CredentialsFile string        `json:"credentials-file" mapstructure:"credentials-file"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Provider:     ProviderS3,
		Bucket:       "docqa",
		Endpoint:     "http://127.0.0.1:9000",
		Region:       "us-east-1",
		UsePathStyle: true,
		Timeout:      30 * time.Second,
	}
}

// Complete reads credentials from the environment when not set.
func (o *Options) Complete() error {
	if o.SecretKey == "" {
		o.SecretKey = os.Getenv("OBJECTSTORE_SECRET_KEY")
	}
	if o.AccessKey == "" {
		o.AccessKey = os.Getenv("OBJECTSTORE_ACCESS_KEY")
	}
	return nil
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	switch o.Provider {
	case ProviderS3, ProviderGCS, ProviderMemory:
	default:
		return fmt.Errorf("objectstore.provider must be one of s3, gcs, memory, got %q", o.Provider)
	}
	if o.Bucket == "" {
		return fmt.Errorf("objectstore.bucket is required")
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("objectstore.timeout must be positive")
	}
	return nil
}

// AddFlags adds flags for object store options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, namePrefix string) {
	fs.StringVar(&o.Provider, namePrefix+"provider", o.Provider, "Object store provider: s3, gcs or memory")
	fs.StringVar(&o.Bucket, namePrefix+"bucket", o.Bucket, "Bucket holding uploaded files")
	fs.StringVar(&o.Endpoint, namePrefix+"endpoint", o.Endpoint, "S3 endpoint (MinIO or custom), empty for AWS default")
	fs.StringVar(&o.Region, namePrefix+"region", o.Region, "S3 region")
	fs.StringVar(&o.AccessKey, namePrefix+"access-key", o.AccessKey, "S3 access key (or OBJECTSTORE_ACCESS_KEY)")
	fs.StringVar(&o.SecretKey, namePrefix+"secret-key", o.SecretKey, "S3 secret key (prefer OBJECTSTORE_SECRET_KEY)")
	fs.BoolVar(&o.UsePathStyle, namePrefix+"use-path-style", o.UsePathStyle, "Use path-style S3 addressing")
	fs.StringVar(&o.CredentialsFile, namePrefix+"credentials-file", o.CredentialsFile, "GCS service account file, empty for application default credentials")
	fs.DurationVar(&o.Timeout, namePrefix+"timeout", o.Timeout, "Per-call object store timeout")
}
