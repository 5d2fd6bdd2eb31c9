package milvus

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Options contains Milvus client configuration.
type Options struct {
	// Enabled switches chunk vectors from pgvector to Milvus.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Address is the Milvus server address (host:port).
	Address string `json:"address" mapstructure:"address"`

	// Database is the database name to use.
	Database string `json:"database" mapstructure:"database"`

	Username string `json:"username" mapstructure:"username"`
	Password string `json:"-" mapstructure:"password"`

	// Collection holds chunk vectors.
	Collection string `json:"collection" mapstructure:"collection"`

	// Timeout for connection and operations.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Address:    "localhost:19530",
		Database:   "default",
		Collection: "docqa_chunks",
		Timeout:    30 * time.Second,
	}
}

// Complete is a no-op.
func (o *Options) Complete() error { return nil }

// Validate validates the options. Disabled options are always valid.
func (o *Options) Validate() error {
	if !o.Enabled {
		return nil
	}
	if o.Address == "" {
		return fmt.Errorf("milvus.address is required")
	}
	if o.Collection == "" {
		return fmt.Errorf("milvus.collection is required")
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("milvus.timeout must be positive")
	}
	return nil
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, namePrefix string) {
	fs.BoolVar(&o.Enabled, namePrefix+"enabled", o.Enabled, "Store chunk vectors in Milvus instead of pgvector.")
	fs.StringVar(&o.Address, namePrefix+"address", o.Address, "Milvus server address (host:port).")
	fs.StringVar(&o.Database, namePrefix+"database", o.Database, "Milvus database name.")
	fs.StringVar(&o.Username, namePrefix+"username", o.Username, "Milvus username for authentication.")
	fs.StringVar(&o.Password, namePrefix+"password", o.Password, "Milvus password for authentication.")
	fs.StringVar(&o.Collection, namePrefix+"collection", o.Collection, "Milvus collection for chunk vectors.")
	fs.DurationVar(&o.Timeout, namePrefix+"timeout", o.Timeout, "Connection and operation timeout.")
}
