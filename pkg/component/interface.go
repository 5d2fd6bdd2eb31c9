// Package component holds infrastructure clients shared by docqa services.
package component

import "github.com/spf13/pflag"

// ConfigOptions defines the standard interface for all component options.
type ConfigOptions interface {
	// Complete fills in any fields not set that are required to have valid data.
	Complete() error

	// Validate validates the options and returns an error if any option is invalid.
	Validate() error

	// AddFlags adds flags for the options to the specified FlagSet,
	// with every flag name prefixed by namePrefix (for example "postgres.").
	AddFlags(fs *pflag.FlagSet, namePrefix string)
}
