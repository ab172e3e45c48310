// Package cache provides query result cache configuration options.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Options defines configuration options for the query result cache.
type Options struct {
	// Enabled turns the Redis-backed query cache on.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL is the cache entry lifetime.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix namespaces cache keys in Redis.
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Enabled:   false,
		TTL:       1 * time.Hour,
		KeyPrefix: "policyqa:query:",
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "cache.enabled", o.Enabled, "Enable the query result cache")
	fs.DurationVar(&o.TTL, "cache.ttl", o.TTL, "Cache entry TTL")
	fs.StringVar(&o.KeyPrefix, "cache.key-prefix", o.KeyPrefix, "Cache key prefix")
}

// Validate validates the cache options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if o.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive when the cache is enabled"))
	}
	if o.KeyPrefix == "" {
		errs = append(errs, fmt.Errorf("cache.key-prefix is required when the cache is enabled"))
	}
	return errs
}

// Complete completes the cache options with defaults.
func (o *Options) Complete() error {
	if o.KeyPrefix == "" {
		o.KeyPrefix = "policyqa:query:"
	}
	return nil
}
