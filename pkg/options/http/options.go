// Package http provides HTTP server configuration options.
package http

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/pflag"
)

// Options defines configuration options for the HTTP server.
type Options struct {
	// Addr is the listen address in host:port form.
	Addr string `json:"addr" mapstructure:"addr"`

	// Mode is the gin run mode (debug|release|test).
	Mode string `json:"mode" mapstructure:"mode"`

	// ReadTimeout bounds reading the full request, including the body.
	ReadTimeout time.Duration `json:"read-timeout" mapstructure:"read-timeout"`

	// WriteTimeout bounds writing the response. Must exceed the query
	// timeout or long generations are cut off mid-response.
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`

	// IdleTimeout bounds keep-alive connections between requests.
	IdleTimeout time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`

	// MaxUploadBytes caps the accepted document upload size.
	MaxUploadBytes int64 `json:"max-upload-bytes" mapstructure:"max-upload-bytes"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Addr:           ":8082",
		Mode:           "release",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   90 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxUploadBytes: 32 << 20,
	}
}

// AddFlags adds flags for HTTP server options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "HTTP server listen address")
	fs.StringVar(&o.Mode, "http.mode", o.Mode, "HTTP server mode (debug|release|test)")
	fs.DurationVar(&o.ReadTimeout, "http.read-timeout", o.ReadTimeout, "HTTP read timeout")
	fs.DurationVar(&o.WriteTimeout, "http.write-timeout", o.WriteTimeout, "HTTP write timeout")
	fs.DurationVar(&o.IdleTimeout, "http.idle-timeout", o.IdleTimeout, "HTTP idle timeout")
	fs.Int64Var(&o.MaxUploadBytes, "http.max-upload-bytes", o.MaxUploadBytes, "Maximum document upload size in bytes")
}

// Validate validates the HTTP server options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Addr == "" {
		errs = append(errs, fmt.Errorf("http.addr is required"))
	} else if _, _, err := net.SplitHostPort(o.Addr); err != nil {
		errs = append(errs, fmt.Errorf("http.addr %q is not a valid host:port: %w", o.Addr, err))
	}
	switch o.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("http.mode must be one of: debug, release, test"))
	}
	if o.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("http.max-upload-bytes must be positive"))
	}
	return errs
}

// Complete completes the HTTP server options with defaults.
func (o *Options) Complete() error {
	return nil
}
