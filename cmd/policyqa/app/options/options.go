// Package options contains flags and options for initializing the server.
package options

import (
	"errors"
	"time"

	policyqa "github.com/coverport/policyqa/internal/policyqa"
	cliflag "github.com/coverport/policyqa/pkg/app/cliflag"
	cacheopts "github.com/coverport/policyqa/pkg/options/cache"
	httpopts "github.com/coverport/policyqa/pkg/options/http"
	llmopts "github.com/coverport/policyqa/pkg/options/llm"
	logopts "github.com/coverport/policyqa/pkg/options/logger"
	milvusopts "github.com/coverport/policyqa/pkg/options/milvus"
	qaopts "github.com/coverport/policyqa/pkg/options/qa"
	redisopts "github.com/coverport/policyqa/pkg/options/redis"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// MilvusOptions contains Milvus database configuration.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// RedisOptions contains Redis connection configuration.
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	// CacheOptions contains query cache configuration.
	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// ChatOptions contains chat provider configuration.
	ChatOptions *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// QAOptions contains question-answering pipeline configuration.
	QAOptions *qaopts.Options `json:"qa" mapstructure:"qa"`

	// QueryTimeout bounds one ask request end to end.
	QueryTimeout time.Duration `json:"query-timeout" mapstructure:"query-timeout"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:      httpopts.NewOptions(),
		LogOptions:       logopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		CacheOptions:     cacheopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		ChatOptions:      llmopts.NewChatOptions(),
		QAOptions:        qaopts.NewOptions(),
		QueryTimeout:     60 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"), "milvus.")
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"), "embedding.")
	o.ChatOptions.AddFlags(fss.FlagSet("chat"), "chat.")
	o.QAOptions.AddFlags(fss.FlagSet("qa"))

	fs := fss.FlagSet("misc")
	fs.DurationVar(&o.QueryTimeout, "query-timeout", o.QueryTimeout, "Timeout for one ask request")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")

	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.HTTPOptions.Complete(); err != nil {
		return err
	}
	if err := o.CacheOptions.Complete(); err != nil {
		return err
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return err
	}
	if err := o.ChatOptions.Complete(); err != nil {
		return err
	}
	return o.QAOptions.Complete()
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	var errs []error

	errs = append(errs, o.HTTPOptions.Validate()...)
	if err := o.LogOptions.Validate(); err != nil {
		errs = append(errs, err)
	}
	if o.QAOptions.Store == "milvus" {
		errs = append(errs, o.MilvusOptions.Validate()...)
	}
	if o.CacheOptions.Enabled {
		if err := o.RedisOptions.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.EmbeddingOptions.Validate()...)
	errs = append(errs, o.ChatOptions.Validate()...)
	errs = append(errs, o.QAOptions.Validate()...)

	return errors.Join(errs...)
}

// Config builds a policyqa.Config from the validated options.
func (o *ServerOptions) Config() (*policyqa.Config, error) {
	return &policyqa.Config{
		HTTPOptions:      o.HTTPOptions,
		LogOptions:       o.LogOptions,
		MilvusOptions:    o.MilvusOptions,
		RedisOptions:     o.RedisOptions,
		CacheOptions:     o.CacheOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		ChatOptions:      o.ChatOptions,
		QAOptions:        o.QAOptions,
		QueryTimeout:     o.QueryTimeout,
		ShutdownTimeout:  o.ShutdownTimeout,
	}, nil
}
