// Package policyqa provides the question-answering server implementation.
package policyqa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/coverport/policyqa/internal/policyqa/biz"
	"github.com/coverport/policyqa/internal/policyqa/handler"
	"github.com/coverport/policyqa/internal/policyqa/router"
	"github.com/coverport/policyqa/internal/policyqa/store"
	"github.com/coverport/policyqa/pkg/component/milvus"
	redisc "github.com/coverport/policyqa/pkg/component/redis"
	"github.com/coverport/policyqa/pkg/infra/app"
	"github.com/coverport/policyqa/pkg/infra/pool"
	"github.com/coverport/policyqa/pkg/llm"
	"github.com/coverport/policyqa/pkg/llm/resilience"
	cacheopts "github.com/coverport/policyqa/pkg/options/cache"
	httpopts "github.com/coverport/policyqa/pkg/options/http"
	llmopts "github.com/coverport/policyqa/pkg/options/llm"
	logopts "github.com/coverport/policyqa/pkg/options/logger"
	milvusopts "github.com/coverport/policyqa/pkg/options/milvus"
	qaopts "github.com/coverport/policyqa/pkg/options/qa"
	redisopts "github.com/coverport/policyqa/pkg/options/redis"

	// Register the LLM providers.
	_ "github.com/coverport/policyqa/pkg/llm/anthropic"
	_ "github.com/coverport/policyqa/pkg/llm/openai"
)

// Name is the name of the application.
const Name = "policyqa"

// Config contains the fully resolved server configuration.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	MilvusOptions    *milvusopts.Options
	RedisOptions     *redisopts.Options
	CacheOptions     *cacheopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	QAOptions        *qaopts.Options
	QueryTimeout     time.Duration
	ShutdownTimeout  time.Duration
}

// Server is the assembled HTTP server plus the resources it owns.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	closers         []func()
}

// NewServer initializes every component and returns a runnable server.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("Starting question-answering service",
		"name", Name,
		"version", app.GetVersion(),
	)

	var closers []func()

	vectorStore, storeClosers, err := cfg.newVectorStore(ctx)
	if err != nil {
		return nil, err
	}
	closers = append(closers, storeClosers...)

	queryCache, cacheCloser := cfg.newQueryCache(ctx)
	if cacheCloser != nil {
		closers = append(closers, cacheCloser)
	}

	embedProvider, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	embedRetry := resilience.DefaultRetryConfig()
	embedRetry.MaxRetries = cfg.EmbeddingOptions.MaxRetries
	resilientEmbed := resilience.NewResilientEmbeddingProvider(embedProvider, embedRetry, nil)
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
	)

	chatProvider, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	chatRetry := resilience.GenerationRetryConfig()
	chatRetry.MaxRetries = cfg.ChatOptions.MaxRetries
	resilientChat := resilience.NewResilientChatProvider(chatProvider, chatRetry, nil)
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)

	ingestPool, err := pool.NewPool("ingest", pool.IngestPool, pool.IngestPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ingest pool: %w", err)
	}
	closers = append(closers, func() { _ = ingestPool.ReleaseTimeout(10 * time.Second) })

	service, err := biz.NewQAService(vectorStore, resilientEmbed, resilientChat, queryCache, ingestPool, &biz.ServiceConfig{
		Segmenter: &biz.SegmenterConfig{
			ChunkSize:       cfg.QAOptions.ChunkSize,
			ChunkOverlap:    cfg.QAOptions.ChunkOverlap,
			MaxHeaderLength: cfg.QAOptions.MaxHeaderLength,
		},
		Orchestrator: &biz.OrchestratorConfig{
			TopKRetrieval:        cfg.QAOptions.TopKRetrieval,
			TopKRerank:           cfg.QAOptions.TopKRerank,
			ConfidenceTopWeight:  cfg.QAOptions.ConfidenceTopWeight,
			ConfidenceMeanWeight: cfg.QAOptions.ConfidenceMeanWeight,
			MaxAnswerTokens:      biz.DefaultOrchestratorConfig().MaxAnswerTokens,
			Temperature:          biz.DefaultOrchestratorConfig().Temperature,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize service: %w", err)
	}
	logger.Infow("Question-answering service initialized",
		"store", cfg.QAOptions.Store,
		"cache.enabled", queryCache != nil,
	)

	gin.SetMode(cfg.HTTPOptions.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.MaxMultipartMemory = cfg.HTTPOptions.MaxUploadBytes

	qaHandler := handler.NewQAHandler(service, cfg.QueryTimeout)
	router.Register(engine, qaHandler)

	httpServer := &http.Server{
		Addr:         cfg.HTTPOptions.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
		WriteTimeout: cfg.HTTPOptions.WriteTimeout,
		IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
	}

	logger.Infow("Question-answering service is ready", "addr", cfg.HTTPOptions.Addr)
	return &Server{
		httpServer:      httpServer,
		shutdownTimeout: cfg.ShutdownTimeout,
		closers:         closers,
	}, nil
}

// newVectorStore builds the configured vector store backend.
func (cfg *Config) newVectorStore(ctx context.Context) (store.VectorStore, []func(), error) {
	if cfg.QAOptions.Store == "memory" {
		logger.Info("Using in-memory vector store")
		return store.NewMemoryStore(cfg.QAOptions.Collection), nil, nil
	}

	milvusClient, err := milvus.New(cfg.MilvusOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}

	milvusStore, err := store.NewMilvusStore(ctx, milvusClient, cfg.QAOptions.Collection, cfg.QAOptions.EmbeddingDim)
	if err != nil {
		_ = milvusClient.Close(context.Background())
		return nil, nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	logger.Infow("Milvus vector store initialized",
		"collection", cfg.QAOptions.Collection,
		"dimension", cfg.QAOptions.EmbeddingDim,
	)

	closer := func() { _ = milvusClient.Close(context.Background()) }
	return milvusStore, []func(){closer}, nil
}

// newQueryCache builds the Redis-backed query cache when enabled. A Redis
// that cannot be reached disables the cache instead of failing startup.
func (cfg *Config) newQueryCache(ctx context.Context) (*biz.QueryCache, func()) {
	if cfg.CacheOptions == nil || !cfg.CacheOptions.Enabled {
		logger.Info("Query cache is disabled")
		return nil, nil
	}

	redisClient, err := redisc.NewWithContext(ctx, cfg.RedisOptions)
	if err != nil {
		logger.Warnw("Failed to connect to redis, query cache disabled", "error", err.Error())
		return nil, nil
	}

	queryCache := biz.NewQueryCache(redisClient.Client(), &biz.QueryCacheConfig{
		Enabled:   true,
		TTL:       cfg.CacheOptions.TTL,
		KeyPrefix: cfg.CacheOptions.KeyPrefix,
	})
	logger.Infow("Query cache initialized",
		"host", cfg.RedisOptions.Host,
		"port", cfg.RedisOptions.Port,
		"ttl", cfg.CacheOptions.TTL,
	)
	return queryCache, func() { _ = redisClient.Close() }
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully
// and releases owned resources.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		for _, closeFn := range s.closers {
			closeFn()
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
