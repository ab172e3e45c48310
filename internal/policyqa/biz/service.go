package biz

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/coverport/policyqa/internal/model"
	"github.com/coverport/policyqa/internal/policyqa/metrics"
	"github.com/coverport/policyqa/internal/policyqa/store"
	"github.com/coverport/policyqa/pkg/infra/pool"
	"github.com/coverport/policyqa/pkg/llm"
	"github.com/coverport/policyqa/pkg/llm/resilience"
)

// Service is the question-answering facade consumed by the HTTP layer.
type Service interface {
	// AskPolicy answers a question against one policy's documents.
	AskPolicy(ctx context.Context, tenantID, policyNumber, question string) (*model.QueryResult, error)
	// AskCommunications answers a question against the tenant's client
	// communications, optionally narrowed to one communication type.
	AskCommunications(ctx context.Context, tenantID, communicationType, question string) (*model.QueryResult, error)
	// IndexDocument segments, embeds, and indexes one document. It returns
	// the number of chunks written; zero means processed but unindexable.
	IndexDocument(ctx context.Context, req *IndexRequest) (int, error)
	// IndexDocumentBytes extracts page text from raw bytes and indexes it.
	IndexDocumentBytes(ctx context.Context, req *IndexRequest, data []byte, contentType string) (int, error)
	// DeleteDocument removes a document's chunks and invalidates cached
	// answers that may cite them.
	DeleteDocument(ctx context.Context, tenantID, documentID string) error
	// Stats reports index, provider, cache, and metrics state.
	Stats(ctx context.Context) (map[string]any, error)
}

// ServiceConfig aggregates the sub-component configurations.
type ServiceConfig struct {
	Segmenter    *SegmenterConfig
	Indexer      *IndexerConfig
	Orchestrator *OrchestratorConfig
}

// QAService composes the orchestrator, indexer, and query cache.
type QAService struct {
	orchestrator  *Orchestrator
	indexer       *Indexer
	cache         *QueryCache
	store         store.VectorStore
	embedProvider llm.EmbeddingProvider
	chatProvider  llm.ChatProvider
	metrics       *metrics.QAMetrics
}

// NewQAService wires the pipeline components. The cache may be nil to
// disable caching, and the ingest pool may be nil for sequential embedding.
func NewQAService(
	vectorStore store.VectorStore,
	embedProvider llm.EmbeddingProvider,
	chatProvider llm.ChatProvider,
	cache *QueryCache,
	ingestPool *pool.Pool,
	config *ServiceConfig,
) (*QAService, error) {
	if config == nil {
		config = &ServiceConfig{}
	}
	segmenterConfig := config.Segmenter
	if segmenterConfig == nil {
		segmenterConfig = DefaultSegmenterConfig()
	}

	segmenter, err := NewSegmenter(segmenterConfig)
	if err != nil {
		return nil, err
	}

	return &QAService{
		orchestrator:  NewOrchestrator(vectorStore, embedProvider, chatProvider, config.Orchestrator),
		indexer:       NewIndexer(vectorStore, embedProvider, segmenter, ingestPool, config.Indexer),
		cache:         cache,
		store:         vectorStore,
		embedProvider: embedProvider,
		chatProvider:  chatProvider,
		metrics:       metrics.GetQAMetrics(),
	}, nil
}

// AskPolicy answers a question scoped to one policy.
func (s *QAService) AskPolicy(ctx context.Context, tenantID, policyNumber, question string) (*model.QueryResult, error) {
	return s.ask(ctx, tenantID, question, store.PolicyFilter(policyNumber))
}

// AskCommunications answers a question scoped to client communications.
func (s *QAService) AskCommunications(ctx context.Context, tenantID, communicationType, question string) (*model.QueryResult, error) {
	return s.ask(ctx, tenantID, question, store.CommunicationFilter(communicationType))
}

// ask runs the cache-check, answer, cache-write sequence shared by both
// query surfaces.
func (s *QAService) ask(ctx context.Context, tenantID, question string, scope *store.Filter) (*model.QueryResult, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, tenantID, scope, question)
		if err == nil && cached != nil {
			s.metrics.RecordQuery(true, nil)
			return cached, nil
		}
		// Cache miss or cache error: fall through to the pipeline.
	}

	result, err := s.orchestrator.Answer(ctx, question, tenantID, scope)
	if err != nil {
		s.metrics.RecordQuery(false, err)
		return nil, err
	}

	if s.cache != nil {
		// Write failures are logged inside Set and never fail the query.
		_ = s.cache.Set(ctx, tenantID, scope, question, result)
	}

	s.metrics.RecordQuery(false, nil)
	return result, nil
}

// IndexDocument indexes one document from already-extracted pages.
func (s *QAService) IndexDocument(ctx context.Context, req *IndexRequest) (int, error) {
	chunks, err := s.indexer.IndexDocument(ctx, req)
	s.metrics.RecordIndexing(1, chunks, err)
	s.invalidateAfterWrite(ctx, req.TenantID, chunks, err)
	return chunks, err
}

// IndexDocumentBytes indexes one document from raw uploaded bytes.
func (s *QAService) IndexDocumentBytes(ctx context.Context, req *IndexRequest, data []byte, contentType string) (int, error) {
	chunks, err := s.indexer.IndexDocumentBytes(ctx, req, data, contentType)
	s.metrics.RecordIndexing(1, chunks, err)
	s.invalidateAfterWrite(ctx, req.TenantID, chunks, err)
	return chunks, err
}

// invalidateAfterWrite clears cached answers once new chunks land. A cached
// no-match answer would otherwise outlive the document that resolves it.
func (s *QAService) invalidateAfterWrite(ctx context.Context, tenantID string, chunks int, err error) {
	if s.cache == nil || err != nil || chunks == 0 {
		return
	}
	if clearErr := s.cache.Clear(ctx); clearErr != nil {
		logger.Warnw("Failed to clear query cache after indexing",
			"tenant_id", tenantID,
			"error", clearErr.Error(),
		)
	}
}

// DeleteDocument removes a document's chunks, then clears cached answers.
// Stale cached answers could cite chunks that no longer exist.
func (s *QAService) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	if err := s.indexer.DeleteDocument(ctx, tenantID, documentID); err != nil {
		return err
	}
	s.metrics.RecordDeletion()

	if s.cache != nil {
		if err := s.cache.Clear(ctx); err != nil {
			logger.Warnw("Failed to clear query cache after deletion",
				"tenant_id", tenantID,
				"document_id", documentID,
				"error", err.Error(),
			)
		}
	}
	return nil
}

// Stats reports index size, provider names, cache state, and metrics.
func (s *QAService) Stats(ctx context.Context) (map[string]any, error) {
	count, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	stats := map[string]any{
		"chunk_count":    count,
		"embed_provider": s.embedProvider.Name(),
		"chat_provider":  s.chatProvider.Name(),
	}

	if s.cache != nil {
		if cacheStats, err := s.cache.Stats(ctx); err == nil {
			stats["cache"] = cacheStats
		}
	}

	if rs := resilience.GetEmbeddingProviderStats(s.embedProvider); rs != nil {
		stats["embed_resilience"] = rs
	}
	if rs := resilience.GetChatProviderStats(s.chatProvider); rs != nil {
		stats["chat_resilience"] = rs
	}

	stats["metrics"] = s.metrics.Stats()
	return stats, nil
}

var _ Service = (*QAService)(nil)
