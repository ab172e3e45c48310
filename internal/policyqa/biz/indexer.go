package biz

import (
	"context"
	"fmt"
	"sync"

	"github.com/kart-io/logger"

	"github.com/coverport/policyqa/internal/model"
	"github.com/coverport/policyqa/internal/pkg/extract"
	"github.com/coverport/policyqa/internal/policyqa/store"
	"github.com/coverport/policyqa/pkg/infra/pool"
	"github.com/coverport/policyqa/pkg/llm"
	"github.com/coverport/policyqa/pkg/llm/resilience"
)

// defaultEmbedBatchSize is the number of chunk texts sent per embedding call.
const defaultEmbedBatchSize = 100

// IndexerConfig configures document ingestion.
type IndexerConfig struct {
	// EmbedBatchSize bounds the texts per embedding provider call.
	EmbedBatchSize int

	// StoreRetry overrides the retry policy for vector store writes.
	// Nil selects the default store-call retry configuration.
	StoreRetry *resilience.RetryConfig
}

// IndexRequest describes one document to ingest.
type IndexRequest struct {
	TenantID          string
	DocumentID        string
	DocumentType      model.DocumentType
	PolicyNumber      string
	CommunicationType string
	Pages             []model.Page
}

// Indexer segments a document, embeds its chunks, and writes them to the
// vector store. Embedding batches run concurrently on the ingest pool;
// chunk ordering is fixed by the segmenter before dispatch, so batch
// completion order does not matter.
type Indexer struct {
	store         store.VectorStore
	embedProvider llm.EmbeddingProvider
	segmenter     *Segmenter
	pool          *pool.Pool
	batchSize     int
	storeRetry    *resilience.RetryConfig
}

// NewIndexer creates an indexer. The pool may be nil, in which case batches
// are embedded sequentially.
func NewIndexer(vectorStore store.VectorStore, embedProvider llm.EmbeddingProvider, segmenter *Segmenter, ingestPool *pool.Pool, config *IndexerConfig) *Indexer {
	batchSize := defaultEmbedBatchSize
	if config != nil && config.EmbedBatchSize > 0 {
		batchSize = config.EmbedBatchSize
	}
	storeRetry := resilience.DefaultRetryConfig()
	if config != nil && config.StoreRetry != nil {
		storeRetry = config.StoreRetry
	}
	return &Indexer{
		store:         vectorStore,
		embedProvider: embedProvider,
		segmenter:     segmenter,
		pool:          ingestPool,
		batchSize:     batchSize,
		storeRetry:    storeRetry,
	}
}

// IndexDocument segments, embeds, and upserts one document. It returns the
// number of chunks indexed. Zero chunks is a valid outcome for a document
// with no extractable text; the caller marks it processed but unindexable.
func (i *Indexer) IndexDocument(ctx context.Context, req *IndexRequest) (int, error) {
	if req.TenantID == "" {
		return 0, fmt.Errorf("tenant id is required")
	}
	if req.DocumentID == "" {
		return 0, fmt.Errorf("document id is required")
	}

	chunks := i.segmenter.Segment(req.Pages)
	if len(chunks) == 0 {
		logger.Infow("Document produced no chunks",
			"tenant_id", req.TenantID,
			"document_id", req.DocumentID,
		)
		return 0, nil
	}

	vectors, err := i.embedChunks(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}

	records := make([]*model.ChunkRecord, len(chunks))
	for idx, c := range chunks {
		records[idx] = &model.ChunkRecord{
			ChunkID:           c.ChunkID,
			Vector:            vectors[idx],
			TenantID:          req.TenantID,
			DocumentID:        req.DocumentID,
			DocumentType:      req.DocumentType,
			ChunkText:         c.Text,
			PageNumber:        c.PageNumber,
			SectionTitle:      c.SectionTitle,
			ChunkIndex:        c.ChunkIndex,
			PolicyNumber:      req.PolicyNumber,
			CommunicationType: req.CommunicationType,
		}
	}

	err = resilience.RetryWithBackoff(ctx, "upsert", i.storeRetry, func() error {
		return i.store.Upsert(ctx, records)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert chunks: %w", err)
	}

	logger.Infow("Document indexed",
		"tenant_id", req.TenantID,
		"document_id", req.DocumentID,
		"document_type", req.DocumentType,
		"chunks", len(chunks),
	)
	return len(chunks), nil
}

// IndexDocumentBytes extracts per-page text from raw bytes and indexes it.
func (i *Indexer) IndexDocumentBytes(ctx context.Context, req *IndexRequest, data []byte, contentType string) (int, error) {
	pages, err := extract.Pages(data, contentType)
	if err != nil {
		return 0, fmt.Errorf("failed to extract document text: %w", err)
	}
	req.Pages = pages
	return i.IndexDocument(ctx, req)
}

// DeleteDocument removes a document's chunks from the vector store.
func (i *Indexer) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if documentID == "" {
		return fmt.Errorf("document id is required")
	}
	return resilience.RetryWithBackoff(ctx, "delete_document", i.storeRetry, func() error {
		return i.store.DeleteDocument(ctx, tenantID, documentID)
	})
}

// embedChunks embeds chunk texts in batches, dispatching batches to the
// ingest pool when available. Results land at fixed offsets, so concurrent
// completion cannot reorder chunks.
func (i *Indexer) embedChunks(ctx context.Context, chunks []model.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for start := 0; start < len(chunks); start += i.batchSize {
		end := start + i.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		batchStart, batchEnd := start, end
		task := func() {
			defer wg.Done()

			texts := make([]string, batchEnd-batchStart)
			for idx := batchStart; idx < batchEnd; idx++ {
				texts[idx-batchStart] = chunks[idx].Text
			}

			embeddings, err := i.embedProvider.Embed(ctx, texts)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("batch %d-%d: %w", batchStart, batchEnd, err)
				}
				mu.Unlock()
				return
			}

			copy(vectors[batchStart:batchEnd], embeddings)
		}

		wg.Add(1)
		if i.pool != nil {
			if err := i.pool.Submit(task); err == nil {
				continue
			}
			// Pool unavailable: run the batch inline.
		}
		task()
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}
