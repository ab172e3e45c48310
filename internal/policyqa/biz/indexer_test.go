package biz_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverport/policyqa/internal/model"
	"github.com/coverport/policyqa/internal/policyqa/biz"
	"github.com/coverport/policyqa/internal/policyqa/store"
	"github.com/coverport/policyqa/pkg/llm/resilience"
)

func newTestIndexer(t *testing.T, vectorStore store.VectorStore) *biz.Indexer {
	t.Helper()
	segmenter, err := biz.NewSegmenter(&biz.SegmenterConfig{
		ChunkSize:       512,
		ChunkOverlap:    50,
		MaxHeaderLength: 100,
	})
	require.NoError(t, err)
	return biz.NewIndexer(vectorStore, &fakeEmbedder{}, segmenter, nil, nil)
}

func TestIndexDocument(t *testing.T) {
	memStore := store.NewMemoryStore("chunks")
	indexer := newTestIndexer(t, memStore)

	count, err := indexer.IndexDocument(context.Background(), &biz.IndexRequest{
		TenantID:     "tenant-a",
		DocumentID:   "doc-1",
		DocumentType: model.DocumentTypePolicy,
		PolicyNumber: "POL-1",
		Pages: []model.Page{
			{PageNumber: 1, Text: "COVERAGE LIMITS\nWater damage is covered.\nEXCLUSIONS\nFlood damage is excluded."},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	total, err := memStore.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	results, err := memStore.Search(context.Background(), []float32{1, 0, 0}, "tenant-a", 10, store.PolicyFilter("POL-1"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "doc-1", r.DocumentID)
		assert.Equal(t, "POL-1", r.PolicyNumber)
	}
}

func TestIndexDocumentEmptyText(t *testing.T) {
	memStore := store.NewMemoryStore("chunks")
	indexer := newTestIndexer(t, memStore)

	// No extractable text: processed but unindexable, not an error.
	count, err := indexer.IndexDocument(context.Background(), &biz.IndexRequest{
		TenantID:     "tenant-a",
		DocumentID:   "doc-empty",
		DocumentType: model.DocumentTypePolicy,
		Pages:        []model.Page{{PageNumber: 1, Text: "  "}},
	})
	require.NoError(t, err)
	assert.Zero(t, count)

	total, err := memStore.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestIndexDocumentValidation(t *testing.T) {
	indexer := newTestIndexer(t, store.NewMemoryStore("chunks"))

	_, err := indexer.IndexDocument(context.Background(), &biz.IndexRequest{
		DocumentID: "doc-1",
	})
	assert.Error(t, err, "missing tenant id must be rejected")

	_, err = indexer.IndexDocument(context.Background(), &biz.IndexRequest{
		TenantID: "tenant-a",
	})
	assert.Error(t, err, "missing document id must be rejected")
}

func TestDeleteDocumentRemovesChunks(t *testing.T) {
	memStore := store.NewMemoryStore("chunks")
	indexer := newTestIndexer(t, memStore)

	_, err := indexer.IndexDocument(context.Background(), &biz.IndexRequest{
		TenantID:     "tenant-a",
		DocumentID:   "doc-1",
		DocumentType: model.DocumentTypePolicy,
		PolicyNumber: "POL-1",
		Pages: []model.Page{
			{PageNumber: 1, Text: "COVERAGE LIMITS\nWater damage is covered.\nEXCLUSIONS\nFlood damage is excluded."},
		},
	})
	require.NoError(t, err)

	require.NoError(t, indexer.DeleteDocument(context.Background(), "tenant-a", "doc-1"))

	total, err := memStore.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

// flakyStore fails the first N write calls with a transient error, then
// delegates to the wrapped store.
type flakyStore struct {
	store.VectorStore
	failuresLeft int
	upsertCalls  int
	deleteCalls  int
}

func (f *flakyStore) Upsert(ctx context.Context, records []*model.ChunkRecord) error {
	f.upsertCalls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return errors.New("connection reset by peer")
	}
	return f.VectorStore.Upsert(ctx, records)
}

func (f *flakyStore) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	f.deleteCalls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return errors.New("connection reset by peer")
	}
	return f.VectorStore.DeleteDocument(ctx, tenantID, documentID)
}

func newFlakyIndexer(t *testing.T, flaky *flakyStore) *biz.Indexer {
	t.Helper()
	segmenter, err := biz.NewSegmenter(&biz.SegmenterConfig{
		ChunkSize:       512,
		ChunkOverlap:    50,
		MaxHeaderLength: 100,
	})
	require.NoError(t, err)
	return biz.NewIndexer(flaky, &fakeEmbedder{}, segmenter, nil, &biz.IndexerConfig{
		StoreRetry: &resilience.RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Millisecond,
			MaxDelay:   5 * time.Millisecond,
			Multiplier: 2.0,
		},
	})
}

func TestIndexDocumentRetriesTransientUpsert(t *testing.T) {
	flaky := &flakyStore{VectorStore: store.NewMemoryStore("chunks"), failuresLeft: 1}
	indexer := newFlakyIndexer(t, flaky)

	count, err := indexer.IndexDocument(context.Background(), &biz.IndexRequest{
		TenantID:     "tenant-a",
		DocumentID:   "doc-1",
		DocumentType: model.DocumentTypePolicy,
		PolicyNumber: "POL-1",
		Pages: []model.Page{
			{PageNumber: 1, Text: "COVERAGE LIMITS\nWater damage is covered.\nEXCLUSIONS\nFlood damage is excluded."},
		},
	})
	require.NoError(t, err, "one transient upsert failure must not fail the document")
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, flaky.upsertCalls)
}

func TestIndexDocumentUpsertRetryBudgetExhausted(t *testing.T) {
	flaky := &flakyStore{VectorStore: store.NewMemoryStore("chunks"), failuresLeft: 10}
	indexer := newFlakyIndexer(t, flaky)

	_, err := indexer.IndexDocument(context.Background(), &biz.IndexRequest{
		TenantID:     "tenant-a",
		DocumentID:   "doc-1",
		DocumentType: model.DocumentTypePolicy,
		PolicyNumber: "POL-1",
		Pages: []model.Page{
			{PageNumber: 1, Text: "COVERAGE LIMITS\nWater damage is covered."},
		},
	})
	require.Error(t, err)
	// Initial attempt plus the configured retries.
	assert.Equal(t, 4, flaky.upsertCalls)
}

func TestDeleteDocumentRetriesTransientFailure(t *testing.T) {
	memStore := store.NewMemoryStore("chunks")
	indexer := newTestIndexer(t, memStore)

	_, err := indexer.IndexDocument(context.Background(), &biz.IndexRequest{
		TenantID:     "tenant-a",
		DocumentID:   "doc-1",
		DocumentType: model.DocumentTypePolicy,
		PolicyNumber: "POL-1",
		Pages: []model.Page{
			{PageNumber: 1, Text: "COVERAGE LIMITS\nWater damage is covered."},
		},
	})
	require.NoError(t, err)

	flaky := &flakyStore{VectorStore: memStore, failuresLeft: 1}
	flakyIndexer := newFlakyIndexer(t, flaky)

	require.NoError(t, flakyIndexer.DeleteDocument(context.Background(), "tenant-a", "doc-1"))
	assert.Equal(t, 2, flaky.deleteCalls)

	total, err := memStore.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestIndexDocumentBytesPlainText(t *testing.T) {
	memStore := store.NewMemoryStore("chunks")
	indexer := newTestIndexer(t, memStore)

	count, err := indexer.IndexDocumentBytes(context.Background(), &biz.IndexRequest{
		TenantID:     "tenant-a",
		DocumentID:   "doc-txt",
		DocumentType: model.DocumentTypeCommunication,
	}, []byte("Called the client about the renewal on Tuesday."), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
