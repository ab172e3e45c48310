package store

import (
	"context"
	"fmt"

	"github.com/coverport/policyqa/internal/model"
)

const (
	// UpsertBatchSize bounds the number of records written per index call.
	UpsertBatchSize = 100

	// DeleteBatchSize bounds the number of ids deleted per index call.
	DeleteBatchSize = 1000

	// MaxMetadataTextLen bounds the chunk text copy stored as index metadata.
	// Truncation is lossy; the full text lives with the document store.
	MaxMetadataTextLen = 1000
)

// Filter narrows a search to a document scope within a tenant.
// An empty string field is not applied.
type Filter struct {
	// DocumentType restricts matches to policy or communication documents.
	DocumentType model.DocumentType

	// PolicyNumber restricts policy searches to a single policy.
	PolicyNumber string

	// CommunicationType restricts communication searches to one record type.
	CommunicationType string
}

// PolicyFilter scopes a search to one policy's documents.
func PolicyFilter(policyNumber string) *Filter {
	return &Filter{
		DocumentType: model.DocumentTypePolicy,
		PolicyNumber: policyNumber,
	}
}

// CommunicationFilter scopes a search to communication records, optionally
// restricted to a single communication type.
func CommunicationFilter(communicationType string) *Filter {
	return &Filter{
		DocumentType:      model.DocumentTypeCommunication,
		CommunicationType: communicationType,
	}
}

// VectorStore is the tenant-isolated vector index abstraction.
//
// The tenant id is the sole isolation mechanism: every implementation must
// apply it on every write, search, and delete. A search scoped to one tenant
// must never return another tenant's chunks, even when metadata values such
// as policy numbers collide across tenants.
type VectorStore interface {
	// Upsert writes chunk records in bounded batches, replacing records with
	// matching chunk ids. A batch failure surfaces to the caller; remaining
	// batches are not silently dropped.
	Upsert(ctx context.Context, records []*model.ChunkRecord) error

	// Search runs a filtered nearest-neighbor query restricted to the tenant.
	// Scores are returned verbatim from the provider, best first.
	Search(ctx context.Context, vector []float32, tenantID string, topK int, filter *Filter) ([]*model.RetrievedChunk, error)

	// Delete removes chunks by id within the tenant. Missing ids and an
	// empty id list are no-ops.
	Delete(ctx context.Context, tenantID string, chunkIDs []string) error

	// DeleteDocument removes every chunk of one document within the tenant.
	DeleteDocument(ctx context.Context, tenantID, documentID string) error

	// Stats returns the total number of indexed chunks.
	Stats(ctx context.Context) (int64, error)

	// Close releases the backend connection.
	Close(ctx context.Context) error
}

func validateRecords(records []*model.ChunkRecord) error {
	for _, r := range records {
		if r.TenantID == "" {
			return fmt.Errorf("chunk record %s has no tenant id", r.ChunkID)
		}
		if r.ChunkID == "" {
			return fmt.Errorf("chunk record has no chunk id")
		}
	}
	return nil
}
