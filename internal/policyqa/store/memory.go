package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	chromem "github.com/philippgille/chromem-go"

	"github.com/coverport/policyqa/internal/model"
	"github.com/coverport/policyqa/internal/pkg/textutil"
)

// MemoryStore implements VectorStore on an embedded chromem-go database.
// Each tenant gets its own collection, so tenant isolation holds structurally
// rather than through filter expressions. Intended for development and tests.
type MemoryStore struct {
	db     *chromem.DB
	prefix string
}

var _ VectorStore = (*MemoryStore)(nil)

// NewMemoryStore creates an in-process vector store.
func NewMemoryStore(collection string) *MemoryStore {
	return &MemoryStore{
		db:     chromem.NewDB(),
		prefix: collection,
	}
}

func (s *MemoryStore) tenantCollection(tenantID string) (*chromem.Collection, error) {
	return s.db.GetOrCreateCollection(s.prefix+"_"+tenantID, nil, nil)
}

// Upsert writes records into their tenant collections in batches of
// UpsertBatchSize.
func (s *MemoryStore) Upsert(ctx context.Context, records []*model.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records); err != nil {
		return err
	}

	byTenant := make(map[string][]chromem.Document)
	for _, r := range records {
		byTenant[r.TenantID] = append(byTenant[r.TenantID], chromem.Document{
			ID:        r.ChunkID,
			Embedding: r.Vector,
			Content:   textutil.TruncateString(r.ChunkText, MaxMetadataTextLen),
			Metadata: map[string]string{
				"tenant_id":          r.TenantID,
				"document_id":        r.DocumentID,
				"document_type":      string(r.DocumentType),
				"page_number":        strconv.Itoa(r.PageNumber),
				"section_title":      r.SectionTitle,
				"chunk_index":        strconv.Itoa(r.ChunkIndex),
				"policy_number":      r.PolicyNumber,
				"communication_type": r.CommunicationType,
			},
		})
	}

	for tenantID, docs := range byTenant {
		coll, err := s.tenantCollection(tenantID)
		if err != nil {
			return fmt.Errorf("failed to open collection for tenant %s: %w", tenantID, err)
		}
		for start := 0; start < len(docs); start += UpsertBatchSize {
			end := start + UpsertBatchSize
			if end > len(docs) {
				end = len(docs)
			}
			if err := coll.AddDocuments(ctx, docs[start:end], 1); err != nil {
				return fmt.Errorf("batch %d-%d for tenant %s: %w", start, end, tenantID, err)
			}
		}
	}
	return nil
}

// Search queries the tenant's collection with metadata equality filters.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, tenantID string, topK int, filter *Filter) ([]*model.RetrievedChunk, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	coll, err := s.tenantCollection(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection for tenant %s: %w", tenantID, err)
	}

	// chromem rejects nResults larger than the collection size.
	if count := coll.Count(); count < topK {
		topK = count
	}
	if topK == 0 {
		return []*model.RetrievedChunk{}, nil
	}

	where := map[string]string{}
	if filter != nil {
		if filter.DocumentType != "" {
			where["document_type"] = string(filter.DocumentType)
		}
		if filter.PolicyNumber != "" {
			where["policy_number"] = filter.PolicyNumber
		}
		if filter.CommunicationType != "" {
			where["communication_type"] = filter.CommunicationType
		}
	}

	results, err := coll.QueryEmbedding(ctx, vector, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	retrieved := make([]*model.RetrievedChunk, 0, len(results))
	for _, r := range results {
		pageNumber, _ := strconv.Atoi(r.Metadata["page_number"])
		chunkIndex, _ := strconv.Atoi(r.Metadata["chunk_index"])
		retrieved = append(retrieved, &model.RetrievedChunk{
			ChunkID:           r.ID,
			Text:              r.Content,
			Score:             float64(r.Similarity),
			PageNumber:        pageNumber,
			SectionTitle:      r.Metadata["section_title"],
			ChunkIndex:        chunkIndex,
			DocumentID:        r.Metadata["document_id"],
			DocumentType:      r.Metadata["document_type"],
			PolicyNumber:      r.Metadata["policy_number"],
			CommunicationType: r.Metadata["communication_type"],
		})
	}

	// chromem returns results ordered by similarity already; keep the order
	// stable for equal scores.
	sort.SliceStable(retrieved, func(i, j int) bool {
		return retrieved[i].Score > retrieved[j].Score
	})
	return retrieved, nil
}

// Delete removes chunks by id within the tenant's collection.
func (s *MemoryStore) Delete(ctx context.Context, tenantID string, chunkIDs []string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if len(chunkIDs) == 0 {
		return nil
	}

	coll, err := s.tenantCollection(tenantID)
	if err != nil {
		return fmt.Errorf("failed to open collection for tenant %s: %w", tenantID, err)
	}

	for start := 0; start < len(chunkIDs); start += DeleteBatchSize {
		end := start + DeleteBatchSize
		if end > len(chunkIDs) {
			end = len(chunkIDs)
		}
		if err := coll.Delete(ctx, nil, nil, chunkIDs[start:end]...); err != nil {
			return fmt.Errorf("delete batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// DeleteDocument removes every chunk of one document within the tenant.
func (s *MemoryStore) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}

	coll, err := s.tenantCollection(tenantID)
	if err != nil {
		return fmt.Errorf("failed to open collection for tenant %s: %w", tenantID, err)
	}
	return coll.Delete(ctx, map[string]string{"document_id": documentID}, nil)
}

// Stats returns the total chunk count across all tenant collections.
func (s *MemoryStore) Stats(ctx context.Context) (int64, error) {
	var total int64
	for _, coll := range s.db.ListCollections() {
		total += int64(coll.Count())
	}
	return total, nil
}

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
