package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/coverport/policyqa/internal/model"
	"github.com/coverport/policyqa/internal/pkg/textutil"
	"github.com/coverport/policyqa/pkg/component/milvus"
)

const primaryKeyField = "chunk_id"

var outputFields = []string{
	"chunk_id", "tenant_id", "document_id", "document_type", "chunk_text",
	"page_number", "section_title", "chunk_index", "policy_number", "communication_type",
}

// MilvusStore implements VectorStore on a single Milvus collection with a
// tenant_id metadata field applied as a mandatory filter on every operation.
type MilvusStore struct {
	client     *milvus.Client
	collection string
}

var _ VectorStore = (*MilvusStore)(nil)

// NewMilvusStore creates the collection if needed and returns the store.
func NewMilvusStore(ctx context.Context, client *milvus.Client, collection string, dimension int) (*MilvusStore, error) {
	schema := &milvus.CollectionSchema{
		Name:        collection,
		Description: "Insurance document chunks for question answering",
		PrimaryKey:  primaryKeyField,
		Dimension:   dimension,
		MetaFields: []milvus.MetaField{
			{Name: "tenant_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "document_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "document_type", DataType: entity.FieldTypeVarChar, MaxLen: 32},
			{Name: "chunk_text", DataType: entity.FieldTypeVarChar, MaxLen: 4 * MaxMetadataTextLen},
			{Name: "page_number", DataType: entity.FieldTypeInt64},
			{Name: "section_title", DataType: entity.FieldTypeVarChar, MaxLen: 512},
			{Name: "chunk_index", DataType: entity.FieldTypeInt64},
			{Name: "policy_number", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "communication_type", DataType: entity.FieldTypeVarChar, MaxLen: 64},
		},
	}
	if err := client.CreateCollection(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to ensure collection %s: %w", collection, err)
	}

	return &MilvusStore{client: client, collection: collection}, nil
}

// Upsert writes records in batches of UpsertBatchSize.
func (s *MilvusStore) Upsert(ctx context.Context, records []*model.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records); err != nil {
		return err
	}

	for start := 0; start < len(records); start += UpsertBatchSize {
		end := start + UpsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.upsertBatch(ctx, records[start:end]); err != nil {
			return fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (s *MilvusStore) upsertBatch(ctx context.Context, batch []*model.ChunkRecord) error {
	data := &milvus.UpsertData{
		PrimaryKey: primaryKeyField,
		IDs:        make([]string, len(batch)),
		Embeddings: make([][]float32, len(batch)),
		Metadata: map[string][]any{
			"tenant_id":          make([]any, len(batch)),
			"document_id":        make([]any, len(batch)),
			"document_type":      make([]any, len(batch)),
			"chunk_text":         make([]any, len(batch)),
			"page_number":        make([]any, len(batch)),
			"section_title":      make([]any, len(batch)),
			"chunk_index":        make([]any, len(batch)),
			"policy_number":      make([]any, len(batch)),
			"communication_type": make([]any, len(batch)),
		},
	}

	for i, r := range batch {
		data.IDs[i] = r.ChunkID
		data.Embeddings[i] = r.Vector
		data.Metadata["tenant_id"][i] = r.TenantID
		data.Metadata["document_id"][i] = r.DocumentID
		data.Metadata["document_type"][i] = string(r.DocumentType)
		data.Metadata["chunk_text"][i] = textutil.TruncateString(r.ChunkText, MaxMetadataTextLen)
		data.Metadata["page_number"][i] = int64(r.PageNumber)
		data.Metadata["section_title"][i] = r.SectionTitle
		data.Metadata["chunk_index"][i] = int64(r.ChunkIndex)
		data.Metadata["policy_number"][i] = r.PolicyNumber
		data.Metadata["communication_type"][i] = r.CommunicationType
	}

	return s.client.Upsert(ctx, s.collection, data)
}

// Search runs a tenant-scoped filtered similarity query.
func (s *MilvusStore) Search(ctx context.Context, vector []float32, tenantID string, topK int, filter *Filter) ([]*model.RetrievedChunk, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	expr := buildFilterExpr(tenantID, filter)
	results, err := s.client.SearchWithFilter(ctx, s.collection, vector, topK, expr, outputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	retrieved := make([]*model.RetrievedChunk, 0, len(results))
	for _, r := range results {
		retrieved = append(retrieved, &model.RetrievedChunk{
			ChunkID:           r.ID,
			Text:              metaString(r.Metadata, "chunk_text"),
			Score:             float64(r.Score),
			PageNumber:        int(metaInt64(r.Metadata, "page_number")),
			SectionTitle:      metaString(r.Metadata, "section_title"),
			ChunkIndex:        int(metaInt64(r.Metadata, "chunk_index")),
			DocumentID:        metaString(r.Metadata, "document_id"),
			DocumentType:      metaString(r.Metadata, "document_type"),
			PolicyNumber:      metaString(r.Metadata, "policy_number"),
			CommunicationType: metaString(r.Metadata, "communication_type"),
		})
	}
	return retrieved, nil
}

// Delete removes chunks by id, batched, restricted to the tenant.
func (s *MilvusStore) Delete(ctx context.Context, tenantID string, chunkIDs []string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if len(chunkIDs) == 0 {
		return nil
	}

	for start := 0; start < len(chunkIDs); start += DeleteBatchSize {
		end := start + DeleteBatchSize
		if end > len(chunkIDs) {
			end = len(chunkIDs)
		}
		expr := fmt.Sprintf(`tenant_id == "%s" and %s in [%s]`,
			escapeExpr(tenantID), primaryKeyField, quoteList(chunkIDs[start:end]))
		if err := s.client.DeleteByFilter(ctx, s.collection, expr); err != nil {
			return fmt.Errorf("delete batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// DeleteDocument removes every chunk of one document within the tenant.
func (s *MilvusStore) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	expr := fmt.Sprintf(`tenant_id == "%s" and document_id == "%s"`,
		escapeExpr(tenantID), escapeExpr(documentID))
	return s.client.DeleteByFilter(ctx, s.collection, expr)
}

// Stats returns the number of indexed chunks across all tenants.
func (s *MilvusStore) Stats(ctx context.Context) (int64, error) {
	return s.client.GetCollectionStats(ctx, s.collection)
}

// Close closes the Milvus connection.
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// buildFilterExpr renders the tenant scope and optional document filters as a
// Milvus boolean expression. The tenant clause is always present.
func buildFilterExpr(tenantID string, filter *Filter) string {
	clauses := []string{fmt.Sprintf(`tenant_id == "%s"`, escapeExpr(tenantID))}
	if filter != nil {
		if filter.DocumentType != "" {
			clauses = append(clauses, fmt.Sprintf(`document_type == "%s"`, escapeExpr(string(filter.DocumentType))))
		}
		if filter.PolicyNumber != "" {
			clauses = append(clauses, fmt.Sprintf(`policy_number == "%s"`, escapeExpr(filter.PolicyNumber)))
		}
		if filter.CommunicationType != "" {
			clauses = append(clauses, fmt.Sprintf(`communication_type == "%s"`, escapeExpr(filter.CommunicationType)))
		}
	}
	return strings.Join(clauses, " and ")
}

func escapeExpr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func quoteList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = `"` + escapeExpr(id) + `"`
	}
	return strings.Join(quoted, ", ")
}

func metaString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func metaInt64(m map[string]any, key string) int64 {
	if v, ok := m[key].(int64); ok {
		return v
	}
	return 0
}
