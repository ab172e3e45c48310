package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverport/policyqa/internal/model"
)

func policyRecord(chunkID, tenantID, policyNumber string, vector []float32) *model.ChunkRecord {
	return &model.ChunkRecord{
		ChunkID:      chunkID,
		Vector:       vector,
		TenantID:     tenantID,
		DocumentID:   "doc-" + chunkID,
		DocumentType: model.DocumentTypePolicy,
		ChunkText:    "Coverage applies to water damage up to the stated limit.",
		PageNumber:   3,
		SectionTitle: "COVERAGE LIMITS",
		ChunkIndex:   0,
		PolicyNumber: policyNumber,
	}
}

func TestMemoryStoreTenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("chunks")

	// Same policy number in two tenants. A search scoped to tenant-a must
	// never see tenant-b's chunks.
	err := s.Upsert(ctx, []*model.ChunkRecord{
		policyRecord("a-1", "tenant-a", "POL-100", []float32{1, 0, 0}),
		policyRecord("b-1", "tenant-b", "POL-100", []float32{1, 0, 0}),
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{1, 0, 0}, "tenant-a", 10, PolicyFilter("POL-100"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a-1", results[0].ChunkID)
}

func TestMemoryStorePolicyIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("chunks")

	rec := policyRecord("c-1", "tenant-a", "POL-200", []float32{0, 1, 0})
	comm := &model.ChunkRecord{
		ChunkID:           "c-2",
		Vector:            []float32{0, 1, 0},
		TenantID:          "tenant-a",
		DocumentID:        "doc-c-2",
		DocumentType:      model.DocumentTypeCommunication,
		ChunkText:         "Called the client about the renewal.",
		ChunkIndex:        0,
		CommunicationType: "phone_call",
	}
	require.NoError(t, s.Upsert(ctx, []*model.ChunkRecord{rec, comm}))

	// Policy search for a different policy number returns nothing.
	results, err := s.Search(ctx, []float32{0, 1, 0}, "tenant-a", 10, PolicyFilter("POL-999"))
	require.NoError(t, err)
	assert.Empty(t, results)

	// Policy search never returns communication documents.
	results, err = s.Search(ctx, []float32{0, 1, 0}, "tenant-a", 10, PolicyFilter("POL-200"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c-1", results[0].ChunkID)

	// Communication search never returns policy documents.
	results, err = s.Search(ctx, []float32{0, 1, 0}, "tenant-a", 10, CommunicationFilter(""))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c-2", results[0].ChunkID)

	// Communication type filter applies when set.
	results, err = s.Search(ctx, []float32{0, 1, 0}, "tenant-a", 10, CommunicationFilter("email"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStoreDeleteSemantics(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("chunks")

	require.NoError(t, s.Upsert(ctx, []*model.ChunkRecord{
		policyRecord("d-1", "tenant-a", "POL-300", []float32{1, 0, 0}),
		policyRecord("d-2", "tenant-a", "POL-300", []float32{0, 1, 0}),
	}))

	// Empty id list is a no-op.
	require.NoError(t, s.Delete(ctx, "tenant-a", nil))

	require.NoError(t, s.Delete(ctx, "tenant-a", []string{"d-1"}))

	count, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStoreDeleteDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("chunks")

	recA := policyRecord("e-1", "tenant-a", "POL-400", []float32{1, 0, 0})
	recB := policyRecord("e-2", "tenant-a", "POL-400", []float32{0, 1, 0})
	recB.DocumentID = recA.DocumentID
	other := policyRecord("e-3", "tenant-a", "POL-400", []float32{0, 0, 1})
	require.NoError(t, s.Upsert(ctx, []*model.ChunkRecord{recA, recB, other}))

	require.NoError(t, s.DeleteDocument(ctx, "tenant-a", recA.DocumentID))

	count, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStoreSearchEmptyTenant(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("chunks")

	results, err := s.Search(ctx, []float32{1, 0, 0}, "tenant-empty", 10, PolicyFilter("POL-1"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpsertRejectsMissingTenant(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("chunks")

	rec := policyRecord("f-1", "", "POL-500", []float32{1, 0, 0})
	err := s.Upsert(ctx, []*model.ChunkRecord{rec})
	assert.Error(t, err)
}

func TestUpsertTruncatesMetadataText(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("chunks")

	rec := policyRecord("g-1", "tenant-a", "POL-600", []float32{1, 0, 0})
	long := make([]byte, 0, 3000)
	for i := 0; i < 3000; i++ {
		long = append(long, 'x')
	}
	rec.ChunkText = string(long)
	require.NoError(t, s.Upsert(ctx, []*model.ChunkRecord{rec}))

	results, err := s.Search(ctx, []float32{1, 0, 0}, "tenant-a", 1, PolicyFilter("POL-600"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Text, MaxMetadataTextLen)
}

func TestBuildFilterExpr(t *testing.T) {
	tests := []struct {
		name     string
		tenantID string
		filter   *Filter
		want     string
	}{
		{
			name:     "tenant only",
			tenantID: "t1",
			want:     `tenant_id == "t1"`,
		},
		{
			name:     "policy scope",
			tenantID: "t1",
			filter:   PolicyFilter("POL-1"),
			want:     `tenant_id == "t1" and document_type == "policy" and policy_number == "POL-1"`,
		},
		{
			name:     "communication scope without type",
			tenantID: "t1",
			filter:   CommunicationFilter(""),
			want:     `tenant_id == "t1" and document_type == "communication"`,
		},
		{
			name:     "communication scope with type",
			tenantID: "t1",
			filter:   CommunicationFilter("email"),
			want:     `tenant_id == "t1" and document_type == "communication" and communication_type == "email"`,
		},
		{
			name:     "quotes are escaped",
			tenantID: `t"1`,
			want:     `tenant_id == "t\"1"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildFilterExpr(tt.tenantID, tt.filter))
		})
	}
}
