// Package model defines the shared value types of the question-answering pipeline.
package model

// DocumentType classifies an indexed document.
type DocumentType string

const (
	// DocumentTypePolicy is an insurance policy document.
	DocumentTypePolicy DocumentType = "policy"

	// DocumentTypeCommunication is a client communication record.
	DocumentTypeCommunication DocumentType = "communication"
)

// Page is one page of extracted document text.
type Page struct {
	PageNumber int
	Text       string
}

// Chunk is an immutable unit of retrievable text produced by the segmenter.
// ChunkIndex is zero-based and contiguous within the parent document.
// PageNumber is 0 when the source page is unknown. SectionTitle is empty for
// chunks produced by the sliding-window fallback.
type Chunk struct {
	ChunkID      string `json:"chunk_id"`
	ChunkIndex   int    `json:"chunk_index"`
	Text         string `json:"text"`
	PageNumber   int    `json:"page_number,omitempty"`
	SectionTitle string `json:"section_title,omitempty"`
	TokenCount   int    `json:"token_count"`
}

// ChunkRecord is the metadata record written to the vector index for one chunk.
// ChunkText is a truncated copy bounded by the index metadata limit; the full
// text lives with the document store.
type ChunkRecord struct {
	ChunkID           string
	Vector            []float32
	TenantID          string
	DocumentID        string
	DocumentType      DocumentType
	ChunkText         string
	PageNumber        int
	SectionTitle      string
	ChunkIndex        int
	PolicyNumber      string
	CommunicationType string
}

// RetrievedChunk is a query-scoped projection of an indexed chunk plus the
// provider's similarity score, carried verbatim. Never persisted.
type RetrievedChunk struct {
	ChunkID           string  `json:"chunk_id"`
	Text              string  `json:"text"`
	Score             float64 `json:"score"`
	PageNumber        int     `json:"page_number,omitempty"`
	SectionTitle      string  `json:"section_title,omitempty"`
	ChunkIndex        int     `json:"chunk_index"`
	DocumentID        string  `json:"document_id,omitempty"`
	DocumentType      string  `json:"document_type,omitempty"`
	PolicyNumber      string  `json:"policy_number,omitempty"`
	CommunicationType string  `json:"communication_type,omitempty"`
}

// Citation points an answer back at the excerpt that grounds it.
type Citation struct {
	Page    string  `json:"page"`
	Section string  `json:"section"`
	Excerpt string  `json:"excerpt"`
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// QueryResult is the orchestrator's output for one query.
type QueryResult struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
	QueryID    string     `json:"query_id"`
	LatencyMS  int64      `json:"latency_ms"`
	Cached     bool       `json:"cached,omitempty"`
}
