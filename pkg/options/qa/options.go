// Package qa provides question-answering pipeline configuration options.
package qa

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/coverport/policyqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains the tuning knobs of the question-answering pipeline:
// segmentation geometry, retrieval depth, and confidence weighting.
type Options struct {
	// ChunkSize is the token window size for document segmentation.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the token overlap between consecutive windows.
	// Must be strictly smaller than ChunkSize.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// MaxHeaderLength caps the line length considered as a section header.
	MaxHeaderLength int `json:"max-header-length" mapstructure:"max-header-length"`

	// TopKRetrieval is the number of candidates pulled from the vector store.
	TopKRetrieval int `json:"top-k-retrieval" mapstructure:"top-k-retrieval"`

	// TopKRerank is the number of candidates kept for answer generation.
	TopKRerank int `json:"top-k-rerank" mapstructure:"top-k-rerank"`

	// ConfidenceTopWeight weights the best retrieval score.
	ConfidenceTopWeight float64 `json:"confidence-top-weight" mapstructure:"confidence-top-weight"`

	// ConfidenceMeanWeight weights the mean of the selected scores.
	ConfidenceMeanWeight float64 `json:"confidence-mean-weight" mapstructure:"confidence-mean-weight"`

	// Collection is the vector store collection name.
	Collection string `json:"collection" mapstructure:"collection"`

	// EmbeddingDim is the dimension of embedding vectors.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// Store selects the vector store backend (milvus|memory).
	Store string `json:"store" mapstructure:"store"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		ChunkSize:            512,
		ChunkOverlap:         50,
		MaxHeaderLength:      100,
		TopKRetrieval:        10,
		TopKRerank:           5,
		ConfidenceTopWeight:  0.6,
		ConfidenceMeanWeight: 0.4,
		Collection:           "policy_chunks",
		EmbeddingDim:         1536, // text-embedding-3-small dimension
		Store:                "milvus",
	}
}

// AddFlags adds flags for QA options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.ChunkSize, options.Join(prefixes...)+"qa.chunk-size", o.ChunkSize, "Token window size for document segmentation.")
	fs.IntVar(&o.ChunkOverlap, options.Join(prefixes...)+"qa.chunk-overlap", o.ChunkOverlap, "Token overlap between consecutive windows.")
	fs.IntVar(&o.MaxHeaderLength, options.Join(prefixes...)+"qa.max-header-length", o.MaxHeaderLength, "Maximum line length considered as a section header.")
	fs.IntVar(&o.TopKRetrieval, options.Join(prefixes...)+"qa.top-k-retrieval", o.TopKRetrieval, "Number of candidates pulled from the vector store.")
	fs.IntVar(&o.TopKRerank, options.Join(prefixes...)+"qa.top-k-rerank", o.TopKRerank, "Number of candidates kept for answer generation.")
	fs.Float64Var(&o.ConfidenceTopWeight, options.Join(prefixes...)+"qa.confidence-top-weight", o.ConfidenceTopWeight, "Weight of the best retrieval score in the confidence blend.")
	fs.Float64Var(&o.ConfidenceMeanWeight, options.Join(prefixes...)+"qa.confidence-mean-weight", o.ConfidenceMeanWeight, "Weight of the mean retrieval score in the confidence blend.")
	fs.StringVar(&o.Collection, options.Join(prefixes...)+"qa.collection", o.Collection, "Vector store collection name.")
	fs.IntVar(&o.EmbeddingDim, options.Join(prefixes...)+"qa.embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.StringVar(&o.Store, options.Join(prefixes...)+"qa.store", o.Store, "Vector store backend (milvus|memory).")
}

// Validate validates the QA options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("chunk-overlap must be non-negative"))
	}
	if o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk-overlap (%d) must be smaller than chunk-size (%d)", o.ChunkOverlap, o.ChunkSize))
	}
	if o.MaxHeaderLength <= 0 {
		errs = append(errs, fmt.Errorf("max-header-length must be positive"))
	}
	if o.TopKRetrieval <= 0 {
		errs = append(errs, fmt.Errorf("top-k-retrieval must be positive"))
	}
	if o.TopKRerank <= 0 {
		errs = append(errs, fmt.Errorf("top-k-rerank must be positive"))
	}
	if o.TopKRerank > o.TopKRetrieval {
		errs = append(errs, fmt.Errorf("top-k-rerank (%d) must not exceed top-k-retrieval (%d)", o.TopKRerank, o.TopKRetrieval))
	}
	if o.ConfidenceTopWeight < 0 || o.ConfidenceMeanWeight < 0 {
		errs = append(errs, fmt.Errorf("confidence weights must be non-negative"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("embedding-dim must be positive"))
	}
	if o.Store != "milvus" && o.Store != "memory" {
		errs = append(errs, fmt.Errorf("store must be one of: milvus, memory"))
	}
	return errs
}

// Complete completes the QA options with defaults.
func (o *Options) Complete() error {
	if o.Collection == "" {
		o.Collection = "policy_chunks"
	}
	return nil
}
