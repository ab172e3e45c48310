package biz

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kart-io/logger"

	"github.com/coverport/policyqa/internal/model"
	"github.com/coverport/policyqa/internal/policyqa/metrics"
	"github.com/coverport/policyqa/internal/policyqa/store"
	"github.com/coverport/policyqa/internal/pkg/textutil"
	"github.com/coverport/policyqa/pkg/llm"
	"github.com/coverport/policyqa/pkg/llm/resilience"
)

// citationExcerptLen bounds the preview text carried by each citation.
const citationExcerptLen = 300

// minQuestionLength rejects questions too short to embed meaningfully.
const minQuestionLength = 3

// OrchestratorConfig tunes retrieval depth, confidence weighting, and the
// generation call.
type OrchestratorConfig struct {
	// TopKRetrieval is the number of candidates fetched from the index.
	TopKRetrieval int
	// TopKRerank is the number of candidates retained for context.
	TopKRerank int
	// ConfidenceTopWeight weights the best retrieval score.
	ConfidenceTopWeight float64
	// ConfidenceMeanWeight weights the mean of the selected scores.
	ConfidenceMeanWeight float64
	// MaxAnswerTokens bounds the generated answer.
	MaxAnswerTokens int
	// Temperature for the generation call.
	Temperature float64
}

// DefaultOrchestratorConfig returns the tuned defaults.
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		TopKRetrieval:        10,
		TopKRerank:           5,
		ConfidenceTopWeight:  0.6,
		ConfidenceMeanWeight: 0.4,
		MaxAnswerTokens:      1024,
		Temperature:          0.1,
	}
}

// Orchestrator runs one question through the pipeline: embed, retrieve,
// select, build context, generate, score. It is stateless across queries;
// all state is local to one invocation. The caller supplies an
// already-resolved scope which is never widened here.
type Orchestrator struct {
	store         store.VectorStore
	embedProvider llm.EmbeddingProvider
	chatProvider  llm.ChatProvider
	config        *OrchestratorConfig
	retrieveRetry *resilience.RetryConfig
	metrics       *metrics.QAMetrics
}

// NewOrchestrator creates an orchestrator. Providers are expected to carry
// their own retry wrapping; the vector search is retried here.
func NewOrchestrator(vectorStore store.VectorStore, embedProvider llm.EmbeddingProvider, chatProvider llm.ChatProvider, config *OrchestratorConfig) *Orchestrator {
	if config == nil {
		config = DefaultOrchestratorConfig()
	}
	return &Orchestrator{
		store:         vectorStore,
		embedProvider: embedProvider,
		chatProvider:  chatProvider,
		config:        config,
		retrieveRetry: resilience.DefaultRetryConfig(),
		metrics:       metrics.GetQAMetrics(),
	}
}

// Answer runs the full pipeline for one question within the given tenant and
// scope. Embedding and retrieval failures propagate as hard errors after the
// retry budget; generation failures degrade to a fixed placeholder answer.
func (o *Orchestrator) Answer(ctx context.Context, question, tenantID string, scope *store.Filter) (*model.QueryResult, error) {
	start := time.Now()
	queryID := uuid.NewString()

	question = strings.TrimSpace(question)
	if len(question) < minQuestionLength {
		return nil, fmt.Errorf("question is empty or too short")
	}
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	vector, err := o.embedProvider.EmbedSingle(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	retrievalStart := time.Now()
	var retrieved []*model.RetrievedChunk
	err = resilience.RetryWithBackoff(ctx, "retrieve", o.retrieveRetry, func() error {
		var searchErr error
		retrieved, searchErr = o.store.Search(ctx, vector, tenantID, o.config.TopKRetrieval, scope)
		return searchErr
	})
	o.metrics.RecordRetrieval(time.Since(retrievalStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve candidates: %w", err)
	}

	if len(retrieved) == 0 {
		// Anti-hallucination guard: the model is never invoked without
		// grounding material.
		logger.Infow("No candidates retrieved",
			"query_id", queryID,
			"tenant_id", tenantID,
		)
		o.metrics.RecordNoMatch()
		return &model.QueryResult{
			Answer:     NoMatchAnswer,
			Citations:  []model.Citation{},
			Confidence: 0.0,
			QueryID:    queryID,
			LatencyMS:  time.Since(start).Milliseconds(),
		}, nil
	}

	selected := o.selectTopK(retrieved)
	answer := o.generate(ctx, queryID, question, scope, selected)

	result := &model.QueryResult{
		Answer:     answer,
		Citations:  buildCitations(selected),
		Confidence: o.confidence(selected),
		QueryID:    queryID,
		LatencyMS:  time.Since(start).Milliseconds(),
	}

	logger.Infow("Query answered",
		"query_id", queryID,
		"tenant_id", tenantID,
		"candidates", len(retrieved),
		"selected", len(selected),
		"confidence", result.Confidence,
		"latency_ms", result.LatencyMS,
	)
	return result, nil
}

// selectTopK sorts candidates by score descending and keeps the configured
// number. The sort is stable: the index's own ranking breaks ties.
func (o *Orchestrator) selectTopK(retrieved []*model.RetrievedChunk) []*model.RetrievedChunk {
	selected := make([]*model.RetrievedChunk, len(retrieved))
	copy(selected, retrieved)
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Score > selected[j].Score
	})
	if len(selected) > o.config.TopKRerank {
		selected = selected[:o.config.TopKRerank]
	}
	return selected
}

// generate invokes the generation provider with the grounded prompt.
// An unrecoverable failure is downgraded to the fixed degraded answer so a
// single failing sub-step does not fail the whole request.
func (o *Orchestrator) generate(ctx context.Context, queryID, question string, scope *store.Filter, selected []*model.RetrievedChunk) string {
	systemPrompt := policySystemPrompt
	if scope != nil && scope.DocumentType == model.DocumentTypeCommunication {
		systemPrompt = communicationsSystemPrompt
	}
	userPrompt := buildUserPrompt(BuildContext(selected), question)

	generationStart := time.Now()
	answer, err := o.chatProvider.Generate(ctx, systemPrompt, userPrompt, &llm.GenerateOptions{
		MaxTokens:   o.config.MaxAnswerTokens,
		Temperature: o.config.Temperature,
	})
	o.metrics.RecordGeneration(time.Since(generationStart), err != nil)
	if err != nil {
		logger.Errorw("Generation failed, returning degraded answer",
			"query_id", queryID,
			"error", err.Error(),
		)
		return DegradedAnswer
	}
	return answer
}

// confidence blends the best score with the mean of the selected scores.
// It reflects how relevant the evidence was, never the generated text.
func (o *Orchestrator) confidence(selected []*model.RetrievedChunk) float64 {
	if len(selected) == 0 {
		return 0.0
	}
	var sum float64
	for _, c := range selected {
		sum += c.Score
	}
	mean := sum / float64(len(selected))
	return round4(o.config.ConfidenceTopWeight*selected[0].Score + o.config.ConfidenceMeanWeight*mean)
}

func buildCitations(selected []*model.RetrievedChunk) []model.Citation {
	citations := make([]model.Citation, 0, len(selected))
	for _, c := range selected {
		page := "Page unknown"
		if c.PageNumber > 0 {
			page = fmt.Sprintf("Page %d", c.PageNumber)
		}
		section := c.SectionTitle
		if section == "" {
			section = "General"
		}
		citations = append(citations, model.Citation{
			Page:    page,
			Section: section,
			Excerpt: textutil.TruncateString(c.Text, citationExcerptLen),
			ChunkID: c.ChunkID,
			Score:   round4(c.Score),
		})
	}
	return citations
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
