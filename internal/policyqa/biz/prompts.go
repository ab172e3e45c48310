package biz

import (
	"fmt"
	"strings"

	"github.com/coverport/policyqa/internal/model"
)

// Fixed user-facing answers. The no-match answer is returned without ever
// invoking the generation provider; the degraded answer replaces a
// generation failure after retries.
const (
	// NoMatchAnswer is returned when retrieval yields zero candidates.
	NoMatchAnswer = "I cannot find information related to your question in the available documents."

	// DegradedAnswer is returned when the generation provider fails after
	// exhausting retries.
	DegradedAnswer = "I encountered an error while processing your question. Please try again."
)

// policySystemPrompt grounds answers about policy documents. The model must
// answer only from the supplied excerpts and emit the exact fallback
// sentence when the excerpts do not contain the answer.
const policySystemPrompt = `You are an insurance policy assistant. You answer questions about a specific insurance policy using only the policy excerpts provided.

STRICT RULES:
1. Answer ONLY from the provided excerpts. Never use outside knowledge about insurance.
2. Cite every factual claim with the page and section of the supporting excerpt, e.g. (Page 3, Section: EXCLUSIONS).
3. If the excerpts do not contain the answer, reply with exactly: "I cannot find this information in the policy document."
4. Never fabricate coverage amounts, dates, or conditions.
5. Prefer plain language over policy jargon; explain terms when you must use them.`

// communicationsSystemPrompt grounds answers about client communication
// records for agency staff.
const communicationsSystemPrompt = `You are an insurance agency assistant. You answer questions about client communication records using only the excerpts provided.

STRICT RULES:
1. Answer ONLY from the provided excerpts. Never use outside knowledge.
2. Cite every factual claim with the page and section of the supporting excerpt, e.g. (Page 1, Section: General).
3. If the excerpts do not contain the answer, reply with exactly: "I cannot find this information in the agency records."
4. Never fabricate names, dates, or the content of communications.
5. Prefer plain language.`

const excerptDelimiter = "\n---\n"

// BuildContext renders retrieved chunks as a numbered excerpt list in
// score-descending order. Order matters: it signals relative importance to
// the generation step. Missing page and section metadata default to
// "Page unknown" and "General".
func BuildContext(chunks []*model.RetrievedChunk) string {
	excerpts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		page := "Page unknown"
		if c.PageNumber > 0 {
			page = fmt.Sprintf("Page %d", c.PageNumber)
		}
		section := c.SectionTitle
		if section == "" {
			section = "General"
		}
		excerpts = append(excerpts, fmt.Sprintf("[Excerpt %d] [%s, Section: %s]\n%s\n", i+1, page, section, c.Text))
	}
	return strings.Join(excerpts, excerptDelimiter)
}

// buildUserPrompt combines the rendered context with the question.
func buildUserPrompt(context, question string) string {
	return fmt.Sprintf("Document excerpts:\n\n%s\n\nQuestion: %s", context, question)
}
