// Package textutil provides text processing helpers for the QA pipeline.
package textutil

import (
	"crypto/md5"
	"encoding/hex"
	"math"
	"strings"
	"unicode/utf8"
)

// Tokenize splits text into whitespace-delimited tokens.
// The segmenter's window arithmetic and CountTokens both depend on this
// exact splitting, so they must never diverge.
func Tokenize(s string) []string {
	return strings.Fields(s)
}

// Detokenize is the inverse of Tokenize up to whitespace normalization:
// Detokenize(Tokenize(s)) equals s with runs of whitespace collapsed to
// single spaces and leading/trailing whitespace removed.
func Detokenize(tokens []string) string {
	return strings.Join(tokens, " ")
}

// CountTokens returns the number of whitespace-delimited tokens in s.
func CountTokens(s string) int {
	return len(strings.Fields(s))
}

// CosineSimilarity computes the cosine similarity of two vectors.
// The result is in [-1, 1]; mismatched or empty vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// HashString returns the hex MD5 digest of s.
func HashString(s string) string {
	hash := md5.Sum([]byte(s))
	return hex.EncodeToString(hash[:])
}

// TruncateString truncates s to at most maxLen Unicode characters.
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}
