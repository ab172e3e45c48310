package biz

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/coverport/policyqa/internal/model"
	"github.com/coverport/policyqa/internal/pkg/textutil"
)

// initialSectionTitle names body text that precedes the first detected header.
const initialSectionTitle = "Document Start"

// Structural header patterns. A line matching any one of them opens a new
// section. The constants are empirically tuned for insurance documents and
// exposed through SegmenterConfig where they vary.
var (
	structuralMarkerPattern = regexp.MustCompile(`(?i)^(SECTION|ARTICLE|PART)\s+\d+`)
	numberedHeadingPattern  = regexp.MustCompile(`^\d+\.\s+[A-Z]`)
	romanNumeralPattern     = regexp.MustCompile(`^[IVXLCDM]+\.\s+`)
	domainKeywordPattern    = regexp.MustCompile(`(?i)^(COVERAGE|EXCLUSION|CONDITION|DEFINITION|ENDORSEMENT)`)
)

// SegmenterConfig holds the segmentation geometry.
type SegmenterConfig struct {
	// ChunkSize is the window size in tokens.
	ChunkSize int
	// ChunkOverlap is the token overlap between consecutive windows.
	// Must be strictly smaller than ChunkSize so the window always advances.
	ChunkOverlap int
	// MaxHeaderLength caps the line length considered as a section header.
	MaxHeaderLength int
	// ExtraHeaderPatterns extends the built-in header patterns for document
	// families with additional heading conventions. Matching lines are still
	// subject to MaxHeaderLength.
	ExtraHeaderPatterns []*regexp.Regexp
}

// DefaultSegmenterConfig returns the tuned segmentation defaults.
func DefaultSegmenterConfig() *SegmenterConfig {
	return &SegmenterConfig{
		ChunkSize:       512,
		ChunkOverlap:    50,
		MaxHeaderLength: 100,
	}
}

// Segmenter converts per-page document text into an ordered sequence of
// token-bounded chunks, preferring section boundaries over fixed windows.
type Segmenter struct {
	config *SegmenterConfig
}

// NewSegmenter validates the configuration and returns a segmenter.
func NewSegmenter(config *SegmenterConfig) (*Segmenter, error) {
	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", config.ChunkOverlap, config.ChunkSize)
	}
	if config.MaxHeaderLength <= 0 {
		return nil, fmt.Errorf("max header length must be positive, got %d", config.MaxHeaderLength)
	}
	return &Segmenter{config: config}, nil
}

// section is an accumulated run of body lines under one detected header.
type section struct {
	title      string
	pageNumber int
	body       string
}

// Segment converts extracted pages into chunks. Two or more detected
// sections select section-based chunking; otherwise the whole document falls
// back to sliding windows. A document with no extractable text yields zero
// chunks, which callers treat as processed but unindexable.
func (s *Segmenter) Segment(pages []model.Page) []model.Chunk {
	sections := s.detectSections(pages)

	if len(sections) >= 2 {
		var chunks []model.Chunk
		for _, sec := range sections {
			chunks = append(chunks, s.SplitText(sec.body, sec.pageNumber, sec.title, len(chunks))...)
		}
		return chunks
	}

	// No strong structural cues: degrade to fixed windows over the whole
	// document rather than one brittle section.
	var parts []string
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		parts = append(parts, page.Text)
	}
	return s.SplitText(strings.Join(parts, "\n"), 0, "", 0)
}

// SplitText splits text into token windows of ChunkSize advancing by
// ChunkSize-ChunkOverlap, assigning contiguous chunk indices starting at
// startIndex. Text within one window is never split; the final partial
// window, however short, is still emitted.
func (s *Segmenter) SplitText(text string, pageNumber int, sectionTitle string, startIndex int) []model.Chunk {
	tokens := textutil.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	stride := s.config.ChunkSize - s.config.ChunkOverlap
	var chunks []model.Chunk
	for start := 0; start < len(tokens); start += stride {
		end := start + s.config.ChunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		chunks = append(chunks, model.Chunk{
			ChunkID:      uuid.NewString(),
			ChunkIndex:   startIndex + len(chunks),
			Text:         textutil.Detokenize(window),
			PageNumber:   pageNumber,
			SectionTitle: sectionTitle,
			TokenCount:   len(window),
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

// detectSections scans page text line by line, closing the current section
// when a header line is found. Empty pages contribute nothing. A section is
// tagged with the page on which it started.
func (s *Segmenter) detectSections(pages []model.Page) []section {
	var sections []section

	current := section{title: initialSectionTitle}
	var body []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if text != "" {
			current.body = text
			sections = append(sections, current)
		}
		body = body[:0]
	}

	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		if current.pageNumber == 0 {
			current.pageNumber = page.PageNumber
		}

		for _, line := range strings.Split(page.Text, "\n") {
			trimmed := strings.TrimSpace(line)
			if s.isSectionHeader(trimmed) {
				flush()
				current = section{title: trimmed, pageNumber: page.PageNumber}
				continue
			}
			body = append(body, line)
		}
	}
	flush()

	return sections
}

// isSectionHeader reports whether a line matches any structural header
// pattern. Lines longer than MaxHeaderLength are body text regardless.
func (s *Segmenter) isSectionHeader(line string) bool {
	if line == "" || len(line) > s.config.MaxHeaderLength {
		return false
	}

	if isUpperLine(line) && len(line) >= 5 {
		return true
	}
	if structuralMarkerPattern.MatchString(line) {
		return true
	}
	if numberedHeadingPattern.MatchString(line) {
		return true
	}
	if romanNumeralPattern.MatchString(line) {
		return true
	}
	if domainKeywordPattern.MatchString(line) {
		return true
	}
	for _, pattern := range s.config.ExtraHeaderPatterns {
		if pattern.MatchString(line) {
			return true
		}
	}
	return false
}

// isUpperLine reports whether a line contains at least one letter and no
// lowercase letters.
func isUpperLine(line string) bool {
	hasLetter := false
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}
