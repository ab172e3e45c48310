package biz_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverport/policyqa/internal/model"
	"github.com/coverport/policyqa/internal/policyqa/biz"
	"github.com/coverport/policyqa/internal/pkg/textutil"
)

func newTestSegmenter(t *testing.T, chunkSize, overlap int) *biz.Segmenter {
	t.Helper()
	s, err := biz.NewSegmenter(&biz.SegmenterConfig{
		ChunkSize:       chunkSize,
		ChunkOverlap:    overlap,
		MaxHeaderLength: 100,
	})
	require.NoError(t, err)
	return s
}

func TestNewSegmenterRejectsInvalidConfig(t *testing.T) {
	_, err := biz.NewSegmenter(&biz.SegmenterConfig{ChunkSize: 100, ChunkOverlap: 100, MaxHeaderLength: 100})
	assert.Error(t, err, "overlap equal to chunk size must be rejected")

	_, err = biz.NewSegmenter(&biz.SegmenterConfig{ChunkSize: 100, ChunkOverlap: 150, MaxHeaderLength: 100})
	assert.Error(t, err, "overlap larger than chunk size must be rejected")

	_, err = biz.NewSegmenter(&biz.SegmenterConfig{ChunkSize: 0, ChunkOverlap: 0, MaxHeaderLength: 100})
	assert.Error(t, err)
}

func TestSplitTextSingleChunk(t *testing.T) {
	s := newTestSegmenter(t, 512, 50)

	text := "Water damage is covered up to the stated limit."
	chunks := s.SplitText(text, 3, "COVERAGE LIMITS", 0)

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 3, chunks[0].PageNumber)
	assert.Equal(t, "COVERAGE LIMITS", chunks[0].SectionTitle)
	assert.Equal(t, textutil.CountTokens(text), chunks[0].TokenCount)
	assert.NotEmpty(t, chunks[0].ChunkID)
}

func TestSplitTextWindowing(t *testing.T) {
	s := newTestSegmenter(t, 10, 2)

	words := make([]string, 35)
	for i := range words {
		words[i] = "w" + strings.Repeat("x", i%3)
	}
	text := strings.Join(words, " ")

	chunks := s.SplitText(text, 1, "", 7)
	require.NotEmpty(t, chunks)

	// Indices are contiguous from the start index.
	for i, c := range chunks {
		assert.Equal(t, 7+i, c.ChunkIndex)
		assert.LessOrEqual(t, c.TokenCount, 10)
	}

	// Windows advance by size-overlap; removing the overlap from every
	// window after the first reconstructs the full token sequence.
	var rebuilt []string
	for i, c := range chunks {
		tokens := textutil.Tokenize(c.Text)
		if i == 0 {
			rebuilt = append(rebuilt, tokens...)
		} else {
			rebuilt = append(rebuilt, tokens[2:]...)
		}
	}
	assert.Equal(t, words, rebuilt)
}

func TestSplitTextEmitsFinalPartialWindow(t *testing.T) {
	s := newTestSegmenter(t, 10, 2)

	// 12 tokens: one full window plus a short tail.
	text := "a b c d e f g h i j k l"
	chunks := s.SplitText(text, 0, "", 0)

	require.Len(t, chunks, 2)
	assert.Equal(t, 10, chunks[0].TokenCount)
	assert.Equal(t, 4, chunks[1].TokenCount)
}

func TestSplitTextEmptyInput(t *testing.T) {
	s := newTestSegmenter(t, 10, 2)
	assert.Empty(t, s.SplitText("", 0, "", 0))
	assert.Empty(t, s.SplitText("   \n\t  ", 0, "", 0))
}

func TestSegmentDetectsTwoSections(t *testing.T) {
	s := newTestSegmenter(t, 512, 50)

	pages := []model.Page{
		{PageNumber: 1, Text: "COVERAGE LIMITS\nWater damage is covered up to fifty thousand dollars.\nEXCLUSIONS\nFlood damage is not covered under this policy."},
	}

	chunks := s.Segment(pages)
	require.Len(t, chunks, 2)
	assert.Equal(t, "COVERAGE LIMITS", chunks[0].SectionTitle)
	assert.Equal(t, "EXCLUSIONS", chunks[1].SectionTitle)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
}

func TestSegmentHeaderPatterns(t *testing.T) {
	s := newTestSegmenter(t, 512, 50)

	pages := []model.Page{
		{PageNumber: 1, Text: "SECTION 1 General Provisions\nThe policy takes effect on the issue date.\nARTICLE 2 Premiums\nPremiums are due monthly.\n3. Cancellation\nEither party may cancel with notice.\nIV. Definitions\nTerms used in this policy are defined here."},
	}

	chunks := s.Segment(pages)
	require.Len(t, chunks, 4)
	assert.Equal(t, "SECTION 1 General Provisions", chunks[0].SectionTitle)
	assert.Equal(t, "ARTICLE 2 Premiums", chunks[1].SectionTitle)
	assert.Equal(t, "3. Cancellation", chunks[2].SectionTitle)
	assert.Equal(t, "IV. Definitions", chunks[3].SectionTitle)
}

func TestSegmentExtraHeaderPatterns(t *testing.T) {
	text := "Schedule of Benefits\nHospital stays are covered in full.\nSchedule of Premiums\nPremiums increase at each renewal."
	pages := []model.Page{{PageNumber: 1, Text: text}}

	// Without the extra pattern these lines are plain body text.
	chunks := newTestSegmenter(t, 512, 50).Segment(pages)
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].SectionTitle)

	s, err := biz.NewSegmenter(&biz.SegmenterConfig{
		ChunkSize:           512,
		ChunkOverlap:        50,
		MaxHeaderLength:     100,
		ExtraHeaderPatterns: []*regexp.Regexp{regexp.MustCompile(`^Schedule of `)},
	})
	require.NoError(t, err)

	chunks = s.Segment(pages)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Schedule of Benefits", chunks[0].SectionTitle)
	assert.Equal(t, "Schedule of Premiums", chunks[1].SectionTitle)
}

func TestSegmentFallsBackToWindowing(t *testing.T) {
	s := newTestSegmenter(t, 512, 50)

	// One detected section at most: windowing over the whole document, no
	// section titles.
	pages := []model.Page{
		{PageNumber: 1, Text: "the policy covers water damage in most ordinary circumstances"},
		{PageNumber: 2, Text: "claims must be filed within thirty days of the loss"},
	}

	chunks := s.Segment(pages)
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].SectionTitle)
	assert.Zero(t, chunks[0].PageNumber)
}

func TestSegmentSkipsEmptyPages(t *testing.T) {
	s := newTestSegmenter(t, 512, 50)

	pages := []model.Page{
		{PageNumber: 1, Text: "   "},
		{PageNumber: 2, Text: "COVERAGE LIMITS\nWater damage is covered.\nEXCLUSIONS\nFlood damage is excluded."},
		{PageNumber: 3, Text: ""},
	}

	chunks := s.Segment(pages)
	require.Len(t, chunks, 2)
	assert.Equal(t, 2, chunks[0].PageNumber)
}

func TestSegmentEmptyDocument(t *testing.T) {
	s := newTestSegmenter(t, 512, 50)

	chunks := s.Segment([]model.Page{{PageNumber: 1, Text: ""}})
	assert.Empty(t, chunks, "a document with no text is processed but unindexable")

	chunks = s.Segment(nil)
	assert.Empty(t, chunks)
}

func TestSegmentOversizedSectionInheritsTitle(t *testing.T) {
	s := newTestSegmenter(t, 10, 2)

	long := strings.Repeat("coverage applies to the insured property ", 10)
	pages := []model.Page{
		{PageNumber: 1, Text: "COVERAGE LIMITS\n" + long + "\nEXCLUSIONS\nFlood damage is excluded."},
	}

	chunks := s.Segment(pages)
	require.Greater(t, len(chunks), 2)

	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex, "indices stay contiguous across sections")
		if i < len(chunks)-1 {
			assert.Equal(t, "COVERAGE LIMITS", c.SectionTitle)
		} else {
			assert.Equal(t, "EXCLUSIONS", c.SectionTitle)
		}
	}
}

func TestLongLineIsNotAHeader(t *testing.T) {
	s := newTestSegmenter(t, 512, 50)

	longCaps := strings.Repeat("COVERAGE ", 20)
	pages := []model.Page{
		{PageNumber: 1, Text: longCaps + "\nBody text follows the shouting line."},
	}

	chunks := s.Segment(pages)
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].SectionTitle, "over-length lines fall back to body text")
}
