// Package extract turns raw document bytes into per-page text.
// The segmenter consumes its output and never touches binary formats itself.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/coverport/policyqa/internal/model"
)

// Pages extracts per-page text from raw document bytes.
// PDF bytes are parsed page by page; anything else is treated as plain text
// on a single page. Pages that fail to parse are skipped rather than failing
// the whole document.
func Pages(data []byte, contentType string) ([]model.Page, error) {
	if isPDF(data, contentType) {
		return pdfPages(data)
	}
	return textPages(data), nil
}

func isPDF(data []byte, contentType string) bool {
	if strings.Contains(contentType, "pdf") {
		return true
	}
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

func pdfPages(data []byte) ([]model.Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf: %w", err)
	}

	pageCount := reader.NumPage()
	pages := make([]model.Page, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages the extractor cannot handle.
			continue
		}

		pages = append(pages, model.Page{
			PageNumber: i,
			Text:       strings.TrimSpace(text),
		})
	}
	return pages, nil
}

func textPages(data []byte) []model.Page {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return []model.Page{}
	}
	return []model.Page{{PageNumber: 1, Text: text}}
}
