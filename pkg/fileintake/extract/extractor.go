// Package extract converts uploaded document bytes to plain text for search
// indexing and previews.
package extract

import (
	"context"
	"strings"

	"github.com/resumekit/fileintake/pkg/fileintake"
)

// Extractor implements fileintake.TextExtractor for the resume formats the
// intake pipeline accepts. Unsupported types yield empty text without error;
// extraction is best effort.
type Extractor struct{}

var _ fileintake.TextExtractor = (*Extractor)(nil)

// New creates a text extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns a text representation of src.
func (e *Extractor) Extract(ctx context.Context, src []byte, mimeType string) (string, error) {
	mime := strings.SplitN(mimeType, ";", 2)[0]
	mime = strings.TrimSpace(strings.ToLower(mime))

	switch {
	case strings.HasPrefix(mime, "text/"):
		return strings.TrimSpace(string(src)), nil
	case mime == "application/pdf":
		return extractPDF(src)
	case mime == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return extractDOCX(src)
	case mime == "application/rtf", mime == "text/rtf":
		return extractRTF(src), nil
	default:
		return "", nil
	}
}
