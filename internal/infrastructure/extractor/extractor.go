// Package extractor routes documents to a format-specific text extractor by
// MIME type.
package extractor

import (
	"context"
	"strings"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
	"github.com/MiscMich/villabot-sub004/internal/core/ports"
)

type Composite struct {
	byMIME   map[string]ports.TextExtractor
	fallback ports.TextExtractor
}

func NewComposite(fallback ports.TextExtractor) *Composite {
	return &Composite{
		byMIME:   make(map[string]ports.TextExtractor),
		fallback: fallback,
	}
}

func (c *Composite) Register(mimeType string, ext ports.TextExtractor) {
	c.byMIME[normalizeMIME(mimeType)] = ext
}

func (c *Composite) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	if ext, ok := c.byMIME[normalizeMIME(doc.MimeType)]; ok {
		return ext.Extract(ctx, doc)
	}
	return c.fallback.Extract(ctx, doc)
}

// normalizeMIME strips parameters like "; charset=utf-8".
func normalizeMIME(mimeType string) string {
	base, _, found := strings.Cut(mimeType, ";")
	if found {
		base = strings.TrimSpace(base)
	}
	return strings.ToLower(strings.TrimSpace(base))
}
