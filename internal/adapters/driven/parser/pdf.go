package parser

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
)

// DefaultPDFBinary is the poppler text extraction tool.
const DefaultPDFBinary = "pdftotext"

// PDFParser extracts text from PDFs by shelling out to pdftotext.
// Pages arrive separated by form feeds; each page becomes one block
// with its 1-based page number.
type PDFParser struct {
	binary string
}

// PDFOption configures the PDF parser.
type PDFOption func(*PDFParser)

// WithBinary overrides the pdftotext binary path.
func WithBinary(path string) PDFOption {
	return func(p *PDFParser) {
		if path != "" {
			p.binary = path
		}
	}
}

// NewPDFParser creates a pdftotext-backed PDF parser.
func NewPDFParser(opts ...PDFOption) *PDFParser {
	p := &PDFParser{binary: DefaultPDFBinary}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extract returns one text block per non-empty page.
func (p *PDFParser) Extract(ctx context.Context, path string) ([]domain.TextBlock, error) {
	if _, err := exec.LookPath(p.binary); err != nil {
		return nil, fmt.Errorf("%s not found in PATH: %w", p.binary, err)
	}

	// "-" writes to stdout. -layout keeps column order readable.
	cmd := exec.CommandContext(ctx, p.binary, "-layout", "-enc", "UTF-8", path, "-")
	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("extract %s: %s", path, msg)
	}

	blocks := []domain.TextBlock{}
	for i, page := range strings.Split(string(out), "\f") {
		text := strings.TrimSpace(page)
		if text == "" {
			continue
		}
		blocks = append(blocks, domain.TextBlock{
			Text: text,
			Page: i + 1,
		})
	}
	return blocks, nil
}
