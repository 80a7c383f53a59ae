// Package parser extracts text blocks from corpus files. PDF text is
// pulled through the pdftotext binary; plain text and Markdown are read
// directly, with Markdown headings mapped to section labels.
package parser

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driven"
)

// Ensure Parser implements the interface.
var _ driven.Parser = (*Parser)(nil)

// Parser dispatches extraction by file extension.
type Parser struct {
	pdf *PDFParser
}

// New creates a parser with the default PDF backend.
func New() *Parser {
	return &Parser{pdf: NewPDFParser()}
}

// Extract returns the text blocks of the file at path in reading order.
func (p *Parser) Extract(ctx context.Context, path string) ([]domain.TextBlock, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return p.pdf.Extract(ctx, path)
	case ".txt", ".md":
		return extractText(path)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidInput, filepath.Ext(path))
	}
}

// extractText reads a plain text or Markdown file. Markdown headings
// start a new block and label it as the section; text before the first
// heading has no section.
func extractText(path string) ([]domain.TextBlock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var (
		blocks  []domain.TextBlock
		section string
		buf     strings.Builder
	)
	flush := func() {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text != "" {
			blocks = append(blocks, domain.TextBlock{Text: text, Section: section})
		}
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if heading, ok := parseHeading(line); ok {
			flush()
			section = heading
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	flush()

	if blocks == nil {
		blocks = []domain.TextBlock{}
	}
	return blocks, nil
}

// parseHeading reports whether a line is a Markdown ATX heading and
// returns its title.
func parseHeading(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	title := strings.TrimLeft(trimmed, "#")
	if title == trimmed || (title != "" && !strings.HasPrefix(title, " ")) {
		return "", false
	}
	return strings.TrimSpace(title), true
}
