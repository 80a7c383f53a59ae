// Package chunker splits extracted document text into bounded,
// overlapping chunks with provenance. It is a pure function of its
// input and configuration: no I/O, no side effects.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
)

// Default chunking parameters.
const (
	DefaultMaxTokens     = 512
	DefaultOverlapTokens = 50
)

// sentence is an internal unit: a sentence with its provenance and
// rune offset into the document's full extracted text.
type sentence struct {
	text    string
	start   int // rune offset
	end     int // rune offset, exclusive
	page    int
	section string
	tokens  int
	runes   int
	words   int
}

// newSentence fills in the derived counts for a sentence.
func newSentence(text string, start int, page int, section string) sentence {
	runes := utf8.RuneCountInString(text)
	words := len(strings.Fields(text))
	return sentence{
		text:    text,
		start:   start,
		end:     start + runes,
		page:    page,
		section: section,
		tokens:  spanTokens(runes, words),
		runes:   runes,
		words:   words,
	}
}

// Chunker splits text blocks into token-bounded chunks.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMaxTokens sets the per-chunk token cap.
func WithMaxTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithOverlapTokens sets the overlap carried between consecutive chunks.
func WithOverlapTokens(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlapTokens = n
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxTokens:     DefaultMaxTokens,
		overlapTokens: DefaultOverlapTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlapTokens >= c.maxTokens {
		c.overlapTokens = c.maxTokens / 4
	}
	return c
}

// Chunk splits the ordered text blocks of a document into chunks.
// Sentences are never split when a clean boundary exists; a sentence
// longer than the token cap falls back to a word-boundary cut, then a
// hard cut. A document with no extractable text yields zero chunks.
func (c *Chunker) Chunk(docID string, blocks []domain.TextBlock) []domain.Chunk {
	sentences := c.collectSentences(blocks)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []domain.Chunk
	var current []sentence
	ordinal := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, c.buildChunk(docID, ordinal, current))
		ordinal++

		// Carry trailing sentences as overlap into the next chunk.
		var carried []sentence
		carriedTokens := 0
		for i := len(current) - 1; i >= 0; i-- {
			if carriedTokens+current[i].tokens > c.overlapTokens {
				break
			}
			carriedTokens += current[i].tokens
			carried = append([]sentence{current[i]}, carried...)
		}
		current = carried
	}

	for _, s := range sentences {
		if len(current) > 0 && chunkTokens(current, s) > c.maxTokens {
			flush()
			// The carried overlap yields to the incoming sentence: drop
			// carried sentences oldest-first until the cap holds again.
			for len(current) > 0 && chunkTokens(current, s) > c.maxTokens {
				current = current[1:]
			}
		}
		current = append(current, s)
	}
	if len(current) > 0 {
		// The final flush must not emit an overlap-only chunk.
		chunks = append(chunks, c.buildChunk(docID, ordinal, current))
	}

	return chunks
}

// chunkTokens estimates the token count of the sentences joined with
// single spaces, plus an optional extra sentence. The estimate equals
// what buildChunk will compute for the same set.
func chunkTokens(sentences []sentence, extra ...sentence) int {
	runeCount, words := 0, 0
	count := func(s sentence, first bool) {
		if !first {
			runeCount++ // joining space
		}
		runeCount += s.runes
		words += s.words
	}
	for i, s := range sentences {
		count(s, i == 0)
	}
	for i, s := range extra {
		count(s, len(sentences) == 0 && i == 0)
	}
	return spanTokens(runeCount, words)
}

// collectSentences flattens blocks into offset-annotated sentences.
// Offsets index the document's full text: block texts joined by "\n".
func (c *Chunker) collectSentences(blocks []domain.TextBlock) []sentence {
	var sentences []sentence
	offset := 0

	for bi, block := range blocks {
		if bi > 0 {
			offset++ // the "\n" joining blocks
		}
		for _, raw := range splitSentences(block.Text) {
			s := newSentence(raw.text, offset+raw.start, block.Page, block.Section)
			if s.tokens > c.maxTokens {
				sentences = append(sentences, c.splitLong(s)...)
			} else {
				sentences = append(sentences, s)
			}
		}
		offset += utf8.RuneCountInString(block.Text)
	}

	return sentences
}

// splitLong breaks a sentence that exceeds the token cap into parts
// that each fit. Whole words are packed while the estimated token
// count of the part stays under the cap; a single word longer than the
// entire budget is cut hard.
func (c *Chunker) splitLong(s sentence) []sentence {
	maxRunes := c.maxTokens * 4 // inverse of the chars/4 estimate

	var parts []sentence
	runes := []rune(s.text)

	emit := func(start, end int) {
		text := strings.TrimSpace(string(runes[start:end]))
		if text != "" {
			parts = append(parts, newSentence(text, s.start+start, s.page, s.section))
		}
	}

	// Word boundaries follow strings.Fields so the packing estimate
	// matches EstimateTokens on the emitted text.
	partStart, partEnd, partWords := 0, 0, 0
	i := 0
	for i < len(runes) {
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		wordStart := i
		for i < len(runes) && !unicode.IsSpace(runes[i]) {
			i++
		}
		if wordStart == i {
			break
		}

		if i-wordStart > maxRunes {
			// The word alone exceeds the whole budget.
			emit(partStart, partEnd)
			for cs := wordStart; cs < i; cs += maxRunes {
				ce := cs + maxRunes
				if ce > i {
					ce = i
				}
				emit(cs, ce)
			}
			partStart, partEnd, partWords = i, i, 0
			continue
		}

		if partWords == 0 {
			partStart = wordStart
		} else if spanTokens(i-partStart, partWords+1) > c.maxTokens {
			emit(partStart, partEnd)
			partStart = wordStart
			partWords = 0
		}
		partEnd = i
		partWords++
	}
	if partWords > 0 {
		emit(partStart, partEnd)
	}

	return parts
}

// buildChunk assembles one chunk from its sentences.
func (c *Chunker) buildChunk(docID string, ordinal int, sentences []sentence) domain.Chunk {
	var sb strings.Builder
	for i, s := range sentences {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s.text)
	}
	text := sb.String()
	sum := sha256.Sum256([]byte(text))

	return domain.Chunk{
		ID:          fmt.Sprintf("%s:%d", docID, ordinal),
		DocumentID:  docID,
		Ordinal:     ordinal,
		Text:        text,
		StartOffset: sentences[0].start,
		EndOffset:   sentences[len(sentences)-1].end,
		TokenCount:  EstimateTokens(text),
		Page:        sentences[0].page,
		Section:     sentences[0].section,
		ContentHash: hex.EncodeToString(sum[:]),
	}
}

// rawSentence is a split result with its rune offset into the block.
type rawSentence struct {
	text  string
	start int
}

// splitSentences splits block text after sentence terminators and
// newlines, preserving rune offsets. Trailing text without a
// terminator forms the last sentence.
func splitSentences(text string) []rawSentence {
	var sentences []rawSentence
	var current strings.Builder
	start := 0
	pos := 0

	emit := func(endPos int) {
		s := current.String()
		trimmed := strings.TrimSpace(s)
		if trimmed != "" {
			lead := 0
			for _, r := range s {
				if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
					break
				}
				lead++
			}
			sentences = append(sentences, rawSentence{text: trimmed, start: start + lead})
		}
		current.Reset()
		start = endPos
	}

	for _, r := range text {
		current.WriteRune(r)
		pos++
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			emit(pos)
		}
	}
	emit(pos)

	return sentences
}
