package services

import (
	"github.com/oratorio-dev/rudybot/internal/core/domain"
	"github.com/oratorio-dev/rudybot/internal/logger"
)

// Assembler builds the token-budgeted context block from ranked
// retrieval results: dedup, greedy inclusion, citation markers.
type Assembler struct {
	tokenBudget  int
	dedupOverlap float64
}

// AssemblerOption configures the assembler.
type AssemblerOption func(*Assembler)

// WithTokenBudget caps the assembled context size.
func WithTokenBudget(n int) AssemblerOption {
	return func(a *Assembler) {
		if n > 0 {
			a.tokenBudget = n
		}
	}
}

// WithDedupOverlap sets the span-overlap ratio beyond which two chunks
// of the same document are duplicates.
func WithDedupOverlap(ratio float64) AssemblerOption {
	return func(a *Assembler) {
		if ratio >= 0 && ratio <= 1 {
			a.dedupOverlap = ratio
		}
	}
}

// NewAssembler creates a context assembler.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		tokenBudget:  3000,
		dedupOverlap: 0.5,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble walks the candidates in the retriever's ranked order,
// drops same-document chunks whose spans overlap an earlier-ranked
// chunk beyond the threshold, and includes chunks greedily until the
// token budget is exhausted. A chunk that would overflow the remaining
// budget is dropped whole, never clipped. Chunks from the same
// document and section/page share one citation marker, so no duplicate
// citation appears in the output.
func (a *Assembler) Assemble(result domain.RetrievalResult) domain.ContextBlock {
	logger.Section("Context Assembly")

	var block domain.ContextBlock
	markers := make(map[string]int)
	var kept []domain.Chunk

	for _, sc := range result.Chunks {
		c := sc.Chunk

		if a.overlapsKept(c, kept) {
			logger.Debug("Dropping %s: span overlaps an earlier-ranked chunk", c.ID)
			continue
		}
		if block.TokenCount+c.TokenCount > a.tokenBudget {
			logger.Debug("Dropping %s: %d tokens would overflow budget %d",
				c.ID, c.TokenCount, a.tokenBudget)
			continue
		}

		key := c.CitationKey()
		marker, ok := markers[key]
		if !ok {
			marker = len(markers) + 1
			markers[key] = marker
		}

		block.Entries = append(block.Entries, domain.ContextEntry{Chunk: c, Marker: marker})
		block.TokenCount += c.TokenCount
		kept = append(kept, c)
	}

	logger.Debug("Assembled %d chunks, %d tokens", len(block.Entries), block.TokenCount)
	return block
}

// overlapsKept reports whether c's span overlaps an already kept chunk
// of the same document beyond the configured ratio. The ratio is the
// intersection over the shorter span.
func (a *Assembler) overlapsKept(c domain.Chunk, kept []domain.Chunk) bool {
	for _, k := range kept {
		if k.DocumentID != c.DocumentID {
			continue
		}
		if spanOverlapRatio(c.StartOffset, c.EndOffset, k.StartOffset, k.EndOffset) > a.dedupOverlap {
			return true
		}
	}
	return false
}

// spanOverlapRatio returns intersection length over the shorter span.
func spanOverlapRatio(aStart, aEnd, bStart, bEnd int) float64 {
	lo := aStart
	if bStart > lo {
		lo = bStart
	}
	hi := aEnd
	if bEnd < hi {
		hi = bEnd
	}
	if hi <= lo {
		return 0
	}
	shorter := aEnd - aStart
	if l := bEnd - bStart; l < shorter {
		shorter = l
	}
	if shorter <= 0 {
		return 0
	}
	return float64(hi-lo) / float64(shorter)
}
