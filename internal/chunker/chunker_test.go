package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
)

func TestChunker_Chunk_Empty(t *testing.T) {
	c := New()
	assert.Nil(t, c.Chunk("doc", nil))
	assert.Nil(t, c.Chunk("doc", []domain.TextBlock{{Text: "   \n  "}}))
}

func TestChunker_Chunk_SingleSentence(t *testing.T) {
	c := New()
	chunks := c.Chunk("doc", []domain.TextBlock{{Text: "The oratory opens at nine.", Page: 2, Section: "Hours"}})

	require.Len(t, chunks, 1)
	assert.Equal(t, "doc:0", chunks[0].ID)
	assert.Equal(t, "doc", chunks[0].DocumentID)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Equal(t, "The oratory opens at nine.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, utf8.RuneCountInString("The oratory opens at nine."), chunks[0].EndOffset)
	assert.Equal(t, 2, chunks[0].Page)
	assert.Equal(t, "Hours", chunks[0].Section)
	assert.NotEmpty(t, chunks[0].ContentHash)
}

func TestChunker_Chunk_DeterministicIDs(t *testing.T) {
	c := New(WithMaxTokens(8), WithOverlapTokens(0))
	blocks := []domain.TextBlock{{Text: "One two three. Four five six. Seven eight nine. Ten eleven twelve."}}

	first := c.Chunk("doc", blocks)
	second := c.Chunk("doc", blocks)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, fmt.Sprintf("doc:%d", i), first[i].ID)
		assert.Equal(t, first[i], second[i])
	}
}

func TestChunker_Chunk_RespectsTokenCap(t *testing.T) {
	c := New(WithMaxTokens(10), WithOverlapTokens(0))
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&sb, "Sentence number %d here. ", i)
	}
	chunks := c.Chunk("doc", []domain.TextBlock{{Text: sb.String()}})

	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 10, "chunk %s exceeds cap", ch.ID)
	}
}

func TestChunker_Chunk_OverlapNeverBreachesCap(t *testing.T) {
	// A wide overlap budget must yield to the cap: carrying a near-cap
	// sentence forward cannot push the next chunk over MaxTokens.
	c := New(WithMaxTokens(12), WithOverlapTokens(10))
	chunks := c.Chunk("doc", []domain.TextBlock{
		{Text: "w w w w w w w w. w w w w w w w w."},
	})

	require.GreaterOrEqual(t, len(chunks), 2)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 12, "chunk %s exceeds cap", ch.ID)
	}
}

func TestChunker_Chunk_CapHoldsWithOverlapAcrossSizes(t *testing.T) {
	c := New(WithMaxTokens(20), WithOverlapTokens(8))
	var sb strings.Builder
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&sb, "Sentence %d has a somewhat longer body of text in it. Short %d. ", i, i)
	}
	chunks := c.Chunk("doc", []domain.TextBlock{{Text: sb.String()}})

	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 20, "chunk %s exceeds cap", ch.ID)
		assert.Equal(t, EstimateTokens(ch.Text), ch.TokenCount)
	}
}

func TestChunker_Chunk_ShortWordRunsStayUnderCap(t *testing.T) {
	// One-rune words make the word-count floor dominate the chars/4
	// estimate; the splitter must budget by tokens, not runes.
	c := New(WithMaxTokens(10), WithOverlapTokens(0))
	chunks := c.Chunk("doc", []domain.TextBlock{{Text: strings.Repeat("a ", 100)}})

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 10, "chunk %s exceeds cap", ch.ID)
	}
}

func TestChunker_Chunk_OverlapCarriesTrailingSentence(t *testing.T) {
	// Four 3-token sentences against a 7-token cap with 3-token overlap:
	// every chunk after the first starts with the previous chunk's last
	// sentence.
	c := New(WithMaxTokens(7), WithOverlapTokens(3))
	chunks := c.Chunk("doc", []domain.TextBlock{
		{Text: "aaa bbb ccc. ddd eee fff. ggg hhh iii. jjj kkk lll."},
	})

	require.GreaterOrEqual(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		prevLast := lastSentenceOf(chunks[i-1].Text)
		assert.True(t, strings.HasPrefix(chunks[i].Text, prevLast),
			"chunk %d does not start with the previous chunk's tail", i)
		assert.LessOrEqual(t, chunks[i].StartOffset, chunks[i-1].EndOffset)
	}
}

func TestChunker_Chunk_NoOverlapIsGapless(t *testing.T) {
	c := New(WithMaxTokens(6), WithOverlapTokens(0))
	text := "aaa bbb ccc. ddd eee fff. ggg hhh iii."
	chunks := c.Chunk("doc", []domain.TextBlock{{Text: text}})

	require.GreaterOrEqual(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].StartOffset, chunks[i-1].StartOffset)
	}
	// Every chunk's span indexes real document text.
	runes := []rune(text)
	for _, ch := range chunks {
		require.LessOrEqual(t, ch.EndOffset, len(runes))
		firstWord := strings.Fields(ch.Text)[0]
		assert.True(t, strings.HasPrefix(string(runes[ch.StartOffset:]), firstWord))
	}
}

func TestChunker_Chunk_SplitsOversizedSentence(t *testing.T) {
	c := New(WithMaxTokens(10), WithOverlapTokens(0))
	// One long run of words without a terminator.
	long := strings.Repeat("word ", 100)
	chunks := c.Chunk("doc", []domain.TextBlock{{Text: long}})

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.NotEmpty(t, ch.Text)
		assert.NotContains(t, ch.Text, "  ")
	}
}

func TestChunker_Chunk_HardCutsUnbrokenRun(t *testing.T) {
	c := New(WithMaxTokens(4), WithOverlapTokens(0))
	chunks := c.Chunk("doc", []domain.TextBlock{{Text: strings.Repeat("x", 50)}})

	require.Greater(t, len(chunks), 1)
	total := 0
	for _, ch := range chunks {
		total += utf8.RuneCountInString(ch.Text)
	}
	assert.Equal(t, 50, total)
}

func TestChunker_Chunk_BlockProvenance(t *testing.T) {
	c := New()
	chunks := c.Chunk("doc", []domain.TextBlock{
		{Text: "Page one text.", Page: 1},
		{Text: "Page two text.", Page: 2},
	})

	require.Len(t, chunks, 1)
	// A chunk spanning blocks carries its first sentence's provenance.
	assert.Equal(t, 1, chunks[0].Page)
}

func TestChunker_Chunk_DistinctHashesForDistinctText(t *testing.T) {
	c := New(WithMaxTokens(8), WithOverlapTokens(0))
	chunks := c.Chunk("doc", []domain.TextBlock{{Text: "One two three four. Five six seven eight. Nine ten eleven twelve."}})

	require.GreaterOrEqual(t, len(chunks), 2)
	seen := map[string]bool{}
	for _, ch := range chunks {
		assert.False(t, seen[ch.ContentHash], "duplicate content hash")
		seen[ch.ContentHash] = true
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"word", 1},
		{"two words", 3},
		{"abcdefgh", 2},
		{strings.Repeat("a", 40), 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.text), "text %q", tt.text)
	}
}

func lastSentenceOf(text string) string {
	trimmed := strings.TrimRight(text, ". ")
	idx := strings.LastIndexAny(trimmed, ".!?")
	if idx < 0 {
		return text
	}
	return strings.TrimSpace(trimmed[idx+1:])
}
