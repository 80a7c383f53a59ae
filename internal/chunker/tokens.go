package chunker

import (
	"strings"
	"unicode/utf8"
)

// EstimateTokens approximates the token count of text for budgeting.
// The pipeline does not carry its own tokenizer; four characters per
// token is the usual estimate for the models in use, floored by the
// whitespace word count so short texts are not under-counted.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return spanTokens(utf8.RuneCountInString(text), len(strings.Fields(text)))
}

// spanTokens is the estimate for a span given its rune and word counts.
// Splitting and packing budget with this so their accounting agrees
// exactly with EstimateTokens on the text they produce.
func spanTokens(runeCount, words int) int {
	est := (runeCount + 3) / 4
	if words > est {
		est = words
	}
	return est
}
