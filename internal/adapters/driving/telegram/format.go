package telegram

import (
	"fmt"
	"strings"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
)

// answerSources renders an answer's citations as display lines.
func answerSources(answer domain.Answer) []string {
	lines := make([]string, 0, len(answer.Citations))
	for _, c := range answer.Citations {
		var b strings.Builder
		fmt.Fprintf(&b, "[%d] %s", c.Marker, c.DocumentTitle)
		if c.Section != "" {
			fmt.Fprintf(&b, ", %s", c.Section)
		}
		if c.Page > 0 {
			fmt.Fprintf(&b, " (p. %d)", c.Page)
		}
		lines = append(lines, b.String())
	}
	return lines
}

// formatAnswer appends a sources footer when citations exist.
func formatAnswer(text string, sources []string) string {
	if len(sources) == 0 {
		return text
	}
	return text + "\n\nSources:\n" + strings.Join(sources, "\n")
}

// SplitMessage splits text into pieces no longer than limit runes,
// preferring line breaks, then spaces, so words stay intact where
// possible.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return []string{text}
	}

	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		if cut == limit {
			for i := limit; i > limit/2; i-- {
				if runes[i-1] == ' ' {
					cut = i
					break
				}
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), " \n"))
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}
