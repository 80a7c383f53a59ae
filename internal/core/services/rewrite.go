package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driven"
	"github.com/oratorio-dev/rudybot/internal/logger"
)

// rewritePrompt is the instruction-only prompt for resolving
// referential questions against recent turns. The model restates
// intent; it must not add facts.
const rewritePrompt = `Rewrite the follow-up question as a single self-contained question.
Resolve pronouns and ellipsis using the conversation below. Do not add
information that is not implied by the question. Return ONLY the
rewritten question, nothing else.

Conversation:
%s
Follow-up question: %s
Rewritten question:`

// referenceCues are lowercase tokens that suggest the question leans on
// earlier turns: pronouns, ellipsis openers and the like.
var referenceCues = []string{
	"it", "that", "this", "those", "these", "they", "them",
	"he", "she", "him", "her", "there", "one", "ones", "same",
}

// ellipsisOpeners start questions that only make sense as follow-ups.
var ellipsisOpeners = []string{
	"and ", "or ", "but ", "what about", "how about", "what if",
	"also ", "then ",
}

// Rewriter resolves referential and elliptical questions into
// self-contained queries using session history.
type Rewriter struct {
	llm    driven.LLMService
	window int
}

// NewRewriter creates a query rewriter. The LLM service may be nil, in
// which case every rewrite is the identity transform.
func NewRewriter(llm driven.LLMService, window int) *Rewriter {
	if window <= 0 {
		window = 3
	}
	return &Rewriter{llm: llm, window: window}
}

// Rewrite returns a self-contained form of question. The identity
// transform applies when there is no usable history, the question is
// already self-contained, or the model call fails: a rewrite failure
// must never block answering.
func (r *Rewriter) Rewrite(ctx context.Context, question string, history []domain.Turn) string {
	question = strings.TrimSpace(question)
	if question == "" || len(history) == 0 || r.llm == nil {
		return question
	}
	if !needsRewrite(question) {
		return question
	}

	turns := history
	if len(turns) > r.window {
		turns = turns[len(turns)-r.window:]
	}

	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", t.Question, t.Answer)
	}

	prompt := fmt.Sprintf(rewritePrompt, sb.String(), question)
	result, err := r.llm.Complete(ctx, prompt, driven.CompleteOptions{
		MaxTokens:   100,
		Temperature: 0.1,
	})
	if err != nil {
		logger.Warn("Query rewrite failed: %v (using original question)", err)
		return question
	}

	rewritten := strings.TrimSpace(result)
	if rewritten == "" {
		return question
	}
	logger.Debug("Query rewrite: %q -> %q", question, rewritten)
	return rewritten
}

// needsRewrite applies a cheap reference heuristic so self-contained
// questions skip the model call entirely.
func needsRewrite(question string) bool {
	lower := strings.ToLower(question)

	for _, opener := range ellipsisOpeners {
		if strings.HasPrefix(lower, opener) {
			return true
		}
	}

	words := strings.Fields(strings.Map(stripPunct, lower))
	for _, w := range words {
		for _, cue := range referenceCues {
			if w == cue {
				return true
			}
		}
	}

	// Very short questions rarely stand on their own.
	return len(words) <= 2
}

func stripPunct(r rune) rune {
	switch r {
	case '?', '!', '.', ',', ';', ':':
		return ' '
	}
	return r
}
