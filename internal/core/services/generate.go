package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driven"
	"github.com/oratorio-dev/rudybot/internal/logger"
)

// InsufficientAnswer is the defined grounded non-answer. The grounding
// prompt instructs the model to reply with exactly this sentence when
// the context does not contain the answer, and the generator emits it
// directly when the context is empty.
const InsufficientAnswer = "I don't have enough information in the documents to answer that."

// groundingInstruction constrains the model to the supplied context.
const groundingInstruction = `You are an assistant answering questions strictly from the provided context.
Rules:
- Use ONLY information from the numbered context passages below.
- Cite the passages you use with their markers, like [1] or [2].
- If the context does not contain the answer, reply with exactly:
  "` + InsufficientAnswer + `"
- Never invent facts, rules or numbers that are not in the context.`

// markerPattern matches citation markers in generated text.
var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// Generator invokes the language model with the grounding instruction,
// the assembled context and the rewritten query.
type Generator struct {
	llm       driven.LLMService
	limiter   *rate.Limiter
	maxTokens int
}

// GeneratorOption configures the generator.
type GeneratorOption func(*Generator)

// WithMaxAnswerTokens caps the generated answer length.
func WithMaxAnswerTokens(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithRateLimit caps generation calls per minute. Zero disables the
// limiter.
func WithRateLimit(perMinute float64) GeneratorOption {
	return func(g *Generator) {
		if perMinute > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(perMinute/60), 1)
		}
	}
}

// NewGenerator creates a generator around the LLM service.
func NewGenerator(llm driven.LLMService, opts ...GeneratorOption) *Generator {
	g := &Generator{
		llm:       llm,
		maxTokens: 1024,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces a grounded answer for the query. An empty context
// short-circuits to the insufficient-information answer without calling
// the model: failing soft is the contract, hallucinating is not an
// option. Transient failures are retried once; rate limits wait for the
// limiter and back off once more on a 429.
func (g *Generator) Generate(ctx context.Context, query string, block domain.ContextBlock) (domain.Answer, error) {
	logger.Section("Generation")

	if block.Empty() {
		logger.Info("Empty context, returning insufficient-information answer")
		return domain.Answer{Text: InsufficientAnswer, Insufficient: true}, nil
	}
	if g.llm == nil {
		return domain.Answer{}, domain.ErrLLMUnavailable
	}

	prompt := g.buildPrompt(query, block)

	text, err := g.complete(ctx, prompt)
	if err != nil {
		// Semantic outcomes are never retried; infrastructure errors
		// get exactly one more attempt.
		if errors.Is(err, domain.ErrRateLimited) || isTransient(err) {
			logger.Warn("Generation failed (%v), retrying once", err)
			text, err = g.complete(ctx, prompt)
		}
		if err != nil {
			return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
		}
	}

	text = strings.TrimSpace(text)
	if text == "" || strings.Contains(text, InsufficientAnswer) {
		return domain.Answer{Text: InsufficientAnswer, Insufficient: true}, nil
	}

	answer := domain.Answer{
		Text:      text,
		Citations: extractCitations(text, block),
	}
	logger.Debug("Answer: %d chars, %d citations", len(text), len(answer.Citations))
	return answer, nil
}

// complete waits for the rate limiter then calls the model.
func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	return g.llm.Complete(ctx, prompt, driven.CompleteOptions{
		MaxTokens:         g.maxTokens,
		Temperature:       0.2,
		SystemInstruction: groundingInstruction,
	})
}

// buildPrompt renders the numbered context passages and the question.
func (g *Generator) buildPrompt(query string, block domain.ContextBlock) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	for _, e := range block.Entries {
		fmt.Fprintf(&sb, "[%d] (%s", e.Marker, e.Chunk.DocumentTitle)
		if e.Chunk.Page > 0 {
			fmt.Fprintf(&sb, ", p.%d", e.Chunk.Page)
		}
		if e.Chunk.Section != "" {
			fmt.Fprintf(&sb, ", %s", e.Chunk.Section)
		}
		fmt.Fprintf(&sb, ")\n%s\n\n", e.Chunk.Text)
	}
	fmt.Fprintf(&sb, "Question: %s\nAnswer:", query)
	return sb.String()
}

// extractCitations returns the context citations actually referenced in
// the answer text, in marker order, deduplicated. Not every supplied
// chunk needs to be cited.
func extractCitations(text string, block domain.ContextBlock) []domain.Citation {
	byMarker := make(map[int]domain.Citation)
	for _, e := range block.Entries {
		if _, ok := byMarker[e.Marker]; !ok {
			byMarker[e.Marker] = domain.Citation{
				Marker:        e.Marker,
				DocumentTitle: e.Chunk.DocumentTitle,
				Page:          e.Chunk.Page,
				Section:       e.Chunk.Section,
			}
		}
	}

	seen := make(map[int]bool)
	var citations []domain.Citation
	for _, m := range markerPattern.FindAllStringSubmatch(text, -1) {
		var marker int
		fmt.Sscanf(m[1], "%d", &marker)
		if seen[marker] {
			continue
		}
		c, ok := byMarker[marker]
		if !ok {
			continue
		}
		seen[marker] = true
		citations = append(citations, c)
	}

	sort.Slice(citations, func(i, j int) bool {
		return citations[i].Marker < citations[j].Marker
	})
	return citations
}

// isTransient reports whether an error looks like a temporary service
// failure worth one retry.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "status 5")
}
