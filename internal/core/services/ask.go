package services

import (
	"context"
	"errors"
	"time"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driven"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driving"
	"github.com/oratorio-dev/rudybot/internal/logger"
)

// Ensure AskService implements the interface.
var _ driving.AskService = (*AskService)(nil)

// Defined user-visible failure messages. The system never emits a
// generated answer claiming evidence it does not have; failures map to
// these fixed strings.
const (
	MsgIndexUnavailable = "The knowledge base is temporarily unavailable. Please try again in a moment."
	MsgRequestFailed    = "Sorry, something went wrong while processing your question. Please try again."
)

// AskService runs the query workflow: rewrite -> retrieve -> assemble
// -> generate, reading the session before and appending to it after.
type AskService struct {
	sessions      driven.SessionStore
	rewriter      *Rewriter
	retriever     *Retriever
	assembler     *Assembler
	generator     *Generator
	callTimeout   time.Duration
	rewriteWindow int
	sessionExpiry time.Duration
}

// AskOption configures the ask workflow.
type AskOption func(*AskService)

// WithCallTimeout bounds each externally-calling stage.
func WithCallTimeout(d time.Duration) AskOption {
	return func(s *AskService) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithSessionExpiry sets the inactivity window beyond which turns are
// excluded from rewrite context.
func WithSessionExpiry(d time.Duration) AskOption {
	return func(s *AskService) {
		if d > 0 {
			s.sessionExpiry = d
		}
	}
}

// WithRewriteWindow sets how many recent turns the rewriter sees.
func WithRewriteWindow(n int) AskOption {
	return func(s *AskService) {
		if n > 0 {
			s.rewriteWindow = n
		}
	}
}

// NewAskService creates the query workflow service.
func NewAskService(
	sessions driven.SessionStore,
	rewriter *Rewriter,
	retriever *Retriever,
	assembler *Assembler,
	generator *Generator,
	opts ...AskOption,
) *AskService {
	s := &AskService{
		sessions:      sessions,
		rewriter:      rewriter,
		retriever:     retriever,
		assembler:     assembler,
		generator:     generator,
		callTimeout:   15 * time.Second,
		rewriteWindow: 3,
		sessionExpiry: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask answers one user message. Requests for different users run
// concurrently; requests for the same user serialize on the session
// lock so a later rewrite never reads a history missing an earlier,
// still-in-flight turn. Returned answers always carry user-presentable
// text, also on failure; the error reports what went wrong underneath.
func (s *AskService) Ask(ctx context.Context, userID, question string) (domain.Answer, error) {
	unlock := s.sessions.Lock(userID)
	defer unlock()

	session, err := s.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionCorrupted) {
			logger.Warn("Session for %s corrupted, resetting", userID)
			if resetErr := s.sessions.Reset(ctx, userID); resetErr != nil {
				logger.Error("Session reset for %s failed: %v", userID, resetErr)
			}
			session = domain.Session{UserID: userID}
		} else {
			return domain.Answer{Text: MsgRequestFailed}, err
		}
	}

	history := session.RecentTurns(s.rewriteWindow, s.sessionExpiry, time.Now())

	rewritten := s.withTimeout(ctx, func(c context.Context) string {
		return s.rewriter.Rewrite(c, question, history)
	})

	result, err := s.retrieveWithTimeout(ctx, rewritten)
	if err != nil {
		if errors.Is(err, domain.ErrIndexUnavailable) || errors.Is(err, domain.ErrModelVersionMismatch) {
			// Degrade to the defined unavailability answer; the
			// generator is never called with empty context here.
			logger.Warn("Retrieval unavailable: %v", err)
			return domain.Answer{Text: MsgIndexUnavailable}, err
		}
		return domain.Answer{Text: MsgRequestFailed}, err
	}

	block := s.assembler.Assemble(result)

	genCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	answer, err := s.generator.Generate(genCtx, rewritten, block)
	cancel()
	if err != nil {
		return domain.Answer{Text: MsgRequestFailed}, err
	}

	// A superseded request may have been cancelled while generating;
	// the abandoned turn is simply never appended.
	if ctx.Err() != nil {
		return answer, ctx.Err()
	}

	turn := domain.Turn{
		Question:       question,
		RewrittenQuery: rewritten,
		Answer:         answer.Text,
		CitedChunkIDs:  citedChunkIDs(answer, block),
		At:             time.Now().UTC(),
	}
	if err := s.sessions.Append(ctx, userID, turn); err != nil {
		logger.Error("Appending turn for %s: %v", userID, err)
	}

	return answer, nil
}

// withTimeout runs a stage under the per-call timeout.
func (s *AskService) withTimeout(ctx context.Context, fn func(context.Context) string) string {
	c, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return fn(c)
}

// retrieveWithTimeout runs retrieval under the per-call timeout.
func (s *AskService) retrieveWithTimeout(ctx context.Context, query string) (domain.RetrievalResult, error) {
	c, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.retriever.Retrieve(c, query)
}

// citedChunkIDs maps the answer's citation markers back to chunk IDs.
func citedChunkIDs(answer domain.Answer, block domain.ContextBlock) []string {
	cited := make(map[int]bool, len(answer.Citations))
	for _, c := range answer.Citations {
		cited[c.Marker] = true
	}
	var ids []string
	for _, e := range block.Entries {
		if cited[e.Marker] {
			ids = append(ids, e.Chunk.ID)
		}
	}
	return ids
}
