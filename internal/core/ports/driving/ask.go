package driving

import (
	"context"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
)

// AskService answers a user question from the indexed corpus.
type AskService interface {
	// Ask runs the query workflow for one user message: rewrite the
	// question against session history, retrieve and rerank candidate
	// chunks, assemble a token-budgeted context and generate a grounded
	// answer. The completed turn is appended to the user's session.
	Ask(ctx context.Context, userID, question string) (domain.Answer, error)
}
