package driven

import (
	"context"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
)

// SessionStore owns per-user conversational state. Appends for the
// same user are serialized by the store; different users never block
// one another. History is bounded: appending beyond the cap evicts the
// oldest turn.
type SessionStore interface {
	// Get returns the session for a user. A user without history gets
	// an empty session, not an error.
	Get(ctx context.Context, userID string) (domain.Session, error)

	// Append adds a completed turn to the user's session, evicting the
	// oldest turn when the bound is reached.
	Append(ctx context.Context, userID string, turn domain.Turn) error

	// Reset discards a user's session. Used on detected corruption.
	Reset(ctx context.Context, userID string) error

	// Lock acquires the per-user exclusion scope and returns its
	// release function. Turns for one user are appended in request
	// order; this is the serialization point.
	Lock(userID string) (unlock func())
}
