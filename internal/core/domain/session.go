package domain

import "time"

// Turn is one completed question/answer exchange in a session.
type Turn struct {
	// Question is the user's original question.
	Question string

	// RewrittenQuery is the self-contained form used for retrieval.
	RewrittenQuery string

	// Answer is the generated answer text.
	Answer string

	// CitedChunkIDs are the chunk IDs backing the answer.
	CitedChunkIDs []string

	// At is when the turn completed.
	At time.Time
}

// Session is the bounded per-user conversational state.
type Session struct {
	// UserID identifies the chat user the session belongs to.
	UserID string

	// Turns is ordered oldest first and bounded by the configured
	// maximum; appending beyond the cap evicts the oldest turn.
	Turns []Turn

	// UpdatedAt is when the session was last appended to.
	UpdatedAt time.Time
}

// RecentTurns returns up to n most recent turns that are younger than
// maxAge. Expired turns are excluded from rewrite context even when they
// have not been physically evicted yet.
func (s Session) RecentTurns(n int, maxAge time.Duration, now time.Time) []Turn {
	if n <= 0 || len(s.Turns) == 0 {
		return nil
	}
	cutoff := now.Add(-maxAge)
	start := len(s.Turns) - n
	if start < 0 {
		start = 0
	}
	var recent []Turn
	for _, t := range s.Turns[start:] {
		if t.At.Before(cutoff) {
			continue
		}
		recent = append(recent, t)
	}
	return recent
}
