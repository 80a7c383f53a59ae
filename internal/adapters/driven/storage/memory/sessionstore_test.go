package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
)

func TestSessionStore_Get_EmptyForUnknownUser(t *testing.T) {
	s := NewSessionStore(10)

	sess, err := s.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", sess.UserID)
	assert.Empty(t, sess.Turns)
}

func TestSessionStore_Append_AndGet(t *testing.T) {
	s := NewSessionStore(10)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "u1", domain.Turn{Question: "q1", Answer: "a1"}))
	require.NoError(t, s.Append(ctx, "u1", domain.Turn{Question: "q2", Answer: "a2"}))

	sess, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 2)
	assert.Equal(t, "q1", sess.Turns[0].Question)
	assert.Equal(t, "q2", sess.Turns[1].Question)
	assert.False(t, sess.UpdatedAt.IsZero())
}

func TestSessionStore_Append_EvictsOldestBeyondCap(t *testing.T) {
	s := NewSessionStore(3)
	ctx := context.Background()

	for _, q := range []string{"q1", "q2", "q3", "q4", "q5"} {
		require.NoError(t, s.Append(ctx, "u1", domain.Turn{Question: q}))
	}

	sess, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 3)
	assert.Equal(t, "q3", sess.Turns[0].Question)
	assert.Equal(t, "q5", sess.Turns[2].Question)
}

func TestSessionStore_Get_ReturnsCopy(t *testing.T) {
	s := NewSessionStore(10)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "u1", domain.Turn{Question: "original"}))

	sess, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	sess.Turns[0].Question = "mutated"

	again, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "original", again.Turns[0].Question)
}

func TestSessionStore_Reset(t *testing.T) {
	s := NewSessionStore(10)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "u1", domain.Turn{Question: "q"}))

	require.NoError(t, s.Reset(ctx, "u1"))

	sess, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, sess.Turns)
}

func TestSessionStore_UsersAreIsolated(t *testing.T) {
	s := NewSessionStore(10)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "u1", domain.Turn{Question: "mine"}))
	require.NoError(t, s.Append(ctx, "u2", domain.Turn{Question: "yours"}))

	require.NoError(t, s.Reset(ctx, "u1"))

	sess, err := s.Get(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, "yours", sess.Turns[0].Question)
}

func TestSessionStore_Lock_SerializesSameUser(t *testing.T) {
	s := NewSessionStore(10)

	unlock := s.Lock("u1")

	entered := make(chan struct{})
	go func() {
		u := s.Lock("u1")
		close(entered)
		u()
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-entered:
		t.Fatal("second lock acquired while first still held")
	default:
	}

	unlock()
	<-entered
}

func TestSessionStore_Lock_DifferentUsersDoNotContend(t *testing.T) {
	s := NewSessionStore(10)

	unlock1 := s.Lock("u1")
	defer unlock1()

	unlock2 := s.Lock("u2")
	unlock2()
}

func TestSessionStore_Lock_ReapsReleasedEntries(t *testing.T) {
	s := NewSessionStore(10)

	unlock := s.Lock("u1")
	s.mu.Lock()
	held := len(s.locks)
	s.mu.Unlock()
	assert.Equal(t, 1, held)

	unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.locks, "lock table retains released entries")
}

func TestSessionStore_Lock_WaiterKeepsEntryAlive(t *testing.T) {
	s := NewSessionStore(10)
	unlock := s.Lock("u1")

	released := make(chan struct{})
	go func() {
		u := s.Lock("u1")
		u()
		close(released)
	}()

	// Releasing the first hold while a waiter is queued must hand the
	// lock over, not delete it out from under the waiter.
	time.Sleep(20 * time.Millisecond)
	unlock()
	<-released

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.locks)
}

func TestSessionStore_ConcurrentAppends(t *testing.T) {
	s := NewSessionStore(100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Append(ctx, "u1", domain.Turn{Question: "q"})
		}()
	}
	wg.Wait()

	sess, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, sess.Turns, 20)
}
