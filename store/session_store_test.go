package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := DefaultSessionConfig()
	cfg.Addr = mr.Addr()
	s := NewSessionStore(cfg, nil)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	s, _ := newTestSessionStore(t)
	ctx := context.Background()

	session, err := s.Create(ctx, map[string]string{"team": "payments"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(session.ID, "session_"))
	assert.Equal(t, "active", session.Status)

	got, err := s.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, "payments", got.Metadata["team"])
}

func TestSessionStore_GetMissing(t *testing.T) {
	s, _ := newTestSessionStore(t)
	_, err := s.Get(context.Background(), "session_missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_Turns(t *testing.T) {
	s, _ := newTestSessionStore(t)
	ctx := context.Background()

	session, err := s.Create(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, s.AppendTurn(ctx, session.ID, Turn{Role: "user", Content: "should we ship?"}))
	require.NoError(t, s.AppendTurn(ctx, session.ID, Turn{Role: "roundtable", Content: "not without a canary"}))

	turns, err := s.Turns(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "not without a canary", turns[1].Content)
	assert.False(t, turns[0].CreatedAt.IsZero())

	count, err := s.TurnCount(ctx, session.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestSessionStore_AppendTurnValidation(t *testing.T) {
	s, _ := newTestSessionStore(t)
	ctx := context.Background()

	t.Run("missing session", func(t *testing.T) {
		err := s.AppendTurn(ctx, "session_missing", Turn{Role: "user", Content: "hi"})
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("oversized content", func(t *testing.T) {
		session, err := s.Create(ctx, nil)
		require.NoError(t, err)

		big := strings.Repeat("x", DefaultSessionConfig().MaxContent+1)
		err = s.AppendTurn(ctx, session.ID, Turn{Role: "user", Content: big})
		assert.ErrorIs(t, err, ErrTurnTooLarge)
	})
}

func TestSessionStore_Expiry(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultSessionConfig()
	cfg.Addr = mr.Addr()
	cfg.TTL = time.Minute
	s := NewSessionStore(cfg, nil)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	session, err := s.Create(ctx, nil)
	require.NoError(t, err)

	// Half the window passes; access refreshes the full retention window.
	mr.FastForward(30 * time.Second)
	_, err = s.Get(ctx, session.ID)
	require.NoError(t, err)

	mr.FastForward(45 * time.Second)
	_, err = s.Get(ctx, session.ID)
	require.NoError(t, err, "refreshed session must survive past the original TTL")

	mr.FastForward(2 * time.Minute)
	_, err = s.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
