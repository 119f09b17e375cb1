package localstate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDismissal(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	within, err := s.DismissedWithin("twofactor-tip", 7*24*time.Hour, now)
	require.NoError(t, err)
	require.False(t, within)

	require.NoError(t, s.Dismiss("twofactor-tip", now.Add(-8*24*time.Hour)))
	within, err = s.DismissedWithin("twofactor-tip", 7*24*time.Hour, now)
	require.NoError(t, err)
	require.False(t, within)

	// Dismissing again moves the timestamp forward
	require.NoError(t, s.Dismiss("twofactor-tip", now.Add(-time.Hour)))
	within, err = s.DismissedWithin("twofactor-tip", 7*24*time.Hour, now)
	require.NoError(t, err)
	require.True(t, within)
}

func TestSeenItems(t *testing.T) {
	s := openTestStore(t)

	seen, err := s.Seen("alert", "a-1")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, s.MarkSeen("alert", "a-1"))
	require.NoError(t, s.MarkSeen("alert", "a-1"))

	seen, err = s.Seen("alert", "a-1")
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = s.Seen("chat", "a-1")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.MarkSeen("alert", "x"))
}
