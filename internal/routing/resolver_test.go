package routing

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveFullToken(t *testing.T) {
	fs := newFakeStore()
	r := NewResolver(discardLogger(), fs)

	// A full-length token resolves without any store lookup.
	id := "a1b2c3d4-e5f6-4a00-8b00-0123456789ab"
	got, err := r.Resolve(context.Background(), "done, closing #"+id, "", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestResolveTruncatedToken(t *testing.T) {
	fs := newFakeStore()
	thread := fs.addThread(store.Thread{ID: "a1b2c3d4-e5f6-4a00-8b00-0123456789ab", AssignedAgentID: "agent-1"})
	r := NewResolver(discardLogger(), fs)

	got, err := r.Resolve(context.Background(), "#a1b2c3d4 got it, checking now", "", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, thread.ID, got)
}

func TestResolveTokenFromReplyContext(t *testing.T) {
	fs := newFakeStore()
	thread := fs.addThread(store.Thread{ID: "a1b2c3d4-e5f6-4a00-8b00-0123456789ab", AssignedAgentID: "agent-1"})
	r := NewResolver(discardLogger(), fs)

	reply := FormatAgentEnvelope("Alice", "Billing", thread.ID, "where is my invoice?")
	got, err := r.Resolve(context.Background(), "it shipped yesterday", reply, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, thread.ID, got)
}

func TestResolveAmbiguousPrefixFallsBack(t *testing.T) {
	fs := newFakeStore()
	fs.addThread(store.Thread{
		ID: "a1b2c3d4-0000-4000-8000-000000000001", AssignedAgentID: "agent-2",
		UpdatedAt: time.Now().Add(-time.Hour),
	})
	fs.addThread(store.Thread{
		ID: "a1b2c3d4-0000-4000-8000-000000000002", AssignedAgentID: "agent-2",
		UpdatedAt: time.Now().Add(-2 * time.Hour),
	})
	// The sender's own recent thread is the fallback target.
	mine := fs.addThread(store.Thread{AssignedAgentID: "agent-1"})
	r := NewResolver(discardLogger(), fs)

	got, err := r.Resolve(context.Background(), "#a1b2c3d4 on it", "", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got)
}

func TestResolveClosedThreadPrefixNotMatched(t *testing.T) {
	fs := newFakeStore()
	fs.addThread(store.Thread{
		ID:     "a1b2c3d4-0000-4000-8000-000000000001",
		Status: store.ThreadStatusClosed,
	})
	r := NewResolver(discardLogger(), fs)

	_, err := r.Resolve(context.Background(), "#a1b2c3d4 hello", "", "agent-1")
	assert.ErrorIs(t, err, ErrThreadUnresolved)
}

func TestResolveFallsBackToLatestThread(t *testing.T) {
	fs := newFakeStore()
	fs.addThread(store.Thread{AssignedAgentID: "agent-1", UpdatedAt: time.Now().Add(-time.Hour)})
	latest := fs.addThread(store.Thread{AssignedAgentID: "agent-1", UpdatedAt: time.Now()})
	fs.addThread(store.Thread{AssignedAgentID: "agent-2", UpdatedAt: time.Now().Add(time.Minute)})
	r := NewResolver(discardLogger(), fs)

	got, err := r.Resolve(context.Background(), "no token here", "", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, latest.ID, got)
}

func TestResolveUnresolved(t *testing.T) {
	fs := newFakeStore()
	r := NewResolver(discardLogger(), fs)

	_, err := r.Resolve(context.Background(), "hello?", "", "agent-1")
	assert.ErrorIs(t, err, ErrThreadUnresolved)
}

func TestExtractThreadToken(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"#a1b2c3d4 checking", "a1b2c3d4"},
		{"thread #a1b2c3d4-0000-4000-8000-000000000001 done", "a1b2c3d4-0000-4000-8000-000000000001"},
		{"no token", ""},
		{"", ""},
		{"cost was #1 priority", "1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractThreadToken(tt.text), tt.text)
	}
}
