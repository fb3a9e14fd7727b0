package realtime

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSubscriber struct {
	mu     sync.Mutex
	id     string
	frames []Frame
	full   bool
}

func (s *memSubscriber) Send(frame Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.frames = append(s.frames, frame)
	return true
}

func (s *memSubscriber) UserID() string { return s.id }

func (s *memSubscriber) received() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHubPublishReachesRoomMembers(t *testing.T) {
	hub := newTestHub()
	a := &memSubscriber{id: "a"}
	b := &memSubscriber{id: "b"}
	other := &memSubscriber{id: "c"}

	hub.Join("t1", a)
	hub.Join("t1", b)
	hub.Join("t2", other)

	hub.Publish("t1", "message:new", map[string]string{"content": "hi"})

	require.Len(t, a.received(), 1)
	require.Len(t, b.received(), 1)
	assert.Empty(t, other.received(), "other rooms are not notified")

	frame := a.received()[0]
	assert.Equal(t, "message:new", frame.Event)
	assert.Equal(t, "t1", frame.ThreadID)
}

func TestHubPublishExceptSkipsOriginator(t *testing.T) {
	hub := newTestHub()
	origin := &memSubscriber{id: "origin"}
	peer := &memSubscriber{id: "peer"}

	hub.Join("t1", origin)
	hub.Join("t1", peer)

	hub.PublishExcept("t1", origin, "typing:start", nil)

	assert.Empty(t, origin.received())
	assert.Len(t, peer.received(), 1)
}

func TestHubLeave(t *testing.T) {
	hub := newTestHub()
	a := &memSubscriber{id: "a"}

	hub.Join("t1", a)
	assert.Equal(t, 1, hub.RoomSize("t1"))

	hub.Leave("t1", a)
	assert.Equal(t, 0, hub.RoomSize("t1"))

	hub.Publish("t1", "message:new", nil)
	assert.Empty(t, a.received())

	// Leaving a room twice or an unknown room is harmless.
	hub.Leave("t1", a)
	hub.Leave("missing", a)
}

func TestHubSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := newTestHub()
	slow := &memSubscriber{id: "slow", full: true}
	fast := &memSubscriber{id: "fast"}

	hub.Join("t1", slow)
	hub.Join("t1", fast)

	hub.Publish("t1", "message:new", nil)

	assert.Empty(t, slow.received())
	assert.Len(t, fast.received(), 1)
}

func TestOriginChecker(t *testing.T) {
	anyOrigin := originChecker(nil)
	req, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://anything.example.com")
	assert.True(t, anyOrigin(req))

	strict := originChecker([]string{"https://shop.example.com/"})
	assert.False(t, strict(req))

	req.Header.Set("Origin", "https://shop.example.com")
	assert.True(t, strict(req))

	req.Header.Del("Origin")
	assert.True(t, strict(req), "non-browser clients send no origin")
}
