package realtime

import (
	"log/slog"
	"sync"
)

// Frame is the wire format for both directions of the web channel.
type Frame struct {
	Event    string `json:"event"`
	ThreadID string `json:"thread_id,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}

// Client-sent event names. Everything else arriving from a client is ignored.
const (
	eventJoinThread  = "join:thread"
	eventLeaveThread = "leave:thread"
)

// Subscriber receives frames for threads it joined. Send must not block;
// it reports false when the subscriber cannot keep up.
type Subscriber interface {
	Send(frame Frame) bool
	UserID() string
}

// Hub tracks which subscribers are watching which thread and fans events
// out to them. It satisfies the coordinator's publisher dependency.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[Subscriber]struct{}
	logger *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[Subscriber]struct{}),
		logger: log.With(slog.String("service", "realtime")),
	}
}

func (h *Hub) Join(threadID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[threadID]
	if !ok {
		room = make(map[Subscriber]struct{})
		h.rooms[threadID] = room
	}
	room[sub] = struct{}{}
}

func (h *Hub) Leave(threadID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[threadID]
	if !ok {
		return
	}
	delete(room, sub)
	if len(room) == 0 {
		delete(h.rooms, threadID)
	}
}

// Publish sends an event to every subscriber of the thread.
func (h *Hub) Publish(threadID, event string, payload any) {
	h.publish(threadID, nil, event, payload)
}

// PublishExcept sends to every subscriber of the thread except one. Used for
// typing passthrough so the originator does not echo itself.
func (h *Hub) PublishExcept(threadID string, except Subscriber, event string, payload any) {
	h.publish(threadID, except, event, payload)
}

func (h *Hub) publish(threadID string, except Subscriber, event string, payload any) {
	frame := Frame{Event: event, ThreadID: threadID, Payload: payload}

	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.rooms[threadID]))
	for sub := range h.rooms[threadID] {
		if sub == except {
			continue
		}
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if !sub.Send(frame) {
			h.logger.Warn("slow subscriber dropped frame",
				slog.String("thread_id", threadID), slog.String("event", event))
		}
	}
}

// RoomSize reports the current subscriber count for a thread.
func (h *Hub) RoomSize(threadID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[threadID])
}
