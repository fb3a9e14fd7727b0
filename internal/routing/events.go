package routing

// Event names published to the web real-time channel.
const (
	EventMessageNew    = "message:new"
	EventChatClosed    = "chat:closed"
	EventAgentAssigned = "agent:assigned"
	EventTypingStart   = "typing:start"
	EventTypingStop    = "typing:stop"
)

// AgentRef identifies an agent in event payloads without exposing channel
// contact details.
type AgentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AgentAssignedPayload struct {
	Agent AgentRef `json:"agent"`
}

type ChatClosedPayload struct {
	Message string `json:"message"`
}

type TypingPayload struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id,omitempty"`
}
