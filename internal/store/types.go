package store

import "time"

// Thread status values. A thread only ever moves open -> closed; a closed
// thread is never reopened, a new one is created instead.
const (
	ThreadStatusOpen   = "open"
	ThreadStatusClosed = "closed"
)

// Message sender roles.
const (
	RoleCustomer = "customer"
	RoleAgent    = "agent"
	RoleSystem   = "system"
)

// Agent activity log event types.
const (
	ActivityOnline         = "online"
	ActivityOffline        = "offline"
	ActivityMessageHandled = "message_handled"
)

// Customer is a web-widget user, either integrated (ExternalID set) or guest.
type Customer struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	SiteOrigin string         `json:"site_origin"`
	ExternalID string         `json:"external_id,omitempty"`
	FullName   string         `json:"full_name,omitempty"`
	Email      string         `json:"email,omitempty"`
	DeviceHash string         `json:"device_hash,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	LastSeenAt time.Time      `json:"last_seen_at"`
	CreatedAt  time.Time      `json:"created_at"`
}

type Category struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Agent is a human operator reachable over the bot channel. HandledCount
// tracks current concurrent open threads; it is maintained by paired atomic
// increment/decrement updates against the row, never read-modify-write.
type Agent struct {
	ID             string    `json:"id"`
	TelegramUserID int64     `json:"telegram_user_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	Online         bool      `json:"is_online"`
	HandledCount   int32     `json:"handled_count"`
	AvgResponseMs  int64     `json:"avg_response_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

type Thread struct {
	ID              string    `json:"id"`
	CustomerID      string    `json:"customer_id"`
	CategoryID      string    `json:"category_id"`
	AssignedAgentID string    `json:"assigned_agent_id,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Message is append-only; rows are never updated after insert.
type Message struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	SenderRole string    `json:"sender_role"`
	SenderID   string    `json:"sender_id,omitempty"`
	Content    string    `json:"content,omitempty"`
	MediaURL   string    `json:"media_url,omitempty"`
	MediaType  string    `json:"media_type,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AgentWorkload is a reporting view of one agent's current load.
type AgentWorkload struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Online        bool   `json:"is_online"`
	HandledCount  int32  `json:"handled_count"`
	ActiveThreads int64  `json:"active_threads"`
}

// CreateAgentParams are the caller-supplied fields for a new agent row.
type CreateAgentParams struct {
	TelegramUserID int64
	Name           string
	Email          string
}

// UpdateAgentParams carries optional profile updates; nil fields are kept.
type UpdateAgentParams struct {
	Name           *string
	Email          *string
	TelegramUserID *int64
}

// CreateCustomerParams covers both guest and integrated customers.
type CreateCustomerParams struct {
	Username   string
	SiteOrigin string
	ExternalID string
	FullName   string
	Email      string
	DeviceHash string
	Metadata   map[string]any
}

// UpdateCustomerProfileParams refreshes an integrated customer on contact.
type UpdateCustomerProfileParams struct {
	ID         string
	Username   string
	FullName   string
	Email      string
	DeviceHash string
	Metadata   map[string]any
}

// InsertMessageParams describes a message to append. Content and MediaURL
// may not both be empty; the caller validates before reaching the store.
type InsertMessageParams struct {
	ThreadID   string
	SenderRole string
	SenderID   string
	Content    string
	MediaURL   string
	MediaType  string
}
