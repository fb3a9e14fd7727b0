package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chatrelay/chatrelay/internal/store"
)

// Start statuses returned to the web widget.
const (
	StatusAssigned = "assigned"
	StatusNoAgents = "no_agents"
)

const (
	// waitingNotice is persisted as a system message when no agent can be
	// assigned, so the customer sees it in history too.
	waitingNotice = "All of our agents are currently offline. We will respond as soon as someone becomes available."

	closedNotice = "Chat closed"

	// strangerGuidance is the reply to bot-channel senders with no agent
	// record. Their messages are never relayed.
	strangerGuidance = "This bot relays support chats to registered agents. Your account is not registered as an agent."
)

// StateStore is the persistence surface the coordinator depends on.
// *store.Store satisfies it; tests use a fake.
type StateStore interface {
	GetCustomer(ctx context.Context, id string) (store.Customer, error)
	GetCustomerByExternalID(ctx context.Context, externalID, siteOrigin string) (store.Customer, error)
	GetGuestCustomer(ctx context.Context, username, siteOrigin string) (store.Customer, error)
	CreateCustomer(ctx context.Context, params store.CreateCustomerParams) (store.Customer, error)
	UpdateCustomerProfile(ctx context.Context, params store.UpdateCustomerProfileParams) (store.Customer, error)

	GetCategory(ctx context.Context, id string) (store.Category, error)

	GetThread(ctx context.Context, id string) (store.Thread, error)
	FindOpenThread(ctx context.Context, customerID, categoryID string) (store.Thread, error)
	CreateThread(ctx context.Context, customerID, categoryID string) (store.Thread, error)
	AssignAgent(ctx context.Context, threadID, agentID string) error
	TouchThread(ctx context.Context, threadID string) error
	CloseThread(ctx context.Context, threadID string) (string, error)
	FindOpenThreadByIDPrefix(ctx context.Context, prefix string) (store.Thread, error)
	LatestOpenThreadForAgent(ctx context.Context, agentID string) (store.Thread, error)

	ListOnlineAgents(ctx context.Context) ([]store.Agent, error)
	GetAgent(ctx context.Context, id string) (store.Agent, error)
	GetAgentByTelegramUserID(ctx context.Context, telegramUserID int64) (store.Agent, error)
	IncrementHandledCount(ctx context.Context, agentID string) error
	DecrementHandledCount(ctx context.Context, agentID string) error
	RecordAgentActivity(ctx context.Context, agentID, eventType string) error

	InsertMessage(ctx context.Context, params store.InsertMessageParams) (store.Message, error)

	RecordContact(ctx context.Context, customerID, categoryID string) error
}

// RealtimePublisher fans an event out to every web subscriber of a thread.
// Publish never blocks the caller on slow subscribers.
type RealtimePublisher interface {
	Publish(threadID, event string, payload any)
}

// BotSender delivers outbound messages on the bot channel. SendEnvelope
// carries the thread id so the adapter can attach a reply control targeting
// that thread.
type BotSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendEnvelope(ctx context.Context, chatID int64, threadID, mediaURL, mediaType, text string) error
}

// Coordinator owns the cross-channel relay: it starts threads, assigns
// agents, and moves messages between the web and bot channels.
type Coordinator struct {
	store    StateStore
	realtime RealtimePublisher
	bot      BotSender
	resolver *Resolver
	logger   *slog.Logger
}

func NewCoordinator(log *slog.Logger, st StateStore, realtime RealtimePublisher, bot BotSender) *Coordinator {
	return &Coordinator{
		store:    st,
		realtime: realtime,
		bot:      bot,
		resolver: NewResolver(log, st),
		logger:   log.With(slog.String("service", "coordinator")),
	}
}

// ExternalIdentity carries an embedding site's own identifier for the
// customer, plus optional profile fields.
type ExternalIdentity struct {
	ID       string
	Name     string
	Email    string
	Metadata map[string]any
}

// StartInput describes a customer opening (or re-opening) a conversation.
type StartInput struct {
	Username   string
	SiteOrigin string
	CategoryID string
	External   *ExternalIdentity
}

// StartResult reports the thread and its assignment outcome. Status is
// StatusNoAgents when no agent was online; that is not an error.
type StartResult struct {
	ThreadID   string
	CustomerID string
	Username   string
	Status     string
	Agent      *AgentRef
	Notice     string
}

// StartThread resolves or creates the customer, finds or creates the open
// thread for (customer, category), records the contact, and attempts agent
// assignment. A thread that already has an agent keeps it; the assignment
// event is re-emitted so reconnecting widgets converge.
func (c *Coordinator) StartThread(ctx context.Context, in StartInput) (StartResult, error) {
	customer, err := c.resolveCustomer(ctx, in)
	if err != nil {
		return StartResult{}, err
	}

	if _, err := c.store.GetCategory(ctx, in.CategoryID); err != nil {
		if store.IsNotFound(err) {
			return StartResult{}, fmt.Errorf("%w: unknown category", ErrValidation)
		}
		return StartResult{}, fmt.Errorf("load category: %w", err)
	}

	thread, err := c.store.FindOpenThread(ctx, customer.ID, in.CategoryID)
	if err != nil {
		if !store.IsNotFound(err) {
			return StartResult{}, fmt.Errorf("find open thread: %w", err)
		}
		thread, err = c.store.CreateThread(ctx, customer.ID, in.CategoryID)
		if err != nil {
			return StartResult{}, fmt.Errorf("create thread: %w", err)
		}
	}

	if err := c.store.RecordContact(ctx, customer.ID, in.CategoryID); err != nil {
		return StartResult{}, fmt.Errorf("record contact: %w", err)
	}

	result := StartResult{
		ThreadID:   thread.ID,
		CustomerID: customer.ID,
		Username:   customer.Username,
		Status:     StatusAssigned,
	}

	if thread.AssignedAgentID != "" {
		agent, err := c.store.GetAgent(ctx, thread.AssignedAgentID)
		if err != nil {
			return StartResult{}, fmt.Errorf("load assigned agent: %w", err)
		}
		ref := AgentRef{ID: agent.ID, Name: agent.Name}
		c.realtime.Publish(thread.ID, EventAgentAssigned, AgentAssignedPayload{Agent: ref})
		result.Agent = &ref
		return result, nil
	}

	agent, err := c.assignAgent(ctx, thread.ID)
	if err != nil {
		if !errors.Is(err, ErrNoAgentsAvailable) {
			return StartResult{}, err
		}
		if _, err := c.store.InsertMessage(ctx, store.InsertMessageParams{
			ThreadID:   thread.ID,
			SenderRole: store.RoleSystem,
			Content:    waitingNotice,
		}); err != nil {
			return StartResult{}, fmt.Errorf("insert waiting notice: %w", err)
		}
		result.Status = StatusNoAgents
		result.Notice = waitingNotice
		return result, nil
	}

	ref := AgentRef{ID: agent.ID, Name: agent.Name}
	c.realtime.Publish(thread.ID, EventAgentAssigned, AgentAssignedPayload{Agent: ref})
	result.Agent = &ref
	return result, nil
}

func (c *Coordinator) resolveCustomer(ctx context.Context, in StartInput) (store.Customer, error) {
	if in.External != nil && in.External.ID != "" {
		customer, err := c.store.GetCustomerByExternalID(ctx, in.External.ID, in.SiteOrigin)
		if err == nil {
			return c.store.UpdateCustomerProfile(ctx, store.UpdateCustomerProfileParams{
				ID:       customer.ID,
				FullName: in.External.Name,
				Email:    in.External.Email,
				Metadata: in.External.Metadata,
			})
		}
		if !store.IsNotFound(err) {
			return store.Customer{}, fmt.Errorf("lookup customer: %w", err)
		}
		username := in.Username
		if username == "" {
			username = in.External.Name
		}
		return c.store.CreateCustomer(ctx, store.CreateCustomerParams{
			Username:   username,
			SiteOrigin: in.SiteOrigin,
			ExternalID: in.External.ID,
			FullName:   in.External.Name,
			Email:      in.External.Email,
			Metadata:   in.External.Metadata,
		})
	}

	if in.Username == "" {
		return store.Customer{}, fmt.Errorf("%w: username is required for guest customers", ErrValidation)
	}
	customer, err := c.store.GetGuestCustomer(ctx, in.Username, in.SiteOrigin)
	if err == nil {
		return customer, nil
	}
	if !store.IsNotFound(err) {
		return store.Customer{}, fmt.Errorf("lookup guest customer: %w", err)
	}
	return c.store.CreateCustomer(ctx, store.CreateCustomerParams{
		Username:   in.Username,
		SiteOrigin: in.SiteOrigin,
	})
}

// assignAgent selects the least-loaded online agent and performs the paired
// assignment write and counter increment.
func (c *Coordinator) assignAgent(ctx context.Context, threadID string) (store.Agent, error) {
	candidates, err := c.store.ListOnlineAgents(ctx)
	if err != nil {
		return store.Agent{}, fmt.Errorf("list online agents: %w", err)
	}
	agent, err := Select(candidates)
	if err != nil {
		return store.Agent{}, err
	}
	if err := c.store.AssignAgent(ctx, threadID, agent.ID); err != nil {
		return store.Agent{}, fmt.Errorf("assign agent: %w", err)
	}
	if err := c.store.IncrementHandledCount(ctx, agent.ID); err != nil {
		return store.Agent{}, fmt.Errorf("increment handled count: %w", err)
	}
	return agent, nil
}

// MessageInput is a customer-side message for an existing thread.
type MessageInput struct {
	SenderID  string
	Content   string
	MediaURL  string
	MediaType string
}

// RelayCustomerMessage persists a web-channel message, bumps the thread's
// activity timestamp, emits it to web subscribers, and forwards it to the
// assigned agent's bot chat. Delivery failures on the bot channel are logged
// and swallowed; the message is already durable.
func (c *Coordinator) RelayCustomerMessage(ctx context.Context, threadID string, in MessageInput) (store.Message, error) {
	if in.Content == "" && in.MediaURL == "" {
		return store.Message{}, fmt.Errorf("%w: message needs content or media", ErrValidation)
	}
	thread, err := c.store.GetThread(ctx, threadID)
	if err != nil {
		return store.Message{}, fmt.Errorf("load thread: %w", err)
	}

	senderID := in.SenderID
	if senderID == "" {
		senderID = thread.CustomerID
	}
	msg, err := c.store.InsertMessage(ctx, store.InsertMessageParams{
		ThreadID:   thread.ID,
		SenderRole: store.RoleCustomer,
		SenderID:   senderID,
		Content:    in.Content,
		MediaURL:   in.MediaURL,
		MediaType:  in.MediaType,
	})
	if err != nil {
		return store.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if err := c.store.TouchThread(ctx, thread.ID); err != nil {
		return store.Message{}, fmt.Errorf("touch thread: %w", err)
	}

	c.realtime.Publish(thread.ID, EventMessageNew, msg)

	if thread.AssignedAgentID != "" {
		c.forwardToAgent(ctx, thread, msg)
	}
	return msg, nil
}

func (c *Coordinator) forwardToAgent(ctx context.Context, thread store.Thread, msg store.Message) {
	agent, err := c.store.GetAgent(ctx, thread.AssignedAgentID)
	if err != nil {
		c.logger.Warn("forward skipped, assigned agent missing",
			slog.String("thread_id", thread.ID), slog.String("error", err.Error()))
		return
	}
	customer, err := c.store.GetCustomer(ctx, thread.CustomerID)
	if err != nil {
		c.logger.Warn("forward skipped, customer missing",
			slog.String("thread_id", thread.ID), slog.String("error", err.Error()))
		return
	}
	categoryTitle := ""
	if category, err := c.store.GetCategory(ctx, thread.CategoryID); err == nil {
		categoryTitle = category.Title
	}

	senderName := customer.FullName
	if senderName == "" {
		senderName = customer.Username
	}
	envelope := FormatAgentEnvelope(senderName, categoryTitle, thread.ID, msg.Content)

	if err := c.bot.SendEnvelope(ctx, agent.TelegramUserID, thread.ID, msg.MediaURL, msg.MediaType, envelope); err != nil {
		c.logger.Warn("bot delivery failed",
			slog.String("thread_id", thread.ID),
			slog.String("agent_id", agent.ID),
			slog.String("error", err.Error()))
	}
}

// Inbound is a bot-channel update already decoded by the adapter. Both the
// webhook and the polling loop produce this shape.
type Inbound struct {
	TelegramUserID   int64
	ChatID           int64
	Text             string
	MediaURL         string
	MediaType        string
	ReplyContextText string
}

// RelayAgentMessage handles an inbound bot-channel message: authorizes the
// sender as an agent, runs the close command or resolves the target thread,
// persists the reply, and emits it to web subscribers. Unresolvable messages
// are dropped with a warning rather than attached to a guessed thread.
func (c *Coordinator) RelayAgentMessage(ctx context.Context, in Inbound) error {
	agent, err := c.store.GetAgentByTelegramUserID(ctx, in.TelegramUserID)
	if err != nil {
		if store.IsNotFound(err) {
			c.sendBotText(ctx, in.ChatID, strangerGuidance)
			return nil
		}
		return fmt.Errorf("lookup agent: %w", err)
	}

	if strings.EqualFold(strings.TrimSpace(in.Text), "/close") {
		return c.closeLatest(ctx, agent, in.ChatID)
	}

	threadID, err := c.resolver.Resolve(ctx, in.Text, in.ReplyContextText, agent.ID)
	if err != nil {
		if errors.Is(err, ErrThreadUnresolved) {
			c.logger.Warn("dropped unresolvable agent message",
				slog.String("agent_id", agent.ID))
			c.sendBotText(ctx, in.ChatID, "Could not tell which chat this is for. Include the #thread tag from the message header, or reply to it directly.")
			return nil
		}
		return err
	}

	msg, err := c.store.InsertMessage(ctx, store.InsertMessageParams{
		ThreadID:   threadID,
		SenderRole: store.RoleAgent,
		SenderID:   agent.ID,
		Content:    stripThreadToken(in.Text),
		MediaURL:   in.MediaURL,
		MediaType:  in.MediaType,
	})
	if err != nil {
		return fmt.Errorf("insert agent message: %w", err)
	}
	if err := c.store.TouchThread(ctx, threadID); err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}

	c.realtime.Publish(threadID, EventMessageNew, msg)
	// Re-emitted on every agent reply so a widget that missed the original
	// assignment event still learns who is handling the thread.
	c.realtime.Publish(threadID, EventAgentAssigned, AgentAssignedPayload{
		Agent: AgentRef{ID: agent.ID, Name: agent.Name},
	})

	if err := c.store.RecordAgentActivity(ctx, agent.ID, store.ActivityMessageHandled); err != nil {
		c.logger.Warn("activity log write failed", slog.String("error", err.Error()))
	}
	return nil
}

func (c *Coordinator) closeLatest(ctx context.Context, agent store.Agent, chatID int64) error {
	thread, err := c.store.LatestOpenThreadForAgent(ctx, agent.ID)
	if err != nil {
		if store.IsNotFound(err) {
			c.sendBotText(ctx, chatID, "You have no open chat to close.")
			return nil
		}
		return fmt.Errorf("latest open thread: %w", err)
	}
	if err := c.CloseThread(ctx, thread.ID); err != nil {
		return err
	}
	c.sendBotText(ctx, chatID, fmt.Sprintf("Chat #%s closed.", ThreadHint(thread.ID)))
	return nil
}

// CloseThread transitions the thread to closed, notifies web subscribers,
// and releases the assigned agent's workload slot. Closing an already
// closed thread is a no-op so the counter is never decremented twice.
func (c *Coordinator) CloseThread(ctx context.Context, threadID string) error {
	agentID, err := c.store.CloseThread(ctx, threadID)
	if err != nil {
		if store.IsNotFound(err) {
			thread, getErr := c.store.GetThread(ctx, threadID)
			if getErr == nil && thread.Status == store.ThreadStatusClosed {
				return nil
			}
			return fmt.Errorf("close thread: %w", err)
		}
		return fmt.Errorf("close thread: %w", err)
	}

	c.realtime.Publish(threadID, EventChatClosed, ChatClosedPayload{Message: closedNotice})

	if agentID != "" {
		if err := c.store.DecrementHandledCount(ctx, agentID); err != nil {
			return fmt.Errorf("decrement handled count: %w", err)
		}
	}
	return nil
}

// ReassignThread moves an open thread off its current agent onto the least
// loaded other online agent, keeping both workload counters in step.
func (c *Coordinator) ReassignThread(ctx context.Context, threadID string) (AgentRef, error) {
	thread, err := c.store.GetThread(ctx, threadID)
	if err != nil {
		return AgentRef{}, fmt.Errorf("load thread: %w", err)
	}
	if thread.Status != store.ThreadStatusOpen {
		return AgentRef{}, fmt.Errorf("%w: thread is not open", ErrValidation)
	}

	candidates, err := c.store.ListOnlineAgents(ctx)
	if err != nil {
		return AgentRef{}, fmt.Errorf("list online agents: %w", err)
	}
	agent, err := Reassign(candidates, thread.AssignedAgentID)
	if err != nil {
		return AgentRef{}, err
	}

	if err := c.store.AssignAgent(ctx, thread.ID, agent.ID); err != nil {
		return AgentRef{}, fmt.Errorf("assign agent: %w", err)
	}
	if thread.AssignedAgentID != "" {
		if err := c.store.DecrementHandledCount(ctx, thread.AssignedAgentID); err != nil {
			return AgentRef{}, fmt.Errorf("decrement handled count: %w", err)
		}
	}
	if err := c.store.IncrementHandledCount(ctx, agent.ID); err != nil {
		return AgentRef{}, fmt.Errorf("increment handled count: %w", err)
	}

	ref := AgentRef{ID: agent.ID, Name: agent.Name}
	c.realtime.Publish(thread.ID, EventAgentAssigned, AgentAssignedPayload{Agent: ref})
	return ref, nil
}

// ReplyCallback answers an inline reply button tap with addressing guidance.
func (c *Coordinator) ReplyCallback(ctx context.Context, chatID int64, threadID string) {
	c.sendBotText(ctx, chatID, ReplyGuidance(threadID))
}

func (c *Coordinator) sendBotText(ctx context.Context, chatID int64, text string) {
	if err := c.bot.SendText(ctx, chatID, text); err != nil {
		c.logger.Warn("bot delivery failed",
			slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
	}
}

// stripThreadToken removes a leading explicit thread tag from agent text so
// customers do not see routing syntax. Tokens elsewhere in the text stay.
func stripThreadToken(text string) string {
	trimmed := strings.TrimSpace(text)
	loc := threadTokenPattern.FindStringIndex(trimmed)
	if loc == nil || loc[0] != 0 {
		return trimmed
	}
	return strings.TrimSpace(trimmed[loc[1]:])
}
