package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chatrelay/chatrelay/internal/store"
)

// fakeStore is an in-memory StateStore for coordinator and resolver tests.
type fakeStore struct {
	mu        sync.Mutex
	customers map[string]store.Customer
	agents    map[string]store.Agent
	threads   map[string]store.Thread
	messages  []store.Message
	contacts  map[string]int
	activity  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		customers: map[string]store.Customer{},
		agents:    map[string]store.Agent{},
		threads:   map[string]store.Thread{},
		contacts:  map[string]int{},
	}
}

func (f *fakeStore) addAgent(a store.Agent) store.Agent {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now()
	f.agents[a.ID] = a
	return a
}

func (f *fakeStore) addCustomer(c store.Customer) store.Customer {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	f.customers[c.ID] = c
	return c
}

func (f *fakeStore) addThread(t store.Thread) store.Thread {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = store.ThreadStatusOpen
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
	f.threads[t.ID] = t
	return t
}

func (f *fakeStore) GetCustomer(_ context.Context, id string) (store.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return store.Customer{}, pgx.ErrNoRows
	}
	return c, nil
}

func (f *fakeStore) GetCustomerByExternalID(_ context.Context, externalID, siteOrigin string) (store.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.customers {
		if c.ExternalID == externalID && c.SiteOrigin == siteOrigin {
			return c, nil
		}
	}
	return store.Customer{}, pgx.ErrNoRows
}

func (f *fakeStore) GetGuestCustomer(_ context.Context, username, siteOrigin string) (store.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.customers {
		if c.ExternalID == "" && c.Username == username && c.SiteOrigin == siteOrigin {
			return c, nil
		}
	}
	return store.Customer{}, pgx.ErrNoRows
}

func (f *fakeStore) CreateCustomer(_ context.Context, params store.CreateCustomerParams) (store.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := store.Customer{
		ID:         uuid.NewString(),
		Username:   params.Username,
		SiteOrigin: params.SiteOrigin,
		ExternalID: params.ExternalID,
		FullName:   params.FullName,
		Email:      params.Email,
		Metadata:   params.Metadata,
	}
	f.customers[c.ID] = c
	return c, nil
}

func (f *fakeStore) UpdateCustomerProfile(_ context.Context, params store.UpdateCustomerProfileParams) (store.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[params.ID]
	if !ok {
		return store.Customer{}, pgx.ErrNoRows
	}
	if params.FullName != "" {
		c.FullName = params.FullName
	}
	if params.Email != "" {
		c.Email = params.Email
	}
	if params.Metadata != nil {
		c.Metadata = params.Metadata
	}
	f.customers[c.ID] = c
	return c, nil
}

func (f *fakeStore) GetCategory(_ context.Context, id string) (store.Category, error) {
	return store.Category{ID: id, Title: "Support"}, nil
}

func (f *fakeStore) GetThread(_ context.Context, id string) (store.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[id]
	if !ok {
		return store.Thread{}, pgx.ErrNoRows
	}
	return t, nil
}

func (f *fakeStore) FindOpenThread(_ context.Context, customerID, categoryID string) (store.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.threads {
		if t.CustomerID == customerID && t.CategoryID == categoryID && t.Status == store.ThreadStatusOpen {
			return t, nil
		}
	}
	return store.Thread{}, pgx.ErrNoRows
}

func (f *fakeStore) CreateThread(_ context.Context, customerID, categoryID string) (store.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := store.Thread{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		CategoryID: categoryID,
		Status:     store.ThreadStatusOpen,
		UpdatedAt:  time.Now(),
	}
	f.threads[t.ID] = t
	return t, nil
}

func (f *fakeStore) AssignAgent(_ context.Context, threadID, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[threadID]
	if !ok {
		return pgx.ErrNoRows
	}
	t.AssignedAgentID = agentID
	f.threads[threadID] = t
	return nil
}

func (f *fakeStore) TouchThread(_ context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[threadID]
	if !ok {
		return pgx.ErrNoRows
	}
	t.UpdatedAt = time.Now()
	f.threads[threadID] = t
	return nil
}

func (f *fakeStore) CloseThread(_ context.Context, threadID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[threadID]
	if !ok || t.Status != store.ThreadStatusOpen {
		return "", pgx.ErrNoRows
	}
	t.Status = store.ThreadStatusClosed
	f.threads[threadID] = t
	return t.AssignedAgentID, nil
}

func (f *fakeStore) FindOpenThreadByIDPrefix(_ context.Context, prefix string) (store.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matches []store.Thread
	for _, t := range f.threads {
		if t.Status == store.ThreadStatusOpen && strings.HasPrefix(t.ID, prefix) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return store.Thread{}, pgx.ErrNoRows
	case 1:
		return matches[0], nil
	default:
		return store.Thread{}, store.ErrAmbiguousPrefix
	}
}

func (f *fakeStore) LatestOpenThreadForAgent(_ context.Context, agentID string) (store.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best store.Thread
	found := false
	for _, t := range f.threads {
		if t.Status != store.ThreadStatusOpen || t.AssignedAgentID != agentID {
			continue
		}
		if !found || t.UpdatedAt.After(best.UpdatedAt) {
			best = t
			found = true
		}
	}
	if !found {
		return store.Thread{}, pgx.ErrNoRows
	}
	return best, nil
}

func (f *fakeStore) ListOnlineAgents(_ context.Context) ([]store.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var online []store.Agent
	for _, a := range f.agents {
		if a.Online {
			online = append(online, a)
		}
	}
	// handled_count asc, created_at asc, matching the SQL ordering
	for i := 1; i < len(online); i++ {
		for j := i; j > 0; j-- {
			a, b := online[j-1], online[j]
			if b.HandledCount < a.HandledCount ||
				(b.HandledCount == a.HandledCount && b.CreatedAt.Before(a.CreatedAt)) {
				online[j-1], online[j] = b, a
			}
		}
	}
	return online, nil
}

func (f *fakeStore) GetAgent(_ context.Context, id string) (store.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	if !ok {
		return store.Agent{}, pgx.ErrNoRows
	}
	return a, nil
}

func (f *fakeStore) GetAgentByTelegramUserID(_ context.Context, telegramUserID int64) (store.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.agents {
		if a.TelegramUserID == telegramUserID {
			return a, nil
		}
	}
	return store.Agent{}, pgx.ErrNoRows
}

func (f *fakeStore) IncrementHandledCount(_ context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[agentID]
	if !ok {
		return pgx.ErrNoRows
	}
	a.HandledCount++
	f.agents[agentID] = a
	return nil
}

func (f *fakeStore) DecrementHandledCount(_ context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[agentID]
	if !ok {
		return pgx.ErrNoRows
	}
	if a.HandledCount > 0 {
		a.HandledCount--
	}
	f.agents[agentID] = a
	return nil
}

func (f *fakeStore) RecordAgentActivity(_ context.Context, agentID, eventType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, agentID+":"+eventType)
	return nil
}

func (f *fakeStore) InsertMessage(_ context.Context, params store.InsertMessageParams) (store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.threads[params.ThreadID]; !ok {
		return store.Message{}, fmt.Errorf("insert message: unknown thread %s", params.ThreadID)
	}
	m := store.Message{
		ID:         uuid.NewString(),
		ThreadID:   params.ThreadID,
		SenderRole: params.SenderRole,
		SenderID:   params.SenderID,
		Content:    params.Content,
		MediaURL:   params.MediaURL,
		MediaType:  params.MediaType,
		CreatedAt:  time.Now(),
	}
	f.messages = append(f.messages, m)
	return m, nil
}

func (f *fakeStore) RecordContact(_ context.Context, customerID, categoryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contacts[customerID+":"+categoryID]++
	return nil
}

type publishedEvent struct {
	ThreadID string
	Event    string
	Payload  any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(threadID, event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{ThreadID: threadID, Event: event, Payload: payload})
}

func (p *fakePublisher) byEvent(event string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type sentBotMessage struct {
	ChatID   int64
	Text     string
	MediaURL string
	ThreadID string
}

type fakeBot struct {
	mu   sync.Mutex
	sent []sentBotMessage
	err  error
}

func (b *fakeBot) SendText(_ context.Context, chatID int64, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, sentBotMessage{ChatID: chatID, Text: text})
	return nil
}

func (b *fakeBot) SendEnvelope(_ context.Context, chatID int64, threadID, mediaURL, _ string, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, sentBotMessage{ChatID: chatID, Text: text, MediaURL: mediaURL, ThreadID: threadID})
	return nil
}
