package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/chatrelay/chatrelay/internal/store"
)

// threadTokenPattern matches an explicit thread token anywhere in free text:
// a hash sign followed by hex digits and dashes, so both full UUIDs and
// truncated hints are caught.
var threadTokenPattern = regexp.MustCompile(`#([0-9a-fA-F-]+)`)

// fullThreadIDLength is the canonical UUID string length. Anything shorter
// is treated as a truncated hint and resolved via prefix lookup.
const fullThreadIDLength = 36

// ThreadFinder is the store surface the resolver needs.
type ThreadFinder interface {
	FindOpenThreadByIDPrefix(ctx context.Context, prefix string) (store.Thread, error)
	LatestOpenThreadForAgent(ctx context.Context, agentID string) (store.Thread, error)
}

// Resolver maps an inbound bot-channel message to the thread it belongs to.
type Resolver struct {
	threads ThreadFinder
	logger  *slog.Logger
}

func NewResolver(log *slog.Logger, threads ThreadFinder) *Resolver {
	return &Resolver{
		threads: threads,
		logger:  log.With(slog.String("service", "resolver")),
	}
}

// Resolve applies the fallback chain in order: explicit token in the message
// text, explicit token in the reply-context text, then the sender's most
// recently updated open thread. It returns ErrThreadUnresolved when every
// strategy fails.
func (r *Resolver) Resolve(ctx context.Context, text, replyContextText, senderAgentID string) (string, error) {
	token := extractThreadToken(text)
	if token == "" {
		token = extractThreadToken(replyContextText)
	}
	if token != "" {
		threadID, err := r.resolveToken(ctx, token)
		if err == nil {
			return threadID, nil
		}
		if !errors.Is(err, store.ErrAmbiguousPrefix) && !store.IsNotFound(err) {
			return "", err
		}
		r.logger.Debug("thread token did not resolve, falling back",
			slog.String("token", token), slog.String("reason", err.Error()))
	}

	thread, err := r.threads.LatestOpenThreadForAgent(ctx, senderAgentID)
	if err != nil {
		if store.IsNotFound(err) {
			return "", ErrThreadUnresolved
		}
		return "", fmt.Errorf("latest open thread lookup: %w", err)
	}
	return thread.ID, nil
}

func (r *Resolver) resolveToken(ctx context.Context, token string) (string, error) {
	if len(token) >= fullThreadIDLength {
		return token, nil
	}
	thread, err := r.threads.FindOpenThreadByIDPrefix(ctx, token)
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}

func extractThreadToken(text string) string {
	if text == "" {
		return ""
	}
	match := threadTokenPattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return match[1]
}
