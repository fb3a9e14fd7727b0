package routing

import "errors"

var (
	// ErrNoAgentsAvailable signals an empty candidate set. Callers treat it
	// as soft degradation, not a failure.
	ErrNoAgentsAvailable = errors.New("no agents available")

	// ErrThreadUnresolved signals that a bot-channel message could not be
	// matched to any thread. The message must not be attached to a guess.
	ErrThreadUnresolved = errors.New("thread unresolved")

	// ErrValidation wraps input problems detected before any state change.
	ErrValidation = errors.New("validation failed")
)
