package routing

import "github.com/chatrelay/chatrelay/internal/store"

// Select picks the candidate with the smallest handled-thread counter. Ties
// are broken by input order: the first candidate seen wins. The function is
// pure; the caller owns the paired assignment write and counter increment.
func Select(candidates []store.Agent) (store.Agent, error) {
	if len(candidates) == 0 {
		return store.Agent{}, ErrNoAgentsAvailable
	}
	best := candidates[0]
	for _, candidate := range candidates[1:] {
		if candidate.HandledCount < best.HandledCount {
			best = candidate
		}
	}
	return best, nil
}

// Reassign applies the Select policy over candidates minus the excluded
// agent. Used when the currently assigned agent is unresponsive; it never
// returns the excluded agent.
func Reassign(candidates []store.Agent, excludeAgentID string) (store.Agent, error) {
	remaining := make([]store.Agent, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ID == excludeAgentID {
			continue
		}
		remaining = append(remaining, candidate)
	}
	return Select(remaining)
}
