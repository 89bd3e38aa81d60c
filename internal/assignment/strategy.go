package assignment

import "github.com/pmeissner/helpline/backend/internal/types"

// Candidate is an available agent together with its current ticket load
type Candidate struct {
	Agent         types.Agent
	ActiveTickets int
}

// SelectionStrategy picks the agent that should own the next ticket
type SelectionStrategy interface {
	Select(candidates []Candidate) *Candidate
}

// LeastLoadedFirst selects the agent with the fewest assigned tickets.
// Ties go to the agent with the most recent activity: an agent who just
// did something is a better bet than one idling at the same load.
type LeastLoadedFirst struct{}

// Select picks the least-loaded candidate, most-recently-active on ties
func (l *LeastLoadedFirst) Select(candidates []Candidate) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	best := &candidates[0]
	for i := 1; i < len(candidates); i++ {
		c := &candidates[i]
		if c.ActiveTickets < best.ActiveTickets {
			best = c
			continue
		}
		if c.ActiveTickets == best.ActiveTickets &&
			c.Agent.LastActivityAt.After(best.Agent.LastActivityAt) {
			best = c
		}
	}
	return best
}
