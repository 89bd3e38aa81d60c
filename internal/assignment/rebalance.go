package assignment

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmeissner/helpline/backend/internal/metrics"
	"github.com/pmeissner/helpline/backend/internal/types"
)

// Notifier pushes presence and assignment events to connected clients.
// Delivery is at-most-once; clients re-fetch state on reconnect.
type Notifier interface {
	Publish(topic string, payload interface{}) error
}

// Outcome is the result of one attempted ticket move during a rebalance.
// A non-nil Err means this ticket was skipped; earlier moves stay applied.
type Outcome struct {
	TicketID  string
	FromAgent string
	ToAgent   string
	Reason    types.ActionReason
	Err       error
}

// Rebalancer orchestrates bulk ticket movement on presence transitions.
// It runs only on a genuine present/idle edge, never on heartbeats, and
// each per-ticket move is independently atomic, so an interrupted run can
// simply be re-triggered.
type Rebalancer struct {
	engine        *Engine
	notifier      Notifier
	reclaimWindow time.Duration
	cap           int
	enabled       bool
	logger        zerolog.Logger
	now           func() time.Time
}

// NewRebalancer creates a rebalancing workflow on top of the engine
func NewRebalancer(engine *Engine, notifier Notifier, reclaimWindow time.Duration, cap int, enabled bool, logger zerolog.Logger) *Rebalancer {
	return &Rebalancer{
		engine:        engine,
		notifier:      notifier,
		reclaimWindow: reclaimWindow,
		cap:           cap,
		enabled:       enabled,
		logger:        logger.With().Str("component", "rebalance").Logger(),
		now:           time.Now,
	}
}

// HandleAgentGoingIdle hands the departing agent's tickets to the best
// available agents. When nobody can take a ticket it stays with the idle
// agent, but an orphaned-intent audit record is written so the ticket is
// visible to later redistribution rather than silently stranded.
func (r *Rebalancer) HandleAgentGoingIdle(ctx context.Context, agentID string) []Outcome {
	if !r.enabled {
		return nil
	}
	metrics.RecordRebalance("going_idle")

	owned, err := r.engine.tickets.ListTicketsByAgent(ctx, agentID)
	if err != nil {
		r.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to list tickets for idle agent")
		return nil
	}

	outcomes := make([]Outcome, 0, len(owned))
	for _, ticket := range owned {
		candidate, err := r.engine.BestAvailableAgent(ctx, agentID)
		if err != nil {
			outcomes = append(outcomes, Outcome{TicketID: ticket.ID, FromAgent: agentID, Err: err})
			continue
		}

		if candidate == nil {
			// Nobody to take it; leave ownership untouched but leave a trace.
			r.engine.appendAction(ctx, ticket.ID, types.ActorSystem, "", types.ReasonOrphaned)
			outcomes = append(outcomes, Outcome{TicketID: ticket.ID, FromAgent: agentID, Reason: types.ReasonOrphaned})
			continue
		}

		if _, err := r.engine.assign(ctx, &ticket, candidate.ID, types.ActorSystem, types.ReasonReassigned); err != nil {
			outcomes = append(outcomes, Outcome{TicketID: ticket.ID, FromAgent: agentID, Err: err})
			continue
		}
		outcomes = append(outcomes, Outcome{
			TicketID:  ticket.ID,
			FromAgent: agentID,
			ToAgent:   candidate.ID,
			Reason:    types.ReasonReassigned,
		})
	}

	r.logger.Info().
		Str("agent_id", agentID).
		Int("tickets", len(owned)).
		Msg("agent going idle, tickets rebalanced")

	r.publishMoves(agentID, outcomes)
	return outcomes
}

// HandleAgentComingBack first reclaims the agent's original tickets that
// nobody is actively working, then gradually redistributes orphaned
// tickets across all available agents.
func (r *Rebalancer) HandleAgentComingBack(ctx context.Context, agentID string) []Outcome {
	if !r.enabled {
		return nil
	}
	metrics.RecordRebalance("coming_back")

	outcomes := r.reclaim(ctx, agentID)
	outcomes = append(outcomes, r.redistribute(ctx)...)

	r.logger.Info().
		Str("agent_id", agentID).
		Int("moves", len(outcomes)).
		Msg("agent back, tickets rebalanced")

	r.publishMoves(agentID, outcomes)
	return outcomes
}

// reclaim returns tickets originally owned by the returning agent, unless
// the current owner touched them within the reclaim window. Continuity of
// relationship matters, but not enough to steal a live conversation.
func (r *Rebalancer) reclaim(ctx context.Context, agentID string) []Outcome {
	original, err := r.engine.tickets.ListTicketsByOriginalAgent(ctx, agentID)
	if err != nil {
		r.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to list original tickets")
		return nil
	}

	var outcomes []Outcome
	cutoff := r.now().Add(-r.reclaimWindow)
	for _, ticket := range original {
		if ticket.AssignedAgentID == "" || ticket.AssignedAgentID == agentID {
			continue
		}
		if ticket.LastActivityAt.After(cutoff) {
			continue // actively worked, leave it alone
		}

		from := ticket.AssignedAgentID
		if _, err := r.engine.assign(ctx, &ticket, agentID, types.ActorSystem, types.ReasonReclaimed); err != nil {
			outcomes = append(outcomes, Outcome{TicketID: ticket.ID, FromAgent: from, Err: err})
			continue
		}
		outcomes = append(outcomes, Outcome{
			TicketID:  ticket.ID,
			FromAgent: from,
			ToAgent:   agentID,
			Reason:    types.ReasonReclaimed,
		})
	}
	return outcomes
}

// redistribute hands orphaned tickets to available agents in arrival
// order, at most cap per agent per invocation, so a large backlog never
// gets dumped entirely on the first agent to reconnect. Tickets stranded
// with an idle owner past the reclaim window count as orphaned here: the
// window gives the original agent first claim, after that anyone can take
// them.
func (r *Rebalancer) redistribute(ctx context.Context) []Outcome {
	orphans, err := r.engine.tickets.ListOrphanedTickets(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list orphaned tickets")
		return nil
	}
	orphans = append(orphans, r.staleOwned(ctx)...)

	var outcomes []Outcome
	handed := make(map[string]int)
	for _, ticket := range orphans {
		capped := make([]string, 0, len(handed))
		for id, n := range handed {
			if n >= r.cap {
				capped = append(capped, id)
			}
		}

		candidate, err := r.engine.BestAvailableAgent(ctx, capped...)
		if err != nil {
			outcomes = append(outcomes, Outcome{TicketID: ticket.ID, Err: err})
			continue
		}
		if candidate == nil {
			break // everyone is capped or unavailable
		}

		from := ticket.AssignedAgentID
		if _, err := r.engine.assign(ctx, &ticket, candidate.ID, types.ActorSystem, types.ReasonRedistributed); err != nil {
			outcomes = append(outcomes, Outcome{TicketID: ticket.ID, FromAgent: from, Err: err})
			continue
		}
		handed[candidate.ID]++
		outcomes = append(outcomes, Outcome{
			TicketID:  ticket.ID,
			FromAgent: from,
			ToAgent:   candidate.ID,
			Reason:    types.ReasonRedistributed,
		})
	}
	return outcomes
}

// staleOwned finds tickets still held by idle agents and untouched beyond
// the reclaim window. Going idle with nobody available leaves ownership in
// place, so without this sweep those tickets would stay stranded until the
// owner returned.
func (r *Rebalancer) staleOwned(ctx context.Context) []types.Ticket {
	idle, err := r.engine.presence.ListIdle(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list idle agents")
		return nil
	}

	cutoff := r.now().Add(-r.reclaimWindow)
	var stale []types.Ticket
	for _, agent := range idle {
		owned, err := r.engine.tickets.ListTicketsByAgent(ctx, agent.ID)
		if err != nil {
			r.logger.Error().Err(err).Str("agent_id", agent.ID).Msg("failed to list tickets for idle agent")
			continue
		}
		for _, ticket := range owned {
			if !ticket.LastActivityAt.After(cutoff) {
				stale = append(stale, ticket)
			}
		}
	}
	return stale
}

// publishMoves pushes a tickets-reassigned event for successful moves
func (r *Rebalancer) publishMoves(triggerAgent string, outcomes []Outcome) {
	if r.notifier == nil {
		return
	}

	moves := make([]types.TicketMove, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		moves = append(moves, types.TicketMove{
			TicketID:  o.TicketID,
			FromAgent: o.FromAgent,
			ToAgent:   o.ToAgent,
			Reason:    o.Reason,
		})
	}
	if len(moves) == 0 {
		return
	}

	payload := types.TicketsReassignedPayload{TriggerAgent: triggerAgent, Moves: moves}
	if err := r.notifier.Publish(types.TopicTicketsReassigned, payload); err != nil {
		r.logger.Error().Err(err).Msg("failed to publish reassignment event")
	}
}
