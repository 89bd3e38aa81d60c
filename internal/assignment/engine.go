// Package assignment decides and records which agent owns which ticket,
// and re-balances ownership when agents come and go.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pmeissner/helpline/backend/internal/metrics"
	"github.com/pmeissner/helpline/backend/internal/mode"
	"github.com/pmeissner/helpline/backend/internal/presence"
	"github.com/pmeissner/helpline/backend/internal/storage"
	"github.com/pmeissner/helpline/backend/internal/types"
)

// Engine performs ticket ownership mutations against the ticket store.
// Every decision re-reads current state; there is no in-process cache, so
// staleness checks and load counts always see fresh data.
type Engine struct {
	tickets  storage.TicketStore
	actions  storage.ActionLog
	presence *presence.Tracker
	modes    *mode.Controller
	strategy SelectionStrategy
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEngine creates an assignment engine
func NewEngine(tickets storage.TicketStore, actions storage.ActionLog, tracker *presence.Tracker, modes *mode.Controller, logger zerolog.Logger) *Engine {
	return &Engine{
		tickets:  tickets,
		actions:  actions,
		presence: tracker,
		modes:    modes,
		strategy: &LeastLoadedFirst{},
		logger:   logger.With().Str("component", "assignment").Logger(),
		now:      time.Now,
	}
}

// BestAvailableAgent selects the available agent with the fewest assigned
// tickets, excluding the given agent ids. A nil result means the available
// set is empty and the ticket should stay orphaned; it is not an error.
func (e *Engine) BestAvailableAgent(ctx context.Context, exclude ...string) (*types.Agent, error) {
	available, err := e.presence.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	candidates := make([]Candidate, 0, len(available))
	for _, agent := range available {
		if excluded[agent.ID] {
			continue
		}
		count, err := e.tickets.CountTicketsByAgent(ctx, agent.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count tickets for %s: %w", agent.ID, err)
		}
		candidates = append(candidates, Candidate{Agent: agent, ActiveTickets: count})
	}

	best := e.strategy.Select(candidates)
	if best == nil {
		return nil, nil
	}
	return &best.Agent, nil
}

// Assign sets the ticket's owner unconditionally, used for explicit
// agent-initiated claims. The ticket must exist; the agent does not, since
// unknown agent ids are provisioned on the fly.
func (e *Engine) Assign(ctx context.Context, ticketID, agentID, actorID string) (*types.Ticket, error) {
	ticket, err := e.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to read ticket %s: %w", ticketID, err)
	}
	if ticket == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrTicketNotFound, ticketID)
	}

	reason := types.ReasonAssigned
	if ticket.AssignedAgentID != "" && ticket.AssignedAgentID != agentID {
		reason = types.ReasonReassigned
	}

	return e.assign(ctx, ticket, agentID, actorID, reason)
}

// Unassign clears the ticket's owner. Calling it on an already-orphaned
// ticket is a no-op with the same observable result.
func (e *Engine) Unassign(ctx context.Context, ticketID, actorID string) error {
	ticket, err := e.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("failed to read ticket %s: %w", ticketID, err)
	}
	if ticket == nil || ticket.Orphaned() {
		return nil
	}

	if err := e.updateAssignment(ctx, ticketID, ""); err != nil {
		return err
	}

	e.appendAction(ctx, ticketID, actorID, "", types.ReasonOrphaned)
	metrics.RecordAssignment(string(types.ReasonOrphaned))
	e.logger.Debug().
		Str("ticket_id", ticketID).
		Str("previous_agent", ticket.AssignedAgentID).
		Msg("ticket unassigned")
	return nil
}

// AutoAssign routes a new or orphaned ticket to the best available agent.
// When the system mode is off, or no agent is available, the ticket stays
// orphaned and the returned agent is nil.
func (e *Engine) AutoAssign(ctx context.Context, ticketID string) (*types.Agent, error) {
	currentMode, err := e.modes.Get(ctx)
	if err != nil {
		return nil, err
	}
	if currentMode == types.ModeOff {
		return nil, nil
	}

	agent, err := e.BestAvailableAgent(ctx)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, nil
	}

	if _, err := e.Assign(ctx, ticketID, agent.ID, types.ActorSystem); err != nil {
		return nil, err
	}
	return agent, nil
}

// assign performs the ownership write with an explicit audit reason
func (e *Engine) assign(ctx context.Context, ticket *types.Ticket, agentID, actorID string, reason types.ActionReason) (*types.Ticket, error) {
	if err := e.presence.EnsureAgent(ctx, agentID); err != nil {
		return nil, err
	}

	if err := e.updateAssignment(ctx, ticket.ID, agentID); err != nil {
		return nil, err
	}

	updated := *ticket
	updated.AssignedAgentID = agentID
	if updated.OriginalAgentID == "" {
		updated.OriginalAgentID = agentID
	}

	e.appendAction(ctx, ticket.ID, actorID, agentID, reason)
	metrics.RecordAssignment(string(reason))
	e.logger.Debug().
		Str("ticket_id", ticket.ID).
		Str("agent_id", agentID).
		Str("reason", string(reason)).
		Msg("ticket assigned")

	return &updated, nil
}

// updateAssignment writes the ownership change, retrying once on failure
// before surfacing a typed assignment write error.
func (e *Engine) updateAssignment(ctx context.Context, ticketID, agentID string) error {
	err := e.tickets.UpdateAssignment(ctx, ticketID, agentID)
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrTicketNotFound) {
		return err
	}

	metrics.RecordStoreRetry("assignment")
	e.logger.Warn().Err(err).Str("ticket_id", ticketID).Msg("assignment write failed, retrying")
	if err = e.tickets.UpdateAssignment(ctx, ticketID, agentID); err != nil {
		if errors.Is(err, types.ErrTicketNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", types.ErrAssignmentWrite, err)
	}
	return nil
}

// appendAction records one audit entry. The log is for traceability only,
// so a failed append is logged and does not roll back the assignment.
func (e *Engine) appendAction(ctx context.Context, ticketID, actorID, newAgentID string, reason types.ActionReason) {
	action := types.AssignmentAction{
		TicketID:   ticketID,
		ActionID:   uuid.New().String(),
		ActorID:    actorID,
		NewAgentID: newAgentID,
		Reason:     reason,
		Timestamp:  e.now(),
	}

	if err := e.actions.AppendAction(ctx, action); err != nil {
		if err = e.actions.AppendAction(ctx, action); err != nil {
			e.logger.Error().Err(err).
				Str("ticket_id", ticketID).
				Str("reason", string(reason)).
				Msg("failed to append assignment action")
		}
	}
}
