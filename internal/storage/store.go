package storage

import (
	"context"

	"github.com/pmeissner/helpline/backend/internal/types"
)

// PresenceStore is the durable record of agent status and last activity.
// Lookups that find nothing return (nil, nil); absence is not an error.
type PresenceStore interface {
	GetAgent(ctx context.Context, agentID string) (*types.Agent, error)
	// PutAgent is a whole-item upsert; concurrent writers converge on the
	// last committed item rather than interleaving partial field updates.
	PutAgent(ctx context.Context, agent types.Agent) error
	ListAgents(ctx context.Context) ([]types.Agent, error)
}

// TicketStore is the durable record of ticket assignment. Message content
// lives elsewhere; this store only sees ownership and activity timestamps.
type TicketStore interface {
	GetTicket(ctx context.Context, ticketID string) (*types.Ticket, error)
	PutTicket(ctx context.Context, ticket types.Ticket) error
	// UpdateAssignment atomically replaces the ticket's owner. An empty
	// agentID orphans the ticket. OriginalAgentID is set only when the
	// ticket never had a durable owner before.
	UpdateAssignment(ctx context.Context, ticketID, agentID string) error
	ListTicketsByAgent(ctx context.Context, agentID string) ([]types.Ticket, error)
	ListTicketsByOriginalAgent(ctx context.Context, agentID string) ([]types.Ticket, error)
	// ListOrphanedTickets returns unassigned tickets oldest-first so
	// redistribution picks them up in arrival order.
	ListOrphanedTickets(ctx context.Context) ([]types.Ticket, error)
	CountTicketsByAgent(ctx context.Context, agentID string) (int, error)
}

// ModeStore persists the global system mode singleton
type ModeStore interface {
	GetMode(ctx context.Context) (types.SystemMode, error)
	PutMode(ctx context.Context, mode types.SystemMode) error
}

// ActionLog is the append-only assignment audit trail
type ActionLog interface {
	AppendAction(ctx context.Context, action types.AssignmentAction) error
	ListActions(ctx context.Context, ticketID string) ([]types.AssignmentAction, error)
}

// Store combines all durable collections behind one implementation
type Store interface {
	PresenceStore
	TicketStore
	ModeStore
	ActionLog
}
