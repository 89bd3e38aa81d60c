package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/pmeissner/helpline/backend/internal/types"
)

// MemoryStore is an in-memory Store used when DynamoDB is disabled and in
// tests. All mutations replace whole records under the lock, matching the
// per-item atomicity of the DynamoDB implementation.
type MemoryStore struct {
	agents  map[string]types.Agent
	tickets map[string]types.Ticket
	actions map[string][]types.AssignmentAction // ticketID -> append-only log
	mode    types.SystemMode
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:  make(map[string]types.Agent),
		tickets: make(map[string]types.Ticket),
		actions: make(map[string][]types.AssignmentAction),
		mode:    types.ModeHITL,
	}
}

func (s *MemoryStore) GetAgent(_ context.Context, agentID string) (*types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return nil, nil
	}
	return &agent, nil
}

func (s *MemoryStore) PutAgent(_ context.Context, agent types.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agents[agent.ID] = agent
	return nil
}

func (s *MemoryStore) ListAgents(_ context.Context) ([]types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]types.Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		agents = append(agents, agent)
	}
	return agents, nil
}

func (s *MemoryStore) GetTicket(_ context.Context, ticketID string) (*types.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ticket, ok := s.tickets[ticketID]
	if !ok {
		return nil, nil
	}
	return &ticket, nil
}

func (s *MemoryStore) PutTicket(_ context.Context, ticket types.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tickets[ticket.ID] = ticket
	return nil
}

func (s *MemoryStore) UpdateAssignment(_ context.Context, ticketID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[ticketID]
	if !ok {
		return types.ErrTicketNotFound
	}

	ticket.AssignedAgentID = agentID
	if agentID != "" && ticket.OriginalAgentID == "" {
		ticket.OriginalAgentID = agentID
	}
	s.tickets[ticketID] = ticket
	return nil
}

func (s *MemoryStore) ListTicketsByAgent(_ context.Context, agentID string) ([]types.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickets := make([]types.Ticket, 0)
	for _, ticket := range s.tickets {
		if ticket.AssignedAgentID == agentID {
			tickets = append(tickets, ticket)
		}
	}
	return tickets, nil
}

func (s *MemoryStore) ListTicketsByOriginalAgent(_ context.Context, agentID string) ([]types.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickets := make([]types.Ticket, 0)
	for _, ticket := range s.tickets {
		if ticket.OriginalAgentID == agentID {
			tickets = append(tickets, ticket)
		}
	}
	return tickets, nil
}

func (s *MemoryStore) ListOrphanedTickets(_ context.Context) ([]types.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickets := make([]types.Ticket, 0)
	for _, ticket := range s.tickets {
		if ticket.AssignedAgentID == "" {
			tickets = append(tickets, ticket)
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
	return tickets, nil
}

func (s *MemoryStore) CountTicketsByAgent(_ context.Context, agentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, ticket := range s.tickets {
		if ticket.AssignedAgentID == agentID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) GetMode(_ context.Context) (types.SystemMode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode, nil
}

func (s *MemoryStore) PutMode(_ context.Context, mode types.SystemMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = mode
	return nil
}

func (s *MemoryStore) AppendAction(_ context.Context, action types.AssignmentAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actions[action.TicketID] = append(s.actions[action.TicketID], action)
	return nil
}

func (s *MemoryStore) ListActions(_ context.Context, ticketID string) ([]types.AssignmentAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.actions[ticketID]
	actions := make([]types.AssignmentAction, len(log))
	copy(actions, log)
	return actions, nil
}
