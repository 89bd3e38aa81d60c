package assignment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmeissner/helpline/backend/internal/mode"
	"github.com/pmeissner/helpline/backend/internal/presence"
	"github.com/pmeissner/helpline/backend/internal/storage"
	"github.com/pmeissner/helpline/backend/internal/types"
)

const testActivityTimeout = 90 * time.Second

type testEnv struct {
	store   *storage.MemoryStore
	tracker *presence.Tracker
	modes   *mode.Controller
	engine  *Engine
}

func newTestEnv() *testEnv {
	store := storage.NewMemoryStore()
	tracker := presence.NewTracker(store, testActivityTimeout, zerolog.Nop())
	modes := mode.NewController(store, zerolog.Nop())
	engine := NewEngine(store, store, tracker, modes, zerolog.Nop())
	return &testEnv{store: store, tracker: tracker, modes: modes, engine: engine}
}

func (e *testEnv) addAvailableAgent(t *testing.T, id string, lastActivity time.Time) {
	t.Helper()
	err := e.store.PutAgent(context.Background(), types.Agent{
		ID:             id,
		Status:         types.StatusOnline,
		PersonalStatus: types.PersonalOnline,
		LastActivityAt: lastActivity,
	})
	if err != nil {
		t.Fatalf("failed to add agent %s: %v", id, err)
	}
}

func (e *testEnv) addTicket(t *testing.T, id, agentID string, createdAt time.Time) {
	t.Helper()
	err := e.store.PutTicket(context.Background(), types.Ticket{
		ID:              id,
		AssignedAgentID: agentID,
		OriginalAgentID: agentID,
		CreatedAt:       createdAt,
		LastActivityAt:  createdAt,
	})
	if err != nil {
		t.Fatalf("failed to add ticket %s: %v", id, err)
	}
}

func TestBestAvailableAgentPicksLeastLoaded(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now()

	env.addAvailableAgent(t, "agent-a", now)
	env.addAvailableAgent(t, "agent-b", now)
	env.addTicket(t, "t-1", "agent-b", now)
	env.addTicket(t, "t-2", "agent-b", now)
	env.addTicket(t, "t-3", "agent-b", now)

	best, err := env.engine.BestAvailableAgent(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best == nil || best.ID != "agent-a" {
		t.Errorf("expected agent-a (0 tickets), got %+v", best)
	}
}

func TestBestAvailableAgentTieBreakMostRecentlyActive(t *testing.T) {
	env := newTestEnv()
	now := time.Now()

	env.addAvailableAgent(t, "agent-idle", now.Add(-time.Minute))
	env.addAvailableAgent(t, "agent-active", now.Add(-time.Second))

	best, err := env.engine.BestAvailableAgent(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best == nil || best.ID != "agent-active" {
		t.Errorf("expected most recently active agent to win the tie, got %+v", best)
	}
}

func TestBestAvailableAgentEmptySet(t *testing.T) {
	env := newTestEnv()

	best, err := env.engine.BestAvailableAgent(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best != nil {
		t.Errorf("expected nil with no available agents, got %+v", best)
	}
}

func TestBestAvailableAgentExcludes(t *testing.T) {
	env := newTestEnv()
	now := time.Now()
	env.addAvailableAgent(t, "agent-a", now)

	best, err := env.engine.BestAvailableAgent(context.Background(), "agent-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best != nil {
		t.Errorf("expected nil when the only agent is excluded, got %+v", best)
	}
}

func TestAssignUnknownTicket(t *testing.T) {
	env := newTestEnv()

	_, err := env.engine.Assign(context.Background(), "missing", "agent-a", "agent-a")
	if !errors.Is(err, types.ErrTicketNotFound) {
		t.Errorf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestAssignProvisionsUnknownAgent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addTicket(t, "t-1", "", time.Now())

	ticket, err := env.engine.Assign(ctx, "t-1", "never-registered", "never-registered")
	if err != nil {
		t.Fatalf("expected assignment to unknown agent to succeed: %v", err)
	}
	if ticket.AssignedAgentID != "never-registered" {
		t.Errorf("expected owner never-registered, got %q", ticket.AssignedAgentID)
	}

	agent, _ := env.store.GetAgent(ctx, "never-registered")
	if agent == nil {
		t.Fatal("expected agent to be provisioned")
	}
	if agent.Status != types.StatusOffline {
		t.Errorf("expected provisioned agent offline, got %s", agent.Status)
	}
}

func TestAssignReasonDerivation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.store.PutTicket(ctx, types.Ticket{ID: "t-1", CreatedAt: time.Now()})

	env.engine.Assign(ctx, "t-1", "agent-a", "agent-a")
	env.engine.Assign(ctx, "t-1", "agent-b", "agent-b")

	actions, _ := env.store.ListActions(ctx, "t-1")
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(actions))
	}
	if actions[0].Reason != types.ReasonAssigned {
		t.Errorf("expected first action assigned, got %s", actions[0].Reason)
	}
	if actions[1].Reason != types.ReasonReassigned {
		t.Errorf("expected second action reassigned, got %s", actions[1].Reason)
	}
}

func TestUnassignIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addTicket(t, "t-1", "agent-a", time.Now())

	if err := env.engine.Unassign(ctx, "t-1", "agent-a"); err != nil {
		t.Fatalf("unassign failed: %v", err)
	}
	ticket, _ := env.store.GetTicket(ctx, "t-1")
	if !ticket.Orphaned() {
		t.Fatal("expected orphaned ticket")
	}
	actions, _ := env.store.ListActions(ctx, "t-1")
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}

	// Second unassign: same observable result, no extra audit entry
	if err := env.engine.Unassign(ctx, "t-1", "agent-a"); err != nil {
		t.Fatalf("second unassign failed: %v", err)
	}
	actions, _ = env.store.ListActions(ctx, "t-1")
	if len(actions) != 1 {
		t.Errorf("expected still 1 action after repeat unassign, got %d", len(actions))
	}

	// Unknown tickets are also a no-op
	if err := env.engine.Unassign(ctx, "missing", "agent-a"); err != nil {
		t.Errorf("expected no error for unknown ticket, got %v", err)
	}
}

func TestAutoAssignModeOff(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addAvailableAgent(t, "agent-a", time.Now())
	env.addTicket(t, "t-1", "", time.Now())
	env.modes.Set(ctx, types.ModeOff)

	agent, err := env.engine.AutoAssign(ctx, "t-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agent != nil {
		t.Errorf("expected no assignment in off mode, got %+v", agent)
	}
	ticket, _ := env.store.GetTicket(ctx, "t-1")
	if !ticket.Orphaned() {
		t.Error("expected ticket to stay orphaned in off mode")
	}

	// Explicit manual assignment is still permitted in off mode
	if _, err := env.engine.Assign(ctx, "t-1", "agent-a", "agent-a"); err != nil {
		t.Errorf("expected manual assign to work in off mode: %v", err)
	}
}

func TestAutoAssignNoCandidates(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addTicket(t, "t-1", "", time.Now())

	agent, err := env.engine.AutoAssign(ctx, "t-1")
	if err != nil {
		t.Fatalf("empty available set must not be an error: %v", err)
	}
	if agent != nil {
		t.Errorf("expected nil agent, got %+v", agent)
	}
}

func TestAutoAssignRoutesToBestAgent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now()
	env.addAvailableAgent(t, "agent-a", now)
	env.addAvailableAgent(t, "agent-b", now.Add(-time.Minute))
	env.addTicket(t, "t-busy", "agent-b", now)
	env.addTicket(t, "t-1", "", now)

	agent, err := env.engine.AutoAssign(ctx, "t-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agent == nil || agent.ID != "agent-a" {
		t.Errorf("expected agent-a, got %+v", agent)
	}

	ticket, _ := env.store.GetTicket(ctx, "t-1")
	if ticket.AssignedAgentID != "agent-a" {
		t.Errorf("expected durable assignment to agent-a, got %q", ticket.AssignedAgentID)
	}
	if ticket.OriginalAgentID != "agent-a" {
		t.Errorf("expected original agent recorded, got %q", ticket.OriginalAgentID)
	}
}

func TestConcurrentAssignSingleOwner(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addTicket(t, "t-1", "", time.Now())

	var wg sync.WaitGroup
	for _, agentID := range []string{"agent-a", "agent-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := env.engine.Assign(ctx, "t-1", id, id); err != nil {
				t.Errorf("assign %s failed: %v", id, err)
			}
		}(agentID)
	}
	wg.Wait()

	ticket, _ := env.store.GetTicket(ctx, "t-1")
	if ticket.AssignedAgentID != "agent-a" && ticket.AssignedAgentID != "agent-b" {
		t.Errorf("expected a single consistent owner, got %q", ticket.AssignedAgentID)
	}
}

// failingTicketStore fails UpdateAssignment a configured number of times
type failingTicketStore struct {
	*storage.MemoryStore
	failures int
}

func (f *failingTicketStore) UpdateAssignment(ctx context.Context, ticketID, agentID string) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("transient store failure")
	}
	return f.MemoryStore.UpdateAssignment(ctx, ticketID, agentID)
}

func TestAssignRetriedOnce(t *testing.T) {
	mem := storage.NewMemoryStore()
	store := &failingTicketStore{MemoryStore: mem, failures: 1}
	tracker := presence.NewTracker(mem, testActivityTimeout, zerolog.Nop())
	engine := NewEngine(store, mem, tracker, mode.NewController(mem, zerolog.Nop()), zerolog.Nop())

	ctx := context.Background()
	mem.PutTicket(ctx, types.Ticket{ID: "t-1", CreatedAt: time.Now()})

	if _, err := engine.Assign(ctx, "t-1", "agent-a", "agent-a"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestAssignFailsAfterRetry(t *testing.T) {
	mem := storage.NewMemoryStore()
	store := &failingTicketStore{MemoryStore: mem, failures: 2}
	tracker := presence.NewTracker(mem, testActivityTimeout, zerolog.Nop())
	engine := NewEngine(store, mem, tracker, mode.NewController(mem, zerolog.Nop()), zerolog.Nop())

	ctx := context.Background()
	mem.PutTicket(ctx, types.Ticket{ID: "t-1", CreatedAt: time.Now()})

	_, err := engine.Assign(ctx, "t-1", "agent-a", "agent-a")
	if !errors.Is(err, types.ErrAssignmentWrite) {
		t.Errorf("expected ErrAssignmentWrite, got %v", err)
	}

	// State must be unchanged after a surfaced failure
	ticket, _ := mem.GetTicket(ctx, "t-1")
	if !ticket.Orphaned() {
		t.Errorf("expected ticket left orphaned, got owner %q", ticket.AssignedAgentID)
	}
}

func TestLeastLoadedFirstSelection(t *testing.T) {
	strategy := &LeastLoadedFirst{}
	now := time.Now()

	candidates := []Candidate{
		{Agent: types.Agent{ID: "agent-1", LastActivityAt: now}, ActiveTickets: 2},
		{Agent: types.Agent{ID: "agent-2", LastActivityAt: now.Add(-time.Minute)}, ActiveTickets: 0},
		{Agent: types.Agent{ID: "agent-3", LastActivityAt: now}, ActiveTickets: 1},
	}

	selected := strategy.Select(candidates)
	if selected == nil {
		t.Fatal("expected a candidate to be selected")
	}
	if selected.Agent.ID != "agent-2" {
		t.Errorf("expected agent-2 (least loaded), got %s", selected.Agent.ID)
	}
}

func TestLeastLoadedFirstEmpty(t *testing.T) {
	strategy := &LeastLoadedFirst{}
	if strategy.Select(nil) != nil {
		t.Error("expected nil for empty candidate list")
	}
}
