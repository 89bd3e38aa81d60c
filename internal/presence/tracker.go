// Package presence maintains the authoritative mapping from agent to
// current availability. Staleness is evaluated at read time from the
// last-activity timestamp rather than by a background expiry job, so a
// fresh heartbeat can never race a timer.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmeissner/helpline/backend/internal/metrics"
	"github.com/pmeissner/helpline/backend/internal/storage"
	"github.com/pmeissner/helpline/backend/internal/types"
)

// Tracker reads and writes the presence store and computes the derived
// available/online/connected views. It never triggers rebalancing itself;
// callers detect status edges from the previous value it returns.
type Tracker struct {
	store           storage.PresenceStore
	activityTimeout time.Duration
	logger          zerolog.Logger
	now             func() time.Time
}

// NewTracker creates a presence tracker backed by the given store
func NewTracker(store storage.PresenceStore, activityTimeout time.Duration, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:           store,
		activityTimeout: activityTimeout,
		logger:          logger.With().Str("component", "presence").Logger(),
		now:             time.Now,
	}
}

// SetPersonalStatus validates and records an agent's declared status,
// bumping last activity. It returns the updated agent and the previously
// declared status so the caller can detect a present/idle transition.
// Unknown agents are provisioned on first write.
func (t *Tracker) SetPersonalStatus(ctx context.Context, agentID string, ps types.PersonalStatus) (*types.Agent, types.PersonalStatus, error) {
	return t.write(ctx, agentID, "", ps)
}

// Register records a connecting agent's declared status along with its
// display name. Behaves like SetPersonalStatus otherwise.
func (t *Tracker) Register(ctx context.Context, agentID, displayName string, ps types.PersonalStatus) (*types.Agent, types.PersonalStatus, error) {
	return t.write(ctx, agentID, displayName, ps)
}

func (t *Tracker) write(ctx context.Context, agentID, displayName string, ps types.PersonalStatus) (*types.Agent, types.PersonalStatus, error) {
	status, ok := types.StatusFor(ps)
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", types.ErrInvalidStatus, ps)
	}

	existing, err := t.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read agent %s: %w", agentID, err)
	}

	agent := types.Agent{
		ID:             agentID,
		Status:         status,
		PersonalStatus: ps,
		LastActivityAt: t.now(),
	}
	agent.DisplayName = displayName
	previous := types.PersonalOffline
	if existing != nil {
		if displayName == "" {
			agent.DisplayName = existing.DisplayName
		}
		previous = existing.PersonalStatus
	}

	if err := t.putAgent(ctx, agent); err != nil {
		return nil, "", err
	}

	metrics.RecordPresenceUpdate(string(status))
	t.logger.Debug().
		Str("agent_id", agentID).
		Str("personal_status", string(ps)).
		Str("status", string(status)).
		Msg("personal status updated")

	return &agent, previous, nil
}

// Heartbeat bumps the agent's last-activity timestamp without touching
// stored status. Heartbeats from agents that were never registered create
// an offline placeholder record so the timestamp is not lost.
func (t *Tracker) Heartbeat(ctx context.Context, agentID string) error {
	agent, err := t.store.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to read agent %s: %w", agentID, err)
	}

	if agent == nil {
		agent = &types.Agent{
			ID:             agentID,
			Status:         types.StatusOffline,
			PersonalStatus: types.PersonalOffline,
		}
	}
	agent.LastActivityAt = t.now()

	if err := t.putAgent(ctx, *agent); err != nil {
		return err
	}

	metrics.RecordHeartbeat()
	return nil
}

// MarkDisconnected forces the agent offline after a transport-level
// disconnect. Idempotent.
func (t *Tracker) MarkDisconnected(ctx context.Context, agentID string) error {
	agent, err := t.store.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to read agent %s: %w", agentID, err)
	}
	if agent == nil {
		return nil
	}
	if agent.Status == types.StatusOffline && agent.PersonalStatus == types.PersonalOffline {
		return nil
	}

	agent.Status = types.StatusOffline
	agent.PersonalStatus = types.PersonalOffline
	agent.LastActivityAt = t.now()

	if err := t.putAgent(ctx, *agent); err != nil {
		return err
	}

	metrics.RecordPresenceUpdate(string(types.StatusOffline))
	t.logger.Debug().Str("agent_id", agentID).Msg("agent marked disconnected")
	return nil
}

// EnsureAgent provisions an offline placeholder record for an unknown
// agent id. Idempotent; existing agents are left untouched.
func (t *Tracker) EnsureAgent(ctx context.Context, agentID string) error {
	agent, err := t.store.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to read agent %s: %w", agentID, err)
	}
	if agent != nil {
		return nil
	}

	return t.putAgent(ctx, types.Agent{
		ID:             agentID,
		Status:         types.StatusOffline,
		PersonalStatus: types.PersonalOffline,
		LastActivityAt: t.now(),
	})
}

// ListAvailable returns agents that can take new tickets: online and not stale
func (t *Tracker) ListAvailable(ctx context.Context) ([]types.Agent, error) {
	return t.list(ctx, func(a *types.Agent) bool {
		return a.Status == types.StatusOnline
	})
}

// ListOnline returns online and busy agents that are not stale
func (t *Tracker) ListOnline(ctx context.Context) ([]types.Agent, error) {
	return t.list(ctx, func(a *types.Agent) bool {
		return a.Status == types.StatusOnline || a.Status == types.StatusBusy
	})
}

// ListConnected returns every non-offline, non-stale agent for UI display
func (t *Tracker) ListConnected(ctx context.Context) ([]types.Agent, error) {
	return t.list(ctx, func(a *types.Agent) bool {
		return a.Status != types.StatusOffline
	})
}

// ListIdle returns agents that are not present: away, offline, or stale.
// Rebalancing uses it to find owners whose tickets may need to move.
func (t *Tracker) ListIdle(ctx context.Context) ([]types.Agent, error) {
	agents, err := t.store.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	now := t.now()
	result := make([]types.Agent, 0, len(agents))
	for i := range agents {
		agent := &agents[i]
		if agent.Stale(now, t.activityTimeout) || !agent.PersonalStatus.IsPresent() {
			result = append(result, *agent)
		}
	}
	return result, nil
}

func (t *Tracker) list(ctx context.Context, keep func(*types.Agent) bool) ([]types.Agent, error) {
	agents, err := t.store.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	now := t.now()
	result := make([]types.Agent, 0, len(agents))
	for i := range agents {
		agent := &agents[i]
		if agent.Stale(now, t.activityTimeout) {
			continue
		}
		if keep(agent) {
			result = append(result, *agent)
		}
	}
	return result, nil
}

// putAgent writes the whole agent record, retrying once on failure before
// surfacing a typed presence write error.
func (t *Tracker) putAgent(ctx context.Context, agent types.Agent) error {
	if err := t.store.PutAgent(ctx, agent); err != nil {
		metrics.RecordStoreRetry("presence")
		t.logger.Warn().Err(err).Str("agent_id", agent.ID).Msg("presence write failed, retrying")
		if err = t.store.PutAgent(ctx, agent); err != nil {
			return fmt.Errorf("%w: %v", types.ErrPresenceWrite, err)
		}
	}
	return nil
}
