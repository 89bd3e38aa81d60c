package ingestion

import (
	"context"

	"github.com/pmeissner/helpline/backend/internal/assignment"
	"github.com/pmeissner/helpline/backend/internal/metrics"
	"github.com/pmeissner/helpline/backend/internal/presence"
	"github.com/pmeissner/helpline/backend/internal/types"
	"github.com/rs/zerolog"
)

// DefaultProcessor implements EventProcessor by delegating to the presence
// tracker and triggering the rebalancer on present/idle transitions. This is
// the single path through which every presence event flows, regardless of
// whether it arrived over the websocket or the REST API.
type DefaultProcessor struct {
	tracker    *presence.Tracker
	rebalancer *assignment.Rebalancer
	notifier   Notifier
	logger     zerolog.Logger
}

// NewDefaultProcessor creates a new DefaultProcessor
func NewDefaultProcessor(tracker *presence.Tracker, rebalancer *assignment.Rebalancer, notifier Notifier, logger zerolog.Logger) *DefaultProcessor {
	return &DefaultProcessor{
		tracker:    tracker,
		rebalancer: rebalancer,
		notifier:   notifier,
		logger:     logger,
	}
}

func (p *DefaultProcessor) ProcessRegister(ctx context.Context, reg *types.AgentRegister) error {
	agent, previous, err := p.tracker.Register(ctx, reg.AgentID, reg.DisplayName, reg.PersonalStatus)
	if err != nil {
		return err
	}

	p.logger.Debug().
		Str("agent_id", reg.AgentID).
		Str("personal_status", string(reg.PersonalStatus)).
		Msg("agent registered via processor")

	p.handleEdge(ctx, reg.AgentID, previous, agent.PersonalStatus)
	p.publishRoster(ctx)
	return nil
}

func (p *DefaultProcessor) ProcessHeartbeat(ctx context.Context, hb *types.AgentHeartbeat) error {
	return p.tracker.Heartbeat(ctx, hb.AgentID)
}

func (p *DefaultProcessor) ProcessStatusChange(ctx context.Context, sc *types.AgentStatusChange) error {
	agent, previous, err := p.tracker.SetPersonalStatus(ctx, sc.AgentID, sc.PersonalStatus)
	if err != nil {
		return err
	}

	p.logger.Debug().
		Str("agent_id", sc.AgentID).
		Str("prev_status", string(previous)).
		Str("new_status", string(sc.PersonalStatus)).
		Msg("agent status change via processor")

	p.handleEdge(ctx, sc.AgentID, previous, agent.PersonalStatus)
	p.publishRoster(ctx)
	return nil
}

func (p *DefaultProcessor) ProcessDisconnect(ctx context.Context, agentID string) error {
	if err := p.tracker.MarkDisconnected(ctx, agentID); err != nil {
		return err
	}

	// Unconditional: re-running against an agent whose tickets were already
	// moved on an earlier status-change edge finds nothing to do.
	p.rebalancer.HandleAgentGoingIdle(ctx, agentID)
	p.publishRoster(ctx)
	return nil
}

// handleEdge fires the rebalancing workflow only on a present/idle
// transition, never on a repeat of the same availability class.
func (p *DefaultProcessor) handleEdge(ctx context.Context, agentID string, previous, current types.PersonalStatus) {
	wasPresent := previous.IsPresent()
	isPresent := current.IsPresent()

	switch {
	case wasPresent && !isPresent:
		p.rebalancer.HandleAgentGoingIdle(ctx, agentID)
	case !wasPresent && isPresent:
		p.rebalancer.HandleAgentComingBack(ctx, agentID)
	}
}

func (p *DefaultProcessor) publishRoster(ctx context.Context) {
	agents, err := p.tracker.ListConnected(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to list connected agents for roster update")
		return
	}

	metrics.SetConnectedAgents(len(agents))
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Publish(types.TopicConnectedAgents, types.ConnectedAgentsPayload{Agents: agents}); err != nil {
		p.logger.Error().Err(err).Msg("failed to publish roster update")
	}
}
