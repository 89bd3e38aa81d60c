package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pmeissner/helpline/backend/internal/ingestion"
	"github.com/pmeissner/helpline/backend/internal/types"
	"github.com/rs/zerolog"
)

// AgentHub maintains the set of active agent WebSocket connections
type AgentHub struct {
	// Registered agent clients
	agents map[string]*AgentClient // agentID -> client

	// Register requests from agent clients
	register chan *AgentClient

	// Unregister requests from agent clients
	unregister chan *AgentClient

	// Agent registration messages
	agentRegister chan *types.AgentRegister

	// Heartbeat messages from agents
	heartbeat chan *types.AgentHeartbeat

	// Status change messages from agents
	statusChange chan *types.AgentStatusChange

	// Mutex to protect agents map
	mu sync.RWMutex

	// Logger
	logger zerolog.Logger

	// Event processor (for processing presence events)
	processor ingestion.EventProcessor
}

// NewAgentHub creates a new AgentHub
func NewAgentHub(processor ingestion.EventProcessor, logger zerolog.Logger) *AgentHub {
	return &AgentHub{
		agents:        make(map[string]*AgentClient),
		register:      make(chan *AgentClient),
		unregister:    make(chan *AgentClient),
		agentRegister: make(chan *types.AgentRegister, 100),
		heartbeat:     make(chan *types.AgentHeartbeat, 1000),
		statusChange:  make(chan *types.AgentStatusChange, 500),
		logger:        logger,
		processor:     processor,
	}
}

// Run starts the hub's main loop
func (h *AgentHub) Run() {
	ctx := context.Background()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			// Remove existing client with same agentID if any
			if existing, ok := h.agents[client.agentID]; ok {
				existing.Close()
				delete(h.agents, client.agentID)
			}
			h.agents[client.agentID] = client
			total := len(h.agents)
			h.mu.Unlock()

			h.logger.Debug().
				Str("agent_id", client.agentID).
				Int("total_agents", total).
				Msg("agent connected")

		case client := <-h.unregister:
			h.mu.Lock()
			existing, ok := h.agents[client.agentID]
			if ok && existing == client {
				delete(h.agents, client.agentID)
				client.Close()
			}
			total := len(h.agents)
			h.mu.Unlock()

			if ok && existing == client {
				if err := h.processor.ProcessDisconnect(ctx, client.agentID); err != nil {
					h.logger.Error().Err(err).Str("agent_id", client.agentID).Msg("failed to process disconnect")
				}
				h.logger.Debug().
					Str("agent_id", client.agentID).
					Int("total_agents", total).
					Msg("agent disconnected")
			}

		case reg := <-h.agentRegister:
			if err := h.processor.ProcessRegister(ctx, reg); err != nil {
				h.logger.Error().Err(err).Str("agent_id", reg.AgentID).Msg("failed to process register")
			}

		case hb := <-h.heartbeat:
			if err := h.processor.ProcessHeartbeat(ctx, hb); err != nil {
				h.logger.Error().Err(err).Str("agent_id", hb.AgentID).Msg("failed to process heartbeat")
			}

		case sc := <-h.statusChange:
			if err := h.processor.ProcessStatusChange(ctx, sc); err != nil {
				h.logger.Error().Err(err).Str("agent_id", sc.AgentID).Msg("failed to process status change")
			}
		}
	}
}

// ForceDisconnect sends a force_disconnect message to the agent, then closes
// the connection and processes the disconnect server-side. Used by the logout
// endpoint so a stale websocket cannot keep a logged-out agent present.
func (h *AgentHub) ForceDisconnect(agentID string) bool {
	msg := types.ForceDisconnect{
		Type:    "force_disconnect",
		AgentID: agentID,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal force_disconnect")
		return false
	}

	// Send the message first
	h.SendToAgent(agentID, data)

	// Then close the connection
	h.mu.Lock()
	client, ok := h.agents[agentID]
	if ok {
		delete(h.agents, agentID)
		client.Close()
	}
	h.mu.Unlock()

	if ok {
		if err := h.processor.ProcessDisconnect(context.Background(), agentID); err != nil {
			h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to process forced disconnect")
		}
		h.logger.Info().Str("agent_id", agentID).Msg("agent force-disconnected")
	}

	return ok
}

// AgentCount returns the number of connected agents
func (h *AgentHub) AgentCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.agents)
}

// SendToAgent sends a message to a specific agent
func (h *AgentHub) SendToAgent(agentID string, message []byte) bool {
	h.mu.RLock()
	client, ok := h.agents[agentID]
	h.mu.RUnlock()

	if !ok {
		return false
	}

	return client.safeSend(message)
}
