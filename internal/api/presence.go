package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pmeissner/helpline/backend/internal/ingestion"
	"github.com/pmeissner/helpline/backend/internal/presence"
	"github.com/pmeissner/helpline/backend/internal/types"
	"github.com/pmeissner/helpline/backend/internal/websocket"
	"github.com/rs/zerolog"
)

// PresenceHandler provides REST endpoints for agent presence. Status and
// heartbeat writes go through the same event processor as the websocket
// transport so rebalancing edges fire identically on both paths.
type PresenceHandler struct {
	processor ingestion.EventProcessor
	tracker   *presence.Tracker
	agentHub  *websocket.AgentHub
	logger    zerolog.Logger
}

// NewPresenceHandler creates a new PresenceHandler
func NewPresenceHandler(processor ingestion.EventProcessor, tracker *presence.Tracker, agentHub *websocket.AgentHub, logger zerolog.Logger) *PresenceHandler {
	return &PresenceHandler{
		processor: processor,
		tracker:   tracker,
		agentHub:  agentHub,
		logger:    logger.With().Str("component", "presence_api").Logger(),
	}
}

// SetStatus handles POST /api/agents/{agentId}/status
func (h *PresenceHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, `{"error":"agentId is required"}`, http.StatusBadRequest)
		return
	}

	var req struct {
		PersonalStatus types.PersonalStatus `json:"personalStatus"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	sc := types.AgentStatusChange{
		Type:           "status_change",
		AgentID:        agentID,
		PersonalStatus: req.PersonalStatus,
		Timestamp:      time.Now(),
	}
	if err := h.processor.ProcessStatusChange(r.Context(), &sc); err != nil {
		if errors.Is(err, types.ErrInvalidStatus) {
			http.Error(w, `{"error":"invalid personal status"}`, http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to update status")
		http.Error(w, `{"error":"failed to update status"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message":        "status updated",
		"agentId":        agentID,
		"personalStatus": string(req.PersonalStatus),
	})
}

// Heartbeat handles POST /api/agents/{agentId}/heartbeat
func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, `{"error":"agentId is required"}`, http.StatusBadRequest)
		return
	}

	hb := types.AgentHeartbeat{
		Type:      "heartbeat",
		AgentID:   agentID,
		Timestamp: time.Now(),
	}
	if err := h.processor.ProcessHeartbeat(r.Context(), &hb); err != nil {
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to record heartbeat")
		http.Error(w, `{"error":"failed to record heartbeat"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "heartbeat recorded",
		"agentId": agentID,
	})
}

// Logout handles POST /api/agents/{agentId}/logout. The agent goes offline
// whether or not it holds a live websocket; a connected socket is
// force-closed first so a stale connection cannot keep the agent present.
func (h *PresenceHandler) Logout(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, `{"error":"agentId is required"}`, http.StatusBadRequest)
		return
	}

	connected := false
	if h.agentHub != nil {
		// ForceDisconnect processes the disconnect itself when the agent
		// holds a live connection
		connected = h.agentHub.ForceDisconnect(agentID)
	}
	if !connected {
		if err := h.processor.ProcessDisconnect(r.Context(), agentID); err != nil {
			h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to process logout")
			http.Error(w, `{"error":"failed to process logout"}`, http.StatusInternalServerError)
			return
		}
	}

	h.logger.Info().
		Str("agent_id", agentID).
		Bool("was_connected", connected).
		Msg("agent logged out via API")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":      "agent logged out",
		"agentId":      agentID,
		"wasConnected": connected,
	})
}

// Connected handles GET /api/agents/connected
func (h *PresenceHandler) Connected(w http.ResponseWriter, r *http.Request) {
	agents, err := h.tracker.ListConnected(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list connected agents")
		http.Error(w, `{"error":"failed to list agents"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"agents": agents,
		"count":  len(agents),
	})
}
