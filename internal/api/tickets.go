package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pmeissner/helpline/backend/internal/assignment"
	"github.com/pmeissner/helpline/backend/internal/mode"
	"github.com/pmeissner/helpline/backend/internal/storage"
	"github.com/pmeissner/helpline/backend/internal/suggest"
	"github.com/pmeissner/helpline/backend/internal/types"
	"github.com/rs/zerolog"
)

// TicketsHandler provides REST endpoints for ticket lifecycle and assignment
type TicketsHandler struct {
	engine  *assignment.Engine
	tickets storage.TicketStore
	actions storage.ActionLog
	modes   *mode.Controller
	suggest *suggest.Client
	logger  zerolog.Logger
}

// NewTicketsHandler creates a new TicketsHandler
func NewTicketsHandler(engine *assignment.Engine, tickets storage.TicketStore, actions storage.ActionLog, modes *mode.Controller, suggestClient *suggest.Client, logger zerolog.Logger) *TicketsHandler {
	return &TicketsHandler{
		engine:  engine,
		tickets: tickets,
		actions: actions,
		modes:   modes,
		suggest: suggestClient,
		logger:  logger.With().Str("component", "tickets_api").Logger(),
	}
}

// Create handles POST /api/tickets. The new ticket is routed to the best
// available agent immediately; with nobody available or the system off it
// is created orphaned.
func (h *TicketsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TicketID string `json:"ticketId,omitempty"`
	}
	if r.Body != nil {
		// An empty body is a valid request for an auto-generated id
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	ticketID := req.TicketID
	if ticketID == "" {
		ticketID = uuid.New().String()
	}

	existing, err := h.tickets.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.logger.Error().Err(err).Str("ticket_id", ticketID).Msg("failed to read ticket")
		http.Error(w, `{"error":"failed to create ticket"}`, http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, `{"error":"ticket already exists"}`, http.StatusConflict)
		return
	}

	now := time.Now()
	ticket := types.Ticket{
		ID:             ticketID,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := h.tickets.PutTicket(r.Context(), ticket); err != nil {
		h.logger.Error().Err(err).Str("ticket_id", ticketID).Msg("failed to persist ticket")
		http.Error(w, `{"error":"failed to create ticket"}`, http.StatusInternalServerError)
		return
	}

	agent, err := h.engine.AutoAssign(r.Context(), ticketID)
	if err != nil {
		// The ticket exists either way; report it with no owner
		h.logger.Error().Err(err).Str("ticket_id", ticketID).Msg("auto-assign failed for new ticket")
	}

	assignedTo := ""
	if agent != nil {
		assignedTo = agent.ID
	}

	h.logger.Info().
		Str("ticket_id", ticketID).
		Str("assigned_to", assignedTo).
		Msg("ticket created")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"ticketId":   ticketID,
		"assignedTo": assignedTo,
	})
}

// Assign handles POST /api/tickets/{ticketId}/assign
func (h *TicketsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	var req struct {
		AgentID string `json:"agentId"`
		ActorID string `json:"actorId,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" {
		http.Error(w, `{"error":"agentId is required"}`, http.StatusBadRequest)
		return
	}
	actorID := req.ActorID
	if actorID == "" {
		actorID = req.AgentID
	}

	ticket, err := h.engine.Assign(r.Context(), ticketID, req.AgentID, actorID)
	if err != nil {
		if errors.Is(err, types.ErrTicketNotFound) {
			http.Error(w, `{"error":"ticket not found"}`, http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("ticket_id", ticketID).Msg("failed to assign ticket")
		http.Error(w, `{"error":"failed to assign ticket"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message":    "ticket assigned",
		"ticketId":   ticket.ID,
		"assignedTo": ticket.AssignedAgentID,
	})
}

// Unassign handles POST /api/tickets/{ticketId}/unassign. Unassigning an
// already-orphaned or unknown ticket succeeds with nothing to do.
func (h *TicketsHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	var req struct {
		ActorID string `json:"actorId,omitempty"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	actorID := req.ActorID
	if actorID == "" {
		actorID = types.ActorSystem
	}

	if err := h.engine.Unassign(r.Context(), ticketID, actorID); err != nil {
		h.logger.Error().Err(err).Str("ticket_id", ticketID).Msg("failed to unassign ticket")
		http.Error(w, `{"error":"failed to unassign ticket"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message":  "ticket unassigned",
		"ticketId": ticketID,
	})
}

// Get handles GET /api/tickets/{ticketId}
func (h *TicketsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	ticket, err := h.tickets.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.logger.Error().Err(err).Str("ticket_id", ticketID).Msg("failed to read ticket")
		http.Error(w, `{"error":"failed to read ticket"}`, http.StatusInternalServerError)
		return
	}
	if ticket == nil {
		http.Error(w, `{"error":"ticket not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ticket)
}

// Actions handles GET /api/tickets/{ticketId}/actions
func (h *TicketsHandler) Actions(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	actions, err := h.actions.ListActions(r.Context(), ticketID)
	if err != nil {
		h.logger.Error().Err(err).Str("ticket_id", ticketID).Msg("failed to list actions")
		http.Error(w, `{"error":"failed to list actions"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ticketId": ticketID,
		"actions":  actions,
	})
}

// Suggest handles POST /api/tickets/{ticketId}/suggest by proxying to the
// reply-suggestion service. Unavailable while the system mode is off.
func (h *TicketsHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	m, err := h.modes.Get(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read system mode")
		http.Error(w, `{"error":"failed to read system mode"}`, http.StatusInternalServerError)
		return
	}
	if m == types.ModeOff {
		http.Error(w, `{"error":"response pipeline is off"}`, http.StatusConflict)
		return
	}

	ticket, err := h.tickets.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.logger.Error().Err(err).Str("ticket_id", ticketID).Msg("failed to read ticket")
		http.Error(w, `{"error":"failed to read ticket"}`, http.StatusInternalServerError)
		return
	}
	if ticket == nil {
		http.Error(w, `{"error":"ticket not found"}`, http.StatusNotFound)
		return
	}

	h.suggest.Proxy(w, r, http.MethodPost, "/suggest/"+ticketID)
}
