package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pmeissner/helpline/backend/internal/auth"
	"github.com/pmeissner/helpline/backend/internal/ingestion"
	"github.com/pmeissner/helpline/backend/internal/mode"
	"github.com/pmeissner/helpline/backend/internal/types"
	"github.com/rs/zerolog"
)

// AdminHandler exposes the system mode controls
type AdminHandler struct {
	modes    *mode.Controller
	notifier ingestion.Notifier
	logger   zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(modes *mode.Controller, notifier ingestion.Notifier, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		modes:    modes,
		notifier: notifier,
		logger:   logger.With().Str("component", "admin_api").Logger(),
	}
}

// RequireAdmin middleware — only admin role allowed
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok || !auth.HasRole(claims, "admin") {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"admin role required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetMode handles GET /api/system/mode
func (h *AdminHandler) GetMode(w http.ResponseWriter, r *http.Request) {
	m, err := h.modes.Get(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read system mode")
		http.Error(w, `{"error":"failed to read system mode"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(types.SystemModePayload{Mode: m})
}

// SetMode handles PUT /api/system/mode. Mode changes take effect on the
// next assignment decision; in-flight operations finish under the mode
// they started with.
func (h *AdminHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req types.SystemModePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := h.modes.Set(r.Context(), req.Mode); err != nil {
		if errors.Is(err, types.ErrInvalidMode) {
			http.Error(w, `{"error":"invalid system mode"}`, http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Msg("failed to set system mode")
		http.Error(w, `{"error":"failed to set system mode"}`, http.StatusInternalServerError)
		return
	}

	if h.notifier != nil {
		if err := h.notifier.Publish(types.TopicSystemMode, types.SystemModePayload{Mode: req.Mode}); err != nil {
			h.logger.Error().Err(err).Msg("failed to publish mode change")
		}
	}

	actor := "unknown"
	if claims, ok := auth.GetUserFromContext(r.Context()); ok {
		actor = claims.Email
	}
	h.logger.Info().
		Str("mode", string(req.Mode)).
		Str("actor", actor).
		Msg("system mode changed")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(types.SystemModePayload{Mode: req.Mode})
}
