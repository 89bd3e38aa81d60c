package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pmeissner/helpline/backend/internal/assignment"
	"github.com/pmeissner/helpline/backend/internal/auth"
	"github.com/pmeissner/helpline/backend/internal/ingestion"
	"github.com/pmeissner/helpline/backend/internal/mode"
	"github.com/pmeissner/helpline/backend/internal/presence"
	"github.com/pmeissner/helpline/backend/internal/storage"
	"github.com/pmeissner/helpline/backend/internal/types"
)

type apiEnv struct {
	store    *storage.MemoryStore
	tracker  *presence.Tracker
	modes    *mode.Controller
	engine   *assignment.Engine
	presence *PresenceHandler
	tickets  *TicketsHandler
	admin    *AdminHandler
	router   chi.Router
}

func newAPIEnv() *apiEnv {
	logger := zerolog.Nop()
	store := storage.NewMemoryStore()
	tracker := presence.NewTracker(store, 90*time.Second, logger)
	modes := mode.NewController(store, logger)
	engine := assignment.NewEngine(store, store, tracker, modes, logger)
	rebalancer := assignment.NewRebalancer(engine, nil, 5*time.Minute, 2, true, logger)
	processor := ingestion.NewDefaultProcessor(tracker, rebalancer, nil, logger)

	env := &apiEnv{
		store:    store,
		tracker:  tracker,
		modes:    modes,
		engine:   engine,
		presence: NewPresenceHandler(processor, tracker, nil, logger),
		tickets:  NewTicketsHandler(engine, store, store, modes, nil, logger),
		admin:    NewAdminHandler(modes, nil, logger),
	}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Route("/agents", func(r chi.Router) {
			r.Get("/connected", env.presence.Connected)
			r.Post("/{agentId}/status", env.presence.SetStatus)
			r.Post("/{agentId}/heartbeat", env.presence.Heartbeat)
			r.Post("/{agentId}/logout", env.presence.Logout)
		})
		r.Route("/tickets", func(r chi.Router) {
			r.Post("/", env.tickets.Create)
			r.Get("/{ticketId}", env.tickets.Get)
			r.Post("/{ticketId}/assign", env.tickets.Assign)
			r.Post("/{ticketId}/unassign", env.tickets.Unassign)
			r.Get("/{ticketId}/actions", env.tickets.Actions)
		})
		r.Route("/system", func(r chi.Router) {
			r.Get("/mode", env.admin.GetMode)
			r.With(RequireAdmin).Put("/mode", env.admin.SetMode)
		})
	})
	env.router = r
	return env
}

func (e *apiEnv) do(method, path, body string, claims *auth.Claims) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if claims != nil {
		req = req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, claims))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestSetStatusAndConnected(t *testing.T) {
	env := newAPIEnv()

	rec := env.do(http.MethodPost, "/api/agents/agent-1/status", `{"personalStatus":"online"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/api/agents/connected", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Agents []types.Agent `json:"agents"`
		Count  int           `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 1 || len(resp.Agents) != 1 || resp.Agents[0].ID != "agent-1" {
		t.Errorf("expected agent-1 connected, got %+v", resp)
	}
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	env := newAPIEnv()

	rec := env.do(http.MethodPost, "/api/agents/agent-1/status", `{"personalStatus":"napping"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHeartbeatDoesNotChangeStatus(t *testing.T) {
	env := newAPIEnv()
	ctx := context.Background()

	env.do(http.MethodPost, "/api/agents/agent-1/status", `{"personalStatus":"afk"}`, nil)

	rec := env.do(http.MethodPost, "/api/agents/agent-1/heartbeat", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	agent, err := env.store.GetAgent(ctx, "agent-1")
	if err != nil || agent == nil {
		t.Fatalf("expected agent record: %v", err)
	}
	if agent.PersonalStatus != types.PersonalAFK {
		t.Errorf("expected heartbeat to preserve afk, got %q", agent.PersonalStatus)
	}
}

func TestLogoutWithoutConnection(t *testing.T) {
	env := newAPIEnv()
	ctx := context.Background()

	env.do(http.MethodPost, "/api/agents/agent-1/status", `{"personalStatus":"online"}`, nil)

	rec := env.do(http.MethodPost, "/api/agents/agent-1/logout", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	agent, err := env.store.GetAgent(ctx, "agent-1")
	if err != nil || agent == nil {
		t.Fatalf("expected agent record: %v", err)
	}
	if agent.Status != types.StatusOffline {
		t.Errorf("expected offline after logout, got %q", agent.Status)
	}
}

func TestCreateTicketAutoAssigns(t *testing.T) {
	env := newAPIEnv()
	ctx := context.Background()

	err := env.store.PutAgent(ctx, types.Agent{
		ID:             "agent-1",
		Status:         types.StatusOnline,
		PersonalStatus: types.PersonalOnline,
		LastActivityAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("failed to seed agent: %v", err)
	}

	rec := env.do(http.MethodPost, "/api/tickets/", `{"ticketId":"t-1"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["assignedTo"] != "agent-1" {
		t.Errorf("expected ticket assigned to agent-1, got %q", resp["assignedTo"])
	}
}

func TestCreateTicketWithNobodyAvailable(t *testing.T) {
	env := newAPIEnv()

	rec := env.do(http.MethodPost, "/api/tickets/", `{"ticketId":"t-1"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["assignedTo"] != "" {
		t.Errorf("expected orphaned ticket, got assignee %q", resp["assignedTo"])
	}
}

func TestCreateDuplicateTicketConflicts(t *testing.T) {
	env := newAPIEnv()

	if rec := env.do(http.MethodPost, "/api/tickets/", `{"ticketId":"t-1"}`, nil); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/api/tickets/", `{"ticketId":"t-1"}`, nil); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate, got %d", rec.Code)
	}
}

func TestAssignUnknownTicketReturns404(t *testing.T) {
	env := newAPIEnv()

	rec := env.do(http.MethodPost, "/api/tickets/nope/assign", `{"agentId":"agent-1"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAssignAndActions(t *testing.T) {
	env := newAPIEnv()

	env.do(http.MethodPost, "/api/tickets/", `{"ticketId":"t-1"}`, nil)

	rec := env.do(http.MethodPost, "/api/tickets/t-1/assign", `{"agentId":"agent-1","actorId":"agent-1"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/api/tickets/t-1/actions", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Actions []types.AssignmentAction `json:"actions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse actions: %v", err)
	}
	if len(resp.Actions) != 1 {
		t.Fatalf("expected one action, got %d", len(resp.Actions))
	}
	if resp.Actions[0].Reason != types.ReasonAssigned {
		t.Errorf("expected reason assigned, got %q", resp.Actions[0].Reason)
	}
}

func TestUnassignUnknownTicketSucceeds(t *testing.T) {
	env := newAPIEnv()

	rec := env.do(http.MethodPost, "/api/tickets/nope/unassign", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for idempotent unassign, got %d", rec.Code)
	}
}

func TestGetModeDefaultsToHITL(t *testing.T) {
	env := newAPIEnv()

	rec := env.do(http.MethodGet, "/api/system/mode", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp types.SystemModePayload
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Mode != types.ModeHITL {
		t.Errorf("expected default mode hitl, got %q", resp.Mode)
	}
}

func TestSetModeRequiresAdmin(t *testing.T) {
	env := newAPIEnv()

	body := `{"mode":"autopilot"}`

	rec := env.do(http.MethodPut, "/api/system/mode", body, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 without claims, got %d", rec.Code)
	}

	viewer := &auth.Claims{Email: "viewer@helpline.local", Role: "viewer"}
	rec = env.do(http.MethodPut, "/api/system/mode", body, viewer)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for viewer, got %d", rec.Code)
	}

	admin := &auth.Claims{Email: "ops@helpline.local", Role: "admin"}
	rec = env.do(http.MethodPut, "/api/system/mode", body, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/api/system/mode", "", nil)
	var resp types.SystemModePayload
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Mode != types.ModeAutopilot {
		t.Errorf("expected mode autopilot after update, got %q", resp.Mode)
	}
}

func TestSetModeRejectsUnknownMode(t *testing.T) {
	env := newAPIEnv()

	admin := &auth.Claims{Email: "ops@helpline.local", Role: "admin"}
	rec := env.do(http.MethodPut, "/api/system/mode", `{"mode":"manual"}`, admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown mode, got %d", rec.Code)
	}
}
