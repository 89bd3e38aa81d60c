package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pmeissner/helpline/backend/internal/api"
	"github.com/pmeissner/helpline/backend/internal/assignment"
	"github.com/pmeissner/helpline/backend/internal/auth"
	"github.com/pmeissner/helpline/backend/internal/config"
	"github.com/pmeissner/helpline/backend/internal/ingestion"
	"github.com/pmeissner/helpline/backend/internal/mode"
	"github.com/pmeissner/helpline/backend/internal/presence"
	"github.com/pmeissner/helpline/backend/internal/storage"
	"github.com/pmeissner/helpline/backend/internal/suggest"
	"github.com/pmeissner/helpline/backend/internal/ticker"
	"github.com/pmeissner/helpline/backend/internal/websocket"
	"github.com/pmeissner/helpline/backend/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("starting helpline backend server")

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create store (DynamoDB or in-memory depending on DYNAMO_MODE)
	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create store")
	}

	// Create dashboard WebSocket hub
	hub := websocket.NewHub(log.Logger)
	go hub.Run()

	// Presence, mode and assignment engines
	tracker := presence.NewTracker(store, cfg.ActivityTimeout, log.Logger)
	modes := mode.NewController(store, log.Logger)
	engine := assignment.NewEngine(store, store, tracker, modes, log.Logger)
	rebalancer := assignment.NewRebalancer(engine, hub, cfg.ReclaimWindow, cfg.RedistributeCap, cfg.RebalancingEnabled, log.Logger)

	// Single event path shared by the websocket and REST transports
	processor := ingestion.NewDefaultProcessor(tracker, rebalancer, hub, log.Logger)

	// Agent WebSocket hub
	agentHub := websocket.NewAgentHub(processor, log.Logger)
	go agentHub.Run()

	// Periodic roster snapshots for dashboards
	tickerService := ticker.NewTicker(tracker, hub, 5*time.Second, log.Logger)
	go tickerService.Start(ctx)

	// WebSocket handlers
	wsHandler := websocket.NewHandler(hub, cfg, log.Logger)
	agentWSHandler := websocket.NewAgentHandler(agentHub, log.Logger)

	// REST handlers
	suggestClient := suggest.NewClient(cfg.SuggestURL, log.Logger)
	presenceHandler := api.NewPresenceHandler(processor, tracker, agentHub, log.Logger)
	ticketsHandler := api.NewTicketsHandler(engine, store, store, modes, suggestClient, log.Logger)
	adminHandler := api.NewAdminHandler(modes, hub, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	// Agent websocket (agents authenticate via token query parameter)
	r.Get("/ws/agent", agentWSHandler.ServeHTTP)

	// Add auth middleware for protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/ws", wsHandler.ServeHTTP)

		r.Route("/api", func(r chi.Router) {
			r.Route("/agents", func(r chi.Router) {
				r.Get("/connected", presenceHandler.Connected)
				r.Post("/{agentId}/status", presenceHandler.SetStatus)
				r.Post("/{agentId}/heartbeat", presenceHandler.Heartbeat)
				r.Post("/{agentId}/logout", presenceHandler.Logout)
			})

			r.Route("/tickets", func(r chi.Router) {
				r.Post("/", ticketsHandler.Create)
				r.Get("/{ticketId}", ticketsHandler.Get)
				r.Post("/{ticketId}/assign", ticketsHandler.Assign)
				r.Post("/{ticketId}/unassign", ticketsHandler.Unassign)
				r.Get("/{ticketId}/actions", ticketsHandler.Actions)
				r.Post("/{ticketId}/suggest", ticketsHandler.Suggest)
			})

			r.Route("/system", func(r chi.Router) {
				r.Get("/mode", adminHandler.GetMode)
				r.With(api.RequireAdmin).Put("/mode", adminHandler.SetMode)
			})
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Cancel ticker context
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"helpline-backend"}`)
}
