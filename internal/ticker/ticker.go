package ticker

import (
	"context"
	"time"

	"github.com/pmeissner/helpline/backend/internal/metrics"
	"github.com/pmeissner/helpline/backend/internal/presence"
	"github.com/pmeissner/helpline/backend/internal/types"
	"github.com/rs/zerolog"
)

// Notifier pushes the snapshot out to dashboard subscribers
type Notifier interface {
	Publish(topic string, payload interface{}) error
}

// Ticker periodically broadcasts the connected-agent roster so dashboards
// converge even when a change notification was dropped. Staleness is
// evaluated at read time, so the snapshot also ages out agents whose
// heartbeats stopped without any explicit event.
type Ticker struct {
	tracker  *presence.Tracker
	notifier Notifier
	interval time.Duration
	logger   zerolog.Logger
}

// NewTicker creates a new Ticker
func NewTicker(tracker *presence.Tracker, notifier Notifier, interval time.Duration, logger zerolog.Logger) *Ticker {
	return &Ticker{
		tracker:  tracker,
		notifier: notifier,
		interval: interval,
		logger:   logger,
	}
}

// Start begins broadcasting roster snapshots
func (t *Ticker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info().Dur("interval", t.interval).Msg("roster ticker started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("roster ticker stopped")
			return

		case <-ticker.C:
			agents, err := t.tracker.ListConnected(ctx)
			if err != nil {
				t.logger.Error().Err(err).Msg("failed to list connected agents")
				continue
			}

			metrics.SetConnectedAgents(len(agents))
			if err := t.notifier.Publish(types.TopicConnectedAgents, types.ConnectedAgentsPayload{Agents: agents}); err != nil {
				t.logger.Error().Err(err).Msg("failed to publish roster snapshot")
				continue
			}

			t.logger.Debug().
				Int("agents", len(agents)).
				Msg("broadcasted roster snapshot")
		}
	}
}
