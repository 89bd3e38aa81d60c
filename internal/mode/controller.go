// Package mode holds the single global operating mode. The controller is
// an injected dependency rather than a package-level singleton so tests
// can run with independent mode state in parallel.
package mode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pmeissner/helpline/backend/internal/storage"
	"github.com/pmeissner/helpline/backend/internal/types"
)

// Controller is the single point of truth for the system mode
type Controller struct {
	store  storage.ModeStore
	logger zerolog.Logger
}

// NewController creates a mode controller backed by the given store
func NewController(store storage.ModeStore, logger zerolog.Logger) *Controller {
	return &Controller{
		store:  store,
		logger: logger.With().Str("component", "mode").Logger(),
	}
}

// Get returns the current system mode. Fails only on storage unavailability.
func (c *Controller) Get(ctx context.Context) (types.SystemMode, error) {
	mode, err := c.store.GetMode(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read system mode: %w", err)
	}
	return mode, nil
}

// Set validates and persists a new system mode. The underlying write is a
// single-item put, so concurrent readers never observe a partial value.
func (c *Controller) Set(ctx context.Context, mode types.SystemMode) error {
	if !types.ValidMode(mode) {
		return fmt.Errorf("%w: %q", types.ErrInvalidMode, mode)
	}

	if err := c.store.PutMode(ctx, mode); err != nil {
		c.logger.Warn().Err(err).Str("mode", string(mode)).Msg("mode write failed, retrying")
		if err = c.store.PutMode(ctx, mode); err != nil {
			return fmt.Errorf("failed to persist system mode: %w", err)
		}
	}

	c.logger.Info().Str("mode", string(mode)).Msg("system mode updated")
	return nil
}
