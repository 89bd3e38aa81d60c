package ingestion

import (
	"context"

	"github.com/pmeissner/helpline/backend/internal/types"
)

// EventProcessor processes presence events from any transport (agent
// websocket, REST handlers).
type EventProcessor interface {
	ProcessRegister(ctx context.Context, reg *types.AgentRegister) error
	ProcessHeartbeat(ctx context.Context, hb *types.AgentHeartbeat) error
	ProcessStatusChange(ctx context.Context, sc *types.AgentStatusChange) error
	ProcessDisconnect(ctx context.Context, agentID string) error
}

// Notifier pushes events out to dashboard subscribers
type Notifier interface {
	Publish(topic string, payload interface{}) error
}
