package types

import "time"

// Websocket messages exchanged with connected agents. Every message carries
// a type discriminator so the agent client can route on it.

// AgentRegister is sent when an agent first connects
type AgentRegister struct {
	Type           string         `json:"type"` // "register"
	AgentID        string         `json:"agentId"`
	DisplayName    string         `json:"displayName,omitempty"`
	PersonalStatus PersonalStatus `json:"personalStatus"`
}

// AgentHeartbeat is sent from agent to backend periodically to keep the
// agent from going stale; it never changes stored status.
type AgentHeartbeat struct {
	Type      string    `json:"type"` // "heartbeat"
	AgentID   string    `json:"agentId"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentStatusChange is sent from agent to backend on a declared status change
type AgentStatusChange struct {
	Type           string         `json:"type"` // "status_change"
	AgentID        string         `json:"agentId"`
	PersonalStatus PersonalStatus `json:"personalStatus"`
	Timestamp      time.Time      `json:"timestamp"`
}

// ServerAck is sent from backend to agent as acknowledgment
type ServerAck struct {
	Type    string `json:"type"` // "ack"
	AgentID string `json:"agentId"`
}

// ForceDisconnect tells an agent its session was terminated server-side
type ForceDisconnect struct {
	Type    string `json:"type"` // "force_disconnect"
	AgentID string `json:"agentId"`
}

// Dashboard notification topics. At-most-once delivery; dashboard clients
// re-fetch authoritative state on reconnect.
const (
	TopicConnectedAgents   = "connected-agents-update"
	TopicTicketsReassigned = "tickets-reassigned"
	TopicSystemMode        = "system-mode-update"
)

// Event is the envelope broadcast to dashboard clients
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ConnectedAgentsPayload carries the current connected-agent roster
type ConnectedAgentsPayload struct {
	Agents []Agent `json:"agents"`
}

// SystemModePayload carries a mode change
type SystemModePayload struct {
	Mode SystemMode `json:"mode"`
}

// TicketMove describes one ticket ownership change inside a rebalance
type TicketMove struct {
	TicketID  string       `json:"ticketId"`
	FromAgent string       `json:"fromAgent,omitempty"`
	ToAgent   string       `json:"toAgent,omitempty"`
	Reason    ActionReason `json:"reason"`
}

// TicketsReassignedPayload carries the outcome of a rebalance run
type TicketsReassignedPayload struct {
	TriggerAgent string       `json:"triggerAgent"`
	Moves        []TicketMove `json:"moves"`
}
