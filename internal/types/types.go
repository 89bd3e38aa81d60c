package types

import "time"

// AgentStatus is the system-computed availability of an agent
type AgentStatus string

const (
	StatusOnline  AgentStatus = "online"
	StatusBusy    AgentStatus = "busy"
	StatusOffline AgentStatus = "offline"
)

// PersonalStatus is the status an agent declares for themselves. It maps
// onto AgentStatus via StatusFor; the two are kept separate so an agent's
// preference survives system-side overrides (e.g. transport disconnects).
type PersonalStatus string

const (
	PersonalOnline  PersonalStatus = "online"
	PersonalAFK     PersonalStatus = "afk"
	PersonalOffline PersonalStatus = "offline"
)

// personalStatusMapping maps declared status to system status
var personalStatusMapping = map[PersonalStatus]AgentStatus{
	PersonalOnline:  StatusOnline,
	PersonalAFK:     StatusBusy,
	PersonalOffline: StatusOffline,
}

// StatusFor returns the system status for a declared personal status.
// The second return value is false for unknown personal statuses.
func StatusFor(ps PersonalStatus) (AgentStatus, bool) {
	s, ok := personalStatusMapping[ps]
	return s, ok
}

// IsPresent reports whether a personal status counts as "present" for the
// rebalancing state machine. Only a fully online agent is present; afk and
// offline both count as idle.
func (ps PersonalStatus) IsPresent() bool {
	return ps == PersonalOnline
}

// SystemMode is the global operating mode of the response pipeline
type SystemMode string

const (
	ModeHITL      SystemMode = "hitl"      // humans approve and send replies
	ModeAutopilot SystemMode = "autopilot" // AI replies sent without agent approval
	ModeOff       SystemMode = "off"       // no automated or human response path
)

// ValidMode reports whether m is one of the three enumerated modes
func ValidMode(m SystemMode) bool {
	switch m {
	case ModeHITL, ModeAutopilot, ModeOff:
		return true
	}
	return false
}

// ActionReason classifies an ownership change in the assignment audit log
type ActionReason string

const (
	ReasonAssigned      ActionReason = "assigned"
	ReasonReassigned    ActionReason = "reassigned"
	ReasonReclaimed     ActionReason = "reclaimed"
	ReasonRedistributed ActionReason = "redistributed"
	ReasonOrphaned      ActionReason = "orphaned"
)

// Agent represents one human support operator
type Agent struct {
	ID             string         `json:"id" dynamodbav:"ID"`
	DisplayName    string         `json:"displayName,omitempty" dynamodbav:"DisplayName,omitempty"`
	Status         AgentStatus    `json:"status" dynamodbav:"Status"`
	PersonalStatus PersonalStatus `json:"personalStatus" dynamodbav:"PersonalStatus"`
	LastActivityAt time.Time      `json:"lastActivityAt" dynamodbav:"LastActivityAt"`
}

// Stale reports whether the agent's last activity is older than the timeout.
// A stale agent is treated as offline for assignment purposes regardless of
// its stored status.
func (a *Agent) Stale(now time.Time, timeout time.Duration) bool {
	return now.Sub(a.LastActivityAt) >= timeout
}

// Ticket represents one customer conversation and its ownership record
type Ticket struct {
	ID              string    `json:"id" dynamodbav:"ID"`
	AssignedAgentID string    `json:"assignedAgentId,omitempty" dynamodbav:"AssignedAgentID,omitempty"`
	OriginalAgentID string    `json:"originalAgentId,omitempty" dynamodbav:"OriginalAgentID,omitempty"`
	CreatedAt       time.Time `json:"createdAt" dynamodbav:"CreatedAt"`
	LastActivityAt  time.Time `json:"lastActivityAt" dynamodbav:"LastActivityAt"`
}

// Orphaned reports whether the ticket has no assigned agent
func (t *Ticket) Orphaned() bool {
	return t.AssignedAgentID == ""
}

// AssignmentAction is one append-only audit record of an ownership change.
// Records are never mutated and never consulted for assignment decisions.
type AssignmentAction struct {
	TicketID   string       `json:"ticketId" dynamodbav:"TicketID"`
	ActionID   string       `json:"actionId" dynamodbav:"ActionID"`
	ActorID    string       `json:"actorId" dynamodbav:"ActorID"`
	NewAgentID string       `json:"newAgentId,omitempty" dynamodbav:"NewAgentID,omitempty"`
	Reason     ActionReason `json:"reason" dynamodbav:"Reason"`
	Timestamp  time.Time    `json:"timestamp" dynamodbav:"Timestamp"`
}

// ActorSystem is the ActorID recorded when the engine itself moves a ticket
const ActorSystem = "system"
