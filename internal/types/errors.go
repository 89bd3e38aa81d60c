package types

import "errors"

// Validation errors surface directly to the caller and are never retried.
// Write errors are retried once at the store boundary before surfacing.
var (
	// ErrInvalidStatus indicates a personal status outside {online, afk, offline}
	ErrInvalidStatus = errors.New("invalid personal status")

	// ErrInvalidMode indicates a system mode outside {hitl, autopilot, off}
	ErrInvalidMode = errors.New("invalid system mode")

	// ErrTicketNotFound indicates an assignment against an unknown ticket
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrPresenceWrite indicates a presence store mutation failed after retry
	ErrPresenceWrite = errors.New("presence write failed")

	// ErrAssignmentWrite indicates a ticket store mutation failed after retry
	ErrAssignmentWrite = errors.New("assignment write failed")
)
