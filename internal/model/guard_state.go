package model

import "time"

// GuardState holds the anti-sharing bookkeeping for a single ticket in
// `guard_states`.  Rows are created lazily with zero values.  BlockedUntil
// is compared against the current time on read and is never swept.
type GuardState struct {
	TicketID     string     `json:"ticket_id"`
	FailCount    uint       `json:"fail_count"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
	Reason       Reason     `json:"reason,omitempty"`
	LastFailAt   *time.Time `json:"last_fail_at,omitempty"`
}

// Blocked reports whether an active block is in force at now.
func (g GuardState) Blocked(now time.Time) bool {
	return g.BlockedUntil != nil && g.BlockedUntil.After(now)
}
