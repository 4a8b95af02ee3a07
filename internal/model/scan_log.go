package model

import "time"

// ScanLogEntry is the immutable audit record of one scan attempt, stored
// in `scan_logs`.  One entry is written per attempt, successful or not.
type ScanLogEntry struct {
	ID         string        `json:"id"`                    // scan_logs.id (ULID)
	TicketID   string        `json:"ticket_id"`             // scan_logs.ticket_id
	EventID    string        `json:"event_id"`              // scan_logs.event_id
	ByUserID   string        `json:"by_user_id,omitempty"`  // acting staff member (nullable)
	Direction  PresenceState `json:"direction"`             // requested direction
	Verdict    Verdict       `json:"verdict"`               // wire verdict
	Reason     Reason        `json:"reason,omitempty"`      // internal reason
	Gate       string        `json:"gate"`                  // gate label
	DeviceHash string        `json:"device_hash,omitempty"` // presenting device (nullable)
	CreatedAt  time.Time     `json:"created_at"`
}
