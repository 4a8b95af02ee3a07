package presence

import "github.com/iliyamo/gate-presence/internal/model"

// ScanRequest is the operator console path: an explicit direction for a
// raw ticket identifier.
type ScanRequest struct {
	TicketID   string              `json:"ticket_id"`
	Direction  model.PresenceState `json:"direction"`
	Gate       string              `json:"gate"`
	DeviceHash string              `json:"device_hash,omitempty"`
	ByUserID   string              `json:"by_user_id,omitempty"`
}

// TokenScanRequest is the scanner path.  The direction is the toggle of the
// presence state embedded in the verified token.
type TokenScanRequest struct {
	Token      string `json:"token"`
	Gate       string `json:"gate,omitempty"`
	DeviceHash string `json:"device_hash,omitempty"`
	ByUserID   string `json:"by_user_id,omitempty"`
}

// Result is the outcome of one scan attempt.  Reason is internal and is not
// meant to be shown to the presenting guest.
type Result struct {
	Verdict model.Verdict
	Reason  model.Reason
	Ticket  model.Ticket
	Log     model.ScanLogEntry
}
