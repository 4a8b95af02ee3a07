package model

import "time"

// Ticket represents one guest's access right for one event, as stored in
// the `tickets` table.  The ticketing side owns creation and revocation;
// this service only reads tickets, binds a device on first token issuance
// and flips CurrentState on an accepted scan.
//
// Fields:
//  ID             – tickets.id (opaque string identifier).
//  EventID        – event the ticket admits to.
//  SeatID         – optional seat key.
//  CurrentState   – INSIDE or OUTSIDE.
//  Revoked        – administrative revocation flag; never cleared.
//  DeviceBoundKey – fingerprint of the first device that claimed the ticket.
//  UpdatedAt      – last state change.
type Ticket struct {
	ID             string        `json:"id"`
	EventID        string        `json:"event_id"`
	SeatID         string        `json:"seat_id,omitempty"`
	CurrentState   PresenceState `json:"current_state"`
	Revoked        bool          `json:"revoked"`
	DeviceBoundKey string        `json:"-"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
