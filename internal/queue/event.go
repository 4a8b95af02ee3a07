// Package queue defines the security messages exchanged over the broker and
// the background consumer that records them.
package queue

import (
	"encoding/json"
	"time"
)

// TopicDeviceMismatch is published when a foreign device asks for a token
// of a device-bound ticket.
const TopicDeviceMismatch = "ticket.device_mismatch"

// Envelope wraps every message so the consumer can route on Type without
// decoding the payload first.
type Envelope struct {
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// DeviceMismatchEvent carries enough for an operator to follow up without
// querying the primary database.  Device keys are truncated fingerprints.
type DeviceMismatchEvent struct {
	TicketID     string    `json:"ticket_id"`
	EventID      string    `json:"event_id"`
	BoundKey     string    `json:"bound_key"`
	PresentedKey string    `json:"presented_key"`
	DetectedAt   time.Time `json:"detected_at"`
}

// NewEnvelope encodes data under topic.
func NewEnvelope(topic string, data any, at time.Time) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: topic, At: at.UTC(), Data: raw}, nil
}
