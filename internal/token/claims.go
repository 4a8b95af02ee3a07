package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/gate-presence/internal/model"
)

// Claims is the signed body of a rotating ticket token.  Subject duplicates
// TicketID and ID carries the single-use nonce.
type Claims struct {
	TicketID  string              `json:"tid"`
	EventID   string              `json:"eid"`
	SeatKey   string              `json:"sk,omitempty"`
	State     model.PresenceState `json:"cs"`
	DeviceKey string              `json:"dk,omitempty"`
	jwt.RegisteredClaims
}

// Nonce returns the jti.
func (c Claims) Nonce() string { return c.ID }

// Issued is what a client receives from Issue.
type Issued struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Nonce     string    `json:"nonce"`
}
