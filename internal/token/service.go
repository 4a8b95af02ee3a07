package token

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/gate-presence/internal/config"
	"github.com/iliyamo/gate-presence/internal/kv"
	"github.com/iliyamo/gate-presence/internal/metrics"
	"github.com/iliyamo/gate-presence/internal/repository"
)

// MismatchAlert describes a refused issuance because a foreign device asked
// for a token of a device-bound ticket.
type MismatchAlert struct {
	TicketID     string
	EventID      string
	BoundKey     string
	PresentedKey string
	At           time.Time
}

// Notifier delivers administrative alerts.  Delivery failures never change
// the issuance decision.
type Notifier interface {
	DeviceMismatch(ctx context.Context, a MismatchAlert) error
}

// Deps bundles the collaborators of Service.
type Deps struct {
	Keys     KeyProvider
	Tickets  repository.TicketStore
	Nonces   kv.Store
	Notifier Notifier         // optional
	Metrics  *metrics.Metrics // optional
	Log      *log.Logger      // optional
	Now      func() time.Time // optional, defaults to time.Now
}

// Service issues and verifies short-lived single-use ticket tokens.
type Service struct {
	cfg  config.TokenConfig
	deps Deps
}

// NewService validates cfg and returns a Service.
func NewService(cfg config.TokenConfig, deps Deps) (*Service, error) {
	if cfg.TTL <= 0 || cfg.Issuer == "" || cfg.Audience == "" {
		return nil, ErrConfig
	}
	if deps.Keys == nil || deps.Tickets == nil || deps.Nonces == nil {
		return nil, fmt.Errorf("%w: keys, tickets and nonces are required", ErrConfig)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = log.New("token")
	}
	return &Service{cfg: cfg, deps: deps}, nil
}

func nonceKey(jti string) string { return "nonce:" + jti }

// Issue mints a token for ticketID on behalf of the device identified by
// fingerprint.  A ticket bound to another device is refused with
// ErrUntrustedDevice and an alert is sent; the refusal is final.
func (s *Service) Issue(ctx context.Context, ticketID, fingerprint string) (Issued, error) {
	t, err := s.deps.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return Issued{}, err
	}
	now := s.deps.Now().UTC()

	if t.DeviceBoundKey == "" && fingerprint != "" && s.cfg.BindDevice {
		bound, err := s.deps.Tickets.BindDevice(ctx, t.ID, fingerprint)
		if err != nil {
			return Issued{}, fmt.Errorf("bind device: %w", err)
		}
		if bound {
			t.DeviceBoundKey = fingerprint
		} else if t, err = s.deps.Tickets.GetByID(ctx, ticketID); err != nil {
			// Another device bound the ticket first; compare against it.
			return Issued{}, err
		}
	}

	if t.DeviceBoundKey != "" && !sameDevice(t.DeviceBoundKey, fingerprint) {
		s.deps.Log.Warnj(log.JSON{"event": "device_mismatch", "stage": "issue", "ticket_id": t.ID})
		s.deps.Metrics.TokenFailed("untrusted_device")
		if s.deps.Notifier != nil {
			alert := MismatchAlert{TicketID: t.ID, EventID: t.EventID, BoundKey: t.DeviceBoundKey, PresentedKey: fingerprint, At: now}
			if err := s.deps.Notifier.DeviceMismatch(ctx, alert); err != nil {
				s.deps.Log.Errorf("device mismatch alert for ticket %s: %v", t.ID, err)
			}
		}
		return Issued{}, ErrUntrustedDevice
	}

	key, err := s.deps.Keys.CurrentKey(ctx)
	if err != nil {
		return Issued{}, fmt.Errorf("signing key: %w", err)
	}

	exp := now.Add(s.cfg.TTL)
	jti := uuid.NewString()
	claims := Claims{
		TicketID:  t.ID,
		EventID:   t.EventID,
		SeatKey:   t.SeatID,
		State:     t.CurrentState,
		DeviceKey: t.DeviceBoundKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   t.ID,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = key.ID
	signed, err := tok.SignedString(key.Private)
	if err != nil {
		return Issued{}, fmt.Errorf("sign token: %w", err)
	}

	if err := s.deps.Nonces.SetTTL(ctx, nonceKey(jti), t.ID, s.cfg.TTL); err != nil {
		return Issued{}, fmt.Errorf("record nonce: %w", err)
	}
	s.deps.Metrics.TokenIssued()
	return Issued{Token: signed, ExpiresAt: exp, Nonce: jti}, nil
}

// Verify checks signature, issuer, audience and expiry, then consumes the
// nonce.  A nonce verifies at most once.
func (s *Service) Verify(ctx context.Context, raw string) (Claims, error) {
	now := s.deps.Now()
	set, err := s.deps.Keys.PublicKeySet(ctx)
	if err != nil {
		return Claims{}, fmt.Errorf("key set: %w", err)
	}

	// Build a fresh parser per call so validation options never accumulate.
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.cfg.Leeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	var c Claims
	_, err = p.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		k, ok := findKey(set, kid, now)
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return k, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.deps.Metrics.TokenFailed("expired")
			return Claims{}, ErrExpired
		}
		s.deps.Metrics.TokenFailed("signature")
		return Claims{}, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	if c.ID == "" || c.TicketID == "" || c.Subject != c.TicketID || c.IssuedAt == nil ||
		c.ExpiresAt.Sub(c.IssuedAt.Time) > s.cfg.TTL {
		s.deps.Metrics.TokenFailed("signature")
		return Claims{}, fmt.Errorf("%w: malformed claims", ErrSignature)
	}

	owner, ok, err := s.deps.Nonces.Consume(ctx, nonceKey(c.ID))
	if err != nil {
		return Claims{}, fmt.Errorf("consume nonce: %w", err)
	}
	if !ok || owner != c.TicketID {
		s.deps.Metrics.TokenFailed("replay")
		return Claims{}, ErrReplay
	}
	return c, nil
}

// KeySet returns the public verification keys.
func (s *Service) KeySet(ctx context.Context) ([]PublicKey, error) {
	return s.deps.Keys.PublicKeySet(ctx)
}

func sameDevice(bound, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(bound), []byte(presented)) == 1
}
