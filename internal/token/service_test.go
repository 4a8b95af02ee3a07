package token_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/gate-presence/internal/model"
	"github.com/iliyamo/gate-presence/internal/repository"
	"github.com/iliyamo/gate-presence/internal/token"
)

var ticket = model.Ticket{ID: "t-1", EventID: "ev-1", SeatID: "A-12", CurrentState: model.StateOutside}

func TestIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, ticket)

	out, err := f.svc.Issue(ctx, "t-1", "dev-a")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if out.Nonce == "" || !out.ExpiresAt.Equal(f.clock.Now().Add(30*time.Second)) {
		t.Errorf("unexpected issue result: %+v", out)
	}

	f.clock.Advance(5 * time.Second)
	c, err := f.svc.Verify(ctx, out.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if c.TicketID != "t-1" || c.EventID != "ev-1" || c.SeatKey != "A-12" || c.State != model.StateOutside {
		t.Errorf("claims = %+v", c)
	}
	if c.Nonce() != out.Nonce || c.DeviceKey != "dev-a" {
		t.Errorf("nonce/device not carried: %+v", c)
	}
}

func TestVerify_ReplayRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, ticket)
	out, _ := f.svc.Issue(ctx, "t-1", "dev-a")

	if _, err := f.svc.Verify(ctx, out.Token); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if _, err := f.svc.Verify(ctx, out.Token); !errors.Is(err, token.ErrReplay) {
		t.Fatalf("expected ErrReplay, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, ticket)
	out, _ := f.svc.Issue(ctx, "t-1", "dev-a")

	f.clock.Advance(40 * time.Second)
	if _, err := f.svc.Verify(ctx, out.Token); !errors.Is(err, token.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerify_TamperedSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, ticket)
	out, _ := f.svc.Issue(ctx, "t-1", "dev-a")

	parts := strings.Split(out.Token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	forged := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := f.svc.Verify(ctx, forged); !errors.Is(err, token.ErrSignature) {
		t.Fatalf("expected ErrSignature, got %v", err)
	}
	if _, err := f.svc.Verify(ctx, "not-a-token"); !errors.Is(err, token.ErrSignature) {
		t.Fatalf("expected ErrSignature for garbage, got %v", err)
	}
}

func TestVerify_ForeignKeyRejected(t *testing.T) {
	ctx := context.Background()
	other, _ := token.NewDerivedKeys(strings.Repeat("z", 40), []string{"k1"})
	issuer := newFixture(t, other, ticket)
	verifier := newFixture(t, nil, ticket)

	out, _ := issuer.svc.Issue(ctx, "t-1", "dev-a")
	if _, err := verifier.svc.Verify(ctx, out.Token); !errors.Is(err, token.ErrSignature) {
		t.Fatalf("expected ErrSignature, got %v", err)
	}
}

func TestIssue_BindsFirstDeviceAndRefusesOthers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, ticket)

	if _, err := f.svc.Issue(ctx, "t-1", "dev-a"); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, _ := f.tickets.GetByID(ctx, "t-1")
	if got.DeviceBoundKey != "dev-a" {
		t.Fatalf("device not bound: %q", got.DeviceBoundKey)
	}

	if _, err := f.svc.Issue(ctx, "t-1", "dev-b"); !errors.Is(err, token.ErrUntrustedDevice) {
		t.Fatalf("expected ErrUntrustedDevice, got %v", err)
	}
	if len(f.notifier.alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(f.notifier.alerts))
	}
	a := f.notifier.alerts[0]
	if a.TicketID != "t-1" || a.BoundKey != "dev-a" || a.PresentedKey != "dev-b" {
		t.Errorf("alert = %+v", a)
	}
}

func TestIssue_UnknownTicket(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.Issue(context.Background(), "nope", "dev-a"); !errors.Is(err, repository.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestVerify_KeyRotationOverlap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, ticket)
	out, _ := f.svc.Issue(ctx, "t-1", "dev-a")

	// Same master secret, new current id, old id still listed.
	rotated, _ := token.NewDerivedKeys(testSecret, []string{"k2", "k1"})
	svc, err := token.NewService(testConfig(), token.Deps{
		Keys:    rotated,
		Tickets: f.tickets,
		Nonces:  f.nonces,
		Now:     f.clock.Now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Verify(ctx, out.Token); err != nil {
		t.Fatalf("token signed by k1 rejected after rotation: %v", err)
	}

	out2, _ := f.svc.Issue(ctx, "t-1", "dev-a")
	dropped, _ := token.NewDerivedKeys(testSecret, []string{"k2"})
	svc, _ = token.NewService(testConfig(), token.Deps{Keys: dropped, Tickets: f.tickets, Nonces: f.nonces, Now: f.clock.Now})
	if _, err := svc.Verify(ctx, out2.Token); !errors.Is(err, token.ErrSignature) {
		t.Fatalf("dropped key still verifies: %v", err)
	}
}

func TestNewService_RejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = 0
	if _, err := token.NewService(cfg, token.Deps{}); !errors.Is(err, token.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
