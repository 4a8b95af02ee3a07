package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/gate-presence/internal/model"
	"github.com/iliyamo/gate-presence/internal/repository"
)

func TestTicketRepo_GetByID(t *testing.T) {
	db := openTestDB(t)
	repo := seedTicket(t, db, model.Ticket{ID: "t-1", EventID: "ev-1", SeatID: "A-12", UpdatedAt: t0})

	got, err := repo.GetByID(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.EventID != "ev-1" || got.SeatID != "A-12" {
		t.Errorf("unexpected ticket: %+v", got)
	}
	if got.CurrentState != model.StateOutside {
		t.Errorf("new ticket should start OUTSIDE, got %q", got.CurrentState)
	}
	if !got.UpdatedAt.Equal(t0) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, t0)
	}

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrTicketNotFound) {
		t.Errorf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestTicketRepo_UpdateStateCompareAndSet(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := seedTicket(t, db, model.Ticket{ID: "t-1", EventID: "ev-1"})

	if err := repo.UpdateState(ctx, "t-1", model.StateOutside, model.StateInside, t0); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	// Same transition again: the row has moved on.
	err := repo.UpdateState(ctx, "t-1", model.StateOutside, model.StateInside, t0)
	if !errors.Is(err, repository.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}

	got, _ := repo.GetByID(ctx, "t-1")
	if got.CurrentState != model.StateInside {
		t.Errorf("state = %q, want INSIDE", got.CurrentState)
	}
}

func TestTicketRepo_UpdateStateRefusesRevoked(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := seedTicket(t, db, model.Ticket{ID: "t-1", EventID: "ev-1"})

	if err := repo.Revoke(ctx, "t-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := repo.Revoke(ctx, "t-1"); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	err := repo.UpdateState(ctx, "t-1", model.StateOutside, model.StateInside, t0)
	if !errors.Is(err, repository.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict for revoked ticket, got %v", err)
	}
	if err := repo.Revoke(ctx, "nope"); !errors.Is(err, repository.ErrTicketNotFound) {
		t.Errorf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestTicketRepo_BindDeviceOnlyOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := seedTicket(t, db, model.Ticket{ID: "t-1", EventID: "ev-1"})

	ok, err := repo.BindDevice(ctx, "t-1", "device-a")
	if err != nil || !ok {
		t.Fatalf("first bind = %v, %v", ok, err)
	}
	ok, err = repo.BindDevice(ctx, "t-1", "device-b")
	if err != nil || ok {
		t.Fatalf("second bind = %v, %v; want false", ok, err)
	}
	got, _ := repo.GetByID(ctx, "t-1")
	if got.DeviceBoundKey != "device-a" {
		t.Errorf("bound key = %q", got.DeviceBoundKey)
	}
}
