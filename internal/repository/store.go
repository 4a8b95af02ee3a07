package repository

import (
	"context"
	"time"

	"github.com/iliyamo/gate-presence/internal/model"
)

// TicketStore reads tickets and performs the few writes the gate is
// allowed to make on them.
type TicketStore interface {
	GetByID(ctx context.Context, id string) (model.Ticket, error)
	// UpdateState moves the ticket from one presence state to another and
	// returns ErrStateConflict when the stored state is not from.
	UpdateState(ctx context.Context, id string, from, to model.PresenceState, now time.Time) error
	// BindDevice stores key as the ticket's bound device when none is bound
	// yet.  It reports whether the binding was written.
	BindDevice(ctx context.Context, id, key string) (bool, error)
}

// ScanLogStore is the append-only scan history.
type ScanLogStore interface {
	Append(ctx context.Context, e model.ScanLogEntry) error
	// ListSince returns entries for ticketID created at or after since,
	// newest first.  A non-positive limit means no limit.
	ListSince(ctx context.Context, ticketID string, since time.Time, limit int) ([]model.ScanLogEntry, error)
}

// GuardStateStore persists per-ticket anti-sharing bookkeeping.  Every
// mutation is a single-row atomic update.
type GuardStateStore interface {
	Ensure(ctx context.Context, ticketID string) (model.GuardState, error)
	// IncrementFail bumps fail_count, records reason and now as the last
	// failure, and returns the new count.
	IncrementFail(ctx context.Context, ticketID string, reason model.Reason, now time.Time) (uint, error)
	// ExtendBlock sets blocked_until to until unless a later block is
	// already recorded.
	ExtendBlock(ctx context.Context, ticketID string, until time.Time, reason model.Reason) error
	Reset(ctx context.Context, ticketID string) error
}

var (
	_ TicketStore     = (*TicketRepo)(nil)
	_ ScanLogStore    = (*ScanLogRepo)(nil)
	_ GuardStateStore = (*GuardStateRepo)(nil)
)
