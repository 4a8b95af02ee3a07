package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/gate-presence/internal/model"
)

// GuardStateRepo stores one guard_states row per ticket.  Rows are created
// on first use through Ensure; there is no provisioning step.
type GuardStateRepo struct {
	db *sql.DB
	d  Dialect
}

func NewGuardStateRepo(db *sql.DB, driver string) *GuardStateRepo {
	return &GuardStateRepo{db: db, d: NewDialect(driver)}
}

// Get reads the guard row.  It returns ErrGuardStateNotFound when the row
// has not been created yet.
func (r *GuardStateRepo) Get(ctx context.Context, ticketID string) (model.GuardState, error) {
	var (
		g        model.GuardState
		count    int64
		blocked  sql.NullInt64
		lastFail sql.NullInt64
		reason   sql.NullString
	)
	err := r.db.QueryRowContext(ctx, r.d.Q(
		`SELECT ticket_id, fail_count, blocked_until_ms, reason, last_fail_at_ms
		 FROM guard_states WHERE ticket_id = ?`), ticketID,
	).Scan(&g.TicketID, &count, &blocked, &reason, &lastFail)
	if errors.Is(err, sql.ErrNoRows) {
		return model.GuardState{}, ErrGuardStateNotFound
	}
	if err != nil {
		return model.GuardState{}, err
	}
	if count > 0 {
		g.FailCount = uint(count)
	}
	g.BlockedUntil = nullMillis(blocked)
	g.LastFailAt = nullMillis(lastFail)
	g.Reason = model.Reason(reason.String)
	return g, nil
}

// Ensure creates a zeroed row when missing and returns the current row.
func (r *GuardStateRepo) Ensure(ctx context.Context, ticketID string) (model.GuardState, error) {
	if _, err := r.db.ExecContext(ctx, r.d.insertIgnore("guard_states", "ticket_id, fail_count", "?, 0"), ticketID); err != nil {
		return model.GuardState{}, err
	}
	return r.Get(ctx, ticketID)
}

// IncrementFail atomically bumps the failure counter and returns the new
// value.  SQLite and Postgres read it back with RETURNING; MySQL locks the
// row for the read-modify-write.
func (r *GuardStateRepo) IncrementFail(ctx context.Context, ticketID string, reason model.Reason, now time.Time) (uint, error) {
	if _, err := r.Ensure(ctx, ticketID); err != nil {
		return 0, err
	}
	const bump = `UPDATE guard_states SET fail_count = fail_count + 1, reason = ?, last_fail_at_ms = ?
		 WHERE ticket_id = ?`
	var n int64
	if r.d.returning() {
		err := r.db.QueryRowContext(ctx, r.d.Q(bump+` RETURNING fail_count`),
			nullString(string(reason)), toMillis(now), ticketID).Scan(&n)
		if err != nil {
			return 0, err
		}
		return uint(n), nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	if err := tx.QueryRowContext(ctx, r.d.Q(`SELECT fail_count FROM guard_states WHERE ticket_id = ? FOR UPDATE`), ticketID).Scan(&n); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, r.d.Q(bump), nullString(string(reason)), toMillis(now), ticketID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return uint(n + 1), nil
}

// ExtendBlock moves blocked_until forward to until.  A later block that is
// already in place is kept.
func (r *GuardStateRepo) ExtendBlock(ctx context.Context, ticketID string, until time.Time, reason model.Reason) error {
	if _, err := r.Ensure(ctx, ticketID); err != nil {
		return err
	}
	ms := toMillis(until)
	_, err := r.db.ExecContext(ctx, r.d.Q(
		`UPDATE guard_states
		 SET reason = CASE WHEN blocked_until_ms IS NULL OR blocked_until_ms < ? THEN ? ELSE reason END,
		     blocked_until_ms = CASE WHEN blocked_until_ms IS NULL OR blocked_until_ms < ? THEN ? ELSE blocked_until_ms END
		 WHERE ticket_id = ?`),
		ms, nullString(string(reason)), ms, ms, ticketID)
	return err
}

// Reset clears all bookkeeping after a committed transition.
func (r *GuardStateRepo) Reset(ctx context.Context, ticketID string) error {
	_, err := r.db.ExecContext(ctx, r.d.Q(
		`UPDATE guard_states SET fail_count = 0, blocked_until_ms = NULL, reason = NULL, last_fail_at_ms = NULL
		 WHERE ticket_id = ?`), ticketID)
	return err
}
