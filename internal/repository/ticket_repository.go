package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/gate-presence/internal/model"
)

// TicketRepo provides access to the tickets table.  Ticket rows are owned
// by the ticketing side; only Create and Revoke exist here for seeding and
// administrative tooling.
type TicketRepo struct {
	db *sql.DB
	d  Dialect
}

// NewTicketRepo returns a TicketRepo bound to db using the driver's dialect.
func NewTicketRepo(db *sql.DB, driver string) *TicketRepo {
	return &TicketRepo{db: db, d: NewDialect(driver)}
}

// GetByID fetches a ticket.  It returns ErrTicketNotFound when absent.
func (r *TicketRepo) GetByID(ctx context.Context, id string) (model.Ticket, error) {
	var (
		t       model.Ticket
		seat    sql.NullString
		device  sql.NullString
		state   string
		updated int64
	)
	err := r.db.QueryRowContext(ctx, r.d.Q(
		`SELECT id, event_id, seat_id, current_state, revoked, device_bound_key, updated_at_ms
		 FROM tickets WHERE id = ?`), id,
	).Scan(&t.ID, &t.EventID, &seat, &state, &t.Revoked, &device, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ticket{}, ErrTicketNotFound
	}
	if err != nil {
		return model.Ticket{}, err
	}
	t.SeatID = seat.String
	t.DeviceBoundKey = device.String
	t.CurrentState = model.PresenceState(state)
	if !t.CurrentState.Valid() {
		t.CurrentState = model.StateOutside
	}
	if updated > 0 {
		t.UpdatedAt = fromMillis(updated)
	}
	return t, nil
}

// Create inserts a ticket row.
func (r *TicketRepo) Create(ctx context.Context, t model.Ticket) error {
	state := t.CurrentState
	if !state.Valid() {
		state = model.StateOutside
	}
	var updated int64
	if !t.UpdatedAt.IsZero() {
		updated = toMillis(t.UpdatedAt)
	}
	_, err := r.db.ExecContext(ctx, r.d.Q(
		`INSERT INTO tickets (id, event_id, seat_id, current_state, revoked, device_bound_key, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.EventID, nullString(t.SeatID), string(state), t.Revoked, nullString(t.DeviceBoundKey), updated)
	return err
}

// UpdateState performs a compare-and-set on current_state.
func (r *TicketRepo) UpdateState(ctx context.Context, id string, from, to model.PresenceState, now time.Time) error {
	res, err := r.db.ExecContext(ctx, r.d.Q(
		`UPDATE tickets SET current_state = ?, updated_at_ms = ?
		 WHERE id = ? AND current_state = ? AND revoked = ?`),
		string(to), toMillis(now), id, string(from), false)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStateConflict
	}
	return nil
}

// BindDevice records key as the bound device when the ticket has none.
func (r *TicketRepo) BindDevice(ctx context.Context, id, key string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.d.Q(
		`UPDATE tickets SET device_bound_key = ?
		 WHERE id = ? AND (device_bound_key IS NULL OR device_bound_key = '')`),
		key, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Revoke sets the revoked flag.  Revocation is permanent.
func (r *TicketRepo) Revoke(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.d.Q(`UPDATE tickets SET revoked = ? WHERE id = ?`), true, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL reports changed rows, so an already revoked ticket lands here too.
		_, err := r.GetByID(ctx, id)
		return err
	}
	return nil
}
