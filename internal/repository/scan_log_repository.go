package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/gate-presence/internal/model"
)

// ScanLogRepo appends to and reads from the scan_logs audit table.  Rows
// are never updated or deleted.
type ScanLogRepo struct {
	db *sql.DB
	d  Dialect
}

func NewScanLogRepo(db *sql.DB, driver string) *ScanLogRepo {
	return &ScanLogRepo{db: db, d: NewDialect(driver)}
}

// Append inserts one scan attempt.
func (r *ScanLogRepo) Append(ctx context.Context, e model.ScanLogEntry) error {
	_, err := r.db.ExecContext(ctx, r.d.Q(
		`INSERT INTO scan_logs (id, ticket_id, event_id, by_user_id, direction, verdict, reason, gate, device_hash, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.TicketID, e.EventID, nullString(e.ByUserID), string(e.Direction), string(e.Verdict),
		nullString(string(e.Reason)), e.Gate, nullString(e.DeviceHash), toMillis(e.CreatedAt))
	return err
}

// ListSince returns the ticket's entries created at or after since, newest
// first.
func (r *ScanLogRepo) ListSince(ctx context.Context, ticketID string, since time.Time, limit int) ([]model.ScanLogEntry, error) {
	q := `SELECT id, ticket_id, event_id, by_user_id, direction, verdict, reason, gate, device_hash, created_at_ms
	      FROM scan_logs WHERE ticket_id = ? AND created_at_ms >= ?
	      ORDER BY created_at_ms DESC, id DESC`
	args := []interface{}{ticketID, toMillis(since)}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, r.d.Q(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScanLogEntry
	for rows.Next() {
		var (
			e                   model.ScanLogEntry
			byUser, reason, dev sql.NullString
			direction, verdict  string
			created             int64
		)
		if err := rows.Scan(&e.ID, &e.TicketID, &e.EventID, &byUser, &direction, &verdict, &reason, &e.Gate, &dev, &created); err != nil {
			return nil, err
		}
		e.ByUserID = byUser.String
		e.Direction = model.PresenceState(direction)
		e.Verdict = model.Verdict(verdict)
		e.Reason = model.Reason(reason.String)
		e.DeviceHash = dev.String
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
