package repository

import (
	"database/sql"
	"time"

	"github.com/iliyamo/gate-presence/internal/database"
)

// Dialect papers over the handful of SQL differences between the
// supported drivers.
type Dialect struct {
	Driver string
	bind   func(string) string
}

// NewDialect returns the dialect for a database/sql driver name.
func NewDialect(driver string) Dialect {
	return Dialect{Driver: driver, bind: database.Rebinder(driver)}
}

// Q rewrites placeholders for the driver.
func (d Dialect) Q(q string) string {
	if d.bind == nil {
		return q
	}
	return d.bind(q)
}

// insertIgnore builds an insert that silently skips duplicate keys.
func (d Dialect) insertIgnore(table, cols, placeholders string) string {
	switch d.Driver {
	case database.DriverSQLite:
		return d.Q("INSERT OR IGNORE INTO " + table + " (" + cols + ") VALUES (" + placeholders + ")")
	case database.DriverPgx:
		return d.Q("INSERT INTO " + table + " (" + cols + ") VALUES (" + placeholders + ") ON CONFLICT DO NOTHING")
	default:
		return d.Q("INSERT IGNORE INTO " + table + " (" + cols + ") VALUES (" + placeholders + ")")
	}
}

// returning reports whether UPDATE ... RETURNING is available.
func (d Dialect) returning() bool {
	return d.Driver == database.DriverSQLite || d.Driver == database.DriverPgx
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
