package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/gate-presence/internal/database"
	"github.com/iliyamo/gate-presence/internal/model"
	"github.com/iliyamo/gate-presence/internal/repository"
)

// openTestDB returns an in-memory SQLite database with the production
// schema.  It is closed when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:test_%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(context.Background(), database.Options{
		Driver:  database.DriverSQLite,
		DSN:     dsn,
		Migrate: true,
	})
	if err != nil {
		t.Fatalf("openTestDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedTicket(t *testing.T, db *sql.DB, tk model.Ticket) *repository.TicketRepo {
	t.Helper()
	repo := repository.NewTicketRepo(db, database.DriverSQLite)
	if err := repo.Create(context.Background(), tk); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	return repo
}

var t0 = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
