package database_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/iliyamo/gate-presence/internal/database"
)

func TestOpenSQLiteMigratesIdempotently(t *testing.T) {
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(ctx, database.Options{Driver: database.DriverSQLite, DSN: dsn, Migrate: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(ctx, db, database.DriverSQLite); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 recorded migration, got %d", n)
	}
	for _, table := range []string{"tickets", "scan_logs", "guard_states"} {
		if _, err := db.ExecContext(ctx, "SELECT 1 FROM "+table+" LIMIT 1"); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}
