package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported driver names.  They double as the database/sql driver names.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
)

// Options describes how to reach the ticket database.  DSN wins over the
// individual MySQL parts when set.
type Options struct {
	Driver string
	DSN    string
	User   string
	Pass   string
	Host   string
	Port   string
	Name   string
	// Migrate applies the embedded schema after connecting.
	Migrate bool
}

// Open connects to the configured database, verifies the connection and
// optionally applies migrations.
func Open(ctx context.Context, opt Options) (*sql.DB, error) {
	driver := opt.Driver
	if driver == "" {
		driver = DriverMySQL
	}
	dsn, err := buildDSN(driver, opt)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if opt.Migrate {
		if err := Migrate(ctx, db, driver); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func buildDSN(driver string, opt Options) (string, error) {
	if opt.DSN != "" {
		return opt.DSN, nil
	}
	switch driver {
	case DriverMySQL:
		auth := opt.User
		if opt.Pass != "" {
			auth = fmt.Sprintf("%s:%s", opt.User, opt.Pass)
		}
		// loc=UTC keeps times consistent; timestamps are stored as unix ms anyway.
		return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
			auth, opt.Host, opt.Port, opt.Name), nil
	case DriverSQLite:
		path := opt.Name
		if path == "" {
			path = "./data/gate.db"
		}
		return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path), nil
	case DriverPgx:
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", opt.User, opt.Pass, opt.Host, opt.Port, opt.Name), nil
	}
	return "", fmt.Errorf("unsupported db driver %q", driver)
}
