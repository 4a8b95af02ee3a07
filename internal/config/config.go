package config // package config loads application configuration from environment variables

import "strings"

// Config holds the base runtime configuration.  Concern-specific settings
// live in their own structs (TokenConfig, GuardConfig, ScanConfig, ...)
// with their own loaders.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	LogLevel       string // debug | info | warn | error
	DBDriver       string // mysql | sqlite | pgx
	DBDSN          string // full DSN, overrides the parts below
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name (file path for sqlite)
	DBMigrate      bool   // apply embedded migrations on start
	StaffJWTSecret string // HS256 secret for staff bearer tokens
}

// Load reads the base configuration.  APP_PORT and STAFF_JWT_SECRET are
// required; database parts are required only when no DSN is given and the
// driver needs a server.
func Load() Config {
	cfg := Config{
		Env:            envStr("APP_ENV", "dev"),
		Port:           must("APP_PORT"),
		LogLevel:       strings.ToLower(envStr("LOG_LEVEL", "info")),
		DBDriver:       strings.ToLower(envStr("DB_DRIVER", "mysql")),
		DBDSN:          envStr("DB_DSN", ""),
		DBPass:         envStr("DB_PASS", ""),
		DBMigrate:      envBool("DB_MIGRATE", true),
		StaffJWTSecret: must("STAFF_JWT_SECRET"),
	}
	switch {
	case cfg.DBDSN != "":
	case cfg.DBDriver == "sqlite":
		cfg.DBName = envStr("DB_NAME", "./data/gate.db")
	default:
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	}
	return cfg
}
