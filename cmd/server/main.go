package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/gate-presence/internal/config"
	"github.com/iliyamo/gate-presence/internal/database"
	"github.com/iliyamo/gate-presence/internal/guard"
	"github.com/iliyamo/gate-presence/internal/handler"
	"github.com/iliyamo/gate-presence/internal/kv"
	"github.com/iliyamo/gate-presence/internal/metrics"
	"github.com/iliyamo/gate-presence/internal/middleware"
	"github.com/iliyamo/gate-presence/internal/presence"
	"github.com/iliyamo/gate-presence/internal/queue"
	"github.com/iliyamo/gate-presence/internal/repository"
	"github.com/iliyamo/gate-presence/internal/router"
	"github.com/iliyamo/gate-presence/internal/service"
	"github.com/iliyamo/gate-presence/internal/token"
)

func parseLevel(s string) log.Lvl {
	switch s {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	}
	return log.INFO
}

func newLogger(prefix string, lvl log.Lvl) *log.Logger {
	l := log.New(prefix)
	l.SetLevel(lvl)
	return l
}

func main() {
	_ = godotenv.Load() // a missing .env is fine

	cfg := config.Load()
	lvl := parseLevel(cfg.LogLevel)
	logger := newLogger("server", lvl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		Driver:  cfg.DBDriver,
		DSN:     cfg.DBDSN,
		User:    cfg.DBUser,
		Pass:    cfg.DBPass,
		Host:    cfg.DBHost,
		Port:    cfg.DBPort,
		Name:    cfg.DBName,
		Migrate: cfg.DBMigrate,
	})
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Replay protection and the ticket mutex live in Redis; without it no
	// scan can be decided safely.
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	tokenCfg := config.LoadTokenConfig()
	guardCfg := config.LoadGuardConfig()
	scanCfg := config.LoadScanConfig()
	amqpCfg := config.LoadAMQPConfig()

	tickets := repository.NewTicketRepo(db, cfg.DBDriver)
	history := repository.NewScanLogRepo(db, cfg.DBDriver)
	states := repository.NewGuardStateRepo(db, cfg.DBDriver)
	store := kv.NewRedis(rdb, scanCfg.KeyPrefix)
	m := metrics.New()

	keys, err := token.NewKeyProvider(ctx, tokenCfg, rdb, scanCfg.KeyPrefix)
	if err != nil {
		logger.Fatalf("token keys: %v", err)
	}

	var notifier token.Notifier
	if amqpCfg.URL != "" {
		notifier = service.NewAlertPublisher(amqpCfg.URL, amqpCfg.AlertQueue, newLogger("alerts", lvl))
	}
	tokens, err := token.NewService(tokenCfg, token.Deps{
		Keys:     keys,
		Tickets:  tickets,
		Nonces:   store,
		Notifier: notifier,
		Metrics:  m,
		Log:      newLogger("token", lvl),
	})
	if err != nil {
		logger.Fatalf("token service: %v", err)
	}

	g := guard.New(guardCfg, states, history, newLogger("guard", lvl), nil)
	orch := presence.New(scanCfg, presence.Deps{
		Tickets: tickets,
		History: history,
		Guard:   g,
		Tokens:  tokens,
		KV:      store,
		Locks:   store,
		Metrics: m,
		Log:     newLogger("presence", lvl),
	})

	if amqpCfg.URL != "" && amqpCfg.Consume {
		r := queue.NewRouter()
		r.Handle(queue.TopicDeviceMismatch, queue.NewAuditLog(amqpCfg.AlertLog).DeviceMismatch)
		c := &queue.Consumer{URL: amqpCfg.URL, Queue: amqpCfg.AlertQueue, Router: r, Log: newLogger("queue", lvl)}
		go func() {
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("security consumer stopped: %v", err)
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(lvl)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	router.Register(e, router.Routes{
		Health: &handler.HealthHandler{
			DB:    db,
			Redis: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		Scans:  &handler.ScanHandler{Presence: orch},
		Tokens: &handler.TokenHandler{Tokens: tokens},
		Tickets: &handler.TicketHandler{
			Tickets: tickets,
			History: history,
			Guard:   g,
			Limit:   guardCfg.HistoryLimit,
		},
		Metrics:     m.Handler(),
		StaffSecret: cfg.StaffJWTSecret,
		RateLimit:   middleware.RateLimit(config.LoadRateLimitConfig(), rdb),
		KeyCache:    middleware.ResponseCache(config.LoadCacheConfig(), rdb),
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Infof("listening on %s (env=%s, db=%s)", addr, cfg.Env, cfg.DBDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
