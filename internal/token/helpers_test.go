package token_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/gate-presence/internal/config"
	kvmem "github.com/iliyamo/gate-presence/internal/kv/memory"
	"github.com/iliyamo/gate-presence/internal/model"
	"github.com/iliyamo/gate-presence/internal/repository/memory"
	"github.com/iliyamo/gate-presence/internal/token"
)

const testSecret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []token.MismatchAlert
}

func (n *recordingNotifier) DeviceMismatch(_ context.Context, a token.MismatchAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func testConfig() config.TokenConfig {
	return config.TokenConfig{
		Issuer:     "gate-presence",
		Audience:   "gate-scanner",
		TTL:        30 * time.Second,
		Leeway:     2 * time.Second,
		BindDevice: true,
	}
}

type fixture struct {
	svc      *token.Service
	tickets  *memory.TicketStore
	nonces   *kvmem.Store
	clock    *clock
	notifier *recordingNotifier
}

func newFixture(t *testing.T, keys token.KeyProvider, tickets ...model.Ticket) *fixture {
	t.Helper()
	f := &fixture{
		tickets:  memory.NewTicketStore(tickets...),
		clock:    newClock(),
		notifier: &recordingNotifier{},
	}
	f.nonces = kvmem.New(f.clock.Now)
	if keys == nil {
		k, err := token.NewDerivedKeys(testSecret, []string{"k1"})
		if err != nil {
			t.Fatalf("NewDerivedKeys: %v", err)
		}
		keys = k
	}
	svc, err := token.NewService(testConfig(), token.Deps{
		Keys:     keys,
		Tickets:  f.tickets,
		Nonces:   f.nonces,
		Notifier: f.notifier,
		Now:      f.clock.Now,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	return f
}
