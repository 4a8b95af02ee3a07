package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/gate-presence/internal/kv"
	"github.com/iliyamo/gate-presence/internal/kv/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

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

func TestStore_ExpiryAndConsume(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := memory.New(clk.Now)

	_ = s.SetTTL(ctx, "nonce:1", "t-1", 30*time.Second)
	v, ok, _ := s.Consume(ctx, "nonce:1")
	if !ok || v != "t-1" {
		t.Fatalf("Consume = %q, %v", v, ok)
	}
	if _, ok, _ := s.Consume(ctx, "nonce:1"); ok {
		t.Fatal("nonce consumed twice")
	}

	_ = s.SetTTL(ctx, "nonce:2", "t-1", 30*time.Second)
	clk.Advance(30 * time.Second)
	if ok, _ := s.Exists(ctx, "nonce:2"); ok {
		t.Error("expired key still visible")
	}
}

func TestStore_LockExpiresAndReleaseIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := memory.New(clk.Now)

	l1, err := s.TryLock(ctx, "k", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.TryLock(ctx, "k", time.Second); !errors.Is(err, kv.ErrLockBusy) {
		t.Fatalf("expected ErrLockBusy, got %v", err)
	}
	clk.Advance(time.Second)
	l2, err := s.TryLock(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("lease did not expire: %v", err)
	}
	_ = l1.Release(ctx)
	if _, err := s.TryLock(ctx, "k", time.Second); !errors.Is(err, kv.ErrLockBusy) {
		t.Fatal("stale holder released the current lease")
	}
	_ = l2.Release(ctx)
	if _, err := s.TryLock(ctx, "k", time.Second); err != nil {
		t.Fatalf("lock not free after release: %v", err)
	}
}
