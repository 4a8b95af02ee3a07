// Package memory implements kv.Store and kv.Locker in process.  Expiry is
// evaluated against an injectable clock so tests can move time.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/gate-presence/internal/kv"
)

type item struct {
	value   string
	expires time.Time // zero means no expiry
	owner   uint64
}

// Store is a mutex-guarded map with per-key expiry.
type Store struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
	seq   uint64
}

// New returns an empty store.  A nil clock uses time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{items: make(map[string]item), now: now}
}

func (s *Store) liveLocked(key string) (item, bool) {
	it, ok := s.items[key]
	if !ok {
		return item{}, false
	}
	if !it.expires.IsZero() && !s.now().Before(it.expires) {
		delete(s.items, key)
		return item{}, false
	}
	return it, true
}

func (s *Store) SetTTL(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := item{value: value}
	if ttl > 0 {
		it.expires = s.now().Add(ttl)
	}
	s.items[key] = it
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.liveLocked(key)
	return ok, nil
}

func (s *Store) Consume(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.liveLocked(key)
	if !ok {
		return "", false, nil
	}
	delete(s.items, key)
	return it.value, true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *Store) TryLock(_ context.Context, key string, ttl time.Duration) (kv.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.liveLocked(key); held {
		return nil, kv.ErrLockBusy
	}
	s.seq++
	it := item{value: "lock", owner: s.seq}
	if ttl > 0 {
		it.expires = s.now().Add(ttl)
	}
	s.items[key] = it
	return &lock{s: s, key: key, owner: s.seq}, nil
}

type lock struct {
	s     *Store
	key   string
	owner uint64
}

func (l *lock) Release(context.Context) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if it, ok := l.s.items[l.key]; ok && it.owner == l.owner {
		delete(l.s.items, l.key)
	}
	return nil
}

var (
	_ kv.Store  = (*Store)(nil)
	_ kv.Locker = (*Store)(nil)
)
