// Package memory provides in-process implementations of the repository
// stores.  They back the service tests and single-node dev runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/gate-presence/internal/model"
	"github.com/iliyamo/gate-presence/internal/repository"
)

// TicketStore is a map-backed repository.TicketStore.
type TicketStore struct {
	mu      sync.Mutex
	tickets map[string]model.Ticket
}

func NewTicketStore(tickets ...model.Ticket) *TicketStore {
	s := &TicketStore{tickets: make(map[string]model.Ticket, len(tickets))}
	for _, t := range tickets {
		s.Put(t)
	}
	return s
}

// Put inserts or replaces a ticket.  Test-only helper.
func (s *TicketStore) Put(t model.Ticket) {
	if !t.CurrentState.Valid() {
		t.CurrentState = model.StateOutside
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
}

func (s *TicketStore) GetByID(_ context.Context, id string) (model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return model.Ticket{}, repository.ErrTicketNotFound
	}
	return t, nil
}

func (s *TicketStore) UpdateState(_ context.Context, id string, from, to model.PresenceState, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return repository.ErrTicketNotFound
	}
	if t.CurrentState != from || t.Revoked {
		return repository.ErrStateConflict
	}
	t.CurrentState = to
	t.UpdatedAt = now
	s.tickets[id] = t
	return nil
}

func (s *TicketStore) BindDevice(_ context.Context, id, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return false, repository.ErrTicketNotFound
	}
	if t.DeviceBoundKey != "" {
		return false, nil
	}
	t.DeviceBoundKey = key
	s.tickets[id] = t
	return true, nil
}

// ScanLogStore is an in-memory append-only scan history.
type ScanLogStore struct {
	mu      sync.Mutex
	entries []model.ScanLogEntry
}

func NewScanLogStore() *ScanLogStore { return &ScanLogStore{} }

func (s *ScanLogStore) Append(_ context.Context, e model.ScanLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *ScanLogStore) ListSince(_ context.Context, ticketID string, since time.Time, limit int) ([]model.ScanLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ScanLogEntry
	for _, e := range s.entries {
		if e.TicketID == ticketID && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Entries returns a copy of every recorded entry in append order.
// Test-only helper.
func (s *ScanLogStore) Entries() []model.ScanLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ScanLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// GuardStateStore keeps guard rows in a map.
type GuardStateStore struct {
	mu     sync.Mutex
	states map[string]model.GuardState
}

func NewGuardStateStore() *GuardStateStore {
	return &GuardStateStore{states: make(map[string]model.GuardState)}
}

func (s *GuardStateStore) ensureLocked(id string) model.GuardState {
	g, ok := s.states[id]
	if !ok {
		g = model.GuardState{TicketID: id}
		s.states[id] = g
	}
	return g
}

func (s *GuardStateStore) Ensure(_ context.Context, ticketID string) (model.GuardState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(ticketID), nil
}

func (s *GuardStateStore) IncrementFail(_ context.Context, ticketID string, reason model.Reason, now time.Time) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.ensureLocked(ticketID)
	g.FailCount++
	g.Reason = reason
	at := now
	g.LastFailAt = &at
	s.states[ticketID] = g
	return g.FailCount, nil
}

func (s *GuardStateStore) ExtendBlock(_ context.Context, ticketID string, until time.Time, reason model.Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.ensureLocked(ticketID)
	if g.BlockedUntil == nil || g.BlockedUntil.Before(until) {
		u := until
		g.BlockedUntil = &u
		g.Reason = reason
	}
	s.states[ticketID] = g
	return nil
}

func (s *GuardStateStore) Reset(_ context.Context, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[ticketID] = model.GuardState{TicketID: ticketID}
	return nil
}

var (
	_ repository.TicketStore     = (*TicketStore)(nil)
	_ repository.ScanLogStore    = (*ScanLogStore)(nil)
	_ repository.GuardStateStore = (*GuardStateStore)(nil)
)
