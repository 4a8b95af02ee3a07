// Package guard keeps per-ticket anti-sharing bookkeeping and classifies
// candidate scans.  It detects foreign devices, simultaneous use from
// different devices, and rapid toggling, and imposes escalating blocks.
package guard

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/gate-presence/internal/config"
	"github.com/iliyamo/gate-presence/internal/model"
	"github.com/iliyamo/gate-presence/internal/repository"
)

// Guard evaluates policy against scan history and maintains guard state.
type Guard struct {
	cfg     config.GuardConfig
	states  repository.GuardStateStore
	history repository.ScanLogStore
	log     *log.Logger
	now     func() time.Time
}

// New builds a Guard.  logger and now may be nil.
func New(cfg config.GuardConfig, states repository.GuardStateStore, history repository.ScanLogStore, logger *log.Logger, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.New("guard")
	}
	return &Guard{cfg: cfg, states: states, history: history, log: logger, now: now}
}

// Backoff returns the exponential block for the n-th failure:
// min(base * 2^(n-1), max).  n == 0 yields no block.
func (g *Guard) Backoff(n uint) time.Duration {
	if n == 0 {
		return 0
	}
	d := g.cfg.BaseBlock
	for i := uint(1); i < n; i++ {
		if d >= g.cfg.MaxBlock/2 {
			return g.cfg.MaxBlock
		}
		d *= 2
	}
	if d > g.cfg.MaxBlock {
		return g.cfg.MaxBlock
	}
	return d
}

// State returns the guard row for ticketID, creating it when missing.
func (g *Guard) State(ctx context.Context, ticketID string) (model.GuardState, error) {
	return g.states.Ensure(ctx, ticketID)
}

// IsBlocked reports whether an active block is in force.
func (g *Guard) IsBlocked(ctx context.Context, ticketID string) (bool, error) {
	st, err := g.states.Ensure(ctx, ticketID)
	if err != nil {
		return false, err
	}
	return st.Blocked(g.now()), nil
}

// DeviceMismatch reports whether a ticket bound to one device is being
// presented by another.  An absent fingerprint carries no signal.
func (g *Guard) DeviceMismatch(t model.Ticket, incoming string) bool {
	if t.DeviceBoundKey == "" || incoming == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(t.DeviceBoundKey), []byte(incoming)) != 1
}

// Evaluate classifies a candidate scan.  A device mismatch imposes the
// fixed mismatch block immediately; the other verdicts leave blocking to
// the caller's RegisterFail.
func (g *Guard) Evaluate(ctx context.Context, t model.Ticket, incoming, gate string, now time.Time) (model.GuardVerdict, error) {
	if g.DeviceMismatch(t, incoming) {
		if err := g.BlockDeviceMismatch(ctx, t.ID); err != nil {
			return "", err
		}
		g.log.Warnj(log.JSON{"event": "device_mismatch", "ticket_id": t.ID, "gate": gate})
		return model.GuardBlockDeviceMismatch, nil
	}

	lookback := g.cfg.RaceWindow
	if g.cfg.FlipFlopWindow > lookback {
		lookback = g.cfg.FlipFlopWindow
	}
	recent, err := g.history.ListSince(ctx, t.ID, now.Add(-lookback), g.cfg.HistoryLimit)
	if err != nil {
		return "", fmt.Errorf("scan history: %w", err)
	}

	raceFrom := now.Add(-g.cfg.RaceWindow)
	flipFrom := now.Add(-g.cfg.FlipFlopWindow)
	toggles := 0
	for _, e := range recent {
		if !e.CreatedAt.Before(raceFrom) && g.racing(e, incoming, gate) {
			g.log.Warnj(log.JSON{"event": "double_scan", "ticket_id": t.ID, "gate": gate, "other_gate": e.Gate})
			return model.GuardBlockDoubleScan, nil
		}
		if !e.CreatedAt.Before(flipFrom) && e.Verdict == model.VerdictOK {
			toggles++
		}
	}
	if toggles >= g.cfg.FlipFlopMax {
		g.log.Warnj(log.JSON{"event": "flip_flop", "ticket_id": t.ID, "toggles": toggles})
		return model.GuardBlockFlipFlop, nil
	}
	return model.GuardAllow, nil
}

// racing decides whether a recent entry indicates simultaneous use.
func (g *Guard) racing(e model.ScanLogEntry, incoming, gate string) bool {
	if incoming != "" && e.DeviceHash != "" && e.DeviceHash != incoming {
		return true
	}
	return g.cfg.RaceCountsGate && gate != "" && e.Gate != "" && e.Gate != gate
}

// RegisterFail records a failure and escalates the block to
// now + Backoff(failCount).  Blocks never shorten: when a longer block is
// already in force (a device-mismatch block, say) that block stays and the
// stored end can lie beyond the returned one.  It returns the end computed
// from the backoff schedule.
func (g *Guard) RegisterFail(ctx context.Context, ticketID string, reason model.Reason) (time.Time, error) {
	now := g.now().UTC()
	n, err := g.states.IncrementFail(ctx, ticketID, reason, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("register fail: %w", err)
	}
	until := now.Add(g.Backoff(n))
	if err := g.states.ExtendBlock(ctx, ticketID, until, reason); err != nil {
		return time.Time{}, fmt.Errorf("register fail: %w", err)
	}
	g.log.Debugf("ticket %s fail #%d (%s) blocked until %s", ticketID, n, reason, until.Format(time.RFC3339))
	return until, nil
}

// BlockTemporarily imposes a fixed block of d, bypassing the exponential
// schedule.  An already longer block is kept.
func (g *Guard) BlockTemporarily(ctx context.Context, ticketID string, d time.Duration, reason model.Reason) error {
	if d <= 0 {
		return nil
	}
	return g.states.ExtendBlock(ctx, ticketID, g.now().UTC().Add(d), reason)
}

// BlockDeviceMismatch applies the fixed hard block for a foreign device.
func (g *Guard) BlockDeviceMismatch(ctx context.Context, ticketID string) error {
	return g.BlockTemporarily(ctx, ticketID, g.cfg.MismatchBlock, model.ReasonDeviceMismatch)
}

// Reset zeroes the bookkeeping after a committed transition.
func (g *Guard) Reset(ctx context.Context, ticketID string) error {
	return g.states.Reset(ctx, ticketID)
}
