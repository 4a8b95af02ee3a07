// Package presence is the single entry point that turns a presented ticket
// into an INSIDE/OUTSIDE transition or a logged refusal.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/oklog/ulid/v2"

	"github.com/iliyamo/gate-presence/internal/config"
	"github.com/iliyamo/gate-presence/internal/guard"
	"github.com/iliyamo/gate-presence/internal/kv"
	"github.com/iliyamo/gate-presence/internal/metrics"
	"github.com/iliyamo/gate-presence/internal/model"
	"github.com/iliyamo/gate-presence/internal/repository"
	"github.com/iliyamo/gate-presence/internal/token"
)

// defaultTokenGate labels scans from the token path that name no gate.
const defaultTokenGate = "scanner"

// TokenVerifier verifies and consumes a rotating token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (token.Claims, error)
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Tickets repository.TicketStore
	History repository.ScanLogStore
	Guard   *guard.Guard
	Tokens  TokenVerifier
	KV      kv.Store
	Locks   kv.Locker
	Metrics *metrics.Metrics // optional
	Log     *log.Logger      // optional
	Now     func() time.Time // optional
}

// Orchestrator runs the scan decision pipeline.  It holds no per-ticket
// state; mutual exclusion comes from the distributed lock.
type Orchestrator struct {
	cfg  config.ScanConfig
	deps Deps
}

func New(cfg config.ScanConfig, deps Deps) *Orchestrator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = log.New("presence")
	}
	return &Orchestrator{cfg: cfg, deps: deps}
}

func cooldownKey(ticketID string) string { return "cooldown:" + ticketID }

func lockKey(ticketID string) string { return "lock:ticket:" + ticketID }

// Scan handles an explicit-direction scan for a raw ticket identifier.
func (o *Orchestrator) Scan(ctx context.Context, req ScanRequest) (Result, error) {
	if req.TicketID == "" || req.Gate == "" {
		return Result{}, ErrInvalidRequest
	}
	if !req.Direction.Valid() {
		return Result{}, ErrInvalidDirection
	}
	return o.run(ctx, req)
}

// ScanByToken verifies a rotating token and toggles the presence state it
// was issued for.  Token errors are returned unchanged.
func (o *Orchestrator) ScanByToken(ctx context.Context, req TokenScanRequest) (Result, error) {
	if req.Token == "" {
		return Result{}, ErrMissingToken
	}
	c, err := o.deps.Tokens.Verify(ctx, req.Token)
	if err != nil {
		return Result{}, err
	}
	device := req.DeviceHash
	if device == "" {
		device = c.DeviceKey
	}
	gate := req.Gate
	if gate == "" {
		gate = defaultTokenGate
	}
	return o.run(ctx, ScanRequest{
		TicketID:   c.TicketID,
		Direction:  c.State.Toggle(),
		Gate:       gate,
		DeviceHash: device,
		ByUserID:   req.ByUserID,
	})
}

// run evaluates the pipeline in order and stops at the first refusal.
func (o *Orchestrator) run(ctx context.Context, req ScanRequest) (Result, error) {
	start := o.deps.Now()
	now := start.UTC()

	t, err := o.deps.Tickets.GetByID(ctx, req.TicketID)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return Result{}, err
		}
		return Result{}, o.fault("load ticket", req, err)
	}
	st, err := o.deps.Guard.State(ctx, t.ID)
	if err != nil {
		return Result{}, o.abort(ctx, "load guard state", req, t, start, err)
	}

	if t.Revoked {
		return o.deny(ctx, req, t, model.VerdictRevoked, model.ReasonRevoked, start)
	}

	if st.Blocked(now) {
		reason := model.ReasonActiveBlock
		if o.deps.Guard.DeviceMismatch(t, req.DeviceHash) {
			// A foreign device on an already blocked ticket gets the hard block.
			reason = model.ReasonDeviceMismatch
			if err := o.deps.Guard.BlockDeviceMismatch(ctx, t.ID); err != nil {
				return Result{}, o.abort(ctx, "block device mismatch", req, t, start, err)
			}
		}
		return o.deny(ctx, req, t, model.VerdictBlocked, reason, start)
	}

	gv, err := o.deps.Guard.Evaluate(ctx, t, req.DeviceHash, req.Gate, now)
	if err != nil {
		return Result{}, o.abort(ctx, "guard evaluate", req, t, start, err)
	}
	if gv != model.GuardAllow {
		return o.deny(ctx, req, t, model.VerdictBlocked, gv.Reason(), start)
	}

	if t.CurrentState == req.Direction {
		return o.deny(ctx, req, t, model.AlreadyVerdict(t.CurrentState), model.Reason(model.AlreadyVerdict(t.CurrentState)), start)
	}

	cooling, err := o.deps.KV.Exists(ctx, cooldownKey(t.ID))
	if err != nil {
		return Result{}, o.abort(ctx, "cooldown check", req, t, start, err)
	}
	if cooling {
		return o.deny(ctx, req, t, model.VerdictBlocked, model.ReasonCooldown, start)
	}

	lock, err := o.deps.Locks.TryLock(ctx, lockKey(t.ID), o.cfg.LockTTL)
	if errors.Is(err, kv.ErrLockBusy) {
		o.deps.Log.Warnj(log.JSON{"event": "lock_busy", "ticket_id": t.ID, "gate": req.Gate})
		return o.deny(ctx, req, t, model.VerdictBlocked, model.ReasonLockBusy, start)
	}
	if err != nil {
		return Result{}, o.abort(ctx, "acquire lock", req, t, start, err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			o.deps.Log.Errorf("release lock for ticket %s: %v", t.ID, err)
		}
	}()

	return o.commit(ctx, req, t, start)
}

// commit runs under the ticket lock.  The ticket is re-read so a transition
// that landed between the pre-checks and the lock is never applied twice.
// pre is the ticket as read before the lock.
func (o *Orchestrator) commit(ctx context.Context, req ScanRequest, pre model.Ticket, start time.Time) (Result, error) {
	now := start.UTC()
	t, err := o.deps.Tickets.GetByID(ctx, req.TicketID)
	if err != nil {
		return Result{}, o.abort(ctx, "reload ticket", req, pre, start, err)
	}
	if t.Revoked {
		return o.deny(ctx, req, t, model.VerdictRevoked, model.ReasonRevoked, start)
	}
	if t.CurrentState == req.Direction {
		return o.deny(ctx, req, t, model.AlreadyVerdict(t.CurrentState), model.Reason(model.AlreadyVerdict(t.CurrentState)), start)
	}

	err = o.deps.Tickets.UpdateState(ctx, t.ID, t.CurrentState, req.Direction, now)
	if errors.Is(err, repository.ErrStateConflict) {
		return o.deny(ctx, req, t, model.AlreadyVerdict(req.Direction), model.Reason(model.AlreadyVerdict(req.Direction)), start)
	}
	if err != nil {
		return Result{}, o.abort(ctx, "update state", req, t, start, err)
	}
	t.CurrentState = req.Direction
	t.UpdatedAt = now

	// The transition is committed from here on; later faults are logged
	// but do not turn an accepted scan into an error.
	if err := o.deps.KV.SetTTL(ctx, cooldownKey(t.ID), "1", o.cfg.Cooldown); err != nil {
		o.deps.Log.Errorf("set cooldown for ticket %s: %v", t.ID, err)
	}
	entry := o.entry(req, t, model.VerdictOK, model.ReasonNone, now)
	if err := o.deps.History.Append(ctx, entry); err != nil {
		o.deps.Log.Errorf("append scan log for ticket %s: %v", t.ID, err)
	}
	if err := o.deps.Guard.Reset(ctx, t.ID); err != nil {
		o.deps.Log.Errorf("reset guard for ticket %s: %v", t.ID, err)
	}

	o.deps.Metrics.ObserveScan(string(model.VerdictOK), "", o.deps.Now().Sub(start))
	o.deps.Log.Infof("ticket %s %s at gate %s", t.ID, t.CurrentState, req.Gate)
	return Result{Verdict: model.VerdictOK, Ticket: t, Log: entry}, nil
}

// deny writes the audit entry for a refused attempt and registers the
// guard failure.
func (o *Orchestrator) deny(ctx context.Context, req ScanRequest, t model.Ticket, v model.Verdict, reason model.Reason, start time.Time) (Result, error) {
	entry := o.entry(req, t, v, reason, start.UTC())
	appendErr := o.deps.History.Append(ctx, entry)
	_, failErr := o.deps.Guard.RegisterFail(ctx, t.ID, reason)
	if appendErr != nil {
		return Result{}, o.fault("append scan log", req, appendErr)
	}
	if failErr != nil {
		return Result{}, o.fault("register guard failure", req, failErr)
	}
	o.deps.Metrics.ObserveScan(string(v), string(reason), o.deps.Now().Sub(start))
	o.deps.Log.Debugf("ticket %s refused at gate %s: %s (%s)", t.ID, req.Gate, v, reason)
	return Result{Verdict: v, Reason: reason, Ticket: t, Log: entry}, nil
}

func (o *Orchestrator) entry(req ScanRequest, t model.Ticket, v model.Verdict, reason model.Reason, now time.Time) model.ScanLogEntry {
	return model.ScanLogEntry{
		ID:         ulid.Make().String(),
		TicketID:   t.ID,
		EventID:    t.EventID,
		ByUserID:   req.ByUserID,
		Direction:  req.Direction,
		Verdict:    v,
		Reason:     reason,
		Gate:       req.Gate,
		DeviceHash: req.DeviceHash,
		CreatedAt:  now,
	}
}

// abort records a best-effort INFRA_FAULT entry for an attempt that failed
// after the ticket was loaded, then reports the fault.  The guard is not
// charged.
func (o *Orchestrator) abort(ctx context.Context, step string, req ScanRequest, t model.Ticket, start time.Time, err error) error {
	entry := o.entry(req, t, model.VerdictBlocked, model.ReasonFault, start.UTC())
	if appendErr := o.deps.History.Append(ctx, entry); appendErr != nil {
		o.deps.Log.Errorf("append fault entry for ticket %s: %v", t.ID, appendErr)
	}
	o.deps.Metrics.ObserveScan(string(model.VerdictBlocked), string(model.ReasonFault), o.deps.Now().Sub(start))
	return o.fault(step, req, err)
}

// fault logs an infrastructure failure and wraps it for the caller, who is
// expected to retry with backoff.
func (o *Orchestrator) fault(step string, req ScanRequest, err error) error {
	o.deps.Log.Errorj(log.JSON{"event": "scan_fault", "step": step, "ticket_id": req.TicketID, "gate": req.Gate, "error": err.Error()})
	return fmt.Errorf("%s: %w", step, err)
}
