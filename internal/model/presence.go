package model

// PresenceState is the last known side of the gate for a ticket.
type PresenceState string

const (
	StateInside  PresenceState = "INSIDE"
	StateOutside PresenceState = "OUTSIDE"
)

// Valid reports whether s is one of the two presence states.
func (s PresenceState) Valid() bool { return s == StateInside || s == StateOutside }

// Toggle returns the opposite presence state.  Anything that is not INSIDE
// toggles to INSIDE so that a fresh ticket with an empty state enters first.
func (s PresenceState) Toggle() PresenceState {
	if s == StateInside {
		return StateOutside
	}
	return StateInside
}

// Verdict is the wire-visible outcome of one scan attempt.
type Verdict string

const (
	VerdictOK             Verdict = "OK"
	VerdictRevoked        Verdict = "REVOKED"
	VerdictBlocked        Verdict = "BLOCKED"
	VerdictAlreadyInside  Verdict = "ALREADY_INSIDE"
	VerdictAlreadyOutside Verdict = "ALREADY_OUTSIDE"
)

// AlreadyVerdict maps the state a ticket is already in to the matching
// idempotent rejection.
func AlreadyVerdict(s PresenceState) Verdict {
	if s == StateInside {
		return VerdictAlreadyInside
	}
	return VerdictAlreadyOutside
}

// Reason is the internal classification recorded next to a verdict.  Every
// BLOCKED verdict carries one of the block reasons; callers only ever see
// the generic verdict.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonRevoked        Reason = "REVOKED"
	ReasonActiveBlock    Reason = "ACTIVE_BLOCK"
	ReasonDeviceMismatch Reason = "BLOCK_DEVICE_MISMATCH"
	ReasonDoubleScan     Reason = "BLOCK_DOUBLE_SCAN"
	ReasonFlipFlop       Reason = "BLOCK_FLIP_FLOP"
	ReasonAlreadyInside  Reason = "ALREADY_INSIDE"
	ReasonAlreadyOutside Reason = "ALREADY_OUTSIDE"
	ReasonCooldown       Reason = "COOLDOWN"
	ReasonLockBusy       Reason = "LOCK_BUSY"
	// ReasonFault marks an attempt abandoned on an infrastructure failure.
	ReasonFault Reason = "INFRA_FAULT"
)

// GuardVerdict is the classification returned by the anti-sharing policy.
type GuardVerdict string

const (
	GuardAllow               GuardVerdict = "ALLOW"
	GuardBlockDeviceMismatch GuardVerdict = GuardVerdict(ReasonDeviceMismatch)
	GuardBlockDoubleScan     GuardVerdict = GuardVerdict(ReasonDoubleScan)
	GuardBlockFlipFlop       GuardVerdict = GuardVerdict(ReasonFlipFlop)
)

// Reason converts a blocking guard verdict into the reason recorded on the
// scan log and guard state.
func (g GuardVerdict) Reason() Reason {
	if g == GuardAllow {
		return ReasonNone
	}
	return Reason(g)
}
