package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/giantswarm/mcp-fsgate/instrumentation"
	"github.com/giantswarm/mcp-fsgate/security"
)

// ErrConflict indicates the session is owned by a live process other than
// the caller. Callers must not retry blindly; that would busy-loop against
// a live owner.
var ErrConflict = errors.New("session: owned by a live process")

// OwnershipRecord is the persisted marker of which process currently
// considers itself the active owner of a session.
type OwnershipRecord struct {
	PID       int       `json:"pid"`
	CreatedAt time.Time `json:"created_at"`
}

// Decision is the outcome of ownership arbitration.
type Decision int

const (
	// DecisionMissing means no record exists. The caller creates a fresh
	// record itself; arbitration never writes.
	DecisionMissing Decision = iota

	// DecisionAllowTouch means the caller already owns the session.
	DecisionAllowTouch

	// DecisionAllowAdopt means the recorded owner is dead. The caller may
	// persist the returned record to claim the session.
	DecisionAllowAdopt

	// DecisionConflict means the session is owned by a different, live
	// process.
	DecisionConflict
)

// String returns the decision name for logging
func (d Decision) String() string {
	switch d {
	case DecisionMissing:
		return "missing"
	case DecisionAllowTouch:
		return "allow_touch"
	case DecisionAllowAdopt:
		return "allow_adopt"
	case DecisionConflict:
		return "conflict"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Decide arbitrates ownership of a session. It is pure: it reads the given
// record, consults the liveness probe, and returns a decision plus the
// record the caller should persist (nil unless the decision is adopt).
//
// On adoption the returned record carries the caller's PID but preserves
// CreatedAt from the old record, so session age survives owner handoff.
func Decide(record *OwnershipRecord, callerPID int, alive func(pid int) bool) (Decision, *OwnershipRecord) {
	if record == nil {
		return DecisionMissing, nil
	}
	if record.PID == callerPID {
		return DecisionAllowTouch, nil
	}
	if alive(record.PID) {
		return DecisionConflict, nil
	}
	return DecisionAllowAdopt, &OwnershipRecord{
		PID:       callerPID,
		CreatedAt: record.CreatedAt,
	}
}

// Arbiter runs the read-decide-write ownership sequence against a record
// store. The sequence is advisory, not transactional: two processes can
// both observe "missing" and both write, and the last writer wins. The
// surrounding protocol treats that as a benign outcome.
type Arbiter struct {
	store  RecordStore
	alive  func(pid int) bool
	now    func() time.Time
	logger *slog.Logger

	auditor         *security.Auditor
	instrumentation *instrumentation.Instrumentation
}

// NewArbiter creates an arbiter over the given record store. A nil probe
// falls back to the OS process-table probe; a nil clock falls back to
// time.Now.
func NewArbiter(store RecordStore, alive func(pid int) bool, now func() time.Time) *Arbiter {
	if alive == nil {
		alive = IsProcessAlive
	}
	if now == nil {
		now = time.Now
	}
	return &Arbiter{
		store:  store,
		alive:  alive,
		now:    now,
		logger: slog.Default(),
	}
}

// SetLogger sets a custom logger
func (a *Arbiter) SetLogger(logger *slog.Logger) {
	a.logger = logger
}

// SetAuditor sets the security auditor for adoption and conflict events
func (a *Arbiter) SetAuditor(auditor *security.Auditor) {
	a.auditor = auditor
}

// SetInstrumentation sets OpenTelemetry instrumentation for the arbiter
func (a *Arbiter) SetInstrumentation(inst *instrumentation.Instrumentation) {
	a.instrumentation = inst
}

// Acquire claims sessionID for callerPID. On missing it persists a fresh
// record, on adopt it persists the adoption record, on touch it persists
// nothing. A conflict returns ErrConflict with the decision.
func (a *Arbiter) Acquire(ctx context.Context, sessionID string, callerPID int) (Decision, error) {
	record, err := a.store.Load(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return DecisionMissing, err
	}

	decision, next := Decide(record, callerPID, a.alive)

	switch decision {
	case DecisionMissing:
		fresh := &OwnershipRecord{PID: callerPID, CreatedAt: a.now()}
		if err := a.store.Save(ctx, sessionID, fresh); err != nil {
			return decision, err
		}
		a.logger.Debug("Claimed session", "session_id", sessionID, "pid", callerPID)

	case DecisionAllowTouch:
		// Caller already owns the session, nothing to persist

	case DecisionAllowAdopt:
		if err := a.store.Save(ctx, sessionID, next); err != nil {
			return decision, err
		}
		a.logger.Info("Adopted session from dead owner",
			"session_id", sessionID,
			"old_pid", record.PID,
			"new_pid", callerPID)
		if a.auditor != nil {
			a.auditor.LogSessionAdopted(sessionID, record.PID, callerPID)
		}
		if a.instrumentation != nil {
			a.instrumentation.Metrics().RecordSessionAdopted(ctx)
		}

	case DecisionConflict:
		a.logger.Warn("Session ownership conflict",
			"session_id", sessionID,
			"owner_pid", record.PID,
			"caller_pid", callerPID)
		if a.auditor != nil {
			a.auditor.LogSessionConflict(sessionID, record.PID, callerPID)
		}
		if a.instrumentation != nil {
			a.instrumentation.Metrics().RecordSessionConflict(ctx)
		}
		return decision, fmt.Errorf("session %s owned by pid %d: %w", sessionID, record.PID, ErrConflict)
	}

	return decision, nil
}

// Release drops the caller's ownership record if the caller owns the
// session. Releasing a session owned by someone else is a no-op.
func (a *Arbiter) Release(ctx context.Context, sessionID string, callerPID int) error {
	record, err := a.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if record.PID != callerPID {
		return nil
	}
	return a.store.Delete(ctx, sessionID)
}
