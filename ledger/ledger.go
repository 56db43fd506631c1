/*
ledger.go - Activity ledger: log and delete

PURPOSE:
  The Ledger is the single entry point for mutations. Each operation
  validates its input, opens one unit of work on the Store scoped to the
  keys it touches, and either commits every effect or none.

LOG FLOW:
  1. Validate raw value and category
  2. Look up the emission factor (FactorNotFound aborts)
  3. DerivedValue = RawValue × Factor (overflow aborts)
  4. next = sequence + 1 (QuotaExceeded aborts if above the cap)
  5. Store record, advance sequence, bump the cumulative total,
     update both rollups, append an audit entry

DELETE FLOW:
  1. Find (caller, seq) (NotFound aborts)
  2. Remove the record and subtract it from both rollups using its stored
     category, derived value and LoggedAt day
  The sequence counter and the cumulative total are left untouched.

SEQUENCE NUMBERS:
  Per account, start at 1, gap-free on write, never reused. A deleted
  sequence number leaves a hole that queries skip.

SEE ALSO:
  - aggregate.go: Rollup arithmetic
  - registry.go: Admin and factor writes
  - delegation.go: Delegate grants
*/
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger owns every mutation of the store.
type Ledger struct {
	store    Store
	limits   Limits
	logger   *slog.Logger
	observer Observer
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithObserver registers an observer for committed and failed operations.
func WithObserver(o Observer) Option {
	return func(l *Ledger) {
		if o != nil {
			l.observer = o
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New builds a Ledger over store.
func New(store Store, limits Limits, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		limits:   limits,
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limits returns the configured limits.
func (l *Ledger) Limits() Limits { return l.limits }

// Bootstrap installs admin as the registry admin if the store has none yet.
// A persisted admin always wins over configuration.
func (l *Ledger) Bootstrap(ctx context.Context, admin Identity) error {
	if err := checkIdentity("admin", admin); err != nil {
		return err
	}
	return l.store.WithTx(ctx, Scope{Registry: RegistryWrite}, func(tx Tx) error {
		current, err := tx.Admin(ctx)
		if err != nil {
			return err
		}
		if current != "" {
			if current != admin {
				l.logger.Info("keeping persisted admin", "admin", current, "configured", admin)
			}
			return nil
		}
		l.logger.Info("admin bootstrapped", "admin", admin)
		return tx.SetAdmin(ctx, admin)
	})
}

// =============================================================================
// LOG
// =============================================================================

// LogActivity appends a record for caller and returns its sequence number.
func (l *Ledger) LogActivity(ctx context.Context, caller Identity, now Tick, category string, rawValue uint64) (uint64, error) {
	const op = "log_activity"

	if err := checkIdentity("caller", caller); err != nil {
		return 0, l.fail(op, err)
	}
	if rawValue == 0 {
		return 0, l.fail(op, &ArgumentError{Field: "raw_value", Reason: "must be positive"})
	}
	if err := l.limits.checkCategory(category); err != nil {
		return 0, l.fail(op, err)
	}

	var rec Activity
	scope := Scope{
		Accounts:   []Identity{caller},
		Categories: []string{category},
		Registry:   RegistryRead,
	}
	err := l.store.WithTx(ctx, scope, func(tx Tx) error {
		factor, ok, err := tx.Factor(ctx, category)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %q", ErrFactorNotFound, category)
		}

		hi, derived := bits.Mul64(rawValue, factor.Factor)
		if hi != 0 {
			return &ArgumentError{Field: "raw_value", Reason: "derived value overflows"}
		}

		current, err := tx.Sequence(ctx, caller)
		if err != nil {
			return err
		}
		next := current + 1
		if next > l.limits.MaxActivitiesPerAccount {
			return &QuotaError{Account: caller, Max: l.limits.MaxActivitiesPerAccount}
		}

		rec = Activity{
			Account:      caller,
			Seq:          next,
			Category:     category,
			RawValue:     rawValue,
			LoggedAt:     now,
			DerivedValue: derived,
		}
		if err := tx.PutActivity(ctx, rec); err != nil {
			return err
		}
		if err := tx.SetSequence(ctx, caller, next); err != nil {
			return err
		}
		if err := tx.AddTotalActivitiesLogged(ctx, 1); err != nil {
			return err
		}
		if err := applyAdd(ctx, tx, rec, l.limits.TicksPerDay); err != nil {
			return err
		}

		entry := newAuditEntry(now, caller, AuditActivityLogged)
		entry.Account, entry.Category, entry.Seq = caller, category, next
		entry.Detail = fmt.Sprintf("raw=%d derived=%d", rawValue, derived)
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return 0, l.fail(op, err)
	}

	l.observer.ActivityLogged(rec)
	l.logger.Debug("activity logged",
		"account", caller, "seq", rec.Seq, "category", category, "derived", rec.DerivedValue)
	return rec.Seq, nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteActivity removes caller's record seq and reverses its rollup effects.
func (l *Ledger) DeleteActivity(ctx context.Context, caller Identity, now Tick, seq uint64) error {
	const op = "delete_activity"

	if err := checkIdentity("caller", caller); err != nil {
		return l.fail(op, err)
	}

	// The category decides which rollup keys to lock, so read it first and
	// re-check inside the unit of work.
	found, ok, err := l.store.Activity(ctx, caller, seq)
	if err != nil {
		return l.fail(op, err)
	}
	if !ok {
		return l.fail(op, &NotFoundError{Account: caller, Seq: seq})
	}

	var rec Activity
	scope := Scope{
		Accounts:   []Identity{caller},
		Categories: []string{found.Category},
	}
	err = l.store.WithTx(ctx, scope, func(tx Tx) error {
		var ok bool
		var err error
		rec, ok, err = tx.Activity(ctx, caller, seq)
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{Account: caller, Seq: seq}
		}
		if err := tx.RemoveActivity(ctx, caller, seq); err != nil {
			return err
		}
		if err := applySubtract(ctx, tx, rec, l.limits.TicksPerDay); err != nil {
			return err
		}

		entry := newAuditEntry(now, caller, AuditActivityDeleted)
		entry.Account, entry.Category, entry.Seq = caller, rec.Category, seq
		entry.Detail = fmt.Sprintf("derived=%d", rec.DerivedValue)
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return l.fail(op, err)
	}

	l.observer.ActivityDeleted(rec)
	l.logger.Debug("activity deleted", "account", caller, "seq", seq, "category", rec.Category)
	return nil
}

// fail reports err to the observer and logger and returns it unchanged.
func (l *Ledger) fail(op string, err error) error {
	l.observer.OperationFailed(op, err)
	if IsClientError(err) {
		l.logger.Debug("operation rejected", "op", op, "kind", Kind(err), "error", err)
	} else {
		l.logger.Error("operation failed", "op", op, "error", err)
	}
	return err
}
