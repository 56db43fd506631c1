/*
registry.go - Emission factor registry and admin identity

PURPOSE:
  The registry maps a category to the factor that converts one unit of raw
  activity into derived emissions. Only the admin writes it. Entries are
  upserted, never deleted, and stored activities are never recomputed when
  a factor changes.

ADMIN:
  The admin is a single stored identity. Bootstrap seeds it from
  configuration; SetAdmin hands it over. Both writes are guarded by the
  same check: the caller must be the current admin.
*/
package ledger

import (
	"context"
	"fmt"
)

// SetAdmin transfers adminship from caller to newAdmin.
func (l *Ledger) SetAdmin(ctx context.Context, caller Identity, now Tick, newAdmin Identity) error {
	const op = "set_admin"

	err := l.store.WithTx(ctx, Scope{Registry: RegistryWrite}, func(tx Tx) error {
		if err := requireAdmin(ctx, tx, caller, op); err != nil {
			return err
		}
		if err := checkIdentity("new_admin", newAdmin); err != nil {
			return err
		}
		if newAdmin == caller {
			return &ArgumentError{Field: "new_admin", Reason: "must differ from the current admin"}
		}
		if err := tx.SetAdmin(ctx, newAdmin); err != nil {
			return err
		}
		entry := newAuditEntry(now, caller, AuditAdminChanged)
		entry.Detail = fmt.Sprintf("%s -> %s", caller, newAdmin)
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return l.fail(op, err)
	}

	l.logger.Info("admin changed", "from", caller, "to", newAdmin, "tick", now)
	return nil
}

// UpdateFactor upserts the factor for category and stamps both the entry and
// the registry's last-update marker with now.
func (l *Ledger) UpdateFactor(ctx context.Context, caller Identity, now Tick, category string, factor uint64, unit, description string) error {
	const op = "update_factor"

	f := EmissionFactor{
		Category:    category,
		Factor:      factor,
		Unit:        unit,
		Description: description,
		UpdatedAt:   now,
	}

	err := l.store.WithTx(ctx, Scope{Registry: RegistryWrite}, func(tx Tx) error {
		// Authorization is checked before the arguments so a non-admin
		// learns nothing about validation rules.
		if err := requireAdmin(ctx, tx, caller, op); err != nil {
			return err
		}
		if err := l.validateFactor(f); err != nil {
			return err
		}
		if err := tx.PutFactor(ctx, f); err != nil {
			return err
		}
		if err := tx.SetLastFactorUpdate(ctx, now); err != nil {
			return err
		}
		entry := newAuditEntry(now, caller, AuditFactorUpdated)
		entry.Category = category
		entry.Detail = fmt.Sprintf("factor=%d unit=%s", factor, unit)
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return l.fail(op, err)
	}

	l.observer.FactorUpdated(f)
	l.logger.Info("emission factor updated", "category", category, "factor", factor, "unit", unit, "tick", now)
	return nil
}

func (l *Ledger) validateFactor(f EmissionFactor) error {
	if f.Factor == 0 {
		return &ArgumentError{Field: "factor", Reason: "must be positive"}
	}
	if err := l.limits.checkCategory(f.Category); err != nil {
		return err
	}
	if err := checkLength("unit", f.Unit, l.limits.MaxUnitLength); err != nil {
		return err
	}
	return checkLength("description", f.Description, l.limits.MaxDescriptionLength)
}

func requireAdmin(ctx context.Context, tx Tx, caller Identity, op string) error {
	admin, err := tx.Admin(ctx)
	if err != nil {
		return err
	}
	if caller == "" || admin == "" || caller != admin {
		return &UnauthorizedError{Caller: caller, Operation: op}
	}
	return nil
}

// GetFactor returns the factor for category. A missing category is reported
// through the bool, not as an error.
func (l *Ledger) GetFactor(ctx context.Context, category string) (EmissionFactor, bool, error) {
	return l.store.Factor(ctx, category)
}

// ListFactors returns every registered factor ordered by category.
func (l *Ledger) ListFactors(ctx context.Context) ([]EmissionFactor, error) {
	return l.store.Factors(ctx)
}

// GetAdmin returns the current admin identity.
func (l *Ledger) GetAdmin(ctx context.Context) (Identity, error) {
	return l.store.Admin(ctx)
}

// GetLastFactorUpdateTick returns the tick of the most recent factor write.
func (l *Ledger) GetLastFactorUpdateTick(ctx context.Context) (Tick, error) {
	return l.store.LastFactorUpdate(ctx)
}
