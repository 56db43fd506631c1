package ledger

import "context"

// =============================================================================
// DELEGATION
// =============================================================================
//
// Grants are recorded but do not empower a delegate to mutate the grantor's
// ledger. Only read-side checks (IsDelegate, CanActFor) consult them.

// AddDelegate grants delegate on caller's account. The caller must have
// logged at least one activity.
func (l *Ledger) AddDelegate(ctx context.Context, caller Identity, now Tick, delegate Identity) error {
	const op = "add_delegate"

	if err := checkIdentity("caller", caller); err != nil {
		return l.fail(op, err)
	}
	if err := checkIdentity("delegate", delegate); err != nil {
		return l.fail(op, err)
	}
	if delegate == caller {
		return l.fail(op, &ArgumentError{Field: "delegate", Reason: "must differ from caller"})
	}

	err := l.store.WithTx(ctx, Scope{Accounts: []Identity{caller}}, func(tx Tx) error {
		seq, err := tx.Sequence(ctx, caller)
		if err != nil {
			return err
		}
		if seq == 0 {
			return &UnauthorizedError{Caller: caller, Operation: op}
		}
		if err := tx.SetDelegate(ctx, DelegateGrant{Account: caller, Delegate: delegate, Active: true}); err != nil {
			return err
		}
		entry := newAuditEntry(now, caller, AuditDelegateAdded)
		entry.Account, entry.Detail = caller, string(delegate)
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return l.fail(op, err)
	}
	l.logger.Info("delegate added", "account", caller, "delegate", delegate)
	return nil
}

// RemoveDelegate revokes an active grant.
func (l *Ledger) RemoveDelegate(ctx context.Context, caller Identity, now Tick, delegate Identity) error {
	const op = "remove_delegate"

	if err := checkIdentity("caller", caller); err != nil {
		return l.fail(op, err)
	}

	err := l.store.WithTx(ctx, Scope{Accounts: []Identity{caller}}, func(tx Tx) error {
		active, err := tx.Delegate(ctx, caller, delegate)
		if err != nil {
			return err
		}
		if !active {
			return ErrNotFound
		}
		if err := tx.SetDelegate(ctx, DelegateGrant{Account: caller, Delegate: delegate, Active: false}); err != nil {
			return err
		}
		entry := newAuditEntry(now, caller, AuditDelegateRemoved)
		entry.Account, entry.Detail = caller, string(delegate)
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return l.fail(op, err)
	}
	l.logger.Info("delegate removed", "account", caller, "delegate", delegate)
	return nil
}

// IsDelegate reports whether delegate holds an active grant on account.
func (l *Ledger) IsDelegate(ctx context.Context, account, delegate Identity) (bool, error) {
	return l.store.Delegate(ctx, account, delegate)
}

// CanActFor reports whether caller may act on account's behalf for reads:
// the caller is the account itself or one of its active delegates.
func (l *Ledger) CanActFor(ctx context.Context, account, caller Identity) (bool, error) {
	if caller == "" {
		return false, nil
	}
	if caller == account {
		return true, nil
	}
	return l.store.Delegate(ctx, account, caller)
}
