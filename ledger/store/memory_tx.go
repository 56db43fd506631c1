package store

import (
	"context"
	"fmt"

	"github.com/warp/footprint-ledger/ledger"
)

// memoryTx writes straight into the locked shards and remembers how to
// undo each write.
type memoryTx struct {
	m     *Memory
	scope ledger.Scope

	undo         []func()
	pendingTotal uint64
	pendingAudit []ledger.AuditEntry
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.pendingTotal = 0
	tx.pendingAudit = nil
}

func outOfScope(kind, key string) error {
	return fmt.Errorf("%w: %s %q", ledger.ErrOutOfScope, kind, key)
}

func (tx *memoryTx) account(account ledger.Identity) (*accountShard, error) {
	if !tx.scope.HasAccount(account) {
		return nil, outOfScope("account", string(account))
	}
	return tx.m.accountShard(account), nil
}

func (tx *memoryTx) category(category string) (*categoryShard, error) {
	if !tx.scope.HasCategory(category) {
		return nil, outOfScope("category", category)
	}
	return tx.m.categoryShard(category), nil
}

func (tx *memoryTx) registry(write bool) error {
	switch {
	case tx.scope.Registry == ledger.RegistryWrite:
		return nil
	case tx.scope.Registry == ledger.RegistryRead && !write:
		return nil
	}
	return outOfScope("registry", "")
}

// =============================================================================
// REGISTRY
// =============================================================================

func (tx *memoryTx) Admin(_ context.Context) (ledger.Identity, error) {
	if err := tx.registry(false); err != nil {
		return "", err
	}
	return tx.m.admin, nil
}

func (tx *memoryTx) SetAdmin(_ context.Context, admin ledger.Identity) error {
	if err := tx.registry(true); err != nil {
		return err
	}
	prev := tx.m.admin
	tx.undo = append(tx.undo, func() { tx.m.admin = prev })
	tx.m.admin = admin
	return nil
}

func (tx *memoryTx) SetLastFactorUpdate(_ context.Context, tick ledger.Tick) error {
	if err := tx.registry(true); err != nil {
		return err
	}
	prev := tx.m.lastFactorUpdate
	tx.undo = append(tx.undo, func() { tx.m.lastFactorUpdate = prev })
	tx.m.lastFactorUpdate = tick
	return nil
}

// AddTotalActivitiesLogged is applied atomically at commit, so it needs no
// registry lock.
func (tx *memoryTx) AddTotalActivitiesLogged(_ context.Context, n uint64) error {
	tx.pendingTotal += n
	return nil
}

func (tx *memoryTx) Factor(_ context.Context, category string) (ledger.EmissionFactor, bool, error) {
	if err := tx.registry(false); err != nil {
		return ledger.EmissionFactor{}, false, err
	}
	f, ok := tx.m.factors[category]
	return f, ok, nil
}

func (tx *memoryTx) PutFactor(_ context.Context, f ledger.EmissionFactor) error {
	if err := tx.registry(true); err != nil {
		return err
	}
	prev, existed := tx.m.factors[f.Category]
	tx.undo = append(tx.undo, func() {
		if existed {
			tx.m.factors[f.Category] = prev
		} else {
			delete(tx.m.factors, f.Category)
		}
	})
	tx.m.factors[f.Category] = f
	return nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (tx *memoryTx) Sequence(_ context.Context, account ledger.Identity) (uint64, error) {
	s, err := tx.account(account)
	if err != nil {
		return 0, err
	}
	return s.sequences[account], nil
}

func (tx *memoryTx) SetSequence(_ context.Context, account ledger.Identity, seq uint64) error {
	s, err := tx.account(account)
	if err != nil {
		return err
	}
	prev, existed := s.sequences[account]
	tx.undo = append(tx.undo, func() {
		if existed {
			s.sequences[account] = prev
		} else {
			delete(s.sequences, account)
		}
	})
	s.sequences[account] = seq
	return nil
}

func (tx *memoryTx) Activity(_ context.Context, account ledger.Identity, seq uint64) (ledger.Activity, bool, error) {
	s, err := tx.account(account)
	if err != nil {
		return ledger.Activity{}, false, err
	}
	a, ok := s.activities[account][seq]
	return a, ok, nil
}

func (tx *memoryTx) PutActivity(_ context.Context, a ledger.Activity) error {
	s, err := tx.account(a.Account)
	if err != nil {
		return err
	}
	records := s.activities[a.Account]
	if records == nil {
		records = make(map[uint64]ledger.Activity)
		s.activities[a.Account] = records
	}
	prev, existed := records[a.Seq]
	tx.undo = append(tx.undo, func() {
		if existed {
			records[a.Seq] = prev
		} else {
			delete(records, a.Seq)
		}
	})
	records[a.Seq] = a
	return nil
}

func (tx *memoryTx) RemoveActivity(_ context.Context, account ledger.Identity, seq uint64) error {
	s, err := tx.account(account)
	if err != nil {
		return err
	}
	records := s.activities[account]
	prev, existed := records[seq]
	if !existed {
		return nil
	}
	tx.undo = append(tx.undo, func() { records[seq] = prev })
	delete(records, seq)
	return nil
}

func (tx *memoryTx) Daily(_ context.Context, account ledger.Identity, day ledger.Day) (uint64, error) {
	s, err := tx.account(account)
	if err != nil {
		return 0, err
	}
	return s.daily[account][day], nil
}

func (tx *memoryTx) SetDaily(_ context.Context, agg ledger.DailyAggregate) error {
	s, err := tx.account(agg.Account)
	if err != nil {
		return err
	}
	days := s.daily[agg.Account]
	if days == nil {
		days = make(map[ledger.Day]uint64)
		s.daily[agg.Account] = days
	}
	prev, existed := days[agg.Day]
	tx.undo = append(tx.undo, func() {
		if existed {
			days[agg.Day] = prev
		} else {
			delete(days, agg.Day)
		}
	})
	if agg.Total == 0 {
		delete(days, agg.Day)
	} else {
		days[agg.Day] = agg.Total
	}
	return nil
}

func (tx *memoryTx) Delegate(_ context.Context, account, delegate ledger.Identity) (bool, error) {
	s, err := tx.account(account)
	if err != nil {
		return false, err
	}
	return s.delegates[account][delegate], nil
}

func (tx *memoryTx) SetDelegate(_ context.Context, grant ledger.DelegateGrant) error {
	s, err := tx.account(grant.Account)
	if err != nil {
		return err
	}
	grants := s.delegates[grant.Account]
	if grants == nil {
		grants = make(map[ledger.Identity]bool)
		s.delegates[grant.Account] = grants
	}
	prev, existed := grants[grant.Delegate]
	tx.undo = append(tx.undo, func() {
		if existed {
			grants[grant.Delegate] = prev
		} else {
			delete(grants, grant.Delegate)
		}
	})
	if grant.Active {
		grants[grant.Delegate] = true
	} else {
		delete(grants, grant.Delegate)
	}
	return nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (tx *memoryTx) CategoryStat(_ context.Context, category string) (ledger.CategoryStatistic, error) {
	s, err := tx.category(category)
	if err != nil {
		return ledger.CategoryStatistic{}, err
	}
	stat := s.stats[category]
	stat.Category = category
	return stat, nil
}

func (tx *memoryTx) SetCategoryStat(_ context.Context, stat ledger.CategoryStatistic) error {
	s, err := tx.category(stat.Category)
	if err != nil {
		return err
	}
	prev, existed := s.stats[stat.Category]
	tx.undo = append(tx.undo, func() {
		if existed {
			s.stats[stat.Category] = prev
		} else {
			delete(s.stats, stat.Category)
		}
	})
	s.stats[stat.Category] = stat
	return nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (tx *memoryTx) AppendAudit(_ context.Context, entry ledger.AuditEntry) error {
	tx.pendingAudit = append(tx.pendingAudit, entry)
	return nil
}
