package sqlite

import (
	"context"
	"fmt"

	"github.com/warp/footprint-ledger/ledger"
)

// txStore is the ledger.Tx view of an open SQL transaction.
type txStore struct {
	tx querier
}

func (ts *txStore) exec(ctx context.Context, what, query string, args ...any) error {
	if _, err := ts.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	return nil
}

func (ts *txStore) Admin(ctx context.Context) (ledger.Identity, error) {
	return getAdmin(ctx, ts.tx)
}

func (ts *txStore) SetAdmin(ctx context.Context, admin ledger.Identity) error {
	return ts.exec(ctx, "set admin", "UPDATE registry SET admin = ? WHERE id = 1", admin)
}

func (ts *txStore) SetLastFactorUpdate(ctx context.Context, tick ledger.Tick) error {
	return ts.exec(ctx, "set last factor update",
		"UPDATE registry SET last_factor_update = ? WHERE id = 1", i64(uint64(tick)))
}

func (ts *txStore) AddTotalActivitiesLogged(ctx context.Context, n uint64) error {
	return ts.exec(ctx, "increment total activities",
		"UPDATE registry SET total_activities_logged = total_activities_logged + ? WHERE id = 1", i64(n))
}

func (ts *txStore) Factor(ctx context.Context, category string) (ledger.EmissionFactor, bool, error) {
	return getFactor(ctx, ts.tx, category)
}

func (ts *txStore) PutFactor(ctx context.Context, f ledger.EmissionFactor) error {
	return ts.exec(ctx, "put factor", `
		INSERT INTO emission_factors (category, factor, unit, description, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET
			factor = excluded.factor,
			unit = excluded.unit,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		f.Category, i64(f.Factor), f.Unit, f.Description, i64(uint64(f.UpdatedAt)))
}

func (ts *txStore) Sequence(ctx context.Context, account ledger.Identity) (uint64, error) {
	return getSequence(ctx, ts.tx, account)
}

func (ts *txStore) SetSequence(ctx context.Context, account ledger.Identity, seq uint64) error {
	return ts.exec(ctx, "set sequence", `
		INSERT INTO account_sequences (account, seq) VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET seq = excluded.seq`,
		account, i64(seq))
}

func (ts *txStore) Activity(ctx context.Context, account ledger.Identity, seq uint64) (ledger.Activity, bool, error) {
	return getActivity(ctx, ts.tx, account, seq)
}

func (ts *txStore) PutActivity(ctx context.Context, a ledger.Activity) error {
	return ts.exec(ctx, "insert activity",
		"INSERT INTO activities ("+activityColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		a.Account, i64(a.Seq), a.Category, i64(a.RawValue), i64(uint64(a.LoggedAt)), i64(a.DerivedValue))
}

func (ts *txStore) RemoveActivity(ctx context.Context, account ledger.Identity, seq uint64) error {
	return ts.exec(ctx, "delete activity",
		"DELETE FROM activities WHERE account = ? AND seq = ?", account, i64(seq))
}

func (ts *txStore) Daily(ctx context.Context, account ledger.Identity, day ledger.Day) (uint64, error) {
	return getDaily(ctx, ts.tx, account, day)
}

func (ts *txStore) SetDaily(ctx context.Context, agg ledger.DailyAggregate) error {
	if agg.Total == 0 {
		return ts.exec(ctx, "clear daily aggregate",
			"DELETE FROM daily_aggregates WHERE account = ? AND day = ?",
			agg.Account, i64(uint64(agg.Day)))
	}
	return ts.exec(ctx, "set daily aggregate", `
		INSERT INTO daily_aggregates (account, day, total) VALUES (?, ?, ?)
		ON CONFLICT(account, day) DO UPDATE SET total = excluded.total`,
		agg.Account, i64(uint64(agg.Day)), i64(agg.Total))
}

func (ts *txStore) CategoryStat(ctx context.Context, category string) (ledger.CategoryStatistic, error) {
	return getCategoryStat(ctx, ts.tx, category)
}

func (ts *txStore) SetCategoryStat(ctx context.Context, stat ledger.CategoryStatistic) error {
	return ts.exec(ctx, "set category stats", `
		INSERT INTO category_stats (category, count, total) VALUES (?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET count = excluded.count, total = excluded.total`,
		stat.Category, i64(stat.Count), i64(stat.Total))
}

func (ts *txStore) Delegate(ctx context.Context, account, delegate ledger.Identity) (bool, error) {
	return getDelegate(ctx, ts.tx, account, delegate)
}

func (ts *txStore) SetDelegate(ctx context.Context, grant ledger.DelegateGrant) error {
	if !grant.Active {
		return ts.exec(ctx, "revoke delegate",
			"DELETE FROM delegates WHERE account = ? AND delegate = ?", grant.Account, grant.Delegate)
	}
	return ts.exec(ctx, "grant delegate",
		"INSERT OR IGNORE INTO delegates (account, delegate) VALUES (?, ?)", grant.Account, grant.Delegate)
}

func (ts *txStore) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	return ts.exec(ctx, "append audit entry", `
		INSERT INTO audit_log (id, tick, actor, action, account, category, seq, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, i64(uint64(e.Tick)), e.Actor, e.Action, e.Account, e.Category, i64(e.Seq), e.Detail)
}
