/*
query.go - Read-only views over the ledger, rollups and registry

PURPOSE:
  Range sums, averages and recent-entry windows. Nothing here mutates.

RANGES:
  Every range is closed and walks the true requested width. Deleted
  sequence numbers contribute zero and are skipped in windows.
*/
package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// GetFootprint sums the derived values of account's existing records with
// startSeq <= Seq <= endSeq. The range must satisfy
// 0 < startSeq <= endSeq <= the account's sequence counter.
func (l *Ledger) GetFootprint(ctx context.Context, account Identity, startSeq, endSeq uint64) (uint64, error) {
	if startSeq == 0 || endSeq < startSeq {
		return 0, &RangeError{Start: startSeq, End: endSeq, Reason: "need 0 < start <= end"}
	}
	current, err := l.store.Sequence(ctx, account)
	if err != nil {
		return 0, err
	}
	if endSeq > current {
		return 0, &RangeError{Start: startSeq, End: endSeq, Limit: current,
			Reason: fmt.Sprintf("end exceeds sequence %d", current)}
	}

	records, err := l.store.Activities(ctx, account, startSeq, endSeq)
	if err != nil {
		return 0, err
	}
	var sum uint64
	for _, r := range records {
		if sum, err = addChecked("footprint", sum, r.DerivedValue); err != nil {
			return 0, err
		}
	}
	return sum, nil
}

// GetDailyFootprint returns account's total for day, zero if nothing was logged.
func (l *Ledger) GetDailyFootprint(ctx context.Context, account Identity, day Day) (uint64, error) {
	return l.store.Daily(ctx, account, day)
}

// GetAverageDailyFootprint returns floor(sum of daily totals / days) over the
// closed range [startDay, endDay].
func (l *Ledger) GetAverageDailyFootprint(ctx context.Context, account Identity, startDay, endDay Day) (uint64, error) {
	avg, err := l.averageDaily(ctx, account, startDay, endDay, true)
	if err != nil {
		return 0, err
	}
	return avg.BigInt().Uint64(), nil
}

// GetAverageDailyFootprintExact is GetAverageDailyFootprint without rounding,
// carried to 8 decimal places.
func (l *Ledger) GetAverageDailyFootprintExact(ctx context.Context, account Identity, startDay, endDay Day) (decimal.Decimal, error) {
	return l.averageDaily(ctx, account, startDay, endDay, false)
}

func (l *Ledger) averageDaily(ctx context.Context, account Identity, startDay, endDay Day, floor bool) (decimal.Decimal, error) {
	if endDay < startDay {
		return decimal.Zero, &RangeError{Start: uint64(startDay), End: uint64(endDay), Reason: "need start <= end"}
	}
	// Wraps to zero only for the full uint64 range.
	days := uint64(endDay-startDay) + 1
	if days == 0 {
		return decimal.Zero, nil
	}

	aggs, err := l.store.DailyRange(ctx, account, startDay, endDay)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, a := range aggs {
		sum = sum.Add(decimalFromUint64(a.Total))
	}

	n := decimalFromUint64(days)
	if floor {
		q, _ := sum.QuoRem(n, 0)
		return q, nil
	}
	return sum.DivRound(n, 8), nil
}

// GetRecentActivities returns up to count of account's existing records,
// newest first.
func (l *Ledger) GetRecentActivities(ctx context.Context, account Identity, count int) ([]Activity, error) {
	if count <= 0 {
		return []Activity{}, nil
	}
	return l.store.RecentActivities(ctx, account, count)
}

// GetActivity returns a single record.
func (l *Ledger) GetActivity(ctx context.Context, account Identity, seq uint64) (Activity, error) {
	a, ok, err := l.store.Activity(ctx, account, seq)
	if err != nil {
		return Activity{}, err
	}
	if !ok {
		return Activity{}, &NotFoundError{Account: account, Seq: seq}
	}
	return a, nil
}

// GetSequence returns the last sequence number issued to account.
func (l *Ledger) GetSequence(ctx context.Context, account Identity) (uint64, error) {
	return l.store.Sequence(ctx, account)
}

// GetCategoryStats returns the global statistic for category.
func (l *Ledger) GetCategoryStats(ctx context.Context, category string) (CategoryStatistic, error) {
	stat, err := l.store.CategoryStat(ctx, category)
	if err != nil {
		return CategoryStatistic{}, err
	}
	stat.Category = category
	return stat, nil
}

// GetTotalActivitiesLogged returns the cumulative number of activities ever
// logged. Deletes do not decrease it; use category counts for live totals.
func (l *Ledger) GetTotalActivitiesLogged(ctx context.Context) (uint64, error) {
	return l.store.TotalActivitiesLogged(ctx)
}

// AuditTrail returns audit entries matching filter, oldest first.
func (l *Ledger) AuditTrail(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	return l.store.Audit(ctx, filter)
}

func decimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
