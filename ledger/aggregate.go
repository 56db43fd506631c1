/*
aggregate.go - Incremental rollups kept beside the ledger

PURPOSE:
  Two rollups are updated in the same unit of work as every ledger write:

    Daily:    (account, day) -> sum of derived values
    Category: category       -> (count, sum of derived values), global

  Both are additive on log and subtractive on delete. Subtraction clamps at
  zero instead of failing, so a delete can never be refused because a rollup
  would go negative. Addition refuses to overflow uint64.

INVARIANT:
  After every committed unit of work, for each (account, day) the daily
  total equals the sum of DerivedValue over the existing records of that
  account whose LoggedAt falls in the day, and for each category the count
  and total equal the count and sum over existing records in the category.

  Only applyAdd and applySubtract write rollups.
*/
package ledger

import (
	"context"
	"math/bits"
)

// =============================================================================
// ROLLUP ARITHMETIC
// =============================================================================

func addChecked(field string, cur, amount uint64) (uint64, error) {
	sum, carry := bits.Add64(cur, amount, 0)
	if carry != 0 {
		return cur, &ArgumentError{Field: field, Reason: "aggregate overflow"}
	}
	return sum, nil
}

// subtractClamped returns cur-amount, or 0 if that would be negative.
func subtractClamped(cur, amount uint64) uint64 {
	if amount >= cur {
		return 0
	}
	return cur - amount
}

func addCategory(stat CategoryStatistic, derived uint64) (CategoryStatistic, error) {
	count, err := addChecked("category count", stat.Count, 1)
	if err != nil {
		return stat, err
	}
	total, err := addChecked("category total", stat.Total, derived)
	if err != nil {
		return stat, err
	}
	stat.Count, stat.Total = count, total
	return stat, nil
}

func subtractCategory(stat CategoryStatistic, derived uint64) CategoryStatistic {
	stat.Count = subtractClamped(stat.Count, 1)
	stat.Total = subtractClamped(stat.Total, derived)
	return stat
}

// =============================================================================
// APPLY - Rollup writes through a unit of work
// =============================================================================

// applyAdd folds a new record into both rollups.
func applyAdd(ctx context.Context, tx Tx, a Activity, ticksPerDay uint64) error {
	day := DayOf(a.LoggedAt, ticksPerDay)
	cur, err := tx.Daily(ctx, a.Account, day)
	if err != nil {
		return err
	}
	total, err := addChecked("daily total", cur, a.DerivedValue)
	if err != nil {
		return err
	}

	stat, err := tx.CategoryStat(ctx, a.Category)
	if err != nil {
		return err
	}
	stat.Category = a.Category
	stat, err = addCategory(stat, a.DerivedValue)
	if err != nil {
		return err
	}

	if err := tx.SetDaily(ctx, DailyAggregate{Account: a.Account, Day: day, Total: total}); err != nil {
		return err
	}
	return tx.SetCategoryStat(ctx, stat)
}

// applySubtract removes a record's contribution from both rollups. The day
// bucket comes from the record's LoggedAt, never from the current tick.
func applySubtract(ctx context.Context, tx Tx, a Activity, ticksPerDay uint64) error {
	day := DayOf(a.LoggedAt, ticksPerDay)
	cur, err := tx.Daily(ctx, a.Account, day)
	if err != nil {
		return err
	}
	if err := tx.SetDaily(ctx, DailyAggregate{
		Account: a.Account,
		Day:     day,
		Total:   subtractClamped(cur, a.DerivedValue),
	}); err != nil {
		return err
	}

	stat, err := tx.CategoryStat(ctx, a.Category)
	if err != nil {
		return err
	}
	stat.Category = a.Category
	return tx.SetCategoryStat(ctx, subtractCategory(stat, a.DerivedValue))
}
