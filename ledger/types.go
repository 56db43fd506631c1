/*
Package ledger provides the footprint ledger engine.

PURPOSE:
  Accounts log real-world activities (a car trip, a kilowatt-hour, a flight)
  against a category. The category's emission factor converts the raw value
  into a derived emissions value that is snapshotted on the record. Two
  rollups are kept consistent with the records on every insert and delete:
  per-account daily totals and global per-category statistics.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identity: Opaque caller/account identity supplied by the environment
  - Tick / Day: Logical-clock tick and its coarse day bucket
  - EmissionFactor: Admin-maintained conversion constant per category
  - Activity: One logged entry, keyed by (account, sequence number)
  - DailyAggregate / CategoryStatistic: The two rollups

DESIGN PRINCIPLES:
  1. Snapshots: DerivedValue is computed once at log time. Later factor
     changes never touch stored records.
  2. Units of work: Every mutation runs inside one Store.WithTx call, so a
     record never exists without its rollup updates (or vice versa).
  3. Integers only: Values are uint64. Overflow is rejected, underflow of a
     rollup on delete clamps to zero.

USAGE:
  l := ledger.New(store, ledger.DefaultLimits(), logger)
  seq, err := l.LogActivity(ctx, "alice", tick, "car-mile", 10)

SEE ALSO:
  - ledger.go: Log and delete
  - registry.go: Emission factor registry and admin
  - aggregate.go: Rollup arithmetic
  - query.go: Read-only views
*/
package ledger

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Identity is an opaque account or caller identity.
type Identity string

// Tick is a logical-clock reading supplied by the environment.
type Tick uint64

// Day is a coarse partition of ticks.
type Day uint64

// DayOf returns the day bucket containing tick.
func DayOf(tick Tick, ticksPerDay uint64) Day {
	if ticksPerDay == 0 {
		return 0
	}
	return Day(uint64(tick) / ticksPerDay)
}

// =============================================================================
// REGISTRY
// =============================================================================

// EmissionFactor maps one unit of raw activity in a category to a derived
// emissions quantity.
type EmissionFactor struct {
	Category    string
	Factor      uint64
	Unit        string
	Description string
	UpdatedAt   Tick
}

// =============================================================================
// ACTIVITY - One ledger entry
// =============================================================================

// Activity is a logged entry owned by Account. DerivedValue is
// RawValue × Factor at the moment of logging.
type Activity struct {
	Account      Identity
	Seq          uint64
	Category     string
	RawValue     uint64
	LoggedAt     Tick
	DerivedValue uint64
}

// =============================================================================
// ROLLUPS
// =============================================================================

// DailyAggregate is the running sum of derived values for an account and day.
type DailyAggregate struct {
	Account Identity
	Day     Day
	Total   uint64
}

// CategoryStatistic tracks the global count and derived-value sum of a
// category across every account.
type CategoryStatistic struct {
	Category string
	Count    uint64
	Total    uint64
}

// =============================================================================
// DELEGATION
// =============================================================================

// DelegateGrant records that Account granted Delegate the right to act on its
// behalf. Grants are only consulted by read-side checks.
type DelegateGrant struct {
	Account  Identity
	Delegate Identity
	Active   bool
}
