/*
store.go - Persistence contracts for the ledger engine

PURPOSE:
  Defines the boundary between the domain logic and storage. Reads go
  through Reader. Every mutation goes through WithTx, which runs a function
  against a Tx as one all-or-nothing unit of work.

KEY INTERFACES:
  Reader: Read-only views used by the query layer
  Tx:     Reads and writes available inside a unit of work
  Store:  Reader + WithTx

SCOPES:
  WithTx receives a Scope naming every account and category the unit of
  work touches and whether it reads or writes the registry. Stores may use
  it to lock only those keys, so two writers on different accounts and
  different categories never wait for each other, while two writers on the
  same category serialize. A Tx may reject access outside its scope with
  ErrOutOfScope.

IMPLEMENTATIONS:
  - ledger/store/memory.go: Sharded in-memory store
  - store/sqlite/sqlite.go: SQLite

SEE ALSO:
  - ledger.go: Builds scopes for log/delete
*/
package ledger

import (
	"context"
	"errors"
)

// ErrOutOfScope is returned by a Tx when a key outside the declared Scope is
// accessed. It indicates a programming error in the caller.
var ErrOutOfScope = errors.New("key outside unit-of-work scope")

// =============================================================================
// SCOPE
// =============================================================================

// RegistryAccess declares how a unit of work uses the registry (admin,
// emission factors, global counters).
type RegistryAccess int

const (
	RegistryNone RegistryAccess = iota
	RegistryRead
	RegistryWrite
)

// Scope lists the keys a unit of work touches.
type Scope struct {
	Accounts   []Identity
	Categories []string
	Registry   RegistryAccess
}

// HasAccount reports whether account is in scope.
func (s Scope) HasAccount(account Identity) bool {
	for _, a := range s.Accounts {
		if a == account {
			return true
		}
	}
	return false
}

// HasCategory reports whether category is in scope.
func (s Scope) HasCategory(category string) bool {
	for _, c := range s.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// =============================================================================
// READER - Query-side access
// =============================================================================

// Reader exposes read-only views over the stored state.
type Reader interface {
	Admin(ctx context.Context) (Identity, error)
	LastFactorUpdate(ctx context.Context) (Tick, error)
	TotalActivitiesLogged(ctx context.Context) (uint64, error)

	// Factor returns the factor for category; the bool is false if absent.
	Factor(ctx context.Context, category string) (EmissionFactor, bool, error)
	// Factors returns every factor ordered by category.
	Factors(ctx context.Context) ([]EmissionFactor, error)

	Sequence(ctx context.Context, account Identity) (uint64, error)
	Activity(ctx context.Context, account Identity, seq uint64) (Activity, bool, error)
	// Activities returns existing records with fromSeq <= Seq <= toSeq, ascending.
	Activities(ctx context.Context, account Identity, fromSeq, toSeq uint64) ([]Activity, error)
	// RecentActivities returns up to limit existing records, newest first.
	RecentActivities(ctx context.Context, account Identity, limit int) ([]Activity, error)

	Daily(ctx context.Context, account Identity, day Day) (uint64, error)
	// DailyRange returns the non-empty daily aggregates with from <= Day <= to.
	DailyRange(ctx context.Context, account Identity, from, to Day) ([]DailyAggregate, error)
	CategoryStat(ctx context.Context, category string) (CategoryStatistic, error)

	Delegate(ctx context.Context, account, delegate Identity) (bool, error)

	Audit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// =============================================================================
// TX - Unit-of-work access
// =============================================================================

// Tx is the view of the store inside WithTx. Writes become visible to other
// callers only if the unit of work commits.
type Tx interface {
	Admin(ctx context.Context) (Identity, error)
	SetAdmin(ctx context.Context, admin Identity) error
	SetLastFactorUpdate(ctx context.Context, tick Tick) error
	// AddTotalActivitiesLogged increments the cumulative counter.
	AddTotalActivitiesLogged(ctx context.Context, n uint64) error

	Factor(ctx context.Context, category string) (EmissionFactor, bool, error)
	PutFactor(ctx context.Context, f EmissionFactor) error

	Sequence(ctx context.Context, account Identity) (uint64, error)
	SetSequence(ctx context.Context, account Identity, seq uint64) error

	Activity(ctx context.Context, account Identity, seq uint64) (Activity, bool, error)
	PutActivity(ctx context.Context, a Activity) error
	RemoveActivity(ctx context.Context, account Identity, seq uint64) error

	Daily(ctx context.Context, account Identity, day Day) (uint64, error)
	SetDaily(ctx context.Context, agg DailyAggregate) error
	CategoryStat(ctx context.Context, category string) (CategoryStatistic, error)
	SetCategoryStat(ctx context.Context, stat CategoryStatistic) error

	Delegate(ctx context.Context, account, delegate Identity) (bool, error)
	SetDelegate(ctx context.Context, grant DelegateGrant) error

	AppendAudit(ctx context.Context, entry AuditEntry) error
}

// =============================================================================
// STORE
// =============================================================================

// Store combines reads with transactional writes.
type Store interface {
	Reader

	// WithTx executes fn as one unit of work over the keys named by scope.
	// If fn returns an error every write made through the Tx is discarded.
	WithTx(ctx context.Context, scope Scope, fn func(Tx) error) error
}
