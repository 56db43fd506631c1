/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists the registry, activities, sequence counters, both rollups,
  delegate grants and the audit log in one database file so a restart keeps
  every invariant intact.

KEY TABLES:
  registry:          Single row: admin, last factor update, lifetime total
  emission_factors:  Category -> factor, unit, description
  account_sequences: Last issued sequence number per account
  activities:        Ledger records keyed by (account, seq)
  daily_aggregates:  Rollup keyed by (account, day)
  category_stats:    Rollup keyed by category
  delegates:         Active grants (row present = active)
  audit_log:         Append-only history of mutations

UNITS OF WORK:
  WithTx runs the whole unit inside one SQL transaction. SQLite has a single
  writer, so the store serializes writers with a mutex and ignores the
  Scope's key list. Readers share a read lock with each other but wait
  for any open unit of work, so a read never sees a half-applied write.

INTEGERS:
  SQLite integers are signed 64-bit. uint64 values are stored bit-for-bit
  as int64 and converted back on read.

USAGE:
  store, err := sqlite.New("./data/footprint.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store, ledger.DefaultLimits())

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/footprint-ledger/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS registry (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		admin TEXT NOT NULL DEFAULT '',
		last_factor_update INTEGER NOT NULL DEFAULT 0,
		total_activities_logged INTEGER NOT NULL DEFAULT 0
	);
	INSERT OR IGNORE INTO registry (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS emission_factors (
		category TEXT PRIMARY KEY,
		factor INTEGER NOT NULL,
		unit TEXT NOT NULL,
		description TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS account_sequences (
		account TEXT PRIMARY KEY,
		seq INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS activities (
		account TEXT NOT NULL,
		seq INTEGER NOT NULL,
		category TEXT NOT NULL,
		raw_value INTEGER NOT NULL,
		logged_at INTEGER NOT NULL,
		derived_value INTEGER NOT NULL,
		PRIMARY KEY (account, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_activities_category
		ON activities(category);

	CREATE TABLE IF NOT EXISTS daily_aggregates (
		account TEXT NOT NULL,
		day INTEGER NOT NULL,
		total INTEGER NOT NULL,
		PRIMARY KEY (account, day)
	);

	CREATE TABLE IF NOT EXISTS category_stats (
		category TEXT PRIMARY KEY,
		count INTEGER NOT NULL,
		total INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS delegates (
		account TEXT NOT NULL,
		delegate TEXT NOT NULL,
		PRIMARY KEY (account, delegate)
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		pos INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		tick INTEGER NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		account TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		seq INTEGER NOT NULL DEFAULT 0,
		detail TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor);
	CREATE INDEX IF NOT EXISTS idx_audit_account ON audit_log(account);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERIER - shared by *sql.DB and *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// i64 and u64 round-trip uint64 values through SQLite's signed integers.
func i64(v uint64) int64 { return int64(v) }
func u64(v int64) uint64 { return uint64(v) }

// =============================================================================
// READER (ledger.Reader interface)
// =============================================================================

func (s *Store) Admin(ctx context.Context) (ledger.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAdmin(ctx, s.db)
}

func getAdmin(ctx context.Context, q querier) (ledger.Identity, error) {
	var admin string
	if err := q.QueryRowContext(ctx, "SELECT admin FROM registry WHERE id = 1").Scan(&admin); err != nil {
		return "", fmt.Errorf("failed to read admin: %w", err)
	}
	return ledger.Identity(admin), nil
}

func (s *Store) LastFactorUpdate(ctx context.Context) (ledger.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tick int64
	if err := s.db.QueryRowContext(ctx, "SELECT last_factor_update FROM registry WHERE id = 1").Scan(&tick); err != nil {
		return 0, fmt.Errorf("failed to read last factor update: %w", err)
	}
	return ledger.Tick(u64(tick)), nil
}

func (s *Store) TotalActivitiesLogged(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT total_activities_logged FROM registry WHERE id = 1").Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to read total activities: %w", err)
	}
	return u64(total), nil
}

func (s *Store) Factor(ctx context.Context, category string) (ledger.EmissionFactor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getFactor(ctx, s.db, category)
}

func getFactor(ctx context.Context, q querier, category string) (ledger.EmissionFactor, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT category, factor, unit, description, updated_at
		FROM emission_factors WHERE category = ?`, category)
	f, err := scanFactor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.EmissionFactor{}, false, nil
	}
	if err != nil {
		return ledger.EmissionFactor{}, false, err
	}
	return f, true, nil
}

func (s *Store) Factors(ctx context.Context) ([]ledger.EmissionFactor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, factor, unit, description, updated_at
		FROM emission_factors ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to query factors: %w", err)
	}
	defer rows.Close()

	factors := []ledger.EmissionFactor{}
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, err
		}
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFactor(row scanner) (ledger.EmissionFactor, error) {
	var (
		f         ledger.EmissionFactor
		factor    int64
		updatedAt int64
	)
	if err := row.Scan(&f.Category, &factor, &f.Unit, &f.Description, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return f, err
		}
		return f, fmt.Errorf("failed to scan factor: %w", err)
	}
	f.Factor = u64(factor)
	f.UpdatedAt = ledger.Tick(u64(updatedAt))
	return f, nil
}

func (s *Store) Sequence(ctx context.Context, account ledger.Identity) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSequence(ctx, s.db, account)
}

func getSequence(ctx context.Context, q querier, account ledger.Identity) (uint64, error) {
	var seq int64
	err := q.QueryRowContext(ctx, "SELECT seq FROM account_sequences WHERE account = ?", account).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}
	return u64(seq), nil
}

const activityColumns = "account, seq, category, raw_value, logged_at, derived_value"

func (s *Store) Activity(ctx context.Context, account ledger.Identity, seq uint64) (ledger.Activity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getActivity(ctx, s.db, account, seq)
}

func getActivity(ctx context.Context, q querier, account ledger.Identity, seq uint64) (ledger.Activity, bool, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+activityColumns+" FROM activities WHERE account = ? AND seq = ?",
		account, i64(seq))
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Activity{}, false, nil
	}
	if err != nil {
		return ledger.Activity{}, false, err
	}
	return a, true, nil
}

func (s *Store) Activities(ctx context.Context, account ledger.Identity, fromSeq, toSeq uint64) ([]ledger.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryActivities(ctx,
		"SELECT "+activityColumns+" FROM activities WHERE account = ? AND seq >= ? AND seq <= ? ORDER BY seq ASC",
		account, i64(fromSeq), i64(toSeq))
}

func (s *Store) RecentActivities(ctx context.Context, account ledger.Identity, limit int) ([]ledger.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryActivities(ctx,
		"SELECT "+activityColumns+" FROM activities WHERE account = ? ORDER BY seq DESC LIMIT ?",
		account, limit)
}

func (s *Store) queryActivities(ctx context.Context, query string, args ...any) ([]ledger.Activity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	activities := []ledger.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func scanActivity(row scanner) (ledger.Activity, error) {
	var (
		a                           ledger.Activity
		seq, raw, loggedAt, derived int64
	)
	if err := row.Scan(&a.Account, &seq, &a.Category, &raw, &loggedAt, &derived); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("failed to scan activity: %w", err)
	}
	a.Seq = u64(seq)
	a.RawValue = u64(raw)
	a.LoggedAt = ledger.Tick(u64(loggedAt))
	a.DerivedValue = u64(derived)
	return a, nil
}

func (s *Store) Daily(ctx context.Context, account ledger.Identity, day ledger.Day) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDaily(ctx, s.db, account, day)
}

func getDaily(ctx context.Context, q querier, account ledger.Identity, day ledger.Day) (uint64, error) {
	var total int64
	err := q.QueryRowContext(ctx,
		"SELECT total FROM daily_aggregates WHERE account = ? AND day = ?",
		account, i64(uint64(day))).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read daily aggregate: %w", err)
	}
	return u64(total), nil
}

func (s *Store) DailyRange(ctx context.Context, account ledger.Identity, from, to ledger.Day) ([]ledger.DailyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Days at or above 1<<63 are stored as negative integers, so a range
	// straddling that boundary is queried as two signed ranges.
	var result []ledger.DailyAggregate
	for _, r := range signedRanges(uint64(from), uint64(to)) {
		part, err := s.dailyRange(ctx, account, r[0], r[1])
		if err != nil {
			return nil, err
		}
		result = append(result, part...)
	}
	return result, nil
}

func (s *Store) dailyRange(ctx context.Context, account ledger.Identity, from, to int64) ([]ledger.DailyAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, total FROM daily_aggregates
		WHERE account = ? AND day >= ? AND day <= ? AND total != 0
		ORDER BY day ASC`,
		account, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily aggregates: %w", err)
	}
	defer rows.Close()

	var result []ledger.DailyAggregate
	for rows.Next() {
		var day, total int64
		if err := rows.Scan(&day, &total); err != nil {
			return nil, fmt.Errorf("failed to scan daily aggregate: %w", err)
		}
		result = append(result, ledger.DailyAggregate{
			Account: account,
			Day:     ledger.Day(u64(day)),
			Total:   u64(total),
		})
	}
	return result, rows.Err()
}

// signedRanges splits the unsigned closed range [from, to] into at most two
// signed ranges, in unsigned order.
func signedRanges(from, to uint64) [][2]int64 {
	if from > to {
		return nil
	}
	const boundary = uint64(math.MaxInt64)
	switch {
	case to <= boundary || from > boundary:
		return [][2]int64{{i64(from), i64(to)}}
	default:
		return [][2]int64{{i64(from), math.MaxInt64}, {math.MinInt64, i64(to)}}
	}
}

func (s *Store) CategoryStat(ctx context.Context, category string) (ledger.CategoryStatistic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCategoryStat(ctx, s.db, category)
}

func getCategoryStat(ctx context.Context, q querier, category string) (ledger.CategoryStatistic, error) {
	stat := ledger.CategoryStatistic{Category: category}
	var count, total int64
	err := q.QueryRowContext(ctx,
		"SELECT count, total FROM category_stats WHERE category = ?", category).Scan(&count, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return stat, nil
	}
	if err != nil {
		return stat, fmt.Errorf("failed to read category stats: %w", err)
	}
	stat.Count, stat.Total = u64(count), u64(total)
	return stat, nil
}

func (s *Store) Delegate(ctx context.Context, account, delegate ledger.Identity) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDelegate(ctx, s.db, account, delegate)
}

func getDelegate(ctx context.Context, q querier, account, delegate ledger.Identity) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM delegates WHERE account = ? AND delegate = ?",
		account, delegate).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to read delegate: %w", err)
	}
	return count > 0, nil
}

func (s *Store) Audit(ctx context.Context, filter ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tick, actor, action, account, category, seq, detail FROM (
			SELECT pos, id, tick, actor, action, account, category, seq, detail
			FROM audit_log
			WHERE (? = '' OR actor = ?) AND (? = '' OR account = ?) AND (? = '' OR action = ?)
			ORDER BY pos DESC
			LIMIT ?
		) ORDER BY pos ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, query,
		filter.Actor, filter.Actor,
		filter.Account, filter.Account,
		filter.Action, filter.Action,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []ledger.AuditEntry
	for rows.Next() {
		var (
			e         ledger.AuditEntry
			tick, seq int64
		)
		if err := rows.Scan(&e.ID, &tick, &e.Actor, &e.Action, &e.Account, &e.Category, &seq, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Tick = ledger.Tick(u64(tick))
		e.Seq = u64(seq)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.Store WithTx)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, _ ledger.Scope, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Tx    = (*txStore)(nil)
)
