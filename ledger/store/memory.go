// Package store provides in-process ledger.Store implementations.
package store

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/warp/footprint-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - Sharded in-memory implementation
// =============================================================================
//
// Accounts and categories are spread across independently locked shards. A
// unit of work locks only the shards its Scope names, always in the order
// accounts, categories, registry, so concurrent units never deadlock.

const defaultShards = 32

type Memory struct {
	accounts   []*accountShard
	categories []*categoryShard

	registryMu       sync.RWMutex
	admin            ledger.Identity
	lastFactorUpdate ledger.Tick
	factors          map[string]ledger.EmissionFactor

	totalLogged atomic.Uint64

	auditMu sync.RWMutex
	audit   []ledger.AuditEntry
}

type accountShard struct {
	mu         sync.RWMutex
	sequences  map[ledger.Identity]uint64
	activities map[ledger.Identity]map[uint64]ledger.Activity
	daily      map[ledger.Identity]map[ledger.Day]uint64
	delegates  map[ledger.Identity]map[ledger.Identity]bool
}

type categoryShard struct {
	mu    sync.RWMutex
	stats map[string]ledger.CategoryStatistic
}

// NewMemory returns an empty store with the default shard count.
func NewMemory() *Memory {
	return NewMemoryWithShards(defaultShards)
}

// NewMemoryWithShards returns an empty store with n account shards and n
// category shards. n < 1 is treated as 1.
func NewMemoryWithShards(n int) *Memory {
	if n < 1 {
		n = 1
	}
	m := &Memory{
		accounts:   make([]*accountShard, n),
		categories: make([]*categoryShard, n),
		factors:    make(map[string]ledger.EmissionFactor),
	}
	for i := range m.accounts {
		m.accounts[i] = &accountShard{
			sequences:  make(map[ledger.Identity]uint64),
			activities: make(map[ledger.Identity]map[uint64]ledger.Activity),
			daily:      make(map[ledger.Identity]map[ledger.Day]uint64),
			delegates:  make(map[ledger.Identity]map[ledger.Identity]bool),
		}
	}
	for i := range m.categories {
		m.categories[i] = &categoryShard{stats: make(map[string]ledger.CategoryStatistic)}
	}
	return m
}

func shardIndex(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func (m *Memory) accountShard(account ledger.Identity) *accountShard {
	return m.accounts[shardIndex(string(account), len(m.accounts))]
}

func (m *Memory) categoryShard(category string) *categoryShard {
	return m.categories[shardIndex(category, len(m.categories))]
}

// =============================================================================
// READER
// =============================================================================

func (m *Memory) Admin(_ context.Context) (ledger.Identity, error) {
	m.registryMu.RLock()
	defer m.registryMu.RUnlock()
	return m.admin, nil
}

func (m *Memory) LastFactorUpdate(_ context.Context) (ledger.Tick, error) {
	m.registryMu.RLock()
	defer m.registryMu.RUnlock()
	return m.lastFactorUpdate, nil
}

func (m *Memory) TotalActivitiesLogged(_ context.Context) (uint64, error) {
	return m.totalLogged.Load(), nil
}

func (m *Memory) Factor(_ context.Context, category string) (ledger.EmissionFactor, bool, error) {
	m.registryMu.RLock()
	defer m.registryMu.RUnlock()
	f, ok := m.factors[category]
	return f, ok, nil
}

func (m *Memory) Factors(_ context.Context) ([]ledger.EmissionFactor, error) {
	m.registryMu.RLock()
	defer m.registryMu.RUnlock()
	result := make([]ledger.EmissionFactor, 0, len(m.factors))
	for _, f := range m.factors {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Category < result[j].Category })
	return result, nil
}

func (m *Memory) Sequence(_ context.Context, account ledger.Identity) (uint64, error) {
	s := m.accountShard(account)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequences[account], nil
}

func (m *Memory) Activity(_ context.Context, account ledger.Identity, seq uint64) (ledger.Activity, bool, error) {
	s := m.accountShard(account)
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[account][seq]
	return a, ok, nil
}

func (m *Memory) Activities(_ context.Context, account ledger.Identity, fromSeq, toSeq uint64) ([]ledger.Activity, error) {
	s := m.accountShard(account)
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Nothing exists past the counter, so the walk is bounded by it.
	if last := s.sequences[account]; toSeq > last {
		toSeq = last
	}
	records := s.activities[account]
	var result []ledger.Activity
	for seq := fromSeq; seq >= 1 && seq <= toSeq; seq++ {
		if a, ok := records[seq]; ok {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *Memory) RecentActivities(_ context.Context, account ledger.Identity, limit int) ([]ledger.Activity, error) {
	s := m.accountShard(account)
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.activities[account]
	result := make([]ledger.Activity, 0, min(limit, len(records)))
	for seq := s.sequences[account]; seq >= 1 && len(result) < limit; seq-- {
		if a, ok := records[seq]; ok {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *Memory) Daily(_ context.Context, account ledger.Identity, day ledger.Day) (uint64, error) {
	s := m.accountShard(account)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.daily[account][day], nil
}

func (m *Memory) DailyRange(_ context.Context, account ledger.Identity, from, to ledger.Day) ([]ledger.DailyAggregate, error) {
	s := m.accountShard(account)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []ledger.DailyAggregate
	for day, total := range s.daily[account] {
		if day >= from && day <= to && total > 0 {
			result = append(result, ledger.DailyAggregate{Account: account, Day: day, Total: total})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day < result[j].Day })
	return result, nil
}

func (m *Memory) CategoryStat(_ context.Context, category string) (ledger.CategoryStatistic, error) {
	s := m.categoryShard(category)
	s.mu.RLock()
	defer s.mu.RUnlock()
	stat := s.stats[category]
	stat.Category = category
	return stat, nil
}

func (m *Memory) Delegate(_ context.Context, account, delegate ledger.Identity) (bool, error) {
	s := m.accountShard(account)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.delegates[account][delegate], nil
}

func (m *Memory) Audit(_ context.Context, filter ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	m.auditMu.RLock()
	defer m.auditMu.RUnlock()

	var result []ledger.AuditEntry
	for _, e := range m.audit {
		if filter.Matches(e) {
			result = append(result, e)
		}
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}
	return result, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx locks the shards named by scope, runs fn, and on error replays the
// undo log so none of fn's writes survive.
func (m *Memory) WithTx(ctx context.Context, scope ledger.Scope, fn func(ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := m.lock(scope)
	defer unlock()

	tx := &memoryTx{m: m, scope: scope}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}

	// Commit: in-place writes are already visible under our locks.
	if tx.pendingTotal > 0 {
		m.totalLogged.Add(tx.pendingTotal)
	}
	if len(tx.pendingAudit) > 0 {
		m.auditMu.Lock()
		m.audit = append(m.audit, tx.pendingAudit...)
		m.auditMu.Unlock()
	}
	return nil
}

func (m *Memory) lock(scope ledger.Scope) func() {
	var unlocks []func()

	for _, i := range uniqueShards(identityKeys(scope.Accounts), len(m.accounts)) {
		s := m.accounts[i]
		s.mu.Lock()
		unlocks = append(unlocks, s.mu.Unlock)
	}
	for _, i := range uniqueShards(scope.Categories, len(m.categories)) {
		s := m.categories[i]
		s.mu.Lock()
		unlocks = append(unlocks, s.mu.Unlock)
	}
	switch scope.Registry {
	case ledger.RegistryRead:
		m.registryMu.RLock()
		unlocks = append(unlocks, m.registryMu.RUnlock)
	case ledger.RegistryWrite:
		m.registryMu.Lock()
		unlocks = append(unlocks, m.registryMu.Unlock)
	}

	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func identityKeys(ids []ledger.Identity) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	return keys
}

// uniqueShards maps keys to sorted, de-duplicated shard indexes.
func uniqueShards(keys []string, n int) []int {
	seen := make(map[int]bool, len(keys))
	var idx []int
	for _, k := range keys {
		i := shardIndex(k, n)
		if !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	return idx
}

var (
	_ ledger.Store = (*Memory)(nil)
	_ ledger.Tx    = (*memoryTx)(nil)
)
