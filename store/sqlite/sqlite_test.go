package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/footprint-ledger/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "footprint.db")

	// GIVEN: a ledger with some history on disk
	s, err := New(path)
	require.NoError(t, err)
	l := ledger.New(s, ledger.DefaultLimits())
	require.NoError(t, l.Bootstrap(ctx, "admin"))
	require.NoError(t, l.UpdateFactor(ctx, "admin", 3, "car-mile", 400, "g", ""))
	_, err = l.LogActivity(ctx, "alice", 5, "car-mile", 10)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// WHEN: it is reopened with a different configured admin
	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()
	l = ledger.New(s, ledger.DefaultLimits())
	require.NoError(t, l.Bootstrap(ctx, "someone-else"))

	// THEN: everything survived, including the original admin
	admin, err := l.GetAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.Identity("admin"), admin)

	seq, err := l.GetSequence(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	footprint, err := l.GetFootprint(ctx, "alice", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4000), footprint)

	total, err := l.GetTotalActivitiesLogged(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)

	last, err := l.GetLastFactorUpdateTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.Tick(3), last)
}

func TestStore_Uint64RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	big := ledger.Activity{
		Account:      "alice",
		Seq:          math.MaxUint64,
		Category:     "huge",
		RawValue:     math.MaxUint64,
		LoggedAt:     math.MaxUint64 - 1,
		DerivedValue: 1 << 63,
	}
	require.NoError(t, s.WithTx(ctx, ledger.Scope{}, func(tx ledger.Tx) error {
		if err := tx.PutActivity(ctx, big); err != nil {
			return err
		}
		if err := tx.PutFactor(ctx, ledger.EmissionFactor{Category: "huge", Factor: math.MaxUint64}); err != nil {
			return err
		}
		return tx.SetDaily(ctx, ledger.DailyAggregate{Account: "alice", Day: math.MaxUint64, Total: math.MaxUint64})
	}))

	got, ok, err := s.Activity(ctx, "alice", math.MaxUint64)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, big, got)

	f, ok, err := s.Factor(ctx, "huge")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(math.MaxUint64), f.Factor)

	daily, err := s.Daily(ctx, "alice", math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), daily)
}

func TestStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, ledger.Scope{}, func(tx ledger.Tx) error {
		require.NoError(t, tx.SetAdmin(ctx, "mallory"))
		require.NoError(t, tx.SetSequence(ctx, "alice", 7))
		require.NoError(t, tx.AddTotalActivitiesLogged(ctx, 3))
		require.NoError(t, tx.AppendAudit(ctx, ledger.AuditEntry{ID: "a", Actor: "mallory", Action: ledger.AuditAdminChanged}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	admin, err := s.Admin(ctx)
	require.NoError(t, err)
	assert.Empty(t, admin)
	seq, err := s.Sequence(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, seq)
	total, err := s.TotalActivitiesLogged(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
	audit, err := s.Audit(ctx, ledger.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, audit)
}

func TestStore_DailyRangeSkipsEmptyDays(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.WithTx(ctx, ledger.Scope{}, func(tx ledger.Tx) error {
		for _, agg := range []ledger.DailyAggregate{
			{Account: "alice", Day: 1, Total: 5},
			{Account: "alice", Day: 3, Total: 7},
			{Account: "alice", Day: 9, Total: 2},
			{Account: "bob", Day: 3, Total: 100},
		} {
			if err := tx.SetDaily(ctx, agg); err != nil {
				return err
			}
		}
		// Zero removes the bucket
		return tx.SetDaily(ctx, ledger.DailyAggregate{Account: "alice", Day: 9, Total: 0})
	}))

	got, err := s.DailyRange(ctx, "alice", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []ledger.DailyAggregate{
		{Account: "alice", Day: 1, Total: 5},
		{Account: "alice", Day: 3, Total: 7},
	}, got)
}

func TestSignedRanges(t *testing.T) {
	tests := []struct {
		name     string
		from, to uint64
		want     [][2]int64
	}{
		{"low", 1, 10, [][2]int64{{1, 10}}},
		{"high", 1 << 63, math.MaxUint64, [][2]int64{{math.MinInt64, -1}}},
		{"straddles", 5, 1<<63 + 1, [][2]int64{{5, math.MaxInt64}, {math.MinInt64, math.MinInt64 + 1}}},
		{"inverted", 10, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, signedRanges(tt.from, tt.to))
		})
	}
}

func TestStore_DailyRangeAcrossSignBoundary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.WithTx(ctx, ledger.Scope{}, func(tx ledger.Tx) error {
		if err := tx.SetDaily(ctx, ledger.DailyAggregate{Account: "alice", Day: 2, Total: 1}); err != nil {
			return err
		}
		return tx.SetDaily(ctx, ledger.DailyAggregate{Account: "alice", Day: math.MaxUint64, Total: 2})
	}))

	got, err := s.DailyRange(ctx, "alice", 0, math.MaxUint64)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ledger.Day(2), got[0].Day)
	assert.Equal(t, ledger.Day(math.MaxUint64), got[1].Day)
}

func TestStore_ReadWaitsForOpenUnitOfWork(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	// GIVEN: a unit of work paused after its write
	go func() {
		done <- s.WithTx(ctx, ledger.Scope{}, func(tx ledger.Tx) error {
			if err := tx.SetSequence(ctx, "alice", 5); err != nil {
				return err
			}
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// WHEN: a reader arrives mid-write
	read := make(chan uint64, 1)
	go func() {
		seq, err := s.Sequence(ctx, "alice")
		assert.NoError(t, err)
		read <- seq
	}()

	// THEN: it only returns once the write has committed
	select {
	case seq := <-read:
		t.Fatalf("read returned %d while the unit of work was open", seq)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, uint64(5), <-read)
}
