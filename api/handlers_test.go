/*
handlers_test.go - HTTP-level tests for the API

Tests for:
- Authentication (anonymous reads, 401 on anonymous writes and bad tokens)
- Registry writes and error mapping
- Activity log/delete round trips through the router
- Range queries, averages and recent windows
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/footprint-ledger/ledger"
	"github.com/warp/footprint-ledger/ledger/store"
)

var testAuth = AuthConfig{Secret: "test-secret", Issuer: "footprint-test"}

type testServer struct {
	t      *testing.T
	router http.Handler
	clock  *ledger.ManualClock
	ledger *ledger.Ledger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	l := ledger.New(store.NewMemory(), ledger.DefaultLimits())
	require.NoError(t, l.Bootstrap(context.Background(), "admin"))
	clock := ledger.NewManualClock(0)
	h := NewHandler(l, clock, nil)
	return &testServer{
		t:      t,
		router: NewRouter(h, RouterOptions{Auth: testAuth}),
		clock:  clock,
		ledger: l,
	}
}

func (s *testServer) do(method, path, caller string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		token, err := IssueToken(caller, testAuth)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seedFactor(category string, factor uint64) {
	s.t.Helper()
	rec := s.do(http.MethodPut, "/api/factors/"+category, "admin", UpdateFactorRequest{Factor: factor, Unit: "g"})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// AUTH
// =============================================================================

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnonymousWriteIsRejected(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/activities", "", LogActivityRequest{Category: "car-mile", RawValue: 1})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode[ErrorResponse](t, rec).Code)
}

func TestInvalidTokenIsRejected(t *testing.T) {
	s := newTestServer(t)
	token, err := IssueToken("alice", AuthConfig{Secret: "other-secret", Issuer: testAuth.Issuer})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParseCaller(t *testing.T) {
	token, err := IssueToken("alice", testAuth)
	require.NoError(t, err)

	caller, err := ParseCaller(token, testAuth)
	require.NoError(t, err)
	assert.Equal(t, ledger.Identity("alice"), caller)

	_, err = ParseCaller(token, AuthConfig{Secret: testAuth.Secret, Issuer: "someone-else"})
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseCaller("  ", testAuth)
	assert.ErrorIs(t, err, ErrMissingToken)
}

// =============================================================================
// REGISTRY
// =============================================================================

func TestUpdateFactor_AdminOnly(t *testing.T) {
	s := newTestServer(t)
	s.clock.Set(7)

	// GIVEN: a non-admin caller
	rec := s.do(http.MethodPut, "/api/factors/car-mile", "mallory", UpdateFactorRequest{Factor: 400, Unit: "g"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// WHEN: the admin writes the factor
	rec = s.do(http.MethodPut, "/api/factors/car-mile", "admin", UpdateFactorRequest{Factor: 400, Unit: "g", Description: "one mile by car"})
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: it is readable and stamped with the request tick
	f := decode[FactorDTO](t, s.do(http.MethodGet, "/api/factors/car-mile", "", nil))
	assert.Equal(t, uint64(400), f.Factor)
	assert.Equal(t, uint64(7), f.UpdatedAt)

	stats := decode[StatsDTO](t, s.do(http.MethodGet, "/api/stats", "", nil))
	assert.Equal(t, uint64(7), stats.LastFactorUpdateTick)
}

func TestUpdateFactor_ZeroFactorIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPut, "/api/factors/car-mile", "admin", UpdateFactorRequest{Factor: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", decode[ErrorResponse](t, rec).Code)
}

func TestGetFactor_Missing(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/factors/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetAdmin_Transfer(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPut, "/api/admin", "admin", SetAdminRequest{NewAdmin: "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	admin := decode[AdminDTO](t, s.do(http.MethodGet, "/api/admin", "", nil))
	assert.Equal(t, "bob", admin.Admin)

	// The previous admin has lost write access
	rec = s.do(http.MethodPut, "/api/factors/car-mile", "admin", UpdateFactorRequest{Factor: 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// ACTIVITIES
// =============================================================================

func TestLogActivity_DerivesValue(t *testing.T) {
	s := newTestServer(t)
	s.seedFactor("car-mile", 400)

	rec := s.do(http.MethodPost, "/api/activities", "alice", LogActivityRequest{Category: "car-mile", RawValue: 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, uint64(1), decode[LogActivityResponse](t, rec).Seq)

	a := decode[ActivityDTO](t, s.do(http.MethodGet, "/api/accounts/alice/activities/1", "", nil))
	assert.Equal(t, uint64(4000), a.DerivedValue)
	assert.Equal(t, "car-mile", a.Category)

	footprint := decode[FootprintDTO](t, s.do(http.MethodGet, "/api/accounts/alice/footprint?start=1&end=1", "", nil))
	assert.Equal(t, uint64(4000), footprint.Footprint)
}

func TestLogActivity_UnknownCategory(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/activities", "alice", LogActivityRequest{Category: "nope", RawValue: 10})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "factor_not_found", decode[ErrorResponse](t, rec).Code)
	seq := decode[SequenceDTO](t, s.do(http.MethodGet, "/api/accounts/alice/sequence", "", nil))
	assert.Equal(t, uint64(0), seq.Seq)
}

func TestLogActivity_MalformedBody(t *testing.T) {
	s := newTestServer(t)
	token, err := IssueToken("alice", testAuth)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/activities", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteActivity(t *testing.T) {
	s := newTestServer(t)
	s.seedFactor("car-mile", 400)
	for i := 0; i < 2; i++ {
		rec := s.do(http.MethodPost, "/api/activities", "alice", LogActivityRequest{Category: "car-mile", RawValue: 1})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	// Another account cannot delete alice's record: bob has no seq 1
	rec := s.do(http.MethodDelete, "/api/activities/1", "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodDelete, "/api/activities/1", "alice", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodDelete, "/api/activities/1", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	footprint := decode[FootprintDTO](t, s.do(http.MethodGet, "/api/accounts/alice/footprint?start=1&end=2", "", nil))
	assert.Equal(t, uint64(400), footprint.Footprint)

	stats := decode[CategoryStatsDTO](t, s.do(http.MethodGet, "/api/categories/car-mile/stats", "", nil))
	assert.Equal(t, uint64(1), stats.Count)
	assert.Equal(t, uint64(400), stats.Total)
}

func TestDeleteActivity_BadSeq(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodDelete, "/api/activities/abc", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestGetFootprint_Ranges(t *testing.T) {
	s := newTestServer(t)
	s.seedFactor("car-mile", 1)
	for i := 1; i <= 3; i++ {
		rec := s.do(http.MethodPost, "/api/activities", "alice", LogActivityRequest{Category: "car-mile", RawValue: uint64(i)})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	tests := []struct {
		name   string
		query  string
		status int
		want   uint64
	}{
		{"full range", "start=1&end=3", http.StatusOK, 6},
		{"suffix", "start=2&end=3", http.StatusOK, 5},
		{"start zero", "start=0&end=3", http.StatusBadRequest, 0},
		{"end beyond sequence", "start=1&end=4", http.StatusBadRequest, 0},
		{"inverted", "start=3&end=1", http.StatusBadRequest, 0},
		{"not a number", "start=x&end=1", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodGet, "/api/accounts/alice/footprint?"+tt.query, "", nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.want, decode[FootprintDTO](t, rec).Footprint)
			}
		})
	}
}

func TestDailyAndAverage(t *testing.T) {
	s := newTestServer(t)
	s.seedFactor("car-mile", 1)
	perDay := s.ledger.Limits().TicksPerDay

	// Day 0: 10, day 2: 5
	s.clock.Set(1)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/activities", "alice", LogActivityRequest{Category: "car-mile", RawValue: 10}).Code)
	s.clock.Set(ledger.Tick(2*perDay + 3))
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/activities", "alice", LogActivityRequest{Category: "car-mile", RawValue: 5}).Code)

	daily := decode[DailyFootprintDTO](t, s.do(http.MethodGet, "/api/accounts/alice/daily/2", "", nil))
	assert.Equal(t, uint64(5), daily.Total)

	avg := decode[AverageDailyFootprintDTO](t, s.do(http.MethodGet, "/api/accounts/alice/daily-average?start=0&end=3", "", nil))
	assert.Equal(t, uint64(3), avg.Average)
	assert.Equal(t, "3.75", avg.Exact)

	rec := s.do(http.MethodGet, "/api/accounts/alice/daily-average?start=3&end=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_range", decode[ErrorResponse](t, rec).Code)
}

func TestRecentActivities(t *testing.T) {
	s := newTestServer(t)
	s.seedFactor("car-mile", 1)
	for i := 1; i <= 7; i++ {
		require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/activities", "alice", LogActivityRequest{Category: "car-mile", RawValue: uint64(i)}).Code)
	}

	// Default window is five, newest first
	recent := decode[[]ActivityDTO](t, s.do(http.MethodGet, "/api/accounts/alice/activities", "", nil))
	require.Len(t, recent, 5)
	assert.Equal(t, uint64(7), recent[0].Seq)
	assert.Equal(t, uint64(3), recent[4].Seq)

	recent = decode[[]ActivityDTO](t, s.do(http.MethodGet, "/api/accounts/alice/activities?count=20", "", nil))
	assert.Len(t, recent, 7)

	recent = decode[[]ActivityDTO](t, s.do(http.MethodGet, "/api/accounts/alice/activities?count=0", "", nil))
	assert.Empty(t, recent)

	rec := s.do(http.MethodGet, "/api/accounts/alice/activities?count=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDelegates(t *testing.T) {
	s := newTestServer(t)
	s.seedFactor("car-mile", 1)

	// No activity yet: granting is refused
	rec := s.do(http.MethodPost, "/api/delegates", "alice", AddDelegateRequest{Delegate: "bob"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/activities", "alice", LogActivityRequest{Category: "car-mile", RawValue: 1}).Code)
	rec = s.do(http.MethodPost, "/api/delegates", "alice", AddDelegateRequest{Delegate: "bob"})
	require.Equal(t, http.StatusCreated, rec.Code)

	d := decode[DelegateDTO](t, s.do(http.MethodGet, "/api/accounts/alice/delegates/bob", "", nil))
	assert.True(t, d.Active)

	access := decode[AccessDTO](t, s.do(http.MethodGet, "/api/accounts/alice/access", "bob", nil))
	assert.True(t, access.Allowed)
	access = decode[AccessDTO](t, s.do(http.MethodGet, "/api/accounts/alice/access", "alice", nil))
	assert.True(t, access.Allowed)
	access = decode[AccessDTO](t, s.do(http.MethodGet, "/api/accounts/alice/access", "carol", nil))
	assert.False(t, access.Allowed)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/accounts/alice/access", "", nil).Code)

	require.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/delegates/bob", "alice", nil).Code)
	d = decode[DelegateDTO](t, s.do(http.MethodGet, "/api/accounts/alice/delegates/bob", "", nil))
	assert.False(t, d.Active)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/delegates/bob", "alice", nil).Code)

	// Revoked delegates lose access
	access = decode[AccessDTO](t, s.do(http.MethodGet, "/api/accounts/alice/access", "bob", nil))
	assert.False(t, access.Allowed)
}

func TestAuditTrail(t *testing.T) {
	s := newTestServer(t)
	s.seedFactor("car-mile", 1)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/activities", "alice", LogActivityRequest{Category: "car-mile", RawValue: 1}).Code)

	all := decode[[]AuditEntryDTO](t, s.do(http.MethodGet, "/api/audit", "", nil))
	require.Len(t, all, 2)
	assert.Equal(t, string(ledger.AuditFactorUpdated), all[0].Action)
	assert.Equal(t, string(ledger.AuditActivityLogged), all[1].Action)

	mine := decode[[]AuditEntryDTO](t, s.do(http.MethodGet, "/api/audit?actor=alice", "", nil))
	require.Len(t, mine, 1)
	assert.Equal(t, uint64(1), mine[0].Seq)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/audit?limit=x", "", nil).Code)
}
