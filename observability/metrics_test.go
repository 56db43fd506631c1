package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/footprint-ledger/ledger"
)

func TestRecorder_CountsLoggedAndDeleted(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	a := ledger.Activity{Account: "alice", Seq: 1, Category: "car-mile", RawValue: 10, DerivedValue: 4000}
	r.ActivityLogged(a)
	r.ActivityLogged(a)
	r.ActivityDeleted(a)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.activitiesLogged.WithLabelValues("car-mile")))
	assert.Equal(t, 8000.0, testutil.ToFloat64(r.derivedLogged.WithLabelValues("car-mile")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.activitiesDeleted.WithLabelValues("car-mile")))
}

func TestRecorder_FailuresLabelledByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.OperationFailed("log_activity", &ledger.QuotaError{Account: "alice", Max: 3})
	r.OperationFailed("log_activity", errors.New("disk on fire"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("log_activity", "quota_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("log_activity", "internal")))
}

func TestRecorder_FactorUpdateSetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.FactorUpdated(ledger.EmissionFactor{Category: "car-mile", Factor: 400, UpdatedAt: 77})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.factorUpdates))
	assert.Equal(t, 77.0, testutil.ToFloat64(r.lastFactorTick))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
