// Package observability exposes Prometheus collectors for the ledger.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/footprint-ledger/ledger"
)

// Recorder implements ledger.Observer with Prometheus collectors.
type Recorder struct {
	activitiesLogged  *prometheus.CounterVec
	activitiesDeleted *prometheus.CounterVec
	derivedLogged     *prometheus.CounterVec
	factorUpdates     prometheus.Counter
	lastFactorTick    prometheus.Gauge
	failures          *prometheus.CounterVec
}

// NewRecorder builds a Recorder and registers its collectors with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		activitiesLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "footprint",
			Subsystem: "ledger",
			Name:      "activities_logged_total",
			Help:      "Activities successfully logged, by category.",
		}, []string{"category"}),
		activitiesDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "footprint",
			Subsystem: "ledger",
			Name:      "activities_deleted_total",
			Help:      "Activities deleted by their owner, by category.",
		}, []string{"category"}),
		derivedLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "footprint",
			Subsystem: "ledger",
			Name:      "derived_value_logged_total",
			Help:      "Sum of derived emission values logged, by category.",
		}, []string{"category"}),
		factorUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "footprint",
			Subsystem: "registry",
			Name:      "factor_updates_total",
			Help:      "Emission factor writes accepted.",
		}),
		lastFactorTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "footprint",
			Subsystem: "registry",
			Name:      "last_factor_update_tick",
			Help:      "Logical tick of the most recent emission factor write.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "footprint",
			Subsystem: "ledger",
			Name:      "operation_failures_total",
			Help:      "Rejected or failed operations, by operation and error kind.",
		}, []string{"operation", "kind"}),
	}
	if reg != nil {
		reg.MustRegister(
			r.activitiesLogged,
			r.activitiesDeleted,
			r.derivedLogged,
			r.factorUpdates,
			r.lastFactorTick,
			r.failures,
		)
	}
	return r
}

func (r *Recorder) ActivityLogged(a ledger.Activity) {
	r.activitiesLogged.WithLabelValues(a.Category).Inc()
	r.derivedLogged.WithLabelValues(a.Category).Add(float64(a.DerivedValue))
}

func (r *Recorder) ActivityDeleted(a ledger.Activity) {
	r.activitiesDeleted.WithLabelValues(a.Category).Inc()
}

func (r *Recorder) FactorUpdated(f ledger.EmissionFactor) {
	r.factorUpdates.Inc()
	r.lastFactorTick.Set(float64(f.UpdatedAt))
}

func (r *Recorder) OperationFailed(op string, err error) {
	r.failures.WithLabelValues(op, ledger.Kind(err)).Inc()
}

var _ ledger.Observer = (*Recorder)(nil)
