package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	solveLatency      *prometheus.HistogramVec
	plansCommitted    *prometheus.CounterVec
	conflictsDetected prometheus.Counter
	overridesTotal    *prometheus.CounterVec
	stateGauge        prometheus.Gauge
	planConfidence    prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, prometheus.Counter, *prometheus.CounterVec, prometheus.Gauge, prometheus.Gauge) {
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_solve_latency_seconds",
			Help:    "Wall-clock latency of scheduling solves",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
	plans := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_plans_committed_total",
			Help: "Number of plans committed",
		},
		[]string{"mode"},
	)
	conf := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_conflicts_detected_total",
			Help: "Number of conflicts reported on committed plans",
		},
	)
	ovr := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_overrides_total",
			Help: "Number of controller overrides processed",
		},
		[]string{"kind", "accepted"},
	)
	state := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_state",
			Help: "Current dispatcher state (0 idle, 1 planning, 2 executing, 3 reacting, 4 degraded)",
		},
	)
	cfd := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_plan_confidence",
			Help: "Confidence of the committed plan",
		},
	)
	return lat, plans, conf, ovr, state, cfd
}

func init() {
	solveLatency, plansCommitted, conflictsDetected, overridesTotal, stateGauge, planConfidence = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatcher metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(solveLatency, plansCommitted, conflictsDetected, overridesTotal, stateGauge, planConfidence)
}

// ResetMetrics reinitializes metric collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	solveLatency, plansCommitted, conflictsDetected, overridesTotal, stateGauge, planConfidence = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
