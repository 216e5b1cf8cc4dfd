package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/railops/dispatchd/core/kpi"
	"github.com/railops/dispatchd/core/model"
)

// PromSink exports KPI snapshots and solve metrics as Prometheus collectors.
type PromSink struct {
	punctuality prometheus.Gauge
	meanDelay   prometheus.Gauge
	throughput  prometheus.Gauge
	utilization *prometheus.GaugeVec
	solves      *prometheus.CounterVec
	solveTime   *prometheus.HistogramVec
	objective   prometheus.Gauge
}

// NewPromSink registers the collectors on the default Prometheus registerer.
func NewPromSink() (kpi.Sink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
//
//gocyclo:ignore
func NewPromSinkWithRegistry(reg prometheus.Registerer) (kpi.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	punctuality := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rail_punctuality_ratio",
		Help: "Fraction of trains within the on-time threshold",
	})
	meanDelay := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rail_mean_delay_seconds",
		Help: "Mean realized delay across trains",
	})
	throughput := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rail_throughput_per_hour",
		Help: "Completed train journeys per hour of horizon",
	})
	utilization := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rail_resource_utilization_ratio",
		Help: "Busy fraction per resource over the horizon",
	}, []string{"resource"})
	solves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rail_solves_total",
		Help: "Total scheduling solves",
	}, []string{"rapid", "feasible"})
	solveTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rail_solve_duration_seconds",
		Help:    "Wall-clock duration of scheduling solves",
		Buckets: prometheus.DefBuckets,
	}, []string{"rapid"})
	objective := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rail_plan_objective",
		Help: "Objective value of the latest committed plan",
	})

	for _, c := range []prometheus.Collector{punctuality, meanDelay, throughput, utilization, solves, solveTime, objective} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return &PromSink{
		punctuality: punctuality,
		meanDelay:   meanDelay,
		throughput:  throughput,
		utilization: utilization,
		solves:      solves,
		solveTime:   solveTime,
		objective:   objective,
	}, nil
}

// RecordSnapshot sets the KPI gauges from the snapshot.
func (s *PromSink) RecordSnapshot(snap model.KPISnapshot) error {
	s.punctuality.Set(snap.Punctuality)
	s.meanDelay.Set(snap.MeanDelay.Seconds())
	s.throughput.Set(snap.ThroughputPerHour)
	for id, u := range snap.Utilization {
		s.utilization.WithLabelValues(id).Set(u)
	}
	return nil
}

// RecordSolve counts the solve and observes its duration.
func (s *PromSink) RecordSolve(m kpi.SolveMetric) error {
	rapid := strconv.FormatBool(m.Rapid)
	s.solves.WithLabelValues(rapid, strconv.FormatBool(m.Feasible)).Inc()
	s.solveTime.WithLabelValues(rapid).Observe(m.Elapsed.Seconds())
	s.objective.Set(m.Objective)
	return nil
}
