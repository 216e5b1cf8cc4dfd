// Package kpi derives performance indicators from realized or planned train
// movements. Snapshots are observational only and never feed back into
// scheduling decisions.
package kpi

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/railops/dispatchd/core/model"
)

// OnTimeThreshold is the maximum delay still counted as punctual.
const OnTimeThreshold = 5 * time.Minute

// Compute builds a KPI snapshot from per-train delays, the completion count
// and per-resource busy fractions over the horizon.
func Compute(delays map[string]time.Duration, completed int, utilization map[string]float64, horizon model.Window, at time.Time) model.KPISnapshot {
	snap := model.KPISnapshot{
		Trains:      len(delays),
		Utilization: utilization,
		At:          at,
	}
	if len(delays) > 0 {
		onTime := 0
		var total time.Duration
		for _, d := range delays {
			if d <= OnTimeThreshold {
				onTime++
			}
			total += d
		}
		snap.Punctuality = float64(onTime) / float64(len(delays))
		snap.MeanDelay = total / time.Duration(len(delays))
	}
	if h := horizon.Duration().Hours(); h > 0 {
		snap.ThroughputPerHour = float64(completed) / h
	}
	return snap
}

// UtilizationVariance measures how unevenly resources are loaded.
func UtilizationVariance(utilization map[string]float64) float64 {
	if len(utilization) < 2 {
		return 0
	}
	vals := make([]float64, 0, len(utilization))
	for _, v := range utilization {
		vals = append(vals, v)
	}
	return stat.Variance(vals, nil)
}

// SolveMetric captures quality data about one scheduler invocation.
type SolveMetric struct {
	Rapid          bool
	Feasible       bool
	BudgetExceeded bool
	Objective      float64
	Confidence     float64
	Elapsed        time.Duration
	Trains         int
	Time           time.Time
}

// Sink records KPI snapshots and solve metrics for observability. Recording
// is fire-and-forget: errors are logged by callers, never acted upon.
type Sink interface {
	RecordSnapshot(s model.KPISnapshot) error
	RecordSolve(m SolveMetric) error
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordSnapshot(model.KPISnapshot) error { return nil }
func (NopSink) RecordSolve(SolveMetric) error          { return nil }
