// Package kpibackfill replays committed plans from the audit log into a KPI
// sink, so a freshly provisioned metrics backend can be seeded with history.
package kpibackfill

import (
	"context"
	"strings"
	"time"

	"github.com/railops/dispatchd/core/audit"
	"github.com/railops/dispatchd/core/kpi"
)

// Run reads plan commit records in [start, end] from the store and records a
// solve metric for each. It returns the number of metrics recorded.
func Run(ctx context.Context, store audit.Store, sink kpi.Sink, start, end time.Time) (int, error) {
	commits, err := store.Query(ctx, audit.Query{Start: start, End: end, Kind: audit.KindPlanCommit})
	if err != nil {
		return 0, err
	}
	degraded, err := store.Query(ctx, audit.Query{Start: start, End: end, Kind: audit.KindQualityDegrade})
	if err != nil {
		return 0, err
	}
	exceeded := make(map[string]bool, len(degraded))
	for _, d := range degraded {
		exceeded[d.PlanID] = true
	}

	n := 0
	for _, rec := range commits {
		mode, elapsed := parseDetail(rec.Detail)
		m := kpi.SolveMetric{
			Rapid:          mode == "rapid",
			Feasible:       true,
			BudgetExceeded: exceeded[rec.PlanID],
			Objective:      rec.Objective,
			Confidence:     rec.Confidence,
			Elapsed:        elapsed,
			Trains:         len(rec.Trains),
			Time:           rec.Timestamp,
		}
		if err := sink.RecordSolve(m); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// parseDetail extracts the solve mode and elapsed time from a commit detail
// of the form "rapid solve in 120ms".
func parseDetail(detail string) (string, time.Duration) {
	fields := strings.Fields(detail)
	if len(fields) != 4 || fields[1] != "solve" || fields[2] != "in" {
		return "", 0
	}
	d, err := time.ParseDuration(fields[3])
	if err != nil {
		return fields[0], 0
	}
	return fields[0], d
}
