package kpibackfill

import (
	"context"
	"testing"
	"time"

	"github.com/railops/dispatchd/core/audit"
	"github.com/railops/dispatchd/core/kpi"
)

type memStore struct {
	audit.NopStore
	records []audit.Record
}

func (s *memStore) Query(_ context.Context, q audit.Query) ([]audit.Record, error) {
	var out []audit.Record
	for _, r := range s.records {
		if q.Kind != "" && r.Kind != q.Kind {
			continue
		}
		if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && r.Timestamp.After(q.End) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type recordingSink struct {
	kpi.NopSink
	solves []kpi.SolveMetric
}

func (s *recordingSink) RecordSolve(m kpi.SolveMetric) error {
	s.solves = append(s.solves, m)
	return nil
}

func TestRunReplaysCommits(t *testing.T) {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	full := audit.NewRecord(base, audit.KindPlanCommit)
	full.PlanID = "rev-1"
	full.Trains = []string{"E1", "P1"}
	full.Objective = 12.5
	full.Confidence = 0.9
	full.Detail = "full solve in 120ms"

	rapid := audit.NewRecord(base.Add(time.Minute), audit.KindPlanCommit)
	rapid.PlanID = "rev-2"
	rapid.Trains = []string{"P1"}
	rapid.Confidence = 0.7
	rapid.Detail = "rapid solve in 40ms"

	deg := audit.NewRecord(base.Add(time.Minute), audit.KindQualityDegrade)
	deg.PlanID = "rev-2"

	override := audit.NewRecord(base.Add(2*time.Minute), audit.KindOverride)

	store := &memStore{records: []audit.Record{full, rapid, deg, override}}
	sink := &recordingSink{}

	n, err := Run(context.Background(), store, sink, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 2 || len(sink.solves) != 2 {
		t.Fatalf("recorded %d metrics, want 2", n)
	}

	got := sink.solves[0]
	if got.Rapid || !got.Feasible || got.BudgetExceeded {
		t.Errorf("full solve metric = %+v", got)
	}
	if got.Elapsed != 120*time.Millisecond || got.Trains != 2 || got.Objective != 12.5 {
		t.Errorf("full solve metric = %+v", got)
	}

	got = sink.solves[1]
	if !got.Rapid || !got.BudgetExceeded || got.Elapsed != 40*time.Millisecond {
		t.Errorf("rapid solve metric = %+v", got)
	}
}

func TestRunWindowFilters(t *testing.T) {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	rec := audit.NewRecord(base, audit.KindPlanCommit)
	rec.Detail = "full solve in 10ms"
	store := &memStore{records: []audit.Record{rec}}
	sink := &recordingSink{}

	n, err := Run(context.Background(), store, sink, base.Add(time.Hour), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 0 || len(sink.solves) != 0 {
		t.Errorf("out-of-window commit replayed")
	}
}

func TestParseDetail(t *testing.T) {
	mode, d := parseDetail("rapid solve in 1.5s")
	if mode != "rapid" || d != 1500*time.Millisecond {
		t.Errorf("mode=%q d=%s", mode, d)
	}
	if mode, d := parseDetail("garbage"); mode != "" || d != 0 {
		t.Errorf("malformed detail parsed: %q %s", mode, d)
	}
}
