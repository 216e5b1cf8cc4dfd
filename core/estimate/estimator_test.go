package estimate

import (
	"errors"
	"testing"
	"time"

	"github.com/railops/dispatchd/core/model"
)

var base = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func disruptedState(severity float64) State {
	return State{
		Disruptions: []model.DisruptionEvent{{
			Kind:      model.DisruptionFailure,
			Resources: []string{"s-ab"},
			Window:    model.Window{Start: base, End: base.Add(time.Hour)},
			Severity:  severity,
		}},
		RemainingResources: map[string][]string{"E1": {"s-ab", "b1"}},
		Now:                base,
	}
}

func TestEstimateValidate(t *testing.T) {
	if err := (Estimate{ExpectedDelay: time.Minute, PriorityWeight: 0.5}).Validate(); err != nil {
		t.Errorf("valid estimate rejected: %v", err)
	}
	if err := (Estimate{PriorityWeight: 1.5}).Validate(); err == nil {
		t.Error("weight above 1 should be rejected")
	}
	if err := (Estimate{ExpectedDelay: -time.Minute, PriorityWeight: 0.5}).Validate(); err == nil {
		t.Error("negative delay should be rejected")
	}
}

func TestSafeFallsBack(t *testing.T) {
	tr := model.Train{ID: "E1", Class: model.ClassExpress}

	if est, fell := Safe(nil, tr, State{}); !fell || est != Conservative() {
		t.Errorf("nil estimator: got %+v, fell=%t", est, fell)
	}
	if _, fell := Safe(Mock{Err: errors.New("boom")}, tr, State{}); !fell {
		t.Error("estimator error should trigger fallback")
	}
	bad := Mock{Estimates: map[string]Estimate{"E1": {PriorityWeight: 7}}}
	if est, fell := Safe(bad, tr, State{}); !fell || est != Conservative() {
		t.Errorf("out-of-range output: got %+v, fell=%t", est, fell)
	}
	good := Mock{Estimates: map[string]Estimate{"E1": {ExpectedDelay: time.Minute, PriorityWeight: 0.8}}}
	if est, fell := Safe(good, tr, State{}); fell || est.PriorityWeight != 0.8 {
		t.Errorf("valid output altered: got %+v, fell=%t", est, fell)
	}
}

func TestRuleBasedUsesHistory(t *testing.T) {
	r := NewRuleBased(map[string][]float64{"E1": {4, 6}})
	tr := model.Train{ID: "E1", Class: model.ClassExpress}

	est, err := r.Estimate(tr, State{Now: base})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	// Mean 5 plus half the spread.
	if est.ExpectedDelay < 5*time.Minute {
		t.Errorf("history-based delay %v below the sample mean", est.ExpectedDelay)
	}
	noHistory, _ := r.Estimate(model.Train{ID: "E2", Class: model.ClassExpress}, State{Now: base})
	if noHistory.ExpectedDelay != 0 {
		t.Errorf("unknown train should start at zero delay, got %v", noHistory.ExpectedDelay)
	}
}

func TestRuleBasedMonotonicInSeverity(t *testing.T) {
	r := NewRuleBased(nil)
	tr := model.Train{ID: "E1", Class: model.ClassPassenger}

	var prev time.Duration
	for _, sev := range []float64{0, 0.3, 0.6, 1.0} {
		est, err := r.Estimate(tr, disruptedState(sev))
		if err != nil {
			t.Fatalf("estimate: %v", err)
		}
		if est.ExpectedDelay < prev {
			t.Fatalf("severity %.1f lowered delay: %v < %v", sev, est.ExpectedDelay, prev)
		}
		prev = est.ExpectedDelay
	}
}

func TestRuleBasedIgnoresExpiredAndUnrelatedDisruptions(t *testing.T) {
	r := NewRuleBased(nil)
	tr := model.Train{ID: "E1", Class: model.ClassPassenger}

	expired := disruptedState(1)
	expired.Now = base.Add(2 * time.Hour)
	est, _ := r.Estimate(tr, expired)
	if est.ExpectedDelay != 0 {
		t.Errorf("expired disruption should not add delay, got %v", est.ExpectedDelay)
	}

	unrelated := disruptedState(1)
	unrelated.RemainingResources = map[string][]string{"E1": {"s-bc"}}
	est, _ = r.Estimate(tr, unrelated)
	if est.ExpectedDelay != 0 {
		t.Errorf("off-route disruption should not add delay, got %v", est.ExpectedDelay)
	}
}

func TestRuleBasedDeterministic(t *testing.T) {
	r := NewRuleBased(map[string][]float64{"E1": {2, 3, 8}})
	tr := model.Train{ID: "E1", Class: model.ClassExpress, Delay: 2 * time.Minute}
	s := disruptedState(0.5)

	a, _ := r.Estimate(tr, s)
	b, _ := r.Estimate(tr, s)
	if a != b {
		t.Errorf("same input produced %+v and %+v", a, b)
	}
}

func TestRuleBasedWeightGrowsWithClass(t *testing.T) {
	r := NewRuleBased(nil)
	freight, _ := r.Estimate(model.Train{ID: "F", Class: model.ClassFreight}, State{Now: base})
	express, _ := r.Estimate(model.Train{ID: "E", Class: model.ClassExpress}, State{Now: base})
	if express.PriorityWeight <= freight.PriorityWeight {
		t.Errorf("express weight %.2f should exceed freight %.2f",
			express.PriorityWeight, freight.PriorityWeight)
	}
	if express.PriorityWeight > 1 {
		t.Errorf("weight %.2f out of range", express.PriorityWeight)
	}
}
