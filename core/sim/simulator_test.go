package sim

import (
	"context"
	"testing"
	"time"

	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/core/network"
)

var horizon = model.Window{
	Start: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	End:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
}

func at(h, m int) time.Time {
	return time.Date(2025, 3, 1, h, m, 0, 0, time.UTC)
}

func simNetwork(t *testing.T) *network.Network {
	t.Helper()
	net, err := network.New(
		[]network.Station{
			{ID: "A", Platforms: []string{"a1"}},
			{ID: "B", Platforms: []string{"b1"}},
		},
		[]network.Resource{
			{ID: "s-ab", From: "A", To: "B", LengthKM: 10, Capacity: 1, Bidirectional: true, Headway: 5 * time.Minute},
		},
		nil,
		2*time.Minute,
	)
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	return net
}

// simPlan builds a plan with one train running A -> B.
func simPlan(train string, dep time.Time) *model.Plan {
	p := model.NewPlan(horizon)
	p.Add(model.Reservation{Train: train, Resource: "a1", Entry: dep.Add(-5 * time.Minute), Exit: dep})
	p.Add(model.Reservation{Train: train, Resource: "s-ab", Entry: dep, Exit: dep.Add(10 * time.Minute)})
	p.Add(model.Reservation{Train: train, Resource: "b1", Entry: dep.Add(15 * time.Minute), Exit: dep.Add(20 * time.Minute)})
	return p
}

func simTrain(id string) model.Train {
	return model.Train{ID: id, Class: model.ClassPassenger, SpeedKPH: 60, Status: model.StatusScheduled,
		Route: []model.Stop{
			{Station: "A", Arrival: at(8, 5), Departure: at(8, 10)},
			{Station: "B", Arrival: at(8, 25), Departure: at(8, 30)},
		}}
}

func TestRunUndisruptedPlanHasNoConflicts(t *testing.T) {
	s := New(simNetwork(t), nil)
	plan := simPlan("P1", at(8, 10))
	res, err := s.Run(context.Background(), plan, []model.Train{simTrain("P1")}, Scenario{Name: "baseline", Seed: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %v", res.Conflicts)
	}
	if res.Delays["P1"] != 0 {
		t.Fatalf("expected zero delay, got %v", res.Delays["P1"])
	}
	if res.KPI.Punctuality != 1 {
		t.Fatalf("expected full punctuality, got %v", res.KPI.Punctuality)
	}
	if res.Events == 0 {
		t.Fatalf("expected events to be counted")
	}
}

func TestRunOutageDelaysTrainAndReportsConflict(t *testing.T) {
	s := New(simNetwork(t), nil)
	plan := simPlan("P1", at(8, 10))
	sc := Scenario{
		Name: "section failure",
		Seed: 1,
		Disruptions: []model.DisruptionEvent{{
			ID:        "fail-1",
			Kind:      model.DisruptionFailure,
			Resources: []string{"s-ab"},
			Window:    model.Window{Start: at(8, 0), End: at(8, 30)},
			Severity:  1,
		}},
	}
	res, err := s.Run(context.Background(), plan, []model.Train{simTrain("P1")}, sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %v", res.Conflicts)
	}
	if res.Conflicts[0].Resource != "s-ab" {
		t.Fatalf("conflict on wrong resource: %+v", res.Conflicts[0])
	}
	if res.Delays["P1"] < 20*time.Minute {
		t.Fatalf("expected at least 20m delay waiting out the outage, got %v", res.Delays["P1"])
	}
}

func TestRunIsDeterministicForSameSeed(t *testing.T) {
	s := New(simNetwork(t), nil)
	plan := simPlan("P1", at(8, 10))
	sc := Scenario{
		Name: "weather",
		Seed: 7,
		Disruptions: []model.DisruptionEvent{{
			ID:        "storm-1",
			Kind:      model.DisruptionWeather,
			Resources: []string{"s-ab"},
			Window:    model.Window{Start: at(8, 0), End: at(9, 0)},
			Severity:  0.4,
		}},
	}
	first, err := s.Run(context.Background(), plan, []model.Train{simTrain("P1")}, sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := s.Run(context.Background(), plan, []model.Train{simTrain("P1")}, sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.Delays["P1"] != second.Delays["P1"] {
		t.Fatalf("same seed must reproduce delays: %v vs %v", first.Delays["P1"], second.Delays["P1"])
	}
	if first.Events != second.Events {
		t.Fatalf("same seed must reproduce event counts: %d vs %d", first.Events, second.Events)
	}
}

func TestRunDoesNotMutateInputs(t *testing.T) {
	net := simNetwork(t)
	s := New(net, nil)
	plan := simPlan("P1", at(8, 10))
	before := plan.ByTrain("P1")[1].Entry
	sc := Scenario{
		Name: "maintenance",
		Seed: 3,
		Disruptions: []model.DisruptionEvent{{
			ID:        "mx-1",
			Kind:      model.DisruptionMaintenance,
			Resources: []string{"s-ab"},
			Window:    model.Window{Start: at(8, 0), End: at(8, 40)},
			Severity:  1,
		}},
	}
	if _, err := s.Run(context.Background(), plan, []model.Train{simTrain("P1")}, sc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !plan.ByTrain("P1")[1].Entry.Equal(before) {
		t.Fatalf("simulation must not mutate the committed plan")
	}
	if got := net.EffectiveCapacity("s-ab", horizon, nil); got != 1 {
		t.Fatalf("simulation must not mutate the live network, capacity now %d", got)
	}
}

func TestRunAllComparesScenarios(t *testing.T) {
	s := New(simNetwork(t), nil)
	plan := simPlan("P1", at(8, 10))
	trains := []model.Train{simTrain("P1")}
	scs := []Scenario{
		{Name: "baseline", Seed: 1},
		{Name: "outage", Seed: 1, Disruptions: []model.DisruptionEvent{{
			ID:        "fail-1",
			Kind:      model.DisruptionFailure,
			Resources: []string{"s-ab"},
			Window:    model.Window{Start: at(8, 0), End: at(8, 30)},
			Severity:  1,
		}}},
	}
	results, err := s.RunAll(context.Background(), plan, trains, scs)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	cmp := Compare(results)
	if cmp.BestPunctuality != "baseline" {
		t.Fatalf("expected baseline to win punctuality, got %s", cmp.BestPunctuality)
	}
	if cmp.BestMeanDelay != "baseline" {
		t.Fatalf("expected baseline to win mean delay, got %s", cmp.BestMeanDelay)
	}
}

func TestApplyTrainModifications(t *testing.T) {
	sc := Scenario{PriorityOverrides: map[string]model.PriorityClass{"F1": model.ClassExpress}}
	in := []model.Train{
		{ID: "F1", Class: model.ClassFreight},
		{ID: "P1", Class: model.ClassPassenger},
	}
	out := sc.ApplyTrainModifications(in)
	if out[0].Class != model.ClassExpress {
		t.Fatalf("expected F1 boosted, got %s", out[0].Class)
	}
	if in[0].Class != model.ClassFreight {
		t.Fatalf("input slice must not be modified")
	}
	if out[1].Class != model.ClassPassenger {
		t.Fatalf("unmentioned trains must keep their class")
	}
}
