package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/railops/dispatchd/core/estimate"
	"github.com/railops/dispatchd/core/events"
	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/core/network"
	"github.com/railops/dispatchd/core/schedule"
	"github.com/railops/dispatchd/internal/eventbus"
)

var testHorizon = model.Window{
	Start: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	End:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
}

func at(h, m int) time.Time {
	return time.Date(2025, 3, 1, h, m, 0, 0, time.UTC)
}

func testNetwork(t *testing.T) *network.Network {
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

func testTrain(id string, class model.PriorityClass, depMin int) model.Train {
	return model.Train{
		ID:       id,
		Class:    class,
		SpeedKPH: 60,
		Status:   model.StatusScheduled,
		Route: []model.Stop{
			{Station: "A", Arrival: at(8, depMin-5), Departure: at(8, depMin)},
			{Station: "B", Arrival: at(8, depMin+15), Departure: at(8, depMin+20)},
		},
	}
}

func testDispatcher(t *testing.T, bus *eventbus.TypedBus[any]) *Dispatcher {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	net := testNetwork(t)
	sched := schedule.New(net, schedule.Config{FullBudget: 500 * time.Millisecond, Restarts: 4}, nil)
	d, err := New(Options{
		Network:   net,
		Scheduler: sched,
		Horizon:   testHorizon,
		Bus:       bus,
		Now:       func() time.Time { return testHorizon.Start },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestStepCommitsInitialPlan(t *testing.T) {
	bus := eventbus.NewTyped[any]()
	d := testDispatcher(t, bus)
	ch := bus.Subscribe()
	if err := d.AddTrains([]model.Train{testTrain("P1", model.ClassPassenger, 10)}); err != nil {
		t.Fatalf("AddTrains: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	id, plan := d.Plan()
	if id == "" || plan == nil {
		t.Fatalf("expected committed plan")
	}
	if len(plan.ByTrain("P1")) != 3 {
		t.Fatalf("expected 3 reservations for P1, got %d", len(plan.ByTrain("P1")))
	}
	if d.State() != StateExecuting {
		t.Fatalf("expected executing state, got %s", d.State())
	}
	sawPlan := false
	for i := 0; i < 8; i++ {
		select {
		case ev := <-ch:
			if pe, ok := ev.(events.PlanEvent); ok {
				sawPlan = true
				if pe.PlanID != id || !pe.Feasible {
					t.Fatalf("unexpected plan event: %+v", pe)
				}
			}
		default:
		}
	}
	if !sawPlan {
		t.Fatalf("expected a plan event on the bus")
	}
}

func TestStepNoopWhenNothingChanged(t *testing.T) {
	d := testDispatcher(t, nil)
	if err := d.AddTrains([]model.Train{testTrain("P1", model.ClassPassenger, 10)}); err != nil {
		t.Fatalf("AddTrains: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	first, _ := d.Plan()
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	second, _ := d.Plan()
	if first != second {
		t.Fatalf("expected identical plan revision after a no-change step")
	}
}

func TestSubmitOverrideUnknownTrain(t *testing.T) {
	d := testDispatcher(t, nil)
	if err := d.AddTrains([]model.Train{testTrain("P1", model.ClassPassenger, 10)}); err != nil {
		t.Fatalf("AddTrains: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	err := d.SubmitOverride(model.Override{Kind: model.OverrideHold, Train: "ghost"})
	var inv *ErrInvalidOverride
	if !errors.As(err, &inv) {
		t.Fatalf("expected ErrInvalidOverride, got %v", err)
	}
	if len(d.pendingOverrides) != 0 {
		t.Fatalf("rejected override must not be queued")
	}
}

func TestSubmitOverrideRejectedBeforeFirstPlan(t *testing.T) {
	d := testDispatcher(t, nil)
	if err := d.AddTrains([]model.Train{testTrain("P1", model.ClassPassenger, 10)}); err != nil {
		t.Fatalf("AddTrains: %v", err)
	}
	err := d.SubmitOverride(model.Override{Kind: model.OverrideHold, Train: "P1"})
	var inv *ErrInvalidOverride
	if !errors.As(err, &inv) {
		t.Fatalf("expected ErrInvalidOverride in idle state, got %v", err)
	}
	if len(d.pendingOverrides) != 0 {
		t.Fatalf("override queued while idle")
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if err := d.SubmitOverride(model.Override{Kind: model.OverrideHold, Train: "P1"}); err != nil {
		t.Fatalf("hold while executing: %v", err)
	}
}

func TestHoldThenReleaseReplans(t *testing.T) {
	d := testDispatcher(t, nil)
	trains := []model.Train{
		testTrain("P1", model.ClassPassenger, 10),
		testTrain("F1", model.ClassFreight, 10),
	}
	if err := d.AddTrains(trains); err != nil {
		t.Fatalf("AddTrains: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if err := d.SubmitOverride(model.Override{Kind: model.OverrideHold, Train: "P1"}); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step after hold: %v", err)
	}
	_, plan := d.Plan()
	if len(plan.ByTrain("P1")) != 0 {
		t.Fatalf("held train must not be scheduled")
	}
	for _, tr := range d.Trains() {
		if tr.ID == "P1" && tr.Status != model.StatusHeld {
			t.Fatalf("expected P1 held, got %s", tr.Status)
		}
	}

	if err := d.SubmitOverride(model.Override{Kind: model.OverrideRelease, Train: "P1"}); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step after release: %v", err)
	}
	_, plan = d.Plan()
	if len(plan.ByTrain("P1")) == 0 {
		t.Fatalf("released train must be scheduled again")
	}
}

func TestDisruptionTriggersRapidReplan(t *testing.T) {
	d := testDispatcher(t, nil)
	if err := d.AddTrains([]model.Train{
		testTrain("E1", model.ClassExpress, 10),
		testTrain("P1", model.ClassPassenger, 80),
	}); err != nil {
		t.Fatalf("AddTrains: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	first, _ := d.Plan()

	d.ReportDisruption(model.DisruptionEvent{
		ID:        "fail-1",
		Kind:      model.DisruptionFailure,
		Resources: []string{"s-ab"},
		Window:    model.Window{Start: at(8, 10), End: at(8, 30)},
		Severity:  1,
	})
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step after disruption: %v", err)
	}
	second, _ := d.Plan()
	if first == second {
		t.Fatalf("expected a new plan revision after the disruption")
	}
	res := d.LastResult()
	if !contains(res.Replanned, "E1") {
		t.Fatalf("expected E1 in replanned set, got %v", res.Replanned)
	}
	if contains(res.Replanned, "P1") {
		t.Fatalf("P1 is outside the disruption window and must keep its slots")
	}
	for _, r := range secondPlanReservations(t, d, "E1") {
		if r.Resource == "s-ab" && r.Entry.Before(at(8, 30)) {
			t.Fatalf("E1 rescheduled into the outage: %+v", r)
		}
	}
}

func secondPlanReservations(t *testing.T, d *Dispatcher, train string) []model.Reservation {
	t.Helper()
	_, plan := d.Plan()
	if plan == nil {
		t.Fatalf("no committed plan")
	}
	return plan.ByTrain(train)
}

func TestBlockedNetworkDegradesAndHolds(t *testing.T) {
	d := testDispatcher(t, nil)
	if err := d.AddTrains([]model.Train{
		testTrain("P1", model.ClassPassenger, 10),
		testTrain("P2", model.ClassPassenger, 40),
	}); err != nil {
		t.Fatalf("AddTrains: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if err := d.SubmitOverride(model.Override{
		Kind:     model.OverrideBlock,
		Resource: "s-ab",
		Window:   testHorizon,
	}); err != nil {
		t.Fatalf("block: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step after block: %v", err)
	}
	if d.State() != StateDegraded {
		t.Fatalf("expected degraded state, got %s", d.State())
	}
	if len(d.Conflicts()) == 0 {
		t.Fatalf("expected recorded conflicts")
	}
	for _, tr := range d.Trains() {
		if tr.Status != model.StatusHeld {
			t.Fatalf("expected %s held in degraded mode, got %s", tr.ID, tr.Status)
		}
	}
}

func TestEmergencyBoostsTrain(t *testing.T) {
	d := testDispatcher(t, nil)
	if err := d.AddTrains([]model.Train{testTrain("F1", model.ClassFreight, 10)}); err != nil {
		t.Fatalf("AddTrains: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if err := d.SubmitOverride(model.Override{Kind: model.OverrideEmergencyOn, Train: "F1"}); err != nil {
		t.Fatalf("emergency on: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !d.EmergencyActive() {
		t.Fatalf("expected emergency mode active")
	}
	for _, tr := range d.Trains() {
		if tr.ID == "F1" && tr.Class != model.ClassExpress {
			t.Fatalf("expected F1 boosted to express, got %s", tr.Class)
		}
	}
	if err := d.SubmitOverride(model.Override{Kind: model.OverrideEmergencyOff}); err != nil {
		t.Fatalf("emergency off: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if d.EmergencyActive() {
		t.Fatalf("expected emergency mode cleared")
	}
	for _, tr := range d.Trains() {
		if tr.ID == "F1" && tr.Class != model.ClassFreight {
			t.Fatalf("expected F1 restored to freight, got %s", tr.Class)
		}
	}
}

func TestEmergencySuspendsCommits(t *testing.T) {
	bus := eventbus.NewTyped[any]()
	d := testDispatcher(t, bus)
	if err := d.AddTrains([]model.Train{testTrain("P1", model.ClassPassenger, 10)}); err != nil {
		t.Fatalf("AddTrains: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	first, _ := d.Plan()

	if err := d.SubmitOverride(model.Override{Kind: model.OverrideEmergencyOn}); err != nil {
		t.Fatalf("emergency on: %v", err)
	}
	if err := d.AddTrains([]model.Train{testTrain("P2", model.ClassPassenger, 60)}); err != nil {
		t.Fatalf("AddTrains: %v", err)
	}
	ch := bus.Subscribe()
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step under emergency: %v", err)
	}

	id, plan := d.Plan()
	if id != first {
		t.Fatalf("plan was committed during emergency mode: %s -> %s", first, id)
	}
	if len(plan.ByTrain("P2")) != 0 {
		t.Fatalf("committed plan absorbed P2 during emergency")
	}
	adv, ok := d.AdvisoryResult()
	if !ok || len(adv.Plan.ByTrain("P2")) == 0 {
		t.Fatalf("expected an advisory plan covering P2")
	}
	sawAdvisory := false
	for i := 0; i < 8; i++ {
		select {
		case ev := <-ch:
			if pe, isPlan := ev.(events.PlanEvent); isPlan {
				if !pe.Advisory {
					t.Fatalf("non-advisory plan event during emergency: %+v", pe)
				}
				sawAdvisory = true
			}
		default:
		}
	}
	if !sawAdvisory {
		t.Fatalf("expected an advisory plan event on the bus")
	}

	if err := d.SubmitOverride(model.Override{Kind: model.OverrideEmergencyOff}); err != nil {
		t.Fatalf("emergency off: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step after emergency off: %v", err)
	}
	id, plan = d.Plan()
	if id == first {
		t.Fatalf("expected a committed revision after emergency off")
	}
	if len(plan.ByTrain("P2")) == 0 {
		t.Fatalf("expected P2 committed after emergency off")
	}
	if _, ok := d.AdvisoryResult(); ok {
		t.Fatalf("advisory result must be cleared once commits resume")
	}
}

type captureEstimator struct {
	states []estimate.State
}

func (c *captureEstimator) Estimate(t model.Train, s estimate.State) (estimate.Estimate, error) {
	c.states = append(c.states, s)
	return estimate.Estimate{ExpectedDelay: 0, PriorityWeight: 0.5}, nil
}

func TestEstimatorSeesRouteResources(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	net := testNetwork(t)
	est := &captureEstimator{}
	d, err := New(Options{
		Network:   net,
		Scheduler: schedule.New(net, schedule.Config{FullBudget: 500 * time.Millisecond, Restarts: 4}, nil),
		Estimator: est,
		Horizon:   testHorizon,
		Now:       func() time.Time { return testHorizon.Start },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.AddTrains([]model.Train{testTrain("P1", model.ClassPassenger, 10)}); err != nil {
		t.Fatalf("AddTrains: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(est.states) == 0 {
		t.Fatalf("estimator was never consulted")
	}
	got := est.states[0].RemainingResources["P1"]
	for _, want := range []string{"a1", "s-ab", "b1"} {
		if !contains(got, want) {
			t.Fatalf("expected %s in remaining resources, got %v", want, got)
		}
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
