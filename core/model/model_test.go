package model

import (
	"testing"
	"time"
)

var base = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func at(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

func win(startMin, endMin int) Window {
	return Window{Start: at(startMin), End: at(endMin)}
}

func TestWindowOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Window
		want bool
	}{
		{"disjoint", win(0, 10), win(20, 30), false},
		{"touching", win(0, 10), win(10, 20), false},
		{"overlapping", win(0, 15), win(10, 20), true},
		{"contained", win(0, 30), win(10, 20), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.a.Overlaps(c.b); got != c.want {
				t.Errorf("Overlaps = %t, want %t", got, c.want)
			}
			if got := c.b.Overlaps(c.a); got != c.want {
				t.Errorf("Overlaps is not symmetric: %t, want %t", got, c.want)
			}
		})
	}
}

func TestWindowContains(t *testing.T) {
	w := win(0, 10)
	if !w.Contains(at(0)) || !w.Contains(at(5)) {
		t.Error("window should contain its start and interior")
	}
	if w.Contains(at(10)) {
		t.Error("window end is exclusive")
	}
}

func TestPriorityClassOrder(t *testing.T) {
	if !(ClassExpress > ClassPassenger && ClassPassenger > ClassFreight) {
		t.Error("express must outrank passenger, passenger must outrank freight")
	}
	if ClassExpress.DelayWeight() <= ClassPassenger.DelayWeight() {
		t.Error("delay weight must grow with class")
	}
}

func TestParsePriorityClass(t *testing.T) {
	for s, want := range map[string]PriorityClass{
		"express": ClassExpress, "passenger": ClassPassenger, "freight": ClassFreight,
	} {
		got, err := ParsePriorityClass(s)
		if err != nil || got != want {
			t.Errorf("ParsePriorityClass(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParsePriorityClass("hovercraft"); err == nil {
		t.Error("expected error for unknown class")
	}
}

func TestParseOverrideKindRoundTrip(t *testing.T) {
	kinds := []OverrideKind{
		OverrideHold, OverrideRelease, OverrideBlock, OverrideUnblock,
		OverridePriority, OverrideEmergencyOn, OverrideEmergencyOff,
	}
	for _, k := range kinds {
		got, err := ParseOverrideKind(k.String())
		if err != nil || got != k {
			t.Errorf("round trip %v: got %v, %v", k, got, err)
		}
	}
	if _, err := ParseOverrideKind("teleport"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestTrainValidate(t *testing.T) {
	valid := Train{
		ID:       "E1",
		Class:    ClassExpress,
		SpeedKPH: 120,
		Route:    []Stop{{Station: "A", Departure: at(0)}, {Station: "B", Arrival: at(20)}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid train rejected: %v", err)
	}

	for name, tr := range map[string]Train{
		"no id":    {Class: ClassExpress, SpeedKPH: 120, Route: valid.Route},
		"no route": {ID: "E1", SpeedKPH: 120},
		"no speed": {ID: "E1", Route: valid.Route},
	} {
		if err := tr.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestScheduledTimes(t *testing.T) {
	tr := Train{Route: []Stop{
		{Station: "A", Departure: at(0)},
		{Station: "B", Arrival: at(20), Departure: at(25)},
		{Station: "C", Arrival: at(45)},
	}}
	if !tr.ScheduledDeparture().Equal(at(0)) {
		t.Errorf("departure = %v", tr.ScheduledDeparture())
	}
	if !tr.ScheduledArrival().Equal(at(45)) {
		t.Errorf("arrival = %v", tr.ScheduledArrival())
	}
}

func TestDisruptionEffectiveCapacity(t *testing.T) {
	cases := []struct {
		severity float64
		nominal  int
		want     int
	}{
		{0, 2, 2},
		{0.5, 2, 1},
		{1, 2, 0},
		{1.5, 2, 0},
		{-1, 2, 2},
	}
	for _, c := range cases {
		d := DisruptionEvent{Severity: c.severity}
		if got := d.EffectiveCapacity(c.nominal); got != c.want {
			t.Errorf("severity %.1f on %d: got %d, want %d", c.severity, c.nominal, got, c.want)
		}
	}
}

func TestDisruptionAffects(t *testing.T) {
	d := DisruptionEvent{Resources: []string{"s-ab", "b1"}}
	if !d.Affects("s-ab") || d.Affects("s-bc") {
		t.Error("Affects should match listed resources only")
	}
}

func TestPlanCopyIsolation(t *testing.T) {
	p := NewPlan(win(0, 60))
	p.Add(Reservation{Train: "E1", Resource: "s-ab", Entry: at(0), Exit: at(10)})

	cp := p.Copy()
	cp.Add(Reservation{Train: "E1", Resource: "s-bc", Entry: at(15), Exit: at(25)})

	if len(p.ByTrain("E1")) != 1 {
		t.Error("adding to the copy mutated the original")
	}
	if len(cp.ByTrain("E1")) != 2 {
		t.Error("copy should carry both reservations")
	}
}

func TestPlanTrainsTouching(t *testing.T) {
	p := NewPlan(win(0, 120))
	p.Add(Reservation{Train: "E1", Resource: "s-ab", Entry: at(0), Exit: at(20)})
	p.Add(Reservation{Train: "F1", Resource: "s-ab", Entry: at(60), Exit: at(90)})
	p.Add(Reservation{Train: "P1", Resource: "s-bc", Entry: at(10), Exit: at(30)})

	got := p.TrainsTouching([]string{"s-ab"}, win(0, 30))
	if len(got) != 1 || got[0] != "E1" {
		t.Errorf("TrainsTouching = %v, want [E1]", got)
	}
}

func TestPlanCompletion(t *testing.T) {
	p := NewPlan(win(0, 60))
	p.Add(Reservation{Train: "E1", Resource: "s-ab", Entry: at(0), Exit: at(20)})
	p.Add(Reservation{Train: "E1", Resource: "b1", Entry: at(20), Exit: at(30)})

	if !p.Completion("E1").Equal(at(30)) {
		t.Errorf("completion = %v, want %v", p.Completion("E1"), at(30))
	}
	if !p.Completion("ghost").IsZero() {
		t.Error("unknown train should report zero completion")
	}
}
