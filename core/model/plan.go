package model

import (
	"sort"
	"time"
)

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the two windows share any instant.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Reservation grants a train exclusive use of one capacity unit on a resource
// for [Entry, Exit).
type Reservation struct {
	Train    string    `json:"train"`
	Resource string    `json:"resource"`
	Entry    time.Time `json:"entry"`
	Exit     time.Time `json:"exit"`
}

// Window returns the occupancy interval of the reservation.
func (r Reservation) Window() Window { return Window{Start: r.Entry, End: r.Exit} }

// Plan maps each train to its ordered resource reservations over a horizon.
// Plans are value-owned by the dispatcher; everything handed out is a copy.
type Plan struct {
	Horizon      Window                   `json:"horizon"`
	Reservations map[string][]Reservation `json:"reservations"`
}

// NewPlan creates an empty plan covering the given horizon.
func NewPlan(h Window) *Plan {
	return &Plan{Horizon: h, Reservations: make(map[string][]Reservation)}
}

// Add appends a reservation to the train's sequence.
func (p *Plan) Add(r Reservation) {
	p.Reservations[r.Train] = append(p.Reservations[r.Train], r)
}

// ByTrain returns the route-ordered reservations for a train.
func (p *Plan) ByTrain(id string) []Reservation {
	return p.Reservations[id]
}

// Trains returns the train IDs in the plan in lexicographic order.
func (p *Plan) Trains() []string {
	ids := make([]string, 0, len(p.Reservations))
	for id := range p.Reservations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Copy returns a deep copy of the plan.
func (p *Plan) Copy() *Plan {
	cp := NewPlan(p.Horizon)
	for id, rs := range p.Reservations {
		out := make([]Reservation, len(rs))
		copy(out, rs)
		cp.Reservations[id] = out
	}
	return cp
}

// TrainsTouching returns the trains that hold a reservation on any of the
// given resources within the window. Used to scope re-optimization deltas.
func (p *Plan) TrainsTouching(resources []string, w Window) []string {
	set := make(map[string]bool, len(resources))
	for _, r := range resources {
		set[r] = true
	}
	var out []string
	for _, id := range p.Trains() {
		for _, res := range p.Reservations[id] {
			if set[res.Resource] && res.Window().Overlaps(w) {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

// Completion returns the time the train's final reservation ends, or the zero
// time if the train has no reservations.
func (p *Plan) Completion(train string) time.Time {
	rs := p.Reservations[train]
	if len(rs) == 0 {
		return time.Time{}
	}
	return rs[len(rs)-1].Exit
}
