// Package timeline maintains per-resource reservation indexes sorted by entry
// time. The scheduler uses it for fast overlap and headway queries during
// constraint checking; the simulator replays plans against its own copy.
package timeline

import (
	"sort"
	"time"

	"github.com/railops/dispatchd/core/model"
)

// CapacityFn returns the minimum effective capacity of a resource over a
// window, taking blocks and active disruptions into account.
type CapacityFn func(w model.Window) int

// Timeline indexes reservations by resource, ordered by entry time.
type Timeline struct {
	res map[string][]model.Reservation
}

// New creates an empty timeline.
func New() *Timeline {
	return &Timeline{res: make(map[string][]model.Reservation)}
}

// Copy returns a deep copy. Scenario runs and warm starts mutate copies only.
func (t *Timeline) Copy() *Timeline {
	cp := New()
	for id, rs := range t.res {
		out := make([]model.Reservation, len(rs))
		copy(out, rs)
		cp.res[id] = out
	}
	return cp
}

// Place inserts a reservation keeping the per-resource order.
func (t *Timeline) Place(r model.Reservation) {
	rs := t.res[r.Resource]
	i := sort.Search(len(rs), func(i int) bool { return rs[i].Entry.After(r.Entry) })
	rs = append(rs, model.Reservation{})
	copy(rs[i+1:], rs[i:])
	rs[i] = r
	t.res[r.Resource] = rs
}

// RemoveTrain drops every reservation held by the train.
func (t *Timeline) RemoveTrain(train string) {
	for id, rs := range t.res {
		out := rs[:0]
		for _, r := range rs {
			if r.Train != train {
				out = append(out, r)
			}
		}
		if len(out) == 0 {
			delete(t.res, id)
		} else {
			t.res[id] = out
		}
	}
}

// Reservations returns the ordered reservations on a resource.
func (t *Timeline) Reservations(resource string) []model.Reservation {
	rs := t.res[resource]
	out := make([]model.Reservation, len(rs))
	copy(out, rs)
	return out
}

// Resources returns the resource IDs that carry reservations, sorted.
func (t *Timeline) Resources() []string {
	out := make([]string, 0, len(t.res))
	for id := range t.res {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// occupancy returns the number of existing reservations overlapping w.
func (t *Timeline) occupancy(resource string, w model.Window) int {
	count := 0
	for _, r := range t.res[resource] {
		if r.Window().Overlaps(w) {
			count++
		}
	}
	return count
}

// CanPlace reports whether the reservation respects capacity and headway on
// its resource. capFn provides the effective capacity over a window.
func (t *Timeline) CanPlace(r model.Reservation, capFn CapacityFn, headway time.Duration) bool {
	w := r.Window()
	cap := capFn(w)
	if cap <= 0 {
		return false
	}
	if t.occupancy(r.Resource, w)+1 > cap {
		return false
	}
	for _, s := range t.res[r.Resource] {
		if s.Train == r.Train {
			continue
		}
		if s.Window().Overlaps(w) {
			// Concurrent occupants still need their entries separated.
			d := r.Entry.Sub(s.Entry)
			if d < 0 {
				d = -d
			}
			if d < headway {
				return false
			}
			continue
		}
		if !s.Exit.After(r.Entry) {
			if r.Entry.Sub(s.Exit) < headway {
				return false
			}
		} else if !r.Exit.After(s.Entry) {
			if s.Entry.Sub(r.Exit) < headway {
				return false
			}
		}
	}
	return true
}

// NextFeasible returns the earliest entry at or after the given time at which
// a reservation of the given duration can be placed, or false if none exists
// before limit. edges are additional candidate instants (capacity-change
// boundaries from blocks and disruptions).
func (t *Timeline) NextFeasible(resource, train string, after time.Time, dur, headway time.Duration, capFn CapacityFn, edges []time.Time, limit time.Time) (time.Time, bool) {
	candidates := []time.Time{after}
	for _, s := range t.res[resource] {
		for _, c := range []time.Time{s.Entry.Add(headway), s.Exit.Add(headway)} {
			if c.After(after) && c.Before(limit) {
				candidates = append(candidates, c)
			}
		}
	}
	for _, e := range edges {
		if e.After(after) && e.Before(limit) {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })
	for _, c := range candidates {
		if c.Add(dur).After(limit) {
			return time.Time{}, false
		}
		r := model.Reservation{Train: train, Resource: resource, Entry: c, Exit: c.Add(dur)}
		if t.CanPlace(r, capFn, headway) {
			return c, true
		}
	}
	return time.Time{}, false
}

// Violations sweeps the whole timeline and returns every capacity or headway
// breach as a Conflict. Used to validate committed plans and to detect
// divergence during simulation.
func (t *Timeline) Violations(capFn func(resource string, w model.Window) int, headwayFn func(resource string) time.Duration) []model.Conflict {
	var out []model.Conflict
	for _, id := range t.Resources() {
		rs := t.res[id]
		headway := headwayFn(id)
		for i, r := range rs {
			var overlapping []string
			for j, s := range rs {
				if i == j {
					continue
				}
				if s.Window().Overlaps(r.Window()) {
					overlapping = append(overlapping, s.Train)
				}
			}
			cap := capFn(id, r.Window())
			if len(overlapping)+1 > cap {
				out = append(out, model.Conflict{
					Resource: id,
					Window:   r.Window(),
					Trains:   append([]string{r.Train}, overlapping...),
					Reason:   "capacity exceeded",
				})
			}
			if i+1 < len(rs) {
				next := rs[i+1]
				gap := next.Entry.Sub(r.Entry)
				if !next.Entry.Before(r.Exit) {
					gap = next.Entry.Sub(r.Exit)
				}
				if gap < headway {
					out = append(out, model.Conflict{
						Resource: id,
						Window:   model.Window{Start: r.Entry, End: next.Exit},
						Trains:   []string{r.Train, next.Train},
						Reason:   "headway violated",
					})
				}
			}
		}
	}
	return out
}
