// Package network holds the static rail topology: stations, platforms and
// track sections with their capacity and headway rules. The topology is
// immutable after load; block/unblock overrides are overlaid as
// capacity-zero windows without touching the base definition.
package network

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/railops/dispatchd/core/model"
)

// ResourceKind distinguishes track sections from station platforms.
type ResourceKind int

const (
	KindSection ResourceKind = iota
	KindPlatform
)

func (k ResourceKind) String() string {
	if k == KindPlatform {
		return "platform"
	}
	return "section"
}

// Resource is a schedulable piece of infrastructure with finite
// simultaneous-occupancy capacity.
type Resource struct {
	ID            string
	Kind          ResourceKind
	Capacity      int
	Headway       time.Duration
	LengthKM      float64 // sections only
	From, To      string  // sections only; From == To for yard tracks
	Bidirectional bool    // sections only
	Station       string  // platforms only
}

// TraverseTime returns the minimum occupancy duration for a train moving at
// the given speed. Platforms use the dwell time instead of a run time.
func (r Resource) TraverseTime(speedKPH float64, dwell time.Duration) time.Duration {
	if r.Kind == KindPlatform {
		return dwell
	}
	if speedKPH <= 0 {
		return dwell
	}
	hours := r.LengthKM / speedKPH
	return time.Duration(hours * float64(time.Hour))
}

// Station groups an ordered list of platform resources.
type Station struct {
	ID        string
	Platforms []string
}

// RouteStep is one leg of a train's expanded route: the candidate resources
// (parallel sections, or the station's platforms) and the scheduled times
// that anchor it.
type RouteStep struct {
	Candidates []Resource
	Kind       ResourceKind
	// EarliestEntry is the scheduled arrival for platforms and the scheduled
	// departure from the previous stop for sections.
	EarliestEntry time.Time
	// MinExit applies to platforms: the train may not leave before its
	// scheduled departure.
	MinExit time.Time
}

// Network is the loaded topology plus the block overlay.
type Network struct {
	stations  map[string]Station
	resources map[string]Resource
	// links indexes section IDs by unordered endpoint pair.
	links map[string][]string

	mu     sync.RWMutex
	blocks map[string][]model.Window
}

func linkKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// New builds a network from station and section definitions.
func New(stations []Station, sections []Resource, platformCaps map[string]int, platformHeadway time.Duration) (*Network, error) {
	n := &Network{
		stations:  make(map[string]Station, len(stations)),
		resources: make(map[string]Resource),
		links:     make(map[string][]string),
		blocks:    make(map[string][]model.Window),
	}
	for _, st := range stations {
		if st.ID == "" {
			return nil, fmt.Errorf("station id is required")
		}
		if _, ok := n.stations[st.ID]; ok {
			return nil, fmt.Errorf("duplicate station %s", st.ID)
		}
		if len(st.Platforms) == 0 {
			return nil, fmt.Errorf("station %s has no platforms", st.ID)
		}
		n.stations[st.ID] = st
		for _, pid := range st.Platforms {
			if _, ok := n.resources[pid]; ok {
				return nil, fmt.Errorf("duplicate platform %s", pid)
			}
			cap := 1
			if c, ok := platformCaps[pid]; ok && c > 0 {
				cap = c
			}
			n.resources[pid] = Resource{
				ID:       pid,
				Kind:     KindPlatform,
				Capacity: cap,
				Headway:  platformHeadway,
				Station:  st.ID,
			}
		}
	}
	for _, sec := range sections {
		if sec.ID == "" {
			return nil, fmt.Errorf("section id is required")
		}
		if _, ok := n.resources[sec.ID]; ok {
			return nil, fmt.Errorf("duplicate resource %s", sec.ID)
		}
		if _, ok := n.stations[sec.From]; !ok {
			return nil, fmt.Errorf("section %s: unknown station %s", sec.ID, sec.From)
		}
		if _, ok := n.stations[sec.To]; !ok {
			return nil, fmt.Errorf("section %s: unknown station %s", sec.ID, sec.To)
		}
		if sec.Capacity <= 0 {
			return nil, fmt.Errorf("section %s: capacity must be positive", sec.ID)
		}
		sec.Kind = KindSection
		n.resources[sec.ID] = sec
		n.links[linkKey(sec.From, sec.To)] = append(n.links[linkKey(sec.From, sec.To)], sec.ID)
	}
	for k := range n.links {
		sort.Strings(n.links[k])
	}
	return n, nil
}

// Resource looks up a resource by ID.
func (n *Network) Resource(id string) (Resource, bool) {
	r, ok := n.resources[id]
	return r, ok
}

// Station looks up a station by ID.
func (n *Network) Station(id string) (Station, bool) {
	s, ok := n.stations[id]
	return s, ok
}

// Resources returns all resources sorted by ID.
func (n *Network) Resources() []Resource {
	out := make([]Resource, 0, len(n.resources))
	for _, r := range n.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Route expands a train's scheduled stops into alternating platform and
// section steps. An error is returned if two consecutive stops have no
// connecting section or the train crosses a unidirectional section the wrong
// way.
func (n *Network) Route(t model.Train) ([]RouteStep, error) {
	var steps []RouteStep
	for i, stop := range t.Route {
		st, ok := n.stations[stop.Station]
		if !ok {
			return nil, fmt.Errorf("train %s: unknown station %s", t.ID, stop.Station)
		}
		plats := make([]Resource, 0, len(st.Platforms))
		for _, pid := range st.Platforms {
			plats = append(plats, n.resources[pid])
		}
		steps = append(steps, RouteStep{
			Candidates:    plats,
			Kind:          KindPlatform,
			EarliestEntry: stop.Arrival,
			MinExit:       stop.Departure,
		})
		if i == len(t.Route)-1 {
			break
		}
		next := t.Route[i+1].Station
		var secs []Resource
		for _, sid := range n.links[linkKey(stop.Station, next)] {
			sec := n.resources[sid]
			if !sec.Bidirectional && sec.From != stop.Station {
				continue
			}
			secs = append(secs, sec)
		}
		if len(secs) == 0 {
			return nil, fmt.Errorf("train %s: no section from %s to %s", t.ID, stop.Station, next)
		}
		steps = append(steps, RouteStep{
			Candidates:    secs,
			Kind:          KindSection,
			EarliestEntry: stop.Departure,
		})
	}
	return steps, nil
}

// Block overlays a capacity-zero window on a resource.
func (n *Network) Block(id string, w model.Window) error {
	if _, ok := n.resources[id]; !ok {
		return fmt.Errorf("unknown resource %s", id)
	}
	n.mu.Lock()
	n.blocks[id] = append(n.blocks[id], w)
	n.mu.Unlock()
	return nil
}

// Unblock removes all block windows from a resource.
func (n *Network) Unblock(id string) error {
	if _, ok := n.resources[id]; !ok {
		return fmt.Errorf("unknown resource %s", id)
	}
	n.mu.Lock()
	delete(n.blocks, id)
	n.mu.Unlock()
	return nil
}

// Blocks returns the active block windows for a resource.
func (n *Network) Blocks(id string) []model.Window {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]model.Window, len(n.blocks[id]))
	copy(out, n.blocks[id])
	return out
}

// BlockedResources returns the IDs of resources with at least one block
// window, sorted.
func (n *Network) BlockedResources() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.blocks))
	for id := range n.blocks {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// EffectiveCapacity returns the minimum capacity of the resource over the
// window, taking blocks and the given disruptions into account.
func (n *Network) EffectiveCapacity(id string, w model.Window, disruptions []model.DisruptionEvent) int {
	r, ok := n.resources[id]
	if !ok {
		return 0
	}
	cap := r.Capacity
	n.mu.RLock()
	for _, b := range n.blocks[id] {
		if b.Overlaps(w) {
			cap = 0
		}
	}
	n.mu.RUnlock()
	for _, d := range disruptions {
		if d.Affects(id) && d.Window.Overlaps(w) {
			if c := d.EffectiveCapacity(r.Capacity); c < cap {
				cap = c
			}
		}
	}
	return cap
}

// CapacityEdges returns the instants inside the window at which the effective
// capacity of the resource may change. The scheduler uses them as candidate
// entry times when searching past an outage.
func (n *Network) CapacityEdges(id string, w model.Window, disruptions []model.DisruptionEvent) []time.Time {
	var edges []time.Time
	n.mu.RLock()
	for _, b := range n.blocks[id] {
		if b.Overlaps(w) {
			edges = append(edges, b.End)
		}
	}
	n.mu.RUnlock()
	for _, d := range disruptions {
		if d.Affects(id) && d.Window.Overlaps(w) {
			edges = append(edges, d.Window.End)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Before(edges[j]) })
	return edges
}

// Snapshot returns an isolated copy sharing no mutable state with the
// original. Scenario runs operate on snapshots.
func (n *Network) Snapshot() *Network {
	cp := &Network{
		stations:  n.stations,
		resources: n.resources,
		links:     n.links,
		blocks:    make(map[string][]model.Window),
	}
	n.mu.RLock()
	for id, ws := range n.blocks {
		out := make([]model.Window, len(ws))
		copy(out, ws)
		cp.blocks[id] = out
	}
	n.mu.RUnlock()
	return cp
}
