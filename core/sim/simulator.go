package sim

import (
	"container/heap"
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/railops/dispatchd/core/kpi"
	"github.com/railops/dispatchd/core/logger"
	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/core/network"
	"github.com/railops/dispatchd/core/timeline"
)

// Simulator replays plans against isolated copies of the network state.
type Simulator struct {
	net *network.Network
	log logger.Logger
}

// New creates a simulator over the shared read-only network.
func New(net *network.Network, log logger.Logger) *Simulator {
	return &Simulator{net: net, log: log}
}

// Result is the outcome of one scenario run.
type Result struct {
	Scenario  string
	Conflicts []model.Conflict
	KPI       model.KPISnapshot
	// Events counts the discrete events processed.
	Events int
	// Delays holds the realized additional delay per train.
	Delays map[string]time.Duration
}

// run carries the mutable state of a single scenario execution. Each run owns
// its own copy; nothing here is shared between concurrent scenarios.
type run struct {
	sc        Scenario
	net       *network.Network
	plan      *model.Plan
	queue     eventQueue
	seq       int
	realized  *timeline.Timeline
	shift     map[string]time.Duration
	conflicts []model.Conflict
	flagged   map[string]bool
	completed map[string]time.Time
	dropped   map[string]bool
	events    int
	rng       *rand.Rand
}

// Run plays the plan against the scenario's disruption sequence. The plan and
// the simulator's network are never mutated; all occupancy state lives in an
// isolated copy.
func (s *Simulator) Run(ctx context.Context, plan *model.Plan, trains []model.Train, sc Scenario) (Result, error) {
	r := &run{
		sc:        sc,
		net:       s.net.Snapshot(),
		plan:      plan.Copy(),
		realized:  timeline.New(),
		shift:     make(map[string]time.Duration),
		flagged:   make(map[string]bool),
		completed: make(map[string]time.Time),
		dropped:   make(map[string]bool),
		rng:       rand.New(rand.NewSource(sc.Seed)),
	}
	for _, t := range trains {
		r.shift[t.ID] = 0
	}

	r.seed()
	for r.queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		ev := heap.Pop(&r.queue).(*event)
		r.events++
		r.process(ev)
	}

	return Result{
		Scenario:  sc.Name,
		Conflicts: r.conflicts,
		KPI:       r.snapshot(),
		Events:    r.events,
		Delays:    r.shift,
	}, nil
}

// RunAll executes every scenario concurrently. Runs share only the read-only
// network; results come back in scenario order.
func (s *Simulator) RunAll(ctx context.Context, plan *model.Plan, trains []model.Train, scs []Scenario) ([]Result, error) {
	results := make([]Result, len(scs))
	errs := make([]error, len(scs))
	var wg sync.WaitGroup
	for i, sc := range scs {
		wg.Add(1)
		go func(i int, sc Scenario) {
			defer wg.Done()
			results[i], errs[i] = s.Run(ctx, plan, trains, sc)
		}(i, sc)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// seed queues each train's first planned entry plus the scenario's disruption
// boundaries, in deterministic order. Later entries are chained from the
// preceding placement so each train has exactly one event in flight.
func (r *run) seed() {
	for _, id := range r.plan.Trains() {
		if rs := r.plan.ByTrain(id); len(rs) > 0 {
			r.push(&event{at: rs[0].Entry, kind: evEntry, train: id, index: 0})
		}
	}
	for _, d := range r.sc.Disruptions {
		r.push(&event{at: d.Window.Start, kind: evDisruptStart, disruption: d})
		r.push(&event{at: d.Window.End, kind: evDisruptEnd, disruption: d})
	}
}

func (r *run) push(ev *event) {
	ev.seq = r.seq
	r.seq++
	heap.Push(&r.queue, ev)
}

//gocyclo:ignore
func (r *run) process(ev *event) {
	switch ev.kind {
	case evDisruptStart, evDisruptEnd:
		// Capacity windows are evaluated lazily on entry; the boundary
		// events only advance the clock.
		return
	case evExit:
		if !r.dropped[ev.train] {
			r.completed[ev.train] = ev.at
		}
		return
	}

	if r.dropped[ev.train] {
		return
	}
	rs := r.plan.ByTrain(ev.train)
	planned := rs[ev.index]
	dur := planned.Exit.Sub(planned.Entry)
	entry := ev.at
	exit := entry.Add(dur)

	res, _ := r.net.Resource(planned.Resource)
	capFn := func(w model.Window) int {
		return r.net.EffectiveCapacity(planned.Resource, w, r.sc.Disruptions)
	}
	attempt := model.Reservation{Train: ev.train, Resource: planned.Resource, Entry: entry, Exit: exit}
	if r.realized.CanPlace(attempt, capFn, res.Headway) {
		jitter := r.weatherJitter(planned.Resource, entry)
		attempt.Exit = attempt.Exit.Add(jitter)
		r.realized.Place(attempt)
		r.shift[ev.train] = entry.Sub(planned.Entry) + jitter
		if ev.index == len(rs)-1 {
			r.push(&event{at: attempt.Exit, kind: evExit, train: ev.train, index: ev.index})
			return
		}
		nextAt := rs[ev.index+1].Entry.Add(r.shift[ev.train])
		if nextAt.Before(attempt.Exit) {
			nextAt = attempt.Exit
		}
		r.push(&event{at: nextAt, kind: evEntry, train: ev.train, index: ev.index + 1})
		return
	}

	// The committed plan is no longer feasible here: report the conflict and
	// queue the train behind the outage.
	horizonEnd := r.plan.Horizon.End
	edges := r.net.CapacityEdges(planned.Resource, model.Window{Start: entry, End: horizonEnd}, r.sc.Disruptions)
	next, ok := r.realized.NextFeasible(planned.Resource, ev.train, entry, dur, res.Headway, capFn, edges, horizonEnd)
	if !r.flagged[ev.train+"|"+planned.Resource] {
		r.flagged[ev.train+"|"+planned.Resource] = true
		r.conflicts = append(r.conflicts, model.Conflict{
			Resource: planned.Resource,
			Window:   model.Window{Start: entry, End: exit},
			Trains:   []string{ev.train},
			Reason:   conflictReason(r.sc.Disruptions, planned.Resource, entry, exit),
		})
	}
	if !ok {
		r.dropped[ev.train] = true
		return
	}
	r.shift[ev.train] = next.Sub(planned.Entry)
	r.push(&event{at: next, kind: evEntry, train: ev.train, index: ev.index})
}

// weatherJitter draws a reproducible extra dwell when a weather disruption is
// active on the entered resource.
func (r *run) weatherJitter(resource string, at time.Time) time.Duration {
	for _, d := range r.sc.Disruptions {
		if d.Kind == model.DisruptionWeather && d.Affects(resource) && d.Window.Contains(at) {
			max := int64(d.Severity * 5 * float64(time.Minute))
			if max <= 0 {
				return 0
			}
			return time.Duration(r.rng.Int63n(max))
		}
	}
	return 0
}

func conflictReason(disruptions []model.DisruptionEvent, resource string, entry, exit time.Time) string {
	w := model.Window{Start: entry, End: exit}
	for _, d := range disruptions {
		if d.Affects(resource) && d.Window.Overlaps(w) {
			return "capacity reduced by " + d.Kind.String()
		}
	}
	return "plan divergence"
}

func (r *run) snapshot() model.KPISnapshot {
	horizon := r.plan.Horizon
	util := make(map[string]float64)
	if h := horizon.Duration().Seconds(); h > 0 {
		for _, id := range r.realized.Resources() {
			var busy float64
			for _, res := range r.realized.Reservations(id) {
				busy += res.Exit.Sub(res.Entry).Seconds()
			}
			util[id] = busy / h
		}
	}
	delays := make(map[string]time.Duration, len(r.shift))
	ids := make([]string, 0, len(r.shift))
	for id := range r.shift {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		delays[id] = r.shift[id]
	}
	return kpi.Compute(delays, len(r.completed), util, horizon, horizon.Start)
}
