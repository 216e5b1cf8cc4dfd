package schedule

import (
	"context"
	"math/rand"
	"time"

	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/core/network"
	"github.com/railops/dispatchd/core/timeline"
)

// base holds the shared search state for one invocation: pre-expanded routes,
// frozen reservations and the trains left to place.
type base struct {
	req      Request
	routes   map[string][]network.RouteStep
	frozen   *timeline.Timeline
	seedPlan *model.Plan
	toPlace  []model.Train
	edges    map[string][]time.Time
}

type attemptResult struct {
	plan      *model.Plan
	objective float64
	blocking  []string
	ok        bool
}

//gocyclo:ignore
func (s *Scheduler) solve(ctx context.Context, req Request, budget time.Duration) (Result, error) {
	start := time.Now()
	deadline := start.Add(budget)

	b, err := s.prepare(req)
	if err != nil {
		return Result{}, err
	}

	rng := rand.New(rand.NewSource(req.Seed))
	canonical := orderTrains(b.toPlace)

	var best *attemptResult
	var leastBlocked []string
	budgetExceeded := false

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			// Cancellation discards all partial state.
			return Result{}, err
		}
		if time.Now().After(deadline) {
			budgetExceeded = best != nil
			break
		}
		order := canonical
		if attempt > 0 {
			order = perturb(canonical, rng)
		}
		res := s.attempt(ctx, b, order, deadline)
		if res.ok {
			if best == nil || res.objective < best.objective {
				best = &res
			}
		} else if len(res.blocking) > 0 {
			if leastBlocked == nil || len(res.blocking) < len(leastBlocked) {
				leastBlocked = res.blocking
			}
		}
		if attempt+1 >= s.cfg.Restarts {
			break
		}
	}

	elapsed := time.Since(start)
	if best == nil {
		if leastBlocked == nil {
			leastBlocked = []string{}
		}
		return Result{Elapsed: elapsed}, &InfeasibleError{Resources: leastBlocked}
	}
	confidence := 0.9
	if budgetExceeded {
		confidence = 0.7
		if s.log != nil {
			s.log.Warnf("schedule: budget %s exceeded, returning incumbent (objective %.2f)", budget, best.objective)
		}
	}
	replanned := make([]string, 0, len(b.toPlace))
	for _, t := range b.toPlace {
		replanned = append(replanned, t.ID)
	}
	return Result{
		Plan:           best.plan,
		Feasible:       true,
		BudgetExceeded: budgetExceeded,
		Objective:      best.objective,
		Confidence:     confidence,
		Elapsed:        elapsed,
		Replanned:      replanned,
	}, nil
}

// prepare expands routes, freezes reservations kept from a prior plan and
// standing holds, and selects the trains to place.
func (s *Scheduler) prepare(req Request) (*base, error) {
	b := &base{
		req:      req,
		routes:   make(map[string][]network.RouteStep),
		frozen:   timeline.New(),
		seedPlan: model.NewPlan(req.Horizon),
		edges:    make(map[string][]time.Time),
	}

	var active []model.Train
	for _, t := range req.Trains {
		if !t.Active() {
			continue
		}
		if t.Status == model.StatusHeld {
			// A held train pins its current resource for the whole horizon.
			if t.Position.Resource != "" {
				b.frozen.Place(model.Reservation{
					Train:    t.ID,
					Resource: t.Position.Resource,
					Entry:    req.Horizon.Start,
					Exit:     req.Horizon.End,
				})
			}
			continue
		}
		steps, err := s.net.Route(t)
		if err != nil {
			return nil, err
		}
		b.routes[t.ID] = steps
		active = append(active, t)
	}

	replanSet := map[string]bool{}
	if req.Prior != nil && req.Delta != nil {
		w := req.Delta.Window
		w.End = w.End.Add(s.cfg.RapidHorizon)
		for _, id := range req.Prior.TrainsTouching(req.Delta.Resources, w) {
			replanSet[id] = true
		}
		for _, id := range req.Delta.Trains {
			replanSet[id] = true
		}
		for _, t := range active {
			if replanSet[t.ID] {
				b.toPlace = append(b.toPlace, t)
				continue
			}
			rs := req.Prior.ByTrain(t.ID)
			if len(rs) == 0 {
				b.toPlace = append(b.toPlace, t)
				continue
			}
			for _, r := range rs {
				b.frozen.Place(r)
				b.seedPlan.Add(r)
			}
		}
	} else {
		b.toPlace = active
	}

	for _, r := range s.net.Resources() {
		b.edges[r.ID] = s.net.CapacityEdges(r.ID, req.Horizon, req.Disruptions)
	}
	return b, nil
}

// attempt greedily places the trains in the given order. A failed placement
// reports the resources that blocked it.
func (s *Scheduler) attempt(ctx context.Context, b *base, order []model.Train, deadline time.Time) attemptResult {
	tl := b.frozen.Copy()
	plan := b.seedPlan.Copy()

	for _, t := range order {
		if ctx.Err() != nil || time.Now().After(deadline) {
			return attemptResult{}
		}
		blocking, ok := s.placeTrain(b, tl, plan, t)
		if !ok {
			return attemptResult{blocking: blocking}
		}
	}
	return attemptResult{plan: plan, objective: s.objective(b, tl, plan), ok: true}
}

// placeTrain walks the train's route steps, reserving the earliest feasible
// slot on the best candidate resource for each step.
func (s *Scheduler) placeTrain(b *base, tl *timeline.Timeline, plan *model.Plan, t model.Train) ([]string, bool) {
	horizon := b.req.Horizon
	prevExit := horizon.Start

	for i, step := range b.routes[t.ID] {
		earliest := step.EarliestEntry
		if i == 0 {
			earliest = earliest.Add(t.Delay)
		}
		if earliest.Before(prevExit) {
			earliest = prevExit
		}
		if earliest.Before(horizon.Start) {
			earliest = horizon.Start
		}

		var bestRes network.Resource
		var bestEntry time.Time
		var bestDur time.Duration
		found := false
		var blocked []string

		for _, cand := range step.Candidates {
			dur := cand.TraverseTime(t.SpeedKPH, s.cfg.Dwell)
			if step.Kind == network.KindPlatform && step.MinExit.After(earliest.Add(dur)) {
				dur = step.MinExit.Sub(earliest)
			}
			capFn := func(w model.Window) int {
				return s.net.EffectiveCapacity(cand.ID, w, b.req.Disruptions)
			}
			entry, ok := tl.NextFeasible(cand.ID, t.ID, earliest, dur, cand.Headway, capFn, b.edges[cand.ID], horizon.End)
			if !ok {
				blocked = append(blocked, cand.ID)
				continue
			}
			if !found || entry.Before(bestEntry) || (entry.Equal(bestEntry) && cand.ID < bestRes.ID) {
				bestRes, bestEntry, bestDur, found = cand, entry, dur, true
			}
		}
		if !found {
			return blocked, false
		}
		r := model.Reservation{Train: t.ID, Resource: bestRes.ID, Entry: bestEntry, Exit: bestEntry.Add(bestDur)}
		tl.Place(r)
		plan.Add(r)
		prevExit = r.Exit
	}
	return nil, true
}

// perturb swaps adjacent trains of equal priority class to diversify the
// search while preserving the class ordering.
func perturb(order []model.Train, rng *rand.Rand) []model.Train {
	out := make([]model.Train, len(order))
	copy(out, order)
	for i := 0; i+1 < len(out); i++ {
		if out[i].Class == out[i+1].Class && rng.Intn(2) == 1 {
			out[i], out[i+1] = out[i+1], out[i]
		}
	}
	return out
}
