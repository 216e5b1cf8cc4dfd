package scenarios

import (
	"context"
	"fmt"
	"time"

	"github.com/railops/dispatchd/core/logger"
	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/core/network"
	"github.com/railops/dispatchd/core/schedule"
	"github.com/railops/dispatchd/core/sim"
)

// Report is the outcome of one what-if run: the plan quality, the baseline
// (undisrupted) simulation, the scenario simulation and their comparison.
type Report struct {
	Scenario   string
	Feasible   bool
	Objective  float64
	Confidence float64
	Baseline   sim.Result
	Disrupted  sim.Result
	Comparison sim.Comparison
}

// Run loads the scenario's network and roster, plans with the scenario's
// train modifications applied and simulates both the baseline and the
// disrupted timeline.
func Run(ctx context.Context, sc *Scenario, cfg schedule.Config, log logger.Logger) (Report, error) {
	net, err := network.Load(sc.Topology)
	if err != nil {
		return Report{}, fmt.Errorf("load topology: %w", err)
	}
	trains, err := network.LoadRoster(sc.Roster)
	if err != nil {
		return Report{}, fmt.Errorf("load roster: %w", err)
	}
	if len(trains) == 0 {
		return Report{}, fmt.Errorf("roster %s has no trains", sc.Roster)
	}

	base := horizonStart(trains)
	simSc, err := sc.ToSim(base)
	if err != nil {
		return Report{}, err
	}
	trains = simSc.ApplyTrainModifications(trains)

	sched := schedule.New(net, cfg, log)
	res, err := sched.Plan(ctx, schedule.Request{
		Trains:  trains,
		Horizon: model.Window{Start: base, End: base.Add(time.Duration(sc.HorizonHours) * time.Hour)},
		Seed:    sc.Seed,
	})
	if err != nil {
		return Report{}, fmt.Errorf("plan scenario %s: %w", sc.Name, err)
	}

	baseline := sim.Scenario{Name: "baseline", Seed: sc.Seed}
	results, err := sim.New(net, log).RunAll(ctx, res.Plan, trains, []sim.Scenario{baseline, simSc})
	if err != nil {
		return Report{}, fmt.Errorf("simulate scenario %s: %w", sc.Name, err)
	}

	return Report{
		Scenario:   sc.Name,
		Feasible:   res.Feasible,
		Objective:  res.Objective,
		Confidence: res.Confidence,
		Baseline:   results[0],
		Disrupted:  results[1],
		Comparison: sim.Compare(results),
	}, nil
}

// RunAll runs every scenario and compares the disrupted results across them.
func RunAll(ctx context.Context, scs []*Scenario, cfg schedule.Config, log logger.Logger) ([]Report, sim.Comparison, error) {
	reports := make([]Report, 0, len(scs))
	results := make([]sim.Result, 0, len(scs))
	for _, sc := range scs {
		rep, err := Run(ctx, sc, cfg, log)
		if err != nil {
			return nil, sim.Comparison{}, err
		}
		reports = append(reports, rep)
		r := rep.Disrupted
		r.Scenario = sc.Name
		results = append(results, r)
	}
	return reports, sim.Compare(results), nil
}

func horizonStart(trains []model.Train) time.Time {
	var earliest time.Time
	for _, t := range trains {
		for _, s := range t.Route {
			at := s.Departure
			if at.IsZero() {
				at = s.Arrival
			}
			if earliest.IsZero() || at.Before(earliest) {
				earliest = at
			}
		}
	}
	return earliest.Truncate(time.Minute)
}
