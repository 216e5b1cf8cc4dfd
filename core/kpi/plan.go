package kpi

import (
	"time"

	"github.com/railops/dispatchd/core/model"
)

// PlanSnapshot derives KPIs from a committed plan: planned arrival delay per
// train, completions within the horizon and per-resource busy fractions.
func PlanSnapshot(plan *model.Plan, trains []model.Train, at time.Time) model.KPISnapshot {
	if plan == nil {
		return model.KPISnapshot{At: at}
	}
	byID := make(map[string]model.Train, len(trains))
	for _, t := range trains {
		byID[t.ID] = t
	}
	delays := make(map[string]time.Duration)
	completed := 0
	for _, id := range plan.Trains() {
		rs := plan.ByTrain(id)
		if len(rs) == 0 {
			continue
		}
		last := rs[len(rs)-1]
		d := time.Duration(0)
		if t, ok := byID[id]; ok && len(t.Route) > 0 {
			if late := last.Entry.Sub(t.ScheduledArrival()); late > 0 {
				d = late
			}
		}
		delays[id] = d
		if !last.Exit.After(plan.Horizon.End) {
			completed++
		}
	}

	util := make(map[string]float64)
	if h := plan.Horizon.Duration().Seconds(); h > 0 {
		busy := make(map[string]float64)
		for _, id := range plan.Trains() {
			for _, r := range plan.ByTrain(id) {
				busy[r.Resource] += r.Exit.Sub(r.Entry).Seconds()
			}
		}
		for res, b := range busy {
			util[res] = b / h
		}
	}
	return Compute(delays, completed, util, plan.Horizon, at)
}
