package sim

import (
	"sort"

	"github.com/railops/dispatchd/core/model"
)

// Scenario is a named, reproducible sequence of disruption events played
// against a plan, plus optional train modifications applied before planning
// in what-if analysis.
type Scenario struct {
	Name        string
	Description string
	Seed        int64
	Disruptions []model.DisruptionEvent
	// PriorityOverrides reclassifies trains before a what-if planning run.
	PriorityOverrides map[string]model.PriorityClass
}

// ApplyTrainModifications returns a copy of the trains with the scenario's
// priority overrides applied.
func (sc Scenario) ApplyTrainModifications(trains []model.Train) []model.Train {
	out := make([]model.Train, len(trains))
	copy(out, trains)
	for i, t := range out {
		if cls, ok := sc.PriorityOverrides[t.ID]; ok {
			out[i].Class = cls
		}
	}
	return out
}

// Comparison summarizes scenario results side by side.
type Comparison struct {
	Results         []Result
	BestPunctuality string
	BestMeanDelay   string
	BestThroughput  string
}

// Compare ranks scenario results on each KPI.
func Compare(results []Result) Comparison {
	cmp := Comparison{Results: results}
	if len(results) == 0 {
		return cmp
	}
	sorted := make([]Result, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Scenario < sorted[j].Scenario })

	best := sorted[0]
	for _, r := range sorted[1:] {
		if r.KPI.Punctuality > best.KPI.Punctuality {
			best = r
		}
	}
	cmp.BestPunctuality = best.Scenario

	best = sorted[0]
	for _, r := range sorted[1:] {
		if r.KPI.MeanDelay < best.KPI.MeanDelay {
			best = r
		}
	}
	cmp.BestMeanDelay = best.Scenario

	best = sorted[0]
	for _, r := range sorted[1:] {
		if r.KPI.ThroughputPerHour > best.KPI.ThroughputPerHour {
			best = r
		}
	}
	cmp.BestThroughput = best.Scenario
	return cmp
}
