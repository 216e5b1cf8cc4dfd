package schedule

import (
	"gonum.org/v1/gonum/stat"

	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/core/network"
	"github.com/railops/dispatchd/core/timeline"
)

const (
	segmentBonus       = 1.0
	utilizationPenalty = 10.0
)

// objective scores a candidate plan: priority-weighted delay minus a
// throughput bonus for completed route segments, plus a penalty on uneven
// resource utilization. Lower is better.
func (s *Scheduler) objective(b *base, tl *timeline.Timeline, plan *model.Plan) float64 {
	var weighted float64
	segments := 0

	for _, t := range b.toPlace {
		rs := plan.ByTrain(t.ID)
		if len(rs) == 0 {
			continue
		}
		last := rs[len(rs)-1]
		delayMin := last.Entry.Sub(t.ScheduledArrival()).Minutes()
		if delayMin < 0 {
			delayMin = 0
		}
		weight := 0.5
		if est, ok := b.req.Estimates[t.ID]; ok {
			weight += est.PriorityWeight
		}
		weighted += t.Class.DelayWeight() * weight * delayMin
		for _, r := range rs {
			if !r.Exit.After(b.req.Horizon.End) {
				segments++
			}
		}
	}

	horizon := b.req.Horizon.Duration().Seconds()
	if horizon <= 0 {
		return weighted - segmentBonus*float64(segments)
	}
	var busy []float64
	for _, res := range s.net.Resources() {
		if res.Kind != network.KindSection {
			continue
		}
		var sum float64
		for _, r := range tl.Reservations(res.ID) {
			sum += r.Exit.Sub(r.Entry).Seconds()
		}
		busy = append(busy, sum/horizon)
	}
	variance := 0.0
	if len(busy) > 1 {
		variance = stat.Variance(busy, nil)
	}
	return weighted - segmentBonus*float64(segments) + utilizationPenalty*variance
}
