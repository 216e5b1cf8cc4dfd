package estimate

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/railops/dispatchd/core/model"
)

// RuleBased estimates delay from historical delay samples and the severity of
// active disruptions on the train's remaining route. It is deterministic and
// monotonic in disruption severity: adding or worsening a disruption on the
// remaining route never lowers the expected delay.
type RuleBased struct {
	// History holds past delay observations in minutes, keyed by train ID.
	History map[string][]float64
	// SeverityDelay converts one unit of summed disruption severity into
	// delay. Defaults to 10 minutes when zero.
	SeverityDelay time.Duration
}

// NewRuleBased returns an estimator with the default severity conversion.
func NewRuleBased(history map[string][]float64) *RuleBased {
	return &RuleBased{History: history, SeverityDelay: 10 * time.Minute}
}

// Estimate implements Estimator.
func (r *RuleBased) Estimate(t model.Train, s State) (Estimate, error) {
	base := 0.0
	if samples := r.History[t.ID]; len(samples) > 0 {
		mean, std := stat.MeanStdDev(samples, nil)
		if len(samples) < 2 {
			std = 0
		}
		// Pessimistic one-sigma estimate from history.
		base = mean + std/2
	}

	severity := 0.0
	remaining := s.RemainingResources[t.ID]
	for _, d := range s.Disruptions {
		if !d.Window.End.After(s.Now) {
			continue
		}
		for _, res := range remaining {
			if d.Affects(res) {
				severity += clamp01(d.Severity)
				break
			}
		}
	}

	sevDelay := r.SeverityDelay
	if sevDelay <= 0 {
		sevDelay = 10 * time.Minute
	}
	delay := time.Duration(base*float64(time.Minute)) +
		time.Duration(severity*float64(sevDelay)) +
		t.Delay

	// Weight grows with class and with how late the train already is.
	weight := 0.3 + 0.25*float64(t.Class)
	if t.Delay > 0 {
		weight += 0.1
	}
	return Estimate{ExpectedDelay: delay, PriorityWeight: clamp01(weight)}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Mock returns fixed estimates per train and an optional error, for tests.
type Mock struct {
	Estimates map[string]Estimate
	Err       error
}

// Estimate implements Estimator.
func (m Mock) Estimate(t model.Train, _ State) (Estimate, error) {
	if m.Err != nil {
		return Estimate{}, m.Err
	}
	if e, ok := m.Estimates[t.ID]; ok {
		return e, nil
	}
	return Estimate{PriorityWeight: 0.5}, nil
}
