// Package estimate provides the delay and priority oracle consulted by the
// scheduler. Estimates only shape the objective; hard constraints never
// depend on them, so a wrong or failing estimator degrades plan quality but
// never correctness.
package estimate

import (
	"fmt"
	"time"

	"github.com/railops/dispatchd/core/model"
)

// Estimate is the oracle output for one train.
type Estimate struct {
	// ExpectedDelay is the additional delay the train is expected to
	// accumulate under current conditions.
	ExpectedDelay time.Duration
	// PriorityWeight scales the train's delay penalty in the objective,
	// in [0,1].
	PriorityWeight float64
}

// State is the context an estimator may consult. All fields are read-only.
type State struct {
	Disruptions []model.DisruptionEvent
	// RemainingStations lists the stations the train has yet to call at.
	RemainingStations map[string][]string
	// RemainingResources lists the resource IDs on each train's remaining route.
	RemainingResources map[string][]string
	Now                time.Time
}

// Estimator maps a train and the current state to a delay/priority estimate.
// Implementations must be deterministic for identical inputs and monotonic in
// disruption severity on the train's remaining route.
type Estimator interface {
	Estimate(t model.Train, s State) (Estimate, error)
}

// Validate checks an estimate for out-of-range values.
func (e Estimate) Validate() error {
	if e.PriorityWeight < 0 || e.PriorityWeight > 1 {
		return fmt.Errorf("priority weight %.3f out of range [0,1]", e.PriorityWeight)
	}
	if e.ExpectedDelay < 0 {
		return fmt.Errorf("expected delay must not be negative")
	}
	return nil
}

// Conservative is the fallback estimate used when the oracle fails or returns
// out-of-range values: a flat pessimistic delay with full priority weight, so
// planning never blocks on a broken estimator.
func Conservative() Estimate {
	return Estimate{ExpectedDelay: 5 * time.Minute, PriorityWeight: 1}
}

// Safe invokes the estimator and applies the conservative fallback on error
// or invalid output. The returned bool reports whether the fallback was used.
func Safe(e Estimator, t model.Train, s State) (Estimate, bool) {
	if e == nil {
		return Conservative(), true
	}
	est, err := e.Estimate(t, s)
	if err != nil {
		return Conservative(), true
	}
	if err := est.Validate(); err != nil {
		return Conservative(), true
	}
	return est, false
}
