package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/railops/dispatchd/core/estimate"
	"github.com/railops/dispatchd/core/logger"
	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/core/network"
)

// Config defines planning parameters. Budgets bound wall-clock search time;
// the rapid budget applies to disruption-response replanning.
type Config struct {
	FullBudget  time.Duration
	RapidBudget time.Duration
	// RapidHorizon bounds how far past a disruption window the affected
	// train set extends during warm-started replanning.
	RapidHorizon time.Duration
	// Dwell is the minimum platform occupancy per stop.
	Dwell time.Duration
	// Restarts is the number of perturbed search restarts attempted within
	// the budget.
	Restarts int
}

// SetDefaults applies the reference parameter values.
func (c *Config) SetDefaults() {
	if c.FullBudget <= 0 {
		c.FullBudget = 10 * time.Second
	}
	if c.RapidBudget <= 0 {
		c.RapidBudget = c.FullBudget / 10
	}
	if c.RapidHorizon <= 0 {
		c.RapidHorizon = 15 * time.Minute
	}
	if c.Dwell <= 0 {
		c.Dwell = 5 * time.Minute
	}
	if c.Restarts <= 0 {
		c.Restarts = 16
	}
}

// Delta describes what changed since the prior plan was committed.
type Delta struct {
	Resources []string
	Window    model.Window
	// Trains forces specific trains to be re-solved regardless of whether
	// their reservations touch the delta resources.
	Trains []string
}

// Request is one scheduling invocation.
type Request struct {
	Trains      []model.Train
	Horizon     model.Window
	Estimates   map[string]estimate.Estimate
	Disruptions []model.DisruptionEvent
	// Prior and Delta enable warm-started re-optimization.
	Prior *model.Plan
	Delta *Delta
	Seed  int64
}

// Result is the outcome of a scheduling invocation.
type Result struct {
	Plan     *model.Plan
	Feasible bool
	// BudgetExceeded is set when the deadline cut the search short and the
	// best incumbent was returned. It is a quality signal, not an error.
	BudgetExceeded bool
	Objective      float64
	Confidence     float64
	Elapsed        time.Duration
	// Replanned lists the trains that were re-solved (warm start only).
	Replanned []string
}

// InfeasibleError reports that no plan satisfies the hard constraints. It
// carries the minimal set of resources on which placement failed.
type InfeasibleError struct {
	Resources []string
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("no feasible plan: conflicting resources [%s]", strings.Join(e.Resources, ", "))
}

// Scheduler produces conflict-free movement plans within a time budget.
type Scheduler struct {
	net *network.Network
	cfg Config
	log logger.Logger
}

// New creates a scheduler over the given network.
func New(net *network.Network, cfg Config, log logger.Logger) *Scheduler {
	cfg.SetDefaults()
	return &Scheduler{net: net, cfg: cfg, log: log}
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Plan computes a plan for the horizon with the full budget.
func (s *Scheduler) Plan(ctx context.Context, req Request) (Result, error) {
	return s.solve(ctx, req, s.cfg.FullBudget)
}

// Replan recomputes a plan after a disruption with the rapid budget,
// warm-starting from req.Prior when a delta is provided.
func (s *Scheduler) Replan(ctx context.Context, req Request) (Result, error) {
	return s.solve(ctx, req, s.cfg.RapidBudget)
}

// orderTrains applies the deterministic tie-break: higher priority class
// first, then earlier original scheduled time, then lower train ID.
func orderTrains(trains []model.Train) []model.Train {
	out := make([]model.Train, len(trains))
	copy(out, trains)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Class != out[j].Class {
			return out[i].Class > out[j].Class
		}
		di, dj := out[i].ScheduledDeparture(), out[j].ScheduledDeparture()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
