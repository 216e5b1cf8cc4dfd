package events

import (
	"time"

	"github.com/railops/dispatchd/core/model"
)

// PlanEvent is published whenever a plan is committed, either from a full
// solve or a rapid replan, and for advisory solves computed under emergency
// mode.
type PlanEvent struct {
	// PlanID identifies the committed plan revision.
	PlanID string
	// Rapid is true when the plan came from an incremental replan.
	Rapid bool
	// Advisory is true when the plan was computed under emergency mode and
	// was not committed.
	Advisory bool
	// Feasible reports whether the committed plan satisfies all constraints.
	Feasible bool
	// Objective is the solver objective value of the committed plan.
	Objective float64
	// Confidence is the solver's confidence in the committed plan.
	Confidence float64
	// Trains lists the trains whose reservations changed relative to the
	// previous revision. Empty on the first commit.
	Trains []string
	// Time is the commit timestamp.
	Time time.Time
}

// ConflictEvent is published when a conflict survives a solve or is observed
// during execution.
type ConflictEvent struct {
	PlanID   string
	Conflict model.Conflict
	Time     time.Time
}

// StateEvent reports a dispatcher state transition.
type StateEvent struct {
	From string
	To   string
	// Reason is a short human-readable cause for the transition.
	Reason string
	Time   time.Time
}
