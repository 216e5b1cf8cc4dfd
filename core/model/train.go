package model

import (
	"fmt"
	"time"
)

// PriorityClass orders trains by operational importance. Higher values win
// contested resource slots.
type PriorityClass int

const (
	ClassFreight PriorityClass = iota
	ClassPassenger
	ClassExpress
)

// String returns a human-readable representation of the priority class.
func (c PriorityClass) String() string {
	switch c {
	case ClassExpress:
		return "express"
	case ClassPassenger:
		return "passenger"
	case ClassFreight:
		return "freight"
	default:
		return "unknown"
	}
}

// ParsePriorityClass parses the textual form used in config and override requests.
func ParsePriorityClass(s string) (PriorityClass, error) {
	switch s {
	case "express":
		return ClassExpress, nil
	case "passenger":
		return ClassPassenger, nil
	case "freight":
		return ClassFreight, nil
	default:
		return ClassFreight, fmt.Errorf("unknown priority class %q", s)
	}
}

// DelayWeight is the objective penalty applied per minute of delay for trains
// of this class.
func (c PriorityClass) DelayWeight() float64 {
	switch c {
	case ClassExpress:
		return 3
	case ClassPassenger:
		return 2
	default:
		return 1
	}
}

// TrainStatus tracks the lifecycle of a train within the planning horizon.
type TrainStatus int

const (
	StatusScheduled TrainStatus = iota
	StatusRunning
	StatusHeld
	StatusCompleted
	StatusCancelled
)

func (s TrainStatus) String() string {
	switch s {
	case StatusScheduled:
		return "scheduled"
	case StatusRunning:
		return "running"
	case StatusHeld:
		return "held"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Stop is one scheduled call on a train's route.
type Stop struct {
	Station   string    `json:"station"`
	Arrival   time.Time `json:"arrival"`
	Departure time.Time `json:"departure"`
}

// Position locates a train on a resource with an offset from its start.
type Position struct {
	Resource string  `json:"resource"`
	OffsetKM float64 `json:"offset_km"`
}

// Train is a scheduled movement over the network.
type Train struct {
	ID       string        `json:"id"`
	Class    PriorityClass `json:"class"`
	Route    []Stop        `json:"route"`
	Position Position      `json:"position"`
	Delay    time.Duration `json:"delay"`
	Status   TrainStatus   `json:"status"`
	SpeedKPH float64       `json:"speed_kph"`
}

// Validate checks that the train definition is usable for planning.
func (t Train) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("train id is required")
	}
	if len(t.Route) == 0 {
		return fmt.Errorf("train %s: route must have at least one stop", t.ID)
	}
	if t.SpeedKPH <= 0 {
		return fmt.Errorf("train %s: speed must be positive", t.ID)
	}
	for i := 1; i < len(t.Route); i++ {
		if t.Route[i].Arrival.Before(t.Route[i-1].Departure) {
			return fmt.Errorf("train %s: stop %d arrives before leaving stop %d", t.ID, i, i-1)
		}
	}
	return nil
}

// ScheduledDeparture returns the departure time from the first stop.
func (t Train) ScheduledDeparture() time.Time {
	return t.Route[0].Departure
}

// ScheduledArrival returns the arrival time at the last stop.
func (t Train) ScheduledArrival() time.Time {
	return t.Route[len(t.Route)-1].Arrival
}

// Active reports whether the train still requires reservations.
func (t Train) Active() bool {
	return t.Status == StatusScheduled || t.Status == StatusRunning || t.Status == StatusHeld
}
