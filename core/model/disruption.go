package model

import (
	"fmt"
	"math"
)

// DisruptionKind classifies the cause of a disruption event.
type DisruptionKind int

const (
	DisruptionWeather DisruptionKind = iota
	DisruptionFailure
	DisruptionMaintenance
	DisruptionCrewShortage
)

func (k DisruptionKind) String() string {
	switch k {
	case DisruptionWeather:
		return "weather"
	case DisruptionFailure:
		return "failure"
	case DisruptionMaintenance:
		return "maintenance"
	case DisruptionCrewShortage:
		return "crew_shortage"
	default:
		return "unknown"
	}
}

// ParseDisruptionKind parses the textual form used in scenario definitions.
func ParseDisruptionKind(s string) (DisruptionKind, error) {
	switch s {
	case "weather":
		return DisruptionWeather, nil
	case "failure":
		return DisruptionFailure, nil
	case "maintenance":
		return DisruptionMaintenance, nil
	case "crew_shortage":
		return DisruptionCrewShortage, nil
	default:
		return DisruptionWeather, fmt.Errorf("unknown disruption kind %q", s)
	}
}

// DisruptionEvent reduces the effective capacity of one or more resources for
// a time window. Severity 1 removes the resource entirely.
type DisruptionEvent struct {
	ID        string         `json:"id"`
	Kind      DisruptionKind `json:"kind"`
	Resources []string       `json:"resources"`
	Window    Window         `json:"window"`
	Severity  float64        `json:"severity"`
}

// EffectiveCapacity applies the severity factor to a nominal capacity.
func (d DisruptionEvent) EffectiveCapacity(nominal int) int {
	s := d.Severity
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	return int(math.Floor(float64(nominal) * (1 - s)))
}

// Affects reports whether the event applies to the resource.
func (d DisruptionEvent) Affects(resource string) bool {
	for _, r := range d.Resources {
		if r == resource {
			return true
		}
	}
	return false
}

// Conflict records a violated plan invariant: a capacity or headway breach on
// a resource, or an infeasibility discovered during simulation.
type Conflict struct {
	Resource string   `json:"resource"`
	Window   Window   `json:"window"`
	Trains   []string `json:"trains"`
	Reason   string   `json:"reason"`
}
