package model

import (
	"fmt"
	"time"
)

// OverrideKind enumerates the manual commands accepted by the dispatcher.
type OverrideKind int

const (
	OverrideHold OverrideKind = iota
	OverrideRelease
	OverrideBlock
	OverrideUnblock
	OverridePriority
	OverrideEmergencyOn
	OverrideEmergencyOff
)

func (k OverrideKind) String() string {
	switch k {
	case OverrideHold:
		return "hold"
	case OverrideRelease:
		return "release"
	case OverrideBlock:
		return "block"
	case OverrideUnblock:
		return "unblock"
	case OverridePriority:
		return "priority"
	case OverrideEmergencyOn:
		return "emergency_on"
	case OverrideEmergencyOff:
		return "emergency_off"
	default:
		return "unknown"
	}
}

// ParseOverrideKind parses the textual form used by external callers.
func ParseOverrideKind(s string) (OverrideKind, error) {
	switch s {
	case "hold":
		return OverrideHold, nil
	case "release":
		return OverrideRelease, nil
	case "block":
		return OverrideBlock, nil
	case "unblock":
		return OverrideUnblock, nil
	case "priority":
		return OverridePriority, nil
	case "emergency_on":
		return OverrideEmergencyOn, nil
	case "emergency_off":
		return OverrideEmergencyOff, nil
	default:
		return OverrideHold, fmt.Errorf("unknown override kind %q", s)
	}
}

// Override is an idempotent manual command routed through the dispatcher.
// Train is set for hold/release/priority, Resource for block/unblock,
// Class for priority changes and Window for blocks.
type Override struct {
	ID        string        `json:"id"`
	Kind      OverrideKind  `json:"kind"`
	Train     string        `json:"train,omitempty"`
	Resource  string        `json:"resource,omitempty"`
	Class     PriorityClass `json:"class,omitempty"`
	Window    Window        `json:"window,omitempty"`
	Requested time.Time     `json:"requested"`
}

// KPISnapshot is a derived view of operational performance. It is never
// authoritative state.
type KPISnapshot struct {
	Punctuality       float64            `json:"punctuality"`
	MeanDelay         time.Duration      `json:"mean_delay"`
	ThroughputPerHour float64            `json:"throughput_per_hour"`
	Utilization       map[string]float64 `json:"utilization"`
	Trains            int                `json:"trains"`
	At                time.Time          `json:"at"`
}
