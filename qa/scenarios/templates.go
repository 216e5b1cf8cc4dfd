package scenarios

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/core/sim"
)

// Template expands a built-in scenario template. Resources name the affected
// resources for disruption templates and the boosted trains for
// high_priority_surge.
func Template(name string, resources []string, w model.Window, severity float64) (sim.Scenario, error) {
	switch name {
	case "weather":
		return Weather(resources, w, severity), nil
	case "maintenance":
		return Maintenance(resources, w), nil
	case "capacity_reduction":
		return CapacityReduction(resources, w, severity), nil
	case "high_priority_surge":
		return HighPrioritySurge(resources), nil
	default:
		return sim.Scenario{}, fmt.Errorf("unknown scenario template %q", name)
	}
}

// Weather degrades the named resources for the window. Severity also drives
// per-placement jitter in the simulator.
func Weather(resources []string, w model.Window, severity float64) sim.Scenario {
	return sim.Scenario{
		Name: "weather",
		Disruptions: []model.DisruptionEvent{{
			ID:        uuid.NewString(),
			Kind:      model.DisruptionWeather,
			Resources: resources,
			Window:    w,
			Severity:  severity,
		}},
	}
}

// Maintenance takes the named resources fully out of service for the window.
func Maintenance(resources []string, w model.Window) sim.Scenario {
	return sim.Scenario{
		Name: "maintenance",
		Disruptions: []model.DisruptionEvent{{
			ID:        uuid.NewString(),
			Kind:      model.DisruptionMaintenance,
			Resources: resources,
			Window:    w,
			Severity:  1,
		}},
	}
}

// CapacityReduction cuts effective capacity on the named resources by the
// severity fraction.
func CapacityReduction(resources []string, w model.Window, severity float64) sim.Scenario {
	return sim.Scenario{
		Name: "capacity_reduction",
		Disruptions: []model.DisruptionEvent{{
			ID:        uuid.NewString(),
			Kind:      model.DisruptionFailure,
			Resources: resources,
			Window:    w,
			Severity:  severity,
		}},
	}
}

// HighPrioritySurge boosts the named trains to express before planning.
func HighPrioritySurge(trains []string) sim.Scenario {
	overrides := make(map[string]model.PriorityClass, len(trains))
	for _, id := range trains {
		overrides[id] = model.ClassExpress
	}
	return sim.Scenario{Name: "high_priority_surge", PriorityOverrides: overrides}
}
