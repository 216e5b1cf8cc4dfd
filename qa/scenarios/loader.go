package scenarios

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/core/sim"
)

// DisruptionDef is the textual form of a disruption event. Times are minutes
// relative to the planning horizon start.
type DisruptionDef struct {
	Kind            string   `yaml:"kind"`
	Resources       []string `yaml:"resources"`
	StartMinute     int      `yaml:"start_minute"`
	DurationMinutes int      `yaml:"duration_minutes"`
	Severity        float64  `yaml:"severity"`
}

func (d DisruptionDef) ToModel(base time.Time) (model.DisruptionEvent, error) {
	kind, err := model.ParseDisruptionKind(d.Kind)
	if err != nil {
		return model.DisruptionEvent{}, err
	}
	start := base.Add(time.Duration(d.StartMinute) * time.Minute)
	return model.DisruptionEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Resources: d.Resources,
		Window:    model.Window{Start: start, End: start.Add(time.Duration(d.DurationMinutes) * time.Minute)},
		Severity:  d.Severity,
	}, nil
}

// Expected states the pass criteria for a scenario run.
type Expected struct {
	MaxConflicts   int     `yaml:"max_conflicts"`
	MinPunctuality float64 `yaml:"min_punctuality"`
}

// Scenario is a what-if definition loaded from YAML. Either a built-in
// template is named or disruptions are listed explicitly; both may be
// combined.
type Scenario struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description,omitempty"`
	Topology     string `yaml:"topology"`
	Roster       string `yaml:"roster"`
	Seed         int64  `yaml:"seed"`
	HorizonHours int    `yaml:"horizon_hours,omitempty"`

	Template        string   `yaml:"template,omitempty"`
	Resources       []string `yaml:"resources,omitempty"`
	StartMinute     int      `yaml:"start_minute,omitempty"`
	DurationMinutes int      `yaml:"duration_minutes,omitempty"`
	Severity        float64  `yaml:"severity,omitempty"`

	Disruptions       []DisruptionDef   `yaml:"disruptions,omitempty"`
	PriorityOverrides map[string]string `yaml:"priority_overrides,omitempty"`
	Expected          Expected          `yaml:"expected"`
}

// Load reads a scenario definition. Topology and roster paths are resolved
// relative to the scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if sc.Topology != "" && !filepath.IsAbs(sc.Topology) {
		sc.Topology = filepath.Join(dir, sc.Topology)
	}
	if sc.Roster != "" && !filepath.IsAbs(sc.Roster) {
		sc.Roster = filepath.Join(dir, sc.Roster)
	}
	if sc.HorizonHours <= 0 {
		sc.HorizonHours = 4
	}
	return &sc, nil
}

// ToSim expands the definition into a runnable simulation scenario anchored
// at the horizon start.
func (sc *Scenario) ToSim(base time.Time) (sim.Scenario, error) {
	out := sim.Scenario{Name: sc.Name, Description: sc.Description, Seed: sc.Seed}
	if sc.Template != "" {
		start := base.Add(time.Duration(sc.StartMinute) * time.Minute)
		w := model.Window{Start: start, End: start.Add(time.Duration(sc.DurationMinutes) * time.Minute)}
		tpl, err := Template(sc.Template, sc.Resources, w, sc.Severity)
		if err != nil {
			return sim.Scenario{}, err
		}
		out.Disruptions = append(out.Disruptions, tpl.Disruptions...)
		for id, cls := range tpl.PriorityOverrides {
			if out.PriorityOverrides == nil {
				out.PriorityOverrides = map[string]model.PriorityClass{}
			}
			out.PriorityOverrides[id] = cls
		}
	}
	for _, d := range sc.Disruptions {
		ev, err := d.ToModel(base)
		if err != nil {
			return sim.Scenario{}, err
		}
		out.Disruptions = append(out.Disruptions, ev)
	}
	for id, s := range sc.PriorityOverrides {
		cls, err := model.ParsePriorityClass(s)
		if err != nil {
			return sim.Scenario{}, fmt.Errorf("override for %s: %w", id, err)
		}
		if out.PriorityOverrides == nil {
			out.PriorityOverrides = map[string]model.PriorityClass{}
		}
		out.PriorityOverrides[id] = cls
	}
	return out, nil
}
