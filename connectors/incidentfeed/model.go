package incidentfeed

import (
	"fmt"
	"time"

	"github.com/railops/dispatchd/core/model"
)

// Incident is the wire payload published by an external incident feed.
type Incident struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Resources []string  `json:"resources"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Severity  float64   `json:"severity"`
}

// Validate checks that the incident payload is usable.
func (i Incident) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("id required")
	}
	if _, err := model.ParseDisruptionKind(i.Kind); err != nil {
		return err
	}
	if len(i.Resources) == 0 {
		return fmt.Errorf("resources required")
	}
	if i.Start.IsZero() || i.End.IsZero() {
		return fmt.Errorf("start and end required")
	}
	if !i.End.After(i.Start) {
		return fmt.Errorf("end must be after start")
	}
	if i.Severity < 0 || i.Severity > 1 {
		return fmt.Errorf("severity %.2f out of range [0,1]", i.Severity)
	}
	return nil
}

// ToModel converts the payload to a disruption event.
func (i Incident) ToModel() model.DisruptionEvent {
	kind, _ := model.ParseDisruptionKind(i.Kind)
	return model.DisruptionEvent{
		ID:        i.ID,
		Kind:      kind,
		Resources: i.Resources,
		Window:    model.Window{Start: i.Start, End: i.End},
		Severity:  i.Severity,
	}
}
