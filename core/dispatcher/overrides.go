package dispatcher

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/railops/dispatchd/core/audit"
	"github.com/railops/dispatchd/core/events"
	"github.com/railops/dispatchd/core/model"
)

// ErrInvalidOverride is returned when an override references unknown entities
// or an illegal state transition. The authoritative state is left untouched.
type ErrInvalidOverride struct {
	Override model.Override
	Cause    string
}

func (e *ErrInvalidOverride) Error() string {
	return fmt.Sprintf("invalid override %s: %s", e.Override.Kind, e.Cause)
}

// SubmitOverride validates the override and queues it for the next cycle.
// Invalid overrides are rejected without side effects.
func (d *Dispatcher) SubmitOverride(o model.Override) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Requested.IsZero() {
		o.Requested = d.now()
	}

	d.mu.Lock()
	err := d.validateLocked(o)
	if err == nil {
		d.pendingOverrides = append(d.pendingOverrides, o)
	}
	d.mu.Unlock()

	if err != nil {
		overridesTotal.WithLabelValues(o.Kind.String(), "false").Inc()
		d.publish(events.OverrideEvent{Override: o, Accepted: false, Reason: err.Error(), Time: d.now()})
		d.log.Warnf("override rejected: %v", err)
		return err
	}
	d.log.Infof("override %s queued (train=%q resource=%q)", o.Kind, o.Train, o.Resource)
	return nil
}

func (d *Dispatcher) publish(ev any) {
	d.mu.Lock()
	d.publishLocked(ev)
	d.mu.Unlock()
}

//gocyclo:ignore
func (d *Dispatcher) validateLocked(o model.Override) error {
	invalid := func(cause string) error {
		return &ErrInvalidOverride{Override: o, Cause: cause}
	}
	// Overrides only make sense against an executing plan.
	if d.state == StateIdle || d.state == StatePlanning {
		return invalid("dispatcher is " + d.state.String())
	}
	switch o.Kind {
	case model.OverrideHold:
		t, ok := d.trains[o.Train]
		if !ok {
			return invalid("unknown train " + o.Train)
		}
		if !t.Active() {
			return invalid("train " + o.Train + " is " + t.Status.String())
		}
	case model.OverrideRelease:
		t, ok := d.trains[o.Train]
		if !ok {
			return invalid("unknown train " + o.Train)
		}
		if t.Status != model.StatusHeld {
			return invalid("train " + o.Train + " is not held")
		}
	case model.OverrideBlock:
		if _, ok := d.net.Resource(o.Resource); !ok {
			return invalid("unknown resource " + o.Resource)
		}
		if !o.Window.End.After(o.Window.Start) {
			return invalid("block window is empty")
		}
	case model.OverrideUnblock:
		if _, ok := d.net.Resource(o.Resource); !ok {
			return invalid("unknown resource " + o.Resource)
		}
	case model.OverridePriority:
		if _, ok := d.trains[o.Train]; !ok {
			return invalid("unknown train " + o.Train)
		}
		if o.Class < model.ClassFreight || o.Class > model.ClassExpress {
			return invalid("unknown priority class")
		}
	case model.OverrideEmergencyOn, model.OverrideEmergencyOff:
		if o.Train != "" {
			if _, ok := d.trains[o.Train]; !ok {
				return invalid("unknown train " + o.Train)
			}
		}
	default:
		return invalid("unknown kind")
	}
	return nil
}

// applyLocked mutates the authoritative state for a validated override and
// marks the touched trains/resources dirty so the next solve picks them up.
//
//gocyclo:ignore
func (d *Dispatcher) applyLocked(o model.Override) {
	switch o.Kind {
	case model.OverrideHold:
		t := d.trains[o.Train]
		t.Status = model.StatusHeld
		d.trains[o.Train] = t
		d.dirtyTrains[o.Train] = true
		if t.Position.Resource != "" {
			d.dirtyResources[t.Position.Resource] = true
		}
	case model.OverrideRelease:
		t := d.trains[o.Train]
		t.Status = model.StatusRunning
		d.trains[o.Train] = t
		d.dirtyTrains[o.Train] = true
		if t.Position.Resource != "" {
			d.dirtyResources[t.Position.Resource] = true
		}
	case model.OverrideBlock:
		if err := d.net.Block(o.Resource, o.Window); err != nil {
			d.log.Errorf("block %s failed: %v", o.Resource, err)
			return
		}
		d.dirtyResources[o.Resource] = true
	case model.OverrideUnblock:
		if err := d.net.Unblock(o.Resource); err != nil {
			d.log.Errorf("unblock %s failed: %v", o.Resource, err)
			return
		}
		d.dirtyResources[o.Resource] = true
	case model.OverridePriority:
		d.priorityOverride[o.Train] = o.Class
		d.dirtyTrains[o.Train] = true
	case model.OverrideEmergencyOn:
		d.emergency = true
		if o.Train != "" {
			d.emergencyTrains[o.Train] = true
			d.dirtyTrains[o.Train] = true
		}
	case model.OverrideEmergencyOff:
		d.emergency = false
		for id := range d.emergencyTrains {
			d.dirtyTrains[id] = true
		}
		d.emergencyTrains = make(map[string]bool)
		if d.advisory != nil {
			// Force a fresh committed solve for everything the advisory
			// plan covered.
			for _, id := range d.advisory.Plan.Trains() {
				d.dirtyTrains[id] = true
			}
			d.advisory = nil
		}
	}

	overridesTotal.WithLabelValues(o.Kind.String(), "true").Inc()
	d.publishLocked(events.OverrideEvent{Override: o, Accepted: true, Time: d.now()})

	rec := audit.NewRecord(d.now(), audit.KindOverride)
	if o.Train != "" {
		rec.Trains = []string{o.Train}
	}
	if o.Resource != "" {
		rec.Resources = []string{o.Resource}
	}
	rec.Detail = o.Kind.String()
	d.appendAuditLocked(rec)
}
