package events

import (
	"time"

	"github.com/railops/dispatchd/core/model"
)

// OverrideEvent reports the outcome of a controller override.
type OverrideEvent struct {
	Override model.Override
	// Accepted is false when the override was rejected as invalid; Reason
	// then carries the rejection cause.
	Accepted bool
	Reason   string
	Time     time.Time
}

// AlertSeverity grades operational alerts.
type AlertSeverity int

const (
	SeverityInfo AlertSeverity = iota
	SeverityWarning
	SeverityCritical
)

func (s AlertSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// AlertEvent signals a condition that needs controller attention: degraded
// solution quality, infeasible demand, or a solver budget overrun.
type AlertEvent struct {
	Severity AlertSeverity
	Message  string
	// Resources names the resources involved, when known.
	Resources []string
	Time      time.Time
}
