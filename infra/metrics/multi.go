package metrics

import (
	"github.com/railops/dispatchd/core/kpi"
	"github.com/railops/dispatchd/core/model"
)

// MultiSink fans KPI records out to multiple sinks.
type MultiSink struct {
	Sinks []kpi.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...kpi.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSnapshot forwards the snapshot to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordSnapshot(snap model.KPISnapshot) error {
	for _, s := range m.Sinks {
		if err := s.RecordSnapshot(snap); err != nil {
			return err
		}
	}
	return nil
}

// RecordSolve forwards the solve metric to all sinks.
func (m *MultiSink) RecordSolve(sm kpi.SolveMetric) error {
	for _, s := range m.Sinks {
		if err := s.RecordSolve(sm); err != nil {
			return err
		}
	}
	return nil
}
