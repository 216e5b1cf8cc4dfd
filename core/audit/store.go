package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RecordKind classifies audit records.
type RecordKind string

const (
	KindPlanCommit     RecordKind = "plan_commit"
	KindAdvisory       RecordKind = "advisory_plan"
	KindConflict       RecordKind = "conflict"
	KindOverride       RecordKind = "override"
	KindAlert          RecordKind = "alert"
	KindQualityDegrade RecordKind = "quality_degradation"
)

// Record captures one auditable dispatching decision.
type Record struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Kind      RecordKind `json:"kind"`
	// PlanID is the plan revision the record relates to, when applicable.
	PlanID string `json:"plan_id,omitempty"`
	// Trains lists the trains involved.
	Trains []string `json:"trains,omitempty"`
	// Resources lists the resources involved.
	Resources []string `json:"resources,omitempty"`
	// Detail is a free-form description of the decision.
	Detail string `json:"detail,omitempty"`
	// Objective and Confidence are set on plan commits.
	Objective  float64 `json:"objective,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// NewRecord builds a record with a fresh ID and the given timestamp.
func NewRecord(at time.Time, kind RecordKind) Record {
	return Record{ID: uuid.NewString(), Timestamp: at, Kind: kind}
}

// Query defines filters for retrieving records. Zero fields match anything.
type Query struct {
	Start time.Time
	End   time.Time
	Kind  RecordKind
	Train string
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards all records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
