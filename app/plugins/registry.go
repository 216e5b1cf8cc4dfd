package plugins

import (
	"fmt"

	"github.com/railops/dispatchd/core/audit"
	"github.com/railops/dispatchd/core/estimate"
)

// EstimatorFactory builds a delay estimator from a raw configuration map.
type EstimatorFactory func(name string, conf map[string]any) (estimate.Estimator, error)

// AuditFactory builds an audit store from a raw configuration map.
type AuditFactory func(name string, conf map[string]any) (audit.Store, error)

var (
	Estimators  = map[string]EstimatorFactory{}
	AuditStores = map[string]AuditFactory{}
)

func RegisterEstimator(name string, f EstimatorFactory) { Estimators[name] = f }
func RegisterAuditStore(name string, f AuditFactory)    { AuditStores[name] = f }

// NewEstimator instantiates a registered estimator.
func NewEstimator(name string, conf map[string]any) (estimate.Estimator, error) {
	f, ok := Estimators[name]
	if !ok {
		return nil, fmt.Errorf("unknown estimator %q", name)
	}
	return f(name, conf)
}

// NewAuditStore instantiates a registered audit store.
func NewAuditStore(name string, conf map[string]any) (audit.Store, error) {
	f, ok := AuditStores[name]
	if !ok {
		return nil, fmt.Errorf("unknown audit store %q", name)
	}
	return f(name, conf)
}
