// Package incidentfeed ingests disruption events from an external incident
// feed and forwards them to the dispatcher.
package incidentfeed

import (
	"context"
	"strings"

	"github.com/railops/dispatchd/config"
	"github.com/railops/dispatchd/core/model"
)

// Reporter is the subset of the dispatcher used by feed connectors.
type Reporter interface {
	ReportDisruption(ev model.DisruptionEvent)
}

// Connector receives incidents from an external source.
type Connector interface {
	Start(ctx context.Context) error
}

// NewConnector creates a connector depending on cfg.Mode ("client" or
// "mock").
func NewConnector(cfg config.FeedConfig, rep Reporter) Connector {
	switch strings.ToLower(cfg.Mode) {
	case "mock":
		return NewServerMock(cfg, rep)
	default:
		return NewClient(cfg, rep)
	}
}
