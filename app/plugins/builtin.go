package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/railops/dispatchd/core/audit"
	"github.com/railops/dispatchd/core/estimate"
)

type ruleBasedConf struct {
	// History holds delay samples in minutes keyed by train ID, either
	// inline or loaded from a JSON file.
	History     map[string][]float64 `mapstructure:"history"`
	HistoryPath string               `mapstructure:"history_path"`
	// SeverityDelayMinutes converts one unit of disruption severity into
	// expected delay.
	SeverityDelayMinutes int `mapstructure:"severity_delay_minutes"`
}

type jsonlConf struct {
	Path string `mapstructure:"path"`
}

func init() {
	RegisterEstimator("rule_based", func(name string, conf map[string]any) (estimate.Estimator, error) {
		var c ruleBasedConf
		if err := mapstructure.Decode(conf, &c); err != nil {
			return nil, fmt.Errorf("%s config: %w", name, err)
		}
		history := c.History
		if c.HistoryPath != "" {
			b, err := os.ReadFile(c.HistoryPath)
			if err != nil {
				return nil, fmt.Errorf("%s history: %w", name, err)
			}
			if err := json.Unmarshal(b, &history); err != nil {
				return nil, fmt.Errorf("%s history: %w", name, err)
			}
		}
		est := estimate.NewRuleBased(history)
		if c.SeverityDelayMinutes > 0 {
			est.SeverityDelay = time.Duration(c.SeverityDelayMinutes) * time.Minute
		}
		return est, nil
	})

	RegisterAuditStore("jsonl", func(name string, conf map[string]any) (audit.Store, error) {
		var c jsonlConf
		if err := mapstructure.Decode(conf, &c); err != nil {
			return nil, fmt.Errorf("%s config: %w", name, err)
		}
		if c.Path == "" {
			c.Path = "audit.jsonl"
		}
		return audit.NewJSONLStore(c.Path)
	})
	RegisterAuditStore("nop", func(string, map[string]any) (audit.Store, error) {
		return audit.NopStore{}, nil
	})
}
