package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/core/schedule"
	"github.com/railops/dispatchd/infra/mqtt"
)

type Config struct {
	Network    NetworkConfig    `json:"network"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	Estimator  EstimatorConfig  `json:"estimator"`
	Audit      AuditConfig      `json:"audit"`
	Feed       FeedConfig       `json:"feed"`
	Metrics    MetricsConfig    `json:"metrics"`
	MQTT       MQTTConfig       `json:"mqtt"`
	API        APIConfig        `json:"api"`
}

// NetworkConfig points at the topology and roster definitions.
type NetworkConfig struct {
	TopologyPath string `json:"topology_path"`
	RosterPath   string `json:"roster_path"`
}

// SchedulerConfig tunes the planning search.
type SchedulerConfig struct {
	FullBudgetSeconds   int `json:"full_budget_seconds"`
	RapidBudgetSeconds  int `json:"rapid_budget_seconds"`
	RapidHorizonMinutes int `json:"rapid_horizon_minutes"`
	DwellMinutes        int `json:"dwell_minutes"`
	Restarts            int `json:"restarts"`
}

// Core converts the section to the scheduler's parameter set.
func (c SchedulerConfig) Core() schedule.Config {
	return schedule.Config{
		FullBudget:   time.Duration(c.FullBudgetSeconds) * time.Second,
		RapidBudget:  time.Duration(c.RapidBudgetSeconds) * time.Second,
		RapidHorizon: time.Duration(c.RapidHorizonMinutes) * time.Minute,
		Dwell:        time.Duration(c.DwellMinutes) * time.Minute,
		Restarts:     c.Restarts,
	}
}

// DispatcherConfig tunes the dispatch loop.
type DispatcherConfig struct {
	TickSeconds  int    `json:"tick_seconds"`
	HorizonStart string `json:"horizon_start"`
	HorizonHours int    `json:"horizon_hours"`
	Seed         int64  `json:"seed"`
}

// SetDefaults applies sane defaults.
func (c *DispatcherConfig) SetDefaults() {
	if c.TickSeconds <= 0 {
		c.TickSeconds = 1
	}
	if c.HorizonHours <= 0 {
		c.HorizonHours = 4
	}
}

// Horizon resolves the planning window. An empty start means "now".
func (c DispatcherConfig) Horizon(now time.Time) (model.Window, error) {
	start := now
	if c.HorizonStart != "" {
		t, err := time.Parse(time.RFC3339, c.HorizonStart)
		if err != nil {
			return model.Window{}, fmt.Errorf("horizon_start: %w", err)
		}
		start = t
	}
	return model.Window{Start: start, End: start.Add(time.Duration(c.HorizonHours) * time.Hour)}, nil
}

// EstimatorConfig selects the delay estimator plugin and its raw
// configuration.
type EstimatorConfig struct {
	Kind string         `json:"kind"`
	Conf map[string]any `json:"conf"`
}

// SetDefaults applies sane defaults.
func (c *EstimatorConfig) SetDefaults() {
	if c.Kind == "" {
		c.Kind = "rule_based"
	}
}

// AuditConfig defines settings for audit record storage.
type AuditConfig struct {
	// Backend selects the store type: "jsonl" or "nop".
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *AuditConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		c.Path = "audit.jsonl"
	}
}

// Validate checks mandatory fields.
func (c AuditConfig) Validate() error {
	if c.Backend != "jsonl" && c.Backend != "nop" {
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Backend == "jsonl" && c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// FeedConfig configures the external incident feed connector. Mode "client"
// polls a remote feed; "mock" runs a local HTTP endpoint for injecting
// incidents by hand.
type FeedConfig struct {
	Enabled     bool   `json:"enabled"`
	Mode        string `json:"mode"`
	URL         string `json:"url"`
	Token       string `json:"token"`
	PollSeconds int    `json:"poll_seconds"`
	// Addr is the listen address of the mock endpoint.
	Addr string `json:"addr"`
}

// SetDefaults applies sane defaults.
func (c *FeedConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "client"
	}
	if c.PollSeconds <= 0 {
		c.PollSeconds = 30
	}
	if c.Addr == "" {
		c.Addr = ":9091"
	}
}

// MetricsConfig selects KPI sinks.
type MetricsConfig struct {
	Prometheus PrometheusConfig `json:"prometheus"`
	Influx     InfluxConfig     `json:"influx"`
}

type PrometheusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type InfluxConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Token   string `json:"token"`
	Org     string `json:"org"`
	Bucket  string `json:"bucket"`
}

// MQTTConfig wraps the broker connection with an enable switch.
type MQTTConfig struct {
	Enabled     bool `json:"enabled"`
	mqtt.Config `json:",squash"`
}

// APIConfig exposes the controller HTTP endpoint.
type APIConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("RAIL_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "rail_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Dispatcher.SetDefaults()
	cfg.Estimator.SetDefaults()
	cfg.Feed.SetDefaults()
	cfg.Audit.SetDefaults()
	cfg.API.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Network.TopologyPath == "" {
		return fmt.Errorf("network.topology_path is required")
	}
	if c.Network.RosterPath == "" {
		return fmt.Errorf("network.roster_path is required")
	}
	if err := c.Audit.Validate(); err != nil {
		return err
	}
	if c.Metrics.Influx.Enabled && c.Metrics.Influx.URL == "" {
		return fmt.Errorf("metrics.influx.url is required when influx is enabled")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.Feed.Enabled && c.Feed.Mode == "client" && c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required when the feed client is enabled")
	}
	return nil
}
