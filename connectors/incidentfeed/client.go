package incidentfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/railops/dispatchd/config"
	"github.com/railops/dispatchd/infra/logger"
)

// Client polls an incident feed endpoint and reports new disruptions. Each
// incident ID is reported at most once.
type Client struct {
	rep      Reporter
	log      logger.Logger
	client   *http.Client
	url      string
	token    string
	interval time.Duration

	mu   sync.Mutex
	seen map[string]bool
}

// NewClient creates a polling feed client.
func NewClient(cfg config.FeedConfig, rep Reporter) *Client {
	if cfg.PollSeconds <= 0 {
		cfg.PollSeconds = 30
	}
	return &Client{
		rep:      rep,
		log:      logger.New("incident-feed"),
		client:   &http.Client{Timeout: 10 * time.Second},
		url:      cfg.URL,
		token:    cfg.Token,
		interval: time.Duration(cfg.PollSeconds) * time.Second,
		seen:     make(map[string]bool),
	}
}

// Start begins the polling loop and blocks until the context is cancelled.
func (c *Client) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Poll(ctx); err != nil {
				c.log.Errorf("poll error: %v", err)
			}
		}
	}
}

// Poll fetches the feed once and reports every valid incident not yet seen.
func (c *Client) Poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed returned %s", resp.Status)
	}

	var incidents []Incident
	if err := json.NewDecoder(resp.Body).Decode(&incidents); err != nil {
		return fmt.Errorf("decode feed: %w", err)
	}
	for _, in := range incidents {
		if err := in.Validate(); err != nil {
			incidentsFailed.Inc()
			c.log.Warnf("invalid incident %s: %v", in.ID, err)
			continue
		}
		c.mu.Lock()
		dup := c.seen[in.ID]
		if !dup {
			c.seen[in.ID] = true
		}
		c.mu.Unlock()
		if dup {
			continue
		}
		incidentsTotal.WithLabelValues(in.Kind).Inc()
		c.rep.ReportDisruption(in.ToModel())
	}
	return nil
}
