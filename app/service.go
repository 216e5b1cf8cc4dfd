package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/railops/dispatchd/api/controller"
	"github.com/railops/dispatchd/app/plugins"
	"github.com/railops/dispatchd/config"
	"github.com/railops/dispatchd/connectors/incidentfeed"
	"github.com/railops/dispatchd/core/audit"
	"github.com/railops/dispatchd/core/dispatcher"
	"github.com/railops/dispatchd/core/kpi"
	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/core/network"
	"github.com/railops/dispatchd/core/schedule"
	"github.com/railops/dispatchd/infra/logger"
	"github.com/railops/dispatchd/infra/metrics"
	"github.com/railops/dispatchd/infra/mqtt"
	"github.com/railops/dispatchd/internal/eventbus"
)

// Service wires the network, scheduler, dispatcher and all connectors from
// the configuration.
type Service struct {
	Dispatcher *dispatcher.Dispatcher
	bus        *eventbus.TypedBus[any]
	store      audit.Store
	notifier   *mqtt.PahoNotifier
	feed       incidentfeed.Connector
	api        *http.Server
	log        logger.Logger
	tick       time.Duration
	promAddr   string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	net, err := network.Load(cfg.Network.TopologyPath)
	if err != nil {
		return nil, fmt.Errorf("load topology: %w", err)
	}
	trains, err := network.LoadRoster(cfg.Network.RosterPath)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	estimator, err := plugins.NewEstimator(cfg.Estimator.Kind, cfg.Estimator.Conf)
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}
	store, err := plugins.NewAuditStore(cfg.Audit.Backend, map[string]any{"path": cfg.Audit.Path})
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}

	var sinks []kpi.Sink
	if cfg.Metrics.Prometheus.Enabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.Influx.Enabled {
		ic := cfg.Metrics.Influx
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(ic.URL, ic.Token, ic.Org, ic.Bucket))
	}
	var sink kpi.Sink = kpi.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	horizon, err := cfg.Dispatcher.Horizon(time.Now())
	if err != nil {
		return nil, err
	}
	bus := eventbus.NewTyped[any]()
	disp, err := dispatcher.New(dispatcher.Options{
		Network:   net,
		Scheduler: schedule.New(net, cfg.Scheduler.Core(), logger.New("scheduler")),
		Estimator: estimator,
		Horizon:   horizon,
		Bus:       bus,
		Audit:     store,
		KPI:       sink,
		Logger:    logger.New("dispatcher"),
		Seed:      cfg.Dispatcher.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	if err := disp.AddTrains(trains); err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}

	svc := &Service{
		Dispatcher: disp,
		bus:        bus,
		store:      store,
		log:        logg,
		tick:       time.Duration(cfg.Dispatcher.TickSeconds) * time.Second,
	}
	if cfg.Metrics.Prometheus.Enabled {
		svc.promAddr = cfg.Metrics.Prometheus.Addr
	}

	if cfg.MQTT.Enabled {
		notifier, err := mqtt.NewPahoNotifier(cfg.MQTT.Config, func(ov model.Override) {
			if err := disp.SubmitOverride(ov); err != nil {
				logg.Warnf("mqtt override rejected: %v", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("mqtt notifier: %w", err)
		}
		svc.notifier = notifier
		disp.SetNotifier(notifier)
	}

	if cfg.Feed.Enabled {
		svc.feed = incidentfeed.NewConnector(cfg.Feed, disp)
	}

	handler := controller.New(disp, store, cfg.API.Token)
	svc.api = &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           handler.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return svc, nil
}

// Run starts the dispatch loop, the API server and the metrics endpoint, and
// blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go func() {
		if err := s.api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("api server: %v", err)
		}
	}()
	if s.promAddr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.feed != nil {
		go func() {
			if err := s.feed.Start(ctx); err != nil {
				s.log.Errorf("incident feed: %v", err)
			}
		}()
	}

	err := s.Dispatcher.Run(ctx, s.tick)

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := s.api.Shutdown(shutdown); serr != nil {
		s.log.Errorf("api shutdown: %v", serr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.notifier != nil {
		s.notifier.Disconnect()
	}
	s.bus.Close()
	return s.store.Close()
}
