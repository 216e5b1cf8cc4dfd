package incidentfeed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/railops/dispatchd/config"
	"github.com/railops/dispatchd/infra/logger"
)

// ServerMock exposes HTTP endpoints for injecting incidents locally, for
// development and exercises.
type ServerMock struct {
	mu   sync.Mutex
	addr string
	rep  Reporter
	log  logger.Logger
	srv  *http.Server
}

// NewServerMock creates a local incident endpoint.
func NewServerMock(cfg config.FeedConfig, rep Reporter) *ServerMock {
	return &ServerMock{
		addr: cfg.Addr,
		rep:  rep,
		log:  logger.New("incident-feed-mock"),
	}
}

func (s *ServerMock) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("pong")); err != nil {
			s.log.Errorf("write pong: %v", err)
		}
	})
	mux.HandleFunc("/feed/incident", s.handleIncident)
	return mux
}

func (s *ServerMock) handleIncident(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var in Incident
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		incidentsFailed.Inc()
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := in.Validate(); err != nil {
		incidentsFailed.Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	incidentsTotal.WithLabelValues(in.Kind).Inc()
	s.log.Infof("reporting %s incident on %v", in.Kind, in.Resources)
	s.rep.ReportDisruption(in.ToModel())
	w.WriteHeader(http.StatusAccepted)
}

// Addr returns the listening address once Start has been called.
func (s *ServerMock) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start runs the HTTP server until the context is cancelled.
func (s *ServerMock) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	addr := ln.Addr().String()
	s.mu.Lock()
	s.addr = addr
	s.mu.Unlock()
	s.srv = &http.Server{Handler: s.routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("shutdown server: %v", err)
		}
		cancel()
	}()
	s.log.Infof("incident feed mock listening on %s", addr)
	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
