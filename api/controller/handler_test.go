package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/railops/dispatchd/core/audit"
	"github.com/railops/dispatchd/core/dispatcher"
	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/core/network"
	"github.com/railops/dispatchd/core/schedule"
)

func testDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	dispatcher.ResetMetrics(prometheus.NewRegistry())
	net, err := network.New(
		[]network.Station{
			{ID: "A", Platforms: []string{"a1"}},
			{ID: "B", Platforms: []string{"b1"}},
		},
		[]network.Resource{
			{ID: "s-ab", From: "A", To: "B", LengthKM: 10, Capacity: 1, Bidirectional: true, Headway: 5 * time.Minute},
		},
		nil,
		2*time.Minute,
	)
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	horizon := model.Window{
		Start: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	d, err := dispatcher.New(dispatcher.Options{
		Network:   net,
		Scheduler: schedule.New(net, schedule.Config{FullBudget: 500 * time.Millisecond, Restarts: 4}, nil),
		Horizon:   horizon,
	})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	train := model.Train{
		ID: "P1", Class: model.ClassPassenger, SpeedKPH: 60, Status: model.StatusScheduled,
		Route: []model.Stop{
			{Station: "A", Arrival: horizon.Start.Add(5 * time.Minute), Departure: horizon.Start.Add(10 * time.Minute)},
			{Station: "B", Arrival: horizon.Start.Add(25 * time.Minute), Departure: horizon.Start.Add(30 * time.Minute)},
		},
	}
	if err := d.AddTrains([]model.Train{train}); err != nil {
		t.Fatalf("AddTrains: %v", err)
	}
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	return d
}

func TestStatusEndpoint(t *testing.T) {
	h := New(testDispatcher(t), nil, "")
	req := httptest.NewRequest("GET", "/api/status", nil)
	rr := httptest.NewRecorder()
	h.Mux().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code %d", rr.Code)
	}
	var resp statusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "executing" || resp.PlanID == "" || !resp.Feasible {
		t.Fatalf("unexpected status: %+v", resp)
	}
}

func TestPlanEndpoint(t *testing.T) {
	h := New(testDispatcher(t), nil, "")
	req := httptest.NewRequest("GET", "/api/plan", nil)
	rr := httptest.NewRecorder()
	h.Mux().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code %d", rr.Code)
	}
	var resp planResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Reservations["P1"]) != 3 {
		t.Fatalf("expected 3 reservations for P1: %+v", resp.Reservations)
	}
}

func TestAuthRequired(t *testing.T) {
	h := New(testDispatcher(t), nil, "tok")
	req := httptest.NewRequest("GET", "/api/status", nil)
	rr := httptest.NewRecorder()
	h.Mux().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
	req = httptest.NewRequest("GET", "/api/status", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h.Mux().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}

func TestOverrideEndpointValidation(t *testing.T) {
	h := New(testDispatcher(t), nil, "")

	body := strings.NewReader(`{"kind":"hold","train":"P1"}`)
	req := httptest.NewRequest("POST", "/api/overrides", body)
	rr := httptest.NewRecorder()
	h.Mux().ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rr.Code, rr.Body.String())
	}

	body = strings.NewReader(`{"kind":"hold","train":"ghost"}`)
	req = httptest.NewRequest("POST", "/api/overrides", body)
	rr = httptest.NewRecorder()
	h.Mux().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rr.Code)
	}

	body = strings.NewReader(`{"kind":"teleport"}`)
	req = httptest.NewRequest("POST", "/api/overrides", body)
	rr = httptest.NewRecorder()
	h.Mux().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestAuditEndpointFilters(t *testing.T) {
	store := &memStore{}
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	_ = store.Append(context.Background(), audit.Record{ID: "1", Timestamp: base, Kind: audit.KindPlanCommit})
	_ = store.Append(context.Background(), audit.Record{ID: "2", Timestamp: base.Add(time.Hour), Kind: audit.KindOverride, Trains: []string{"P1"}})

	h := New(testDispatcher(t), store, "")
	req := httptest.NewRequest("GET", "/api/audit?kind=override", nil)
	rr := httptest.NewRecorder()
	h.Mux().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code %d", rr.Code)
	}
	var recs []audit.Record
	if err := json.NewDecoder(rr.Body).Decode(&recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "2" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

type memStore struct{ recs []audit.Record }

func (m *memStore) Append(ctx context.Context, r audit.Record) error {
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) Query(ctx context.Context, q audit.Query) ([]audit.Record, error) {
	var res []audit.Record
	for _, r := range m.recs {
		if q.Kind != "" && r.Kind != q.Kind {
			continue
		}
		res = append(res, r)
	}
	return res, nil
}

func (m *memStore) Close() error { return nil }
