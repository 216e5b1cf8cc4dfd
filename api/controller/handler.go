// Package controller exposes the dispatcher to human controllers over HTTP:
// read-only state endpoints plus the override commands.
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/railops/dispatchd/core/audit"
	"github.com/railops/dispatchd/core/dispatcher"
	"github.com/railops/dispatchd/core/model"
)

// Handler routes controller requests to the dispatcher.
type Handler struct {
	disp  *dispatcher.Dispatcher
	store audit.Store
	token string
}

// New builds the controller handler. Requests must include an Authorization
// header with "Bearer <token>" when token is non-empty.
func New(disp *dispatcher.Dispatcher, store audit.Store, token string) *Handler {
	if store == nil {
		store = audit.NopStore{}
	}
	return &Handler{disp: disp, store: store, token: token}
}

// Mux returns the HTTP mux with all controller routes installed.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", h.auth(h.status))
	mux.HandleFunc("GET /api/plan", h.auth(h.plan))
	mux.HandleFunc("GET /api/conflicts", h.auth(h.conflicts))
	mux.HandleFunc("GET /api/trains", h.auth(h.trains))
	mux.HandleFunc("GET /api/kpi", h.auth(h.kpi))
	mux.HandleFunc("GET /api/audit", h.auth(h.audit))
	mux.HandleFunc("POST /api/overrides", h.auth(h.override))
	return mux
}

func (h *Handler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			if r.Header.Get("Authorization") != "Bearer "+h.token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type statusResponse struct {
	State      string  `json:"state"`
	Emergency  bool    `json:"emergency"`
	PlanID     string  `json:"plan_id"`
	Feasible   bool    `json:"feasible"`
	Confidence float64 `json:"confidence"`
	Conflicts  int     `json:"conflicts"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id, _ := h.disp.Plan()
	res := h.disp.LastResult()
	writeJSON(w, statusResponse{
		State:      h.disp.State().String(),
		Emergency:  h.disp.EmergencyActive(),
		PlanID:     id,
		Feasible:   res.Feasible,
		Confidence: res.Confidence,
		Conflicts:  len(h.disp.Conflicts()),
	})
}

type planResponse struct {
	PlanID       string                         `json:"plan_id"`
	Horizon      model.Window                   `json:"horizon"`
	Reservations map[string][]model.Reservation `json:"reservations"`
}

func (h *Handler) plan(w http.ResponseWriter, r *http.Request) {
	id, plan := h.disp.Plan()
	if plan == nil {
		http.Error(w, "no committed plan", http.StatusNotFound)
		return
	}
	resp := planResponse{PlanID: id, Horizon: plan.Horizon, Reservations: map[string][]model.Reservation{}}
	for _, train := range plan.Trains() {
		resp.Reservations[train] = plan.ByTrain(train)
	}
	writeJSON(w, resp)
}

func (h *Handler) conflicts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.disp.Conflicts())
}

func (h *Handler) trains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.disp.Trains())
}

func (h *Handler) kpi(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.disp.KPI())
}

func (h *Handler) audit(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{}
	if s := r.URL.Query().Get("start"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			q.Start = t
		}
	}
	if s := r.URL.Query().Get("end"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			q.End = t
		}
	}
	if s := r.URL.Query().Get("kind"); s != "" {
		q.Kind = audit.RecordKind(s)
	}
	q.Train = r.URL.Query().Get("train")
	records, err := h.store.Query(r.Context(), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

type overrideRequest struct {
	Kind     string       `json:"kind"`
	Train    string       `json:"train"`
	Resource string       `json:"resource"`
	Class    string       `json:"class"`
	Window   model.Window `json:"window"`
}

func (h *Handler) override(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind, err := model.ParseOverrideKind(req.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	o := model.Override{
		Kind:      kind,
		Train:     req.Train,
		Resource:  req.Resource,
		Window:    req.Window,
		Requested: time.Now(),
	}
	if req.Class != "" {
		cls, err := model.ParsePriorityClass(req.Class)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		o.Class = cls
	}
	if err := h.disp.SubmitOverride(o); err != nil {
		var inv *dispatcher.ErrInvalidOverride
		if errors.As(err, &inv) {
			http.Error(w, inv.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "queued"})
}
