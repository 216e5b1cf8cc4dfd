package dispatcher

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/railops/dispatchd/core/audit"
	"github.com/railops/dispatchd/core/estimate"
	"github.com/railops/dispatchd/core/events"
	"github.com/railops/dispatchd/core/kpi"
	"github.com/railops/dispatchd/core/logger"
	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/core/network"
	"github.com/railops/dispatchd/core/schedule"
	"github.com/railops/dispatchd/internal/eventbus"
)

// State is the dispatcher lifecycle state.
type State int

const (
	StateIdle State = iota
	StatePlanning
	StateExecuting
	StateReacting
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateExecuting:
		return "executing"
	case StateReacting:
		return "reacting"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Notifier pushes committed plans and alerts to external systems.
type Notifier interface {
	NotifyPlan(events.PlanEvent) error
	NotifyAlert(events.AlertEvent) error
}

// Options configures a Dispatcher. Nil collaborators default to no-ops.
type Options struct {
	Network   *network.Network
	Scheduler *schedule.Scheduler
	Estimator estimate.Estimator
	Horizon   model.Window
	Bus       *eventbus.TypedBus[any]
	Audit     audit.Store
	KPI       kpi.Sink
	Notifier  Notifier
	Logger    logger.Logger
	Seed      int64
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Dispatcher owns the committed plan and the authoritative train set, and
// reconciles them against disruptions and controller overrides.
type Dispatcher struct {
	mu       sync.Mutex
	net      *network.Network
	sched    *schedule.Scheduler
	est      estimate.Estimator
	horizon  model.Window
	bus      *eventbus.TypedBus[any]
	audit    audit.Store
	kpiSink  kpi.Sink
	notifier Notifier
	log      logger.Logger
	now      func() time.Time

	trains     map[string]model.Train
	plan       *model.Plan
	planID     string
	lastResult schedule.Result
	advisory   *schedule.Result
	state      State
	conflicts  []model.Conflict

	priorityOverride map[string]model.PriorityClass
	emergencyTrains  map[string]bool
	emergency        bool

	pendingOverrides   []model.Override
	pendingDisruptions []model.DisruptionEvent
	activeDisruptions  []model.DisruptionEvent
	dirtyTrains        map[string]bool
	dirtyResources     map[string]bool

	cancelSolve context.CancelFunc
	seed        int64
	solves      int64
}

// New creates a dispatcher. Network, Scheduler and Horizon are required.
func New(opts Options) (*Dispatcher, error) {
	if opts.Network == nil || opts.Scheduler == nil {
		return nil, errors.New("dispatcher: network and scheduler are required")
	}
	if !opts.Horizon.End.After(opts.Horizon.Start) {
		return nil, errors.New("dispatcher: horizon must be a non-empty window")
	}
	d := &Dispatcher{
		net:              opts.Network,
		sched:            opts.Scheduler,
		est:              opts.Estimator,
		horizon:          opts.Horizon,
		bus:              opts.Bus,
		audit:            opts.Audit,
		kpiSink:          opts.KPI,
		notifier:         opts.Notifier,
		log:              opts.Logger,
		now:              opts.Now,
		trains:           make(map[string]model.Train),
		priorityOverride: make(map[string]model.PriorityClass),
		emergencyTrains:  make(map[string]bool),
		dirtyTrains:      make(map[string]bool),
		dirtyResources:   make(map[string]bool),
		seed:             opts.Seed,
	}
	if d.audit == nil {
		d.audit = audit.NopStore{}
	}
	if d.kpiSink == nil {
		d.kpiSink = kpi.NopSink{}
	}
	if d.log == nil {
		d.log = nopLogger{}
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d, nil
}

// SetNotifier installs the outbound notifier after construction.
func (d *Dispatcher) SetNotifier(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifier = n
}

// AddTrains registers trains with the dispatcher. Invalid trains are rejected
// wholesale so the authoritative set never holds a partial batch.
func (d *Dispatcher) AddTrains(trains []model.Train) error {
	for _, t := range trains {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range trains {
		d.trains[t.ID] = t
		d.dirtyTrains[t.ID] = true
	}
	return nil
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Plan returns the committed plan revision, or nil before the first commit.
func (d *Dispatcher) Plan() (string, *model.Plan) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.plan == nil {
		return "", nil
	}
	return d.planID, d.plan.Copy()
}

// LastResult returns the most recent solve result.
func (d *Dispatcher) LastResult() schedule.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastResult
}

// Conflicts returns the unresolved conflicts on the committed plan.
func (d *Dispatcher) Conflicts() []model.Conflict {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.Conflict, len(d.conflicts))
	copy(out, d.conflicts)
	return out
}

// Trains returns a copy of the authoritative train set with any priority
// overrides applied.
func (d *Dispatcher) Trains() []model.Train {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.effectiveTrains()
}

// KPI derives the KPI snapshot of the committed plan.
func (d *Dispatcher) KPI() model.KPISnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return kpi.PlanSnapshot(d.plan, d.effectiveTrains(), d.now())
}

// EmergencyActive reports whether emergency mode is engaged.
func (d *Dispatcher) EmergencyActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.emergency
}

// ReportDisruption queues a disruption for the next reaction cycle and
// cancels any solve in flight so it restarts with current information.
func (d *Dispatcher) ReportDisruption(ev model.DisruptionEvent) {
	d.mu.Lock()
	d.pendingDisruptions = append(d.pendingDisruptions, ev)
	cancel := d.cancelSolve
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.log.Infof("disruption reported: %s on %v severity=%.2f", ev.Kind, ev.Resources, ev.Severity)
}

// Run executes the dispatch loop until the context is cancelled. Each tick
// drains queued overrides and disruptions and replans when needed.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.Step(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.log.Errorf("dispatch step failed: %v", err)
			}
		}
	}
}

// Step runs one dispatch cycle: apply queued overrides, then solve if the
// train set, the network, or the disruption picture changed.
func (d *Dispatcher) Step(ctx context.Context) error {
	d.mu.Lock()
	queued := d.pendingOverrides
	d.pendingOverrides = nil
	for _, o := range queued {
		d.applyLocked(o)
	}

	newDisruptions := d.pendingDisruptions
	d.pendingDisruptions = nil
	d.activeDisruptions = pruneDisruptions(append(d.activeDisruptions, newDisruptions...), d.now())

	needFull := d.plan == nil
	needRapid := !needFull && (len(newDisruptions) > 0 || len(d.dirtyTrains) > 0 || len(d.dirtyResources) > 0)
	if d.emergency {
		// Emergency mode always resolves the whole horizon.
		needFull = needFull || needRapid
		needRapid = false
	}
	if !needFull && !needRapid {
		d.mu.Unlock()
		return nil
	}

	req := d.buildRequestLocked(newDisruptions, needRapid)
	d.setStateLocked(statePlanningFor(needRapid), solveReason(needFull, newDisruptions))
	solveCtx, cancel := context.WithCancel(ctx)
	d.cancelSolve = cancel
	d.mu.Unlock()
	defer cancel()

	start := time.Now()
	var (
		res schedule.Result
		err error
	)
	if needRapid {
		res, err = d.sched.Replan(solveCtx, req)
	} else {
		res, err = d.sched.Plan(solveCtx, req)
	}
	elapsed := time.Since(start)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelSolve = nil

	if err != nil {
		ferr := d.handleSolveFailureLocked(err, needRapid)
		if ferr != nil {
			// Keep the trigger visible so the next cycle retries the solve.
			for _, ev := range newDisruptions {
				for _, r := range ev.Resources {
					d.dirtyResources[r] = true
				}
			}
		}
		return ferr
	}
	if d.emergency {
		d.recordAdvisoryLocked(res, elapsed)
		return nil
	}
	d.commitLocked(res, needRapid, elapsed)
	return nil
}

// statePlanningFor maps the solve mode to the transient state.
func statePlanningFor(rapid bool) State {
	if rapid {
		return StateReacting
	}
	return StatePlanning
}

func solveReason(full bool, disruptions []model.DisruptionEvent) string {
	switch {
	case full:
		return "full solve"
	case len(disruptions) > 0:
		return "disruption response"
	default:
		return "override applied"
	}
}

// buildRequestLocked assembles the scheduling request from current state.
func (d *Dispatcher) buildRequestLocked(newDisruptions []model.DisruptionEvent, rapid bool) schedule.Request {
	trains := d.effectiveTrains()
	estState := d.estimatorStateLocked(trains)
	estimates := make(map[string]estimate.Estimate, len(trains))
	for _, t := range trains {
		est, fallback := estimate.Safe(d.est, t, estState)
		if fallback {
			d.log.Warnf("estimator fallback for train %s", t.ID)
		}
		estimates[t.ID] = est
	}

	d.solves++
	req := schedule.Request{
		Trains:      trains,
		Horizon:     d.horizon,
		Estimates:   estimates,
		Disruptions: d.activeDisruptions,
		Seed:        d.seed + d.solves,
	}
	if rapid && d.plan != nil {
		req.Prior = d.plan
		req.Delta = d.deltaLocked(newDisruptions)
	}
	d.dirtyTrains = make(map[string]bool)
	d.dirtyResources = make(map[string]bool)
	return req
}

// deltaLocked describes the changed region for warm-started replanning.
func (d *Dispatcher) deltaLocked(newDisruptions []model.DisruptionEvent) *schedule.Delta {
	delta := &schedule.Delta{Window: d.horizon}
	seen := make(map[string]bool)
	for _, ev := range newDisruptions {
		for _, r := range ev.Resources {
			if !seen[r] {
				seen[r] = true
				delta.Resources = append(delta.Resources, r)
			}
		}
		if delta.Window == d.horizon {
			delta.Window = ev.Window
		} else {
			if ev.Window.Start.Before(delta.Window.Start) {
				delta.Window.Start = ev.Window.Start
			}
			if ev.Window.End.After(delta.Window.End) {
				delta.Window.End = ev.Window.End
			}
		}
	}
	for r := range d.dirtyResources {
		if !seen[r] {
			seen[r] = true
			delta.Resources = append(delta.Resources, r)
		}
	}
	for id := range d.dirtyTrains {
		delta.Trains = append(delta.Trains, id)
	}
	return delta
}

func (d *Dispatcher) estimatorStateLocked(trains []model.Train) estimate.State {
	s := estimate.State{
		Disruptions:        d.activeDisruptions,
		RemainingStations:  make(map[string][]string, len(trains)),
		RemainingResources: make(map[string][]string, len(trains)),
		Now:                d.now(),
	}
	for _, t := range trains {
		for _, stop := range t.Route {
			s.RemainingStations[t.ID] = append(s.RemainingStations[t.ID], stop.Station)
		}
		steps, err := d.net.Route(t)
		if err != nil {
			continue
		}
		for _, step := range steps {
			for _, cand := range step.Candidates {
				s.RemainingResources[t.ID] = append(s.RemainingResources[t.ID], cand.ID)
			}
		}
	}
	return s
}

// effectiveTrains applies priority overrides and the emergency boost.
func (d *Dispatcher) effectiveTrains() []model.Train {
	ids := make([]string, 0, len(d.trains))
	for id := range d.trains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]model.Train, 0, len(ids))
	for _, id := range ids {
		t := d.trains[id]
		if c, ok := d.priorityOverride[id]; ok {
			t.Class = c
		}
		if d.emergencyTrains[id] {
			t.Class = model.ClassExpress
		}
		out = append(out, t)
	}
	return out
}

func (d *Dispatcher) handleSolveFailureLocked(err error, rapid bool) error {
	var inf *schedule.InfeasibleError
	if errors.As(err, &inf) {
		d.setStateLocked(StateDegraded, "no feasible plan")
		d.conflicts = append(d.conflicts, model.Conflict{
			Resource: firstOrEmpty(inf.Resources),
			Window:   d.horizon,
			Reason:   "no feasible schedule on " + joinIDs(inf.Resources),
		})
		conflictsDetected.Inc()
		held := d.holdTouchingLocked(inf.Resources)
		d.emitAlertLocked(events.AlertEvent{
			Severity:  events.SeverityCritical,
			Message:   "demand infeasible, holding trains at the conflict",
			Resources: inf.Resources,
			Time:      d.now(),
		})
		rec := audit.NewRecord(d.now(), audit.KindConflict)
		rec.PlanID = d.planID
		rec.Trains = held
		rec.Resources = inf.Resources
		rec.Detail = inf.Error()
		d.appendAuditLocked(rec)
		if len(held) > 0 {
			d.log.Warnf("degraded: held %v pending resolution on %v", held, inf.Resources)
		}
		return nil
	}
	// Cancellation or an internal failure: prior plan stays committed.
	if d.plan != nil {
		d.setStateLocked(StateExecuting, "solve aborted")
	} else {
		d.setStateLocked(StateIdle, "solve aborted")
	}
	return err
}

// holdTouchingLocked holds every active train whose route touches one of the
// given resources, so execution stops at the conflict instead of violating
// it. A release override re-enters the train once the conflict clears.
func (d *Dispatcher) holdTouchingLocked(resources []string) []string {
	set := make(map[string]bool, len(resources))
	for _, r := range resources {
		set[r] = true
	}
	var held []string
	for id, t := range d.trains {
		if t.Status == model.StatusHeld || !t.Active() {
			continue
		}
		if !d.routeTouchesLocked(t, set) {
			continue
		}
		t.Status = model.StatusHeld
		d.trains[id] = t
		d.dirtyTrains[id] = true
		held = append(held, id)
	}
	sort.Strings(held)
	return held
}

func (d *Dispatcher) routeTouchesLocked(t model.Train, resources map[string]bool) bool {
	steps, err := d.net.Route(t)
	if err != nil {
		return false
	}
	for _, step := range steps {
		for _, cand := range step.Candidates {
			if resources[cand.ID] {
				return true
			}
		}
	}
	return false
}

// recordAdvisoryLocked stores a solve computed while emergency mode is
// active. The committed plan stays untouched; the result is published as
// advisory and commits resume once emergency mode is deactivated.
func (d *Dispatcher) recordAdvisoryLocked(res schedule.Result, elapsed time.Duration) {
	d.advisory = &res
	d.lastResult = res
	if d.plan != nil {
		d.setStateLocked(StateExecuting, "advisory solve under emergency")
	} else {
		d.setStateLocked(StateIdle, "advisory solve under emergency")
	}

	ev := events.PlanEvent{
		PlanID:     d.planID,
		Advisory:   true,
		Feasible:   res.Feasible,
		Objective:  res.Objective,
		Confidence: res.Confidence,
		Trains:     res.Plan.Trains(),
		Time:       d.now(),
	}
	d.publishLocked(ev)

	rec := audit.NewRecord(d.now(), audit.KindAdvisory)
	rec.PlanID = d.planID
	rec.Trains = res.Plan.Trains()
	rec.Objective = res.Objective
	rec.Confidence = res.Confidence
	rec.Detail = "advisory solve in " + elapsed.Round(time.Millisecond).String() + ", commits suspended by emergency"
	d.appendAuditLocked(rec)

	d.log.Infof("advisory plan computed under emergency (objective %.2f), commit suspended", res.Objective)
}

// AdvisoryResult returns the latest advisory solve computed under emergency
// mode, if any.
func (d *Dispatcher) AdvisoryResult() (schedule.Result, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.advisory == nil {
		return schedule.Result{}, false
	}
	return *d.advisory, true
}

//gocyclo:ignore
func (d *Dispatcher) commitLocked(res schedule.Result, rapid bool, elapsed time.Duration) {
	mode := "full"
	if rapid {
		mode = "rapid"
	}
	solveLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
	plansCommitted.WithLabelValues(mode).Inc()
	planConfidence.Set(res.Confidence)

	changed := diffTrains(d.plan, res.Plan)
	d.plan = res.Plan
	d.planID = uuid.NewString()
	d.lastResult = res
	d.conflicts = nil
	d.setStateLocked(StateExecuting, "plan committed")

	ev := events.PlanEvent{
		PlanID:     d.planID,
		Rapid:      rapid,
		Feasible:   res.Feasible,
		Objective:  res.Objective,
		Confidence: res.Confidence,
		Trains:     changed,
		Time:       d.now(),
	}
	d.publishLocked(ev)
	if d.notifier != nil {
		if err := d.notifier.NotifyPlan(ev); err != nil {
			d.log.Errorf("plan notification failed: %v", err)
		}
	}

	rec := audit.NewRecord(d.now(), audit.KindPlanCommit)
	rec.PlanID = d.planID
	rec.Trains = changed
	rec.Objective = res.Objective
	rec.Confidence = res.Confidence
	rec.Detail = mode + " solve in " + elapsed.Round(time.Millisecond).String()
	d.appendAuditLocked(rec)

	if err := d.kpiSink.RecordSolve(kpi.SolveMetric{
		Rapid:          rapid,
		Feasible:       res.Feasible,
		BudgetExceeded: res.BudgetExceeded,
		Objective:      res.Objective,
		Confidence:     res.Confidence,
		Elapsed:        elapsed,
		Trains:         len(res.Plan.Trains()),
		Time:           d.now(),
	}); err != nil {
		d.log.Warnf("solve metric export failed: %v", err)
	}

	if res.BudgetExceeded {
		d.emitAlertLocked(events.AlertEvent{
			Severity: events.SeverityWarning,
			Message:  "budget exceeded, committed best incumbent",
			Time:     d.now(),
		})
		deg := audit.NewRecord(d.now(), audit.KindQualityDegrade)
		deg.PlanID = d.planID
		deg.Detail = "search deadline reached before restart budget"
		deg.Confidence = res.Confidence
		d.appendAuditLocked(deg)
	}

	d.log.Debugw("plan committed", map[string]any{
		"plan_id":    d.planID,
		"mode":       mode,
		"objective":  res.Objective,
		"confidence": res.Confidence,
		"changed":    len(changed),
		"elapsed":    elapsed.String(),
	})
	d.log.Infof("plan %s committed (%s, objective %.2f, confidence %.2f)", d.planID, mode, res.Objective, res.Confidence)
}

func (d *Dispatcher) setStateLocked(next State, reason string) {
	if d.state == next {
		return
	}
	prev := d.state
	d.state = next
	stateGauge.Set(float64(next))
	d.publishLocked(events.StateEvent{From: prev.String(), To: next.String(), Reason: reason, Time: d.now()})
}

func (d *Dispatcher) emitAlertLocked(ev events.AlertEvent) {
	d.publishLocked(ev)
	if d.notifier != nil {
		if err := d.notifier.NotifyAlert(ev); err != nil {
			d.log.Errorf("alert notification failed: %v", err)
		}
	}
	rec := audit.NewRecord(ev.Time, audit.KindAlert)
	rec.Resources = ev.Resources
	rec.Detail = ev.Message
	d.appendAuditLocked(rec)
}

func (d *Dispatcher) publishLocked(ev any) {
	if d.bus != nil {
		d.bus.Publish(ev)
	}
}

func (d *Dispatcher) appendAuditLocked(rec audit.Record) {
	if err := d.audit.Append(context.Background(), rec); err != nil {
		d.log.Warnf("audit append failed: %v", err)
	}
}

// diffTrains lists trains whose reservation sets differ between plans.
func diffTrains(prev, next *model.Plan) []string {
	if next == nil {
		return nil
	}
	if prev == nil {
		return next.Trains()
	}
	var changed []string
	for _, id := range next.Trains() {
		a, b := prev.ByTrain(id), next.ByTrain(id)
		if !sameReservations(a, b) {
			changed = append(changed, id)
		}
	}
	for _, id := range prev.Trains() {
		if len(next.ByTrain(id)) == 0 {
			changed = append(changed, id)
		}
	}
	sort.Strings(changed)
	return changed
}

func sameReservations(a, b []model.Reservation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Resource != b[i].Resource || !a[i].Entry.Equal(b[i].Entry) || !a[i].Exit.Equal(b[i].Exit) {
			return false
		}
	}
	return true
}

// pruneDisruptions drops disruptions whose window is fully in the past.
func pruneDisruptions(ds []model.DisruptionEvent, now time.Time) []model.DisruptionEvent {
	out := ds[:0]
	for _, d := range ds {
		if d.Window.End.After(now) {
			out = append(out, d)
		}
	}
	return out
}

func firstOrEmpty(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func joinIDs(ids []string) string { return strings.Join(ids, ", ") }

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}
