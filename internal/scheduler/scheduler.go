// Package scheduler implements the workload registry, adaptive budget
// calibration, and the periodic enforcement loop that degrades or gates
// registered workloads when a measured metric exceeds the resolved
// Budget (§4.9). The state-machine shape — explicit state, injectable
// clock, cooldown-style gating — mirrors policy.Policy and the teacher's
// circuit-breaker idiom rather than the teacher's work-stealing task
// scheduler, which has no equivalent in this domain.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edgeveda/core/internal/budget"
	"github.com/edgeveda/core/internal/domain"
	"github.com/edgeveda/core/internal/monitor"
	"github.com/edgeveda/core/internal/policy"
)

const (
	DefaultEnforcementInterval = 2 * time.Second
	DefaultRecoveryWindow      = 15 * time.Second
)

type state int

const (
	stateIdle state = iota // no budget set yet
	stateCalibrating
	stateEnforcing
)

// BaselineUpdated is emitted once calibration freezes a MeasuredBaseline
// and resolves it against the active profile (§4.9.1).
type BaselineUpdated struct {
	Baseline domain.MeasuredBaseline
	Resolved domain.Budget
	At       time.Time
}

type workloadState struct {
	priority        domain.WorkloadPriority
	qos             domain.QoSLevel
	lastActivity    time.Time
	admissionClosed bool
}

// Scheduler registers workloads, calibrates an adaptive Budget against a
// MeasuredBaseline, and runs the periodic enforcement loop described in
// §4.9.2.
type Scheduler struct {
	mu sync.Mutex

	latency  *monitor.LatencyTracker
	drain    *monitor.BatteryDrainTracker
	thermal  *monitor.ThermalMonitor
	resource *monitor.ResourceMonitor

	now      func() time.Time
	interval time.Duration
	recovery time.Duration

	state          state
	profile        domain.BudgetProfile
	staticBudget   *domain.Budget
	resolvedBudget domain.Budget
	baseline       domain.MeasuredBaseline

	workloads map[domain.WorkloadID]*workloadState

	lastViolationAt time.Time
	haveViolation   bool
	lastDegraded    domain.WorkloadID

	violationListeners map[int]chan domain.BudgetViolation
	baselineListeners  map[int]chan BaselineUpdated
	nextID             int
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithEnforcementInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

func WithRecoveryWindow(d time.Duration) Option {
	return func(s *Scheduler) { s.recovery = d }
}

func New(latency *monitor.LatencyTracker, drain *monitor.BatteryDrainTracker, thermal *monitor.ThermalMonitor, resource *monitor.ResourceMonitor, opts ...Option) *Scheduler {
	s := &Scheduler{
		latency:            latency,
		drain:              drain,
		thermal:            thermal,
		resource:           resource,
		now:                time.Now,
		interval:           DefaultEnforcementInterval,
		recovery:           DefaultRecoveryWindow,
		state:              stateIdle,
		workloads:          make(map[domain.WorkloadID]*workloadState),
		violationListeners: make(map[int]chan domain.BudgetViolation),
		baselineListeners:  make(map[int]chan BaselineUpdated),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterWorkload adds a workload to the priority-ordered registry at
// QoSFull. Re-registering an existing id resets its degradation state.
func (s *Scheduler) RegisterWorkload(id domain.WorkloadID, priority domain.WorkloadPriority) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workloads[id] = &workloadState{priority: priority, qos: domain.QoSFull, lastActivity: s.now()}
}

// UnregisterWorkload removes a workload; the scheduler holds no other
// reference to its lifetime (§3 ownership rules).
func (s *Scheduler) UnregisterWorkload(id domain.WorkloadID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workloads, id)
	if s.lastDegraded == id {
		s.lastDegraded = ""
	}
}

// RecordActivity marks a workload as most-recently active; used to break
// ties among same-priority workloads when choosing a degradation target.
func (s *Scheduler) RecordActivity(id domain.WorkloadID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workloads[id]; ok {
		w.lastActivity = s.now()
	}
}

// SetBudget installs a static Budget; the scheduler skips Calibrating and
// enters Enforcing immediately (§4.9.1).
func (s *Scheduler) SetBudget(b domain.Budget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staticBudget = &b
	s.resolvedBudget = b
	s.state = stateEnforcing
}

// SetBudgetProfile installs an adaptive profile; the scheduler enters
// Calibrating until the latency and drain trackers warm up (§4.9.1).
func (s *Scheduler) SetBudgetProfile(profile domain.BudgetProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staticBudget = nil
	s.profile = profile
	s.state = stateCalibrating
}

// State reports the current calibration state for tests and diagnostics.
func (s *Scheduler) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateCalibrating:
		return "calibrating"
	case stateEnforcing:
		return "enforcing"
	default:
		return "idle"
	}
}

// ResolvedBudget returns the currently active resolved Budget.
func (s *Scheduler) ResolvedBudget() domain.Budget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolvedBudget
}

// WorkloadOverride returns the concrete inference-parameter caps for a
// registered workload's current degradation level.
func (s *Scheduler) WorkloadOverride(id domain.WorkloadID) domain.QoSOverride {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workloads[id]
	if !ok {
		return policy.Overrides[domain.QoSFull]
	}
	return policy.Overrides[w.qos]
}

// IsAdmitted reports whether a workload's next request should be
// admitted. A workload already at its degradation floor has its
// admission gate closed for exactly one enforcement interval (§4.9.2).
func (s *Scheduler) IsAdmitted(id domain.WorkloadID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workloads[id]
	if !ok {
		return true
	}
	return !w.admissionClosed
}

// WorkloadIDs returns every currently registered workload, in no
// particular order.
func (s *Scheduler) WorkloadIDs() []domain.WorkloadID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]domain.WorkloadID, 0, len(s.workloads))
	for id := range s.workloads {
		ids = append(ids, id)
	}
	return ids
}

// Subscribe returns a channel of BudgetViolation events and an
// unsubscribe func (§4.9.4, at-least-once per tick, slow consumers drop).
func (s *Scheduler) Subscribe() (<-chan domain.BudgetViolation, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan domain.BudgetViolation, 8)
	s.violationListeners[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.violationListeners, id)
	}
}

// SubscribeBaseline returns a channel of BaselineUpdated events.
func (s *Scheduler) SubscribeBaseline() (<-chan BaselineUpdated, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan BaselineUpdated, 2)
	s.baselineListeners[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.baselineListeners, id)
	}
}

// Run starts the enforcement loop. Call in a goroutine; stops when ctx
// is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one enforcement pass. Exported so tests can drive it without
// waiting on a real ticker.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	for _, w := range s.workloads {
		w.admissionClosed = false
	}

	switch s.state {
	case stateIdle:
		return
	case stateCalibrating:
		s.tryCalibrate(now)
		return
	}

	violations := s.evaluate(now)
	if len(violations) == 0 {
		s.maybeRecover(now)
		return
	}
	s.haveViolation = true
	s.lastViolationAt = now
	for _, v := range violations {
		s.publishViolation(v)
	}
}

// tryCalibrate must be called with mu held.
func (s *Scheduler) tryCalibrate(now time.Time) {
	if !s.latency.IsWarm() {
		return
	}
	drainRate, ok := s.drain.DrainPer10Min()
	if !ok {
		return
	}

	baseline := domain.MeasuredBaseline{
		MeasuredP95MS:         s.latency.P95(),
		MeasuredDrainPer10Min: drainRate,
		CurrentThermalLevel:   s.thermal.Level(),
		CurrentRSSMB:          float64(s.resource.Current()) / (1024 * 1024),
		SampleCount:           s.latency.Count(),
		MeasuredAt:            now,
	}
	resolved := budget.Resolve(s.profile, baseline)

	s.baseline = baseline
	s.resolvedBudget = resolved
	s.state = stateEnforcing

	ev := BaselineUpdated{Baseline: baseline, Resolved: resolved, At: now}
	for _, ch := range s.baselineListeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// evaluate must be called with mu held. Returns one BudgetViolation per
// exceeded dimension, in priority order (latency, drain, thermal, memory),
// applying mitigation as a side effect.
func (s *Scheduler) evaluate(now time.Time) []domain.BudgetViolation {
	b := s.resolvedBudget
	var violations []domain.BudgetViolation

	if b.P95LatencyMS != nil {
		if p95 := s.latency.P95(); p95 > *b.P95LatencyMS {
			violations = append(violations, s.mitigate(domain.ConstraintP95Latency, p95, *b.P95LatencyMS, now))
		}
	}
	if b.BatteryDrainPer10Min != nil {
		if rate, ok := s.drain.DrainPer10Min(); ok && rate > *b.BatteryDrainPer10Min {
			violations = append(violations, s.mitigate(domain.ConstraintBatteryDrain, rate, *b.BatteryDrainPer10Min, now))
		}
	}
	if b.MaxThermalLevel != nil {
		if level := s.thermal.Level(); level > *b.MaxThermalLevel {
			violations = append(violations, s.mitigate(domain.ConstraintThermal, float64(level), float64(*b.MaxThermalLevel), now))
		}
	}
	if b.MemoryCeilingMB != nil {
		rssMB := float64(s.resource.Current()) / (1024 * 1024)
		if ceiling := float64(*b.MemoryCeilingMB); rssMB > ceiling {
			// Memory mitigation is always observe-only: the scheduler
			// never unloads a model (§4.9.2).
			violations = append(violations, domain.BudgetViolation{
				Constraint:   domain.ConstraintMemoryCeiling,
				CurrentValue: rssMB,
				BudgetValue:  ceiling,
				Timestamp:    now,
				Mitigated:    false,
				ObserveOnly:  true,
			})
		}
	}
	return violations
}

// mitigate must be called with mu held: it picks the lowest-priority,
// most-recently-active workload and degrades it by one QoS step, or
// closes its admission gate if already at the floor (§4.9.2, §4.9.3).
func (s *Scheduler) mitigate(constraint domain.BudgetConstraint, current, budgetValue float64, now time.Time) domain.BudgetViolation {
	v := domain.BudgetViolation{
		Constraint:   constraint,
		CurrentValue: current,
		BudgetValue:  budgetValue,
		Timestamp:    now,
	}

	target := s.pickTarget()
	if target == "" {
		return v
	}
	w := s.workloads[target]

	if w.qos < domain.QoSPaused {
		w.qos++
		s.lastDegraded = target
		v.Mitigated = true
		v.MitigationDescription = fmt.Sprintf("degraded workload %q to %s", target, w.qos)
		return v
	}

	w.admissionClosed = true
	v.Mitigated = true
	v.MitigationDescription = fmt.Sprintf("closed admission gate for workload %q for one interval", target)
	return v
}

// pickTarget returns the lowest-priority registered workload, breaking
// ties by most-recent activity (§4.9.3). Returns "" if none registered.
func (s *Scheduler) pickTarget() domain.WorkloadID {
	var best domain.WorkloadID
	var bestPriority domain.WorkloadPriority = domain.PriorityHigh + 1
	var bestActivity time.Time

	for id, w := range s.workloads {
		switch {
		case w.priority < bestPriority:
			best, bestPriority, bestActivity = id, w.priority, w.lastActivity
		case w.priority == bestPriority && w.lastActivity.After(bestActivity):
			best, bestActivity = id, w.lastActivity
		}
	}
	return best
}

// maybeRecover must be called with mu held: if no violation has been
// observed for the recovery window, the most-recently degraded workload
// is restored by one QoS step (§4.9.2, symmetric to §4.7 cooldown).
func (s *Scheduler) maybeRecover(now time.Time) {
	if !s.haveViolation || s.lastDegraded == "" {
		return
	}
	if now.Sub(s.lastViolationAt) < s.recovery {
		return
	}
	w, ok := s.workloads[s.lastDegraded]
	if !ok {
		s.lastDegraded = ""
		return
	}
	if w.qos > domain.QoSFull {
		w.qos--
	}
	if w.qos == domain.QoSFull {
		s.lastDegraded = ""
	}
	s.lastViolationAt = now
}

func (s *Scheduler) publishViolation(v domain.BudgetViolation) {
	for _, ch := range s.violationListeners {
		select {
		case ch <- v:
		default:
		}
	}
}
