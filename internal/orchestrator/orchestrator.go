// Package orchestrator composes Worker(s), Scheduler, Telemetry, Monitors
// and RuntimePolicy behind the single façade described in §4.10. It is the
// Go analogue of the teacher's daemon.Daemon composition root, pruned to
// this module's components and with no HTTP server: the core is embedded
// by a host app, never serves its own network surface.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edgeveda/core/internal/abi"
	"github.com/edgeveda/core/internal/budget"
	"github.com/edgeveda/core/internal/chat"
	"github.com/edgeveda/core/internal/config"
	"github.com/edgeveda/core/internal/domain"
	"github.com/edgeveda/core/internal/frame"
	"github.com/edgeveda/core/internal/health"
	"github.com/edgeveda/core/internal/metrics"
	"github.com/edgeveda/core/internal/modelmanager"
	"github.com/edgeveda/core/internal/monitor"
	"github.com/edgeveda/core/internal/perftrace"
	"github.com/edgeveda/core/internal/policy"
	"github.com/edgeveda/core/internal/registry"
	"github.com/edgeveda/core/internal/scheduler"
	"github.com/edgeveda/core/internal/telemetry"
	"github.com/edgeveda/core/internal/worker"
)

const (
	workloadText   domain.WorkloadID = "text"
	workloadVision domain.WorkloadID = "vision"
)

// Runtime is the public-API façade composing every runtime subsystem
// (§4.10). It is single-instance-per-process by convention; creating
// multiple instances is permitted and each holds its own workers and
// engine handles.
type Runtime struct {
	cfg config.Config

	engine       domain.Engine
	textWorker   *worker.Worker
	visionWorker *worker.Worker
	chat         *chat.Session
	frames       *frame.Queue

	telemetryPoller *telemetry.Poller
	runtimePolicy   *policy.Policy
	latency         *monitor.LatencyTracker
	drain           *monitor.BatteryDrainTracker
	thermal         *monitor.ThermalMonitor
	resource        *monitor.ResourceMonitor
	scheduler       *scheduler.Scheduler

	perf    *perftrace.Sink
	metrics *metrics.Registry

	modelRegistry domain.ModelRegistry
	modelStore    *modelmanager.DB
	modelManager  *modelmanager.Manager
	healthChecker *health.Checker

	mu       sync.Mutex
	cancel   context.CancelFunc
	disposed bool
}

// New constructs a Runtime with every subsystem wired, using dataDir for
// the model store and downloaded model files.
func New(cfg config.Config, dataDir string) (*Runtime, error) {
	db, err := modelmanager.OpenDB(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open model store: %w", err)
	}
	reg := registry.New()
	mgr := modelmanager.New(dataDir, reg, db)

	engine := abi.NewEngine()
	textWorker := worker.New(engine, domain.TextWorker)
	visionWorker := worker.New(engine, domain.VisionWorker)
	chatSession := chat.New(textWorker, chat.PresetAssistant)

	telemetryPoller := telemetry.New(cfg.Telemetry.PollInterval())
	runtimePolicy := policy.New(policy.WithCooldown(cfg.Policy.Cooldown()))
	latency := monitor.NewLatencyTracker(0, cfg.Policy.WarmSampleCount)
	drain := monitor.NewBatteryDrainTracker(0)
	thermal := monitor.NewThermalMonitor(telemetryPoller)
	resource := monitor.NewResourceMonitor(0)
	sched := scheduler.New(latency, drain, thermal, resource,
		scheduler.WithEnforcementInterval(cfg.Scheduler.EnforcementInterval()),
		scheduler.WithRecoveryWindow(cfg.Policy.RecoveryWindow()))
	sched.RegisterWorkload(workloadText, domain.PriorityHigh)
	sched.RegisterWorkload(workloadVision, domain.PriorityNormal)

	frames := frame.New()

	r := &Runtime{
		cfg:             cfg,
		engine:          engine,
		textWorker:      textWorker,
		visionWorker:    visionWorker,
		chat:            chatSession,
		frames:          frames,
		telemetryPoller: telemetryPoller,
		runtimePolicy:   runtimePolicy,
		latency:         latency,
		drain:           drain,
		thermal:         thermal,
		resource:        resource,
		scheduler:       sched,
		perf:            perftrace.New(perftrace.DefaultCapacity),
		metrics:         metrics.New(),
		modelRegistry:   reg,
		modelStore:      db,
		modelManager:    mgr,
		healthChecker:   health.NewChecker(db, dataDir),
	}
	frames.OnDrop(r.observeFrameDrop)
	r.healthChecker.Observe(r.observeHealthStatuses)
	return r, nil
}

func (r *Runtime) observeFrameDrop() {
	r.metrics.FramesDropped.Inc()
	r.perf.Emit(domain.PerfEvent{
		Kind:      domain.EventFrameDrop,
		Timestamp: time.Now(),
		Workload:  workloadVision,
		Fields:    map[string]any{"dropped_count": r.frames.DroppedCount()},
	})
}

func (r *Runtime) observeHealthStatuses(statuses []health.Status) {
	for _, s := range statuses {
		healthy := 0.0
		if s.Healthy {
			healthy = 1.0
		}
		r.metrics.HealthCheckStatus.WithLabelValues(s.Name).Set(healthy)
	}
}

// Metrics returns the runtime's Prometheus registry for a host app to
// mount on its own /metrics endpoint.
func (r *Runtime) Metrics() *metrics.Registry { return r.metrics }

// PerfTrace returns the bounded trace buffer.
func (r *Runtime) PerfTrace() *perftrace.Sink { return r.perf }

// Start launches every background loop (telemetry polling, scheduler
// enforcement, health checks). Call once; Dispose stops everything.
func (r *Runtime) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	sampleCh, unsubSample := r.telemetryPoller.Subscribe()
	go func() {
		defer unsubSample()
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-sampleCh:
				if !ok {
					return
				}
				r.observeTelemetry(s)
			}
		}
	}()

	qosCh, unsubQoS := r.runtimePolicy.Subscribe()
	go func() {
		defer unsubQoS()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-qosCh:
				if !ok {
					return
				}
				r.observeQoSChange(ev)
			}
		}
	}()

	violationCh, unsubViolation := r.scheduler.Subscribe()
	go func() {
		defer unsubViolation()
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-violationCh:
				if !ok {
					return
				}
				r.observeBudgetViolation(v)
			}
		}
	}()

	baselineCh, unsubBaseline := r.scheduler.SubscribeBaseline()
	go func() {
		defer unsubBaseline()
		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-baselineCh:
				if !ok {
					return
				}
				r.observeBaselineUpdated(b)
			}
		}
	}()

	go r.observeWorkerEvents(ctx, workloadText, r.textWorker)
	go r.observeWorkerEvents(ctx, workloadVision, r.visionWorker)

	go r.telemetryPoller.Run(ctx)
	go r.scheduler.Run(ctx)
	go r.healthChecker.Run(ctx)
}

func (r *Runtime) observeTelemetry(s domain.TelemetrySample) {
	r.runtimePolicy.Update(s)
	r.drain.Observe(s)
	r.resource.Sample(s.RSSBytes)

	r.metrics.ThermalLevel.Set(float64(s.ThermalLevel))
	r.metrics.RSSBytes.Set(float64(s.RSSBytes))
	r.metrics.AvailableBytes.Set(float64(s.AvailableBytes))
	r.metrics.QoSLevel.Set(float64(r.runtimePolicy.Level()))
	if drainPer10Min, ok := r.drain.DrainPer10Min(); ok {
		r.metrics.BatteryDrain.Set(drainPer10Min)
	}
	for _, id := range r.scheduler.WorkloadIDs() {
		admitted := 0.0
		if r.scheduler.IsAdmitted(id) {
			admitted = 1.0
		}
		r.metrics.SchedulerQueueDepth.WithLabelValues(string(id)).Set(admitted)
	}

	r.perf.Emit(domain.PerfEvent{
		Kind:      domain.EventTelemetrySample,
		Timestamp: s.Timestamp,
		Fields: map[string]any{
			"thermal_level":   s.ThermalLevel,
			"available_bytes": s.AvailableBytes,
		},
	})
}

func (r *Runtime) observeQoSChange(ev domain.QoSChanged) {
	r.metrics.QoSLevel.Set(float64(ev.To))
	r.metrics.QoSTransitions.WithLabelValues(ev.To.String()).Inc()
	r.perf.Emit(domain.PerfEvent{
		Kind:      domain.EventQoSChange,
		Timestamp: ev.At,
		Fields:    map[string]any{"from": ev.From.String(), "to": ev.To.String()},
	})
}

func (r *Runtime) observeBudgetViolation(v domain.BudgetViolation) {
	mitigated := "false"
	if v.Mitigated {
		mitigated = "true"
	}
	r.metrics.BudgetViolations.WithLabelValues(v.Constraint.String(), mitigated).Inc()
	r.perf.Emit(domain.PerfEvent{
		Kind:      domain.EventBudgetViolation,
		Timestamp: v.Timestamp,
		Fields: map[string]any{
			"constraint":    v.Constraint.String(),
			"current_value": v.CurrentValue,
			"budget_value":  v.BudgetValue,
			"mitigated":     v.Mitigated,
			"observe_only":  v.ObserveOnly,
		},
	})
}

func (r *Runtime) observeBaselineUpdated(b scheduler.BaselineUpdated) {
	r.perf.Emit(domain.PerfEvent{
		Kind:      domain.EventBaselineUpdated,
		Timestamp: b.At,
		Fields: map[string]any{
			"measured_p95_ms":          b.Baseline.MeasuredP95MS,
			"measured_drain_per_10min": b.Baseline.MeasuredDrainPer10Min,
		},
	})
}

func (r *Runtime) observeWorkerEvents(ctx context.Context, id domain.WorkloadID, w *worker.Worker) {
	ch, unsub := w.Subscribe()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Kind {
			case worker.EventGenerationStarted:
				r.perf.Emit(domain.PerfEvent{Kind: domain.EventInferenceStart, Timestamp: time.Now(), Workload: id})
			case worker.EventGenerationCompleted:
				r.perf.Emit(domain.PerfEvent{
					Kind:      domain.EventInferenceEnd,
					Timestamp: time.Now(),
					Workload:  id,
					Fields:    map[string]any{"tokens_generated": ev.Result.TokensGenerated, "stop_reason": ev.Result.StopReason.String()},
				})
			}
		}
	}
}

// InitText loads the text model (§4.10).
func (r *Runtime) InitText(ctx context.Context, cfg domain.EngineConfig) error {
	return r.textWorker.InitText(ctx, cfg)
}

// InitVision loads the vision backbone and projector models.
func (r *Runtime) InitVision(ctx context.Context, cfg domain.VisionConfig) error {
	return r.visionWorker.InitVision(ctx, cfg)
}

// Generate runs one non-streaming text completion, applying the active
// QoSOverride cap and the scheduler's per-workload admission gate.
func (r *Runtime) Generate(ctx context.Context, prompt string, params domain.GenerateParams) (domain.GenerateResult, error) {
	if !r.runtimePolicy.Override().TextGenAllowed {
		return domain.GenerateResult{}, domain.NewError(domain.KindPolicyRejected, "text generation paused by runtime policy", domain.ErrPolicyRejected)
	}
	if !r.scheduler.IsAdmitted(workloadText) {
		return domain.GenerateResult{}, domain.NewError(domain.KindPolicyRejected, "text workload admission gate closed this interval", domain.ErrPolicyRejected)
	}
	params = assignRequestID(r.capTextParams(params))
	r.scheduler.RecordActivity(workloadText)

	start := time.Now()
	result, err := r.textWorker.Generate(ctx, prompt, params)
	r.recordCompletion(workloadText, params.RequestID, start, result, err)
	return result, err
}

// GenerateStream is Generate's token-by-token counterpart.
func (r *Runtime) GenerateStream(ctx context.Context, prompt string, params domain.GenerateParams, onToken func(domain.Token)) (domain.GenerateResult, error) {
	if !r.runtimePolicy.Override().TextGenAllowed {
		return domain.GenerateResult{}, domain.NewError(domain.KindPolicyRejected, "text generation paused by runtime policy", domain.ErrPolicyRejected)
	}
	if !r.scheduler.IsAdmitted(workloadText) {
		return domain.GenerateResult{}, domain.NewError(domain.KindPolicyRejected, "text workload admission gate closed this interval", domain.ErrPolicyRejected)
	}
	params = assignRequestID(r.capTextParams(params))
	r.scheduler.RecordActivity(workloadText)

	start := time.Now()
	result, err := r.textWorker.Stream(ctx, prompt, params, onToken)
	r.recordCompletion(workloadText, params.RequestID, start, result, err)
	return result, err
}

// DescribeImage captions a single Frame. Rejected with PolicyRejected
// whenever RuntimePolicy is at QoSPaused (§7, scenario S4).
func (r *Runtime) DescribeImage(ctx context.Context, f domain.Frame, prompt string, params domain.GenerateParams) (domain.GenerateResult, error) {
	if r.runtimePolicy.Level() == domain.QoSPaused {
		return domain.GenerateResult{}, domain.NewError(domain.KindPolicyRejected, "vision disallowed at QoSPaused", domain.ErrPolicyRejected)
	}
	if !r.scheduler.IsAdmitted(workloadVision) {
		return domain.GenerateResult{}, domain.NewError(domain.KindPolicyRejected, "vision workload admission gate closed this interval", domain.ErrPolicyRejected)
	}
	override := r.scheduler.WorkloadOverride(workloadVision)
	if params.MaxTokens <= 0 || params.MaxTokens > override.MaxTokensCap {
		params.MaxTokens = override.MaxTokensCap
	}
	params = assignRequestID(params)
	r.scheduler.RecordActivity(workloadVision)

	start := time.Now()
	result, err := r.visionWorker.DescribeImage(ctx, f, prompt, params)
	r.recordCompletion(workloadVision, params.RequestID, start, result, err)
	return result, err
}

// assignRequestID stamps a generated id onto a request that didn't supply
// one, so latency/perftrace/metrics correlation never falls back to "".
func assignRequestID(params domain.GenerateParams) domain.GenerateParams {
	if params.RequestID == "" {
		params.RequestID = uuid.New().String()
	}
	return params
}

// capTextParams applies min(request, override) per §4.7.
func (r *Runtime) capTextParams(params domain.GenerateParams) domain.GenerateParams {
	tokenCap := r.runtimePolicy.Override().MaxTokensCap
	if params.MaxTokens <= 0 || params.MaxTokens > tokenCap {
		params.MaxTokens = tokenCap
	}
	return params
}

func (r *Runtime) recordCompletion(workload domain.WorkloadID, requestID string, start time.Time, result domain.GenerateResult, err error) {
	now := time.Now()
	elapsedMS := float64(now.Sub(start)) / float64(time.Millisecond)

	r.latency.Record(domain.LatencyObservation{
		RequestID:       requestID,
		StartedAt:       start,
		CompletedAt:     now,
		LatencyMS:       elapsedMS,
		TokensGenerated: result.TokensGenerated,
	})

	r.metrics.InferenceLatency.WithLabelValues(string(workload)).Observe(elapsedMS / 1000)
	r.metrics.InferenceTokens.WithLabelValues(string(workload)).Add(float64(result.TokensGenerated))
	if err != nil {
		kind := domain.KindUnknown
		var de *domain.Error
		switch {
		case errors.As(err, &de):
			kind = de.Kind
		case errors.Is(err, domain.ErrCancelled):
			kind = domain.KindCancelled
		case errors.Is(err, domain.ErrWorkerBusy):
			kind = domain.KindWorkerBusy
		case errors.Is(err, domain.ErrGeneration):
			kind = domain.KindGeneration
		}
		r.metrics.InferenceErrors.WithLabelValues(string(workload), kind.String()).Inc()
	}
}

// RegisterWorkload registers an additional workload with the scheduler.
func (r *Runtime) RegisterWorkload(id domain.WorkloadID, priority domain.WorkloadPriority) {
	r.scheduler.RegisterWorkload(id, priority)
}

// SetBudget installs a static compute budget.
func (r *Runtime) SetBudget(b domain.Budget) {
	r.scheduler.SetBudget(b)
}

// SetBudgetProfile installs an adaptive compute budget.
func (r *Runtime) SetBudgetProfile(p domain.BudgetProfile) {
	r.scheduler.SetBudgetProfile(p)
}

// ValidateBudget returns human-readable warnings for a candidate Budget.
func (r *Runtime) ValidateBudget(b domain.Budget) []string {
	return budget.Validate(b)
}

// OnBudgetViolation subscribes to the scheduler's violation stream.
func (r *Runtime) OnBudgetViolation() (<-chan domain.BudgetViolation, func()) {
	return r.scheduler.Subscribe()
}

// QoSLevel reports the currently active quality-of-service tier.
func (r *Runtime) QoSLevel() domain.QoSLevel { return r.runtimePolicy.Level() }

// Chat returns the text worker's ChatSession.
func (r *Runtime) Chat() *chat.Session { return r.chat }

// Frames returns the vision worker's frame intake queue.
func (r *Runtime) Frames() *frame.Queue { return r.frames }

// ModelManager returns the boundary for downloading and inspecting
// catalog models.
func (r *Runtime) ModelManager() *modelmanager.Manager { return r.modelManager }

// HealthStatus reports the most recent result of every periodic self-check
// (model store reachability, disk headroom, model file integrity).
func (r *Runtime) HealthStatus() []health.Status { return r.healthChecker.Statuses() }

// MemoryStats reports current and historical resident memory (§4.10).
func (r *Runtime) MemoryStats() domain.MemoryStats {
	return domain.MemoryStats{
		RSSBytes:        r.engine.RSSBytes(),
		AvailableBytes:  r.engine.AvailableBytes(),
		PeakRSSBytes:    r.resource.Peak(),
		AverageRSSBytes: r.resource.Average(),
	}
}

// Dispose frees both workers, stops every background loop, and closes the
// model store. Idempotent.
func (r *Runtime) Dispose(ctx context.Context) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil
	}
	r.disposed = true
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.thermal.Close()

	var firstErr error
	if err := r.textWorker.Dispose(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.visionWorker.Dispose(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.modelStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
