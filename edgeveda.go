// Package edgeveda is the public surface of the supervised on-device AI
// runtime: a host app embeds Runtime, never internal/orchestrator directly.
package edgeveda

import (
	"context"

	"github.com/edgeveda/core/internal/config"
	"github.com/edgeveda/core/internal/domain"
	"github.com/edgeveda/core/internal/health"
	"github.com/edgeveda/core/internal/metrics"
	"github.com/edgeveda/core/internal/modelmanager"
	"github.com/edgeveda/core/internal/orchestrator"
	"github.com/edgeveda/core/internal/perftrace"
)

// Re-exported value types a host app constructs or receives across the
// Runtime boundary.
type (
	Config           = config.Config
	HealthStatus     = health.Status
	EngineConfig     = domain.EngineConfig
	VisionConfig     = domain.VisionConfig
	GenerateParams   = domain.GenerateParams
	GenerateResult   = domain.GenerateResult
	Token            = domain.Token
	Frame            = domain.Frame
	PixelFormat      = domain.PixelFormat
	TelemetrySample  = domain.TelemetrySample
	Budget           = domain.Budget
	BudgetProfile    = domain.BudgetProfile
	BudgetViolation  = domain.BudgetViolation
	WorkloadID       = domain.WorkloadID
	WorkloadPriority = domain.WorkloadPriority
	MemoryStats      = domain.MemoryStats
	QoSLevel         = domain.QoSLevel
)

// Re-exported constants.
const (
	PixelFormatRGB8 = domain.PixelFormatRGB8

	PriorityLow    = domain.PriorityLow
	PriorityNormal = domain.PriorityNormal
	PriorityHigh   = domain.PriorityHigh

	ProfileConservative = domain.ProfileConservative
	ProfileBalanced     = domain.ProfileBalanced
	ProfilePerformance  = domain.ProfilePerformance
)

// DefaultConfig returns the runtime's zero-configuration defaults.
func DefaultConfig() Config { return config.DefaultConfig() }

// LoadConfig reads a TOML configuration file, falling back to defaults if
// path does not exist.
func LoadConfig(path string) (Config, error) { return config.LoadConfig(path) }

// Runtime is the embeddable core: one instance per model session, wiring
// the text/vision workers, the adaptive scheduler, runtime policy and
// telemetry behind a single façade.
type Runtime struct {
	inner *orchestrator.Runtime
}

// New constructs a Runtime backed by a model store rooted at dataDir.
func New(cfg Config, dataDir string) (*Runtime, error) {
	inner, err := orchestrator.New(cfg, dataDir)
	if err != nil {
		return nil, err
	}
	return &Runtime{inner: inner}, nil
}

// Start launches the runtime's background loops (telemetry, scheduler
// enforcement, health checks). Call once per Runtime.
func (r *Runtime) Start(ctx context.Context) { r.inner.Start(ctx) }

// InitText loads the text model.
func (r *Runtime) InitText(ctx context.Context, cfg EngineConfig) error {
	return r.inner.InitText(ctx, cfg)
}

// InitVision loads the vision backbone and projector models.
func (r *Runtime) InitVision(ctx context.Context, cfg VisionConfig) error {
	return r.inner.InitVision(ctx, cfg)
}

// Generate runs one non-streaming text completion.
func (r *Runtime) Generate(ctx context.Context, prompt string, params GenerateParams) (GenerateResult, error) {
	return r.inner.Generate(ctx, prompt, params)
}

// GenerateStream is Generate's token-by-token counterpart.
func (r *Runtime) GenerateStream(ctx context.Context, prompt string, params GenerateParams, onToken func(Token)) (GenerateResult, error) {
	return r.inner.GenerateStream(ctx, prompt, params, onToken)
}

// DescribeImage captions a single camera Frame.
func (r *Runtime) DescribeImage(ctx context.Context, f Frame, prompt string, params GenerateParams) (GenerateResult, error) {
	return r.inner.DescribeImage(ctx, f, prompt, params)
}

// MemoryStats reports current and historical resident memory.
func (r *Runtime) MemoryStats() MemoryStats { return r.inner.MemoryStats() }

// RegisterWorkload registers an additional workload with the scheduler,
// beyond the built-in "text" and "vision" workloads.
func (r *Runtime) RegisterWorkload(id WorkloadID, priority WorkloadPriority) {
	r.inner.RegisterWorkload(id, priority)
}

// SetBudget installs a static compute budget.
func (r *Runtime) SetBudget(b Budget) { r.inner.SetBudget(b) }

// SetBudgetProfile installs an adaptive compute budget resolved against a
// measured performance baseline.
func (r *Runtime) SetBudgetProfile(p BudgetProfile) { r.inner.SetBudgetProfile(p) }

// ValidateBudget returns human-readable warnings for a candidate Budget.
func (r *Runtime) ValidateBudget(b Budget) []string { return r.inner.ValidateBudget(b) }

// OnBudgetViolation subscribes to the scheduler's violation stream.
func (r *Runtime) OnBudgetViolation() (<-chan BudgetViolation, func()) {
	return r.inner.OnBudgetViolation()
}

// QoSLevel reports the currently active quality-of-service tier.
func (r *Runtime) QoSLevel() QoSLevel { return r.inner.QoSLevel() }

// ModelManager returns the boundary for downloading and inspecting catalog
// models.
func (r *Runtime) ModelManager() *modelmanager.Manager { return r.inner.ModelManager() }

// HealthStatus reports the most recent result of every periodic self-check.
func (r *Runtime) HealthStatus() []HealthStatus { return r.inner.HealthStatus() }

// Metrics returns the runtime's Prometheus registry for a host app to mount
// on its own /metrics endpoint.
func (r *Runtime) Metrics() *metrics.Registry { return r.inner.Metrics() }

// PerfTrace returns the bounded trace buffer.
func (r *Runtime) PerfTrace() *perftrace.Sink { return r.inner.PerfTrace() }

// Dispose frees both workers, stops every background loop, and closes the
// model store. Idempotent.
func (r *Runtime) Dispose(ctx context.Context) error { return r.inner.Dispose(ctx) }
