// Package domain holds the value types and sentinel errors shared across
// every runtime subsystem. It has no infrastructure dependency: nothing here
// touches cgo, sqlite, or the filesystem.
package domain

import "time"

// ─── Worker ─────────────────────────────────────────────────────────────────

// WorkerState is a Worker's lifecycle state.
type WorkerState int

const (
	Uninitialized WorkerState = iota
	Loading
	Ready
	Generating
	Disposed
)

func (s WorkerState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Generating:
		return "generating"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// WorkerKind distinguishes the modality a Worker serves.
type WorkerKind int

const (
	TextWorker WorkerKind = iota
	VisionWorker
	STTWorker
)

func (k WorkerKind) String() string {
	switch k {
	case TextWorker:
		return "text"
	case VisionWorker:
		return "vision"
	case STTWorker:
		return "stt"
	default:
		return "unknown"
	}
}

// StopReason explains why a generation stopped.
type StopReason int

const (
	StopEndOfSequence StopReason = iota
	StopMaxTokens
	StopStopString
	StopCancelled
	StopError
)

func (r StopReason) String() string {
	switch r {
	case StopEndOfSequence:
		return "eos"
	case StopMaxTokens:
		return "max_tokens"
	case StopStopString:
		return "stop_string"
	case StopCancelled:
		return "cancelled"
	case StopError:
		return "error"
	default:
		return "unknown"
	}
}

// EngineConfig configures a text worker's engine_init call.
type EngineConfig struct {
	ModelPath         string
	ContextSize       int
	GPULayers         int
	Threads           int
	Seed              *int64
	MemoryLimitBytes  int64
	UseMmap           bool
	UseMlock          bool
}

// VisionConfig configures a vision worker's engine_vision_init call.
type VisionConfig struct {
	ModelPath     string
	ProjectorPath string
	ContextSize   int
	Threads       int
}

// GenerateParams carries per-request generation parameters.
type GenerateParams struct {
	RequestID      string
	MaxTokens      int
	Temperature    float32
	TopP           float32
	TopK           int
	RepeatPenalty  float32
	Stop           []string
}

// GenerateResult is the worker's reply to a completed Generate/Stream call.
type GenerateResult struct {
	Text             string
	TokensGenerated  int
	StopReason       StopReason
}

// Token is a single streamed generation unit.
type Token struct {
	Text string
}

// ─── Chat ───────────────────────────────────────────────────────────────────

// ChatRole identifies the speaker of a ChatMessage.
type ChatRole int

const (
	RoleSystem ChatRole = iota
	RoleUser
	RoleAssistant
	RoleSummary
)

func (r ChatRole) String() string {
	switch r {
	case RoleSystem:
		return "system"
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	case RoleSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// ChatMessage is immutable once appended to a ChatSession's history.
type ChatMessage struct {
	Role      ChatRole
	Content   string
	CreatedAt time.Time
}

// ─── Frame / vision ─────────────────────────────────────────────────────────

// PixelFormat identifies a Frame's byte layout. The core requires RGB at
// the boundary (see design note on frame pixel format); BGRA conversion is
// the host app's responsibility.
type PixelFormat int

const (
	PixelFormatRGB8 PixelFormat = iota
)

// Frame is an immutable decoded camera frame.
type Frame struct {
	Pixels      []byte
	Width       int
	Height      int
	PixelFormat PixelFormat
	Timestamp   time.Time
}

// ─── Telemetry ──────────────────────────────────────────────────────────────

// BatteryState mirrors the platform's charge state.
type BatteryState int

const (
	BatteryUnknown BatteryState = iota
	BatteryUnplugged
	BatteryCharging
	BatteryFull
)

func (s BatteryState) String() string {
	switch s {
	case BatteryUnplugged:
		return "unplugged"
	case BatteryCharging:
		return "charging"
	case BatteryFull:
		return "full"
	default:
		return "unknown"
	}
}

// TelemetrySample is an immutable snapshot of platform pressure signals.
type TelemetrySample struct {
	Timestamp      time.Time
	ThermalLevel   int // 0..3: nominal/fair/serious/critical
	BatteryLevel   float64 // 0..1; NaN when unknown (no battery)
	BatteryState   BatteryState
	RSSBytes       uint64
	AvailableBytes uint64
	LowPower       bool
}

// HasBattery reports whether BatteryLevel carries a known reading.
func (s TelemetrySample) HasBattery() bool {
	return s.BatteryLevel == s.BatteryLevel // false for NaN
}

// ─── Monitors ───────────────────────────────────────────────────────────────

// LatencyObservation records one completed request's timing.
type LatencyObservation struct {
	RequestID       string
	StartedAt       time.Time
	CompletedAt     time.Time
	LatencyMS       float64
	TokensGenerated int
}

// ─── QoS / RuntimePolicy ────────────────────────────────────────────────────

// QoSLevel is an ordered quality-of-service tier: Full < Reduced < Minimal < Paused.
type QoSLevel int

const (
	QoSFull QoSLevel = iota
	QoSReduced
	QoSMinimal
	QoSPaused
)

func (l QoSLevel) String() string {
	switch l {
	case QoSFull:
		return "full"
	case QoSReduced:
		return "reduced"
	case QoSMinimal:
		return "minimal"
	case QoSPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// QoSOverride is the concrete set of inference-parameter caps active at a
// QoSLevel. The Worker applies min(request, override) for each field.
type QoSOverride struct {
	VisionFPSCap     int
	VisionMaxSidePx  int
	MaxTokensCap     int
	TextGenAllowed   bool
}

// QoSChanged is emitted whenever RuntimePolicy transitions levels.
type QoSChanged struct {
	From QoSLevel
	To   QoSLevel
	At   time.Time
}

// ─── Budget ─────────────────────────────────────────────────────────────────

// Budget is a declarative record of runtime constraints; a nil pointer field
// means "no constraint for this dimension."
type Budget struct {
	P95LatencyMS          *float64
	BatteryDrainPer10Min  *float64
	MaxThermalLevel       *int
	MemoryCeilingMB       *int64
}

// BudgetProfile is a named tuning that resolves to a concrete Budget against
// a MeasuredBaseline.
type BudgetProfile int

const (
	ProfileConservative BudgetProfile = iota
	ProfileBalanced
	ProfilePerformance
)

func (p BudgetProfile) String() string {
	switch p {
	case ProfileConservative:
		return "conservative"
	case ProfileBalanced:
		return "balanced"
	case ProfilePerformance:
		return "performance"
	default:
		return "unknown"
	}
}

// MeasuredBaseline is the empirically observed performance used as the
// reference point for adaptive budget resolution.
type MeasuredBaseline struct {
	MeasuredP95MS          float64
	MeasuredDrainPer10Min  float64
	CurrentThermalLevel    int
	CurrentRSSMB           float64
	SampleCount            int
	MeasuredAt             time.Time
}

// IsWarm reports whether enough samples have accumulated to trust the
// baseline (sample_count >= warmThreshold).
func (b MeasuredBaseline) IsWarm(warmThreshold int) bool {
	return b.SampleCount >= warmThreshold
}

// ─── Scheduler / workloads ──────────────────────────────────────────────────

// WorkloadID identifies a registered workload (e.g. "vision", "text").
type WorkloadID string

// WorkloadPriority is the scheduling priority of a registered workload.
type WorkloadPriority int

const (
	PriorityLow WorkloadPriority = iota
	PriorityNormal
	PriorityHigh
)

func (p WorkloadPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// BudgetConstraint identifies which budget dimension a violation concerns.
type BudgetConstraint int

const (
	ConstraintP95Latency BudgetConstraint = iota
	ConstraintBatteryDrain
	ConstraintThermal
	ConstraintMemoryCeiling
)

func (c BudgetConstraint) String() string {
	switch c {
	case ConstraintP95Latency:
		return "p95_latency"
	case ConstraintBatteryDrain:
		return "battery_drain"
	case ConstraintThermal:
		return "thermal"
	case ConstraintMemoryCeiling:
		return "memory_ceiling"
	default:
		return "unknown"
	}
}

// BudgetViolation is emitted by the scheduler's enforcement loop whenever a
// measured metric exceeds the resolved budget on some dimension.
type BudgetViolation struct {
	Constraint             BudgetConstraint
	CurrentValue           float64
	BudgetValue            float64
	MitigationDescription  string
	Timestamp              time.Time
	Mitigated              bool
	ObserveOnly            bool
}

// ─── PerfTrace ──────────────────────────────────────────────────────────────

// PerfEventKind enumerates the fixed set of PerfTrace event kinds. Unknown
// kinds must never be emitted (§6.4).
type PerfEventKind string

const (
	EventInferenceStart PerfEventKind = "inference_start"
	EventInferenceEnd   PerfEventKind = "inference_end"
	EventQoSChange      PerfEventKind = "qos_change"
	EventFrameDrop      PerfEventKind = "frame_drop"
	EventBudgetViolation PerfEventKind = "budget_violation"
	EventBaselineUpdated PerfEventKind = "baseline_updated"
	EventTelemetrySample PerfEventKind = "telemetry_sample"
)

// PerfEvent is a single structured trace record.
type PerfEvent struct {
	Timestamp time.Time
	Kind      PerfEventKind
	Workload  WorkloadID
	Fields    map[string]any
}

// ─── Model registry / manager ───────────────────────────────────────────────

// ModelKind classifies a catalog entry's role.
type ModelKind int

const (
	ModelKindText ModelKind = iota
	ModelKindVisionBackbone
	ModelKindVisionProjector
)

func (k ModelKind) String() string {
	switch k {
	case ModelKindText:
		return "text"
	case ModelKindVisionBackbone:
		return "vision_backbone"
	case ModelKindVisionProjector:
		return "vision_projector"
	default:
		return "unknown"
	}
}

// ModelRef is a catalog entry: a read-only, external data row describing a
// downloadable model (§6.2).
type ModelRef struct {
	ID           string
	DisplayName  string
	SizeBytes    int64
	URL          string
	SHA256       string
	Format       string
	Quantization string
	Kind         ModelKind
	ChatTemplate string
	ContextSize  int
}

// ModelInfo is the persisted local record of a downloaded model.
type ModelInfo struct {
	ID         string
	SHA256     string
	SizeBytes  int64
	LocalPath  string
	Format     string
	Quantization string
	PulledAt   time.Time
	LastUsed   time.Time
}

// DownloadProgress reports download status for ModelManager.Download.
type DownloadProgress struct {
	DownloadedBytes int64
	TotalBytes      int64
	SpeedBPS        *float64
	ETASeconds      *float64
	Done            bool
}

// MemoryStats is the orchestrator's memory_stats() snapshot (§4.10),
// combining the engine's own reading with the ResourceMonitor window.
type MemoryStats struct {
	RSSBytes       uint64
	AvailableBytes uint64
	PeakRSSBytes   uint64
	AverageRSSBytes uint64
}
