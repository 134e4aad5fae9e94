package domain

import "context"

// ─── Engine boundary ────────────────────────────────────────────────────────

// Engine abstracts the C-ABI inference engine (llama.cpp/whisper.cpp-style).
// Implementations own all unsafe pointer handling and string lifetime
// discipline; callers never see engine-owned pointers.
type Engine interface {
	InitText(cfg EngineConfig) (EngineHandle, error)
	InitVision(cfg VisionConfig) (EngineHandle, error)
	Generate(ctx context.Context, h EngineHandle, prompt string, params GenerateParams) (GenerateResult, error)
	Stream(ctx context.Context, h EngineHandle, prompt string, params GenerateParams, onToken func(Token)) (GenerateResult, error)
	DescribeImage(ctx context.Context, h EngineHandle, frame Frame, prompt string, params GenerateParams) (GenerateResult, error)
	Free(h EngineHandle) error
	RSSBytes() uint64
	AvailableBytes() uint64
	Version() string
}

// EngineHandle is an opaque reference to a loaded model in the external
// engine, exclusively owned by exactly one Worker.
type EngineHandle interface {
	// Valid reports whether Free has not yet been called on this handle.
	Valid() bool
	// RequestCancel arms the cooperative cancellation flag consulted
	// between tokens by an in-flight Stream call. It is safe to call
	// concurrently with Generate/Stream, out of band from the normal
	// call-serialization rule (§5 concurrency model).
	RequestCancel()
}

// ─── Templates / presets ────────────────────────────────────────────────────

// ChatTemplate formats a message history into a single prompt string. Pure:
// it never touches the engine.
type ChatTemplate interface {
	ID() string
	Format(messages []ChatMessage) string
}

// ─── Telemetry / pressure sources ───────────────────────────────────────────

// PressureSource polls one platform signal source. Implementations are
// swapped per target OS via build tags.
type PressureSource interface {
	Poll() (TelemetrySample, error)
}

// ─── Model registry / manager ───────────────────────────────────────────────

// ModelRegistry is the read-only catalog described in §6.2.
type ModelRegistry interface {
	Lookup(id string) (ModelRef, bool)
	List() []ModelRef
}

// ModelStore abstracts persistent local model metadata storage.
type ModelStore interface {
	Upsert(info ModelInfo) error
	Get(id string) (*ModelInfo, error)
	List() ([]ModelInfo, error)
	Delete(id string) error
	Touch(id string) error
}

// ModelManager is the boundary contract of §6.3: checksum-verified
// downloads with atomic rename and progress events.
type ModelManager interface {
	IsDownloaded(id string) (bool, error)
	Download(ctx context.Context, id string, progress func(DownloadProgress)) error
	PathFor(id string) (string, error)
	Delete(id string) error
}
