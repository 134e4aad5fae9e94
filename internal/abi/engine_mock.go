//go:build !cgo

package abi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/edgeveda/core/internal/domain"
)

// MockEngine is the Engine backend built when cgo is disabled: an in-process
// fake the module's tests are written against, also usable by hosts that
// embed the core without a real model file. It never touches cgo. Generation is deterministic: it emits
// "token_<n> " words up to MaxTokens, honoring cooperative cancellation
// between tokens exactly as the cgo backend does between engine callbacks.
type MockEngine struct {
	TokenDelay      time.Duration // per-token pause; default 0 (instant)
	FixedRSSBytes   uint64
	AvailableMemory uint64
	VersionString   string
}

func NewMockEngine() *MockEngine {
	return &MockEngine{
		FixedRSSBytes:   256 << 20,
		AvailableMemory: 2 << 30,
		VersionString:   "mock-engine-0.0.0",
	}
}

func (e *MockEngine) InitText(cfg domain.EngineConfig) (domain.EngineHandle, error) {
	if cfg.ModelPath == "" {
		return nil, domain.NewError(domain.KindConfig, "model_path is required", domain.ErrConfig)
	}
	return newHandle(false), nil
}

func (e *MockEngine) InitVision(cfg domain.VisionConfig) (domain.EngineHandle, error) {
	if cfg.ModelPath == "" || cfg.ProjectorPath == "" {
		return nil, domain.NewError(domain.KindConfig, "model_path and projector_path are required", domain.ErrConfig)
	}
	return newHandle(true), nil
}

func (e *MockEngine) Free(h domain.EngineHandle) error {
	hh, err := asHandle(h)
	if err != nil {
		return err
	}
	hh.freed.Store(true) // idempotent: setting true twice is harmless
	return nil
}

func (e *MockEngine) Generate(ctx context.Context, h domain.EngineHandle, prompt string, params domain.GenerateParams) (domain.GenerateResult, error) {
	hh, err := asHandle(h)
	if err != nil {
		return domain.GenerateResult{}, err
	}
	release, err := hh.acquire()
	if err != nil {
		return domain.GenerateResult{}, err
	}
	defer release()

	n := params.MaxTokens
	if n <= 0 {
		n = 1
	}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return domain.GenerateResult{TokensGenerated: i, StopReason: domain.StopCancelled}, domain.ErrCancelled
		default:
		}
		fmt.Fprintf(&sb, "token_%d ", i)
	}
	return domain.GenerateResult{
		Text:            strings.TrimSpace(sb.String()),
		TokensGenerated: n,
		StopReason:      domain.StopMaxTokens,
	}, nil
}

func (e *MockEngine) Stream(ctx context.Context, h domain.EngineHandle, prompt string, params domain.GenerateParams, onToken func(domain.Token)) (domain.GenerateResult, error) {
	hh, err := asHandle(h)
	if err != nil {
		return domain.GenerateResult{}, err
	}
	release, err := hh.acquire()
	if err != nil {
		return domain.GenerateResult{}, err
	}
	defer release()
	hh.clearCancel()

	n := params.MaxTokens
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		if hh.cancelRequested() {
			return domain.GenerateResult{TokensGenerated: i, StopReason: domain.StopCancelled}, domain.ErrCancelled
		}
		select {
		case <-ctx.Done():
			return domain.GenerateResult{TokensGenerated: i, StopReason: domain.StopCancelled}, domain.ErrCancelled
		default:
		}
		if e.TokenDelay > 0 {
			time.Sleep(e.TokenDelay)
		}
		onToken(domain.Token{Text: fmt.Sprintf("token_%d ", i)})
	}
	return domain.GenerateResult{TokensGenerated: n, StopReason: domain.StopMaxTokens}, nil
}

func (e *MockEngine) DescribeImage(ctx context.Context, h domain.EngineHandle, frame domain.Frame, prompt string, params domain.GenerateParams) (domain.GenerateResult, error) {
	hh, err := asHandle(h)
	if err != nil {
		return domain.GenerateResult{}, err
	}
	release, err := hh.acquire()
	if err != nil {
		return domain.GenerateResult{}, err
	}
	defer release()

	if len(frame.Pixels) != frame.Width*frame.Height*3 {
		return domain.GenerateResult{}, domain.ErrInvalidFrame
	}

	text := fmt.Sprintf("a %dx%d image", frame.Width, frame.Height)
	return domain.GenerateResult{Text: text, TokensGenerated: estimateTokens(text), StopReason: domain.StopEndOfSequence}, nil
}

func (e *MockEngine) RSSBytes() uint64       { return e.FixedRSSBytes }
func (e *MockEngine) AvailableBytes() uint64 { return e.AvailableMemory }
func (e *MockEngine) Version() string        { return e.VersionString }

func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
