//go:build !cgo

package abi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edgeveda/core/internal/domain"
)

func TestMockEngine_InitTextRequiresModelPath(t *testing.T) {
	e := NewMockEngine()
	if _, err := e.InitText(domain.EngineConfig{}); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

func TestMockEngine_GenerateRespectsMaxTokens(t *testing.T) {
	e := NewMockEngine()
	h, err := e.InitText(domain.EngineConfig{ModelPath: "m.gguf"})
	if err != nil {
		t.Fatalf("InitText: %v", err)
	}
	res, err := e.Generate(context.Background(), h, "hi", domain.GenerateParams{MaxTokens: 5})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.TokensGenerated != 5 {
		t.Fatalf("TokensGenerated = %d, want 5", res.TokensGenerated)
	}
}

func TestMockEngine_ConcurrentCallsReturnBusy(t *testing.T) {
	e := NewMockEngine()
	e.TokenDelay = 20 * time.Millisecond
	h, _ := e.InitText(domain.EngineConfig{ModelPath: "m.gguf"})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := e.Stream(context.Background(), h, "hi", domain.GenerateParams{MaxTokens: 20}, func(domain.Token) {})
		errs[0] = err
	}()
	time.Sleep(5 * time.Millisecond)
	go func() {
		defer wg.Done()
		_, err := e.Generate(context.Background(), h, "hi", domain.GenerateParams{MaxTokens: 1})
		errs[1] = err
	}()
	wg.Wait()

	if errs[1] != domain.ErrEngineBusy {
		t.Fatalf("second call error = %v, want ErrEngineBusy", errs[1])
	}
}

func TestMockEngine_StreamCancellation(t *testing.T) {
	e := NewMockEngine()
	e.TokenDelay = 5 * time.Millisecond
	h, _ := e.InitText(domain.EngineConfig{ModelPath: "m.gguf"})
	hh, _ := asHandle(h)

	tokenCount := 0
	go func() {
		time.Sleep(15 * time.Millisecond)
		hh.requestCancel()
	}()

	res, err := e.Stream(context.Background(), h, "hi", domain.GenerateParams{MaxTokens: 100}, func(domain.Token) { tokenCount++ })
	if err != domain.ErrCancelled {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if res.StopReason != domain.StopCancelled {
		t.Fatalf("StopReason = %v, want StopCancelled", res.StopReason)
	}
	if res.TokensGenerated < 1 {
		t.Fatalf("expected some tokens before cancellation, got %d", res.TokensGenerated)
	}
}

func TestMockEngine_FreeIsIdempotent(t *testing.T) {
	e := NewMockEngine()
	h, _ := e.InitText(domain.EngineConfig{ModelPath: "m.gguf"})
	if err := e.Free(h); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if err := e.Free(h); err != nil {
		t.Fatalf("second Free: %v", err)
	}
	if h.Valid() {
		t.Fatal("handle should be invalid after Free")
	}
}

func TestMockEngine_DescribeImageValidatesLayout(t *testing.T) {
	e := NewMockEngine()
	h, _ := e.InitVision(domain.VisionConfig{ModelPath: "m.gguf", ProjectorPath: "p.gguf"})

	_, err := e.DescribeImage(context.Background(), h, domain.Frame{Pixels: []byte{1, 2, 3}, Width: 2, Height: 2}, "describe", domain.GenerateParams{})
	if err != domain.ErrInvalidFrame {
		t.Fatalf("err = %v, want ErrInvalidFrame", err)
	}

	ok := domain.Frame{Pixels: make([]byte, 2*2*3), Width: 2, Height: 2}
	res, err := e.DescribeImage(context.Background(), h, ok, "describe", domain.GenerateParams{})
	if err != nil {
		t.Fatalf("DescribeImage: %v", err)
	}
	if res.Text == "" {
		t.Fatal("expected non-empty description")
	}
}
