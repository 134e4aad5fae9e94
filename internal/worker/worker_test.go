package worker

import (
	"context"
	"testing"
	"time"

	"github.com/edgeveda/core/internal/abi"
	"github.com/edgeveda/core/internal/domain"
)

func newReadyWorker(t *testing.T) *Worker {
	t.Helper()
	w := New(abi.NewMockEngine(), domain.TextWorker)
	if err := w.InitText(context.Background(), domain.EngineConfig{ModelPath: "/models/test.gguf"}); err != nil {
		t.Fatalf("InitText: %v", err)
	}
	if w.State() != domain.Ready {
		t.Fatalf("State = %v, want Ready", w.State())
	}
	return w
}

func TestWorker_InitTextFailureStaysUninitialized(t *testing.T) {
	w := New(abi.NewMockEngine(), domain.TextWorker)
	err := w.InitText(context.Background(), domain.EngineConfig{})
	if err == nil {
		t.Fatal("expected error for empty model path")
	}
	if w.State() != domain.Uninitialized {
		t.Fatalf("State = %v, want Uninitialized after fatal load failure", w.State())
	}
}

func TestWorker_GenerateReturnsToReady(t *testing.T) {
	w := newReadyWorker(t)
	result, err := w.Generate(context.Background(), "hello", domain.GenerateParams{MaxTokens: 5})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.TokensGenerated != 5 {
		t.Fatalf("TokensGenerated = %d, want 5", result.TokensGenerated)
	}
	if w.State() != domain.Ready {
		t.Fatalf("State = %v, want Ready after completion", w.State())
	}
}

func TestWorker_ConcurrentGenerateRefusedBusy(t *testing.T) {
	w := newReadyWorker(t)
	// Keep the stream in flight long enough for the second call to overlap it.
	w.engine.(*abi.MockEngine).TokenDelay = 5 * time.Millisecond

	started := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		_, err := w.Stream(context.Background(), "hello", domain.GenerateParams{MaxTokens: 50}, func(domain.Token) {
			select {
			case started <- struct{}{}:
			default:
			}
		})
		errCh <- err
	}()

	<-started
	_, err := w.Generate(context.Background(), "hello again", domain.GenerateParams{MaxTokens: 1})
	if err != domain.ErrWorkerBusy {
		t.Fatalf("second call err = %v, want ErrWorkerBusy", err)
	}
	<-errCh
}

func TestWorker_CancelStopsStreamEarly(t *testing.T) {
	w := newReadyWorker(t)
	eng := w.engine.(*abi.MockEngine)
	eng.TokenDelay = 5 * time.Millisecond

	started := make(chan struct{}, 1)
	var tokens int
	resultCh := make(chan domain.GenerateResult, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := w.Stream(context.Background(), "hello", domain.GenerateParams{MaxTokens: 1000}, func(domain.Token) {
			tokens++
			select {
			case started <- struct{}{}:
			default:
			}
		})
		resultCh <- result
		errCh <- err
	}()

	<-started
	time.Sleep(20 * time.Millisecond)
	w.Cancel()

	result := <-resultCh
	err := <-errCh
	if err != domain.ErrCancelled {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if result.StopReason != domain.StopCancelled {
		t.Fatalf("StopReason = %v, want StopCancelled", result.StopReason)
	}
	if w.State() != domain.Ready {
		t.Fatalf("State = %v, want Ready after cancellation", w.State())
	}
}

func TestWorker_DisposeIsIdempotentAndRejectsFurtherCalls(t *testing.T) {
	w := newReadyWorker(t)
	if err := w.Dispose(context.Background()); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if w.State() != domain.Disposed {
		t.Fatalf("State = %v, want Disposed", w.State())
	}
	if err := w.Dispose(context.Background()); err != domain.ErrDisposed {
		t.Fatalf("second Dispose err = %v, want ErrDisposed", err)
	}
	if _, err := w.Generate(context.Background(), "x", domain.GenerateParams{MaxTokens: 1}); err != domain.ErrDisposed {
		t.Fatalf("Generate after Dispose err = %v, want ErrDisposed", err)
	}
}

func TestWorker_EmitsLifecycleEvents(t *testing.T) {
	w := newReadyWorker(t)
	events, unsub := w.Subscribe()
	defer unsub()

	_, err := w.Generate(context.Background(), "hello", domain.GenerateParams{MaxTokens: 2})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var kinds []EventKind
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for lifecycle events")
		}
	}
	if len(kinds) != 2 || kinds[0] != EventGenerationStarted || kinds[1] != EventGenerationCompleted {
		t.Fatalf("events = %v, want [Started, Completed]", kinds)
	}
}
