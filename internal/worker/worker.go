// Package worker implements the Worker state machine (§4.2): one dedicated
// goroutine owns a single EngineHandle, draining a FIFO message queue, and
// broadcasting lifecycle events to any number of subscribers. Cancel acts
// out-of-band on the handle and never waits behind a Generate/Stream in
// progress; Dispose goes through the FIFO queue like the other messages and
// runs only after the request in progress has finished.
package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/edgeveda/core/internal/domain"
)

// EventKind enumerates the broadcast events a Worker emits.
type EventKind int

const (
	EventTokenEmitted EventKind = iota
	EventGenerationStarted
	EventGenerationCompleted
	EventMemoryPressureHandled
)

// Event is one broadcast notification from a Worker.
type Event struct {
	Kind   EventKind
	Token  domain.Token
	Result domain.GenerateResult
}

// request is one FIFO-queued unit of work. Exactly one of its payload
// fields is meaningful, selected by kind.
type request struct {
	kind reqKind
	ctx  context.Context

	textCfg   domain.EngineConfig
	visionCfg domain.VisionConfig
	prompt    string
	params    domain.GenerateParams
	onToken   func(domain.Token)
	frame     domain.Frame

	reply chan reply
}

type reqKind int

const (
	reqInitText reqKind = iota
	reqInitVision
	reqGenerate
	reqStream
	reqDescribeImage
	reqReset
	reqDispose
)

type reply struct {
	result domain.GenerateResult
	err    error
}

// Worker owns exactly one EngineHandle and runs its FIFO message loop on a
// single goroutine, the closest Go approximation of the one-OS-thread-per-
// worker model (§5): the owning goroutine is the only thing that ever
// touches the underlying handle.
type Worker struct {
	engine domain.Engine
	kind   domain.WorkerKind

	state atomic.Int32 // domain.WorkerState

	reqCh chan request
	done  chan struct{}

	mu     sync.Mutex
	handle domain.EngineHandle

	listeners map[int]chan Event
	nextID    int
	evMu      sync.Mutex
}

// New creates a Worker in state Uninitialized and starts its message loop.
func New(engine domain.Engine, kind domain.WorkerKind) *Worker {
	w := &Worker{
		engine:    engine,
		kind:      kind,
		reqCh:     make(chan request),
		done:      make(chan struct{}),
		listeners: make(map[int]chan Event),
	}
	w.state.Store(int32(domain.Uninitialized))
	go w.run()
	return w
}

func (w *Worker) State() domain.WorkerState {
	return domain.WorkerState(w.state.Load())
}

func (w *Worker) setState(s domain.WorkerState) {
	w.state.Store(int32(s))
}

// Subscribe returns a channel of broadcast Events and an unsubscribe func.
func (w *Worker) Subscribe() (<-chan Event, func()) {
	w.evMu.Lock()
	defer w.evMu.Unlock()
	id := w.nextID
	w.nextID++
	ch := make(chan Event, 32)
	w.listeners[id] = ch
	return ch, func() {
		w.evMu.Lock()
		defer w.evMu.Unlock()
		delete(w.listeners, id)
	}
}

func (w *Worker) emit(ev Event) {
	w.evMu.Lock()
	defer w.evMu.Unlock()
	for _, ch := range w.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// InitText loads a text model and transitions Uninitialized -> Ready (or
// back to Uninitialized on a fatal load failure, per §4.2).
func (w *Worker) InitText(ctx context.Context, cfg domain.EngineConfig) error {
	return w.send(ctx, request{kind: reqInitText, textCfg: cfg})
}

// InitVision loads a vision model the same way InitText loads a text model.
func (w *Worker) InitVision(ctx context.Context, cfg domain.VisionConfig) error {
	return w.send(ctx, request{kind: reqInitVision, visionCfg: cfg})
}

// Generate blocks until the model produces a complete result. Refused with
// ErrWorkerBusy unless the Worker is Ready.
func (w *Worker) Generate(ctx context.Context, prompt string, params domain.GenerateParams) (domain.GenerateResult, error) {
	return w.call(ctx, request{kind: reqGenerate, prompt: prompt, params: params})
}

// Stream is Generate's token-by-token counterpart.
func (w *Worker) Stream(ctx context.Context, prompt string, params domain.GenerateParams, onToken func(domain.Token)) (domain.GenerateResult, error) {
	return w.call(ctx, request{kind: reqStream, prompt: prompt, params: params, onToken: onToken})
}

// DescribeImage runs a vision model's captioning path over a single Frame.
func (w *Worker) DescribeImage(ctx context.Context, frame domain.Frame, prompt string, params domain.GenerateParams) (domain.GenerateResult, error) {
	return w.call(ctx, request{kind: reqDescribeImage, frame: frame, prompt: prompt, params: params})
}

// Cancel arms the in-flight Stream's cooperative cancellation flag and is
// never queued behind other messages: it acts directly on the handle.
func (w *Worker) Cancel() {
	w.mu.Lock()
	h := w.handle
	w.mu.Unlock()
	if h != nil {
		h.RequestCancel()
	}
}

// Reset returns a Generating/Ready worker to a clean Ready state without
// unloading the model.
func (w *Worker) Reset(ctx context.Context) error {
	return w.send(ctx, request{kind: reqReset})
}

// Dispose frees the underlying handle and stops the message loop.
// Idempotent: once Disposed, further calls return ErrDisposed.
func (w *Worker) Dispose(ctx context.Context) error {
	err := w.send(ctx, request{kind: reqDispose})
	return err
}

func (w *Worker) send(ctx context.Context, req request) error {
	_, err := w.call(ctx, req)
	return err
}

func (w *Worker) call(ctx context.Context, req request) (domain.GenerateResult, error) {
	if w.State() == domain.Disposed {
		return domain.GenerateResult{}, domain.ErrDisposed
	}
	switch req.kind {
	case reqGenerate, reqStream, reqDescribeImage:
		if w.State() != domain.Ready {
			return domain.GenerateResult{}, domain.ErrWorkerBusy
		}
	}
	req.reply = make(chan reply, 1)
	req.ctx = ctx
	select {
	case w.reqCh <- req:
	case <-ctx.Done():
		return domain.GenerateResult{}, ctx.Err()
	case <-w.done:
		return domain.GenerateResult{}, domain.ErrDisposed
	}
	select {
	case r := <-req.reply:
		return r.result, r.err
	case <-ctx.Done():
		return domain.GenerateResult{}, ctx.Err()
	}
}

// run is the Worker's single owning goroutine: the only code path that ever
// touches w.handle or calls into w.engine.
func (w *Worker) run() {
	for req := range w.reqCh {
		switch req.kind {
		case reqInitText:
			w.handleInit(req, func() (domain.EngineHandle, error) { return w.engine.InitText(req.textCfg) })
		case reqInitVision:
			w.handleInit(req, func() (domain.EngineHandle, error) { return w.engine.InitVision(req.visionCfg) })
		case reqGenerate:
			w.handleGenerate(req)
		case reqStream:
			w.handleStream(req)
		case reqDescribeImage:
			w.handleDescribeImage(req)
		case reqReset:
			w.handleReset(req)
		case reqDispose:
			w.handleDispose(req)
			return
		}
	}
}

func (w *Worker) handleInit(req request, load func() (domain.EngineHandle, error)) {
	if w.State() != domain.Uninitialized {
		req.reply <- reply{err: domain.ErrWorkerBusy}
		return
	}
	w.setState(domain.Loading)
	h, err := load()
	if err != nil {
		w.setState(domain.Uninitialized) // fatal: handle never allocated
		req.reply <- reply{err: err}
		return
	}
	w.mu.Lock()
	w.handle = h
	w.mu.Unlock()
	w.setState(domain.Ready)
	req.reply <- reply{}
}

func (w *Worker) requireReady(req request) bool {
	if w.State() != domain.Ready {
		req.reply <- reply{err: domain.ErrWorkerBusy}
		return false
	}
	return true
}

func (w *Worker) handleGenerate(req request) {
	if !w.requireReady(req) {
		return
	}
	w.setState(domain.Generating)
	w.emit(Event{Kind: EventGenerationStarted})

	w.mu.Lock()
	h := w.handle
	w.mu.Unlock()

	result, err := w.engine.Generate(req.ctx, h, req.prompt, req.params)
	w.finishGeneration(req, result, err)
}

func (w *Worker) handleStream(req request) {
	if !w.requireReady(req) {
		return
	}
	w.setState(domain.Generating)
	w.emit(Event{Kind: EventGenerationStarted})

	w.mu.Lock()
	h := w.handle
	w.mu.Unlock()

	onToken := func(t domain.Token) {
		w.emit(Event{Kind: EventTokenEmitted, Token: t})
		if req.onToken != nil {
			req.onToken(t)
		}
	}
	result, err := w.engine.Stream(req.ctx, h, req.prompt, req.params, onToken)
	w.finishGeneration(req, result, err)
}

func (w *Worker) handleDescribeImage(req request) {
	if !w.requireReady(req) {
		return
	}
	w.setState(domain.Generating)
	w.emit(Event{Kind: EventGenerationStarted})

	w.mu.Lock()
	h := w.handle
	w.mu.Unlock()

	result, err := w.engine.DescribeImage(req.ctx, h, req.frame, req.prompt, req.params)
	w.finishGeneration(req, result, err)
}

// finishGeneration always returns the Worker to Ready: a mid-stream error
// (GenFailed) leaves the model loaded, and a cooperative cancellation is not
// a true failure (§7).
func (w *Worker) finishGeneration(req request, result domain.GenerateResult, err error) {
	w.setState(domain.Ready)
	w.emit(Event{Kind: EventGenerationCompleted, Result: result})
	req.reply <- reply{result: result, err: err}
}

func (w *Worker) handleReset(req request) {
	if w.State() == domain.Uninitialized || w.State() == domain.Disposed {
		req.reply <- reply{err: domain.ErrWorkerBusy}
		return
	}
	w.setState(domain.Ready)
	req.reply <- reply{}
}

func (w *Worker) handleDispose(req request) {
	w.mu.Lock()
	h := w.handle
	w.mu.Unlock()

	var err error
	if h != nil {
		err = w.engine.Free(h)
	}
	w.setState(domain.Disposed)
	close(w.done)
	req.reply <- reply{err: err}

	w.evMu.Lock()
	for _, ch := range w.listeners {
		close(ch)
	}
	w.listeners = nil
	w.evMu.Unlock()
}
