//go:build cgo

package abi

/*
#cgo LDFLAGS: -lengine
#include <stdlib.h>
#include <stdint.h>

typedef struct engine_handle engine_handle;

typedef struct {
	const char *model_path;
	int context_size;
	int gpu_layers;
	int threads;
	int64_t seed;
	int has_seed;
	int use_mmap;
	int use_mlock;
} engine_text_config;

typedef struct {
	const char *model_path;
	const char *projector_path;
	int context_size;
	int threads;
} engine_vision_config;

typedef struct {
	int max_tokens;
	float temperature;
	float top_p;
	int top_k;
	float repeat_penalty;
} engine_gen_params;

extern engine_handle *engine_init(engine_text_config cfg, int *error_code);
extern engine_handle *engine_vision_init(engine_vision_config cfg, int *error_code);
extern void engine_free(engine_handle *h);
extern char *engine_generate(engine_handle *h, const char *prompt, engine_gen_params params, int *error_code);
extern char *engine_describe(engine_handle *h, const unsigned char *rgb, int w, int hh, const char *prompt, engine_gen_params params, int *error_code);
extern void engine_free_string(char *p);
extern uint64_t engine_rss_bytes(void);
extern uint64_t engine_available_bytes(void);
extern const char *engine_version(void);

typedef void (*on_token_fn)(void *ctx, const char *utf8);
typedef void (*on_done_fn)(void *ctx, int reason);
extern int engine_stream(engine_handle *h, const char *prompt, engine_gen_params params,
	on_token_fn on_token, on_done_fn on_done, void *ctx, int *cancel_flag);

extern void goOnToken(void *ctx, char *utf8);
extern void goOnDone(void *ctx, int reason);
*/
import "C"

import (
	"context"
	"sync"
	"time"
	"unsafe"

	"github.com/edgeveda/core/internal/domain"
)

// CGOEngine is the production Engine backend: genuine cgo bindings over the
// inference engine's C ABI. Built only with the "cgo" tag since it requires
// the engine library to be present at link time.
type CGOEngine struct {
	mu       sync.Mutex
	handles  map[uint64]*C.engine_handle
}

func NewCGOEngine() *CGOEngine {
	return &CGOEngine{handles: make(map[uint64]*C.engine_handle)}
}

func (e *CGOEngine) InitText(cfg domain.EngineConfig) (domain.EngineHandle, error) {
	cPath := C.CString(cfg.ModelPath)
	defer C.free(unsafe.Pointer(cPath))

	var seed C.int64_t
	var hasSeed C.int
	if cfg.Seed != nil {
		seed = C.int64_t(*cfg.Seed)
		hasSeed = 1
	}

	ccfg := C.engine_text_config{
		model_path:   cPath,
		context_size: C.int(cfg.ContextSize),
		gpu_layers:   C.int(cfg.GPULayers),
		threads:      C.int(cfg.Threads),
		seed:         seed,
		has_seed:     hasSeed,
		use_mmap:     boolToC(cfg.UseMmap),
		use_mlock:    boolToC(cfg.UseMlock),
	}

	var errCode C.int
	ch := C.engine_init(ccfg, &errCode)
	if errCode != 0 || ch == nil {
		return nil, domain.NewError(domain.KindModelLoad, "engine_init failed", nil)
	}

	h := newHandle(false)
	e.mu.Lock()
	e.handles[h.id] = ch
	e.mu.Unlock()
	return h, nil
}

func (e *CGOEngine) InitVision(cfg domain.VisionConfig) (domain.EngineHandle, error) {
	cPath := C.CString(cfg.ModelPath)
	defer C.free(unsafe.Pointer(cPath))
	cProj := C.CString(cfg.ProjectorPath)
	defer C.free(unsafe.Pointer(cProj))

	ccfg := C.engine_vision_config{
		model_path:     cPath,
		projector_path: cProj,
		context_size:   C.int(cfg.ContextSize),
		threads:        C.int(cfg.Threads),
	}

	var errCode C.int
	ch := C.engine_vision_init(ccfg, &errCode)
	if errCode != 0 || ch == nil {
		return nil, domain.NewError(domain.KindModelLoad, "engine_vision_init failed", nil)
	}

	h := newHandle(true)
	e.mu.Lock()
	e.handles[h.id] = ch
	e.mu.Unlock()
	return h, nil
}

func (e *CGOEngine) cHandle(h *handle) *C.engine_handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handles[h.id]
}

func toCParams(p domain.GenerateParams) C.engine_gen_params {
	return C.engine_gen_params{
		max_tokens:     C.int(p.MaxTokens),
		temperature:    C.float(p.Temperature),
		top_p:          C.float(p.TopP),
		top_k:          C.int(p.TopK),
		repeat_penalty: C.float(p.RepeatPenalty),
	}
}

func (e *CGOEngine) Generate(ctx context.Context, handleIface domain.EngineHandle, prompt string, params domain.GenerateParams) (domain.GenerateResult, error) {
	hh, err := asHandle(handleIface)
	if err != nil {
		return domain.GenerateResult{}, err
	}
	release, err := hh.acquire()
	if err != nil {
		return domain.GenerateResult{}, err
	}
	defer release()

	ch := e.cHandle(hh)
	cPrompt := C.CString(prompt)
	defer C.free(unsafe.Pointer(cPrompt))

	var errCode C.int
	cResult := C.engine_generate(ch, cPrompt, toCParams(params), &errCode)
	if errCode != 0 {
		return domain.GenerateResult{}, domain.NewError(domain.KindGeneration, "engine_generate failed", nil)
	}
	defer C.engine_free_string(cResult)

	text := C.GoString(cResult)
	return domain.GenerateResult{Text: text, TokensGenerated: estimateTokens(text), StopReason: domain.StopEndOfSequence}, nil
}

// streamRegistry maps an opaque context pointer to the Go callback for the
// duration of one engine_stream call, since cgo callbacks cannot close over
// Go values directly.
var (
	streamMu  sync.Mutex
	streamReg = map[uintptr]func(domain.Token){}
	streamSeq uintptr
)

//export goOnToken
func goOnToken(ctx unsafe.Pointer, utf8 *C.char) {
	streamMu.Lock()
	fn := streamReg[uintptr(ctx)]
	streamMu.Unlock()
	if fn != nil {
		fn(domain.Token{Text: C.GoString(utf8)})
	}
}

//export goOnDone
func goOnDone(ctx unsafe.Pointer, reason C.int) {
	_ = reason // completion is observed via engine_stream's return value
}

func (e *CGOEngine) Stream(ctx context.Context, handleIface domain.EngineHandle, prompt string, params domain.GenerateParams, onToken func(domain.Token)) (domain.GenerateResult, error) {
	hh, err := asHandle(handleIface)
	if err != nil {
		return domain.GenerateResult{}, err
	}
	release, err := hh.acquire()
	if err != nil {
		return domain.GenerateResult{}, err
	}
	defer release()
	hh.clearCancel()

	ch := e.cHandle(hh)
	cPrompt := C.CString(prompt)
	defer C.free(unsafe.Pointer(cPrompt))

	streamMu.Lock()
	streamSeq++
	token := streamSeq
	streamReg[token] = onToken
	streamMu.Unlock()
	defer func() {
		streamMu.Lock()
		delete(streamReg, token)
		streamMu.Unlock()
	}()

	tokens := 0
	wrapped := func(t domain.Token) { tokens++; onToken(t) }
	streamMu.Lock()
	streamReg[token] = wrapped
	streamMu.Unlock()

	cancelFlag := C.int(0)
	go func() {
		// poll the caller's context and flip the cooperative cancel flag;
		// engine_stream consults *cancel_flag between tokens.
		<-ctx.Done()
		hh.requestCancel()
	}()
	go func() {
		for !hh.cancelRequested() {
			time.Sleep(10 * time.Millisecond)
			if hh.cancelRequested() {
				cancelFlag = 1
				return
			}
		}
	}()

	errCode := C.engine_stream(ch, cPrompt, toCParams(params),
		C.on_token_fn(C.goOnToken), C.on_done_fn(C.goOnDone),
		unsafe.Pointer(token), &cancelFlag)

	if hh.cancelRequested() {
		return domain.GenerateResult{TokensGenerated: tokens, StopReason: domain.StopCancelled}, domain.ErrCancelled
	}
	if errCode != 0 {
		return domain.GenerateResult{TokensGenerated: tokens}, domain.NewError(domain.KindGeneration, "engine_stream failed", nil)
	}
	return domain.GenerateResult{TokensGenerated: tokens, StopReason: domain.StopEndOfSequence}, nil
}

func (e *CGOEngine) DescribeImage(ctx context.Context, handleIface domain.EngineHandle, frame domain.Frame, prompt string, params domain.GenerateParams) (domain.GenerateResult, error) {
	hh, err := asHandle(handleIface)
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

	ch := e.cHandle(hh)
	cPrompt := C.CString(prompt)
	defer C.free(unsafe.Pointer(cPrompt))

	var errCode C.int
	cResult := C.engine_describe(ch, (*C.uchar)(unsafe.Pointer(&frame.Pixels[0])),
		C.int(frame.Width), C.int(frame.Height), cPrompt, toCParams(params), &errCode)
	if errCode != 0 {
		return domain.GenerateResult{}, domain.NewError(domain.KindGeneration, "engine_describe failed", nil)
	}
	defer C.engine_free_string(cResult)

	text := C.GoString(cResult)
	return domain.GenerateResult{Text: text, TokensGenerated: estimateTokens(text), StopReason: domain.StopEndOfSequence}, nil
}

func (e *CGOEngine) Free(handleIface domain.EngineHandle) error {
	hh, err := asHandle(handleIface)
	if err != nil {
		return err
	}
	if !hh.freed.CompareAndSwap(false, true) {
		return nil // idempotent
	}
	e.mu.Lock()
	ch := e.handles[hh.id]
	delete(e.handles, hh.id)
	e.mu.Unlock()
	if ch != nil {
		C.engine_free(ch)
	}
	return nil
}

func (e *CGOEngine) RSSBytes() uint64       { return uint64(C.engine_rss_bytes()) }
func (e *CGOEngine) AvailableBytes() uint64 { return uint64(C.engine_available_bytes()) }
func (e *CGOEngine) Version() string        { return C.GoString(C.engine_version()) }

func boolToC(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

func estimateTokens(s string) int {
	// Rough heuristic when the engine does not report a token count
	// directly; refined counts come from the engine's own usage stats
	// where available.
	return (len(s) + 3) / 4
}
