// Package abi wraps the external inference engine's C surface (§4.1, §6.1).
// It owns all unsafe pointer handling and string lifetime discipline: every
// C string crossing the boundary is copied immediately and freed on the side
// that allocated it, so no engine-owned pointer is ever exposed outward.
//
// Two backends satisfy domain.Engine:
//
//   - engine_cgo.go (build tag "cgo"): genuine cgo bindings against the
//     engine's C ABI, used in production builds linked against the engine
//     library.
//   - engine_mock.go (built only when cgo is disabled, CGO_ENABLED=0): an
//     in-process backend the module's tests are written against, also
//     usable by hosts that embed the core without a real model file. Go
//     enables cgo by default wherever a C compiler is present, so the tests
//     run with CGO_ENABLED=0.
package abi

import (
	"sync"
	"sync/atomic"

	"github.com/edgeveda/core/internal/domain"
)

// handle implements domain.EngineHandle. It also carries the cooperative
// cancellation flag and the call-serialization lock the wrapper requires:
// concurrent calls on the same handle are disallowed and return EngineBusy.
type handle struct {
	id       uint64
	vision   bool
	mu       sync.Mutex
	busy     atomic.Bool
	freed    atomic.Bool
	cancel   atomic.Bool
}

func (h *handle) Valid() bool { return !h.freed.Load() }

// RequestCancel implements domain.EngineHandle.
func (h *handle) RequestCancel() { h.requestCancel() }

var nextHandleID atomic.Uint64

func newHandle(vision bool) *handle {
	return &handle{id: nextHandleID.Add(1), vision: vision}
}

// acquire serializes all calls touching this handle, returning ErrEngineBusy
// if another call is already in flight.
func (h *handle) acquire() (func(), error) {
	if h.freed.Load() {
		return nil, domain.ErrEngineHandleFreed
	}
	if !h.busy.CompareAndSwap(false, true) {
		return nil, domain.ErrEngineBusy
	}
	h.mu.Lock()
	return func() {
		h.mu.Unlock()
		h.busy.Store(false)
	}, nil
}

// requestCancel arms the cooperative cancellation flag consulted between
// tokens during a Stream call.
func (h *handle) requestCancel() { h.cancel.Store(true) }

func (h *handle) cancelRequested() bool { return h.cancel.Load() }

func (h *handle) clearCancel() { h.cancel.Store(false) }

func asHandle(h domain.EngineHandle) (*handle, error) {
	hh, ok := h.(*handle)
	if !ok || hh == nil {
		return nil, domain.ErrEngineHandleFreed
	}
	return hh, nil
}
