// Package perftrace implements the bounded trace ring buffer and optional
// JSONL file sink described in §4.11/§6.4: one JSON object per event, and
// unknown kinds are never emitted. An event's Fields are written as given;
// they are not checked against a per-kind schema.
package perftrace

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/edgeveda/core/internal/domain"
)

// DefaultCapacity is the ring buffer's default event count (§4.11).
const DefaultCapacity = 10_000

var validKinds = map[domain.PerfEventKind]bool{
	domain.EventInferenceStart:  true,
	domain.EventInferenceEnd:    true,
	domain.EventQoSChange:       true,
	domain.EventFrameDrop:       true,
	domain.EventBudgetViolation: true,
	domain.EventBaselineUpdated: true,
	domain.EventTelemetrySample: true,
}

// Sink is the bounded trace buffer. Writes beyond capacity overwrite the
// oldest event (drop-oldest, unlike FrameQueue's drop-newest). An optional
// file writer receives the same events as JSON lines.
type Sink struct {
	mu       sync.Mutex
	buf      []domain.PerfEvent
	next     int
	count    int
	capacity int

	file        *os.File
	enc         *json.Encoder
	writeErrLogged bool
}

// New creates a Sink with the given ring capacity (DefaultCapacity if 0)
// and no file sink. Call SetFile to add one.
func New(capacity int) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Sink{buf: make([]domain.PerfEvent, capacity), capacity: capacity}
}

// SetFile attaches a JSONL file sink; each call to Emit after this also
// appends one line to f.
func (s *Sink) SetFile(f *os.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = f
	s.enc = json.NewEncoder(f)
}

// Emit records one event. Unknown kinds are rejected outright (§6.4). Only
// the first file-write failure of a Sink is logged; every failure is
// otherwise discarded (§7), since PerfTrace is diagnostic, not load-bearing.
// The file sink does not rotate.
func (s *Sink) Emit(ev domain.PerfEvent) error {
	if !validKinds[ev.Kind] {
		return fmt.Errorf("perftrace: refusing to emit unknown event kind %q", ev.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf[s.next] = ev
	s.next = (s.next + 1) % s.capacity
	if s.count < s.capacity {
		s.count++
	}

	if s.enc != nil {
		if err := s.enc.Encode(wireEvent(ev)); err != nil && !s.writeErrLogged {
			log.Printf("perftrace: file write failed, further failures suppressed: %v", err)
			s.writeErrLogged = true
		}
	}
	return nil
}

// Recent returns up to n most recent events, oldest first.
func (s *Sink) Recent(n int) []domain.PerfEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > s.count {
		n = s.count
	}
	out := make([]domain.PerfEvent, n)
	start := (s.next - n + s.capacity) % s.capacity
	for i := 0; i < n; i++ {
		out[i] = s.buf[(start+i)%s.capacity]
	}
	return out
}

// Count reports the number of events currently held (<= capacity).
func (s *Sink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// wireRecord mirrors the §6.4 JSONL schema: "t" for the unix-millisecond
// timestamp, "kind" for the event kind, "w" for an optional workload id,
// remaining fields flattened from Fields.
type wireRecord map[string]any

func wireEvent(ev domain.PerfEvent) wireRecord {
	rec := wireRecord{
		"t":    ev.Timestamp.UnixMilli(),
		"kind": string(ev.Kind),
	}
	if ev.Workload != "" {
		rec["w"] = string(ev.Workload)
	}
	for k, v := range ev.Fields {
		rec[k] = v
	}
	return rec
}
