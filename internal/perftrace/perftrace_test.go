package perftrace

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/edgeveda/core/internal/domain"
)

func TestSink_RejectsUnknownKind(t *testing.T) {
	s := New(10)
	err := s.Emit(domain.PerfEvent{Kind: "not_a_real_kind", Timestamp: time.Now()})
	if err == nil {
		t.Fatal("expected error for unknown event kind")
	}
	if s.Count() != 0 {
		t.Fatal("unknown-kind event must not be recorded")
	}
}

func TestSink_RingBufferDropsOldest(t *testing.T) {
	s := New(3)
	for i := 0; i < 5; i++ {
		s.Emit(domain.PerfEvent{Kind: domain.EventFrameDrop, Timestamp: time.Now(), Fields: map[string]any{"i": i}})
	}
	if s.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", s.Count())
	}
	recent := s.Recent(3)
	if recent[0].Fields["i"] != 2 || recent[2].Fields["i"] != 4 {
		t.Fatalf("unexpected ring contents: %+v", recent)
	}
}

func TestSink_WritesJSONLToFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "trace-*.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	s := New(10)
	s.SetFile(f)
	s.Emit(domain.PerfEvent{Kind: domain.EventQoSChange, Timestamp: time.Now(), Fields: map[string]any{"to": "reduced"}})
	s.Emit(domain.PerfEvent{Kind: domain.EventFrameDrop, Timestamp: time.Now()})

	f.Seek(0, 0)
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line %d not valid JSON: %v", lines, err)
		}
		if _, ok := rec["t"]; !ok {
			t.Fatal("expected \"t\" field in every record")
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("wrote %d lines, want 2", lines)
	}
}

func TestSink_RecentReturnsOldestFirst(t *testing.T) {
	s := New(10)
	s.Emit(domain.PerfEvent{Kind: domain.EventFrameDrop, Fields: map[string]any{"i": 1}})
	s.Emit(domain.PerfEvent{Kind: domain.EventFrameDrop, Fields: map[string]any{"i": 2}})
	recent := s.Recent(2)
	if recent[0].Fields["i"] != 1 || recent[1].Fields["i"] != 2 {
		t.Fatalf("Recent() not ordered oldest-first: %+v", recent)
	}
}
