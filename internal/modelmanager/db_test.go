package modelmanager

import (
	"testing"
	"time"

	"github.com/edgeveda/core/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := OpenDB(dir)
	if err != nil {
		t.Fatalf("OpenDB() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenDB_CreatesDatabase(t *testing.T) {
	newTestDB(t)
}

func TestDB_UpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	info := domain.ModelInfo{
		ID: "m1", SHA256: "abc123", SizeBytes: 1024,
		LocalPath: "/data/m1.bin", Format: "gguf", Quantization: "Q4_K_M",
		PulledAt: time.Now(),
	}
	if err := db.Upsert(info); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	got, err := db.Get("m1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got == nil || got.SHA256 != "abc123" || got.LocalPath != "/data/m1.bin" {
		t.Fatalf("Get() = %+v, want matching record", got)
	}
}

func TestDB_GetMissingReturnsNilNoError(t *testing.T) {
	db := newTestDB(t)
	got, err := db.Get("missing")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got != nil {
		t.Fatalf("Get() = %+v, want nil", got)
	}
}

func TestDB_UpsertOverwritesExisting(t *testing.T) {
	db := newTestDB(t)
	db.Upsert(domain.ModelInfo{ID: "m1", SHA256: "first", PulledAt: time.Now()})
	db.Upsert(domain.ModelInfo{ID: "m1", SHA256: "second", PulledAt: time.Now()})

	got, _ := db.Get("m1")
	if got.SHA256 != "second" {
		t.Fatalf("SHA256 = %q, want second (upsert should overwrite)", got.SHA256)
	}
}

func TestDB_List(t *testing.T) {
	db := newTestDB(t)
	db.Upsert(domain.ModelInfo{ID: "m1", PulledAt: time.Now()})
	db.Upsert(domain.ModelInfo{ID: "m2", PulledAt: time.Now()})

	list, err := db.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(list))
	}
}

func TestDB_DeleteMissingReturnsErrModelNotFound(t *testing.T) {
	db := newTestDB(t)
	if err := db.Delete("missing"); err != domain.ErrModelNotFound {
		t.Fatalf("Delete() err = %v, want ErrModelNotFound", err)
	}
}

func TestDB_Touch(t *testing.T) {
	db := newTestDB(t)
	db.Upsert(domain.ModelInfo{ID: "m1", PulledAt: time.Now()})
	if err := db.Touch("m1"); err != nil {
		t.Fatalf("Touch() error: %v", err)
	}
	got, _ := db.Get("m1")
	if got.LastUsed.IsZero() {
		t.Fatal("expected LastUsed to be set after Touch")
	}
}
