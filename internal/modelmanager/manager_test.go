package modelmanager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/edgeveda/core/internal/domain"
)

type memStore struct {
	models map[string]domain.ModelInfo
}

func newMemStore() *memStore { return &memStore{models: map[string]domain.ModelInfo{}} }

func (s *memStore) Upsert(info domain.ModelInfo) error { s.models[info.ID] = info; return nil }
func (s *memStore) Get(id string) (*domain.ModelInfo, error) {
	if m, ok := s.models[id]; ok {
		return &m, nil
	}
	return nil, nil
}
func (s *memStore) List() ([]domain.ModelInfo, error) {
	var out []domain.ModelInfo
	for _, m := range s.models {
		out = append(out, m)
	}
	return out, nil
}
func (s *memStore) Delete(id string) error {
	if _, ok := s.models[id]; !ok {
		return domain.ErrModelNotFound
	}
	delete(s.models, id)
	return nil
}
func (s *memStore) Touch(id string) error { return nil }

type memRegistry struct {
	refs map[string]domain.ModelRef
}

func (r *memRegistry) Lookup(id string) (domain.ModelRef, bool) {
	ref, ok := r.refs[id]
	return ref, ok
}
func (r *memRegistry) List() []domain.ModelRef {
	var out []domain.ModelRef
	for _, ref := range r.refs {
		out = append(out, ref)
	}
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestManager_DownloadVerifiesChecksumAndPersists(t *testing.T) {
	payload := []byte("fake model bytes for testing")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	reg := &memRegistry{refs: map[string]domain.ModelRef{
		"m1": {ID: "m1", URL: srv.URL, SHA256: sha256Hex(payload), SizeBytes: int64(len(payload))},
	}}
	store := newMemStore()
	mgr := New(t.TempDir(), reg, store)

	var lastProgress domain.DownloadProgress
	err := mgr.Download(context.Background(), "m1", func(p domain.DownloadProgress) { lastProgress = p })
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !lastProgress.Done {
		t.Fatal("expected final progress callback with Done=true")
	}

	downloaded, err := mgr.IsDownloaded("m1")
	if err != nil || !downloaded {
		t.Fatalf("IsDownloaded = %v, %v; want true, nil", downloaded, err)
	}

	path, err := mgr.PathFor("m1")
	if err != nil {
		t.Fatalf("PathFor: %v", err)
	}
	if filepath.Base(path) != "m1.bin" {
		t.Fatalf("path = %q, want basename m1.bin", path)
	}
}

func TestManager_DownloadRejectsChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("corrupted"))
	}))
	defer srv.Close()

	reg := &memRegistry{refs: map[string]domain.ModelRef{
		"m1": {ID: "m1", URL: srv.URL, SHA256: "0000000000000000000000000000000000000000000000000000000000000"},
	}}
	store := newMemStore()
	mgr := New(t.TempDir(), reg, store)

	err := mgr.Download(context.Background(), "m1", nil)
	if err != domain.ErrChecksumMismatch {
		t.Fatalf("err = %v, want ErrChecksumMismatch", err)
	}
	if downloaded, _ := mgr.IsDownloaded("m1"); downloaded {
		t.Fatal("model should not be marked downloaded after checksum mismatch")
	}
}

func TestManager_DownloadUnknownModel(t *testing.T) {
	mgr := New(t.TempDir(), &memRegistry{refs: map[string]domain.ModelRef{}}, newMemStore())
	if err := mgr.Download(context.Background(), "missing", nil); err != domain.ErrModelNotFound {
		t.Fatalf("err = %v, want ErrModelNotFound", err)
	}
}

func TestManager_DeleteRemovesFileAndRecord(t *testing.T) {
	payload := []byte("data")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	reg := &memRegistry{refs: map[string]domain.ModelRef{
		"m1": {ID: "m1", URL: srv.URL, SHA256: sha256Hex(payload)},
	}}
	store := newMemStore()
	mgr := New(t.TempDir(), reg, store)

	if err := mgr.Download(context.Background(), "m1", nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if err := mgr.Delete("m1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if downloaded, _ := mgr.IsDownloaded("m1"); downloaded {
		t.Fatal("expected model to be gone after Delete")
	}
}
