package modelmanager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/edgeveda/core/internal/domain"
)

// Manager implements domain.ModelManager: it resolves catalog entries
// through a ModelRegistry, persists local state through a ModelStore, and
// downloads into dir/<model id>.bin with a .tmp + SHA-256
// verify + atomic rename sequence so a reader never observes a partially
// written model file.
type Manager struct {
	dir      string
	registry domain.ModelRegistry
	store    domain.ModelStore
	client   *http.Client
}

// New creates a Manager rooted at dir (one file per model id, plus the
// local metadata DB).
func New(dir string, registry domain.ModelRegistry, store domain.ModelStore) *Manager {
	return &Manager{dir: dir, registry: registry, store: store, client: http.DefaultClient}
}

func (m *Manager) PathFor(id string) (string, error) {
	info, err := m.store.Get(id)
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", domain.ErrModelNotLocal
	}
	return info.LocalPath, nil
}

func (m *Manager) IsDownloaded(id string) (bool, error) {
	info, err := m.store.Get(id)
	if err != nil {
		return false, err
	}
	if info == nil {
		return false, nil
	}
	if _, err := os.Stat(info.LocalPath); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *Manager) Delete(id string) error {
	info, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if info == nil {
		return domain.ErrModelNotLocal
	}
	if err := os.Remove(info.LocalPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return m.store.Delete(id)
}

// Download fetches a catalog entry into dir/<id>.bin via a .tmp file,
// verifies its SHA-256 against the catalog record, and only then renames it
// into place. A checksum mismatch deletes the temp file and returns
// ErrChecksumMismatch without touching any previously-downloaded copy.
func (m *Manager) Download(ctx context.Context, id string, progress func(domain.DownloadProgress)) error {
	ref, ok := m.registry.Lookup(id)
	if !ok {
		return domain.ErrModelNotFound
	}

	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	finalPath := filepath.Join(m.dir, id+".bin")
	tmpPath := finalPath + ".tmp"

	if err := m.stream(ctx, ref, tmpPath, progress); err != nil {
		os.Remove(tmpPath)
		return err
	}

	sum, err := sha256File(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	if sum != ref.SHA256 {
		os.Remove(tmpPath)
		return domain.ErrChecksumMismatch
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize download: %w", err)
	}

	return m.store.Upsert(domain.ModelInfo{
		ID:           ref.ID,
		SHA256:       sum,
		SizeBytes:    ref.SizeBytes,
		LocalPath:    finalPath,
		Format:       ref.Format,
		Quantization: ref.Quantization,
		PulledAt:     time.Now(),
	})
}

func (m *Manager) stream(ctx context.Context, ref domain.ModelRef, dst string, progress func(domain.DownloadProgress)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", ref.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: HTTP %d", ref.ID, resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()

	total := resp.ContentLength
	if total <= 0 {
		total = ref.SizeBytes
	}

	buf := make([]byte, 256*1024)
	var downloaded int64
	started := time.Now()

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloadProgress(downloaded, total, started))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	if progress != nil {
		p := downloadProgress(downloaded, total, started)
		p.Done = true
		progress(p)
	}
	return nil
}

func downloadProgress(downloaded, total int64, started time.Time) domain.DownloadProgress {
	p := domain.DownloadProgress{DownloadedBytes: downloaded, TotalBytes: total}
	elapsed := time.Since(started).Seconds()
	if elapsed > 0 {
		speed := float64(downloaded) / elapsed
		p.SpeedBPS = &speed
		if total > 0 && speed > 0 {
			eta := float64(total-downloaded) / speed
			p.ETASeconds = &eta
		}
	}
	return p
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
