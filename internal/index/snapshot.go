package index

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/s2"

	cerrors "github.com/Punky2280/dat-bitch-cartrita-sub005/internal/errors"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/store"
)

// snapshotHeader stamps the snapshot with the record-store state it was cut
// from. On restart the header decides staleness: any drift in count or max
// version forces a rebuild from the canonical record set.
type snapshotHeader struct {
	ModelTag    string
	Backend     string
	Dimensions  int
	Metric      string
	RecordCount int
	MaxVersion  int64
	CreatedAt   time.Time
}

// snapshotPayload is the gob-encoded artifact body.
type snapshotPayload struct {
	Header  snapshotHeader
	IDs     []string
	Vectors [][]float32
}

// SnapshotPath returns the ANN artifact path for a model tag under dataDir.
func SnapshotPath(dataDir, modelTag string) string {
	return filepath.Join(dataDir, "vectors-"+modelTag+".snap")
}

// SaveSnapshot writes the partition's ANN artifact from the canonical record
// set: gob inside s2 compression, temp file plus rename so the artifact is
// never observed half-written.
func (m *Manager) SaveSnapshot(ctx context.Context, modelTag, path string) error {
	cfg, err := m.config.ConfigFor(modelTag)
	if err != nil {
		return err
	}

	count, err := m.records.Count(ctx, modelTag)
	if err != nil {
		return err
	}
	maxVersion, err := m.records.MaxVersion(ctx, modelTag)
	if err != nil {
		return err
	}

	payload := snapshotPayload{
		Header: snapshotHeader{
			ModelTag:    modelTag,
			Backend:     m.config.Backend,
			Dimensions:  cfg.Dimensions,
			Metric:      string(cfg.Metric),
			RecordCount: count,
			MaxVersion:  maxVersion,
			CreatedAt:   time.Now().UTC(),
		},
		IDs:     make([]string, 0, count),
		Vectors: make([][]float32, 0, count),
	}
	err = m.records.ForEach(ctx, modelTag, func(rec *store.EmbeddingRecord) error {
		payload.IDs = append(payload.IDs, rec.ID)
		payload.Vectors = append(payload.Vectors, rec.Vector)
		return nil
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}

	compressor := s2.NewWriter(file)
	if err := gob.NewEncoder(compressor).Encode(payload); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := compressor.Close(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close snapshot file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot file: %w", err)
	}

	slog.Debug("index_snapshot_saved",
		slog.String("model_tag", modelTag),
		slog.String("path", path),
		slog.Int("records", count))
	return nil
}

// LoadSnapshot restores the partition from an artifact. It returns
// stale=true (without touching the partition) when the artifact is missing,
// unreadable, was cut by a different backend/config, or no longer matches
// the record store; the caller must then rebuild before serving.
func (m *Manager) LoadSnapshot(ctx context.Context, modelTag, path string) (stale bool, err error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return true, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	var payload snapshotPayload
	if err := gob.NewDecoder(s2.NewReader(file)).Decode(&payload); err != nil {
		slog.Warn("index_snapshot_corrupt",
			slog.String("model_tag", modelTag),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return true, nil
	}

	cfg, err := m.config.ConfigFor(modelTag)
	if err != nil {
		return true, err
	}
	h := payload.Header
	if h.ModelTag != modelTag || h.Backend != m.config.Backend ||
		h.Dimensions != cfg.Dimensions || h.Metric != string(cfg.Metric) {
		slog.Info("index_snapshot_mismatch",
			slog.String("model_tag", modelTag),
			slog.String("snapshot_backend", h.Backend),
			slog.Int("snapshot_dimensions", h.Dimensions))
		return true, nil
	}

	count, err := m.records.Count(ctx, modelTag)
	if err != nil {
		return true, err
	}
	maxVersion, err := m.records.MaxVersion(ctx, modelTag)
	if err != nil {
		return true, err
	}
	if h.RecordCount != count || h.MaxVersion != maxVersion {
		slog.Info("index_snapshot_stale",
			slog.String("model_tag", modelTag),
			slog.Int("snapshot_records", h.RecordCount),
			slog.Int("store_records", count))
		return true, nil
	}

	fresh, err := m.newBackend(modelTag)
	if err != nil {
		return true, err
	}
	for i, id := range payload.IDs {
		if err := fresh.Insert(id, payload.Vectors[i]); err != nil {
			return true, cerrors.Wrap(cerrors.ErrCodeRebuildFailed, err)
		}
	}

	p := m.partitionFor(modelTag)
	p.mu.Lock()
	p.current.Store(&handle{idx: fresh})
	p.inserts = 0
	p.removes = 0
	p.mu.Unlock()

	slog.Info("index_snapshot_loaded",
		slog.String("model_tag", modelTag),
		slog.Int("records", len(payload.IDs)))
	return false, nil
}
