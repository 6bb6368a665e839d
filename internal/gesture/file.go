package gesture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SnapshotFileName is the name of the gesture snapshot inside the data directory
const SnapshotFileName = "gestures.json"

// SamplesDirName is the directory under the data directory holding per-gesture samples
const SamplesDirName = "gestures"

// FilePersister stores the collection as a single JSON document
type FilePersister struct {
	path   string
	logger *slog.Logger
}

// NewFilePersister creates a persister writing <dataDir>/gestures.json
func NewFilePersister(dataDir string, logger *slog.Logger) (*FilePersister, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FilePersister{path: filepath.Join(dataDir, SnapshotFileName), logger: logger}, nil
}

// Path returns the snapshot file path
func (p *FilePersister) Path() string {
	return p.path
}

// Load reads the snapshot. A missing file yields an empty collection. An
// unreadable snapshot is moved aside so the next save cannot overwrite it.
func (p *FilePersister) Load(_ context.Context) (map[string]Record, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	records := map[string]Record{}
	if err := json.Unmarshal(data, &records); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", p.path, time.Now().Unix())
		if rerr := os.Rename(p.path, aside); rerr != nil {
			return nil, fmt.Errorf("snapshot unreadable (%v) and could not be moved: %w", err, rerr)
		}
		p.logger.Error("Gesture snapshot unreadable, starting empty", "error", err, "moved_to", aside)
		return map[string]Record{}, nil
	}
	return records, nil
}

// Save writes the snapshot to a temp file, syncs it and renames it into place
func (p *FilePersister) Save(_ context.Context, records map[string]Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal gestures: %w", err)
	}

	tempPath := p.path + ".tmp"
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, p.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// SampleDir removes per-gesture sample directories under a root
type SampleDir struct {
	root string
}

// NewSampleDir returns a SampleDir rooted at <dataDir>/gestures
func NewSampleDir(dataDir string) *SampleDir {
	return &SampleDir{root: filepath.Join(dataDir, SamplesDirName)}
}

// RemoveSamples deletes the sample directory of a gesture. A missing directory is not an error.
func (d *SampleDir) RemoveSamples(id string) error {
	if id == "" || filepath.Base(id) != id || id == "." || id == ".." {
		return fmt.Errorf("%w: invalid gesture id %q", ErrValidation, id)
	}
	return os.RemoveAll(filepath.Join(d.root, id))
}
