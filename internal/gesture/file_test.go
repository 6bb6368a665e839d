package gesture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePersisterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilePersister(dir, discardLogger())
	require.NoError(t, err)

	empty, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, empty)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := map[string]Record{
		"a1b2c3d4": {ID: "a1b2c3d4", Name: "Peace", Icon: "✌️", Action: "screenshot", Active: true, Samples: 80, CreatedAt: created},
		"e5f6a7b8": {ID: "e5f6a7b8", Name: "Pinch", Icon: DefaultIcon, Action: ActionCursor, CursorAction: "drag"},
	}
	require.NoError(t, p.Save(context.Background(), records))

	_, err = os.Stat(p.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	reopened, err := NewFilePersister(dir, discardLogger())
	require.NoError(t, err)
	loaded, err := reopened.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, records, loaded)
}

func TestFilePersisterSurvivesStoreRestart(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilePersister(dir, discardLogger())
	require.NoError(t, err)

	s, err := NewStore(context.Background(), p, WithLogger(discardLogger()))
	require.NoError(t, err)
	r, err := s.Create(context.Background(), Draft{Name: "Peace", Action: "screenshot"})
	require.NoError(t, err)
	_, err = s.BeginRecording(r.ID, 80)
	require.NoError(t, err)
	_, err = s.ApplySampleProgress(context.Background(), r.ID, 40, 80, false)
	require.NoError(t, err)

	restarted, err := NewStore(context.Background(), p, WithLogger(discardLogger()))
	require.NoError(t, err)
	got, err := restarted.Get(r.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Samples, "non-final progress is not durable")
}

func TestFilePersisterMovesCorruptSnapshotAside(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilePersister(dir, discardLogger())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p.Path(), []byte("{not json"), 0o644))

	loaded, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)

	matches, err := filepath.Glob(p.Path() + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestSampleDirRemoveSamples(t *testing.T) {
	dir := t.TempDir()
	samples := NewSampleDir(dir)
	gestureDir := filepath.Join(dir, SamplesDirName, "a1b2c3d4")
	require.NoError(t, os.MkdirAll(gestureDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gestureDir, "0.npy"), []byte("x"), 0o644))

	require.NoError(t, samples.RemoveSamples("a1b2c3d4"))
	_, err := os.Stat(gestureDir)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, samples.RemoveSamples("never-recorded"))
	assert.ErrorIs(t, samples.RemoveSamples("../escape"), ErrValidation)
	assert.ErrorIs(t, samples.RemoveSamples(".."), ErrValidation)
}
