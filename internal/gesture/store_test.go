package gesture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sequentialIDs(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func newTestStore(t *testing.T, p *MemoryPersister, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	s, err := NewStore(context.Background(), p, opts...)
	require.NoError(t, err)
	return s
}

func TestNewStoreLoadsSnapshot(t *testing.T) {
	p := NewMemoryPersister(map[string]Record{
		"a1b2c3d4": {Name: "Peace", Action: "screenshot", Active: true, Samples: 80},
	})
	s := newTestStore(t, p)

	r, err := s.Get("a1b2c3d4")
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4", r.ID)
	assert.Equal(t, DefaultIcon, r.Icon)
	assert.Equal(t, 80, r.Samples)
	assert.Equal(t, 1, s.Len())
}

func TestCreate(t *testing.T) {
	p := NewMemoryPersister(nil)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestStore(t, p, WithClock(func() time.Time { return now }))

	r, err := s.Create(context.Background(), Draft{Name: " Peace ", Action: "screenshot"})
	require.NoError(t, err)

	assert.Len(t, r.ID, idLength)
	assert.Equal(t, "Peace", r.Name)
	assert.Equal(t, DefaultIcon, r.Icon)
	assert.True(t, r.Active)
	assert.Zero(t, r.Samples)
	assert.Equal(t, now, r.CreatedAt)

	saved := p.Saved()
	require.Contains(t, saved, r.ID)
	assert.Equal(t, r, saved[r.ID])
	assert.Equal(t, 1, p.Saves())
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		draft Draft
	}{
		{"missing name", Draft{Action: "screenshot"}},
		{"blank name", Draft{Name: "   ", Action: "screenshot"}},
		{"missing action", Draft{Name: "Peace"}},
		{"cursor action without sub-type", Draft{Name: "Pinch", Action: ActionCursor}},
		{"cursor action with bad sub-type", Draft{Name: "Pinch", Action: ActionCursor, CursorAction: "wiggle"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewMemoryPersister(nil)
			s := newTestStore(t, p)

			_, err := s.Create(context.Background(), tt.draft)
			require.ErrorIs(t, err, ErrValidation)
			assert.Zero(t, s.Len())
			assert.Zero(t, p.Saves())
		})
	}
}

func TestCreateCursorAction(t *testing.T) {
	s := newTestStore(t, NewMemoryPersister(nil))

	r, err := s.Create(context.Background(), Draft{Name: "Pinch", Action: ActionCursor, CursorAction: "left_click"})
	require.NoError(t, err)
	assert.Equal(t, "left_click", r.CursorAction)

	r, err = s.Create(context.Background(), Draft{Name: "Fist", Action: "mute", CursorAction: "left_click"})
	require.NoError(t, err)
	assert.Empty(t, r.CursorAction)
}

func TestCreateRegeneratesCollidingIDs(t *testing.T) {
	s := newTestStore(t, NewMemoryPersister(nil), WithIDGenerator(sequentialIDs("aaaa0001", "aaaa0001", "bbbb0002")))

	first, err := s.Create(context.Background(), Draft{Name: "One", Action: "none"})
	require.NoError(t, err)
	second, err := s.Create(context.Background(), Draft{Name: "Two", Action: "none"})
	require.NoError(t, err)

	assert.Equal(t, "aaaa0001", first.ID)
	assert.Equal(t, "bbbb0002", second.ID)
}

func TestCreatePersistFailureLeavesStoreUnchanged(t *testing.T) {
	p := NewMemoryPersister(nil)
	p.FailWith(errors.New("disk full"))
	s := newTestStore(t, p)

	_, err := s.Create(context.Background(), Draft{Name: "Peace", Action: "screenshot"})
	require.Error(t, err)
	assert.Zero(t, s.Len())
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t, NewMemoryPersister(nil))
	r, err := s.Create(context.Background(), Draft{Name: "Peace", Action: "screenshot"})
	require.NoError(t, err)

	name, empty := "Victory", ""
	updated, err := s.Update(context.Background(), r.ID, Patch{Name: &name, Icon: &empty})
	require.NoError(t, err)
	assert.Equal(t, "Victory", updated.Name)
	assert.Equal(t, DefaultIcon, updated.Icon)
	assert.Equal(t, "screenshot", updated.Action)

	_, err = s.Update(context.Background(), "missing", Patch{Name: &name})
	require.ErrorIs(t, err, ErrNotFound)

	cursor := ActionCursor
	_, err = s.Update(context.Background(), r.ID, Patch{Action: &cursor})
	require.ErrorIs(t, err, ErrValidation)

	got, err := s.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, "screenshot", got.Action)
}

func TestToggle(t *testing.T) {
	s := newTestStore(t, NewMemoryPersister(nil))
	r, err := s.Create(context.Background(), Draft{Name: "Peace", Action: "screenshot"})
	require.NoError(t, err)

	toggled, err := s.Toggle(context.Background(), r.ID, nil)
	require.NoError(t, err)
	assert.False(t, toggled.Active)

	active := true
	toggled, err = s.Toggle(context.Background(), r.ID, &active)
	require.NoError(t, err)
	assert.True(t, toggled.Active)

	_, err = s.Toggle(context.Background(), "missing", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

type recordingSamples struct {
	removed []string
	err     error
}

func (r *recordingSamples) RemoveSamples(id string) error {
	r.removed = append(r.removed, id)
	return r.err
}

func TestDelete(t *testing.T) {
	p := NewMemoryPersister(nil)
	samples := &recordingSamples{err: errors.New("permission denied")}
	s := newTestStore(t, p, WithSampleStore(samples))

	r, err := s.Create(context.Background(), Draft{Name: "Peace", Action: "screenshot"})
	require.NoError(t, err)

	cancelled, err := s.Delete(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Nil(t, cancelled)
	assert.Equal(t, []string{r.ID}, samples.removed)
	assert.NotContains(t, p.Saved(), r.ID)

	_, err = s.Delete(context.Background(), r.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCancelsActiveRecording(t *testing.T) {
	s := newTestStore(t, NewMemoryPersister(nil))
	r, err := s.Create(context.Background(), Draft{Name: "Peace", Action: "screenshot"})
	require.NoError(t, err)

	_, err = s.BeginRecording(r.ID, 80)
	require.NoError(t, err)
	_, err = s.ApplySampleProgress(context.Background(), r.ID, 12, 80, false)
	require.NoError(t, err)

	cancelled, err := s.Delete(context.Background(), r.ID)
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, r.ID, cancelled.GestureID)
	assert.Equal(t, 12, cancelled.Recorded)
	assert.False(t, cancelled.Active)

	_, err = s.ApplySampleProgress(context.Background(), r.ID, 13, 80, false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSampleProgressPersistsOnlyWhenFinal(t *testing.T) {
	p := NewMemoryPersister(nil)
	s := newTestStore(t, p)
	r, err := s.Create(context.Background(), Draft{Name: "Peace", Action: "screenshot"})
	require.NoError(t, err)
	saves := p.Saves()

	_, err = s.BeginRecording(r.ID, 80)
	require.NoError(t, err)

	persisted, err := s.ApplySampleProgress(context.Background(), r.ID, 40, 80, false)
	require.NoError(t, err)
	assert.False(t, persisted)
	got, _ := s.Get(r.ID)
	assert.Equal(t, 40, got.Samples)
	assert.Equal(t, saves, p.Saves())
	assert.Zero(t, p.Saved()[r.ID].Samples)

	persisted, err = s.ApplySampleProgress(context.Background(), r.ID, 80, 80, true)
	require.NoError(t, err)
	assert.True(t, persisted)
	assert.Equal(t, 80, p.Saved()[r.ID].Samples)
	assert.False(t, s.Recording().Active)
}

func TestSampleProgressAccumulatesAcrossRecordings(t *testing.T) {
	p := NewMemoryPersister(map[string]Record{"g1": {Name: "Peace", Action: "none", Samples: 80}})
	s := newTestStore(t, p)

	_, err := s.BeginRecording("g1", 20)
	require.NoError(t, err)
	_, err = s.ApplySampleProgress(context.Background(), "g1", 20, 20, true)
	require.NoError(t, err)

	got, _ := s.Get("g1")
	assert.Equal(t, 100, got.Samples)
}

func TestSampleProgressWithoutMirrorNeverDecreases(t *testing.T) {
	p := NewMemoryPersister(map[string]Record{"g1": {Name: "Peace", Action: "none", Samples: 50}})
	s := newTestStore(t, p)

	_, err := s.ApplySampleProgress(context.Background(), "g1", 10, 80, false)
	require.NoError(t, err)
	got, _ := s.Get("g1")
	assert.Equal(t, 50, got.Samples)

	_, err = s.ApplySampleProgress(context.Background(), "g1", 60, 80, true)
	require.NoError(t, err)
	got, _ = s.Get("g1")
	assert.Equal(t, 60, got.Samples)
}

func TestBeginRecording(t *testing.T) {
	s := newTestStore(t, NewMemoryPersister(map[string]Record{
		"g1": {Name: "Peace", Action: "none"},
		"g2": {Name: "Fist", Action: "mute"},
	}))

	_, err := s.BeginRecording("missing", 80)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.BeginRecording("g1", 0)
	require.ErrorIs(t, err, ErrValidation)

	replaced, err := s.BeginRecording("g1", 80)
	require.NoError(t, err)
	assert.Nil(t, replaced)

	replaced, err = s.BeginRecording("g2", 40)
	require.NoError(t, err)
	require.NotNil(t, replaced)
	assert.Equal(t, "g1", replaced.GestureID)

	rec := s.Recording()
	assert.Equal(t, "g2", rec.GestureID)
	assert.Equal(t, 40, rec.Total)
	assert.True(t, rec.Active)
}

func TestEndRecordingPersistsCount(t *testing.T) {
	p := NewMemoryPersister(map[string]Record{"g1": {Name: "Peace", Action: "none"}})
	s := newTestStore(t, p)

	rec, err := s.EndRecording(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = s.BeginRecording("g1", 80)
	require.NoError(t, err)
	_, err = s.ApplySampleProgress(context.Background(), "g1", 33, 80, false)
	require.NoError(t, err)

	rec, err = s.EndRecording(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Active)
	assert.Equal(t, 33, p.Saved()["g1"].Samples)
}

func TestProgressAfterStopIsRejected(t *testing.T) {
	p := NewMemoryPersister(nil)
	s := newTestStore(t, p)
	r, err := s.Create(context.Background(), Draft{Name: "Peace", Action: "screenshot"})
	require.NoError(t, err)

	_, err = s.BeginRecording(r.ID, 80)
	require.NoError(t, err)
	_, err = s.ApplySampleProgress(context.Background(), r.ID, 10, 80, false)
	require.NoError(t, err)
	_, err = s.EndRecording(context.Background())
	require.NoError(t, err)
	saves := p.Saves()

	for _, final := range []bool{false, true} {
		persisted, err := s.ApplySampleProgress(context.Background(), r.ID, 30, 80, final)
		require.ErrorIs(t, err, ErrRecordingInactive)
		assert.False(t, persisted)
	}

	got, _ := s.Get(r.ID)
	assert.Equal(t, 10, got.Samples)
	assert.Equal(t, 10, s.Recording().Recorded)
	assert.False(t, s.Recording().Active)
	assert.Equal(t, saves, p.Saves())
	assert.Equal(t, 10, p.Saved()[r.ID].Samples)

	_, err = s.BeginRecording(r.ID, 20)
	require.NoError(t, err)
	_, err = s.ApplySampleProgress(context.Background(), r.ID, 5, 20, false)
	require.NoError(t, err)
	got, _ = s.Get(r.ID)
	assert.Equal(t, 15, got.Samples)
}

func TestFlush(t *testing.T) {
	p := NewMemoryPersister(map[string]Record{"g1": {Name: "Peace", Action: "none"}})
	s := newTestStore(t, p)

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, p.Saves())

	p.FailWith(errors.New("read-only filesystem"))
	require.Error(t, s.Flush(context.Background()))
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newTestStore(t, NewMemoryPersister(map[string]Record{"g1": {Name: "Peace", Action: "none"}}))

	snap := s.Snapshot()
	snap["g1"] = Record{Name: "changed"}
	delete(snap, "g1")

	got, err := s.Get("g1")
	require.NoError(t, err)
	assert.Equal(t, "Peace", got.Name)
}

func TestSimilarNames(t *testing.T) {
	s := newTestStore(t, NewMemoryPersister(map[string]Record{
		"g1": {Name: "Peace", Action: "none"},
		"g2": {Name: "Fist", Action: "mute"},
	}))

	assert.ElementsMatch(t, []string{"Peace"}, s.SimilarNames("peace", ""))
	assert.ElementsMatch(t, []string{"Peace"}, s.SimilarNames("Peach", ""))
	assert.Empty(t, s.SimilarNames("Peace", "g1"))
	assert.Empty(t, s.SimilarNames("Thumbs Up", ""))
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := newTestStore(t, NewMemoryPersister(nil))
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			r, err := s.Create(ctx, Draft{Name: fmt.Sprintf("g%d", i), Action: "none"})
			if err != nil {
				return
			}
			_, _ = s.Toggle(ctx, r.ID, nil)
			_ = s.Snapshot()
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.Equal(t, 8, s.Len())
}
