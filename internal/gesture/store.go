package gesture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
)

// idLength is the number of characters kept from a generated UUID
const idLength = 8

// similarNameDistance is the edit distance at or below which two names are reported as confusable
const similarNameDistance = 1

// Persister loads and saves the full gesture collection.
// Save must be atomic: a crash mid-save leaves the previous snapshot readable.
type Persister interface {
	Load(ctx context.Context) (map[string]Record, error)
	Save(ctx context.Context, records map[string]Record) error
}

// SampleStore removes the on-disk training samples of a gesture
type SampleStore interface {
	RemoveSamples(id string) error
}

// Option configures a Store
type Option func(*Store)

// WithSampleStore sets the store used to delete sample data on gesture deletion
func WithSampleStore(s SampleStore) Option {
	return func(st *Store) { st.samples = s }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(st *Store) { st.logger = l }
}

// WithClock overrides the creation timestamp source
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// WithIDGenerator overrides id generation
func WithIDGenerator(gen func() string) Option {
	return func(st *Store) { st.newID = gen }
}

// Store is the authoritative gesture collection. Every mutation that
// succeeds is persisted before the call returns.
type Store struct {
	mu        sync.RWMutex
	records   map[string]Record
	recording *Recording
	persister Persister
	samples   SampleStore
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewStore creates a store and loads the last durable snapshot
func NewStore(ctx context.Context, persister Persister, opts ...Option) (*Store, error) {
	s := &Store{
		records:   make(map[string]Record),
		persister: persister,
		logger:    slog.Default(),
		now:       time.Now,
		newID:     func() string { return uuid.NewString()[:idLength] },
	}
	for _, opt := range opts {
		opt(s)
	}

	loaded, err := persister.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load gestures: %w", err)
	}
	for id, r := range loaded {
		r.ID = id
		if r.Icon == "" {
			r.Icon = DefaultIcon
		}
		s.records[id] = r
	}
	s.logger.Info("Gesture store loaded", "count", len(s.records))
	return s, nil
}

// Get returns a copy of the gesture with the given id
func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

// Snapshot returns a copy of the whole collection keyed by id
func (s *Store) Snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// Len returns the number of gestures
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Recording returns the recording mirror, or nil if no recording was started
func (s *Store) Recording() *Recording {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.recording == nil {
		return nil
	}
	rec := *s.recording
	return &rec
}

// Create validates a draft, assigns a fresh id and persists the new gesture
func (s *Store) Create(ctx context.Context, d Draft) (Record, error) {
	r := Record{
		Name:         strings.TrimSpace(d.Name),
		Icon:         strings.TrimSpace(d.Icon),
		Action:       strings.TrimSpace(d.Action),
		CursorAction: strings.TrimSpace(d.CursorAction),
		Active:       true,
	}
	if r.Icon == "" {
		r.Icon = DefaultIcon
	}
	if r.Action != ActionCursor {
		r.CursorAction = ""
	}
	if err := r.validate(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.uniqueIDLocked()
	r.CreatedAt = s.now().UTC()
	s.warnSimilarLocked(r.Name, r.ID)

	s.records[r.ID] = r
	if err := s.saveLocked(ctx); err != nil {
		delete(s.records, r.ID)
		return Record{}, err
	}
	return r, nil
}

// Update applies a patch to an existing gesture
func (s *Store) Update(ctx context.Context, id string, p Patch) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := p.apply(prev)
	if err := next.validate(); err != nil {
		return Record{}, err
	}
	if next.Name != prev.Name {
		s.warnSimilarLocked(next.Name, id)
	}

	s.records[id] = next
	if err := s.saveLocked(ctx); err != nil {
		s.records[id] = prev
		return Record{}, err
	}
	return next, nil
}

// Toggle sets the active flag, or flips it when active is nil
func (s *Store) Toggle(ctx context.Context, id string, active *bool) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := prev
	if active != nil {
		next.Active = *active
	} else {
		next.Active = !prev.Active
	}

	s.records[id] = next
	if err := s.saveLocked(ctx); err != nil {
		s.records[id] = prev
		return Record{}, err
	}
	return next, nil
}

// Delete removes a gesture and its samples. If a recording for the gesture
// is active it is cancelled and returned.
func (s *Store) Delete(ctx context.Context, id string) (*Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.records, id)
	if err := s.saveLocked(ctx); err != nil {
		s.records[id] = prev
		return nil, err
	}

	if s.samples != nil {
		if err := s.samples.RemoveSamples(id); err != nil {
			s.logger.Warn("Failed to remove gesture samples", "gesture_id", id, "error", err)
		}
	}

	var cancelled *Recording
	if s.recording != nil && s.recording.GestureID == id && s.recording.Active {
		s.recording.Active = false
		rec := *s.recording
		cancelled = &rec
		s.logger.Info("Recording cancelled by delete", "gesture_id", id, "recorded", rec.Recorded)
	}
	return cancelled, nil
}

// BeginRecording starts the recording mirror for a gesture. It reports the
// session it replaced when another recording was still active.
func (s *Store) BeginRecording(id string, total int) (*Recording, error) {
	if total < 1 {
		return nil, fmt.Errorf("%w: total must be positive", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var replaced *Recording
	if s.recording != nil && s.recording.Active {
		if s.recording.GestureID == id {
			s.recording.Total = total
			return nil, nil
		}
		rec := *s.recording
		replaced = &rec
	}
	s.recording = &Recording{GestureID: id, Total: total, Active: true, base: r.Samples}
	return replaced, nil
}

// EndRecording marks the active recording inactive and persists the
// gesture's current sample count. It returns nil if nothing was recording.
func (s *Store) EndRecording(ctx context.Context) (*Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recording == nil || !s.recording.Active {
		return nil, nil
	}
	s.recording.Active = false
	rec := *s.recording
	if _, ok := s.records[rec.GestureID]; !ok {
		return &rec, nil
	}
	if err := s.saveLocked(ctx); err != nil {
		return &rec, err
	}
	return &rec, nil
}

// ApplySampleProgress updates the sample count of a gesture from a worker
// progress report. The count is persisted only when final is true.
// It reports whether a save happened. Progress for a recording that is no
// longer active returns ErrRecordingInactive and changes nothing.
func (s *Store) ApplySampleProgress(ctx context.Context, id string, recorded, total int, final bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.recording != nil && s.recording.GestureID == id && !s.recording.Active {
		return false, fmt.Errorf("%w: %s", ErrRecordingInactive, id)
	}

	if s.recording == nil || s.recording.GestureID != id {
		s.recording = &Recording{GestureID: id, Total: total, Active: true, base: 0}
	}
	rec := s.recording
	rec.Recorded = recorded
	if total > 0 {
		rec.Total = total
	}
	if final {
		rec.Active = false
	}

	samples := rec.base + recorded
	if samples > r.Samples {
		r.Samples = samples
		s.records[id] = r
	}
	if !final {
		return false, nil
	}
	if err := s.saveLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Flush persists the current in-memory state
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx)
}

// SimilarNames returns the names of other gestures that are equal to or
// within one edit of name, ignoring case
func (s *Store) SimilarNames(name, excludeID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.similarLocked(name, excludeID)
}

func (s *Store) similarLocked(name, excludeID string) []string {
	needle := strings.ToLower(strings.TrimSpace(name))
	var out []string
	for id, r := range s.records {
		if id == excludeID {
			continue
		}
		if levenshtein.ComputeDistance(needle, strings.ToLower(r.Name)) <= similarNameDistance {
			out = append(out, r.Name)
		}
	}
	return out
}

// warnSimilarLocked logs when detections for name could be confused with another gesture
func (s *Store) warnSimilarLocked(name, id string) {
	if similar := s.similarLocked(name, id); len(similar) > 0 {
		s.logger.Warn("Gesture name is close to existing gestures",
			"gesture_id", id, "name", name, "similar", similar)
	}
}

func (s *Store) uniqueIDLocked() string {
	for {
		id := s.newID()
		if _, taken := s.records[id]; !taken {
			return id
		}
	}
}

func (s *Store) copyLocked() map[string]Record {
	out := make(map[string]Record, len(s.records))
	for id, r := range s.records {
		out[id] = r
	}
	return out
}

func (s *Store) saveLocked(ctx context.Context) error {
	if err := s.persister.Save(ctx, s.copyLocked()); err != nil {
		s.logger.Error("Failed to persist gestures", "error", err)
		return fmt.Errorf("failed to persist gestures: %w", err)
	}
	return nil
}
