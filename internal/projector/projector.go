// Package projector derives per-session view state from the relay's event
// stream: connectivity, gestures, detections, recording and training.
package projector

import (
	"log/slog"
	"sync"
	"time"

	"github.com/AltairaLabs/gesture-relay/internal/config"
	"github.com/AltairaLabs/gesture-relay/internal/gesture"
	"github.com/AltairaLabs/gesture-relay/internal/protocol"
)

// TrainStatus is the training lifecycle as seen by a client
type TrainStatus string

const (
	TrainIdle     TrainStatus = "idle"
	TrainTraining TrainStatus = "training"
	TrainComplete TrainStatus = "complete"
)

// Detection is a detection enriched with the gesture's icon and action
type Detection struct {
	protocol.Detection
	Icon string    `json:"icon"`
	At   time.Time `json:"ts"`
}

// Recording mirrors the worker's recording session
type Recording struct {
	ID       string `json:"id"`
	Recorded int    `json:"recorded"`
	Total    int    `json:"total"`
	Active   bool   `json:"active"`
}

// Train is the training projection
type Train struct {
	Status     TrainStatus `json:"status"`
	Progress   float64     `json:"progress"`
	Accuracy   float64     `json:"accuracy"`
	StatusText string      `json:"statusText,omitempty"`
}

// Stats is the last stats event from the worker
type Stats struct {
	Accuracy      float64 `json:"accuracy"`
	TotalGestures int     `json:"totalGestures"`
	TotalSamples  int     `json:"totalSamples"`
	ModelLoaded   bool    `json:"modelLoaded"`
}

// View is a point-in-time copy of the projected state
type View struct {
	Connected    bool
	MLConnected  bool
	CameraOn     bool
	CursorMode   bool
	Gestures     map[string]gesture.Record
	Frame        string
	Detected     *Detection
	LastDetected *Detection
	Recent       []Detection
	Recording    *Recording
	Train        Train
	Stats        *Stats
	LastError    string
}

// Change identifies what caused a view update
type Change string

const (
	ChangeConnected        Change = "connected"
	ChangeDisconnected     Change = "disconnected"
	ChangeDetection        Change = "detection"
	ChangeDetectionExpired Change = "detection_expired"
	ChangeTrainingReverted Change = "training_reverted"
)

// Listener is called after every view update, outside the projector lock
type Listener func(change Change, view View)

// Option configures a Projector
type Option func(*Projector)

// WithDetectionDwell sets how long a detection stays highlighted
func WithDetectionDwell(d time.Duration) Option {
	return func(p *Projector) { p.detectionDwell = d }
}

// WithTrainCompleteDwell sets how long "complete" is shown before reverting to idle
func WithTrainCompleteDwell(d time.Duration) Option {
	return func(p *Projector) { p.trainDwell = d }
}

// WithRecentCapacity sets the size of the recent-detections ring
func WithRecentCapacity(n int) Option {
	return func(p *Projector) { p.recentCap = n }
}

// WithListener registers a change listener
func WithListener(l Listener) Option {
	return func(p *Projector) { p.listener = l }
}

// WithClock overrides time.Now for detection timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Projector) { p.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Projector) { p.logger = logger }
}

// Projector applies events to a View. It is safe for concurrent use.
type Projector struct {
	detectionDwell time.Duration
	trainDwell     time.Duration
	recentCap      int
	listener       Listener
	now            func() time.Time
	logger         *slog.Logger

	mu   sync.Mutex
	view View

	// bumped to invalidate pending timers
	detectionSeq uint64
	trainSeq     uint64
	detectionT   *time.Timer
	trainT       *time.Timer
}

// New creates a projector in the disconnected state
func New(opts ...Option) *Projector {
	p := &Projector{
		detectionDwell: config.DefaultDetectionDwell,
		trainDwell:     config.DefaultTrainCompleteDwell,
		recentCap:      config.DefaultRecentDetections,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.view = emptyView()
	return p
}

func emptyView() View {
	return View{
		Gestures: map[string]gesture.Record{},
		Train:    Train{Status: TrainIdle},
	}
}

// View returns a copy of the current state
func (p *Projector) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copyLocked()
}

func (p *Projector) copyLocked() View {
	v := p.view
	v.Gestures = make(map[string]gesture.Record, len(p.view.Gestures))
	for id, r := range p.view.Gestures {
		v.Gestures[id] = r
	}
	v.Recent = append([]Detection(nil), p.view.Recent...)
	if p.view.Detected != nil {
		d := *p.view.Detected
		v.Detected = &d
	}
	if p.view.LastDetected != nil {
		d := *p.view.LastDetected
		v.LastDetected = &d
	}
	if p.view.Recording != nil {
		r := *p.view.Recording
		v.Recording = &r
	}
	if p.view.Stats != nil {
		s := *p.view.Stats
		v.Stats = &s
	}
	return v
}

// SetConnected records transport connectivity. Disconnecting discards all
// projected state; the next connected snapshot rebuilds it.
func (p *Projector) SetConnected(connected bool) {
	p.mu.Lock()
	change := ChangeConnected
	if connected {
		p.view.Connected = true
	} else {
		change = ChangeDisconnected
		p.stopTimersLocked()
		p.view = emptyView()
	}
	view := p.copyLocked()
	p.mu.Unlock()
	p.notify(change, view)
}

// Apply decodes and applies a raw event. Malformed frames are ignored and
// reported through the returned error.
func (p *Projector) Apply(raw []byte) error {
	ev, err := protocol.DecodeEvent(raw)
	if err != nil {
		return err
	}
	p.ApplyEvent(ev)
	return nil
}

// ApplyEvent applies a decoded event
func (p *Projector) ApplyEvent(ev protocol.Event) {
	p.mu.Lock()
	changed := p.applyLocked(ev)
	view := p.copyLocked()
	p.mu.Unlock()
	if !changed {
		return
	}
	change := Change(ev.Type)
	if ev.Type == protocol.EvtFrame && ev.Detection != nil {
		change = ChangeDetection
	}
	p.notify(change, view)
}

func (p *Projector) applyLocked(ev protocol.Event) bool {
	v := &p.view
	switch ev.Type {
	case protocol.EvtConnected:
		v.Gestures = copyGestures(ev.Gestures)
		v.MLConnected = ev.MLConnected != nil && *ev.MLConnected
		v.CameraOn = ev.CameraOn != nil && *ev.CameraOn

	case protocol.EvtMLStatus:
		v.MLConnected = ev.Connected != nil && *ev.Connected

	case protocol.EvtGestureUpdated:
		v.Gestures = copyGestures(ev.Gestures)

	case protocol.EvtCameraStatus:
		v.CameraOn = ev.Active != nil && *ev.Active

	case protocol.EvtFrame:
		v.Frame = ev.Frame
		if ev.Detection != nil {
			p.detectLocked(*ev.Detection)
		}

	case protocol.EvtRecordingStarted:
		v.Recording = &Recording{ID: ev.ID, Total: protocol.IntOr(ev.Total, 0), Active: true}

	case protocol.EvtRecordingProgress:
		v.Recording = &Recording{
			ID:       ev.ID,
			Recorded: protocol.IntOr(ev.Recorded, 0),
			Total:    protocol.IntOr(ev.Total, 0),
			Active:   ev.RecordingActive(),
		}

	case protocol.EvtRecordingStopped:
		v.Recording = nil

	case protocol.EvtTrainProgress:
		p.trainSeq++
		stopTimer(p.trainT)
		v.Train = Train{
			Status:     TrainTraining,
			Progress:   floatOr(ev.Progress, 0),
			Accuracy:   floatOr(ev.Accuracy, 0),
			StatusText: ev.Status,
		}

	case protocol.EvtTrainComplete:
		v.Train = Train{Status: TrainComplete, Progress: 100, Accuracy: floatOr(ev.Accuracy, 0)}
		p.trainSeq++
		seq := p.trainSeq
		stopTimer(p.trainT)
		p.trainT = time.AfterFunc(p.trainDwell, func() { p.revertTraining(seq) })

	case protocol.EvtStats:
		v.Stats = &Stats{
			Accuracy:      floatOr(ev.Accuracy, 0),
			TotalGestures: protocol.IntOr(ev.TotalGestures, 0),
			TotalSamples:  protocol.IntOr(ev.TotalSamples, 0),
			ModelLoaded:   ev.ModelLoaded != nil && *ev.ModelLoaded,
		}

	case protocol.EvtCursorModeChanged:
		v.CursorMode = ev.Enabled != nil && *ev.Enabled

	case protocol.EvtError:
		v.LastError = ev.Message
		p.logger.Warn("Relay reported error", "code", ev.Code, "message", ev.Message)

	default:
		return false
	}
	return true
}

// detectLocked highlights a detection and pushes it onto the recent ring
func (p *Projector) detectLocked(d protocol.Detection) {
	det := Detection{Detection: d, Icon: gesture.DefaultIcon, At: p.now()}
	det.Action = gesture.ActionNone
	if g, ok := p.view.Gestures[d.GestureID]; ok {
		det.Icon = g.Icon
		det.Action = g.Action
	}

	p.view.Detected = &det
	last := det
	p.view.LastDetected = &last

	recent := append([]Detection{det}, p.view.Recent...)
	if len(recent) > p.recentCap {
		recent = recent[:p.recentCap]
	}
	p.view.Recent = recent

	p.detectionSeq++
	seq := p.detectionSeq
	stopTimer(p.detectionT)
	p.detectionT = time.AfterFunc(p.detectionDwell, func() { p.expireDetection(seq) })
}

func (p *Projector) expireDetection(seq uint64) {
	p.mu.Lock()
	if seq != p.detectionSeq || p.view.Detected == nil {
		p.mu.Unlock()
		return
	}
	p.view.Detected = nil
	view := p.copyLocked()
	p.mu.Unlock()
	p.notify(ChangeDetectionExpired, view)
}

func (p *Projector) revertTraining(seq uint64) {
	p.mu.Lock()
	if seq != p.trainSeq || p.view.Train.Status != TrainComplete {
		p.mu.Unlock()
		return
	}
	p.view.Train.Status = TrainIdle
	view := p.copyLocked()
	p.mu.Unlock()
	p.notify(ChangeTrainingReverted, view)
}

func (p *Projector) stopTimersLocked() {
	p.detectionSeq++
	p.trainSeq++
	stopTimer(p.detectionT)
	stopTimer(p.trainT)
}

func (p *Projector) notify(change Change, view View) {
	if p.listener != nil {
		p.listener(change, view)
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func copyGestures(m map[string]gesture.Record) map[string]gesture.Record {
	out := make(map[string]gesture.Record, len(m))
	for id, r := range m {
		out[id] = r
	}
	return out
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
