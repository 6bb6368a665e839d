// Package mockworker is an in-process stand-in for the recognition worker.
// It speaks the worker WebSocket protocol and simulates camera, recording
// and training activity without any hardware.
package mockworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/gesture-relay/internal/config"
	"github.com/AltairaLabs/gesture-relay/internal/gesture"
	"github.com/AltairaLabs/gesture-relay/internal/protocol"
)

const (
	defaultSampleInterval = 40 * time.Millisecond
	defaultTrainStep      = 100 * time.Millisecond
	defaultTrainEpochs    = 10
	defaultAccuracy       = 96.5

	// placeholderFrame is a 1x1 transparent GIF
	placeholderFrame = "data:image/gif;base64,R0lGODlhAQABAAAAACwAAAAAAQABAAA="
)

// Config holds mock worker settings
type Config struct {
	// SampleInterval is the delay between simulated recording samples
	SampleInterval time.Duration
	// FrameInterval enables a frame stream while the camera is on; zero disables it
	FrameInterval time.Duration
	// TrainStep is the delay between simulated training epochs
	TrainStep   time.Duration
	TrainEpochs int
	Logger      *slog.Logger
}

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(config.DefaultWriteTimeout))
	return c.ws.WriteJSON(v)
}

// Worker is a fake recognition worker. It implements http.Handler.
type Worker struct {
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu         sync.Mutex
	conns      map[*conn]struct{}
	gestures   map[string]gesture.Record
	received   []protocol.Command
	cameraOn   bool
	cursorMode bool
	trained    bool
	stopCamera context.CancelFunc
	stopRec    context.CancelFunc
	recID      string
	recorded   int
}

// New creates a mock worker
func New(cfg Config) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = defaultSampleInterval
	}
	if cfg.TrainStep <= 0 {
		cfg.TrainStep = defaultTrainStep
	}
	if cfg.TrainEpochs <= 0 {
		cfg.TrainEpochs = defaultTrainEpochs
	}
	return &Worker{
		cfg:      cfg,
		logger:   cfg.Logger,
		conns:    make(map[*conn]struct{}),
		gestures: make(map[string]gesture.Record),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// ListenAndServe serves the worker protocol on addr until ctx is cancelled
func (w *Worker) ListenAndServe(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: w, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		w.DropClients()
	}()

	w.logger.Info("Mock worker listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP upgrades a relay connection and processes its commands
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ws, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	c := &conn{ws: ws}

	w.mu.Lock()
	w.conns[c] = struct{}{}
	hello := map[string]any{
		"type":        protocol.EvtConnected,
		"gestures":    copyGestures(w.gestures),
		"cameraOn":    w.cameraOn,
		"modelLoaded": w.trained,
		"accuracy":    w.accuracyLocked(),
	}
	w.mu.Unlock()
	w.logger.Info("Relay connected to mock worker", "remote", r.RemoteAddr)

	if err := c.send(hello); err != nil {
		w.drop(c)
		return
	}

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			w.drop(c)
			return
		}
		var cmd protocol.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			w.logger.Debug("Ignoring non-JSON command", "error", err)
			continue
		}
		w.handle(c, cmd)
	}
}

func (w *Worker) drop(c *conn) {
	w.mu.Lock()
	delete(w.conns, c)
	w.mu.Unlock()
	_ = c.ws.Close()
}

// DropClients closes every relay connection, simulating a worker crash.
// Gesture state is kept.
func (w *Worker) DropClients() {
	w.mu.Lock()
	conns := make([]*conn, 0, len(w.conns))
	for c := range w.conns {
		conns = append(conns, c)
	}
	w.conns = make(map[*conn]struct{})
	w.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.Close()
	}
}

// Broadcast sends v to every connected relay
func (w *Worker) Broadcast(v any) {
	w.mu.Lock()
	conns := make([]*conn, 0, len(w.conns))
	for c := range w.conns {
		conns = append(conns, c)
	}
	w.mu.Unlock()

	for _, c := range conns {
		if err := c.send(v); err != nil {
			w.logger.Debug("Mock worker send failed", "error", err)
		}
	}
}

// Commands returns every command received so far
func (w *Worker) Commands() []protocol.Command {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]protocol.Command(nil), w.received...)
}

// Gestures returns the worker's copy of the gesture map
func (w *Worker) Gestures() map[string]gesture.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return copyGestures(w.gestures)
}

// Clients returns the number of open relay connections
func (w *Worker) Clients() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.conns)
}

// Detect emits a frame with a detection for the named gesture id
func (w *Worker) Detect(id string, confidence float64) {
	w.mu.Lock()
	g, ok := w.gestures[id]
	w.mu.Unlock()
	if !ok || !g.Active {
		return
	}
	w.Broadcast(map[string]any{
		"type":  protocol.EvtFrame,
		"frame": placeholderFrame,
		"detection": protocol.Detection{
			Gesture:    g.Name,
			GestureID:  id,
			Confidence: confidence,
			Action:     g.Action,
			Fired:      true,
		},
	})
}

func (w *Worker) handle(c *conn, cmd protocol.Command) {
	w.mu.Lock()
	w.received = append(w.received, cmd)
	w.mu.Unlock()
	w.logger.Debug("Mock worker command", "type", cmd.Type, "id", cmd.ID)

	switch cmd.Type {
	case protocol.CmdCameraStart:
		w.setCamera(true)

	case protocol.CmdCameraStop:
		w.setCamera(false)

	case protocol.CmdToggleCursorMode:
		w.mu.Lock()
		if cmd.Enabled != nil {
			w.cursorMode = *cmd.Enabled
		} else {
			w.cursorMode = !w.cursorMode
		}
		enabled := w.cursorMode
		w.mu.Unlock()
		w.Broadcast(map[string]any{"type": protocol.EvtCursorModeChanged, "enabled": enabled})

	case protocol.CmdUpdateCursorSettings:
		w.Broadcast(map[string]any{"type": protocol.EvtCursorSettingsUpdated, "settings": cmd.Settings})

	case protocol.CmdAddGesture, protocol.CmdUpdateGesture:
		if cmd.ID == "" || cmd.Data == nil {
			return
		}
		w.mu.Lock()
		w.gestures[cmd.ID] = *cmd.Data
		w.mu.Unlock()
		w.broadcastGestures()

	case protocol.CmdDeleteGesture:
		w.mu.Lock()
		_, ok := w.gestures[cmd.ID]
		delete(w.gestures, cmd.ID)
		w.mu.Unlock()
		if ok {
			w.broadcastGestures()
		}

	case protocol.CmdToggleGesture:
		active := cmd.Active == nil || *cmd.Active
		w.mu.Lock()
		g, ok := w.gestures[cmd.ID]
		if ok {
			g.Active = active
			w.gestures[cmd.ID] = g
		}
		w.mu.Unlock()
		if ok {
			w.broadcastGestures()
		}

	case protocol.CmdStartRecording:
		if cmd.ID == "" {
			return
		}
		w.setCamera(true)
		w.startRecording(cmd.ID, cmd.TotalOr(config.DefaultRecordingTotal))

	case protocol.CmdStopRecording:
		w.mu.Lock()
		if w.stopRec != nil {
			w.stopRec()
			w.stopRec = nil
		}
		id, recorded := w.recID, w.recorded
		w.mu.Unlock()
		w.Broadcast(map[string]any{"type": protocol.EvtRecordingStopped, "id": id, "recorded": recorded})

	case protocol.CmdRetrain:
		go w.train()

	case protocol.CmdGetStats:
		w.mu.Lock()
		stats := map[string]any{
			"type":          protocol.EvtStats,
			"accuracy":      w.accuracyLocked(),
			"totalGestures": len(w.gestures),
			"totalSamples":  w.totalSamplesLocked(),
			"modelLoaded":   w.trained,
		}
		w.mu.Unlock()
		_ = c.send(stats)

	case protocol.CmdUpdateSettings:
		_ = c.send(map[string]any{"type": protocol.EvtSettingsUpdated, "status": "ok"})

	default:
		w.logger.Debug("Mock worker ignoring command", "type", cmd.Type)
	}
}

func (w *Worker) broadcastGestures() {
	w.Broadcast(map[string]any{"type": protocol.EvtGestureUpdated, "gestures": w.Gestures()})
}

func (w *Worker) setCamera(on bool) {
	w.mu.Lock()
	if on == w.cameraOn {
		w.mu.Unlock()
		return
	}
	w.cameraOn = on
	if w.stopCamera != nil {
		w.stopCamera()
		w.stopCamera = nil
	}
	if on && w.cfg.FrameInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		w.stopCamera = cancel
		go w.streamFrames(ctx)
	}
	w.mu.Unlock()
	w.Broadcast(map[string]any{"type": protocol.EvtCameraStatus, "active": on})
}

func (w *Worker) streamFrames(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Broadcast(map[string]any{"type": protocol.EvtFrame, "frame": placeholderFrame})
		}
	}
}

func (w *Worker) startRecording(id string, total int) {
	ctx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	if w.stopRec != nil {
		w.stopRec()
	}
	w.stopRec = cancel
	w.recID = id
	w.recorded = 0
	w.mu.Unlock()

	w.Broadcast(map[string]any{"type": protocol.EvtRecordingStarted, "id": id, "total": total})
	go w.record(ctx, id, total)
}

// record emits one recording_progress per simulated sample. The last one
// carries active=false.
func (w *Worker) record(ctx context.Context, id string, total int) {
	ticker := time.NewTicker(w.cfg.SampleInterval)
	defer ticker.Stop()

	for recorded := 1; recorded <= total; recorded++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		w.mu.Lock()
		if w.recID != id {
			w.mu.Unlock()
			return
		}
		w.recorded = recorded
		active := recorded < total
		if !active {
			if g, ok := w.gestures[id]; ok {
				g.Samples += total
				w.gestures[id] = g
			}
			w.stopRec = nil
		}
		w.mu.Unlock()

		w.Broadcast(map[string]any{
			"type":     protocol.EvtRecordingProgress,
			"id":       id,
			"recorded": recorded,
			"total":    total,
			"active":   active,
		})
	}
}

func (w *Worker) train() {
	w.Broadcast(map[string]any{"type": protocol.EvtTrainProgress, "progress": 0, "status": "Starting..."})
	epochs := w.cfg.TrainEpochs
	for epoch := 1; epoch <= epochs; epoch++ {
		time.Sleep(w.cfg.TrainStep)
		progress := float64(epoch) * 100 / float64(epochs)
		w.Broadcast(map[string]any{
			"type":     protocol.EvtTrainProgress,
			"progress": progress,
			"accuracy": defaultAccuracy * progress / 100,
			"status":   fmt.Sprintf("Epoch %d/%d", epoch, epochs),
		})
	}

	w.mu.Lock()
	w.trained = true
	w.mu.Unlock()
	w.Broadcast(map[string]any{"type": protocol.EvtTrainComplete, "accuracy": defaultAccuracy})
}

func (w *Worker) accuracyLocked() float64 {
	if !w.trained {
		return 0
	}
	return defaultAccuracy
}

func (w *Worker) totalSamplesLocked() int {
	total := 0
	for _, g := range w.gestures {
		total += g.Samples
	}
	return total
}

// GestureIDs returns the worker's gesture ids in sorted order
func (w *Worker) GestureIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.gestures))
	for id := range w.gestures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func copyGestures(m map[string]gesture.Record) map[string]gesture.Record {
	out := make(map[string]gesture.Record, len(m))
	for id, r := range m {
		out[id] = r
	}
	return out
}
