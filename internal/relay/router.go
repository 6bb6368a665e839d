// Package relay routes commands from clients to the gesture store and the
// worker, and fans worker events back out to clients.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/AltairaLabs/gesture-relay/internal/clientpool"
	"github.com/AltairaLabs/gesture-relay/internal/config"
	"github.com/AltairaLabs/gesture-relay/internal/gesture"
	"github.com/AltairaLabs/gesture-relay/internal/metrics"
	"github.com/AltairaLabs/gesture-relay/internal/protocol"
	"github.com/AltairaLabs/gesture-relay/internal/workerlink"
)

var (
	// ErrRouterBusy is returned when the router inbox is full
	ErrRouterBusy = errors.New(config.ErrRouterBusy)

	// ErrRouterStopped is returned once the router loop has exited
	ErrRouterStopped = errors.New("router stopped")
)

// Upstream is the worker connection as seen by the router
type Upstream interface {
	Send(msg any) error
	Connected() bool
	Generation() uint64
}

// Publisher receives selected relay events for external consumers
type Publisher interface {
	Publish(kind string, payload []byte)
}

// HealthReporter is told about worker connectivity changes
type HealthReporter interface {
	SetWorkerConnected(connected bool)
}

// Result describes the outcome of a command
type Result struct {
	// Gesture is the affected record for add, update and toggle
	Gesture *gesture.Record
	// Recording is the recording session started, stopped or cancelled
	Recording *gesture.Recording
	// Forwarded reports whether the worker accepted the forwarded command
	Forwarded bool
}

// RouterConfig holds router dependencies
type RouterConfig struct {
	Store     *gesture.Store
	Upstream  Upstream
	Pool      *clientpool.Pool
	Validator *protocol.Validator
	Publisher Publisher
	Health    HealthReporter
	Logger    *slog.Logger
	QueueSize int
}

// Router serializes every state change on a single goroutine. Client
// registration, command handling and worker events are all processed in
// arrival order, so a new client's snapshot is consistent with the
// broadcasts it receives afterwards.
type Router struct {
	store     *gesture.Store
	link      Upstream
	pool      *clientpool.Pool
	validator *protocol.Validator
	publisher Publisher
	health    HealthReporter
	logger    *slog.Logger

	queue chan func()
	done  chan struct{}

	// owned by the loop goroutine
	cameraOn bool
}

// NewRouter creates a router. Run must be called to start processing.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = config.DefaultRouterQueue
	}
	if cfg.Validator == nil {
		cfg.Validator = protocol.MustNewValidator()
	}
	return &Router{
		store:     cfg.Store,
		link:      cfg.Upstream,
		pool:      cfg.Pool,
		validator: cfg.Validator,
		publisher: cfg.Publisher,
		health:    cfg.Health,
		logger:    cfg.Logger,
		queue:     make(chan func(), cfg.QueueSize),
		done:      make(chan struct{}),
	}
}

// SetUpstream sets the worker connection. It must be called before Run.
func (r *Router) SetUpstream(u Upstream) {
	r.link = u
}

// Run processes queued work until ctx is cancelled
func (r *Router) Run(ctx context.Context) error {
	defer close(r.done)
	r.logger.Info("Router started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Router stopped")
			return ctx.Err()
		case fn := <-r.queue:
			r.runSafe(fn)
		}
	}
}

// runSafe keeps the loop alive when a queued func panics
func (r *Router) runSafe(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Recovered from panic in router loop", "panic", p)
		}
	}()
	fn()
}

// Store returns the gesture store
func (r *Router) Store() *gesture.Store {
	return r.store
}

// WorkerConnected reports the current worker link state
func (r *Router) WorkerConnected() bool {
	return r.link != nil && r.link.Connected()
}

// tryEnqueue queues fn without blocking
func (r *Router) tryEnqueue(fn func()) error {
	select {
	case <-r.done:
		return ErrRouterStopped
	default:
	}
	select {
	case r.queue <- fn:
		return nil
	default:
		return ErrRouterBusy
	}
}

// enqueue queues fn, waiting for room. Worker events use it so none are
// dropped or reordered.
func (r *Router) enqueue(fn func()) {
	select {
	case r.queue <- fn:
	case <-r.done:
	}
}

// call runs fn on the loop and waits for it to finish
func (r *Router) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := r.tryEnqueue(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRouterStopped
	}
}

// Connect registers a client session. The connected snapshot is queued
// before the session can receive any broadcast.
func (r *Router) Connect(ctx context.Context, sender clientpool.Sender) (*clientpool.Session, error) {
	var session *clientpool.Session
	err := r.call(ctx, func() {
		snapshot := protocol.NewConnected(r.store.Snapshot(), r.WorkerConnected(), r.cameraOn)
		data, err := protocol.Encode(snapshot)
		if err != nil {
			r.logger.Error("Failed to encode snapshot", "error", err)
			return
		}
		session = r.pool.Register(sender, data)
	})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.New("failed to register session")
	}
	return session, nil
}

// Submit validates and executes a command built in-process (REST or MCP)
func (r *Router) Submit(ctx context.Context, cmd protocol.Command) (Result, error) {
	if err := r.validator.Validate(cmd); err != nil {
		metrics.RecordCommand(string(cmd.Type), metrics.StatusValidation, 0)
		return Result{}, err
	}
	return r.dispatch(ctx, cmd)
}

// SubmitRaw decodes, validates and executes a command frame from a client socket
func (r *Router) SubmitRaw(ctx context.Context, raw []byte) (Result, error) {
	cmd, err := r.validator.DecodeCommand(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrMalformedMessage) {
			metrics.RecordMalformed("client")
			r.logger.Warn("Dropping malformed client message", "error", err, "size", len(raw))
		}
		return Result{}, err
	}
	return r.dispatch(ctx, cmd)
}

func (r *Router) dispatch(ctx context.Context, cmd protocol.Command) (Result, error) {
	var (
		res    Result
		cmdErr error
	)
	err := r.call(ctx, func() {
		start := time.Now()
		res, cmdErr = r.execute(cmd)
		metrics.RecordCommand(string(cmd.Type), commandStatus(res, cmdErr), time.Since(start))
	})
	if err != nil {
		return Result{}, err
	}
	return res, cmdErr
}

func commandStatus(res Result, err error) string {
	switch {
	case errors.Is(err, gesture.ErrValidation):
		return metrics.StatusValidation
	case errors.Is(err, gesture.ErrNotFound):
		return metrics.StatusNotFound
	case err != nil:
		return metrics.StatusError
	case !res.Forwarded:
		return metrics.StatusDropped
	default:
		return metrics.StatusOK
	}
}

// execute runs on the loop. Gesture commands mutate the store first, then
// forward to the worker, then broadcast the full gesture map.
func (r *Router) execute(cmd protocol.Command) (Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultCommandTimeout)
	defer cancel()

	if cmd.Type.IsPassThrough() {
		return Result{Forwarded: r.forward(cmd)}, nil
	}

	var res Result
	switch cmd.Type {
	case protocol.CmdAddGesture:
		rec, err := r.store.Create(ctx, cmd.Draft())
		metrics.RecordPersist(persistErr(err))
		if err != nil {
			return Result{}, err
		}
		r.logger.Info("Gesture added", "gesture_id", rec.ID, "name", rec.Name, "action", rec.Action)
		res.Gesture = &rec
		res.Forwarded = r.forward(protocol.AddGestureCommand(rec))

	case protocol.CmdUpdateGesture:
		rec, err := r.store.Update(ctx, cmd.ID, cmd.Patch())
		metrics.RecordPersist(persistErr(err))
		if err != nil {
			return Result{}, err
		}
		res.Gesture = &rec
		res.Forwarded = r.forward(protocol.UpdateGestureCommand(rec))

	case protocol.CmdDeleteGesture:
		cancelled, err := r.store.Delete(ctx, cmd.ID)
		metrics.RecordPersist(persistErr(err))
		if err != nil {
			return Result{}, err
		}
		r.logger.Info("Gesture deleted", "gesture_id", cmd.ID)
		if cancelled != nil {
			res.Recording = cancelled
			r.forward(protocol.SimpleCommand(protocol.CmdStopRecording))
		}
		res.Forwarded = r.forward(protocol.DeleteGestureCommand(cmd.ID))

	case protocol.CmdToggleGesture:
		rec, err := r.store.Toggle(ctx, cmd.ID, cmd.Active)
		metrics.RecordPersist(persistErr(err))
		if err != nil {
			return Result{}, err
		}
		res.Gesture = &rec
		res.Forwarded = r.forward(protocol.ToggleGestureCommand(rec.ID, rec.Active))

	case protocol.CmdStartRecording:
		total := cmd.TotalOr(config.DefaultRecordingTotal)
		replaced, err := r.store.BeginRecording(cmd.ID, total)
		if err != nil {
			return Result{}, err
		}
		if replaced != nil {
			r.logger.Warn("Recording already active, forwarding anyway",
				"active_gesture_id", replaced.GestureID, "gesture_id", cmd.ID)
		}
		res.Recording = r.store.Recording()
		res.Forwarded = r.forward(protocol.StartRecordingCommand(cmd.ID, total))

	case protocol.CmdStopRecording:
		rec, err := r.store.EndRecording(ctx)
		if rec != nil {
			metrics.RecordPersist(err)
		}
		if err != nil {
			r.logger.Error("Failed to persist sample count on stop", "error", err)
		}
		res.Recording = rec
		res.Forwarded = r.forward(protocol.SimpleCommand(protocol.CmdStopRecording))

	case protocol.CmdRetrain:
		err := r.store.Flush(ctx)
		metrics.RecordPersist(err)
		if err != nil {
			r.logger.Error("Failed to flush gestures before retrain", "error", err)
		}
		res.Forwarded = r.forward(protocol.SimpleCommand(protocol.CmdRetrain))

	default:
		return Result{}, errors.New("unhandled command " + string(cmd.Type))
	}

	r.broadcastGestures()
	return res, nil
}

// persistErr isolates storage failures from validation and lookup errors
func persistErr(err error) error {
	if err == nil || errors.Is(err, gesture.ErrValidation) || errors.Is(err, gesture.ErrNotFound) {
		return nil
	}
	return err
}

// forward sends msg to the worker, dropping it when the worker is offline
func (r *Router) forward(msg protocol.Command) bool {
	if r.link == nil {
		return false
	}
	if err := r.link.Send(msg); err != nil {
		if errors.Is(err, workerlink.ErrUpstreamUnavailable) {
			r.logger.Warn("Worker offline, command dropped", "cmd", msg.Type)
		} else {
			r.logger.Error("Failed to forward command", "cmd", msg.Type, "error", err)
		}
		return false
	}
	return true
}

func (r *Router) broadcast(msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		r.logger.Error("Failed to encode event", "error", err)
		return
	}
	r.pool.Broadcast(data)
}

func (r *Router) broadcastGestures() {
	data, err := protocol.Encode(protocol.NewGestureUpdated(r.store.Snapshot()))
	if err != nil {
		r.logger.Error("Failed to encode gestures", "error", err)
		return
	}
	r.pool.Broadcast(data)
	r.publish("gestures", data)
}

func (r *Router) publish(kind string, payload []byte) {
	if r.publisher != nil {
		r.publisher.Publish(kind, payload)
	}
}

// HandleConnectivity implements workerlink.Handler
func (r *Router) HandleConnectivity(c workerlink.Connectivity) {
	r.enqueue(func() { r.onConnectivity(c) })
}

// HandleFrame implements workerlink.Handler
func (r *Router) HandleFrame(raw []byte) {
	r.enqueue(func() { r.onWorkerFrame(raw) })
}

func (r *Router) onConnectivity(c workerlink.Connectivity) {
	metrics.RecordWorkerConnected(c.Connected)
	if r.health != nil {
		r.health.SetWorkerConnected(c.Connected)
	}

	status := protocol.NewMLStatus(c.Connected)
	data, err := protocol.Encode(status)
	if err == nil {
		r.pool.Broadcast(data)
		r.publish("status", data)
	}

	if !c.Connected {
		r.cameraOn = false
		r.logger.Warn("Worker disconnected", "generation", c.Generation)
		return
	}

	// a newer connection has its own event queued behind this one
	if r.link.Generation() != c.Generation {
		return
	}
	r.resync()
}

// resync pushes every gesture to a freshly connected worker, once each
func (r *Router) resync() {
	snapshot := r.store.Snapshot()
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sent := 0
	for _, id := range ids {
		if r.forward(protocol.AddGestureCommand(snapshot[id])) {
			sent++
		}
	}
	r.logger.Info("Worker resynced", "gestures", sent)
}

func (r *Router) onWorkerFrame(raw []byte) {
	ev, err := protocol.DecodeEvent(raw)
	if err != nil {
		metrics.RecordMalformed("worker")
		r.logger.Warn("Dropping malformed worker frame", "error", err, "size", len(raw))
		return
	}
	metrics.RecordWorkerEvent(string(ev.Type))

	switch ev.Type {
	case protocol.EvtConnected:
		// the relay sends its own snapshot; only the camera state is kept
		if ev.CameraOn != nil {
			r.cameraOn = *ev.CameraOn
		}
		return

	case protocol.EvtGestureUpdated:
		// the store is authoritative for gesture configuration
		return

	case protocol.EvtCameraStatus:
		if ev.Active != nil {
			r.cameraOn = *ev.Active
		}
		r.publish("camera", raw)

	case protocol.EvtRecordingStarted:
		if _, err := r.store.BeginRecording(ev.ID, protocol.IntOr(ev.Total, config.DefaultRecordingTotal)); errors.Is(err, gesture.ErrNotFound) {
			r.logger.Debug("Dropping recording_started for unknown gesture", "gesture_id", ev.ID)
			return
		}

	case protocol.EvtRecordingProgress:
		r.onRecordingProgress(ev, raw)
		return

	case protocol.EvtRecordingStopped:
		ctx, cancel := context.WithTimeout(context.Background(), config.DefaultCommandTimeout)
		rec, err := r.store.EndRecording(ctx)
		cancel()
		if err != nil {
			r.logger.Error("Failed to persist sample count", "error", err)
		}
		if rec != nil {
			metrics.RecordPersist(err)
		}

	case protocol.EvtFrame:
		if ev.Detection != nil {
			if data, err := protocol.Encode(ev.Detection); err == nil {
				r.publish("detection", data)
			}
		}

	case protocol.EvtTrainProgress, protocol.EvtTrainComplete:
		r.publish("training", raw)
	}

	r.pool.Broadcast(raw)
}

// onRecordingProgress applies a progress tick and forwards it. Ticks for
// unknown or deleted gestures, or for a recording already stopped, are dropped.
func (r *Router) onRecordingProgress(ev protocol.Event, raw []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultCommandTimeout)
	defer cancel()

	final := !ev.RecordingActive()
	persisted, err := r.store.ApplySampleProgress(ctx, ev.ID,
		protocol.IntOr(ev.Recorded, 0), protocol.IntOr(ev.Total, 0), final)
	switch {
	case errors.Is(err, gesture.ErrNotFound):
		r.logger.Debug("Dropping progress for unknown gesture", "gesture_id", ev.ID)
		return
	case errors.Is(err, gesture.ErrRecordingInactive):
		r.logger.Debug("Dropping progress for stopped recording", "gesture_id", ev.ID)
		return
	case err != nil:
		metrics.RecordPersist(err)
		r.logger.Error("Failed to persist sample count", "gesture_id", ev.ID, "error", err)
	case persisted:
		metrics.RecordPersist(nil)
	}

	r.pool.Broadcast(raw)
	if final {
		r.logger.Info("Recording finished", "gesture_id", ev.ID, "recorded", protocol.IntOr(ev.Recorded, 0))
		r.broadcastGestures()
	}
}
