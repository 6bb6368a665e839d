// Package workerlink maintains the single reconnecting WebSocket connection
// from the relay to the recognition worker.
package workerlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/gesture-relay/internal/config"
	"github.com/AltairaLabs/gesture-relay/internal/retry"
)

// State is the connection state of the link
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Connectivity reports a transition to or from the connected state.
// Generation increases with every successful dial.
type Connectivity struct {
	Connected  bool
	Generation uint64
}

// Handler receives link notifications. Calls are made from the link's read
// goroutine in the order the underlying events happen.
type Handler interface {
	HandleConnectivity(c Connectivity)
	HandleFrame(raw []byte)
}

// Config holds link settings
type Config struct {
	URL          string
	Policy       retry.Policy
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
	Logger       *slog.Logger
	// OnDialError is called after every failed dial attempt
	OnDialError func(err error)
}

// Link owns the worker connection. The zero value is not usable; use New.
type Link struct {
	cfg     Config
	handler Handler
	dialer  *websocket.Dialer
	logger  *slog.Logger

	state      atomic.Int32
	generation atomic.Uint64

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// New creates a link. Run must be called to start connecting.
func New(cfg Config, handler Handler) *Link {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = config.DefaultWorkerDialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = config.DefaultWriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = config.DefaultPingInterval
	}
	if cfg.Policy.InitialDelay <= 0 {
		cfg.Policy = retry.FixedPolicy(config.DefaultWorkerRetryDelay)
	}
	return &Link{
		cfg:     cfg,
		handler: handler,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		logger:  cfg.Logger.With("worker_url", cfg.URL),
	}
}

// State returns the current connection state
func (l *Link) State() State {
	return State(l.state.Load())
}

// Connected reports whether commands can currently be sent
func (l *Link) Connected() bool {
	return l.State() == StateConnected
}

// Generation returns the id of the most recent successful connection
func (l *Link) Generation() uint64 {
	return l.generation.Load()
}

// Run dials the worker and keeps redialing until ctx is cancelled
func (l *Link) Run(ctx context.Context) error {
	attempt := 0
	for {
		l.state.Store(int32(StateConnecting))
		conn, err := l.dial(ctx)
		if err != nil {
			l.state.Store(int32(StateDisconnected))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if l.cfg.OnDialError != nil {
				l.cfg.OnDialError(err)
			}
			delay := l.cfg.Policy.CalculateDelay(attempt)
			l.logger.Warn("Worker dial failed, retrying", "error", err, "attempt", attempt+1, "delay", delay)
			if werr := l.cfg.Policy.Wait(ctx, attempt); werr != nil {
				return werr
			}
			attempt++
			continue
		}

		attempt = 0
		l.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if werr := l.cfg.Policy.Wait(ctx, 0); werr != nil {
			return werr
		}
	}
}

func (l *Link) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, l.cfg.DialTimeout)
	defer cancel()

	conn, resp, err := l.dialer.DialContext(dialCtx, l.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", l.cfg.URL, err)
	}
	return conn, nil
}

// serve runs one connection until it fails or ctx is cancelled
func (l *Link) serve(ctx context.Context, conn *websocket.Conn) {
	gen := l.generation.Add(1)

	l.writeMu.Lock()
	l.conn = conn
	l.writeMu.Unlock()
	l.state.Store(int32(StateConnected))

	l.logger.Info("Connected to worker", "generation", gen)
	l.handler.HandleConnectivity(Connectivity{Connected: true, Generation: gen})

	done := make(chan struct{})
	go l.keepalive(ctx, conn, done)

	readDeadline := 2 * l.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.logger.Warn("Worker connection lost", "error", err, "generation", gen)
			} else {
				l.logger.Info("Worker connection closed", "generation", gen)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		l.handler.HandleFrame(raw)
	}

	close(done)
	l.writeMu.Lock()
	l.conn = nil
	l.state.Store(int32(StateDisconnected))
	l.writeMu.Unlock()
	_ = conn.Close()

	l.handler.HandleConnectivity(Connectivity{Connected: false, Generation: gen})
}

// keepalive pings the worker and closes the socket when ctx is cancelled
func (l *Link) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(l.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			deadline := time.Now().Add(l.cfg.WriteTimeout)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "relay shutting down"), deadline)
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(l.cfg.WriteTimeout)); err != nil {
				l.logger.Debug("Worker ping failed", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

// Send encodes msg as JSON and writes it to the worker. While disconnected the
// message is dropped and ErrUpstreamUnavailable is returned.
func (l *Link) Send(msg any) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.conn == nil || l.State() != StateConnected {
		return ErrUpstreamUnavailable
	}
	_ = l.conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
	if err := l.conn.WriteJSON(msg); err != nil {
		_ = l.conn.Close()
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// IsUnavailable reports whether err means the command was dropped because
// the worker is offline or the write failed
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrTransport)
}
