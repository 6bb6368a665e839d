package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/gesture-relay/internal/config"
	"github.com/AltairaLabs/gesture-relay/internal/protocol"
	"github.com/AltairaLabs/gesture-relay/internal/retry"
)

// ErrNotConnected is returned by Send while the client has no open socket
var ErrNotConnected = errors.New("not connected to relay")

// ClientConfig holds client settings
type ClientConfig struct {
	// URL is the relay WebSocket endpoint, e.g. ws://localhost:3001/ws
	URL          string
	RetryDelay   time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Client keeps a WebSocket open to the relay and feeds every event into a
// Projector. It reconnects after a fixed delay.
type Client struct {
	cfg       ClientConfig
	projector *Projector
	policy    retry.Policy
	dialer    *websocket.Dialer
	logger    *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a client that projects into p
func NewClient(cfg ClientConfig, p *Projector) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = config.DefaultClientRetryDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = config.DefaultWorkerDialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = config.DefaultWriteTimeout
	}
	return &Client{
		cfg:       cfg,
		projector: p,
		policy:    retry.FixedPolicy(cfg.RetryDelay),
		dialer:    &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		logger:    cfg.Logger.With("relay_url", cfg.URL),
	}
}

// Projector returns the projector fed by this client
func (c *Client) Projector() *Projector {
	return c.projector
}

// Run connects and reconnects until ctx is cancelled
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Debug("Relay dial failed", "error", err, "retry_in", c.cfg.RetryDelay)
		} else {
			c.serve(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if werr := c.policy.Wait(ctx, 0); werr != nil {
			return werr
		}
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.projector.SetConnected(true)
	c.logger.Info("Connected to relay")

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("Relay connection lost", "error", err)
			}
			break
		}
		if err := c.projector.Apply(raw); err != nil {
			c.logger.Warn("Ignoring malformed relay frame", "error", err)
		}
	}

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()
	c.projector.SetConnected(false)
}

// Send writes a command to the relay
func (c *Client) Send(cmd protocol.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Type, err)
	}
	return nil
}
