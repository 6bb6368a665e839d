// Package clientpool tracks connected client sessions and fans out events to them.
package clientpool

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/AltairaLabs/gesture-relay/internal/config"
)

// ErrSessionNotFound is returned when addressing a session that is gone
var ErrSessionNotFound = errors.New("session not found")

// Sender abstracts the client transport so sessions work with any socket implementation
type Sender interface {
	Send(data []byte) error
	Close() error
}

// Session is one connected client. Outbound messages are queued and written
// by a dedicated goroutine so a slow client never blocks the relay.
type Session struct {
	ID string

	sender    Sender
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	pool      *Pool
}

// Done is closed when the session ends
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close ends the session and removes it from its pool
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.sender.Close()
		s.pool.remove(s.ID)
	})
}

type enqueueResult int

const (
	queued enqueueResult = iota
	closed
	full
)

// enqueue queues data without blocking
func (s *Session) enqueue(data []byte) enqueueResult {
	select {
	case <-s.done:
		return closed
	default:
	}
	select {
	case s.out <- data:
		return queued
	default:
		return full
	}
}

func (s *Session) writeLoop(logger *slog.Logger) {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.out:
			if err := s.sender.Send(data); err != nil {
				logger.Debug("Client write failed", "session_id", s.ID, "error", err)
				s.Close()
				return
			}
		}
	}
}

// Pool manages client sessions
type Pool struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	buffer   int
	logger   *slog.Logger

	// OnEvict is called when a session is dropped because its queue overflowed
	OnEvict func(sessionID string)
}

// NewPool creates a pool whose sessions buffer up to buffer outbound messages
func NewPool(buffer int, logger *slog.Logger) *Pool {
	if buffer <= 0 {
		buffer = config.DefaultSessionBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sessions: make(map[string]*Session),
		buffer:   buffer,
		logger:   logger,
	}
}

// Register adds a session. initial, if non-nil, is queued before the session
// becomes visible to broadcasts so it is always the first message delivered.
func (p *Pool) Register(sender Sender, initial []byte) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		sender: sender,
		out:    make(chan []byte, p.buffer),
		done:   make(chan struct{}),
		pool:   p,
	}
	if initial != nil {
		s.out <- initial
	}

	p.mu.Lock()
	p.sessions[s.ID] = s
	count := len(p.sessions)
	p.mu.Unlock()

	go s.writeLoop(p.logger)
	p.logger.Info("Client connected", "session_id", s.ID, "clients", count)
	return s
}

// Unregister closes and removes a session
func (p *Pool) Unregister(sessionID string) {
	if s := p.Get(sessionID); s != nil {
		s.Close()
	}
}

func (p *Pool) remove(sessionID string) {
	p.mu.Lock()
	_, ok := p.sessions[sessionID]
	delete(p.sessions, sessionID)
	count := len(p.sessions)
	p.mu.Unlock()
	if ok {
		p.logger.Info("Client disconnected", "session_id", sessionID, "clients", count)
	}
}

// Get retrieves a session by ID
func (p *Pool) Get(sessionID string) *Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sessions[sessionID]
}

// Sessions returns a snapshot of the current sessions
func (p *Pool) Sessions() []*Session {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Count returns the number of connected sessions
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// Broadcast queues data on every session and returns how many accepted it.
// Sessions whose queue is full are evicted; a disconnect during the
// broadcast never aborts delivery to the others.
func (p *Pool) Broadcast(data []byte) int {
	delivered := 0
	for _, s := range p.Sessions() {
		switch s.enqueue(data) {
		case queued:
			delivered++
		case full:
			p.evict(s)
		}
	}
	return delivered
}

// SendTo queues data for a single session
func (p *Pool) SendTo(sessionID string, data []byte) error {
	s := p.Get(sessionID)
	if s == nil {
		return ErrSessionNotFound
	}
	switch s.enqueue(data) {
	case full:
		p.evict(s)
		return ErrSessionNotFound
	case closed:
		return ErrSessionNotFound
	}
	return nil
}

// CloseAll ends every session
func (p *Pool) CloseAll() {
	for _, s := range p.Sessions() {
		s.Close()
	}
}

func (p *Pool) evict(s *Session) {
	p.logger.Warn("Client too slow, dropping session", "session_id", s.ID, "buffer", p.buffer)
	s.Close()
	if p.OnEvict != nil {
		p.OnEvict(s.ID)
	}
}

// ChannelSender implements Sender by writing to a channel. It is useful for
// tests and for in-process subscribers.
type ChannelSender struct {
	ch        chan<- string
	closeOnce sync.Once
	closed    chan struct{}
}

// NewChannelSender creates a sender that writes each message to ch
func NewChannelSender(ch chan<- string) *ChannelSender {
	return &ChannelSender{ch: ch, closed: make(chan struct{})}
}

// Send writes data to the channel; it fails once the sender is closed
func (c *ChannelSender) Send(data []byte) error {
	select {
	case <-c.closed:
		return errors.New("sender closed")
	case c.ch <- string(data):
		return nil
	}
}

// Close marks the sender closed
func (c *ChannelSender) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Closed is closed after Close is called
func (c *ChannelSender) Closed() <-chan struct{} {
	return c.closed
}
