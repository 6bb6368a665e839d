package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/gesture-relay/internal/clientpool"
	"github.com/AltairaLabs/gesture-relay/internal/config"
	"github.com/AltairaLabs/gesture-relay/internal/protocol"
)

// maxClientFrame bounds a single command frame from a client
const maxClientFrame = 64 << 10

// wsSender adapts a client WebSocket to clientpool.Sender. Only the
// session's writer goroutine calls Send.
type wsSender struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (s *wsSender) Send(data []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSender) Close() error {
	return s.conn.Close()
}

// handleWebSocket upgrades a client connection, registers it and reads commands until it closes
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	session, err := s.router.Connect(r.Context(), &wsSender{conn: conn, writeTimeout: config.DefaultWriteTimeout})
	if err != nil {
		s.logger.Warn("Failed to register client", "error", err)
		_ = conn.Close()
		return
	}
	defer session.Close()

	go s.pingClient(conn, session)

	conn.SetReadLimit(maxClientFrame)
	readDeadline := 2 * config.DefaultPingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Client read failed", "session_id", session.ID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		ctx, cancel := context.WithTimeout(r.Context(), config.DefaultCommandTimeout)
		_, err = s.router.SubmitRaw(ctx, raw)
		cancel()
		if err != nil {
			s.replyError(session, err)
		}
	}
}

// replyError sends an error event to the originating session only
func (s *Server) replyError(session *clientpool.Session, err error) {
	_, code := classify(err)
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Debug("Command rejected", "session_id", session.ID, "code", code, "error", err)
	data, encErr := protocol.Encode(protocol.NewError(code, err.Error()))
	if encErr != nil {
		return
	}
	_ = s.router.pool.SendTo(session.ID, data)
}

func (s *Server) pingClient(conn *websocket.Conn, session *clientpool.Session) {
	ticker := time.NewTicker(config.DefaultPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-session.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(config.DefaultWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				session.Close()
				return
			}
		}
	}
}
