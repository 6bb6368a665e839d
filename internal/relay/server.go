package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr string
	// PublicURL is the base URL advertised by the MCP SSE transport
	PublicURL      string
	MetricsEnabled bool
	Name           string
	Version        string
	Logger         *slog.Logger
}

// Server is the client-facing HTTP surface: WebSocket, REST, MCP, health and metrics
type Server struct {
	router     *Router
	audit      *AuditLogger
	mcp        *MCPServer
	upgrader   websocket.Upgrader
	httpServer *http.Server
	version    string
	logger     *slog.Logger
}

// NewServer builds the HTTP handler tree
func NewServer(cfg ServerConfig, router *Router) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "gesture-relay"
	}

	audit := NewAuditLogger(cfg.Logger)
	s := &Server{
		router:  router,
		audit:   audit,
		mcp:     NewMCPServer(MCPConfig{Name: cfg.Name, Version: cfg.Version}, router, audit),
		version: cfg.Version,
		logger:  cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.registerAPI(mux)
	mux.Handle("/mcp/", s.mcp.SSEHandler(publicURL(cfg)))
	if cfg.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           withCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func publicURL(cfg ServerConfig) string {
	if cfg.PublicURL != "" {
		return strings.TrimSuffix(cfg.PublicURL, "/")
	}
	addr := cfg.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// MCP returns the MCP server
func (s *Server) MCP() *MCPServer {
	return s.mcp
}

// Listen opens the TCP listener for the HTTP server
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	listenConfig := net.ListenConfig{}
	lis, err := listenConfig.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return lis, nil
}

// Serve accepts connections on lis until Shutdown
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("Starting HTTP server",
		"addr", lis.Addr().String(),
		"websocket", "/ws",
		"mcp_base_path", "/mcp")
	if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes every client session
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.router.pool.CloseAll()
	return err
}
