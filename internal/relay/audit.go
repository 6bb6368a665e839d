package relay

import (
	"context"
	"log/slog"
	"time"
)

// AuditEntry records one externally triggered command
type AuditEntry struct {
	Timestamp time.Time
	Source    string // rest/mcp/ws
	SessionID string
	Command   string
	GestureID string
	Arguments map[string]interface{}
	Forwarded bool
	ErrorMsg  string
}

// AuditLogger logs configuration-changing commands for later review
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger}
}

// LogCommand logs a command invocation
func (al *AuditLogger) LogCommand(ctx context.Context, entry *AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	al.logger.InfoContext(ctx, "command_call",
		"source", entry.Source,
		"session_id", entry.SessionID,
		"command", entry.Command,
		"gesture_id", entry.GestureID,
		"arguments", entry.Arguments,
		"timestamp", entry.Timestamp,
	)
}

// LogResult logs the outcome of a command
func (al *AuditLogger) LogResult(ctx context.Context, entry *AuditEntry) {
	if entry.ErrorMsg != "" {
		al.logger.ErrorContext(ctx, "command_error",
			"source", entry.Source,
			"session_id", entry.SessionID,
			"command", entry.Command,
			"gesture_id", entry.GestureID,
			"error", entry.ErrorMsg,
		)
		return
	}
	al.logger.InfoContext(ctx, "command_result",
		"source", entry.Source,
		"session_id", entry.SessionID,
		"command", entry.Command,
		"gesture_id", entry.GestureID,
		"forwarded", entry.Forwarded,
	)
}
