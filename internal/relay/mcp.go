package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/gesture-relay/internal/config"
	"github.com/AltairaLabs/gesture-relay/internal/gesture"
	"github.com/AltairaLabs/gesture-relay/internal/protocol"
)

// MCPConfig holds configuration for the MCP server
type MCPConfig struct {
	Name    string
	Version string
}

// MCPServer exposes gesture management as MCP tools
type MCPServer struct {
	server      *server.MCPServer
	router      *Router
	auditLogger *AuditLogger
}

// NewMCPServer creates the MCP server and registers every tool
func NewMCPServer(cfg MCPConfig, router *Router, audit *AuditLogger) *MCPServer {
	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	ms := &MCPServer{
		server:      mcpServer,
		router:      router,
		auditLogger: audit,
	}
	ms.registerTools()
	return ms
}

// Server returns the underlying mcp-go server
func (ms *MCPServer) Server() *server.MCPServer {
	return ms.server
}

// SSEHandler returns the HTTP/SSE transport mounted under /mcp
func (ms *MCPServer) SSEHandler(baseURL string) http.Handler {
	return server.NewSSEServer(ms.server,
		server.WithBaseURL(baseURL),
		server.WithStaticBasePath("/mcp"),
	)
}

func (ms *MCPServer) registerTools() {
	ms.server.AddTool(mcp.NewTool(config.ToolGestureList,
		mcp.WithDescription("List all configured gestures keyed by id"),
	), ms.handleGestureList)

	ms.server.AddTool(mcp.NewTool(config.ToolGestureAdd,
		mcp.WithDescription("Create a gesture and register it with the recognition worker"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name; detections are reported by this name")),
		mcp.WithString("action", mcp.Required(), mcp.Description("Action token fired on detection, e.g. alt_tab, screenshot, none, cursor_action")),
		mcp.WithString("icon", mcp.Description("Glyph shown next to the gesture")),
		mcp.WithString("cursorAction", mcp.Description("Cursor sub-type, required when action is cursor_action"),
			mcp.Enum(gesture.CursorActions...)),
	), ms.handleGestureAdd)

	ms.server.AddTool(mcp.NewTool(config.ToolGestureUpdate,
		mcp.WithDescription("Update fields of an existing gesture"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Gesture id")),
		mcp.WithString("name", mcp.Description("New display name")),
		mcp.WithString("action", mcp.Description("New action token")),
		mcp.WithString("icon", mcp.Description("New glyph")),
		mcp.WithString("cursorAction", mcp.Description("New cursor sub-type"), mcp.Enum(gesture.CursorActions...)),
	), ms.handleGestureUpdate)

	ms.server.AddTool(mcp.NewTool(config.ToolGestureDelete,
		mcp.WithDescription("Delete a gesture and its recorded samples"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Gesture id")),
	), ms.handleGestureDelete)

	ms.server.AddTool(mcp.NewTool(config.ToolGestureToggle,
		mcp.WithDescription("Enable or disable a gesture; flips it when active is omitted"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Gesture id")),
		mcp.WithBoolean("active", mcp.Description("Desired active state")),
	), ms.handleGestureToggle)

	ms.server.AddTool(mcp.NewTool(config.ToolRecordingStart,
		mcp.WithDescription("Start recording training samples for a gesture"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Gesture id")),
		mcp.WithNumber("total", mcp.Description("Samples to record (default 80)"), mcp.Min(1), mcp.Max(1000)),
	), ms.handleRecordingStart)

	ms.server.AddTool(mcp.NewTool(config.ToolSettingsUpdate,
		mcp.WithDescription("Update recognition settings"),
		mcp.WithNumber("confidenceThreshold", mcp.Description("Minimum confidence percentage"), mcp.Min(10), mcp.Max(95)),
		mcp.WithNumber("cooldown", mcp.Description("Milliseconds between fired actions"), mcp.Min(300), mcp.Max(3000)),
		mcp.WithNumber("bufferSize", mcp.Description("Frames that must agree before firing"), mcp.Min(2), mcp.Max(12)),
	), ms.handleSettingsUpdate)

	ms.server.AddTool(mcp.NewTool(config.ToolCursorSettings,
		mcp.WithDescription("Update cursor control settings"),
		mcp.WithObject("settings", mcp.Required(), mcp.Description("Cursor settings object passed to the worker")),
	), ms.handleCursorSettings)

	simple := []struct {
		name, description string
		cmd               protocol.CommandType
	}{
		{config.ToolCameraStart, "Start the worker camera", protocol.CmdCameraStart},
		{config.ToolCameraStop, "Stop the worker camera", protocol.CmdCameraStop},
		{config.ToolRecordingStop, "Stop the active sample recording", protocol.CmdStopRecording},
		{config.ToolModelRetrain, "Retrain the recognition model from recorded samples", protocol.CmdRetrain},
		{config.ToolStatsGet, "Ask the worker to broadcast model statistics", protocol.CmdGetStats},
		{config.ToolCursorToggle, "Toggle cursor control mode", protocol.CmdToggleCursorMode},
	}
	for _, t := range simple {
		ms.server.AddTool(mcp.NewTool(t.name, mcp.WithDescription(t.description)), ms.simpleHandler(t.name, t.cmd))
	}
}

func (ms *MCPServer) getSessionID(ctx context.Context) string {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		return session.SessionID()
	}
	return "default-session"
}

// run submits cmd with audit logging and renders the outcome as a tool result
func (ms *MCPServer) run(ctx context.Context, tool string, cmd protocol.Command, args map[string]interface{}) (*mcp.CallToolResult, error) {
	entry := &AuditEntry{
		Source:    "mcp",
		SessionID: ms.getSessionID(ctx),
		Command:   tool,
		GestureID: cmd.ID,
		Arguments: args,
	}
	ms.auditLogger.LogCommand(ctx, entry)

	res, err := ms.router.Submit(ctx, cmd)
	if err != nil {
		entry.ErrorMsg = err.Error()
		ms.auditLogger.LogResult(ctx, entry)
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry.Forwarded = res.Forwarded
	ms.auditLogger.LogResult(ctx, entry)

	out := map[string]any{"forwarded": res.Forwarded}
	if res.Gesture != nil {
		out["gesture"] = res.Gesture
	}
	if res.Recording != nil {
		out["recording"] = res.Recording
	}
	if !res.Forwarded {
		out["message"] = fmt.Sprintf(config.ErrWorkerOffline, cmd.Type)
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func optString(req mcp.CallToolRequest, key string) *string {
	if v, ok := req.GetArguments()[key].(string); ok {
		return &v
	}
	return nil
}

func optBool(req mcp.CallToolRequest, key string) *bool {
	if v, ok := req.GetArguments()[key].(bool); ok {
		return &v
	}
	return nil
}

func optFloat(req mcp.CallToolRequest, key string) *float64 {
	if v, ok := req.GetArguments()[key].(float64); ok {
		return &v
	}
	return nil
}

func optInt(req mcp.CallToolRequest, key string) *int {
	if v := optFloat(req, key); v != nil {
		i := int(*v)
		if float64(i) != *v {
			// let schema validation reject fractional values
			i = -1
		}
		return &i
	}
	return nil
}

func (ms *MCPServer) handleGestureList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"gestures": ms.router.Store().Snapshot()})
}

func (ms *MCPServer) handleGestureAdd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cmd := protocol.Command{
		Type:         protocol.CmdAddGesture,
		Name:         &name,
		Action:       &action,
		Icon:         optString(request, "icon"),
		CursorAction: optString(request, "cursorAction"),
	}
	return ms.run(ctx, config.ToolGestureAdd, cmd, request.GetArguments())
}

func (ms *MCPServer) handleGestureUpdate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cmd := protocol.Command{
		Type:         protocol.CmdUpdateGesture,
		ID:           id,
		Name:         optString(request, "name"),
		Action:       optString(request, "action"),
		Icon:         optString(request, "icon"),
		CursorAction: optString(request, "cursorAction"),
	}
	return ms.run(ctx, config.ToolGestureUpdate, cmd, request.GetArguments())
}

func (ms *MCPServer) handleGestureDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return ms.run(ctx, config.ToolGestureDelete, protocol.DeleteGestureCommand(id), request.GetArguments())
}

func (ms *MCPServer) handleGestureToggle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cmd := protocol.Command{Type: protocol.CmdToggleGesture, ID: id, Active: optBool(request, "active")}
	return ms.run(ctx, config.ToolGestureToggle, cmd, request.GetArguments())
}

func (ms *MCPServer) handleRecordingStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cmd := protocol.Command{Type: protocol.CmdStartRecording, ID: id, Total: optInt(request, "total")}
	if cmd.Total == nil {
		total := config.DefaultRecordingTotal
		cmd.Total = &total
	}
	return ms.run(ctx, config.ToolRecordingStart, cmd, request.GetArguments())
}

func (ms *MCPServer) handleSettingsUpdate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cmd := protocol.Command{
		Type:                protocol.CmdUpdateSettings,
		ConfidenceThreshold: optFloat(request, "confidenceThreshold"),
		Cooldown:            optFloat(request, "cooldown"),
		BufferSize:          optInt(request, "bufferSize"),
	}
	return ms.run(ctx, config.ToolSettingsUpdate, cmd, request.GetArguments())
}

func (ms *MCPServer) handleCursorSettings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	settings, ok := request.GetArguments()["settings"].(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("required argument \"settings\" not found"), nil
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cmd := protocol.Command{Type: protocol.CmdUpdateCursorSettings, Settings: raw}
	return ms.run(ctx, config.ToolCursorSettings, cmd, request.GetArguments())
}

func (ms *MCPServer) simpleHandler(tool string, cmdType protocol.CommandType) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return ms.run(ctx, tool, protocol.SimpleCommand(cmdType), request.GetArguments())
	}
}
