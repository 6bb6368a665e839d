package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/AltairaLabs/gesture-relay/internal/config"
	"github.com/AltairaLabs/gesture-relay/internal/gesture"
	"github.com/AltairaLabs/gesture-relay/internal/protocol"
)

// maxBodyBytes bounds REST request bodies
const maxBodyBytes = 64 << 10

func (s *Server) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/gestures", s.handleListGestures)
	mux.HandleFunc("POST /api/gestures", s.handleAddGesture)
	mux.HandleFunc("PATCH /api/gestures/{id}", s.handleUpdateGesture)
	mux.HandleFunc("DELETE /api/gestures/{id}", s.handleDeleteGesture)
	mux.HandleFunc("PATCH /api/gestures/{id}/toggle", s.handleToggleGesture)
	mux.HandleFunc("POST /api/gestures/{id}/record", s.handleStartRecording)
	mux.HandleFunc("POST /api/gestures/{id}/stop-record", s.handleStopRecording)
	mux.HandleFunc("POST /api/camera/start", s.passThrough(protocol.CmdCameraStart, "starting"))
	mux.HandleFunc("POST /api/camera/stop", s.passThrough(protocol.CmdCameraStop, "stopping"))
	mux.HandleFunc("POST /api/train", s.handleRetrain)
	mux.HandleFunc("POST /api/settings", s.passThrough(protocol.CmdUpdateSettings, "updated"))
	mux.HandleFunc("POST /api/cursor/toggle", s.passThrough(protocol.CmdToggleCursorMode, "toggled"))
	mux.HandleFunc("POST /api/cursor/settings", s.passThrough(protocol.CmdUpdateCursorSettings, "updated"))
	mux.HandleFunc("GET /api/stats", s.passThrough(protocol.CmdGetStats, "requested"))
	mux.HandleFunc("GET /api/status", s.handleStatus)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, _ := classify(err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeBody reads an optional JSON command body
func decodeBody(r *http.Request) (protocol.Command, error) {
	var cmd protocol.Command
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&cmd); err != nil && !errors.Is(err, io.EOF) {
		return protocol.Command{}, fmt.Errorf("%w: %v", protocol.ErrMalformedMessage, err)
	}
	cmd.Data = nil
	return cmd, nil
}

// submit runs cmd through the router with audit logging
func (s *Server) submit(r *http.Request, cmd protocol.Command) (Result, error) {
	ctx, cancel := context.WithTimeout(r.Context(), config.DefaultCommandTimeout)
	defer cancel()

	entry := &AuditEntry{Source: "rest", SessionID: r.RemoteAddr, Command: string(cmd.Type), GestureID: cmd.ID}
	if !cmd.Type.IsPassThrough() {
		s.audit.LogCommand(ctx, entry)
	}
	res, err := s.router.Submit(ctx, cmd)
	if err != nil {
		entry.ErrorMsg = err.Error()
	}
	entry.Forwarded = res.Forwarded
	if !cmd.Type.IsPassThrough() {
		s.audit.LogResult(ctx, entry)
	}
	return res, err
}

func (s *Server) handleListGestures(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"gestures": s.router.Store().Snapshot()})
}

func (s *Server) handleAddGesture(w http.ResponseWriter, r *http.Request) {
	cmd, err := decodeBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	cmd.Type = protocol.CmdAddGesture
	cmd.ID = ""

	res, err := s.submit(r, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": res.Gesture.ID, "gesture": res.Gesture})
}

func (s *Server) handleUpdateGesture(w http.ResponseWriter, r *http.Request) {
	cmd, err := decodeBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	cmd.Type = protocol.CmdUpdateGesture
	cmd.ID = r.PathValue("id")

	res, err := s.submit(r, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": res.Gesture.ID, "gesture": res.Gesture})
}

func (s *Server) handleDeleteGesture(w http.ResponseWriter, r *http.Request) {
	cmd := protocol.Command{Type: protocol.CmdDeleteGesture, ID: r.PathValue("id")}
	if _, err := s.submit(r, cmd); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleToggleGesture(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	cmd := protocol.Command{Type: protocol.CmdToggleGesture, ID: r.PathValue("id"), Active: body.Active}

	res, err := s.submit(r, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": res.Gesture.ID, "active": res.Gesture.Active})
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	total := body.TotalOr(config.DefaultRecordingTotal)
	cmd := protocol.StartRecordingCommand(r.PathValue("id"), total)

	res, err := s.submit(r, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "recording", "id": cmd.ID, "total": total, "forwarded": res.Forwarded,
	})
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	cmd := protocol.SimpleCommand(protocol.CmdStopRecording)
	res, err := s.submit(r, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	out := map[string]any{"status": "stopped", "forwarded": res.Forwarded}
	if res.Recording != nil {
		out["id"] = res.Recording.GestureID
		out["recorded"] = res.Recording.Recorded
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	res, err := s.submit(r, protocol.SimpleCommand(protocol.CmdRetrain))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "training", "forwarded": res.Forwarded})
}

// passThrough builds a handler that forwards the request body as cmdType
func (s *Server) passThrough(cmdType protocol.CommandType, status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd, err := decodeBody(r)
		if err != nil {
			writeError(w, err)
			return
		}
		cmd.Type = cmdType
		cmd.ID = ""

		res, err := s.submit(r, cmd)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    status,
			"forwarded": res.Forwarded,
			"message":   fmt.Sprintf(config.MsgCommandAccepted, cmdType),
		})
	}
}

// statusResponse summarizes relay state
type statusResponse struct {
	MLConnected bool               `json:"mlConnected"`
	Clients     int                `json:"clients"`
	Gestures    int                `json:"gestures"`
	Recording   *gesture.Recording `json:"recording,omitempty"`
	Version     string             `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		MLConnected: s.router.WorkerConnected(),
		Clients:     s.router.pool.Count(),
		Gestures:    s.router.Store().Len(),
		Recording:   s.router.Store().Recording(),
		Version:     s.version,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	worker := "disconnected"
	if s.router.WorkerConnected() {
		worker = "connected"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "worker": worker})
}

// withCORS allows browser clients served from other origins
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
