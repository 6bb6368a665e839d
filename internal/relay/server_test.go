package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/gesture-relay/internal/gesture"
	"github.com/AltairaLabs/gesture-relay/internal/protocol"
)

func newTestServer(t *testing.T, seed map[string]gesture.Record) (*Server, *harness) {
	t.Helper()
	h := newHarness(t, seed)
	srv := NewServer(ServerConfig{
		Addr:           ":0",
		MetricsEnabled: true,
		Version:        "test",
		Logger:         testLogger(),
	}, h.router)
	return srv, h
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAPIAddGesture(t *testing.T) {
	srv, h := newTestServer(t, nil)
	h.upstream.setConnected(true, 1)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/gestures",
		`{"name":"Peace","icon":"✌️","action":"screenshot"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	out := decodeResponse(t, rec)
	id, _ := out["id"].(string)
	if len(id) != 8 {
		t.Errorf("Expected 8-character id, got %q", id)
	}
	if _, err := h.store.Get(id); err != nil {
		t.Error("Expected gesture in store")
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/api/gestures", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	gestures, _ := decodeResponse(t, rec)["gestures"].(map[string]any)
	if _, ok := gestures[id]; !ok {
		t.Errorf("Expected %s in gesture list, got %v", id, gestures)
	}
}

func TestAPIErrors(t *testing.T) {
	srv, _ := newTestServer(t, map[string]gesture.Record{"g1": {Name: "Peace", Action: "none"}})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing name", http.MethodPost, "/api/gestures", `{"action":"none"}`, http.StatusBadRequest},
		{"unknown action", http.MethodPost, "/api/gestures", `{"name":"x","action":"explode"}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/gestures", `{"name":`, http.StatusBadRequest},
		{"update unknown", http.MethodPatch, "/api/gestures/nope", `{"name":"x"}`, http.StatusNotFound},
		{"delete unknown", http.MethodDelete, "/api/gestures/nope", "", http.StatusNotFound},
		{"toggle unknown", http.MethodPatch, "/api/gestures/nope/toggle", "", http.StatusNotFound},
		{"record unknown", http.MethodPost, "/api/gestures/nope/record", "", http.StatusNotFound},
		{"record bad total", http.MethodPost, "/api/gestures/g1/record", `{"total":0}`, http.StatusBadRequest},
		{"settings out of range", http.MethodPost, "/api/settings", `{"confidenceThreshold":5}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv.Handler(), tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if _, ok := decodeResponse(t, rec)["error"]; !ok {
				t.Error("Expected error field in response")
			}
		})
	}
}

func TestAPIGestureLifecycle(t *testing.T) {
	srv, h := newTestServer(t, map[string]gesture.Record{"g1": {Name: "Peace", Action: "none", Active: true}})
	h.upstream.setConnected(true, 1)

	rec := doRequest(t, srv.Handler(), http.MethodPatch, "/api/gestures/g1", `{"name":"Victory"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got, _ := h.store.Get("g1"); got.Name != "Victory" {
		t.Errorf("Expected renamed gesture, got %q", got.Name)
	}

	rec = doRequest(t, srv.Handler(), http.MethodPatch, "/api/gestures/g1/toggle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: expected 200, got %d", rec.Code)
	}
	if active, _ := decodeResponse(t, rec)["active"].(bool); active {
		t.Error("Expected toggle to deactivate gesture")
	}

	rec = doRequest(t, srv.Handler(), http.MethodPost, "/api/gestures/g1/record", `{"total":40}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("record: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if total, _ := decodeResponse(t, rec)["total"].(float64); total != 40 {
		t.Errorf("Expected total 40, got %v", total)
	}

	rec = doRequest(t, srv.Handler(), http.MethodPost, "/api/gestures/g1/stop-record", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", rec.Code)
	}
	if id, _ := decodeResponse(t, rec)["id"].(string); id != "g1" {
		t.Errorf("Expected stopped recording for g1, got %q", id)
	}

	rec = doRequest(t, srv.Handler(), http.MethodDelete, "/api/gestures/g1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	if h.store.Len() != 0 {
		t.Error("Expected gesture deleted")
	}
}

func TestAPIPassThroughWhileOffline(t *testing.T) {
	srv, h := newTestServer(t, nil)

	for _, path := range []string{"/api/camera/start", "/api/camera/stop", "/api/cursor/toggle", "/api/train"} {
		rec := doRequest(t, srv.Handler(), http.MethodPost, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d: %s", path, rec.Code, rec.Body.String())
			continue
		}
		if forwarded, _ := decodeResponse(t, rec)["forwarded"].(bool); forwarded {
			t.Errorf("%s: expected forwarded=false while offline", path)
		}
	}

	h.upstream.setConnected(true, 1)
	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/settings", `{"confidenceThreshold":70,"cooldown":1000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("settings: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	sent := h.upstream.commands()
	if len(sent) != 1 || sent[0].Type != protocol.CmdUpdateSettings || *sent[0].ConfidenceThreshold != 70 {
		t.Errorf("Expected forwarded update_settings, got %+v", sent)
	}
}

func TestStatusAndHealth(t *testing.T) {
	srv, h := newTestServer(t, map[string]gesture.Record{"g1": {Name: "Peace", Action: "none"}})
	h.upstream.setConnected(true, 1)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/status", "")
	out := decodeResponse(t, rec)
	if out["mlConnected"] != true || out["gestures"] != float64(1) || out["version"] != "test" {
		t.Errorf("Unexpected status: %v", out)
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || decodeResponse(t, rec)["worker"] != "connected" {
		t.Errorf("Unexpected healthz response %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "gesture_relay_") {
		t.Errorf("Expected relay metrics, got %d", rec.Code)
	}
}

func TestListenAndServe(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	lis, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(lis) }()

	resp, err := http.Get("http://" + lis.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Expected Serve to return nil after Shutdown, got %v", err)
	}

	if _, err := Listen(context.Background(), "127.0.0.1:-1"); err == nil {
		t.Error("Expected error for invalid address")
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv.Handler(), http.MethodOptions, "/api/gestures", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS origin header")
	}
}

func dialClient(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) (protocol.Event, error) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return protocol.Event{}, err
	}
	return protocol.DecodeEvent(raw)
}

func TestWebSocketErrorGoesToOriginatorOnly(t *testing.T) {
	srv, h := newTestServer(t, nil)
	h.upstream.setConnected(true, 1)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	a := dialClient(t, ts.URL)
	b := dialClient(t, ts.URL)
	for _, conn := range []*websocket.Conn{a, b} {
		ev, err := readEvent(t, conn, 2*time.Second)
		if err != nil || ev.Type != protocol.EvtConnected {
			t.Fatalf("Expected connected snapshot, got %v (%v)", ev.Type, err)
		}
	}

	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"type":"delete_gesture","id":"nope"}`)); err != nil {
		t.Fatal(err)
	}
	ev, err := readEvent(t, a, 2*time.Second)
	if err != nil {
		t.Fatalf("Expected error event: %v", err)
	}
	if ev.Type != protocol.EvtError || ev.Code != protocol.CodeNotFound {
		t.Errorf("Expected not_found error, got %s/%s", ev.Type, ev.Code)
	}
	if _, err := readEvent(t, b, 100*time.Millisecond); err == nil {
		t.Error("Expected other client to receive nothing")
	}
}

func TestWebSocketBroadcastsMutations(t *testing.T) {
	srv, h := newTestServer(t, nil)
	h.upstream.setConnected(true, 1)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	a := dialClient(t, ts.URL)
	b := dialClient(t, ts.URL)
	for _, conn := range []*websocket.Conn{a, b} {
		if _, err := readEvent(t, conn, 2*time.Second); err != nil {
			t.Fatal(err)
		}
	}

	msg := `{"type":"add_gesture","name":"Peace","action":"screenshot"}`
	if err := a.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatal(err)
	}
	for _, conn := range []*websocket.Conn{a, b} {
		ev, err := readEvent(t, conn, 2*time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if ev.Type != protocol.EvtGestureUpdated || len(ev.Gestures) != 1 {
			t.Errorf("Expected gesture_updated with one gesture, got %s %v", ev.Type, ev.Gestures)
		}
	}

	if err := a.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	ev, err := readEvent(t, a, 2*time.Second)
	if err != nil || ev.Code != protocol.CodeMalformed {
		t.Errorf("Expected malformed error, got %+v (%v)", ev, err)
	}
}
