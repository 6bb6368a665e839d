package mockworker

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/gesture-relay/internal/gesture"
	"github.com/AltairaLabs/gesture-relay/internal/protocol"
)

func newTestWorker(t *testing.T) (*Worker, *websocket.Conn) {
	t.Helper()
	w := New(Config{
		SampleInterval: 2 * time.Millisecond,
		TrainStep:      2 * time.Millisecond,
		TrainEpochs:    3,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(w)
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return w, conn
}

func read(t *testing.T, conn *websocket.Conn) protocol.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	ev, err := protocol.DecodeEvent(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return ev
}

func readUntil(t *testing.T, conn *websocket.Conn, want protocol.EventType) protocol.Event {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if ev := read(t, conn); ev.Type == want {
			return ev
		}
	}
	t.Fatalf("Did not receive %s", want)
	return protocol.Event{}
}

func send(t *testing.T, conn *websocket.Conn, cmd protocol.Command) {
	t.Helper()
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func TestHelloAndGestureCommands(t *testing.T) {
	w, conn := newTestWorker(t)

	hello := read(t, conn)
	if hello.Type != protocol.EvtConnected {
		t.Fatalf("Expected connected hello, got %s", hello.Type)
	}

	send(t, conn, protocol.AddGestureCommand(gesture.Record{ID: "g1", Name: "Peace", Action: "none", Active: true}))
	ev := read(t, conn)
	if ev.Type != protocol.EvtGestureUpdated || len(ev.Gestures) != 1 {
		t.Errorf("Expected gesture_updated with one gesture, got %s %v", ev.Type, ev.Gestures)
	}

	send(t, conn, protocol.ToggleGestureCommand("g1", false))
	ev = read(t, conn)
	if ev.Gestures["g1"].Active {
		t.Error("Expected gesture deactivated")
	}

	send(t, conn, protocol.DeleteGestureCommand("g1"))
	ev = read(t, conn)
	if len(ev.Gestures) != 0 {
		t.Errorf("Expected empty gestures, got %v", ev.Gestures)
	}
	if len(w.Commands()) != 3 {
		t.Errorf("Expected 3 recorded commands, got %d", len(w.Commands()))
	}
}

func TestRecordingTicks(t *testing.T) {
	w, conn := newTestWorker(t)
	read(t, conn)

	send(t, conn, protocol.AddGestureCommand(gesture.Record{ID: "g1", Name: "Peace", Action: "none", Active: true}))
	read(t, conn)

	send(t, conn, protocol.StartRecordingCommand("g1", 5))
	started := readUntil(t, conn, protocol.EvtRecordingStarted)
	if protocol.IntOr(started.Total, 0) != 5 {
		t.Errorf("Expected total 5, got %v", started.Total)
	}

	var last protocol.Event
	for {
		last = readUntil(t, conn, protocol.EvtRecordingProgress)
		if !last.RecordingActive() {
			break
		}
	}
	if protocol.IntOr(last.Recorded, 0) != 5 {
		t.Errorf("Expected final recorded 5, got %v", last.Recorded)
	}
	if got := w.Gestures()["g1"].Samples; got != 5 {
		t.Errorf("Expected worker samples 5, got %d", got)
	}
}

func TestTrainingAndStats(t *testing.T) {
	_, conn := newTestWorker(t)
	read(t, conn)

	send(t, conn, protocol.SimpleCommand(protocol.CmdRetrain))
	complete := readUntil(t, conn, protocol.EvtTrainComplete)
	if complete.Accuracy == nil || *complete.Accuracy != defaultAccuracy {
		t.Errorf("Expected accuracy %v, got %v", defaultAccuracy, complete.Accuracy)
	}

	send(t, conn, protocol.SimpleCommand(protocol.CmdGetStats))
	stats := readUntil(t, conn, protocol.EvtStats)
	if stats.ModelLoaded == nil || !*stats.ModelLoaded {
		t.Error("Expected modelLoaded after training")
	}
}

func TestCameraAndCursor(t *testing.T) {
	_, conn := newTestWorker(t)
	read(t, conn)

	send(t, conn, protocol.SimpleCommand(protocol.CmdCameraStart))
	ev := read(t, conn)
	if ev.Type != protocol.EvtCameraStatus || ev.Active == nil || !*ev.Active {
		t.Errorf("Expected camera_status active, got %+v", ev)
	}

	send(t, conn, protocol.SimpleCommand(protocol.CmdToggleCursorMode))
	ev = read(t, conn)
	if ev.Type != protocol.EvtCursorModeChanged || ev.Enabled == nil || !*ev.Enabled {
		t.Errorf("Expected cursor mode enabled, got %+v", ev)
	}
}

func TestDetect(t *testing.T) {
	w, conn := newTestWorker(t)
	read(t, conn)

	send(t, conn, protocol.AddGestureCommand(gesture.Record{ID: "g1", Name: "Peace", Action: "screenshot", Active: true}))
	read(t, conn)

	w.Detect("missing", 0.9)
	w.Detect("g1", 0.8)
	ev := read(t, conn)
	if ev.Type != protocol.EvtFrame || ev.Detection == nil {
		t.Fatalf("Expected frame with detection, got %+v", ev)
	}
	if ev.Detection.Gesture != "Peace" || ev.Detection.Action != "screenshot" {
		t.Errorf("Unexpected detection %+v", ev.Detection)
	}
	if ids := w.GestureIDs(); len(ids) != 1 || ids[0] != "g1" {
		t.Errorf("Expected [g1], got %v", ids)
	}
}
