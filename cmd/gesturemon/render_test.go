package main

import (
	"strings"
	"testing"
	"time"

	"github.com/AltairaLabs/gesture-relay/internal/gesture"
	"github.com/AltairaLabs/gesture-relay/internal/projector"
	"github.com/AltairaLabs/gesture-relay/internal/protocol"
)

func TestRenderLines(t *testing.T) {
	view := projector.View{
		MLConnected: true,
		Gestures: map[string]gesture.Record{
			"g1": {ID: "g1", Name: "Peace", Icon: "✌️", Action: "screenshot", Active: true, Samples: 80},
		},
		Detected: &projector.Detection{
			Detection: protocol.Detection{Gesture: "Peace", GestureID: "g1", Confidence: 0.91, Action: "screenshot"},
			Icon:      "✌️",
			At:        time.Now(),
		},
		Recording: &projector.Recording{ID: "g1", Recorded: 40, Total: 80, Active: true},
		Train:     projector.Train{Status: projector.TrainTraining, Progress: 50, StatusText: "Epoch 5/10"},
	}

	tests := []struct {
		change projector.Change
		want   []string
	}{
		{projector.Change(protocol.EvtConnected), []string{"1 gestures", "online", "Peace", "80 samples"}},
		{projector.ChangeDetection, []string{"Peace", "91%", "screenshot"}},
		{projector.Change(protocol.EvtRecordingProgress), []string{"Peace", "40/80", "recording"}},
		{projector.Change(protocol.EvtTrainProgress), []string{"50%", "Epoch 5/10"}},
		{projector.ChangeDisconnected, []string{"disconnected"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.change), func(t *testing.T) {
			line := render(tt.change, view, false)
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("Expected %q in %q", w, line)
				}
			}
		})
	}
}

func TestRenderSkipsQuietChanges(t *testing.T) {
	view := projector.View{Frame: "abc"}
	if line := render(projector.Change(protocol.EvtFrame), view, false); line != "" {
		t.Errorf("Expected frames hidden by default, got %q", line)
	}
	if line := render(projector.Change(protocol.EvtFrame), view, true); !strings.Contains(line, "3 bytes") {
		t.Errorf("Expected frame size line, got %q", line)
	}
	if line := render(projector.ChangeDetectionExpired, view, false); line != "" {
		t.Errorf("Expected no line for expired detection, got %q", line)
	}
}

func TestProgressBar(t *testing.T) {
	if got := progressBar(200, 100); strings.Count(got, "█") != barWidth {
		t.Errorf("Expected full bar, got %q", got)
	}
	if got := progressBar(0, 0); strings.Count(got, "░") != barWidth {
		t.Errorf("Expected empty bar, got %q", got)
	}
}
