package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AltairaLabs/gesture-relay/internal/gesture"
	"github.com/AltairaLabs/gesture-relay/internal/projector"
	"github.com/AltairaLabs/gesture-relay/internal/protocol"
)

var (
	colorText     = lipgloss.Color("#cdd6f4")
	colorMuted    = lipgloss.Color("#7f849c")
	colorBlue     = lipgloss.Color("#89b4fa")
	colorGreen    = lipgloss.Color("#a6e3a1")
	colorRed      = lipgloss.Color("#f38ba8")
	colorPeach    = lipgloss.Color("#fab387")
	colorLavender = lipgloss.Color("#b4befe")

	titleStyle = lipgloss.NewStyle().Foreground(colorBlue).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	textStyle  = lipgloss.NewStyle().Foreground(colorText)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	badStyle   = lipgloss.NewStyle().Foreground(colorRed)
	warnStyle  = lipgloss.NewStyle().Foreground(colorPeach)
	tagStyle   = lipgloss.NewStyle().Foreground(colorLavender).Bold(true)
)

func onOff(on bool, yes, no string) string {
	if on {
		return okStyle.Render(yes)
	}
	return badStyle.Render(no)
}

func tag(name string) string {
	return tagStyle.Render(fmt.Sprintf("%-10s", name))
}

// render formats one state change as a single status line. It returns ""
// for changes not worth printing.
func render(change projector.Change, v projector.View, showFrames bool) string {
	switch change {
	case projector.ChangeConnected:
		return tag("relay") + " " + okStyle.Render("connected")

	case projector.ChangeDisconnected:
		return tag("relay") + " " + badStyle.Render("disconnected") + " " + mutedStyle.Render("(state cleared, retrying)")

	case projector.Change(protocol.EvtConnected):
		return tag("snapshot") + " " +
			textStyle.Render(fmt.Sprintf("%d gestures", len(v.Gestures))) + "  " +
			"worker " + onOff(v.MLConnected, "online", "offline") + "  " +
			"camera " + onOff(v.CameraOn, "on", "off") + "\n" + gestureList(v.Gestures)

	case projector.Change(protocol.EvtMLStatus):
		return tag("worker") + " " + onOff(v.MLConnected, "online", "offline")

	case projector.Change(protocol.EvtGestureUpdated):
		return tag("gestures") + " " + textStyle.Render(fmt.Sprintf("%d configured", len(v.Gestures))) + "\n" + gestureList(v.Gestures)

	case projector.Change(protocol.EvtCameraStatus):
		return tag("camera") + " " + onOff(v.CameraOn, "on", "off")

	case projector.ChangeDetection:
		if v.Detected == nil {
			return ""
		}
		d := v.Detected
		return tag("detect") + " " + d.Icon + " " + textStyle.Render(d.Gesture) + " " +
			mutedStyle.Render(fmt.Sprintf("%.0f%%", d.Confidence*100)) + " " +
			warnStyle.Render("→ "+d.Action)

	case projector.Change(protocol.EvtFrame):
		if showFrames {
			return tag("frame") + " " + mutedStyle.Render(fmt.Sprintf("%d bytes", len(v.Frame)))
		}
		return ""

	case projector.ChangeDetectionExpired:
		return ""

	case projector.Change(protocol.EvtRecordingStarted), projector.Change(protocol.EvtRecordingProgress):
		if v.Recording == nil {
			return ""
		}
		r := v.Recording
		state := warnStyle.Render("recording")
		if !r.Active {
			state = okStyle.Render("done")
		}
		return tag("record") + " " + textStyle.Render(gestureName(v.Gestures, r.ID)) + " " +
			progressBar(r.Recorded, r.Total) + " " + mutedStyle.Render(fmt.Sprintf("%d/%d", r.Recorded, r.Total)) + " " + state

	case projector.Change(protocol.EvtRecordingStopped):
		return tag("record") + " " + mutedStyle.Render("stopped")

	case projector.Change(protocol.EvtTrainProgress):
		return tag("train") + " " + progressBar(int(v.Train.Progress), 100) + " " +
			mutedStyle.Render(fmt.Sprintf("%.0f%%", v.Train.Progress)) + " " + textStyle.Render(v.Train.StatusText)

	case projector.Change(protocol.EvtTrainComplete):
		return tag("train") + " " + okStyle.Render(fmt.Sprintf("complete, accuracy %.1f%%", v.Train.Accuracy))

	case projector.ChangeTrainingReverted:
		return tag("train") + " " + mutedStyle.Render("idle")

	case projector.Change(protocol.EvtStats):
		if v.Stats == nil {
			return ""
		}
		s := v.Stats
		return tag("stats") + " " + textStyle.Render(fmt.Sprintf("%d gestures, %d samples, accuracy %.1f%%", s.TotalGestures, s.TotalSamples, s.Accuracy)) +
			" model " + onOff(s.ModelLoaded, "loaded", "missing")

	case projector.Change(protocol.EvtCursorModeChanged):
		return tag("cursor") + " " + onOff(v.CursorMode, "on", "off")

	case projector.Change(protocol.EvtError):
		return tag("error") + " " + badStyle.Render(v.LastError)
	}
	return ""
}

func gestureName(gestures map[string]gesture.Record, id string) string {
	if g, ok := gestures[id]; ok {
		return g.Name
	}
	return id
}

func gestureList(gestures map[string]gesture.Record) string {
	if len(gestures) == 0 {
		return mutedStyle.Render("           (none)")
	}
	ids := make([]string, 0, len(gestures))
	for id := range gestures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return gestures[ids[i]].Name < gestures[ids[j]].Name })

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		g := gestures[id]
		name := textStyle.Render(g.Name)
		if !g.Active {
			name = mutedStyle.Render(g.Name + " (off)")
		}
		action := g.Action
		if g.CursorAction != "" {
			action += ":" + g.CursorAction
		}
		lines = append(lines, fmt.Sprintf("           %s %s %s %s",
			g.Icon, name, warnStyle.Render(action), mutedStyle.Render(fmt.Sprintf("%d samples", g.Samples))))
	}
	return strings.Join(lines, "\n")
}

const barWidth = 20

func progressBar(done, total int) string {
	if total <= 0 {
		total = 1
	}
	filled := done * barWidth / total
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	return okStyle.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", barWidth-filled))
}
