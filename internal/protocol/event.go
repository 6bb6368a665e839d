package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/AltairaLabs/gesture-relay/internal/gesture"
)

// Detection is the recognition result attached to a frame
type Detection struct {
	Gesture    string  `json:"gesture"`
	GestureID  string  `json:"gestureId"`
	Confidence float64 `json:"confidence"`
	Action     string  `json:"action"`
	Fired      bool    `json:"fired"`
}

// Event is the decoded form of any event. Fields not used by Type are zero.
type Event struct {
	Type        EventType                 `json:"type"`
	Gestures    map[string]gesture.Record `json:"gestures,omitempty"`
	MLConnected *bool                     `json:"mlConnected,omitempty"`
	CameraOn    *bool                     `json:"cameraOn,omitempty"`
	Connected   *bool                     `json:"connected,omitempty"`
	Active      *bool                     `json:"active,omitempty"`
	Enabled     *bool                     `json:"enabled,omitempty"`
	Frame       string                    `json:"frame,omitempty"`
	Detection   *Detection                `json:"detection,omitempty"`
	ID          string                    `json:"id,omitempty"`
	Recorded    *int                      `json:"recorded,omitempty"`
	Total       *int                      `json:"total,omitempty"`
	Progress    *float64                  `json:"progress,omitempty"`
	Accuracy    *float64                  `json:"accuracy,omitempty"`
	Status      string                    `json:"status,omitempty"`
	Message     string                    `json:"message,omitempty"`
	Code        string                    `json:"code,omitempty"`

	// Stats fields
	TotalGestures *int  `json:"totalGestures,omitempty"`
	TotalSamples  *int  `json:"totalSamples,omitempty"`
	ModelLoaded   *bool `json:"modelLoaded,omitempty"`
}

// DecodeEvent parses a raw event frame. Frames that are not JSON objects with
// a non-empty string type are rejected with ErrMalformedMessage.
func DecodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return ev, nil
}

// RecordingActive reports the active flag of a recording_progress event. A
// missing flag means recording continues.
func (e Event) RecordingActive() bool {
	return e.Active == nil || *e.Active
}

// IntOr dereferences an optional int
func IntOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// ConnectedEvent is the snapshot sent once to each new client session
type ConnectedEvent struct {
	Type        EventType                 `json:"type"`
	Gestures    map[string]gesture.Record `json:"gestures"`
	MLConnected bool                      `json:"mlConnected"`
	CameraOn    bool                      `json:"cameraOn"`
}

// NewConnected builds a connected snapshot
func NewConnected(gestures map[string]gesture.Record, mlConnected, cameraOn bool) ConnectedEvent {
	return ConnectedEvent{Type: EvtConnected, Gestures: nonNil(gestures), MLConnected: mlConnected, CameraOn: cameraOn}
}

// MLStatusEvent reports worker connectivity
type MLStatusEvent struct {
	Type      EventType `json:"type"`
	Connected bool      `json:"connected"`
}

// NewMLStatus builds an ml_status event
func NewMLStatus(connected bool) MLStatusEvent {
	return MLStatusEvent{Type: EvtMLStatus, Connected: connected}
}

// GestureUpdatedEvent carries the full gesture map after a mutation
type GestureUpdatedEvent struct {
	Type     EventType                 `json:"type"`
	Gestures map[string]gesture.Record `json:"gestures"`
}

// NewGestureUpdated builds a gesture_updated event
func NewGestureUpdated(gestures map[string]gesture.Record) GestureUpdatedEvent {
	return GestureUpdatedEvent{Type: EvtGestureUpdated, Gestures: nonNil(gestures)}
}

// ErrorEvent reports a failed command to the client that sent it
type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
}

// NewError builds an error event
func NewError(code, message string) ErrorEvent {
	return ErrorEvent{Type: EvtError, Message: message, Code: code}
}

func nonNil(m map[string]gesture.Record) map[string]gesture.Record {
	if m == nil {
		return map[string]gesture.Record{}
	}
	return m
}
