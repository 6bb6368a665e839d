// Package protocol defines the JSON messages exchanged between clients,
// the relay and the recognition worker.
package protocol

// CommandType tags a command message
type CommandType string

// Client commands. The same tags are used on the worker link.
const (
	CmdAddGesture           CommandType = "add_gesture"
	CmdUpdateGesture        CommandType = "update_gesture"
	CmdDeleteGesture        CommandType = "delete_gesture"
	CmdToggleGesture        CommandType = "toggle_gesture"
	CmdCameraStart          CommandType = "camera_start"
	CmdCameraStop           CommandType = "camera_stop"
	CmdStartRecording       CommandType = "start_recording"
	CmdStopRecording        CommandType = "stop_recording"
	CmdRetrain              CommandType = "retrain"
	CmdUpdateSettings       CommandType = "update_settings"
	CmdGetStats             CommandType = "get_stats"
	CmdToggleCursorMode     CommandType = "toggle_cursor_mode"
	CmdUpdateCursorSettings CommandType = "update_cursor_settings"
)

// AllCommands lists every command a client may send
func AllCommands() []CommandType {
	return []CommandType{
		CmdAddGesture, CmdUpdateGesture, CmdDeleteGesture, CmdToggleGesture,
		CmdCameraStart, CmdCameraStop, CmdStartRecording, CmdStopRecording,
		CmdRetrain, CmdUpdateSettings, CmdGetStats, CmdToggleCursorMode,
		CmdUpdateCursorSettings,
	}
}

// IsPassThrough reports whether the command is forwarded to the worker
// without touching gesture configuration
func (c CommandType) IsPassThrough() bool {
	switch c {
	case CmdCameraStart, CmdCameraStop, CmdUpdateSettings, CmdGetStats,
		CmdToggleCursorMode, CmdUpdateCursorSettings:
		return true
	}
	return false
}

// EventType tags an event message
type EventType string

// Events sent to clients. Most originate at the worker and are relayed verbatim.
const (
	EvtConnected             EventType = "connected"
	EvtMLStatus              EventType = "ml_status"
	EvtGestureUpdated        EventType = "gesture_updated"
	EvtCameraStatus          EventType = "camera_status"
	EvtFrame                 EventType = "frame"
	EvtRecordingStarted      EventType = "recording_started"
	EvtRecordingProgress     EventType = "recording_progress"
	EvtRecordingStopped      EventType = "recording_stopped"
	EvtTrainProgress         EventType = "train_progress"
	EvtTrainComplete         EventType = "train_complete"
	EvtStats                 EventType = "stats"
	EvtCursorModeChanged     EventType = "cursor_mode_changed"
	EvtCursorSettingsUpdated EventType = "cursor_settings_updated"
	EvtSettingsUpdated       EventType = "settings_updated"
	EvtError                 EventType = "error"
)

// Error codes carried by relay-originated error events
const (
	CodeValidation = "validation"
	CodeNotFound   = "not_found"
	CodeMalformed  = "malformed"
	CodeInternal   = "internal"
)
