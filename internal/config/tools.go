package config

// Tool defines the MCP tools exposed by the relay
const (
	// ToolGestureList lists all gestures
	ToolGestureList = "gesture.list"
	// ToolGestureAdd creates a gesture
	ToolGestureAdd = "gesture.add"
	// ToolGestureUpdate updates a gesture
	ToolGestureUpdate = "gesture.update"
	// ToolGestureDelete deletes a gesture
	ToolGestureDelete = "gesture.delete"
	// ToolGestureToggle enables or disables a gesture
	ToolGestureToggle = "gesture.toggle"
	// ToolCameraStart starts the worker camera
	ToolCameraStart = "camera.start"
	// ToolCameraStop stops the worker camera
	ToolCameraStop = "camera.stop"
	// ToolRecordingStart starts sample recording for a gesture
	ToolRecordingStart = "recording.start"
	// ToolRecordingStop stops sample recording
	ToolRecordingStop = "recording.stop"
	// ToolModelRetrain retrains the recognition model
	ToolModelRetrain = "model.retrain"
	// ToolSettingsUpdate updates recognition settings
	ToolSettingsUpdate = "settings.update"
	// ToolStatsGet requests worker statistics
	ToolStatsGet = "stats.get"
	// ToolCursorToggle toggles cursor mode
	ToolCursorToggle = "cursor.toggle"
	// ToolCursorSettings updates cursor gesture settings
	ToolCursorSettings = "cursor.settings"
)

// AllTools returns a slice of all available tool names
func AllTools() []string {
	return []string{
		ToolGestureList,
		ToolGestureAdd,
		ToolGestureUpdate,
		ToolGestureDelete,
		ToolGestureToggle,
		ToolCameraStart,
		ToolCameraStop,
		ToolRecordingStart,
		ToolRecordingStop,
		ToolModelRetrain,
		ToolSettingsUpdate,
		ToolStatsGet,
		ToolCursorToggle,
		ToolCursorSettings,
	}
}
