package config

// Messages used throughout the relay
const (
	// ErrWorkerOffline is reported when a command could not reach the worker
	ErrWorkerOffline = "worker offline: command %s dropped"
	// ErrRouterBusy is returned when the router inbox is full
	ErrRouterBusy = "relay busy, try again"
	// MsgCommandAccepted is the format string for accepted pass-through commands
	MsgCommandAccepted = "Command %s accepted"
)
