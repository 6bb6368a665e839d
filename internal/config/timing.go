package config

import "time"

// Default timing configurations used throughout the relay
const (
	// DefaultWorkerRetryDelay is the fixed delay before reconnecting to the worker
	DefaultWorkerRetryDelay = 3 * time.Second

	// DefaultWorkerMaxRetryDelay caps the worker reconnect delay when backoff is enabled
	DefaultWorkerMaxRetryDelay = 30 * time.Second

	// DefaultWorkerDialTimeout bounds a single worker dial attempt
	DefaultWorkerDialTimeout = 5 * time.Second

	// DefaultClientRetryDelay is the fixed delay before a projector client reconnects
	DefaultClientRetryDelay = 3 * time.Second

	// DefaultDetectionDwell is how long a detection stays highlighted
	DefaultDetectionDwell = 1500 * time.Millisecond

	// DefaultTrainCompleteDwell is how long "complete" is shown before reverting to idle
	DefaultTrainCompleteDwell = 3 * time.Second

	// DefaultWriteTimeout bounds a single websocket write
	DefaultWriteTimeout = 10 * time.Second

	// DefaultPingInterval is how often idle client sessions are pinged
	DefaultPingInterval = 30 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown of the HTTP server
	DefaultShutdownTimeout = 5 * time.Second

	// DefaultCommandTimeout bounds how long a REST or MCP caller waits on the router
	DefaultCommandTimeout = 5 * time.Second
)

// Default sizes
const (
	// DefaultRecordingTotal is the sample count requested when a recording omits total
	DefaultRecordingTotal = 80

	// DefaultRecentDetections is the capacity of the recent-detections ring
	DefaultRecentDetections = 6

	// DefaultSessionBuffer is the outbound message buffer per client session
	DefaultSessionBuffer = 256

	// DefaultRouterQueue is the router inbox capacity
	DefaultRouterQueue = 1024
)
