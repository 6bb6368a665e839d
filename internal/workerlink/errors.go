package workerlink

import "errors"

var (
	// ErrUpstreamUnavailable is returned by Send while the worker is not connected.
	// The command is dropped, not queued.
	ErrUpstreamUnavailable = errors.New("worker unavailable")

	// ErrTransport wraps a socket failure. The connection is torn down and redialed.
	ErrTransport = errors.New("worker transport error")
)
