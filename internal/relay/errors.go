package relay

import (
	"context"
	"errors"
	"net/http"

	"github.com/AltairaLabs/gesture-relay/internal/gesture"
	"github.com/AltairaLabs/gesture-relay/internal/protocol"
)

// classify maps a command error to an HTTP status and an error event code
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, gesture.ErrValidation):
		return http.StatusBadRequest, protocol.CodeValidation
	case errors.Is(err, protocol.ErrMalformedMessage):
		return http.StatusBadRequest, protocol.CodeMalformed
	case errors.Is(err, gesture.ErrNotFound):
		return http.StatusNotFound, protocol.CodeNotFound
	case errors.Is(err, ErrRouterBusy), errors.Is(err, ErrRouterStopped),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, protocol.CodeInternal
	default:
		return http.StatusInternalServerError, protocol.CodeInternal
	}
}
