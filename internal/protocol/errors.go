package protocol

import "errors"

// ErrMalformedMessage indicates a frame that is not a JSON object with a string type tag
var ErrMalformedMessage = errors.New("malformed message")
