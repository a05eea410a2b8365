package pipeline

import "errors"

// Validation errors, raised before any external call
var (
	ErrMissingCredential = errors.New("credential is required")
	ErrTextLength        = errors.New("text length out of range")
	ErrUnknownVoice      = errors.New("unknown voice")
	ErrInvalidType       = errors.New("invalid input type")
)

// ErrNothingToProcess is returned when parsing or segmenting yields no usable text
var ErrNothingToProcess = errors.New("no valid text to process")
