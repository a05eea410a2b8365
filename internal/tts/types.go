package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrEmptyAudio is returned when an endpoint answers without usable audio
var ErrEmptyAudio = errors.New("empty audio response")

// Request is one synthesis call
type Request struct {
	Text       string
	Voice      string
	Credential string // session cookie or API key, depending on provider
}

// Endpoint is a remote speech synthesis service
type Endpoint interface {
	// Synthesize returns encoded (MP3) audio for req.Text
	Synthesize(ctx context.Context, req Request) ([]byte, error)

	// Name identifies the provider in logs and metrics
	Name() string
}

// Voice is a selectable speaker
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SegmentError reports which segment failed to synthesize
type SegmentError struct {
	Index int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("failed to generate audio for segment %d: %v", e.Index, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx answer from an HTTP speech endpoint
type StatusError struct {
	Provider string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status %d", e.Provider, e.Code)
}

// IsOutage reports whether err says the endpoint itself is unhealthy.
// Answers caused by the caller's own request (a rejected credential, an
// empty payload, a 4xx) are not outages and must not trip the shared breaker.
func IsOutage(err error) bool {
	if err == nil || errors.Is(err, ErrEmptyAudio) || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return true
		}
		return statusErr.Code >= 500
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied,
			codes.NotFound, codes.FailedPrecondition, codes.OutOfRange:
			return false
		}
	}

	return true
}
