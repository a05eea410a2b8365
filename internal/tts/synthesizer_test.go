package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lexiqai/speech-relay/internal/observability"
	"github.com/lexiqai/speech-relay/internal/resilience"
)

// fakeEndpoint returns "audio:<text>" and fails on configured call numbers
type fakeEndpoint struct {
	mu     sync.Mutex
	calls  []Request
	failOn map[int]error
	empty  map[int]bool
}

func (f *fakeEndpoint) Name() string { return "fake" }

func (f *fakeEndpoint) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.calls)
	f.calls = append(f.calls, req)
	if err, ok := f.failOn[n]; ok {
		return nil, err
	}
	if f.empty[n] {
		return nil, nil
	}
	return []byte("audio:" + req.Text), nil
}

type recordedSleeps struct {
	durations []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.durations = append(r.durations, d)
	return ctx.Err()
}

func newTestSynthesizer(ep Endpoint, pacing time.Duration) (*Synthesizer, *recordedSleeps) {
	s := NewSynthesizer(ep, resilience.NewCircuitBreaker("speech", 5, time.Minute), pacing)
	rec := &recordedSleeps{}
	s.sleep = rec.sleep
	return s, rec
}

func TestSynthesizer_Synthesize(t *testing.T) {
	ep := &fakeEndpoint{}
	s, _ := newTestSynthesizer(ep, 0)

	audio, err := s.Synthesize(context.Background(), "hello", "BV074_streaming", "cookie", 0)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "audio:hello" {
		t.Errorf("Unexpected audio %q", audio)
	}
	if ep.calls[0].Voice != "BV074_streaming" || ep.calls[0].Credential != "cookie" {
		t.Errorf("Request not forwarded: %+v", ep.calls[0])
	}
}

func TestSynthesizer_EmptyAudioIsFailure(t *testing.T) {
	ep := &fakeEndpoint{empty: map[int]bool{0: true}}
	s, _ := newTestSynthesizer(ep, 0)

	_, err := s.Synthesize(context.Background(), "hello", "v", "c", 3)

	var segErr *SegmentError
	if !errors.As(err, &segErr) {
		t.Fatalf("Expected SegmentError, got %v", err)
	}
	if segErr.Index != 3 {
		t.Errorf("Expected index 3, got %d", segErr.Index)
	}
	if !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("Expected ErrEmptyAudio, got %v", err)
	}
}

func TestSynthesizer_SynthesizeAllPacing(t *testing.T) {
	ep := &fakeEndpoint{}
	s, sleeps := newTestSynthesizer(ep, 500*time.Millisecond)

	var progress []int
	segments, err := s.SynthesizeAll(context.Background(), []string{"a", "b", "c"}, "v", "c",
		func(index, total int) {
			if total != 3 {
				t.Errorf("Expected total 3, got %d", total)
			}
			progress = append(progress, index)
		})
	if err != nil {
		t.Fatalf("SynthesizeAll failed: %v", err)
	}

	if len(segments) != 3 {
		t.Fatalf("Expected 3 segments, got %d", len(segments))
	}
	for i, want := range []string{"audio:a", "audio:b", "audio:c"} {
		if string(segments[i]) != want {
			t.Errorf("Segment %d = %q, want %q", i, segments[i], want)
		}
	}

	// Pacing between calls, none after the last
	if len(sleeps.durations) != 2 {
		t.Errorf("Expected 2 pacing delays, got %d", len(sleeps.durations))
	}
	for _, d := range sleeps.durations {
		if d != 500*time.Millisecond {
			t.Errorf("Expected 500ms pacing, got %s", d)
		}
	}

	if len(progress) != 3 || progress[2] != 2 {
		t.Errorf("Unexpected progress %v", progress)
	}
}

func TestSynthesizer_SynthesizeAllStopsAtFirstFailure(t *testing.T) {
	upstream := errors.New("status 500")
	ep := &fakeEndpoint{failOn: map[int]error{2: upstream}}
	s, _ := newTestSynthesizer(ep, 0)

	segments, err := s.SynthesizeAll(context.Background(), []string{"a", "b", "c", "d", "e"}, "v", "c", nil)
	if segments != nil {
		t.Errorf("Expected no partial result, got %d segments", len(segments))
	}

	var segErr *SegmentError
	if !errors.As(err, &segErr) || segErr.Index != 2 {
		t.Fatalf("Expected SegmentError at index 2, got %v", err)
	}
	if !errors.Is(err, upstream) {
		t.Errorf("Expected upstream error to be wrapped, got %v", err)
	}
	if len(ep.calls) != 3 {
		t.Errorf("Expected no calls after the failure, got %d calls", len(ep.calls))
	}
}

func TestSynthesizer_OpenBreakerFailsFast(t *testing.T) {
	ep := &fakeEndpoint{}
	breaker := resilience.NewCircuitBreaker("speech", 1, time.Hour)
	breaker.RecordResult(false)

	s := NewSynthesizer(ep, breaker, 0)
	_, err := s.Synthesize(context.Background(), "a", "v", "c", 0)

	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}
	if len(ep.calls) != 0 {
		t.Errorf("Expected no endpoint calls, got %d", len(ep.calls))
	}
}

// credentialEndpoint answers with empty audio for the "bad" credential
type credentialEndpoint struct{}

func (credentialEndpoint) Name() string { return "fake" }

func (credentialEndpoint) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	switch req.Credential {
	case "bad":
		return nil, fmt.Errorf("%w: invalid session", ErrEmptyAudio)
	case "forbidden":
		return nil, &StatusError{Provider: "fake", Code: http.StatusForbidden}
	}
	return []byte("audio:" + req.Text), nil
}

func TestSynthesizer_CallerErrorsDoNotOpenBreaker(t *testing.T) {
	breaker := resilience.NewCircuitBreaker("speech", 5, time.Minute)
	s := NewSynthesizer(credentialEndpoint{}, breaker, 0)

	for i := 0; i < 5; i++ {
		if _, err := s.SynthesizeAll(context.Background(), []string{"a"}, "v", "bad", nil); err == nil {
			t.Fatal("Expected bad credential to fail")
		}
		if _, err := s.SynthesizeAll(context.Background(), []string{"a"}, "v", "forbidden", nil); err == nil {
			t.Fatal("Expected forbidden credential to fail")
		}
	}

	if breaker.GetState() != resilience.StateClosed {
		t.Fatalf("Expected breaker to stay Closed, got %s", breaker.GetState())
	}
	if _, err := s.SynthesizeAll(context.Background(), []string{"a"}, "v", "good", nil); err != nil {
		t.Errorf("Expected another caller to succeed, got %v", err)
	}
}

func TestSynthesizer_OutagesOpenBreaker(t *testing.T) {
	down := &StatusError{Provider: "fake", Code: http.StatusServiceUnavailable}
	ep := &fakeEndpoint{failOn: map[int]error{0: down, 1: down}}
	breaker := resilience.NewCircuitBreaker("speech", 2, time.Minute)
	s := NewSynthesizer(ep, breaker, 0)

	s.Synthesize(context.Background(), "a", "v", "c", 0)
	s.Synthesize(context.Background(), "a", "v", "c", 0)

	if breaker.GetState() != resilience.StateOpen {
		t.Errorf("Expected breaker Open after upstream 503s, got %s", breaker.GetState())
	}
}

func TestSynthesizer_BreakerTransitionLog(t *testing.T) {
	var buf bytes.Buffer
	observability.SetOutput(&buf, "warn")
	t.Cleanup(func() { observability.SetOutput(io.Discard, "info") })

	ep := &fakeEndpoint{failOn: map[int]error{0: errors.New("connection refused")}}
	s := NewSynthesizer(ep, resilience.NewCircuitBreaker("speech", 1, time.Minute), 0)
	s.Synthesize(context.Background(), "a", "v", "c", 0)

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "Circuit breaker state changed") {
			line = l
		}
	}
	if line == "" {
		t.Fatalf("Expected a state change log line, got %q", buf.String())
	}
	if !strings.Contains(line, `"breaker":"speech"`) {
		t.Errorf("Expected breaker field, got %s", line)
	}
	if n := strings.Count(line, `"service":`); n != 1 {
		t.Errorf("Expected exactly one service field, got %d in %s", n, line)
	}
}

func TestIsOutage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"empty audio", fmt.Errorf("%w: no payload", ErrEmptyAudio), false},
		{"cancelled", context.Canceled, false},
		{"unauthorized", &StatusError{Code: http.StatusUnauthorized}, false},
		{"bad request", fmt.Errorf("wrapped: %w", &StatusError{Code: http.StatusBadRequest}), false},
		{"too many requests", &StatusError{Code: http.StatusTooManyRequests}, true},
		{"server error", &StatusError{Code: http.StatusBadGateway}, true},
		{"transport", errors.New("connection refused"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"grpc permission denied", fmt.Errorf("texttospeech request failed: %w", status.Error(codes.PermissionDenied, "bad key")), false},
		{"grpc unavailable", fmt.Errorf("texttospeech request failed: %w", status.Error(codes.Unavailable, "down")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOutage(tt.err); got != tt.want {
				t.Errorf("IsOutage(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
