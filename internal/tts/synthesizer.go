package tts

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-relay/internal/observability"
	"github.com/lexiqai/speech-relay/internal/resilience"
)

// ProgressFunc is called after each successful segment
type ProgressFunc func(index, total int)

// Synthesizer turns text units into audio segments one endpoint call at a time
type Synthesizer struct {
	endpoint Endpoint
	breaker  *resilience.CircuitBreaker
	pacing   time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   zerolog.Logger
}

// NewSynthesizer wraps endpoint with the breaker and inter-call pacing
func NewSynthesizer(endpoint Endpoint, breaker *resilience.CircuitBreaker, pacing time.Duration) *Synthesizer {
	logger := observability.WithComponent("synthesizer")

	breaker.SetFailurePredicate(IsOutage)
	breaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		logger.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	})

	return &Synthesizer{
		endpoint: endpoint,
		breaker:  breaker,
		pacing:   pacing,
		sleep:    sleepContext,
		logger:   logger,
	}
}

// Provider returns the endpoint name
func (s *Synthesizer) Provider() string {
	return s.endpoint.Name()
}

// Breaker exposes the breaker for readiness checks
func (s *Synthesizer) Breaker() *resilience.CircuitBreaker {
	return s.breaker
}

// Synthesize produces audio for one segment. Failures are *SegmentError.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice, credential string, index int) ([]byte, error) {
	var audio []byte
	start := time.Now()

	err := s.breaker.Call(func() error {
		data, err := s.endpoint.Synthesize(ctx, Request{
			Text:       text,
			Voice:      voice,
			Credential: credential,
		})
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return ErrEmptyAudio
		}
		audio = data
		return nil
	})

	observability.RecordSynthesis(s.endpoint.Name(), err == nil, time.Since(start), len(audio))

	if err != nil {
		return nil, &SegmentError{Index: index, Err: err}
	}
	return audio, nil
}

// SynthesizeAll synthesizes texts in order, pacing between calls.
// The first failure aborts the whole batch and no partial result is returned.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, texts []string, voice, credential string, progress ProgressFunc) ([][]byte, error) {
	segments := make([][]byte, 0, len(texts))

	for i, text := range texts {
		if i > 0 && s.pacing > 0 {
			if err := s.sleep(ctx, s.pacing); err != nil {
				return nil, &SegmentError{Index: i, Err: err}
			}
		}

		audio, err := s.Synthesize(ctx, text, voice, credential, i)
		if err != nil {
			s.logger.Error().Err(err).Int("index", i).Int("total", len(texts)).Msg("Segment synthesis failed")
			return nil, err
		}

		s.logger.Debug().Int("index", i).Int("bytes", len(audio)).Msg("Segment synthesized")
		segments = append(segments, audio)

		if progress != nil {
			progress(i, len(texts))
		}
	}

	return segments, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
