package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-relay/internal/audio"
	"github.com/lexiqai/speech-relay/internal/config"
	"github.com/lexiqai/speech-relay/internal/observability"
	"github.com/lexiqai/speech-relay/internal/ratelimit"
	"github.com/lexiqai/speech-relay/internal/tts"
	"github.com/lexiqai/speech-relay/internal/verification"
)

// Submission is one caller request
type Submission struct {
	Text              string
	Voice             string
	Type              string
	Credential        string
	VerificationToken string
	ClientKey         string // caller identity for admission, usually the client IP
}

// Synthesizer produces one audio segment per text, in order
type Synthesizer interface {
	SynthesizeAll(ctx context.Context, texts []string, voice, credential string, progress tts.ProgressFunc) ([][]byte, error)
	Provider() string
}

// Assembler joins segments into one track
type Assembler interface {
	Assemble(ctx context.Context, segments [][]byte, timings []audio.Timing) (*audio.Track, error)
}

// Dependencies are the collaborators of an Orchestrator
type Dependencies struct {
	Verifier    verification.Verifier
	Limiter     ratelimit.Limiter
	Synthesizer Synthesizer
	Assembler   Assembler
	Delivery    Delivery
}

// Orchestrator runs validate, verify, admit, plan, synthesize, assemble and
// deliver in sequence. Every failure is terminal for the run.
type Orchestrator struct {
	deps          Dependencies
	provider      string
	maxTextLength int
	chunkSize     int
	simpleTiming  bool
	runTimeout    time.Duration
	logger        zerolog.Logger
}

// New creates an orchestrator
func New(cfg *config.Config, deps Dependencies) *Orchestrator {
	if deps.Verifier == nil {
		deps.Verifier = verification.Disabled{}
	}
	return &Orchestrator{
		deps:          deps,
		provider:      cfg.SpeechProvider,
		maxTextLength: cfg.MaxTextLength,
		chunkSize:     cfg.ChunkSize,
		simpleTiming:  cfg.TimingMode == config.TimingSimple,
		runTimeout:    time.Duration(cfg.RunTimeout) * time.Second,
		logger:        observability.WithComponent("pipeline"),
	}
}

// MaxTextLength returns the configured input bound
func (o *Orchestrator) MaxTextLength() int {
	return o.maxTextLength
}

// Validate checks caller input without side effects
func (o *Orchestrator) Validate(sub Submission) error {
	if strings.TrimSpace(sub.Credential) == "" {
		return ErrMissingCredential
	}
	if n := utf8.RuneCountInString(sub.Text); n < 1 || n > o.maxTextLength {
		return fmt.Errorf("%w: %d characters, allowed 1-%d", ErrTextLength, n, o.maxTextLength)
	}
	if !tts.IsKnownVoice(o.provider, sub.Voice) {
		return fmt.Errorf("%w: %q", ErrUnknownVoice, sub.Voice)
	}
	if _, err := NormalizeType(sub.Type); err != nil {
		return err
	}
	return nil
}

// Run executes one submission. The run is detached from ctx cancellation
// once admitted; only RUN_TIMEOUT bounds it.
func (o *Orchestrator) Run(ctx context.Context, sub Submission, progress tts.ProgressFunc) (*Result, error) {
	runID := observability.NewCorrelationID()
	logger := o.logger.With().Str("run_id", runID).Str("client", sub.ClientKey).Logger()

	if err := o.Validate(sub); err != nil {
		logger.Info().Err(err).Msg("Submission rejected")
		observability.RecordError("validation")
		return nil, err
	}

	if err := o.deps.Verifier.Verify(ctx, sub.VerificationToken, sub.ClientKey); err != nil {
		logger.Warn().Err(err).Msg("Verification failed")
		observability.RecordError("verification")
		return nil, err
	}

	if !o.deps.Limiter.Admit(sub.ClientKey) {
		logger.Info().Msg("Rate limit exceeded")
		observability.RecordError("admission")
		return nil, ratelimit.ErrLimited
	}

	plan, err := Prepare(sub.Type, sub.Text, o.chunkSize)
	if err != nil {
		logger.Info().Err(err).Msg("Nothing to synthesize")
		observability.RecordError("empty_input")
		return nil, err
	}

	runCtx := context.WithoutCancel(ctx)
	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, o.runTimeout)
		defer cancel()
	}

	metrics := observability.NewRunMetrics(plan.Type)
	logger.Info().
		Str("type", plan.Type).
		Str("voice", sub.Voice).
		Str("provider", o.deps.Synthesizer.Provider()).
		Int("segments", plan.Len()).
		Msg("Run started")

	result, err := o.execute(runCtx, plan, sub, progress)
	if err != nil {
		kind := errorKind(err)
		metrics.Finish(kind, 0)
		observability.RecordError(kind)
		logger.Error().Err(err).Msg("Run failed")
		return nil, err
	}

	result.RunID = runID
	result.Segments = plan.Len()
	metrics.Finish("success", plan.Len())

	logger.Info().
		Bool("timing_preserved", result.TimingPreserved).
		Str("url", result.URL).
		Msg("Run completed")

	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, plan *Plan, sub Submission, progress tts.ProgressFunc) (*Result, error) {
	segments, err := o.deps.Synthesizer.SynthesizeAll(ctx, plan.Texts, sub.Voice, sub.Credential, progress)
	if err != nil {
		return nil, err
	}

	timings := plan.Timings
	if o.simpleTiming {
		timings = nil
	}

	track, err := o.deps.Assembler.Assemble(ctx, segments, timings)
	if err != nil {
		return nil, err
	}

	result, err := o.deps.Delivery.Deliver(ctx, track)
	if err != nil {
		return nil, err
	}

	result.TimingPreserved = track.TimingPreserved
	result.Warning = track.Warning
	return result, nil
}

func errorKind(err error) string {
	var segErr *tts.SegmentError
	switch {
	case errors.As(err, &segErr):
		return "synthesis"
	case errors.Is(err, audio.ErrNoSegments), errors.Is(err, audio.ErrSegmentMismatch), errors.Is(err, audio.ErrTranscode):
		return "assembly"
	default:
		return "internal"
	}
}
