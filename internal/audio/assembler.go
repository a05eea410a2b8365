package audio

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-relay/internal/observability"
)

// Assembly modes
const (
	ModeSimple   = "simple"
	ModeTimed    = "timed"
	ModeDegraded = "degraded"
)

// DegradedWarning is reported when timings were requested but cannot be honoured
const DegradedWarning = "subtitle timing was not preserved: no audio transcoder is available"

// Track is one assembled audio stream
type Track struct {
	Data            []byte
	MimeType        string
	Mode            string
	TimingPreserved bool
	Warning         string
}

// Assembler joins synthesized segments into a single track
type Assembler struct {
	transcoder Transcoder
	leadIn     bool
	logger     zerolog.Logger
}

// NewAssembler creates an assembler. A nil transcoder limits it to simple mode.
func NewAssembler(transcoder Transcoder, leadIn bool) *Assembler {
	return &Assembler{
		transcoder: transcoder,
		leadIn:     leadIn,
		logger:     observability.WithComponent("assembler"),
	}
}

// CanPreserveTiming reports whether duration-aware assembly is available
func (a *Assembler) CanPreserveTiming() bool {
	return a.transcoder != nil
}

// Assemble joins segments in order. With timings and a transcoder every
// segment is cut or padded to its cue window and followed by the silent gap
// before the next cue; without timings, or without a
// transcoder, segments are concatenated byte for byte.
func (a *Assembler) Assemble(ctx context.Context, segments [][]byte, timings []Timing) (*Track, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}

	if timings == nil {
		return a.finish(&Track{Data: Concat(segments), Mode: ModeSimple}), nil
	}

	if len(timings) != len(segments) {
		return nil, fmt.Errorf("%w: %d segments, %d timings", ErrSegmentMismatch, len(segments), len(timings))
	}

	if a.transcoder == nil {
		a.logger.Warn().Int("segments", len(segments)).Msg("No transcoder, falling back to simple concatenation")
		return a.finish(&Track{
			Data:    Concat(segments),
			Mode:    ModeDegraded,
			Warning: DegradedWarning,
		}), nil
	}

	data, err := a.assembleTimed(ctx, segments, timings)
	if err != nil {
		return nil, err
	}

	return a.finish(&Track{Data: data, Mode: ModeTimed, TimingPreserved: true}), nil
}

func (a *Assembler) assembleTimed(ctx context.Context, segments [][]byte, timings []Timing) ([]byte, error) {
	windows := Windows(timings)
	gen, canSilence := a.transcoder.(SilenceGenerator)
	parts := make([][]byte, 0, 2*len(segments)+1)

	if a.leadIn && timings[0].Start > 0 {
		if canSilence {
			silence, err := gen.Silence(ctx, seconds(timings[0].Start))
			if err != nil {
				return nil, transcodeError(ctx, "lead-in", err)
			}
			parts = append(parts, silence)
		} else {
			a.logger.Debug().Msg("Transcoder cannot generate silence, skipping lead-in")
		}
	}

	for i, seg := range segments {
		w := windows[i]
		stage := fmt.Sprintf("segment %d", i)

		fitted, err := a.transcoder.PadOrTrim(ctx, seg, w.Speech)
		if err != nil {
			return nil, transcodeError(ctx, stage, err)
		}

		switch {
		case w.Gap <= 0:
			parts = append(parts, fitted)
		case canSilence:
			gap, err := gen.Silence(ctx, w.Gap)
			if err != nil {
				return nil, transcodeError(ctx, stage+" gap", err)
			}
			parts = append(parts, fitted, gap)
		default:
			// Speech already ends at the cue end; padding again fills the gap with silence
			padded, err := a.transcoder.PadOrTrim(ctx, fitted, w.Speech+w.Gap)
			if err != nil {
				return nil, transcodeError(ctx, stage+" gap", err)
			}
			parts = append(parts, padded)
		}
	}

	data, err := a.transcoder.Concatenate(ctx, parts)
	if err != nil {
		return nil, transcodeError(ctx, "concatenate", err)
	}
	return data, nil
}

func (a *Assembler) finish(t *Track) *Track {
	t.MimeType = MimeTypeMP3
	observability.RecordAssembly(t.Mode, len(t.Data))
	a.logger.Debug().Str("mode", t.Mode).Int("bytes", len(t.Data)).Msg("Track assembled")
	return t
}

// Concat joins segments byte for byte in order
func Concat(segments [][]byte) []byte {
	if len(segments) == 1 {
		return segments[0]
	}
	return bytes.Join(segments, nil)
}

func transcodeError(ctx context.Context, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return fmt.Errorf("%w: %s: %v", ErrTranscode, stage, err)
}
