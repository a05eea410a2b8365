package audio

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	// ErrNoSegments is returned when there is nothing to assemble
	ErrNoSegments = errors.New("no audio segments to assemble")
	// ErrSegmentMismatch is returned when segments and timings disagree in count
	ErrSegmentMismatch = errors.New("audio segment count does not match timing count")
	// ErrTranscode wraps any transcoder failure
	ErrTranscode = errors.New("audio transcoding failed")
)

// Transcoder reshapes encoded audio segments
type Transcoder interface {
	// PadOrTrim returns data padded with silence or cut to exactly d
	PadOrTrim(ctx context.Context, data []byte, d time.Duration) ([]byte, error)

	// Concatenate joins already-uniform segments into one stream
	Concatenate(ctx context.Context, segments [][]byte) ([]byte, error)
}

// SilenceGenerator is an optional Transcoder capability used for lead-in
type SilenceGenerator interface {
	Silence(ctx context.Context, d time.Duration) ([]byte, error)
}

// Timing is the subtitle window of one segment, in seconds
type Timing struct {
	Start float64
	End   float64
}

// Window is how one segment is laid out in a timed track: its audio is
// fitted to Speech, then Gap of silence follows before the next cue.
type Window struct {
	Speech time.Duration
	Gap    time.Duration
}

// Windows lays out every segment so that segment i starts at
// timings[i].Start - timings[0].Start. Speech is the cue's own end - start;
// when the next cue starts earlier than that, speech is cut at the next start.
// A next cue that starts at or before this one leaves the own window and no gap.
func Windows(timings []Timing) []Window {
	windows := make([]Window, len(timings))
	for i, t := range timings {
		own := t.End - t.Start
		w := Window{Speech: seconds(own)}
		if i+1 < len(timings) {
			if step := timings[i+1].Start - t.Start; step > 0 {
				if step < own {
					w.Speech = seconds(step)
				} else {
					w.Gap = seconds(step) - w.Speech
				}
			}
		}
		windows[i] = w
	}
	return windows
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(math.Round(s*1000)) * time.Millisecond
}
