package pipeline

import (
	"strings"

	"github.com/lexiqai/speech-relay/internal/audio"
	"github.com/lexiqai/speech-relay/internal/chunker"
	"github.com/lexiqai/speech-relay/internal/subtitle"
)

// Input types
const (
	TypeText = "text"
	TypeSRT  = "srt"
)

// Plan is the fixed list of units one run will synthesize.
// Texts and Timings are index-aligned; Timings is nil for plain text.
type Plan struct {
	Type     string
	Texts    []string
	Timings  []audio.Timing
	Segments []subtitle.TimedSegment
}

// Len returns the number of units to synthesize
func (p *Plan) Len() int {
	return len(p.Texts)
}

// NormalizeType maps an empty type to text and rejects unknown types
func NormalizeType(t string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "", TypeText:
		return TypeText, nil
	case TypeSRT:
		return TypeSRT, nil
	default:
		return "", ErrInvalidType
	}
}

// Prepare parses or segments text into a Plan. Units whose text is blank
// are dropped; a timed cue dropped this way becomes silence in timed assembly.
func Prepare(inputType, text string, chunkSize int) (*Plan, error) {
	t, err := NormalizeType(inputType)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Type: t}

	if t == TypeSRT {
		for _, seg := range subtitle.Parse(text) {
			if strings.TrimSpace(seg.Text) == "" {
				continue
			}
			plan.Segments = append(plan.Segments, seg)
			plan.Texts = append(plan.Texts, seg.Text)
			plan.Timings = append(plan.Timings, audio.Timing{Start: seg.Start, End: seg.End})
		}
	} else {
		for _, chunk := range chunker.Split(text, chunkSize) {
			if c := strings.TrimSpace(chunk); c != "" {
				plan.Texts = append(plan.Texts, c)
			}
		}
	}

	if len(plan.Texts) == 0 {
		return nil, ErrNothingToProcess
	}
	return plan, nil
}
