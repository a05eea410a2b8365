// Package subtitle parses SRT subtitle input into timed text segments.
package subtitle

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// TimingSeparator separates the start and end tokens of an SRT timing line
const TimingSeparator = " --> "

// blankLine matches one or more empty (or whitespace-only) lines between blocks
var blankLine = regexp.MustCompile(`\n[ \t]*\n+`)

// TimedSegment is one subtitle cue. Start and End are in seconds.
type TimedSegment struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// Duration returns the cue length in seconds
func (s TimedSegment) Duration() float64 {
	return s.End - s.Start
}

// Parse turns SRT text into segments sorted by start time.
// Malformed blocks are skipped; input without any well-formed block
// yields an empty slice and no error.
func Parse(input string) []TimedSegment {
	input = normalize(input)
	if input == "" {
		return []TimedSegment{}
	}

	segments := make([]TimedSegment, 0)
	for _, block := range blankLine.Split(input, -1) {
		seg, ok := parseBlock(block)
		if !ok {
			continue
		}
		segments = append(segments, seg)
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})

	return segments
}

// normalize converts line endings to LF and drops a leading BOM
func normalize(input string) string {
	input = strings.TrimPrefix(input, "\uFEFF")
	input = strings.ReplaceAll(input, "\r\n", "\n")
	input = strings.ReplaceAll(input, "\r", "\n")
	return strings.TrimSpace(input)
}

func parseBlock(block string) (TimedSegment, bool) {
	lines := strings.Split(strings.TrimSpace(block), "\n")
	if len(lines) < 3 {
		return TimedSegment{}, false
	}

	index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || index < 0 {
		return TimedSegment{}, false
	}

	startTok, endTok, found := strings.Cut(lines[1], TimingSeparator)
	startTok, endTok = strings.TrimSpace(startTok), strings.TrimSpace(endTok)
	if !found || startTok == "" || endTok == "" {
		return TimedSegment{}, false
	}

	// Drop trailing cue settings such as "X1:40 X2:600"
	if fields := strings.Fields(endTok); len(fields) > 0 {
		endTok = fields[0]
	}

	start, err := ParseTimestamp(startTok)
	if err != nil {
		return TimedSegment{}, false
	}
	end, err := ParseTimestamp(endTok)
	if err != nil || end <= start {
		return TimedSegment{}, false
	}

	text := strings.TrimSpace(strings.Join(lines[2:], " "))

	return TimedSegment{
		Index: index,
		Start: start,
		End:   end,
		Text:  text,
	}, true
}

// ParseTimestamp converts HH:MM:SS,mmm into seconds.
// The sub-second part is optional and may use '.' as well as ','.
func ParseTimestamp(token string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(token), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", token)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 {
		return 0, fmt.Errorf("invalid hours in %q", token)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 {
		return 0, fmt.Errorf("invalid minutes in %q", token)
	}

	secPart := strings.Replace(parts[2], ",", ".", 1)
	if secPart == "" {
		return 0, fmt.Errorf("invalid seconds in %q", token)
	}
	seconds, err := strconv.ParseFloat(secPart, 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("invalid seconds in %q", token)
	}

	return float64(hours*3600+minutes*60) + seconds, nil
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3_600_000
	ms %= 3_600_000
	m := ms / 60_000
	ms %= 60_000
	s := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// Compose renders segments back into SRT text
func Compose(segments []TimedSegment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s%s%s\n%s\n",
			seg.Index,
			FormatTimestamp(seg.Start), TimingSeparator, FormatTimestamp(seg.End),
			seg.Text,
		)
	}
	return b.String()
}
