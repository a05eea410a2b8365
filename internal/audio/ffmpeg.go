package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-relay/internal/config"
	"github.com/lexiqai/speech-relay/internal/observability"
)

// MimeTypeMP3 is the content type of every assembled track
const MimeTypeMP3 = "audio/mpeg"

// ErrFFmpegNotFound is returned when the ffmpeg binary cannot be resolved
var ErrFFmpegNotFound = errors.New("ffmpeg not found")

// FFmpegTranscoder implements Transcoder and SilenceGenerator with ffmpeg
type FFmpegTranscoder struct {
	ffmpegPath string
	sampleRate int
	channels   int
	bitrate    string
	logger     zerolog.Logger
}

// NewFFmpegTranscoder resolves FFMPEG_PATH and applies the output format settings
func NewFFmpegTranscoder(cfg *config.Config) (*FFmpegTranscoder, error) {
	path, err := exec.LookPath(cfg.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFFmpegNotFound, cfg.FFmpegPath)
	}
	return NewFFmpegTranscoderWithPath(path, cfg.AudioSampleRate, cfg.AudioChannels, cfg.AudioBitrate), nil
}

// NewFFmpegTranscoderWithPath creates a transcoder for a specific ffmpeg binary
func NewFFmpegTranscoderWithPath(path string, sampleRate, channels int, bitrate string) *FFmpegTranscoder {
	return &FFmpegTranscoder{
		ffmpegPath: path,
		sampleRate: sampleRate,
		channels:   channels,
		bitrate:    bitrate,
		logger:     observability.WithComponent("ffmpeg"),
	}
}

// PadOrTrim re-encodes data to exactly d, padding the tail with silence
func (f *FFmpegTranscoder) PadOrTrim(ctx context.Context, data []byte, d time.Duration) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty input data")
	}
	if d <= 0 {
		return nil, fmt.Errorf("invalid target duration %s", d)
	}

	dur := formatSeconds(d)
	args := []string{
		"-f", "mp3",
		"-i", "pipe:0",
		"-af", "apad=whole_dur=" + dur,
		"-t", dur,
	}
	args = append(args, f.outputArgs()...)

	return f.run(ctx, data, args...)
}

// Concatenate joins segments with ffmpeg's concat protocol without re-encoding.
// Inputs are staged in a scratch directory that is always removed.
func (f *FFmpegTranscoder) Concatenate(ctx context.Context, segments [][]byte) ([]byte, error) {
	switch len(segments) {
	case 0:
		return nil, ErrNoSegments
	case 1:
		return segments[0], nil
	}

	dir, err := os.MkdirTemp("", "speech-relay-concat-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	paths := make([]string, len(segments))
	for i, seg := range segments {
		paths[i] = filepath.Join(dir, fmt.Sprintf("seg-%04d.mp3", i))
		if err := os.WriteFile(paths[i], seg, 0o600); err != nil {
			return nil, fmt.Errorf("failed to stage segment %d: %w", i, err)
		}
	}

	return f.run(ctx, nil,
		"-i", "concat:"+strings.Join(paths, "|"),
		"-acodec", "copy",
		"-f", "mp3",
		"pipe:1",
	)
}

// Silence renders d of silence in the output format
func (f *FFmpegTranscoder) Silence(ctx context.Context, d time.Duration) ([]byte, error) {
	if d <= 0 {
		return nil, fmt.Errorf("invalid silence duration %s", d)
	}

	layout := "stereo"
	if f.channels == 1 {
		layout = "mono"
	}

	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=%s", f.sampleRate, layout),
		"-t", formatSeconds(d),
	}
	args = append(args, f.outputArgs()...)

	return f.run(ctx, nil, args...)
}

// Check verifies the binary runs; used by readiness probes
func (f *FFmpegTranscoder) Check(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, "-hide_banner", "-version")
	if err := cmd.Run(); err != nil {
		return false, fmt.Errorf("ffmpeg unavailable: %w", err)
	}
	return true, nil
}

func (f *FFmpegTranscoder) outputArgs() []string {
	return []string{
		"-ar", strconv.Itoa(f.sampleRate),
		"-ac", strconv.Itoa(f.channels),
		"-b:a", f.bitrate,
		"-f", "mp3",
		"pipe:1",
	}
}

func (f *FFmpegTranscoder) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	full := append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)
	cmd := exec.CommandContext(ctx, f.ffmpegPath, full...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Error().Err(err).Str("stderr", stderr.String()).Msg("ffmpeg failed")
		return nil, fmt.Errorf("%w: %s", ErrTranscode, strings.TrimSpace(stderr.String()))
	}

	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: no output", ErrTranscode)
	}

	return stdout.Bytes(), nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
