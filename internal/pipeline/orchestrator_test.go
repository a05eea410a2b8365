package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lexiqai/speech-relay/internal/audio"
	"github.com/lexiqai/speech-relay/internal/config"
	"github.com/lexiqai/speech-relay/internal/ratelimit"
	"github.com/lexiqai/speech-relay/internal/resilience"
	"github.com/lexiqai/speech-relay/internal/storage"
	"github.com/lexiqai/speech-relay/internal/tts"
	"github.com/lexiqai/speech-relay/internal/verification"
)

const testVoice = "BV074_streaming"

// fakeEndpoint returns 2s of audio (200 bytes at 10ms per byte) per call
type fakeEndpoint struct {
	mu     sync.Mutex
	texts  []string
	failAt int // -1 disables
}

func (f *fakeEndpoint) Name() string { return "fake" }

func (f *fakeEndpoint) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.texts)
	f.texts = append(f.texts, req.Text)
	if n == f.failAt {
		return nil, errors.New("upstream returned status 500")
	}
	return bytes.Repeat([]byte{byte(n + 1)}, 200), nil
}

// linearTranscoder treats one byte as 10ms of audio
type linearTranscoder struct{}

func (linearTranscoder) PadOrTrim(ctx context.Context, data []byte, d time.Duration) ([]byte, error) {
	out := make([]byte, d.Milliseconds()/10)
	copy(out, data)
	return out, nil
}

func (linearTranscoder) Concatenate(ctx context.Context, segments [][]byte) ([]byte, error) {
	return bytes.Join(segments, nil), nil
}

func (linearTranscoder) Silence(ctx context.Context, d time.Duration) ([]byte, error) {
	return make([]byte, d.Milliseconds()/10), nil
}

type countingVerifier struct {
	calls int
	err   error
}

func (v *countingVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	v.calls++
	return v.err
}

type countingLimiter struct {
	calls int
	deny  bool
}

func (l *countingLimiter) Admit(key string) bool {
	l.calls++
	return !l.deny
}

type harness struct {
	endpoint *fakeEndpoint
	verifier *countingVerifier
	limiter  *countingLimiter
	orch     *Orchestrator
}

func newHarness(t *testing.T, cfg *config.Config, transcoder audio.Transcoder, delivery Delivery) *harness {
	t.Helper()

	if cfg == nil {
		cfg = testConfig()
	}
	if delivery == nil {
		delivery = ReturnInline{}
	}

	h := &harness{
		endpoint: &fakeEndpoint{failAt: -1},
		verifier: &countingVerifier{},
		limiter:  &countingLimiter{},
	}
	synth := tts.NewSynthesizer(h.endpoint, resilience.NewCircuitBreaker("speech", 5, time.Minute), 0)

	h.orch = New(cfg, Dependencies{
		Verifier:    h.verifier,
		Limiter:     h.limiter,
		Synthesizer: synth,
		Assembler:   audio.NewAssembler(transcoder, cfg.LeadInEnabled),
		Delivery:    delivery,
	})
	return h
}

func testConfig() *config.Config {
	return &config.Config{
		SpeechProvider: config.ProviderTikTok,
		MaxTextLength:  5000,
		ChunkSize:      200,
		TimingMode:     config.TimingAuto,
		LeadInEnabled:  true,
	}
}

func submission(text, typ string) Submission {
	return Submission{
		Text:       text,
		Voice:      testVoice,
		Type:       typ,
		Credential: "sessionid=abc",
		ClientKey:  "10.0.0.1",
	}
}

func TestRun_PlainText(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	result, err := h.orch.Run(context.Background(), submission("Hello world. This is a test.", "text"), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(h.endpoint.texts) != 1 || h.endpoint.texts[0] != "Hello world. This is a test." {
		t.Errorf("Expected one chunk with the whole sentence pair, got %q", h.endpoint.texts)
	}
	if result.Segments != 1 || result.RunID == "" {
		t.Errorf("Unexpected result metadata %+v", result)
	}
	if result.MimeType != "audio/mpeg" {
		t.Errorf("Expected audio/mpeg, got %s", result.MimeType)
	}
	data, err := base64.StdEncoding.DecodeString(result.AudioBase64)
	if err != nil || len(data) != 200 {
		t.Errorf("Expected the single segment unchanged, got %d bytes (%v)", len(data), err)
	}
}

func TestRun_SubtitleTimed(t *testing.T) {
	h := newHarness(t, nil, linearTranscoder{}, nil)

	srt := "1\n00:00:01,000 --> 00:00:05,000\nFirst line\n\n" +
		"2\n00:00:06,000 --> 00:00:10,000\nSecond line\n"

	result, err := h.orch.Run(context.Background(), submission(srt, "srt"), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.TimingPreserved || result.Warning != "" {
		t.Errorf("Expected preserved timing, got %+v", result)
	}

	data, _ := base64.StdEncoding.DecodeString(result.AudioBase64)
	if len(data) != 1000 {
		t.Fatalf("Expected 10s of audio (1000 bytes), got %d", len(data))
	}
	if !bytes.Equal(data[500:600], make([]byte, 100)) {
		t.Error("Expected silence covering second 5 to 6")
	}
	if data[600] != 2 {
		t.Error("Expected second cue to start at 6s")
	}
}

func TestRun_SubtitleDegraded(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	srt := "1\n00:00:01,000 --> 00:00:05,000\nFirst\n\n2\n00:00:06,000 --> 00:00:10,000\nSecond\n"
	result, err := h.orch.Run(context.Background(), submission(srt, "srt"), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.TimingPreserved || result.Warning == "" {
		t.Errorf("Expected degraded result with warning, got %+v", result)
	}
}

func TestRun_SimpleTimingMode(t *testing.T) {
	cfg := testConfig()
	cfg.TimingMode = config.TimingSimple
	h := newHarness(t, cfg, linearTranscoder{}, nil)

	srt := "1\n00:00:01,000 --> 00:00:05,000\nFirst\n\n2\n00:00:06,000 --> 00:00:10,000\nSecond\n"
	result, err := h.orch.Run(context.Background(), submission(srt, "srt"), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	data, _ := base64.StdEncoding.DecodeString(result.AudioBase64)
	if len(data) != 400 || result.TimingPreserved {
		t.Errorf("Expected plain concatenation of 400 bytes, got %d (preserved=%v)", len(data), result.TimingPreserved)
	}
}

func TestRun_MissingCredentialMakesNoCalls(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	sub := submission("Hello.", "text")
	sub.Credential = ""

	_, err := h.orch.Run(context.Background(), sub, nil)
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("Expected ErrMissingCredential, got %v", err)
	}
	if len(h.endpoint.texts) != 0 || h.verifier.calls != 0 || h.limiter.calls != 0 {
		t.Errorf("Expected zero external calls, got endpoint=%d verifier=%d limiter=%d",
			len(h.endpoint.texts), h.verifier.calls, h.limiter.calls)
	}
}

func TestRun_FailureAtSegmentAbortsWithoutArtifact(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewRetentionStore(dir, "/tts-outputs/", 50)
	h := newHarness(t, nil, nil, PersistToRetentionStore{Store: store})
	h.endpoint.failAt = 2

	// Five sentences of 30 characters, limit 40 forces one chunk each
	cfg := testConfig()
	cfg.ChunkSize = 40
	h.orch.chunkSize = cfg.ChunkSize
	text := "Sentence number one is here. Sentence number two is here. Sentence number three is here. " +
		"Sentence number four is here. Sentence number five is here."

	_, err := h.orch.Run(context.Background(), submission(text, "text"), nil)

	var segErr *tts.SegmentError
	if !errors.As(err, &segErr) {
		t.Fatalf("Expected SegmentError, got %v", err)
	}
	if segErr.Index != 2 {
		t.Errorf("Expected failure attributed to index 2, got %d", segErr.Index)
	}
	if len(h.endpoint.texts) != 3 {
		t.Errorf("Expected synthesis to stop after the failing call, got %d calls", len(h.endpoint.texts))
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected no artifact, found %d files", len(entries))
	}
}

func TestRun_PersistsArtifact(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewRetentionStore(dir, "/tts-outputs/", 50)
	h := newHarness(t, nil, nil, PersistToRetentionStore{Store: store})

	result, err := h.orch.Run(context.Background(), submission("Xin chào các bạn.", "text"), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.URL == "" || result.AudioBase64 != "" {
		t.Errorf("Expected URL-only result, got %+v", result)
	}

	names, _ := store.List()
	if len(names) != 1 || "/tts-outputs/"+names[0] != result.URL {
		t.Errorf("Expected stored artifact to match URL %s, got %v", result.URL, names)
	}
}

func TestRun_VerificationRejected(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	h.verifier.err = verification.ErrRejected

	_, err := h.orch.Run(context.Background(), submission("Hello.", "text"), nil)
	if !errors.Is(err, verification.ErrRejected) {
		t.Fatalf("Expected ErrRejected, got %v", err)
	}
	if h.limiter.calls != 0 || len(h.endpoint.texts) != 0 {
		t.Error("Expected rejection before admission and synthesis")
	}
}

func TestRun_RateLimited(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	h.limiter.deny = true

	_, err := h.orch.Run(context.Background(), submission("Hello.", "text"), nil)
	if !errors.Is(err, ratelimit.ErrLimited) {
		t.Fatalf("Expected ErrLimited, got %v", err)
	}
	if len(h.endpoint.texts) != 0 {
		t.Error("Expected no synthesis when limited")
	}
}

func TestRun_NothingToProcess(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	_, err := h.orch.Run(context.Background(), submission("... ?! .", "text"), nil)
	if !errors.Is(err, ErrNothingToProcess) {
		t.Errorf("Expected ErrNothingToProcess for delimiter-only text, got %v", err)
	}

	_, err = h.orch.Run(context.Background(), submission("not a subtitle file", "srt"), nil)
	if !errors.Is(err, ErrNothingToProcess) {
		t.Errorf("Expected ErrNothingToProcess for unparseable srt, got %v", err)
	}
}

func TestRun_DetachedFromCallerCancellation(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	progress := func(index, total int) {
		// Caller disconnects mid-run
		cancel()
	}

	text := "One. Two."
	cfg := testConfig()
	cfg.ChunkSize = 5
	h.orch.chunkSize = cfg.ChunkSize

	result, err := h.orch.Run(ctx, submission(text, "text"), progress)
	if err != nil {
		t.Fatalf("Expected run to complete after caller cancellation, got %v", err)
	}
	if result.Segments != 2 {
		t.Errorf("Expected 2 segments, got %d", result.Segments)
	}
}

func TestValidate(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	long := make([]rune, 5001)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name    string
		mutate  func(*Submission)
		wantErr error
	}{
		{name: "valid", mutate: func(s *Submission) {}},
		{name: "empty type defaults to text", mutate: func(s *Submission) { s.Type = "" }},
		{name: "blank credential", mutate: func(s *Submission) { s.Credential = "  " }, wantErr: ErrMissingCredential},
		{name: "empty text", mutate: func(s *Submission) { s.Text = "" }, wantErr: ErrTextLength},
		{name: "too long", mutate: func(s *Submission) { s.Text = string(long) }, wantErr: ErrTextLength},
		{name: "unknown voice", mutate: func(s *Submission) { s.Voice = "nope" }, wantErr: ErrUnknownVoice},
		{name: "bad type", mutate: func(s *Submission) { s.Type = "vtt" }, wantErr: ErrInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := submission("Hello.", "text")
			tt.mutate(&sub)

			err := h.orch.Validate(sub)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Expected valid, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_CountsRunesNotBytes(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTextLength = 5
	h := newHarness(t, cfg, nil, nil)

	// Five runes, fifteen bytes
	if err := h.orch.Validate(submission("chào!", "text")); err != nil {
		t.Errorf("Expected multi-byte text within the rune limit to pass, got %v", err)
	}
}
