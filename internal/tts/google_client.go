package tts

import (
	"context"
	"fmt"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"github.com/lexiqai/speech-relay/internal/config"
)

// GoogleClient implements Endpoint using Google Cloud Text-to-Speech.
// The credential is the caller's API key.
type GoogleClient struct {
	language string
	timeout  time.Duration
}

// NewGoogleClient creates a new Google Cloud speech client
func NewGoogleClient(cfg *config.Config) *GoogleClient {
	return &GoogleClient{
		language: cfg.SpeechLanguage,
		timeout:  time.Duration(cfg.SpeechRequestTimeout) * time.Second,
	}
}

// Name returns the provider name
func (g *GoogleClient) Name() string {
	return config.ProviderGoogle
}

// Synthesize renders req.Text as MP3 with the named voice
func (g *GoogleClient) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	client, err := texttospeech.NewClient(ctx, option.WithAPIKey(req.Credential))
	if err != nil {
		return nil, fmt.Errorf("failed to create texttospeech client: %w", err)
	}
	defer client.Close()

	resp, err := client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.language,
			Name:         req.Voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("texttospeech request failed: %w", err)
	}

	if len(resp.GetAudioContent()) == 0 {
		return nil, ErrEmptyAudio
	}

	return resp.GetAudioContent(), nil
}
