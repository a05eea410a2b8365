package tts

import (
	"context"
	"fmt"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/speak/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	speakClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/speak"

	"github.com/lexiqai/speech-relay/internal/config"
)

// DeepgramClient implements Endpoint using Deepgram's Speak REST API.
// The credential is the caller's Deepgram API key.
type DeepgramClient struct {
	timeout time.Duration
}

// NewDeepgramClient creates a new Deepgram speech client
func NewDeepgramClient(cfg *config.Config) *DeepgramClient {
	return &DeepgramClient{
		timeout: time.Duration(cfg.SpeechRequestTimeout) * time.Second,
	}
}

// Name returns the provider name
func (d *DeepgramClient) Name() string {
	return config.ProviderDeepgram
}

// Synthesize renders req.Text with the Aura model named by req.Voice
func (d *DeepgramClient) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	// The API key travels with each request, so the SDK client is per call
	client := speakClient.NewREST(req.Credential, &interfaces.ClientOptions{})
	dg := api.New(client)

	options := &interfaces.SpeakOptions{
		Model:    req.Voice,
		Encoding: "mp3",
	}

	var buf interfaces.RawResponse
	if _, err := dg.ToStream(ctx, req.Text, options, &buf); err != nil {
		return nil, fmt.Errorf("deepgram speak request failed: %w", err)
	}

	if buf.Len() == 0 {
		return nil, ErrEmptyAudio
	}

	return buf.Bytes(), nil
}
