package tts

import (
	"fmt"

	"github.com/lexiqai/speech-relay/internal/config"
)

// NewEndpoint builds the speech endpoint selected by SPEECH_PROVIDER
func NewEndpoint(cfg *config.Config) (Endpoint, error) {
	switch cfg.SpeechProvider {
	case config.ProviderTikTok:
		return NewTikTokClient(cfg), nil
	case config.ProviderDeepgram:
		return NewDeepgramClient(cfg), nil
	case config.ProviderGoogle:
		return NewGoogleClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown speech provider %q", cfg.SpeechProvider)
	}
}
