package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lexiqai/speech-relay/internal/config"
)

const tiktokUserAgent = "com.zhiliaoapp.musically/2022600030 (Linux; U; Android 7.1.2; es_ES; SM-G988N; Build/NRD90M;tt-ok/3.12.13.1)"

// TikTokClient implements Endpoint using TikTok's text speech invoke API.
// The credential is the caller's session cookie.
type TikTokClient struct {
	apiURL     string
	httpClient *http.Client
}

// tiktokResponse is the subset of the invoke response we read
type tiktokResponse struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Data       *struct {
		VStr string `json:"v_str"`
	} `json:"data"`
}

// NewTikTokClient creates a new TikTok speech client
func NewTikTokClient(cfg *config.Config) *TikTokClient {
	return &TikTokClient{
		apiURL: cfg.SpeechEndpointURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.SpeechRequestTimeout) * time.Second,
		},
	}
}

// Name returns the provider name
func (c *TikTokClient) Name() string {
	return config.ProviderTikTok
}

// Synthesize posts one text chunk and decodes the base64 MP3 payload
func (c *TikTokClient) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	form := url.Values{}
	form.Set("text_speaker", req.Voice)
	form.Set("req_text", req.Text)
	form.Set("speaker_map_type", "0")
	form.Set("aid", "1233")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", tiktokUserAgent)
	httpReq.Header.Set("Cookie", req.Credential)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Provider: c.Name(), Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed tiktokResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if parsed.Data == nil || parsed.Data.VStr == "" {
		if parsed.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrEmptyAudio, parsed.Message)
		}
		return nil, ErrEmptyAudio
	}

	audio, err := base64.StdEncoding.DecodeString(parsed.Data.VStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio payload: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	return audio, nil
}
