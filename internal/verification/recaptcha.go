package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lexiqai/speech-relay/internal/config"
	"github.com/lexiqai/speech-relay/internal/observability"
)

// ExpectedAction is the reCAPTCHA v3 action the submission form executes
const ExpectedAction = "submit_tts"

var (
	// ErrMissingToken is returned when verification is on and no token was sent
	ErrMissingToken = errors.New("verification token is required")
	// ErrRejected is returned when the provider judges the caller a bot
	ErrRejected = errors.New("verification failed")
	// ErrMisconfigured is returned when verification is on without a secret
	ErrMisconfigured = errors.New("verification is enabled but no secret is configured")
	// ErrUnavailable is returned when the provider cannot be reached
	ErrUnavailable = errors.New("verification service unavailable")
)

// Verifier checks a client-supplied bot-verification token
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// New returns the verifier selected by configuration
func New(cfg *config.Config) Verifier {
	if !cfg.VerificationEnabled {
		return Disabled{}
	}
	return NewRecaptchaVerifier(cfg)
}

// Disabled admits every caller
type Disabled struct{}

// Verify always succeeds
func (Disabled) Verify(ctx context.Context, token, remoteIP string) error {
	return nil
}

// RecaptchaVerifier validates reCAPTCHA v3 tokens via siteverify
type RecaptchaVerifier struct {
	secret     string
	verifyURL  string
	minScore   float64
	action     string
	httpClient *http.Client
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// NewRecaptchaVerifier creates a reCAPTCHA v3 verifier
func NewRecaptchaVerifier(cfg *config.Config) *RecaptchaVerifier {
	return &RecaptchaVerifier{
		secret:     cfg.RecaptchaSecretKey,
		verifyURL:  cfg.RecaptchaVerifyURL,
		minScore:   cfg.RecaptchaMinScore,
		action:     ExpectedAction,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify rejects missing tokens, failed checks, wrong actions and low scores
func (v *RecaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	if v.secret == "" {
		observability.RecordVerification("misconfigured")
		return ErrMisconfigured
	}
	if token == "" {
		observability.RecordVerification("missing_token")
		return ErrMissingToken
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		observability.RecordVerification("unavailable")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observability.RecordVerification("unavailable")
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var result siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		observability.RecordVerification("unavailable")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case !result.Success:
		observability.RecordVerification("rejected")
		return fmt.Errorf("%w: %s", ErrRejected, strings.Join(result.ErrorCodes, ","))
	case result.Action != "" && result.Action != v.action:
		observability.RecordVerification("rejected")
		return fmt.Errorf("%w: unexpected action %q", ErrRejected, result.Action)
	case result.Score < v.minScore:
		observability.RecordVerification("low_score")
		return fmt.Errorf("%w: score %.2f below %.2f", ErrRejected, result.Score, v.minScore)
	}

	observability.RecordVerification("passed")
	return nil
}
