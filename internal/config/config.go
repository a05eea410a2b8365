package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Speech providers
const (
	ProviderTikTok   = "tiktok"
	ProviderDeepgram = "deepgram"
	ProviderGoogle   = "google"
)

// Delivery modes
const (
	DeliveryPersist = "persist"
	DeliveryInline  = "inline"
)

// Timing modes
const (
	TimingAuto   = "auto"   // duration-aware when a transcoder is available
	TimingSimple = "simple" // always plain concatenation
)

const writeMargin = 30 * time.Second

// Config holds all configuration for the speech relay service
type Config struct {
	// Server configuration
	Port             string `envconfig:"PORT" default:"8080"`
	HTTPWriteTimeout int    `envconfig:"HTTP_WRITE_TIMEOUT" default:"300"` // seconds; runs are synchronous

	// gRPC health service
	GRPCEnabled bool   `envconfig:"GRPC_ENABLED" default:"true"`
	GRPCPort    string `envconfig:"GRPC_PORT" default:"9090"`

	// Speech endpoint configuration
	SpeechProvider       string `envconfig:"SPEECH_PROVIDER" default:"tiktok"` // tiktok, deepgram, google
	SpeechEndpointURL    string `envconfig:"SPEECH_ENDPOINT_URL" default:"https://api16-normal-c-useast1a.tiktokv.com/media/api/text/speech/invoke/"`
	SpeechRequestTimeout int    `envconfig:"SPEECH_REQUEST_TIMEOUT" default:"60"` // seconds, 0 disables
	SpeechLanguage       string `envconfig:"SPEECH_LANGUAGE" default:"vi-VN"`     // google provider only

	// Pipeline configuration
	SynthPacingMS int `envconfig:"SYNTH_PACING_MS" default:"500"` // Delay between synthesis calls
	ChunkSize     int `envconfig:"CHUNK_SIZE" default:"200"`      // Max characters per plain-text chunk
	MaxTextLength int `envconfig:"MAX_TEXT_LENGTH" default:"5000"`
	RunTimeout    int `envconfig:"RUN_TIMEOUT" default:"0"` // seconds, 0 disables

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Output delivery
	DeliveryMode    string `envconfig:"DELIVERY_MODE" default:"persist"` // persist, inline
	OutputDir       string `envconfig:"OUTPUT_DIR" default:"public/tts-outputs"`
	OutputURLPrefix string `envconfig:"OUTPUT_URL_PREFIX" default:"/tts-outputs/"`
	RetentionLimit  int    `envconfig:"RETENTION_LIMIT" default:"50"`

	// Audio assembly
	FFmpegPath      string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	TimingMode      string `envconfig:"TIMING_MODE" default:"auto"` // auto, simple
	LeadInEnabled   bool   `envconfig:"LEAD_IN_ENABLED" default:"true"`
	AudioSampleRate int    `envconfig:"AUDIO_SAMPLE_RATE" default:"22050"`
	AudioChannels   int    `envconfig:"AUDIO_CHANNELS" default:"2"`
	AudioBitrate    string `envconfig:"AUDIO_BITRATE" default:"96k"`

	// Admission control
	RateLimitRequests int  `envconfig:"RATE_LIMIT_REQUESTS" default:"5"`
	RateLimitWindow   int  `envconfig:"RATE_LIMIT_WINDOW" default:"60"` // seconds
	TrustProxyHeaders bool `envconfig:"TRUST_PROXY_HEADERS" default:"false"`

	// Bot verification (reCAPTCHA v3)
	VerificationEnabled bool    `envconfig:"VERIFICATION_ENABLED" default:"false"`
	RecaptchaSecretKey  string  `envconfig:"RECAPTCHA_SECRET_KEY" default:""`
	RecaptchaMinScore   float64 `envconfig:"RECAPTCHA_MIN_SCORE" default:"0.5"`
	RecaptchaVerifyURL  string  `envconfig:"RECAPTCHA_VERIFY_URL" default:"https://www.google.com/recaptcha/api/siteverify"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks enumerations, ranges and misconfigurations
func (c *Config) Validate() error {
	switch c.SpeechProvider {
	case ProviderTikTok, ProviderDeepgram, ProviderGoogle:
	default:
		return fmt.Errorf("SPEECH_PROVIDER must be one of: tiktok, deepgram, google")
	}

	switch c.DeliveryMode {
	case DeliveryPersist, DeliveryInline:
	default:
		return fmt.Errorf("DELIVERY_MODE must be one of: persist, inline")
	}

	switch c.TimingMode {
	case TimingAuto, TimingSimple:
	default:
		return fmt.Errorf("TIMING_MODE must be one of: auto, simple")
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("CHUNK_SIZE must be at least 1")
	}
	if c.MaxTextLength < 1 {
		return fmt.Errorf("MAX_TEXT_LENGTH must be at least 1")
	}
	if c.SynthPacingMS < 0 {
		return fmt.Errorf("SYNTH_PACING_MS must be non-negative")
	}
	if c.DeliveryMode == DeliveryPersist && c.RetentionLimit < 1 {
		return fmt.Errorf("RETENTION_LIMIT must be at least 1")
	}
	if c.RateLimitRequests < 1 || c.RateLimitWindow < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be at least 1")
	}

	// An enabled check without a secret would silently admit every caller
	if c.VerificationEnabled && c.RecaptchaSecretKey == "" {
		return fmt.Errorf("RECAPTCHA_SECRET_KEY is required when VERIFICATION_ENABLED is true")
	}

	return nil
}

// SynthPacing returns the delay between successive synthesis calls
func (c *Config) SynthPacing() time.Duration {
	return time.Duration(c.SynthPacingMS) * time.Millisecond
}

// WriteTimeout bounds a synchronous POST /api/tts response. It never ends
// before RUN_TIMEOUT plus a margin for assembly and delivery.
func (c *Config) WriteTimeout() time.Duration {
	base := time.Duration(c.HTTPWriteTimeout) * time.Second
	if c.RunTimeout > 0 {
		if run := time.Duration(c.RunTimeout)*time.Second + writeMargin; run > base {
			return run
		}
	}
	return base
}

// RateWindow returns the admission sliding window
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimitWindow) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
