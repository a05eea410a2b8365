package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/speech-relay/internal/api"
	"github.com/lexiqai/speech-relay/internal/audio"
	"github.com/lexiqai/speech-relay/internal/config"
	"github.com/lexiqai/speech-relay/internal/observability"
	"github.com/lexiqai/speech-relay/internal/pipeline"
	"github.com/lexiqai/speech-relay/internal/ratelimit"
	"github.com/lexiqai/speech-relay/internal/resilience"
	"github.com/lexiqai/speech-relay/internal/rpc"
	"github.com/lexiqai/speech-relay/internal/storage"
	"github.com/lexiqai/speech-relay/internal/tts"
	"github.com/lexiqai/speech-relay/internal/verification"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.Version = config.GetEnv("SERVICE_VERSION", observability.Version)

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("version", observability.Version).
		Str("speech_provider", cfg.SpeechProvider).
		Str("delivery_mode", cfg.DeliveryMode).
		Str("timing_mode", cfg.TimingMode).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Bool("verification_enabled", cfg.VerificationEnabled).
		Msg("Speech relay starting")

	// Speech endpoint behind a circuit breaker
	endpoint, err := tts.NewEndpoint(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create speech endpoint")
	}
	breaker := resilience.NewCircuitBreaker(
		endpoint.Name(),
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	synth := tts.NewSynthesizer(endpoint, breaker, cfg.SynthPacing())

	// Transcoder is optional; without it subtitle timing degrades to concatenation
	var transcoder audio.Transcoder
	var ffmpeg *audio.FFmpegTranscoder
	if cfg.TimingMode != config.TimingSimple {
		ffmpeg, err = audio.NewFFmpegTranscoder(cfg)
		if err != nil {
			logger.Warn().Err(err).Msg("Audio transcoder unavailable, subtitle timing will not be preserved")
		} else {
			transcoder = ffmpeg
		}
	}
	assembler := audio.NewAssembler(transcoder, cfg.LeadInEnabled)

	// Delivery
	var store pipeline.ArtifactStore
	if cfg.DeliveryMode == config.DeliveryPersist {
		rs := storage.NewRetentionStore(cfg.OutputDir, cfg.OutputURLPrefix, cfg.RetentionLimit)
		logger.Info().
			Str("dir", rs.Dir()).
			Int("retention_limit", cfg.RetentionLimit).
			Msg("Persisting tracks to retention store")
		store = rs
	}
	delivery, err := pipeline.NewDelivery(cfg, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create delivery")
	}

	orch := pipeline.New(cfg, pipeline.Dependencies{
		Verifier:    verification.New(cfg),
		Limiter:     ratelimit.NewSlidingWindow(cfg.RateLimitRequests, cfg.RateWindow()),
		Synthesizer: synth,
		Assembler:   assembler,
		Delivery:    delivery,
	})

	logger.Info().
		Str("provider", synth.Provider()).
		Bool("timing_preserved", assembler.CanPreserveTiming()).
		Dur("pacing", cfg.SynthPacing()).
		Msg("Pipeline ready")

	// Readiness checks
	speechCheck := func(ctx context.Context) (bool, error) {
		state, _, failures, _ := synth.Breaker().GetStats()
		if state == resilience.StateOpen {
			return false, fmt.Errorf("circuit open after %d failures", failures)
		}
		return true, nil
	}
	checks := []observability.Check{{Name: "speech", Fn: speechCheck}}
	if ffmpeg != nil {
		checks = append(checks, observability.Check{Name: "transcoder", Fn: ffmpeg.Check})
	}

	server := api.New(cfg, orch, checks...)

	// Start HTTP server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Optional gRPC health service
	var health *rpc.HealthServer
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if cfg.GRPCEnabled {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
		if err != nil {
			logger.Fatal().Err(err).Str("port", cfg.GRPCPort).Msg("Failed to listen for gRPC")
		}
		health = rpc.NewHealthServer(10*time.Second, checks...)
		go health.Watch(watchCtx)
		go func() {
			if err := health.Serve(lis); err != nil {
				logger.Error().Err(err).Msg("gRPC health server failed")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	stopWatch()
	if health != nil {
		health.Shutdown()
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
