package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speech_relay_active_runs",
		Help: "Number of pipeline runs in progress",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_relay_runs_total",
		Help: "Total number of pipeline runs by input type and outcome",
	}, []string{"type", "outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speech_relay_run_duration_seconds",
		Help:    "End-to-end pipeline run duration in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	segmentsPerRun = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speech_relay_segments_per_run",
		Help:    "Number of synthesized segments per run",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})

	// Synthesis metrics
	synthRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_relay_synthesis_requests_total",
		Help: "Total number of speech endpoint calls",
	}, []string{"provider", "status"})

	synthLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speech_relay_synthesis_latency_seconds",
		Help:    "Speech endpoint latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"provider"})

	// Assembly metrics
	assemblies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_relay_assemblies_total",
		Help: "Total number of track assemblies by mode",
	}, []string{"mode"})

	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_relay_audio_bytes_total",
		Help: "Total audio bytes handled",
	}, []string{"stage"}) // stage: "synthesized" or "assembled"

	// Admission metrics
	admissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_relay_admissions_total",
		Help: "Admission decisions of the rate limiter",
	}, []string{"decision"})

	verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_relay_verifications_total",
		Help: "Bot verification outcomes",
	}, []string{"result"})

	// Retention metrics
	retainedArtifacts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speech_relay_retained_artifacts",
		Help: "Number of artifacts currently held by the retention store",
	})

	evictedArtifacts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_relay_evicted_artifacts_total",
		Help: "Total artifacts evicted from the retention store",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_relay_errors_total",
		Help: "Total number of run errors by kind",
	}, []string{"kind"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "speech_relay_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})
)

// RunMetrics tracks metrics for a single pipeline run
type RunMetrics struct {
	inputType string
	startTime time.Time
}

// NewRunMetrics starts tracking a run
func NewRunMetrics(inputType string) *RunMetrics {
	activeRuns.Inc()
	return &RunMetrics{
		inputType: inputType,
		startTime: time.Now(),
	}
}

// Finish records the run outcome; call exactly once
func (m *RunMetrics) Finish(outcome string, segments int) {
	activeRuns.Dec()
	runsTotal.WithLabelValues(m.inputType, outcome).Inc()
	runDuration.Observe(time.Since(m.startTime).Seconds())
	if segments > 0 {
		segmentsPerRun.Observe(float64(segments))
	}
}

// RecordSynthesis records one speech endpoint call
func RecordSynthesis(provider string, success bool, latency time.Duration, bytes int) {
	status := "success"
	if !success {
		status = "error"
	}
	synthRequests.WithLabelValues(provider, status).Inc()
	synthLatency.WithLabelValues(provider).Observe(latency.Seconds())
	if bytes > 0 {
		audioBytes.WithLabelValues("synthesized").Add(float64(bytes))
	}
}

// RecordAssembly records a finished assembly
func RecordAssembly(mode string, bytes int) {
	assemblies.WithLabelValues(mode).Inc()
	audioBytes.WithLabelValues("assembled").Add(float64(bytes))
}

// RecordAdmission records a rate limiter decision
func RecordAdmission(admitted bool) {
	decision := "admitted"
	if !admitted {
		decision = "rejected"
	}
	admissions.WithLabelValues(decision).Inc()
}

// RecordVerification records a bot verification outcome
func RecordVerification(result string) {
	verifications.WithLabelValues(result).Inc()
}

// RecordRetention updates retention store gauges
func RecordRetention(retained, evicted int) {
	retainedArtifacts.Set(float64(retained))
	if evicted > 0 {
		evictedArtifacts.Add(float64(evicted))
	}
}

// RecordError records a run error by kind
func RecordError(kind string) {
	errorsTotal.WithLabelValues(kind).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}
