package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/lexiqai/speech-relay/internal/observability"
)

// ErrLimited is returned when a caller exceeds the admission policy
var ErrLimited = errors.New("too many requests")

// Limiter decides whether a caller may start a run
type Limiter interface {
	Admit(key string) bool
}

// SlidingWindow admits at most limit requests per key within any window.
// Only admitted requests count toward the limit.
type SlidingWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	history map[string][]time.Time
	lastGC  time.Time
}

// NewSlidingWindow creates an in-memory limiter
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:   limit,
		window:  window,
		now:     time.Now,
		history: make(map[string][]time.Time),
	}
}

// Admit records and allows the request if the key is under its limit
func (l *SlidingWindow) Admit(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := prune(l.history[key], cutoff)
	admitted := len(recent) < l.limit
	if admitted {
		recent = append(recent, now)
	}

	if len(recent) == 0 {
		delete(l.history, key)
	} else {
		l.history[key] = recent
	}

	if now.Sub(l.lastGC) >= l.window {
		l.collect(cutoff)
		l.lastGC = now
	}

	observability.RecordAdmission(admitted)
	return admitted
}

// Keys returns the number of tracked callers
func (l *SlidingWindow) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

// collect drops callers with no request inside the window
func (l *SlidingWindow) collect(cutoff time.Time) {
	for key, stamps := range l.history {
		if recent := prune(stamps, cutoff); len(recent) == 0 {
			delete(l.history, key)
		} else {
			l.history[key] = recent
		}
	}
}

// prune keeps timestamps strictly after cutoff; stamps are in ascending order
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
