// Package service provides the per-principal read throttle. Repeated
// decryption failures for a principal lock further reads behind an
// exponentially growing delay, bounding brute-force attempts against a
// principal's derived key.
package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AttemptLimiter gates secret reads per principal.
type AttemptLimiter interface {
	// Allow reports whether the principal may attempt a read now, with the
	// remaining lockout when it may not.
	Allow(principal string, now time.Time) (bool, time.Duration)
	// RecordFailure counts a decryption failure and reports whether the
	// principal just crossed into lockout.
	RecordFailure(principal string, now time.Time) bool
	// Reset clears failure state after a successful read.
	Reset(principal string)
}

// LimiterConfig tunes the throttle. MaxFailures consecutive failures start
// the lockout at BaseDelay, doubling per further failure up to MaxDelay.
type LimiterConfig struct {
	MaxFailures int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// ReadsPerSecond and Burst bound the raw attempt rate per principal,
	// independent of failures. Zero ReadsPerSecond disables the rate gate.
	ReadsPerSecond float64
	Burst          int
}

// LimiterStore holds per-principal throttle state with periodic
// cleanup of stale entries.
type LimiterStore struct {
	entries sync.Map // map[string]*attemptEntry
	cfg     LimiterConfig
	done    chan struct{}
	once    sync.Once
}

type attemptEntry struct {
	mu         sync.Mutex
	limiter    *rate.Limiter
	failures   int
	lockedTill time.Time
	lastAccess time.Time
}

// NewAttemptLimiter creates the throttle and starts its stale-entry cleanup
// loop. Callers must Close it.
func NewAttemptLimiter(cfg LimiterConfig) *LimiterStore {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 300 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}

	store := &LimiterStore{cfg: cfg, done: make(chan struct{})}
	go store.cleanupStale(5 * time.Minute)
	return store
}

// Allow checks the lockout deadline first, then the raw attempt rate.
func (s *LimiterStore) Allow(principal string, now time.Time) (bool, time.Duration) {
	entry := s.getEntry(principal, now)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.lastAccess = now
	if now.Before(entry.lockedTill) {
		return false, entry.lockedTill.Sub(now)
	}
	if entry.limiter != nil && !entry.limiter.AllowN(now, 1) {
		return false, 0
	}
	return true, 0
}

// RecordFailure increments the consecutive failure count. Once the count
// reaches MaxFailures the lockout starts at BaseDelay and doubles per
// additional failure, capped at MaxDelay.
func (s *LimiterStore) RecordFailure(principal string, now time.Time) bool {
	entry := s.getEntry(principal, now)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.lastAccess = now
	entry.failures++
	if entry.failures < s.cfg.MaxFailures {
		return false
	}

	delay := s.cfg.BaseDelay
	for i := s.cfg.MaxFailures; i < entry.failures && delay < s.cfg.MaxDelay; i++ {
		delay *= 2
	}
	if delay > s.cfg.MaxDelay {
		delay = s.cfg.MaxDelay
	}
	entry.lockedTill = now.Add(delay)

	return entry.failures == s.cfg.MaxFailures
}

// Reset clears the failure count and lockout for a principal.
func (s *LimiterStore) Reset(principal string) {
	if val, ok := s.entries.Load(principal); ok {
		entry := val.(*attemptEntry)
		entry.mu.Lock()
		entry.failures = 0
		entry.lockedTill = time.Time{}
		entry.mu.Unlock()
	}
}

// Close stops the cleanup loop.
func (s *LimiterStore) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *LimiterStore) getEntry(principal string, now time.Time) *attemptEntry {
	if val, ok := s.entries.Load(principal); ok {
		return val.(*attemptEntry)
	}

	entry := &attemptEntry{lastAccess: now}
	if s.cfg.ReadsPerSecond > 0 {
		entry.limiter = rate.NewLimiter(rate.Limit(s.cfg.ReadsPerSecond), s.cfg.Burst)
	}

	actual, _ := s.entries.LoadOrStore(principal, entry)
	return actual.(*attemptEntry)
}

// cleanupStale drops principals with no activity in the last hour to prevent
// unbounded memory growth.
func (s *LimiterStore) cleanupStale(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			threshold := time.Now().Add(-1 * time.Hour)
			s.entries.Range(func(key, value any) bool {
				entry := value.(*attemptEntry)
				entry.mu.Lock()
				stale := entry.lastAccess.Before(threshold) && !time.Now().Before(entry.lockedTill)
				entry.mu.Unlock()

				if stale {
					s.entries.Delete(key)
				}
				return true
			})
		}
	}
}
