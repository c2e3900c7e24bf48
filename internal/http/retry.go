package http

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/BenjaminSRussell/urlmon/internal/types"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns default retry configuration: a single attempt
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     0,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// RetryHandler retries network failures with exponential backoff
type RetryHandler struct {
	config RetryConfig

	// Per-host failure tracking
	hostFails sync.Map // map[string]*hostRetryState
}

type hostRetryState struct {
	mu               sync.Mutex
	consecutiveFails int
	lastFailTime     time.Time
}

// NewRetryHandler creates a new retry handler
func NewRetryHandler(config RetryConfig) *RetryHandler {
	return &RetryHandler{
		config: config,
	}
}

// ShouldRetry determines if a failed attempt may be retried. Only
// connection-level failures qualify; anything the peer answered is final.
func (rh *RetryHandler) ShouldRetry(err error) bool {
	return types.KindOf(err) == types.KindNetwork
}

// Backoff calculates the wait before retry number attempt (0-based)
func (rh *RetryHandler) Backoff(attempt int) time.Duration {
	backoff := rh.config.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * rh.config.BackoffFactor)
		if backoff > rh.config.MaxBackoff {
			backoff = rh.config.MaxBackoff
			break
		}
	}

	// Add jitter (±20%)
	jitter := time.Duration(float64(backoff) * 0.2 * (2.0*rand.Float64() - 1.0))
	return backoff + jitter
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// retry budget is spent.
func (rh *RetryHandler) Do(ctx context.Context, host string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			rh.RecordSuccess(host)
			return nil
		}
		rh.RecordFailure(host)

		if attempt >= rh.config.MaxRetries || !rh.ShouldRetry(err) {
			break
		}

		select {
		case <-time.After(rh.Backoff(attempt)):
		case <-ctx.Done():
			return err
		}
	}

	if rh.config.MaxRetries > 0 {
		return &RetryableError{Err: err, Attempts: rh.config.MaxRetries + 1}
	}
	return err
}

// RecordFailure records a failed attempt for a host
func (rh *RetryHandler) RecordFailure(host string) {
	state := rh.getOrCreateState(host)
	state.mu.Lock()
	defer state.mu.Unlock()

	state.consecutiveFails++
	state.lastFailTime = time.Now()
}

// RecordSuccess resets the failure counter for a host
func (rh *RetryHandler) RecordSuccess(host string) {
	state := rh.getOrCreateState(host)
	state.mu.Lock()
	defer state.mu.Unlock()

	state.consecutiveFails = 0
}

// ConsecutiveFailures returns the current failure streak for a host
func (rh *RetryHandler) ConsecutiveFailures(host string) int {
	state := rh.getOrCreateState(host)
	state.mu.Lock()
	defer state.mu.Unlock()

	return state.consecutiveFails
}

func (rh *RetryHandler) getOrCreateState(host string) *hostRetryState {
	if val, ok := rh.hostFails.Load(host); ok {
		return val.(*hostRetryState)
	}

	state := &hostRetryState{}
	actual, _ := rh.hostFails.LoadOrStore(host, state)
	return actual.(*hostRetryState)
}

// RetryableError wraps the last error once retries are exhausted
type RetryableError struct {
	Err      error
	Attempts int
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}
