package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"golang.org/x/sync/semaphore"
)

// RetryConfig holds retry configuration for vision requests.
type RetryConfig struct {
	MaxRetries        int           // default: 3
	InitialBackoff    time.Duration // default: 1s
	MaxBackoff        time.Duration // default: 30s
	BackoffMultiplier float64       // default: 2.0
	Timeout           time.Duration // per attempt, default: 90s

	CircuitBreakerEnabled bool
	FailureThreshold      int           // failures before opening (default: 5)
	SuccessThreshold      int           // half-open successes before closing (default: 2)
	OpenTimeout           time.Duration // how long the circuit stays open (default: 30s)

	MaxConcurrentCalls int // 0 = unlimited
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:            3,
		InitialBackoff:        1 * time.Second,
		MaxBackoff:            30 * time.Second,
		BackoffMultiplier:     2.0,
		Timeout:               90 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
		MaxConcurrentCalls:    3,
	}
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // requests pass through
	CircuitOpen                         // fail fast
	CircuitHalfOpen                     // probing for recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops hammering the vision endpoint once it keeps failing.
type CircuitBreaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	now              func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
		now:              time.Now,
	}
}

// Allow returns ErrCircuitOpen while the circuit is open and its timeout
// has not elapsed. After the timeout the circuit moves to half-open.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return nil
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.openTimeout {
			cb.transition(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return ErrCircuitOpen
	}
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.transition(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transition(CircuitOpen)
	}
}

// GetMetrics returns the current state and counters.
func (cb *CircuitBreaker) GetMetrics() (state CircuitState, failures, successes int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failureCount, cb.successCount
}

// transition must be called with the lock held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.successCount = 0
	if to == CircuitClosed {
		cb.failureCount = 0
	}
	slog.Info("circuit breaker state transition",
		"from", from.String(), "to", to.String(),
		"failures", cb.failureCount, "openTimeout", cb.openTimeout)
}

// ErrorType classifies a failed request for retry decisions.
type ErrorType int

const (
	ErrorUnknown ErrorType = iota
	ErrorTransient
	ErrorQuota
	ErrorInvalid
	ErrorAuth
)

func (e ErrorType) String() string {
	switch e {
	case ErrorTransient:
		return "transient"
	case ErrorQuota:
		return "quota"
	case ErrorInvalid:
		return "invalid"
	case ErrorAuth:
		return "auth"
	default:
		return "unknown"
	}
}

const defaultQuotaWait = time.Hour

var retryAfterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)try again in (\d+) (second|minute|hour)s?`),
	regexp.MustCompile(`(?i)wait (\d+) (second|minute|hour)s?`),
	regexp.MustCompile(`(?i)retry[_-]after"?\s*[:=]\s*(\d+)`),
}

// classifyError maps an error to an ErrorType plus, for quota errors, how
// long the server asked us to wait. SDK errors are classified by status
// code; anything else by message.
func classifyError(err error) (ErrorType, time.Duration) {
	if err == nil {
		return ErrorUnknown, 0
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ErrorQuota, parseRetryAfter(apiErr)
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return ErrorAuth, 0
		case apiErr.StatusCode >= 500:
			return ErrorTransient, 0
		case apiErr.StatusCode >= 400:
			return ErrorInvalid, 0
		}
		return ErrorUnknown, 0
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTransient, 0
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"):
		wait := parseRetryAfterFromMessage(msg)
		if wait == 0 {
			wait = defaultQuotaWait
		}
		return ErrorQuota, wait
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden"):
		return ErrorAuth, 0
	case strings.Contains(msg, "400") || strings.Contains(msg, "404") || strings.Contains(msg, "bad request"):
		return ErrorInvalid, 0
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504") ||
		strings.Contains(msg, "internal server error") || strings.Contains(msg, "bad gateway") ||
		strings.Contains(msg, "service unavailable") || strings.Contains(msg, "gateway timeout") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "network"):
		return ErrorTransient, 0
	}
	return ErrorUnknown, 0
}

// parseRetryAfter reads Retry-After (seconds) or X-RateLimit-Reset (unix
// seconds) from an SDK error's response, defaulting to an hour.
func parseRetryAfter(apiErr *anthropic.Error) time.Duration {
	if apiErr.Response != nil {
		if v := apiErr.Response.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
		if v := apiErr.Response.Header.Get("X-RateLimit-Reset"); v != "" {
			if ts, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				if wait := time.Until(time.Unix(ts, 0)); wait > 0 {
					return wait
				}
			}
		}
	}
	return defaultQuotaWait
}

// parseRetryAfterFromMessage extracts "try again in 12 minutes",
// "wait 30 seconds" or "retry_after: 600" from an error message.
func parseRetryAfterFromMessage(msg string) time.Duration {
	for _, re := range retryAfterPatterns {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		unit := time.Second
		if len(m) > 2 {
			switch strings.ToLower(m[2]) {
			case "minute":
				unit = time.Minute
			case "hour":
				unit = time.Hour
			}
		}
		return time.Duration(n) * unit
	}
	return 0
}

// isRetriableError reports whether another attempt could succeed. Unknown
// errors are retried.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	switch t, _ := classifyError(err); t {
	case ErrorAuth, ErrorInvalid:
		return false
	default:
		return true
	}
}

// retrier runs operations with backoff, a concurrency limit and an
// optional circuit breaker.
type retrier struct {
	cfg            RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	logger         *slog.Logger
}

func newRetrier(cfg RetryConfig, logger *slog.Logger) *retrier {
	r := &retrier{cfg: cfg, logger: logger}
	if cfg.CircuitBreakerEnabled {
		r.circuitBreaker = NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.OpenTimeout)
	}
	if cfg.MaxConcurrentCalls > 0 {
		r.concurrencySem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}
	return r
}

// do executes fn with retry and exponential backoff. Quota errors stretch
// the next backoff to the server's hint, capped at MaxBackoff.
func (r *retrier) do(ctx context.Context, operation string, fn func(context.Context) error) error {
	if r.concurrencySem != nil {
		if err := r.concurrencySem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("failed to acquire concurrency slot for %s: %w", operation, err)
		}
		defer r.concurrencySem.Release(1)
	}

	var lastErr error
	backoff := r.cfg.InitialBackoff

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if r.circuitBreaker != nil {
			if err := r.circuitBreaker.Allow(); err != nil {
				state, failures, _ := r.circuitBreaker.GetMetrics()
				r.logger.Warn("vision request blocked by circuit breaker",
					"operation", operation, "state", state.String(), "failures", failures)
				return fmt.Errorf("%s failed: %w", operation, err)
			}
		}

		attemptCtx := ctx
		cancel := func() {}
		if r.cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		}
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			if r.circuitBreaker != nil {
				r.circuitBreaker.RecordSuccess()
			}
			if attempt > 0 {
				r.logger.Info("vision request succeeded after retries", "operation", operation, "retries", attempt)
			}
			return nil
		}
		lastErr = err

		errType, wait := classifyError(err)
		if errType == ErrorAuth || errType == ErrorInvalid {
			return fmt.Errorf("%s failed (%s): %w", operation, errType, err)
		}
		if r.circuitBreaker != nil {
			r.circuitBreaker.RecordFailure()
		}
		if attempt == r.cfg.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s failed: context canceled: %w", operation, ctx.Err())
		}

		delay := backoff
		if errType == ErrorQuota && wait > delay {
			delay = min(wait, r.cfg.MaxBackoff)
		}
		r.logger.Warn("vision request failed, retrying",
			"operation", operation,
			"attempt", attempt+1,
			"maxAttempts", r.cfg.MaxRetries+1,
			"errorType", errType.String(),
			"delay", delay)

		select {
		case <-time.After(delay):
			backoff = min(time.Duration(float64(backoff)*r.cfg.BackoffMultiplier), r.cfg.MaxBackoff)
		case <-ctx.Done():
			return fmt.Errorf("%s failed: context canceled during backoff: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, r.cfg.MaxRetries+1, lastErr)
}
