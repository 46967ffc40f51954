package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrCacheKeyEmpty         = errors.New("cache key empty")
	ErrCacheTypeUnknown      = errors.New("cache type unknown")
	ErrCacheConnectionFailed = errors.New("cache connection failed")
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrBreakerOpen       = errors.New("circuit breaker open")
)

var (
	ErrEmptyQuery           = errors.New("empty query")
	ErrNoProvidersRequested = errors.New("no providers requested")
	ErrProviderNotFound     = errors.New("provider not found")
	ErrProviderUnavailable  = errors.New("provider unavailable")
	ErrProviderBadStatus    = errors.New("provider returned bad status")
)

var (
	ErrServiceAlreadyRunning = errors.New("service already running")
	ErrServiceNotRunning     = errors.New("service not running")
)

// RateLimitError is returned when a limiter rejects a request. It always
// carries RetryAfter so callers can back off without guessing.
type RateLimitError struct {
	Key        string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q: %d requests per %s, retry after %s",
		e.Key, e.Limit, e.Window, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// RetryAfterSeconds rounds up to whole seconds, matching the Retry-After
// header convention.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
