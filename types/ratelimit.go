package types

import (
	"context"
	"time"
)

// RateLimiter admits or rejects requests against one logical limit. Check
// returns nil when the request is admitted and a *RateLimitError otherwise.
// Status mirrors the check logic without consuming capacity.
type RateLimiter interface {
	Check(ctx context.Context) error
	Status(ctx context.Context) (*RateLimitStatus, error)
	Reset(ctx context.Context) error
}

type RateLimitStatus struct {
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetTime  time.Time     `json:"reset_time"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}
