package types

// Breaker decorates an unreliable call. Execute runs fn when the breaker
// admits traffic and records the outcome; it fails fast with ErrBreakerOpen
// when the breaker is tripped.
type Breaker interface {
	Execute(fn func() error) error
	State() string
	Reset()
}

// BreakerRegistry hands out one breaker per upstream name. The enrichment
// core only consumes breakers; it owns no breaker state.
type BreakerRegistry interface {
	GetBreaker(name string) Breaker
}
