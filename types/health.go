package types

import (
	"time"
)

type HealthManager interface {
	LifecycleManager
	Status() map[string]ProviderHealth
}

// ProviderHealth records the outcome of the most recent connectivity check.
// Providers are optional, degradable dependencies: an unreachable provider is
// a warning, never a startup failure.
type ProviderHealth struct {
	Provider  TaxonomyProviderName `json:"provider"`
	Reachable bool                 `json:"reachable"`
	CheckedAt time.Time            `json:"checked_at"`
	Error     string               `json:"error,omitempty"`
}
