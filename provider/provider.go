// Package provider contains the adapters that translate normalized taxonomy
// queries into provider-specific calls. Every outbound operation follows the
// same envelope, in order: reject empty queries locally, acquire admission
// from the provider's rate limiter, execute the network call through the
// provider's circuit breaker, normalize the native response, cache the
// normalized result.
package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/skillatlas/taxonomy-service/types"
	"github.com/skillatlas/taxonomy-service/utils"
)

// Relevance heuristic shared by both adapters: an exact label match dominates
// a substring match, which dominates the fallback constant.
const (
	scoreExact     = 1.0
	scoreSubstring = 0.7
	scoreFallback  = 0.5
)

func labelRelevance(query, label string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	l := strings.ToLower(strings.TrimSpace(label))

	switch {
	case q == l:
		return scoreExact
	case strings.Contains(l, q) || strings.Contains(q, l):
		return scoreSubstring
	default:
		return scoreFallback
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// cacheKey derives a stable key from (provider, operation, query, options).
func cacheKey(provider types.TaxonomyProviderName, operation, query string, opts *types.SearchOptions) string {
	language := ""
	limit := 0
	if opts != nil {
		language = opts.Language
		limit = opts.Limit
	}
	return fmt.Sprintf("provider:%s:%s:%s:%s:%d", provider, operation, strings.ToLower(query), language, limit)
}

func sortByRelevance(matches []types.SkillMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].RelevanceScore > matches[j].RelevanceScore
	})
}

func sortOccupationsByRelevance(matches []types.OccupationMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].RelevanceScore > matches[j].RelevanceScore
	})
}

// cachedAs recovers a typed value from the store. The in-memory store hands
// the stored slice back unchanged; the Redis store hands back generically
// decoded JSON, which is re-coded into the target type.
func cachedAs[T any](store types.KeyValueStore, key string) (T, bool) {
	var zero T

	raw, found := store.Get(key)
	if !found {
		return zero, false
	}

	if typed, ok := raw.(T); ok {
		return typed, true
	}

	data, err := utils.Marshal(raw)
	if err != nil {
		return zero, false
	}

	var target T
	if err := utils.Unmarshal(data, &target); err != nil {
		return zero, false
	}
	return target, true
}
