// Package enrichment implements the orchestrator that fans skill terms out to
// the taxonomy providers and reconciles their answers. Provider failures for
// one term degrade that term's result; they never abort sibling work.
package enrichment

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skillatlas/taxonomy-service/types"
)

const (
	defaultBatchSize       = 10
	defaultSkillLimit      = 20
	defaultOccupationLimit = 10

	validThreshold      = 0.7
	suggestionThreshold = 0.5
	highConfidence      = 0.8
	confidenceBoost     = 0.2
)

type Service struct {
	logger    types.Logger
	metrics   types.MetricsManager
	providers map[types.TaxonomyProviderName]types.TaxonomyProvider
	config    *types.EnrichmentConfig
}

func NewService(logger types.Logger, metrics types.MetricsManager, providers []types.TaxonomyProvider, config *types.EnrichmentConfig) *Service {
	if config == nil {
		config = &types.EnrichmentConfig{}
	}

	registry := make(map[types.TaxonomyProviderName]types.TaxonomyProvider, len(providers))
	for _, p := range providers {
		registry[p.Name()] = p
	}

	return &Service{
		logger:    logger,
		metrics:   metrics,
		providers: registry,
		config:    config,
	}
}

// EnrichSkills processes terms in fixed-size batches to bound peak
// concurrency. Batches run in input order; terms within a batch run
// concurrently with no ordering guarantee — the OriginalSkill field ties each
// result back to its term.
func (s *Service) EnrichSkills(ctx context.Context, terms []string, opts *types.SearchOptions) ([]types.SkillEnrichmentResult, error) {
	providers, err := s.requestedProviders(opts)
	if err != nil {
		return nil, err
	}

	callID := uuid.NewString()
	s.logger.Info("Enriching skills",
		zap.String("call_id", callID),
		zap.Int("terms", len(terms)),
		zap.Int("providers", len(providers)))

	batchSize := s.config.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	results := make([]types.SkillEnrichmentResult, len(terms))

	for start := 0; start < len(terms); start += batchSize {
		end := start + batchSize
		if end > len(terms) {
			end = len(terms)
		}

		g, gCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			idx := i
			g.Go(func() error {
				results[idx] = s.enrichTerm(gCtx, callID, terms[idx], providers, opts)
				return nil
			})
		}
		// Workers never return errors; per-provider failures degrade the
		// single term instead.
		_ = g.Wait()
	}

	s.recordOperation("enrich_skills", len(terms))

	return results, nil
}

func (s *Service) enrichTerm(ctx context.Context, callID, term string, providers []types.TaxonomyProvider, opts *types.SearchOptions) types.SkillEnrichmentResult {
	result := types.SkillEnrichmentResult{OriginalSkill: term}

	var matches []types.SkillMatch
	topPerProvider := make(map[types.TaxonomyProviderName]types.SkillMatch)

	for _, p := range providers {
		found, err := p.SearchSkills(ctx, term, opts)
		if err != nil {
			s.logger.Warn("Provider skill search failed",
				zap.String("call_id", callID),
				zap.String("term", term),
				zap.String("provider", string(p.Name())),
				zap.Error(err))
			continue
		}
		matches = append(matches, found...)
	}

	matches = DedupSkillMatches(matches)
	matches = s.filterByMinRelevance(matches, opts)
	sortMatches(matches)
	result.Matches = matches

	for _, match := range matches {
		if _, seen := topPerProvider[match.Provider]; !seen {
			topPerProvider[match.Provider] = match
		}

		if match.SkillType != "" {
			result.Categories = appendUnique(result.Categories, match.SkillType)
		}
		for _, concept := range match.BroaderConcepts {
			result.BroaderConcepts = appendUnique(result.BroaderConcepts, concept)
		}
		for _, concept := range match.NarrowerConcepts {
			result.NarrowerConcepts = appendUnique(result.NarrowerConcepts, concept)
		}
	}

	// One hop of related skills, from the top match per provider only.
	for name, top := range topPerProvider {
		detail, err := s.providers[name].GetSkill(ctx, top.ID)
		if err != nil {
			s.logger.Debug("Related skills lookup failed",
				zap.String("call_id", callID),
				zap.String("provider", string(name)),
				zap.Error(err))
			continue
		}
		if detail == nil {
			continue
		}
		for _, concept := range detail.RelatedConcepts {
			result.RelatedSkills = appendUnique(result.RelatedSkills, concept)
		}
		for _, label := range detail.AlternativeLabels {
			result.RelatedSkills = appendUnique(result.RelatedSkills, label)
		}
		for _, concept := range detail.BroaderConcepts {
			result.BroaderConcepts = appendUnique(result.BroaderConcepts, concept)
		}
		for _, concept := range detail.NarrowerConcepts {
			result.NarrowerConcepts = appendUnique(result.NarrowerConcepts, concept)
		}
	}

	// Candidate occupations come from re-querying occupation search with the
	// original term.
	for _, p := range providers {
		occupations, err := p.SearchOccupations(ctx, []string{term}, opts)
		if err != nil {
			s.logger.Debug("Occupation derivation failed",
				zap.String("call_id", callID),
				zap.String("provider", string(p.Name())),
				zap.Error(err))
			continue
		}
		for _, occ := range occupations {
			result.Occupations = appendUnique(result.Occupations, occ.Title)
		}
	}

	return result
}

// SearchSkills returns the deduplicated union of all requested providers'
// matches, sorted by relevance, truncated to the limit.
func (s *Service) SearchSkills(ctx context.Context, query string, opts *types.SearchOptions) ([]types.SkillMatch, error) {
	providers, err := s.requestedProviders(opts)
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	var matches []types.SkillMatch
	for _, p := range providers {
		found, err := p.SearchSkills(ctx, query, opts)
		if err != nil {
			s.logger.Warn("Provider skill search failed",
				zap.String("query", query),
				zap.String("provider", string(p.Name())),
				zap.Error(err))
			continue
		}
		matches = append(matches, found...)
	}

	matches = DedupSkillMatches(matches)
	matches = s.filterByMinRelevance(matches, opts)
	sortMatches(matches)

	limit := s.skillLimit(opts)
	if len(matches) > limit {
		matches = matches[:limit]
	}

	s.recordOperation("search_skills", len(matches))

	return matches, nil
}

// SearchOccupations merges per-provider occupation matches across providers:
// titles are normalized (lowercase, non-alphanumerics stripped) and grouped;
// each group keeps its highest-scoring entry as representative but unions
// matched skills from every member and records the contributing providers.
func (s *Service) SearchOccupations(ctx context.Context, terms []string, opts *types.SearchOptions) ([]types.OccupationMatch, error) {
	providers, err := s.requestedProviders(opts)
	if err != nil {
		return nil, err
	}

	var all []types.OccupationMatch
	for _, p := range providers {
		found, err := p.SearchOccupations(ctx, terms, opts)
		if err != nil {
			s.logger.Warn("Provider occupation search failed",
				zap.String("provider", string(p.Name())),
				zap.Error(err))
			continue
		}
		all = append(all, found...)
	}

	merged := MergeOccupations(all)

	limit := s.occupationLimit(opts)
	if len(merged) > limit {
		merged = merged[:limit]
	}

	s.recordOperation("search_occupations", len(merged))

	return merged, nil
}

// MapSkillsAcrossTaxonomies approximates cross-taxonomy bridging without a
// shared identifier space: each term's best match in the source provider is
// re-searched in the target provider under its preferred and every
// alternative label.
func (s *Service) MapSkillsAcrossTaxonomies(ctx context.Context, terms []string, from, to types.TaxonomyProviderName) (map[string][]types.SkillMatch, error) {
	source, ok := s.providers[from]
	if !ok {
		return nil, types.Errorf(types.ErrProviderNotFound, "source provider: %s", from)
	}
	target, ok := s.providers[to]
	if !ok {
		return nil, types.Errorf(types.ErrProviderNotFound, "target provider: %s", to)
	}

	mapping := make(map[string][]types.SkillMatch, len(terms))

	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}

		mapping[term] = nil

		sourceMatches, err := source.SearchSkills(ctx, term, &types.SearchOptions{Limit: 1})
		if err != nil {
			s.logger.Warn("Cross-taxonomy source lookup failed",
				zap.String("term", term), zap.Error(err))
			continue
		}
		if len(sourceMatches) == 0 {
			continue
		}

		best := sourceMatches[0]
		labels := append([]string{best.PreferredLabel}, best.AlternativeLabels...)

		var mapped []types.SkillMatch
		for _, label := range labels {
			found, err := target.SearchSkills(ctx, label, nil)
			if err != nil {
				s.logger.Debug("Cross-taxonomy target lookup failed",
					zap.String("label", label), zap.Error(err))
				continue
			}
			mapped = append(mapped, found...)
		}

		mapped = DedupSkillMatches(mapped)
		sortMatches(mapped)
		mapping[term] = mapped
	}

	s.recordOperation("map_skills", len(mapping))

	return mapping, nil
}

// ValidateSkill checks whether a free-text term resolves to a known taxonomy
// concept. Suggestions are the labels of plausible matches that differ from
// the input.
func (s *Service) ValidateSkill(ctx context.Context, term string, opts *types.SearchOptions) (*types.ValidationResult, error) {
	searchOpts := &types.SearchOptions{Limit: 5}
	if opts != nil {
		searchOpts.Language = opts.Language
		searchOpts.Providers = opts.Providers
	}

	matches, err := s.SearchSkills(ctx, term, searchOpts)
	if err != nil {
		return nil, err
	}

	result := &types.ValidationResult{Matches: matches}

	var topScore float64
	if len(matches) > 0 {
		topScore = matches[0].RelevanceScore
	}

	if topScore > highConfidence {
		result.Confidence = clampScore(topScore + confidenceBoost)
	} else {
		result.Confidence = topScore
	}

	lowered := strings.ToLower(strings.TrimSpace(term))
	for _, match := range matches {
		if match.RelevanceScore > validThreshold {
			result.IsValid = true
		}
		if match.RelevanceScore > suggestionThreshold &&
			strings.ToLower(match.PreferredLabel) != lowered {
			result.Suggestions = appendUnique(result.Suggestions, match.PreferredLabel)
		}
	}

	return result, nil
}

// DedupSkillMatches removes duplicates keyed by (provider, lowercased
// preferred label), keeping the higher-scoring entry on collision. Identity
// is provider-scoped; raw IDs are never compared across providers.
func DedupSkillMatches(matches []types.SkillMatch) []types.SkillMatch {
	if len(matches) == 0 {
		return matches
	}

	type dedupKey struct {
		provider types.TaxonomyProviderName
		label    string
	}

	index := make(map[dedupKey]int, len(matches))
	out := make([]types.SkillMatch, 0, len(matches))

	for _, match := range matches {
		key := dedupKey{match.Provider, strings.ToLower(match.PreferredLabel)}
		if at, dup := index[key]; dup {
			if match.RelevanceScore > out[at].RelevanceScore {
				out[at] = match
			}
			continue
		}
		index[key] = len(out)
		out = append(out, match)
	}

	return out
}

// MergeOccupations reconciles occupation matches across providers by
// normalized title. There is no canonical shared ID between providers, so
// grouping by label is a known, permanent approximation.
func MergeOccupations(matches []types.OccupationMatch) []types.OccupationMatch {
	groups := make(map[string]int)
	var merged []types.OccupationMatch

	for _, match := range matches {
		key := normalizeTitle(match.Title)
		if key == "" {
			continue
		}

		at, exists := groups[key]
		if !exists {
			rep := match
			rep.MatchedSkills = appendUniqueAll(nil, match.MatchedSkills)
			rep.Metadata = copyMetadata(match.Metadata)
			rep.Metadata["providers"] = string(match.Provider)
			groups[key] = len(merged)
			merged = append(merged, rep)
			continue
		}

		rep := &merged[at]
		rep.MatchedSkills = appendUniqueAll(rep.MatchedSkills, match.MatchedSkills)
		rep.Metadata["providers"] = joinProviders(rep.Metadata["providers"], string(match.Provider))

		if match.RelevanceScore > rep.RelevanceScore {
			skills := rep.MatchedSkills
			providers := rep.Metadata["providers"]
			promoted := match
			promoted.MatchedSkills = skills
			promoted.Metadata = copyMetadata(match.Metadata)
			promoted.Metadata["providers"] = providers
			merged[at] = promoted
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].RelevanceScore > merged[j].RelevanceScore
	})

	return merged
}

func (s *Service) requestedProviders(opts *types.SearchOptions) ([]types.TaxonomyProvider, error) {
	if opts == nil || len(opts.Providers) == 0 {
		if len(s.providers) == 0 {
			return nil, types.ErrNoProvidersRequested
		}
		all := make([]types.TaxonomyProvider, 0, len(s.providers))
		for _, name := range []types.TaxonomyProviderName{types.ProviderESCO, types.ProviderONET} {
			if p, ok := s.providers[name]; ok {
				all = append(all, p)
			}
		}
		// Providers registered under other names still participate.
		for name, p := range s.providers {
			if name != types.ProviderESCO && name != types.ProviderONET {
				all = append(all, p)
			}
		}
		return all, nil
	}

	requested := make([]types.TaxonomyProvider, 0, len(opts.Providers))
	for _, name := range opts.Providers {
		if p, ok := s.providers[name]; ok {
			requested = append(requested, p)
		}
	}
	if len(requested) == 0 {
		return nil, types.Errorf(types.ErrNoProvidersRequested, "requested: %v", opts.Providers)
	}
	return requested, nil
}

func (s *Service) filterByMinRelevance(matches []types.SkillMatch, opts *types.SearchOptions) []types.SkillMatch {
	minRelevance := s.config.MinRelevance
	if opts != nil && opts.MinRelevance > 0 {
		minRelevance = opts.MinRelevance
	}
	if minRelevance <= 0 {
		return matches
	}

	filtered := matches[:0]
	for _, match := range matches {
		if match.RelevanceScore >= minRelevance {
			filtered = append(filtered, match)
		}
	}
	return filtered
}

func (s *Service) skillLimit(opts *types.SearchOptions) int {
	if opts != nil && opts.Limit > 0 {
		return opts.Limit
	}
	if s.config.DefaultSkillLimit > 0 {
		return s.config.DefaultSkillLimit
	}
	return defaultSkillLimit
}

func (s *Service) occupationLimit(opts *types.SearchOptions) int {
	if opts != nil && opts.Limit > 0 {
		return opts.Limit
	}
	if s.config.DefaultOccupationLimit > 0 {
		return s.config.DefaultOccupationLimit
	}
	return defaultOccupationLimit
}

func (s *Service) recordOperation(operation string, resultCount int) {
	if s.metrics == nil {
		return
	}
	s.metrics.Counter("enrichment_operations_total", map[string]string{
		"operation": operation,
	}).Inc()
	s.metrics.Histogram("enrichment_result_count",
		[]float64{0, 1, 5, 10, 25, 50, 100},
		map[string]string{"operation": operation},
	).Observe(float64(resultCount))
}

func sortMatches(matches []types.SkillMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].RelevanceScore > matches[j].RelevanceScore
	})
}

// normalizeTitle lowercases and strips everything that is not a letter or a
// digit, so "Software Engineer" and "software engineer " group together.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func appendUnique(list []string, value string) []string {
	if value == "" {
		return list
	}
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}

func appendUniqueAll(list []string, values []string) []string {
	for _, value := range values {
		list = appendUnique(list, value)
	}
	return list
}

func copyMetadata(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

func joinProviders(existing, provider string) string {
	for _, p := range strings.Split(existing, ",") {
		if p == provider {
			return existing
		}
	}
	if existing == "" {
		return provider
	}
	return existing + "," + provider
}

func clampScore(score float64) float64 {
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}
