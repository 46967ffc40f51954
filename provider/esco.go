package provider

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/skillatlas/taxonomy-service/types"
	"github.com/skillatlas/taxonomy-service/utils"
)

const defaultSearchLimit = 20

// negativeDetailTTL caches unknown-concept lookups briefly so repeated
// misses do not re-spend rate-limit capacity on the same dead URI.
const negativeDetailTTL = 5 * time.Minute

// ESCOProvider adapts the ESCO-shaped taxonomy API: a /search endpoint over
// typed resources and a /resource detail endpoint keyed by URI. No
// authentication; concept URIs are the provider-scoped identity.
type ESCOProvider struct {
	logger  types.Logger
	caller  types.HTTPCaller
	limiter types.RateLimiter
	breaker types.Breaker
	cache   types.KeyValueStore
	config  *types.ProviderConfig
}

func NewESCOProvider(logger types.Logger, caller types.HTTPCaller, limiter types.RateLimiter, breaker types.Breaker, cache types.KeyValueStore, config *types.ProviderConfig) *ESCOProvider {
	return &ESCOProvider{
		logger:  logger,
		caller:  caller,
		limiter: limiter,
		breaker: breaker,
		cache:   cache,
		config:  config,
	}
}

func (p *ESCOProvider) Name() types.TaxonomyProviderName {
	return types.ProviderESCO
}

type escoSearchResponse struct {
	Embedded struct {
		Results []escoResource `json:"results"`
	} `json:"_embedded"`
	Total int `json:"total"`
}

type escoResource struct {
	ClassName        string                     `json:"className"`
	URI              string                     `json:"uri"`
	Title            string                     `json:"title"`
	PreferredLabel   map[string]string          `json:"preferredLabel"`
	AlternativeLabel map[string][]string        `json:"alternativeLabel"`
	Description      map[string]escoDescription `json:"description"`
	Links            escoLinks                  `json:"_links"`
}

type escoDescription struct {
	Literal string `json:"literal"`
}

type escoLinks struct {
	BroaderSkill     []escoLink `json:"broaderSkill"`
	NarrowerSkill    []escoLink `json:"narrowerSkill"`
	BroaderHierarchy []escoLink `json:"broaderHierarchyConcept"`
	EssentialSkills  []escoLink `json:"hasEssentialSkill"`
	OptionalSkills   []escoLink `json:"hasOptionalSkill"`
}

type escoLink struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

func (p *ESCOProvider) SearchSkills(ctx context.Context, query string, opts *types.SearchOptions) ([]types.SkillMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	key := cacheKey(types.ProviderESCO, "skill-search", query, opts)
	if matches, ok := cachedAs[[]types.SkillMatch](p.cache, key); ok {
		return matches, nil
	}

	if err := p.limiter.Check(ctx); err != nil {
		return nil, err
	}

	limit := defaultSearchLimit
	if opts != nil && opts.Limit > 0 {
		limit = opts.Limit
	}

	var resp escoSearchResponse
	err := p.breaker.Execute(func() error {
		return p.search(query, "skill", limit, opts, &resp)
	})
	if err != nil {
		return nil, err
	}

	matches := make([]types.SkillMatch, 0, len(resp.Embedded.Results))
	for _, res := range resp.Embedded.Results {
		matches = append(matches, p.normalizeSkill(query, res))
	}

	sortByRelevance(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}

	if err := p.cache.Set(key, matches, p.config.SearchTTL); err != nil {
		p.logger.Warn("Failed to cache skill search results", zap.Error(err))
	}

	return matches, nil
}

func (p *ESCOProvider) SearchOccupations(ctx context.Context, terms []string, opts *types.SearchOptions) ([]types.OccupationMatch, error) {
	var all []types.OccupationMatch

	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}

		matches, err := p.searchOccupationsForTerm(ctx, term, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, matches...)
	}

	sortOccupationsByRelevance(all)
	return all, nil
}

func (p *ESCOProvider) searchOccupationsForTerm(ctx context.Context, term string, opts *types.SearchOptions) ([]types.OccupationMatch, error) {
	key := cacheKey(types.ProviderESCO, "occupation-search", term, opts)
	if matches, ok := cachedAs[[]types.OccupationMatch](p.cache, key); ok {
		return matches, nil
	}

	if err := p.limiter.Check(ctx); err != nil {
		return nil, err
	}

	limit := defaultSearchLimit
	if opts != nil && opts.Limit > 0 {
		limit = opts.Limit
	}

	var resp escoSearchResponse
	err := p.breaker.Execute(func() error {
		return p.search(term, "occupation", limit, opts, &resp)
	})
	if err != nil {
		return nil, err
	}

	matches := make([]types.OccupationMatch, 0, len(resp.Embedded.Results))
	for _, res := range resp.Embedded.Results {
		matches = append(matches, p.normalizeOccupation(term, res))
	}

	if err := p.cache.Set(key, matches, p.config.SearchTTL); err != nil {
		p.logger.Warn("Failed to cache occupation search results", zap.Error(err))
	}

	return matches, nil
}

// GetSkill fetches one concept record by URI. Taxonomy entities change
// rarely, so details are cached for much longer than search results.
func (p *ESCOProvider) GetSkill(ctx context.Context, id string) (*types.SkillMatch, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}

	key := cacheKey(types.ProviderESCO, "skill-detail", id, nil)
	if match, ok := cachedAs[*types.SkillMatch](p.cache, key); ok {
		return match, nil
	}

	if err := p.limiter.Check(ctx); err != nil {
		return nil, err
	}

	var res escoResource
	found := true
	err := p.breaker.Execute(func() error {
		body, status, err := p.caller.Call(fasthttp.MethodGet, "/resource/skill", map[string]string{
			"uri":      id,
			"language": p.language(nil),
		}, nil)
		if err != nil {
			return err
		}
		if status == fasthttp.StatusNotFound {
			found = false
			return nil
		}
		if status != fasthttp.StatusOK {
			return types.Errorf(types.ErrProviderBadStatus, "HTTP %d from esco resource", status)
		}
		return utils.Unmarshal(body, &res)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		if err := p.cache.Set(key, (*types.SkillMatch)(nil), negativeDetailTTL); err != nil {
			p.logger.Warn("Failed to cache missing skill detail", zap.Error(err))
		}
		return nil, nil
	}

	match := p.normalizeSkill(res.Title, res)
	match.RelevanceScore = scoreExact

	if err := p.cache.Set(key, &match, p.config.DetailTTL); err != nil {
		p.logger.Warn("Failed to cache skill detail", zap.Error(err))
	}

	return &match, nil
}

// Ping checks provider connectivity without consuming rate-limit capacity.
func (p *ESCOProvider) Ping(ctx context.Context) error {
	_, status, err := p.caller.Call(fasthttp.MethodGet, "/search", map[string]string{
		"text":     "skill",
		"language": p.language(nil),
		"limit":    "1",
	}, nil)
	if err != nil {
		return err
	}
	if status != fasthttp.StatusOK {
		return types.Errorf(types.ErrProviderBadStatus, "HTTP %d", status)
	}
	return nil
}

func (p *ESCOProvider) search(text, resourceType string, limit int, opts *types.SearchOptions, out *escoSearchResponse) error {
	body, status, err := p.caller.Call(fasthttp.MethodGet, "/search", map[string]string{
		"text":     text,
		"type":     resourceType,
		"language": p.language(opts),
		"limit":    strconv.Itoa(limit),
		"full":     "true",
	}, nil)
	if err != nil {
		return err
	}
	if status != fasthttp.StatusOK {
		return types.Errorf(types.ErrProviderBadStatus, "HTTP %d from esco search", status)
	}
	return utils.Unmarshal(body, out)
}

func (p *ESCOProvider) normalizeSkill(query string, res escoResource) types.SkillMatch {
	lang := p.language(nil)
	label := res.PreferredLabel[lang]
	if label == "" {
		label = res.Title
	}

	match := types.SkillMatch{
		ID:                res.URI,
		URI:               res.URI,
		PreferredLabel:    label,
		AlternativeLabels: res.AlternativeLabel[lang],
		SkillType:         res.ClassName,
		Provider:          types.ProviderESCO,
		RelevanceScore:    labelRelevance(query, label),
		Metadata:          map[string]string{"class_name": res.ClassName},
	}

	if desc, ok := res.Description[lang]; ok {
		match.Description = desc.Literal
	}

	for _, link := range res.Links.BroaderSkill {
		match.BroaderConcepts = append(match.BroaderConcepts, link.URI)
	}
	for _, link := range res.Links.BroaderHierarchy {
		match.BroaderConcepts = append(match.BroaderConcepts, link.URI)
	}
	for _, link := range res.Links.NarrowerSkill {
		match.NarrowerConcepts = append(match.NarrowerConcepts, link.URI)
	}

	return match
}

func (p *ESCOProvider) normalizeOccupation(term string, res escoResource) types.OccupationMatch {
	lang := p.language(nil)
	title := res.PreferredLabel[lang]
	if title == "" {
		title = res.Title
	}

	match := types.OccupationMatch{
		ID:             res.URI,
		URI:            res.URI,
		Title:          title,
		Provider:       types.ProviderESCO,
		MatchedSkills:  []string{term},
		RelevanceScore: labelRelevance(term, title),
		Metadata:       map[string]string{"class_name": res.ClassName},
	}

	if desc, ok := res.Description[lang]; ok {
		match.Description = desc.Literal
	}

	for _, link := range res.Links.EssentialSkills {
		match.RequiredSkills = append(match.RequiredSkills, link.Title)
	}
	for _, link := range res.Links.OptionalSkills {
		match.OptionalSkills = append(match.OptionalSkills, link.Title)
	}

	return match
}

func (p *ESCOProvider) language(opts *types.SearchOptions) string {
	if opts != nil && opts.Language != "" {
		return opts.Language
	}
	if p.config.Language != "" {
		return p.config.Language
	}
	return "en"
}
