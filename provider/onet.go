package provider

import (
	"context"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/skillatlas/taxonomy-service/types"
	"github.com/skillatlas/taxonomy-service/utils"
)

// maxOccupationExpansion bounds the secondary per-occupation fetches of a
// single skill search; the keyword search can return far more occupations
// than are worth expanding.
const maxOccupationExpansion = 5

const defaultImportanceDivisor = 100

// ONETProvider adapts the O*NET-shaped taxonomy API. It authenticates with
// basic auth (credentials supplied out of band, never logged) and has no
// direct skill search: skills are reached through occupations, so a skill
// query is a two-hop operation — keyword occupation search, then a
// per-occupation skills report whose elements are filtered to labels
// containing the query substring before scoring. Callers must not assume the
// raw occupation search response contains skills.
type ONETProvider struct {
	logger  types.Logger
	caller  types.HTTPCaller
	limiter types.RateLimiter
	breaker types.Breaker
	cache   types.KeyValueStore
	config  *types.ProviderConfig
}

func NewONETProvider(logger types.Logger, caller types.HTTPCaller, limiter types.RateLimiter, breaker types.Breaker, cache types.KeyValueStore, config *types.ProviderConfig) *ONETProvider {
	return &ONETProvider{
		logger:  logger,
		caller:  caller,
		limiter: limiter,
		breaker: breaker,
		cache:   cache,
		config:  config,
	}
}

func (p *ONETProvider) Name() types.TaxonomyProviderName {
	return types.ProviderONET
}

type onetSearchResponse struct {
	Occupation []onetOccupation `json:"occupation"`
	Total      int              `json:"total"`
}

type onetOccupation struct {
	Code           string  `json:"code"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	RelevanceScore float64 `json:"relevance_score"`
}

type onetSkillsReport struct {
	Element []onetElement `json:"element"`
}

type onetElement struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Score       onetScore `json:"score"`
}

type onetScore struct {
	Important bool    `json:"important"`
	Value     float64 `json:"value"`
}

func (p *ONETProvider) SearchSkills(ctx context.Context, query string, opts *types.SearchOptions) ([]types.SkillMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	key := cacheKey(types.ProviderONET, "skill-search", query, opts)
	if matches, ok := cachedAs[[]types.SkillMatch](p.cache, key); ok {
		return matches, nil
	}

	limit := defaultSearchLimit
	if opts != nil && opts.Limit > 0 {
		limit = opts.Limit
	}

	occupations, err := p.keywordSearch(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if len(occupations) > maxOccupationExpansion {
		occupations = occupations[:maxOccupationExpansion]
	}

	lowered := strings.ToLower(query)
	seen := make(map[string]int)
	var matches []types.SkillMatch

	for _, occ := range occupations {
		report, err := p.fetchSkillsReport(ctx, occ.Code)
		if err != nil {
			p.logger.Warn("Skipping occupation skills expansion",
				zap.String("code", occ.Code), zap.Error(err))
			continue
		}

		for _, element := range report.Element {
			if !strings.Contains(strings.ToLower(element.Name), lowered) {
				continue
			}

			match := p.normalizeSkillElement(query, occ.Code, element)
			if idx, dup := seen[element.ID]; dup {
				if match.RelevanceScore > matches[idx].RelevanceScore {
					matches[idx] = match
				}
				continue
			}
			seen[element.ID] = len(matches)
			matches = append(matches, match)
		}
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

func (p *ONETProvider) SearchOccupations(ctx context.Context, terms []string, opts *types.SearchOptions) ([]types.OccupationMatch, error) {
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

func (p *ONETProvider) searchOccupationsForTerm(ctx context.Context, term string, opts *types.SearchOptions) ([]types.OccupationMatch, error) {
	key := cacheKey(types.ProviderONET, "occupation-search", term, opts)
	if matches, ok := cachedAs[[]types.OccupationMatch](p.cache, key); ok {
		return matches, nil
	}

	limit := defaultSearchLimit
	if opts != nil && opts.Limit > 0 {
		limit = opts.Limit
	}

	occupations, err := p.keywordSearch(ctx, term, limit)
	if err != nil {
		return nil, err
	}

	matches := make([]types.OccupationMatch, 0, len(occupations))
	for _, occ := range occupations {
		match := types.OccupationMatch{
			ID:             occ.Code,
			URI:            occ.Code,
			Code:           occ.Code,
			Title:          occ.Title,
			Description:    occ.Description,
			Provider:       types.ProviderONET,
			MatchedSkills:  []string{term},
			RelevanceScore: p.occupationRelevance(term, occ),
			Metadata:       map[string]string{"code": occ.Code},
		}

		// The occupation search response carries no skills; they only exist
		// behind the per-occupation report.
		report, err := p.fetchSkillsReport(ctx, occ.Code)
		if err != nil {
			p.logger.Warn("Occupation skills lookup failed",
				zap.String("code", occ.Code), zap.Error(err))
		} else {
			for _, element := range report.Element {
				if element.Score.Important {
					match.RequiredSkills = append(match.RequiredSkills, element.Name)
				} else {
					match.OptionalSkills = append(match.OptionalSkills, element.Name)
				}
			}
		}

		matches = append(matches, match)
	}

	if err := p.cache.Set(key, matches, p.config.SearchTTL); err != nil {
		p.logger.Warn("Failed to cache occupation search results", zap.Error(err))
	}

	return matches, nil
}

// GetSkill resolves a composite id of the form "<occupation code>:<element id>".
// Skill elements have no standalone detail endpoint; they live inside an
// occupation's skills report.
func (p *ONETProvider) GetSkill(ctx context.Context, id string) (*types.SkillMatch, error) {
	code, elementID, ok := strings.Cut(strings.TrimSpace(id), ":")
	if !ok || code == "" || elementID == "" {
		return nil, nil
	}

	report, err := p.fetchSkillsReport(ctx, code)
	if err != nil {
		return nil, err
	}

	for _, element := range report.Element {
		if element.ID == elementID {
			match := p.normalizeSkillElement(element.Name, code, element)
			return &match, nil
		}
	}

	return nil, nil
}

func (p *ONETProvider) Ping(ctx context.Context) error {
	_, status, err := p.caller.Call(fasthttp.MethodGet, "/online/search", map[string]string{
		"keyword": "skill",
		"end":     "1",
	}, nil)
	if err != nil {
		return err
	}
	if status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden {
		return types.Errorf(types.ErrProviderBadStatus, "HTTP %d: check credentials", status)
	}
	if status != fasthttp.StatusOK {
		return types.Errorf(types.ErrProviderBadStatus, "HTTP %d", status)
	}
	return nil
}

func (p *ONETProvider) keywordSearch(ctx context.Context, keyword string, limit int) ([]onetOccupation, error) {
	if err := p.limiter.Check(ctx); err != nil {
		return nil, err
	}

	var resp onetSearchResponse
	err := p.breaker.Execute(func() error {
		body, status, err := p.caller.Call(fasthttp.MethodGet, "/online/search", map[string]string{
			"keyword": keyword,
			"end":     strconv.Itoa(limit),
		}, nil)
		if err != nil {
			return err
		}
		if status != fasthttp.StatusOK {
			return types.Errorf(types.ErrProviderBadStatus, "HTTP %d from onet search", status)
		}
		return utils.Unmarshal(body, &resp)
	})
	if err != nil {
		return nil, err
	}

	return resp.Occupation, nil
}

// fetchSkillsReport loads one occupation's grouped skill elements, cached at
// detail TTL since taxonomy entities change rarely.
func (p *ONETProvider) fetchSkillsReport(ctx context.Context, code string) (*onetSkillsReport, error) {
	key := cacheKey(types.ProviderONET, "skills-report", code, nil)
	if report, ok := cachedAs[*onetSkillsReport](p.cache, key); ok {
		return report, nil
	}

	if err := p.limiter.Check(ctx); err != nil {
		return nil, err
	}

	var report onetSkillsReport
	err := p.breaker.Execute(func() error {
		body, status, err := p.caller.Call(fasthttp.MethodGet, "/online/occupations/"+code+"/summary/skills", nil, nil)
		if err != nil {
			return err
		}
		if status != fasthttp.StatusOK {
			return types.Errorf(types.ErrProviderBadStatus, "HTTP %d from onet skills report", status)
		}
		return utils.Unmarshal(body, &report)
	})
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(key, &report, p.config.DetailTTL); err != nil {
		p.logger.Warn("Failed to cache skills report", zap.Error(err))
	}

	return &report, nil
}

// normalizeSkillElement scores an element by the label heuristic, boosted by
// the provider-native importance value scaled through the configured divisor
// and clamped to [0,1].
func (p *ONETProvider) normalizeSkillElement(query, code string, element onetElement) types.SkillMatch {
	base := labelRelevance(query, element.Name)

	score := base
	if element.Score.Value > 0 {
		boost := element.Score.Value / p.importanceDivisor()
		score = clamp01((base + boost) / 2)
	}

	return types.SkillMatch{
		ID:             code + ":" + element.ID,
		URI:            code + ":" + element.ID,
		PreferredLabel: element.Name,
		Description:    element.Description,
		SkillType:      "skill",
		Provider:       types.ProviderONET,
		RelevanceScore: score,
		Metadata: map[string]string{
			"occupation_code": code,
			"element_id":      element.ID,
			"importance":      strconv.FormatFloat(element.Score.Value, 'f', -1, 64),
		},
	}
}

func (p *ONETProvider) occupationRelevance(term string, occ onetOccupation) float64 {
	if occ.RelevanceScore > 0 {
		return clamp01(occ.RelevanceScore / p.importanceDivisor())
	}
	return labelRelevance(term, occ.Title)
}

func (p *ONETProvider) importanceDivisor() float64 {
	if p.config.ImportanceDivisor > 0 {
		return p.config.ImportanceDivisor
	}
	return defaultImportanceDivisor
}
