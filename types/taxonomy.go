package types

import (
	"context"
)

// TaxonomyProviderName identifies one of the external taxonomy sources. The
// two sources are taxonomically incompatible: identity is always the pair
// (provider, URI), never the raw ID alone.
type TaxonomyProviderName string

const (
	ProviderESCO TaxonomyProviderName = "esco"
	ProviderONET TaxonomyProviderName = "onet"
)

type SkillMatch struct {
	ID                string               `json:"id"`
	URI               string               `json:"uri"`
	PreferredLabel    string               `json:"preferred_label"`
	AlternativeLabels []string             `json:"alternative_labels,omitempty"`
	Description       string               `json:"description,omitempty"`
	SkillType         string               `json:"skill_type,omitempty"`
	Provider          TaxonomyProviderName `json:"provider"`
	RelevanceScore    float64              `json:"relevance_score"`
	BroaderConcepts   []string             `json:"broader_concepts,omitempty"`
	NarrowerConcepts  []string             `json:"narrower_concepts,omitempty"`
	RelatedConcepts   []string             `json:"related_concepts,omitempty"`
	Metadata          map[string]string    `json:"metadata,omitempty"`
}

type OccupationMatch struct {
	ID             string               `json:"id"`
	URI            string               `json:"uri"`
	Code           string               `json:"code,omitempty"`
	Title          string               `json:"title"`
	Description    string               `json:"description,omitempty"`
	Provider       TaxonomyProviderName `json:"provider"`
	MatchedSkills  []string             `json:"matched_skills,omitempty"`
	RelevanceScore float64              `json:"relevance_score"`
	RequiredSkills []string             `json:"required_skills,omitempty"`
	OptionalSkills []string             `json:"optional_skills,omitempty"`
	Metadata       map[string]string    `json:"metadata,omitempty"`
}

// SkillEnrichmentResult is a request-scoped view object; it is never
// persisted, only its cached sub-results outlive the call.
type SkillEnrichmentResult struct {
	OriginalSkill    string       `json:"original_skill"`
	Matches          []SkillMatch `json:"matches"`
	RelatedSkills    []string     `json:"related_skills,omitempty"`
	Occupations      []string     `json:"occupations,omitempty"`
	Categories       []string     `json:"categories,omitempty"`
	BroaderConcepts  []string     `json:"broader_concepts,omitempty"`
	NarrowerConcepts []string     `json:"narrower_concepts,omitempty"`
}

type SearchOptions struct {
	Language     string                 `json:"language,omitempty"`
	Limit        int                    `json:"limit,omitempty"`
	Providers    []TaxonomyProviderName `json:"providers,omitempty"`
	MinRelevance float64                `json:"min_relevance,omitempty"`
}

type ValidationResult struct {
	IsValid     bool         `json:"is_valid"`
	Confidence  float64      `json:"confidence"`
	Matches     []SkillMatch `json:"matches"`
	Suggestions []string     `json:"suggestions,omitempty"`
}

// TaxonomyProvider is implemented by each adapter. Every operation follows the
// same envelope: local empty-query reject, rate limiter admission, breaker
// gated network call, normalization, caching.
type TaxonomyProvider interface {
	Name() TaxonomyProviderName
	SearchSkills(ctx context.Context, query string, opts *SearchOptions) ([]SkillMatch, error)
	SearchOccupations(ctx context.Context, terms []string, opts *SearchOptions) ([]OccupationMatch, error)
	GetSkill(ctx context.Context, id string) (*SkillMatch, error)
	Ping(ctx context.Context) error
}

// EnrichmentManager is the public surface of the enrichment orchestrator.
type EnrichmentManager interface {
	EnrichSkills(ctx context.Context, terms []string, opts *SearchOptions) ([]SkillEnrichmentResult, error)
	SearchSkills(ctx context.Context, query string, opts *SearchOptions) ([]SkillMatch, error)
	SearchOccupations(ctx context.Context, terms []string, opts *SearchOptions) ([]OccupationMatch, error)
	MapSkillsAcrossTaxonomies(ctx context.Context, terms []string, from, to TaxonomyProviderName) (map[string][]SkillMatch, error)
	ValidateSkill(ctx context.Context, term string, opts *SearchOptions) (*ValidationResult, error)
}
