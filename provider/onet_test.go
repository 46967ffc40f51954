package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/skillatlas/taxonomy-service/types"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func newONET(caller types.HTTPCaller, limiter types.RateLimiter, breaker types.Breaker) *ONETProvider {
	return NewONETProvider(testLogger(), caller, limiter, breaker, newTestStore(), testProviderConfig())
}

func TestONETSkillSearchIsTwoHop(t *testing.T) {
	caller := newStubCaller()
	caller.respond("/online/search", `{
		"occupation": [
			{"code": "15-1252.00", "title": "Software Developers", "relevance_score": 95}
		],
		"total": 1
	}`)
	caller.respond("/online/occupations/15-1252.00/summary/skills", `{
		"element": [
			{"id": "2.A.1.a", "name": "Programming", "description": "Writing code", "score": {"important": true, "value": 80}},
			{"id": "2.B.3.b", "name": "Negotiation", "score": {"important": false, "value": 40}}
		]
	}`)

	p := newONET(caller, allowAllLimiter{}, passBreaker{})

	matches, err := p.SearchSkills(context.Background(), "programming", nil)
	if err != nil {
		t.Fatalf("SearchSkills: %v", err)
	}

	// Only elements whose label contains the query survive the filter.
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	match := matches[0]
	if match.PreferredLabel != "Programming" {
		t.Fatalf("label = %q", match.PreferredLabel)
	}
	if match.ID != "15-1252.00:2.A.1.a" {
		t.Fatalf("id = %q, want composite occupation:element id", match.ID)
	}

	// Exact label, importance 80, divisor 100: (1.0 + 0.8) / 2 = 0.9.
	if !almostEqual(match.RelevanceScore, 0.9) {
		t.Fatalf("score = %v, want 0.9", match.RelevanceScore)
	}

	if n := caller.callCount("/online/search"); n != 1 {
		t.Fatalf("keyword search called %d times, want 1", n)
	}
	if n := caller.callCount("/online/occupations/15-1252.00/summary/skills"); n != 1 {
		t.Fatalf("skills report called %d times, want 1", n)
	}
}

func TestONETExpansionIsCapped(t *testing.T) {
	var occupations []string
	caller := newStubCaller()
	for i := 0; i < 8; i++ {
		code := fmt.Sprintf("15-125%d.00", i)
		occupations = append(occupations, fmt.Sprintf(`{"code": %q, "title": "Occupation %d"}`, code, i))
		caller.respond("/online/occupations/"+code+"/summary/skills", `{"element": []}`)
	}
	caller.respond("/online/search", `{"occupation": [`+strings.Join(occupations, ",")+`], "total": 8}`)

	p := newONET(caller, allowAllLimiter{}, passBreaker{})

	if _, err := p.SearchSkills(context.Background(), "anything", nil); err != nil {
		t.Fatalf("SearchSkills: %v", err)
	}

	reports := 0
	for _, call := range caller.calls {
		if strings.HasSuffix(call.path, "/summary/skills") {
			reports++
		}
	}
	if reports != maxOccupationExpansion {
		t.Fatalf("expanded %d occupations, want %d", reports, maxOccupationExpansion)
	}
}

func TestONETDuplicateElementKeepsHigherScore(t *testing.T) {
	caller := newStubCaller()
	caller.respond("/online/search", `{
		"occupation": [
			{"code": "15-1252.00", "title": "Software Developers"},
			{"code": "15-1253.00", "title": "Software Testers"}
		],
		"total": 2
	}`)
	caller.respond("/online/occupations/15-1252.00/summary/skills", `{
		"element": [{"id": "2.A.1.a", "name": "Programming", "score": {"important": true, "value": 90}}]
	}`)
	caller.respond("/online/occupations/15-1253.00/summary/skills", `{
		"element": [{"id": "2.A.1.a", "name": "Programming", "score": {"important": true, "value": 40}}]
	}`)

	p := newONET(caller, allowAllLimiter{}, passBreaker{})

	matches, err := p.SearchSkills(context.Background(), "Programming", nil)
	if err != nil {
		t.Fatalf("SearchSkills: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1 (same element deduplicated)", len(matches))
	}

	// (1.0 + 0.9) / 2 beats (1.0 + 0.4) / 2.
	if !almostEqual(matches[0].RelevanceScore, 0.95) {
		t.Fatalf("score = %v, want 0.95 from the higher-importance occupation", matches[0].RelevanceScore)
	}
}

func TestONETReportFailureSkipsOccupation(t *testing.T) {
	caller := newStubCaller()
	caller.respond("/online/search", `{
		"occupation": [
			{"code": "15-1252.00", "title": "Software Developers"},
			{"code": "15-1253.00", "title": "Software Testers"}
		],
		"total": 2
	}`)
	caller.respondStatus("/online/occupations/15-1252.00/summary/skills", 500)
	caller.respond("/online/occupations/15-1253.00/summary/skills", `{
		"element": [{"id": "2.A.1.a", "name": "Programming", "score": {"important": true, "value": 50}}]
	}`)

	p := newONET(caller, allowAllLimiter{}, passBreaker{})

	matches, err := p.SearchSkills(context.Background(), "programming", nil)
	if err != nil {
		t.Fatalf("one failed expansion must not fail the search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1 from the healthy occupation", len(matches))
	}
}

func TestONETImportanceBoostClamped(t *testing.T) {
	p := newONET(newStubCaller(), allowAllLimiter{}, passBreaker{})
	p.config.ImportanceDivisor = 10

	match := p.normalizeSkillElement("Programming", "15-1252.00", onetElement{
		ID:    "2.A.1.a",
		Name:  "Programming",
		Score: onetScore{Important: true, Value: 100},
	})

	// (1.0 + 100/10) / 2 would be 5.5; the score is clamped to 1.0.
	if match.RelevanceScore != 1.0 {
		t.Fatalf("score = %v, want clamped 1.0", match.RelevanceScore)
	}
}

func TestONETGetSkillCompositeID(t *testing.T) {
	caller := newStubCaller()
	caller.respond("/online/occupations/15-1252.00/summary/skills", `{
		"element": [{"id": "2.A.1.a", "name": "Programming", "score": {"important": true, "value": 80}}]
	}`)

	p := newONET(caller, allowAllLimiter{}, passBreaker{})
	ctx := context.Background()

	match, err := p.GetSkill(ctx, "15-1252.00:2.A.1.a")
	if err != nil {
		t.Fatalf("GetSkill: %v", err)
	}
	if match == nil || match.PreferredLabel != "Programming" {
		t.Fatalf("match = %+v", match)
	}

	if m, err := p.GetSkill(ctx, "malformed"); err != nil || m != nil {
		t.Fatalf("malformed id: match=%+v err=%v, want nil/nil", m, err)
	}

	missing, err := p.GetSkill(ctx, "15-1252.00:9.Z.9.z")
	if err != nil || missing != nil {
		t.Fatalf("unknown element: match=%+v err=%v, want nil/nil", missing, err)
	}
}

func TestONETSearchOccupationsSplitsSkills(t *testing.T) {
	caller := newStubCaller()
	caller.respond("/online/search", `{
		"occupation": [
			{"code": "15-1252.00", "title": "Software Developers", "description": "Builds software", "relevance_score": 80}
		],
		"total": 1
	}`)
	caller.respond("/online/occupations/15-1252.00/summary/skills", `{
		"element": [
			{"id": "a", "name": "Programming", "score": {"important": true, "value": 90}},
			{"id": "b", "name": "Public Speaking", "score": {"important": false, "value": 20}}
		]
	}`)

	p := newONET(caller, allowAllLimiter{}, passBreaker{})

	matches, err := p.SearchOccupations(context.Background(), []string{"software"}, nil)
	if err != nil {
		t.Fatalf("SearchOccupations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}

	occ := matches[0]
	if occ.Code != "15-1252.00" {
		t.Fatalf("code = %q", occ.Code)
	}
	if !almostEqual(occ.RelevanceScore, 0.8) {
		t.Fatalf("score = %v, want provider-native 80/100", occ.RelevanceScore)
	}
	if len(occ.RequiredSkills) != 1 || occ.RequiredSkills[0] != "Programming" {
		t.Fatalf("required skills = %v", occ.RequiredSkills)
	}
	if len(occ.OptionalSkills) != 1 || occ.OptionalSkills[0] != "Public Speaking" {
		t.Fatalf("optional skills = %v", occ.OptionalSkills)
	}
}

func TestONETPingFlagsBadCredentials(t *testing.T) {
	caller := newStubCaller()
	caller.respondStatus("/online/search", 401)

	p := newONET(caller, allowAllLimiter{}, passBreaker{})

	err := p.Ping(context.Background())
	if !errors.Is(err, types.ErrProviderBadStatus) {
		t.Fatalf("got %v, want ErrProviderBadStatus", err)
	}
	if !strings.Contains(err.Error(), "credentials") {
		t.Fatalf("error %q should point at credentials", err.Error())
	}
}
