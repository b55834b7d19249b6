package ranking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillgarden/pkg/skills"
)

func strPtr(s string) *string { return &s }

func TestRelevanceRankerScores(t *testing.T) {
	r := NewRelevanceRanker()

	tests := []struct {
		name       string
		skill      *skills.Skill
		query      string
		references bool
		expected   float64
	}{
		{
			name:     "exact id with content and 10k installs",
			skill:    &skills.Skill{ID: "react-best-practices", Content: strPtr("# React"), InstallCount: 10000},
			query:    "react best practices",
			expected: 85,
		},
		{
			name:     "no content and no match",
			skill:    &skills.Skill{ID: "pdf", Title: "PDF"},
			query:    "kubernetes",
			expected: 0,
		},
		{
			name:       "references only count when requested",
			skill:      &skills.Skill{ID: "x", Content: strPtr("body"), References: []skills.Reference{{Name: "a.md"}}},
			query:      "unrelated",
			references: false,
			expected:   40,
		},
		{
			name:       "references requested and present",
			skill:      &skills.Skill{ID: "x", Content: strPtr("body"), References: []skills.Reference{{Name: "a.md"}}},
			query:      "unrelated",
			references: true,
			expected:   55,
		},
		{
			name:     "popularity is log scaled",
			skill:    &skills.Skill{ID: "x", InstallCount: 99},
			query:    "",
			expected: 7.5,
		},
		{
			name:     "curated boost scales with the match",
			skill:    &skills.Skill{ID: "webapp-testing", Registry: skills.RegistryCurated},
			query:    "webapp testing",
			expected: 38,
		},
		{
			name:     "curated boost is zero without a match",
			skill:    &skills.Skill{ID: "webapp-testing", Registry: skills.RegistryCurated, Content: strPtr("nothing relevant")},
			query:    "kubernetes",
			expected: 40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, r.Score(tt.skill, NewQuery(tt.query), tt.references), 1e-9)
		})
	}
}

func TestQueryMatchCascade(t *testing.T) {
	tests := []struct {
		name     string
		skill    *skills.Skill
		query    string
		expected float64
	}{
		{"exact id ignoring separators", &skills.Skill{ID: "gpt_researcher"}, "GPT-Researcher", 1.0},
		{"query words in id", &skills.Skill{ID: "vercel-react-best-practices"}, "react practices", 0.9},
		{"id words in query", &skills.Skill{ID: "gpt-researcher"}, "gpt researcher deep research", 0.85},
		{"query words in title", &skills.Skill{ID: "docx", Title: "Word Document Editor"}, "document editor", 0.8},
		{"partial id and title", &skills.Skill{ID: "react-hooks", Title: "Hooks"}, "react vue", 0.25},
		{"partial with description boost", &skills.Skill{ID: "react-hooks", Description: "vue patterns"}, "react vue", 0.35},
		{"description only, all words", &skills.Skill{ID: "x", Description: "Browser automation for testing."}, "automation testing", 0.7},
		{"description only, partial", &skills.Skill{ID: "x", Description: "Browser automation"}, "automation testing", 0.175},
		{"body as last resort", &skills.Skill{ID: "x", Content: strPtr("Use kubectl to deploy")}, "kubectl helm", 0.075},
		{"empty query", &skills.Skill{ID: "x"}, "   ", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, NewQuery(tt.query).Match(tt.skill), 1e-9)
		})
	}
}

func TestQueryMatchIsWholeWord(t *testing.T) {
	s := &skills.Skill{
		ID:          "deep-research",
		Title:       "Researcher",
		Description: "Research assistant",
		Content:     strPtr("Researching things"),
	}
	assert.Zero(t, NewQuery("search").Match(s))
}

func TestQueryMatchOnlyScansBodyPrefix(t *testing.T) {
	body := strings.Repeat("a ", bodyScanLimit) + "needle"
	s := &skills.Skill{ID: "x", Content: &body}
	assert.Zero(t, NewQuery("needle").Match(s))

	short := "needle " + strings.Repeat("a ", 10)
	s.Content = &short
	assert.InDelta(t, 0.15, NewQuery("needle").Match(s), 1e-9)
}

func TestRankOrdersStably(t *testing.T) {
	a := &skills.Skill{ID: "alpha"}
	b := &skills.Skill{ID: "beta", Content: strPtr("b")}
	c := &skills.Skill{ID: "gamma"}
	d := &skills.Skill{ID: "alpha-tools", Content: strPtr("d"), InstallCount: 10000}

	ranked := NewRelevanceRanker().Rank([]*skills.Skill{a, b, c, d}, "alpha", false)
	require.Len(t, ranked, 4)

	var ids []string
	for _, s := range ranked {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"alpha-tools", "beta", "alpha", "gamma"}, ids)
	assert.Equal(t, 82.0, d.RelevanceScore)
	assert.Equal(t, 40.0, b.RelevanceScore)
	assert.Equal(t, 30.0, a.RelevanceScore)
	assert.Zero(t, c.RelevanceScore, "skills without content are kept")
}

func TestPopularityRanker(t *testing.T) {
	low := &skills.Skill{ID: "low", InstallCount: 5}
	high := &skills.Skill{ID: "high", InstallCount: 500}

	ranked := PopularityRanker{}.Rank([]*skills.Skill{low, high}, "ignored", false)
	assert.Equal(t, "high", ranked[0].ID)
	assert.Equal(t, 500.0, high.RelevanceScore)
}
