// Package ranking scores assembled skills against a search query and orders
// them by relevance.
package ranking

import (
	"math"
	"sort"

	"github.com/jingkaihe/skillgarden/pkg/skills"
)

// Ranker assigns RelevanceScore to each skill and returns them ordered best first.
type Ranker interface {
	Rank(skills []*skills.Skill, query string, includeReferences bool) []*skills.Skill
}

// Signal weights of the relevance ranker; a perfect score is 100 plus the curated boost.
const (
	ContentWeight    = 40.0
	ReferencesWeight = 15.0
	QueryMatchWeight = 30.0
	PopularityWeight = 15.0
	CuratedBoost     = 8.0
)

// RelevanceRanker combines content availability, reference availability,
// whole-word query match, install popularity and a curated-registry boost
// proportional to the query match.
type RelevanceRanker struct{}

var _ Ranker = (*RelevanceRanker)(nil)

// NewRelevanceRanker returns the default ranker
func NewRelevanceRanker() *RelevanceRanker {
	return &RelevanceRanker{}
}

// Rank scores every skill in place and returns a new slice sorted by score descending.
// Skills with equal scores keep their input order.
func (r *RelevanceRanker) Rank(list []*skills.Skill, query string, includeReferences bool) []*skills.Skill {
	q := NewQuery(query)
	for _, s := range list {
		s.RelevanceScore = r.Score(s, q, includeReferences)
	}
	return sortByScore(list)
}

// Score computes the relevance of a single skill for the prepared query
func (r *RelevanceRanker) Score(s *skills.Skill, q Query, includeReferences bool) float64 {
	score := 0.0
	if s.HasContent() {
		score += ContentWeight
	}
	if includeReferences && s.HasReferences() {
		score += ReferencesWeight
	}

	match := q.Match(s)
	score += match * QueryMatchWeight
	score += popularity(s.InstallCount) * PopularityWeight
	if s.Registry == skills.RegistryCurated {
		score += match * CuratedBoost
	}
	return round2(score)
}

// PopularityRanker orders skills purely by install count.
type PopularityRanker struct{}

var _ Ranker = (*PopularityRanker)(nil)

// Rank sets RelevanceScore to the install count and sorts descending
func (PopularityRanker) Rank(list []*skills.Skill, _ string, _ bool) []*skills.Skill {
	for _, s := range list {
		s.RelevanceScore = float64(s.InstallCount)
	}
	return sortByScore(list)
}

// popularity maps installs onto [0, 1] on a log scale; 10k installs saturate it.
func popularity(installs int64) float64 {
	if installs <= 0 {
		return 0
	}
	return math.Min(math.Log10(float64(installs)+1)/4, 1)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sortByScore(list []*skills.Skill) []*skills.Skill {
	out := make([]*skills.Skill, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}
