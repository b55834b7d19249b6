package sources

import (
	"sort"
	"strings"

	"github.com/jingkaihe/skillgarden/pkg/skills"
)

// entry is a registry row that can be scored against a query
type entry struct {
	key         string // the field compared against the whole query
	description string
	category    string
	result      skills.SearchResult
}

// matchScore scores an entry from 0 to 1: whole-query hits on the key, the
// description and the category first, then the share of query terms found
// anywhere, weighted by termWeight.
func matchScore(e entry, query string, termWeight float64) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}

	key := strings.ToLower(e.key)
	desc := strings.ToLower(e.description)
	category := strings.ToLower(e.category)

	switch {
	case q == key:
		return 1.0
	case strings.Contains(key, q):
		return 0.9
	case strings.Contains(desc, q):
		return 0.7
	case category != "" && strings.Contains(category, q):
		return 0.5
	}

	terms := strings.Fields(q)
	searchable := strings.Join([]string{key, desc, category}, " ")
	matched := 0
	for _, term := range terms {
		if strings.Contains(searchable, term) {
			matched++
		}
	}
	return termWeight * float64(matched) / float64(len(terms))
}

// searchEntries scores every entry, drops non-matches and returns the best
// limit results
func searchEntries(entries []entry, query string, limit int, termWeight float64) []skills.SearchResult {
	type scored struct {
		score float64
		entry entry
	}

	var hits []scored
	for _, e := range entries {
		if s := matchScore(e, query, termWeight); s > 0 {
			hits = append(hits, scored{score: s, entry: e})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].entry.result.ID < hits[j].entry.result.ID
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	results := make([]skills.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.entry.result)
	}
	return results
}
