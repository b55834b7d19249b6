package ranking

import (
	"strings"
	"unicode"

	"github.com/jingkaihe/skillgarden/pkg/skills"
)

// bodyScanLimit bounds how much of the markdown body takes part in matching
const bodyScanLimit = 2000

// Query is a search query normalized for whole-word matching
type Query struct {
	text  string
	words []string
}

// NewQuery normalizes raw for matching. Case is folded and every run of
// characters other than letters and digits (including "-", "_" and "/")
// separates words.
func NewQuery(raw string) Query {
	words := tokenize(raw)
	return Query{text: strings.Join(words, " "), words: words}
}

// Empty reports whether the query has no words to match
func (q Query) Empty() bool {
	return len(q.words) == 0
}

// Match returns how well s matches the query on a 0..1 scale. Tiers are tried
// from the strongest signal down and the first that applies wins, except that
// the id/title partial overlap and the description overlap are compared and
// the better one is used.
func (q Query) Match(s *skills.Skill) float64 {
	if q.Empty() {
		return 0
	}

	idWords := tokenize(s.ID)
	id := wordSet(idWords)
	if strings.Join(idWords, " ") == q.text {
		return 1.0
	}
	if id.containsAll(q.words) {
		return 0.9
	}
	if len(idWords) > 0 && wordSet(q.words).containsAll(idWords) {
		return 0.85
	}

	title := wordSet(tokenize(s.Title))
	if len(title) > 0 && title.containsAll(q.words) {
		return 0.8
	}

	desc := wordSet(tokenize(s.Description))
	descFraction := desc.fraction(q.words)

	best := 0.0
	if named := id.union(title).fraction(q.words); named > 0 {
		best = min(0.5*named+0.2*descFraction, 0.7)
	}
	switch {
	case descFraction == 1:
		best = max(best, 0.7)
	case descFraction > 0:
		best = max(best, 0.35*descFraction)
	}
	if best > 0 {
		return best
	}

	if s.Content != nil {
		body := wordSet(tokenize(truncateRunes(*s.Content, bodyScanLimit)))
		return 0.15 * body.fraction(q.words)
	}
	return 0
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

type words map[string]struct{}

func wordSet(list []string) words {
	set := make(words, len(list))
	for _, w := range list {
		set[w] = struct{}{}
	}
	return set
}

func (w words) containsAll(list []string) bool {
	for _, item := range list {
		if _, ok := w[item]; !ok {
			return false
		}
	}
	return true
}

// fraction is the share of list found in w
func (w words) fraction(list []string) float64 {
	if len(list) == 0 {
		return 0
	}
	found := 0
	for _, item := range list {
		if _, ok := w[item]; ok {
			found++
		}
	}
	return float64(found) / float64(len(list))
}

func (w words) union(other words) words {
	out := make(words, len(w)+len(other))
	for k := range w {
		out[k] = struct{}{}
	}
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}
