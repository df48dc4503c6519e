package textutil

import (
	"regexp"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)
var nonSlugRegex = regexp.MustCompile(`[^a-z0-9]+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// Slugify lower-cases name and replaces every run of non-alphanumerics with
// a single underscore, "Dividends & Yield" becomes "dividends_yield".
func Slugify(name string) string {
	slug := nonSlugRegex.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(slug, "_")
}

// SnakeLabel turns a visible column label into an identifier, "Market Cap"
// becomes "market_cap". Unlike Slugify punctuation is kept.
func SnakeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = whitespaceRegex.ReplaceAllString(label, " ")
	return strings.ReplaceAll(strings.ToLower(label), " ", "_")
}

type Match struct {
	Value      string
	Similarity float64
}

// ClosestMatches ranks candidates by Jaro-Winkler similarity to name and
// returns at most limit of them with a similarity of at least minSimilarity.
func ClosestMatches(name string, candidates []string, limit int, minSimilarity float64) []Match {
	name = NormalizeName(name)

	var matches []Match
	for _, c := range candidates {
		similarity := matchr.JaroWinkler(name, NormalizeName(c), false)
		if similarity < minSimilarity {
			continue
		}
		matches = append(matches, Match{Value: c, Similarity: similarity})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
