package enum

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// MaxSuggestions caps the candidates attached to a failure.
const MaxSuggestions = 5

// Rank orders candidates by resemblance to value and returns at most limit
// of them. Candidates sharing nothing with value are dropped unless value
// is blank, in which case the first labels alphabetically are returned.
func Rank(value string, candidates []string, limit int) []string {
	if limit <= 0 || limit > MaxSuggestions {
		limit = MaxSuggestions
	}
	target := Fold(value)

	type scored struct {
		name  string
		score float64
	}
	list := make([]scored, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		key := Fold(c)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		s := 1.0
		if target != "" {
			s = similarity(target, key)
			if s <= 0 {
				continue
			}
		}
		list = append(list, scored{name: strings.TrimSpace(c), score: s})
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].name < list[j].name
	})

	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.name
	}
	return out
}

// Score returns the resemblance of a and b in [0, 1], ignoring case and
// surrounding space. Identical labels score 1.
func Score(a, b string) float64 {
	fa, fb := Fold(a), Fold(b)
	if fa == "" || fb == "" {
		return 0
	}
	return similarity(fa, fb) / 2
}

// similarity blends edit distance with token overlap. Both inputs are
// already folded. The result is in [0, 2].
func similarity(a, b string) float64 {
	if a == b {
		return 2
	}
	var s float64
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if d := levenshtein.ComputeDistance(a, b); d < longest {
		s = 1 - float64(d)/float64(longest)
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		s += 0.5
	}
	s += 0.5 * tokenOverlap(a, b)
	return s
}

func tokenOverlap(a, b string) float64 {
	ta, tb := strings.Fields(a), strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(tb))
	for _, t := range tb {
		set[t] = true
	}
	shared := 0
	for _, t := range ta {
		if set[t] {
			shared++
		}
	}
	n := len(ta)
	if len(tb) > n {
		n = len(tb)
	}
	return float64(shared) / float64(n)
}
