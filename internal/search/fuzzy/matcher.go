// Package fuzzy scores how closely a query string matches candidate strings
// on a 0-100 scale, and picks the best candidate from a list.
//
// Scoring follows a weighted-ratio scheme: plain edit-distance similarity
// for strings of similar length, token sort and token set similarity to
// ignore word order and duplicates, and a scaled partial (best window) match
// when one string is much longer than the other.
package fuzzy

import (
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// Match is the outcome of BestMatch.
type Match struct {
	Candidate string
	Score     float64
	Index     int
}

// NoMatch is returned for an empty candidate list.
var NoMatch = Match{Score: 0, Index: -1}

// Found reports whether the match refers to a candidate.
func (m Match) Found() bool {
	return m.Index >= 0
}

// BestMatch returns the candidate scoring highest against query. Ties keep
// the earliest candidate. An empty candidate list yields NoMatch.
func BestMatch(query string, candidates []string) Match {
	if len(candidates) == 0 {
		return NoMatch
	}
	q := Process(query)
	best := Match{Score: -1, Index: -1}
	for i, c := range candidates {
		s := scoreProcessed(q, Process(c))
		if s > best.Score {
			best = Match{Candidate: c, Score: s, Index: i}
			if s == 100 {
				break
			}
		}
	}
	return best
}

// Score compares two raw strings.
func Score(a, b string) float64 {
	return scoreProcessed(Process(a), Process(b))
}

func scoreProcessed(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	shorter, longer := a, b
	if la > lb {
		shorter, longer = b, a
		la, lb = lb, la
	}
	lenRatio := float64(lb) / float64(la)

	best := ratio(a, b)
	if lenRatio < 1.5 {
		best = max(best, 0.95*tokenSortRatio(a, b), 0.95*tokenSetRatio(a, b))
		return round(best)
	}

	scale := 0.9
	if lenRatio >= 8 {
		scale = 0.6
	}
	best = max(best,
		scale*partialRatio(shorter, longer),
		0.95*scale*partialTokenRatio(shorter, longer),
	)
	return round(best)
}

func ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	sim, err := edlib.StringsSimilarity(a, b, edlib.Levenshtein)
	if err != nil {
		return 0
	}
	return float64(sim) * 100
}

// partialRatio is the best ratio of shorter against every window of longer
// with the same rune length.
func partialRatio(shorter, longer string) float64 {
	s, l := []rune(shorter), []rune(longer)
	if len(s) == 0 {
		return 0
	}
	if len(s) >= len(l) {
		return ratio(shorter, longer)
	}
	best := 0.0
	for i := 0; i+len(s) <= len(l); i++ {
		r := ratio(shorter, string(l[i:i+len(s)]))
		if r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

func tokenSortRatio(a, b string) float64 {
	return ratio(sortedTokens(a), sortedTokens(b))
}

func sortedTokens(s string) string {
	words := strings.Fields(s)
	slices.Sort(words)
	return strings.Join(words, " ")
}

// tokenSetRatio compares the shared words against each side's shared+own
// words, so duplicated or extra words cost less than in a plain ratio.
func tokenSetRatio(a, b string) float64 {
	inter, onlyA, onlyB := splitTokens(a, b)
	if len(inter) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 100
	}
	sect := strings.Join(inter, " ")
	withA := strings.TrimSpace(sect + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(sect + " " + strings.Join(onlyB, " "))
	return max(ratio(sect, withA), ratio(sect, withB), ratio(withA, withB))
}

// partialTokenRatio is the partial analogue of the token ratios: any shared
// word is a full hit, otherwise the sorted leftovers are partially matched.
func partialTokenRatio(shorter, longer string) float64 {
	inter, onlyS, onlyL := splitTokens(shorter, longer)
	if len(inter) > 0 {
		return 100
	}
	a, b := strings.Join(onlyS, " "), strings.Join(onlyL, " ")
	if utf8.RuneCountInString(a) > utf8.RuneCountInString(b) {
		a, b = b, a
	}
	return partialRatio(a, b)
}

func splitTokens(a, b string) (inter, onlyA, onlyB []string) {
	setA := tokenSet(a)
	setB := tokenSet(b)
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter = append(inter, w)
		} else {
			onlyA = append(onlyA, w)
		}
	}
	for w := range setB {
		if _, ok := setA[w]; !ok {
			onlyB = append(onlyB, w)
		}
	}
	slices.Sort(inter)
	slices.Sort(onlyA)
	slices.Sort(onlyB)
	return inter, onlyA, onlyB
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}

func round(x float64) float64 {
	return math.Round(min(max(x, 0), 100)*100) / 100
}
