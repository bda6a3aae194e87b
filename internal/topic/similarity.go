package topic

import "unicode"

// MatchThreshold is the minimum Dice similarity for two normalized labels to
// share a topic entry.
const MatchThreshold = 0.85

// Similarity returns the bigram Dice coefficient of two normalized labels.
// Whitespace is ignored, identical strings score 1, and strings shorter than
// two runes score 0 unless identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ar := compact(a)
	br := compact(b)
	if string(ar) == string(br) {
		return 1
	}
	if len(ar) < 2 || len(br) < 2 {
		return 0
	}

	counts := make(map[[2]rune]int, len(ar)-1)
	for i := 0; i < len(ar)-1; i++ {
		counts[[2]rune{ar[i], ar[i+1]}]++
	}
	inter := 0
	for i := 0; i < len(br)-1; i++ {
		bg := [2]rune{br[i], br[i+1]}
		if counts[bg] > 0 {
			counts[bg]--
			inter++
		}
	}
	return 2 * float64(inter) / float64(len(ar)-1+len(br)-1)
}

// FindMatch returns the index of the first name in existing whose similarity
// to candidate reaches MatchThreshold, or -1. Iteration order is the caller's
// order, so the result is the first similar-enough name, not the most similar.
func FindMatch(candidate string, existing []string) int {
	if candidate == "" {
		return -1
	}
	for i, name := range existing {
		if Similarity(candidate, name) >= MatchThreshold {
			return i
		}
	}
	return -1
}

func compact(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			out = append(out, r)
		}
	}
	return out
}
