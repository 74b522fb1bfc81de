package lexicon

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.88
)

// matcher finds the canonical term most phonetically similar to a spoken
// word. Candidates are filtered by Double Metaphone code overlap and ranked
// by Jaro-Winkler similarity; when nothing overlaps phonetically, a stricter
// pure-similarity pass catches plain misspellings. Read-only after
// construction, so safe for concurrent use.
type matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64

	// terms holds the canonical forms; codes the Double Metaphone code set
	// per term, precomputed once since the lexicon never changes.
	terms []string
	codes []map[string]struct{}
}

func newMatcher(terms []string, phoneticThreshold, fuzzyThreshold float64) *matcher {
	m := &matcher{
		phoneticThreshold: phoneticThreshold,
		fuzzyThreshold:    fuzzyThreshold,
		terms:             terms,
		codes:             make([]map[string]struct{}, len(terms)),
	}
	for i, term := range terms {
		m.codes[i] = metaphoneCodes(strings.Fields(strings.ToLower(term)))
	}
	return m
}

// match returns the best-ranked canonical term for word, or ok=false when no
// term clears its threshold.
func (m *matcher) match(word string) (term string, score float64, ok bool) {
	wordLower := strings.ToLower(strings.TrimSpace(word))
	if wordLower == "" {
		return "", 0, false
	}
	wordTokens := strings.Fields(wordLower)
	wordCodes := metaphoneCodes(wordTokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)

	for i, candidate := range m.terms {
		candidateLower := strings.ToLower(candidate)
		phonetic := codesOverlap(wordCodes, m.codes[i])
		similarity := bestSimilarity(wordTokens, strings.Fields(candidateLower), wordLower, candidateLower)

		switch {
		case phonetic && similarity >= m.phoneticThreshold:
			if !bestPhonetic || similarity > bestScore {
				best, bestScore, bestPhonetic = candidate, similarity, true
			}
		case !phonetic && !bestPhonetic && similarity >= m.fuzzyThreshold:
			if similarity > bestScore {
				best, bestScore = candidate, similarity
			}
		}
	}

	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

// metaphoneCodes returns the union of Double Metaphone codes for the tokens.
// Tokens too short to produce a code contribute nothing.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity takes the highest Jaro-Winkler score across full-string,
// space-stripped, and pairwise-token comparisons, so "otter tis" can still
// line up with "otitis".
func bestSimilarity(wordTokens, termTokens []string, wordFull, termFull string) float64 {
	score := matchr.JaroWinkler(wordFull, termFull, false)

	if len(wordTokens) > 1 || len(termTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(wordTokens, ""), strings.Join(termTokens, ""), false); s > score {
			score = s
		}
	}

	for _, wt := range wordTokens {
		for _, tt := range termTokens {
			if s := matchr.JaroWinkler(wt, tt, false); s > score {
				score = s
			}
		}
	}
	return score
}
