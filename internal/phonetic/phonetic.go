// Package phonetic scores free-text queries against short names such as
// attribute names, tolerating misspellings ("mendng", "sharpnes").
//
// Scoring runs in two stages:
//
//  1. Phonetic filter: Double Metaphone codes are computed for every token of
//     the query and of the candidate. A shared code marks the candidate as a
//     phonetic match, accepted when its Jaro-Winkler score reaches the
//     phonetic threshold (default 0.70).
//
//  2. Fuzzy fallback: candidates without a shared code are accepted only when
//     their Jaro-Winkler score reaches the stricter fuzzy threshold (default
//     0.85).
//
// A candidate that contains the whole query as a substring always scores 1.
package phonetic

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching candidate. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a candidate
// without phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Candidate is one accepted result of [Matcher.Rank].
type Candidate struct {
	// Index is the position of Text in the slice passed to Rank.
	Index    int
	Text     string
	Score    float64
	Phonetic bool
}

// Score compares query with candidate. ok reports whether the candidate
// passes the applicable threshold.
func (m *Matcher) Score(query, candidate string) (score float64, phonetic, ok bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	c := strings.ToLower(strings.TrimSpace(candidate))
	if q == "" || c == "" {
		return 0, false, false
	}
	if strings.Contains(c, q) {
		return 1, true, true
	}

	qTokens := tokenize(q)
	cTokens := tokenize(c)
	phonetic = codesOverlap(codesForTokens(qTokens), codesForTokens(cTokens))
	score = bestJWScore(qTokens, cTokens, q, c)

	if phonetic {
		return score, true, score >= m.phoneticThreshold
	}
	return score, false, score >= m.fuzzyThreshold
}

// Rank returns every accepted candidate ordered by phonetic matches first,
// then descending score, then original position.
func (m *Matcher) Rank(query string, candidates []string) []Candidate {
	var out []Candidate
	for i, c := range candidates {
		score, phonetic, ok := m.Score(query, c)
		if !ok {
			continue
		}
		out = append(out, Candidate{Index: i, Text: c, Score: score, Phonetic: phonetic})
	}
	slices.SortStableFunc(out, func(a, b Candidate) int {
		if a.Phonetic != b.Phonetic {
			if a.Phonetic {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	return out
}

// Best returns the top-ranked candidate, if any.
func (m *Matcher) Best(query string, candidates []string) (Candidate, bool) {
	ranked := m.Rank(query, candidates)
	if len(ranked) == 0 {
		return Candidate{}, false
	}
	return ranked[0], true
}

// tokenize splits s on anything that is not a letter or digit, so registry
// keys like "silk_touch" tokenise the same as "silk touch".
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// codesForTokens returns the union of the Double Metaphone codes of tokens,
// excluding empty codes.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
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

// bestJWScore is the maximum Jaro-Winkler similarity over the full strings,
// the strings with separators removed, and every token pair.
func bestJWScore(qTokens, cTokens []string, qFull, cFull string) float64 {
	score := matchr.JaroWinkler(qFull, cFull, false)

	if len(qTokens) > 1 || len(cTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(qTokens, ""), strings.Join(cTokens, ""), false); s > score {
			score = s
		}
	}
	for _, qt := range qTokens {
		for _, ct := range cTokens {
			if s := matchr.JaroWinkler(qt, ct, false); s > score {
				score = s
			}
		}
	}
	return score
}
