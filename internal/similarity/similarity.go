// Package similarity holds the string scoring primitives the matching
// strategies share. Every function is pure and safe for concurrent use.
// Empty input scores 0.
package similarity

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// shortKeywordLen is the longest keyword that must match a whole token
// rather than a substring ("bt", "mr", "usg").
const shortKeywordLen = 3

// Normalize lowercases with Turkish casing rules, strips diacritics and
// collapses whitespace. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	// Casers and transform chains are stateful, so each call builds its own.
	lowered := cases.Lower(language.Turkish).String(s)
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		lowered,
	)
	if err != nil {
		folded = lowered
	}
	folded = strings.Map(foldRune, folded)

	return strings.Join(strings.Fields(folded), " ")
}

// foldRune maps letters without a canonical decomposition.
func foldRune(r rune) rune {
	switch r {
	case 'ı':
		return 'i'
	case 'ø':
		return 'o'
	case 'ł':
		return 'l'
	default:
		return r
	}
}

// Tokenize normalizes s and splits it on anything that is not a letter or digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// plain returns the punctuation-free form used for edit distance.
func plain(s string) string {
	return strings.Join(Tokenize(s), " ")
}

// TokenOverlapScore is the Jaccard ratio of the two token sets: shared
// tokens over the union. 1 only for identical sets.
func TokenOverlapScore(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	shared := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float64(shared) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	tokens := Tokenize(s)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// EditDistanceScore is 1 - levenshtein/maxLen over the normalized,
// punctuation-free strings. 1 only when they are identical.
func EditDistanceScore(a, b string) float64 {
	ca, cb := plain(a), plain(b)
	if ca == "" || cb == "" {
		return 0
	}
	if ca == cb {
		return 1
	}

	maxLen := max(utf8.RuneCountInString(ca), utf8.RuneCountInString(cb))
	dist := levenshtein.ComputeDistance(ca, cb)
	return 1 - float64(dist)/float64(maxLen)
}

// ContainsKeyword reports whether any keyword occurs in text after
// normalization. Keywords of up to three letters must match a whole token.
func ContainsKeyword(text string, keywords []string) bool {
	return len(MatchedKeywords(text, keywords)) > 0
}

// MatchedKeywords returns the keywords found in text, in keyword order.
func MatchedKeywords(text string, keywords []string) []string {
	if text == "" || len(keywords) == 0 {
		return nil
	}

	tokens := Tokenize(text)
	padded := " " + strings.Join(tokens, " ") + " "

	var found []string
	for _, kw := range keywords {
		nk := plain(kw)
		if nk == "" {
			continue
		}
		if utf8.RuneCountInString(nk) <= shortKeywordLen {
			if strings.Contains(padded, " "+nk+" ") {
				found = append(found, kw)
			}
			continue
		}
		if strings.Contains(padded, nk) {
			found = append(found, kw)
		}
	}
	return found
}

// KeywordWeightedScore multiplies base by weight when text contains any of
// keywords, capping at 1. base is clamped to [0,1]; a weight below 1 is
// treated as no boost.
func KeywordWeightedScore(base float64, text string, keywords []string, weight float64) float64 {
	base = min(max(base, 0), 1)
	if weight <= 1 || !ContainsKeyword(text, keywords) {
		return base
	}
	return min(base*weight, 1)
}

// NormalizeCode canonicalizes a procedure code: lowercase, separators
// unified to '.', surrounding separators trimmed.
func NormalizeCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}

	var b strings.Builder
	lastDot := true
	for _, r := range code {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDot = false
		case !lastDot:
			b.WriteByte('.')
			lastDot = true
		}
	}
	return strings.TrimSuffix(b.String(), ".")
}

// CodeSegments splits a normalized code on '.'.
func CodeSegments(code string) []string {
	n := NormalizeCode(code)
	if n == "" {
		return nil
	}
	return strings.Split(n, ".")
}
