// Package textutil provides the text normalization shared by the identity
// scorer, domain guesser, and menu link matcher.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// genericBusinessWords are stripped when deriving the "core" tokens of a
// business name. Mixed Dutch/English because the source data is.
var genericBusinessWords = map[string]struct{}{
	"restaurant":  {},
	"restaurante": {},
	"ristorante":  {},
	"cafe":        {},
	"café":        {},
	"bistro":      {},
	"brasserie":   {},
	"eetcafe":     {},
	"eethuis":     {},
	"grillroom":   {},
	"pizzeria":    {},
	"snackbar":    {},
	"bar":         {},
	"grill":       {},
	"de":          {},
	"het":         {},
	"een":         {},
	"the":         {},
	"van":         {},
	"bij":         {},
}

// Fold lowercases s and strips diacritical marks ("Café" -> "cafe").
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Tokens splits s into folded alphanumeric tokens.
func Tokens(s string) []string {
	folded := Fold(s)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// CoreTokens returns Tokens(s) minus generic business words. Falls back to
// the full token list when stripping would leave nothing.
func CoreTokens(s string) []string {
	all := Tokens(s)
	core := make([]string, 0, len(all))
	for _, tok := range all {
		if _, generic := genericBusinessWords[tok]; !generic {
			core = append(core, tok)
		}
	}
	if len(core) == 0 {
		return all
	}
	return core
}

// Compact joins the folded alphanumeric runes of s ("De Gouden Leeuw" ->
// "degoudenleeuw").
func Compact(s string) string {
	return strings.Join(Tokens(s), "")
}

// Hyphenated joins the folded tokens of s with hyphens.
func Hyphenated(s string) string {
	return strings.Join(Tokens(s), "-")
}

// TokenOverlap computes the Jaccard overlap of the token sets of a and b
// in [0,1]. Duplicate tokens collapse; empty inputs score zero.
func TokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	shared := 0
	for tok := range setB {
		if _, ok := setA[tok]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float64(shared) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokens(s) {
		set[tok] = struct{}{}
	}
	return set
}

// DigitRun returns the longest run of consecutive digits in s.
func DigitRun(s string) string {
	best, cur := "", strings.Builder{}
	for _, r := range s {
		if unicode.IsDigit(r) {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > len(best) {
			best = cur.String()
		}
		cur.Reset()
	}
	if cur.Len() > len(best) {
		best = cur.String()
	}
	return best
}
