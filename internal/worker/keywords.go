package worker

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopwords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`
		para como sobre entre desde hasta donde cuando este esta estos estas
		that this with from have were been their there which will would
		about into than then them they what your una unos unas del los las
		por con sin ser son fue han hay más pero sus al
	`) {
		stopwords[w] = true
	}
}

// Keywords returns up to n terms of text ranked by frequency. Terms shorter
// than four runes, numbers and common stopwords are ignored; ties are broken
// alphabetically.
func Keywords(text string, n int) []string {
	counts := make(map[string]int)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if utf8.RuneCountInString(w) < 4 || stopwords[w] || isNumber(w) {
			continue
		}
		counts[w]++
	}
	out := make([]string, 0, len(counts))
	for w := range counts {
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
