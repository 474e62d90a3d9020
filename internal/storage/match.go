package storage

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const (
	markOpen  = "<mark>"
	markClose = "</mark>"
)

type span struct{ start, end int }

// words returns the byte spans of the letter/digit runs in s.
func words(s string) []span {
	var out []span
	start := -1
	for i, r := range s {
		isWord := unicode.IsLetter(r) || unicode.IsDigit(r)
		switch {
		case isWord && start < 0:
			start = i
		case !isWord && start >= 0:
			out = append(out, span{start, i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, span{start, len(s)})
	}
	return out
}

// terms lowercases s and splits it into words.
func terms(s string) []string {
	lower := strings.ToLower(s)
	spans := words(lower)
	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, lower[sp.start:sp.end])
	}
	return out
}

// termMatches reports whether word satisfies the query term: a prefix match,
// or an edit distance of 1 (2 for long terms) for terms of four or more runes.
func termMatches(term, word string) bool {
	if strings.HasPrefix(word, term) {
		return true
	}
	n := utf8.RuneCountInString(term)
	if n < 4 {
		return false
	}
	maxDist := 1
	if n >= 8 {
		maxDist = 2
	}
	diff := utf8.RuneCountInString(word) - n
	if diff > maxDist || -diff > maxDist {
		return false
	}
	return levenshtein.ComputeDistance(term, word) <= maxDist
}

func anyMatch(term string, fieldWords []string) (matched, exact bool) {
	for _, w := range fieldWords {
		if w == term {
			return true, true
		}
		if termMatches(term, w) {
			matched = true
		}
	}
	return matched, false
}

func matchesAny(word string, qterms []string) bool {
	for _, t := range qterms {
		if termMatches(t, word) {
			return true
		}
	}
	return false
}

// highlight wraps every word of text that matches a query term in <mark>.
func highlight(text string, qterms []string) (string, bool) {
	var b strings.Builder
	last := 0
	found := false
	for _, sp := range words(text) {
		if !matchesAny(strings.ToLower(text[sp.start:sp.end]), qterms) {
			continue
		}
		found = true
		b.WriteString(text[last:sp.start])
		b.WriteString(markOpen)
		b.WriteString(text[sp.start:sp.end])
		b.WriteString(markClose)
		last = sp.end
	}
	if !found {
		return text, false
	}
	b.WriteString(text[last:])
	return b.String(), true
}

// fragment cuts a window of roughly radius bytes on each side of the first
// match in text and highlights it.
func fragment(text string, qterms []string, radius int) (string, bool) {
	for _, sp := range words(text) {
		if !matchesAny(strings.ToLower(text[sp.start:sp.end]), qterms) {
			continue
		}
		from := max(sp.start-radius, 0)
		for from > 0 && !utf8.RuneStart(text[from]) {
			from--
		}
		to := min(sp.end+radius, len(text))
		for to < len(text) && !utf8.RuneStart(text[to]) {
			to++
		}
		window, _ := highlight(strings.TrimSpace(text[from:to]), qterms)
		if from > 0 {
			window = "..." + window
		}
		if to < len(text) {
			window += "..."
		}
		return window, true
	}
	return "", false
}

// similarity is 1 minus the normalized edit distance of a and b.
func similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(n)
}
