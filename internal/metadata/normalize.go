// Package metadata repairs tag and keyword lists returned by the document
// service. The service has been seen to serialize a JSON array and then split
// the resulting string into list elements, e.g. ["[", "\"a\"", ",", "\"b\"", "]"].
package metadata

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizeTags returns a clean, de-duplicated list of non-empty tags.
//
// When the first non-blank element contains a literal '[' the list is
// treated as the fragments of a stringified JSON array: the elements are
// concatenated and parsed again, and the result is an empty list if that
// fails too. NormalizeTags never panics and
// NormalizeTags(NormalizeTags(x)) equals NormalizeTags(x).
func NormalizeTags(raw []string) []string {
	parts := nonBlank(raw)
	if len(parts) == 0 {
		return []string{}
	}
	if !strings.Contains(parts[0], "[") {
		// parts[0] leads the output, so a second pass takes this path again.
		return clean(parts, false)
	}
	parsed, ok := reparse(strings.Join(parts, ""))
	if !ok {
		// Fragments sometimes lose the separators between quoted items.
		parsed, ok = reparse(strings.Join(parts, ","))
	}
	if !ok {
		return []string{}
	}
	// Bracketed leftovers would send a second pass down the fragment path.
	return clean(parsed, true)
}

// IsFragmented reports whether raw looks like a split JSON array.
func IsFragmented(raw []string) bool {
	parts := nonBlank(raw)
	return len(parts) > 0 && strings.Contains(parts[0], "[")
}

func nonBlank(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func reparse(s string) ([]string, bool) {
	var values []any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &values); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		switch tv := v.(type) {
		case string:
			out = append(out, tv)
		case float64, bool:
			out = append(out, fmt.Sprint(tv))
		}
	}
	return out, true
}

func clean(in []string, dropBrackets bool) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, tag := range in {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if dropBrackets && strings.ContainsAny(tag, "[]") {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
