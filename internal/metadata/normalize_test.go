package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTagsWellFormed(t *testing.T) {
	got := NormalizeTags([]string{"curriculum", "docente"})
	assert.Equal(t, []string{"curriculum", "docente"}, got)
}

func TestNormalizeTagsFragmented(t *testing.T) {
	got := NormalizeTags([]string{"[", `"a"`, ",", `"b"`, "]"})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestNormalizeTagsFragmentsWithoutSeparators(t *testing.T) {
	got := NormalizeTags([]string{`["contrato"`, `"2024"]`})
	assert.Equal(t, []string{"contrato", "2024"}, got)
}

func TestNormalizeTagsSingleStringifiedArray(t *testing.T) {
	got := NormalizeTags([]string{`["nomina","horas extra"]`})
	assert.Equal(t, []string{"nomina", "horas extra"}, got)
}

func TestNormalizeTagsUnparseableFragmentsGiveEmpty(t *testing.T) {
	got := NormalizeTags([]string{"[", "a", "b"})
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestNormalizeTagsFiltersEmptyAndDuplicates(t *testing.T) {
	got := NormalizeTags([]string{"a", "", "  ", "b", "a"})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestNormalizeTagsNilInput(t *testing.T) {
	assert.Equal(t, []string{}, NormalizeTags(nil))
}

func TestNormalizeTagsIdempotent(t *testing.T) {
	inputs := [][]string{
		nil,
		{},
		{"curriculum", "docente"},
		{"[", `"a"`, ",", `"b"`, "]"},
		{"[", `"[x]"`, ",", `"y"`, "]"},
		{"[broken"},
		{" padded ", "padded"},
		{"x", "[not-first]"},
		{`[1, true, "z", null]`},
		{"", `["a","b"]`},
		{" ", "[x"},
		{"  ", "[", `"c"`, "]"},
	}
	for _, in := range inputs {
		once := NormalizeTags(in)
		assert.Equal(t, once, NormalizeTags(once), "input %q", in)
	}
}

func TestNormalizeTagsSkipsLeadingBlanks(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, NormalizeTags([]string{"", `["a","b"]`}))
	assert.Equal(t, []string{}, NormalizeTags([]string{" ", "[x"}))
}

func TestIsFragmented(t *testing.T) {
	assert.True(t, IsFragmented([]string{"[", "]"}))
	assert.True(t, IsFragmented([]string{"", " [", "]"}))
	assert.False(t, IsFragmented([]string{"a"}))
	assert.False(t, IsFragmented(nil))
}
