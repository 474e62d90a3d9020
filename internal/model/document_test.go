package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagsDecodeVariants(t *testing.T) {
	cases := map[string]struct {
		in   string
		want Tags
	}{
		"array":            {`["curriculum","docente"]`, Tags{"curriculum", "docente"}},
		"fragments":        {`["[", "\"a\"", ",", "\"b\"", "]"]`, Tags{"a", "b"}},
		"stringified":      {`"[\"x\",\"y\"]"`, Tags{"x", "y"}},
		"comma string":     {`"x, y"`, Tags{"x", "y"}},
		"mixed scalars":    {`["a", 2, null]`, Tags{"a", "2"}},
		"broken fragments": {`["[", "a"]`, Tags{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var got Tags
			require.NoError(t, json.Unmarshal([]byte(tc.in), &got))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTagsNull(t *testing.T) {
	got := Tags{"stale"}
	require.NoError(t, json.Unmarshal([]byte(`null`), &got))
	assert.Empty(t, got)
}

func TestTagsRejectsObjects(t *testing.T) {
	var got Tags
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &got))
}

func TestDescriptorDecodeNormalizesTags(t *testing.T) {
	body := `{"id":"d1","title":"Contrato","tags":["[","\"contrato\"",",","\"2024\"","]"],"keywords":null}`
	var d DocumentDescriptor
	require.NoError(t, json.Unmarshal([]byte(body), &d))
	assert.Equal(t, Tags{"contrato", "2024"}, d.Tags)
	assert.Empty(t, d.Keywords)

	out, err := json.Marshal(DocumentDescriptor{ID: "d2"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"tags":[]`)
}

func TestDescriptorNormalize(t *testing.T) {
	d := DocumentDescriptor{Tags: Tags{"[", `"a"`, "]"}, Keywords: Tags{"k", "k"}}
	d.Normalize()
	assert.Equal(t, Tags{"a"}, d.Tags)
	assert.Equal(t, Tags{"k"}, d.Keywords)
}

func TestFileDisplayTitle(t *testing.T) {
	assert.Equal(t, "acta", File{Name: "acta.pdf"}.DisplayTitle())
	assert.Equal(t, "Given", File{Name: "acta.pdf", Title: "Given"}.DisplayTitle())
	assert.Equal(t, ".hidden", File{Name: ".hidden"}.DisplayTitle())
}

func TestSearchQueryDefaultsAndValidation(t *testing.T) {
	q := SearchQuery{Text: "contrato"}.WithDefaults()
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, DefaultPageSize, q.PageSize)
	assert.Equal(t, SortRelevance, q.SortBy)
	assert.Equal(t, SortDesc, q.SortOrder)
	assert.Equal(t, 0, q.Offset())

	q = SearchQuery{Page: 3, PageSize: 500}.WithDefaults()
	assert.Equal(t, MaxPageSize, q.PageSize)
	assert.Equal(t, SortDate, q.SortBy)
	assert.Equal(t, 200, q.Offset())

	err := SearchQuery{SortBy: "colour"}.Validate()
	assert.Equal(t, KindValidation, KindOf(err))
	assert.NoError(t, SearchQuery{SortBy: SortSize, SortOrder: SortAsc}.Validate())
}

func TestSearchResultPageHasMore(t *testing.T) {
	assert.True(t, SearchResultPage{Page: 1, PageSize: 10, Total: 25}.HasMore())
	assert.False(t, SearchResultPage{Page: 3, PageSize: 10, Total: 25}.HasMore())
}

func TestErrorKinds(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("outer: %w", &Error{Kind: KindPayloadTooLarge, Op: "upload", Status: 413, Err: base})
	assert.Equal(t, KindPayloadTooLarge, KindOf(err))
	assert.True(t, KindOf(err).IsUpload())
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "status 413")
	assert.Nil(t, Wrap(KindSearchFailed, "search", nil))
	assert.Equal(t, ErrorKind(""), KindOf(base))
}

func TestDescriptorFillURLs(t *testing.T) {
	d := DocumentDescriptor{ID: "a b"}
	d.FillURLs("http://docs.local/api/")
	assert.Equal(t, "http://docs.local/api/documents/a%20b/download", d.DownloadURL)
	assert.Equal(t, "http://docs.local/api/documents/a%20b/view", d.ViewURL)

	kept := DocumentDescriptor{ID: "d1", ViewURL: "https://cdn/v"}
	kept.FillURLs("http://docs.local")
	assert.Equal(t, "https://cdn/v", kept.ViewURL)
	assert.Equal(t, "http://docs.local/documents/d1/download", kept.DownloadURL)

	var anonymous DocumentDescriptor
	anonymous.FillURLs("http://docs.local")
	assert.Empty(t, anonymous.DownloadURL)
}
