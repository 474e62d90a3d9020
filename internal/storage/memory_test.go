package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/attachvault/internal/model"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T) *MemoryIndex {
	t.Helper()
	idx := NewMemoryIndex()
	docs := []Document{
		{DocumentDescriptor: model.DocumentDescriptor{
			ID: "d1", Title: "Contrato de sustitución", OriginalName: "contrato.pdf", MimeType: "application/pdf",
			SizeBytes: 300, OwnerRef: "emp-1", Category: "substitution", DocumentType: "contract",
			Tags: model.Tags{"urgent", "2024"}, UploadedAt: day,
		}, Content: "El presente contrato establece la sustitución temporal del puesto."},
		{DocumentDescriptor: model.DocumentDescriptor{
			ID: "d2", Title: "Horas extra marzo", OriginalName: "horas.pdf", MimeType: "application/pdf",
			SizeBytes: 100, OwnerRef: "emp-1", Category: "overtime", DocumentType: "timesheet",
			Tags: model.Tags{"2024"}, UploadedAt: day.Add(24 * time.Hour),
		}},
		{DocumentDescriptor: model.DocumentDescriptor{
			ID: "d3", Title: "Contrato anexo", OriginalName: "anexo.docx", MimeType: "application/msword",
			SizeBytes: 200, OwnerRef: "emp-2", Category: "substitution", DocumentType: "contract",
			Tags: model.Tags{"urgent"}, UploadedAt: day.Add(48 * time.Hour),
		}},
	}
	for i := range docs {
		require.NoError(t, idx.Create(context.Background(), &docs[i]))
	}
	return idx
}

func TestCreateAndLifecycle(t *testing.T) {
	idx := seed(t)
	ctx := context.Background()

	doc, err := idx.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, doc.Status)
	assert.Error(t, idx.Create(ctx, &Document{DocumentDescriptor: model.DocumentDescriptor{ID: "d1"}}))

	require.NoError(t, idx.MarkProcessing(ctx, "d1"))
	require.NoError(t, idx.MarkIndexed(ctx, "d1", "texto", []string{"contrato", "contrato", " puesto "}))
	doc, err = idx.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, doc.Status)
	assert.Equal(t, model.Tags{"contrato", "puesto"}, doc.Keywords)

	require.NoError(t, idx.MarkFailed(ctx, "d2", "bad pdf"))
	doc, err = idx.Get(ctx, "d2")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, doc.Status)
	assert.Equal(t, "bad pdf", doc.Message)

	_, err = idx.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, idx.MarkFailed(ctx, "nope", ""), ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	idx := seed(t)
	doc, err := idx.Get(context.Background(), "d1")
	require.NoError(t, err)
	doc.Tags[0] = "changed"
	again, err := idx.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "urgent", again.Tags[0])
}

func search(t *testing.T, idx *MemoryIndex, q model.SearchQuery) *model.SearchResultPage {
	t.Helper()
	page, err := idx.Search(context.Background(), q.WithDefaults())
	require.NoError(t, err)
	return page
}

func ids(docs []model.DocumentDescriptor) []string { return model.DocumentIDs(docs) }

func TestSearchText(t *testing.T) {
	idx := seed(t)

	page := search(t, idx, model.SearchQuery{Text: "contrato"})
	assert.Equal(t, 2, page.Total)
	assert.ElementsMatch(t, []string{"d1", "d3"}, ids(page.Documents))
	assert.Equal(t, "d1", page.Documents[0].ID, "content match ranks d1 first")
	assert.Contains(t, page.Documents[0].Highlights["title"][0], "<mark>Contrato</mark>")
	assert.Contains(t, page.Documents[0].Highlights["content"][0], "<mark>contrato</mark>")
	assert.Positive(t, page.Documents[0].Score)

	fuzzy := search(t, idx, model.SearchQuery{Text: "contrado"})
	assert.Equal(t, 2, fuzzy.Total, "one edit away still matches")

	prefix := search(t, idx, model.SearchQuery{Text: "hor"})
	assert.Equal(t, []string{"d2"}, ids(prefix.Documents))

	all := search(t, idx, model.SearchQuery{Text: "contrato anexo"})
	assert.Equal(t, []string{"d3"}, ids(all.Documents), "every term must match")

	none := search(t, idx, model.SearchQuery{Text: "zzz"})
	assert.Zero(t, none.Total)
	assert.NotNil(t, none.Documents)
}

func TestSearchFilters(t *testing.T) {
	idx := seed(t)

	assert.Equal(t, []string{"d1", "d3"}, ids(search(t, idx, model.SearchQuery{Category: "SUBSTITUTION", SortBy: model.SortDate, SortOrder: model.SortAsc}).Documents))
	assert.Equal(t, []string{"d2"}, ids(search(t, idx, model.SearchQuery{DocumentType: "timesheet"}).Documents))
	assert.Equal(t, []string{"d1"}, ids(search(t, idx, model.SearchQuery{Tags: []string{"urgent", "2024"}}).Documents))
	assert.Equal(t, []string{"d3"}, ids(search(t, idx, model.SearchQuery{OwnerScope: "emp-2"}).Documents))

	ranged := search(t, idx, model.SearchQuery{DateFrom: day.Add(24 * time.Hour), DateTo: day.Add(24 * time.Hour)})
	assert.Equal(t, []string{"d2"}, ids(ranged.Documents), "date-only upper bound covers the whole day")
}

func TestSearchSortAndPaging(t *testing.T) {
	idx := seed(t)

	bySize := search(t, idx, model.SearchQuery{SortBy: model.SortSize, SortOrder: model.SortAsc})
	assert.Equal(t, []string{"d2", "d3", "d1"}, ids(bySize.Documents))

	byName := search(t, idx, model.SearchQuery{SortBy: model.SortFilename})
	assert.Equal(t, []string{"d3", "d1", "d2"}, ids(byName.Documents))

	byDate := search(t, idx, model.SearchQuery{})
	assert.Equal(t, []string{"d3", "d2", "d1"}, ids(byDate.Documents), "no text sorts newest first")

	paged := search(t, idx, model.SearchQuery{Page: 2, PageSize: 2})
	assert.Equal(t, 3, paged.Total)
	assert.Equal(t, []string{"d1"}, ids(paged.Documents))
	assert.False(t, paged.HasMore())

	past := search(t, idx, model.SearchQuery{Page: 5, PageSize: 2})
	assert.Empty(t, past.Documents)
}

func TestSuggest(t *testing.T) {
	idx := seed(t)
	got, err := idx.Suggest(context.Background(), "con", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Contrato anexo", "Contrato de sustitución"}, got)

	got, err = idx.Suggest(context.Background(), "urg", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent"}, got)

	got, err = idx.Suggest(context.Background(), "  ", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSuggestLimit(t *testing.T) {
	idx := NewMemoryIndex()
	for i := 0; i < 12; i++ {
		doc := &Document{DocumentDescriptor: model.DocumentDescriptor{ID: fmt.Sprint(i), Title: fmt.Sprintf("Informe %02d", i)}}
		require.NoError(t, idx.Create(context.Background(), doc))
	}
	got, err := idx.Suggest(context.Background(), "inf", 0)
	require.NoError(t, err)
	assert.Len(t, got, defaultSuggestLimit)
	for _, s := range got {
		assert.True(t, strings.HasPrefix(s, "Informe"))
	}
}

func TestSimilar(t *testing.T) {
	idx := seed(t)
	got, err := idx.Similar(context.Background(), "d1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "d3", got[0].ID)
	assert.NotContains(t, ids(got), "d1")

	_, err = idx.Similar(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOwnerStats(t *testing.T) {
	idx := seed(t)
	info, err := idx.OwnerStats(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, info.DocumentCount)
	assert.Equal(t, int64(400), info.TotalSizeBytes)
	require.NotNil(t, info.LastUploadAt)
	assert.True(t, info.LastUploadAt.Equal(day.Add(24*time.Hour)))

	empty, err := idx.OwnerStats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.DocumentCount)
	assert.Nil(t, empty.LastUploadAt)
}

func TestHighlightHelpers(t *testing.T) {
	got, ok := highlight("Acta administrativa", []string{"acta"})
	require.True(t, ok)
	assert.Equal(t, "<mark>Acta</mark> administrativa", got)

	_, ok = highlight("nada", []string{"acta"})
	assert.False(t, ok)

	long := strings.Repeat("relleno ", 30) + "objetivo" + strings.Repeat(" relleno", 30)
	frag, ok := fragment(long, []string{"objetivo"}, 20)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(frag, "..."))
	assert.True(t, strings.HasSuffix(frag, "..."))
	assert.Contains(t, frag, "<mark>objetivo</mark>")

	assert.True(t, termMatches("contrato", "contratos"))
	assert.False(t, termMatches("con", "cin"))
}

func TestMemoryBlobs(t *testing.T) {
	b := NewMemoryBlobs()
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "k", strings.NewReader("hello"), 5, "text/plain"))
	assert.Error(t, b.Put(ctx, "bad", strings.NewReader("hello"), 3, "text/plain"))

	rc, err := b.Open(ctx, "k")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = b.Open(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
