package search

import (
	"context"

	"github.com/dharsanguruparan/attachvault/internal/model"
)

// Searcher is the part of Client an Accumulator needs.
type Searcher interface {
	Search(ctx context.Context, q model.SearchQuery) (*model.SearchResultPage, error)
}

// Accumulator implements "load more" on the caller's side: each LoadMore
// re-issues the query for the next page and appends the results.
type Accumulator struct {
	searcher Searcher
	query    model.SearchQuery
	docs     []model.DocumentDescriptor
	total    int
	loaded   bool
	drained  bool
}

// NewAccumulator starts at q's page (default 1).
func NewAccumulator(s Searcher, q model.SearchQuery) *Accumulator {
	q = q.WithDefaults()
	return &Accumulator{searcher: s, query: q}
}

// LoadMore fetches the next page. The accumulated list is left unchanged when
// the call fails.
func (a *Accumulator) LoadMore(ctx context.Context) (*model.SearchResultPage, error) {
	q := a.query
	if a.loaded {
		q.Page++
	}
	page, err := a.searcher.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	a.query = q
	a.loaded = true
	a.total = page.Total
	a.docs = append(a.docs, page.Documents...)
	a.drained = len(page.Documents) == 0
	return page, nil
}

// Documents returns everything loaded so far.
func (a *Accumulator) Documents() []model.DocumentDescriptor { return a.docs }

// Total is the total reported by the last page.
func (a *Accumulator) Total() int { return a.total }

// HasMore reports whether another LoadMore can return results. It is false
// once a page comes back empty, whatever the reported total.
func (a *Accumulator) HasMore() bool {
	return !a.loaded || (!a.drained && len(a.docs) < a.total)
}
