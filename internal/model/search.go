package model

import (
	"time"
)

// SortField selects the ordering of search results.
type SortField string

const (
	SortRelevance SortField = "relevance"
	SortDate      SortField = "date"
	SortSize      SortField = "size"
	SortFilename  SortField = "filename"
)

// SortOrder is asc or desc.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// SearchQuery is one search or listing request. OwnerScope restricts the
// query to a single employee or entity.
type SearchQuery struct {
	Text         string    `json:"text,omitempty"`
	Category     string    `json:"category,omitempty"`
	DocumentType string    `json:"documentType,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	DateFrom     time.Time `json:"dateFrom,omitzero"`
	DateTo       time.Time `json:"dateTo,omitzero"`
	OwnerScope   string    `json:"ownerScope,omitempty"`
	Page         int       `json:"page,omitempty"`
	PageSize     int       `json:"pageSize,omitempty"`
	SortBy       SortField `json:"sortBy,omitempty"`
	SortOrder    SortOrder `json:"sortOrder,omitempty"`
}

// Validate rejects queries the service would refuse.
func (q SearchQuery) Validate() error {
	switch q.SortBy {
	case "", SortRelevance, SortDate, SortSize, SortFilename:
	default:
		return Errorf(KindValidation, "search", "unknown sort field %q", q.SortBy)
	}
	switch q.SortOrder {
	case "", SortAsc, SortDesc:
	default:
		return Errorf(KindValidation, "search", "unknown sort order %q", q.SortOrder)
	}
	if q.Page < 0 || q.PageSize < 0 {
		return Errorf(KindValidation, "search", "page and page size must not be negative")
	}
	if !q.DateFrom.IsZero() && !q.DateTo.IsZero() && q.DateFrom.After(q.DateTo) {
		return Errorf(KindValidation, "search", "dateFrom is after dateTo")
	}
	return nil
}

// WithDefaults fills page, page size and ordering. Empty text sorts by date.
func (q SearchQuery) WithDefaults() SearchQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.SortBy == "" {
		q.SortBy = SortRelevance
		if q.Text == "" {
			q.SortBy = SortDate
		}
	}
	if q.SortOrder == "" {
		q.SortOrder = SortDesc
		if q.SortBy == SortFilename {
			q.SortOrder = SortAsc
		}
	}
	return q
}

// Offset is the zero-based index of the first result on the page.
func (q SearchQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// OwnerInfo is the owner metadata returned by owner-scoped listings.
type OwnerInfo struct {
	ID             string     `json:"id"`
	DocumentCount  int        `json:"documentCount"`
	TotalSizeBytes int64      `json:"totalSize"`
	LastUploadAt   *time.Time `json:"lastUpload,omitempty"`
}

// SearchResultPage is one page of search or listing results.
type SearchResultPage struct {
	Documents  []DocumentDescriptor `json:"documents"`
	Total      int                  `json:"total"`
	TookMillis int64                `json:"took"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"limit"`
	Owner      *OwnerInfo           `json:"employeeInfo,omitempty"`
}

// HasMore reports whether pages after this one exist.
func (p SearchResultPage) HasMore() bool {
	return p.Page*p.PageSize < p.Total
}
