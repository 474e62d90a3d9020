package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dharsanguruparan/attachvault/internal/model"
)

const dateLayout = "2006-01-02"

// parseQuery reads the search parameters the clients send.
func parseQuery(v url.Values) (model.SearchQuery, error) {
	q := model.SearchQuery{
		Text:         strings.TrimSpace(first(v, "text", "q")),
		Category:     v.Get("category"),
		DocumentType: v.Get("documentType"),
		OwnerScope:   v.Get("ownerRef"),
		SortBy:       model.SortField(v.Get("sortBy")),
		SortOrder:    model.SortOrder(v.Get("sortOrder")),
	}
	if raw := v.Get("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				q.Tags = append(q.Tags, t)
			}
		}
	}
	var err error
	if q.DateFrom, err = parseDate(v.Get("dateFrom")); err != nil {
		return q, fmt.Errorf("dateFrom: %w", err)
	}
	if q.DateTo, err = parseDate(v.Get("dateTo")); err != nil {
		return q, fmt.Errorf("dateTo: %w", err)
	}
	if q.Page, err = parseInt(v.Get("page")); err != nil {
		return q, fmt.Errorf("page: %w", err)
	}
	if q.PageSize, err = parseInt(first(v, "limit", "pageSize")); err != nil {
		return q, fmt.Errorf("limit: %w", err)
	}
	return q, nil
}

func first(v url.Values, keys ...string) string {
	for _, k := range keys {
		if s := v.Get(k); s != "" {
			return s
		}
	}
	return ""
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
