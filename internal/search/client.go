// Package search queries the document service: cross-entity and
// owner-scoped full-text search, owner listings, type-ahead suggestions and
// similar documents. The client holds no per-query state.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dharsanguruparan/attachvault/internal/metrics"
	"github.com/dharsanguruparan/attachvault/internal/model"
)

// DateLayout is the wire format for dateFrom/dateTo.
const DateLayout = "2006-01-02"

const defaultSuggestLimit = 8

// Client is the search client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }
func WithToken(token string) Option { return func(c *Client) { c.token = token } }
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

// New creates a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("document service url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Search runs q. A query with OwnerScope goes to the owner-scoped endpoint
// and carries owner metadata in the result; otherwise it searches across all
// owners.
func (c *Client) Search(ctx context.Context, q model.SearchQuery) (*model.SearchResultPage, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q = q.WithDefaults()
	params := queryParams(q)
	kind := "general"
	endpoint := c.baseURL + "/search"
	if q.OwnerScope != "" {
		kind = "owner"
		endpoint = c.baseURL + "/employees/" + url.PathEscape(q.OwnerScope) + "/documents/search"
		params.Del("ownerRef")
	}
	page, err := c.fetchPage(ctx, kind, endpoint, params)
	if err != nil {
		return nil, err
	}
	if page.Page == 0 {
		page.Page = q.Page
	}
	if page.PageSize == 0 {
		page.PageSize = q.PageSize
	}
	return page, nil
}

// ListOwner lists an owner's documents without a text query. Only paging and
// ordering fields of q are used.
func (c *Client) ListOwner(ctx context.Context, owner string, q model.SearchQuery) (*model.SearchResultPage, error) {
	if owner == "" {
		return nil, model.Errorf(model.KindValidation, "list documents", "owner is required")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q = q.WithDefaults()
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.PageSize))
	params.Set("sortBy", string(q.SortBy))
	params.Set("sortOrder", string(q.SortOrder))
	page, err := c.fetchPage(ctx, "list", c.baseURL+"/employees/"+url.PathEscape(owner)+"/documents", params)
	if err != nil {
		return nil, err
	}
	if page.Page == 0 {
		page.Page = q.Page
	}
	if page.PageSize == 0 {
		page.PageSize = q.PageSize
	}
	return page, nil
}

// Suggest returns type-ahead completions for prefix. A blank prefix yields
// no suggestions without a request.
func (c *Client) Suggest(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []string{}, nil
	}
	params := url.Values{}
	params.Set("q", prefix)
	params.Set("limit", strconv.Itoa(defaultSuggestLimit))
	var body struct {
		Suggestions *[]string `json:"suggestions"`
	}
	if err := c.getJSON(ctx, "suggest", c.baseURL+"/search/suggest?"+params.Encode(), &body); err != nil {
		return nil, err
	}
	if body.Suggestions == nil {
		return nil, model.Errorf(model.KindMalformedResponse, "suggest", "response has no suggestions field")
	}
	out := make([]string, 0, len(*body.Suggestions))
	for _, s := range *body.Suggestions {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// FindSimilar returns documents related to documentID.
func (c *Client) FindSimilar(ctx context.Context, documentID string) ([]model.DocumentDescriptor, error) {
	if documentID == "" {
		return nil, model.Errorf(model.KindValidation, "similar", "document id is required")
	}
	var body struct {
		Documents *[]model.DocumentDescriptor `json:"documents"`
	}
	if err := c.getJSON(ctx, "similar", c.baseURL+"/documents/"+url.PathEscape(documentID)+"/similar", &body); err != nil {
		return nil, err
	}
	if body.Documents == nil {
		return nil, model.Errorf(model.KindMalformedResponse, "similar", "response has no documents field")
	}
	docs := *body.Documents
	c.complete(docs)
	return docs, nil
}

// complete normalizes tags and synthesizes missing download and view URLs.
func (c *Client) complete(docs []model.DocumentDescriptor) {
	for i := range docs {
		docs[i].Normalize()
		docs[i].FillURLs(c.baseURL)
	}
}

// pageEnvelope accepts both response shapes: the general
// {documents, total, took} and the owner-scoped
// {documents, pagination{page,limit,total}, meta{took, employeeInfo}}.
type pageEnvelope struct {
	Documents  *[]model.DocumentDescriptor `json:"documents"`
	Total      *int                        `json:"total"`
	Took       int64                       `json:"took"`
	Page       int                         `json:"page"`
	Limit      int                         `json:"limit"`
	Pagination *struct {
		Page  int `json:"page"`
		Limit int `json:"limit"`
		Total int `json:"total"`
	} `json:"pagination"`
	Meta *struct {
		Took         int64            `json:"took"`
		EmployeeInfo *model.OwnerInfo `json:"employeeInfo"`
	} `json:"meta"`
}

func (c *Client) fetchPage(ctx context.Context, kind, endpoint string, params url.Values) (*model.SearchResultPage, error) {
	start := time.Now()
	var env pageEnvelope
	if err := c.getJSON(ctx, kind, endpoint+"?"+params.Encode(), &env); err != nil {
		return nil, err
	}
	if env.Documents == nil {
		c.metrics.ObserveSearch(kind, "malformed")
		return nil, model.Errorf(model.KindMalformedResponse, kind+" search", "response has no documents field")
	}
	docs := *env.Documents
	c.complete(docs)
	page := &model.SearchResultPage{
		Documents:  docs,
		TookMillis: env.Took,
		Page:       env.Page,
		PageSize:   env.Limit,
	}
	switch {
	case env.Pagination != nil:
		page.Total = env.Pagination.Total
		page.Page = env.Pagination.Page
		page.PageSize = env.Pagination.Limit
	case env.Total != nil:
		page.Total = *env.Total
	default:
		page.Total = len(docs)
	}
	if env.Meta != nil {
		if env.Meta.Took != 0 {
			page.TookMillis = env.Meta.Took
		}
		page.Owner = env.Meta.EmployeeInfo
	}
	c.logger.Debug("search completed", "kind", kind, "results", len(docs), "total", page.Total, "took_ms", page.TookMillis, "elapsed", time.Since(start))
	return page, nil
}

func (c *Client) getJSON(ctx context.Context, kind, rawURL string, out any) error {
	op := kind + " search"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return model.Wrap(model.KindSearchFailed, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveSearch(kind, "network_error")
		return model.Wrap(model.KindSearchFailed, op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.ObserveSearch(kind, "network_error")
		return model.Wrap(model.KindSearchFailed, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.metrics.ObserveSearch(kind, "rejected")
		msg := strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return &model.Error{Kind: model.KindSearchFailed, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("server returned %s: %s", resp.Status, msg)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.metrics.ObserveSearch(kind, "malformed")
		return &model.Error{Kind: model.KindMalformedResponse, Op: op, Status: resp.StatusCode, Err: err}
	}
	c.metrics.ObserveSearch(kind, "ok")
	return nil
}

func queryParams(q model.SearchQuery) url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("text", q.Text)
	set("category", q.Category)
	set("documentType", q.DocumentType)
	if len(q.Tags) > 0 {
		v.Set("tags", strings.Join(q.Tags, ","))
	}
	if !q.DateFrom.IsZero() {
		v.Set("dateFrom", q.DateFrom.Format(DateLayout))
	}
	if !q.DateTo.IsZero() {
		v.Set("dateTo", q.DateTo.Format(DateLayout))
	}
	set("ownerRef", q.OwnerScope)
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.PageSize))
	set("sortBy", string(q.SortBy))
	set("sortOrder", string(q.SortOrder))
	return v
}
