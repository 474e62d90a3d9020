// Package primary is the HTTP client for the primary record store, the CRUD
// backend that owns substitutions, overtime records and administrative acts.
package primary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/dharsanguruparan/attachvault/internal/model"
)

// Entity kinds that accept attachments. They double as collection paths.
const (
	KindSubstitution      = "substitutions"
	KindOvertime          = "overtime"
	KindAdministrativeAct = "administrative-acts"
)

// Kinds lists every entity kind that accepts attachments.
var Kinds = []string{KindSubstitution, KindOvertime, KindAdministrativeAct}

// Client talks to the primary store.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }
func WithToken(token string) Option { return func(c *Client) { c.token = token } }
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// New creates a client for the store rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("primary store url %q must be absolute", baseURL)
	}
	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// CreateEntity POSTs payload to /{kind} and returns the new record's id. The
// store may answer {"id": ...} or {"data": {"id": ...}}, with a string or
// numeric id.
func (c *Client) CreateEntity(ctx context.Context, kind string, payload map[string]any) (string, error) {
	const op = "create entity"
	if kind == "" {
		return "", model.Errorf(model.KindValidation, op, "entity kind is required")
	}
	data, status, err := c.post(ctx, c.baseURL+"/"+url.PathEscape(kind), payload)
	if err != nil {
		return "", &model.Error{Kind: model.KindCreateParentFailed, Op: op, Status: status, Err: err}
	}
	id, err := decodeID(data)
	if err != nil {
		return "", &model.Error{Kind: model.KindMalformedResponse, Op: op, Status: status, Err: err}
	}
	c.logger.Debug("entity created", "kind", kind, "id", id)
	return id, nil
}

// AttachDocuments registers docs on record id in one batch call to
// POST /{kind}/{id}/documents.
func (c *Client) AttachDocuments(ctx context.Context, kind, id string, docs []model.DocumentDescriptor) error {
	const op = "attach documents"
	if kind == "" || id == "" {
		return model.Errorf(model.KindValidation, op, "entity kind and id are required")
	}
	if docs == nil {
		docs = []model.DocumentDescriptor{}
	}
	body := map[string]any{
		"documentIds": model.DocumentIDs(docs),
		"documents":   docs,
	}
	endpoint := c.baseURL + "/" + url.PathEscape(kind) + "/" + url.PathEscape(id) + "/documents"
	if _, status, err := c.post(ctx, endpoint, body); err != nil {
		return &model.Error{Kind: model.KindRegisterDocumentsFailed, Op: op, Status: status, Err: err}
	}
	c.logger.Debug("documents attached", "kind", kind, "id", id, "count", len(docs))
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, int, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, fmt.Errorf("server error: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, resp.StatusCode, nil
}

func decodeID(data []byte) (string, error) {
	var resp struct {
		ID   json.RawMessage `json:"id"`
		Data *struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	raw := resp.ID
	if len(raw) == 0 && resp.Data != nil {
		raw = resp.Data.ID
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("response has no id")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("response has an empty id")
		}
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("id is neither string nor number: %s", raw)
	}
	return n.String(), nil
}
