// Package docstore is the client for the document storage and search service.
// It uploads files with their metadata, resolves download and view URLs and
// transfers bytes through an ordered chain of download strategies.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/dharsanguruparan/attachvault/internal/metrics"
	"github.com/dharsanguruparan/attachvault/internal/model"
)

// Client talks to the document service REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
	navigator  Navigator
	saver      Saver
	strategies []Strategy
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// WithNavigator enables direct navigation for downloads and is required by View.
func WithNavigator(n Navigator) Option { return func(c *Client) { c.navigator = n } }

// WithSaver sets where buffered downloads are written.
func WithSaver(s Saver) Option { return func(c *Client) { c.saver = s } }

// WithStrategies replaces the default download chain.
func WithStrategies(s ...Strategy) Option { return func(c *Client) { c.strategies = s } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

// New creates a client for the service rooted at baseURL. Unless overridden,
// downloads try direct navigation first and a buffered fetch second.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse document service url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("document service url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: http.DefaultClient,
		saver:      DirSaver{Dir: "."},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.strategies == nil {
		c.strategies = []Strategy{DirectNavigation(c.navigator), BufferedFetch(c)}
	}
	return c, nil
}

// UploadRequest is one file plus the metadata the service indexes it under.
type UploadRequest struct {
	File         model.File
	OwnerRef     string
	Title        string
	Description  string
	Category     string
	DocumentType string
	Tags         []string
}

// Upload sends the file to POST /documents and returns the stored
// descriptor. The MIME allow-list is the caller's concern; empty files are
// rejected here before any network call.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (model.DocumentDescriptor, error) {
	const op = "upload"
	if len(req.File.Data) == 0 {
		return model.DocumentDescriptor{}, model.Errorf(model.KindValidation, op, "file %q is empty", req.File.Name)
	}
	if req.File.Name == "" {
		return model.DocumentDescriptor{}, model.Errorf(model.KindValidation, op, "file name is required")
	}
	if req.OwnerRef == "" {
		return model.DocumentDescriptor{}, model.Errorf(model.KindValidation, op, "owner reference is required")
	}

	body, contentType, err := encodeUpload(req)
	if err != nil {
		return model.DocumentDescriptor{}, model.Wrap(model.KindUploadFailed, op, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("documents"), body)
	if err != nil {
		return model.DocumentDescriptor{}, model.Wrap(model.KindUploadFailed, op, err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveUpload("network_error")
		return model.DocumentDescriptor{}, model.Wrap(model.KindUploadFailed, op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.ObserveUpload("network_error")
		return model.DocumentDescriptor{}, model.Wrap(model.KindUploadFailed, op, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		c.metrics.ObserveUpload("too_large")
		return model.DocumentDescriptor{}, &model.Error{Kind: model.KindPayloadTooLarge, Op: op, Status: resp.StatusCode, Err: statusError(resp, data)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.ObserveUpload("rejected")
		return model.DocumentDescriptor{}, &model.Error{Kind: model.KindUploadFailed, Op: op, Status: resp.StatusCode, Err: statusError(resp, data)}
	}
	doc, err := decodeDescriptor(data)
	if err != nil {
		c.metrics.ObserveUpload("malformed")
		return model.DocumentDescriptor{}, &model.Error{Kind: model.KindMalformedResponse, Op: op, Status: resp.StatusCode, Err: err}
	}
	c.complete(&doc)
	c.metrics.ObserveUpload("ok")
	c.logger.Debug("document uploaded", "document_id", doc.ID, "owner", req.OwnerRef, "file", req.File.Name, "bytes", len(req.File.Data))
	return doc, nil
}

// Get fetches one descriptor from GET /documents/{id}.
func (c *Client) Get(ctx context.Context, id string) (model.DocumentDescriptor, error) {
	const op = "get document"
	if id == "" {
		return model.DocumentDescriptor{}, model.Errorf(model.KindValidation, op, "document id is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("documents", id), nil)
	if err != nil {
		return model.DocumentDescriptor{}, model.Wrap(model.KindSearchFailed, op, err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.DocumentDescriptor{}, model.Wrap(model.KindSearchFailed, op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.DocumentDescriptor{}, model.Wrap(model.KindSearchFailed, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.DocumentDescriptor{}, &model.Error{Kind: model.KindSearchFailed, Op: op, Status: resp.StatusCode, Err: statusError(resp, data)}
	}
	doc, err := decodeDescriptor(data)
	if err != nil {
		return model.DocumentDescriptor{}, &model.Error{Kind: model.KindMalformedResponse, Op: op, Err: err}
	}
	c.complete(&doc)
	return doc, nil
}

// complete normalizes tags and synthesizes missing URLs.
func (c *Client) complete(doc *model.DocumentDescriptor) {
	doc.Normalize()
	doc.FillURLs(c.baseURL.String())
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL.String() + "/" + strings.Join(escaped, "/")
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeUpload(req UploadRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := []struct{ name, value string }{
		{"ownerRef", req.OwnerRef},
		{"title", firstNonEmpty(req.Title, req.File.DisplayTitle())},
		{"description", firstNonEmpty(req.Description, req.File.Description)},
		{"category", req.Category},
		{"documentType", req.DocumentType},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.name, err)
		}
	}
	if len(req.Tags) > 0 {
		tags, err := json.Marshal(req.Tags)
		if err != nil {
			return nil, "", fmt.Errorf("encode tags: %w", err)
		}
		if err := w.WriteField("tags", string(tags)); err != nil {
			return nil, "", fmt.Errorf("write field tags: %w", err)
		}
	}
	mimeType := req.File.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(req.File.Name)))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(req.File.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// decodeDescriptor accepts a bare descriptor or one wrapped in a
// {"document": ...} or {"data": ...} envelope.
func decodeDescriptor(data []byte) (model.DocumentDescriptor, error) {
	var envelope struct {
		Document *model.DocumentDescriptor `json:"document"`
		Data     *model.DocumentDescriptor `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return model.DocumentDescriptor{}, fmt.Errorf("decode descriptor: %w", err)
	}
	var doc model.DocumentDescriptor
	switch {
	case envelope.Document != nil:
		doc = *envelope.Document
	case envelope.Data != nil:
		doc = *envelope.Data
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return model.DocumentDescriptor{}, fmt.Errorf("decode descriptor: %w", err)
		}
	}
	if doc.ID == "" {
		return model.DocumentDescriptor{}, fmt.Errorf("descriptor has no id")
	}
	return doc, nil
}

func statusError(resp *http.Response, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return fmt.Errorf("server returned %s: %s", resp.Status, msg)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
