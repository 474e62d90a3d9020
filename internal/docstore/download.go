package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dharsanguruparan/attachvault/internal/model"
)

// ErrTryNext is returned by a Strategy that cannot run in the current
// environment; the chain moves on without counting it as a failure.
var ErrTryNext = errors.New("docstore: strategy unavailable")

// Target is what a download strategy works on.
type Target struct {
	DocumentID string
	URL        string
}

// Result describes a completed download. Filename and Path are empty when the
// transfer was handed to a Navigator.
type Result struct {
	Strategy    string
	URL         string
	Filename    string
	Path        string
	ContentType string
	Size        int64
}

// Strategy is one way of getting a document to the user.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, t Target) (*Result, error)
}

// Download runs the strategy chain for documentID, preferring providedURL
// over a constructed one. Each strategy runs only when the previous one was
// unavailable or failed; exhausting the chain is a download_failed error.
func (c *Client) Download(ctx context.Context, documentID, providedURL string) (*Result, error) {
	const op = "download"
	target, err := c.DownloadURL(documentID, providedURL)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, s := range c.strategies {
		res, err := s.Attempt(ctx, Target{DocumentID: documentID, URL: target})
		if err == nil {
			c.metrics.ObserveDownload(s.Name(), "ok")
			c.logger.Info("document downloaded", "document_id", documentID, "strategy", s.Name(), "path", res.Path)
			return res, nil
		}
		if errors.Is(err, ErrTryNext) {
			c.metrics.ObserveDownload(s.Name(), "skipped")
			continue
		}
		c.metrics.ObserveDownload(s.Name(), "failed")
		c.logger.Warn("download strategy failed", "document_id", documentID, "strategy", s.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	if len(errs) == 0 {
		return nil, model.Errorf(model.KindDownloadFailed, op, "no download strategy available for %s", target)
	}
	return nil, &model.Error{Kind: model.KindDownloadFailed, Op: op, Err: errors.Join(errs...)}
}

// View opens the document for display in place. It is a single attempt.
func (c *Client) View(ctx context.Context, documentID, providedURL string) error {
	const op = "view"
	target, err := c.ViewURL(documentID, providedURL)
	if err != nil {
		return err
	}
	if c.navigator == nil {
		return model.Errorf(model.KindDownloadFailed, op, "no navigator configured")
	}
	if err := c.navigator.Open(ctx, target); err != nil {
		return model.Wrap(model.KindDownloadFailed, op, err)
	}
	return nil
}

// Payload is a fully buffered response body with its resolved filename.
type Payload struct {
	URL         string
	Filename    string
	ContentType string
	Data        []byte
}

// Fetch GETs rawURL and buffers the whole body. A non-2xx status or an empty
// body is a download_failed error.
func (c *Client) Fetch(ctx context.Context, documentID, rawURL string) (*Payload, error) {
	const op = "fetch"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.Wrap(model.KindDownloadFailed, op, err)
	}
	req.Header.Set("Accept", "application/octet-stream, */*")
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.Wrap(model.KindDownloadFailed, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &model.Error{Kind: model.KindDownloadFailed, Op: op, Status: resp.StatusCode, Err: statusError(resp, body)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.Wrap(model.KindDownloadFailed, op, fmt.Errorf("read body: %w", err))
	}
	if len(data) == 0 {
		return nil, model.Errorf(model.KindDownloadFailed, op, "empty payload from %s", rawURL)
	}
	contentType := resp.Header.Get("Content-Type")
	return &Payload{
		URL:         rawURL,
		Filename:    ResolveFilename(resp.Header.Get("Content-Disposition"), rawURL, contentType, documentID),
		ContentType: contentType,
		Data:        data,
	}, nil
}

type directNavigation struct {
	navigator Navigator
}

// DirectNavigation hands the URL straight to n without reading the body. It
// is unavailable when n is nil.
func DirectNavigation(n Navigator) Strategy { return directNavigation{navigator: n} }

func (directNavigation) Name() string { return "direct" }

func (d directNavigation) Attempt(ctx context.Context, t Target) (*Result, error) {
	if d.navigator == nil {
		return nil, ErrTryNext
	}
	if err := d.navigator.Open(ctx, t.URL); err != nil {
		return nil, err
	}
	return &Result{Strategy: "direct", URL: t.URL}, nil
}

type bufferedFetch struct {
	client *Client
}

// BufferedFetch downloads the whole payload through c, resolves its filename
// and writes it with c's Saver.
func BufferedFetch(c *Client) Strategy { return bufferedFetch{client: c} }

func (bufferedFetch) Name() string { return "buffered" }

func (b bufferedFetch) Attempt(ctx context.Context, t Target) (*Result, error) {
	if b.client.saver == nil {
		return nil, ErrTryNext
	}
	payload, err := b.client.Fetch(ctx, t.DocumentID, t.URL)
	if err != nil {
		return nil, err
	}
	path, err := b.client.saver.Save(ctx, payload.Filename, payload.Data)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", payload.Filename, err)
	}
	return &Result{
		Strategy:    "buffered",
		URL:         t.URL,
		Filename:    payload.Filename,
		Path:        path,
		ContentType: payload.ContentType,
		Size:        int64(len(payload.Data)),
	}, nil
}
