// Package worker runs text extraction for uploaded documents: read the
// stored bytes, pull out text, derive keywords and write both back to the
// index.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/attachvault/internal/metrics"
	pdfutil "github.com/dharsanguruparan/attachvault/internal/pdf"
	"github.com/dharsanguruparan/attachvault/internal/queue"
)

// KeywordCount is how many keywords are kept per document.
const KeywordCount = 10

const maxTextBytes = 4 << 20

// ErrUnreadable marks content that cannot be parsed. Retrying will not help.
var ErrUnreadable = errors.New("unreadable document")

// Index receives extraction results.
type Index interface {
	MarkProcessing(ctx context.Context, id string) error
	MarkIndexed(ctx context.Context, id, content string, keywords []string) error
	MarkFailed(ctx context.Context, id, msg string) error
}

// Blobs opens stored document bytes.
type Blobs interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Processor is plugged into the asynq worker loop and the in-process pool.
type Processor struct {
	index   Index
	blobs   Blobs
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProcessor constructs a worker processor. logger and m may be nil.
func NewProcessor(index Index, blobs Blobs, logger *slog.Logger, m *metrics.Metrics) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{index: index, blobs: blobs, logger: logger, metrics: m}
}

// Handler registers the extract job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ExtractDocumentTask, p.handleExtract)
	return mux
}

func (p *Processor) handleExtract(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeExtract(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err := p.Extract(ctx, payload); err != nil {
		if errors.Is(err, ErrUnreadable) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// Extract processes one document. Types without a text extractor are marked
// indexed with no content.
func (p *Processor) Extract(ctx context.Context, payload queue.ExtractPayload) error {
	start := time.Now()
	logger := p.logger.With("document_id", payload.DocumentID, "mime_type", payload.MimeType)
	failure := func(err error) error {
		logger.Error("extract failed", "error", err)
		if markErr := p.index.MarkFailed(ctx, payload.DocumentID, err.Error()); markErr != nil {
			logger.Warn("mark failed", "error", markErr)
		}
		p.metrics.ObserveExtraction("failed")
		return err
	}
	if err := p.index.MarkProcessing(ctx, payload.DocumentID); err != nil {
		return failure(err)
	}
	obj, err := p.blobs.Open(ctx, payload.ObjectKey)
	if err != nil {
		return failure(err)
	}
	defer obj.Close()

	text, supported, err := extractText(payload.MimeType, obj)
	if err != nil {
		return failure(err)
	}
	keywords := Keywords(text, KeywordCount)
	if err := p.index.MarkIndexed(ctx, payload.DocumentID, text, keywords); err != nil {
		return failure(err)
	}
	status := "indexed"
	if !supported {
		status = "skipped"
	}
	p.metrics.ObserveExtraction(status)
	logger.Info("document processed", "status", status, "bytes", len(text), "keywords", len(keywords), "duration", time.Since(start))
	return nil
}

func extractText(mimeType string, r io.Reader) (string, bool, error) {
	mediaType, _, _ := strings.Cut(strings.ToLower(mimeType), ";")
	mediaType = strings.TrimSpace(mediaType)
	switch {
	case mediaType == "application/pdf":
		text, err := pdfutil.ExtractFromReader(r)
		if errors.Is(err, pdfutil.ErrNoText) {
			// Scanned documents stay searchable by their metadata.
			return "", true, nil
		}
		if err != nil {
			return "", true, fmt.Errorf("%w: %w", ErrUnreadable, err)
		}
		return strings.TrimSpace(text), true, nil
	case strings.HasPrefix(mediaType, "text/"):
		data, err := io.ReadAll(io.LimitReader(r, maxTextBytes))
		if err != nil {
			return "", true, fmt.Errorf("read text: %w", err)
		}
		return strings.TrimSpace(string(data)), true, nil
	default:
		return "", false, nil
	}
}
