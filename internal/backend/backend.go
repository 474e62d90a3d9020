// Package backend picks the index and blob store the document service and
// the extraction worker run against. PostgreSQL and S3 are used when
// configured; otherwise both fall back to in-memory implementations.
package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dharsanguruparan/attachvault/internal/config"
	"github.com/dharsanguruparan/attachvault/internal/database"
	"github.com/dharsanguruparan/attachvault/internal/model"
	"github.com/dharsanguruparan/attachvault/internal/repository"
	"github.com/dharsanguruparan/attachvault/internal/s3storage"
	"github.com/dharsanguruparan/attachvault/internal/storage"
)

// Index is the full metadata store contract: what the HTTP layer reads and
// what the extraction worker writes.
type Index interface {
	Create(ctx context.Context, doc *storage.Document) error
	Get(ctx context.Context, id string) (*storage.Document, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkIndexed(ctx context.Context, id, content string, keywords []string) error
	MarkFailed(ctx context.Context, id, msg string) error
	Search(ctx context.Context, q model.SearchQuery) (*model.SearchResultPage, error)
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
	Similar(ctx context.Context, id string, limit int) ([]model.DocumentDescriptor, error)
	OwnerStats(ctx context.Context, owner string) (model.OwnerInfo, error)
}

// Blobs stores and returns document bytes.
type Blobs interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

var (
	_ Index = (*storage.MemoryIndex)(nil)
	_ Index = (*repository.DocumentRepository)(nil)
	_ Blobs = (*storage.MemoryBlobs)(nil)
	_ Blobs = (*s3storage.Storage)(nil)
)

// Backends bundles the selected stores.
type Backends struct {
	Index Index
	Blobs Blobs

	closers []func()
}

// Close releases connections held by the backends.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// Open connects to the configured stores. requireShared makes missing
// PostgreSQL or S3 settings an error, for processes like the standalone
// worker that cannot share memory with the API.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, requireShared bool) (*Backends, error) {
	if requireShared && (!cfg.UsesPostgres() || !cfg.UsesS3()) {
		return nil, fmt.Errorf("database and S3 settings are required")
	}
	b := &Backends{}

	if cfg.UsesPostgres() {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		if err := database.EnsureSchema(ctx, pool); err != nil {
			b.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		b.Index = repository.NewDocumentRepository(pool)
		logger.Info("index backend selected", "backend", "postgres")
	} else {
		b.Index = storage.NewMemoryIndex()
		logger.Info("index backend selected", "backend", "memory")
	}

	if cfg.UsesS3() {
		store, err := s3storage.New(cfg)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("init storage: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		b.Blobs = store
		logger.Info("blob backend selected", "backend", "s3", "bucket", cfg.Bucket)
	} else {
		b.Blobs = storage.NewMemoryBlobs()
		logger.Info("blob backend selected", "backend", "memory")
	}
	return b, nil
}
