// Package repository is the PostgreSQL document index: metadata, extracted
// content and full-text plus trigram search.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/attachvault/internal/model"
	"github.com/dharsanguruparan/attachvault/internal/storage"
)

const (
	defaultSuggestLimit = 8
	defaultSimilarLimit = 5

	documentColumns = `id, title, description, file_name, original_name, mime_type, size_bytes,
		owner_ref, category, document_type, tags, keywords, created_at`

	highlightOptions = `'StartSel=<mark>, StopSel=</mark>, HighlightAll=true'`
	fragmentOptions  = `'StartSel=<mark>, StopSel=</mark>, MaxFragments=2, MaxWords=20, MinWords=5'`
)

// DocumentRepository wraps all SQL used by the document service and the
// extraction worker.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository constructs a repository.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

// Create inserts a queued document before extraction begins.
func (r *DocumentRepository) Create(ctx context.Context, doc *storage.Document) error {
	now := time.Now().UTC()
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now
	}
	if doc.Status == "" {
		doc.Status = storage.StatusQueued
	}
	doc.UpdatedAt = now
	doc.Normalize()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (id, title, description, file_name, original_name, mime_type, size_bytes,
			owner_ref, category, document_type, tags, keywords, object_key, status, content, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, doc.ID, doc.Title, doc.Description, doc.Filename, doc.OriginalName, doc.MimeType, doc.SizeBytes,
		doc.OwnerRef, doc.Category, doc.DocumentType, []string(doc.Tags), []string(doc.Keywords),
		doc.ObjectKey, string(doc.Status), doc.Content, doc.UploadedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Get returns a document by id.
func (r *DocumentRepository) Get(ctx context.Context, id string) (*storage.Document, error) {
	var (
		doc      storage.Document
		status   string
		errorMsg *string
	)
	row := r.pool.QueryRow(ctx, `
		SELECT `+documentColumns+`, object_key, status, content, error_message, updated_at
		FROM documents WHERE id=$1
	`, id)
	dest := append(descriptorDest(&doc.DocumentDescriptor), &doc.ObjectKey, &status, &doc.Content, &errorMsg, &doc.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	doc.Status = storage.Status(status)
	if errorMsg != nil {
		doc.Message = *errorMsg
	}
	doc.Normalize()
	return &doc, nil
}

// MarkProcessing sets the status to processing.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.updateStatus(ctx, id, storage.StatusProcessing, nil, nil, nil)
}

// MarkFailed marks the extraction attempt as failed and stores the message.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id, msg string) error {
	return r.updateStatus(ctx, id, storage.StatusFailed, nil, nil, &msg)
}

// MarkIndexed stores the extracted text and keywords.
func (r *DocumentRepository) MarkIndexed(ctx context.Context, id, content string, keywords []string) error {
	if keywords == nil {
		keywords = []string{}
	}
	return r.updateStatus(ctx, id, storage.StatusIndexed, &content, keywords, nil)
}

func (r *DocumentRepository) updateStatus(ctx context.Context, id string, status storage.Status, content *string, keywords []string, errorMsg *string) error {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status=$1,
			content = COALESCE($2, content),
			keywords = COALESCE($3, keywords),
			error_message = $4,
			updated_at=$5
		WHERE id=$6
	`, string(status), content, keywords, errorMsg, now, id)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// Search filters, ranks and pages documents. q should already have defaults
// applied. Text goes through websearch_to_tsquery with a trigram fallback on
// the title and file name so misspellings still match.
func (r *DocumentRepository) Search(ctx context.Context, q model.SearchQuery) (*model.SearchResultPage, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	score := "0::float8"
	titleHL, descHL, contentHL := "''", "''", "''"
	if text := strings.TrimSpace(q.Text); text != "" {
		p := arg(text)
		tsq := "websearch_to_tsquery('simple', " + p + ")"
		conds = append(conds, fmt.Sprintf("(search_vector @@ %s OR title %% %s OR original_name %% %s)", tsq, p, p))
		score = fmt.Sprintf("(ts_rank(search_vector, %s) + similarity(title, %s))::float8", tsq, p)
		titleHL = fmt.Sprintf("ts_headline('simple', title, %s, %s)", tsq, highlightOptions)
		descHL = fmt.Sprintf("ts_headline('simple', description, %s, %s)", tsq, highlightOptions)
		contentHL = fmt.Sprintf("ts_headline('simple', content, %s, %s)", tsq, fragmentOptions)
	}
	if q.OwnerScope != "" {
		conds = append(conds, "owner_ref = "+arg(q.OwnerScope))
	}
	if q.Category != "" {
		conds = append(conds, "lower(category) = lower("+arg(q.Category)+")")
	}
	if q.DocumentType != "" {
		conds = append(conds, "lower(document_type) = lower("+arg(q.DocumentType)+")")
	}
	if len(q.Tags) > 0 {
		conds = append(conds, "tags @> "+arg(q.Tags)+"::text[]")
	}
	if !q.DateFrom.IsZero() {
		conds = append(conds, "created_at >= "+arg(q.DateFrom))
	}
	if !q.DateTo.IsZero() {
		conds = append(conds, "created_at < "+arg(storage.EndOfRange(q.DateTo)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	stmt := fmt.Sprintf(`
		SELECT %s, %s AS score, %s, %s, %s, COUNT(*) OVER() AS total
		FROM documents %s
		ORDER BY %s
		LIMIT %s OFFSET %s`,
		documentColumns, score, titleHL, descHL, contentHL, where,
		orderClause(q.SortBy, q.SortOrder), arg(q.PageSize), arg(q.Offset()))

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	page := &model.SearchResultPage{Documents: []model.DocumentDescriptor{}, Page: q.Page, PageSize: q.PageSize}
	for rows.Next() {
		var (
			doc                  model.DocumentDescriptor
			title, desc, excerpt string
			total                int64
		)
		dest := append(descriptorDest(&doc), &doc.Score, &title, &desc, &excerpt, &total)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.Normalize()
		doc.Highlights = collectHighlights(map[string]string{"title": title, "description": desc, "content": excerpt})
		page.Documents = append(page.Documents, doc)
		page.Total = int(total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	if len(page.Documents) == 0 && q.Offset() > 0 {
		countStmt := "SELECT COUNT(*) FROM documents " + where
		if err := r.pool.QueryRow(ctx, countStmt, args[:len(args)-2]...).Scan(&page.Total); err != nil {
			return nil, fmt.Errorf("count documents: %w", err)
		}
	}
	return page, nil
}

func orderClause(by model.SortField, order model.SortOrder) string {
	dir := "DESC"
	if order == model.SortAsc {
		dir = "ASC"
	}
	var col string
	switch by {
	case model.SortDate:
		col = "created_at"
	case model.SortSize:
		col = "size_bytes"
	case model.SortFilename:
		col = "lower(original_name)"
	default:
		col = "score"
	}
	return fmt.Sprintf("%s %s, created_at DESC, id", col, dir)
}

func collectHighlights(fields map[string]string) map[string][]string {
	var out map[string][]string
	for name, v := range fields {
		if !strings.Contains(v, "<mark>") {
			continue
		}
		if out == nil {
			out = make(map[string][]string)
		}
		out[name] = []string{v}
	}
	return out
}

// Suggest returns titles and tags that start with prefix, or have a word
// that does, shortest first.
func (r *DocumentRepository) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultSuggestLimit
	}
	out := []string{}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return out, nil
	}
	escaped := likeEscaper.Replace(prefix)
	rows, err := r.pool.Query(ctx, `
		SELECT s FROM (
			SELECT title AS s FROM documents WHERE title ILIKE $1 OR title ILIKE $2
			UNION
			SELECT t FROM documents, unnest(tags) AS t WHERE t ILIKE $1
		) AS suggestions
		ORDER BY length(s), s
		LIMIT $3
	`, escaped+"%", "% "+escaped+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Similar ranks other documents by shared tags and keywords, matching
// category and type, and title trigram similarity.
func (r *DocumentRepository) Similar(ctx context.Context, id string, limit int) ([]model.DocumentDescriptor, error) {
	if limit <= 0 {
		limit = defaultSimilarLimit
	}
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		WITH src AS (
			SELECT id, title, category, document_type, tags, keywords FROM documents WHERE id = $1
		)
		SELECT `+documentColumns+`, score FROM (
			SELECT d.*, (
				0.25 * cardinality(ARRAY(SELECT unnest(d.tags) INTERSECT SELECT unnest(src.tags)))
				+ 0.1 * cardinality(ARRAY(SELECT unnest(d.keywords) INTERSECT SELECT unnest(src.keywords)))
				+ CASE WHEN src.category <> '' AND lower(d.category) = lower(src.category) THEN 0.5 ELSE 0 END
				+ CASE WHEN src.document_type <> '' AND lower(d.document_type) = lower(src.document_type) THEN 0.25 ELSE 0 END
				+ CASE WHEN similarity(d.title, src.title) >= 0.5 THEN similarity(d.title, src.title) * 0.5 ELSE 0 END
			)::float8 AS score
			FROM documents d, src
			WHERE d.id <> src.id
		) AS scored
		WHERE score >= 0.5
		ORDER BY score DESC, created_at DESC
		LIMIT $2
	`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("similar documents: %w", err)
	}
	defer rows.Close()
	out := []model.DocumentDescriptor{}
	for rows.Next() {
		var doc model.DocumentDescriptor
		if err := rows.Scan(append(descriptorDest(&doc), &doc.Score)...); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.Normalize()
		out = append(out, doc)
	}
	return out, rows.Err()
}

// OwnerStats summarizes the documents attached to owner.
func (r *DocumentRepository) OwnerStats(ctx context.Context, owner string) (model.OwnerInfo, error) {
	info := model.OwnerInfo{ID: owner}
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size_bytes), 0)::bigint, MAX(created_at)
		FROM documents WHERE owner_ref = $1
	`, owner).Scan(&info.DocumentCount, &info.TotalSizeBytes, &info.LastUploadAt)
	if err != nil {
		return info, fmt.Errorf("owner stats: %w", err)
	}
	return info, nil
}

// descriptorDest returns scan targets in documentColumns order.
func descriptorDest(d *model.DocumentDescriptor) []any {
	return []any{
		&d.ID, &d.Title, &d.Description, &d.Filename, &d.OriginalName, &d.MimeType, &d.SizeBytes,
		&d.OwnerRef, &d.Category, &d.DocumentType, (*[]string)(&d.Tags), (*[]string)(&d.Keywords), &d.UploadedAt,
	}
}
