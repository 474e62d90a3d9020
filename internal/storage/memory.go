package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dharsanguruparan/attachvault/internal/model"
)

const (
	defaultSuggestLimit = 8
	defaultSimilarLimit = 5
	fragmentRadius      = 60
)

// Field weights for relevance scoring.
var fieldWeights = []struct {
	name   string
	weight float64
}{
	{"title", 3},
	{"filename", 2},
	{"tags", 2},
	{"keywords", 1.5},
	{"description", 1},
	{"content", 1},
}

// MemoryIndex is an in-memory document index. It implements the same search
// semantics as the PostgreSQL repository with edit-distance matching instead
// of trigrams.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewMemoryIndex constructs an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]*Document)}
}

func clone(d *Document) *Document {
	cp := *d
	cp.Tags = slices.Clone(d.Tags)
	cp.Keywords = slices.Clone(d.Keywords)
	return &cp
}

// Create inserts a new record in the queued state.
func (m *MemoryIndex) Create(_ context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	now := time.Now().UTC()
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now
	}
	if doc.Status == "" {
		doc.Status = StatusQueued
	}
	doc.UpdatedAt = now
	doc.Normalize()
	m.docs[doc.ID] = clone(doc)
	return nil
}

// Get returns a copy of the record.
func (m *MemoryIndex) Get(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(doc), nil
}

// MarkProcessing records that extraction started.
func (m *MemoryIndex) MarkProcessing(_ context.Context, id string) error {
	return m.update(id, func(d *Document) {
		d.Status = StatusProcessing
		d.Message = ""
	})
}

// MarkIndexed stores extracted content and keywords.
func (m *MemoryIndex) MarkIndexed(_ context.Context, id, content string, keywords []string) error {
	return m.update(id, func(d *Document) {
		d.Status = StatusIndexed
		d.Content = content
		d.Keywords = model.Tags(keywords)
		d.Message = ""
		d.Normalize()
	})
}

// MarkFailed records an extraction failure.
func (m *MemoryIndex) MarkFailed(_ context.Context, id, msg string) error {
	return m.update(id, func(d *Document) {
		d.Status = StatusFailed
		d.Message = msg
	})
}

func (m *MemoryIndex) update(id string, fn func(*Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	fn(doc)
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

type hit struct {
	doc        *Document
	score      float64
	highlights map[string][]string
}

// Search filters, scores, sorts and pages the index. q should already have
// defaults applied.
func (m *MemoryIndex) Search(_ context.Context, q model.SearchQuery) (*model.SearchResultPage, error) {
	qterms := terms(q.Text)
	m.mu.RLock()
	var hits []hit
	for _, doc := range m.docs {
		if !matchesFilters(doc, q) {
			continue
		}
		h := hit{doc: clone(doc)}
		if len(qterms) > 0 {
			score, ok := relevance(doc, qterms)
			if !ok {
				continue
			}
			h.score = score
			h.highlights = highlights(doc, qterms)
		}
		hits = append(hits, h)
	}
	m.mu.RUnlock()

	sortHits(hits, q.SortBy, q.SortOrder)

	page := &model.SearchResultPage{
		Documents: []model.DocumentDescriptor{},
		Total:     len(hits),
		Page:      q.Page,
		PageSize:  q.PageSize,
	}
	from := min(q.Offset(), len(hits))
	to := min(from+q.PageSize, len(hits))
	for _, h := range hits[from:to] {
		desc := h.doc.Descriptor()
		desc.Score = h.score
		desc.Highlights = h.highlights
		page.Documents = append(page.Documents, desc)
	}
	return page, nil
}

func matchesFilters(doc *Document, q model.SearchQuery) bool {
	if q.OwnerScope != "" && doc.OwnerRef != q.OwnerScope {
		return false
	}
	if q.Category != "" && !strings.EqualFold(doc.Category, q.Category) {
		return false
	}
	if q.DocumentType != "" && !strings.EqualFold(doc.DocumentType, q.DocumentType) {
		return false
	}
	for _, want := range q.Tags {
		if !slices.ContainsFunc(doc.Tags, func(t string) bool { return strings.EqualFold(t, want) }) {
			return false
		}
	}
	if !q.DateFrom.IsZero() && doc.UploadedAt.Before(q.DateFrom) {
		return false
	}
	if !q.DateTo.IsZero() && !doc.UploadedAt.Before(EndOfRange(q.DateTo)) {
		return false
	}
	return true
}

// EndOfRange returns the exclusive upper bound for a dateTo filter: a
// date-only value covers the whole day.
func EndOfRange(t time.Time) time.Time {
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Add(24 * time.Hour)
	}
	return t
}

func fieldText(doc *Document, field string) string {
	switch field {
	case "title":
		return doc.Title
	case "filename":
		return doc.OriginalName + " " + doc.Filename
	case "tags":
		return strings.Join(doc.Tags, " ")
	case "keywords":
		return strings.Join(doc.Keywords, " ")
	case "description":
		return doc.Description
	case "content":
		return doc.Content
	}
	return ""
}

// relevance requires every query term to match some field. A term scores the
// summed weight of the fields it matches, plus half a point if any match is
// an exact word.
func relevance(doc *Document, qterms []string) (float64, bool) {
	fields := make([][]string, len(fieldWeights))
	for i, f := range fieldWeights {
		fields[i] = terms(fieldText(doc, f.name))
	}
	var total float64
	for _, t := range qterms {
		score, anyExact := 0.0, false
		for i, f := range fieldWeights {
			matched, exact := anyMatch(t, fields[i])
			if matched {
				score += f.weight
				anyExact = anyExact || exact
			}
		}
		if score == 0 {
			return 0, false
		}
		if anyExact {
			score += 0.5
		}
		total += score
	}
	return total, true
}

func highlights(doc *Document, qterms []string) map[string][]string {
	out := make(map[string][]string)
	if h, ok := highlight(doc.Title, qterms); ok {
		out["title"] = []string{h}
	}
	if h, ok := highlight(doc.Description, qterms); ok {
		out["description"] = []string{h}
	}
	if h, ok := fragment(doc.Content, qterms, fragmentRadius); ok {
		out["content"] = []string{h}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sortHits(hits []hit, by model.SortField, order model.SortOrder) {
	slices.SortFunc(hits, func(a, b hit) int {
		var c int
		switch by {
		case model.SortDate:
			c = a.doc.UploadedAt.Compare(b.doc.UploadedAt)
		case model.SortSize:
			c = cmp.Compare(a.doc.SizeBytes, b.doc.SizeBytes)
		case model.SortFilename:
			c = cmp.Compare(strings.ToLower(a.doc.OriginalName), strings.ToLower(b.doc.OriginalName))
		default:
			c = cmp.Compare(a.score, b.score)
		}
		if order == model.SortDesc {
			c = -c
		}
		if c != 0 {
			return c
		}
		if c = b.doc.UploadedAt.Compare(a.doc.UploadedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.doc.ID, b.doc.ID)
	})
}

// Suggest returns titles and tags with a word starting with prefix, shortest
// first.
func (m *MemoryIndex) Suggest(_ context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultSuggestLimit
	}
	p := strings.ToLower(strings.TrimSpace(prefix))
	out := []string{}
	if p == "" {
		return out, nil
	}
	seen := make(map[string]bool)
	consider := func(s string) {
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			return
		}
		if !strings.HasPrefix(key, p) && !slices.ContainsFunc(terms(s), func(w string) bool { return strings.HasPrefix(w, p) }) {
			return
		}
		seen[key] = true
		out = append(out, s)
	}
	m.mu.RLock()
	for _, doc := range m.docs {
		consider(doc.Title)
		for _, t := range doc.Tags {
			consider(t)
		}
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b string) int {
		if c := cmp.Compare(len(a), len(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Similar ranks other documents by shared tags, keywords, category, type and
// title likeness.
func (m *MemoryIndex) Similar(_ context.Context, id string, limit int) ([]model.DocumentDescriptor, error) {
	if limit <= 0 {
		limit = defaultSimilarLimit
	}
	m.mu.RLock()
	src, ok := m.docs[id]
	if !ok {
		m.mu.RUnlock()
		return nil, ErrNotFound
	}
	var hits []hit
	for _, doc := range m.docs {
		if doc.ID == id {
			continue
		}
		if score := relatedness(src, doc); score >= 0.5 {
			hits = append(hits, hit{doc: clone(doc), score: score})
		}
	}
	m.mu.RUnlock()

	sortHits(hits, model.SortRelevance, model.SortDesc)
	out := make([]model.DocumentDescriptor, 0, min(limit, len(hits)))
	for _, h := range hits[:min(limit, len(hits))] {
		desc := h.doc.Descriptor()
		desc.Score = h.score
		out = append(out, desc)
	}
	return out, nil
}

func relatedness(a, b *Document) float64 {
	score := 0.25*float64(overlap(a.Tags, b.Tags)) + 0.1*float64(overlap(a.Keywords, b.Keywords))
	if a.Category != "" && strings.EqualFold(a.Category, b.Category) {
		score += 0.5
	}
	if a.DocumentType != "" && strings.EqualFold(a.DocumentType, b.DocumentType) {
		score += 0.25
	}
	if s := similarity(a.Title, b.Title); s >= 0.5 {
		score += s * 0.5
	}
	return score
}

func overlap(a, b []string) int {
	n := 0
	for _, x := range a {
		if slices.ContainsFunc(b, func(y string) bool { return strings.EqualFold(x, y) }) {
			n++
		}
	}
	return n
}

// OwnerStats summarizes the documents attached to owner.
func (m *MemoryIndex) OwnerStats(_ context.Context, owner string) (model.OwnerInfo, error) {
	info := model.OwnerInfo{ID: owner}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.docs {
		if doc.OwnerRef != owner {
			continue
		}
		info.DocumentCount++
		info.TotalSizeBytes += doc.SizeBytes
		if info.LastUploadAt == nil || doc.UploadedAt.After(*info.LastUploadAt) {
			t := doc.UploadedAt
			info.LastUploadAt = &t
		}
	}
	return info, nil
}
