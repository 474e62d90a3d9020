// Package api is the document service: uploads, downloads, search and
// listings over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/attachvault/internal/config"
	"github.com/dharsanguruparan/attachvault/internal/docstore"
	"github.com/dharsanguruparan/attachvault/internal/metrics"
	"github.com/dharsanguruparan/attachvault/internal/model"
	"github.com/dharsanguruparan/attachvault/internal/queue"
	"github.com/dharsanguruparan/attachvault/internal/signing"
	"github.com/dharsanguruparan/attachvault/internal/storage"
)

const (
	slowRequest   = 2 * time.Second
	maxFieldBytes = 64 << 10
)

// Index stores document metadata and answers queries.
type Index interface {
	Create(ctx context.Context, doc *storage.Document) error
	Get(ctx context.Context, id string) (*storage.Document, error)
	MarkFailed(ctx context.Context, id, msg string) error
	Search(ctx context.Context, q model.SearchQuery) (*model.SearchResultPage, error)
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
	Similar(ctx context.Context, id string, limit int) ([]model.DocumentDescriptor, error)
	OwnerStats(ctx context.Context, owner string) (model.OwnerInfo, error)
}

// Blobs stores document bytes.
type Blobs interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Enqueuer schedules text extraction.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload queue.ExtractPayload) error
}

// Server exposes HTTP endpoints for uploads, downloads and search.
type Server struct {
	cfg     *config.Config
	index   Index
	blobs   Blobs
	queue   Enqueuer
	signer  *signing.Signer
	logger  *slog.Logger
	metrics *metrics.Metrics

	once    sync.Once
	handler http.Handler
}

// New constructs a Server. logger and m may be nil.
func New(cfg *config.Config, index Index, blobs Blobs, enq Enqueuer, signer *signing.Signer, logger *slog.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		index:   index,
		blobs:   blobs,
		queue:   enq,
		signer:  signer,
		logger:  logger,
		metrics: m,
	}
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /healthz", s.handleHealth)
		if s.metrics != nil {
			mux.Handle("GET /metrics", s.metrics.Handler())
		}
		mux.HandleFunc("POST /documents", s.handleUpload)
		mux.HandleFunc("GET /documents/{id}", s.handleDocument)
		mux.HandleFunc("GET /documents/{id}/download", s.handleContent("download", "attachment"))
		mux.HandleFunc("GET /documents/{id}/view", s.handleContent("view", "inline"))
		mux.HandleFunc("GET /documents/{id}/similar", s.handleSimilar)
		mux.HandleFunc("GET /employees/{owner}/documents", s.handleOwnerDocuments)
		mux.HandleFunc("GET /employees/{owner}/documents/search", s.handleOwnerDocuments)
		mux.HandleFunc("GET /search", s.handleSearch)
		mux.HandleFunc("POST /search", s.handleSearch)
		mux.HandleFunc("GET /search/suggest", s.handleSuggest)
		s.handler = corsMiddleware(s.loggingMiddleware(mux))
	})
	return s.handler
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", "addr", s.cfg.Address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// documentResponse adds the extraction status to the public descriptor.
type documentResponse struct {
	model.DocumentDescriptor
	Status        storage.Status `json:"status"`
	StatusMessage string         `json:"statusMessage,omitempty"`
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, documentResponse{
		DocumentDescriptor: s.withURLs(r, doc.Descriptor()),
		Status:             doc.Status,
		StatusMessage:      doc.Message,
	})
}

func (s *Server) handleContent(action, disposition string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := s.signer.Check(id, action, r.URL.Query(), s.cfg.RequireSignedURLs); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		doc, ok := s.lookup(w, r)
		if !ok {
			return
		}
		obj, err := s.blobs.Open(r.Context(), doc.ObjectKey)
		if err != nil {
			s.logger.Error("open object failed", "document_id", id, "error", err)
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "document content missing", http.StatusNotFound)
				return
			}
			http.Error(w, "document unavailable", http.StatusInternalServerError)
			return
		}
		defer obj.Close()
		name := doc.OriginalName
		if name == "" {
			name = doc.Filename
		}
		w.Header().Set("Content-Type", doc.MimeType)
		w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
		if cd := mime.FormatMediaType(disposition, map[string]string{"filename": name}); cd != "" {
			w.Header().Set("Content-Disposition", cd)
		} else {
			w.Header().Set("Content-Disposition", disposition)
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, obj); err != nil {
			s.logger.Warn("stream document", "document_id", id, "error", err)
		}
	}
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	docs, err := s.index.Similar(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.indexError(w, "similar", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"documents": s.withURLsAll(r, docs)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var (
		q   model.SearchQuery
		err error
	)
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxFieldBytes)
		err = json.NewDecoder(r.Body).Decode(&q)
	} else {
		q, err = parseQuery(r.URL.Query())
	}
	if err == nil {
		err = q.Validate()
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	start := time.Now()
	page, err := s.index.Search(r.Context(), q.WithDefaults())
	if err != nil {
		s.indexError(w, "search", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"documents": s.withURLsAll(r, page.Documents),
		"total":     page.Total,
		"took":      time.Since(start).Milliseconds(),
		"page":      page.Page,
		"limit":     page.PageSize,
	})
}

func (s *Server) handleOwnerDocuments(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	q, err := parseQuery(r.URL.Query())
	if err == nil {
		err = q.Validate()
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q.OwnerScope = owner
	start := time.Now()
	page, err := s.index.Search(r.Context(), q.WithDefaults())
	if err != nil {
		s.indexError(w, "owner search", err)
		return
	}
	info, err := s.index.OwnerStats(r.Context(), owner)
	if err != nil {
		s.indexError(w, "owner stats", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"documents": s.withURLsAll(r, page.Documents),
		"pagination": map[string]int{
			"page":  page.Page,
			"limit": page.PageSize,
			"total": page.Total,
		},
		"meta": map[string]any{
			"took":         time.Since(start).Milliseconds(),
			"employeeInfo": info,
		},
	})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	suggestions, err := s.index.Suggest(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.indexError(w, "suggest", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*storage.Document, bool) {
	doc, err := s.index.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.indexError(w, "get document", err)
		return nil, false
	}
	return doc, true
}

func (s *Server) indexError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	s.logger.Error(op+" failed", "error", err)
	http.Error(w, op+" failed", http.StatusInternalServerError)
}

// withURLs sets signed download and view URLs on doc.
func (s *Server) withURLs(r *http.Request, doc model.DocumentDescriptor) model.DocumentDescriptor {
	base := s.publicBase(r) + "/documents/" + url.PathEscape(doc.ID)
	doc.DownloadURL = base + "/download?" + s.signer.Query(doc.ID, "download", s.cfg.SignedURLTTL).Encode()
	doc.ViewURL = base + "/view?" + s.signer.Query(doc.ID, "view", s.cfg.SignedURLTTL).Encode()
	return doc
}

func (s *Server) withURLsAll(r *http.Request, docs []model.DocumentDescriptor) []model.DocumentDescriptor {
	out := make([]model.DocumentDescriptor, 0, len(docs))
	for _, d := range docs {
		out = append(out, s.withURLs(r, d))
	}
	return out
}

func (s *Server) publicBase(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+1<<20)
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expecting multipart form", http.StatusBadRequest)
		return
	}
	fields, tmp, err := s.readUpload(mr)
	if tmp != nil {
		defer os.Remove(tmp.path)
		defer tmp.f.Close()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.Is(err, errTooLarge) || errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("file exceeds limit (%d bytes)", s.cfg.MaxFileSize), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if tmp == nil {
		http.Error(w, "missing file part", http.StatusBadRequest)
		return
	}
	owner := strings.TrimSpace(fields["ownerRef"])
	if owner == "" {
		http.Error(w, "ownerRef is required", http.StatusBadRequest)
		return
	}
	if len(s.cfg.AllowedTypes) > 0 && !slices.Contains(s.cfg.AllowedTypes, tmp.contentType) {
		http.Error(w, fmt.Sprintf("file type %s not allowed", tmp.contentType), http.StatusUnsupportedMediaType)
		return
	}
	var tags model.Tags
	if raw := strings.TrimSpace(fields["tags"]); raw != "" {
		quoted, _ := json.Marshal(raw)
		if err := json.Unmarshal(quoted, &tags); err != nil {
			http.Error(w, "invalid tags", http.StatusBadRequest)
			return
		}
	}

	docID := uuid.NewString()
	name := docstore.SanitizeFilename(filepath.Base(tmp.filename))
	objectKey := fmt.Sprintf("documents/%s/%s", docID, name)
	if _, err := tmp.f.Seek(0, io.SeekStart); err != nil {
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}
	if err := s.blobs.Put(ctx, objectKey, tmp.f, tmp.size, tmp.contentType); err != nil {
		s.logger.Error("upload to storage failed", "error", err)
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}
	title := strings.TrimSpace(fields["title"])
	if title == "" {
		title = model.File{Name: tmp.filename}.DisplayTitle()
	}
	doc := &storage.Document{
		DocumentDescriptor: model.DocumentDescriptor{
			ID:           docID,
			Title:        title,
			Description:  strings.TrimSpace(fields["description"]),
			Filename:     docID + filepath.Ext(name),
			OriginalName: tmp.filename,
			MimeType:     tmp.contentType,
			SizeBytes:    tmp.size,
			OwnerRef:     owner,
			Category:     strings.TrimSpace(fields["category"]),
			DocumentType: strings.TrimSpace(fields["documentType"]),
			Tags:         tags,
		},
		ObjectKey: objectKey,
	}
	if err := s.index.Create(ctx, doc); err != nil {
		s.logger.Error("store metadata failed", "error", err)
		http.Error(w, "failed to store metadata", http.StatusInternalServerError)
		return
	}
	payload := queue.ExtractPayload{
		DocumentID: docID,
		ObjectKey:  objectKey,
		FileName:   tmp.filename,
		MimeType:   tmp.contentType,
	}
	if err := s.queue.Enqueue(ctx, payload); err != nil {
		s.logger.Warn("extraction not scheduled", "document_id", docID, "error", err)
		_ = s.index.MarkFailed(ctx, docID, "extraction not scheduled: "+err.Error())
	}
	s.logger.Info("document stored", "document_id", docID, "owner", owner, "bytes", tmp.size, "mime_type", tmp.contentType)
	respondJSON(w, http.StatusCreated, s.withURLs(r, doc.Descriptor()))
}

var errTooLarge = errors.New("file too large")

type tempUpload struct {
	f           *os.File
	path        string
	size        int64
	contentType string
	filename    string
}

// readUpload collects the text fields and spools the file part to disk. Parts
// may arrive in any order; only the first file part is kept.
func (s *Server) readUpload(mr *multipart.Reader) (map[string]string, *tempUpload, error) {
	fields := make(map[string]string)
	var tmp *tempUpload
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return fields, tmp, nil
		}
		if err != nil {
			return fields, tmp, fmt.Errorf("read upload: %w", err)
		}
		switch {
		case part.FormName() == "file" && tmp == nil:
			tmp, err = s.persistTemp(part)
		case part.FileName() == "":
			var data []byte
			data, err = io.ReadAll(io.LimitReader(part, maxFieldBytes))
			fields[part.FormName()] = string(data)
		}
		part.Close()
		if err != nil {
			return fields, tmp, err
		}
	}
}

func (s *Server) persistTemp(part *multipart.Part) (*tempUpload, error) {
	tmpFile, err := os.CreateTemp("", "attachvault-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	fail := func(err error) (*tempUpload, error) {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, err
	}
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.cfg.MaxFileSize {
				return fail(errTooLarge)
			}
			if len(sniff) < 512 {
				chunk := min(n, 512-len(sniff))
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				return fail(fmt.Errorf("write temp file: %w", err))
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return fail(fmt.Errorf("read file: %w", readErr))
		}
	}
	if written == 0 {
		return fail(errors.New("empty file"))
	}
	filename := part.FileName()
	if filename == "" {
		filename = "upload"
	}
	return &tempUpload{
		f:           tmpFile,
		path:        tmpFile.Name(),
		size:        written,
		contentType: contentTypeOf(part.Header.Get("Content-Type"), sniff),
		filename:    filename,
	}, nil
}

// contentTypeOf prefers the declared part type and falls back to sniffing.
func contentTypeOf(declared string, sniff []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return mt
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(sniff))
	return mt
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(route, rec.status, elapsed)
		attrs := []any{"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", elapsed}
		if elapsed > slowRequest {
			s.logger.Warn("slow request", attrs...)
			return
		}
		s.logger.Debug("request", attrs...)
	})
}
