// Package saga drives the attachment workflow: create a parent record in the
// primary store, upload each file to the document service, then attach the
// uploaded documents to the parent. There is no compensation; a failed run
// reports what was created so it can be reconciled.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/attachvault/internal/docstore"
	"github.com/dharsanguruparan/attachvault/internal/metrics"
	"github.com/dharsanguruparan/attachvault/internal/model"
)

var (
	// ErrNotIdle is returned when Execute is called on a run that already
	// started.
	ErrNotIdle = errors.New("run is not idle")
	// ErrNotFailed is returned when Reset is called on a run that has not
	// failed.
	ErrNotFailed = errors.New("only a failed run can be reset")
)

// PrimaryStore creates parent records and links documents to them.
type PrimaryStore interface {
	CreateEntity(ctx context.Context, kind string, payload map[string]any) (string, error)
	AttachDocuments(ctx context.Context, kind, id string, docs []model.DocumentDescriptor) error
}

// Uploader stores one file in the document service.
type Uploader interface {
	Upload(ctx context.Context, req docstore.UploadRequest) (model.DocumentDescriptor, error)
}

// Request is one submission: the parent record plus its files.
type Request struct {
	Kind    string
	Payload map[string]any
	Files   []model.File

	// AllowNoFiles permits an empty Files list.
	AllowNoFiles bool
	// OwnerField names a payload key whose value is used as the documents'
	// owner reference. When empty or unset the new parent id is used.
	OwnerField string
	// AllowedTypes is the MIME allow-list for this call site. Empty allows
	// any type.
	AllowedTypes []string

	Category     string
	DocumentType string
	Tags         []string
}

// Validate checks the request before anything is sent.
func (r Request) Validate() error {
	const op = "validate request"
	if r.Kind == "" {
		return model.Errorf(model.KindValidation, op, "entity kind is required")
	}
	if len(r.Files) == 0 && !r.AllowNoFiles {
		return model.Errorf(model.KindValidation, op, "at least one file is required")
	}
	for i, f := range r.Files {
		if f.Name == "" {
			return model.Errorf(model.KindValidation, op, "file %d has no name", i)
		}
		if len(f.Data) == 0 {
			return model.Errorf(model.KindValidation, op, "file %q is empty", f.Name)
		}
		if len(r.AllowedTypes) > 0 && !slices.Contains(r.AllowedTypes, f.MimeType) {
			return model.Errorf(model.KindValidation, op, "file %q has type %q, allowed: %v", f.Name, f.MimeType, r.AllowedTypes)
		}
	}
	return nil
}

func (r Request) ownerRef(parentID string) string {
	if r.OwnerField == "" {
		return parentID
	}
	if v, ok := r.Payload[r.OwnerField]; ok && v != nil {
		if s := fmt.Sprint(v); s != "" {
			return s
		}
	}
	return parentID
}

// ProgressFunc receives a snapshot after every transition and every file.
type ProgressFunc func(State)

// Orchestrator runs workflows against one primary store and uploader.
type Orchestrator struct {
	store    PrimaryStore
	uploader Uploader
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// New returns an Orchestrator.
func New(store PrimaryStore, uploader Uploader, opts ...Option) *Orchestrator {
	o := &Orchestrator{store: store, uploader: uploader}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Execute runs req on a fresh run.
func (o *Orchestrator) Execute(ctx context.Context, req Request, progress ProgressFunc) Outcome {
	return o.NewRun(progress).Execute(ctx, req)
}

// NewRun returns an idle run. progress may be nil.
func (o *Orchestrator) NewRun(progress ProgressFunc) *Run {
	return &Run{
		o:        o,
		progress: progress,
		state:    State{Phase: PhaseIdle, CurrentFileIndex: -1},
	}
}

// Run owns the state of one workflow invocation. A run executes once; after
// a failure it can be Reset and executed again, which starts from scratch.
type Run struct {
	o        *Orchestrator
	progress ProgressFunc

	mu    sync.Mutex
	state State
	id    string
}

// ID is the identifier of the current attempt, empty before Execute.
func (r *Run) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// State returns a snapshot of the run.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Reset moves a failed run back to idle and forgets its parent and uploads.
func (r *Run) Reset() error {
	r.mu.Lock()
	if r.state.Phase != PhaseFailed {
		r.mu.Unlock()
		return fmt.Errorf("reset from %s: %w", r.state.Phase, ErrNotFailed)
	}
	r.state = State{Phase: PhaseIdle, CurrentFileIndex: -1}
	snapshot := r.state.clone()
	r.mu.Unlock()
	r.publish(snapshot)
	return nil
}

// Retry resets a failed run and executes req from the first phase. A new
// parent record is created.
func (r *Run) Retry(ctx context.Context, req Request) Outcome {
	if err := r.Reset(); err != nil {
		r.mu.Lock()
		phase := r.state.Phase
		r.mu.Unlock()
		return Outcome{Failure: &Failure{Phase: phase, Cause: err}}
	}
	return r.Execute(ctx, req)
}

// Execute drives req through every phase and returns the terminal outcome.
// Files are uploaded one at a time in order; the first failure stops the run.
func (r *Run) Execute(ctx context.Context, req Request) Outcome {
	r.mu.Lock()
	if r.state.Phase != PhaseIdle {
		phase := r.state.Phase
		r.mu.Unlock()
		return Outcome{Failure: &Failure{Phase: phase, Cause: ErrNotIdle}}
	}
	r.id = uuid.NewString()
	r.state.TotalFiles = len(req.Files)
	r.mu.Unlock()

	start := time.Now()
	logger := r.o.logger.With("run_id", r.id, "kind", req.Kind)
	logger.Info("workflow started", "files", len(req.Files))

	outcome := r.execute(ctx, req, logger)

	phase := PhaseSucceeded
	result := "succeeded"
	if outcome.Failure != nil {
		phase = outcome.Failure.Phase
		result = "failed"
		logger.Error("workflow failed",
			"phase", phase,
			"parent_id", outcome.Failure.ParentID,
			"partial_documents", len(outcome.Failure.PartialDocumentIDs),
			"error", outcome.Failure.Cause)
	} else {
		logger.Info("workflow succeeded", "parent_id", outcome.ParentID, "documents", len(outcome.DocumentIDs), "duration", time.Since(start))
	}
	r.o.metrics.ObserveWorkflow(result, string(phase), time.Since(start))
	return outcome
}

func (r *Run) execute(ctx context.Context, req Request, logger *slog.Logger) Outcome {
	if err := req.Validate(); err != nil {
		return r.fail(PhaseIdle, err)
	}

	r.transition(PhaseCreatingParent, logger)
	parentID, err := r.o.store.CreateEntity(ctx, req.Kind, req.Payload)
	if err != nil {
		return r.fail(PhaseCreatingParent, classify(model.KindCreateParentFailed, "create parent", err))
	}
	r.update(func(s *State) { s.ParentID = parentID })
	logger = logger.With("parent_id", parentID)
	logger.Info("parent created")

	if len(req.Files) > 0 {
		r.transition(PhaseUploadingFiles, logger)
		owner := req.ownerRef(parentID)
		for i, file := range req.Files {
			r.update(func(s *State) { s.CurrentFileIndex = i })
			if err := ctx.Err(); err != nil {
				return r.fail(PhaseUploadingFiles, model.Wrap(model.KindUploadFailed, "upload", err))
			}
			logger.Debug("uploading file", "file_index", i, "file", file.Name, "bytes", len(file.Data))
			doc, err := r.o.uploader.Upload(ctx, docstore.UploadRequest{
				File:         file,
				OwnerRef:     owner,
				Title:        file.DisplayTitle(),
				Description:  file.Description,
				Category:     req.Category,
				DocumentType: req.DocumentType,
				Tags:         req.Tags,
			})
			if err != nil {
				return r.fail(PhaseUploadingFiles, classify(model.KindUploadFailed, "upload", err))
			}
			r.update(func(s *State) { s.UploadedDocuments = append(s.UploadedDocuments, doc) })
			logger.Info("file uploaded", "file_index", i, "document_id", doc.ID)
		}
	}

	r.transition(PhaseRegisteringDocuments, logger)
	docs := r.State().UploadedDocuments
	if docs == nil {
		docs = []model.DocumentDescriptor{}
	}
	if err := r.o.store.AttachDocuments(ctx, req.Kind, parentID, docs); err != nil {
		return r.fail(PhaseRegisteringDocuments, classify(model.KindRegisterDocumentsFailed, "attach documents", err))
	}

	r.transition(PhaseSucceeded, logger)
	return Outcome{ParentID: parentID, DocumentIDs: model.DocumentIDs(docs), Documents: docs}
}

func (r *Run) transition(phase Phase, logger *slog.Logger) {
	r.update(func(s *State) {
		s.Phase = phase
		if phase != PhaseUploadingFiles {
			s.CurrentFileIndex = -1
		}
	})
	logger.Debug("phase", "phase", phase)
}

func (r *Run) fail(phase Phase, cause error) Outcome {
	var f *Failure
	r.update(func(s *State) {
		f = &Failure{
			Phase:              phase,
			FileIndex:          -1,
			Cause:              cause,
			ParentID:           s.ParentID,
			PartialDocumentIDs: model.DocumentIDs(s.UploadedDocuments),
		}
		if phase == PhaseUploadingFiles {
			f.FileIndex = s.CurrentFileIndex
		}
		s.Phase = PhaseFailed
		s.CurrentFileIndex = -1
		s.Failure = f
	})
	return Outcome{ParentID: f.ParentID, DocumentIDs: f.PartialDocumentIDs, Failure: f}
}

// update applies fn under the lock and publishes the resulting snapshot.
func (r *Run) update(fn func(*State)) {
	r.mu.Lock()
	fn(&r.state)
	snapshot := r.state.clone()
	r.mu.Unlock()
	r.publish(snapshot)
}

func (r *Run) publish(s State) {
	if r.progress != nil {
		r.progress(s)
	}
}

// classify keeps an existing kind and otherwise assigns kind.
func classify(kind model.ErrorKind, op string, err error) error {
	if model.KindOf(err) != "" {
		return err
	}
	return model.Wrap(kind, op, err)
}
