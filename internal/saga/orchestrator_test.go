package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/attachvault/internal/docstore"
	"github.com/dharsanguruparan/attachvault/internal/metrics"
	"github.com/dharsanguruparan/attachvault/internal/model"
)

type attachCall struct {
	kind string
	id   string
	docs []model.DocumentDescriptor
}

type fakeStore struct {
	mu        sync.Mutex
	creates   []map[string]any
	attaches  []attachCall
	createErr error
	attachErr error
}

func (s *fakeStore) CreateEntity(_ context.Context, kind string, payload map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	s.creates = append(s.creates, payload)
	return fmt.Sprintf("%s-%d", kind, len(s.creates)), nil
}

func (s *fakeStore) AttachDocuments(_ context.Context, kind, id string, docs []model.DocumentDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attaches = append(s.attaches, attachCall{kind: kind, id: id, docs: docs})
	return s.attachErr
}

type fakeUploader struct {
	mu       sync.Mutex
	requests []docstore.UploadRequest
	failAt   int
	failErr  error
}

func newUploader() *fakeUploader { return &fakeUploader{failAt: -1} }

func (u *fakeUploader) Upload(_ context.Context, req docstore.UploadRequest) (model.DocumentDescriptor, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	i := len(u.requests)
	u.requests = append(u.requests, req)
	if i == u.failAt {
		return model.DocumentDescriptor{}, u.failErr
	}
	return model.DocumentDescriptor{ID: fmt.Sprintf("doc-%d", i+1), Filename: req.File.Name, OwnerRef: req.OwnerRef}, nil
}

func pdf(name string) model.File {
	return model.File{Name: name, MimeType: "application/pdf", Data: []byte("%PDF-1.4 " + name)}
}

func substitution(files ...model.File) Request {
	return Request{
		Kind:         "substitutions",
		Payload:      map[string]any{"employeeId": "emp-7", "date": "2024-03-01"},
		Files:        files,
		AllowedTypes: []string{"application/pdf"},
		Category:     "substitution",
	}
}

func TestExecuteSuccess(t *testing.T) {
	store, up := &fakeStore{}, newUploader()
	m := metrics.New()
	o := New(store, up, WithMetrics(m))

	out := o.Execute(context.Background(), substitution(pdf("a.pdf"), pdf("b.pdf")), nil)
	require.True(t, out.Succeeded(), "%v", out.Err())
	assert.Equal(t, "substitutions-1", out.ParentID)
	assert.Equal(t, []string{"doc-1", "doc-2"}, out.DocumentIDs)

	require.Len(t, up.requests, 2)
	assert.Equal(t, "substitutions-1", up.requests[0].OwnerRef)
	assert.Equal(t, "a", up.requests[0].Title)
	assert.Equal(t, "substitution", up.requests[1].Category)

	require.Len(t, store.attaches, 1)
	assert.Equal(t, "substitutions-1", store.attaches[0].id)
	assert.Equal(t, []string{"doc-1", "doc-2"}, model.DocumentIDs(store.attaches[0].docs))
}

func TestExecuteSecondUploadFails(t *testing.T) {
	store, up := &fakeStore{}, newUploader()
	up.failAt = 1
	up.failErr = model.Wrap(model.KindUploadFailed, "upload", errors.New("connection reset by peer"))
	run := New(store, up).NewRun(nil)

	out := run.Execute(context.Background(), substitution(pdf("a.pdf"), pdf("b.pdf"), pdf("c.pdf")))
	require.False(t, out.Succeeded())
	f := out.Failure
	assert.Equal(t, PhaseUploadingFiles, f.Phase)
	assert.Equal(t, "substitutions-1", f.ParentID)
	assert.Equal(t, []string{"doc-1"}, f.PartialDocumentIDs)
	assert.Equal(t, 1, f.FileIndex, "names the failing file")
	assert.Equal(t, model.KindUploadFailed, f.Kind())
	assert.ErrorContains(t, out.Err(), "connection reset")

	assert.Len(t, up.requests, 2, "remaining files are not attempted")
	assert.Empty(t, store.attaches, "attach is never called")

	st := run.State()
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, "substitutions-1", st.ParentID)
	assert.Len(t, st.UploadedDocuments, 1)
	assert.Equal(t, -1, st.CurrentFileIndex)
	require.NotNil(t, st.Failure)
	assert.Equal(t, 1, st.Failure.FileIndex)
}

func TestExecuteCreateFails(t *testing.T) {
	store, up := &fakeStore{createErr: errors.New("boom")}, newUploader()
	out := New(store, up).Execute(context.Background(), substitution(pdf("a.pdf")), nil)

	require.NotNil(t, out.Failure)
	assert.Equal(t, PhaseCreatingParent, out.Failure.Phase)
	assert.Empty(t, out.Failure.ParentID)
	assert.Empty(t, out.Failure.PartialDocumentIDs)
	assert.Equal(t, -1, out.Failure.FileIndex)
	assert.Equal(t, model.KindCreateParentFailed, out.Failure.Kind())
	assert.Empty(t, up.requests)
}

func TestExecuteAttachFails(t *testing.T) {
	store, up := &fakeStore{attachErr: errors.New("503")}, newUploader()
	out := New(store, up).Execute(context.Background(), substitution(pdf("a.pdf"), pdf("b.pdf")), nil)

	require.NotNil(t, out.Failure)
	assert.Equal(t, PhaseRegisteringDocuments, out.Failure.Phase)
	assert.Equal(t, "substitutions-1", out.Failure.ParentID)
	assert.Equal(t, []string{"doc-1", "doc-2"}, out.Failure.PartialDocumentIDs)
	assert.Equal(t, model.KindRegisterDocumentsFailed, out.Failure.Kind())
}

func TestExecuteWithoutFiles(t *testing.T) {
	store, up := &fakeStore{}, newUploader()
	req := substitution()
	req.AllowNoFiles = true

	out := New(store, up).Execute(context.Background(), req, nil)
	require.True(t, out.Succeeded())
	assert.Len(t, store.creates, 1)
	assert.Empty(t, up.requests)
	require.Len(t, store.attaches, 1)
	assert.NotNil(t, store.attaches[0].docs)
	assert.Empty(t, store.attaches[0].docs)
	assert.Empty(t, out.DocumentIDs)
}

func TestValidationHappensBeforeNetwork(t *testing.T) {
	cases := map[string]Request{
		"no kind":      {Files: []model.File{pdf("a.pdf")}},
		"no files":     substitution(),
		"empty file":   substitution(model.File{Name: "e.pdf", MimeType: "application/pdf"}),
		"wrong type":   substitution(model.File{Name: "x.exe", MimeType: "application/x-msdownload", Data: []byte("MZ")}),
		"unnamed file": substitution(model.File{MimeType: "application/pdf", Data: []byte("x")}),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			store, up := &fakeStore{}, newUploader()
			out := New(store, up).Execute(context.Background(), req, nil)
			require.NotNil(t, out.Failure)
			assert.Equal(t, model.KindValidation, out.Failure.Kind())
			assert.Equal(t, PhaseIdle, out.Failure.Phase)
			assert.Empty(t, store.creates)
			assert.Empty(t, up.requests)
		})
	}
}

func TestOwnerField(t *testing.T) {
	store, up := &fakeStore{}, newUploader()
	req := substitution(pdf("a.pdf"))
	req.OwnerField = "employeeId"
	require.True(t, New(store, up).Execute(context.Background(), req, nil).Succeeded())
	assert.Equal(t, "emp-7", up.requests[0].OwnerRef)

	req.OwnerField = "missing"
	up = newUploader()
	require.True(t, New(store, up).Execute(context.Background(), req, nil).Succeeded())
	assert.Equal(t, "substitutions-2", up.requests[0].OwnerRef)
}

func TestProgressPublishesEveryPhase(t *testing.T) {
	var phases []Phase
	var indexes []int
	progress := func(s State) {
		if len(phases) == 0 || phases[len(phases)-1] != s.Phase {
			phases = append(phases, s.Phase)
		}
		if s.Phase == PhaseUploadingFiles && s.CurrentFileIndex >= 0 {
			if len(indexes) == 0 || indexes[len(indexes)-1] != s.CurrentFileIndex {
				indexes = append(indexes, s.CurrentFileIndex)
			}
		}
		assert.LessOrEqual(t, len(s.UploadedDocuments), s.TotalFiles)
	}
	out := New(&fakeStore{}, newUploader()).Execute(context.Background(), substitution(pdf("a.pdf"), pdf("b.pdf")), progress)
	require.True(t, out.Succeeded())
	assert.Equal(t, []Phase{PhaseCreatingParent, PhaseUploadingFiles, PhaseRegisteringDocuments, PhaseSucceeded}, phases)
	assert.Equal(t, []int{0, 1}, indexes)
}

func TestResetAndRetry(t *testing.T) {
	store, up := &fakeStore{}, newUploader()
	up.failAt = 0
	up.failErr = errors.New("timeout")
	run := New(store, up).NewRun(nil)

	assert.ErrorIs(t, run.Reset(), ErrNotFailed)

	first := run.Execute(context.Background(), substitution(pdf("a.pdf")))
	require.NotNil(t, first.Failure)
	firstID := run.ID()

	again := run.Execute(context.Background(), substitution(pdf("a.pdf")))
	assert.ErrorIs(t, again.Err(), ErrNotIdle)

	out := run.Retry(context.Background(), substitution(pdf("a.pdf")))
	require.True(t, out.Succeeded(), "%v", out.Err())
	assert.Equal(t, "substitutions-2", out.ParentID, "retry creates a new parent")
	assert.Len(t, store.creates, 2)
	assert.NotEqual(t, firstID, run.ID())

	st := run.State()
	assert.Equal(t, PhaseSucceeded, st.Phase)
	assert.Nil(t, st.Failure)
	assert.Len(t, st.UploadedDocuments, 1)

	assert.ErrorIs(t, run.Retry(context.Background(), substitution(pdf("a.pdf"))).Err(), ErrNotFailed)
}

func TestCanceledContextStopsUploads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	up := newUploader()
	out := New(&fakeStore{}, up).Execute(ctx, substitution(pdf("a.pdf")), nil)
	require.NotNil(t, out.Failure)
	assert.Equal(t, PhaseUploadingFiles, out.Failure.Phase)
	assert.ErrorIs(t, out.Err(), context.Canceled)
	assert.Empty(t, up.requests)
}

func TestFailureMessage(t *testing.T) {
	f := &Failure{Phase: PhaseUploadingFiles, FileIndex: 1, ParentID: "p1", PartialDocumentIDs: []string{"d1"}, Cause: errors.New("x")}
	assert.Equal(t, "uploading_files failed at file 1 (parent p1, uploaded d1): x", f.Error())
	f = &Failure{Phase: PhaseRegisteringDocuments, FileIndex: -1, ParentID: "p1", Cause: errors.New("x")}
	assert.Equal(t, "registering_documents failed (parent p1): x", f.Error())
	assert.Equal(t, 2, PhaseUploadingFiles.Step())
	assert.True(t, PhaseFailed.Terminal())
}
