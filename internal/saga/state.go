package saga

import (
	"fmt"
	"strings"

	"github.com/dharsanguruparan/attachvault/internal/model"
)

// Phase is a step of the attachment workflow.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseCreatingParent       Phase = "creating_parent"
	PhaseUploadingFiles       Phase = "uploading_files"
	PhaseRegisteringDocuments Phase = "registering_documents"
	PhaseSucceeded            Phase = "succeeded"
	PhaseFailed               Phase = "failed"
)

// Step maps the phase onto the three-step progress indicator (1 to 3). Idle
// is 0 and terminal phases report 3.
func (p Phase) Step() int {
	switch p {
	case PhaseCreatingParent:
		return 1
	case PhaseUploadingFiles:
		return 2
	case PhaseRegisteringDocuments, PhaseSucceeded, PhaseFailed:
		return 3
	default:
		return 0
	}
}

// Terminal reports whether no further transition happens without a reset.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// State is a snapshot of one run. CurrentFileIndex is -1 outside
// PhaseUploadingFiles. ParentID is never cleared once set, except by Reset.
type State struct {
	Phase             Phase
	CurrentFileIndex  int
	TotalFiles        int
	ParentID          string
	UploadedDocuments []model.DocumentDescriptor
	Failure           *Failure
}

func (s State) clone() State {
	c := s
	c.UploadedDocuments = append([]model.DocumentDescriptor(nil), s.UploadedDocuments...)
	if s.Failure != nil {
		f := *s.Failure
		f.PartialDocumentIDs = append([]string(nil), s.Failure.PartialDocumentIDs...)
		c.Failure = &f
	}
	return c
}

// Failure is the terminal error of a run. Phase is the phase that failed.
// ParentID and PartialDocumentIDs describe what exists remotely and must be
// reconciled by hand: nothing is rolled back. FileIndex is the file being
// uploaded when Phase is PhaseUploadingFiles, and -1 otherwise.
type Failure struct {
	Phase              Phase
	FileIndex          int
	Cause              error
	ParentID           string
	PartialDocumentIDs []string
}

func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", f.Phase)
	if f.Phase == PhaseUploadingFiles && f.FileIndex >= 0 {
		fmt.Fprintf(&b, " at file %d", f.FileIndex)
	}
	if f.ParentID != "" {
		fmt.Fprintf(&b, " (parent %s", f.ParentID)
		if len(f.PartialDocumentIDs) > 0 {
			fmt.Fprintf(&b, ", uploaded %s", strings.Join(f.PartialDocumentIDs, ","))
		}
		b.WriteString(")")
	}
	if f.Cause != nil {
		b.WriteString(": ")
		b.WriteString(f.Cause.Error())
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Cause }

// Kind is the classified kind of the cause.
func (f *Failure) Kind() model.ErrorKind { return model.KindOf(f.Cause) }

// Outcome is the single terminal result of Execute. Exactly one of
// Failure or the success fields is meaningful.
type Outcome struct {
	ParentID    string                     `json:"parentId,omitempty"`
	DocumentIDs []string                   `json:"documentIds"`
	Documents   []model.DocumentDescriptor `json:"documents,omitempty"`
	Failure     *Failure                   `json:"-"`
}

// Succeeded reports whether the run completed every phase.
func (o Outcome) Succeeded() bool { return o.Failure == nil }

// Err returns the failure as an error, or nil.
func (o Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}
