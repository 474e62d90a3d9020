package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/attachvault/internal/model"
	"github.com/dharsanguruparan/attachvault/internal/saga"
)

type submitOptions struct {
	kind         string
	payload      string
	files        []string
	ownerField   string
	allowEmpty   bool
	allowedTypes []string
	category     string
	documentType string
	tags         []string
}

func newSubmitCmd(a *app) *cobra.Command {
	var opts submitOptions
	cmd := &cobra.Command{
		Use:   "submit --kind KIND --payload JSON --file PATH...",
		Short: "Create a record and attach files to it",
		Long: `submit creates the parent record, uploads each file in order and registers
the uploaded documents against the record. Nothing is rolled back on failure:
the report names the parent and any documents that already exist.`,
		Example: `  attachvault submit --kind substitutions --payload '{"employeeId":"e-17"}' \
    --owner-field employeeId --file contract.pdf --tag contract`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request()
			if err != nil {
				return err
			}
			store, err := a.primary()
			if err != nil {
				return err
			}
			docs, err := a.docstore()
			if err != nil {
				return err
			}
			orch := saga.New(store, docs, saga.WithLogger(a.logger), saga.WithMetrics(a.metrics))
			outcome := orch.Execute(cmd.Context(), req, a.printProgress)
			if outcome.Succeeded() {
				return a.printJSON(outcome)
			}
			if err := a.printJSON(failureReport(outcome.Failure)); err != nil {
				return err
			}
			return outcome.Err()
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.kind, "kind", "", "Parent record kind, e.g. substitutions, overtime, administrative-acts")
	f.StringVar(&opts.payload, "payload", "{}", "Parent record as JSON, or @path to a JSON file")
	f.StringArrayVar(&opts.files, "file", nil, "File to attach (repeatable, uploaded in order)")
	f.StringVar(&opts.ownerField, "owner-field", "", "Payload key whose value becomes the documents' owner reference")
	f.BoolVar(&opts.allowEmpty, "allow-empty", false, "Allow submitting without files")
	f.StringArrayVar(&opts.allowedTypes, "allowed-type", nil, "Restrict files to these MIME types (repeatable)")
	f.StringVar(&opts.category, "category", "", "Category for every uploaded document")
	f.StringVar(&opts.documentType, "type", "", "Document type for every uploaded document")
	f.StringArrayVar(&opts.tags, "tag", nil, "Tag for every uploaded document (repeatable)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func (o submitOptions) request() (saga.Request, error) {
	payload, err := parsePayload(o.payload)
	if err != nil {
		return saga.Request{}, err
	}
	files := make([]model.File, 0, len(o.files))
	for _, path := range o.files {
		file, err := readFile(path)
		if err != nil {
			return saga.Request{}, err
		}
		files = append(files, file)
	}
	return saga.Request{
		Kind:         o.kind,
		Payload:      payload,
		Files:        files,
		AllowNoFiles: o.allowEmpty,
		OwnerField:   o.ownerField,
		AllowedTypes: o.allowedTypes,
		Category:     o.category,
		DocumentType: o.documentType,
		Tags:         o.tags,
	}, nil
}

func parsePayload(raw string) (map[string]any, error) {
	data := []byte(raw)
	if path, ok := strings.CutPrefix(raw, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
	}
	payload := map[string]any{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return payload, nil
}

func readFile(path string) (model.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.File{}, fmt.Errorf("read %s: %w", path, err)
	}
	return model.File{
		Name:     filepath.Base(path),
		MimeType: detectType(path, data),
		Data:     data,
	}, nil
}

// detectType prefers the extension and sniffs the content otherwise.
func detectType(path string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			return mediaType
		}
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}

func (a *app) printProgress(s saga.State) {
	switch s.Phase {
	case saga.PhaseUploadingFiles:
		if s.CurrentFileIndex >= 0 {
			fmt.Fprintf(a.errOut, "[%d/3] %s: file %d of %d\n", s.Phase.Step(), s.Phase, s.CurrentFileIndex+1, s.TotalFiles)
			return
		}
	case saga.PhaseFailed:
		fmt.Fprintf(a.errOut, "[%d/3] %s\n", s.Phase.Step(), s.Failure)
		return
	}
	fmt.Fprintf(a.errOut, "[%d/3] %s\n", s.Phase.Step(), s.Phase)
}

type failure struct {
	Phase              saga.Phase      `json:"phase"`
	FileIndex          *int            `json:"fileIndex,omitempty"`
	Kind               model.ErrorKind `json:"kind"`
	Error              string          `json:"error"`
	ParentID           string          `json:"parentId,omitempty"`
	PartialDocumentIDs []string        `json:"partialDocumentIds,omitempty"`
}

func failureReport(f *saga.Failure) failure {
	report := failure{
		Phase:              f.Phase,
		Kind:               f.Kind(),
		Error:              f.Error(),
		ParentID:           f.ParentID,
		PartialDocumentIDs: f.PartialDocumentIDs,
	}
	if f.FileIndex >= 0 {
		report.FileIndex = &f.FileIndex
	}
	return report
}
