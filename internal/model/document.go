// Package model contains the value types shared by the clients, the saga and
// the document service.
package model

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/dharsanguruparan/attachvault/internal/metadata"
)

// DocumentDescriptor describes one stored file as returned by the document
// service on upload, listing and search. Score and Highlights are only set on
// search results.
type DocumentDescriptor struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	Filename     string              `json:"filename"`
	OriginalName string              `json:"originalName"`
	MimeType     string              `json:"mimeType"`
	SizeBytes    int64               `json:"size"`
	UploadedAt   time.Time           `json:"uploadDate"`
	OwnerRef     string              `json:"ownerRef"`
	Category     string              `json:"category,omitempty"`
	DocumentType string              `json:"documentType,omitempty"`
	Tags         Tags                `json:"tags"`
	Keywords     Tags                `json:"keywords"`
	DownloadURL  string              `json:"downloadUrl,omitempty"`
	ViewURL      string              `json:"viewUrl,omitempty"`
	Score        float64             `json:"score,omitempty"`
	Highlights   map[string][]string `json:"highlights,omitempty"`
}

// Normalize runs tags and keywords through the metadata normalizer. Decoding
// from JSON already does this; descriptors built in code may not have.
func (d *DocumentDescriptor) Normalize() {
	d.Tags = Tags(metadata.NormalizeTags(d.Tags))
	d.Keywords = Tags(metadata.NormalizeTags(d.Keywords))
}

// FillURLs sets DownloadURL and ViewURL, when empty, to
// base/documents/{id}/download and base/documents/{id}/view. Descriptors
// without an id are left alone.
func (d *DocumentDescriptor) FillURLs(base string) {
	if d.ID == "" {
		return
	}
	prefix := strings.TrimRight(base, "/") + "/documents/" + url.PathEscape(d.ID)
	if d.DownloadURL == "" {
		d.DownloadURL = prefix + "/download"
	}
	if d.ViewURL == "" {
		d.ViewURL = prefix + "/view"
	}
}

// DocumentIDs returns the ids of docs in order.
func DocumentIDs(docs []DocumentDescriptor) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}

// Tags is a string list that decodes leniently. It accepts a JSON array of
// scalars, a single string holding a JSON array or a comma separated list,
// or null, and always yields the normalized form.
type Tags []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tags) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*t = Tags{}
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.Contains(s, "[") {
			*t = Tags(metadata.NormalizeTags([]string{s}))
			return nil
		}
		*t = Tags(metadata.NormalizeTags(strings.Split(s, ",")))
		return nil
	}
	var values []any
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	list := make([]string, 0, len(values))
	for _, v := range values {
		switch tv := v.(type) {
		case string:
			list = append(list, tv)
		case nil:
		default:
			b, _ := json.Marshal(tv)
			list = append(list, string(b))
		}
	}
	*t = Tags(metadata.NormalizeTags(list))
	return nil
}

// MarshalJSON writes nil as an empty array.
func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}

// File is one attachment submitted with a workflow or an upload.
type File struct {
	Name        string
	MimeType    string
	Data        []byte
	Title       string
	Description string
}

// DisplayTitle returns Title or, when empty, the filename without extension.
func (f File) DisplayTitle() string {
	if f.Title != "" {
		return f.Title
	}
	name := f.Name
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}
