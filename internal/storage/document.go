// Package storage holds the document-service record type and the in-memory
// index and blob store used in development and tests.
package storage

import (
	"errors"
	"time"

	"github.com/dharsanguruparan/attachvault/internal/model"
)

// ErrNotFound is returned for unknown document ids and object keys.
var ErrNotFound = errors.New("document not found")

// Status is the text-extraction lifecycle of a stored document.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusIndexed    Status = "indexed"
	StatusFailed     Status = "failed"
)

// Document is the service-side record: the public descriptor plus where the
// bytes live and what extraction produced.
type Document struct {
	model.DocumentDescriptor
	ObjectKey string
	Status    Status
	Content   string
	Message   string
	UpdatedAt time.Time
}

// Descriptor returns the public view without search-only fields.
func (d *Document) Descriptor() model.DocumentDescriptor {
	desc := d.DocumentDescriptor
	desc.Tags = append(model.Tags{}, d.Tags...)
	desc.Keywords = append(model.Tags{}, d.Keywords...)
	desc.Score = 0
	desc.Highlights = nil
	return desc
}
