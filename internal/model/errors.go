package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can render them without parsing
// messages.
type ErrorKind string

const (
	KindValidation              ErrorKind = "validation"
	KindCreateParentFailed      ErrorKind = "create_parent_failed"
	KindUploadFailed            ErrorKind = "upload_failed"
	KindPayloadTooLarge         ErrorKind = "payload_too_large"
	KindRegisterDocumentsFailed ErrorKind = "register_documents_failed"
	KindDownloadFailed          ErrorKind = "download_failed"
	KindSearchFailed            ErrorKind = "search_failed"
	KindMalformedResponse       ErrorKind = "malformed_response"
)

// IsUpload reports whether k is an upload failure, including the
// payload-too-large sub-kind.
func (k ErrorKind) IsUpload() bool {
	return k == KindUploadFailed || k == KindPayloadTooLarge
}

// Error is a classified failure. Status carries the HTTP status when the
// failure came from a response.
type Error struct {
	Kind   ErrorKind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted cause.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. It returns nil for a nil err.
func Wrap(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
