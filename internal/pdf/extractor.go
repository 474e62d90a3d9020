// Package pdfutil pulls plain text out of PDF documents for indexing.
package pdfutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	pdf "github.com/ledongthuc/pdf"
)

// MaxPages bounds how much of a long document is indexed.
const MaxPages = 200

var (
	// ErrEmpty is returned for a zero-length input.
	ErrEmpty = errors.New("empty pdf")
	// ErrNoText is returned when no page yields readable text.
	ErrNoText = errors.New("pdf has no extractable text")
)

// ExtractText returns the text of the first MaxPages pages, one line per
// page with whitespace runs collapsed. Pages the parser cannot read are
// skipped; the call fails only when none can be read.
func ExtractText(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	pages := min(doc.NumPage(), MaxPages)
	var (
		out     strings.Builder
		pageErr error
		read    int
	)
	for i := 1; i <= pages; i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			pageErr = fmt.Errorf("page %d: %w", i, err)
			continue
		}
		read++
		if line := collapseSpace(content); line != "" {
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}
	if read == 0 && pageErr != nil {
		return "", pageErr
	}
	if out.Len() == 0 {
		return "", ErrNoText
	}
	return out.String(), nil
}

// ExtractFromReader buffers r and calls ExtractText; the parser needs random
// access.
func ExtractFromReader(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	return ExtractText(data)
}

func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
