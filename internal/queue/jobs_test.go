package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTaskPayload(t *testing.T) {
	in := ExtractPayload{DocumentID: "d1", ObjectKey: "documents/d1/a.pdf", FileName: "a.pdf", MimeType: "application/pdf"}
	task, err := NewExtractTask(in)
	require.NoError(t, err)
	assert.Equal(t, ExtractDocumentTask, task.Type())
	assert.JSONEq(t, `{"document_id":"d1","object_key":"documents/d1/a.pdf","file_name":"a.pdf","mime_type":"application/pdf"}`, string(task.Payload()))

	out, err := DecodeExtract(task)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
