package docstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/attachvault/internal/model"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c, srv
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("/documents")
	assert.Error(t, err)
}

func TestUploadSendsMultipartAndNormalizes(t *testing.T) {
	var got struct {
		owner, title, category, docType, tags, filename, contentType, auth string
		body                                                             []byte
	}
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/documents", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		got.owner = r.FormValue("ownerRef")
		got.title = r.FormValue("title")
		got.category = r.FormValue("category")
		got.docType = r.FormValue("documentType")
		got.tags = r.FormValue("tags")
		got.auth = r.Header.Get("Authorization")
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		got.filename = hdr.Filename
		got.contentType = hdr.Header.Get("Content-Type")
		got.body, _ = io.ReadAll(f)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"document":{"id":"doc-1","title":"Acta","filename":"acta.pdf","tags":["[","\"acta\"",",","\"2024\"","]"]}}`)
	}), WithToken("secret"))

	doc, err := c.Upload(context.Background(), UploadRequest{
		File:         model.File{Name: "acta.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.4")},
		OwnerRef:     "emp-9",
		Category:     "administrative",
		DocumentType: "acta",
		Tags:         []string{"acta", "2024"},
	})
	require.NoError(t, err)

	assert.Equal(t, "emp-9", got.owner)
	assert.Equal(t, "acta", got.title)
	assert.Equal(t, "administrative", got.category)
	assert.Equal(t, "acta", got.docType)
	assert.JSONEq(t, `["acta","2024"]`, got.tags)
	assert.Equal(t, "acta.pdf", got.filename)
	assert.Equal(t, "application/pdf", got.contentType)
	assert.Equal(t, "%PDF-1.4", string(got.body))
	assert.Equal(t, "Bearer secret", got.auth)

	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, model.Tags{"acta", "2024"}, doc.Tags)
	assert.Equal(t, srv.URL+"/documents/doc-1/download", doc.DownloadURL)
	assert.Equal(t, srv.URL+"/documents/doc-1/view", doc.ViewURL)
}

func TestUploadRejectsEmptyFileWithoutNetwork(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	_, err := c.Upload(context.Background(), UploadRequest{File: model.File{Name: "a.pdf"}, OwnerRef: "1"})
	assert.Equal(t, model.KindValidation, model.KindOf(err))
	assert.Zero(t, calls)
}

func TestUploadErrorKinds(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		kind    model.ErrorKind
		status  int
	}{
		{"too large", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "file exceeds limit", http.StatusRequestEntityTooLarge)
		}, model.KindPayloadTooLarge, 413},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}, model.KindUploadFailed, 500},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `<html>ok</html>`)
		}, model.KindMalformedResponse, 200},
		{"missing id", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"title": "x"})
		}, model.KindMalformedResponse, 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, tc.handler)
			_, err := c.Upload(context.Background(), UploadRequest{
				File:     model.File{Name: "a.pdf", Data: []byte("x")},
				OwnerRef: "1",
			})
			require.Error(t, err)
			assert.Equal(t, tc.kind, model.KindOf(err))
			var e *model.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tc.status, e.Status)
		})
	}
}

func TestUploadNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()
	c, err := New(base)
	require.NoError(t, err)
	_, err = c.Upload(context.Background(), UploadRequest{File: model.File{Name: "a.pdf", Data: []byte("x")}, OwnerRef: "1"})
	assert.Equal(t, model.KindUploadFailed, model.KindOf(err))
}

func TestGetDescriptor(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents/a%2Fb", r.URL.EscapedPath())
		io.WriteString(w, `{"id":"a/b","downloadUrl":"https://cdn.example/x.pdf","tags":"uno,dos"}`)
	}))
	doc, err := c.Get(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/x.pdf", doc.DownloadURL)
	assert.Equal(t, model.Tags{"uno", "dos"}, doc.Tags)
	assert.Contains(t, doc.ViewURL, "/documents/a%2Fb/view")
}

func TestResolveURLs(t *testing.T) {
	c, err := New("https://docs.example/api/")
	require.NoError(t, err)

	u, err := c.DownloadURL("42", "")
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example/api/documents/42/download", u)

	u, err = c.DownloadURL("42", "https://cdn.example/f.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/f.pdf", u)

	u, err = c.ViewURL("42", "/documents/42/view?signature=s")
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example/documents/42/view?signature=s", u)

	_, err = c.ViewURL("", "")
	assert.Equal(t, model.KindValidation, model.KindOf(err))
}
