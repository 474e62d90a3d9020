package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/attachvault/internal/api"
	"github.com/dharsanguruparan/attachvault/internal/config"
	"github.com/dharsanguruparan/attachvault/internal/queue"
	"github.com/dharsanguruparan/attachvault/internal/signing"
	"github.com/dharsanguruparan/attachvault/internal/storage"
)

type discardQueue struct{}

func (discardQueue) Enqueue(context.Context, queue.ExtractPayload) error { return nil }

// primaryStub records what the CLI sends to the primary store.
type primaryStub struct {
	mu        sync.Mutex
	created   []map[string]any
	attached  []string
	attachErr bool
}

func (p *primaryStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /substitutions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.mu.Lock()
		p.created = append(p.created, body)
		p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"sub-1"}}`))
	})
	mux.HandleFunc("POST /substitutions/{id}/documents", func(w http.ResponseWriter, r *http.Request) {
		if p.attachErr {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		var body struct {
			DocumentIDs []string `json:"documentIds"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.mu.Lock()
		p.attached = append(p.attached, body.DocumentIDs...)
		p.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

type harness struct {
	app     *app
	out     *bytes.Buffer
	errOut  *bytes.Buffer
	primary *primaryStub
	dir     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	svcCfg := &config.Config{
		MaxFileSize:  1 << 20,
		AllowedTypes: []string{"text/plain", "application/pdf"},
		SignedURLTTL: time.Minute,
	}
	srv := api.New(svcCfg, storage.NewMemoryIndex(), storage.NewMemoryBlobs(), discardQueue{}, signing.NewSigner([]byte("k")), nil, nil)
	docs := httptest.NewServer(srv.Handler())
	t.Cleanup(docs.Close)

	stub := &primaryStub{}
	prim := httptest.NewServer(stub.handler())
	t.Cleanup(prim.Close)

	h := &harness{out: &bytes.Buffer{}, errOut: &bytes.Buffer{}, primary: stub, dir: t.TempDir()}
	h.app = &app{
		cfg: &config.Config{
			DocServiceURL:   docs.URL,
			PrimaryStoreURL: prim.URL,
			HTTPTimeout:     5 * time.Second,
			DownloadDir:     h.dir,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		out:    h.out,
		errOut: h.errOut,
	}
	return h
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	h.out.Reset()
	h.errOut.Reset()
	cmd := newRootCommand(h.app)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSubmitAttachesFiles(t *testing.T) {
	h := newHarness(t)
	first := writeTemp(t, "contrato.txt", "Contrato de sustitución")
	second := writeTemp(t, "anexo.txt", "Anexo al contrato")

	err := h.run(t, "submit", "--kind", "substitutions",
		"--payload", `{"employeeId":"e-17","reason":"leave"}`,
		"--owner-field", "employeeId",
		"--file", first, "--file", second,
		"--tag", "contract")
	require.NoError(t, err)

	var outcome struct {
		ParentID    string   `json:"parentId"`
		DocumentIDs []string `json:"documentIds"`
		Documents   []struct {
			OwnerRef string   `json:"ownerRef"`
			Tags     []string `json:"tags"`
		} `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &outcome))
	assert.Equal(t, "sub-1", outcome.ParentID)
	require.Len(t, outcome.DocumentIDs, 2)
	assert.Equal(t, outcome.DocumentIDs, h.primary.attached)
	assert.Equal(t, "e-17", outcome.Documents[0].OwnerRef)
	assert.Equal(t, []string{"contract"}, outcome.Documents[1].Tags)
	assert.Equal(t, "leave", h.primary.created[0]["reason"])

	progress := h.errOut.String()
	assert.Contains(t, progress, "[1/3] creating_parent")
	assert.Contains(t, progress, "[2/3] uploading_files: file 2 of 2")
	assert.Contains(t, progress, "[3/3] succeeded")
}

func TestSubmitReportsPartialFailure(t *testing.T) {
	h := newHarness(t)
	h.primary.attachErr = true
	path := writeTemp(t, "contrato.txt", "Contrato")

	err := h.run(t, "submit", "--kind", "substitutions", "--file", path)
	require.Error(t, err)

	var report failure
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &report))
	assert.Equal(t, "registering_documents", string(report.Phase))
	assert.Equal(t, "register_documents_failed", string(report.Kind))
	assert.Equal(t, "sub-1", report.ParentID)
	assert.Len(t, report.PartialDocumentIDs, 1)
	assert.Nil(t, report.FileIndex)
}

func TestSubmitValidatesBeforeCallingServices(t *testing.T) {
	h := newHarness(t)

	err := h.run(t, "submit", "--kind", "substitutions")
	require.Error(t, err)
	assert.Empty(t, h.primary.created)

	err = h.run(t, "submit", "--kind", "substitutions", "--payload", "[1,2]", "--allow-empty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON object")
	assert.Empty(t, h.primary.created)
}

func TestSubmitWithoutFilesStillRegisters(t *testing.T) {
	h := newHarness(t)
	payload := writeTemp(t, "payload.json", `{"hours": 4}`)

	require.NoError(t, h.run(t, "submit", "--kind", "substitutions", "--payload", "@"+payload, "--allow-empty"))
	assert.Contains(t, h.out.String(), `"parentId": "sub-1"`)
	assert.Equal(t, float64(4), h.primary.created[0]["hours"])
}

func TestSearchSuggestAndDownload(t *testing.T) {
	h := newHarness(t)
	path := writeTemp(t, "contrato-marzo.txt", "Contrato firmado")
	require.NoError(t, h.run(t, "submit", "--kind", "substitutions", "--file", path, "--category", "substitution"))

	var outcome struct {
		DocumentIDs []string `json:"documentIds"`
	}
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &outcome))
	id := outcome.DocumentIDs[0]

	require.NoError(t, h.run(t, "search", "contrato", "--category", "substitution"))
	assert.Contains(t, h.out.String(), id)

	require.NoError(t, h.run(t, "search", "contrato", "--all", "--limit", "1"))
	assert.Contains(t, h.out.String(), `"total": 1`)

	require.NoError(t, h.run(t, "list", "sub-1"))
	assert.Contains(t, h.out.String(), id)

	require.NoError(t, h.run(t, "suggest", "contr"))
	assert.Equal(t, "contrato-marzo\n", h.out.String())

	require.NoError(t, h.run(t, "get", id))
	assert.Contains(t, h.out.String(), `"originalName": "contrato-marzo.txt"`)

	require.NoError(t, h.run(t, "download", id))
	saved, err := os.ReadFile(filepath.Join(h.dir, "contrato-marzo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Contrato firmado", string(saved))

	require.Error(t, h.run(t, "search", "--from", "yesterday"))
}

func TestViewUsesNavigator(t *testing.T) {
	h := newHarness(t)
	var opened string
	h.app.navigator = navigatorFunc(func(url string) { opened = url })

	require.NoError(t, h.run(t, "view", "doc-1"))
	assert.Contains(t, opened, "/documents/doc-1/view")
}

type navigatorFunc func(string)

func (f navigatorFunc) Open(_ context.Context, url string) error {
	f(url)
	return nil
}
