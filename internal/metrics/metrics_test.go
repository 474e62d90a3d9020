package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCounters(t *testing.T) {
	m := New()
	m.ObserveWorkflow("failed", "uploading_files", time.Second)
	m.ObserveUpload("ok")
	m.ObserveUpload("ok")
	m.ObserveDownload("buffered", "ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkflowRuns.WithLabelValues("failed", "uploading_files")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Uploads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Downloads.WithLabelValues("buffered", "ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveWorkflow("succeeded", "succeeded", 0)
		m.ObserveSearch("general", "ok")
		m.ObserveHTTP("/search", 200, 0)
		m.ObserveExtraction("ok")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTP("/documents", 201, 10*time.Millisecond)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `attachvault_http_requests_total{code="201",route="/documents"} 1`)
}
