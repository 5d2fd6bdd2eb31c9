package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIngestion(t *testing.T) {
	m := New()
	m.RecordIngestion("indexed", 3, time.Second)
	m.RecordIngestion("indexed", 2, time.Second)
	m.RecordIngestion("duplicate", 0, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ingestions.WithLabelValues("indexed")))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.chunksIndexed))

	stats := m.Stats()["ingestion"].(map[string]any)
	assert.Equal(t, map[string]uint64{"indexed": 2, "duplicate": 1}, stats["by_status"])
	assert.Equal(t, uint64(5), stats["chunks_indexed"])
}

func TestRecordRetrievalAndLLM(t *testing.T) {
	m := New()
	m.RecordRetrieval(100*time.Millisecond, nil)
	m.RecordRetrieval(300*time.Millisecond, nil)
	m.RecordRetrieval(0, errors.New("boom"))
	m.RecordLLMCall("embed", time.Millisecond, nil)
	m.RecordLLMCall("chat", time.Millisecond, errors.New("503"))

	r := m.Stats()["retrieval"].(map[string]any)
	assert.Equal(t, uint64(3), r["total"])
	assert.Equal(t, uint64(1), r["errors"])
	assert.InDelta(t, 0.2, r["avg_duration_secs"], 1e-9)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.llmCalls.WithLabelValues("chat", "error")))
	l := m.Stats()["llm"].(map[string]any)
	assert.Equal(t, uint64(2), l["calls_total"])
	assert.Equal(t, uint64(1), l["errors"])
}

func TestRecordJob(t *testing.T) {
	m := New()
	m.RecordJob("ingest_file", "retried", 0)
	m.RecordJob("ingest_file", "dead", 0)
	m.RecordJob("ingest_file", "succeeded", 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobs.WithLabelValues("ingest_file", "dead")))
	j := m.Stats()["jobs"].(map[string]any)
	assert.Equal(t, uint64(1), j["retried"])
	assert.Equal(t, uint64(1), j["dead"])
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordIngestion("indexed", 1, time.Second)
		m.RecordRetrieval(time.Second, nil)
		m.RecordLLMCall("embed", time.Second, nil)
		m.RecordJob("ingest_file", "dead", 0)
		m.RecordChat(nil)
	})
	assert.Empty(t, m.Stats())
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordChat(nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `docqa_chat_requests_total{result="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
