// Package metrics 提供 docqa 服务的业务指标收集。
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace 指标命名空间。
const Namespace = "docqa"

// Metrics docqa 业务指标。每个服务实例持有一个，通过构造函数注入各组件。
// 方法对 nil 接收者安全，未注入指标的组件无需判空。
type Metrics struct {
	registry *prometheus.Registry

	ingestions     *prometheus.CounterVec
	ingestDuration prometheus.Histogram
	chunksIndexed  prometheus.Counter

	retrievals        *prometheus.CounterVec
	retrievalDuration prometheus.Histogram

	llmCalls    *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec

	jobs *prometheus.CounterVec
	chat *prometheus.CounterVec

	// 快照计数，用于 /v1/stats
	snap      snapshot
	startTime time.Time
	mu        sync.Mutex
	byStatus  map[string]uint64
}

type snapshot struct {
	chunks          atomic.Uint64
	retrievals      atomic.Uint64
	retrievalErrors atomic.Uint64
	retrievalNanos  atomic.Int64
	llmCalls        atomic.Uint64
	llmErrors       atomic.Uint64
	jobsRetried     atomic.Uint64
	jobsDead        atomic.Uint64
	chats           atomic.Uint64
	chatErrors      atomic.Uint64
}

// New 创建指标并注册到独立的 Registry，同时注册 Go 运行时与进程指标。
func New() *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		byStatus:  make(map[string]uint64),

		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "ingestions_total",
			Help: "Ingestion runs by final file status.",
		}, []string{"status"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace, Name: "ingestion_duration_seconds",
			Help:    "Wall-clock duration of ingestion runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		chunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Name: "chunks_indexed_total",
			Help: "Chunks written to the vector index.",
		}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "retrievals_total",
			Help: "Similarity searches by result.",
		}, []string{"result"}),
		retrievalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace, Name: "retrieval_duration_seconds",
			Help:    "Duration of retrieval including the query embedding.",
			Buckets: prometheus.DefBuckets,
		}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "llm_calls_total",
			Help: "Model provider calls by operation and result.",
		}, []string{"op", "result"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace, Name: "llm_call_duration_seconds",
			Help:    "Model provider call duration by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "jobs_total",
			Help: "Queue deliveries by job kind and outcome.",
		}, []string{"kind", "outcome"}),
		chat: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "chat_requests_total",
			Help: "Chat requests by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ingestions, m.ingestDuration, m.chunksIndexed,
		m.retrievals, m.retrievalDuration,
		m.llmCalls, m.llmDuration,
		m.jobs, m.chat,
	)
	return m
}

// Registry 返回指标注册表。
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler 返回 Prometheus 抓取端点。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordIngestion 记录一次入库的最终状态。
func (m *Metrics) RecordIngestion(status string, chunks int, d time.Duration) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(status).Inc()
	m.ingestDuration.Observe(d.Seconds())
	if chunks > 0 {
		m.chunksIndexed.Add(float64(chunks))
		m.snap.chunks.Add(uint64(chunks))
	}
	m.mu.Lock()
	m.byStatus[status]++
	m.mu.Unlock()
}

// RecordRetrieval 记录检索操作。
func (m *Metrics) RecordRetrieval(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(result(err)).Inc()
	m.snap.retrievals.Add(1)
	if err != nil {
		m.snap.retrievalErrors.Add(1)
		return
	}
	m.retrievalDuration.Observe(d.Seconds())
	m.snap.retrievalNanos.Add(int64(d))
}

// RecordLLMCall 记录模型调用，op 为 embed、chat、rewrite 或 vision。
func (m *Metrics) RecordLLMCall(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(op, result(err)).Inc()
	m.llmDuration.WithLabelValues(op).Observe(d.Seconds())
	m.snap.llmCalls.Add(1)
	if err != nil {
		m.snap.llmErrors.Add(1)
	}
}

// RecordJob 记录一次队列投递的结果。
func (m *Metrics) RecordJob(kind, outcome string, _ time.Duration) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(kind, outcome).Inc()
	switch outcome {
	case "retried":
		m.snap.jobsRetried.Add(1)
	case "dead":
		m.snap.jobsDead.Add(1)
	}
}

// RecordChat 记录一次对话请求。
func (m *Metrics) RecordChat(err error) {
	if m == nil {
		return
	}
	m.chat.WithLabelValues(result(err)).Inc()
	m.snap.chats.Add(1)
	if err != nil {
		m.snap.chatErrors.Add(1)
	}
}

// Stats 返回当前统计信息（用于 API）。
func (m *Metrics) Stats() map[string]any {
	if m == nil {
		return map[string]any{}
	}
	m.mu.Lock()
	byStatus := make(map[string]uint64, len(m.byStatus))
	for k, v := range m.byStatus {
		byStatus[k] = v
	}
	m.mu.Unlock()

	retrievals := m.snap.retrievals.Load()
	ok := retrievals - m.snap.retrievalErrors.Load()
	avg := 0.0
	if ok > 0 {
		avg = time.Duration(m.snap.retrievalNanos.Load() / int64(ok)).Seconds()
	}

	return map[string]any{
		"ingestion": map[string]any{
			"by_status":      byStatus,
			"chunks_indexed": m.snap.chunks.Load(),
		},
		"retrieval": map[string]any{
			"total":             retrievals,
			"errors":            m.snap.retrievalErrors.Load(),
			"avg_duration_secs": avg,
		},
		"llm": map[string]any{
			"calls_total": m.snap.llmCalls.Load(),
			"errors":      m.snap.llmErrors.Load(),
		},
		"jobs": map[string]any{
			"retried": m.snap.jobsRetried.Load(),
			"dead":    m.snap.jobsDead.Load(),
		},
		"chat": map[string]any{
			"total":  m.snap.chats.Load(),
			"errors": m.snap.chatErrors.Load(),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}
