package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/notify"
	"github.com/kart-io/docqa/internal/docqa/queue"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/response"
)

// StatsHandler 汇总运行统计。
type StatsHandler struct {
	metrics *metrics.Metrics
	files   store.FileStore
	vectors store.VectorIndex
	queue   queue.Queue
	hub     *notify.Hub
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(m *metrics.Metrics, factory store.Factory, q queue.Queue, hub *notify.Hub) *StatsHandler {
	return &StatsHandler{metrics: m, files: factory.Files(), vectors: factory.Vectors(), queue: q, hub: hub}
}

// StatsResponse 统计结果。
type StatsResponse struct {
	Files       map[string]int64 `json:"files"`
	Chunks      int64            `json:"chunks"`
	VectorIndex string           `json:"vector_index"`
	Queue       queue.Stats      `json:"queue"`
	OnlineUsers int              `json:"online_users"`
	Metrics     map[string]any   `json:"metrics"`
}

// Stats 返回文件、分块、队列与调用统计。
func (h *StatsHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	byStatus, err := h.files.CountByStatus(ctx)
	if err != nil {
		response.Fail(c, errors.ErrDatabase.WithCause(err))
		return
	}
	files := make(map[string]int64, len(byStatus))
	for s, n := range byStatus {
		files[string(s)] = n
	}

	chunks, err := h.vectors.Count(ctx)
	if err != nil {
		response.Fail(c, errors.ErrDatabase.WithCause(err))
		return
	}

	qs, err := h.queue.Stats(ctx)
	if err != nil {
		response.Fail(c, errors.ErrDocQAQueueUnavailable.WithCause(err))
		return
	}

	resp := StatsResponse{
		Files:       files,
		Chunks:      chunks,
		VectorIndex: h.vectors.Name(),
		Queue:       qs,
		Metrics:     h.metrics.Stats(),
	}
	if h.hub != nil {
		resp.OnlineUsers = h.hub.Online()
	}
	response.OK(c, resp)
}
