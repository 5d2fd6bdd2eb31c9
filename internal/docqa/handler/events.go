package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/docqa/notify"
	"github.com/kart-io/docqa/pkg/infra/middleware"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/response"
)

// EventsHandler 将文件状态变化推送给在线用户。
type EventsHandler struct {
	hub       *notify.Hub
	keepalive time.Duration
}

// NewEventsHandler creates a new EventsHandler. keepalive 为 0 时使用 25 秒。
func NewEventsHandler(hub *notify.Hub, keepalive time.Duration) *EventsHandler {
	if keepalive <= 0 {
		keepalive = 25 * time.Second
	}
	return &EventsHandler{hub: hub, keepalive: keepalive}
}

// Subscribe 保持一个事件流，直到客户端断开或服务关闭。
func (h *EventsHandler) Subscribe(c *gin.Context) {
	sub, err := h.hub.Subscribe(middleware.GetUserID(c))
	if err != nil {
		response.Fail(c, errors.ErrUnavailable.WithCause(err))
		return
	}
	defer sub.Close()

	w := newSSEWriter(c)
	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.comment("ping"); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := w.event(ev.Name, ev.Data); err != nil {
				return
			}
		}
	}
}
