// Package handler provides HTTP handlers for the docqa service.
package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// 对话流的事件名。
const (
	EventSources = "sources"
	EventToken   = "token"
	EventDone    = "done"
	EventError   = "error"
)

// ErrorEvent error 事件的数据。
type ErrorEvent struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sseWriter 将事件以 text/event-stream 格式写出并立即刷新。
type sseWriter struct {
	c *gin.Context
}

func newSSEWriter(c *gin.Context) *sseWriter {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
	return &sseWriter{c: c}
}

func (w *sseWriter) event(name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.c.Writer, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

// comment 写出注释行，用于保持空闲连接。
func (w *sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(w.c.Writer, ": %s\n\n", text); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

func (w *sseWriter) fail(err error) error {
	e := errors.FromError(err)
	return w.event(EventError, ErrorEvent{Code: e.Code, Message: e.Message("en")})
}
