package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/pkg/infra/middleware"
	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/response"
)

// ChatHandler 处理对话请求。
type ChatHandler struct {
	svc *biz.ChatService
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc *biz.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// ChatRequest 对话请求，messages 为完整的对话历史。
type ChatRequest struct {
	Messages []ChatMessage `json:"messages" binding:"required,min=1,dive"`
}

// ChatMessage 对话历史中的一条消息，客户端只能提交 user 与 assistant 消息。
type ChatMessage struct {
	Role    llm.Role `json:"role" binding:"required,oneof=user assistant"`
	Content string   `json:"content"`
}

func (r *ChatRequest) conversation() []llm.Message {
	messages := make([]llm.Message, len(r.Messages))
	for i, m := range r.Messages {
		messages[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return messages
}

// SourcesEvent sources 事件的数据。
type SourcesEvent struct {
	Sources []biz.Source `json:"sources"`
}

// TokenEvent token 事件的数据。
type TokenEvent struct {
	Delta string `json:"delta"`
}

// Chat 以 SSE 返回：一个 sources 事件，若干 token 事件，最后是 done 或 error。
// 请求校验失败时返回普通 JSON 错误。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.ErrDocQAInvalidChat.WithMessage(err.Error()))
		return
	}
	messages := req.conversation()
	if err := biz.ValidateConversation(messages); err != nil {
		response.Fail(c, err)
		return
	}

	userID := middleware.GetUserID(c)
	w := newSSEWriter(c)

	err := h.svc.Chat(c.Request.Context(), userID, messages,
		func(sources []biz.Source) error {
			return w.event(EventSources, SourcesEvent{Sources: sources})
		},
		func(delta string) error {
			return w.event(EventToken, TokenEvent{Delta: delta})
		},
	)
	if err != nil {
		if c.Request.Context().Err() != nil {
			logger.Infow("Chat client disconnected", "user_id", userID)
			return
		}
		logger.Warnw("Chat failed", "user_id", userID, "error", err.Error())
		_ = w.fail(err)
		return
	}
	_ = w.event(EventDone, struct{}{})
}
