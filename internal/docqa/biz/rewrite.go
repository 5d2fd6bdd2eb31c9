package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/pkg/llm"
)

// RewritePrompt 查询改写的系统指令。
const RewritePrompt = `You rewrite the last user message of a conversation into a standalone search query.
Resolve pronouns and references using the earlier turns.
If the last message is already standalone, return it verbatim.
Never answer the question. Output only the query.`

// Rewriter 将多轮对话折叠为独立的检索查询。
type Rewriter struct {
	chat    llm.ChatProvider
	metrics *metrics.Metrics
}

// NewRewriter 创建查询改写器。chat 为 nil 时始终返回最后一条消息。
func NewRewriter(chat llm.ChatProvider, m *metrics.Metrics) *Rewriter {
	return &Rewriter{chat: chat, metrics: m}
}

// Rewrite 返回独立查询。只有一条消息时不调用模型，模型失败时回退到最后一条消息。
func (r *Rewriter) Rewrite(ctx context.Context, messages []llm.Message) string {
	if len(messages) == 0 {
		return ""
	}
	last := messages[len(messages)-1].Content
	if len(messages) == 1 || r.chat == nil {
		return last
	}

	conv := make([]llm.Message, 0, len(messages)+1)
	conv = append(conv, llm.Message{Role: llm.RoleSystem, Content: RewritePrompt})
	conv = append(conv, messages...)

	start := time.Now()
	out, err := r.chat.Chat(ctx, conv)
	r.metrics.RecordLLMCall("rewrite", time.Since(start), err)
	if err != nil {
		logger.Warnw("Query rewrite failed, using last message", "error", err.Error())
		return last
	}

	query := strings.TrimSpace(out)
	if query == "" {
		return last
	}
	logger.Debugw("Query rewritten", "original", last, "rewritten", query)
	return query
}
