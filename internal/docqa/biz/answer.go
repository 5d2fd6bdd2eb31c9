package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/pkg/llm"
)

// RefusalAnswer 上下文中没有答案时模型必须原样输出的句子。
const RefusalAnswer = "I could not find the answer in the provided documents."

// AnswerPrompt 回答阶段的系统指令，%s 处填入上下文。
const AnswerPrompt = `You answer questions using only the context below.
Do not use outside knowledge.
End every factual answer with a citation in the form [name](link), copied from the Source line of the context you used.
If the context does not contain the answer, reply exactly: "` + RefusalAnswer + `"

Context:
%s`

// Answerer 基于检索上下文流式生成回答。
type Answerer struct {
	chat    llm.ChatProvider
	metrics *metrics.Metrics
}

// NewAnswerer 创建回答生成器。chat 不支持流式时整段输出。
func NewAnswerer(chat llm.ChatProvider, m *metrics.Metrics) *Answerer {
	return &Answerer{chat: chat, metrics: m}
}

// BuildContext 将来源格式化为上下文块。
func BuildContext(sources []Source) string {
	if len(sources) == 0 {
		return "(no documents matched)"
	}
	var sb strings.Builder
	for i, s := range sources {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Source: [%s](%s) (%s)\n%s", s.Name, s.Link, s.Visibility, s.Content)
	}
	return sb.String()
}

// Stream 调用模型并逐个转发 token。中途出错直接返回，不重试。
func (a *Answerer) Stream(ctx context.Context, messages []llm.Message, sources []Source, emit llm.TokenHandler) error {
	conv := make([]llm.Message, 0, len(messages)+1)
	conv = append(conv, llm.Message{Role: llm.RoleSystem, Content: fmt.Sprintf(AnswerPrompt, BuildContext(sources))})
	conv = append(conv, messages...)

	start := time.Now()
	err := llm.StreamOrFallback(ctx, a.chat, conv, emit)
	a.metrics.RecordLLMCall("chat", time.Since(start), err)
	return err
}
