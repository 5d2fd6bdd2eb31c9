package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
	errno "github.com/kart-io/docqa/pkg/utils/errors"
)

// ChatService 串联查询改写、检索与回答。
type ChatService struct {
	rewriter  *Rewriter
	retriever *Retriever
	answerer  *Answerer
	metrics   *metrics.Metrics
	timeout   time.Duration
}

// NewChatService 创建对话服务。timeout 为整个请求的时限，0 表示不限。
func NewChatService(rw *Rewriter, rt *Retriever, an *Answerer, m *metrics.Metrics, timeout time.Duration) *ChatService {
	return &ChatService{rewriter: rw, retriever: rt, answerer: an, metrics: m, timeout: timeout}
}

// ValidateConversation 最后一条消息必须来自 user 且不为空。
// 消息数量与角色取值由请求结构的 binding 标签校验。
func ValidateConversation(messages []llm.Message) error {
	if len(messages) == 0 || messages[len(messages)-1].Role != llm.RoleUser {
		return errno.ErrDocQAInvalidChat.WithMessage("last message must come from the user")
	}
	last := messages[len(messages)-1]
	if strings.TrimSpace(last.Content) == "" {
		return errno.ErrDocQAInvalidChat.WithMessage("last message must not be empty")
	}
	return nil
}

// Chat 改写查询、检索来源，先通过 onSources 交付来源，再流式输出回答。
// 交互请求不重试，任何错误直接返回。
func (s *ChatService) Chat(
	ctx context.Context,
	userID string,
	messages []llm.Message,
	onSources func([]Source) error,
	onToken llm.TokenHandler,
) (err error) {
	defer func() { s.metrics.RecordChat(err) }()

	if err := ValidateConversation(messages); err != nil {
		return err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ctx, span := tracing.Start(ctx, "docqa.chat",
		tracing.String("enduser.id", userID),
		tracing.Int("chat.messages", len(messages)),
	)
	defer func() { tracing.End(span, err) }()

	// 1. 改写
	query := s.rewriter.Rewrite(ctx, messages)

	// 2. 检索
	sources, err := s.retriever.Retrieve(ctx, query, userID)
	if err != nil {
		logger.Errorw("Retrieval failed", "user_id", userID, "error", err.Error())
		if ctx.Err() != nil {
			return errno.ErrDocQAChatTimeout.WithCause(err)
		}
		return errno.ErrDocQAQueryFailed.WithCause(err)
	}
	if onSources != nil {
		if err := onSources(sources); err != nil {
			return err
		}
	}

	// 3. 回答
	if err := s.answerer.Stream(ctx, messages, sources, onToken); err != nil {
		if ctx.Err() != nil {
			return errno.ErrDocQAChatTimeout.WithCause(err)
		}
		return errno.ErrDocQAModelUnavailable.WithCause(err)
	}
	return nil
}
