package resilience

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/httpclient"
)

// EmbeddingProvider 带重试和熔断的 Embedding 供应商包装器。
type EmbeddingProvider struct {
	provider llm.EmbeddingProvider
	retry    *RetryConfig
	cb       *CircuitBreaker
}

// WrapEmbedding 包装 Embedding 供应商，配置为 nil 时使用默认值。
func WrapEmbedding(provider llm.EmbeddingProvider, retry *RetryConfig, cb *CircuitBreakerConfig) *EmbeddingProvider {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	return &EmbeddingProvider{
		provider: provider,
		retry:    retry,
		cb:       NewCircuitBreaker(provider.Name()+"-embedding", cb),
	}
}

func (r *EmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := RetryWithCircuitBreaker(ctx, r.retry, r.cb, func() error {
		var err error
		result, err = r.provider.Embed(ctx, texts)
		return err
	})
	return result, err
}

func (r *EmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := RetryWithCircuitBreaker(ctx, r.retry, r.cb, func() error {
		var err error
		result, err = r.provider.EmbedSingle(ctx, text)
		return err
	})
	return result, err
}

func (r *EmbeddingProvider) Name() string { return r.provider.Name() }

// CircuitBreaker 返回熔断器，供统计接口使用。
func (r *EmbeddingProvider) CircuitBreaker() *CircuitBreaker { return r.cb }

// ChatProvider 带重试和熔断的 Chat 供应商包装器，同时实现流式接口。
type ChatProvider struct {
	provider llm.ChatProvider
	retry    *RetryConfig
	cb       *CircuitBreaker
}

var _ llm.StreamingChatProvider = (*ChatProvider)(nil)

// WrapChat 包装 Chat 供应商。
func WrapChat(provider llm.ChatProvider, retry *RetryConfig, cb *CircuitBreakerConfig) *ChatProvider {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	return &ChatProvider{
		provider: provider,
		retry:    retry,
		cb:       NewCircuitBreaker(provider.Name()+"-chat", cb),
	}
}

func (r *ChatProvider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	var result string
	err := RetryWithCircuitBreaker(ctx, r.retry, r.cb, func() error {
		var err error
		result, err = r.provider.Chat(ctx, messages)
		return err
	})
	return result, err
}

func (r *ChatProvider) Generate(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	var result string
	err := RetryWithCircuitBreaker(ctx, r.retry, r.cb, func() error {
		var err error
		result, err = r.provider.Generate(ctx, prompt, systemPrompt)
		return err
	})
	return result, err
}

// ChatStream 仅在尚未输出任何 token 时重试，已输出部分内容后的错误直接返回。
func (r *ChatProvider) ChatStream(ctx context.Context, messages []llm.Message, onToken llm.TokenHandler) error {
	emitted := false
	retry := *r.retry
	base := retry.RetryableErrors
	if base == nil {
		base = IsRetryableError
	}
	retry.RetryableErrors = func(err error) bool {
		return !emitted && base(err)
	}

	return RetryWithCircuitBreaker(ctx, &retry, r.cb, func() error {
		return llm.StreamOrFallback(ctx, r.provider, messages, func(delta string) error {
			emitted = true
			return onToken(delta)
		})
	})
}

func (r *ChatProvider) Name() string { return r.provider.Name() }

// CircuitBreaker 返回熔断器，供统计接口使用。
func (r *ChatProvider) CircuitBreaker() *CircuitBreaker { return r.cb }

// VisionProvider 带重试和熔断的 Vision 供应商包装器。
type VisionProvider struct {
	provider llm.VisionProvider
	retry    *RetryConfig
	cb       *CircuitBreaker
}

// WrapVision 包装 Vision 供应商。
func WrapVision(provider llm.VisionProvider, retry *RetryConfig, cb *CircuitBreakerConfig) *VisionProvider {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	return &VisionProvider{
		provider: provider,
		retry:    retry,
		cb:       NewCircuitBreaker(provider.Name()+"-vision", cb),
	}
}

func (r *VisionProvider) DescribeImage(ctx context.Context, image []byte, mimeType string, prompt string) (string, error) {
	var result string
	err := RetryWithCircuitBreaker(ctx, r.retry, r.cb, func() error {
		var err error
		result, err = r.provider.DescribeImage(ctx, image, mimeType, prompt)
		return err
	})
	return result, err
}

func (r *VisionProvider) Name() string { return r.provider.Name() }

// CircuitBreaker 返回熔断器，供统计接口使用。
func (r *VisionProvider) CircuitBreaker() *CircuitBreaker { return r.cb }

// IsRetryableError 判断错误是否可重试：
// 上游 429/5xx、网络错误和连接提前断开可重试，取消、超时和熔断不重试。
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitBreakerOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
