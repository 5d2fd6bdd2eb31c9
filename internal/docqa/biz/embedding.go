package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/pkg/llm"
)

var (
	// ErrEmptyEmbedding 供应商返回了空向量。
	ErrEmptyEmbedding = errors.New("embedding provider returned an empty vector")
	// ErrZeroEmbedding 供应商返回了全零向量。
	ErrZeroEmbedding = errors.New("embedding provider returned a zero vector")
)

// EmbeddingClient 对单段文本生成向量，并校验维度。
// 失败时返回错误，从不返回替代向量。
type EmbeddingClient struct {
	provider llm.EmbeddingProvider
	dim      int
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// NewEmbeddingClient 创建 EmbeddingClient。timeout 为 0 表示不额外设置超时。
func NewEmbeddingClient(provider llm.EmbeddingProvider, dim int, timeout time.Duration, m *metrics.Metrics) *EmbeddingClient {
	return &EmbeddingClient{provider: provider, dim: dim, timeout: timeout, metrics: m}
}

// Dimension 返回期望的向量维度。
func (c *EmbeddingClient) Dimension() int { return c.dim }

// Embed 生成 text 的向量。
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	vec, err := c.provider.EmbedSingle(ctx, text)
	if err == nil {
		err = c.validate(vec)
	}
	c.metrics.RecordLLMCall("embed", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("embed with %s: %w", c.provider.Name(), err)
	}
	return vec, nil
}

func (c *EmbeddingClient) validate(vec []float32) error {
	if len(vec) == 0 {
		return ErrEmptyEmbedding
	}
	if len(vec) != c.dim {
		return fmt.Errorf("%w: got %d values, want %d", store.ErrDimensionMismatch, len(vec), c.dim)
	}
	for _, v := range vec {
		if v != 0 {
			return nil
		}
	}
	return ErrZeroEmbedding
}
