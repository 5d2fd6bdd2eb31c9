package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider 模拟供应商实现，用于测试。
type mockProvider struct {
	name   string
	answer string
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{0.1, 0.2, 0.3}
	}
	return result, nil
}

func (m *mockProvider) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockProvider) Chat(_ context.Context, _ []Message) (string, error) {
	return m.answer, nil
}

func (m *mockProvider) Generate(_ context.Context, _ string, _ string) (string, error) {
	return "mock generated text", nil
}

type mockVisionProvider struct {
	mockProvider
}

func (m *mockVisionProvider) DescribeImage(_ context.Context, image []byte, mimeType, _ string) (string, error) {
	return mimeType + ":" + string(image), nil
}

type mockStreamingProvider struct {
	mockProvider
	tokens []string
}

func (m *mockStreamingProvider) ChatStream(_ context.Context, _ []Message, onToken TokenHandler) error {
	for _, tok := range m.tokens {
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return nil
}

func TestRegistry(t *testing.T) {
	RegisterProvider("test-provider", func(config map[string]any) (Provider, error) {
		name := "test-provider"
		if n, ok := config["name"].(string); ok {
			name = n
		}
		return &mockProvider{name: name}, nil
	})
	RegisterEmbeddingProvider("embed-only", func(map[string]any) (EmbeddingProvider, error) {
		return &mockProvider{name: "embed-only"}, nil
	})
	RegisterChatProvider("chat-only", func(map[string]any) (ChatProvider, error) {
		return &mockProvider{name: "chat-only"}, nil
	})
	RegisterProvider("vision-capable", func(map[string]any) (Provider, error) {
		return &mockVisionProvider{mockProvider{name: "vision-capable"}}, nil
	})

	t.Run("完整供应商", func(t *testing.T) {
		p, err := NewProvider("test-provider", map[string]any{"name": "custom-name"})
		require.NoError(t, err)
		assert.Equal(t, "custom-name", p.Name())

		_, err = NewProvider("unknown-provider", nil)
		assert.Error(t, err)
	})

	t.Run("Embedding 专用与回退", func(t *testing.T) {
		p, err := NewEmbeddingProvider("embed-only", nil)
		require.NoError(t, err)
		assert.Equal(t, "embed-only", p.Name())

		p, err = NewEmbeddingProvider("test-provider", nil)
		require.NoError(t, err)
		assert.NotNil(t, p)
	})

	t.Run("Chat 专用与回退", func(t *testing.T) {
		p, err := NewChatProvider("chat-only", nil)
		require.NoError(t, err)
		assert.Equal(t, "chat-only", p.Name())

		_, err = NewChatProvider("missing", nil)
		assert.Error(t, err)
	})

	t.Run("Vision 通过完整供应商", func(t *testing.T) {
		v, err := NewVisionProvider("vision-capable", nil)
		require.NoError(t, err)
		desc, err := v.DescribeImage(context.Background(), []byte("px"), "image/png", "describe")
		require.NoError(t, err)
		assert.Equal(t, "image/png:px", desc)

		_, err = NewVisionProvider("test-provider", nil)
		assert.ErrorContains(t, err, "does not support vision")
	})

	t.Run("列表有序", func(t *testing.T) {
		names := ListProviders()
		assert.Contains(t, names, "test-provider")
		assert.Contains(t, names, "embed-only")
		assert.IsNonDecreasing(t, names)
	})
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleSystem.Valid())
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("tool").Valid())
}

func TestStreamOrFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("流式", func(t *testing.T) {
		p := &mockStreamingProvider{tokens: []string{"a", "b", "c"}}
		var sb strings.Builder
		err := StreamOrFallback(ctx, p, nil, func(d string) error {
			sb.WriteString(d)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "abc", sb.String())
	})

	t.Run("回调错误中止", func(t *testing.T) {
		p := &mockStreamingProvider{tokens: []string{"a", "b"}}
		stop := errors.New("client gone")
		n := 0
		err := StreamOrFallback(ctx, p, nil, func(string) error {
			n++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, n)
	})

	t.Run("非流式退化", func(t *testing.T) {
		p := &mockProvider{answer: "whole answer"}
		var got []string
		err := StreamOrFallback(ctx, p, nil, func(d string) error {
			got = append(got, d)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"whole answer"}, got)
	})
}
