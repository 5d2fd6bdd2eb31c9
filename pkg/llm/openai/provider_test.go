package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/httpclient"
)

const testAPIKey = "test-key"

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = testAPIKey
	cfg.Timeout = 5 * time.Second
	cfg.MaxRetries = 0
	return NewProviderWithConfig(cfg)
}

func TestNewProvider(t *testing.T) {
	t.Run("缺少 api_key", func(t *testing.T) {
		_, err := NewProvider(map[string]any{})
		assert.Error(t, err)
	})

	t.Run("自定义配置", func(t *testing.T) {
		p, err := NewProvider(map[string]any{
			"api_key":     testAPIKey,
			"base_url":    "http://localhost:8080/v1/",
			"chat_model":  "gpt-4o",
			"max_retries": 0,
			"stop":        []any{"END", 1},
		})
		require.NoError(t, err)
		op := p.(*Provider)
		assert.Equal(t, "http://localhost:8080/v1", op.config.BaseURL)
		assert.Equal(t, "gpt-4o", op.config.ChatModel)
		assert.Equal(t, 0, op.config.MaxRetries)
		assert.Equal(t, []string{"END"}, op.config.Stop)
		assert.Equal(t, ProviderName, p.Name())
	})

	t.Run("兼容供应商注册", func(t *testing.T) {
		p, err := llm.NewProvider("siliconflow", map[string]any{"api_key": testAPIKey})
		require.NoError(t, err)
		assert.Equal(t, "siliconflow", p.Name())
		assert.Equal(t, "BAAI/bge-m3", p.(*Provider).config.EmbedModel)

		d, err := llm.NewProvider("deepseek", map[string]any{"api_key": testAPIKey})
		require.NoError(t, err)
		assert.Equal(t, "https://api.deepseek.com", d.(*Provider).config.BaseURL)
	})
}

func TestEmbedRestoresOrder(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer "+testAPIKey, r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)

		_, _ = io.WriteString(w, `{"data":[{"embedding":[2,2],"index":1},{"embedding":[1,1],"index":0}]}`)
	})

	got, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 2}}, got)

	empty, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestEmbedMissingIndex(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"embedding":[1],"index":0}]}`)
	})
	_, err := p.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "missing embedding")
}

func TestStatusErrorIsTyped(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "slow down")
	})
	_, err := p.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})

	var se *httpclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.True(t, se.Temporary())
}

func TestGenerate(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.False(t, req.Stream)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"rewritten"}}]}`)
	})

	out, err := p.Generate(context.Background(), "prompt", "system prompt")
	require.NoError(t, err)
	assert.Equal(t, "rewritten", out)
}

func TestDescribeImage(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"type":"image_url"`)
		assert.Contains(t, string(body), "data:image/png;base64,")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"a cat"}}]}`)
	})

	out, err := p.DescribeImage(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png", "describe")
	require.NoError(t, err)
	assert.Equal(t, "a cat", out)

	_, err = p.DescribeImage(context.Background(), nil, "image/png", "describe")
	assert.Error(t, err)
}

func TestChatStream(t *testing.T) {
	t.Run("正常结束", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "text/event-stream")
			for _, tok := range []string{"Hel", "lo"} {
				_, _ = fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", tok)
			}
			_, _ = io.WriteString(w, ": keep-alive\n\ndata: [DONE]\n\n")
		})

		var sb strings.Builder
		err := p.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, func(d string) error {
			sb.WriteString(d)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "Hello", sb.String())
	})

	t.Run("流提前断开", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
		})
		err := p.ChatStream(context.Background(), nil, func(string) error { return nil })
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("上游错误", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		err := p.ChatStream(context.Background(), nil, func(string) error { return nil })
		var se *httpclient.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	})
}
