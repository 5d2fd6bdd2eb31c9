package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProviderWithConfig(&Config{
		BaseURL:     srv.URL,
		EmbedModel:  "embed",
		ChatModel:   "chat",
		VisionModel: "vision",
		Timeout:     5 * time.Second,
	})
}

func TestEmbed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		_, _ = io.WriteString(w, `{"model":"embed","embeddings":[[1,0],[0,1]]}`)
	})

	got, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, got)

	_, err = p.Embed(context.Background(), []string{"a", "b", "c"})
	assert.Error(t, err, "数量不一致应报错")
}

func TestDescribeImage(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "vision", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Len(t, req.Messages[0].Images, 1)
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"a chart"},"done":true}`)
	})

	out, err := p.DescribeImage(context.Background(), []byte("img"), "image/jpeg", "describe")
	require.NoError(t, err)
	assert.Equal(t, "a chart", out)
}

func TestChatStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"message":{"content":"foo"},"done":false}`+"\n")
		_, _ = io.WriteString(w, `{"message":{"content":"bar"},"done":false}`+"\n")
		_, _ = io.WriteString(w, `{"message":{"content":""},"done":true}`+"\n")
	})

	var sb strings.Builder
	err := p.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}}, func(d string) error {
		sb.WriteString(d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "foobar", sb.String())
}

func TestChatStreamUpstreamError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"error":"model not found"}`+"\n")
	})
	err := p.ChatStream(context.Background(), nil, func(string) error { return nil })
	assert.ErrorContains(t, err, "model not found")
}
