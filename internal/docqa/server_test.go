package docqa

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/llm"
)

// flakyProvider 每次调用都返回可重试的网络错误。
type flakyProvider struct {
	mu     sync.Mutex
	calls  int
	config map[string]any
}

func (p *flakyProvider) fail() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return &net.DNSError{Err: "temporary failure", Name: "llm.local", IsTemporary: true}
}

func (p *flakyProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *flakyProvider) Embed(context.Context, []string) ([][]float32, error) { return nil, p.fail() }
func (p *flakyProvider) EmbedSingle(context.Context, string) ([]float32, error) {
	return nil, p.fail()
}
func (p *flakyProvider) Chat(context.Context, []llm.Message) (string, error) { return "", p.fail() }
func (p *flakyProvider) Generate(context.Context, string, string) (string, error) {
	return "", p.fail()
}
func (p *flakyProvider) Name() string { return "flaky" }

func TestInteractiveProvidersDoNotRetry(t *testing.T) {
	var (
		mu      sync.Mutex
		created []*flakyProvider
	)
	newFlaky := func(config map[string]any) *flakyProvider {
		mu.Lock()
		defer mu.Unlock()
		p := &flakyProvider{config: config}
		created = append(created, p)
		return p
	}
	llm.RegisterEmbeddingProvider("flaky-embed", func(config map[string]any) (llm.EmbeddingProvider, error) {
		return newFlaky(config), nil
	})
	llm.RegisterChatProvider("flaky-chat", func(config map[string]any) (llm.ChatProvider, error) {
		return newFlaky(config), nil
	})

	o := NewOptions()
	o.Embedding.Provider = "flaky-embed"
	o.Chat.Provider = "flaky-chat"
	o.Vision.Provider = "none"
	o.Cache.Enabled = false

	p, err := newProviders(o, nil)
	require.NoError(t, err)
	require.Len(t, created, 3)
	ingestRaw, queryRaw, chatRaw := created[0], created[1], created[2]

	t.Run("查询向量化只调用一次", func(t *testing.T) {
		_, err := p.query.EmbedSingle(context.Background(), "what is in the report")
		require.Error(t, err)
		assert.Equal(t, 1, queryRaw.count())
		assert.Equal(t, 0, queryRaw.config["max_retries"])
	})

	t.Run("问题改写只调用一次", func(t *testing.T) {
		_, err := p.rewrite.Generate(context.Background(), "rewrite this", "")
		require.Error(t, err)
		assert.Equal(t, 1, chatRaw.count())
		assert.Equal(t, 0, chatRaw.config["max_retries"])
	})

	t.Run("入库向量化保留重试", func(t *testing.T) {
		assert.Equal(t, o.Embedding.MaxRetries, ingestRaw.config["max_retries"])
		assert.NotSame(t, p.embedding, p.query)
	})
}
