package llm

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderOptions(t *testing.T) {
	t.Run("环境变量补齐 API key", func(t *testing.T) {
		t.Setenv("CHAT_API_KEY", "sk-test")
		o := NewChatOptions()
		o.Provider = "openai"
		o.BaseURL = "https://api.openai.com/v1/"
		require.NoError(t, o.Complete())
		assert.Equal(t, "sk-test", o.APIKey)
		assert.Equal(t, "https://api.openai.com/v1", o.BaseURL)
		assert.NoError(t, o.Validate())
	})

	t.Run("非 ollama 缺少 key", func(t *testing.T) {
		o := NewVisionOptions()
		o.Provider = "openai"
		assert.ErrorContains(t, o.Validate(), "api-key")
	})

	t.Run("embedding 维度", func(t *testing.T) {
		o := NewEmbeddingOptions()
		o.Dimensions = 0
		assert.ErrorContains(t, o.Validate(), "dimensions")
	})

	t.Run("flag 前缀", func(t *testing.T) {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		o := NewEmbeddingOptions()
		o.AddFlags(fs, "embedding.")
		require.NoError(t, fs.Parse([]string{"--embedding.model=bge-m3", "--embedding.timeout=5s", "--embedding.dimensions=1024"}))
		assert.Equal(t, "bge-m3", o.Model)
		assert.Equal(t, 5*time.Second, o.Timeout)
		assert.Equal(t, 1024, o.Dimensions)

		chat := NewChatOptions()
		chatFS := pflag.NewFlagSet("chat", pflag.ContinueOnError)
		chat.AddFlags(chatFS, "chat.")
		assert.Nil(t, chatFS.Lookup("chat.dimensions"))
	})

	t.Run("配置 map", func(t *testing.T) {
		o := NewEmbeddingOptions()
		o.Provider = "openai"
		o.Dimensions = 1536
		m := o.ToConfigMap()
		assert.Equal(t, o.Model, m["embed_model"])
		assert.Equal(t, 1536, m["dimensions"])
	})
}
