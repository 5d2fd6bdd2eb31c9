// Package llm provides model provider configuration options.
package llm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// ProviderOptions 定义单个模型供应商的配置。
// embedding、chat、vision 各持有一份，可指向不同供应商。
type ProviderOptions struct {
	// Provider 供应商名称（ollama、openai、deepseek、siliconflow）。
	Provider string `json:"provider" mapstructure:"provider"`

	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey 未设置时从 <PREFIX>_API_KEY 环境变量读取。
	APIKey string `json:"-" mapstructure:"api-key"`

	Model string `json:"model" mapstructure:"model"`

	// Timeout 单次调用超时。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	Organization string `json:"organization" mapstructure:"organization"`

	// Dimensions 期望的向量维度，仅 embedding 使用。
	Dimensions int `json:"dimensions,omitempty" mapstructure:"dimensions"`

	envPrefix string
}

func newProviderOptions(envPrefix, model string) *ProviderOptions {
	return &ProviderOptions{
		Provider:   "ollama",
		BaseURL:    "http://localhost:11434",
		Model:      model,
		Timeout:    60 * time.Second,
		MaxRetries: 3,
		envPrefix:  envPrefix,
	}
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置。
func NewEmbeddingOptions() *ProviderOptions {
	o := newProviderOptions("EMBEDDING", "nomic-embed-text")
	o.Timeout = 30 * time.Second
	o.Dimensions = 768
	return o
}

// NewChatOptions 创建默认 Chat 供应商配置。
func NewChatOptions() *ProviderOptions {
	return newProviderOptions("CHAT", "qwen2.5:7b")
}

// NewVisionOptions 创建默认 Vision 供应商配置。
func NewVisionOptions() *ProviderOptions {
	return newProviderOptions("VISION", "llava:7b")
}

// ToConfigMap 转换为供应商工厂使用的配置 map。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	m := map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"chat_model":   o.Model,
		"vision_model": o.Model,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
	if o.Dimensions > 0 && o.Provider != "ollama" {
		m["dimensions"] = o.Dimensions
	}
	return m
}

// AddFlags adds flags for the provider options to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, namePrefix string) {
	fs.StringVar(&o.Provider, namePrefix+"provider", o.Provider, "Model provider (ollama, openai, deepseek, siliconflow)")
	fs.StringVar(&o.BaseURL, namePrefix+"base-url", o.BaseURL, "Provider API base URL")
	fs.StringVar(&o.APIKey, namePrefix+"api-key", o.APIKey, "Provider API key (prefer the <KIND>_API_KEY env var)")
	fs.StringVar(&o.Model, namePrefix+"model", o.Model, "Model name")
	fs.DurationVar(&o.Timeout, namePrefix+"timeout", o.Timeout, "Per-call timeout")
	fs.IntVar(&o.MaxRetries, namePrefix+"max-retries", o.MaxRetries, "HTTP-level retries for a single call")
	fs.StringVar(&o.Organization, namePrefix+"organization", o.Organization, "Organization ID (openai only)")
	if o.envPrefix == "EMBEDDING" {
		fs.IntVar(&o.Dimensions, namePrefix+"dimensions", o.Dimensions, "Embedding vector dimensionality")
	}
}

// Complete 从环境变量补齐 API key。
func (o *ProviderOptions) Complete() error {
	if o.APIKey == "" && o.envPrefix != "" {
		o.APIKey = os.Getenv(o.envPrefix + "_API_KEY")
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	return nil
}

// Validate validates the provider options.
func (o *ProviderOptions) Validate() error {
	if o.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if o.Model == "" {
		return fmt.Errorf("model is required")
	}
	if o.Provider != "ollama" && o.APIKey == "" {
		return fmt.Errorf("api-key is required for provider %s", o.Provider)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative")
	}
	if o.envPrefix == "EMBEDDING" && o.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	return nil
}
