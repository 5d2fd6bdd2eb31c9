// Package llm provides a unified abstraction over model providers.
// Embedding, chat and vision may each be served by a different provider.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// EmbeddingProvider 定义 Embedding 供应商接口。
type EmbeddingProvider interface {
	// Embed 为多个文本生成向量嵌入，结果顺序与输入一致。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量嵌入。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	Name() string
}

// ChatProvider 定义 Chat 供应商接口。
type ChatProvider interface {
	// Chat 进行多轮对话。
	Chat(ctx context.Context, messages []Message) (string, error)

	// Generate 根据提示生成文本（单轮）。
	Generate(ctx context.Context, prompt string, systemPrompt string) (string, error)

	Name() string
}

// TokenHandler 接收一个增量 token，返回错误时终止流。
type TokenHandler func(delta string) error

// StreamingChatProvider 支持增量输出的 Chat 供应商。
type StreamingChatProvider interface {
	ChatProvider

	// ChatStream 进行多轮对话，每收到一个增量 token 调用一次 onToken。
	ChatStream(ctx context.Context, messages []Message, onToken TokenHandler) error
}

// VisionProvider 定义图片描述供应商接口。
type VisionProvider interface {
	// DescribeImage 根据提示返回图片的文字描述。
	DescribeImage(ctx context.Context, image []byte, mimeType string, prompt string) (string, error)

	Name() string
}

// Message 表示对话中的一条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role 定义消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid 判断角色是否合法。
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Provider 同时支持 Embedding 和 Chat 的完整供应商。
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// ProviderFactory 供应商工厂函数类型。
type ProviderFactory func(config map[string]any) (Provider, error)

// EmbeddingProviderFactory Embedding 供应商工厂函数类型。
type EmbeddingProviderFactory func(config map[string]any) (EmbeddingProvider, error)

// ChatProviderFactory Chat 供应商工厂函数类型。
type ChatProviderFactory func(config map[string]any) (ChatProvider, error)

// VisionProviderFactory Vision 供应商工厂函数类型。
type VisionProviderFactory func(config map[string]any) (VisionProvider, error)

var registry = &providerRegistry{
	providers:          make(map[string]ProviderFactory),
	embeddingProviders: make(map[string]EmbeddingProviderFactory),
	chatProviders:      make(map[string]ChatProviderFactory),
	visionProviders:    make(map[string]VisionProviderFactory),
}

type providerRegistry struct {
	mu                 sync.RWMutex
	providers          map[string]ProviderFactory
	embeddingProviders map[string]EmbeddingProviderFactory
	chatProviders      map[string]ChatProviderFactory
	visionProviders    map[string]VisionProviderFactory
}

// RegisterProvider 注册完整供应商工厂。
func RegisterProvider(name string, factory ProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.providers[name] = factory
}

// RegisterEmbeddingProvider 注册 Embedding 供应商工厂。
func RegisterEmbeddingProvider(name string, factory EmbeddingProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.embeddingProviders[name] = factory
}

// RegisterChatProvider 注册 Chat 供应商工厂。
func RegisterChatProvider(name string, factory ChatProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.chatProviders[name] = factory
}

// RegisterVisionProvider 注册 Vision 供应商工厂。
func RegisterVisionProvider(name string, factory VisionProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.visionProviders[name] = factory
}

// NewProvider 根据名称创建完整供应商实例。
func NewProvider(name string, config map[string]any) (Provider, error) {
	registry.mu.RLock()
	factory, ok := registry.providers[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}

	return factory(config)
}

// NewEmbeddingProvider 根据名称创建 Embedding 供应商实例。
// 优先查找专用 Embedding 工厂，其次查找完整供应商工厂。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	if factory, ok := registry.embeddingProviders[name]; ok {
		return factory(config)
	}
	if factory, ok := registry.providers[name]; ok {
		return factory(config)
	}

	return nil, fmt.Errorf("unknown embedding provider: %s", name)
}

// NewChatProvider 根据名称创建 Chat 供应商实例。
// 优先查找专用 Chat 工厂，其次查找完整供应商工厂。
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	if factory, ok := registry.chatProviders[name]; ok {
		return factory(config)
	}
	if factory, ok := registry.providers[name]; ok {
		return factory(config)
	}

	return nil, fmt.Errorf("unknown chat provider: %s", name)
}

// NewVisionProvider 根据名称创建 Vision 供应商实例。
// 没有专用工厂时，若完整供应商实现了 VisionProvider 则直接使用。
func NewVisionProvider(name string, config map[string]any) (VisionProvider, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	if factory, ok := registry.visionProviders[name]; ok {
		return factory(config)
	}
	if factory, ok := registry.providers[name]; ok {
		p, err := factory(config)
		if err != nil {
			return nil, err
		}
		if v, ok := p.(VisionProvider); ok {
			return v, nil
		}
		return nil, fmt.Errorf("provider %s does not support vision", name)
	}

	return nil, fmt.Errorf("unknown vision provider: %s", name)
}

// ListProviders 列出所有已注册的供应商名称（已排序）。
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	seen := make(map[string]struct{})
	add := func(name string) { seen[name] = struct{}{} }

	for name := range registry.providers {
		add(name)
	}
	for name := range registry.embeddingProviders {
		add(name)
	}
	for name := range registry.chatProviders {
		add(name)
	}
	for name := range registry.visionProviders {
		add(name)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StreamOrFallback 使用流式接口输出 token；供应商不支持流式时，
// 退化为一次 Chat 调用并把完整回答作为单个 token 交给 onToken。
func StreamOrFallback(ctx context.Context, p ChatProvider, messages []Message, onToken TokenHandler) error {
	if s, ok := p.(StreamingChatProvider); ok {
		return s.ChatStream(ctx, messages, onToken)
	}
	answer, err := p.Chat(ctx, messages)
	if err != nil {
		return err
	}
	if answer == "" {
		return nil
	}
	return onToken(answer)
}
