// Package openai implements the llm provider interfaces against the OpenAI API
// and OpenAI-compatible services (Azure OpenAI, LocalAI, DeepSeek, SiliconFlow).
//
// Usage:
//
//	import _ "github.com/kart-io/docqa/pkg/llm/openai"
//
//	provider, err := llm.NewProvider("openai", map[string]any{
//	    "api_key": "your-api-key",
//	})
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/httpclient"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// ProviderName 是 OpenAI 供应商的名称标识符。
const ProviderName = "openai"

// 兼容 OpenAI 协议的供应商默认值。
var compatible = map[string]Config{
	"deepseek": {
		BaseURL:   "https://api.deepseek.com",
		ChatModel: "deepseek-chat",
	},
	"siliconflow": {
		BaseURL:     "https://api.siliconflow.cn/v1",
		EmbedModel:  "BAAI/bge-m3",
		ChatModel:   "Qwen/Qwen2.5-7B-Instruct",
		VisionModel: "Qwen/Qwen2-VL-72B-Instruct",
	},
}

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
	for name, defaults := range compatible {
		llm.RegisterProvider(name, compatibleFactory(name, defaults))
	}
}

// Config OpenAI 供应商配置。
type Config struct {
	// BaseURL API 基础地址，可指向任意兼容服务。
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	APIKey string `json:"api_key" mapstructure:"api_key"`

	EmbedModel  string `json:"embed_model" mapstructure:"embed_model"`
	ChatModel   string `json:"chat_model" mapstructure:"chat_model"`
	VisionModel string `json:"vision_model" mapstructure:"vision_model"`

	// Dimensions 请求的向量维度，0 表示使用模型默认值。
	Dimensions int `json:"dimensions" mapstructure:"dimensions"`

	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`

	Organization string `json:"organization" mapstructure:"organization"`

	// Temperature 范围 0.0-2.0，0 表示使用 API 默认值。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	TopP        float64 `json:"top_p" mapstructure:"top_p"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Stop        []string `json:"stop" mapstructure:"stop"`

	// name 注册名，兼容供应商用于区分日志与指标。
	name string
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://api.openai.com/v1",
		EmbedModel:  "text-embedding-3-small",
		ChatModel:   "gpt-4o-mini",
		VisionModel: "gpt-4o-mini",
		Timeout:     120 * time.Second,
		MaxRetries:  3,
		name:        ProviderName,
	}
}

// Provider OpenAI 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
	stream *httpclient.Client
}

var (
	_ llm.Provider              = (*Provider)(nil)
	_ llm.StreamingChatProvider = (*Provider)(nil)
	_ llm.VisionProvider        = (*Provider)(nil)
)

// NewProvider 从配置 map 创建 OpenAI 供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()
	applyConfigMap(cfg, configMap)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api_key is required")
	}
	return NewProviderWithConfig(cfg), nil
}

func compatibleFactory(name string, defaults Config) llm.ProviderFactory {
	return func(configMap map[string]any) (llm.Provider, error) {
		cfg := DefaultConfig()
		cfg.name = name
		cfg.BaseURL = defaults.BaseURL
		if defaults.EmbedModel != "" {
			cfg.EmbedModel = defaults.EmbedModel
		}
		if defaults.ChatModel != "" {
			cfg.ChatModel = defaults.ChatModel
		}
		if defaults.VisionModel != "" {
			cfg.VisionModel = defaults.VisionModel
		}
		applyConfigMap(cfg, configMap)
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s: api_key is required", name)
		}
		return NewProviderWithConfig(cfg), nil
	}
}

func applyConfigMap(cfg *Config, configMap map[string]any) {
	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := configMap["api_key"].(string); ok && v != "" {
		cfg.APIKey = v
	}
	if v, ok := configMap["embed_model"].(string); ok && v != "" {
		cfg.EmbedModel = v
	}
	if v, ok := configMap["chat_model"].(string); ok && v != "" {
		cfg.ChatModel = v
	}
	if v, ok := configMap["vision_model"].(string); ok && v != "" {
		cfg.VisionModel = v
	}
	if v, ok := configMap["dimensions"].(int); ok && v > 0 {
		cfg.Dimensions = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v >= 0 {
		cfg.MaxRetries = v
	}
	if v, ok := configMap["organization"].(string); ok && v != "" {
		cfg.Organization = v
	}
	if v, ok := configMap["temperature"].(float64); ok {
		cfg.Temperature = v
	}
	if v, ok := configMap["top_p"].(float64); ok {
		cfg.TopP = v
	}
	if v, ok := configMap["max_tokens"].(int); ok {
		cfg.MaxTokens = v
	}
	switch val := configMap["stop"].(type) {
	case []string:
		cfg.Stop = val
	case []any:
		stop := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				stop = append(stop, s)
			}
		}
		cfg.Stop = stop
	}
}

// NewProviderWithConfig 使用结构化配置创建 OpenAI 供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	if cfg.name == "" {
		cfg.name = ProviderName
	}
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
		stream: httpclient.NewStreamingClient(),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return p.config.name
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req, err := p.newJSONRequest(ctx, "/embeddings", embeddingRequest{
		Model:      p.config.EmbedModel,
		Input:      texts,
		Dimensions: p.config.Dimensions,
	})
	if err != nil {
		return nil, err
	}

	var embedResp embeddingResponse
	if err := p.client.DoJSON(req, &embedResp); err != nil {
		return nil, err
	}

	// 按 index 还原输入顺序
	embeddings := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("%s: missing embedding for input %d", p.Name(), i)
		}
	}

	return embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

// chatMessage 的 Content 为 string 或 []contentPart。
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *Provider) buildChatRequest(model string, messages []chatMessage, stream bool) chatRequest {
	req := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
		Stop:     p.config.Stop,
	}
	if p.config.MaxTokens > 0 {
		req.MaxTokens = p.config.MaxTokens
	}
	if p.config.Temperature > 0 {
		req.Temperature = p.config.Temperature
	}
	if p.config.TopP > 0 {
		req.TopP = p.config.TopP
	}
	return req
}

func toChatMessages(messages []llm.Message) []chatMessage {
	out := make([]chatMessage, len(messages))
	for i, msg := range messages {
		out[i] = chatMessage{Role: string(msg.Role), Content: msg.Content}
	}
	return out
}

// Chat 进行多轮对话。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return p.complete(ctx, p.buildChatRequest(p.config.ChatModel, toChatMessages(messages), false))
}

// Generate 根据提示生成文本。
func (p *Provider) Generate(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	var messages []llm.Message
	if systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})
	return p.Chat(ctx, messages)
}

// DescribeImage 以 data URI 形式发送图片并返回描述文本。
func (p *Provider) DescribeImage(ctx context.Context, image []byte, mimeType string, prompt string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%s: empty image", p.Name())
	}
	dataURI := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	msg := chatMessage{
		Role: string(llm.RoleUser),
		Content: []contentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
		},
	}
	return p.complete(ctx, p.buildChatRequest(p.config.VisionModel, []chatMessage{msg}, false))
}

func (p *Provider) complete(ctx context.Context, body chatRequest) (string, error) {
	req, err := p.newJSONRequest(ctx, "/chat/completions", body)
	if err != nil {
		return "", err
	}

	var chatResp chatResponse
	if err := p.client.DoJSON(req, &chatResp); err != nil {
		return "", err
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices in response", p.Name())
	}
	return chatResp.Choices[0].Message.Content, nil
}

// ChatStream 以 SSE 方式进行多轮对话，逐个回调增量 token。
func (p *Provider) ChatStream(ctx context.Context, messages []llm.Message, onToken llm.TokenHandler) error {
	req, err := p.newJSONRequest(ctx, "/chat/completions", p.buildChatRequest(p.config.ChatModel, toChatMessages(messages), true))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	body, err := p.stream.DoStream(req)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	return readSSE(body, onToken)
}

// readSSE 解析 OpenAI 风格的 SSE 流，遇到 [DONE] 结束。
func readSSE(r io.Reader, onToken llm.TokenHandler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onToken(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return io.ErrUnexpectedEOF
}

// ListModels 列出可用模型。
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(req)

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := p.client.DoJSON(req, &result); err != nil {
		return nil, err
	}

	models := make([]string, len(result.Data))
	for i, m := range result.Data {
		models[i] = m.ID
	}
	return models, nil
}

func (p *Provider) newJSONRequest(ctx context.Context, path string, v any) (*http.Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(req)
	return req, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	if p.config.Organization != "" {
		req.Header.Set("OpenAI-Organization", p.config.Organization)
	}
}
