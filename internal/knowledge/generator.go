package knowledge

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultChatModel 默认对话模型
const DefaultChatModel = "gpt-4o-mini"

// Generator 定义文本生成接口
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// NoopGenerator 未配置生成能力时的占位实现
type NoopGenerator struct{}

func (n *NoopGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	return "", errors.New("generation provider not configured")
}

// OpenAIGenerator 使用 Chat Completions 生成回答
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// GeneratorOptions 生成参数
type GeneratorOptions struct {
	MaxTokens   int
	Temperature float32
}

// NewOpenAIGenerator 创建生成器，未配置密钥时返回 NoopGenerator
func NewOpenAIGenerator(cfg OpenAIConfig, opts GeneratorOptions) Generator {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return &NoopGenerator{}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}
	return &OpenAIGenerator{
		client:      newOpenAIClient(apiKey, cfg.BaseURL),
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errors.New("completion response empty")
	}
	return content, nil
}
