package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// openRouterBackend talks to OpenRouter-hosted models through the
// openai-compatible API. When customFormat is set the system instructions are
// folded into a single user message, for models that reject the system role.
type openRouterBackend struct {
	client       *openaigo.Client
	model        string
	customFormat bool
}

func newOpenRouterBackend(apiKey, baseURL, modelName string, customFormat bool, timeout time.Duration) *openRouterBackend {
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	cfg := openaigo.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &openRouterBackend{
		client:       openaigo.NewClientWithConfig(cfg),
		model:        modelName,
		customFormat: customFormat,
	}
}

func (b *openRouterBackend) name() string { return "openrouter" }

func (b *openRouterBackend) complete(ctx context.Context, req completionRequest) (string, usageInfo, error) {
	usage := usageInfo{}

	var messages []openaigo.ChatCompletionMessage
	if b.customFormat {
		// Single-prompt shape: instructions and input in one user message.
		combined := req.System
		if req.User != "" {
			combined += "\n\n---\n\n" + req.User
		}
		messages = []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleUser, Content: combined},
		}
	} else {
		messages = []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleSystem, Content: req.System},
		}
		if req.User != "" {
			messages = append(messages, openaigo.ChatCompletionMessage{
				Role: openaigo.ChatMessageRoleUser, Content: req.User,
			})
		}
	}

	// No ResponseFormat here: many routed models reject JSON mode, the repair
	// layer handles fenced output instead.
	resp, err := b.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:       b.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	})
	if err != nil {
		return "", usage, fmt.Errorf("openrouter chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", usage, ErrEmptyResponse
	}

	if resp.Usage.TotalTokens > 0 {
		usage.PromptTokens = resp.Usage.PromptTokens
		usage.CompletionTokens = resp.Usage.CompletionTokens
		usage.TotalTokens = resp.Usage.TotalTokens
	} else {
		// Routed models frequently omit usage; estimate.
		usage.PromptTokens = estimateTokens("gpt-4o", req.System+req.User)
		usage.CompletionTokens = estimateTokens("gpt-4o", resp.Choices[0].Message.Content)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	usage.EstimatedCostUSD = calculateCost(usage.PromptTokens, usage.CompletionTokens)

	return resp.Choices[0].Message.Content, usage, nil
}
