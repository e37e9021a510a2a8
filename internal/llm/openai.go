package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
)

// openAIBackend talks to the OpenAI API (or any compatible endpoint) using the
// standard chat payload.
type openAIBackend struct {
	client *openaigo.Client
	model  string
}

func newOpenAIBackend(apiKey, baseURL, modelName string, timeout time.Duration) *openAIBackend {
	cfg := openaigo.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &openAIBackend{
		client: openaigo.NewClientWithConfig(cfg),
		model:  modelName,
	}
}

func (b *openAIBackend) name() string { return "openai" }

func (b *openAIBackend) complete(ctx context.Context, req completionRequest) (string, usageInfo, error) {
	usage := usageInfo{}

	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: req.System},
	}
	if req.User != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role: openaigo.ChatMessageRoleUser, Content: req.User,
		})
	}

	chatReq := openaigo.ChatCompletionRequest{
		Model:       b.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := b.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", usage, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", usage, ErrEmptyResponse
	}

	if resp.Usage.TotalTokens > 0 {
		usage.PromptTokens = resp.Usage.PromptTokens
		usage.CompletionTokens = resp.Usage.CompletionTokens
		usage.TotalTokens = resp.Usage.TotalTokens
	} else {
		usage.PromptTokens = estimateTokens(b.model, req.System+req.User)
		usage.CompletionTokens = estimateTokens(b.model, resp.Choices[0].Message.Content)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	usage.EstimatedCostUSD = calculateCost(usage.PromptTokens, usage.CompletionTokens)

	return resp.Choices[0].Message.Content, usage, nil
}
