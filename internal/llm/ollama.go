package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// ollamaBackend talks to a local Ollama instance through its native API.
type ollamaBackend struct {
	client *api.Client
	model  string
}

func newOllamaBackend(baseURL, modelName string, timeout time.Duration) (*ollamaBackend, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	// api.NewClient expects the URL without the /v1 suffix.
	baseURL = strings.TrimSuffix(baseURL, "/v1")
	baseURL = strings.TrimSuffix(baseURL, "/")

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ollama base URL '%s': %w", baseURL, err)
	}

	httpClient := &http.Client{Timeout: timeout}
	return &ollamaBackend{
		client: api.NewClient(parsedURL, httpClient),
		model:  modelName,
	}, nil
}

func (b *ollamaBackend) name() string { return "ollama" }

func (b *ollamaBackend) complete(ctx context.Context, req completionRequest) (string, usageInfo, error) {
	usage := usageInfo{} // local inference, cost stays zero

	messages := []api.Message{
		{Role: "system", Content: req.System},
	}
	if req.User != "" {
		messages = append(messages, api.Message{Role: "user", Content: req.User})
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    b.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": req.Temperature,
			"top_p":       req.TopP,
			"num_predict": req.MaxTokens,
		},
	}
	if req.JSONMode {
		chatReq.Format = []byte(`"json"`)
	}

	var resp api.ChatResponse
	err := b.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		resp = r // non-streaming: a single full response
		return nil
	})
	if err != nil {
		return "", usage, fmt.Errorf("ollama chat: %w", err)
	}
	if resp.Message.Content == "" {
		return "", usage, ErrEmptyResponse
	}

	usage.PromptTokens = resp.PromptEvalCount
	usage.CompletionTokens = resp.EvalCount
	usage.TotalTokens = resp.PromptEvalCount + resp.EvalCount

	return resp.Message.Content, usage, nil
}
