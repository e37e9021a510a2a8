package llm

import (
	"context"

	"github.com/pkoukk/tiktoken-go"
)

// completionRequest is the backend-agnostic description of one chat call.
// Variants translate it into their own payload shape.
type completionRequest struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
	TopP        float32
	JSONMode    bool
}

// usageInfo reports token consumption of a single backend call.
type usageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	EstimatedCostUSD float64
}

// backend is the per-variant raw completion call. Implementations own only the
// request payload shape and the response location parsing; everything else
// (prompt assembly, repair, validation, fallbacks) is shared.
type backend interface {
	name() string
	complete(ctx context.Context, req completionRequest) (string, usageInfo, error)
}

// estimateTokens approximates a token count for backends that do not report
// usage. Falls back to a bytes/4 heuristic when no tokenizer exists for the
// model.
func estimateTokens(modelName, text string) int {
	tke, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		return len(text) / 4
	}
	return len(tke.Encode(text, nil, nil))
}
