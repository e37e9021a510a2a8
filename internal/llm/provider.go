package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"talk-trainer-server/internal/config"
	"talk-trainer-server/internal/llm/jsonrepair"
	"talk-trainer-server/internal/model"
	"talk-trainer-server/pkg/limiter"
	"talk-trainer-server/pkg/retry"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Provider is the uniform contract of the AI backend. Implementations never
// surface backend failures to the caller: an unrecoverable error yields a
// deterministic fallback value and a nil error. The only error ever returned
// is the caller's own context cancellation.
type Provider interface {
	GenerateTurn(ctx context.Context, req model.TurnRequest) (model.TurnReply, error)
	GenerateEvaluation(ctx context.Context, req model.EvaluationRequest) (*model.EvaluationResult, error)
}

// Client implements Provider on top of one backend variant. All variants share
// prompt assembly, repair, fallbacks and metrics; they differ only in payload
// shape and response location.
type Client struct {
	backend     backend
	modelName   string
	timeout     time.Duration
	turnGate    *limiter.Limiter
	evalGate    *limiter.Limiter
	retryPolicy retry.Policy
	logger      *zap.Logger
}

var _ Provider = (*Client)(nil)

// NewProvider resolves the configured backend variant and builds the client.
// An unknown provider identifier falls back to the openai-compatible variant;
// only missing credentials fail construction.
func NewProvider(cfg *config.Config, logger *zap.Logger, turnGate, evalGate *limiter.Limiter) (*Client, error) {
	log := logger.Named("AIClient")

	var (
		b   backend
		err error
	)
	provider := strings.ToLower(strings.TrimSpace(cfg.AIProvider))
	switch provider {
	case "openai":
		b, err = newKeyedBackend(cfg, false)
	case "openrouter", "custom":
		b, err = newKeyedBackend(cfg, true)
	case "ollama":
		b, err = newOllamaBackend(cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout)
	default:
		// Unknown identifiers resolve to a safe variant instead of failing.
		// Model ids with a vendor prefix ("deepseek/deepseek-chat") are routed.
		routed := strings.Contains(cfg.AIModel, "/")
		log.Warn("Unknown AI provider, falling back to default variant",
			zap.String("provider", cfg.AIProvider),
			zap.Bool("routed", routed))
		b, err = newKeyedBackend(cfg, routed)
	}
	if err != nil {
		return nil, err
	}

	log.Info("AI client created",
		zap.String("variant", b.name()),
		zap.String("model", cfg.AIModel),
		zap.Duration("timeout", cfg.AITimeout))

	return &Client{
		backend:   b,
		modelName: cfg.AIModel,
		timeout:   cfg.AITimeout,
		turnGate:  turnGate,
		evalGate:  evalGate,
		retryPolicy: retry.Policy{
			MaxRetries: cfg.AIMaxRetries,
			BaseDelay:  cfg.AIBaseDelay,
			MaxDelay:   cfg.AIMaxDelay,
		},
		logger: log,
	}, nil
}

// newKeyedBackend builds one of the two API-key variants, checking credentials
// at construction time so requests never fail on configuration.
func newKeyedBackend(cfg *config.Config, routed bool) (backend, error) {
	if cfg.AIAPIKey == "" {
		return nil, fmt.Errorf("AI API key is required for provider '%s'", cfg.AIProvider)
	}
	if routed {
		return newOpenRouterBackend(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, cfg.AICustomFormat, cfg.AITimeout), nil
	}
	return newOpenAIBackend(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout), nil
}

// turnPayload is the structured value the turn prompt asks the backend for.
type turnPayload struct {
	Content       string `json:"content"`
	Emotion       string `json:"emotion"`
	EmotionReason string `json:"emotion_reason"`
}

// GenerateTurn produces the next interlocutor turn. Backend failure after
// retries yields the deterministic persona-flavored fallback; the returned
// error is non-nil only when ctx itself is done.
func (c *Client) GenerateTurn(ctx context.Context, req model.TurnRequest) (model.TurnReply, error) {
	const kind = "turn"
	start := time.Now()

	latest := req.LatestUserMessage
	if latest == "" {
		latest = req.Transcript.LastUserMessage()
	}
	creq := completionRequest{
		System:      buildTurnSystemPrompt(req.Scenario, req.Persona, req.Language),
		User:        buildTurnUserPrompt(req.Transcript, latest),
		Temperature: 0.8,
		MaxTokens:   1024,
		TopP:        0.95,
		JSONMode:    true,
	}
	if v, ok := overrideNumber(req.Overrides, "temperature"); ok && v > 0 && v <= 2 {
		creq.Temperature = float32(v)
	}
	if v, ok := overrideNumber(req.Overrides, "max_tokens"); ok && v > 0 {
		creq.MaxTokens = int(v)
	}
	if v, ok := overrideNumber(req.Overrides, "top_p"); ok && v > 0 && v <= 1 {
		creq.TopP = float32(v)
	}

	raw, usage, err := c.invoke(ctx, c.turnGate, kind, creq)
	if err != nil {
		if ctx.Err() != nil {
			return model.TurnReply{}, ctx.Err()
		}
		c.logger.Warn("Turn generation failed after retries, serving fallback",
			zap.Error(err),
			zap.String("scenarioID", req.Scenario.ID),
			zap.String("personaRef", req.Persona.Ref))
		aiFallbacksTotal.With(prometheus.Labels{"model": c.modelName, "kind": kind}).Inc()
		return fallbackTurn(req.Persona, req.Transcript), nil
	}
	c.observe(kind, usage, time.Since(start))

	var payload turnPayload
	if err := jsonrepair.Extract(raw, &payload); err != nil || payload.Content == "" {
		// The model answered in prose; keep its text rather than losing the turn.
		payload.Content = strings.TrimSpace(raw)
		payload.Emotion = model.EmotionNeutral
		payload.EmotionReason = "The model reply was not structured; emotion defaulted."
	}
	if payload.Emotion == "" {
		payload.Emotion = model.EmotionNeutral
	}
	return model.TurnReply{
		Content:       payload.Content,
		Emotion:       payload.Emotion,
		EmotionReason: payload.EmotionReason,
	}, nil
}

// overrideNumber reads a numeric per-request override. JSON decoding delivers
// numbers as float64, but direct callers may pass int.
func overrideNumber(overrides map[string]interface{}, key string) (float64, bool) {
	raw, ok := overrides[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// evaluationPayload mirrors the JSON shape requested by the evaluation prompt.
type evaluationPayload struct {
	DimensionScores     map[string]int    `json:"dimension_scores"`
	DimensionRationales map[string]string `json:"dimension_rationales"`
	Strengths           []string          `json:"strengths"`
	Improvements        []string          `json:"improvements"`
	NextSteps           []string          `json:"next_steps"`
	NarrativeSummary    string            `json:"narrative_summary"`
	RankingNarrative    string            `json:"ranking_narrative"`
	BehaviorGuides      []string          `json:"behavior_guides"`
	ConversationGuides  []string          `json:"conversation_guides"`
	DevelopmentPlan     string            `json:"development_plan"`
}

// GenerateEvaluation produces one raw evaluation of the transcript against the
// criteria set. Scores are clamped into their dimension ranges and aggregated;
// behavioral adjustments and the quality gate belong to the evaluator above
// this layer. Backend failure yields the midpoint fallback result.
func (c *Client) GenerateEvaluation(ctx context.Context, req model.EvaluationRequest) (*model.EvaluationResult, error) {
	const kind = "evaluation"
	start := time.Now()

	temperature := float32(0.4)
	if req.Temperature > 0 {
		temperature = float32(req.Temperature)
	}
	creq := completionRequest{
		System:      buildEvaluationSystemPrompt(req.Criteria, req.Language),
		User:        buildEvaluationUserPrompt(req.Scenario, req.Persona, req.Transcript),
		Temperature: temperature,
		MaxTokens:   4096,
		TopP:        0.95,
		JSONMode:    true,
	}

	raw, usage, err := c.invoke(ctx, c.evalGate, kind, creq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("Evaluation failed after retries, serving midpoint fallback",
			zap.Error(err),
			zap.String("scenarioID", req.Scenario.ID),
			zap.String("criteriaSet", req.Criteria.Name))
		aiFallbacksTotal.With(prometheus.Labels{"model": c.modelName, "kind": kind}).Inc()
		return fallbackEvaluation(req.Criteria), nil
	}
	c.observe(kind, usage, time.Since(start))

	var payload evaluationPayload
	parseFailed := jsonrepair.Extract(raw, &payload) != nil

	result := &model.EvaluationResult{
		DimensionScores:     payload.DimensionScores,
		DimensionRationales: payload.DimensionRationales,
		Strengths:           payload.Strengths,
		Improvements:        payload.Improvements,
		NextSteps:           payload.NextSteps,
		NarrativeSummary:    payload.NarrativeSummary,
		RankingNarrative:    payload.RankingNarrative,
		BehaviorGuides:      payload.BehaviorGuides,
		ConversationGuides:  payload.ConversationGuides,
		DevelopmentPlan:     payload.DevelopmentPlan,
		ResolvedCriteriaSet: req.Criteria.Name,
		QualityDegraded:     parseFailed,
	}
	result.ClampDimensionScores(req.Criteria.Dimensions)
	result.OverallScore = model.ClampOverall(model.AggregateOverall(req.Criteria.Dimensions, result.DimensionScores))
	return result, nil
}

// invoke routes one completion through the admission gate and the retry loop,
// applying the per-call timeout at the backend boundary.
func (c *Client) invoke(ctx context.Context, gate *limiter.Limiter, kind string, creq completionRequest) (string, usageInfo, error) {
	var (
		raw   string
		usage usageInfo
	)
	err := gate.Do(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, c.retryPolicy, IsTransient, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			var cerr error
			raw, usage, cerr = c.backend.complete(callCtx, creq)
			return cerr
		})
	})
	if err != nil {
		aiRequestsTotal.With(prometheus.Labels{"model": c.modelName, "kind": kind, "status": "error"}).Inc()
		return "", usage, err
	}
	aiRequestsTotal.With(prometheus.Labels{"model": c.modelName, "kind": kind, "status": "success"}).Inc()
	return raw, usage, nil
}

// observe records duration, token and cost metrics for a successful call.
func (c *Client) observe(kind string, usage usageInfo, elapsed time.Duration) {
	labels := prometheus.Labels{"model": c.modelName, "kind": kind}
	aiRequestDuration.With(labels).Observe(elapsed.Seconds())
	if usage.TotalTokens > 0 {
		aiPromptTokens.With(labels).Observe(float64(usage.PromptTokens))
		aiCompletionTokens.With(labels).Observe(float64(usage.CompletionTokens))
	}
	if usage.EstimatedCostUSD > 0 {
		aiEstimatedCostUSD.With(labels).Add(usage.EstimatedCostUSD)
	}
}
