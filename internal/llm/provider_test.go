package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"talk-trainer-server/internal/config"
	"talk-trainer-server/internal/model"
	"talk-trainer-server/pkg/limiter"
	"talk-trainer-server/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBackend struct {
	responses []string
	errs      []error
	requests  []completionRequest
}

func (f *fakeBackend) name() string { return "fake" }

func (f *fakeBackend) complete(_ context.Context, req completionRequest) (string, usageInfo, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var resp string
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, usageInfo{}, err
}

func newTestClient(t *testing.T, b backend) *Client {
	t.Helper()
	turnGate, err := limiter.New("turn", 4)
	require.NoError(t, err)
	evalGate, err := limiter.New("eval", 2)
	require.NoError(t, err)
	return &Client{
		backend:     b,
		modelName:   "gpt-4o-mini",
		timeout:     time.Second,
		turnGate:    turnGate,
		evalGate:    evalGate,
		retryPolicy: retry.Policy{
			MaxRetries: 1,
			BaseDelay:  time.Millisecond,
			MaxDelay:   2 * time.Millisecond,
		},
		logger: zap.NewNop(),
	}
}

func turnRequest() model.TurnRequest {
	return model.TurnRequest{
		Scenario: model.ScenarioContext{ID: "scn-1", SituationContext: "Quarterly budget negotiation."},
		Persona: model.EnrichedPersona{
			PersonaRecord: model.PersonaRecord{
				Ref:            "skeptical-cfo",
				Name:           "Maria",
				SpeechPatterns: []string{"Show me the numbers.", "Let's not get ahead of ourselves."},
			},
			Stance: "against any budget increase",
		},
		Transcript: model.Transcript{
			{Speaker: model.SpeakerUser, Text: "I'd like to discuss raising the tooling budget."},
		},
	}
}

func TestGenerateTurn_ParsesStructuredReply(t *testing.T) {
	b := &fakeBackend{responses: []string{`{"content": "Convince me.", "emotion": "skeptical", "emotion_reason": "Vague opener."}`}}
	c := newTestClient(t, b)

	reply, err := c.GenerateTurn(context.Background(), turnRequest())
	require.NoError(t, err)
	assert.Equal(t, "Convince me.", reply.Content)
	assert.Equal(t, "skeptical", reply.Emotion)
	assert.False(t, reply.Fallback)
	require.Len(t, b.requests, 1)
	assert.True(t, b.requests[0].JSONMode)
}

func TestGenerateTurn_RepairsTruncatedJSON(t *testing.T) {
	b := &fakeBackend{responses: []string{"```json\n{\"content\": \"Convince me.\", \"emotion\": \"skeptical\""}}
	c := newTestClient(t, b)

	reply, err := c.GenerateTurn(context.Background(), turnRequest())
	require.NoError(t, err)
	assert.Equal(t, "Convince me.", reply.Content)
	assert.Equal(t, "skeptical", reply.Emotion)
}

func TestGenerateTurn_ProseReplyIsKept(t *testing.T) {
	b := &fakeBackend{responses: []string{"I hear you, but the budget stays flat this quarter.\n"}}
	c := newTestClient(t, b)

	reply, err := c.GenerateTurn(context.Background(), turnRequest())
	require.NoError(t, err)
	assert.Equal(t, "I hear you, but the budget stays flat this quarter.", reply.Content)
	assert.Equal(t, model.EmotionNeutral, reply.Emotion)
	assert.False(t, reply.Fallback)
}

func TestGenerateTurn_PermanentErrorServesFallback(t *testing.T) {
	boom := errors.New("invalid request: model not found")
	b := &fakeBackend{errs: []error{boom}}
	c := newTestClient(t, b)

	reply, err := c.GenerateTurn(context.Background(), turnRequest())
	require.NoError(t, err, "backend failure never surfaces as an error")
	assert.True(t, reply.Fallback)
	assert.Contains(t, reply.Content, "against any budget increase")
	assert.Equal(t, model.EmotionNeutral, reply.Emotion)
	assert.Len(t, b.requests, 1, "permanent errors are not retried")
}

func TestGenerateTurn_TransientErrorIsRetried(t *testing.T) {
	b := &fakeBackend{
		errs:      []error{errors.New("rate limit exceeded"), nil},
		responses: []string{"", `{"content": "Fine, go on.", "emotion": "neutral", "emotion_reason": ""}`},
	}
	c := newTestClient(t, b)

	reply, err := c.GenerateTurn(context.Background(), turnRequest())
	require.NoError(t, err)
	assert.Equal(t, "Fine, go on.", reply.Content)
	assert.False(t, reply.Fallback)
	assert.Len(t, b.requests, 2)
}

func TestGenerateTurn_AppliesSamplingOverrides(t *testing.T) {
	b := &fakeBackend{responses: []string{`{"content": "Fine.", "emotion": "neutral", "emotion_reason": ""}`}}
	c := newTestClient(t, b)

	req := turnRequest()
	req.Overrides = map[string]interface{}{
		"temperature": 0.2,
		"max_tokens":  256, // direct callers pass ints, JSON callers float64
		"top_p":       0.5,
		"model":       "ignored-key",
	}
	_, err := c.GenerateTurn(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, b.requests, 1)
	assert.InDelta(t, 0.2, float64(b.requests[0].Temperature), 1e-6)
	assert.Equal(t, 256, b.requests[0].MaxTokens)
	assert.InDelta(t, 0.5, float64(b.requests[0].TopP), 1e-6)
}

func TestGenerateTurn_OutOfRangeOverridesAreIgnored(t *testing.T) {
	b := &fakeBackend{responses: []string{`{"content": "Fine.", "emotion": "neutral", "emotion_reason": ""}`}}
	c := newTestClient(t, b)

	req := turnRequest()
	req.Overrides = map[string]interface{}{
		"temperature": -1.0,
		"max_tokens":  "many",
	}
	_, err := c.GenerateTurn(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, b.requests, 1)
	assert.InDelta(t, 0.8, float64(b.requests[0].Temperature), 1e-6)
	assert.Equal(t, 1024, b.requests[0].MaxTokens)
}

func TestGenerateTurn_CancelledContextReturnsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestClient(t, &fakeBackend{})

	_, err := c.GenerateTurn(ctx, turnRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateEvaluation_PermanentErrorServesMidpointFallback(t *testing.T) {
	b := &fakeBackend{errs: []error{errors.New("invalid request")}}
	c := newTestClient(t, b)

	res, err := c.GenerateEvaluation(context.Background(), model.EvaluationRequest{
		Scenario: model.ScenarioContext{ID: "scn-1"},
		Criteria: model.DefaultCriteriaSet(),
	})
	require.NoError(t, err)
	assert.True(t, res.QualityDegraded)
	for _, d := range model.DefaultCriteriaSet().Dimensions {
		assert.Equal(t, d.MidScore(), res.DimensionScores[d.Key])
	}
	assert.Equal(t, 44, res.OverallScore, "midpoint 5 of a 1..10 range normalizes to 4/9")
}

func TestGenerateEvaluation_ClampsAndAggregates(t *testing.T) {
	b := &fakeBackend{responses: []string{`{
		"dimension_scores": {
			"clarity-logic": 14,
			"listening-empathy": 0,
			"situational-adaptability": 6,
			"persuasiveness": 8,
			"strategic-communication": 6
		},
		"dimension_rationales": {"clarity-logic": "Clear."},
		"strengths": ["Structure", "Numbers"],
		"narrative_summary": "Summary.",
		"ranking_narrative": "Ranking."
	}`}}
	c := newTestClient(t, b)

	res, err := c.GenerateEvaluation(context.Background(), model.EvaluationRequest{
		Criteria: model.DefaultCriteriaSet(),
	})
	require.NoError(t, err)
	assert.False(t, res.QualityDegraded)
	assert.Equal(t, 10, res.DimensionScores["clarity-logic"], "scores clamp into the dimension range")
	assert.Equal(t, 1, res.DimensionScores["listening-empathy"])
	// Range-normalized weighted mean: (9/9+0/9+5/9+7/9+5/9)/5 = 26/45.
	assert.Equal(t, 58, res.OverallScore)
}

func TestGenerateEvaluation_TemperatureOverride(t *testing.T) {
	b := &fakeBackend{responses: []string{`{}`, `{}`}}
	c := newTestClient(t, b)

	_, err := c.GenerateEvaluation(context.Background(), model.EvaluationRequest{Criteria: model.DefaultCriteriaSet()})
	require.NoError(t, err)
	_, err = c.GenerateEvaluation(context.Background(), model.EvaluationRequest{
		Criteria:    model.DefaultCriteriaSet(),
		Temperature: 0.7,
	})
	require.NoError(t, err)

	require.Len(t, b.requests, 2)
	assert.InDelta(t, 0.4, float64(b.requests[0].Temperature), 1e-6)
	assert.InDelta(t, 0.7, float64(b.requests[1].Temperature), 1e-6)
}

func TestNewProvider_UnknownProviderFallsBack(t *testing.T) {
	cfg := &config.Config{
		AIProvider: "something-new",
		AIModel:    "deepseek/deepseek-chat",
		AIAPIKey:   "sk-test",
		AITimeout:  time.Second,
	}
	turnGate, _ := limiter.New("turn", 1)
	evalGate, _ := limiter.New("eval", 1)

	c, err := NewProvider(cfg, zap.NewNop(), turnGate, evalGate)
	require.NoError(t, err, "unknown providers resolve to a default variant instead of failing")
	assert.Equal(t, "openrouter", c.backend.name(), "vendor-prefixed model ids route through the gateway variant")
}

func TestNewProvider_MissingKeyFailsConstruction(t *testing.T) {
	cfg := &config.Config{
		AIProvider: "openai",
		AIModel:    "gpt-4o-mini",
		AITimeout:  time.Second,
	}
	turnGate, _ := limiter.New("turn", 1)
	evalGate, _ := limiter.New("eval", 1)

	_, err := NewProvider(cfg, zap.NewNop(), turnGate, evalGate)
	assert.Error(t, err)
}
