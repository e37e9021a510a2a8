package evaluator_test

import (
	"context"
	"strings"
	"testing"

	"talk-trainer-server/internal/evaluator"
	"talk-trainer-server/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedProvider replays a fixed sequence of evaluation results and records
// the temperature of every attempt.
type scriptedProvider struct {
	results      []*model.EvaluationResult
	temperatures []float64
	calls        int
}

func (s *scriptedProvider) GenerateTurn(context.Context, model.TurnRequest) (model.TurnReply, error) {
	panic("not used")
}

func (s *scriptedProvider) GenerateEvaluation(ctx context.Context, req model.EvaluationRequest) (*model.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.temperatures = append(s.temperatures, req.Temperature)
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	cp := *s.results[idx]
	return &cp, nil
}

func goodResult(overall int) *model.EvaluationResult {
	return &model.EvaluationResult{
		OverallScore: overall,
		DimensionScores: map[string]int{
			"clarity-logic":            7,
			"listening-empathy":        5,
			"situational-adaptability": 6,
			"persuasiveness":           8,
			"strategic-communication":  6,
		},
		DimensionRationales: map[string]string{
			"clarity-logic":            "Arguments were structured and easy to follow.",
			"listening-empathy":        "Several counterpart concerns went unacknowledged.",
			"situational-adaptability": "Adjusted the offer once the budget objection surfaced.",
			"persuasiveness":           "The volume-discount framing landed well.",
			"strategic-communication":  "Kept steering back to the renewal objective.",
		},
		Strengths:        []string{"Clear structure", "Concrete numbers"},
		Improvements:     []string{"Acknowledge objections before countering"},
		NextSteps:        []string{"Practice mirroring the counterpart's last point"},
		NarrativeSummary: strings.Repeat("The trainee kept the negotiation on track and closed with a concrete proposal. ", 2),
		RankingNarrative: "A solid mid-level performance with room to grow on listening.",
	}
}

func evalRequest() model.EvaluationRequest {
	return model.EvaluationRequest{
		Scenario: model.ScenarioContext{ID: "scn-1"},
		Criteria: model.DefaultCriteriaSet(),
		Transcript: model.Transcript{
			{Speaker: model.SpeakerAgent, Text: "Walk me through the renewal terms."},
			{Speaker: model.SpeakerUser, Text: "We are proposing a two-year term with a volume discount tied to usage."},
		},
	}
}

func TestEvaluate_FirstAttemptPassesGate(t *testing.T) {
	p := &scriptedProvider{results: []*model.EvaluationResult{goodResult(64)}}
	e := evaluator.New(p, 2, zap.NewNop())

	res, err := e.Evaluate(context.Background(), evalRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
	assert.InDelta(t, 0.4, p.temperatures[0], 1e-9)
	assert.False(t, res.QualityDegraded)
	assert.Zero(t, res.BehavioralAdjustment, "clean transcript gets no adjustment")
	assert.Equal(t, 64, res.OverallScore)
}

func TestEvaluate_RetriesWithHigherTemperature(t *testing.T) {
	thin := goodResult(60)
	thin.NarrativeSummary = "Too short."
	p := &scriptedProvider{results: []*model.EvaluationResult{thin, goodResult(60)}}
	e := evaluator.New(p, 2, zap.NewNop())

	res, err := e.Evaluate(context.Background(), evalRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
	assert.InDelta(t, 0.4, p.temperatures[0], 1e-9)
	assert.InDelta(t, 0.55, p.temperatures[1], 1e-9)
	assert.False(t, res.QualityDegraded)
}

func TestEvaluate_ExhaustedGateServesBestCandidateDegraded(t *testing.T) {
	// Missing strengths on every attempt: the gate never passes.
	bad := goodResult(50)
	bad.Strengths = nil
	p := &scriptedProvider{results: []*model.EvaluationResult{bad}}
	e := evaluator.New(p, 2, zap.NewNop())

	res, err := e.Evaluate(context.Background(), evalRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls, "first attempt plus two retries")
	assert.True(t, res.QualityDegraded)
	assert.Equal(t, 50, res.OverallScore)
}

func TestEvaluate_FlatScoreProfileFailsGate(t *testing.T) {
	flat := goodResult(50)
	flat.DimensionScores = map[string]int{
		"clarity-logic":            5,
		"listening-empathy":        5,
		"situational-adaptability": 5,
		"persuasiveness":           5,
		"strategic-communication":  5,
	}
	p := &scriptedProvider{results: []*model.EvaluationResult{flat, goodResult(58)}}
	e := evaluator.New(p, 1, zap.NewNop())

	res, err := e.Evaluate(context.Background(), evalRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
	assert.False(t, res.QualityDegraded)
	assert.Equal(t, 58, res.OverallScore)
}

func TestEvaluate_AppliesBehavioralAdjustment(t *testing.T) {
	req := evalRequest()
	req.Transcript = model.Transcript{
		{Speaker: model.SpeakerAgent, Text: "What budget did you have in mind for this quar", Interrupted: true},
		{Speaker: model.SpeakerUser, Text: "No."},
		{Speaker: model.SpeakerAgent, Text: "I see. Anything else?"},
		{Speaker: model.SpeakerUser, Text: "..."},
	}

	p := &scriptedProvider{results: []*model.EvaluationResult{goodResult(64)}}
	e := evaluator.New(p, 0, zap.NewNop())

	res, err := e.Evaluate(context.Background(), req)
	require.NoError(t, err)
	// One interrupted question (-5) plus two filler turns (-10).
	assert.Equal(t, -15, res.BehavioralAdjustment)
	assert.Equal(t, 49, res.OverallScore)
	assert.Greater(t, len(res.Improvements), 1, "adjustment notes are surfaced as improvements")
}

func TestEvaluate_AdjustedScoreStaysInRange(t *testing.T) {
	req := evalRequest()
	req.Transcript = model.Transcript{
		{Speaker: model.SpeakerAgent, Text: "Shall we begin?"},
		{Speaker: model.SpeakerUser, Text: "..."},
		{Speaker: model.SpeakerAgent, Text: "Hello?"},
		{Speaker: model.SpeakerUser, Text: "uh"},
		{Speaker: model.SpeakerAgent, Text: "Are you there?"},
		{Speaker: model.SpeakerUser, Text: "hmm"},
	}

	p := &scriptedProvider{results: []*model.EvaluationResult{goodResult(5)}}
	e := evaluator.New(p, 0, zap.NewNop())

	res, err := e.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, -15, res.BehavioralAdjustment)
	assert.Equal(t, 0, res.OverallScore, "score floors at zero")
}

func TestEvaluate_ContextCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &scriptedProvider{results: []*model.EvaluationResult{goodResult(64)}}
	e := evaluator.New(p, 0, zap.NewNop())

	_, err := e.Evaluate(ctx, evalRequest())
	assert.ErrorIs(t, err, context.Canceled)
}
