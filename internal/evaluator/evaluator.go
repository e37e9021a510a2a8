// Package evaluator turns a finished transcript into final feedback. It layers
// the quality gate, retry-with-higher-temperature loop and deterministic
// behavioral adjustments on top of the raw AI evaluation.
package evaluator

import (
	"context"
	"fmt"
	"unicode/utf8"

	"talk-trainer-server/internal/evaluator/signals"
	"talk-trainer-server/internal/llm"
	"talk-trainer-server/internal/model"

	"go.uber.org/zap"
)

const (
	baseTemperature = 0.4
	temperatureStep = 0.15
	maxTemperature  = 1.0

	minSummaryRunes  = 80
	minRankingRunes  = 40
	minStrengthItems = 2
)

// Evaluator runs the full evaluation pipeline for one transcript.
type Evaluator struct {
	provider   llm.Provider
	maxRetries int
	logger     *zap.Logger
}

// New builds an evaluator. maxRetries is the number of quality-gate retries on
// top of the first attempt.
func New(provider llm.Provider, maxRetries int, logger *zap.Logger) *Evaluator {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Evaluator{
		provider:   provider,
		maxRetries: maxRetries,
		logger:     logger.Named("Evaluator"),
	}
}

// Evaluate produces the final feedback for a finished conversation.
//
// Each attempt raises the sampling temperature a notch, since quality-gate
// failures are usually terse or degenerate answers. When every attempt fails
// the gate the best candidate (fewest issues) is returned marked degraded
// rather than erroring out. The only error returned is ctx cancellation.
func (e *Evaluator) Evaluate(ctx context.Context, req model.EvaluationRequest) (*model.EvaluationResult, error) {
	analysis := signals.Analyze(req.Transcript)

	var (
		best       *model.EvaluationResult
		bestIssues []string
	)
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		r := req
		r.Temperature = baseTemperature + temperatureStep*float64(attempt)
		if r.Temperature > maxTemperature {
			r.Temperature = maxTemperature
		}

		result, err := e.provider.GenerateEvaluation(ctx, r)
		if err != nil {
			return nil, err
		}

		issues := e.qualityIssues(result, req.Criteria)
		if len(issues) == 0 {
			e.finalize(result, analysis)
			return result, nil
		}
		if best == nil || len(issues) < len(bestIssues) {
			best, bestIssues = result, issues
		}
		e.logger.Warn("Evaluation failed quality gate",
			zap.Int("attempt", attempt+1),
			zap.Float64("temperature", r.Temperature),
			zap.Strings("issues", issues),
			zap.String("scenarioID", req.Scenario.ID))
	}

	e.logger.Warn("All evaluation attempts failed quality gate, serving best candidate",
		zap.Int("attempts", e.maxRetries+1),
		zap.Strings("remainingIssues", bestIssues),
		zap.String("scenarioID", req.Scenario.ID))
	best.QualityDegraded = true
	e.finalize(best, analysis)
	return best, nil
}

// finalize applies the behavioral adjustment and surfaces its notes.
func (e *Evaluator) finalize(result *model.EvaluationResult, analysis signals.Analysis) {
	result.BehavioralAdjustment = analysis.Adjustment()
	result.OverallScore = model.ClampOverall(result.OverallScore + result.BehavioralAdjustment)
	result.Improvements = append(result.Improvements, analysis.Notes...)
}

// qualityIssues checks one candidate against the acceptance bar. An empty
// return means the candidate passes.
func (e *Evaluator) qualityIssues(result *model.EvaluationResult, criteria model.EvaluationCriteriaSet) []string {
	var issues []string

	if result.QualityDegraded {
		issues = append(issues, "candidate is a degraded fallback")
	}
	if utf8.RuneCountInString(result.NarrativeSummary) < minSummaryRunes {
		issues = append(issues, fmt.Sprintf("narrative summary shorter than %d characters", minSummaryRunes))
	}
	if utf8.RuneCountInString(result.RankingNarrative) < minRankingRunes {
		issues = append(issues, fmt.Sprintf("ranking narrative shorter than %d characters", minRankingRunes))
	}
	if len(result.Strengths) < minStrengthItems {
		issues = append(issues, fmt.Sprintf("fewer than %d strengths", minStrengthItems))
	}
	for _, d := range criteria.Dimensions {
		if result.DimensionRationales[d.Key] == "" {
			issues = append(issues, fmt.Sprintf("missing rationale for dimension %q", d.Key))
		}
	}
	if len(criteria.Dimensions) > 1 && degenerateSpread(result.DimensionScores, criteria.Dimensions) {
		issues = append(issues, "identical score on every dimension")
	}
	return issues
}

// degenerateSpread reports whether every dimension received the same score.
// A flat profile across a multi-dimension rubric is the signature of a model
// that did not actually weigh the transcript.
func degenerateSpread(scores map[string]int, dims []model.EvaluationDimension) bool {
	first, seen := 0, false
	for _, d := range dims {
		s, ok := scores[d.Key]
		if !ok {
			continue
		}
		if !seen {
			first, seen = s, true
			continue
		}
		if s != first {
			return false
		}
	}
	return seen
}
