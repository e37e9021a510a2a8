package service

import (
	"context"
	"fmt"

	"talk-trainer-server/internal/model"

	"go.uber.org/zap"
)

// CriteriaResolver maps a criteria set name to its dimensions.
type CriteriaResolver interface {
	GetSet(ctx context.Context, name string) (model.EvaluationCriteriaSet, error)
}

// SessionEvaluator runs the gated evaluation pipeline.
type SessionEvaluator interface {
	Evaluate(ctx context.Context, req model.EvaluationRequest) (*model.EvaluationResult, error)
}

// ResultCache stores finished results keyed by session.
type ResultCache interface {
	Get(ctx context.Context, sessionID string) (*model.EvaluationResult, error)
	Set(ctx context.Context, sessionID string, result *model.EvaluationResult) error
}

// EventPublisher announces finished evaluations.
type EventPublisher interface {
	PublishCompleted(ctx context.Context, sessionID, scenarioID string, result *model.EvaluationResult) error
}

// EvaluateInput carries one evaluation request from the transport layer.
type EvaluateInput struct {
	SessionID  string
	Scenario   model.ScenarioContext
	PersonaID  string
	PersonaRef string
	Transcript model.Transcript
	Language   string
}

// EvaluationService resolves criteria, runs the evaluator and handles the
// result cache and completion events around it.
type EvaluationService struct {
	personas  PersonaSource
	criteria  CriteriaResolver
	evaluator SessionEvaluator
	cache     ResultCache
	publisher EventPublisher
	logger    *zap.Logger
}

func NewEvaluationService(
	personas PersonaSource,
	criteria CriteriaResolver,
	evaluator SessionEvaluator,
	cache ResultCache,
	publisher EventPublisher,
	logger *zap.Logger,
) *EvaluationService {
	return &EvaluationService{
		personas:  personas,
		criteria:  criteria,
		evaluator: evaluator,
		cache:     cache,
		publisher: publisher,
		logger:    logger.Named("EvaluationService"),
	}
}

// Evaluate scores one finished session. A cached result short-circuits the
// pipeline; cache writes and event publishing are best-effort.
func (s *EvaluationService) Evaluate(ctx context.Context, in EvaluateInput) (*model.EvaluationResult, error) {
	log := s.logger.With(
		zap.String("sessionID", in.SessionID),
		zap.String("scenarioID", in.Scenario.ID))

	if s.cache != nil && in.SessionID != "" {
		if cached, err := s.cache.Get(ctx, in.SessionID); err == nil && cached != nil {
			log.Info("Serving cached evaluation result")
			return cached, nil
		}
	}

	criteria, err := s.criteria.GetSet(ctx, in.Scenario.EvaluationCriteriaSet)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve evaluation criteria: %w", err)
	}

	overlay, ok := findOverlay(in.Scenario, in.PersonaRef)
	if !ok {
		return nil, fmt.Errorf("%w: scenario %s has no overlay for persona '%s'",
			model.ErrPersonaNotFound, in.Scenario.ID, in.PersonaRef)
	}
	enriched, err := s.personas.Enriched(in.Scenario.ID, in.PersonaID, overlay)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve persona '%s': %w", in.PersonaRef, err)
	}

	result, err := s.evaluator.Evaluate(ctx, model.EvaluationRequest{
		Scenario:   in.Scenario,
		Transcript: in.Transcript,
		Persona:    enriched,
		Criteria:   criteria,
		Language:   in.Language,
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil && in.SessionID != "" {
		if err := s.cache.Set(ctx, in.SessionID, result); err != nil {
			log.Warn("Failed to cache evaluation result", zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishCompleted(ctx, in.SessionID, in.Scenario.ID, result); err != nil {
			log.Warn("Failed to publish evaluation event", zap.Error(err))
		}
	}

	log.Info("Evaluation completed",
		zap.Int("overallScore", result.OverallScore),
		zap.Bool("degraded", result.QualityDegraded),
		zap.String("criteriaSet", result.ResolvedCriteriaSet))
	return result, nil
}
