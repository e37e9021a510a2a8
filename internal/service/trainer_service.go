// Package service wires the persona cache, AI provider and evaluator into the
// two operations the API exposes: next-turn generation and session evaluation.
package service

import (
	"context"
	"fmt"

	"talk-trainer-server/internal/model"

	"go.uber.org/zap"
)

// PersonaSource is the cache view the services need.
type PersonaSource interface {
	Enriched(scenarioID, personaID string, overlay model.ScenarioPersonaOverlay) (model.EnrichedPersona, error)
}

// TurnProvider generates interlocutor turns.
type TurnProvider interface {
	GenerateTurn(ctx context.Context, req model.TurnRequest) (model.TurnReply, error)
}

// NextTurnInput carries one turn request from the transport layer.
type NextTurnInput struct {
	Scenario          model.ScenarioContext
	PersonaID         string
	PersonaRef        string
	Transcript        model.Transcript
	LatestUserMessage string
	Language          string
	Overrides         map[string]interface{}
}

// TrainerService produces the AI interlocutor's next turn.
type TrainerService struct {
	personas PersonaSource
	provider TurnProvider
	logger   *zap.Logger
}

func NewTrainerService(personas PersonaSource, provider TurnProvider, logger *zap.Logger) *TrainerService {
	return &TrainerService{
		personas: personas,
		provider: provider,
		logger:   logger.Named("TrainerService"),
	}
}

// NextTurn resolves the enriched persona for the request and generates the
// reply. Persona resolution failures are caller errors; generation itself never
// fails except on ctx cancellation.
func (s *TrainerService) NextTurn(ctx context.Context, in NextTurnInput) (model.TurnReply, error) {
	enriched, err := s.resolvePersona(in.Scenario, in.PersonaID, in.PersonaRef)
	if err != nil {
		return model.TurnReply{}, err
	}

	reply, err := s.provider.GenerateTurn(ctx, model.TurnRequest{
		Scenario:          in.Scenario,
		Transcript:        in.Transcript,
		Persona:           enriched,
		LatestUserMessage: in.LatestUserMessage,
		Language:          in.Language,
		Overrides:         in.Overrides,
	})
	if err != nil {
		return model.TurnReply{}, err
	}
	if reply.Fallback {
		s.logger.Warn("Served fallback turn",
			zap.String("scenarioID", in.Scenario.ID),
			zap.String("personaRef", enriched.Ref))
	}
	return reply, nil
}

// resolvePersona finds the scenario overlay for the requested persona and
// merges it through the cache.
func (s *TrainerService) resolvePersona(scenario model.ScenarioContext, personaID, personaRef string) (model.EnrichedPersona, error) {
	overlay, ok := findOverlay(scenario, personaRef)
	if !ok {
		return model.EnrichedPersona{}, fmt.Errorf("%w: scenario %s has no overlay for persona '%s'",
			model.ErrPersonaNotFound, scenario.ID, personaRef)
	}
	enriched, err := s.personas.Enriched(scenario.ID, personaID, overlay)
	if err != nil {
		return model.EnrichedPersona{}, fmt.Errorf("failed to resolve persona '%s': %w", personaRef, err)
	}
	return enriched, nil
}

func findOverlay(scenario model.ScenarioContext, personaRef string) (model.ScenarioPersonaOverlay, bool) {
	for _, o := range scenario.PersonaOverlays {
		if o.PersonaRef == personaRef {
			return o, true
		}
	}
	return model.ScenarioPersonaOverlay{}, false
}
