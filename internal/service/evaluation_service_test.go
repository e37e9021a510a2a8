package service_test

import (
	"context"
	"errors"
	"testing"

	"talk-trainer-server/internal/model"
	"talk-trainer-server/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPersonas struct {
	err error
}

func (s *stubPersonas) Enriched(scenarioID, personaID string, overlay model.ScenarioPersonaOverlay) (model.EnrichedPersona, error) {
	if s.err != nil {
		return model.EnrichedPersona{}, s.err
	}
	return model.EnrichedPersona{
		PersonaRecord: model.PersonaRecord{Ref: overlay.PersonaRef, Name: "Maria"},
		ScenarioID:    scenarioID,
		Stance:        overlay.Stance,
	}, nil
}

type stubCriteria struct {
	calls int
}

func (s *stubCriteria) GetSet(ctx context.Context, name string) (model.EvaluationCriteriaSet, error) {
	s.calls++
	return model.DefaultCriteriaSet(), nil
}

type stubEvaluator struct {
	result *model.EvaluationResult
	calls  int
}

func (s *stubEvaluator) Evaluate(ctx context.Context, req model.EvaluationRequest) (*model.EvaluationResult, error) {
	s.calls++
	cp := *s.result
	cp.ResolvedCriteriaSet = req.Criteria.Name
	return &cp, nil
}

type memoryCache struct {
	store   map[string]*model.EvaluationResult
	setErr  error
	getErr  error
	getHits int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{store: map[string]*model.EvaluationResult{}}
}

func (m *memoryCache) Get(ctx context.Context, sessionID string) (*model.EvaluationResult, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if r, ok := m.store[sessionID]; ok {
		m.getHits++
		return r, nil
	}
	return nil, nil
}

func (m *memoryCache) Set(ctx context.Context, sessionID string, result *model.EvaluationResult) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.store[sessionID] = result
	return nil
}

type recordingPublisher struct {
	sessions []string
	err      error
}

func (p *recordingPublisher) PublishCompleted(ctx context.Context, sessionID, scenarioID string, result *model.EvaluationResult) error {
	p.sessions = append(p.sessions, sessionID)
	return p.err
}

func scenario() model.ScenarioContext {
	return model.ScenarioContext{
		ID: "scn-1",
		PersonaOverlays: []model.ScenarioPersonaOverlay{
			{PersonaRef: "skeptical-cfo", Stance: "against the increase"},
		},
	}
}

func evalInput() service.EvaluateInput {
	return service.EvaluateInput{
		SessionID:  "sess-1",
		Scenario:   scenario(),
		PersonaID:  "p-1",
		PersonaRef: "skeptical-cfo",
		Transcript: model.Transcript{
			{Speaker: model.SpeakerUser, Text: "Let's talk about the renewal terms for next year."},
		},
	}
}

func TestEvaluate_RunsPipelineAndPublishes(t *testing.T) {
	ev := &stubEvaluator{result: &model.EvaluationResult{OverallScore: 61}}
	cache := newMemoryCache()
	pub := &recordingPublisher{}
	s := service.NewEvaluationService(&stubPersonas{}, &stubCriteria{}, ev, cache, pub, zap.NewNop())

	res, err := s.Evaluate(context.Background(), evalInput())
	require.NoError(t, err)
	assert.Equal(t, 61, res.OverallScore)
	assert.Equal(t, model.DefaultCriteriaSetName, res.ResolvedCriteriaSet)
	assert.Equal(t, []string{"sess-1"}, pub.sessions)
	assert.Contains(t, cache.store, "sess-1")
}

func TestEvaluate_CachedResultShortCircuits(t *testing.T) {
	ev := &stubEvaluator{result: &model.EvaluationResult{OverallScore: 61}}
	cache := newMemoryCache()
	cache.store["sess-1"] = &model.EvaluationResult{OverallScore: 88}
	pub := &recordingPublisher{}
	s := service.NewEvaluationService(&stubPersonas{}, &stubCriteria{}, ev, cache, pub, zap.NewNop())

	res, err := s.Evaluate(context.Background(), evalInput())
	require.NoError(t, err)
	assert.Equal(t, 88, res.OverallScore)
	assert.Zero(t, ev.calls, "cached sessions are not re-evaluated")
	assert.Empty(t, pub.sessions, "cached results do not re-publish")
}

func TestEvaluate_CacheAndPublisherFailuresAreBestEffort(t *testing.T) {
	ev := &stubEvaluator{result: &model.EvaluationResult{OverallScore: 61}}
	cache := newMemoryCache()
	cache.setErr = errors.New("redis down")
	pub := &recordingPublisher{err: errors.New("broker down")}
	s := service.NewEvaluationService(&stubPersonas{}, &stubCriteria{}, ev, cache, pub, zap.NewNop())

	res, err := s.Evaluate(context.Background(), evalInput())
	require.NoError(t, err, "side-channel failures never fail the evaluation")
	assert.Equal(t, 61, res.OverallScore)
}

func TestEvaluate_UnknownOverlayIsCallerError(t *testing.T) {
	ev := &stubEvaluator{result: &model.EvaluationResult{}}
	s := service.NewEvaluationService(&stubPersonas{}, &stubCriteria{}, ev, nil, nil, zap.NewNop())

	in := evalInput()
	in.PersonaRef = "nobody"
	_, err := s.Evaluate(context.Background(), in)
	assert.ErrorIs(t, err, model.ErrPersonaNotFound)
	assert.Zero(t, ev.calls)
}

func TestEvaluate_NilCacheAndPublisherAreOptional(t *testing.T) {
	ev := &stubEvaluator{result: &model.EvaluationResult{OverallScore: 42}}
	s := service.NewEvaluationService(&stubPersonas{}, &stubCriteria{}, ev, nil, nil, zap.NewNop())

	res, err := s.Evaluate(context.Background(), evalInput())
	require.NoError(t, err)
	assert.Equal(t, 42, res.OverallScore)
}
