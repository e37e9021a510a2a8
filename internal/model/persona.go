package model

import "errors"

// Persona-related errors returned by the cache and repositories.
var (
	ErrPersonaCacheNotLoaded = errors.New("persona cache is not loaded yet")
	ErrPersonaNotFound       = errors.New("persona not found")
)

// PersonaRecord is the immutable base personality definition loaded at bootstrap.
// Records are owned by the persona cache and must never be mutated after load;
// all concurrent readers share the same instance.
type PersonaRecord struct {
	Ref                string   `json:"ref" db:"ref"`
	Name               string   `json:"name" db:"name"`
	Traits             []string `json:"traits" db:"traits"`
	CommunicationStyle string   `json:"communication_style" db:"communication_style"`
	Motivations        []string `json:"motivations" db:"motivations"`
	Fears              []string `json:"fears" db:"fears"`
	SpeechPatterns     []string `json:"speech_patterns" db:"speech_patterns"`
}

// ScenarioPersonaOverlay carries the scenario-specific fields merged on top of a
// base persona for one conversation. Supplied per request, never cached globally.
type ScenarioPersonaOverlay struct {
	PersonaRef      string `json:"persona_ref"`
	RoleTitle       string `json:"role_title"`
	Stance          string `json:"stance"`
	Goal            string `json:"goal"`
	NegotiableRange string `json:"negotiable_range,omitempty"`
}

// EnrichedPersona is a PersonaRecord merged with a scenario overlay.
// The merge is pure and deterministic, so two enrichments for the same key are
// always value-equal.
type EnrichedPersona struct {
	PersonaRecord
	ScenarioID      string `json:"scenario_id"`
	RoleTitle       string `json:"role_title"`
	Stance          string `json:"stance"`
	Goal            string `json:"goal"`
	NegotiableRange string `json:"negotiable_range,omitempty"`
}

// ScenarioContext describes the situation the AI interlocutor is playing in.
type ScenarioContext struct {
	ID                    string                   `json:"id"`
	SituationContext      string                   `json:"situation_context"`
	Objectives            []string                 `json:"objectives"`
	PersonaOverlays       []ScenarioPersonaOverlay `json:"persona_overlays,omitempty"`
	EvaluationCriteriaSet string                   `json:"evaluation_criteria_set_id,omitempty"`
}
