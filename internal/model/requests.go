package model

// Emotion values the interlocutor can report alongside a generated turn.
const (
	EmotionNeutral = "neutral"
)

// TurnRequest asks the engine for the next interlocutor turn.
//
// Callers must not issue overlapping requests for the same conversation; the
// engine does not serialize per-conversation.
type TurnRequest struct {
	Scenario          ScenarioContext `json:"scenario"`
	Transcript        Transcript      `json:"transcript"`
	Persona           EnrichedPersona `json:"persona"`
	LatestUserMessage string          `json:"latest_user_message,omitempty"`
	Language          string          `json:"language,omitempty"`
	// Overrides tunes sampling per request. Recognized keys: "temperature",
	// "max_tokens", "top_p"; unknown keys are ignored.
	Overrides map[string]interface{} `json:"overrides,omitempty"`
}

// TurnReply is the generated interlocutor turn.
type TurnReply struct {
	Content       string `json:"content"`
	Emotion       string `json:"emotion"`
	EmotionReason string `json:"emotion_reason"`
	Fallback      bool   `json:"-"`
}

// EvaluationRequest asks the engine to score a finished transcript.
type EvaluationRequest struct {
	Scenario   ScenarioContext       `json:"scenario"`
	Transcript Transcript            `json:"transcript"`
	Persona    EnrichedPersona       `json:"persona"`
	Criteria   EvaluationCriteriaSet `json:"criteria"`
	Language   string                `json:"language,omitempty"`
	// Temperature overrides the backend sampling temperature when positive.
	// The evaluator raises it on quality-gate retries.
	Temperature float64 `json:"-"`
}
