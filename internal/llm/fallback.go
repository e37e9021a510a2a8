package llm

import (
	"fmt"

	"talk-trainer-server/internal/model"
)

// fallbackTurn builds the deterministic, persona-flavored utterance served when
// the backend is unrecoverable. Same persona and transcript length always
// produce the same reply.
func fallbackTurn(persona model.EnrichedPersona, transcript model.Transcript) model.TurnReply {
	var content string
	if len(persona.SpeechPatterns) > 0 {
		content = persona.SpeechPatterns[len(transcript)%len(persona.SpeechPatterns)] + " "
	}
	if persona.Stance != "" {
		content += fmt.Sprintf("Let me take a moment here. My position hasn't changed: %s. Could you walk me through your side once more?", persona.Stance)
	} else {
		content += "Let me take a moment here. Could you walk me through your side once more?"
	}
	return model.TurnReply{
		Content:       content,
		Emotion:       model.EmotionNeutral,
		EmotionReason: "Response generation was degraded; serving a scripted in-character reply.",
		Fallback:      true,
	}
}

// fallbackEvaluation builds the degraded evaluation: every dimension at its
// midpoint with a narrative explaining the degradation.
func fallbackEvaluation(criteria model.EvaluationCriteriaSet) *model.EvaluationResult {
	scores := make(map[string]int, len(criteria.Dimensions))
	rationales := make(map[string]string, len(criteria.Dimensions))
	for _, d := range criteria.Dimensions {
		scores[d.Key] = d.MidScore()
		rationales[d.Key] = "Automatic evaluation was unavailable; a neutral midpoint score was assigned."
	}
	overall := model.ClampOverall(model.AggregateOverall(criteria.Dimensions, scores))
	return &model.EvaluationResult{
		OverallScore:        overall,
		DimensionScores:     scores,
		DimensionRationales: rationales,
		Strengths:           []string{"The conversation was completed end to end."},
		Improvements:        []string{"A detailed evaluation could not be produced for this session; consider re-running it."},
		NextSteps:           []string{"Retry the evaluation once the service has recovered."},
		NarrativeSummary:    "The evaluation backend was unavailable, so this session received neutral midpoint scores on every dimension. The scores do not reflect actual performance.",
		RankingNarrative:    "No ranking is available for a degraded evaluation.",
		ResolvedCriteriaSet: criteria.Name,
		QualityDegraded:     true,
	}
}
