package llm

import (
	"fmt"
	"strings"

	"talk-trainer-server/internal/model"
)

// buildTurnSystemPrompt describes the persona the backend is role-playing.
func buildTurnSystemPrompt(scenario model.ScenarioContext, persona model.EnrichedPersona, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are role-playing %s, %s, in a communication training simulation.\n", persona.Name, persona.RoleTitle)
	fmt.Fprintf(&b, "Situation: %s\n", scenario.SituationContext)
	if persona.Stance != "" {
		fmt.Fprintf(&b, "Your stance: %s\n", persona.Stance)
	}
	if persona.Goal != "" {
		fmt.Fprintf(&b, "Your goal: %s\n", persona.Goal)
	}
	if persona.NegotiableRange != "" {
		fmt.Fprintf(&b, "What you can concede: %s\n", persona.NegotiableRange)
	}
	if len(persona.Traits) > 0 {
		fmt.Fprintf(&b, "Personality traits: %s\n", strings.Join(persona.Traits, ", "))
	}
	if persona.CommunicationStyle != "" {
		fmt.Fprintf(&b, "Communication style: %s\n", persona.CommunicationStyle)
	}
	if len(persona.Motivations) > 0 {
		fmt.Fprintf(&b, "Motivations: %s\n", strings.Join(persona.Motivations, ", "))
	}
	if len(persona.Fears) > 0 {
		fmt.Fprintf(&b, "Fears: %s\n", strings.Join(persona.Fears, ", "))
	}
	if len(persona.SpeechPatterns) > 0 {
		fmt.Fprintf(&b, "Typical phrases: %s\n", strings.Join(persona.SpeechPatterns, " | "))
	}
	lang := language
	if lang == "" {
		lang = "the language of the conversation"
	}
	fmt.Fprintf(&b, "\nStay in character. Reply in %s with a single conversational turn.\n", lang)
	b.WriteString(`Respond ONLY with a JSON object: {"content": "<your reply>", "emotion": "<one word, e.g. neutral, frustrated, pleased>", "emotion_reason": "<one sentence>"}`)
	return b.String()
}

// buildTurnUserPrompt serializes the transcript and the latest user message.
func buildTurnUserPrompt(transcript model.Transcript, latestUserMessage string) string {
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	b.WriteString(serializeTranscript(transcript))
	if latestUserMessage != "" {
		fmt.Fprintf(&b, "\nThe trainee just said: %s\n", latestUserMessage)
	}
	b.WriteString("\nProduce your next turn.")
	return b.String()
}

// buildEvaluationSystemPrompt instructs the backend to score the transcript
// against the dynamic dimension schema. The instructions demand transcript
// evidence before each score and use of the full score range.
func buildEvaluationSystemPrompt(criteria model.EvaluationCriteriaSet, language string) string {
	var b strings.Builder
	b.WriteString("You are an expert communication coach. Evaluate the trainee (the \"user\" speaker) in the transcript below.\n\n")
	b.WriteString("Score the following dimensions. For EACH dimension, first cite concrete evidence from the transcript, then assign the score. Use the full score range; do not converge on a single value across dimensions.\n\n")
	for i, d := range criteria.Dimensions {
		fmt.Fprintf(&b, "%d. %s (key: %s, score %d-%d, weight %.0f)\n   %s\n", i+1, d.Name, d.Key, d.MinScore, d.MaxScore, d.Weight, d.Description)
		if d.Rubric != "" {
			fmt.Fprintf(&b, "   Rubric: %s\n", d.Rubric)
		}
		if d.Instructions != "" {
			fmt.Fprintf(&b, "   Instructions: %s\n", d.Instructions)
		}
	}
	if language != "" {
		fmt.Fprintf(&b, "\nWrite all narrative text in %s.\n", language)
	}
	b.WriteString(`
Respond ONLY with a JSON object of this exact shape:
{
  "dimension_scores": {"<key>": <int>, ...},
  "dimension_rationales": {"<key>": "<evidence-grounded rationale>", ...},
  "strengths": ["...", "..."],
  "improvements": ["..."],
  "next_steps": ["..."],
  "narrative_summary": "<at least three sentences>",
  "ranking_narrative": "<how this performance compares to a typical trainee>",
  "behavior_guides": ["..."],
  "conversation_guides": ["..."],
  "development_plan": "<a short practice plan>"
}`)
	return b.String()
}

// buildEvaluationUserPrompt serializes scenario context and transcript for the
// evaluation call.
func buildEvaluationUserPrompt(scenario model.ScenarioContext, persona model.EnrichedPersona, transcript model.Transcript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario: %s\n", scenario.SituationContext)
	if len(scenario.Objectives) > 0 {
		fmt.Fprintf(&b, "Trainee objectives: %s\n", strings.Join(scenario.Objectives, "; "))
	}
	fmt.Fprintf(&b, "Counterpart: %s (%s), stance: %s\n\n", persona.Name, persona.RoleTitle, persona.Stance)
	b.WriteString("Transcript:\n")
	b.WriteString(serializeTranscript(transcript))
	return b.String()
}

// serializeTranscript renders turns one per line, distinguishing speakers and
// flagging agent turns that were cut off mid-delivery.
func serializeTranscript(transcript model.Transcript) string {
	var b strings.Builder
	for _, turn := range transcript {
		speaker := "TRAINEE"
		if turn.Speaker == model.SpeakerAgent {
			speaker = "COUNTERPART"
		}
		flag := ""
		if turn.Interrupted && turn.Speaker == model.SpeakerAgent {
			flag = " [interrupted by trainee]"
		}
		fmt.Fprintf(&b, "%d. %s%s: %s\n", turn.Ordinal, speaker, flag, turn.Text)
	}
	if b.Len() == 0 {
		b.WriteString("(empty)\n")
	}
	return b.String()
}
