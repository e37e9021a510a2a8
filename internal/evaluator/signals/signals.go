// Package signals derives deterministic score adjustments from the shape of a
// transcript: filler/non-verbal user turns and how the trainee behaves after
// interrupting the counterpart.
package signals

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"talk-trainer-server/internal/model"
)

const (
	fillerPenaltyPerTurn = 5
	fillerPenaltyCap     = 20

	bargeInBonusUnit   = 2
	bargeInPenaltyUnit = 5
	adjustmentMin      = -15
	adjustmentMax      = 10

	// minimum word count for a post-interruption reply to count as substantive
	substantiveWords = 6

	skipSentinel = "[skip]"
)

var fillerPattern = regexp.MustCompile(`(?i)^(?:uh+|um+|hm+|hmm+|mhm+|ah+|oh+|huh|ok(?:ay)?|yeah|yep|yes|no|nope|sure|right|mm+)[\s.!?…]*$`)

// Analysis is the deterministic adjustment derived from one transcript.
type Analysis struct {
	FillerTurns      int
	FillerPenalty    int // subtracted from the overall score, capped
	PositiveBargeIns int
	NegativeBargeIns int
	NeutralBargeIns  int
	BargeInNet       int // clamped to [adjustmentMin, adjustmentMax]
	Notes            []string
}

// Adjustment is the total signed delta applied to the aggregated overall score.
func (a Analysis) Adjustment() int {
	return a.BargeInNet - a.FillerPenalty
}

// Analyze inspects the transcript and computes both signals. It is pure:
// the same transcript always yields the same analysis.
func Analyze(transcript model.Transcript) Analysis {
	var a Analysis

	for _, turn := range transcript {
		if turn.Speaker == model.SpeakerUser && IsFiller(turn.Text) {
			a.FillerTurns++
		}
	}
	a.FillerPenalty = a.FillerTurns * fillerPenaltyPerTurn
	if a.FillerPenalty > fillerPenaltyCap {
		a.FillerPenalty = fillerPenaltyCap
	}
	if a.FillerTurns > 0 {
		a.Notes = append(a.Notes, fmt.Sprintf(
			"%d of your replies were filler or non-verbal; engaging with full sentences would have earned up to %d more points.",
			a.FillerTurns, a.FillerPenalty))
	}

	for i, turn := range transcript {
		if turn.Speaker != model.SpeakerAgent || !turn.Interrupted {
			continue
		}
		if i+1 >= len(transcript) || transcript[i+1].Speaker != model.SpeakerUser {
			continue
		}
		followUp := transcript[i+1].Text
		switch {
		case isQuestion(turn.Text):
			// Cutting off a question reads as poor listening.
			a.NegativeBargeIns++
		case isSubstantive(followUp):
			// Interrupting with real content reads as proactive engagement.
			a.PositiveBargeIns++
		default:
			a.NeutralBargeIns++
		}
	}

	a.BargeInNet = a.PositiveBargeIns*bargeInBonusUnit - a.NegativeBargeIns*bargeInPenaltyUnit
	if a.BargeInNet < adjustmentMin {
		a.BargeInNet = adjustmentMin
	} else if a.BargeInNet > adjustmentMax {
		a.BargeInNet = adjustmentMax
	}
	if a.NegativeBargeIns > 0 {
		a.Notes = append(a.Notes, fmt.Sprintf(
			"You cut the counterpart off mid-question %d time(s); let them finish before answering.",
			a.NegativeBargeIns))
	}

	return a
}

// IsFiller reports whether a user turn carries no conversational content.
func IsFiller(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return true
	}
	if strings.EqualFold(t, skipSentinel) {
		return true
	}
	if isEllipsisOnly(t) {
		return true
	}
	if utf8.RuneCountInString(t) < 3 {
		return true
	}
	return fillerPattern.MatchString(t)
}

func isEllipsisOnly(t string) bool {
	for _, r := range t {
		switch r {
		case '.', '…', ' ', '\t':
		default:
			return false
		}
	}
	return true
}

// interrogativeLeads are the words that open a question clause in English.
// Auxiliaries are included because an interrupted question is usually cut off
// before its question mark ("can you tell me what budget you had in mi").
var interrogativeLeads = map[string]struct{}{
	"what": {}, "why": {}, "how": {}, "when": {}, "where": {}, "who": {}, "which": {},
	"can": {}, "could": {}, "would": {}, "will": {}, "shall": {}, "should": {},
	"do": {}, "does": {}, "did": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"have": {}, "has": {}, "may": {}, "might": {},
}

// isQuestion reports whether an agent turn is a question, finished or not.
// A question mark settles it; otherwise any clause opening with an
// interrogative or auxiliary word counts, since interruption truncates the
// turn before the mark.
func isQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	clauses := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == ':' || r == '.' || r == '!'
	})
	for _, clause := range clauses {
		fields := strings.Fields(clause)
		if len(fields) == 0 {
			continue
		}
		lead := strings.ToLower(strings.Trim(fields[0], `"'`))
		if _, ok := interrogativeLeads[lead]; ok {
			return true
		}
	}
	return false
}

// isSubstantive reports whether a follow-up after an interruption carries real
// content rather than a filler acknowledgment.
func isSubstantive(text string) bool {
	if IsFiller(text) {
		return false
	}
	return len(strings.Fields(text)) >= substantiveWords
}
