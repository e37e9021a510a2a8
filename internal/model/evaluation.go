package model

// EvaluationDimension is one named, weighted, range-bounded axis of the feedback
// score. Dimension sets are admin-configurable; weights do not have to sum to 100,
// the evaluator normalizes.
type EvaluationDimension struct {
	Key          string  `json:"key" db:"key"`
	Name         string  `json:"name" db:"name"`
	Description  string  `json:"description" db:"description"`
	Weight       float64 `json:"weight" db:"weight"`
	MinScore     int     `json:"min_score" db:"min_score"`
	MaxScore     int     `json:"max_score" db:"max_score"`
	Rubric       string  `json:"rubric,omitempty" db:"rubric"`
	Instructions string  `json:"instructions,omitempty" db:"instructions"`
}

// MidScore returns the midpoint of the dimension range, used by the degraded
// fallback evaluation.
func (d EvaluationDimension) MidScore() int {
	return (d.MinScore + d.MaxScore) / 2
}

// EvaluationCriteriaSet groups the dimensions an evaluation is scored against.
type EvaluationCriteriaSet struct {
	ID         string                `json:"id" db:"id"`
	Name       string                `json:"name" db:"name"`
	Dimensions []EvaluationDimension `json:"dimensions"`
}

const DefaultCriteriaSetName = "default-communication-v1"

// DefaultCriteriaSet is the built-in five-dimension rubric used when no criteria
// set is configured for a scenario.
func DefaultCriteriaSet() EvaluationCriteriaSet {
	dims := []EvaluationDimension{
		{Key: "clarity-logic", Name: "Clarity & Logic", Description: "How clearly and logically the user structures arguments."},
		{Key: "listening-empathy", Name: "Listening & Empathy", Description: "How well the user listens and responds to the counterpart's concerns."},
		{Key: "situational-adaptability", Name: "Situational Adaptability", Description: "How well the user adapts to changes in the counterpart's stance."},
		{Key: "persuasiveness", Name: "Persuasiveness", Description: "How convincing the user's proposals and framing are."},
		{Key: "strategic-communication", Name: "Strategic Communication", Description: "How deliberately the user steers the conversation toward the objective."},
	}
	for i := range dims {
		dims[i].Weight = 20
		dims[i].MinScore = 1
		dims[i].MaxScore = 10
	}
	return EvaluationCriteriaSet{ID: DefaultCriteriaSetName, Name: DefaultCriteriaSetName, Dimensions: dims}
}

// EvaluationResult is the multi-dimensional feedback produced for one finished
// conversation.
type EvaluationResult struct {
	OverallScore         int               `json:"overall_score"`
	DimensionScores      map[string]int    `json:"dimension_scores"`
	DimensionRationales  map[string]string `json:"dimension_rationales"`
	Strengths            []string          `json:"strengths"`
	Improvements         []string          `json:"improvements"`
	NextSteps            []string          `json:"next_steps"`
	NarrativeSummary     string            `json:"narrative_summary"`
	RankingNarrative     string            `json:"ranking_narrative"`
	BehaviorGuides       []string          `json:"behavior_guides,omitempty"`
	ConversationGuides   []string          `json:"conversation_guides,omitempty"`
	DevelopmentPlan      string            `json:"development_plan,omitempty"`
	ResolvedCriteriaSet  string            `json:"resolved_criteria_set"`
	QualityDegraded      bool              `json:"-"`
	BehavioralAdjustment int               `json:"behavioral_adjustment,omitempty"`
}

// ClampDimensionScores forces every per-dimension score into its configured range.
// Missing dimensions are filled with their midpoint.
func (r *EvaluationResult) ClampDimensionScores(dims []EvaluationDimension) {
	if r.DimensionScores == nil {
		r.DimensionScores = make(map[string]int, len(dims))
	}
	for _, d := range dims {
		s, ok := r.DimensionScores[d.Key]
		if !ok {
			r.DimensionScores[d.Key] = d.MidScore()
			continue
		}
		if s < d.MinScore {
			r.DimensionScores[d.Key] = d.MinScore
		} else if s > d.MaxScore {
			r.DimensionScores[d.Key] = d.MaxScore
		}
	}
}
