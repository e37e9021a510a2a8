package model

import "math"

// AggregateOverall computes the weight-normalized overall score on the [0,100]
// scale. Each dimension score is first normalized into [0,1] over its own range,
// then combined by relative weight; weights need not sum to 100. Dimensions with
// a degenerate range contribute their weight at full value when scored.
func AggregateOverall(dims []EvaluationDimension, scores map[string]int) int {
	var weightSum, weighted float64
	for _, d := range dims {
		w := d.Weight
		if w <= 0 {
			continue
		}
		weightSum += w

		s, ok := scores[d.Key]
		if !ok {
			s = d.MidScore()
		}
		span := d.MaxScore - d.MinScore
		if span <= 0 {
			weighted += w
			continue
		}
		norm := float64(s-d.MinScore) / float64(span)
		if norm < 0 {
			norm = 0
		} else if norm > 1 {
			norm = 1
		}
		weighted += norm * w
	}
	if weightSum == 0 {
		return 0
	}
	return int(math.Round(100 * weighted / weightSum))
}

// ClampOverall bounds an overall score to [0,100].
func ClampOverall(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
