package scoring

import "github.com/reviewhub/review-engine/internal/models"

// Summary is the aggregate of several assessors' overall scores for one
// application.
type Summary struct {
	Average  float64
	Total    float64
	Variance float64
	Flagged  bool
}

// OverallScore returns the arithmetic mean of the criterion scores. An empty
// slice scores 0, never NaN.
func OverallScore(scores []models.CriterionScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s.Score
	}
	return sum / float64(len(scores))
}

// Aggregate combines per-assessor overall scores. Variance is the score range
// relative to the mean, as a percentage; with fewer than two scores there is
// no disagreement to measure, so variance is 0 and nothing is flagged.
func Aggregate(overallScores []float64, varianceThreshold float64) Summary {
	var out Summary
	if len(overallScores) == 0 {
		return out
	}

	min, max := overallScores[0], overallScores[0]
	for _, s := range overallScores {
		out.Total += s
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	out.Average = out.Total / float64(len(overallScores))

	if len(overallScores) > 1 && out.Average > 0 {
		out.Variance = (max - min) / out.Average * 100
	}
	out.Flagged = out.Variance > varianceThreshold
	return out
}
