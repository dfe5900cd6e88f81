package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
)

const (
	predictionWindow   = 5
	ewmaAlpha          = 0.5
	reliabilitySpread  = 0.08
	narrowingTests     = 3
	defaultMaxMarks    = 720.0
	highConfidenceRuns = 10
	lowConfidenceRuns  = 3

	narrowingCondition   = "If you maintain 'High' consistency for the next 3 tests."
	predictionDisclaimer = "This range is a statistical projection from past results, not a guarantee of future performance."
)

// Predict projects the next total. The estimate is an exponentially weighted
// average of the last five totals; the spread adds their deviation to a
// reliability term that shrinks with the number of tests taken.
func (e *Engine) Predict(psid string, tests []models.TestResult, overall models.Trend, subjects map[models.Subject]models.SubjectSummary, consistency models.ConsistencyAnalysis, now time.Time) models.PredictionSnapshot {
	out := models.PredictionSnapshot{
		PSID:            psid,
		ConfidenceLevel: confidenceFor(consistency.Level, len(tests)),
		Disclaimer:      predictionDisclaimer,
		GeneratedAt:     now,
		PredictionExplainability: models.PredictionExplainability{
			SubjectContribution: subjectContributions(overall, subjects),
			Stability:           stabilityFor(consistency),
		},
	}

	n := len(tests)
	if n == 0 {
		out.PredictionExplainability.Reasoning = []string{"No test results on record yet."}
		out.PredictionExplainability.RangeNarrowing = models.RangeNarrowing{Condition: narrowingCondition}
		return out
	}

	window := lastN(totalsOf(tests), predictionWindow)
	estimate := math.Max(ewma(window, ewmaAlpha), 0)
	sd := stdDev(window)
	ceiling := tests[n-1].MaxMarks
	if ceiling <= 0 {
		ceiling = defaultMaxMarks
	}

	out.Estimate = round(estimate, 2)
	out.PredictedScoreRange = scoreRange(estimate, sd, n, ceiling)
	out.PredictionExplainability.RangeNarrowing = models.RangeNarrowing{
		Condition:   narrowingCondition,
		FutureRange: scoreRange(estimate, 0, n+narrowingTests, ceiling),
	}
	out.PredictionExplainability.Reasoning = []string{
		fmt.Sprintf("Projection weights the last %d test(s), most recent highest, for an estimate of %.0f.", len(window), estimate),
		fmt.Sprintf("Recent scores deviate by %.1f marks, which widens the range.", sd),
		fmt.Sprintf("%d test(s) on record; each additional test tightens the range.", n),
		fmt.Sprintf("Overall trend is %s and consistency is %s.", overall, consistency.Level),
	}
	return out
}

func ewma(values []float64, alpha float64) float64 {
	if len(values) == 0 {
		return 0
	}
	est := values[0]
	for _, v := range values[1:] {
		est = alpha*v + (1-alpha)*est
	}
	return est
}

func scoreRange(estimate, sd float64, tests int, ceiling float64) models.ScoreRange {
	spread := sd + estimate*reliabilitySpread/math.Sqrt(float64(tests))
	lo := math.Floor(clamp(estimate-spread, 0, ceiling))
	hi := math.Ceil(clamp(estimate+spread, 0, ceiling))
	return models.ScoreRange{Min: int(lo), Max: int(hi)}
}

func confidenceFor(level models.ConsistencyLevel, tests int) models.ConfidenceLevel {
	switch {
	case level == models.ConsistencyHigh && tests >= highConfidenceRuns:
		return models.ConfidenceHigh
	case level == models.ConsistencyLow || tests < lowConfidenceRuns:
		return models.ConfidenceLow
	default:
		return models.ConfidenceMedium
	}
}

func trendRank(t models.Trend) int {
	switch t {
	case models.TrendImproving:
		return 2
	case models.TrendStable:
		return 1
	case models.TrendDeclining:
		return 0
	default:
		return -1
	}
}

func subjectContributions(overall models.Trend, subjects map[models.Subject]models.SubjectSummary) map[models.Subject]models.Contribution {
	out := make(map[models.Subject]models.Contribution, len(models.Subjects))
	base := trendRank(overall)
	for _, s := range models.Subjects {
		rank := trendRank(subjects[s].Trend)
		switch {
		case base < 0 || rank < 0 || rank == base:
			out[s] = models.ContributionNeutral
		case rank > base:
			out[s] = models.ContributionBoosting
		default:
			out[s] = models.ContributionLimiting
		}
	}
	return out
}

func stabilityFor(c models.ConsistencyAnalysis) models.Stability {
	if c.TestsConsidered < 2 {
		return models.Stability{Level: c.Level, Explanation: c.Reasoning}
	}
	return models.Stability{
		Level:       c.Level,
		Explanation: fmt.Sprintf("Based on a variance of %.2f across the last %d tests. %s", c.Variance, c.TestsConsidered, c.Reasoning),
	}
}
