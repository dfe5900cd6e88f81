package analytics

import (
	"fmt"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
)

const (
	cvHighLimit       = 0.10
	cvMediumLimit     = 0.20
	dropMarksLimit    = 15.0
	dropRelativeLimit = 0.02
	sharpDeclineLimit = 0.10
)

// ClassifyTrend compares the mean of the last two values with the mean of
// everything before them. With exactly two values the first is the prior and
// the second the recent mean.
func (e *Engine) ClassifyTrend(series []float64) models.TrendAnalysis {
	n := len(series)
	if n < 2 {
		return models.TrendAnalysis{
			Label:     models.TrendInsufficientData,
			Reasoning: fmt.Sprintf("Only %d result(s) on record; at least 2 are needed to call a trend.", n),
		}
	}
	var recent, prior float64
	if n == 2 {
		prior, recent = series[0], series[1]
	} else {
		recent = mean(series[n-2:])
		prior = mean(series[:n-2])
	}
	delta := recent - prior
	analysis := models.TrendAnalysis{RecentMean: round(recent, 2), PriorMean: round(prior, 2)}
	switch {
	case delta > e.cfg.TrendMargin:
		analysis.Label = models.TrendImproving
		analysis.Reasoning = fmt.Sprintf("Recent average is %.1f points above earlier results.", delta)
	case delta < -e.cfg.TrendMargin:
		analysis.Label = models.TrendDeclining
		analysis.Reasoning = fmt.Sprintf("Recent average is %.1f points below earlier results.", -delta)
	default:
		analysis.Label = models.TrendStable
		analysis.Reasoning = fmt.Sprintf("Recent average is within %.1f points of earlier results.", e.cfg.TrendMargin)
	}
	return analysis
}

// Consistency classifies the last two totals. Rules are checked from most to
// least severe and the first match wins:
//  1. fewer than two scores, or a non-positive mean: low
//  2. relative drop above 10%, or cv above 0.20: low
//  3. cv of at least 0.10, or a drop above 15 marks or 2%: medium
//  4. otherwise: high
func Consistency(totals []float64) models.ConsistencyAnalysis {
	recent := lastN(totals, 2)
	out := models.ConsistencyAnalysis{TestsConsidered: len(recent)}
	if len(recent) < 2 {
		out.Level = models.ConsistencyLow
		out.Reasoning = "Not enough tests to judge consistency."
		return out
	}
	mu := mean(recent)
	if mu <= 0 {
		out.Level = models.ConsistencyLow
		out.Reasoning = "Recent scores average zero or below."
		return out
	}

	cv := stdDev(recent) / mu
	prev, latest := recent[0], recent[1]
	drop := prev - latest
	relDrop := 0.0
	if prev > 0 {
		relDrop = drop / prev
	}
	out.CoefficientOfVariation = round(cv, 4)
	out.Variance = round(variance(recent), 2)
	if drop > 0 {
		out.RecentDrop = round(drop, 2)
	}

	switch {
	case relDrop > sharpDeclineLimit:
		out.Level = models.ConsistencyLow
		out.Reasoning = fmt.Sprintf("Sharp decline of %.1f%% in the latest test.", relDrop*100)
	case cv > cvMediumLimit:
		out.Level = models.ConsistencyLow
		out.Reasoning = fmt.Sprintf("Scores vary by %.1f%% of their mean.", cv*100)
	case cv >= cvHighLimit:
		out.Level = models.ConsistencyMedium
		out.Reasoning = fmt.Sprintf("Scores vary by %.1f%% of their mean.", cv*100)
	case drop > dropMarksLimit || relDrop > dropRelativeLimit:
		out.Level = models.ConsistencyMedium
		out.Reasoning = fmt.Sprintf("Latest score dropped %.0f marks from the previous test.", drop)
	default:
		out.Level = models.ConsistencyHigh
		out.Reasoning = fmt.Sprintf("Scores vary by only %.1f%% of their mean.", cv*100)
	}
	return out
}

// Readiness joins trend and consistency.
func Readiness(trend models.Trend, consistency models.ConsistencyLevel) models.ReadinessAnalysis {
	switch {
	case trend == models.TrendImproving && consistency == models.ConsistencyHigh:
		return models.ReadinessAnalysis{Level: models.ReadinessReady, Reasoning: "Scores are rising and holding steady."}
	case trend == models.TrendStable && consistency == models.ConsistencyHigh:
		return models.ReadinessAnalysis{Level: models.ReadinessModerate, Reasoning: "Scores are steady but not yet rising."}
	case trend == models.TrendInsufficientData:
		return models.ReadinessAnalysis{Level: models.ReadinessNeedsWork, Reasoning: "Not enough tests to judge readiness."}
	case consistency != models.ConsistencyHigh:
		return models.ReadinessAnalysis{Level: models.ReadinessNeedsWork, Reasoning: fmt.Sprintf("Consistency is %s; steadier results are needed.", consistency)}
	default:
		return models.ReadinessAnalysis{Level: models.ReadinessNeedsWork, Reasoning: "Scores are trending down."}
	}
}
