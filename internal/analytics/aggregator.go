package analytics

import (
	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
)

// Aggregate folds a date-ordered history into overall and per-subject
// summaries. Subject chapter lists are left empty. An empty history yields
// zeroed summaries with an insufficient_data trend.
func (e *Engine) Aggregate(tests []models.TestResult) (models.OverallPerformance, map[models.Subject]models.SubjectSummary, models.SnapshotMeta) {
	subjects := make(map[models.Subject]models.SubjectSummary, len(models.Subjects))
	for _, s := range models.Subjects {
		subjects[s] = e.aggregateSubject(tests, s)
	}

	if len(tests) == 0 {
		return models.OverallPerformance{Trend: models.TrendInsufficientData}, subjects, models.SnapshotMeta{}
	}

	totals := totalsOf(tests)
	percentages := percentagesOf(tests)
	latest := tests[len(tests)-1]
	latestDate := latest.Date

	overall := models.OverallPerformance{
		AverageTotalScore: round(mean(totals), 2),
		LatestScore:       latest.Total,
		BestScore:         maxOf(totals),
		AveragePercentage: round(mean(percentages), 1),
		ConsistencyIndex:  e.ConsistencyIndex(totals),
		Trend:             e.ClassifyTrend(percentages).Label,
	}
	meta := models.SnapshotMeta{
		TestsTaken:     len(tests),
		LatestTestDate: &latestDate,
		LatestTestID:   latest.TestID,
		LatestTestType: latest.TestType,
		LatestMaxMarks: latest.MaxMarks,
	}
	return overall, subjects, meta
}

// aggregateSubject skips tests without a mark for the subject, so the latest
// score comes from the last test that recorded it.
func (e *Engine) aggregateSubject(tests []models.TestResult, subject models.Subject) models.SubjectSummary {
	scores := make([]float64, 0, len(tests))
	percentages := make([]float64, 0, len(tests))
	for _, t := range tests {
		pct, ok := t.SubjectPercentage(subject)
		if !ok {
			continue
		}
		scores = append(scores, t.Subjects[subject].Score)
		percentages = append(percentages, pct)
	}
	summary := models.SubjectSummary{
		TestsTaken: len(scores),
		Trend:      e.ClassifyTrend(percentages).Label,
		Chapters:   []models.ChapterStat{},
	}
	if len(scores) == 0 {
		return summary
	}
	summary.AverageScore = round(mean(scores), 2)
	summary.BestScore = maxOf(scores)
	summary.LatestScore = scores[len(scores)-1]
	summary.AveragePercentage = round(mean(percentages), 1)
	return summary
}

// ConsistencyIndex rewards a high average held with low volatility:
// avg × 1/(σ+1) × reliability, where σ is the population deviation of all
// totals and reliability steps up for long histories.
func (e *Engine) ConsistencyIndex(totals []float64) float64 {
	if len(totals) == 0 {
		return 0
	}
	reliability := 1.0
	if len(totals) >= e.cfg.ReliabilityMinTests {
		reliability = e.cfg.ReliabilityBonus
	}
	return round(mean(totals)*(1/(stdDev(totals)+1))*reliability, 2)
}
