package analytics

import (
	"fmt"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
)

const progressWindow = 3

// SeriesAll keys the graph series that spans every test type.
const SeriesAll = "all"

// Progress compares the latest total with the mean of up to three tests
// before it and with the first test on record.
func Progress(tests []models.TestResult) models.ProgressDelta {
	n := len(tests)
	if n < 2 {
		out := models.ProgressDelta{ComparisonType: string(models.TrendInsufficientData), TestsCompared: n}
		if n == 1 {
			out.LatestScore = tests[0].Total
			out.LatestTestID = tests[0].TestID
		}
		return out
	}
	latest := tests[n-1]
	start := n - 1 - progressWindow
	if start < 0 {
		start = 0
	}
	previous := tests[start : n-1]

	prevTotals := totalsOf(previous)
	recentAvg := mean(prevTotals)
	out := models.ProgressDelta{
		ComparisonType: fmt.Sprintf("last_%d_average", len(previous)),
		LatestScore:    latest.Total,
		RecentAverage:  round(recentAvg, 2),
		DeltaVsRecent:  round(latest.Total-recentAvg, 2),
		DeltaVsFirst:   round(latest.Total-tests[0].Total, 2),
		SubjectDeltas:  make(map[models.Subject]float64),
		TestsCompared:  len(previous),
		LatestTestID:   latest.TestID,
	}
	for _, t := range previous {
		out.PreviousTestIDs = append(out.PreviousTestIDs, t.TestID)
	}
	for _, s := range models.Subjects {
		current, ok := latest.Subjects[s]
		if !ok {
			continue
		}
		scores := make([]float64, 0, len(previous))
		for _, t := range previous {
			if m, ok := t.Subjects[s]; ok {
				scores = append(scores, m.Score)
			}
		}
		if len(scores) > 0 {
			out.SubjectDeltas[s] = round(current.Score-mean(scores), 2)
		}
	}
	return out
}

// TrendSeries groups subject scores per test type for graphing, plus an
// "all" series. Tests keep their chronological order.
func TrendSeries(tests []models.TestResult) map[string][]models.TrendPoint {
	out := map[string][]models.TrendPoint{SeriesAll: {}}
	for _, tt := range models.TestTypes {
		out[string(tt)] = []models.TrendPoint{}
	}
	for _, t := range tests {
		point := models.TrendPoint{
			TestID:   t.TestID,
			TestType: t.TestType,
			Date:     t.Date,
			Total:    t.Total,
			Subjects: make(map[models.Subject]float64, len(t.Subjects)),
		}
		for s, m := range t.Subjects {
			point.Subjects[s] = m.Score
		}
		out[SeriesAll] = append(out[SeriesAll], point)
		out[string(t.TestType)] = append(out[string(t.TestType)], point)
	}
	return out
}
