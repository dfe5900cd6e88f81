// Package analytics derives every published view of a student from the raw
// test history. All functions are pure: the same history always yields the
// same summaries, predictions and rankings.
package analytics

import (
	"time"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
)

// Config tunes scoring. Zero values fall back to DefaultConfig.
type Config struct {
	// Weights scales each test type in CPI; harder series weigh more.
	Weights map[models.TestType]float64
	// TrendMargin is the percentage-point gap separating a trend from stable.
	TrendMargin float64
	// LeaderboardCap bounds every leaderboard.
	LeaderboardCap int
	// ReliabilityBonus multiplies the consistency index once a student has
	// ReliabilityMinTests results.
	ReliabilityBonus    float64
	ReliabilityMinTests int
}

// DefaultConfig returns the production scoring constants.
func DefaultConfig() Config {
	return Config{
		Weights: map[models.TestType]float64{
			models.TestTypeNBTS:  0.8,
			models.TestTypeFT:    1.0,
			models.TestTypeAIATS: 1.3,
		},
		TrendMargin:         1.5,
		LeaderboardCap:      100,
		ReliabilityBonus:    1.1,
		ReliabilityMinTests: 10,
	}
}

// Engine computes summaries, chapter ratings, predictions and leaderboards.
type Engine struct {
	cfg Config
}

// NewEngine builds an engine, filling unset fields from DefaultConfig.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	weights := make(map[models.TestType]float64, len(def.Weights))
	for tt, w := range def.Weights {
		weights[tt] = w
	}
	for tt, w := range cfg.Weights {
		if w > 0 {
			weights[tt] = w
		}
	}
	cfg.Weights = weights
	if cfg.TrendMargin <= 0 {
		cfg.TrendMargin = def.TrendMargin
	}
	if cfg.LeaderboardCap <= 0 {
		cfg.LeaderboardCap = def.LeaderboardCap
	}
	if cfg.ReliabilityBonus <= 0 {
		cfg.ReliabilityBonus = def.ReliabilityBonus
	}
	if cfg.ReliabilityMinTests <= 0 {
		cfg.ReliabilityMinTests = def.ReliabilityMinTests
	}
	return &Engine{cfg: cfg}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) weight(tt models.TestType) float64 {
	if w, ok := e.cfg.Weights[tt]; ok {
		return w
	}
	return 1.0
}

// Analyze derives the published views of a student.
func (e *Engine) Analyze(student models.Student, publishedAt time.Time, version int64) models.StudentViews {
	tests := append([]models.TestResult(nil), student.Tests...)
	models.SortTests(tests)

	overall, subjects, meta := e.Aggregate(tests)
	meta.PublishedVersion = version

	chapters := e.ChapterStats(tests)
	for subject, summary := range subjects {
		summary.Chapters = chapters[subject]
		if summary.Chapters == nil {
			summary.Chapters = []models.ChapterStat{}
		}
		subjects[subject] = summary
	}

	totals := totalsOf(tests)
	trend := e.ClassifyTrend(percentagesOf(tests))
	consistency := Consistency(totals)
	readiness := Readiness(trend.Label, consistency.Level)

	snapshot := models.StudentSnapshot{
		PSID:               student.PSID,
		Name:               student.Name,
		Batch:              student.Batch,
		OverallPerformance: overall,
		Meta:               meta,
		Subjects:           subjects,
		FocusInsights:      e.FocusInsights(tests),
		Trend:              trend,
		Consistency:        consistency,
		Readiness:          readiness,
		PublishedAt:        publishedAt,
	}

	return models.StudentViews{
		Snapshot:   snapshot,
		Prediction: e.Predict(student.PSID, tests, trend.Label, subjects, consistency, publishedAt),
		Graphs: models.StudentGraphs{
			PSID:          student.PSID,
			Series:        TrendSeries(tests),
			ProgressDelta: Progress(tests),
		},
	}
}

func totalsOf(tests []models.TestResult) []float64 {
	out := make([]float64, len(tests))
	for i, t := range tests {
		out[i] = t.Total
	}
	return out
}

func percentagesOf(tests []models.TestResult) []float64 {
	out := make([]float64, len(tests))
	for i, t := range tests {
		out[i] = t.Percentage()
	}
	return out
}
