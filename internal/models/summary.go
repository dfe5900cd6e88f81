package models

import "time"

// Trend labels a series as moving up, down or flat.
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendStable           Trend = "stable"
	TrendDeclining        Trend = "declining"
	TrendInsufficientData Trend = "insufficient_data"
)

// ConsistencyLevel buckets recent score stability.
type ConsistencyLevel string

const (
	ConsistencyHigh   ConsistencyLevel = "high"
	ConsistencyMedium ConsistencyLevel = "medium"
	ConsistencyLow    ConsistencyLevel = "low"
)

// ReadinessLevel is the joint trend and consistency classification.
type ReadinessLevel string

const (
	ReadinessReady     ReadinessLevel = "ready"
	ReadinessModerate  ReadinessLevel = "moderate"
	ReadinessNeedsWork ReadinessLevel = "needs_work"
)

// ChapterStatus buckets a CPI value.
type ChapterStatus string

const (
	ChapterMastered      ChapterStatus = "Mastered"
	ChapterNeedsPractice ChapterStatus = "Needs Practice"
	ChapterCritical      ChapterStatus = "Critical"
)

// ChapterStat is the single rated-chapter representation used everywhere.
type ChapterStat struct {
	Name       string        `json:"name"`
	Subject    Subject       `json:"subject"`
	CPI        float64       `json:"cpi"`
	Status     ChapterStatus `json:"status"`
	DataPoints int           `json:"data_points"`
	Percentage float64       `json:"percentage"`
}

// SubjectSummary aggregates one subject across a student's history.
// LatestScore is the score from the most recent test that recorded the
// subject, which may be older than the student's latest test.
type SubjectSummary struct {
	AverageScore      float64       `json:"average_score"`
	BestScore         float64       `json:"best_score"`
	LatestScore       float64       `json:"latest_score"`
	AveragePercentage float64       `json:"average_percentage"`
	TestsTaken        int           `json:"tests_taken"`
	Trend             Trend         `json:"trend"`
	Chapters          []ChapterStat `json:"chapters"`
}

// OverallPerformance aggregates test totals.
type OverallPerformance struct {
	AverageTotalScore float64 `json:"average_total_score"`
	LatestScore       float64 `json:"latest_score"`
	BestScore         float64 `json:"best_score"`
	AveragePercentage float64 `json:"average_percentage"`
	ConsistencyIndex  float64 `json:"consistency_index"`
	Trend             Trend   `json:"trend"`
}

// SnapshotMeta describes the history a snapshot was derived from.
type SnapshotMeta struct {
	TestsTaken       int        `json:"tests_taken"`
	LatestTestDate   *time.Time `json:"latest_test_date,omitempty"`
	LatestTestID     string     `json:"latest_test_id,omitempty"`
	LatestTestType   TestType   `json:"latest_test_type,omitempty"`
	LatestMaxMarks   float64    `json:"latest_max_marks,omitempty"`
	PublishedVersion int64      `json:"published_version"`
}

// ChapterInsight is one entry of the focus lists.
type ChapterInsight struct {
	Subject Subject       `json:"subject"`
	Chapter string        `json:"chapter"`
	CPI     float64       `json:"cpi"`
	Status  ChapterStatus `json:"status"`
	Delta   float64       `json:"delta,omitempty"`
}

// FocusInsights points the student at what to work on next.
type FocusInsights struct {
	TopWeakChapters      []ChapterInsight `json:"top_weak_chapters"`
	MostImprovedChapters []ChapterInsight `json:"most_improved_chapters"`
}

// ConsistencyAnalysis explains the consistency label.
type ConsistencyAnalysis struct {
	Level                  ConsistencyLevel `json:"level"`
	CoefficientOfVariation float64          `json:"coefficient_of_variation"`
	Variance               float64          `json:"variance"`
	RecentDrop             float64          `json:"recent_drop"`
	TestsConsidered        int              `json:"tests_considered"`
	Reasoning              string           `json:"reasoning"`
}

// ReadinessAnalysis explains the readiness label.
type ReadinessAnalysis struct {
	Level     ReadinessLevel `json:"level"`
	Reasoning string         `json:"reasoning"`
}

// TrendAnalysis explains the overall trend label.
type TrendAnalysis struct {
	Label      Trend   `json:"label"`
	RecentMean float64 `json:"recent_mean"`
	PriorMean  float64 `json:"prior_mean"`
	Reasoning  string  `json:"reasoning"`
}

// StudentSnapshot is the published per-student analytics document.
type StudentSnapshot struct {
	PSID               string                     `json:"psid"`
	Name               string                     `json:"name"`
	Batch              string                     `json:"batch"`
	OverallPerformance OverallPerformance         `json:"overall_performance"`
	Meta               SnapshotMeta               `json:"meta"`
	Subjects           map[Subject]SubjectSummary `json:"subjects"`
	FocusInsights      FocusInsights              `json:"focus_insights"`
	Trend              TrendAnalysis              `json:"trend"`
	Consistency        ConsistencyAnalysis        `json:"consistency"`
	Readiness          ReadinessAnalysis          `json:"readiness"`
	PublishedAt        time.Time                  `json:"published_at"`
}

// ProgressDelta compares the latest test against recent history.
type ProgressDelta struct {
	ComparisonType  string              `json:"comparison_type"`
	LatestScore     float64             `json:"latest_score"`
	RecentAverage   float64             `json:"recent_average"`
	DeltaVsRecent   float64             `json:"delta_vs_recent"`
	DeltaVsFirst    float64             `json:"delta_vs_first"`
	SubjectDeltas   map[Subject]float64 `json:"subject_deltas,omitempty"`
	TestsCompared   int                 `json:"tests_compared"`
	LatestTestID    string              `json:"latest_test_id,omitempty"`
	PreviousTestIDs []string            `json:"previous_test_ids,omitempty"`
}

// TrendPoint is one test on a subject trend graph.
type TrendPoint struct {
	TestID   string              `json:"test_id"`
	TestType TestType            `json:"test_type"`
	Date     time.Time           `json:"date"`
	Total    float64             `json:"total"`
	Subjects map[Subject]float64 `json:"subjects"`
}

// StudentGraphs carries per test-type subject series and the progress delta.
type StudentGraphs struct {
	PSID          string                  `json:"psid"`
	Series        map[string][]TrendPoint `json:"series"`
	ProgressDelta ProgressDelta           `json:"progress_delta"`
}

// StudentViews bundles every published view of one student.
type StudentViews struct {
	Snapshot   StudentSnapshot    `json:"snapshot"`
	Prediction PredictionSnapshot `json:"prediction"`
	Graphs     StudentGraphs      `json:"graphs"`
}
