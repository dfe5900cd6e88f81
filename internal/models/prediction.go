package models

import "time"

// ConfidenceLevel grades how much a prediction can be trusted.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "High"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceLow    ConfidenceLevel = "Low"
)

// Contribution tags how a subject moves the overall projection.
type Contribution string

const (
	ContributionBoosting Contribution = "boosting"
	ContributionLimiting Contribution = "limiting"
	ContributionNeutral  Contribution = "neutral"
)

// ScoreRange is an inclusive projected score interval.
type ScoreRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Stability summarises score volatility for the explanation block.
type Stability struct {
	Level       ConsistencyLevel `json:"level"`
	Explanation string           `json:"explanation"`
}

// RangeNarrowing is an informational what-if, never a guarantee.
type RangeNarrowing struct {
	Condition   string     `json:"condition"`
	FutureRange ScoreRange `json:"future_range"`
}

// PredictionExplainability lists why the range came out as it did.
type PredictionExplainability struct {
	Reasoning           []string                 `json:"reasoning"`
	SubjectContribution map[Subject]Contribution `json:"subject_contribution"`
	Stability           Stability                `json:"stability"`
	RangeNarrowing      RangeNarrowing           `json:"range_narrowing"`
}

// PredictionSnapshot is the published per-student projection.
type PredictionSnapshot struct {
	PSID                     string                   `json:"psid"`
	PredictedScoreRange      ScoreRange               `json:"predicted_score_range"`
	Estimate                 float64                  `json:"estimate"`
	ConfidenceLevel          ConfidenceLevel          `json:"confidence_level"`
	PredictionExplainability PredictionExplainability `json:"prediction_explainability"`
	Disclaimer               string                   `json:"disclaimer"`
	GeneratedAt              time.Time                `json:"generated_at"`
}
