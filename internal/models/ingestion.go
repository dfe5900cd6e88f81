package models

import "time"

// IngestionStage is a step of the per-document state machine.
type IngestionStage string

const (
	StageReceived   IngestionStage = "received"
	StageNormalized IngestionStage = "normalized"
	StageMapped     IngestionStage = "mapped"
	StageAggregated IngestionStage = "aggregated"
	StagePublished  IngestionStage = "published"
	StageFailed     IngestionStage = "failed"
)

// IngestionOutcome is the terminal status of a run.
type IngestionOutcome string

const (
	OutcomeRunning IngestionOutcome = "running"
	OutcomeSuccess IngestionOutcome = "success"
	OutcomeFailed  IngestionOutcome = "failed"
)

// TestMeta is the operator-supplied metadata for one uploaded document.
type TestMeta struct {
	TestID   string  `json:"test_id"`
	TestType string  `json:"test_type"`
	TestDate string  `json:"test_date"`
	MaxMarks float64 `json:"max_marks"`
}

// ParsedRecord is one student's flat per-subject marks as extracted from a
// result document. Subject keys may use short aliases such as "phy".
type ParsedRecord struct {
	PSID       string             `json:"psid"`
	Name       string             `json:"name,omitempty"`
	Batch      string             `json:"batch,omitempty"`
	Phone      string             `json:"phone,omitempty"`
	Email      string             `json:"email,omitempty"`
	Center     string             `json:"center,omitempty"`
	Subjects   map[string]float64 `json:"subjects"`
	Total      *float64           `json:"total,omitempty"`
	CenterRank *int               `json:"center_rank,omitempty"`
	AIRRank    *int               `json:"air_rank,omitempty"`
	Percentile *float64           `json:"percentile,omitempty"`
}

// IngestionRun is the progress record of one document upload.
type IngestionRun struct {
	RunID            string           `json:"run_id"`
	Source           string           `json:"source,omitempty"`
	TestID           string           `json:"test_id,omitempty"`
	Status           IngestionOutcome `json:"status"`
	Stage            IngestionStage   `json:"stage"`
	FailedStage      IngestionStage   `json:"failed_stage,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	Logs             []string         `json:"logs"`
	RecordsReceived  int              `json:"records_received"`
	RecordsSkipped   int              `json:"records_skipped"`
	StudentsAffected int              `json:"students_affected"`
	StudentsCreated  int              `json:"students_created"`
	TestsReplaced    int              `json:"tests_replaced"`
	PublishedVersion int64            `json:"published_version,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       *time.Time       `json:"finished_at,omitempty"`
}
