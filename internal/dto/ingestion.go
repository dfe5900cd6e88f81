package dto

import "github.com/MangalNathYadav/aakash-lm-student/internal/models"

// IngestionRequest is the operator upload payload. Sheet uploads bind the
// metadata from form fields and fill Records from the parsed file; rows the
// reader dropped are listed in Skipped so the run reports them.
type IngestionRequest struct {
	TestID   string                `json:"test_id" form:"test_id" validate:"required"`
	TestType string                `json:"test_type" form:"test_type" validate:"required"`
	TestDate string                `json:"test_date" form:"test_date" validate:"required"`
	MaxMarks float64               `json:"max_marks" form:"max_marks" validate:"gt=0"`
	Source   string                `json:"source,omitempty" form:"source"`
	Records  []models.ParsedRecord `json:"records" validate:"required,min=1,dive"`
	Skipped  []string              `json:"skipped,omitempty" form:"-"`
}

// Meta extracts the test metadata.
func (r IngestionRequest) Meta() models.TestMeta {
	return models.TestMeta{TestID: r.TestID, TestType: r.TestType, TestDate: r.TestDate, MaxMarks: r.MaxMarks}
}

// LeaderboardQuery filters a public leaderboard.
type LeaderboardQuery struct {
	Batch    string `form:"batch"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// ExportQuery selects the rendered format of a leaderboard export.
type ExportQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf xlsx"`
}

// ExportLink is a time-limited download link.
type ExportLink struct {
	Method    models.RankingMethod `json:"method"`
	Format    string               `json:"format"`
	URL       string               `json:"url"`
	ExpiresAt string               `json:"expires_at"`
	Version   int64                `json:"version"`
}
