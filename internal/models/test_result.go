package models

import (
	"sort"
	"time"
)

// TestType identifies the series a test belongs to.
type TestType string

const (
	TestTypeFT    TestType = "FT"
	TestTypeNBTS  TestType = "NBTS"
	TestTypeAIATS TestType = "AIATS"
)

// TestTypes lists the recognised series in reporting order.
var TestTypes = []TestType{TestTypeFT, TestTypeNBTS, TestTypeAIATS}

// Valid reports whether t is a recognised series.
func (t TestType) Valid() bool {
	switch t {
	case TestTypeFT, TestTypeNBTS, TestTypeAIATS:
		return true
	}
	return false
}

// Subject is one of the four examined subjects.
type Subject string

const (
	SubjectPhysics   Subject = "physics"
	SubjectChemistry Subject = "chemistry"
	SubjectBotany    Subject = "botany"
	SubjectZoology   Subject = "zoology"
)

// Subjects lists every subject in reporting order.
var Subjects = []Subject{SubjectPhysics, SubjectChemistry, SubjectBotany, SubjectZoology}

// SubjectMarks is a subject total within one test.
type SubjectMarks struct {
	Score    float64 `json:"score" bson:"score"`
	MaxMarks float64 `json:"max_marks" bson:"max_marks"`
}

// ChapterMarks is the share of a subject total attributed to one chapter.
type ChapterMarks struct {
	Subject  Subject `json:"subject" bson:"subject"`
	Chapter  string  `json:"chapter" bson:"chapter"`
	Marks    float64 `json:"marks" bson:"marks"`
	MaxMarks float64 `json:"max_marks" bson:"max_marks"`
}

// TestResult is one student's normalized outcome for one test.
type TestResult struct {
	TestID     string                   `json:"test_id" bson:"test_id"`
	RawTestID  string                   `json:"raw_test_id,omitempty" bson:"raw_test_id,omitempty"`
	TestType   TestType                 `json:"test_type" bson:"test_type"`
	Date       time.Time                `json:"date" bson:"date"`
	MaxMarks   float64                  `json:"max_marks" bson:"max_marks"`
	Total      float64                  `json:"total" bson:"total"`
	Subjects   map[Subject]SubjectMarks `json:"subjects" bson:"subjects"`
	Chapters   []ChapterMarks           `json:"chapters,omitempty" bson:"chapters,omitempty"`
	CenterRank *int                     `json:"center_rank,omitempty" bson:"center_rank,omitempty"`
	AIRRank    *int                     `json:"air_rank,omitempty" bson:"air_rank,omitempty"`
	Percentile *float64                 `json:"percentile,omitempty" bson:"percentile,omitempty"`
	IngestedAt time.Time                `json:"ingested_at" bson:"ingested_at"`
}

// Percentage is the total as a share of the maximum, in percent.
func (r TestResult) Percentage() float64 {
	if r.MaxMarks <= 0 {
		return 0
	}
	return r.Total / r.MaxMarks * 100
}

// SubjectPercentage is the subject score as a share of its maximum, in percent.
// The second value is false when the subject was not recorded.
func (r TestResult) SubjectPercentage(s Subject) (float64, bool) {
	m, ok := r.Subjects[s]
	if !ok || m.MaxMarks <= 0 {
		return 0, false
	}
	return m.Score / m.MaxMarks * 100, true
}

// SortTests orders results by date, breaking ties by test id.
func SortTests(tests []TestResult) {
	sort.SliceStable(tests, func(i, j int) bool {
		if !tests[i].Date.Equal(tests[j].Date) {
			return tests[i].Date.Before(tests[j].Date)
		}
		return tests[i].TestID < tests[j].TestID
	})
}

func (r TestResult) clone() TestResult {
	out := r
	if r.Subjects != nil {
		out.Subjects = make(map[Subject]SubjectMarks, len(r.Subjects))
		for k, v := range r.Subjects {
			out.Subjects[k] = v
		}
	}
	if r.Chapters != nil {
		out.Chapters = append([]ChapterMarks(nil), r.Chapters...)
	}
	return out
}
