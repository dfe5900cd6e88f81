package models

import "time"

// StudentProfile holds optional descriptive fields carried from the source sheets.
type StudentProfile struct {
	Phone  string `json:"phone,omitempty" bson:"phone,omitempty"`
	Email  string `json:"email,omitempty" bson:"email,omitempty"`
	Center string `json:"center,omitempty" bson:"center,omitempty"`
}

// Student is the persisted record: identity plus the full test history.
// Version increases by one on every successful publish touching the record.
type Student struct {
	PSID      string         `json:"psid" bson:"_id"`
	Name      string         `json:"name" bson:"name"`
	Batch     string         `json:"batch" bson:"batch"`
	Profile   StudentProfile `json:"profile" bson:"profile"`
	Tests     []TestResult   `json:"tests" bson:"tests"`
	Version   int64          `json:"version" bson:"version"`
	UpdatedAt time.Time      `json:"updated_at" bson:"updated_at"`
}

const (
	UnknownStudentName  = "Unknown"
	UnknownStudentBatch = "N/A"
)

// NewStudent creates an empty record for a first-seen PSID.
func NewStudent(psid, name, batch string) Student {
	if name == "" {
		name = UnknownStudentName
	}
	if batch == "" {
		batch = UnknownStudentBatch
	}
	return Student{PSID: psid, Name: name, Batch: batch}
}

// UpsertTest inserts the result or replaces the one with the same test id,
// keeping the history ordered. It reports whether a result was replaced.
func (s *Student) UpsertTest(r TestResult) bool {
	replaced := false
	for i := range s.Tests {
		if s.Tests[i].TestID == r.TestID {
			s.Tests[i] = r
			replaced = true
			break
		}
	}
	if !replaced {
		s.Tests = append(s.Tests, r)
	}
	SortTests(s.Tests)
	return replaced
}

// Latest returns the most recent result.
func (s Student) Latest() (TestResult, bool) {
	if len(s.Tests) == 0 {
		return TestResult{}, false
	}
	return s.Tests[len(s.Tests)-1], true
}

// Clone returns a deep copy safe to mutate without touching the original.
func (s Student) Clone() Student {
	out := s
	if s.Tests != nil {
		out.Tests = make([]TestResult, len(s.Tests))
		for i, t := range s.Tests {
			out.Tests[i] = t.clone()
		}
	}
	return out
}
