package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
)

// Syllabus maps a test to the chapters each subject covered. Entries keyed by
// test id take precedence over the per test-type defaults.
type Syllabus struct {
	mu     sync.RWMutex
	byTest map[string]map[models.Subject][]string
	byType map[models.TestType]map[models.Subject][]string
}

type syllabusTest struct {
	TestID   string                     `json:"test_id"`
	TestType string                     `json:"test_type,omitempty"`
	TestDate string                     `json:"test_date,omitempty"`
	Subjects map[string]syllabusChapter `json:"subjects"`
}

type syllabusChapter struct {
	Chapters []string `json:"chapters"`
}

type syllabusFile struct {
	Tests     []syllabusTest                 `json:"tests"`
	TestTypes map[string]map[string][]string `json:"test_types"`
}

// NewSyllabus returns an empty catalog.
func NewSyllabus() *Syllabus {
	return &Syllabus{
		byTest: make(map[string]map[models.Subject][]string),
		byType: make(map[models.TestType]map[models.Subject][]string),
	}
}

// LoadSyllabusFile reads a catalog from disk.
func LoadSyllabusFile(path string) (*Syllabus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open syllabus: %w", err)
	}
	defer f.Close() //nolint:errcheck
	return LoadSyllabus(f)
}

// LoadSyllabus decodes either a bare array of tests or an object with
// "tests" and "test_types" keys.
func LoadSyllabus(r io.Reader) (*Syllabus, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read syllabus: %w", err)
	}
	var doc syllabusFile
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &doc.Tests)
	} else {
		err = json.Unmarshal(trimmed, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode syllabus: %w", err)
	}

	s := NewSyllabus()
	for _, t := range doc.Tests {
		id := NormalizeTestID(t.TestID)
		if id == "" {
			return nil, fmt.Errorf("syllabus entry without test_id")
		}
		for rawSubject, ch := range t.Subjects {
			subject, ok := ParseSubject(rawSubject)
			if !ok {
				return nil, fmt.Errorf("syllabus %s: unknown subject %q", id, rawSubject)
			}
			s.SetTest(id, subject, ch.Chapters)
		}
	}
	for rawType, subjects := range doc.TestTypes {
		tt, err := ParseTestType(rawType)
		if err != nil {
			return nil, fmt.Errorf("syllabus: %w", err)
		}
		for rawSubject, chapters := range subjects {
			subject, ok := ParseSubject(rawSubject)
			if !ok {
				return nil, fmt.Errorf("syllabus %s: unknown subject %q", tt, rawSubject)
			}
			s.SetType(tt, subject, chapters)
		}
	}
	return s, nil
}

// SetTest records the chapters a subject covered in one test.
func (s *Syllabus) SetTest(testID string, subject models.Subject, chapters []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byTest[testID] == nil {
		s.byTest[testID] = make(map[models.Subject][]string)
	}
	s.byTest[testID][subject] = cleanChapters(chapters)
}

// SetType records the default chapters for a test type.
func (s *Syllabus) SetType(tt models.TestType, subject models.Subject, chapters []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byType[tt] == nil {
		s.byType[tt] = make(map[models.Subject][]string)
	}
	s.byType[tt][subject] = cleanChapters(chapters)
}

// Chapters returns the chapters covered, or nil when the catalog has none.
func (s *Syllabus) Chapters(testID string, tt models.TestType, subject models.Subject) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if chapters := s.byTest[testID][subject]; len(chapters) > 0 {
		return chapters
	}
	return s.byType[tt][subject]
}

// Tests returns the number of tests with explicit entries.
func (s *Syllabus) Tests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byTest)
}

func cleanChapters(chapters []string) []string {
	seen := make(map[string]struct{}, len(chapters))
	out := make([]string, 0, len(chapters))
	for _, c := range chapters {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
