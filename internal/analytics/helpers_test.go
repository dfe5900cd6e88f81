package analytics

import (
	"time"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
)

func testDay(d int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func testSyllabus() *Syllabus {
	s := NewSyllabus()
	for _, tt := range models.TestTypes {
		s.SetType(tt, models.SubjectPhysics, []string{"Kinematics", "Optics"})
		s.SetType(tt, models.SubjectChemistry, []string{"Mole Concept"})
		s.SetType(tt, models.SubjectBotany, []string{"Cell Biology", "Genetics"})
		s.SetType(tt, models.SubjectZoology, []string{"Human Physiology"})
	}
	return s
}

// result builds a 720-mark test whose total is split evenly over subjects.
func result(id string, tt models.TestType, day int, total float64) models.TestResult {
	r := models.TestResult{
		TestID:   id,
		TestType: tt,
		Date:     testDay(day),
		MaxMarks: 720,
		Total:    total,
		Subjects: map[models.Subject]models.SubjectMarks{},
	}
	for _, s := range models.Subjects {
		r.Subjects[s] = models.SubjectMarks{Score: total / 4, MaxMarks: 180}
	}
	MapChapters(&r, testSyllabus())
	return r
}

func history(totals ...float64) []models.TestResult {
	out := make([]models.TestResult, len(totals))
	for i, total := range totals {
		out[i] = result("FT"+string(rune('A'+i)), models.TestTypeFT, i, total)
	}
	return out
}

func studentWith(psid string, totals ...float64) models.Student {
	s := models.NewStudent(psid, "Student "+psid, "B1")
	for _, t := range history(totals...) {
		s.UpsertTest(t)
	}
	return s
}
