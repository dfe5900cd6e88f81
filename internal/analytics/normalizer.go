package analytics

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
)

var (
	testIDLetters = regexp.MustCompile(`[A-Z]+`)
	testIDDigits  = regexp.MustCompile(`\d+`)
	ordinalSuffix = regexp.MustCompile(`(\d+)(st|nd|rd|th)`)
)

var subjectAliases = map[string]models.Subject{
	"physics":   models.SubjectPhysics,
	"phy":       models.SubjectPhysics,
	"chemistry": models.SubjectChemistry,
	"chem":      models.SubjectChemistry,
	"che":       models.SubjectChemistry,
	"botany":    models.SubjectBotany,
	"bot":       models.SubjectBotany,
	"zoology":   models.SubjectZoology,
	"zoo":       models.SubjectZoology,
}

var testDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2 Jan 06",
	"2 January 06",
	"2 Jan 2006",
	"2 January 2006",
}

const scoreTolerance = 1e-6

// NormalizeTestID canonicalises ids such as "ft-08" to "FT8". The retired
// NBTSR prefix folds into NBTS.
func NormalizeTestID(raw string) string {
	id := strings.ToUpper(strings.TrimSpace(raw))
	if id == "" {
		return ""
	}
	prefix := testIDLetters.FindString(id)
	digits := testIDDigits.FindString(id)
	if prefix != "" && digits != "" {
		if n, err := strconv.Atoi(digits); err == nil {
			if prefix == "NBTSR" {
				prefix = "NBTS"
			}
			return prefix + strconv.Itoa(n)
		}
	}
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(id)
}

// ParseTestType accepts the enum case-insensitively.
func ParseTestType(raw string) (models.TestType, error) {
	tt := models.TestType(strings.ToUpper(strings.TrimSpace(raw)))
	if tt == "NBTSR" {
		tt = models.TestTypeNBTS
	}
	if !tt.Valid() {
		return "", appErrors.Clonef(appErrors.ErrUnknownTestType, "unknown test type %q: expected FT, NBTS or AIATS", raw)
	}
	return tt, nil
}

// ParseSubject resolves a subject name or alias.
func ParseSubject(raw string) (models.Subject, bool) {
	s, ok := subjectAliases[strings.ToLower(strings.TrimSpace(raw))]
	return s, ok
}

// ParseTestDate accepts ISO dates and the "15th Jun 25" style used in
// syllabus sheets.
func ParseTestDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	clean := ordinalSuffix.ReplaceAllString(trimmed, "$1")
	clean = strings.Join(strings.Fields(strings.NewReplacer("'", " ", ".", " ").Replace(clean)), " ")
	for _, candidate := range []string{trimmed, clean} {
		for _, layout := range testDateLayouts {
			if t, err := time.Parse(layout, candidate); err == nil {
				return t.UTC(), nil
			}
		}
	}
	return time.Time{}, appErrors.Clonef(appErrors.ErrMalformedRecord, "test_date %q is not a valid date", raw)
}

// ResolvedMeta is validated test metadata.
type ResolvedMeta struct {
	TestID    string
	RawTestID string
	TestType  models.TestType
	Date      time.Time
	MaxMarks  float64
}

// SubjectMax is the maximum marks of each subject.
func (m ResolvedMeta) SubjectMax() float64 {
	return m.MaxMarks / float64(len(models.Subjects))
}

// ResolveMeta validates operator metadata. Missing fields are malformed
// records; an unrecognised type is reported separately.
func ResolveMeta(meta models.TestMeta) (ResolvedMeta, error) {
	id := NormalizeTestID(meta.TestID)
	switch {
	case id == "":
		return ResolvedMeta{}, appErrors.Clone(appErrors.ErrMalformedRecord, "test_id is required")
	case strings.TrimSpace(meta.TestDate) == "":
		return ResolvedMeta{}, appErrors.Clone(appErrors.ErrMalformedRecord, "test_date is required")
	case meta.MaxMarks <= 0 || math.IsNaN(meta.MaxMarks) || math.IsInf(meta.MaxMarks, 0):
		return ResolvedMeta{}, appErrors.Clone(appErrors.ErrMalformedRecord, "max_marks must be a positive number")
	}
	date, err := ParseTestDate(meta.TestDate)
	if err != nil {
		return ResolvedMeta{}, err
	}
	tt, err := ParseTestType(meta.TestType)
	if err != nil {
		return ResolvedMeta{}, err
	}
	return ResolvedMeta{TestID: id, RawTestID: meta.TestID, TestType: tt, Date: date, MaxMarks: meta.MaxMarks}, nil
}

// Normalize turns one parsed record into a canonical test result without
// chapter attribution.
func Normalize(meta ResolvedMeta, rec models.ParsedRecord, ingestedAt time.Time) (models.TestResult, error) {
	psid := strings.TrimSpace(rec.PSID)
	if psid == "" {
		return models.TestResult{}, appErrors.Clone(appErrors.ErrMalformedRecord, "record is missing psid")
	}
	subjectMax := meta.SubjectMax()
	subjects := make(map[models.Subject]models.SubjectMarks, len(models.Subjects))
	sum := 0.0
	for key, score := range rec.Subjects {
		subject, ok := ParseSubject(key)
		if !ok {
			continue
		}
		if math.IsNaN(score) || math.IsInf(score, 0) {
			return models.TestResult{}, appErrors.Clonef(appErrors.ErrMalformedRecord, "psid %s: %s score is not a number", psid, subject)
		}
		if score > subjectMax+scoreTolerance {
			return models.TestResult{}, appErrors.Clonef(appErrors.ErrMalformedRecord, "psid %s: %s score %.2f exceeds subject maximum %.2f", psid, subject, score, subjectMax)
		}
		if _, dup := subjects[subject]; dup {
			return models.TestResult{}, appErrors.Clonef(appErrors.ErrMalformedRecord, "psid %s: %s given twice", psid, subject)
		}
		subjects[subject] = models.SubjectMarks{Score: score, MaxMarks: subjectMax}
		sum += score
	}
	if len(subjects) == 0 {
		return models.TestResult{}, appErrors.Clonef(appErrors.ErrMalformedRecord, "psid %s: subject totals are missing", psid)
	}

	total := sum
	if rec.Total != nil {
		total = *rec.Total
	}
	if math.IsNaN(total) || total > meta.MaxMarks+scoreTolerance {
		return models.TestResult{}, appErrors.Clonef(appErrors.ErrMalformedRecord, "psid %s: total %.2f exceeds max_marks %.2f", psid, total, meta.MaxMarks)
	}

	return models.TestResult{
		TestID:     meta.TestID,
		RawTestID:  meta.RawTestID,
		TestType:   meta.TestType,
		Date:       meta.Date,
		MaxMarks:   meta.MaxMarks,
		Total:      total,
		Subjects:   subjects,
		CenterRank: rec.CenterRank,
		AIRRank:    rec.AIRRank,
		Percentile: rec.Percentile,
		IngestedAt: ingestedAt,
	}, nil
}

// MapChapters attributes each subject's marks to the chapters the syllabus
// lists for the test. Lacking per-question tags, marks and maximums are
// split equally across the covered chapters. Subjects without syllabus
// coverage contribute no chapter entries. It returns the number of subjects
// left unmapped.
func MapChapters(result *models.TestResult, syllabus *Syllabus) int {
	result.Chapters = nil
	unmapped := 0
	for _, subject := range models.Subjects {
		marks, ok := result.Subjects[subject]
		if !ok {
			continue
		}
		var chapters []string
		if syllabus != nil {
			chapters = syllabus.Chapters(result.TestID, result.TestType, subject)
		}
		if len(chapters) == 0 {
			unmapped++
			continue
		}
		n := float64(len(chapters))
		for _, chapter := range chapters {
			result.Chapters = append(result.Chapters, models.ChapterMarks{
				Subject:  subject,
				Chapter:  chapter,
				Marks:    marks.Score / n,
				MaxMarks: marks.MaxMarks / n,
			})
		}
	}
	return unmapped
}
