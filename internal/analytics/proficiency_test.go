package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
)

func chapterResult(id string, tt models.TestType, day int, marks, max float64) models.TestResult {
	return models.TestResult{
		TestID:   id,
		TestType: tt,
		Date:     testDay(day),
		MaxMarks: 720,
		Chapters: []models.ChapterMarks{{Subject: models.SubjectPhysics, Chapter: "Optics", Marks: marks, MaxMarks: max}},
	}
}

func TestChapterStatusThresholds(t *testing.T) {
	assert.Equal(t, models.ChapterMastered, ChapterStatusFor(10))
	assert.Equal(t, models.ChapterMastered, ChapterStatusFor(8.0))
	assert.Equal(t, models.ChapterNeedsPractice, ChapterStatusFor(7.9))
	assert.Equal(t, models.ChapterNeedsPractice, ChapterStatusFor(5.0))
	assert.Equal(t, models.ChapterCritical, ChapterStatusFor(4.9))
	assert.Equal(t, models.ChapterCritical, ChapterStatusFor(0))
}

func TestCPIWeightsHarderTests(t *testing.T) {
	e := NewEngine(Config{})
	stats := e.ChapterStats([]models.TestResult{
		chapterResult("FT1", models.TestTypeFT, 0, 60, 60),
		chapterResult("AIATS1", models.TestTypeAIATS, 1, 30, 60),
	})

	require.Len(t, stats[models.SubjectPhysics], 1)
	st := stats[models.SubjectPhysics][0]
	// 10 × (1.0×1.0 + 0.5×1.3) / 2.3
	assert.Equal(t, 7.2, st.CPI)
	assert.Equal(t, models.ChapterNeedsPractice, st.Status)
	assert.Equal(t, 2, st.DataPoints)
	assert.Equal(t, 75.0, st.Percentage)
}

func TestCPIClampsNegativeMarking(t *testing.T) {
	e := NewEngine(Config{})
	stats := e.ChapterStats([]models.TestResult{chapterResult("FT1", models.TestTypeFT, 0, -12, 60)})

	st := stats[models.SubjectPhysics][0]
	assert.Equal(t, 0.0, st.CPI)
	assert.Equal(t, 0.0, st.Percentage)
	assert.Equal(t, models.ChapterCritical, st.Status)
}

func TestCPIBoundsAndBucketsHoldEverywhere(t *testing.T) {
	e := NewEngine(Config{})
	var tests []models.TestResult
	for i := 0; i < 40; i++ {
		marks := float64((i*37)%91) - 15
		tt := models.TestTypes[i%len(models.TestTypes)]
		r := chapterResult("T", tt, i, marks, 60)
		r.Chapters = append(r.Chapters, models.ChapterMarks{Subject: models.SubjectZoology, Chapter: "Ecology", Marks: marks / 2, MaxMarks: 45})
		tests = append(tests, r)

		for _, stats := range e.ChapterStats(tests) {
			for _, st := range stats {
				assert.GreaterOrEqual(t, st.CPI, 0.0)
				assert.LessOrEqual(t, st.CPI, 10.0)
				assert.Equal(t, ChapterStatusFor(st.CPI), st.Status)
			}
		}
	}
}

func TestChaptersWithoutDataAreOmitted(t *testing.T) {
	e := NewEngine(Config{})
	stats := e.ChapterStats([]models.TestResult{chapterResult("FT1", models.TestTypeFT, 0, 30, 60)})

	assert.Len(t, stats, 1)
	_, ok := stats[models.SubjectChemistry]
	assert.False(t, ok)
}

func TestChapterStatsSortedByCPI(t *testing.T) {
	e := NewEngine(Config{})
	r := models.TestResult{TestType: models.TestTypeFT, Chapters: []models.ChapterMarks{
		{Subject: models.SubjectBotany, Chapter: "Genetics", Marks: 50, MaxMarks: 60},
		{Subject: models.SubjectBotany, Chapter: "Ecology", Marks: 10, MaxMarks: 60},
		{Subject: models.SubjectBotany, Chapter: "Anatomy", Marks: 10, MaxMarks: 60},
	}}
	stats := e.ChapterStats([]models.TestResult{r})[models.SubjectBotany]

	require.Len(t, stats, 3)
	assert.Equal(t, []string{"Anatomy", "Ecology", "Genetics"}, []string{stats[0].Name, stats[1].Name, stats[2].Name})
}

func TestFocusInsights(t *testing.T) {
	e := NewEngine(Config{})
	tests := []models.TestResult{
		chapterResult("FT1", models.TestTypeFT, 0, 12, 60),
		chapterResult("FT2", models.TestTypeFT, 1, 54, 60),
	}
	tests[0].Chapters = append(tests[0].Chapters, models.ChapterMarks{Subject: models.SubjectChemistry, Chapter: "Bonding", Marks: 6, MaxMarks: 60})
	tests[1].Chapters = append(tests[1].Chapters, models.ChapterMarks{Subject: models.SubjectChemistry, Chapter: "Bonding", Marks: 0, MaxMarks: 60})

	insights := e.FocusInsights(tests)

	require.Len(t, insights.TopWeakChapters, 2)
	assert.Equal(t, "Bonding", insights.TopWeakChapters[0].Chapter)
	assert.Equal(t, 0.5, insights.TopWeakChapters[0].CPI)

	require.Len(t, insights.MostImprovedChapters, 1)
	improved := insights.MostImprovedChapters[0]
	assert.Equal(t, "Optics", improved.Chapter)
	// before: 2.0, after: 10 × (0.2 + 0.9) / 2 = 5.5
	assert.Equal(t, 3.5, improved.Delta)
}

func TestFocusInsightsCapsAtFive(t *testing.T) {
	e := NewEngine(Config{})
	r := models.TestResult{TestType: models.TestTypeFT}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		r.Chapters = append(r.Chapters, models.ChapterMarks{Subject: models.SubjectZoology, Chapter: name, Marks: 1, MaxMarks: 10})
	}
	insights := e.FocusInsights([]models.TestResult{r})

	assert.Len(t, insights.TopWeakChapters, 5)
	assert.Empty(t, insights.MostImprovedChapters)
	assert.NotNil(t, insights.MostImprovedChapters)
}
