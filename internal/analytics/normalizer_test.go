package analytics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
)

func validMeta() models.TestMeta {
	return models.TestMeta{TestID: "ft-08", TestType: "ft", TestDate: "2025-06-15", MaxMarks: 720}
}

func TestNormalizeTestID(t *testing.T) {
	cases := map[string]string{
		"ft-08":     "FT8",
		"FT 8":      "FT8",
		"nbtsr-03":  "NBTS3",
		"AIATS_12":  "AIATS12",
		" mock ":    "MOCK",
		"":          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeTestID(in), in)
	}
}

func TestResolveMeta(t *testing.T) {
	meta, err := ResolveMeta(validMeta())
	require.NoError(t, err)
	assert.Equal(t, "FT8", meta.TestID)
	assert.Equal(t, models.TestTypeFT, meta.TestType)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), meta.Date)
	assert.Equal(t, 180.0, meta.SubjectMax())
}

func TestResolveMetaRejectsMissingFields(t *testing.T) {
	missingMax := validMeta()
	missingMax.MaxMarks = 0
	missingID := validMeta()
	missingID.TestID = ""
	missingDate := validMeta()
	missingDate.TestDate = ""
	badDate := validMeta()
	badDate.TestDate = "someday"

	for _, meta := range []models.TestMeta{missingMax, missingID, missingDate, badDate} {
		_, err := ResolveMeta(meta)
		assert.True(t, errors.Is(err, appErrors.ErrMalformedRecord), "%+v", meta)
	}
}

func TestResolveMetaUnknownType(t *testing.T) {
	meta := validMeta()
	meta.TestType = "JEE"
	_, err := ResolveMeta(meta)
	assert.True(t, errors.Is(err, appErrors.ErrUnknownTestType))
	assert.False(t, errors.Is(err, appErrors.ErrMalformedRecord))
}

func TestParseTestDateSyllabusStyle(t *testing.T) {
	d, err := ParseTestDate("15th Jun'25")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), d)
}

func TestNormalizeRecord(t *testing.T) {
	meta, err := ResolveMeta(validMeta())
	require.NoError(t, err)
	now := time.Now()

	res, err := Normalize(meta, models.ParsedRecord{
		PSID:     " P100 ",
		Subjects: map[string]float64{"phy": 120, "CHEM": 100, "botany": 150, "zoo": 160, "attendance": 99},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "FT8", res.TestID)
	assert.Equal(t, "ft-08", res.RawTestID)
	assert.Equal(t, 530.0, res.Total)
	assert.Len(t, res.Subjects, 4)
	assert.Equal(t, models.SubjectMarks{Score: 120, MaxMarks: 180}, res.Subjects[models.SubjectPhysics])
	assert.Equal(t, now, res.IngestedAt)

	total := 500.0
	res, err = Normalize(meta, models.ParsedRecord{PSID: "P1", Subjects: map[string]float64{"physics": 100}, Total: &total}, now)
	require.NoError(t, err)
	assert.Equal(t, 500.0, res.Total)
}

func TestNormalizeRejectsBadRecords(t *testing.T) {
	meta, err := ResolveMeta(validMeta())
	require.NoError(t, err)
	over := 900.0

	records := []models.ParsedRecord{
		{Subjects: map[string]float64{"physics": 10}},
		{PSID: "P1"},
		{PSID: "P1", Subjects: map[string]float64{"history": 10}},
		{PSID: "P1", Subjects: map[string]float64{"physics": 200}},
		{PSID: "P1", Subjects: map[string]float64{"physics": 10, "phy": 12}},
		{PSID: "P1", Subjects: map[string]float64{"physics": 10}, Total: &over},
	}
	for i, rec := range records {
		_, err := Normalize(meta, rec, time.Now())
		assert.True(t, errors.Is(err, appErrors.ErrMalformedRecord), "record %d: %v", i, err)
	}
}

func TestMapChaptersDistributesEqually(t *testing.T) {
	syl := NewSyllabus()
	syl.SetType(models.TestTypeFT, models.SubjectPhysics, []string{"A", "B"})
	syl.SetTest("FT8", models.SubjectPhysics, []string{"Kinematics", "Optics", "Waves"})

	res := models.TestResult{
		TestID:   "FT8",
		TestType: models.TestTypeFT,
		Subjects: map[models.Subject]models.SubjectMarks{
			models.SubjectPhysics:   {Score: 120, MaxMarks: 180},
			models.SubjectChemistry: {Score: 90, MaxMarks: 180},
		},
	}
	unmapped := MapChapters(&res, syl)

	assert.Equal(t, 1, unmapped)
	require.Len(t, res.Chapters, 3)
	for _, ch := range res.Chapters {
		assert.Equal(t, models.SubjectPhysics, ch.Subject)
		assert.InDelta(t, 40.0, ch.Marks, 1e-9)
		assert.InDelta(t, 60.0, ch.MaxMarks, 1e-9)
	}
	assert.Equal(t, "Kinematics", res.Chapters[0].Chapter)
}

func TestLoadSyllabusFormats(t *testing.T) {
	arr := `[{"test_id":"FT-01","test_date":"1st Jun'25","subjects":{"physics":{"chapters":["Units"," Units ","Vectors"]}}}]`
	s, err := LoadSyllabus(strings.NewReader(arr))
	require.NoError(t, err)
	assert.Equal(t, []string{"Units", "Vectors"}, s.Chapters("FT1", models.TestTypeFT, models.SubjectPhysics))
	assert.Equal(t, 1, s.Tests())

	obj := `{"tests":[],"test_types":{"AIATS":{"bot":["Ecology"]}}}`
	s, err = LoadSyllabus(strings.NewReader(obj))
	require.NoError(t, err)
	assert.Equal(t, []string{"Ecology"}, s.Chapters("AIATS4", models.TestTypeAIATS, models.SubjectBotany))
	assert.Nil(t, s.Chapters("AIATS4", models.TestTypeAIATS, models.SubjectPhysics))

	_, err = LoadSyllabus(strings.NewReader(`{"test_types":{"XYZ":{}}}`))
	assert.Error(t, err)
}
