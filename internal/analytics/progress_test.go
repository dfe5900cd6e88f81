package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
)

func TestProgressAgainstLastThree(t *testing.T) {
	p := Progress(history(500, 600, 620, 640, 700))

	assert.Equal(t, "last_3_average", p.ComparisonType)
	assert.Equal(t, 620.0, p.RecentAverage)
	assert.Equal(t, 80.0, p.DeltaVsRecent)
	assert.Equal(t, 200.0, p.DeltaVsFirst)
	assert.Equal(t, []string{"FTB", "FTC", "FTD"}, p.PreviousTestIDs)
	assert.Equal(t, 20.0, p.SubjectDeltas[models.SubjectPhysics])
}

func TestProgressInsufficientData(t *testing.T) {
	p := Progress(history(500))
	assert.Equal(t, "insufficient_data", p.ComparisonType)
	assert.Equal(t, 500.0, p.LatestScore)

	p = Progress(history(500, 540))
	assert.Equal(t, "last_1_average", p.ComparisonType)
	assert.Equal(t, 40.0, p.DeltaVsRecent)
}

func TestTrendSeriesGroupsByType(t *testing.T) {
	tests := []models.TestResult{
		result("FT1", models.TestTypeFT, 0, 500),
		result("AIATS1", models.TestTypeAIATS, 1, 520),
		result("FT2", models.TestTypeFT, 2, 540),
	}
	series := TrendSeries(tests)

	require.Len(t, series[SeriesAll], 3)
	require.Len(t, series["FT"], 2)
	assert.Len(t, series["AIATS"], 1)
	assert.NotNil(t, series["NBTS"])
	assert.Equal(t, 135.0, series["FT"][1].Subjects[models.SubjectChemistry])
}
