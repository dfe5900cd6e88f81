package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
)

func TestCacheRepositoryWithoutRedis(t *testing.T) {
	repo := NewCacheRepository(nil, "exam:", nil)
	ctx := context.Background()

	var dest map[string]string
	err := repo.Get(ctx, "leaderboard:latest_scores", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(ctx, "leaderboard:latest_scores", map[string]string{"a": "b"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "leaderboard:*"))
	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, repo.Close())
}

func TestIngestionRunRepositoryInMemory(t *testing.T) {
	repo := NewIngestionRunRepository(nil, time.Hour)
	ctx := context.Background()

	run := models.IngestionRun{RunID: "run-1", TestID: "FT8", Status: models.OutcomeRunning, Stage: models.StageReceived}
	require.NoError(t, repo.Save(ctx, run))

	run.Status = models.OutcomeSuccess
	run.Stage = models.StagePublished
	require.NoError(t, repo.Save(ctx, run))

	got, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, got.Status)
	assert.Equal(t, models.StagePublished, got.Stage)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
