package repository

import (
	"time"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
)

// PublishBatch is everything a single publish writes. Each student's Version
// must equal the stored version it was loaded with (zero for new students);
// on success the store bumps it in place.
type PublishBatch struct {
	Version      int64
	PublishedAt  time.Time
	Students     []*models.Student
	Views        []models.StudentViews
	Leaderboards []models.LeaderboardSnapshot
}

func publishConflict(psid string, expected int64) error {
	return appErrors.Clonef(appErrors.ErrPublishConflict, "student %s changed since version %d was read", psid, expected)
}

func studentNotFound(psid string) error {
	return appErrors.Clonef(appErrors.ErrNotFound, "student %s not found", psid)
}

func markPublished(batch PublishBatch) {
	for _, s := range batch.Students {
		s.Version++
		s.UpdatedAt = batch.PublishedAt
	}
}
