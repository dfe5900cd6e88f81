package repository

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
)

func newMockStudentRepo(t *testing.T) (*StudentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	repo := NewStudentRepository(sqlx.NewDb(db, "sqlmock"))
	repo.now = func() time.Time { return time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC) }
	return repo, mock, func() { db.Close() }
}

func TestStudentRepositoryGet(t *testing.T) {
	repo, mock, cleanup := newMockStudentRepo(t)
	defer cleanup()

	doc, err := json.Marshal(models.Student{PSID: "P1", Name: "Asha", Batch: "B1"})
	require.NoError(t, err)
	rows := sqlmock.NewRows([]string{"psid", "document", "version"}).AddRow("P1", doc, int64(3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT psid, document, version FROM students WHERE psid = $1")).
		WithArgs("P1").
		WillReturnRows(rows)

	student, err := repo.Get(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", student.Name)
	assert.Equal(t, int64(3), student.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryGetNotFound(t *testing.T) {
	repo, mock, cleanup := newMockStudentRepo(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT psid, document, version FROM students")).
		WithArgs("P404").
		WillReturnRows(sqlmock.NewRows([]string{"psid", "document", "version"}))

	_, err := repo.Get(context.Background(), "P404")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryPutInsertsNewStudent(t *testing.T) {
	repo, mock, cleanup := newMockStudentRepo(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO students")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := models.NewStudent("P1", "Asha", "B1")
	require.NoError(t, repo.Put(context.Background(), &s))
	assert.Equal(t, int64(1), s.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryPublishCommits(t *testing.T) {
	repo, mock, cleanup := newMockStudentRepo(t)
	defer cleanup()

	publishedAt := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	existing := &models.Student{PSID: "P1", Name: "Asha", Batch: "B1", Version: 2}
	fresh := &models.Student{PSID: "P2", Name: "Ravi", Batch: "B1"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO students")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_snapshots")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO leaderboard_snapshots")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Publish(context.Background(), PublishBatch{
		Version:      7,
		PublishedAt:  publishedAt,
		Students:     []*models.Student{existing, fresh},
		Views:        []models.StudentViews{{Snapshot: models.StudentSnapshot{PSID: "P1"}}},
		Leaderboards: []models.LeaderboardSnapshot{{Method: models.RankLatestScores, GeneratedAt: publishedAt, Version: 7}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), existing.Version)
	assert.Equal(t, int64(1), fresh.Version)
	assert.Equal(t, publishedAt, existing.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryPublishConflictRollsBack(t *testing.T) {
	repo, mock, cleanup := newMockStudentRepo(t)
	defer cleanup()

	stale := &models.Student{PSID: "P1", Name: "Asha", Batch: "B1", Version: 2}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Publish(context.Background(), PublishBatch{
		Version:     8,
		PublishedAt: time.Now().UTC(),
		Students:    []*models.Student{stale},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPublishConflict))
	assert.Equal(t, int64(2), stale.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryLeaderboardMissing(t *testing.T) {
	repo, mock, cleanup := newMockStudentRepo(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM leaderboard_snapshots")).
		WithArgs("latest_scores").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	lb, err := repo.Leaderboard(context.Background(), models.RankLatestScores)
	require.NoError(t, err)
	assert.Nil(t, lb)
	assert.NoError(t, mock.ExpectationsWereMet())
}
