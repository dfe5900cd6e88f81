package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
)

func TestStudentMongoRepositoryGet(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		repo := NewStudentMongoRepository(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "analytics.students", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "P1"},
			{Key: "name", Value: "Asha"},
			{Key: "batch", Value: "B1"},
			{Key: "version", Value: int64(2)},
		}))

		student, err := repo.Get(context.Background(), "P1")
		require.NoError(mt, err)
		assert.Equal(mt, "P1", student.PSID)
		assert.Equal(mt, "Asha", student.Name)
		assert.Equal(mt, int64(2), student.Version)
	})

	mt.Run("missing", func(mt *mtest.T) {
		repo := NewStudentMongoRepository(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "analytics.students", mtest.FirstBatch))

		_, err := repo.Get(context.Background(), "P404")
		require.Error(mt, err)
		assert.True(mt, errors.Is(err, appErrors.ErrNotFound))
	})
}

func TestStudentMongoRepositoryPut(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert new student", func(mt *mtest.T) {
		repo := NewStudentMongoRepository(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		s := models.NewStudent("P1", "Asha", "B1")
		require.NoError(mt, repo.Put(context.Background(), &s))
		assert.Equal(mt, int64(1), s.Version)
	})

	mt.Run("duplicate insert is a conflict", func(mt *mtest.T) {
		repo := NewStudentMongoRepository(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key error"}))

		s := models.NewStudent("P1", "Asha", "B1")
		err := repo.Put(context.Background(), &s)
		require.Error(mt, err)
		assert.True(mt, errors.Is(err, appErrors.ErrPublishConflict))
		assert.Equal(mt, int64(0), s.Version)
	})

	mt.Run("stale version is a conflict", func(mt *mtest.T) {
		repo := NewStudentMongoRepository(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		s := &models.Student{PSID: "P1", Name: "Asha", Batch: "B1", Version: 4}
		err := repo.Put(context.Background(), s)
		require.Error(mt, err)
		assert.True(mt, errors.Is(err, appErrors.ErrPublishConflict))
		assert.Equal(mt, int64(4), s.Version)
	})

	mt.Run("matching version replaces", func(mt *mtest.T) {
		repo := NewStudentMongoRepository(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		s := &models.Student{PSID: "P1", Name: "Asha", Batch: "B1", Version: 4}
		require.NoError(mt, repo.Put(context.Background(), s))
		assert.Equal(mt, int64(5), s.Version)
	})
}
