package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
)

const (
	studentsCollection     = "students"
	snapshotsCollection    = "student_snapshots"
	leaderboardsCollection = "leaderboard_snapshots"
)

type snapshotDocument struct {
	PSID        string                    `bson:"_id"`
	Snapshot    models.StudentSnapshot    `bson:"snapshot"`
	Prediction  models.PredictionSnapshot `bson:"prediction"`
	Graphs      models.StudentGraphs      `bson:"graphs"`
	Version     int64                     `bson:"version"`
	PublishedAt time.Time                 `bson:"published_at"`
}

type leaderboardDocument struct {
	Method      models.RankingMethod       `bson:"_id"`
	Snapshot    models.LeaderboardSnapshot `bson:"snapshot"`
	Version     int64                      `bson:"version"`
	GeneratedAt time.Time                  `bson:"generated_at"`
}

// StudentMongoRepository is the MongoDB-backed student store. Publishes use
// a multi-document transaction, so the deployment must be a replica set.
type StudentMongoRepository struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
}

// NewStudentMongoRepository constructs the document store.
func NewStudentMongoRepository(client *mongo.Client, db *mongo.Database) *StudentMongoRepository {
	return &StudentMongoRepository{client: client, db: db, now: time.Now}
}

// EnsureIndexes creates the secondary indexes used by batch listings.
func (r *StudentMongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(studentsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "batch", Value: 1}},
		Options: options.Index().SetName("idx_students_batch"),
	})
	if err != nil {
		return fmt.Errorf("create students index: %w", err)
	}
	return nil
}

func (r *StudentMongoRepository) Get(ctx context.Context, psid string) (*models.Student, error) {
	var s models.Student
	err := r.db.Collection(studentsCollection).FindOne(ctx, bson.M{"_id": psid}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, studentNotFound(psid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find student %s: %w", psid, err)
	}
	return &s, nil
}

func (r *StudentMongoRepository) ListAll(ctx context.Context) ([]models.Student, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.db.Collection(studentsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]models.Student, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode students: %w", err)
	}
	return out, nil
}

func (r *StudentMongoRepository) Put(ctx context.Context, student *models.Student) error {
	now := r.now().UTC()
	if err := r.put(ctx, student, now); err != nil {
		return err
	}
	student.Version++
	student.UpdatedAt = now
	return nil
}

// put never mutates the student; WithTransaction may run it more than once.
func (r *StudentMongoRepository) put(ctx context.Context, s *models.Student, now time.Time) error {
	doc := *s
	doc.Version = s.Version + 1
	doc.UpdatedAt = now
	coll := r.db.Collection(studentsCollection)

	if s.Version == 0 {
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return publishConflict(s.PSID, s.Version)
			}
			return fmt.Errorf("failed to insert student %s: %w", s.PSID, err)
		}
		return nil
	}

	res, err := coll.ReplaceOne(ctx, bson.M{"_id": s.PSID, "version": s.Version}, doc)
	if err != nil {
		return fmt.Errorf("failed to replace student %s: %w", s.PSID, err)
	}
	if res.MatchedCount == 0 {
		return publishConflict(s.PSID, s.Version)
	}
	return nil
}

func (r *StudentMongoRepository) Publish(ctx context.Context, batch PublishBatch) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("start publish session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, r.publishTx(sc, batch)
	})
	if err != nil {
		return err
	}
	markPublished(batch)
	return nil
}

func (r *StudentMongoRepository) publishTx(ctx context.Context, batch PublishBatch) error {
	for _, s := range batch.Students {
		if err := r.put(ctx, s, batch.PublishedAt); err != nil {
			return err
		}
	}

	upsert := options.Replace().SetUpsert(true)
	snapshots := r.db.Collection(snapshotsCollection)
	for _, v := range batch.Views {
		doc := snapshotDocument{
			PSID:        v.Snapshot.PSID,
			Snapshot:    v.Snapshot,
			Prediction:  v.Prediction,
			Graphs:      v.Graphs,
			Version:     batch.Version,
			PublishedAt: batch.PublishedAt,
		}
		if _, err := snapshots.ReplaceOne(ctx, bson.M{"_id": doc.PSID}, doc, upsert); err != nil {
			return fmt.Errorf("failed to write snapshot %s: %w", doc.PSID, err)
		}
	}

	leaderboards := r.db.Collection(leaderboardsCollection)
	for _, lb := range batch.Leaderboards {
		doc := leaderboardDocument{Method: lb.Method, Snapshot: lb, Version: batch.Version, GeneratedAt: lb.GeneratedAt}
		if _, err := leaderboards.ReplaceOne(ctx, bson.M{"_id": doc.Method}, doc, upsert); err != nil {
			return fmt.Errorf("failed to write leaderboard %s: %w", lb.Method, err)
		}
	}
	return nil
}

// Leaderboard reads the last persisted snapshot for a ranking method.
func (r *StudentMongoRepository) Leaderboard(ctx context.Context, method models.RankingMethod) (*models.LeaderboardSnapshot, error) {
	var doc leaderboardDocument
	err := r.db.Collection(leaderboardsCollection).FindOne(ctx, bson.M{"_id": method}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find leaderboard %s: %w", method, err)
	}
	return &doc.Snapshot, nil
}
