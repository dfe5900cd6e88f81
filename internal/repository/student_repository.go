package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	"github.com/MangalNathYadav/aakash-lm-student/migrations"
)

const (
	selectStudentQuery    = `SELECT psid, document, version FROM students WHERE psid = $1`
	selectAllStudentQuery = `SELECT psid, document, version FROM students ORDER BY psid`
	insertStudentQuery    = `INSERT INTO students (psid, name, batch, document, version, updated_at) VALUES ($1, $2, $3, $4, 1, $5) ON CONFLICT (psid) DO NOTHING`
	updateStudentQuery    = `UPDATE students SET name = $2, batch = $3, document = $4, version = version + 1, updated_at = $5 WHERE psid = $1 AND version = $6`
	upsertSnapshotQuery   = `INSERT INTO student_snapshots (psid, snapshot, prediction, graphs, version, published_at) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (psid) DO UPDATE SET snapshot = EXCLUDED.snapshot, prediction = EXCLUDED.prediction, graphs = EXCLUDED.graphs, version = EXCLUDED.version, published_at = EXCLUDED.published_at`
	upsertLeaderboardQuery = `INSERT INTO leaderboard_snapshots (method, payload, version, generated_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (method) DO UPDATE SET payload = EXCLUDED.payload, version = EXCLUDED.version, generated_at = EXCLUDED.generated_at`
	selectLeaderboardQuery = `SELECT payload FROM leaderboard_snapshots WHERE method = $1`
)

type studentRow struct {
	PSID     string `db:"psid"`
	Document []byte `db:"document"`
	Version  int64  `db:"version"`
}

func (r studentRow) decode() (models.Student, error) {
	var s models.Student
	if err := json.Unmarshal(r.Document, &s); err != nil {
		return models.Student{}, fmt.Errorf("decode student %s: %w", r.PSID, err)
	}
	s.PSID = r.PSID
	s.Version = r.Version
	return s, nil
}

// StudentRepository stores student documents as JSONB rows in PostgreSQL.
type StudentRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStudentRepository constructs the Postgres-backed store.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db, now: time.Now}
}

// EnsureSchema applies the embedded migrations in file order.
func (r *StudentRepository) EnsureSchema(ctx context.Context) error {
	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)
	for _, name := range files {
		stmt, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx, string(stmt)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// Get returns one student by PSID.
func (r *StudentRepository) Get(ctx context.Context, psid string) (*models.Student, error) {
	var row studentRow
	if err := r.db.GetContext(ctx, &row, selectStudentQuery, psid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, studentNotFound(psid)
		}
		return nil, fmt.Errorf("get student %s: %w", psid, err)
	}
	s, err := row.decode()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListAll loads every student ordered by PSID.
func (r *StudentRepository) ListAll(ctx context.Context) ([]models.Student, error) {
	var rows []studentRow
	if err := r.db.SelectContext(ctx, &rows, selectAllStudentQuery); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	out := make([]models.Student, 0, len(rows))
	for _, row := range rows {
		s, err := row.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Put writes one student outside a publish, applying the same version check.
func (r *StudentRepository) Put(ctx context.Context, student *models.Student) error {
	now := r.now().UTC()
	if err := r.put(ctx, r.db, student, now); err != nil {
		return err
	}
	student.Version++
	student.UpdatedAt = now
	return nil
}

func (r *StudentRepository) put(ctx context.Context, exec sqlx.ExecerContext, s *models.Student, now time.Time) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode student %s: %w", s.PSID, err)
	}
	var res sql.Result
	if s.Version == 0 {
		res, err = exec.ExecContext(ctx, insertStudentQuery, s.PSID, s.Name, s.Batch, doc, now)
	} else {
		res, err = exec.ExecContext(ctx, updateStudentQuery, s.PSID, s.Name, s.Batch, doc, now, s.Version)
	}
	if err != nil {
		return fmt.Errorf("write student %s: %w", s.PSID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write student %s: %w", s.PSID, err)
	}
	if affected == 0 {
		return publishConflict(s.PSID, s.Version)
	}
	return nil
}

// Publish writes students, their views and every leaderboard in one
// transaction. Any version mismatch rolls the whole batch back.
func (r *StudentRepository) Publish(ctx context.Context, batch PublishBatch) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish: %w", err)
	}
	if err := r.publishTx(ctx, tx, batch); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit publish: %w", err)
	}
	markPublished(batch)
	return nil
}

func (r *StudentRepository) publishTx(ctx context.Context, tx *sqlx.Tx, batch PublishBatch) error {
	for _, s := range batch.Students {
		if err := r.put(ctx, tx, s, batch.PublishedAt); err != nil {
			return err
		}
	}
	for _, v := range batch.Views {
		snapshot, err := json.Marshal(v.Snapshot)
		if err != nil {
			return fmt.Errorf("encode snapshot %s: %w", v.Snapshot.PSID, err)
		}
		prediction, err := json.Marshal(v.Prediction)
		if err != nil {
			return fmt.Errorf("encode prediction %s: %w", v.Snapshot.PSID, err)
		}
		graphs, err := json.Marshal(v.Graphs)
		if err != nil {
			return fmt.Errorf("encode graphs %s: %w", v.Snapshot.PSID, err)
		}
		if _, err := tx.ExecContext(ctx, upsertSnapshotQuery, v.Snapshot.PSID, snapshot, prediction, graphs, batch.Version, batch.PublishedAt); err != nil {
			return fmt.Errorf("write snapshot %s: %w", v.Snapshot.PSID, err)
		}
	}
	for _, lb := range batch.Leaderboards {
		payload, err := json.Marshal(lb)
		if err != nil {
			return fmt.Errorf("encode leaderboard %s: %w", lb.Method, err)
		}
		if _, err := tx.ExecContext(ctx, upsertLeaderboardQuery, string(lb.Method), payload, batch.Version, lb.GeneratedAt); err != nil {
			return fmt.Errorf("write leaderboard %s: %w", lb.Method, err)
		}
	}
	return nil
}

// Leaderboard reads the last persisted snapshot for a ranking method.
func (r *StudentRepository) Leaderboard(ctx context.Context, method models.RankingMethod) (*models.LeaderboardSnapshot, error) {
	var payload []byte
	if err := r.db.GetContext(ctx, &payload, selectLeaderboardQuery, string(method)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get leaderboard %s: %w", method, err)
	}
	var lb models.LeaderboardSnapshot
	if err := json.Unmarshal(payload, &lb); err != nil {
		return nil, fmt.Errorf("decode leaderboard %s: %w", method, err)
	}
	return &lb, nil
}
