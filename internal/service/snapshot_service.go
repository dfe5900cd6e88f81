package service

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
)

// PublishedState is one fully recomputed, immutable analytics state. It is
// replaced wholesale on publish and never mutated after the swap.
type PublishedState struct {
	Version      int64
	PublishedAt  time.Time
	Students     map[string]models.StudentViews
	Leaderboards map[models.RankingMethod]models.LeaderboardSnapshot
}

func emptyState() *PublishedState {
	return &PublishedState{
		Students:     map[string]models.StudentViews{},
		Leaderboards: map[models.RankingMethod]models.LeaderboardSnapshot{},
	}
}

// SnapshotService serves reads from the last published state. Readers load
// the state pointer once and never block on a publish in progress.
type SnapshotService struct {
	state   atomic.Pointer[PublishedState]
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
}

// NewSnapshotService starts with an empty version-zero state.
func NewSnapshotService(cache *CacheService, metrics *MetricsService, logger *zap.Logger) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SnapshotService{cache: cache, metrics: metrics, logger: logger}
	s.state.Store(emptyState())
	return s
}

// Current returns the published state.
func (s *SnapshotService) Current() *PublishedState {
	return s.state.Load()
}

// Swap installs a new state. Callers must hold the publish lock.
func (s *SnapshotService) Swap(state *PublishedState) {
	s.state.Store(state)
	s.logger.Info("published state swapped",
		zap.Int64("version", state.Version),
		zap.Int("students", len(state.Students)),
	)
}

func (s *SnapshotService) views(psid string) (models.StudentViews, error) {
	v, ok := s.Current().Students[psid]
	if !ok {
		return models.StudentViews{}, appErrors.Clonef(appErrors.ErrSnapshotUnavailable, "no published snapshot for student %s", psid)
	}
	return v, nil
}

// Student returns the published analytics snapshot of a student.
func (s *SnapshotService) Student(psid string) (models.StudentSnapshot, error) {
	v, err := s.views(psid)
	return v.Snapshot, err
}

// Prediction returns the published prediction of a student.
func (s *SnapshotService) Prediction(psid string) (models.PredictionSnapshot, error) {
	v, err := s.views(psid)
	return v.Prediction, err
}

// Graphs returns the published trend series and progress delta of a student.
func (s *SnapshotService) Graphs(psid string) (models.StudentGraphs, error) {
	v, err := s.views(psid)
	return v.Graphs, err
}

// Leaderboard returns a ranking, optionally restricted to one batch. Batch
// views are cached per published version. The bool reports a cache hit.
func (s *SnapshotService) Leaderboard(ctx context.Context, method models.RankingMethod, batch string) (models.LeaderboardSnapshot, bool, error) {
	state := s.Current()
	key := LeaderboardKey(state.Version, method, batch)

	var cached models.LeaderboardSnapshot
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, true, nil
	}

	lb, ok := state.Leaderboards[method]
	if !ok {
		lb = models.LeaderboardSnapshot{Method: method, Version: state.Version, GeneratedAt: state.PublishedAt, Entries: []models.LeaderboardEntry{}}
	}
	lb = lb.FilterBatch(batch)

	if err := s.cache.Set(ctx, key, lb, 0); err != nil {
		s.logger.Debug("leaderboard cache set skipped", zap.String("key", key), zap.Error(err))
	}
	return lb, false, nil
}
