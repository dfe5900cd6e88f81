package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MangalNathYadav/aakash-lm-student/internal/analytics"
	"github.com/MangalNathYadav/aakash-lm-student/internal/dto"
	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	"github.com/MangalNathYadav/aakash-lm-student/internal/repository"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
)

// StudentStore persists student documents and published views.
type StudentStore interface {
	ListAll(ctx context.Context) ([]models.Student, error)
	Publish(ctx context.Context, batch repository.PublishBatch) error
	Leaderboard(ctx context.Context, method models.RankingMethod) (*models.LeaderboardSnapshot, error)
}

// RunStore keeps ingestion run reports for status polling.
type RunStore interface {
	Save(ctx context.Context, run models.IngestionRun) error
	Get(ctx context.Context, runID string) (*models.IngestionRun, error)
}

// PublishListener is notified after a state has been swapped in.
type PublishListener interface {
	Published(ctx context.Context, state *PublishedState)
}

// IngestionConfig tunes the publish pipeline.
type IngestionConfig struct {
	Workers int
	Timeout time.Duration
}

// IngestionService runs result documents through normalization, chapter
// mapping and aggregation, then publishes a new state. Publishes are
// serialized; reads keep using the previous state until the swap.
type IngestionService struct {
	store     StudentStore
	runs      RunStore
	snapshots *SnapshotService
	cache     *CacheService
	engine    *analytics.Engine
	syllabus  *analytics.Syllabus
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       IngestionConfig
	listeners []PublishListener

	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

// NewIngestionService constructs the orchestrator.
func NewIngestionService(
	store StudentStore,
	runs RunStore,
	snapshots *SnapshotService,
	cache *CacheService,
	engine *analytics.Engine,
	syllabus *analytics.Syllabus,
	validate *validator.Validate,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg IngestionConfig,
) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if engine == nil {
		engine = analytics.NewEngine(analytics.DefaultConfig())
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &IngestionService{
		store:     store,
		runs:      runs,
		snapshots: snapshots,
		cache:     cache,
		engine:    engine,
		syllabus:  syllabus,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// AddListener registers a callback run after every successful publish.
func (s *IngestionService) AddListener(l PublishListener) {
	s.listeners = append(s.listeners, l)
}

type runTracker struct {
	svc *IngestionService
	run *models.IngestionRun
	log *zap.Logger
}

func (t *runTracker) step(ctx context.Context, stage models.IngestionStage, format string, args ...interface{}) {
	t.run.Stage = stage
	t.note(ctx, format, args...)
}

func (t *runTracker) note(ctx context.Context, format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	t.run.Logs = append(t.run.Logs, fmt.Sprintf("[%s] %s", t.run.Stage, line))
	t.log.Info(line, zap.String("stage", string(t.run.Stage)))
	t.save(ctx)
}

func (t *runTracker) save(ctx context.Context) {
	if t.svc.runs == nil {
		return
	}
	if err := t.svc.runs.Save(ctx, *t.run); err != nil {
		t.log.Warn("failed to record ingestion run", zap.Error(err))
	}
}

// fail aborts the run at the stage that could not complete.
func (t *runTracker) fail(ctx context.Context, stage models.IngestionStage, err error) error {
	finished := t.svc.now().UTC()
	t.run.Status = models.OutcomeFailed
	t.run.FailedStage = stage
	t.run.Stage = models.StageFailed
	t.run.Reason = err.Error()
	t.run.FinishedAt = &finished
	t.run.Logs = append(t.run.Logs, fmt.Sprintf("[%s] aborted at %s: %s", models.StageFailed, stage, err.Error()))
	t.log.Warn("ingestion failed", zap.String("failed_stage", string(stage)), zap.Error(err))
	t.save(ctx)
	t.svc.metrics.RecordIngestion(*t.run)
	return err
}

type normalizedRecord struct {
	record models.ParsedRecord
	result models.TestResult
}

// Ingest processes one result document. The returned run is populated even
// when an error is returned.
func (s *IngestionService) Ingest(ctx context.Context, req dto.IngestionRequest) (*models.IngestionRun, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	started := s.now().UTC()
	run := &models.IngestionRun{
		RunID:           s.newID(),
		Source:          req.Source,
		TestID:          analytics.NormalizeTestID(req.TestID),
		Status:          models.OutcomeRunning,
		Stage:           models.StageReceived,
		Logs:            []string{},
		RecordsReceived: len(req.Records),
		RecordsSkipped:  len(req.Skipped),
		StartedAt:       started,
	}
	t := &runTracker{svc: s, run: run, log: s.logger.With(zap.String("run_id", run.RunID), zap.String("test_id", run.TestID))}
	if len(req.Skipped) > 0 {
		t.step(ctx, models.StageReceived, "received %d records, skipped %d rows", len(req.Records), len(req.Skipped))
		for _, row := range req.Skipped {
			t.note(ctx, "skipped %s", row)
		}
	} else {
		t.step(ctx, models.StageReceived, "received %d records", len(req.Records))
	}

	if err := s.validator.Struct(req); err != nil {
		return run, t.fail(ctx, models.StageNormalized, appErrors.Wrap(err, appErrors.ErrMalformedRecord.Code, appErrors.ErrMalformedRecord.Status, "invalid ingestion payload"))
	}
	meta, err := analytics.ResolveMeta(req.Meta())
	if err != nil {
		return run, t.fail(ctx, models.StageNormalized, err)
	}
	run.TestID = meta.TestID

	normalized, err := s.normalize(meta, req.Records, started)
	if err != nil {
		return run, t.fail(ctx, models.StageNormalized, err)
	}
	t.step(ctx, models.StageNormalized, "normalized %d records for %s (%s, %s)", len(normalized), meta.TestID, meta.TestType, meta.Date.Format("2006-01-02"))

	unmapped := 0
	for i := range normalized {
		unmapped += analytics.MapChapters(&normalized[i].result, s.syllabus)
	}
	if unmapped > 0 {
		t.step(ctx, models.StageMapped, "mapped chapters; %d subject results had no syllabus coverage", unmapped)
	} else {
		t.step(ctx, models.StageMapped, "mapped chapters for every subject")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	publishStart := time.Now()

	loadStart := time.Now()
	students, err := s.store.ListAll(ctx)
	s.metrics.ObserveDBQuery("students.list_all", time.Since(loadStart))
	if err != nil {
		return run, t.fail(ctx, models.StageAggregated, fmt.Errorf("load students: %w", err))
	}

	index := make(map[string]int, len(students))
	for i := range students {
		index[students[i].PSID] = i
	}
	changed := make([]*models.Student, 0, len(normalized))
	for _, n := range normalized {
		psid := strings.TrimSpace(n.record.PSID)
		i, ok := index[psid]
		if !ok {
			students = append(students, models.NewStudent(psid, n.record.Name, n.record.Batch))
			i = len(students) - 1
			index[psid] = i
			run.StudentsCreated++
		} else {
			students[i] = students[i].Clone()
		}
		applyProfile(&students[i], n.record)
		if students[i].UpsertTest(n.result) {
			run.TestsReplaced++
		}
	}
	// Pointers are taken after every append so they stay valid.
	for _, n := range normalized {
		changed = append(changed, &students[index[strings.TrimSpace(n.record.PSID)]])
	}
	run.StudentsAffected = len(changed)

	version := s.nextVersion(ctx)
	publishedAt := s.now().UTC()
	state, err := s.recompute(ctx, students, publishedAt, version)
	if err != nil {
		return run, t.fail(ctx, models.StageAggregated, err)
	}
	t.step(ctx, models.StageAggregated, "recomputed %d student snapshots and %d leaderboards", len(state.Students), len(state.Leaderboards))

	batch := repository.PublishBatch{
		Version:      version,
		PublishedAt:  publishedAt,
		Students:     changed,
		Views:        make([]models.StudentViews, 0, len(changed)),
		Leaderboards: sortedLeaderboards(state),
	}
	for _, st := range changed {
		batch.Views = append(batch.Views, state.Students[st.PSID])
	}
	storeStart := time.Now()
	err = s.store.Publish(ctx, batch)
	s.metrics.ObserveDBQuery("students.publish", time.Since(storeStart))
	if err != nil {
		return run, t.fail(ctx, models.StagePublished, err)
	}

	s.install(ctx, state, time.Since(publishStart))
	finished := s.now().UTC()
	run.Status = models.OutcomeSuccess
	run.PublishedVersion = version
	run.FinishedAt = &finished
	t.step(ctx, models.StagePublished, "published version %d (%d affected, %d created, %d replaced)", version, run.StudentsAffected, run.StudentsCreated, run.TestsReplaced)
	s.metrics.RecordIngestion(*run)
	return run, nil
}

func (s *IngestionService) normalize(meta analytics.ResolvedMeta, records []models.ParsedRecord, ingestedAt time.Time) ([]normalizedRecord, error) {
	out := make([]normalizedRecord, 0, len(records))
	seen := make(map[string]int, len(records))
	for i, rec := range records {
		result, err := analytics.Normalize(meta, rec, ingestedAt)
		if err != nil {
			var appErr *appErrors.Error
			if errors.As(err, &appErr) {
				return nil, appErrors.Clonef(appErr, "record %d: %s", i+1, appErr.Message)
			}
			return nil, err
		}
		psid := strings.TrimSpace(rec.PSID)
		if first, dup := seen[psid]; dup {
			return nil, appErrors.Clonef(appErrors.ErrMalformedRecord, "record %d: psid %s already appears in record %d", i+1, psid, first)
		}
		seen[psid] = i + 1
		out = append(out, normalizedRecord{record: rec, result: result})
	}
	return out, nil
}

func applyProfile(s *models.Student, rec models.ParsedRecord) {
	if name := strings.TrimSpace(rec.Name); name != "" {
		s.Name = name
	}
	if batch := strings.TrimSpace(rec.Batch); batch != "" {
		s.Batch = batch
	}
	if rec.Phone != "" {
		s.Profile.Phone = rec.Phone
	}
	if rec.Email != "" {
		s.Profile.Email = rec.Email
	}
	if rec.Center != "" {
		s.Profile.Center = rec.Center
	}
}

// recompute derives every student view on a bounded worker pool and ranks
// the results. It has no side effects.
func (s *IngestionService) recompute(ctx context.Context, students []models.Student, publishedAt time.Time, version int64) (*PublishedState, error) {
	views := make([]models.StudentViews, len(students))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range students {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			views[i] = s.engine.Analyze(students[i], publishedAt, version)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("recompute snapshots: %w", err)
	}

	state := &PublishedState{
		Version:      version,
		PublishedAt:  publishedAt,
		Students:     make(map[string]models.StudentViews, len(views)),
		Leaderboards: make(map[models.RankingMethod]models.LeaderboardSnapshot),
	}
	snapshots := make([]models.StudentSnapshot, len(views))
	for i, v := range views {
		state.Students[v.Snapshot.PSID] = v
		snapshots[i] = v.Snapshot
	}
	for _, lb := range s.engine.Leaderboards(snapshots, publishedAt, version) {
		state.Leaderboards[lb.Method] = lb
	}
	return state, nil
}

func sortedLeaderboards(state *PublishedState) []models.LeaderboardSnapshot {
	out := make([]models.LeaderboardSnapshot, 0, len(state.Leaderboards))
	for _, lb := range state.Leaderboards {
		out = append(out, lb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}

// install swaps the state in and runs post-publish hooks. Hook failures are
// logged; the publish itself has already succeeded.
func (s *IngestionService) install(ctx context.Context, state *PublishedState, elapsed time.Duration) {
	s.snapshots.Swap(state)
	s.metrics.ObservePublish(state.Version, elapsed, sortedLeaderboards(state))
	if err := s.cache.InvalidateLeaderboards(ctx); err != nil {
		s.logger.Warn("leaderboard cache invalidation failed", zap.Error(err))
	}
	for _, l := range s.listeners {
		l.Published(ctx, state)
	}
}

// Rebuild recomputes every view from the store and publishes the result.
// Student documents are not rewritten.
func (s *IngestionService) Rebuild(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	students, err := s.store.ListAll(ctx)
	s.metrics.ObserveDBQuery("students.list_all", time.Since(start))
	if err != nil {
		return 0, fmt.Errorf("load students: %w", err)
	}

	version := s.nextVersion(ctx)
	state, err := s.recompute(ctx, students, s.now().UTC(), version)
	if err != nil {
		return 0, err
	}
	batch := repository.PublishBatch{
		Version:      version,
		PublishedAt:  state.PublishedAt,
		Views:        make([]models.StudentViews, 0, len(students)),
		Leaderboards: sortedLeaderboards(state),
	}
	for _, st := range students {
		batch.Views = append(batch.Views, state.Students[st.PSID])
	}
	storeStart := time.Now()
	err = s.store.Publish(ctx, batch)
	s.metrics.ObserveDBQuery("students.publish", time.Since(storeStart))
	if err != nil {
		return 0, err
	}

	s.install(ctx, state, time.Since(start))
	s.logger.Info("published state rebuilt", zap.Int64("version", version), zap.Int("students", len(students)))
	return version, nil
}

// Sync installs the store's state when another process, such as the ingest
// command, has published a newer version. Nothing is written back and the
// persisted version is kept. It reports whether a newer state was installed.
func (s *IngestionService) Sync(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	latest, err := s.store.Leaderboard(ctx, models.RankLatestScores)
	if err != nil {
		return false, fmt.Errorf("read persisted version: %w", err)
	}
	current := s.snapshots.Current().Version
	if latest == nil || latest.Version <= current {
		return false, nil
	}

	start := time.Now()
	students, err := s.store.ListAll(ctx)
	s.metrics.ObserveDBQuery("students.list_all", time.Since(start))
	if err != nil {
		return false, fmt.Errorf("load students: %w", err)
	}
	state, err := s.recompute(ctx, students, latest.GeneratedAt, latest.Version)
	if err != nil {
		return false, err
	}
	s.install(ctx, state, time.Since(start))
	s.logger.Info("published state synced from store", zap.Int64("from_version", current), zap.Int64("version", latest.Version))
	return true, nil
}

// nextVersion is one past the newest version seen in memory or in the store,
// so publishes from another process never move the version backwards.
func (s *IngestionService) nextVersion(ctx context.Context) int64 {
	version := s.snapshots.Current().Version
	if persisted := s.persistedVersion(ctx); persisted > version {
		version = persisted
	}
	return version + 1
}

// persistedVersion returns the newest leaderboard version in the store so a
// restarted process keeps versions increasing.
func (s *IngestionService) persistedVersion(ctx context.Context) int64 {
	lb, err := s.store.Leaderboard(ctx, models.RankLatestScores)
	if err != nil {
		s.logger.Warn("failed to read persisted leaderboard version", zap.Error(err))
		return 0
	}
	if lb == nil {
		return 0
	}
	return lb.Version
}

// RunStatus returns the last recorded state of an ingestion run.
func (s *IngestionService) RunStatus(ctx context.Context, runID string) (*models.IngestionRun, error) {
	if s.runs == nil {
		return nil, appErrors.Clonef(appErrors.ErrNotFound, "ingestion run %s not found", runID)
	}
	return s.runs.Get(ctx, runID)
}
