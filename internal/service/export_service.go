package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MangalNathYadav/aakash-lm-student/internal/dto"
	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/export"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/jobs"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes leaderboard export behaviour.
type ExportConfig struct {
	APIPrefix string
	Retention time.Duration
	Formats   []export.Format
	Workers   int
	Retries   int
}

// ExportPayload identifies one rendered leaderboard file.
type ExportPayload struct {
	Version int64
	Method  models.RankingMethod
	Format  export.Format
}

type exportKey struct {
	method models.RankingMethod
	format export.Format
}

type exportFile struct {
	path    string
	version int64
}

// ExportFile is an opened download.
type ExportFile struct {
	File        *os.File
	Name        string
	ContentType string
}

// ExportService renders published leaderboards to files in the background
// and hands out signed download links.
type ExportService struct {
	snapshots *SnapshotService
	storage   fileStorage
	signer    *storage.SignedURLSigner
	queue     *jobs.Queue[ExportPayload]
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ExportConfig

	mu    sync.RWMutex
	files map[exportKey]exportFile
}

// NewExportService constructs an ExportService with its worker queue.
func NewExportService(snapshots *SnapshotService, store fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, logger *zap.Logger, cfg ExportConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 72 * time.Hour
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []export.Format{export.FormatCSV, export.FormatPDF}
	}
	s := &ExportService{
		snapshots: snapshots,
		storage:   store,
		signer:    signer,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		files:     make(map[exportKey]exportFile),
	}
	s.queue = jobs.NewQueue("leaderboard-exports", s.handle, jobs.QueueConfig[ExportPayload]{
		Workers:    cfg.Workers,
		BufferSize: len(models.RankingMethods()) * len(cfg.Formats) * 2,
		MaxRetries: cfg.Retries,
		Logger:     logger,
		OnExhausted: func(job jobs.Job[ExportPayload], err error) {
			metrics.RecordExport(string(job.Payload.Format), false)
		},
	})
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// Published enqueues a render of every leaderboard in every configured format.
func (s *ExportService) Published(_ context.Context, state *PublishedState) {
	for _, method := range models.RankingMethods() {
		for _, format := range s.cfg.Formats {
			job := jobs.Job[ExportPayload]{
				ID:      uuid.NewString(),
				Type:    "leaderboard_export",
				Payload: ExportPayload{Version: state.Version, Method: method, Format: format},
			}
			if err := s.queue.TryEnqueue(job); err != nil {
				s.logger.Warn("export job not queued", zap.String("method", string(method)), zap.String("format", string(format)), zap.Error(err))
			}
		}
	}
}

func (s *ExportService) handle(_ context.Context, job jobs.Job[ExportPayload]) error {
	p := job.Payload
	if current := s.snapshots.Current().Version; current != p.Version {
		s.logger.Debug("skipping superseded export", zap.Int64("version", p.Version), zap.Int64("current", current))
		return nil
	}
	if _, err := s.render(p); err != nil {
		return err
	}
	s.metrics.RecordExport(string(p.Format), true)
	return nil
}

// render writes the file for the payload unless the same version already exists.
func (s *ExportService) render(p ExportPayload) (exportFile, error) {
	key := exportKey{method: p.Method, format: p.Format}
	s.mu.RLock()
	existing, ok := s.files[key]
	s.mu.RUnlock()
	if ok && existing.version == p.Version {
		return existing, nil
	}

	state := s.snapshots.Current()
	lb, ok := state.Leaderboards[p.Method]
	if !ok {
		lb = models.LeaderboardSnapshot{Method: p.Method, Version: state.Version, GeneratedAt: state.PublishedAt}
	}
	renderer, err := export.RendererFor(p.Format)
	if err != nil {
		return exportFile{}, err
	}
	payload, err := renderer.Render(leaderboardTable(lb))
	if err != nil {
		return exportFile{}, fmt.Errorf("render %s leaderboard as %s: %w", p.Method, p.Format, err)
	}
	name := fmt.Sprintf("leaderboard_%s_v%d.%s", p.Method, lb.Version, p.Format)
	relPath, err := s.storage.Save(name, payload)
	if err != nil {
		return exportFile{}, err
	}

	file := exportFile{path: relPath, version: lb.Version}
	s.mu.Lock()
	if cur, ok := s.files[key]; !ok || cur.version <= file.version {
		s.files[key] = file
	}
	s.mu.Unlock()
	s.logger.Info("leaderboard exported", zap.String("method", string(p.Method)), zap.String("format", string(p.Format)), zap.String("path", relPath))
	return file, nil
}

func leaderboardTable(lb models.LeaderboardSnapshot) export.Table {
	t := export.Table{
		Title:    fmt.Sprintf("Leaderboard: %s", lb.Method),
		Subtitle: fmt.Sprintf("Version %d, generated %s", lb.Version, lb.GeneratedAt.UTC().Format(time.RFC3339)),
		Headers:  []string{"Rank", "PSID", "Name", "Batch", "Score", "Trend", "Tests"},
		Rows:     make([][]string, 0, len(lb.Entries)),
	}
	for _, e := range lb.Entries {
		t.Rows = append(t.Rows, []string{
			fmt.Sprintf("%d", e.Rank),
			e.PSID,
			e.Name,
			e.Batch,
			fmt.Sprintf("%.2f", e.Score),
			string(e.Trend),
			fmt.Sprintf("%d", e.TestsTaken),
		})
	}
	return t
}

// Link returns a signed download link for the current version of a
// leaderboard, rendering it on demand when the background job has not run yet.
func (s *ExportService) Link(method models.RankingMethod, format export.Format) (dto.ExportLink, error) {
	version := s.snapshots.Current().Version
	file, err := s.render(ExportPayload{Version: version, Method: method, Format: format})
	if err != nil {
		return dto.ExportLink{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prepare export")
	}
	token, expiresAt, err := s.signer.Generate(string(method), file.path)
	if err != nil {
		return dto.ExportLink{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return dto.ExportLink{
		Method:    method,
		Format:    string(format),
		URL:       fmt.Sprintf("%s/exports/download?token=%s", prefix, token),
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		Version:   file.version,
	}, nil
}

// Open validates a download token and opens the referenced file.
func (s *ExportService) Open(token string) (*ExportFile, error) {
	parsed, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	f, err := s.storage.Open(parsed.Path)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	format, err := export.ParseFormat(strings.TrimPrefix(filepath.Ext(parsed.Path), "."))
	if err != nil {
		_ = f.Close()
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown export file type")
	}
	return &ExportFile{File: f, Name: filepath.Base(parsed.Path), ContentType: format.ContentType()}, nil
}

// Cleanup removes export files past retention and forgets them.
func (s *ExportService) Cleanup() ([]string, error) {
	removed, err := s.storage.CleanupOlderThan(s.cfg.Retention)
	if err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return removed, nil
	}
	gone := make(map[string]struct{}, len(removed))
	for _, p := range removed {
		gone[p] = struct{}{}
	}
	s.mu.Lock()
	for k, f := range s.files {
		if _, ok := gone[f.path]; ok {
			delete(s.files, k)
		}
	}
	s.mu.Unlock()
	s.logger.Info("export cleanup", zap.Int("removed", len(removed)))
	return removed, nil
}
