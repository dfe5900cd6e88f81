package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
)

const ingestionRunKeyPrefix = "ingestion:run:"

// IngestionRunRepository keeps run reports for status polling. Reports expire
// after the TTL. Without Redis the reports live in process memory.
type IngestionRunRepository struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.RWMutex
	local map[string]models.IngestionRun
}

// NewIngestionRunRepository constructs the run tracker.
func NewIngestionRunRepository(client *redis.Client, ttl time.Duration) *IngestionRunRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IngestionRunRepository{client: client, ttl: ttl, local: make(map[string]models.IngestionRun)}
}

// Save stores or overwrites a run report.
func (r *IngestionRunRepository) Save(ctx context.Context, run models.IngestionRun) error {
	if r.client == nil {
		r.mu.Lock()
		r.local[run.RunID] = run
		r.mu.Unlock()
		return nil
	}

	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal ingestion run %s: %w", run.RunID, err)
	}
	if err := r.client.Set(ctx, ingestionRunKeyPrefix+run.RunID, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set ingestion run %s: %w", run.RunID, err)
	}
	return nil
}

// Get loads a run report by id.
func (r *IngestionRunRepository) Get(ctx context.Context, runID string) (*models.IngestionRun, error) {
	if r.client == nil {
		r.mu.RLock()
		run, ok := r.local[runID]
		r.mu.RUnlock()
		if !ok {
			return nil, appErrors.Clonef(appErrors.ErrNotFound, "ingestion run %s not found", runID)
		}
		return &run, nil
	}

	raw, err := r.client.Get(ctx, ingestionRunKeyPrefix+runID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.Clonef(appErrors.ErrNotFound, "ingestion run %s not found", runID)
		}
		return nil, fmt.Errorf("redis get ingestion run %s: %w", runID, err)
	}
	var run models.IngestionRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("unmarshal ingestion run %s: %w", runID, err)
	}
	return &run, nil
}
