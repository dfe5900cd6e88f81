package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MangalNathYadav/aakash-lm-student/internal/dto"
	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	"github.com/MangalNathYadav/aakash-lm-student/internal/repository"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
)

type memStore struct {
	mu           sync.Mutex
	students     map[string]models.Student
	views        map[string]models.StudentViews
	leaderboards map[models.RankingMethod]models.LeaderboardSnapshot
	publishErr   error
	publishes    int
}

func newMemStore(seed ...models.Student) *memStore {
	s := &memStore{
		students:     map[string]models.Student{},
		views:        map[string]models.StudentViews{},
		leaderboards: map[models.RankingMethod]models.LeaderboardSnapshot{},
	}
	for _, st := range seed {
		if st.Version == 0 {
			st.Version = 1
		}
		s.students[st.PSID] = st.Clone()
	}
	return s
}

func (s *memStore) Get(_ context.Context, psid string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[psid]
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	out := st.Clone()
	return &out, nil
}

func (s *memStore) ListAll(_ context.Context) ([]models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Student, 0, len(s.students))
	for _, st := range s.students {
		out = append(out, st.Clone())
	}
	return out, nil
}

func (s *memStore) Publish(_ context.Context, batch repository.PublishBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return s.publishErr
	}
	for _, st := range batch.Students {
		if s.students[st.PSID].Version != st.Version {
			return appErrors.Clonef(appErrors.ErrPublishConflict, "student %s changed", st.PSID)
		}
	}
	for _, st := range batch.Students {
		st.Version++
		st.UpdatedAt = batch.PublishedAt
		s.students[st.PSID] = st.Clone()
	}
	for _, v := range batch.Views {
		s.views[v.Snapshot.PSID] = v
	}
	for _, lb := range batch.Leaderboards {
		s.leaderboards[lb.Method] = lb
	}
	s.publishes++
	return nil
}

func (s *memStore) Leaderboard(_ context.Context, method models.RankingMethod) (*models.LeaderboardSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lb, ok := s.leaderboards[method]
	if !ok {
		return nil, nil
	}
	return &lb, nil
}

type memCache struct {
	mu          sync.Mutex
	values      map[string]interface{}
	invalidated int
}

func newMemCache() *memCache {
	return &memCache{values: map[string]interface{}{}}
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if lb, ok := dest.(*models.LeaderboardSnapshot); ok {
		*lb = v.(models.LeaderboardSnapshot)
	}
	return nil
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memCache) DeleteByPattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range c.values {
		if strings.HasPrefix(k, prefix) {
			delete(c.values, k)
		}
	}
	c.invalidated++
	return nil
}

func ptr[T any](v T) *T { return &v }

func record(psid string, phy, chem, bot, zoo float64) models.ParsedRecord {
	return models.ParsedRecord{
		PSID:  psid,
		Name:  "Student " + psid,
		Batch: "B1",
		Subjects: map[string]float64{
			"phy":  phy,
			"chem": chem,
			"bot":  bot,
			"zoo":  zoo,
		},
	}
}

func ingestRequest(testID, date string, records ...models.ParsedRecord) dto.IngestionRequest {
	return dto.IngestionRequest{
		TestID:   testID,
		TestType: "FT",
		TestDate: date,
		MaxMarks: 720,
		Source:   "test",
		Records:  records,
	}
}
