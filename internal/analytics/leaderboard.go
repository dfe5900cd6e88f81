package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
)

// Rank builds one leaderboard from published student snapshots. Students
// without tests are excluded. Entries are ordered by score descending and
// PSID ascending; ranks are dense so equal scores share a rank.
func (e *Engine) Rank(method models.RankingMethod, snapshots []models.StudentSnapshot, generatedAt time.Time, version int64) models.LeaderboardSnapshot {
	entries := make([]models.LeaderboardEntry, 0, len(snapshots))
	for _, s := range snapshots {
		if s.Meta.TestsTaken == 0 {
			continue
		}
		score, trend, ok := scoreFor(method, s)
		if !ok {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{
			PSID:       s.PSID,
			Name:       s.Name,
			Batch:      s.Batch,
			Score:      score,
			Trend:      trend,
			TestsTaken: s.Meta.TestsTaken,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].PSID < entries[j].PSID
	})
	if len(entries) > e.cfg.LeaderboardCap {
		entries = entries[:e.cfg.LeaderboardCap]
	}

	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Score != entries[i-1].Score {
			rank++
		}
		entries[i].Rank = rank
	}
	return models.LeaderboardSnapshot{Method: method, GeneratedAt: generatedAt, Version: version, Entries: entries}
}

// Leaderboards recomputes every ranking method from scratch.
func (e *Engine) Leaderboards(snapshots []models.StudentSnapshot, generatedAt time.Time, version int64) []models.LeaderboardSnapshot {
	methods := models.RankingMethods()
	out := make([]models.LeaderboardSnapshot, 0, len(methods))
	for _, m := range methods {
		out = append(out, e.Rank(m, snapshots, generatedAt, version))
	}
	return out
}

func scoreFor(method models.RankingMethod, s models.StudentSnapshot) (float64, models.Trend, bool) {
	switch method {
	case models.RankLatestScores:
		return s.OverallPerformance.LatestScore, s.OverallPerformance.Trend, true
	case models.RankOverallAverage:
		return s.OverallPerformance.AverageTotalScore, s.OverallPerformance.Trend, true
	case models.RankConsistencyIndex:
		return s.OverallPerformance.ConsistencyIndex, s.OverallPerformance.Trend, true
	}
	if subject, ok := strings.CutPrefix(string(method), "subject_"); ok {
		summary, found := s.Subjects[models.Subject(subject)]
		if !found || summary.TestsTaken == 0 {
			return 0, "", false
		}
		return summary.AveragePercentage, summary.Trend, true
	}
	return 0, "", false
}
