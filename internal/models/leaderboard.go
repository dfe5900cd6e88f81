package models

import (
	"fmt"
	"time"
)

// RankingMethod names a leaderboard.
type RankingMethod string

const (
	RankLatestScores     RankingMethod = "latest_scores"
	RankOverallAverage   RankingMethod = "overall_average"
	RankConsistencyIndex RankingMethod = "consistency_index"
)

// SubjectRanking returns the leaderboard method for a subject.
func SubjectRanking(s Subject) RankingMethod {
	return RankingMethod("subject_" + string(s))
}

// RankingMethods lists every published leaderboard.
func RankingMethods() []RankingMethod {
	methods := []RankingMethod{RankLatestScores, RankOverallAverage, RankConsistencyIndex}
	for _, s := range Subjects {
		methods = append(methods, SubjectRanking(s))
	}
	return methods
}

// ParseRankingMethod validates a method name from a URL or flag.
func ParseRankingMethod(raw string) (RankingMethod, error) {
	for _, m := range RankingMethods() {
		if string(m) == raw {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown ranking method %q", raw)
}

// LeaderboardEntry is one ranked student.
type LeaderboardEntry struct {
	Rank       int     `json:"rank"`
	PSID       string  `json:"psid"`
	Name       string  `json:"name"`
	Batch      string  `json:"batch"`
	Score      float64 `json:"score"`
	Trend      Trend   `json:"trend"`
	TestsTaken int     `json:"tests_taken"`
}

// LeaderboardSnapshot is a capped, fully recomputed ranking for one method.
type LeaderboardSnapshot struct {
	Method      RankingMethod      `json:"method"`
	GeneratedAt time.Time          `json:"generated_at"`
	Version     int64              `json:"version"`
	Entries     []LeaderboardEntry `json:"entries"`
}

const psidMask = "*******"

// MaskPSID keeps only the last three characters of a PSID. Shorter values are
// masked entirely.
func MaskPSID(psid string) string {
	if len(psid) <= 3 {
		return psidMask
	}
	return psidMask + psid[len(psid)-3:]
}

// Public returns a copy whose entries carry masked PSIDs, for readers who are
// not signed in.
func (l LeaderboardSnapshot) Public() LeaderboardSnapshot {
	out := l
	out.Entries = make([]LeaderboardEntry, len(l.Entries))
	for i, e := range l.Entries {
		e.PSID = MaskPSID(e.PSID)
		out.Entries[i] = e
	}
	return out
}

// FilterBatch returns the entries belonging to a batch, keeping their ranks.
func (l LeaderboardSnapshot) FilterBatch(batch string) LeaderboardSnapshot {
	if batch == "" {
		return l
	}
	out := l
	out.Entries = make([]LeaderboardEntry, 0)
	for _, e := range l.Entries {
		if e.Batch == batch {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}
