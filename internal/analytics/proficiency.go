package analytics

import (
	"sort"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
)

const (
	masteredThreshold      = 8.0
	needsPracticeThreshold = 5.0
	focusListSize          = 5
)

// ChapterStatusFor buckets a CPI value.
func ChapterStatusFor(cpi float64) models.ChapterStatus {
	switch {
	case cpi >= masteredThreshold:
		return models.ChapterMastered
	case cpi >= needsPracticeThreshold:
		return models.ChapterNeedsPractice
	default:
		return models.ChapterCritical
	}
}

type chapterKey struct {
	subject models.Subject
	chapter string
}

type chapterAccumulator struct {
	weightedAccuracy float64
	weights          float64
	points           int
	marks            float64
	maxMarks         float64
}

// ChapterStats rates every chapter with at least one attributed mark.
// CPI = 10 × Σ(accuracy × weight) / Σ weight, accuracy clamped to [0,1] so
// negative marking cannot drag a chapter below zero. Each subject's list is
// sorted by ascending CPI, then name.
func (e *Engine) ChapterStats(tests []models.TestResult) map[models.Subject][]models.ChapterStat {
	acc := make(map[chapterKey]*chapterAccumulator)
	for _, t := range tests {
		w := e.weight(t.TestType)
		for _, ch := range t.Chapters {
			if ch.MaxMarks <= 0 || w <= 0 {
				continue
			}
			key := chapterKey{subject: ch.Subject, chapter: ch.Chapter}
			a := acc[key]
			if a == nil {
				a = &chapterAccumulator{}
				acc[key] = a
			}
			a.weightedAccuracy += clamp(ch.Marks/ch.MaxMarks, 0, 1) * w
			a.weights += w
			a.points++
			a.marks += ch.Marks
			a.maxMarks += ch.MaxMarks
		}
	}

	out := make(map[models.Subject][]models.ChapterStat)
	for key, a := range acc {
		cpi := round(clamp(10*a.weightedAccuracy/a.weights, 0, 10), 1)
		out[key.subject] = append(out[key.subject], models.ChapterStat{
			Name:       key.chapter,
			Subject:    key.subject,
			CPI:        cpi,
			Status:     ChapterStatusFor(cpi),
			DataPoints: a.points,
			Percentage: round(clamp(a.marks/a.maxMarks, 0, 1)*100, 1),
		})
	}
	for subject := range out {
		sortChapterStats(out[subject])
	}
	return out
}

func sortChapterStats(stats []models.ChapterStat) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].CPI != stats[j].CPI {
			return stats[i].CPI < stats[j].CPI
		}
		return stats[i].Name < stats[j].Name
	})
}

func subjectIndex(s models.Subject) int {
	for i, candidate := range models.Subjects {
		if candidate == s {
			return i
		}
	}
	return len(models.Subjects)
}

// FocusInsights lists the weakest chapters overall and the chapters whose
// CPI rose most because of the latest test.
func (e *Engine) FocusInsights(tests []models.TestResult) models.FocusInsights {
	insights := models.FocusInsights{
		TopWeakChapters:      []models.ChapterInsight{},
		MostImprovedChapters: []models.ChapterInsight{},
	}
	current := e.ChapterStats(tests)

	weak := make([]models.ChapterInsight, 0)
	for _, stats := range current {
		for _, st := range stats {
			if st.Status == models.ChapterMastered {
				continue
			}
			weak = append(weak, models.ChapterInsight{Subject: st.Subject, Chapter: st.Name, CPI: st.CPI, Status: st.Status})
		}
	}
	sort.Slice(weak, func(i, j int) bool {
		if weak[i].CPI != weak[j].CPI {
			return weak[i].CPI < weak[j].CPI
		}
		if weak[i].Subject != weak[j].Subject {
			return subjectIndex(weak[i].Subject) < subjectIndex(weak[j].Subject)
		}
		return weak[i].Chapter < weak[j].Chapter
	})
	if len(weak) > focusListSize {
		weak = weak[:focusListSize]
	}
	insights.TopWeakChapters = weak

	if len(tests) < 2 {
		return insights
	}
	before := make(map[chapterKey]float64)
	for _, stats := range e.ChapterStats(tests[:len(tests)-1]) {
		for _, st := range stats {
			before[chapterKey{subject: st.Subject, chapter: st.Name}] = st.CPI
		}
	}
	improved := make([]models.ChapterInsight, 0)
	for _, stats := range current {
		for _, st := range stats {
			prev, ok := before[chapterKey{subject: st.Subject, chapter: st.Name}]
			if !ok {
				continue
			}
			if delta := round(st.CPI-prev, 1); delta > 0 {
				improved = append(improved, models.ChapterInsight{Subject: st.Subject, Chapter: st.Name, CPI: st.CPI, Status: st.Status, Delta: delta})
			}
		}
	}
	sort.Slice(improved, func(i, j int) bool {
		if improved[i].Delta != improved[j].Delta {
			return improved[i].Delta > improved[j].Delta
		}
		if improved[i].Subject != improved[j].Subject {
			return subjectIndex(improved[i].Subject) < subjectIndex(improved[j].Subject)
		}
		return improved[i].Chapter < improved[j].Chapter
	})
	if len(improved) > focusListSize {
		improved = improved[:focusListSize]
	}
	insights.MostImprovedChapters = improved
	return insights
}
