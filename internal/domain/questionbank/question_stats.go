package questionbank

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// MistakePackSize is the number of questions per mistake pack.
const MistakePackSize = 20

// QuestionStats tracks one user's history with a single question across all
// sessions. Counters never decrease.
type QuestionStats struct {
	QuestionID     string     `json:"questionId"`
	SeenCount      int        `json:"seenCount"`
	CorrectCount   int        `json:"correctCount"`
	IncorrectCount int        `json:"incorrectCount"`
	LastIsCorrect  *bool      `json:"lastIsCorrect"`
	LastAnsweredAt *time.Time `json:"lastAnsweredAt"`
}

// Record applies one answer: seen and the matching outcome counter are
// incremented and the last outcome is replaced.
func (qs *QuestionStats) Record(correct bool, at time.Time) {
	qs.SeenCount++
	if correct {
		qs.CorrectCount++
	} else {
		qs.IncorrectCount++
	}
	qs.LastIsCorrect = &correct
	qs.LastAnsweredAt = &at
}

// IsMistake is the "show mistakes only" filter: ever wrong, or wrong last time.
func (qs QuestionStats) IsMistake() bool {
	return qs.IncorrectCount > 0 || qs.LastWrong()
}

// LastWrong reports whether the most recent answer was incorrect.
func (qs QuestionStats) LastWrong() bool {
	return qs.LastIsCorrect != nil && !*qs.LastIsCorrect
}

// Normalize clamps negative counters to zero.
func (qs QuestionStats) Normalize() QuestionStats {
	qs.QuestionID = strings.TrimSpace(qs.QuestionID)
	qs.SeenCount = max(0, qs.SeenCount)
	qs.CorrectCount = max(0, qs.CorrectCount)
	qs.IncorrectCount = max(0, qs.IncorrectCount)
	return qs
}

// TopicProgress aggregates a user's stats over one topic.
type TopicProgress struct {
	ID                string  `json:"id"`
	Slug              string  `json:"slug"`
	Title             string  `json:"title"`
	Subtitle          string  `json:"subtitle"`
	Order             int     `json:"order"`
	ImageKey          *string `json:"imageKey"`
	TotalQuestions    int     `json:"totalQuestions"`
	SeenQuestions     int     `json:"seenQuestions"`
	AnsweredQuestions int     `json:"answeredQuestions"`
	CorrectCount      int     `json:"correctCount"`
	IncorrectCount    int     `json:"incorrectCount"`
	Completed         bool    `json:"completed"`
	ProgressPercent   int     `json:"progressPercent"`
}

// Summary aggregates TopicProgress over the whole bank.
type Summary struct {
	TotalTopics      int `json:"totalTopics"`
	TotalQuestions   int `json:"totalQuestions"`
	SeenQuestions    int `json:"seenQuestions"`
	NotSeenQuestions int `json:"notSeenQuestions"`
	ProgressPercent  int `json:"progressPercent"`
}

type Overview struct {
	Summary Summary         `json:"summary"`
	Topics  []TopicProgress `json:"topics"`
}

// ComputeTopicProgress counts seen/answered questions and last outcomes for
// the topic's questions.
func ComputeTopicProgress(topic Topic, stats map[string]QuestionStats) TopicProgress {
	p := TopicProgress{
		ID:             topic.ID,
		Slug:           topic.Slug,
		Title:          topic.Title,
		Subtitle:       strings.TrimSpace(topic.Subtitle),
		Order:          max(0, topic.Order),
		ImageKey:       topic.ImageKey,
		TotalQuestions: len(topic.QuestionIDs),
	}

	for _, qid := range topic.QuestionIDs {
		s, ok := stats[qid]
		if !ok {
			continue
		}
		s = s.Normalize()
		if s.SeenCount > 0 {
			p.SeenQuestions++
		}
		if s.CorrectCount+s.IncorrectCount > 0 {
			p.AnsweredQuestions++
		}
		if s.LastIsCorrect != nil {
			if *s.LastIsCorrect {
				p.CorrectCount++
			} else {
				p.IncorrectCount++
			}
		}
	}

	p.Completed = p.TotalQuestions > 0 && p.SeenQuestions >= p.TotalQuestions
	p.ProgressPercent = percent(p.SeenQuestions, p.TotalQuestions)
	return p
}

// ComputeOverview builds the overview of every topic, ordered by topic order
// and then title.
func ComputeOverview(topics []Topic, stats map[string]QuestionStats) Overview {
	progress := make([]TopicProgress, 0, len(topics))
	for _, t := range topics {
		progress = append(progress, ComputeTopicProgress(t, stats))
	}
	slices.SortStableFunc(progress, func(a, b TopicProgress) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), strings.Compare(a.Title, b.Title))
	})

	var sum Summary
	sum.TotalTopics = len(progress)
	for _, p := range progress {
		sum.TotalQuestions += p.TotalQuestions
		sum.SeenQuestions += p.SeenQuestions
	}
	sum.NotSeenQuestions = max(0, sum.TotalQuestions-sum.SeenQuestions)
	sum.ProgressPercent = percent(sum.SeenQuestions, sum.TotalQuestions)

	return Overview{Summary: sum, Topics: progress}
}

// MistakePack is a fixed-size slice of the user's wrong questions.
type MistakePack struct {
	ID             string   `json:"id"`
	TotalQuestions int      `json:"totalQuestions"`
	QuestionIDs    []string `json:"questionIds"`
}

type MistakePacks struct {
	TotalWrongQuestions int           `json:"totalWrongQuestions"`
	Packs               []MistakePack `json:"packs"`
}

// WrongQuestionIDs returns the questions last answered incorrectly that still
// exist in the bank, most recent first (ties by id).
func WrongQuestionIDs(b *Bank, stats map[string]QuestionStats) []string {
	type entry struct {
		id string
		at int64
	}
	var entries []entry
	for qid, s := range stats {
		if !s.LastWrong() || !b.Has(qid) {
			continue
		}
		var at int64
		if s.LastAnsweredAt != nil {
			at = s.LastAnsweredAt.UnixMilli()
		}
		entries = append(entries, entry{id: qid, at: at})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		return cmp.Or(cmp.Compare(b.at, a.at), strings.Compare(a.id, b.id))
	})

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids
}

// SplitIntoPacks chunks ids into packs numbered from "1".
func SplitIntoPacks(ids []string, size int) []MistakePack {
	size = max(1, size)
	var packs []MistakePack
	for i := 0; i < len(ids); i += size {
		chunk := slices.Clone(ids[i:min(i+size, len(ids))])
		packs = append(packs, MistakePack{
			ID:             strconv.Itoa(i/size + 1),
			TotalQuestions: len(chunk),
			QuestionIDs:    chunk,
		})
	}
	return packs
}

// percent is round(part/total*100), 0 for an empty total.
func percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
