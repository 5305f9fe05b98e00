package practicesession

import (
	"math"
	"time"
)

// FinishReason explains why a run ended.
type FinishReason string

const (
	FinishCompleted    FinishReason = "completed"
	FinishTimeout      FinishReason = "timeout"
	FinishMistakeLimit FinishReason = "mistake_limit"
)

const (
	MockExamQuestions       = 20
	MockExamDuration        = 25 * time.Minute
	MockExamAllowedMistakes = 2

	MarathonDefaultQuestions = 50
	MarathonPassMark         = 80

	TopicPassMark       = 80
	TopicSecondsPerItem = 15
	TopicMinDuration    = 5 * time.Minute
)

// MarathonTier is one selectable marathon length.
type MarathonTier struct {
	Questions int           `json:"questions"`
	Duration  time.Duration `json:"duration"`
}

var MarathonTiers = []MarathonTier{
	{Questions: 50, Duration: 60 * time.Minute},
	{Questions: 100, Duration: 120 * time.Minute},
	{Questions: 150, Duration: 180 * time.Minute},
}

// MarathonDuration returns the tier duration for a question count, or one
// minute per question for counts outside the tiers.
func MarathonDuration(questions int) time.Duration {
	questions = max(1, questions)
	for _, t := range MarathonTiers {
		if t.Questions == questions {
			return t.Duration
		}
	}
	return time.Duration(questions) * time.Minute
}

// TimeLimit returns the run duration for a session of the given mode and size.
func TimeLimit(mode Mode, questions int) time.Duration {
	switch mode {
	case ModeMockExam:
		return MockExamDuration
	case ModeMarathon:
		return MarathonDuration(questions)
	default:
		return max(TopicMinDuration, time.Duration(questions)*TopicSecondsPerItem*time.Second)
	}
}

// PassMark is the percentage shown as the pass threshold.
func PassMark(mode Mode, questions int) int {
	switch mode {
	case ModeMockExam:
		total := max(1, questions)
		return int(math.Round(float64(total-MockExamAllowedMistakes) / float64(total) * 100))
	case ModeMarathon:
		return MarathonPassMark
	default:
		return TopicPassMark
	}
}

// ShouldStop reports whether a run must end now: a mock exam stops at its
// third wrong answer, any run stops once every slot is answered.
func ShouldStop(s *Session) (FinishReason, bool) {
	p := ComputeProgress(s)
	if s.Mode == ModeMockExam && p.Incorrect > MockExamAllowedMistakes {
		return FinishMistakeLimit, true
	}
	if p.Total > 0 && p.Remaining == 0 {
		return FinishCompleted, true
	}
	return "", false
}

// Result is the graded outcome of a finished run.
type Result struct {
	Total     int          `json:"total"`
	Answered  int          `json:"answered"`
	Correct   int          `json:"correct"`
	Incorrect int          `json:"incorrect"`
	Percent   int          `json:"percent"`
	PassMark  int          `json:"passMark"`
	Passed    bool         `json:"passed"`
	Reason    FinishReason `json:"reason"`
	TimeLimit int64        `json:"timeLimitSeconds"`
}

// Evaluate grades a session. Mock exams pass with at most two wrong answers
// unless time ran out; every other mode passes at or above its pass mark.
func Evaluate(s *Session, reason FinishReason) Result {
	p := ComputeProgress(s)
	if reason == "" {
		reason = FinishCompleted
	}
	total := max(1, p.Total)
	r := Result{
		Total:     p.Total,
		Answered:  p.Answered,
		Correct:   p.Correct,
		Incorrect: p.Incorrect,
		Percent:   int(math.Round(float64(p.Correct) / float64(total) * 100)),
		PassMark:  PassMark(s.Mode, p.Total),
		Reason:    reason,
		TimeLimit: int64(TimeLimit(s.Mode, p.Total) / time.Second),
	}
	if s.Mode == ModeMockExam {
		r.Passed = p.Incorrect <= MockExamAllowedMistakes && reason != FinishTimeout
	} else {
		r.Passed = r.Percent >= r.PassMark
	}
	return r
}
