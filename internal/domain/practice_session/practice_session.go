package practicesession

import (
	"cmp"
	"encoding/json"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/remaimber-it/drivetheory/internal/id"
)

// SessionQuestion is one question slot of a session. The answer fields are
// written once: after SelectedOptionID is set they never change.
type SessionQuestion struct {
	ID               string     `json:"id"`
	QuestionID       string     `json:"questionId"`
	Position         int        `json:"position"`
	SelectedOptionID *string    `json:"selectedOptionId"`
	IsCorrect        *bool      `json:"isCorrect"`
	AnsweredAt       *time.Time `json:"answeredAt"`
}

func (q SessionQuestion) Answered() bool {
	return q.SelectedOptionID != nil && *q.SelectedOptionID != ""
}

// Session is one run of a user through a list of questions.
type Session struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	TopicID        *string           `json:"topicId"`
	Mode           Mode              `json:"mode"`
	TotalQuestions int               `json:"totalQuestions"`
	Settings       TestSettings      `json:"settings"`
	StartedAt      time.Time         `json:"startedAt"`
	FinishedAt     *time.Time        `json:"finishedAt"`
	ScoreCorrect   int               `json:"scoreCorrect"`
	ScoreIncorrect int               `json:"scoreIncorrect"`
	Questions      []SessionQuestion `json:"questions"`
}

// New creates a session whose question slots follow questionIDs, with
// positions starting at 1.
func New(sessionID, userID string, topicID *string, mode Mode, settings TestSettings, questionIDs []string, startedAt time.Time) *Session {
	questions := make([]SessionQuestion, len(questionIDs))
	for i, qid := range questionIDs {
		questions[i] = SessionQuestion{
			ID:         id.SessionQuestionID(sessionID, i+1),
			QuestionID: qid,
			Position:   i + 1,
		}
	}
	return &Session{
		ID:             sessionID,
		UserID:         userID,
		TopicID:        topicID,
		Mode:           mode,
		TotalQuestions: len(questionIDs),
		Settings:       settings,
		StartedAt:      startedAt,
		Questions:      questions,
	}
}

// Question returns the slot with the given id. The pointer aliases the
// session's own slice.
func (s *Session) Question(sessionQuestionID string) (*SessionQuestion, bool) {
	for i := range s.Questions {
		if s.Questions[i].ID == sessionQuestionID {
			return &s.Questions[i], true
		}
	}
	return nil, false
}

// Answer records an answer on an unanswered slot. It reports false, leaving
// the slot untouched, when the slot is unknown or already answered.
func (s *Session) Answer(sessionQuestionID, optionID string, correct bool, at time.Time) bool {
	q, ok := s.Question(sessionQuestionID)
	if !ok || q.Answered() {
		return false
	}
	q.SelectedOptionID = &optionID
	q.IsCorrect = &correct
	q.AnsweredAt = &at
	return true
}

// RecomputeScore rescans every slot; the score always equals the number of
// answered slots split by outcome.
func (s *Session) RecomputeScore() {
	s.ScoreCorrect, s.ScoreIncorrect = 0, 0
	for _, q := range s.Questions {
		if !q.Answered() || q.IsCorrect == nil {
			continue
		}
		if *q.IsCorrect {
			s.ScoreCorrect++
		} else {
			s.ScoreIncorrect++
		}
	}
}

func (s *Session) UnansweredCount() int {
	n := 0
	for _, q := range s.Questions {
		if !q.Answered() {
			n++
		}
	}
	return n
}

// Finish sets FinishedAt unless it is already set and reports whether it
// changed the session.
func (s *Session) Finish(at time.Time) bool {
	if s.FinishedAt != nil {
		return false
	}
	s.FinishedAt = &at
	return true
}

func (s *Session) Finished() bool { return s.FinishedAt != nil }

// UnmarshalJSON defaults the settings of records stored without them.
func (s *Session) UnmarshalJSON(b []byte) error {
	type plain Session
	p := plain{Settings: DefaultSettings()}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = Session(p)
	return nil
}

// Normalize orders slots by position and clamps counters decoded from storage.
// Unknown modes read as topic practice.
func (s *Session) Normalize() {
	if !s.Mode.Valid() {
		s.Mode = ModeTopicPractice
	}
	slices.SortStableFunc(s.Questions, func(a, b SessionQuestion) int {
		return cmp.Compare(a.Position, b.Position)
	})
	s.TotalQuestions = max(0, s.TotalQuestions)
	s.ScoreCorrect = max(0, s.ScoreCorrect)
	s.ScoreIncorrect = max(0, s.ScoreIncorrect)
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.TopicID = clonePtr(s.TopicID)
	c.FinishedAt = clonePtr(s.FinishedAt)
	c.Questions = make([]SessionQuestion, len(s.Questions))
	for i, q := range s.Questions {
		q.SelectedOptionID = clonePtr(q.SelectedOptionID)
		q.IsCorrect = clonePtr(q.IsCorrect)
		q.AnsweredAt = clonePtr(q.AnsweredAt)
		c.Questions[i] = q
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Progress is the answered/remaining breakdown of a session.
type Progress struct {
	Total      int `json:"total"`
	Answered   int `json:"answered"`
	Correct    int `json:"correct"`
	Incorrect  int `json:"incorrect"`
	Remaining  int `json:"remaining"`
	Percent    int `json:"percent"`
	CurrentPos int `json:"currentPosition"` // first unanswered position, 0 when done
}

// ComputeProgress derives Progress from the slots, independent of the stored
// score fields.
func ComputeProgress(s *Session) Progress {
	p := Progress{Total: len(s.Questions)}
	for _, q := range s.Questions {
		if !q.Answered() {
			if p.CurrentPos == 0 || q.Position < p.CurrentPos {
				p.CurrentPos = q.Position
			}
			continue
		}
		p.Answered++
		if q.IsCorrect != nil && *q.IsCorrect {
			p.Correct++
		} else {
			p.Incorrect++
		}
	}
	p.Remaining = p.Total - p.Answered
	if p.Total > 0 {
		p.Percent = int(math.Round(float64(p.Answered) / float64(p.Total) * 100))
	}
	return p
}

// Answer is one client-side answer handed to batch completion and to the
// offline queue.
type Answer struct {
	SessionQuestionID string    `json:"sessionQuestionId"`
	QuestionID        string    `json:"questionId"`
	SelectedOptionID  string    `json:"selectedOptionId"`
	IsCorrect         bool      `json:"isCorrect"`
	AnsweredAt        time.Time `json:"answeredAt"`
}

// Complete reports whether every identifying field is present.
func (a Answer) Complete() bool {
	return strings.TrimSpace(a.SessionQuestionID) != "" &&
		strings.TrimSpace(a.QuestionID) != "" &&
		strings.TrimSpace(a.SelectedOptionID) != "" &&
		!a.AnsweredAt.IsZero()
}
