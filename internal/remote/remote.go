// Package remote pushes completed sessions and the touched question stats to
// the shared Postgres store.
package remote

import (
	"context"
	"time"

	practicesession "github.com/remaimber-it/drivetheory/internal/domain/practice_session"
	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
)

// StatsRow mirrors one row of the stats table, unique on (user_id, question_id).
type StatsRow struct {
	UserID         string
	QuestionID     string
	SeenCount      int
	CorrectCount   int
	IncorrectCount int
	LastIsCorrect  *bool
	LastAnsweredAt *time.Time
}

// SessionPayload is the free-form JSON column of a session row.
type SessionPayload struct {
	Mode      practicesession.Mode         `json:"mode"`
	Settings  practicesession.TestSettings `json:"settings"`
	StartedAt time.Time                    `json:"started_at"`
	Answers   []practicesession.Answer     `json:"answers"`
}

// SessionRow mirrors one row of the sessions table, unique on (user_id, session_id).
type SessionRow struct {
	UserID         string
	SessionID      string
	TopicID        *string
	TotalQuestions int
	ScoreCorrect   int
	ScoreIncorrect int
	FinishedAt     time.Time
	UpdatedAt      time.Time
	Payload        SessionPayload
}

// Push is everything sent for one completion.
type Push struct {
	Stats   []StatsRow
	Session SessionRow
}

// Pusher delivers a Push with upsert semantics.
type Pusher interface {
	Push(ctx context.Context, p Push) error
}

// Noop is used when remote sync is disabled.
type Noop struct{}

func (Noop) Push(context.Context, Push) error { return nil }

// BuildPush assembles the rows for a completed session. Only the touched
// questions that have stats are included.
func BuildPush(s *practicesession.Session, touched []string, stats map[string]questionbank.QuestionStats, answers []practicesession.Answer, finishedAt, now time.Time) Push {
	rows := make([]StatsRow, 0, len(touched))
	for _, qid := range touched {
		st, ok := stats[qid]
		if !ok {
			continue
		}
		st = st.Normalize()
		rows = append(rows, StatsRow{
			UserID:         s.UserID,
			QuestionID:     qid,
			SeenCount:      st.SeenCount,
			CorrectCount:   st.CorrectCount,
			IncorrectCount: st.IncorrectCount,
			LastIsCorrect:  st.LastIsCorrect,
			LastAnsweredAt: st.LastAnsweredAt,
		})
	}
	if answers == nil {
		answers = []practicesession.Answer{}
	}
	return Push{
		Stats: rows,
		Session: SessionRow{
			UserID:         s.UserID,
			SessionID:      s.ID,
			TopicID:        s.TopicID,
			TotalQuestions: max(0, s.TotalQuestions),
			ScoreCorrect:   max(0, s.ScoreCorrect),
			ScoreIncorrect: max(0, s.ScoreIncorrect),
			FinishedAt:     finishedAt,
			UpdatedAt:      now,
			Payload: SessionPayload{
				Mode:      s.Mode,
				Settings:  s.Settings,
				StartedAt: s.StartedAt,
				Answers:   answers,
			},
		},
	}
}
