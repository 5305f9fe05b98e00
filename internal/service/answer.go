package service

import (
	"context"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	practicesession "github.com/remaimber-it/drivetheory/internal/domain/practice_session"
	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
	"github.com/remaimber-it/drivetheory/internal/remote"
)

type SubmitAnswerRequest struct {
	UserID            string
	Language          questionbank.Language
	SessionID         string
	SessionQuestionID string
	QuestionID        string
	SelectedOptionID  string
}

// SubmitResult describes the session after an answer. AlreadyAnswered means
// nothing changed and IsCorrect is the stored outcome. StopReason is set once
// the run should end, e.g. a mock exam past its mistake limit; the caller
// decides when to finish it.
type SubmitResult struct {
	IsCorrect       bool                         `json:"isCorrect"`
	AlreadyAnswered bool                         `json:"alreadyAnswered"`
	Finished        bool                         `json:"finished"`
	ScoreCorrect    int                          `json:"scoreCorrect"`
	ScoreIncorrect  int                          `json:"scoreIncorrect"`
	StopReason      practicesession.FinishReason `json:"stopReason,omitempty"`
}

// CompleteRequest finalizes a session from answers collected by the client.
type CompleteRequest struct {
	UserID     string
	Language   questionbank.Language
	SessionID  string
	Answers    []practicesession.Answer
	SyncRemote bool
}

type CompleteResult struct {
	SessionID      string    `json:"sessionId"`
	ScoreCorrect   int       `json:"scoreCorrect"`
	ScoreIncorrect int       `json:"scoreIncorrect"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// SubmitAnswer records one answer locally. A session question is answered
// at most once; later submissions return AlreadyAnswered.
func (e *Engine) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (SubmitResult, error) {
	bank, err := e.bank(ctx, req.Language)
	if err != nil {
		return SubmitResult{}, err
	}

	unlock := e.locks.lock(req.UserID)
	defer unlock()

	sessions, s, err := e.loadSession(ctx, req.UserID, req.SessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	sq, ok := s.Question(req.SessionQuestionID)
	if !ok || sq.QuestionID != req.QuestionID {
		return SubmitResult{}, notFound("session question", req.SessionQuestionID)
	}
	if sq.Answered() {
		return SubmitResult{
			IsCorrect:       sq.IsCorrect != nil && *sq.IsCorrect,
			AlreadyAnswered: true,
			Finished:        s.Finished(),
			ScoreCorrect:    s.ScoreCorrect,
			ScoreIncorrect:  s.ScoreIncorrect,
			StopReason:      stopReason(s),
		}, nil
	}

	question, ok := bank.Question(req.QuestionID)
	if !ok {
		return SubmitResult{}, notFound("question", req.QuestionID)
	}
	option, ok := question.Option(req.SelectedOptionID)
	if !ok {
		return SubmitResult{}, &ValidationError{Field: "selected_option_id", Message: "option does not belong to question " + req.QuestionID}
	}

	now := e.clock()
	s.Answer(req.SessionQuestionID, option.ID, option.IsCorrect, now)
	s.RecomputeScore()
	if s.UnansweredCount() == 0 {
		s.Finish(now)
	}
	sessions[s.ID] = s

	// Stats go first: once the slot is stored as answered a retry is a no-op.
	stats, err := e.stats.Read(ctx, req.UserID)
	if err != nil {
		return SubmitResult{}, storageErr("read stats", err)
	}
	st := stats[req.QuestionID]
	st.QuestionID = req.QuestionID
	st.Record(option.IsCorrect, now)
	stats[req.QuestionID] = st
	if err := e.stats.Write(ctx, req.UserID, stats); err != nil {
		return SubmitResult{}, storageErr("write stats", err)
	}
	if err := e.sessions.Write(ctx, req.UserID, sessions); err != nil {
		return SubmitResult{}, storageErr("write sessions", err)
	}
	e.invalidate(ctx, req.UserID, s.ID)

	return SubmitResult{
		IsCorrect:      option.IsCorrect,
		Finished:       s.Finished(),
		ScoreCorrect:   s.ScoreCorrect,
		ScoreIncorrect: s.ScoreIncorrect,
		StopReason:     stopReason(s),
	}, nil
}

func stopReason(s *practicesession.Session) practicesession.FinishReason {
	reason, _ := practicesession.ShouldStop(s)
	return reason
}

// CompleteSession applies a batch of answers and finishes the session.
// Slots that are already answered keep their answer, but stats follow the
// latest observed answer per question. With SyncRemote the result is pushed
// after the local commit; a push failure is returned as *RemoteSyncError
// alongside a valid result.
func (e *Engine) CompleteSession(ctx context.Context, req CompleteRequest) (CompleteResult, error) {
	res, push, err := e.completeLocal(ctx, req)
	if err != nil || !req.SyncRemote {
		return res, err
	}

	if err := e.remote.Push(ctx, push); err != nil {
		if remote.IsNotProvisioned(err) {
			e.logger.Debug("remote store not provisioned, skipping sync",
				"session_id", req.SessionID,
				"error", err,
			)
			return res, nil
		}
		return res, &RemoteSyncError{SessionID: req.SessionID, Err: err}
	}
	return res, nil
}

type statsIncrement struct {
	seen      int
	correct   int
	incorrect int
}

func (e *Engine) completeLocal(ctx context.Context, req CompleteRequest) (CompleteResult, remote.Push, error) {
	bank, err := e.bank(ctx, req.Language)
	if err != nil {
		return CompleteResult{}, remote.Push{}, err
	}

	unlock := e.locks.lock(req.UserID)
	defer unlock()

	var (
		sessions map[string]*practicesession.Session
		s        *practicesession.Session
		stats    map[string]questionbank.QuestionStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sessions, s, err = e.loadSession(gctx, req.UserID, req.SessionID)
		return err
	})
	g.Go(func() (err error) {
		if stats, err = e.stats.Read(gctx, req.UserID); err != nil {
			return storageErr("read stats", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return CompleteResult{}, remote.Push{}, err
	}

	answers := slices.DeleteFunc(slices.Clone(req.Answers), func(a practicesession.Answer) bool {
		return !a.Complete()
	})
	slices.SortStableFunc(answers, func(a, b practicesession.Answer) int {
		return a.AnsweredAt.Compare(b.AnsweredAt)
	})

	var (
		validated []practicesession.Answer
		touched   []string
		increment = make(map[string]*statsIncrement)
		latest    = make(map[string]practicesession.Answer)
	)
	for _, a := range answers {
		sq, ok := s.Question(a.SessionQuestionID)
		if !ok || sq.QuestionID != a.QuestionID {
			continue
		}
		question, ok := bank.Question(a.QuestionID)
		if !ok {
			continue
		}
		option, ok := question.Option(a.SelectedOptionID)
		if !ok {
			continue
		}
		a.IsCorrect = option.IsCorrect
		a.AnsweredAt = a.AnsweredAt.UTC()
		validated = append(validated, a)

		inc, ok := increment[a.QuestionID]
		if !ok {
			inc = &statsIncrement{}
			increment[a.QuestionID] = inc
			touched = append(touched, a.QuestionID)
		}
		if s.Answer(a.SessionQuestionID, a.SelectedOptionID, a.IsCorrect, a.AnsweredAt) {
			inc.seen++
			if a.IsCorrect {
				inc.correct++
			} else {
				inc.incorrect++
			}
		}
		latest[a.QuestionID] = a
	}

	for _, qid := range touched {
		base := stats[qid]
		inc := increment[qid]
		last := latest[qid]

		st := questionbank.QuestionStats{
			QuestionID:     qid,
			SeenCount:      max(1, base.SeenCount+inc.seen),
			CorrectCount:   base.CorrectCount + inc.correct,
			IncorrectCount: base.IncorrectCount + inc.incorrect,
		}
		if last.IsCorrect {
			st.CorrectCount = max(1, st.CorrectCount)
		} else {
			st.IncorrectCount = max(1, st.IncorrectCount)
		}
		correct, at := last.IsCorrect, last.AnsweredAt
		st.LastIsCorrect = &correct
		st.LastAnsweredAt = &at
		stats[qid] = st
	}

	s.RecomputeScore()
	now := e.clock()
	finishedAt := now
	if len(validated) == 0 && s.FinishedAt != nil {
		finishedAt = *s.FinishedAt
	}
	s.FinishedAt = &finishedAt
	sessions[s.ID] = s

	if len(touched) > 0 {
		if err := e.stats.Write(ctx, req.UserID, stats); err != nil {
			return CompleteResult{}, remote.Push{}, storageErr("write stats", err)
		}
	}
	if err := e.sessions.Write(ctx, req.UserID, sessions); err != nil {
		return CompleteResult{}, remote.Push{}, storageErr("write sessions", err)
	}
	e.invalidate(ctx, req.UserID, s.ID)

	e.logger.Info("session completed",
		"user_id", req.UserID,
		"session_id", s.ID,
		"answers", len(validated),
		"score_correct", s.ScoreCorrect,
		"score_incorrect", s.ScoreIncorrect,
	)

	res := CompleteResult{
		SessionID:      s.ID,
		ScoreCorrect:   s.ScoreCorrect,
		ScoreIncorrect: s.ScoreIncorrect,
		FinishedAt:     finishedAt,
	}
	return res, remote.BuildPush(s, touched, stats, validated, finishedAt, now), nil
}

// FinishSession marks a session finished without touching its answers. An
// unknown session is ignored.
func (e *Engine) FinishSession(ctx context.Context, userID, sessionID string) error {
	unlock := e.locks.lock(userID)
	defer unlock()

	sessions, s, err := e.loadSession(ctx, userID, sessionID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !s.Finish(e.clock()) {
		return nil
	}
	sessions[s.ID] = s
	if err := e.sessions.Write(ctx, userID, sessions); err != nil {
		return storageErr("write sessions", err)
	}
	e.invalidate(ctx, userID, s.ID)
	return nil
}
