package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	practicesession "github.com/remaimber-it/drivetheory/internal/domain/practice_session"
	"github.com/remaimber-it/drivetheory/internal/service"
)

// ── Request / Response types ────────────────────────────────────────────────

// SettingsRequest overrides the stored settings field by field. Nil fields
// keep the stored value.
type SettingsRequest struct {
	ShowMistakesOnly *bool `json:"show_mistakes_only,omitempty"`
	ShuffleQuestions *bool `json:"shuffle_questions,omitempty"`
	AutoAdvance      *bool `json:"auto_advance,omitempty"`
}

func (s *SettingsRequest) apply(base practicesession.TestSettings) practicesession.TestSettings {
	if s == nil {
		return base
	}
	if s.ShowMistakesOnly != nil {
		base.ShowMistakesOnly = *s.ShowMistakesOnly
	}
	if s.ShuffleQuestions != nil {
		base.ShuffleQuestions = *s.ShuffleQuestions
	}
	if s.AutoAdvance != nil {
		base.AutoAdvance = *s.AutoAdvance
	}
	return base
}

type SettingsResponse struct {
	ShowMistakesOnly bool `json:"show_mistakes_only"`
	ShuffleQuestions bool `json:"shuffle_questions"`
	AutoAdvance      bool `json:"auto_advance"`
}

func toSettingsResponse(s practicesession.TestSettings) SettingsResponse {
	return SettingsResponse{
		ShowMistakesOnly: s.ShowMistakesOnly,
		ShuffleQuestions: s.ShuffleQuestions,
		AutoAdvance:      s.AutoAdvance,
	}
}

type CreateTopicSessionRequest struct {
	TopicID              string           `json:"topic_id"`
	Mode                 string           `json:"mode,omitempty"`
	QuestionLimit        int              `json:"question_limit,omitempty"`
	AvailableQuestionIDs []string         `json:"available_question_ids,omitempty"`
	Settings             *SettingsRequest `json:"settings,omitempty"`
}

type CreateFullBankSessionRequest struct {
	QuestionLimit int              `json:"question_limit,omitempty"`
	Settings      *SettingsRequest `json:"settings,omitempty"`
}

type CreateMistakeSessionRequest struct {
	QuestionIDs []string         `json:"question_ids"`
	Settings    *SettingsRequest `json:"settings,omitempty"`
}

// CreatedQuestionResponse is one slot of a new session. Answers are submitted
// against SessionQuestionID.
type CreatedQuestionResponse struct {
	SessionQuestionID string `json:"session_question_id"`
	QuestionID        string `json:"question_id"`
	Position          int    `json:"position"`
}

type CreateSessionResponse struct {
	ID             string                    `json:"id"`
	Mode           string                    `json:"mode"`
	TopicID        *string                   `json:"topic_id"`
	TotalQuestions int                       `json:"total_questions"`
	QuestionIDs    []string                  `json:"question_ids"`
	Questions      []CreatedQuestionResponse `json:"questions"`
	Settings       SettingsResponse          `json:"settings"`
	StartedAt      time.Time                 `json:"started_at"`
}

type SessionQuestionResponse struct {
	SessionQuestionID string           `json:"session_question_id"`
	QuestionID        string           `json:"question_id"`
	Position          int              `json:"position"`
	Prompt            string           `json:"prompt"`
	ImageURL          *string          `json:"image_url"`
	Explanation       *string          `json:"explanation"`
	Options           []OptionResponse `json:"options"`
	SelectedOptionID  *string          `json:"selected_option_id"`
	IsCorrect         *bool            `json:"is_correct"`
	AnsweredAt        *time.Time       `json:"answered_at"`
}

type ProgressResponse struct {
	Total           int `json:"total"`
	Answered        int `json:"answered"`
	Correct         int `json:"correct"`
	Incorrect       int `json:"incorrect"`
	Remaining       int `json:"remaining"`
	Percent         int `json:"percent"`
	CurrentPosition int `json:"current_position"`
}

type ResultResponse struct {
	Total     int    `json:"total"`
	Answered  int    `json:"answered"`
	Correct   int    `json:"correct"`
	Incorrect int    `json:"incorrect"`
	Percent   int    `json:"percent"`
	PassMark  int    `json:"pass_mark"`
	Passed    bool   `json:"passed"`
	Reason    string `json:"reason"`
}

type SessionResponse struct {
	ID               string                    `json:"id"`
	Mode             string                    `json:"mode"`
	TopicID          *string                   `json:"topic_id"`
	TopicSlug        *string                   `json:"topic_slug"`
	TopicTitle       *string                   `json:"topic_title"`
	TotalQuestions   int                       `json:"total_questions"`
	Settings         SettingsResponse          `json:"settings"`
	StartedAt        time.Time                 `json:"started_at"`
	FinishedAt       *time.Time                `json:"finished_at"`
	ScoreCorrect     int                       `json:"score_correct"`
	ScoreIncorrect   int                       `json:"score_incorrect"`
	TimeLimitSeconds int64                     `json:"time_limit_seconds"`
	PassMark         int                       `json:"pass_mark"`
	Progress         ProgressResponse          `json:"progress"`
	Result           *ResultResponse           `json:"result,omitempty"`
	Questions        []SessionQuestionResponse `json:"questions"`
}

type SubmitAnswerRequest struct {
	SessionQuestionID string `json:"session_question_id"`
	QuestionID        string `json:"question_id"`
	SelectedOptionID  string `json:"selected_option_id"`
}

type SubmitAnswerResponse struct {
	IsCorrect       bool   `json:"is_correct"`
	AlreadyAnswered bool   `json:"already_answered"`
	Finished        bool   `json:"finished"`
	ScoreCorrect    int    `json:"score_correct"`
	ScoreIncorrect  int    `json:"score_incorrect"`
	StopReason      string `json:"stop_reason,omitempty"`
}

type AnswerRequest struct {
	SessionQuestionID string    `json:"session_question_id"`
	QuestionID        string    `json:"question_id"`
	SelectedOptionID  string    `json:"selected_option_id"`
	IsCorrect         bool      `json:"is_correct"`
	AnsweredAt        time.Time `json:"answered_at"`
}

type CompleteSessionRequest struct {
	Answers    []AnswerRequest `json:"answers"`
	SyncRemote bool            `json:"sync_remote,omitempty"`
}

type CompleteSessionResponse struct {
	SessionID      string    `json:"session_id"`
	ScoreCorrect   int       `json:"score_correct"`
	ScoreIncorrect int       `json:"score_incorrect"`
	FinishedAt     time.Time `json:"finished_at"`
	SyncError      string    `json:"sync_error,omitempty"`
}

func toCreateSessionResponse(s *practicesession.Session) CreateSessionResponse {
	ids := make([]string, len(s.Questions))
	questions := make([]CreatedQuestionResponse, len(s.Questions))
	for i, q := range s.Questions {
		ids[i] = q.QuestionID
		questions[i] = CreatedQuestionResponse{
			SessionQuestionID: q.ID,
			QuestionID:        q.QuestionID,
			Position:          q.Position,
		}
	}
	return CreateSessionResponse{
		ID:             s.ID,
		Mode:           string(s.Mode),
		TopicID:        s.TopicID,
		TotalQuestions: s.TotalQuestions,
		QuestionIDs:    ids,
		Questions:      questions,
		Settings:       toSettingsResponse(s.Settings),
		StartedAt:      s.StartedAt,
	}
}

func toSessionResponse(v service.SessionView) SessionResponse {
	questions := make([]SessionQuestionResponse, len(v.Questions))
	for i, q := range v.Questions {
		questions[i] = SessionQuestionResponse{
			SessionQuestionID: q.SessionQuestionID,
			QuestionID:        q.QuestionID,
			Position:          q.Position,
			Prompt:            q.Prompt,
			ImageURL:          q.ImageURL,
			Explanation:       q.Explanation,
			Options:           toOptionResponses(q.Options),
			SelectedOptionID:  q.SelectedOptionID,
			IsCorrect:         q.IsCorrect,
			AnsweredAt:        q.AnsweredAt,
		}
	}
	var result *ResultResponse
	if r := v.Result; r != nil {
		result = &ResultResponse{
			Total:     r.Total,
			Answered:  r.Answered,
			Correct:   r.Correct,
			Incorrect: r.Incorrect,
			Percent:   r.Percent,
			PassMark:  r.PassMark,
			Passed:    r.Passed,
			Reason:    string(r.Reason),
		}
	}
	return SessionResponse{
		ID:               v.ID,
		Mode:             string(v.Mode),
		TopicID:          v.TopicID,
		TopicSlug:        v.TopicSlug,
		TopicTitle:       v.TopicTitle,
		TotalQuestions:   v.TotalQuestions,
		Settings:         toSettingsResponse(v.Settings),
		StartedAt:        v.StartedAt,
		FinishedAt:       v.FinishedAt,
		ScoreCorrect:     v.ScoreCorrect,
		ScoreIncorrect:   v.ScoreIncorrect,
		TimeLimitSeconds: v.TimeLimit,
		PassMark:         v.PassMark,
		Progress: ProgressResponse{
			Total:           v.Progress.Total,
			Answered:        v.Progress.Answered,
			Correct:         v.Progress.Correct,
			Incorrect:       v.Progress.Incorrect,
			Remaining:       v.Progress.Remaining,
			Percent:         v.Progress.Percent,
			CurrentPosition: v.Progress.CurrentPos,
		},
		Result:    result,
		Questions: questions,
	}
}

func toAnswers(in []AnswerRequest) []practicesession.Answer {
	out := make([]practicesession.Answer, len(in))
	for i, a := range in {
		out[i] = practicesession.Answer{
			SessionQuestionID: a.SessionQuestionID,
			QuestionID:        a.QuestionID,
			SelectedOptionID:  a.SelectedOptionID,
			IsCorrect:         a.IsCorrect,
			AnsweredAt:        a.AnsweredAt,
		}
	}
	return out
}

// settingsFor starts from the stored settings so a request only needs to
// send what it changes.
func (h *Handler) settingsFor(ctx context.Context, uid, slug string, req *SettingsRequest) (practicesession.TestSettings, error) {
	base, err := h.engine.LoadSettings(ctx, uid, slug)
	if err != nil {
		return practicesession.TestSettings{}, err
	}
	return req.apply(base), nil
}

// ── Handlers ────────────────────────────────────────────────────────────────

// POST /v1/theory/sessions
func (h *Handler) createTopicSession(w http.ResponseWriter, r *http.Request) {
	var req CreateTopicSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopicID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "topic_id is required")
		return
	}

	uid, lang := userID(r), h.language(r)
	slug, err := h.engine.TopicSlug(r.Context(), lang, req.TopicID)
	if h.handleError(w, r, err) {
		return
	}
	settings, err := h.settingsFor(r.Context(), uid, slug, req.Settings)
	if h.handleError(w, r, err) {
		return
	}

	session, err := h.engine.CreateTopicPracticeSession(r.Context(), service.TopicSessionRequest{
		UserID:               uid,
		Language:             lang,
		TopicID:              req.TopicID,
		Mode:                 practicesession.Mode(req.Mode),
		Settings:             settings,
		QuestionLimit:        req.QuestionLimit,
		AvailableQuestionIDs: req.AvailableQuestionIDs,
	})
	if h.handleError(w, r, err) {
		return
	}
	respondJSON(w, http.StatusCreated, toCreateSessionResponse(session))
}

// POST /v1/theory/sessions/mock-exam
func (h *Handler) createMockExam(w http.ResponseWriter, r *http.Request) {
	h.createFullBank(w, r, h.engine.CreateMockExamSession)
}

// POST /v1/theory/sessions/marathon
func (h *Handler) createMarathon(w http.ResponseWriter, r *http.Request) {
	h.createFullBank(w, r, h.engine.CreateMarathonSession)
}

type fullBankCreator func(context.Context, service.FullBankSessionRequest) (*practicesession.Session, error)

func (h *Handler) createFullBank(w http.ResponseWriter, r *http.Request, create fullBankCreator) {
	var req CreateFullBankSessionRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	uid := userID(r)
	settings, err := h.settingsFor(r.Context(), uid, "", req.Settings)
	if h.handleError(w, r, err) {
		return
	}

	session, err := create(r.Context(), service.FullBankSessionRequest{
		UserID:        uid,
		Language:      h.language(r),
		QuestionLimit: req.QuestionLimit,
		Settings:      settings,
	})
	if h.handleError(w, r, err) {
		return
	}
	respondJSON(w, http.StatusCreated, toCreateSessionResponse(session))
}

// POST /v1/theory/sessions/mistakes
func (h *Handler) createMistakeSession(w http.ResponseWriter, r *http.Request) {
	var req CreateMistakeSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	uid := userID(r)
	settings, err := h.settingsFor(r.Context(), uid, "", req.Settings)
	if h.handleError(w, r, err) {
		return
	}

	session, err := h.engine.CreateMistakePracticeSession(r.Context(), service.MistakeSessionRequest{
		UserID:      uid,
		Language:    h.language(r),
		QuestionIDs: req.QuestionIDs,
		Settings:    settings,
	})
	if h.handleError(w, r, err) {
		return
	}
	respondJSON(w, http.StatusCreated, toCreateSessionResponse(session))
}

// GET /v1/theory/sessions/{sessionID}
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.LoadSession(r.Context(), userID(r), h.language(r), chi.URLParam(r, "sessionID"))
	if h.handleError(w, r, err) {
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(view))
}

// POST /v1/theory/sessions/{sessionID}/answers
func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req SubmitAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.engine.SubmitAnswer(r.Context(), service.SubmitAnswerRequest{
		UserID:            userID(r),
		Language:          h.language(r),
		SessionID:         chi.URLParam(r, "sessionID"),
		SessionQuestionID: req.SessionQuestionID,
		QuestionID:        req.QuestionID,
		SelectedOptionID:  req.SelectedOptionID,
	})
	if h.handleError(w, r, err) {
		return
	}
	respondJSON(w, http.StatusOK, SubmitAnswerResponse{
		IsCorrect:       res.IsCorrect,
		AlreadyAnswered: res.AlreadyAnswered,
		Finished:        res.Finished,
		ScoreCorrect:    res.ScoreCorrect,
		ScoreIncorrect:  res.ScoreIncorrect,
		StopReason:      string(res.StopReason),
	})
}

// POST /v1/theory/sessions/{sessionID}/complete
//
// A failed remote push still commits locally; the response is 202 with the
// sync error so the client can retry via /sync.
func (h *Handler) completeSession(w http.ResponseWriter, r *http.Request) {
	var req CompleteSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.engine.CompleteSession(r.Context(), service.CompleteRequest{
		UserID:     userID(r),
		Language:   h.language(r),
		SessionID:  chi.URLParam(r, "sessionID"),
		Answers:    toAnswers(req.Answers),
		SyncRemote: req.SyncRemote,
	})

	status := http.StatusOK
	var syncErr *service.RemoteSyncError
	if errors.As(err, &syncErr) {
		status = http.StatusAccepted
		err = nil
	}
	if h.handleError(w, r, err) {
		return
	}

	out := CompleteSessionResponse{
		SessionID:      res.SessionID,
		ScoreCorrect:   res.ScoreCorrect,
		ScoreIncorrect: res.ScoreIncorrect,
		FinishedAt:     res.FinishedAt,
	}
	if syncErr != nil {
		out.SyncError = syncErr.Error()
	}
	respondJSON(w, status, out)
}

// POST /v1/theory/sessions/{sessionID}/finalize
func (h *Handler) finalizeSession(w http.ResponseWriter, r *http.Request) {
	var req CompleteSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.finalizer.Finalize(r.Context(), service.FinalizeRequest{
		UserID:    userID(r),
		Language:  h.language(r),
		SessionID: chi.URLParam(r, "sessionID"),
		Answers:   toAnswers(req.Answers),
	})
	if h.handleError(w, r, err) {
		return
	}
	respondJSON(w, http.StatusOK, CompleteSessionResponse{
		SessionID:      res.SessionID,
		ScoreCorrect:   res.ScoreCorrect,
		ScoreIncorrect: res.ScoreIncorrect,
		FinishedAt:     res.FinishedAt,
	})
}

// POST /v1/theory/sessions/{sessionID}/finish
func (h *Handler) finishSession(w http.ResponseWriter, r *http.Request) {
	err := h.engine.FinishSession(r.Context(), userID(r), chi.URLParam(r, "sessionID"))
	if h.handleError(w, r, err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
