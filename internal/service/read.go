package service

import (
	"context"
	"time"

	"github.com/remaimber-it/drivetheory/internal/cache"
	practicesession "github.com/remaimber-it/drivetheory/internal/domain/practice_session"
	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
)

// SessionQuestionView is a session slot joined with its question.
type SessionQuestionView struct {
	SessionQuestionID string                `json:"sessionQuestionId"`
	QuestionID        string                `json:"questionId"`
	Position          int                   `json:"position"`
	Prompt            string                `json:"prompt"`
	ImageURL          *string               `json:"imageUrl"`
	Explanation       *string               `json:"explanation"`
	Options           []questionbank.Option `json:"options"`
	SelectedOptionID  *string               `json:"selectedOptionId"`
	IsCorrect         *bool                 `json:"isCorrect"`
	AnsweredAt        *time.Time            `json:"answeredAt"`
}

// SessionView is a hydrated session as shown by a test screen.
type SessionView struct {
	ID             string                       `json:"id"`
	UserID         string                       `json:"userId"`
	TopicID        *string                      `json:"topicId"`
	TopicSlug      *string                      `json:"topicSlug"`
	TopicTitle     *string                      `json:"topicTitle"`
	Mode           practicesession.Mode         `json:"mode"`
	TotalQuestions int                          `json:"totalQuestions"`
	Settings       practicesession.TestSettings `json:"settings"`
	StartedAt      time.Time                    `json:"startedAt"`
	FinishedAt     *time.Time                   `json:"finishedAt"`
	ScoreCorrect   int                          `json:"scoreCorrect"`
	ScoreIncorrect int                          `json:"scoreIncorrect"`
	TimeLimit      int64                        `json:"timeLimitSeconds"`
	PassMark       int                          `json:"passMark"`
	Progress       practicesession.Progress     `json:"progress"`
	Result         *practicesession.Result      `json:"result,omitempty"` // set once finished
	Questions      []SessionQuestionView        `json:"questions"`
}

// TopicQuestionBank is the full question list of one topic.
type TopicQuestionBank struct {
	TopicID   string                   `json:"topicId"`
	Questions []*questionbank.Question `json:"questions"`
}

// BookmarkedQuestion pairs a bookmark with its question.
type BookmarkedQuestion struct {
	Question *questionbank.Question `json:"question"`
	SavedAt  time.Time              `json:"savedAt"`
}

// LoadSession returns the hydrated session. It fails with NotFound when the
// session or any of its questions is missing from the bank.
func (e *Engine) LoadSession(ctx context.Context, userID string, lang questionbank.Language, sessionID string) (SessionView, error) {
	bank, err := e.bank(ctx, lang)
	if err != nil {
		return SessionView{}, err
	}
	return cache.Revalidate(ctx, e.cache, cache.SessionKey(bank.Language, userID, sessionID), func(ctx context.Context) (SessionView, error) {
		s, err := e.sessions.Get(ctx, userID, sessionID)
		if isNotFound(err) {
			return SessionView{}, notFound("session", sessionID)
		}
		if err != nil {
			return SessionView{}, storageErr("read sessions", err)
		}
		return buildSessionView(bank, s)
	})
}

func buildSessionView(bank *questionbank.Bank, s *practicesession.Session) (SessionView, error) {
	view := SessionView{
		ID:             s.ID,
		UserID:         s.UserID,
		TopicID:        s.TopicID,
		Mode:           s.Mode,
		TotalQuestions: s.TotalQuestions,
		Settings:       s.Settings,
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
		ScoreCorrect:   s.ScoreCorrect,
		ScoreIncorrect: s.ScoreIncorrect,
		TimeLimit:      int64(practicesession.TimeLimit(s.Mode, len(s.Questions)).Seconds()),
		PassMark:       practicesession.PassMark(s.Mode, len(s.Questions)),
		Progress:       practicesession.ComputeProgress(s),
		Questions:      make([]SessionQuestionView, 0, len(s.Questions)),
	}
	if s.Finished() {
		r := practicesession.Evaluate(s, finishReason(s))
		view.Result = &r
	}
	if s.TopicID != nil {
		if topic, ok := bank.Topic(*s.TopicID); ok {
			view.TopicSlug = &topic.Slug
			view.TopicTitle = &topic.Title
		}
	}

	for _, sq := range s.Questions {
		q, ok := bank.Question(sq.QuestionID)
		if !ok {
			return SessionView{}, notFound("question", sq.QuestionID)
		}
		view.Questions = append(view.Questions, SessionQuestionView{
			SessionQuestionID: sq.ID,
			QuestionID:        sq.QuestionID,
			Position:          sq.Position,
			Prompt:            q.Prompt,
			ImageURL:          q.ImageURL,
			Explanation:       q.Explanation,
			Options:           q.SortedOptions(),
			SelectedOptionID:  sq.SelectedOptionID,
			IsCorrect:         sq.IsCorrect,
			AnsweredAt:        sq.AnsweredAt,
		})
	}
	return view, nil
}

// finishReason infers why a finished run ended.
func finishReason(s *practicesession.Session) practicesession.FinishReason {
	if s.FinishedAt.Sub(s.StartedAt) > practicesession.TimeLimit(s.Mode, len(s.Questions)) {
		return practicesession.FinishTimeout
	}
	if reason, ok := practicesession.ShouldStop(s); ok {
		return reason
	}
	return practicesession.FinishCompleted
}

// LoadOverview returns per-topic progress and the summary across topics.
func (e *Engine) LoadOverview(ctx context.Context, userID string, lang questionbank.Language) (questionbank.Overview, error) {
	bank, err := e.bank(ctx, lang)
	if err != nil {
		return questionbank.Overview{}, err
	}
	return cache.Revalidate(ctx, e.cache, cache.OverviewKey(bank.Language, userID), func(ctx context.Context) (questionbank.Overview, error) {
		stats, err := e.stats.Read(ctx, userID)
		if err != nil {
			return questionbank.Overview{}, storageErr("read stats", err)
		}
		return questionbank.ComputeOverview(bank.Topics(), stats), nil
	})
}

// LoadTopicDetail returns the progress of the topic with the given slug.
func (e *Engine) LoadTopicDetail(ctx context.Context, userID string, lang questionbank.Language, slug string) (questionbank.TopicProgress, error) {
	bank, err := e.bank(ctx, lang)
	if err != nil {
		return questionbank.TopicProgress{}, err
	}
	topic, ok := bank.TopicBySlug(slug)
	if !ok {
		return questionbank.TopicProgress{}, notFound("topic", slug)
	}
	return cache.Revalidate(ctx, e.cache, cache.TopicKey(bank.Language, userID, slug), func(ctx context.Context) (questionbank.TopicProgress, error) {
		stats, err := e.stats.Read(ctx, userID)
		if err != nil {
			return questionbank.TopicProgress{}, storageErr("read stats", err)
		}
		return questionbank.ComputeTopicProgress(topic, stats), nil
	})
}

// LoadTopicQuestionBank returns the questions of a topic with sorted options.
// The bank never changes at runtime, so a cached copy is served as is.
func (e *Engine) LoadTopicQuestionBank(ctx context.Context, lang questionbank.Language, topicID string) (TopicQuestionBank, error) {
	bank, err := e.bank(ctx, lang)
	if err != nil {
		return TopicQuestionBank{}, err
	}
	key := cache.TopicBankKey(bank.Language, topicID)
	cached, ok, err := cache.Peek[TopicQuestionBank](ctx, e.cache, key)
	if err != nil {
		e.logger.Warn("cache peek failed", "key", key, "error", err)
	}
	if ok && cached.TopicID == topicID && len(cached.Questions) > 0 {
		return cached, nil
	}

	if _, ok := bank.Topic(topicID); !ok {
		return TopicQuestionBank{}, notFound("topic", topicID)
	}
	questions := bank.QuestionsByTopic(topicID)
	fresh := TopicQuestionBank{TopicID: topicID, Questions: make([]*questionbank.Question, len(questions))}
	for i, q := range questions {
		c := *q
		c.Options = q.SortedOptions()
		fresh.Questions[i] = &c
	}
	if err := cache.Write(ctx, e.cache, key, fresh); err != nil {
		e.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return fresh, nil
}

// PreloadTopicQuestionBank warms the topic bank cache. Failures are ignored.
func (e *Engine) PreloadTopicQuestionBank(ctx context.Context, lang questionbank.Language, topicID string) {
	if _, err := e.LoadTopicQuestionBank(ctx, lang, topicID); err != nil {
		e.logger.Debug("topic bank preload failed", "topic_id", topicID, "error", err)
	}
}

// LoadMistakePacks groups the user's wrong questions into packs, newest first.
func (e *Engine) LoadMistakePacks(ctx context.Context, userID string, lang questionbank.Language) (questionbank.MistakePacks, error) {
	bank, err := e.bank(ctx, lang)
	if err != nil {
		return questionbank.MistakePacks{}, err
	}
	stats, err := e.stats.Read(ctx, userID)
	if err != nil {
		return questionbank.MistakePacks{}, storageErr("read stats", err)
	}
	wrong := questionbank.WrongQuestionIDs(bank, stats)
	return questionbank.MistakePacks{
		TotalWrongQuestions: len(wrong),
		Packs:               questionbank.SplitIntoPacks(wrong, questionbank.MistakePackSize),
	}, nil
}

// ToggleBookmark flips the bookmark of a question and reports the new state.
func (e *Engine) ToggleBookmark(ctx context.Context, userID, questionID string) (bool, error) {
	if questionID == "" {
		return false, &ValidationError{Field: "question_id", Message: "required"}
	}
	saved, err := e.bookmarks.Toggle(ctx, userID, questionID)
	if err != nil {
		return false, storageErr("toggle bookmark", err)
	}
	return saved, nil
}

// BookmarkedQuestionIDs lists bookmarked ids, newest first.
func (e *Engine) BookmarkedQuestionIDs(ctx context.Context, userID string) ([]string, error) {
	entries, err := e.bookmarks.List(ctx, userID)
	if err != nil {
		return nil, storageErr("list bookmarks", err)
	}
	ids := make([]string, len(entries))
	for i, b := range entries {
		ids[i] = b.QuestionID
	}
	return ids, nil
}

// BookmarkedQuestions hydrates the bookmarks; questions missing from the
// language's bank are skipped.
func (e *Engine) BookmarkedQuestions(ctx context.Context, userID string, lang questionbank.Language) ([]BookmarkedQuestion, error) {
	bank, err := e.bank(ctx, lang)
	if err != nil {
		return nil, err
	}
	entries, err := e.bookmarks.List(ctx, userID)
	if err != nil {
		return nil, storageErr("list bookmarks", err)
	}
	out := make([]BookmarkedQuestion, 0, len(entries))
	for _, b := range entries {
		q, ok := bank.Question(b.QuestionID)
		if !ok {
			continue
		}
		out = append(out, BookmarkedQuestion{Question: q, SavedAt: b.SavedAt})
	}
	return out, nil
}

// LoadSettings returns the user's test settings, with the topic's
// auto-advance override applied when slug is set.
func (e *Engine) LoadSettings(ctx context.Context, userID, slug string) (practicesession.TestSettings, error) {
	settings, err := e.settings.Load(ctx, userID, slug)
	if err != nil {
		return practicesession.DefaultSettings(), storageErr("load settings", err)
	}
	return settings, nil
}

// SaveSettings stores the global settings. With a slug only the topic's
// auto-advance override is written.
func (e *Engine) SaveSettings(ctx context.Context, userID, slug string, settings practicesession.TestSettings) error {
	var err error
	if slug != "" {
		err = e.settings.SaveTopicAutoAdvance(ctx, userID, slug, settings.AutoAdvance)
	} else {
		err = e.settings.Save(ctx, userID, settings)
	}
	return storageErr("save settings", err)
}
