package service

import (
	"context"
	"errors"
	"strings"

	practicesession "github.com/remaimber-it/drivetheory/internal/domain/practice_session"
	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
	"github.com/remaimber-it/drivetheory/internal/id"
	"github.com/remaimber-it/drivetheory/internal/store"
)

// TopicSessionRequest creates a session over one topic. QuestionLimit <= 0
// means the whole pool. AvailableQuestionIDs narrows the pool, in its own
// order, when it overlaps the topic; a stale list that does not overlap is
// ignored.
type TopicSessionRequest struct {
	UserID               string
	Language             questionbank.Language
	TopicID              string
	Mode                 practicesession.Mode
	Settings             practicesession.TestSettings
	QuestionLimit        int
	AvailableQuestionIDs []string
}

// FullBankSessionRequest creates a mock exam or marathon. QuestionLimit <= 0
// uses the mode default.
type FullBankSessionRequest struct {
	UserID        string
	Language      questionbank.Language
	QuestionLimit int
	Settings      practicesession.TestSettings
}

type MistakeSessionRequest struct {
	UserID      string
	Language    questionbank.Language
	QuestionIDs []string
	Settings    practicesession.TestSettings
}

// CreateTopicPracticeSession builds a session from a topic. TopicID may also
// be the topic slug.
func (e *Engine) CreateTopicPracticeSession(ctx context.Context, req TopicSessionRequest) (*practicesession.Session, error) {
	mode := req.Mode
	if mode == "" {
		mode = practicesession.ModeTopicPractice
	}
	if !mode.Valid() {
		return nil, &ValidationError{Field: "mode", Message: "unknown mode " + string(mode)}
	}

	bank, err := e.bank(ctx, req.Language)
	if err != nil {
		return nil, err
	}
	topic, err := findTopic(bank, req.TopicID)
	if err != nil {
		return nil, err
	}

	pool := topic.QuestionIDs
	if narrowed := narrowPool(pool, req.AvailableQuestionIDs); len(narrowed) > 0 {
		pool = narrowed
	}
	if len(pool) == 0 {
		return nil, errNoQuestions
	}

	unlock := e.locks.lock(req.UserID)
	defer unlock()

	if req.Settings.ShowMistakesOnly {
		stats, err := e.stats.Read(ctx, req.UserID)
		if err != nil {
			return nil, storageErr("read stats", err)
		}
		var mistakes []string
		for _, qid := range pool {
			if st, ok := stats[qid]; ok && st.IsMistake() {
				mistakes = append(mistakes, qid)
			}
		}
		if len(mistakes) == 0 {
			return nil, errNoMistakes
		}
		pool = mistakes
	}
	if req.Settings.ShuffleQuestions {
		pool = practicesession.Shuffle(e.rng, pool)
	}
	if req.QuestionLimit > 0 && req.QuestionLimit < len(pool) {
		pool = pool[:req.QuestionLimit]
	}
	if len(pool) == 0 {
		return nil, errNoSelection
	}

	topicID := topic.ID
	return e.persistNew(ctx, req.UserID, &topicID, mode, req.Settings, pool)
}

// TopicSlug resolves a topic id or slug to the topic's slug.
func (e *Engine) TopicSlug(ctx context.Context, lang questionbank.Language, topicID string) (string, error) {
	bank, err := e.bank(ctx, lang)
	if err != nil {
		return "", err
	}
	topic, err := findTopic(bank, topicID)
	if err != nil {
		return "", err
	}
	return topic.Slug, nil
}

func findTopic(bank *questionbank.Bank, idOrSlug string) (questionbank.Topic, error) {
	if topic, ok := bank.Topic(idOrSlug); ok {
		return topic, nil
	}
	if topic, ok := bank.TopicBySlug(idOrSlug); ok {
		return topic, nil
	}
	return questionbank.Topic{}, notFound("topic", idOrSlug)
}

// narrowPool keeps the hinted ids that belong to pool, in hint order and
// without duplicates.
func narrowPool(pool, hint []string) []string {
	if len(hint) == 0 {
		return nil
	}
	member := make(map[string]bool, len(pool))
	for _, qid := range pool {
		member[qid] = true
	}
	var out []string
	for _, qid := range hint {
		qid = strings.TrimSpace(qid)
		if member[qid] {
			out = append(out, qid)
			member[qid] = false
		}
	}
	return out
}

// CreateMockExamSession draws from the whole bank, avoiding questions served
// in recent mock exams.
func (e *Engine) CreateMockExamSession(ctx context.Context, req FullBankSessionRequest) (*practicesession.Session, error) {
	return e.createFullBank(ctx, req, practicesession.ModeMockExam, store.HistoryMock, practicesession.MockExamQuestions)
}

// CreateMarathonSession is a mock exam with its own recency history and a
// larger default size.
func (e *Engine) CreateMarathonSession(ctx context.Context, req FullBankSessionRequest) (*practicesession.Session, error) {
	return e.createFullBank(ctx, req, practicesession.ModeMarathon, store.HistoryMarathon, practicesession.MarathonDefaultQuestions)
}

func (e *Engine) createFullBank(ctx context.Context, req FullBankSessionRequest, mode practicesession.Mode, scope store.HistoryScope, defaultLimit int) (*practicesession.Session, error) {
	bank, err := e.bank(ctx, req.Language)
	if err != nil {
		return nil, err
	}
	all := bank.AllQuestionIDs()
	if len(all) == 0 {
		return nil, errNoQuestions
	}
	limit := req.QuestionLimit
	if limit <= 0 {
		limit = defaultLimit
	}

	unlock := e.locks.lock(req.UserID)
	defer unlock()

	recent, err := e.history.Read(ctx, scope, bank.Language, req.UserID)
	if err != nil {
		return nil, storageErr("read history", err)
	}
	selected := practicesession.SelectAvoidingRecent(e.rng, all, limit, recent)
	if len(selected) == 0 {
		return nil, errNoSelection
	}

	s, err := e.persistNew(ctx, req.UserID, nil, mode, req.Settings.ForFullBank(), selected)
	if err != nil {
		return nil, err
	}

	next := practicesession.NextHistory(recent, selected, practicesession.HistoryCap(len(all), len(selected)))
	if err := e.history.Write(ctx, scope, bank.Language, req.UserID, next); err != nil {
		e.logger.Warn("history update failed",
			"user_id", req.UserID,
			"scope", scope,
			"error", err,
		)
	}
	return s, nil
}

// CreateMistakePracticeSession builds a session from previously missed
// questions. Ids missing from the current bank are dropped.
func (e *Engine) CreateMistakePracticeSession(ctx context.Context, req MistakeSessionRequest) (*practicesession.Session, error) {
	bank, err := e.bank(ctx, req.Language)
	if err != nil {
		return nil, err
	}

	var pool []string
	for _, qid := range practicesession.DedupeKeepLatest(req.QuestionIDs) {
		if bank.Has(qid) {
			pool = append(pool, qid)
		}
	}
	if len(pool) == 0 {
		return nil, errNoMistakes
	}
	if req.Settings.ShuffleQuestions {
		pool = practicesession.Shuffle(e.rng, pool)
	}

	unlock := e.locks.lock(req.UserID)
	defer unlock()
	return e.persistNew(ctx, req.UserID, nil, practicesession.ModeMistakesPractice, req.Settings.ForFullBank(), pool)
}

// persistNew must be called with the user lock held.
func (e *Engine) persistNew(ctx context.Context, userID string, topicID *string, mode practicesession.Mode, settings practicesession.TestSettings, questionIDs []string) (*practicesession.Session, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Message: "required"}
	}
	now := e.clock()
	s := practicesession.New(id.SessionID(now), userID, topicID, mode, settings, questionIDs, now)

	sessions, err := e.sessions.Read(ctx, userID)
	if err != nil {
		return nil, storageErr("read sessions", err)
	}
	sessions[s.ID] = s
	if err := e.sessions.Write(ctx, userID, sessions); err != nil {
		return nil, storageErr("write sessions", err)
	}

	e.logger.Info("session created",
		"user_id", userID,
		"session_id", s.ID,
		"mode", mode,
		"questions", s.TotalQuestions,
	)
	return s.Clone(), nil
}

// loadSession reads one session, mapping absence to a NotFoundError.
func (e *Engine) loadSession(ctx context.Context, userID, sessionID string) (map[string]*practicesession.Session, *practicesession.Session, error) {
	sessions, err := e.sessions.Read(ctx, userID)
	if err != nil {
		return nil, nil, storageErr("read sessions", err)
	}
	s, ok := sessions[sessionID]
	if !ok {
		return nil, nil, notFound("session", sessionID)
	}
	return sessions, s, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
