package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
)

// ── Request / Response types ────────────────────────────────────────────────

type TopicResponse struct {
	ID                string  `json:"id"`
	Slug              string  `json:"slug"`
	Title             string  `json:"title"`
	Subtitle          string  `json:"subtitle"`
	Order             int     `json:"order"`
	ImageKey          *string `json:"image_key"`
	TotalQuestions    int     `json:"total_questions"`
	SeenQuestions     int     `json:"seen_questions"`
	AnsweredQuestions int     `json:"answered_questions"`
	CorrectCount      int     `json:"correct_count"`
	IncorrectCount    int     `json:"incorrect_count"`
	Completed         bool    `json:"completed"`
	ProgressPercent   int     `json:"progress_percent"`
}

type SummaryResponse struct {
	TotalTopics      int `json:"total_topics"`
	TotalQuestions   int `json:"total_questions"`
	SeenQuestions    int `json:"seen_questions"`
	NotSeenQuestions int `json:"not_seen_questions"`
	ProgressPercent  int `json:"progress_percent"`
}

type OverviewResponse struct {
	Summary SummaryResponse `json:"summary"`
	Topics  []TopicResponse `json:"topics"`
}

type OptionResponse struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
	Order     int    `json:"order"`
}

type QuestionResponse struct {
	ID          string           `json:"id"`
	TopicID     string           `json:"topic_id"`
	Prompt      string           `json:"prompt"`
	ImageURL    *string          `json:"image_url"`
	Explanation *string          `json:"explanation"`
	Options     []OptionResponse `json:"options"`
}

type TopicQuestionsResponse struct {
	TopicID   string             `json:"topic_id"`
	Questions []QuestionResponse `json:"questions"`
}

type MistakePackResponse struct {
	ID             string   `json:"id"`
	TotalQuestions int      `json:"total_questions"`
	QuestionIDs    []string `json:"question_ids"`
}

type MistakePacksResponse struct {
	TotalWrongQuestions int                   `json:"total_wrong_questions"`
	Packs               []MistakePackResponse `json:"packs"`
}

func toTopicResponse(p questionbank.TopicProgress) TopicResponse {
	return TopicResponse{
		ID:                p.ID,
		Slug:              p.Slug,
		Title:             p.Title,
		Subtitle:          p.Subtitle,
		Order:             p.Order,
		ImageKey:          p.ImageKey,
		TotalQuestions:    p.TotalQuestions,
		SeenQuestions:     p.SeenQuestions,
		AnsweredQuestions: p.AnsweredQuestions,
		CorrectCount:      p.CorrectCount,
		IncorrectCount:    p.IncorrectCount,
		Completed:         p.Completed,
		ProgressPercent:   p.ProgressPercent,
	}
}

func toOptionResponses(options []questionbank.Option) []OptionResponse {
	out := make([]OptionResponse, len(options))
	for i, o := range options {
		out[i] = OptionResponse{ID: o.ID, Label: o.Label, Text: o.Text, IsCorrect: o.IsCorrect, Order: o.Order}
	}
	return out
}

func toQuestionResponse(q *questionbank.Question) QuestionResponse {
	return QuestionResponse{
		ID:          q.ID,
		TopicID:     q.TopicID,
		Prompt:      q.Prompt,
		ImageURL:    q.ImageURL,
		Explanation: q.Explanation,
		Options:     toOptionResponses(q.SortedOptions()),
	}
}

// ── Handlers ────────────────────────────────────────────────────────────────

// GET /v1/theory/overview
func (h *Handler) getOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.engine.LoadOverview(r.Context(), userID(r), h.language(r))
	if h.handleError(w, r, err) {
		return
	}

	topics := make([]TopicResponse, len(overview.Topics))
	for i, t := range overview.Topics {
		topics[i] = toTopicResponse(t)
	}
	respondJSON(w, http.StatusOK, OverviewResponse{
		Summary: SummaryResponse{
			TotalTopics:      overview.Summary.TotalTopics,
			TotalQuestions:   overview.Summary.TotalQuestions,
			SeenQuestions:    overview.Summary.SeenQuestions,
			NotSeenQuestions: overview.Summary.NotSeenQuestions,
			ProgressPercent:  overview.Summary.ProgressPercent,
		},
		Topics: topics,
	})
}

// GET /v1/theory/topics/{topic}
func (h *Handler) getTopic(w http.ResponseWriter, r *http.Request) {
	lang := h.language(r)
	topic, err := h.engine.LoadTopicDetail(r.Context(), userID(r), lang, chi.URLParam(r, "topic"))
	if h.handleError(w, r, err) {
		return
	}

	// The topic screen is usually followed by a session on it.
	go h.engine.PreloadTopicQuestionBank(context.WithoutCancel(r.Context()), lang, topic.ID)
	respondJSON(w, http.StatusOK, map[string]TopicResponse{"topic": toTopicResponse(topic)})
}

// GET /v1/theory/topics/{topic}/questions
func (h *Handler) getTopicQuestions(w http.ResponseWriter, r *http.Request) {
	bank, err := h.engine.LoadTopicQuestionBank(r.Context(), h.language(r), chi.URLParam(r, "topic"))
	if h.handleError(w, r, err) {
		return
	}

	questions := make([]QuestionResponse, len(bank.Questions))
	for i, q := range bank.Questions {
		questions[i] = toQuestionResponse(q)
	}
	respondJSON(w, http.StatusOK, TopicQuestionsResponse{TopicID: bank.TopicID, Questions: questions})
}

// GET /v1/theory/mistakes
func (h *Handler) getMistakePacks(w http.ResponseWriter, r *http.Request) {
	packs, err := h.engine.LoadMistakePacks(r.Context(), userID(r), h.language(r))
	if h.handleError(w, r, err) {
		return
	}

	out := MistakePacksResponse{
		TotalWrongQuestions: packs.TotalWrongQuestions,
		Packs:               make([]MistakePackResponse, len(packs.Packs)),
	}
	for i, p := range packs.Packs {
		out.Packs[i] = MistakePackResponse{ID: p.ID, TotalQuestions: p.TotalQuestions, QuestionIDs: p.QuestionIDs}
	}
	respondJSON(w, http.StatusOK, out)
}
