package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// ── Request / Response types ────────────────────────────────────────────────

type BookmarkResponse struct {
	Question QuestionResponse `json:"question"`
	SavedAt  time.Time        `json:"saved_at"`
}

type BookmarksResponse struct {
	QuestionIDs []string           `json:"question_ids"`
	Bookmarks   []BookmarkResponse `json:"bookmarks"`
}

type ToggleBookmarkResponse struct {
	QuestionID string `json:"question_id"`
	Saved      bool   `json:"saved"`
}

type SyncResponse struct {
	Synced  int `json:"synced"`
	Pending int `json:"pending"`
}

// ── Handlers ────────────────────────────────────────────────────────────────

// GET /v1/theory/bookmarks
func (h *Handler) listBookmarks(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	ids, err := h.engine.BookmarkedQuestionIDs(r.Context(), uid)
	if h.handleError(w, r, err) {
		return
	}
	entries, err := h.engine.BookmarkedQuestions(r.Context(), uid, h.language(r))
	if h.handleError(w, r, err) {
		return
	}

	out := BookmarksResponse{QuestionIDs: ids, Bookmarks: make([]BookmarkResponse, len(entries))}
	for i, b := range entries {
		out.Bookmarks[i] = BookmarkResponse{Question: toQuestionResponse(b.Question), SavedAt: b.SavedAt}
	}
	respondJSON(w, http.StatusOK, out)
}

// POST /v1/theory/bookmarks/{questionID}/toggle
func (h *Handler) toggleBookmark(w http.ResponseWriter, r *http.Request) {
	qid := chi.URLParam(r, "questionID")
	saved, err := h.engine.ToggleBookmark(r.Context(), userID(r), qid)
	if h.handleError(w, r, err) {
		return
	}
	respondJSON(w, http.StatusOK, ToggleBookmarkResponse{QuestionID: qid, Saved: saved})
}

// GET /v1/theory/settings?topic={slug}
func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.engine.LoadSettings(r.Context(), userID(r), r.URL.Query().Get("topic"))
	if h.handleError(w, r, err) {
		return
	}
	respondJSON(w, http.StatusOK, toSettingsResponse(settings))
}

// PUT /v1/theory/settings?topic={slug}
//
// With a topic only auto_advance is stored, as that topic's override.
func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	uid := userID(r)
	slug := r.URL.Query().Get("topic")
	settings, err := h.settingsFor(r.Context(), uid, slug, &req)
	if h.handleError(w, r, err) {
		return
	}
	if h.handleError(w, r, h.engine.SaveSettings(r.Context(), uid, slug, settings)) {
		return
	}
	respondJSON(w, http.StatusOK, toSettingsResponse(settings))
}

// POST /v1/theory/sync
func (h *Handler) syncNow(w http.ResponseWriter, r *http.Request) {
	res, err := h.sync.FlushUser(r.Context(), userID(r))
	if h.handleError(w, r, err) {
		return
	}
	respondJSON(w, http.StatusOK, SyncResponse{Synced: res.Synced, Pending: res.Pending})
}
