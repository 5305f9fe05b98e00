package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/remaimber-it/drivetheory/internal/auth"
	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
	"github.com/remaimber-it/drivetheory/internal/service"
	"github.com/remaimber-it/drivetheory/internal/store"
)

// Handler holds all dependencies needed by HTTP handlers.
// Instead of relying on package-level globals, every handler method
// receives its dependencies through this struct.
type Handler struct {
	engine      *service.Engine
	finalizer   *service.Finalizer
	sync        *service.SyncRunner
	defaultLang questionbank.Language
	logger      *slog.Logger
}

// NewHandler creates a Handler with the given dependencies.
func NewHandler(engine *service.Engine, finalizer *service.Finalizer, sync *service.SyncRunner, defaultLang questionbank.Language, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:      engine,
		finalizer:   finalizer,
		sync:        sync,
		defaultLang: questionbank.ParseLanguage(string(defaultLang), questionbank.DefaultLanguage),
		logger:      logger,
	}
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Reason string `json:"reason,omitempty"`
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// decodeJSON reads the request body into v. On failure it writes a 400 and
// returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// handleError maps engine errors onto HTTP responses. Returns true if an
// error was handled (caller should return).
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}

	var pool *service.PoolError
	switch {
	case errors.As(err, &pool):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: pool.Message, Code: "empty_pool", Reason: pool.Reason})
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrInvalid):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFrom(r.Context()),
			"error", err,
		)
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
	return true
}

// unauthorized is the error callback of the auth middleware.
func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Debug("rejected token", "path", r.URL.Path, "error", err)
	respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
}

// userID returns the authenticated user. The auth middleware guarantees it
// on every /v1 route.
func userID(r *http.Request) string {
	id, _ := auth.UserID(r.Context())
	return id
}

// language resolves ?lang= first, then the first Accept-Language tag.
func (h *Handler) language(r *http.Request) questionbank.Language {
	if v := r.URL.Query().Get("lang"); v != "" {
		return questionbank.ParseLanguage(v, h.defaultLang)
	}
	header := r.Header.Get("Accept-Language")
	tag, _, _ := strings.Cut(header, ",")
	tag, _, _ = strings.Cut(tag, ";")
	return questionbank.ParseLanguage(tag, h.defaultLang)
}
