package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/remaimber-it/drivetheory/internal/auth"
)

type RouterOptions struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// NewRouter mounts every route. All /v1/theory routes need a bearer token.
func NewRouter(h *Handler, verifier *auth.Verifier, opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP, Logging(h.logger), middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(CORS(opts.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1/theory", func(tr chi.Router) {
		tr.Use(auth.Middleware(verifier, h.unauthorized))

		tr.Get("/overview", h.getOverview)
		tr.Get("/topics/{topic}", h.getTopic)
		tr.Get("/topics/{topic}/questions", h.getTopicQuestions)
		tr.Get("/mistakes", h.getMistakePacks)

		tr.Route("/sessions", func(sr chi.Router) {
			sr.Post("/", h.createTopicSession)
			sr.Post("/mock-exam", h.createMockExam)
			sr.Post("/marathon", h.createMarathon)
			sr.Post("/mistakes", h.createMistakeSession)

			sr.Get("/{sessionID}", h.getSession)
			sr.Post("/{sessionID}/answers", h.submitAnswer)
			sr.Post("/{sessionID}/complete", h.completeSession)
			sr.Post("/{sessionID}/finalize", h.finalizeSession)
			sr.Post("/{sessionID}/finish", h.finishSession)
		})

		tr.Get("/bookmarks", h.listBookmarks)
		tr.Post("/bookmarks/{questionID}/toggle", h.toggleBookmark)

		tr.Get("/settings", h.getSettings)
		tr.Put("/settings", h.putSettings)

		tr.Post("/sync", h.syncNow)
	})

	return r
}
