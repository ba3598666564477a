package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes assembles the router. Applications mount this wherever they like;
// the service itself does not listen.
func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/providers", s.handleListProviders)

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", s.handleCreateProject)
			r.Get("/", s.handleListProjects)
			r.Get("/{projectID}", s.handleGetProject)
		})

		r.Route("/chats", func(r chi.Router) {
			r.Post("/", s.handleCreateChat)
			r.Get("/", s.handleListChats)
			r.Route("/{chatID}", func(r chi.Router) {
				r.Get("/", s.handleGetChat)
				r.Get("/messages", s.handleListMessages)
				r.Post("/messages", s.handleSubmitMessage)
				r.Get("/stream", s.handleResumeStream)
				r.Post("/files", s.handleUploadFile)
				r.Get("/files", s.handleListFiles)
			})
		})

		r.Get("/streams/{streamID}", s.handleOpenStream)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
