package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jesusr-db/sangpt/pkg/chatstore"
)

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (s *Service) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "missing project name")
		return
	}
	p := chatstore.Project{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
	}
	if err := s.store.CreateProject(r.Context(), p); err != nil {
		s.log.Error().Err(err).Msg("create project failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	created, _, err := s.store.GetProject(r.Context(), p.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("reload project failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Service) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context(), 0)
	if err != nil {
		s.log.Error().Err(err).Msg("list projects failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Service) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, ok, err := s.store.GetProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.log.Error().Err(err).Msg("get project failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown project")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
