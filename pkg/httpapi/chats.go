package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jesusr-db/sangpt/pkg/chatstore"
)

type createChatRequest struct {
	ProjectID string `json:"project_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

func (s *Service) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider != "" {
		if _, err := s.providers.Pick(req.Provider); err != nil {
			writeError(w, http.StatusBadRequest, "unknown provider")
			return
		}
	}
	if req.ProjectID != "" {
		_, ok, err := s.store.GetProject(r.Context(), req.ProjectID)
		if err != nil {
			s.log.Error().Err(err).Msg("get project failed")
			writeError(w, http.StatusInternalServerError, "storage failure")
			return
		}
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown project")
			return
		}
	}
	chat := chatstore.Chat{
		ID:        uuid.NewString(),
		ProjectID: strings.TrimSpace(req.ProjectID),
		Title:     strings.TrimSpace(req.Title),
		Provider:  strings.TrimSpace(req.Provider),
	}
	if err := s.store.CreateChat(r.Context(), chat); err != nil {
		s.log.Error().Err(err).Msg("create chat failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	created, _, err := s.store.GetChat(r.Context(), chat.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("reload chat failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Service) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.ListChats(r.Context(), chatstore.ChatQuery{
		ProjectID: r.URL.Query().Get("project_id"),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("list chats failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Service) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, ok, err := s.store.GetChat(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		s.log.Error().Err(err).Msg("get chat failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown chat")
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Service) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ListMessages(r.Context(), chatstore.MessageQuery{
		ChatID: chi.URLParam(r, "chatID"),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("list messages failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Service) handleListProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": s.providers.Names(),
		"default":   s.providers.DefaultName(),
	})
}
