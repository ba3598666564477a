package httpapi

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jesusr-db/sangpt/pkg/chatstore"
)

// handleUploadFile stores one multipart file under the uploads directory and
// records its metadata. Content extraction is a separate concern and lives
// outside this service.
func (s *Service) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	_, ok, err := s.store.GetChat(r.Context(), chatID)
	if err != nil {
		s.log.Error().Err(err).Msg("get chat failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown chat")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	src, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer func() { _ = src.Close() }()

	id := uuid.NewString()
	if err := os.MkdirAll(s.uploadsDir, 0o755); err != nil {
		s.log.Error().Err(err).Msg("create uploads dir failed")
		writeError(w, http.StatusInternalServerError, "upload failure")
		return
	}
	path := filepath.Join(s.uploadsDir, id)
	dst, err := os.Create(path)
	if err != nil {
		s.log.Error().Err(err).Msg("create upload file failed")
		writeError(w, http.StatusInternalServerError, "upload failure")
		return
	}
	size, err := io.Copy(dst, src)
	closeErr := dst.Close()
	if err != nil || closeErr != nil {
		_ = os.Remove(path)
		s.log.Error().AnErr("copy", err).AnErr("close", closeErr).Msg("write upload failed")
		writeError(w, http.StatusInternalServerError, "upload failure")
		return
	}

	up := chatstore.Upload{
		ID:          id,
		ChatID:      chatID,
		Name:        hdr.Filename,
		Path:        path,
		Size:        size,
		ContentType: hdr.Header.Get("Content-Type"),
	}
	if err := s.store.PutUpload(r.Context(), up); err != nil {
		_ = os.Remove(path)
		s.log.Error().Err(err).Msg("persist upload failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusCreated, up)
}

func (s *Service) handleListFiles(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListUploads(r.Context(), chi.URLParam(r, "chatID"), 0)
	if err != nil {
		s.log.Error().Err(err).Msg("list uploads failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, items)
}
