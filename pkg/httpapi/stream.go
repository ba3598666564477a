package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jesusr-db/sangpt/pkg/chatstore"
	"github.com/jesusr-db/sangpt/pkg/eventbus"
	"github.com/jesusr-db/sangpt/pkg/provider"
	"github.com/jesusr-db/sangpt/pkg/streamcache"
)

const (
	// HeaderStreamCursor carries the client's resume cursor: the number of
	// chunks it already received. Absent means "from the start".
	HeaderStreamCursor = "X-Stream-Cursor"
	// HeaderStreamID echoes the stream id on every streamed response so
	// clients can resume by raw id if they want to.
	HeaderStreamID = "X-Stream-Id"
)

type submitMessageRequest struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider,omitempty"`
}

// handleSubmitMessage starts a new turn: it persists the user message,
// invalidates the previous turn's active-stream pointer, registers a fresh
// stream fed by the generation, and streams the response from cursor 0.
func (s *Service) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	chat, ok, err := s.store.GetChat(r.Context(), chatID)
	if err != nil {
		s.log.Error().Err(err).Msg("get chat failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown chat")
		return
	}

	var req submitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "missing prompt")
		return
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = chat.Provider
	}
	engine, err := s.providers.Pick(providerName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}

	history, err := s.store.ListMessages(r.Context(), chatstore.MessageQuery{ChatID: chatID})
	if err != nil {
		s.log.Error().Err(err).Msg("load history failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	userMsg := chatstore.Message{
		ID:      uuid.NewString(),
		ChatID:  chatID,
		Role:    "user",
		Content: req.Prompt,
	}
	if err := s.store.AppendMessage(r.Context(), userMsg); err != nil {
		s.log.Error().Err(err).Msg("persist user message failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	streamID := uuid.NewString()
	turnID := uuid.NewString()

	// The old turn must stop being resumable before the new one exists.
	s.streams.Invalidate(chatID)

	// Subscribe on the base context: the subscription must outlive this
	// request so late resumers can still be fed.
	src, err := eventbus.NewSubscriberSource(s.baseCtx, s.bus.Subscriber, eventbus.TopicForStream(streamID))
	if err != nil {
		s.log.Error().Err(err).Msg("subscribe turn topic failed")
		writeError(w, http.StatusInternalServerError, "stream setup failure")
		return
	}
	if _, err := s.streams.Register(streamID, chatID, src); err != nil {
		_ = src.Close()
		s.log.Error().Err(err).Msg("register stream failed")
		writeError(w, http.StatusInternalServerError, "stream setup failure")
		return
	}

	genReq := provider.Request{
		ChatID:  chatID,
		TurnID:  turnID,
		Prompt:  req.Prompt,
		History: historyToTurns(history),
	}
	go s.runGeneration(engine, genReq, streamID)

	rd, ok := s.streams.OpenReader(r.Context(), streamID, 0)
	if !ok {
		// Swept between Register and here; only possible with a tiny TTL.
		writeError(w, http.StatusInternalServerError, "stream setup failure")
		return
	}
	s.pipeSSE(w, rd, streamID)
}

// handleResumeStream reconnects a client to the conversation's current turn,
// replaying from the cursor it supplies. Nothing to resume is a 204, not an
// error.
func (s *Service) handleResumeStream(w http.ResponseWriter, r *http.Request) {
	cursor, err := cursorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	chatID := chi.URLParam(r, "chatID")
	streamID, ok := s.streams.ActiveStreamFor(chatID)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	rd, ok := s.streams.OpenReader(r.Context(), streamID, cursor)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.pipeSSE(w, rd, streamID)
}

// handleOpenStream resumes by raw stream id. A superseded turn stays
// addressable this way until the TTL sweep evicts it.
func (s *Service) handleOpenStream(w http.ResponseWriter, r *http.Request) {
	cursor, err := cursorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	streamID := chi.URLParam(r, "streamID")
	rd, ok := s.streams.OpenReader(r.Context(), streamID, cursor)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown or expired stream")
		return
	}
	s.pipeSSE(w, rd, streamID)
}

func cursorFromRequest(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.Header.Get(HeaderStreamCursor))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errInvalidCursor
	}
	return n, nil
}

var errInvalidCursor = errors.New("invalid " + HeaderStreamCursor + " header")

// pipeSSE streams the reader verbatim into the response. io.CopyBuffer's
// read-then-write loop is the demand signal the stream cache needs: the next
// chunk is pulled only after the previous write (and flush) finished, so a
// slow client throttles its own reader and nothing else.
func (s *Service) pipeSSE(w http.ResponseWriter, rd *streamcache.Reader, streamID string) {
	defer func() { _ = rd.Close() }()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(HeaderStreamID, streamID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	buf := make([]byte, streamcache.CopyBufferSize)
	if _, err := io.CopyBuffer(&flushWriter{w: w, f: flusher}, rd, buf); err != nil {
		// Client went away or the entry was evicted mid-read; either way the
		// stream itself is untouched and other readers are unaffected.
		s.log.Debug().Err(err).Str("stream_id", streamID).Msg("stream copy ended early")
	}
}

type flushWriter struct {
	w io.Writer
	f http.Flusher
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if n > 0 {
		fw.f.Flush()
	}
	return n, err
}

func historyToTurns(msgs []chatstore.Message) []provider.Turn {
	if len(msgs) == 0 {
		return nil
	}
	turns := make([]provider.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, provider.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}
