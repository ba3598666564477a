// Package httpapi mounts the chat backend's HTTP surface: project/chat/file
// CRUD, prompt submission with a streamed SSE response, and resumption
// endpoints backed by the stream cache.
package httpapi

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jesusr-db/sangpt/pkg/chatstore"
	"github.com/jesusr-db/sangpt/pkg/eventbus"
	"github.com/jesusr-db/sangpt/pkg/provider"
	"github.com/jesusr-db/sangpt/pkg/streamcache"
)

// Options wires a Service together. Everything is injected; the service owns
// no global state.
type Options struct {
	// BaseCtx bounds generation goroutines and transport subscriptions so a
	// disconnecting client never cancels the upstream generation.
	BaseCtx        context.Context
	Store          chatstore.Store
	Providers      *provider.Registry
	Bus            *eventbus.Bus
	Streams        *streamcache.Registry
	UploadsDir     string
	MaxUploadBytes int64
}

// Service implements the HTTP handlers.
type Service struct {
	baseCtx        context.Context
	store          chatstore.Store
	providers      *provider.Registry
	bus            *eventbus.Bus
	streams        *streamcache.Registry
	uploadsDir     string
	maxUploadBytes int64
	log            zerolog.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.BaseCtx == nil {
		return nil, errors.New("httpapi: base context is nil")
	}
	if opts.Store == nil {
		return nil, errors.New("httpapi: store is nil")
	}
	if opts.Providers == nil {
		return nil, errors.New("httpapi: provider registry is nil")
	}
	if opts.Bus == nil {
		return nil, errors.New("httpapi: event bus is nil")
	}
	if opts.Streams == nil {
		return nil, errors.New("httpapi: stream registry is nil")
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	uploadsDir := strings.TrimSpace(opts.UploadsDir)
	if uploadsDir == "" {
		uploadsDir = "uploads"
	}
	return &Service{
		baseCtx:        opts.BaseCtx,
		store:          opts.Store,
		providers:      opts.Providers,
		bus:            opts.Bus,
		streams:        opts.Streams,
		uploadsDir:     uploadsDir,
		maxUploadBytes: maxUpload,
		log:            log.With().Str("component", "httpapi").Logger(),
	}, nil
}

// runGeneration drives one engine invocation, publishing each event to the
// turn topic as a pre-framed SSE chunk and persisting the assistant message
// before the terminal frame goes out. It runs on the service base context:
// readers come and go, the generation does not.
func (s *Service) runGeneration(engine provider.Engine, req provider.Request, streamID string) {
	topic := eventbus.TopicForStream(streamID)
	lg := s.log.With().Str("stream_id", streamID).Str("conv_id", req.ChatID).Str("provider", engine.Name()).Logger()

	seq := 0
	publish := func(ev provider.Event, eos bool) error {
		frame, err := provider.EncodeSSE(ev, seq)
		if err != nil {
			return err
		}
		seq++
		return eventbus.Publish(s.bus.Publisher, topic, frame, eos)
	}

	var full strings.Builder
	genErr := engine.Generate(s.baseCtx, req, func(ev provider.Event) error {
		if ev.Type == provider.EventDelta {
			full.WriteString(ev.Text)
		}
		return publish(ev, false)
	})
	if genErr != nil {
		lg.Warn().Err(genErr).Msg("generation failed")
		if err := publish(provider.Event{Type: provider.EventError, TurnID: req.TurnID, Provider: engine.Name(), Message: "generation failed"}, false); err != nil {
			lg.Warn().Err(err).Msg("publish error frame failed")
		}
	}

	if full.Len() > 0 {
		msg := chatstore.Message{
			ID:      req.TurnID,
			ChatID:  req.ChatID,
			Role:    "assistant",
			Content: full.String(),
		}
		if err := s.store.AppendMessage(s.baseCtx, msg); err != nil {
			lg.Error().Err(err).Msg("persist assistant message failed")
		}
		if err := s.store.TouchChat(s.baseCtx, req.ChatID, 0); err != nil {
			lg.Warn().Err(err).Msg("touch chat failed")
		}
	}

	if err := publish(provider.Event{Type: provider.EventDone, TurnID: req.TurnID, Provider: engine.Name()}, true); err != nil {
		lg.Warn().Err(err).Msg("publish done frame failed")
	}
	lg.Debug().Int("frames", seq).Msg("generation finished")
}
