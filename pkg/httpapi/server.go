package httpapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jesusr-db/sangpt/pkg/streamcache"
)

// Server binds the service routes to an http.Server and drives the stream
// registry's sweep loop alongside it.
type Server struct {
	svc             *Service
	streams         *streamcache.Registry
	httpSrv         *http.Server
	shutdownTimeout time.Duration
}

// ServerOptions configures NewServer.
type ServerOptions struct {
	Addr            string
	ShutdownTimeout time.Duration
}

func NewServer(svc *Service, streams *streamcache.Registry, opts ServerOptions) (*Server, error) {
	if svc == nil {
		return nil, errors.New("httpapi: service is nil")
	}
	if streams == nil {
		return nil, errors.New("httpapi: stream registry is nil")
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}
	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		svc:     svc,
		streams: streams,
		httpSrv: &http.Server{
			Addr:    addr,
			Handler: svc.Routes(),
			// Streaming responses have no deadline; only cap header reads.
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: timeout,
	}, nil
}

// Run serves until ctx is cancelled or an interrupt arrives, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	if s == nil || s.svc == nil || s.httpSrv == nil {
		return errors.New("server is not initialized")
	}
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	s.streams.StartSweepLoop(srvCtx)

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()
		shutdownBase := context.WithoutCancel(ctx)
		shutdownCtx, cancel := context.WithTimeout(shutdownBase, s.shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting sangpt server")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}
