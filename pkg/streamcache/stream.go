package streamcache

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Source yields generation output one chunk at a time. Next returns io.EOF
// once the source is exhausted; any other error ends the stream early.
// A Source is single-consumption: only the stream's drain goroutine calls Next.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) ([]byte, error)

func (f SourceFunc) Next(ctx context.Context) ([]byte, error) { return f(ctx) }

// StreamOptions configures a Stream at construction time.
type StreamOptions struct {
	// OnActivity is invoked after every chunk append and every reader pull.
	// The registry uses it to refresh last-accessed timestamps.
	OnActivity func()
	// Log overrides the package logger for drain diagnostics.
	Log *zerolog.Logger
}

// Stream buffers one source's chunks into an append-only sequence that any
// number of cursor-addressable readers can replay concurrently. The drain
// goroutine started by NewStream is the only writer; it keeps consuming the
// source regardless of reader speed, so memory is bounded by full-response
// size, not by consumer demand.
type Stream struct {
	mu     sync.Mutex
	chunks [][]byte
	done   bool
	notify chan struct{}

	srcCloser  io.Closer
	onActivity func()
	log        zerolog.Logger
}

// NewStream wraps src and immediately starts draining it in the background.
// The context bounds the drain, not any particular reader.
func NewStream(ctx context.Context, src Source, opts StreamOptions) *Stream {
	if ctx == nil {
		ctx = context.Background()
	}
	lg := log.With().Str("component", "streamcache").Logger()
	if opts.Log != nil {
		lg = *opts.Log
	}
	s := &Stream{
		notify:     make(chan struct{}),
		onActivity: opts.OnActivity,
		log:        lg,
	}
	if c, ok := src.(io.Closer); ok {
		s.srcCloser = c
	}
	go s.drain(ctx, src)
	return s
}

func (s *Stream) drain(ctx context.Context, src Source) {
	if src == nil {
		s.Close()
		return
	}
	for {
		chunk, err := src.Next(ctx)
		if err != nil {
			// Non-EOF source failures are logged and the stream is marked
			// complete; readers observe a clean early end-of-stream with no
			// error indicator.
			if err != io.EOF {
				s.log.Warn().Err(err).Msg("stream source failed, truncating stream")
			}
			s.Close()
			return
		}
		s.append(chunk)
	}
}

func (s *Stream) append(chunk []byte) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.chunks = append(s.chunks, chunk)
	notify := s.notify
	s.notify = make(chan struct{})
	s.mu.Unlock()
	close(notify)
	if s.onActivity != nil {
		s.onActivity()
	}
}

// Close marks the stream complete, wakes every blocked reader and releases
// the source when it is closable, so an evicted stream does not keep its
// transport subscription alive. It is idempotent; chunks already buffered
// stay readable.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	notify := s.notify
	s.mu.Unlock()
	close(notify)
	if s.srcCloser != nil {
		if err := s.srcCloser.Close(); err != nil {
			s.log.Debug().Err(err).Msg("source close failed")
		}
	}
}

// Len reports how many chunks have been buffered so far.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// Complete reports whether the drain has finished (or the stream was closed).
func (s *Stream) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// ReaderAt returns an independent cursor reader positioned at cursor.
// Cursors below zero are clamped to the start. A new call with the same
// cursor always reproduces the same subsequence.
func (s *Stream) ReaderAt(cursor int) *ChunkReader {
	if cursor < 0 {
		cursor = 0
	}
	return &ChunkReader{stream: s, cursor: cursor}
}

// ChunkReader iterates one reader's view of the chunk sequence. It is
// single-pass and not safe for concurrent use; open one per consumer.
type ChunkReader struct {
	stream *Stream
	cursor int
}

// Next yields the chunk at the reader's cursor and advances it, blocking
// while the reader is caught up and the stream is still draining. It returns
// io.EOF once the stream is complete and every buffered chunk was consumed,
// or ctx.Err() if the wait is abandoned.
func (r *ChunkReader) Next(ctx context.Context) ([]byte, error) {
	if r == nil || r.stream == nil {
		return nil, io.EOF
	}
	for {
		r.stream.mu.Lock()
		if r.cursor < len(r.stream.chunks) {
			chunk := r.stream.chunks[r.cursor]
			r.cursor++
			r.stream.mu.Unlock()
			if r.stream.onActivity != nil {
				r.stream.onActivity()
			}
			return chunk, nil
		}
		done := r.stream.done
		notify := r.stream.notify
		r.stream.mu.Unlock()
		if done {
			return nil, io.EOF
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notify:
		}
	}
}

// Cursor reports the reader's next position in the chunk sequence.
func (r *ChunkReader) Cursor() int {
	if r == nil {
		return 0
	}
	return r.cursor
}
