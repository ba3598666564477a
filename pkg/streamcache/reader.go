package streamcache

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
)

// CopyBufferSize is the buffer size callers should use when piping a Reader
// into an HTTP response. It trades flush frequency against per-connection
// overhead and is deliberately independent of chunk size.
const CopyBufferSize = 16 * 1024

// ErrReaderClosed is returned by Read after Close detached the reader.
var ErrReaderClosed = errors.New("streamcache: reader closed")

// Reader adapts a ChunkReader into an io.ReadCloser suitable for io.Copy
// into an http.ResponseWriter. Each Read call is the demand signal: the next
// chunk is pulled only once the consumer asks for more bytes, so a sink that
// stalls mid-copy stalls the pull as well. At most one partially-consumed
// chunk is held between calls.
type Reader struct {
	ctx    context.Context
	cancel context.CancelFunc
	chunks *ChunkReader

	rest   []byte
	err    error
	closed atomic.Bool
}

// NewReader wraps chunks in a pull-based byte reader. The context bounds
// every blocking wait; cancelling it aborts an in-flight Read.
func NewReader(ctx context.Context, chunks *ChunkReader) *Reader {
	if ctx == nil {
		ctx = context.Background()
	}
	rctx, cancel := context.WithCancel(ctx)
	return &Reader{ctx: rctx, cancel: cancel, chunks: chunks}
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, ErrReaderClosed
	}
	if r.err != nil {
		return 0, r.err
	}
	for len(r.rest) == 0 {
		chunk, err := r.chunks.Next(r.ctx)
		// A Close racing the pull cancels r.ctx; report it as a closed
		// reader rather than a bare context error.
		if r.closed.Load() {
			return 0, ErrReaderClosed
		}
		if err != nil {
			r.err = err
			return 0, err
		}
		r.rest = chunk
	}
	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}

// Close detaches this reader only; the underlying stream and any other
// readers are unaffected. Safe to call concurrently with a blocked Read.
func (r *Reader) Close() error {
	if r == nil {
		return nil
	}
	r.closed.Store(true)
	r.cancel()
	return nil
}
