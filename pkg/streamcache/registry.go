package streamcache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTTL is how long an entry survives without chunk arrivals or reads.
	DefaultTTL = 5 * time.Minute
	// DefaultSweepInterval is how often the TTL sweep runs.
	DefaultSweepInterval = time.Minute
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// BaseCtx bounds every drain goroutine the registry starts. Required.
	BaseCtx context.Context
	// TTL and SweepInterval tune eviction; zero values pick the defaults.
	TTL           time.Duration
	SweepInterval time.Duration
}

// Registry is the process-wide table of resumable streams: stream id to
// stream, plus a conversation id to currently-resumable stream id pointer.
// It is strictly process-local; multi-instance deployments need sticky
// routing back to the instance holding the stream.
type Registry struct {
	baseCtx       context.Context
	ttl           time.Duration
	sweepInterval time.Duration

	mu           sync.Mutex
	streams      map[string]*entry
	active       map[string]string
	sweepRunning bool
}

type entry struct {
	streamID string
	convID   string
	stream   *Stream

	createdAt  time.Time
	lastAccess atomic.Int64 // unix nanos
}

func (e *entry) touch() {
	e.lastAccess.Store(time.Now().UnixNano())
}

// NewRegistry builds an empty registry. Call StartSweepLoop to enable
// TTL eviction.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.BaseCtx == nil {
		return nil, errors.New("stream registry base context is nil")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	interval := opts.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Registry{
		baseCtx:       opts.BaseCtx,
		ttl:           ttl,
		sweepInterval: interval,
		streams:       map[string]*entry{},
		active:        map[string]string{},
	}, nil
}

// Register wraps src in a new Stream, stores it under streamID, and points
// the conversation's active-stream pointer at it. The drain starts
// immediately; call exactly once per generation, before anyone consumes src.
func (r *Registry) Register(streamID, convID string, src Source) (*Stream, error) {
	if r == nil {
		return nil, errors.New("stream registry is not initialized")
	}
	streamID = strings.TrimSpace(streamID)
	convID = strings.TrimSpace(convID)
	if streamID == "" {
		return nil, errors.New("missing streamID")
	}
	if convID == "" {
		return nil, errors.New("missing convID")
	}
	if src == nil {
		return nil, errors.New("source is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.streams[streamID]; exists {
		return nil, errors.Errorf("stream %s already registered", streamID)
	}
	e := &entry{streamID: streamID, convID: convID, createdAt: time.Now()}
	e.touch()
	lg := log.With().Str("component", "streamcache").Str("stream_id", streamID).Str("conv_id", convID).Logger()
	e.stream = NewStream(r.baseCtx, src, StreamOptions{OnActivity: e.touch, Log: &lg})
	r.streams[streamID] = e
	r.active[convID] = streamID
	lg.Debug().Msg("stream registered")
	return e.stream, nil
}

// ActiveStreamFor resolves the currently resumable stream for a
// conversation. Absence is not an error; it means nothing to resume.
func (r *Registry) ActiveStreamFor(convID string) (string, bool) {
	if r == nil {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[strings.TrimSpace(convID)]
	return id, ok
}

// OpenReader returns a pull-based reader over the named stream starting at
// cursor, or false if the id was never registered or already evicted.
// Opening a reader refreshes the entry's last-accessed time.
func (r *Registry) OpenReader(ctx context.Context, streamID string, cursor int) (*Reader, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	e, ok := r.streams[strings.TrimSpace(streamID)]
	r.mu.Unlock()
	if !ok || e == nil {
		return nil, false
	}
	e.touch()
	return NewReader(ctx, e.stream.ReaderAt(cursor)), true
}

// Invalidate clears only the conversation's active-stream pointer so stale
// resumption attempts cannot be satisfied as the current turn. The entry
// itself stays reachable by raw stream id until the TTL sweep removes it.
// Call immediately before starting a new generation for the conversation.
func (r *Registry) Invalidate(convID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.active, strings.TrimSpace(convID))
	r.mu.Unlock()
}

// StartSweepLoop launches the background TTL sweep. It is a no-op if the
// loop is already running; the loop stops when ctx is cancelled.
func (r *Registry) StartSweepLoop(ctx context.Context) {
	if r == nil {
		return
	}
	if ctx == nil {
		panic("streamcache: StartSweepLoop requires non-nil ctx")
	}
	r.mu.Lock()
	if r.sweepRunning {
		r.mu.Unlock()
		return
	}
	r.sweepRunning = true
	interval := r.sweepInterval
	r.mu.Unlock()

	go r.runSweepLoop(ctx, interval)
}

func (r *Registry) runSweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.sweepRunning = false
			r.mu.Unlock()
			return
		case now := <-ticker.C:
			r.sweepOnce(now)
		}
	}
}

// sweepOnce evicts every entry idle longer than the TTL and reports how many
// were removed. Evicting closes the stream, which forces any live readers to
// observe end-of-stream. Removal is idempotent: an entry deleted between the
// snapshot and the re-check is simply skipped.
func (r *Registry) sweepOnce(now time.Time) int {
	if r == nil {
		return 0
	}
	if now.IsZero() {
		now = time.Now()
	}

	r.mu.Lock()
	ttl := r.ttl
	candidates := make([]*entry, 0, len(r.streams))
	for _, e := range r.streams {
		candidates = append(candidates, e)
	}
	r.mu.Unlock()

	evicted := 0
	for _, e := range candidates {
		if e == nil {
			continue
		}
		last := time.Unix(0, e.lastAccess.Load())
		if now.Sub(last) < ttl {
			continue
		}
		r.mu.Lock()
		current, ok := r.streams[e.streamID]
		if !ok || current != e {
			r.mu.Unlock()
			continue
		}
		delete(r.streams, e.streamID)
		if r.active[e.convID] == e.streamID {
			delete(r.active, e.convID)
		}
		r.mu.Unlock()

		e.stream.Close()
		evicted++
		log.Debug().Str("component", "streamcache").Str("stream_id", e.streamID).Str("conv_id", e.convID).Msg("stream evicted")
	}

	return evicted
}

// Len reports how many stream entries are currently registered.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}
