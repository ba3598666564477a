package streamcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(RegistryOptions{
		BaseCtx:       context.Background(),
		TTL:           10 * time.Second,
		SweepInterval: time.Second,
	})
	require.NoError(t, err)
	return r
}

func registerCompleted(t *testing.T, r *Registry, streamID, convID string, chunks ...string) {
	t.Helper()
	src := newChanSource()
	st, err := r.Register(streamID, convID, src)
	require.NoError(t, err)
	src.push(t, chunks...)
	close(src.ch)
	waitComplete(t, st)
}

func TestRegistryRegisterSetsActivePointer(t *testing.T) {
	r := newTestRegistry(t)
	registerCompleted(t, r, "s1", "conv-a", "a", "b")

	id, ok := r.ActiveStreamFor("conv-a")
	require.True(t, ok)
	require.Equal(t, "s1", id)

	_, ok = r.ActiveStreamFor("conv-b")
	require.False(t, ok)
}

func TestRegistryRejectsDuplicateStreamID(t *testing.T) {
	r := newTestRegistry(t)
	registerCompleted(t, r, "s1", "conv-a")

	_, err := r.Register("s1", "conv-a", newChanSource())
	require.Error(t, err)
}

func TestRegistryOpenReaderReplaysFromCursor(t *testing.T) {
	r := newTestRegistry(t)
	registerCompleted(t, r, "s1", "conv-a", "a", "b", "c")

	rd, ok := r.OpenReader(context.Background(), "s1", 1)
	require.True(t, ok)
	require.Equal(t, "bc", readAll(t, rd))

	_, ok = r.OpenReader(context.Background(), "unknown", 0)
	require.False(t, ok)
}

func TestRegistryInvalidateClearsPointerOnly(t *testing.T) {
	r := newTestRegistry(t)
	registerCompleted(t, r, "s1", "conv-a", "a")

	r.Invalidate("conv-a")

	_, ok := r.ActiveStreamFor("conv-a")
	require.False(t, ok)

	// The raw stream id still answers until the sweep evicts it.
	rd, ok := r.OpenReader(context.Background(), "s1", 0)
	require.True(t, ok)
	require.Equal(t, "a", readAll(t, rd))
}

func TestRegistryNewGenerationOverwritesPointer(t *testing.T) {
	r := newTestRegistry(t)
	registerCompleted(t, r, "s1", "conv-a", "old")
	r.Invalidate("conv-a")
	registerCompleted(t, r, "s2", "conv-a", "new")

	id, ok := r.ActiveStreamFor("conv-a")
	require.True(t, ok)
	require.Equal(t, "s2", id)

	// The superseded stream remains directly addressable.
	rd, ok := r.OpenReader(context.Background(), "s1", 0)
	require.True(t, ok)
	require.Equal(t, "old", readAll(t, rd))
}

func TestRegistrySweepEvictsIdleEntries(t *testing.T) {
	r := newTestRegistry(t)
	registerCompleted(t, r, "s1", "conv-a", "a")

	r.mu.Lock()
	e := r.streams["s1"]
	r.mu.Unlock()
	e.lastAccess.Store(time.Now().Add(-time.Hour).UnixNano())

	require.Equal(t, 1, r.sweepOnce(time.Now()))
	require.Equal(t, 0, r.Len())

	_, ok := r.OpenReader(context.Background(), "s1", 0)
	require.False(t, ok)
	_, ok = r.ActiveStreamFor("conv-a")
	require.False(t, ok)
}

func TestRegistrySweepKeepsFreshEntries(t *testing.T) {
	r := newTestRegistry(t)
	registerCompleted(t, r, "s1", "conv-a", "a")

	require.Equal(t, 0, r.sweepOnce(time.Now()))
	require.Equal(t, 1, r.Len())
}

func TestRegistrySweepIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	registerCompleted(t, r, "s1", "conv-a", "a")

	r.mu.Lock()
	e := r.streams["s1"]
	r.mu.Unlock()
	e.lastAccess.Store(time.Now().Add(-time.Hour).UnixNano())

	require.Equal(t, 1, r.sweepOnce(time.Now()))
	require.Equal(t, 0, r.sweepOnce(time.Now()))
}

func TestRegistrySweepLeavesNewerPointerIntact(t *testing.T) {
	r := newTestRegistry(t)
	registerCompleted(t, r, "s1", "conv-a", "old")
	registerCompleted(t, r, "s2", "conv-a", "new")

	r.mu.Lock()
	e := r.streams["s1"]
	r.mu.Unlock()
	e.lastAccess.Store(time.Now().Add(-time.Hour).UnixNano())

	require.Equal(t, 1, r.sweepOnce(time.Now()))

	// The pointer was already rebound to s2, so eviction of s1 must not clear it.
	id, ok := r.ActiveStreamFor("conv-a")
	require.True(t, ok)
	require.Equal(t, "s2", id)
}

func TestRegistrySweepClosesLiveReaders(t *testing.T) {
	r := newTestRegistry(t)
	src := newChanSource()
	_, err := r.Register("s1", "conv-a", src)
	require.NoError(t, err)
	src.push(t, "a")

	rd, ok := r.OpenReader(context.Background(), "s1", 1)
	require.True(t, ok)

	done := make(chan error, 1)
	go func() {
		_, err := rd.Read(make([]byte, 1))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	r.mu.Lock()
	e := r.streams["s1"]
	r.mu.Unlock()
	e.lastAccess.Store(time.Now().Add(-time.Hour).UnixNano())
	require.Equal(t, 1, r.sweepOnce(time.Now()))

	select {
	case err := <-done:
		require.Error(t, err) // io.EOF: forced end-of-stream
	case <-time.After(time.Second):
		t.Fatal("live reader was not ended by eviction")
	}
}

func TestRegistrySweepReleasesSource(t *testing.T) {
	// An evicted stream that never completed must not keep its source (and
	// with it the transport subscription) alive.
	r := newTestRegistry(t)
	src := newClosableSource()
	_, err := r.Register("s1", "conv-a", src)
	require.NoError(t, err)

	r.mu.Lock()
	e := r.streams["s1"]
	r.mu.Unlock()
	e.lastAccess.Store(time.Now().Add(-time.Hour).UnixNano())

	require.Equal(t, 1, r.sweepOnce(time.Now()))
	require.True(t, src.isClosed())
}

func TestRegistryResumeWhileActive(t *testing.T) {
	r := newTestRegistry(t)
	src := newChanSource()
	st, err := r.Register("s1", "conv-a", src)
	require.NoError(t, err)
	src.push(t, "a", "b")

	// Resumption against an ACTIVE entry catches up then keeps waiting;
	// completion ends it.
	rd, ok := r.OpenReader(context.Background(), "s1", 0)
	require.True(t, ok)

	buf := make([]byte, 1)
	for _, want := range []string{"a", "b"} {
		n, err := rd.Read(buf)
		require.NoError(t, err)
		require.Equal(t, want, string(buf[:n]))
	}

	src.push(t, "c")
	close(src.ch)
	waitComplete(t, st)

	require.Equal(t, "c", readAll(t, rd))
}
