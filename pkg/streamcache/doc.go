// Package streamcache turns single-consumption generation output into
// replayable, multi-reader streams so a client can disconnect mid-response
// and later resume from the exact chunk it last received.
//
// Ownership model:
//   - A Registry owns all resumable streams for the process. Construct one at
//     startup and inject it into whatever handlers need it.
//   - Each Stream owns its chunk sequence; a single drain goroutine is the
//     only writer. Readers hold independent cursors and never block the drain.
//   - Applications own the decision of when to register, resume, or
//     invalidate; the registry only provides lifecycle and discovery.
package streamcache
