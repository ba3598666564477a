// Package provider selects and drives generation backends. Engines push
// events to a sink callback; the HTTP layer turns those events into SSE
// frames and hands them to the stream cache, so everything downstream of an
// engine is backend-agnostic.
package provider

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// EventType classifies one unit of generation output.
type EventType string

const (
	EventDelta EventType = "delta"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one ordered unit of generation output.
type Event struct {
	Type     EventType `json:"type"`
	Text     string    `json:"text,omitempty"`
	TurnID   string    `json:"turn_id,omitempty"`
	Provider string    `json:"provider,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Turn is one prior exchange passed to an engine as context.
type Turn struct {
	Role    string
	Content string
}

// Request carries everything an engine needs for one generation.
type Request struct {
	ChatID  string
	TurnID  string
	Prompt  string
	History []Turn
}

// Engine produces generation output for a request, pushing events to emit in
// order. Returning an error after partial output is allowed; callers must
// treat whatever was emitted as the (truncated) turn.
type Engine interface {
	Name() string
	Generate(ctx context.Context, req Request, emit func(Event) error) error
}

// Registry maps provider names to engines and resolves the default.
type Registry struct {
	mu          sync.RWMutex
	engines     map[string]Engine
	defaultName string
}

func NewRegistry(defaultName string) *Registry {
	return &Registry{
		engines:     map[string]Engine{},
		defaultName: strings.TrimSpace(defaultName),
	}
}

func (r *Registry) Add(e Engine) error {
	if r == nil {
		return errors.New("provider registry is not initialized")
	}
	if e == nil {
		return errors.New("engine is nil")
	}
	name := strings.TrimSpace(e.Name())
	if name == "" {
		return errors.New("engine has empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.engines[name]; exists {
		return errors.Errorf("provider %s already registered", name)
	}
	r.engines[name] = e
	if r.defaultName == "" {
		r.defaultName = name
	}
	return nil
}

// Pick resolves an engine by name, falling back to the default when name is
// empty.
func (r *Registry) Pick(name string) (Engine, error) {
	if r == nil {
		return nil, errors.New("provider registry is not initialized")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.defaultName
	}
	e, ok := r.engines[name]
	if !ok {
		return nil, errors.Errorf("unknown provider %q", name)
	}
	return e, nil
}

// Names lists registered providers in stable order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for n := range r.engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultName reports the fallback provider name.
func (r *Registry) DefaultName() string {
	if r == nil {
		return ""
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}
