package provider

import (
	"context"
	"strings"
	"time"
)

// EchoEngine streams the prompt back word by word. It is the zero-dependency
// default backend for local development and tests.
type EchoEngine struct {
	// Delay between deltas; zero means emit as fast as the sink accepts.
	Delay time.Duration
}

func (e *EchoEngine) Name() string { return "echo" }

func (e *EchoEngine) Generate(ctx context.Context, req Request, emit func(Event) error) error {
	return emitWords(ctx, req, strings.Fields(req.Prompt), e.Delay, e.Name(), emit)
}

// ScriptedEngine replays a fixed script regardless of the prompt, which
// makes resumption behavior reproducible in demos and offline runs.
type ScriptedEngine struct {
	Script []string
	Delay  time.Duration
}

func (e *ScriptedEngine) Name() string { return "scripted" }

func (e *ScriptedEngine) Generate(ctx context.Context, req Request, emit func(Event) error) error {
	script := e.Script
	if len(script) == 0 {
		script = defaultScript
	}
	return emitWords(ctx, req, script, e.Delay, e.Name(), emit)
}

var defaultScript = []string{
	"Once", "upon", "a", "time,", "a", "small", "robot", "learned",
	"to", "finish", "every", "story", "it", "started.",
}

func emitWords(ctx context.Context, req Request, words []string, delay time.Duration, name string, emit func(Event) error) error {
	for i, w := range words {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := w
		if i < len(words)-1 {
			text += " "
		}
		if err := emit(Event{Type: EventDelta, Text: text, TurnID: req.TurnID, Provider: name}); err != nil {
			return err
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil
}
