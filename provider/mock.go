package provider

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// Mock is an in-memory Provider for tests and local development. Responses
// can be canned per prompt; streaming emits one event per rune. An atomic
// open-stream counter makes resource leaks observable from tests.
type Mock struct {
	info      Info
	responses map[string]string
	failWith  error
	usage     Usage

	openStreams atomic.Int64
}

// NewMock constructs a Mock provider identified by the given model name.
func NewMock(model string) *Mock {
	return &Mock{
		info:      Info{Name: model, Provider: "mock"},
		responses: make(map[string]string),
		usage:     Usage{InputTokens: 10, OutputTokens: 20},
	}
}

// AddResponse registers a canned completion for a prompt.
func (m *Mock) AddResponse(prompt, response string) { m.responses[prompt] = response }

// FailWith makes every subsequent call fail with err.
func (m *Mock) FailWith(err error) { m.failWith = err }

// OpenStreams returns the number of stream goroutines still running. It is
// the leak probe used by multiplexer tests.
func (m *Mock) OpenStreams() int64 { return m.openStreams.Load() }

func (m *Mock) respond(req Request) string {
	var prompt string
	if n := len(req.Messages); n > 0 {
		prompt = req.Messages[n-1].Content
	}
	if full, ok := m.responses[prompt]; ok {
		return full
	}
	return fmt.Sprintf("Mock response to: %s", prompt)
}

// Complete implements Provider.
func (m *Mock) Complete(ctx context.Context, req Request) (*Completion, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &Completion{Text: m.respond(req), Model: m.info.Name, Usage: m.usage}
	if req.DeepThinking {
		c.Reasoning = "mock reasoning for: " + strings.TrimSpace(m.respond(req))
	}
	return c, nil
}

// Stream implements Provider, emitting one content event per rune of the
// canned response followed by a Done event.
func (m *Mock) Stream(ctx context.Context, req Request) (<-chan Event, <-chan error) {
	events := make(chan Event, 16)
	errs := make(chan error, 1)

	m.openStreams.Add(1)
	go func() {
		defer close(events)
		defer close(errs)
		defer m.openStreams.Add(-1)

		if m.failWith != nil {
			errs <- m.failWith
			return
		}
		for _, r := range m.respond(req) {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case events <- Event{Delta: string(r)}:
			}
		}
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
		case events <- Event{Done: true, Usage: m.usage}:
		}
	}()

	return events, errs
}

// Info implements Provider.
func (m *Mock) Info() Info { return m.info }
