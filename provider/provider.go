// Package provider defines the upstream model provider contract consumed by
// the generation dispatcher, and a deterministic mock used in tests.
package provider

import "context"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior conversation entry sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the normalized upstream request built by the dispatcher. The
// context window has already been merged into Messages by the time a
// provider sees it.
type Request struct {
	Model        string
	System       string
	Messages     []Message
	Temperature  float64
	MaxTokens    int64
	DeepThinking bool
}

// Usage reports upstream token consumption for a finished generation.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Completion is the result of a non-streaming upstream call.
type Completion struct {
	Text      string
	Reasoning string
	Model     string
	Usage     Usage
}

// Event is one unit of a streaming upstream generation. Delta carries
// incremental text while Done is false; the final event has Done set and
// carries the usage totals.
type Event struct {
	Delta string
	Done  bool
	Usage Usage
}

// Info describes a provider implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Provider is the upstream generation collaborator. Stream returns a lazy
// event sequence: one Event per upstream unit, terminated either by a Done
// event on the event channel or by a value on the error channel. Both
// channels are closed when the generation ends on any path. Implementations
// must stop producing promptly once ctx is cancelled.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	Stream(ctx context.Context, req Request) (<-chan Event, <-chan error)
	Info() Info
}
