package agents

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/flowmatik/backend/core"
	"github.com/flowmatik/backend/provider"
	"github.com/flowmatik/backend/stream"
	"github.com/flowmatik/backend/usage"
)

// ConversationStore is the slice of the memory store the dispatcher needs.
type ConversationStore interface {
	StoreConversation(ctx context.Context, turn core.Turn) (*core.Turn, error)
	SessionContext(ctx context.Context, sessionID string, windowBound int) ([]core.Turn, error)
}

// System routes generation requests: it resolves the agent, merges session
// context from memory, calls the provider and persists the finished turn.
type System struct {
	registry *Registry
	provider provider.Provider
	store    ConversationStore
	usage    *usage.Tracker

	contextTurns  int
	droppedWrites atomic.Uint64
}

// Option configures a System.
type Option func(*System)

// WithMemory attaches the conversation store. Without it, generations run
// stateless: no context merge and no persistence.
func WithMemory(s ConversationStore) Option {
	return func(d *System) { d.store = s }
}

// WithUsage attaches the usage tracker.
func WithUsage(t *usage.Tracker) Option {
	return func(d *System) { d.usage = t }
}

// WithContextTurns sets the default context window bound.
func WithContextTurns(n int) Option {
	return func(d *System) {
		if n > 0 {
			d.contextTurns = n
		}
	}
}

// NewSystem builds a dispatcher over a registry and one upstream provider.
func NewSystem(registry *Registry, p provider.Provider, opts ...Option) *System {
	d := &System{
		registry:     registry,
		provider:     p,
		contextTurns: 10,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry exposes the agent registry for read-only lookups.
func (d *System) Registry() *Registry { return d.registry }

// DroppedWrites reports how many finished turns could not be persisted.
func (d *System) DroppedWrites() uint64 { return d.droppedWrites.Load() }

// Generate runs one synchronous generation with the named agent.
func (d *System) Generate(ctx context.Context, agentID, prompt string, opts core.GenerateOptions) (*core.Result, error) {
	agent, req, err := d.prepare(ctx, agentID, prompt, opts)
	if err != nil {
		return nil, err
	}

	completion, err := d.provider.Complete(ctx, req)
	if err != nil {
		return nil, &core.UpstreamError{Provider: d.provider.Info().Name, Err: err}
	}

	cost := costFor(agent, completion.Usage)
	d.record(agent.ID, cost)
	d.persist(ctx, core.Turn{
		SessionID:         opts.SessionID,
		UserMessage:       prompt,
		AssistantResponse: completion.Text,
		AgentID:           agent.ID,
		Metadata: core.TurnMetadata{
			Cost:         &cost,
			Model:        completion.Model,
			DeepThinking: req.DeepThinking,
		},
	})

	return &core.Result{
		Content:   completion.Text,
		Cost:      cost,
		Model:     completion.Model,
		AgentID:   agent.ID,
		Reasoning: completion.Reasoning,
	}, nil
}

// Stream runs one streaming generation. The finished turn is persisted and
// recorded only when the stream completes; partial text from failed or
// cancelled streams is dropped.
func (d *System) Stream(ctx context.Context, agentID, prompt string, opts core.GenerateOptions) (*stream.Multiplexer, error) {
	agent, req, err := d.prepare(ctx, agentID, prompt, opts)
	if err != nil {
		return nil, err
	}

	onComplete := func(fullText string, u provider.Usage) {
		cost := costFor(agent, u)
		d.record(agent.ID, cost)
		// The request context may already be done once the stream finishes;
		// persistence gets its own.
		d.persist(context.Background(), core.Turn{
			SessionID:         opts.SessionID,
			UserMessage:       prompt,
			AssistantResponse: fullText,
			AgentID:           agent.ID,
			Metadata: core.TurnMetadata{
				Cost:         &cost,
				Model:        agent.Model,
				DeepThinking: req.DeepThinking,
				Streaming:    true,
			},
		})
	}

	return stream.New(ctx, func(ctx context.Context) (<-chan provider.Event, <-chan error) {
		return d.provider.Stream(ctx, req)
	}, onComplete), nil
}

// prepare validates the call and assembles the provider request, merging the
// session context when memory is attached.
func (d *System) prepare(ctx context.Context, agentID, prompt string, opts core.GenerateOptions) (core.Agent, provider.Request, error) {
	if prompt == "" {
		return core.Agent{}, provider.Request{}, fmt.Errorf("%w: prompt is required", core.ErrInvalidArgument)
	}
	agent, err := d.registry.Get(agentID)
	if err != nil {
		return core.Agent{}, provider.Request{}, err
	}

	req := provider.Request{
		Model:        agent.Model,
		System:       agent.SystemPrompt,
		Temperature:  opts.Temperature,
		MaxTokens:    opts.MaxTokens,
		DeepThinking: opts.DeepThinking && agent.Capabilities.DeepThinking,
	}

	bound := opts.MaxContextTurns
	if bound <= 0 {
		bound = d.contextTurns
	}
	if d.store != nil {
		// A context fetch failure degrades to a stateless generation rather
		// than failing the request.
		turns, err := d.store.SessionContext(ctx, opts.SessionID, bound)
		if err != nil {
			log.Printf("[AGENTS] context fetch failed for session %q, continuing without: %v", opts.SessionID, err)
		}
		for _, t := range turns {
			req.Messages = append(req.Messages,
				provider.Message{Role: provider.RoleUser, Content: t.UserMessage},
				provider.Message{Role: provider.RoleAssistant, Content: t.AssistantResponse})
		}
	}
	req.Messages = append(req.Messages, provider.Message{Role: provider.RoleUser, Content: prompt})

	return agent, req, nil
}

// persist writes the finished turn with one retry. Generation results are
// never failed for a memory write; drops are counted and logged.
func (d *System) persist(ctx context.Context, turn core.Turn) {
	if d.store == nil {
		return
	}
	_, err := d.store.StoreConversation(ctx, turn)
	if err != nil {
		_, err = d.store.StoreConversation(ctx, turn)
	}
	if err != nil {
		d.droppedWrites.Add(1)
		log.Printf("[AGENTS] turn persistence dropped for session %q agent %q: %v",
			turn.SessionID, turn.AgentID, err)
	}
}

func (d *System) record(agentID string, cost float64) {
	if d.usage != nil {
		d.usage.Record(agentID, cost)
	}
}

// costFor prices a completion: rate per million tokens across input and
// output.
func costFor(agent core.Agent, u provider.Usage) float64 {
	tokens := u.InputTokens + u.OutputTokens
	if tokens <= 0 {
		return 0
	}
	return float64(tokens) / 1_000_000 * agent.Pricing.Rate
}
