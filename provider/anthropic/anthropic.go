// Package anthropic adapts the Anthropic Messages API to the provider
// contract, as an alternative upstream to the 302.AI gateway.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowmatik/backend/provider"
)

// Options configures the Anthropic adapter.
type Options struct {
	APIKey    string
	Model     anthropic.Model
	MaxTokens int64
}

// Provider wraps the Anthropic Messages API behind provider.Provider.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// New creates an Anthropic provider.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:     anthropic.ModelClaudeSonnet4_20250514,
		MaxTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}
}

func (p *Provider) buildParams(req provider.Request) anthropic.MessageNewParams {
	model := anthropic.Model(req.Model)
	if req.Model == "" {
		model = p.opts.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.opts.MaxTokens
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.DeepThinking {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(maxTokens / 2)
	}
	return params
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (*provider.Completion, error) {
	params := p.buildParams(req)

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	var text, reasoning string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "thinking":
			reasoning += block.Thinking
		}
	}

	return &provider.Completion{
		Text:      text,
		Reasoning: reasoning,
		Model:     string(params.Model),
		Usage: provider.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// Stream implements provider.Provider. Events are accumulated into a full
// message so the terminal event can report usage.
func (p *Provider) Stream(ctx context.Context, req provider.Request) (<-chan provider.Event, <-chan error) {
	events := make(chan provider.Event, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		params := p.buildParams(req)
		stream := p.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		message := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			// Accumulation errors are non-fatal; the delta path below still
			// carries the text.
			_ = message.Accumulate(event)

			switch evt := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := evt.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					select {
					case <-ctx.Done():
						errs <- ctx.Err()
						return
					case events <- provider.Event{Delta: delta.Text}:
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errs <- fmt.Errorf("anthropic streaming: %w", err)
			return
		}
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
		case events <- provider.Event{Done: true, Usage: provider.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		}}:
		}
	}()

	return events, errs
}

// Info implements provider.Provider.
func (p *Provider) Info() provider.Info {
	return provider.Info{Name: string(p.opts.Model), Provider: "anthropic"}
}
