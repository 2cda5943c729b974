// Package doubao adapts the 302.AI gateway (Doubao models behind an
// OpenAI-compatible Chat Completions API) to the provider contract.
package doubao

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/flowmatik/backend/provider"
)

// DefaultBaseURL is the 302.AI OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.302.ai/v1"

// Options configures the Doubao adapter.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider wraps the 302.AI Chat Completions API behind provider.Provider.
type Provider struct {
	client openai.Client
	opts   Options
}

// New creates a Doubao provider. The model set here is the fallback when a
// request does not name one.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		BaseURL: DefaultBaseURL,
		Model:   "doubao-1.5-pro-32k",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithBaseURL(opts.BaseURL)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	return &Provider{client: openai.NewClient(clientOpts...), opts: opts}
}

func (p *Provider) buildParams(req provider.Request) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.opts.Model
	}

	system := req.System
	if req.DeepThinking {
		system += "\n\nBefore answering, reason step by step inside a " +
			"<thinking>...</thinking> block, then give the final answer after it."
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    model,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}
	return params
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (*provider.Completion, error) {
	params := p.buildParams(req)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("doubao completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("doubao completion: no choices returned")
	}

	text, reasoning := splitReasoning(resp.Choices[0].Message.Content)
	return &provider.Completion{
		Text:      text,
		Reasoning: reasoning,
		Model:     string(params.Model),
		Usage: provider.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// Stream implements provider.Provider, forwarding one event per upstream
// delta and a final Done event carrying usage when the gateway reports it.
func (p *Provider) Stream(ctx context.Context, req provider.Request) (<-chan provider.Event, <-chan error) {
	events := make(chan provider.Event, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		params := p.buildParams(req)
		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var usage provider.Usage
		for stream.Next() {
			ck := stream.Current()
			if ck.Usage.TotalTokens > 0 {
				usage.InputTokens = int(ck.Usage.PromptTokens)
				usage.OutputTokens = int(ck.Usage.CompletionTokens)
			}
			for _, ch := range ck.Choices {
				if ch.Delta.Content == "" {
					continue
				}
				select {
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				case events <- provider.Event{Delta: ch.Delta.Content}:
				}
			}
		}
		if err := stream.Err(); err != nil {
			errs <- fmt.Errorf("doubao streaming: %w", err)
			return
		}
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
		case events <- provider.Event{Done: true, Usage: usage}:
		}
	}()

	return events, errs
}

// Info implements provider.Provider.
func (p *Provider) Info() provider.Info {
	return provider.Info{Name: p.opts.Model, Provider: "302.AI"}
}

// splitReasoning strips a leading <thinking> block emitted under deep
// thinking mode and returns (answer, reasoning).
func splitReasoning(content string) (string, string) {
	const openTag, closeTag = "<thinking>", "</thinking>"
	start := strings.Index(content, openTag)
	if start == -1 {
		return content, ""
	}
	end := strings.Index(content, closeTag)
	if end == -1 || end < start {
		return content, ""
	}
	reasoning := strings.TrimSpace(content[start+len(openTag) : end])
	answer := strings.TrimSpace(content[:start] + content[end+len(closeTag):])
	return answer, reasoning
}
