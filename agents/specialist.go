package agents

import (
	"context"
	"fmt"

	"github.com/flowmatik/backend/core"
)

// Specialist agent ids used by the content operations.
const (
	hookAgent      = "hook-creator"
	trendAgent     = "trend-researcher"
	optimizerAgent = "content-optimizer"
	thumbnailAgent = "thumbnail-designer"
)

// CreateHook asks the hook specialist for openings for a platform and topic.
// An empty style defaults to "viral".
func (d *System) CreateHook(ctx context.Context, platform, topic, style string) (*core.Result, error) {
	if platform == "" || topic == "" {
		return nil, fmt.Errorf("%w: platform and topic are required", core.ErrInvalidArgument)
	}
	if style == "" {
		style = "viral"
	}
	prompt := fmt.Sprintf(
		"Create 5 %s hooks for %s about %q. Rank them from strongest to weakest and "+
			"explain in one line why the top hook works.",
		style, platform, topic)
	return d.Generate(ctx, hookAgent, prompt, core.GenerateOptions{})
}

// AnalyzeTrend asks the trend researcher for a trend assessment. An empty
// timeframe defaults to the last 30 days.
func (d *System) AnalyzeTrend(ctx context.Context, topic, timeframe string) (*core.Result, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", core.ErrInvalidArgument)
	}
	if timeframe == "" {
		timeframe = "last 30 days"
	}
	prompt := fmt.Sprintf(
		"Analyze the trend around %q over the %s: current momentum, the audiences driving "+
			"it, how long the window is likely to stay open, and three concrete content "+
			"angles to ride it.",
		topic, timeframe)
	return d.Generate(ctx, trendAgent, prompt, core.GenerateOptions{DeepThinking: true})
}

// OptimizeContent asks the optimizer to rework content against its metrics
// toward a goal. An empty goal defaults to improving retention.
func (d *System) OptimizeContent(ctx context.Context, content, metrics, goal string) (*core.Result, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", core.ErrInvalidArgument)
	}
	if goal == "" {
		goal = "improve retention"
	}
	prompt := fmt.Sprintf(
		"Optimize this content to %s.\n\nContent:\n%s\n\nCurrent metrics:\n%s\n\n"+
			"Rewrite only the parts that underperform and explain each change in one line.",
		goal, content, metrics)
	return d.Generate(ctx, optimizerAgent, prompt, core.GenerateOptions{})
}

// DesignThumbnail asks the thumbnail designer for executable concepts.
func (d *System) DesignThumbnail(ctx context.Context, title, audience, platform string) (*core.Result, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", core.ErrInvalidArgument)
	}
	if platform == "" {
		platform = "YouTube"
	}
	prompt := fmt.Sprintf(
		"Design 3 thumbnail concepts for a %s video titled %q aimed at %s. For each: "+
			"composition, focal point, text overlay (max 4 words) and color palette.",
		platform, title, audience)
	return d.Generate(ctx, thumbnailAgent, prompt, core.GenerateOptions{})
}

// InterpretCommand routes a natural-language terminal command through the
// default persona and returns its interpretation.
func (d *System) InterpretCommand(ctx context.Context, command, sessionID string) (*core.Result, error) {
	if command == "" {
		return nil, fmt.Errorf("%w: command is required", core.ErrInvalidArgument)
	}
	prompt := fmt.Sprintf(
		"Interpret this terminal command and describe the action to take: %q", command)
	return d.Generate(ctx, DefaultAgentID, prompt, core.GenerateOptions{SessionID: sessionID})
}
