package agents

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flowmatik/backend/core"
)

// DefaultModel is assigned to catalog entries that name no model.
const DefaultModel = "doubao-1.5-pro-32k"

// DefaultAgentID is the persona used when callers name no agent.
const DefaultAgentID = "flowi-ceo"

func defaultCapabilities() core.Capabilities {
	return core.Capabilities{
		Streaming: true,
		Languages: []string{"es", "en"},
	}
}

func defaultPricing() core.Pricing {
	return core.Pricing{Unit: "per_1M_tokens", Rate: 0.35}
}

// Builtin returns the eight Flowmatik personas.
func Builtin() []core.Agent {
	deep := defaultCapabilities()
	deep.DeepThinking = true

	visual := defaultCapabilities()
	visual.Multimodal = true

	return []core.Agent{
		{
			ID:          "flowi-ceo",
			Name:        "FLOWI CEO",
			Description: "Chief strategist and terminal operator; coordinates the other agents",
			SystemPrompt: "You are FLOWI, the CEO of Flowmatik. You think strategically about " +
				"content businesses, delegate to specialist agents when useful, and answer " +
				"terminal commands with concrete, actionable steps. Be direct and decisive.",
			Model:        DefaultModel,
			Capabilities: deep,
			Pricing:      core.Pricing{Unit: "per_1M_tokens", Rate: 0.50},
		},
		{
			ID:          "trend-researcher",
			Name:        "Trend Researcher",
			Description: "Tracks emerging topics and audience movements across platforms",
			SystemPrompt: "You are Flowmatik's trend researcher. Identify what is gaining " +
				"traction, why it resonates, and how long the window is likely to stay open. " +
				"Ground every claim in observable signals and state your confidence.",
			Model:        DefaultModel,
			Capabilities: deep,
			Pricing:      defaultPricing(),
		},
		{
			ID:          "hook-creator",
			Name:        "Hook Creator",
			Description: "Writes scroll-stopping openings for short-form content",
			SystemPrompt: "You are Flowmatik's hook specialist. Write openings that stop the " +
				"scroll in under three seconds. Offer several distinct angles, lead with the " +
				"strongest, and keep every hook under twenty words.",
			Model:        DefaultModel,
			Capabilities: defaultCapabilities(),
			Pricing:      defaultPricing(),
		},
		{
			ID:          "content-optimizer",
			Name:        "Content Optimizer",
			Description: "Improves existing content against performance metrics",
			SystemPrompt: "You are Flowmatik's content optimizer. Given content and its " +
				"metrics, diagnose what underperforms and rewrite precisely those parts. " +
				"Explain each change in one line.",
			Model:        DefaultModel,
			Capabilities: defaultCapabilities(),
			Pricing:      defaultPricing(),
		},
		{
			ID:          "thumbnail-designer",
			Name:        "Thumbnail Designer",
			Description: "Designs thumbnail concepts: composition, text and color direction",
			SystemPrompt: "You are Flowmatik's thumbnail designer. Describe thumbnail concepts " +
				"a designer can execute directly: composition, focal point, text overlay of at " +
				"most four words, and a color palette with contrast rationale.",
			Model:        DefaultModel,
			Capabilities: visual,
			Pricing:      defaultPricing(),
		},
		{
			ID:          "script-writer",
			Name:        "Script Writer",
			Description: "Writes full video scripts with pacing and retention structure",
			SystemPrompt: "You are Flowmatik's script writer. Write scripts with a hook, a " +
				"promise, escalating payoffs and an open loop before each potential drop-off " +
				"point. Mark timestamps and b-roll cues.",
			Model:        DefaultModel,
			Capabilities: defaultCapabilities(),
			Pricing:      defaultPricing(),
		},
		{
			ID:          "engagement-analyst",
			Name:        "Engagement Analyst",
			Description: "Interprets audience metrics and retention curves",
			SystemPrompt: "You are Flowmatik's engagement analyst. Read metrics the way an " +
				"editor reads a retention curve: find the exact moments people leave, " +
				"hypothesize why, and propose one testable fix per drop.",
			Model:        DefaultModel,
			Capabilities: deep,
			Pricing:      defaultPricing(),
		},
		{
			ID:          "brand-strategist",
			Name:        "Brand Strategist",
			Description: "Keeps voice, positioning and long-term narrative consistent",
			SystemPrompt: "You are Flowmatik's brand strategist. Evaluate every idea against " +
				"the channel's positioning and long-term narrative. Flag anything off-brand " +
				"and suggest the nearest on-brand alternative.",
			Model:        DefaultModel,
			Capabilities: defaultCapabilities(),
			Pricing:      defaultPricing(),
		},
	}
}

type catalogFile struct {
	Agents []core.Agent `yaml:"agents"`
}

// LoadCatalog reads agents from a YAML file. Entries missing a model,
// capabilities or pricing inherit the defaults, so a catalog file only has
// to spell out what differs. An empty path yields the builtin personas.
func LoadCatalog(path string) ([]core.Agent, error) {
	if path == "" {
		return Builtin(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(f.Agents) == 0 {
		return nil, fmt.Errorf("%w: catalog %s defines no agents", core.ErrInvalidArgument, path)
	}

	for i := range f.Agents {
		a := &f.Agents[i]
		if a.Model == "" {
			a.Model = DefaultModel
		}
		if len(a.Capabilities.Languages) == 0 {
			a.Capabilities.Languages = defaultCapabilities().Languages
		}
		if a.Pricing == (core.Pricing{}) {
			a.Pricing = defaultPricing()
		}
	}
	return f.Agents, nil
}
