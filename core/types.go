// Package core holds the shared domain types of the Flowmatik backend:
// agents, conversation turns, streaming chunks and the error taxonomy used
// across all subsystems.
package core

import "time"

// Capabilities is the fixed capability set of an agent. It is validated once
// when the registry loads; use sites trust it without re-checking.
type Capabilities struct {
	DeepThinking bool     `json:"deepThinking" yaml:"deep_thinking"`
	Multimodal   bool     `json:"multimodal" yaml:"multimodal"`
	Streaming    bool     `json:"streaming" yaml:"streaming"`
	Languages    []string `json:"languages" yaml:"languages"`
}

// Pricing describes how an agent's usage is billed.
type Pricing struct {
	// Unit names the billing unit, e.g. "per_1k_tokens".
	Unit string `json:"unit" yaml:"unit"`
	// Rate is the cost per Unit in USD.
	Rate float64 `json:"rate" yaml:"rate"`
}

// Agent is a named persona bound to a model configuration, capability set
// and pricing. Agents are immutable once the registry has loaded them.
type Agent struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Description  string       `json:"description" yaml:"description"`
	SystemPrompt string       `json:"-" yaml:"system_prompt"`
	Model        string       `json:"model" yaml:"model"`
	Capabilities Capabilities `json:"capabilities" yaml:"capabilities"`
	Pricing      Pricing      `json:"pricing" yaml:"pricing"`
}

// TurnMetadata carries per-turn accounting and mode flags.
type TurnMetadata struct {
	// Cost is nil when cost information is absent, which is distinct from a
	// recorded cost of zero.
	Cost         *float64 `json:"cost,omitempty"`
	Model        string   `json:"model,omitempty"`
	DeepThinking bool     `json:"deepThinking,omitempty"`
	Streaming    bool     `json:"streaming,omitempty"`
}

// Turn is one persisted user/assistant exchange. Turns are append-only:
// once stored they are never mutated or deleted individually.
type Turn struct {
	ID                string       `json:"id"`
	SessionID         string       `json:"sessionId"`
	UserMessage       string       `json:"userMessage"`
	AssistantResponse string       `json:"assistantResponse"`
	AgentID           string       `json:"agentId"`
	Timestamp         time.Time    `json:"timestamp"`
	Metadata          TurnMetadata `json:"metadata"`
}

// Result is the outcome of a completed (non-streaming) generation.
type Result struct {
	Content   string  `json:"content"`
	Cost      float64 `json:"cost"`
	Model     string  `json:"model"`
	AgentID   string  `json:"agentId"`
	Reasoning string  `json:"reasoning,omitempty"`
}

// Chunk kinds emitted by a streaming generation.
const (
	ChunkContent = "content"
	ChunkError   = "error"
)

// Chunk is one unit of a streaming generation response, normalized across
// upstream providers.
type Chunk struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// GenerateOptions enumerates the recognized per-request options. Unknown
// JSON fields sent by clients are ignored; they are never passed through
// untyped.
type GenerateOptions struct {
	// SessionID attaches the request to a conversation session. Empty means
	// the anonymous session.
	SessionID string `json:"sessionId"`

	// DeepThinking asks the upstream model for an explicit reasoning pass.
	DeepThinking bool `json:"deepThinking"`

	// MaxContextTurns overrides the context window bound. Zero means the
	// dispatcher default.
	MaxContextTurns int `json:"maxContextTurns"`

	Temperature float64 `json:"temperature"`
	MaxTokens   int64   `json:"maxTokens"`
}
