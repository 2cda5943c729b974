package memory

import (
	"context"
	"time"

	"github.com/flowmatik/backend/core"
)

// Embedder converts text to vector embeddings for the semantic index.
// Implementations: mock (testing, deterministic), onnx (local MiniLM model).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Match is one semantic index hit: the id of a persisted turn and its
// similarity to the query in [0, 1].
type Match struct {
	TurnID string
	Score  float32
}

// Index is the semantic similarity index over persisted turns. Entries are
// always derived from a turn already in the durable log; the index never
// holds an entry without its turn.
type Index interface {
	// Add indexes one turn's retrievable text under its id.
	Add(ctx context.Context, turnID, text string, embedding []float32) error

	// Query returns up to limit matches sorted by similarity, highest first.
	// An empty index yields an empty slice, not an error.
	Query(ctx context.Context, embedding []float32, limit int) ([]Match, error)

	// Count returns the number of indexed turns.
	Count() int
}

// SearchResult pairs a turn with its similarity score.
type SearchResult struct {
	Turn  core.Turn `json:"turn"`
	Score float32   `json:"score"`
}

// Stats summarizes the store for status queries.
type Stats struct {
	Sessions          int64      `json:"sessions"`
	Turns             int64      `json:"turns"`
	IndexedTurns      int        `json:"indexedTurns"`
	StorageBytes      int64      `json:"storageBytes"`
	OldestTurn        *time.Time `json:"oldestTurn,omitempty"`
	NewestTurn        *time.Time `json:"newestTurn,omitempty"`
	DroppedIndexWrite uint64     `json:"droppedIndexWrites"`
}

// Backup is a point-in-time, self-describing export of all sessions and
// turns, sufficient to reconstruct store state.
type Backup struct {
	Version   int         `json:"version"`
	CreatedAt time.Time   `json:"createdAt"`
	Sessions  int         `json:"sessions"`
	Turns     []core.Turn `json:"turns"`
}

// BackupVersion is the current export format version.
const BackupVersion = 1
