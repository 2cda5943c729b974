// Package chromem implements the semantic turn index on chromem-go, a pure
// Go embedded vector database. All turns share one collection since search
// spans sessions.
package chromem

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/flowmatik/backend/memory"
)

const collectionName = "turns"

// Index wraps a chromem collection behind memory.Index.
type Index struct {
	db  *chromem.DB
	col *chromem.Collection
	mu  sync.RWMutex
}

// New creates an in-memory chromem index. The collection uses the default
// cosine distance; embeddings are always supplied by the caller.
func New() (*Index, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Index{db: db, col: col}, nil
}

// Add implements memory.Index.
func (ix *Index) Add(ctx context.Context, turnID, text string, embedding []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	err := ix.col.AddDocument(ctx, chromem.Document{
		ID:        turnID,
		Content:   text,
		Embedding: embedding,
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query implements memory.Index. chromem rejects nResults larger than the
// collection, so the limit shrinks to fit before querying.
func (ix *Index) Query(ctx context.Context, embedding []float32, limit int) ([]memory.Match, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if n := ix.col.Count(); n < limit {
		limit = n
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := ix.col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		if isInsufficientDocsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]memory.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, memory.Match{TurnID: r.ID, Score: r.Similarity})
	}
	return matches, nil
}

// Count implements memory.Index.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.col.Count()
}

// isInsufficientDocsError matches chromem's error for querying more results
// than documents, which can still race the Count check above.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
