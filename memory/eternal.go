// Package memory implements the eternal conversation store: a durable,
// append-only per-session turn log (SQLite), a semantic index over all turns
// (chromem-go behind the Index interface), and a bounded recent-context
// window with a ristretto read cache.
package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/flowmatik/backend/core"
)

// AnonymousSession is the session used when a caller supplies none.
const AnonymousSession = "anonymous"

// Config holds EternalMemory construction options.
type Config struct {
	// DBPath is the SQLite file for the turn log.
	DBPath string

	// DefaultWindow bounds SessionContext when the caller passes no bound.
	DefaultWindow int

	// ResolveAgent, when set, is consulted before persisting a turn;
	// unresolved agent ids are rejected before they reach the log.
	ResolveAgent func(agentID string) bool

	// Reindex controls whether the semantic index is rebuilt from the turn
	// log at startup. The index is in-memory; without a rebuild, turns
	// persisted by earlier runs are invisible to semantic search.
	Reindex bool
}

type sessionState struct {
	mu     sync.Mutex
	lastTS int64 // unix nanos of the newest turn, for monotonic stamping
	gen    uint64
}

// EternalMemory is the durable conversation store. Appends within one
// session serialize through a per-session lock; appends across sessions run
// concurrently.
type EternalMemory struct {
	log      *turnLog
	index    Index
	embedder Embedder
	cache    *ristretto.Cache
	cfg      Config

	mu       sync.Mutex
	sessions map[string]*sessionState

	droppedIndex atomic.Uint64
	closed       atomic.Bool
}

// New opens (or creates) the store at cfg.DBPath and wires the semantic
// index and embedder.
func New(index Index, embedder Embedder, cfg Config) (*EternalMemory, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = "flowmatik-memory.db"
	}
	if cfg.DefaultWindow <= 0 {
		cfg.DefaultWindow = 10
	}

	l, err := newTurnLog(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open turn log: %w", err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 24, // 16 MiB of cached context windows
		BufferItems: 64,
	})
	if err != nil {
		l.close()
		return nil, fmt.Errorf("context cache: %w", err)
	}

	m := &EternalMemory{
		log:      l,
		index:    index,
		embedder: embedder,
		cache:    cache,
		cfg:      cfg,
		sessions: make(map[string]*sessionState),
	}

	if cfg.Reindex {
		if err := m.reindex(context.Background()); err != nil {
			log.Printf("[MEMORY] reindex failed, semantic search starts cold: %v", err)
		}
	}
	return m, nil
}

// session returns the per-session state, creating it on first use. The
// lastTS seed comes from the log so restarts keep timestamps monotonic.
func (m *EternalMemory) session(ctx context.Context, id string) (*sessionState, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	last, err := m.log.lastTimestamp(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sessions[id]; ok {
		return s, nil
	}
	s = &sessionState{lastTS: last}
	m.sessions[id] = s
	return s, nil
}

// StoreConversation appends a turn to its session. The id and timestamp are
// assigned here: timestamps are strictly increasing within a session even
// under concurrent writers. The stored turn is returned.
func (m *EternalMemory) StoreConversation(ctx context.Context, turn core.Turn) (*core.Turn, error) {
	if m.closed.Load() {
		return nil, fmt.Errorf("%w: memory store closed", core.ErrUnavailable)
	}
	if turn.UserMessage == "" {
		return nil, fmt.Errorf("%w: user message is required", core.ErrInvalidArgument)
	}
	if m.cfg.ResolveAgent != nil && !m.cfg.ResolveAgent(turn.AgentID) {
		return nil, fmt.Errorf("%w: unknown agent %q", core.ErrInvalidArgument, turn.AgentID)
	}
	if turn.SessionID == "" {
		turn.SessionID = AnonymousSession
	}

	s, err := m.session(ctx, turn.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: session state: %v", core.ErrUnavailable, err)
	}

	s.mu.Lock()
	ts := time.Now().UTC().UnixNano()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	turn.ID = m.log.newID()
	turn.Timestamp = time.Unix(0, ts).UTC()

	if err := m.log.append(ctx, turn); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: append turn: %v", core.ErrUnavailable, err)
	}
	s.lastTS = ts
	atomic.AddUint64(&s.gen, 1)
	s.mu.Unlock()

	m.indexTurn(ctx, turn)
	return &turn, nil
}

// indexTurn adds the turn to the semantic index. Index failures never fail
// the append; they are counted and logged.
func (m *EternalMemory) indexTurn(ctx context.Context, turn core.Turn) {
	text := indexText(turn)
	embedding, err := m.embedder.Embed(ctx, text)
	if err == nil {
		err = m.index.Add(ctx, turn.ID, text, embedding)
	}
	if err != nil {
		m.droppedIndex.Add(1)
		log.Printf("[MEMORY] index write dropped for turn %s: %v", turn.ID, err)
	}
}

// SessionContext returns the most recent turns of a session up to
// windowBound, in chronological order. Unknown sessions yield an empty
// context; a new session simply starts empty.
func (m *EternalMemory) SessionContext(ctx context.Context, sessionID string, windowBound int) ([]core.Turn, error) {
	if m.closed.Load() {
		return nil, fmt.Errorf("%w: memory store closed", core.ErrUnavailable)
	}
	if sessionID == "" {
		sessionID = AnonymousSession
	}
	if windowBound <= 0 {
		windowBound = m.cfg.DefaultWindow
	}

	s, err := m.session(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: session state: %v", core.ErrUnavailable, err)
	}

	// Cache keys carry the session generation: every append bumps it, so
	// stale windows become unreachable instead of needing invalidation.
	key := fmt.Sprintf("%s|%d|%d", sessionID, atomic.LoadUint64(&s.gen), windowBound)
	if v, ok := m.cache.Get(key); ok {
		if turns, ok := v.([]core.Turn); ok {
			return turns, nil
		}
	}

	turns, err := m.log.recent(ctx, sessionID, windowBound)
	if err != nil {
		return nil, fmt.Errorf("%w: load context: %v", core.ErrUnavailable, err)
	}
	m.cache.Set(key, turns, int64(len(turns)+1))
	return turns, nil
}

// SemanticSearch returns up to limit turns across all sessions ranked by
// similarity to query, ties broken by recency. An empty store yields an
// empty slice.
func (m *EternalMemory) SemanticSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if m.closed.Load() {
		return nil, fmt.Errorf("%w: memory store closed", core.ErrUnavailable)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", core.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = 10
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := m.index.Query(ctx, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	if len(matches) == 0 {
		return []SearchResult{}, nil
	}

	ids := make([]string, len(matches))
	for i, match := range matches {
		ids[i] = match.TurnID
	}
	turns, err := m.log.byIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: load turns: %v", core.ErrUnavailable, err)
	}

	results := make([]SearchResult, 0, len(matches))
	for _, match := range matches {
		t, ok := turns[match.TurnID]
		if !ok {
			// Index entry without a logged turn violates the 1:1 invariant;
			// skip it rather than surface a phantom result.
			log.Printf("[MEMORY] index entry %s has no turn, skipping", match.TurnID)
			continue
		}
		results = append(results, SearchResult{Turn: t, Score: match.Score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Turn.Timestamp.After(results[j].Turn.Timestamp)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CreateBackup produces a point-in-time export of all sessions and turns.
// It runs as a single snapshot read and never takes the per-session locks,
// so concurrent appends proceed unblocked.
func (m *EternalMemory) CreateBackup(ctx context.Context) (*Backup, error) {
	if m.closed.Load() {
		return nil, fmt.Errorf("%w: memory store closed", core.ErrUnavailable)
	}
	turns, err := m.log.all(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: export turns: %v", core.ErrUnavailable, err)
	}

	seen := make(map[string]struct{})
	for _, t := range turns {
		seen[t.SessionID] = struct{}{}
	}
	if turns == nil {
		turns = []core.Turn{}
	}
	return &Backup{
		Version:   BackupVersion,
		CreatedAt: time.Now().UTC(),
		Sessions:  len(seen),
		Turns:     turns,
	}, nil
}

// Stats reports store size and age summaries.
func (m *EternalMemory) Stats(ctx context.Context) (*Stats, error) {
	if m.closed.Load() {
		return nil, fmt.Errorf("%w: memory store closed", core.ErrUnavailable)
	}
	c, err := m.log.counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: count turns: %v", core.ErrUnavailable, err)
	}
	st := &Stats{
		Sessions:          c.sessions,
		Turns:             c.turns,
		IndexedTurns:      m.index.Count(),
		StorageBytes:      c.sizeB,
		DroppedIndexWrite: m.droppedIndex.Load(),
	}
	if c.turns > 0 {
		oldest := time.Unix(0, c.oldest).UTC()
		newest := time.Unix(0, c.newest).UTC()
		st.OldestTurn = &oldest
		st.NewestTurn = &newest
	}
	return st, nil
}

// Close releases the turn log and cache. Subsequent calls on the store
// report Unavailable.
func (m *EternalMemory) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.cache.Close()
	return m.log.close()
}

// reindex rebuilds the semantic index from the durable log.
func (m *EternalMemory) reindex(ctx context.Context) error {
	turns, err := m.log.all(ctx)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}
	log.Printf("[MEMORY] reindexing %d turns", len(turns))
	for _, t := range turns {
		m.indexTurn(ctx, t)
	}
	return nil
}

// indexText is the retrievable text unit derived from a turn: the user and
// assistant sides concatenated, so either half can match a query.
func indexText(t core.Turn) string {
	return "User: " + t.UserMessage + "\nAssistant: " + t.AssistantResponse
}
