package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/flowmatik/backend/core"
	mockembed "github.com/flowmatik/backend/memory/embedder/mock"
)

// fakeIndex is an in-memory Index scoring by dot product. Embeddings from
// the mock embedder are unit vectors, so dot product is cosine similarity.
type fakeIndex struct {
	mu      sync.Mutex
	ids     []string
	vecs    [][]float32
	failAdd error
}

func (f *fakeIndex) Add(ctx context.Context, turnID, text string, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd != nil {
		return f.failAdd
	}
	f.ids = append(f.ids, turnID)
	f.vecs = append(f.vecs, embedding)
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matches []Match
	for i, id := range f.ids {
		var score float32
		for j, v := range f.vecs[i] {
			score += v * embedding[j]
		}
		matches = append(matches, Match{TurnID: id, Score: score})
	}
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[j].Score > matches[i].Score {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (f *fakeIndex) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}

func newTestStore(t *testing.T, idx Index, cfg Config) *EternalMemory {
	t.Helper()
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	}
	m, err := New(idx, mockembed.New(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestStoreConversationValidation(t *testing.T) {
	m := newTestStore(t, &fakeIndex{}, Config{
		ResolveAgent: func(id string) bool { return id == "flowi-ceo" },
	})

	_, err := m.StoreConversation(context.Background(), core.Turn{AgentID: "flowi-ceo"})
	if !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("empty user message: got %v, want ErrInvalidArgument", err)
	}

	_, err = m.StoreConversation(context.Background(), core.Turn{
		UserMessage: "hi", AssistantResponse: "hello", AgentID: "nobody",
	})
	if !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("unknown agent: got %v, want ErrInvalidArgument", err)
	}
}

func TestStoreConversationAssignsIDsAndSession(t *testing.T) {
	m := newTestStore(t, &fakeIndex{}, Config{})

	stored, err := m.StoreConversation(context.Background(), core.Turn{
		UserMessage: "hi", AssistantResponse: "hello", AgentID: "flowi-ceo",
	})
	if err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}
	if stored.ID == "" {
		t.Error("stored turn has no id")
	}
	if stored.SessionID != AnonymousSession {
		t.Errorf("session = %q, want %q", stored.SessionID, AnonymousSession)
	}
	if stored.Timestamp.IsZero() {
		t.Error("stored turn has no timestamp")
	}
}

func TestTimestampsMonotonicUnderConcurrency(t *testing.T) {
	m := newTestStore(t, &fakeIndex{}, Config{})

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.StoreConversation(context.Background(), core.Turn{
				SessionID:         "s1",
				UserMessage:       fmt.Sprintf("msg %d", i),
				AssistantResponse: "ok",
				AgentID:           "flowi-ceo",
			})
			if err != nil {
				t.Errorf("StoreConversation: %v", err)
			}
		}(i)
	}
	wg.Wait()

	turns, err := m.SessionContext(context.Background(), "s1", writers)
	if err != nil {
		t.Fatalf("SessionContext: %v", err)
	}
	if len(turns) != writers {
		t.Fatalf("got %d turns, want %d", len(turns), writers)
	}
	for i := 1; i < len(turns); i++ {
		if !turns[i].Timestamp.After(turns[i-1].Timestamp) {
			t.Fatalf("timestamps not strictly increasing at %d: %v then %v",
				i, turns[i-1].Timestamp, turns[i].Timestamp)
		}
	}
}

func TestConcurrentAppendsAcrossSessions(t *testing.T) {
	m := newTestStore(t, &fakeIndex{}, Config{})

	// Appends to distinct sessions run concurrently; id generation and the
	// single SQLite writer must hold up without errors or duplicate ids.
	const sessions = 32
	const perSession = 4
	ids := make(chan string, sessions*perSession)
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := fmt.Sprintf("session-%d", i)
			for j := 0; j < perSession; j++ {
				stored, err := m.StoreConversation(context.Background(), core.Turn{
					SessionID:         session,
					UserMessage:       fmt.Sprintf("msg %d", j),
					AssistantResponse: "ok",
					AgentID:           "flowi-ceo",
				})
				if err != nil {
					t.Errorf("StoreConversation(%s): %v", session, err)
					return
				}
				ids <- stored.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate turn id %s", id)
		}
		seen[id] = struct{}{}
	}
	if len(seen) != sessions*perSession {
		t.Fatalf("stored %d turns, want %d", len(seen), sessions*perSession)
	}

	st, err := m.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Turns != sessions*perSession {
		t.Fatalf("turns = %d, want %d", st.Turns, sessions*perSession)
	}
	if st.Sessions != sessions {
		t.Fatalf("sessions = %d, want %d", st.Sessions, sessions)
	}
}

func TestSessionContextWindowBound(t *testing.T) {
	m := newTestStore(t, &fakeIndex{}, Config{})

	for i := 0; i < 3; i++ {
		if _, err := m.StoreConversation(context.Background(), core.Turn{
			SessionID:         "s1",
			UserMessage:       fmt.Sprintf("msg %d", i),
			AssistantResponse: fmt.Sprintf("resp %d", i),
			AgentID:           "flowi-ceo",
		}); err != nil {
			t.Fatalf("StoreConversation: %v", err)
		}
	}

	turns, err := m.SessionContext(context.Background(), "s1", 1)
	if err != nil {
		t.Fatalf("SessionContext: %v", err)
	}
	if len(turns) != 1 || turns[0].UserMessage != "msg 2" {
		t.Fatalf("window of 1 = %+v, want only the newest turn", turns)
	}

	empty, err := m.SessionContext(context.Background(), "never-seen", 5)
	if err != nil {
		t.Fatalf("SessionContext unknown session: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("unknown session yielded %d turns", len(empty))
	}
}

func TestSessionContextCacheConsistency(t *testing.T) {
	m := newTestStore(t, &fakeIndex{}, Config{})

	if _, err := m.StoreConversation(context.Background(), core.Turn{
		SessionID: "s1", UserMessage: "hi", AssistantResponse: "hello", AgentID: "a",
	}); err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}

	first, err := m.SessionContext(context.Background(), "s1", 5)
	if err != nil {
		t.Fatalf("SessionContext: %v", err)
	}
	second, err := m.SessionContext(context.Background(), "s1", 5)
	if err != nil {
		t.Fatalf("SessionContext (cached): %v", err)
	}
	if len(first) != len(second) || first[0].ID != second[0].ID {
		t.Fatalf("cached context differs: %+v vs %+v", first, second)
	}

	// A new append must be visible on the next read.
	if _, err := m.StoreConversation(context.Background(), core.Turn{
		SessionID: "s1", UserMessage: "more", AssistantResponse: "yes", AgentID: "a",
	}); err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}
	third, err := m.SessionContext(context.Background(), "s1", 5)
	if err != nil {
		t.Fatalf("SessionContext after append: %v", err)
	}
	if len(third) != 2 {
		t.Fatalf("got %d turns after append, want 2", len(third))
	}
}

func TestSemanticSearch(t *testing.T) {
	m := newTestStore(t, &fakeIndex{}, Config{})

	empty, err := m.SemanticSearch(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("search on empty store: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("empty store returned %d results", len(empty))
	}

	if _, err := m.SemanticSearch(context.Background(), "", 5); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("empty query: got %v, want ErrInvalidArgument", err)
	}

	messages := []string{"viral hooks for tiktok", "thumbnail color theory", "retention curve analysis"}
	for _, msg := range messages {
		if _, err := m.StoreConversation(context.Background(), core.Turn{
			SessionID: "s1", UserMessage: msg, AssistantResponse: "noted", AgentID: "a",
		}); err != nil {
			t.Fatalf("StoreConversation: %v", err)
		}
	}

	// The mock embedder is deterministic, so the exact stored text is its
	// own best match.
	results, err := m.SemanticSearch(context.Background(), "User: viral hooks for tiktok\nAssistant: noted", 3)
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if results[0].Turn.UserMessage != "viral hooks for tiktok" {
		t.Fatalf("top result = %q", results[0].Turn.UserMessage)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("results not sorted by score: %v then %v", results[i-1].Score, results[i].Score)
		}
	}
}

func TestIndexFailureDoesNotFailAppend(t *testing.T) {
	idx := &fakeIndex{failAdd: errors.New("index down")}
	m := newTestStore(t, idx, Config{})

	if _, err := m.StoreConversation(context.Background(), core.Turn{
		UserMessage: "hi", AssistantResponse: "hello", AgentID: "a",
	}); err != nil {
		t.Fatalf("append should survive index failure, got %v", err)
	}

	st, err := m.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Turns != 1 {
		t.Errorf("turns = %d, want 1", st.Turns)
	}
	if st.DroppedIndexWrite != 1 {
		t.Errorf("dropped index writes = %d, want 1", st.DroppedIndexWrite)
	}
}

func TestCreateBackup(t *testing.T) {
	m := newTestStore(t, &fakeIndex{}, Config{})

	for _, session := range []string{"s1", "s1", "s2"} {
		if _, err := m.StoreConversation(context.Background(), core.Turn{
			SessionID: session, UserMessage: "hi", AssistantResponse: "hello", AgentID: "a",
		}); err != nil {
			t.Fatalf("StoreConversation: %v", err)
		}
	}

	b, err := m.CreateBackup(context.Background())
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if b.Version != BackupVersion {
		t.Errorf("version = %d, want %d", b.Version, BackupVersion)
	}
	if b.Sessions != 2 {
		t.Errorf("sessions = %d, want 2", b.Sessions)
	}
	if len(b.Turns) != 3 {
		t.Errorf("turns = %d, want 3", len(b.Turns))
	}
}

func TestReindexRestoresSearchAfterRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "restart.db")

	m1 := newTestStore(t, &fakeIndex{}, Config{DBPath: dbPath})
	if _, err := m1.StoreConversation(context.Background(), core.Turn{
		SessionID: "s1", UserMessage: "persisted across restart", AssistantResponse: "yes", AgentID: "a",
	}); err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}
	if err := m1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m2 := newTestStore(t, &fakeIndex{}, Config{DBPath: dbPath, Reindex: true})
	results, err := m2.SemanticSearch(context.Background(), "User: persisted across restart\nAssistant: yes", 1)
	if err != nil {
		t.Fatalf("SemanticSearch after restart: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results after reindex, want 1", len(results))
	}
}

func TestClosedStoreRejectsCalls(t *testing.T) {
	m := newTestStore(t, &fakeIndex{}, Config{})
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err := m.StoreConversation(context.Background(), core.Turn{
		UserMessage: "hi", AssistantResponse: "x", AgentID: "a",
	})
	if !errors.Is(err, core.ErrUnavailable) {
		t.Fatalf("closed store: got %v, want ErrUnavailable", err)
	}
}
