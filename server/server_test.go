package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmatik/backend/agents"
	"github.com/flowmatik/backend/core"
	"github.com/flowmatik/backend/memory"
	mockembed "github.com/flowmatik/backend/memory/embedder/mock"
	"github.com/flowmatik/backend/provider"
	"github.com/flowmatik/backend/usage"
)

// noIndex satisfies memory.Index without any semantic matching; search
// coverage lives in the memory package tests.
type noIndex struct{}

func (noIndex) Add(ctx context.Context, turnID, text string, embedding []float32) error {
	return nil
}
func (noIndex) Query(ctx context.Context, embedding []float32, limit int) ([]memory.Match, error) {
	return nil, nil
}
func (noIndex) Count() int { return 0 }

func newTestServer(t *testing.T) (*Server, *provider.Mock) {
	t.Helper()
	registry, err := agents.NewRegistry(agents.Builtin())
	require.NoError(t, err)

	store, err := memory.New(noIndex{}, mockembed.New(), memory.Config{
		DBPath:       filepath.Join(t.TempDir(), "test.db"),
		ResolveAgent: registry.Has,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mock := provider.NewMock(agents.DefaultModel)
	tracker := usage.NewTracker()
	system := agents.NewSystem(registry, mock,
		agents.WithMemory(store),
		agents.WithUsage(tracker),
	)

	srv := New(system, store, tracker)
	srv.MarkReady()
	return srv, mock
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestReadinessGate(t *testing.T) {
	registry, err := agents.NewRegistry(agents.Builtin())
	require.NoError(t, err)
	system := agents.NewSystem(registry, provider.NewMock(agents.DefaultModel))
	srv := New(system, nil, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health must answer before ready")

	rec = do(t, h, http.MethodGet, "/api/agents", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	srv.MarkReady()
	rec = do(t, h, http.MethodGet, "/api/agents", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListAndGetAgents(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 8, body["total"])

	rec = do(t, h, http.MethodGet, "/api/agents/flowi-ceo", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/agents/no-such-agent", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentResponseOmitsSystemPrompt(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodGet, "/api/agents/flowi-ceo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "system_prompt")
	assert.NotContains(t, rec.Body.String(), "You are FLOWI")
}

func TestGenerateEndpoint(t *testing.T) {
	srv, mock := newTestServer(t)
	mock.AddResponse("write a hook", "here is a hook")
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/agents/hook-creator/generate",
		map[string]any{"prompt": "write a hook"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "here is a hook", body["content"])
	assert.Equal(t, "hook-creator", body["agentId"])

	rec = do(t, h, http.MethodPost, "/api/agents/hook-creator/generate",
		map[string]any{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/agents/missing/generate",
		map[string]any{"prompt": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpstreamFailureMapsTo502(t *testing.T) {
	srv, mock := newTestServer(t)
	mock.FailWith(assert.AnError)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/agents/flowi-ceo/generate",
		map[string]any{"prompt": "hi"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSSEStreaming(t *testing.T) {
	srv, mock := newTestServer(t)
	mock.AddResponse("hi", "ok!")

	rec := do(t, srv.Handler(), http.MethodPost, "/api/agents/flowi-ceo/stream",
		map[string]any{"prompt": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.NotEmpty(t, frames)
	assert.Equal(t, "data: [DONE]", frames[len(frames)-1])

	var text string
	for _, frame := range frames[:len(frames)-1] {
		var chunk core.Chunk
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &chunk))
		assert.Equal(t, core.ChunkContent, chunk.Type)
		text += chunk.Content
	}
	assert.Equal(t, "ok!", text)
}

func TestSSEStreamValidationFailsBeforeHeaders(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodPost, "/api/agents/missing/stream",
		map[string]any{"prompt": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestTerminalChatDefaultsToCEO(t *testing.T) {
	srv, mock := newTestServer(t)
	mock.AddResponse("hello", "hi there")

	rec := do(t, srv.Handler(), http.MethodPost, "/api/terminal/chat",
		map[string]any{"message": "hello", "sessionId": "s1"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "hi there", body["content"])
	assert.Equal(t, "flowi-ceo", body["agentId"])
	assert.Equal(t, "s1", body["sessionId"])
	assert.Equal(t, true, body["memoryActive"])
}

func TestTerminalCommand(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/terminal/command",
		map[string]any{"command": "list trending topics"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "list trending topics", body["command"])
	assert.Equal(t, true, body["executed"])
	assert.NotEmpty(t, body["interpretation"])

	rec = do(t, srv.Handler(), http.MethodPost, "/api/terminal/command",
		map[string]any{"command": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTerminalStatusAndBackup(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/terminal/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "operational", body["status"])
	assert.Contains(t, body, "memory")

	rec = do(t, h, http.MethodPost, "/api/terminal/backup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec), "backup")
}

func TestMemoryEndpoints(t *testing.T) {
	srv, mock := newTestServer(t)
	mock.AddResponse("remember this", "stored")
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/terminal/chat",
		map[string]any{"message": "remember this", "sessionId": "s1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/memory/sessions/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["count"])

	rec = do(t, h, http.MethodGet, "/api/memory/sessions/unknown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["count"])

	rec = do(t, h, http.MethodPost, "/api/memory/search",
		map[string]any{"query": "anything"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["count"])

	rec = do(t, h, http.MethodPost, "/api/memory/search",
		map[string]any{"query": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpecialistEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		path string
		body map[string]any
		want string
	}{
		{"/api/hooks/create", map[string]any{"platform": "tiktok", "topic": "focus"}, "hook-creator"},
		{"/api/trends/analyze", map[string]any{"topic": "ai avatars"}, "trend-researcher"},
		{"/api/content/optimize", map[string]any{"content": "script", "metrics": "ctr 2%"}, "content-optimizer"},
		{"/api/thumbnails/design", map[string]any{"videoTitle": "My Video", "targetAudience": "creators"}, "thumbnail-designer"},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodPost, tt.path, tt.body)
		require.Equal(t, http.StatusOK, rec.Code, tt.path)
		assert.Equal(t, tt.want, decode(t, rec)["agentId"], tt.path)
	}

	rec := do(t, h, http.MethodPost, "/api/hooks/create", map[string]any{"topic": "focus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing platform")
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodOptions, "/api/agents", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
