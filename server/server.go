// Package server exposes the Flowmatik backend over HTTP: JSON APIs, SSE
// streaming, and a WebSocket terminal channel.
package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/flowmatik/backend/agents"
	"github.com/flowmatik/backend/core"
	"github.com/flowmatik/backend/memory"
	"github.com/flowmatik/backend/usage"
)

// MemoryStore is the slice of the memory store the HTTP surface needs.
type MemoryStore interface {
	SessionContext(ctx context.Context, sessionID string, windowBound int) ([]core.Turn, error)
	SemanticSearch(ctx context.Context, query string, limit int) ([]memory.SearchResult, error)
	CreateBackup(ctx context.Context) (*memory.Backup, error)
	Stats(ctx context.Context) (*memory.Stats, error)
}

// Server wires the dispatcher, memory store and usage tracker to HTTP
// routes. It starts not-ready: every route except /health returns 503 until
// MarkReady is called after startup completes.
type Server struct {
	system *agents.System
	store  MemoryStore
	usage  *usage.Tracker

	started time.Time
	ready   atomic.Bool
}

// New builds the server. store may be nil when memory is disabled.
func New(system *agents.System, store MemoryStore, tracker *usage.Tracker) *Server {
	return &Server{
		system:  system,
		store:   store,
		usage:   tracker,
		started: time.Now(),
	}
}

// MarkReady opens the API routes. Called once all subsystems are up.
func (s *Server) MarkReady() { s.ready.Store(true) }

// Handler returns the full route tree with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("GET /api/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("POST /api/agents/{id}/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/agents/{id}/stream", s.handleAgentStream)

	mux.HandleFunc("POST /api/hooks/create", s.handleCreateHook)
	mux.HandleFunc("POST /api/trends/analyze", s.handleAnalyzeTrend)
	mux.HandleFunc("POST /api/content/optimize", s.handleOptimizeContent)
	mux.HandleFunc("POST /api/thumbnails/design", s.handleDesignThumbnail)

	mux.HandleFunc("POST /api/terminal/chat", s.handleTerminalChat)
	mux.HandleFunc("POST /api/terminal/chat/stream", s.handleTerminalChatStream)
	mux.HandleFunc("GET /api/terminal/ws", s.handleTerminalWS)
	mux.HandleFunc("POST /api/terminal/command", s.handleTerminalCommand)
	mux.HandleFunc("GET /api/terminal/status", s.handleTerminalStatus)
	mux.HandleFunc("POST /api/terminal/backup", s.handleBackup)

	mux.HandleFunc("GET /api/memory/sessions/{id}", s.handleSessionContext)
	mux.HandleFunc("POST /api/memory/search", s.handleMemorySearch)

	return withLogging(withCORS(s.gate(mux)))
}

// gate returns 503 for every route except /health until the server is ready.
func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() && r.URL.Path != "/health" {
			writeError(w, http.StatusServiceUnavailable, "server is starting")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) uptime() string {
	return time.Since(s.started).Round(time.Second).String()
}
