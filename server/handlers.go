package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/flowmatik/backend/agents"
	"github.com/flowmatik/backend/core"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "Flowmatik Backend",
		"ready":     s.ready.Load(),
		"memory":    s.store != nil,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "operational",
		"agents":    s.system.Registry().Len(),
		"uptime":    s.uptime(),
		"timestamp": time.Now().UTC(),
	}
	if s.usage != nil {
		resp["usage"] = s.usage.Stats()
	}
	if s.store != nil {
		if stats, err := s.store.Stats(r.Context()); err == nil {
			resp["memory"] = stats
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	list := s.system.Registry().List()
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": list,
		"total":  len(list),
	})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.system.Registry().Get(r.PathValue("id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent": agent})
}

type generateRequest struct {
	Prompt  string               `json:"prompt"`
	Options core.GenerateOptions `json:"options"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.system.Generate(r.Context(), r.PathValue("id"), req.Prompt, req.Options)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAgentStream(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mux, err := s.system.Stream(r.Context(), r.PathValue("id"), req.Prompt, req.Options)
	if err != nil {
		fail(w, err)
		return
	}
	streamSSE(w, r, mux)
}

type chatRequest struct {
	Message   string               `json:"message"`
	SessionID string               `json:"sessionId"`
	AgentID   string               `json:"agentId"`
	Options   core.GenerateOptions `json:"options"`
}

func (c *chatRequest) normalize() (agentID string, opts core.GenerateOptions) {
	agentID = c.AgentID
	if agentID == "" {
		agentID = agents.DefaultAgentID
	}
	opts = c.Options
	opts.SessionID = c.SessionID
	return agentID, opts
}

func (s *Server) handleTerminalChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	agentID, opts := req.normalize()
	result, err := s.system.Generate(r.Context(), agentID, req.Message, opts)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"content":      result.Content,
		"cost":         result.Cost,
		"model":        result.Model,
		"agentId":      result.AgentID,
		"reasoning":    result.Reasoning,
		"sessionId":    req.SessionID,
		"memoryActive": s.store != nil,
	})
}

func (s *Server) handleTerminalChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	agentID, opts := req.normalize()
	mux, err := s.system.Stream(r.Context(), agentID, req.Message, opts)
	if err != nil {
		fail(w, err)
		return
	}
	streamSSE(w, r, mux)
}

func (s *Server) handleTerminalCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command   string `json:"command"`
		SessionID string `json:"sessionId"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.system.InterpretCommand(r.Context(), req.Command, req.SessionID)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"command":        req.Command,
		"interpretation": result.Content,
		"executed":       true,
		"timestamp":      time.Now().UTC(),
	})
}

func (s *Server) handleTerminalStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"system": "Flowmatik Terminal",
		"status": "operational",
		"agents": map[string]any{
			"total":         s.system.Registry().Len(),
			"droppedWrites": s.system.DroppedWrites(),
		},
		"uptime":    s.uptime(),
		"timestamp": time.Now().UTC(),
	}
	if s.usage != nil {
		resp["usage"] = s.usage.Stats()
	}
	if s.store != nil {
		stats, err := s.store.Stats(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		resp["memory"] = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "memory system not available")
		return
	}
	backup, err := s.store.CreateBackup(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backup":    backup,
		"message":   "backup created",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSessionContext(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "memory system not available")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	sessionID := r.PathValue("id")
	turns, err := s.store.SessionContext(r.Context(), sessionID, limit)
	if err != nil {
		fail(w, err)
		return
	}
	if turns == nil {
		turns = []core.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"turns":     turns,
		"count":     len(turns),
	})
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "memory system not available")
		return
	}
	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	results, err := s.store.SemanticSearch(r.Context(), req.Query, req.Limit)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"results": results,
		"count":   len(results),
	})
}
