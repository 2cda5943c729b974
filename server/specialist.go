package server

import "net/http"

func (s *Server) handleCreateHook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Platform string `json:"platform"`
		Topic    string `json:"topic"`
		Style    string `json:"style"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.system.CreateHook(r.Context(), req.Platform, req.Topic, req.Style)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnalyzeTrend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic     string `json:"topic"`
		Timeframe string `json:"timeframe"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.system.AnalyzeTrend(r.Context(), req.Topic, req.Timeframe)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOptimizeContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
		Metrics string `json:"metrics"`
		Goal    string `json:"goal"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.system.OptimizeContent(r.Context(), req.Content, req.Metrics, req.Goal)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDesignThumbnail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VideoTitle     string `json:"videoTitle"`
		TargetAudience string `json:"targetAudience"`
		Platform       string `json:"platform"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.system.DesignThumbnail(r.Context(), req.VideoTitle, req.TargetAudience, req.Platform)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
