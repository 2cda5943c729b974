package server

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/flowmatik/backend/core"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The terminal frontend is served from another origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// wsDone is the terminal frame of one WebSocket generation, the counterpart
// of the SSE [DONE] sentinel.
type wsDone struct {
	Type string `json:"type"`
}

// handleTerminalWS runs a bidirectional chat: each client frame is a
// chatRequest, each response chunk goes back as its own JSON frame using the
// same chunk schema as SSE, terminated by a {"type":"done"} frame.
func (s *Server) handleTerminalWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SERVER] websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	// Frames without a session id share one generated session so the whole
	// connection gets memory continuity.
	connSession := uuid.NewString()

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[SERVER] websocket read: %v", err)
			}
			return
		}
		if req.SessionID == "" {
			req.SessionID = connSession
		}

		agentID, opts := req.normalize()
		mux, err := s.system.Stream(r.Context(), agentID, req.Message, opts)
		if err != nil {
			if werr := s.writeWS(conn, core.Chunk{Type: core.ChunkError, Error: err.Error()}); werr != nil {
				return
			}
			continue
		}

		for chunk := range mux.Chunks() {
			if err := s.writeWS(conn, chunk); err != nil {
				mux.Cancel()
				return
			}
		}
		if err := s.writeWS(conn, wsDone{Type: "done"}); err != nil {
			return
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}
