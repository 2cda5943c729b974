package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/flowmatik/backend/stream"
)

// streamSSE relays a multiplexer's chunks as server-sent events: one
// `data: {json}` frame per chunk, then the literal `data: [DONE]` sentinel.
// Upstream errors arrive as error chunks inside the stream, not as HTTP
// errors — the 200 header is already on the wire by then.
func streamSSE(w http.ResponseWriter, r *http.Request, mux *stream.Multiplexer) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		mux.Cancel()
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range mux.Chunks() {
		data, err := json.Marshal(chunk)
		if err != nil {
			log.Printf("[SERVER] marshal chunk: %v", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			// Client went away; cancelling stops the upstream generation.
			mux.Cancel()
			return
		}
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
