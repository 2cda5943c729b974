//go:build onnx

package main

import (
	"log"
	"os"

	"github.com/flowmatik/backend/memory"
	mockembed "github.com/flowmatik/backend/memory/embedder/mock"
	onnxembed "github.com/flowmatik/backend/memory/embedder/onnx"
)

// newEmbedder loads the local MiniLM model. Falls back to the hash embedder
// when the model cannot be loaded, so the server still starts.
func newEmbedder() memory.Embedder {
	e, err := onnxembed.New(onnxembed.Config{
		ModelPath:     os.Getenv("FLOWMATIK_ONNX_MODEL"),
		TokenizerPath: os.Getenv("FLOWMATIK_ONNX_TOKENIZER"),
	})
	if err != nil {
		log.Printf("[MEMORY] onnx embedder unavailable, using hash embedder: %v", err)
		return mockembed.New()
	}
	return e
}
