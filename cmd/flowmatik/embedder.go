//go:build !onnx

package main

import (
	"github.com/flowmatik/backend/memory"
	mockembed "github.com/flowmatik/backend/memory/embedder/mock"
)

// newEmbedder returns the hash-based embedder. Build with -tags onnx for the
// local MiniLM model.
func newEmbedder() memory.Embedder {
	return mockembed.New()
}
