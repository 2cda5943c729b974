//go:build onnx

// Package onnx embeds text with a local sentence-transformer model through
// ONNX Runtime. Built only with the onnx tag; deployments without the
// runtime library use the mock embedder instead.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// maxSequence is the model input length; longer texts are truncated.
	maxSequence = 128

	// Special token ids in the BERT vocabulary.
	clsID = 101
	sepID = 102
	unkID = 100
)

// Config locates the model and runtime artifacts.
type Config struct {
	// ModelPath is the ONNX model file (e.g. all-MiniLM-L6-v2 model.onnx).
	ModelPath string

	// TokenizerPath is the HuggingFace tokenizer.json shipped with the model.
	TokenizerPath string

	// SharedLibraryPath overrides the onnxruntime shared library location.
	// Falls back to the ONNXRUNTIME_LIB environment variable, then to the
	// library search path.
	SharedLibraryPath string

	// Dimensions is the output vector size; defaults to 384 (MiniLM).
	Dimensions int
}

// Embedder runs tokenization and inference for one model. Sessions are not
// safe for concurrent Run calls, so Embed serializes through a mutex.
type Embedder struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	vocab   map[string]int
	dims    int
}

// New loads the tokenizer and opens an inference session.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model path is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("tokenizer path is required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}

	if lib := sharedLibrary(cfg); lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	vocab, err := loadVocab(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil)
	if err != nil {
		return nil, fmt.Errorf("open onnx session: %w", err)
	}

	return &Embedder{session: session, vocab: vocab, dims: cfg.Dimensions}, nil
}

func sharedLibrary(cfg Config) string {
	if cfg.SharedLibraryPath != "" {
		return cfg.SharedLibraryPath
	}
	return os.Getenv("ONNXRUNTIME_LIB")
}

// Embed tokenizes the text, runs the model, mean-pools the token states and
// normalizes the result to unit length.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputIDs, attention := e.encode(text)
	tokenTypes := make([]int64, maxSequence)

	shape := ort.NewShape(1, maxSequence)
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, attention)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()
	typesTensor, err := ort.NewTensor(shape, tokenTypes)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typesTensor.Destroy()

	outputs := []ort.Value{nil}
	e.mu.Lock()
	err = e.session.Run([]ort.Value{idsTensor, maskTensor, typesTensor}, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	return e.pool(out, attention)
}

// pool reduces the model output to a single vector. A 2-D output is already
// pooled by the model; a 3-D output gets masked mean pooling.
func (e *Embedder) pool(out *ort.Tensor[float32], attention []int64) ([]float32, error) {
	data := out.GetData()
	shape := out.GetShape()

	vec := make([]float32, e.dims)
	switch len(shape) {
	case 2:
		if len(data) < e.dims {
			return nil, fmt.Errorf("output size %d below %d dimensions", len(data), e.dims)
		}
		copy(vec, data[:e.dims])

	case 3:
		seqLen, hidden := int(shape[1]), int(shape[2])
		if shape[0] != 1 || hidden != e.dims {
			return nil, fmt.Errorf("unexpected output shape %v", shape)
		}
		var attended float32
		for i := 0; i < seqLen; i++ {
			if attention[i] == 0 {
				continue
			}
			attended++
			row := data[i*hidden : (i+1)*hidden]
			for j, v := range row {
				vec[j] += v
			}
		}
		if attended == 0 {
			return nil, fmt.Errorf("no attended tokens")
		}
		for j := range vec {
			vec[j] /= attended
		}

	default:
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}

	unitNorm(vec)
	return vec, nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int { return e.dims }

// Close releases the inference session.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}

// encode produces fixed-length input ids and attention mask with [CLS] and
// [SEP] framing.
func (e *Embedder) encode(text string) (ids, attention []int64) {
	tokens := e.tokenize(text)
	if len(tokens) > maxSequence-2 {
		tokens = tokens[:maxSequence-2]
	}

	ids = make([]int64, maxSequence)
	attention = make([]int64, maxSequence)

	ids[0] = clsID
	attention[0] = 1
	for i, tok := range tokens {
		ids[i+1] = tok
		attention[i+1] = 1
	}
	ids[len(tokens)+1] = sepID
	attention[len(tokens)+1] = 1
	return ids, attention
}

// tokenize lowercases, splits on whitespace and maps each word to vocabulary
// ids, falling back to greedy WordPiece subwords and then [UNK].
func (e *Embedder) tokenize(text string) []int64 {
	var out []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := e.vocab[word]; ok {
			out = append(out, int64(id))
			continue
		}
		out = append(out, e.wordPiece(word)...)
	}
	return out
}

// wordPiece greedily matches the longest known prefix, continuing with the
// "##" marker BERT vocabularies use for word-internal pieces.
func (e *Embedder) wordPiece(word string) []int64 {
	var out []int64
	start := 0
	for start < len(word) {
		matched := false
		for end := len(word); end > start; end-- {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := e.vocab[piece]; ok {
				out = append(out, int64(id))
				start = end
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, unkID)
			start++
		}
	}
	return out
}

// loadVocab extracts the WordPiece vocabulary from a tokenizer.json.
func loadVocab(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has empty vocabulary", path)
	}
	return doc.Model.Vocab, nil
}

func unitNorm(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}
