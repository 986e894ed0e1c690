package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Ollama defaults.
const (
	DefaultOllamaHost    = "http://localhost:11434"
	DefaultOllamaModel   = "embeddinggemma"
	DefaultOllamaTimeout = 60 * time.Second
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434).
	Host string

	// Model is the embedding model to use.
	Model string

	// Dimensions overrides auto-detection when non-zero.
	Dimensions int

	// MaxTokens is the model's input token budget, if known.
	MaxTokens int

	// Timeout for API requests.
	Timeout time.Duration
}

// DefaultOllamaConfig returns sensible defaults.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:    DefaultOllamaHost,
		Model:   DefaultOllamaModel,
		Timeout: DefaultOllamaTimeout,
	}
}

// ollamaEmbedRequest is the /api/embed request body.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaEmbedder generates embeddings via a local Ollama server. It performs
// no retries: retry policy for flaky network backends belongs to the caller.
type OllamaEmbedder struct {
	config OllamaConfig
	client *http.Client

	mu     sync.RWMutex
	dims   int
	closed bool
}

// NewOllamaEmbedder creates an Ollama-backed embedder.
func NewOllamaEmbedder(config OllamaConfig) (*OllamaEmbedder, error) {
	if config.Host == "" {
		config.Host = DefaultOllamaHost
	}
	if config.Model == "" {
		return nil, fmt.Errorf("ollama embedder: model is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultOllamaTimeout
	}

	return &OllamaEmbedder{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		dims:   config.Dimensions,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one API call.
// Whitespace-only texts embed to zero vectors without touching the server.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var liveIdx []int
	var liveTexts []string
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.Dimensions())
		} else {
			liveIdx = append(liveIdx, i)
			liveTexts = append(liveTexts, text)
		}
	}
	if len(liveTexts) == 0 {
		return results, nil
	}

	vectors, err := e.callEmbed(ctx, liveTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(liveTexts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(liveTexts), len(vectors))
	}

	for i, vec := range vectors {
		results[liveIdx[i]] = vec
	}
	return results, nil
}

// callEmbed posts to /api/embed and converts the response to float32.
func (e *OllamaEmbedder) callEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed call: status %d", resp.StatusCode)
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		vectors[i] = normalizeVector(vec)
	}

	// Record dimensions on first successful call when auto-detecting.
	if len(vectors) > 0 {
		e.mu.Lock()
		if e.dims == 0 {
			e.dims = len(vectors[0])
		}
		e.mu.Unlock()
	}

	return vectors, nil
}

// Dimensions returns the embedding dimension, 0 until first call when
// auto-detecting.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// MaxTokens returns the configured token budget.
func (e *OllamaEmbedder) MaxTokens() int { return e.config.MaxTokens }

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string { return e.config.Model }

// Available checks the Ollama server with a cheap GET.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close marks the embedder closed.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
