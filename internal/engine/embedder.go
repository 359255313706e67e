package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
}

// Provider wraps an Embedder behind a once-only availability probe. When the
// backend cannot be reached on first use, every subsequent Embed returns nil
// for the process lifetime and callers fall back to lexical matching. A nil
// vector is degraded capability, never an error.
type Provider struct {
	url      string
	model    string
	once     sync.Once
	embedder Embedder
}

// NewProvider creates a provider for an Ollama endpoint. The probe runs
// lazily on first Embed.
func NewProvider(url, model string) *Provider {
	if url == "" {
		url = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &Provider{url: url, model: model}
}

// NewProviderWith wraps a ready embedder, bypassing the probe. Used by tests
// and anywhere an embedder has already been constructed.
func NewProviderWith(emb Embedder) *Provider {
	p := &Provider{}
	p.once.Do(func() { p.embedder = emb })
	return p
}

// Embed returns an embedding for the text, or nil when the provider is
// unavailable or the call fails. Failures are logged and swallowed; ranking
// degrades to lexical matching.
func (p *Provider) Embed(ctx context.Context, text string) []float64 {
	p.once.Do(func() {
		if probeOllama(p.url, p.model) {
			p.embedder = NewOllamaEmbedder(p.url, p.model)
			return
		}
		log.Printf("embed: provider unavailable at %s, falling back to lexical matching", p.url)
	})

	if p.embedder == nil || strings.TrimSpace(text) == "" {
		return nil
	}

	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("embed: %v", err)
		return nil
	}
	return vec
}

// Available reports whether the probe has succeeded. Triggers the probe if
// it has not run yet.
func (p *Provider) Available() bool {
	p.Embed(context.Background(), "")
	return p.embedder != nil
}

// Model returns the active embedding model name, or "" when degraded.
func (p *Provider) Model() string {
	if p.embedder == nil {
		return ""
	}
	return p.embedder.Model()
}

// OllamaEmbedder uses Ollama's embedding API.
type OllamaEmbedder struct {
	url    string
	model  string
	client *http.Client
}

// NewOllamaEmbedder creates an embedder using Ollama's API.
func NewOllamaEmbedder(url, model string) *OllamaEmbedder {
	return &OllamaEmbedder{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *OllamaEmbedder) Model() string { return "ollama:" + o.model }

// Embed sends text to Ollama's embed endpoint and returns the embedding vector.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	reqBody := map[string]any{
		"model": o.model,
		"input": text,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.url+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed status %d: %s", resp.StatusCode, respBody)
	}

	var result struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}
	return result.Embeddings[0], nil
}

// probeOllama checks if Ollama is reachable and the embedding model is available.
func probeOllama(url, model string) bool {
	client := &http.Client{Timeout: 3 * time.Second}
	reqBody, _ := json.Marshal(map[string]any{
		"model": model,
		"input": "test",
	})
	resp, err := client.Post(url+"/api/embed", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 on empty or length-mismatched input; never panics.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// LexicalScore is the ranking fallback when no embedding is available: the
// fraction of query words (longer than 2 chars, lower-cased) found as
// substrings of the text.
func LexicalScore(query, text string) float64 {
	lowerText := strings.ToLower(text)
	var total, matched int
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if len(word) <= 2 {
			continue
		}
		total++
		if strings.Contains(lowerText, word) {
			matched++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}
