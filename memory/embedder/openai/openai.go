// Package openai provides an embedder backed by any OpenAI-compatible
// embeddings API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hollowbrook/mnemo/memory"
)

// DefaultDimensions matches text-embedding-3-small.
const DefaultDimensions = 1536

// Embedder calls an OpenAI-compatible embeddings endpoint. Every Embed
// call is a fresh network request; there is no caching.
type Embedder struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	client  *http.Client
}

type embedRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// New creates an embedder against an OpenAI-compatible API. Zero values
// default to api.openai.com, text-embedding-3-small, 1536 dims.
func New(baseURL, apiKey, model string, dims int) *Embedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		dims:    dims,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Embed converts text to an embedding vector.
//
// A vector whose length differs from the configured dimensions is
// returned as-is with a logged warning; it is never truncated or
// padded.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(embedRequest{Input: text, Model: e.model})
	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, &memory.EmbeddingProviderError{Provider: "openai", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &memory.EmbeddingProviderError{Provider: "openai", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, &memory.EmbeddingProviderError{
			Provider: "openai",
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, string(b)),
		}
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &memory.EmbeddingProviderError{Provider: "openai", Err: err}
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, &memory.EmbeddingProviderError{
			Provider: "openai",
			Err:      fmt.Errorf("no embedding returned"),
		}
	}

	embedding := result.Data[0].Embedding
	if len(embedding) != e.dims {
		log.Printf("[EMBED] dimension mismatch from %s: want %d, got %d", e.model, e.dims, len(embedding))
	}
	return embedding, nil
}

// Dimensions returns the configured embedding size.
func (e *Embedder) Dimensions() int { return e.dims }
