package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/matlab-research/ontserve/internal/types"
)

// Embedder turns text into a fixed-length vector. The embedding model is
// an external collaborator; it is never called inside a transaction that
// also writes, so locks are never held across the network round trip.
type Embedder interface {
	Embed(ctx context.Context, text string) (types.Vector, error)
}

// HTTPEmbedder calls a remote embedding service.
type HTTPEmbedder struct {
	URL    string
	Dim    int
	Client *http.Client
}

// NewHTTPEmbedder returns an embedder bound to the collaborator URL, or
// nil if none is configured (candidates then rely on extractor-supplied
// embeddings).
func NewHTTPEmbedder(url string, dim int) *HTTPEmbedder {
	if url == "" {
		return nil
	}
	return &HTTPEmbedder{
		URL:    url,
		Dim:    dim,
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Embed implements Embedder.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) (types.Vector, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedder returned %d", resp.StatusCode)
	}

	var result struct {
		Embedding types.Vector `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	if e.Dim > 0 && result.Embedding.Dim() != e.Dim {
		return nil, fmt.Errorf("%w: embedder produced %d dimensions, expected %d",
			types.ErrDimensionMismatch, result.Embedding.Dim(), e.Dim)
	}
	return result.Embedding, nil
}
