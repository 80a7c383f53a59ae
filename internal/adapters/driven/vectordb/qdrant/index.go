// Package qdrant provides a vector index adapter backed by Qdrant's
// REST API. It assumes cosine distance and creates the collection on
// first use.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultURL        = "http://localhost:6333"
	DefaultCollection = "knowledge_base"
	DefaultTimeout    = 15 * time.Second
)

// metaPointID keys the index metadata point (embedding model version).
// It carries a zero vector and is filtered out of every search.
var metaPointID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("rudybot/index-meta")).String()

// Config holds configuration for the Qdrant index.
type Config struct {
	// URL is the Qdrant base URL (default: http://localhost:6333).
	URL string

	// APIKey is sent as the api-key header when set.
	APIKey string

	// Collection is the collection name (default: knowledge_base).
	Collection string

	// Dimensions is the embedding vector size (required).
	Dimensions int

	// Timeout is the request timeout (default: 15s).
	Timeout time.Duration
}

// Index is a Qdrant-backed implementation of driven.VectorIndex.
type Index struct {
	client     *http.Client
	url        string
	apiKey     string
	collection string
	dimensions int

	ensureOnce sync.Once
	ensureErr  error
}

// NewIndex creates a Qdrant index adapter.
func NewIndex(cfg Config) (*Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("qdrant: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Index{
		client:     &http.Client{Timeout: cfg.Timeout},
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
	}, nil
}

// pointID derives a deterministic UUID from the chunk ID. Qdrant only
// accepts UUIDs or unsigned integers as point IDs; deriving from the
// chunk ID keeps upserts idempotent.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("rudybot/chunk/"+chunkID)).String()
}

// ensureCollection creates the collection if it does not exist.
func (x *Index) ensureCollection(ctx context.Context) error {
	x.ensureOnce.Do(func() {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     x.dimensions,
				"distance": "Cosine",
			},
		}
		// Qdrant returns 409 when the collection already exists.
		err := x.doJSON(ctx, http.MethodPut,
			fmt.Sprintf("%s/collections/%s", x.url, x.collection), body, nil)
		if err != nil && !isConflict(err) {
			x.ensureErr = err
		}
	})
	return x.ensureErr
}

// Upsert inserts or replaces entries keyed by chunk ID.
func (x *Index) Upsert(ctx context.Context, entries []driven.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := x.ensureCollection(ctx); err != nil {
		return err
	}

	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		points[i] = map[string]any{
			"id":     pointID(e.Chunk.ID),
			"vector": e.Embedding,
			"payload": map[string]any{
				"kind":           "chunk",
				"chunk_id":       e.Chunk.ID,
				"document_id":    e.Chunk.DocumentID,
				"document_title": e.Chunk.DocumentTitle,
				"ordinal":        e.Chunk.Ordinal,
				"text":           e.Chunk.Text,
				"start_offset":   e.Chunk.StartOffset,
				"end_offset":     e.Chunk.EndOffset,
				"token_count":    e.Chunk.TokenCount,
				"page":           e.Chunk.Page,
				"section":        e.Chunk.Section,
				"content_hash":   e.Chunk.ContentHash,
			},
		}
	}
	body := map[string]any{"points": points}
	return x.doJSON(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points?wait=true", x.url, x.collection), body, nil)
}

// Delete removes entries by chunk ID.
func (x *Index) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = pointID(id)
	}
	body := map[string]any{"points": ids}
	return x.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/delete?wait=true", x.url, x.collection), body, nil)
}

// chunkFilter excludes the metadata point from queries.
var chunkFilter = map[string]any{
	"must_not": []map[string]any{
		{"key": "kind", "match": map[string]any{"value": "meta"}},
	},
}

// Search returns the k nearest neighbours by cosine similarity.
func (x *Index) Search(ctx context.Context, vector []float32, k int) ([]driven.VectorHit, error) {
	if k <= 0 {
		k = 5
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"filter":       chunkFilter,
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	err := x.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/search", x.url, x.collection), body, &resp)
	if err != nil {
		return nil, err
	}

	hits := make([]driven.VectorHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, driven.VectorHit{
			Chunk:      chunkFromPayload(r.Payload),
			Similarity: r.Score,
		})
	}
	return hits, nil
}

// ModelVersion reads the embedding model stamp, "" for a fresh index.
func (x *Index) ModelVersion(ctx context.Context) (string, error) {
	body := map[string]any{"ids": []string{metaPointID}, "with_payload": true}
	var resp struct {
		Result []struct {
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	err := x.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points", x.url, x.collection), body, &resp)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	if len(resp.Result) == 0 {
		return "", nil
	}
	v, _ := resp.Result[0].Payload["model_version"].(string)
	return v, nil
}

// SetModelVersion stamps the index with the embedding model.
func (x *Index) SetModelVersion(ctx context.Context, version string) error {
	if err := x.ensureCollection(ctx); err != nil {
		return err
	}
	body := map[string]any{
		"points": []map[string]any{{
			"id":     metaPointID,
			"vector": make([]float32, x.dimensions),
			"payload": map[string]any{
				"kind":          "meta",
				"model_version": version,
			},
		}},
	}
	return x.doJSON(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points?wait=true", x.url, x.collection), body, nil)
}

// Count returns the number of stored chunks.
func (x *Index) Count(ctx context.Context) (int, error) {
	body := map[string]any{"exact": true, "filter": chunkFilter}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := x.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/count", x.url, x.collection), body, &resp)
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return resp.Result.Count, nil
}

// Close releases resources.
func (x *Index) Close() error {
	return nil
}

// statusError carries the HTTP status of a failed Qdrant call.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant returned status %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusNotFound
}

func isConflict(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusConflict
}

// doJSON sends a JSON request and decodes the response into out.
func (x *Index) doJSON(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &statusError{status: resp.StatusCode, body: string(b)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// chunkFromPayload rebuilds a chunk from the stored payload.
func chunkFromPayload(payload map[string]any) domain.Chunk {
	c := domain.Chunk{}
	if v, ok := payload["chunk_id"].(string); ok {
		c.ID = v
	}
	if v, ok := payload["document_id"].(string); ok {
		c.DocumentID = v
	}
	if v, ok := payload["document_title"].(string); ok {
		c.DocumentTitle = v
	}
	if v, ok := payload["ordinal"].(float64); ok {
		c.Ordinal = int(v)
	}
	if v, ok := payload["text"].(string); ok {
		c.Text = v
	}
	if v, ok := payload["start_offset"].(float64); ok {
		c.StartOffset = int(v)
	}
	if v, ok := payload["end_offset"].(float64); ok {
		c.EndOffset = int(v)
	}
	if v, ok := payload["token_count"].(float64); ok {
		c.TokenCount = int(v)
	}
	if v, ok := payload["page"].(float64); ok {
		c.Page = int(v)
	}
	if v, ok := payload["section"].(string); ok {
		c.Section = v
	}
	if v, ok := payload["content_hash"].(string); ok {
		c.ContentHash = v
	}
	return c
}
