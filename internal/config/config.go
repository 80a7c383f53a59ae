// Package config loads and validates the rudybot configuration.
// Configuration is an explicit, validated structure with enumerated
// fields and defaults; components receive the values they need rather
// than reading ambient globals.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// CorpusConfig configures where documents are read from.
type CorpusConfig struct {
	// Dir is the directory holding the document corpus.
	Dir string `toml:"dir"`

	// Extensions lists the file extensions that are ingested.
	Extensions []string `toml:"extensions"`
}

// ChunkerConfig configures how extracted text is split.
type ChunkerConfig struct {
	// MaxTokens is the maximum estimated tokens per chunk.
	MaxTokens int `toml:"max_tokens"`

	// OverlapTokens is the overlap carried between consecutive chunks.
	OverlapTokens int `toml:"overlap_tokens"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "openai" or "ollama".
	Provider string `toml:"provider"`

	// Model is the embedding model name. The model name doubles as the
	// pinned model version stored in index metadata.
	Model string `toml:"model"`

	// BaseURL overrides the provider API base URL.
	BaseURL string `toml:"base_url"`

	// BatchSize is the number of chunks embedded per request.
	BatchSize int `toml:"batch_size"`
}

// LLMConfig selects and configures the generative model provider.
type LLMConfig struct {
	// Provider is "gemini" or "ollama".
	Provider string `toml:"provider"`

	// Model is the generative model name.
	Model string `toml:"model"`

	// BaseURL overrides the provider API base URL.
	BaseURL string `toml:"base_url"`

	// RequestsPerMinute caps generation calls (free-tier quotas).
	RequestsPerMinute float64 `toml:"requests_per_minute"`
}

// IndexConfig configures the vector index backend.
type IndexConfig struct {
	// Backend is "qdrant" or "memory".
	Backend string `toml:"backend"`

	// URL is the Qdrant base URL.
	URL string `toml:"url"`

	// Collection is the Qdrant collection name.
	Collection string `toml:"collection"`
}

// RetrievalConfig configures query-time retrieval.
type RetrievalConfig struct {
	// TopN is the candidate count fetched from the index.
	TopN int `toml:"top_n"`

	// K is the final count kept after reranking.
	K int `toml:"k"`

	// Rerank enables the secondary LLM relevance pass.
	Rerank bool `toml:"rerank"`

	// TokenBudget caps the assembled context size.
	TokenBudget int `toml:"token_budget"`

	// DedupOverlap is the span-overlap ratio beyond which two chunks of
	// the same document are considered duplicates (0-1).
	DedupOverlap float64 `toml:"dedup_overlap"`
}

// SessionConfig configures per-user conversational state.
type SessionConfig struct {
	// MaxTurns bounds the per-user history; oldest turns evict first.
	MaxTurns int `toml:"max_turns"`

	// ExpiryHours is the inactivity window after which turns are
	// excluded from rewrite context.
	ExpiryHours int `toml:"expiry_hours"`

	// RewriteWindow is how many recent turns the query rewriter sees.
	RewriteWindow int `toml:"rewrite_window"`

	// Persist stores sessions in SQLite instead of memory.
	Persist bool `toml:"persist"`
}

// Config is the root configuration structure.
type Config struct {
	// DataDir holds the SQLite database and derived state.
	DataDir string `toml:"data_dir"`

	Corpus    CorpusConfig    `toml:"corpus"`
	Chunker   ChunkerConfig   `toml:"chunker"`
	Embedding EmbeddingConfig `toml:"embedding"`
	LLM       LLMConfig       `toml:"llm"`
	Index     IndexConfig     `toml:"index"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Session   SessionConfig   `toml:"session"`

	// RequestTimeout bounds each external service call.
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		DataDir: "",
		Corpus: CorpusConfig{
			Dir:        "documents",
			Extensions: []string{".pdf", ".txt", ".md"},
		},
		Chunker: ChunkerConfig{
			MaxTokens:     512,
			OverlapTokens: 50,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			BatchSize: 32,
		},
		LLM: LLMConfig{
			Provider:          "gemini",
			Model:             "gemini-2.5-flash",
			RequestsPerMinute: 10,
		},
		Index: IndexConfig{
			Backend:    "qdrant",
			URL:        "http://localhost:6333",
			Collection: "knowledge_base",
		},
		Retrieval: RetrievalConfig{
			TopN:         20,
			K:            5,
			Rerank:       false,
			TokenBudget:  3000,
			DedupOverlap: 0.5,
		},
		Session: SessionConfig{
			MaxTurns:      10,
			ExpiryHours:   24,
			RewriteWindow: 3,
			Persist:       false,
		},
		RequestTimeoutSecs: 15,
	}
}

// Load reads configuration from path. A missing file returns defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate enforces configuration invariants.
func (c *Config) Validate() error {
	if c.Chunker.MaxTokens <= 0 {
		return fmt.Errorf("chunker.max_tokens must be positive, got %d", c.Chunker.MaxTokens)
	}
	if c.Chunker.OverlapTokens < 0 || c.Chunker.OverlapTokens >= c.Chunker.MaxTokens {
		return fmt.Errorf("chunker.overlap_tokens must be in [0, max_tokens), got %d", c.Chunker.OverlapTokens)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Retrieval.K <= 0 || c.Retrieval.TopN < c.Retrieval.K {
		return fmt.Errorf("retrieval requires 0 < k <= top_n, got k=%d top_n=%d", c.Retrieval.K, c.Retrieval.TopN)
	}
	if c.Retrieval.TokenBudget <= 0 {
		return fmt.Errorf("retrieval.token_budget must be positive, got %d", c.Retrieval.TokenBudget)
	}
	if c.Retrieval.DedupOverlap < 0 || c.Retrieval.DedupOverlap > 1 {
		return fmt.Errorf("retrieval.dedup_overlap must be in [0, 1], got %v", c.Retrieval.DedupOverlap)
	}
	if c.Session.MaxTurns <= 0 {
		return fmt.Errorf("session.max_turns must be positive, got %d", c.Session.MaxTurns)
	}
	if c.Session.RewriteWindow <= 0 {
		return fmt.Errorf("session.rewrite_window must be positive, got %d", c.Session.RewriteWindow)
	}
	if c.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("request_timeout_secs must be positive, got %d", c.RequestTimeoutSecs)
	}
	return nil
}

// RequestTimeout returns the per-call timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// SessionExpiry returns the inactivity window as a duration.
func (c *Config) SessionExpiry() time.Duration {
	return time.Duration(c.Session.ExpiryHours) * time.Hour
}
