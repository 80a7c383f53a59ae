package cli

import (
	"fmt"
	"os"

	"github.com/oratorio-dev/rudybot/internal/adapters/driven/embedding/ollama"
	"github.com/oratorio-dev/rudybot/internal/adapters/driven/embedding/openai"
	"github.com/oratorio-dev/rudybot/internal/adapters/driven/llm/gemini"
	llmollama "github.com/oratorio-dev/rudybot/internal/adapters/driven/llm/ollama"
	"github.com/oratorio-dev/rudybot/internal/adapters/driven/parser"
	storagememory "github.com/oratorio-dev/rudybot/internal/adapters/driven/storage/memory"
	"github.com/oratorio-dev/rudybot/internal/adapters/driven/storage/sqlite"
	vectormemory "github.com/oratorio-dev/rudybot/internal/adapters/driven/vectordb/memory"
	"github.com/oratorio-dev/rudybot/internal/adapters/driven/vectordb/qdrant"
	"github.com/oratorio-dev/rudybot/internal/chunker"
	"github.com/oratorio-dev/rudybot/internal/config"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driven"
	"github.com/oratorio-dev/rudybot/internal/core/services"
)

// app holds the wired service graph for one command invocation.
type app struct {
	cfg *config.Config

	askService    *services.AskService
	ingestService *services.IngestService

	closers []func() error
}

// close releases all owned resources in reverse construction order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]() //nolint:errcheck
	}
}

// buildApp loads configuration and wires every adapter and service.
func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	a := &app{cfg: cfg}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, embedder.Close)

	llm, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, llm.Close)

	index, err := buildIndex(cfg, embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, index.Close)

	store, err := sqlite.NewStore(cfg.DataDir, cfg.Session.MaxTurns)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	sessions := driven.SessionStore(storagememory.NewSessionStore(cfg.Session.MaxTurns))
	if cfg.Session.Persist {
		sessions = store.SessionStore()
	}

	ch := chunker.New(
		chunker.WithMaxTokens(cfg.Chunker.MaxTokens),
		chunker.WithOverlapTokens(cfg.Chunker.OverlapTokens),
	)

	a.ingestService = services.NewIngestService(
		parser.New(),
		embedder,
		index,
		store.DocumentStore(),
		ch,
		services.WithBatchSize(cfg.Embedding.BatchSize),
		services.WithExtensions(cfg.Corpus.Extensions),
	)

	retriever := services.NewRetriever(embedder, index, llm,
		services.WithTopN(cfg.Retrieval.TopN),
		services.WithK(cfg.Retrieval.K),
		services.WithRerank(cfg.Retrieval.Rerank),
	)
	assembler := services.NewAssembler(
		services.WithTokenBudget(cfg.Retrieval.TokenBudget),
		services.WithDedupOverlap(cfg.Retrieval.DedupOverlap),
	)
	generator := services.NewGenerator(llm,
		services.WithRateLimit(cfg.LLM.RequestsPerMinute),
	)
	rewriter := services.NewRewriter(llm, cfg.Session.RewriteWindow)

	a.askService = services.NewAskService(
		sessions,
		rewriter,
		retriever,
		assembler,
		generator,
		services.WithCallTimeout(cfg.RequestTimeout()),
		services.WithSessionExpiry(cfg.SessionExpiry()),
		services.WithRewriteWindow(cfg.Session.RewriteWindow),
	)

	return a, nil
}

// buildEmbedder constructs the configured embedding provider.
func buildEmbedder(cfg *config.Config) (driven.EmbeddingService, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return openai.NewEmbeddingService(openai.Config{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
			Timeout: cfg.RequestTimeout(),
		})
	case "ollama", "":
		return ollama.NewEmbeddingService(ollama.Config{
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
			Timeout: cfg.RequestTimeout(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

// buildLLM constructs the configured generative model provider.
func buildLLM(cfg *config.Config) (driven.LLMService, error) {
	switch cfg.LLM.Provider {
	case "gemini", "":
		return gemini.NewLLMService(gemini.Config{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.RequestTimeout(),
		})
	case "ollama":
		return llmollama.NewLLMService(llmollama.Config{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.RequestTimeout(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// buildIndex constructs the configured vector index backend.
func buildIndex(cfg *config.Config, dimensions int) (driven.VectorIndex, error) {
	switch cfg.Index.Backend {
	case "qdrant", "":
		return qdrant.NewIndex(qdrant.Config{
			URL:        cfg.Index.URL,
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			Collection: cfg.Index.Collection,
			Dimensions: dimensions,
			Timeout:    cfg.RequestTimeout(),
		})
	case "memory":
		return vectormemory.NewIndex(), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}
