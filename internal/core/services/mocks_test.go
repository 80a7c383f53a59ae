package services

import (
	"context"
	"sync"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driven"
)

// mockEmbedder is a deterministic embedding service for tests.
type mockEmbedder struct {
	model      string
	embedFunc  func(text string) ([]float32, error)
	batchCalls int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{
		model: "test-embed",
		embedFunc: func(text string) ([]float32, error) {
			// Length-derived vector keeps tests deterministic.
			return []float32{float32(len(text)), 1, 0}, nil
		},
	}
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return m.embedFunc(text)
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.embedFunc(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int              { return 3 }
func (m *mockEmbedder) ModelName() string            { return m.model }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error                 { return nil }

// mockLLM answers every completion with a configurable function.
type mockLLM struct {
	completeFunc func(prompt string, opts driven.CompleteOptions) (string, error)
	calls        int
	prompts      []string
}

func (m *mockLLM) Complete(_ context.Context, prompt string, opts driven.CompleteOptions) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	return m.completeFunc(prompt, opts)
}

func (m *mockLLM) ModelName() string            { return "test-llm" }
func (m *mockLLM) Ping(_ context.Context) error { return nil }
func (m *mockLLM) Close() error                 { return nil }

// mockIndex is a scriptable vector index.
type mockIndex struct {
	modelVersion    string
	modelVersionErr error
	searchHits      []driven.VectorHit
	searchErr       error
	upserted        [][]driven.IndexEntry
	deleted         [][]string
	count           int
	countErr        error
}

func (m *mockIndex) Upsert(_ context.Context, entries []driven.IndexEntry) error {
	m.upserted = append(m.upserted, entries)
	m.count += len(entries)
	return nil
}

func (m *mockIndex) Delete(_ context.Context, chunkIDs []string) error {
	m.deleted = append(m.deleted, chunkIDs)
	m.count -= len(chunkIDs)
	return nil
}

func (m *mockIndex) Search(_ context.Context, _ []float32, _ int) ([]driven.VectorHit, error) {
	return m.searchHits, m.searchErr
}

func (m *mockIndex) ModelVersion(_ context.Context) (string, error) {
	return m.modelVersion, m.modelVersionErr
}

func (m *mockIndex) SetModelVersion(_ context.Context, version string) error {
	m.modelVersion = version
	return nil
}

func (m *mockIndex) Count(_ context.Context) (int, error) { return m.count, m.countErr }
func (m *mockIndex) Close() error                         { return nil }

// mockParser serves canned text blocks per path.
type mockParser struct {
	blocks map[string][]domain.TextBlock
	errs   map[string]error
}

func (m *mockParser) Extract(_ context.Context, path string) ([]domain.TextBlock, error) {
	if err := m.errs[path]; err != nil {
		return nil, err
	}
	return m.blocks[path], nil
}

// mockDocStore is a map-backed document store.
type mockDocStore struct {
	mu     sync.Mutex
	docs   map[string]domain.Document
	chunks map[string][]domain.Chunk
}

func newMockDocStore() *mockDocStore {
	return &mockDocStore{
		docs:   make(map[string]domain.Document),
		chunks: make(map[string][]domain.Chunk),
	}
}

func (m *mockDocStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = *doc
	return nil
}

func (m *mockDocStore) GetDocumentBySourcePath(_ context.Context, path string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.docs {
		doc := m.docs[id]
		if doc.SourcePath == path {
			return &doc, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocStore) SaveChunks(_ context.Context, documentID string, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[documentID] = append([]domain.Chunk(nil), chunks...)
	return nil
}

func (m *mockDocStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Chunk(nil), m.chunks[documentID]...), nil
}

func (m *mockDocStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := make([]domain.Document, 0, len(m.docs))
	for id := range m.docs {
		docs = append(docs, m.docs[id])
	}
	return docs, nil
}

func (m *mockDocStore) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	delete(m.chunks, id)
	return nil
}

// mockSessionStore is a map-backed session store with scriptable Get.
type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string][]domain.Turn
	getErr   error
	resets   int
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string][]domain.Turn)}
}

func (m *mockSessionStore) Get(_ context.Context, userID string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		err := m.getErr
		m.getErr = nil
		return domain.Session{}, err
	}
	return domain.Session{
		UserID: userID,
		Turns:  append([]domain.Turn(nil), m.sessions[userID]...),
	}, nil
}

func (m *mockSessionStore) Append(_ context.Context, userID string, turn domain.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = append(m.sessions[userID], turn)
	return nil
}

func (m *mockSessionStore) Reset(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	delete(m.sessions, userID)
	return nil
}

func (m *mockSessionStore) Lock(_ string) func() { return func() {} }
