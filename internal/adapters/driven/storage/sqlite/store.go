// Package sqlite provides a unified SQLite-based implementation of the
// persistence ports.
//
// The adapter uses modernc.org/sqlite, a pure Go SQLite implementation
// that requires no CGO. One database connection backs both the document
// store and the session store:
//
//   - DocumentStore: document and chunk persistence
//   - SessionStore: bounded per-user conversation history
//
// The schema is managed through versioned migrations embedded in the
// migrations/ directory. All operations are thread-safe; the store
// relies on SQLite's database-level locking in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/oratorio-dev/rudybot/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/oratorio-dev/rudybot/internal/core/domain"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driven"
)

// DefaultMaxTurns bounds the per-user history.
const DefaultMaxTurns = 10

// Store is a unified SQLite-based storage that provides access to the
// persistence interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string

	lockMu sync.Mutex
	locks  map[string]*userLock

	maxTurns int
}

// userLock is a per-user mutex with a holder count so its map entry can
// be reaped once the last holder releases it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.rudybot/data/rudybot.db.
func NewStore(dataDir string, maxTurns int) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".rudybot", "data")
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "rudybot.db")

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:       db,
		path:     dbPath,
		locks:    make(map[string]*userLock),
		maxTurns: maxTurns,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// SessionStore returns a SessionStore interface backed by this store.
func (s *Store) SessionStore() driven.SessionStore {
	return &sessionStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// SaveDocument stores or updates a document.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, source_path, title, content_hash, ingested_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_path = excluded.source_path,
			title = excluded.title,
			content_hash = excluded.content_hash,
			ingested_at = excluded.ingested_at
	`, doc.ID, doc.SourcePath, doc.Title, doc.ContentHash, doc.IngestedAt)

	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocumentBySourcePath finds the document last ingested from a path.
func (s *documentStore) GetDocumentBySourcePath(ctx context.Context, path string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, source_path, title, content_hash, ingested_at
		FROM documents WHERE source_path = ?
	`, path)

	var doc domain.Document
	if err := row.Scan(&doc.ID, &doc.SourcePath, &doc.Title, &doc.ContentHash, &doc.IngestedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return &doc, nil
}

// SaveChunks replaces the stored chunk set for a document.
func (s *documentStore) SaveChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, ordinal, text, start_offset, end_offset,
			token_count, page, section, content_hash, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, documentID, chunk.Ordinal, chunk.Text,
			chunk.StartOffset, chunk.EndOffset, chunk.TokenCount, chunk.Page, chunk.Section,
			chunk.ContentHash, float32SliceToBytes(chunk.Embedding)); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetChunks returns the chunks of a document ordered by ordinal.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, d.title, c.ordinal, c.text, c.start_offset, c.end_offset,
			c.token_count, c.page, c.section, c.content_hash, c.embedding
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.document_id = ?
		ORDER BY c.ordinal
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.Chunk
		var embeddingBlob []byte
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.DocumentTitle, &chunk.Ordinal,
			&chunk.Text, &chunk.StartOffset, &chunk.EndOffset, &chunk.TokenCount,
			&chunk.Page, &chunk.Section, &chunk.ContentHash, &embeddingBlob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunk.Embedding = bytesToFloat32Slice(embeddingBlob)
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// ListDocuments returns all ingested documents.
func (s *documentStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, source_path, title, content_hash, ingested_at
		FROM documents ORDER BY source_path
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		var doc domain.Document
		if err := rows.Scan(&doc.ID, &doc.SourcePath, &doc.Title, &doc.ContentHash, &doc.IngestedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document and its chunks.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// ==================== Session Store ====================

// sessionStore implements driven.SessionStore.
type sessionStore struct {
	store *Store
}

var _ driven.SessionStore = (*sessionStore)(nil)

// Get returns the session for a user, empty when none exists. A turn
// row whose cited chunk IDs cannot be decoded marks the session as
// corrupted.
func (s *sessionStore) Get(ctx context.Context, userID string) (domain.Session, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT question, rewritten_query, answer, cited_chunk_ids, at
		FROM turns WHERE user_id = ?
		ORDER BY id
	`, userID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	session := domain.Session{UserID: userID}
	for rows.Next() {
		var turn domain.Turn
		var citedJSON string
		if err := rows.Scan(&turn.Question, &turn.RewrittenQuery, &turn.Answer, &citedJSON, &turn.At); err != nil {
			return domain.Session{}, fmt.Errorf("scanning turn: %w", err)
		}
		if err := json.Unmarshal([]byte(citedJSON), &turn.CitedChunkIDs); err != nil {
			return domain.Session{}, fmt.Errorf("%w: %v", domain.ErrSessionCorrupted, err)
		}
		session.Turns = append(session.Turns, turn)
		if turn.At.After(session.UpdatedAt) {
			session.UpdatedAt = turn.At
		}
	}

	if err := rows.Err(); err != nil {
		return domain.Session{}, fmt.Errorf("iterating turns: %w", err)
	}
	return session, nil
}

// Append adds a turn, evicting the oldest when the bound is reached.
func (s *sessionStore) Append(ctx context.Context, userID string, turn domain.Turn) error {
	citedJSON, err := json.Marshal(turn.CitedChunkIDs)
	if err != nil {
		return fmt.Errorf("marshalling cited chunk IDs: %w", err)
	}
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns (user_id, question, rewritten_query, answer, cited_chunk_ids, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, userID, turn.Question, turn.RewrittenQuery, turn.Answer, string(citedJSON), turn.At); err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM turns WHERE user_id = ? AND id NOT IN (
			SELECT id FROM turns WHERE user_id = ? ORDER BY id DESC LIMIT ?
		)
	`, userID, userID, s.store.maxTurns); err != nil {
		return fmt.Errorf("evicting old turns: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Reset discards a user's session.
func (s *sessionStore) Reset(ctx context.Context, userID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM turns WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("resetting session: %w", err)
	}
	return nil
}

// Lock acquires the per-user exclusion scope. The lock entry is removed
// once no goroutine holds or waits for it, so the table stays bounded
// by the number of concurrently active users.
func (s *sessionStore) Lock(userID string) func() {
	s.store.lockMu.Lock()
	l, ok := s.store.locks[userID]
	if !ok {
		l = &userLock{}
		s.store.locks[userID] = l
	}
	l.refs++
	s.store.lockMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.store.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.store.locks, userID)
		}
		s.store.lockMu.Unlock()
	}
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
