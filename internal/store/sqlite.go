package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/quarry-search/quarry/pkg/filter"
	"github.com/quarry-search/quarry/pkg/retrieval"
)

// SQLiteStore is a keyword search backend over SQLite FTS5. Metadata filters
// compile to SQL over the JSON metadata column, so filtering happens inside
// the query rather than in memory. WAL mode allows concurrent readers.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var (
	_ retrieval.SearchProvider = (*SQLiteStore)(nil)
	_ retrieval.Remover        = (*SQLiteStore)(nil)
	_ retrieval.Clearer        = (*SQLiteStore)(nil)
	_ retrieval.CloserProvider = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens or creates a store at path. An empty path creates an
// in-memory store for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", filepath.Dir(path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer prevents lock contention with modernc.org/sqlite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id       TEXT PRIMARY KEY,
		content  TEXT NOT NULL,
		metadata TEXT
	);

	-- doc_id is UNINDEXED: stored for joins but not searchable.
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='unicode61'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Index upserts documents. Existing ids are replaced.
func (s *SQLiteStore) Index(ctx context.Context, docs []retrieval.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 virtual tables don't support REPLACE, so delete first.
	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`)
	if err != nil {
		return 0, fmt.Errorf("prepare delete: %w", err)
	}
	defer deleteStmt.Close()

	ftsStmt, err := tx.PrepareContext(ctx, `INSERT INTO fts_content(doc_id, content) VALUES (?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare fts insert: %w", err)
	}
	defer ftsStmt.Close()

	docStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO documents(id, content, metadata) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare document insert: %w", err)
	}
	defer docStmt.Close()

	for _, doc := range docs {
		var meta any
		if len(doc.Metadata) > 0 {
			data, err := json.Marshal(doc.Metadata)
			if err != nil {
				return 0, fmt.Errorf("marshal metadata for %s: %w", doc.ID, err)
			}
			meta = string(data)
		}

		if _, err := deleteStmt.ExecContext(ctx, doc.ID); err != nil {
			return 0, fmt.Errorf("delete existing document %s: %w", doc.ID, err)
		}
		if _, err := ftsStmt.ExecContext(ctx, doc.ID, doc.Content); err != nil {
			return 0, fmt.Errorf("index document %s: %w", doc.ID, err)
		}
		if _, err := docStmt.ExecContext(ctx, doc.ID, doc.Content, meta); err != nil {
			return 0, fmt.Errorf("store document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(docs), nil
}

// Search matches any query term (OR semantics) and ranks by BM25. The filter
// compiles into the WHERE clause over the metadata JSON column.
func (s *SQLiteStore) Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]retrieval.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = retrieval.DefaultSearchLimit
	}

	matchExpr := buildMatchExpr(query)
	if matchExpr == "" {
		return []retrieval.SearchResult{}, nil
	}

	frag, params, err := filter.CompileSQL(opts.Filter, filter.DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}

	// bm25() returns negative values, lower is better.
	sqlQuery := `
		SELECT f.doc_id, bm25(fts_content) AS score, d.content, d.metadata
		FROM fts_content f
		JOIN documents d ON d.id = f.doc_id
		WHERE fts_content MATCH ?`
	args := []any{matchExpr}
	if frag != "" {
		sqlQuery += " AND " + frag
		args = append(args, params...)
	}
	sqlQuery += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		// FTS5 rejects syntactically invalid match expressions.
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []retrieval.SearchResult{}, nil
		}
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	results := make([]retrieval.SearchResult, 0, limit)
	for rows.Next() {
		var (
			id      string
			score   float64
			content string
			meta    sql.NullString
		)
		if err := rows.Scan(&id, &score, &content, &meta); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}

		r := retrieval.SearchResult{ID: id, Score: -score}
		if opts.ReturnContent {
			r.Content = content
		}
		if opts.ReturnMetadata && meta.Valid {
			var m map[string]any
			if err := json.Unmarshal([]byte(meta.String), &m); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for %s: %w", id, err)
			}
			r.Metadata = m
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	normalizeScores(results)
	return results, nil
}

// Remove deletes documents by id and reports how many existed.
func (s *SQLiteStore) Remove(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM fts_content WHERE doc_id IN (%s)", placeholders), args...); err != nil {
		return 0, fmt.Errorf("delete from fts: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM documents WHERE id IN (%s)", placeholders), args...)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	affected, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(affected), nil
}

// Clear drops all documents.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM fts_content`); err != nil {
		return fmt.Errorf("clear fts: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// buildMatchExpr quotes each query term and joins with OR, so expanded
// queries match documents containing any identifier part. Returns "" for a
// blank query.
func buildMatchExpr(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}
