package dirindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codexlens/codexlens/internal/cerrors"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	language TEXT NOT NULL,
	size INTEGER NOT NULL,
	mod_time TEXT NOT NULL,
	content_sha TEXT NOT NULL,
	merkle_leaf TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS symbols (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path TEXT NOT NULL,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	FOREIGN KEY (file_path) REFERENCES files(path)
);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_path);

CREATE TABLE IF NOT EXISTS code_relationships (
	source_symbol TEXT NOT NULL,
	target_symbol TEXT NOT NULL,
	type TEXT NOT NULL,
	source_file TEXT NOT NULL,
	target_file TEXT NOT NULL DEFAULT '',
	source_line INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rel_source ON code_relationships(source_symbol);
CREATE INDEX IF NOT EXISTS idx_rel_target ON code_relationships(target_symbol);

CREATE TABLE IF NOT EXISTS subdirs (
	name TEXT PRIMARY KEY,
	index_path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS graph_neighbors (
	symbol TEXT NOT NULL,
	neighbor_symbol TEXT NOT NULL,
	hops INTEGER NOT NULL,
	weight REAL NOT NULL,
	PRIMARY KEY (symbol, neighbor_symbol)
);
CREATE INDEX IF NOT EXISTS idx_graph_neighbors_symbol ON graph_neighbors(symbol);

CREATE TABLE IF NOT EXISTS semantic_metadata (
	file_path TEXT PRIMARY KEY,
	summary TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (file_path) REFERENCES files(path)
);

CREATE TABLE IF NOT EXISTS keywords (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	keyword TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS file_keywords (
	file_path TEXT NOT NULL,
	keyword_id INTEGER NOT NULL,
	PRIMARY KEY (file_path, keyword_id),
	FOREIGN KEY (keyword_id) REFERENCES keywords(id)
);

CREATE VIRTUAL TABLE IF NOT EXISTS files_fts_exact USING fts5(
	path UNINDEXED,
	content,
	tokenize='unicode61'
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// Store is one directory's index database (spec.md §4.4). It pairs a
// SQLite connection for structured data and exact FTS with an embedded
// bleve index for character-trigram fuzzy search.
type Store struct {
	mu    sync.Mutex
	db    *sql.DB
	fuzzy *fuzzyIndex
	path  string
}

// Open opens or creates a directory index database at path. An empty path
// opens an in-memory store, used by tests and single-file dry runs.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	} else {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cerrors.StorageError("open dir index db", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, cerrors.StorageError("migrate dir index schema", err)
	}

	fz, err := newFuzzyIndex(path)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, fuzzy: fz, path: path}, nil
}

// Close releases the SQLite connection and the fuzzy index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ferr := s.fuzzy.Close()
	derr := s.db.Close()
	if derr != nil {
		return cerrors.StorageError("close dir index db", derr)
	}
	return ferr
}

// AddFile upserts a file's metadata, exact/fuzzy FTS content, symbols and
// relationships in one transaction (spec.md §4.4 add_file).
func (s *Store) AddFile(ctx context.Context, file FileRecord, content string, symbols []SymbolRecord, rels []RelationshipRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := cerrors.Retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
INSERT INTO files (path, language, size, mod_time, content_sha, merkle_leaf)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	language = excluded.language, size = excluded.size, mod_time = excluded.mod_time,
	content_sha = excluded.content_sha, merkle_leaf = excluded.merkle_leaf`,
			file.Path, file.Language, file.Size, file.ModTime.UTC().Format(time.RFC3339), file.ContentSHA, file.MerkleLeaf); err != nil {
			return classify(err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM files_fts_exact WHERE path = ?`, file.Path); err != nil {
			return classify(err)
		}
		tokens := tokenizeCode(content)
		if _, err := tx.ExecContext(ctx, `INSERT INTO files_fts_exact(path, content) VALUES (?, ?)`,
			file.Path, strings.Join(tokens, " ")); err != nil {
			return classify(err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_path = ?`, file.Path); err != nil {
			return classify(err)
		}
		for _, sym := range symbols {
			if _, err := tx.ExecContext(ctx, `INSERT INTO symbols (file_path, name, kind, start_line, end_line) VALUES (?, ?, ?, ?, ?)`,
				file.Path, sym.Name, sym.Kind, sym.StartLine, sym.EndLine); err != nil {
				return classify(err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM code_relationships WHERE source_file = ?`, file.Path); err != nil {
			return classify(err)
		}
		for _, rel := range rels {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO code_relationships (source_symbol, target_symbol, type, source_file, target_file, source_line)
VALUES (?, ?, ?, ?, ?, ?)`,
				rel.SourceSymbol, rel.TargetSymbol, rel.Type, rel.SourceFile, rel.TargetFile, rel.SourceLine); err != nil {
				return classify(err)
			}
		}

		return classify(tx.Commit())
	})
	if err != nil {
		return err
	}

	return s.fuzzy.index(file.Path, content)
}

// NeedsReindex reports whether path is missing or its content_sha differs
// from sha (spec.md §4.4 needs_reindex — the merkle-root incremental gate).
func (s *Store) NeedsReindex(path, sha string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing string
	err := s.db.QueryRow(`SELECT content_sha FROM files WHERE path = ?`, path).Scan(&existing)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, cerrors.StorageError("needs reindex lookup", err)
	}
	return existing != sha, nil
}

// SearchExact runs a word-boundary FTS5 query against files_fts_exact.
func (s *Store) SearchExact(ctx context.Context, query string, limit int) ([]ExactMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := tokenizeCode(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	processed := strings.Join(tokens, " ")

	rows, err := s.db.QueryContext(ctx, `
SELECT path, bm25(files_fts_exact) AS score, snippet(files_fts_exact, 1, '[', ']', '...', 10)
FROM files_fts_exact WHERE content MATCH ? ORDER BY score LIMIT ?`, processed, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, cerrors.SearchError("exact search", err)
	}
	defer rows.Close()

	var out []ExactMatch
	for rows.Next() {
		var m ExactMatch
		var score float64
		if err := rows.Scan(&m.FilePath, &score, &m.Snippet); err != nil {
			return nil, cerrors.SearchError("scan exact match", err)
		}
		m.Score = -score
		out = append(out, m)
	}
	return out, rows.Err()
}

// SearchFuzzy runs a character-trigram fuzzy query via the embedded bleve
// index, tolerant of typos and partial identifiers.
func (s *Store) SearchFuzzy(ctx context.Context, query string, limit int) ([]FuzzyMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fuzzy.search(ctx, query, limit)
}

// SearchSymbols looks up symbols by exact name, prefix, or substring
// depending on matchMode ("exact", "prefix", "substring").
func (s *Store) SearchSymbols(ctx context.Context, name, matchMode string, limit int) ([]SymbolMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pattern string
	var clause string
	switch matchMode {
	case "prefix":
		clause = "name LIKE ?"
		pattern = name + "%"
	case "substring":
		clause = "name LIKE ?"
		pattern = "%" + name + "%"
	default:
		clause = "name = ?"
		pattern = name
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, file_path, name, kind, start_line, end_line FROM symbols WHERE %s LIMIT ?`, clause), pattern, limit)
	if err != nil {
		return nil, cerrors.SearchError("symbol search", err)
	}
	defer rows.Close()

	var out []SymbolMatch
	for rows.Next() {
		var m SymbolMatch
		if err := rows.Scan(&m.Symbol.ID, &m.Symbol.FilePath, &m.Symbol.Name, &m.Symbol.Kind, &m.Symbol.StartLine, &m.Symbol.EndLine); err != nil {
			return nil, cerrors.SearchError("scan symbol", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SymbolAt returns the innermost symbol enclosing line in path, used by the
// chain search engine's stage 2 to resolve a stage-1 chunk hit (file + line
// range) to the symbol it belongs to before expanding the graph.
func (s *Store) SymbolAt(ctx context.Context, path string, line int) (SymbolRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
SELECT id, file_path, name, kind, start_line, end_line FROM symbols
WHERE file_path = ? AND start_line <= ? AND end_line >= ?
ORDER BY (end_line - start_line) ASC LIMIT 1`, path, line, line)

	var sym SymbolRecord
	err := row.Scan(&sym.ID, &sym.FilePath, &sym.Name, &sym.Kind, &sym.StartLine, &sym.EndLine)
	if err == sql.ErrNoRows {
		return SymbolRecord{}, false, nil
	}
	if err != nil {
		return SymbolRecord{}, false, cerrors.SearchError("symbol at line lookup", err)
	}
	return sym, true, nil
}

// SearchSemanticKeywords matches files whose recorded keywords contain any
// of the supplied terms (spec.md §C contextual keyword pass).
func (s *Store) SearchSemanticKeywords(ctx context.Context, terms []string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(terms) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(terms))
	args := make([]any, len(terms)+1)
	for i, t := range terms {
		placeholders[i] = "?"
		args[i] = strings.ToLower(t)
	}
	args[len(terms)] = limit

	q := fmt.Sprintf(`
SELECT DISTINCT fk.file_path FROM file_keywords fk
JOIN keywords k ON k.id = fk.keyword_id
WHERE k.keyword IN (%s) LIMIT ?`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, cerrors.SearchError("semantic keyword search", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, cerrors.SearchError("scan semantic keyword match", err)
		}
		out = append(out, path)
	}
	return out, rows.Err()
}

// SetSemanticMetadata records a summary and keyword set for a file.
func (s *Store) SetSemanticMetadata(ctx context.Context, meta SemanticMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cerrors.Retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
INSERT INTO semantic_metadata (file_path, summary) VALUES (?, ?)
ON CONFLICT(file_path) DO UPDATE SET summary = excluded.summary`, meta.FilePath, meta.Summary); err != nil {
			return classify(err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM file_keywords WHERE file_path = ?`, meta.FilePath); err != nil {
			return classify(err)
		}
		for _, kw := range meta.Keywords {
			kw = strings.ToLower(kw)
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO keywords (keyword) VALUES (?)`, kw); err != nil {
				return classify(err)
			}
			if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO file_keywords (file_path, keyword_id)
SELECT ?, id FROM keywords WHERE keyword = ?`, meta.FilePath, kw); err != nil {
				return classify(err)
			}
		}
		return classify(tx.Commit())
	})
}

// RegisterSubdir links a child directory name to its own index database.
func (s *Store) RegisterSubdir(ctx context.Context, sub SubdirRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cerrors.Retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO subdirs (name, index_path) VALUES (?, ?)
ON CONFLICT(name) DO UPDATE SET index_path = excluded.index_path`, sub.Name, sub.IndexPath)
		return classify(err)
	})
}

// Subdirs lists all registered child directory links.
func (s *Store) Subdirs(ctx context.Context) ([]SubdirRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT name, index_path FROM subdirs`)
	if err != nil {
		return nil, cerrors.StorageError("list subdirs", err)
	}
	defer rows.Close()

	var out []SubdirRecord
	for rows.Next() {
		var r SubdirRecord
		if err := rows.Scan(&r.Name, &r.IndexPath); err != nil {
			return nil, cerrors.StorageError("scan subdir", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetGraphNeighbors replaces the precomputed neighbor set for symbol.
func (s *Store) SetGraphNeighbors(ctx context.Context, symbol string, neighbors []GraphNeighbor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cerrors.Retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM graph_neighbors WHERE symbol = ?`, symbol); err != nil {
			return classify(err)
		}
		for _, n := range neighbors {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO graph_neighbors (symbol, neighbor_symbol, hops, weight) VALUES (?, ?, ?, ?)`,
				symbol, n.NeighborSym, n.Hops, n.Weight); err != nil {
				return classify(err)
			}
		}
		return classify(tx.Commit())
	})
}

// GraphNeighbors returns the precomputed neighbors of symbol up to maxHops.
func (s *Store) GraphNeighbors(ctx context.Context, symbol string, maxHops int) ([]GraphNeighbor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
SELECT neighbor_symbol, hops, weight FROM graph_neighbors WHERE symbol = ? AND hops <= ? ORDER BY weight DESC`,
		symbol, maxHops)
	if err != nil {
		return nil, cerrors.SearchError("graph neighbors lookup", err)
	}
	defer rows.Close()

	var out []GraphNeighbor
	for rows.Next() {
		n := GraphNeighbor{Symbol: symbol}
		if err := rows.Scan(&n.NeighborSym, &n.Hops, &n.Weight); err != nil {
			return nil, cerrors.SearchError("scan graph neighbor", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CleanupDeletedFiles removes files (and their symbols/relationships/FTS
// rows) whose path is not present in liveFiles.
func (s *Store) CleanupDeletedFiles(ctx context.Context, liveFiles []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := make(map[string]struct{}, len(liveFiles))
	for _, f := range liveFiles {
		live[f] = struct{}{}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files`)
	if err != nil {
		return 0, cerrors.StorageError("list files for cleanup", err)
	}
	var stale []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return 0, cerrors.StorageError("scan file for cleanup", err)
		}
		if _, ok := live[p]; !ok {
			stale = append(stale, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, cerrors.StorageError("iterate files for cleanup", err)
	}

	if len(stale) == 0 {
		return 0, nil
	}

	err = cerrors.Retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()

		for _, p := range stale {
			if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, p); err != nil {
				return classify(err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_path = ?`, p); err != nil {
				return classify(err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM code_relationships WHERE source_file = ?`, p); err != nil {
				return classify(err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM files_fts_exact WHERE path = ?`, p); err != nil {
				return classify(err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM semantic_metadata WHERE file_path = ?`, p); err != nil {
				return classify(err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM file_keywords WHERE file_path = ?`, p); err != nil {
				return classify(err)
			}
		}
		return classify(tx.Commit())
	})
	if err != nil {
		return 0, err
	}

	for _, p := range stale {
		_ = s.fuzzy.delete(p)
	}
	return len(stale), nil
}

// RemoveFile deletes a single file's row and every row that references it
// (symbols, relationships, FTS, semantic metadata, fuzzy index entry),
// the per-event counterpart to CleanupDeletedFiles' bulk reconciliation
// (spec.md §4.8 DELETED: "call remove_file").
func (s *Store) RemoveFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := cerrors.Retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
			return classify(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_path = ?`, path); err != nil {
			return classify(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM code_relationships WHERE source_file = ?`, path); err != nil {
			return classify(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM files_fts_exact WHERE path = ?`, path); err != nil {
			return classify(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM semantic_metadata WHERE file_path = ?`, path); err != nil {
			return classify(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM file_keywords WHERE file_path = ?`, path); err != nil {
			return classify(err)
		}
		return classify(tx.Commit())
	})
	if err != nil {
		return err
	}

	_ = s.fuzzy.delete(path)
	return nil
}

// UpdateMerkleRoot stores the directory's merkle root over its immediate
// children (files and subdirs) (spec.md §4.7). No build step compares a
// stored root to skip an unchanged subtree; NeedsReindex's per-file
// content check decides what is re-parsed.
func (s *Store) UpdateMerkleRoot(ctx context.Context, root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cerrors.Retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO schema_version (version) VALUES (?)
ON CONFLICT(version) DO NOTHING`, schemaVersion)
		if err != nil {
			return classify(err)
		}
		_, err = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS merkle (id INTEGER PRIMARY KEY CHECK (id = 1), root TEXT NOT NULL)`)
		if err != nil {
			return classify(err)
		}
		_, err = s.db.ExecContext(ctx, `
INSERT INTO merkle (id, root) VALUES (1, ?)
ON CONFLICT(id) DO UPDATE SET root = excluded.root`, root)
		return classify(err)
	})
}

// MerkleRoot returns the last stored merkle root, if any.
func (s *Store) MerkleRoot(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var root string
	err := s.db.QueryRowContext(ctx, `SELECT root FROM merkle WHERE id = 1`).Scan(&root)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		// merkle table not created yet is not an error condition.
		if strings.Contains(err.Error(), "no such table") {
			return "", false, nil
		}
		return "", false, cerrors.StorageError("read merkle root", err)
	}
	return root, true, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if cerrors.LooksTransient(err) {
		return cerrors.StorageBusyError("dir index operation", err)
	}
	return cerrors.StorageError("dir index operation", err)
}
