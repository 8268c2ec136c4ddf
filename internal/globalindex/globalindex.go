// Package globalindex implements C5, the centralized cross-directory
// symbol index (spec.md §4.5): a single `_global.db` SQLite database
// tracking every symbol and relationship across the whole project, so
// searches can jump straight to a definition without walking the
// directory tree.
package globalindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/codexlens/codexlens/internal/cerrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

CREATE TABLE IF NOT EXISTS symbols (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	file_path TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_global_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_global_symbols_file ON symbols(file_path);

CREATE TABLE IF NOT EXISTS global_relationships (
	source_symbol TEXT NOT NULL,
	target_symbol TEXT NOT NULL,
	type TEXT NOT NULL,
	source_file TEXT NOT NULL,
	target_file TEXT NOT NULL DEFAULT '',
	source_line INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_global_rel_source ON global_relationships(source_symbol);
CREATE INDEX IF NOT EXISTS idx_global_rel_target ON global_relationships(target_symbol);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// Symbol is one cross-project symbol entry.
type Symbol struct {
	ID        int64
	Name      string
	Kind      string
	FilePath  string
	StartLine int
	EndLine   int
}

// Relationship is one cross-project relationship edge.
type Relationship struct {
	SourceSymbol string
	TargetSymbol string
	Type         string
	SourceFile   string
	TargetFile   string
	SourceLine   int
}

// Store is the `_global.db` database.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates the global index database at path. An empty path
// opens an in-memory store for tests.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	} else {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cerrors.StorageError("open global index db", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, cerrors.StorageError("migrate global index schema", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// UpdateFileRelationships replaces all symbols and relationships previously
// recorded for filePath with the given sets (spec.md §4.5
// update_file_relationships).
func (s *Store) UpdateFileRelationships(ctx context.Context, filePath string, symbols []Symbol, rels []Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cerrors.Retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_path = ?`, filePath); err != nil {
			return classify(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM global_relationships WHERE source_file = ?`, filePath); err != nil {
			return classify(err)
		}

		for _, sym := range symbols {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO symbols (name, kind, file_path, start_line, end_line) VALUES (?, ?, ?, ?, ?)`,
				sym.Name, sym.Kind, filePath, sym.StartLine, sym.EndLine); err != nil {
				return classify(err)
			}
		}
		for _, rel := range rels {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO global_relationships (source_symbol, target_symbol, type, source_file, target_file, source_line)
VALUES (?, ?, ?, ?, ?, ?)`,
				rel.SourceSymbol, rel.TargetSymbol, rel.Type, filePath, rel.TargetFile, rel.SourceLine); err != nil {
				return classify(err)
			}
		}
		return classify(tx.Commit())
	})
}

// DeleteFileRelationships drops every symbol and relationship recorded for
// filePath (spec.md §4.5 delete_file_relationships — called on file removal).
func (s *Store) DeleteFileRelationships(ctx context.Context, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cerrors.Retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()
		if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_path = ?`, filePath); err != nil {
			return classify(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM global_relationships WHERE source_file = ?`, filePath); err != nil {
			return classify(err)
		}
		return classify(tx.Commit())
	})
}

// Search looks up symbols by name using exact, prefix, or substring
// matching, optionally filtered to files under pathPrefix (spec.md §4.5
// search — "prefix/substring matching and path-prefix filtering").
func (s *Store) Search(ctx context.Context, name, matchMode, pathPrefix string, limit int) ([]Symbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var nameClause, namePattern string
	switch matchMode {
	case "prefix":
		nameClause, namePattern = "name LIKE ?", name+"%"
	case "substring":
		nameClause, namePattern = "name LIKE ?", "%"+name+"%"
	default:
		nameClause, namePattern = "name = ?", name
	}

	query := fmt.Sprintf(`SELECT id, name, kind, file_path, start_line, end_line FROM symbols WHERE %s`, nameClause)
	args := []any{namePattern}
	if pathPrefix != "" {
		query += " AND file_path LIKE ?"
		args = append(args, pathPrefix+"%")
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cerrors.SearchError("global symbol search", err)
	}
	defer rows.Close()

	var out []Symbol
	for rows.Next() {
		var sym Symbol
		if err := rows.Scan(&sym.ID, &sym.Name, &sym.Kind, &sym.FilePath, &sym.StartLine, &sym.EndLine); err != nil {
			return nil, cerrors.SearchError("scan global symbol", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// RelatedSymbols walks global_relationships outward from name up to
// maxHops, returning the resolved Symbol row for every neighbor reached
// (spec.md §4.9 stage 2 "static_global_graph" mode: graph expansion over
// the centralized relationship table rather than a per-directory
// precomputed cache).
func (s *Store) RelatedSymbols(ctx context.Context, name string, maxHops, limit int) ([]Symbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frontier := []string{name}
	visited := map[string]bool{name: true}
	var neighborNames []string

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		placeholders := make([]string, len(frontier))
		args := make([]any, len(frontier))
		for i, n := range frontier {
			placeholders[i] = "?"
			args[i] = n
		}
		in := strings.Join(placeholders, ",")
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT target_symbol FROM global_relationships WHERE source_symbol IN (%s)
UNION
SELECT source_symbol FROM global_relationships WHERE target_symbol IN (%s)`, in, in),
			append(append([]any{}, args...), args...)...)
		if err != nil {
			return nil, cerrors.SearchError("related symbols lookup", err)
		}
		var next []string
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				rows.Close()
				return nil, cerrors.SearchError("scan related symbol", err)
			}
			if !visited[n] {
				visited[n] = true
				next = append(next, n)
				neighborNames = append(neighborNames, n)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, cerrors.SearchError("iterate related symbols", err)
		}
		frontier = next
	}

	if len(neighborNames) == 0 {
		return nil, nil
	}
	if limit > 0 && len(neighborNames) > limit {
		neighborNames = neighborNames[:limit]
	}

	placeholders := make([]string, len(neighborNames))
	args := make([]any, len(neighborNames))
	for i, n := range neighborNames {
		placeholders[i] = "?"
		args[i] = n
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, name, kind, file_path, start_line, end_line FROM symbols WHERE name IN (%s)`,
		strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, cerrors.SearchError("resolve related symbols", err)
	}
	defer rows.Close()

	var out []Symbol
	for rows.Next() {
		var sym Symbol
		if err := rows.Scan(&sym.ID, &sym.Name, &sym.Kind, &sym.FilePath, &sym.StartLine, &sym.EndLine); err != nil {
			return nil, cerrors.SearchError("scan resolved related symbol", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if cerrors.LooksTransient(err) {
		return cerrors.StorageBusyError("global index operation", err)
	}
	return cerrors.StorageError("global index operation", err)
}
