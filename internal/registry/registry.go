// Package registry implements C2, the global project/directory registry
// (spec.md §4.2). It is a single shared SQLite database keyed by absolute
// source paths, following the teacher's modernc.org/sqlite + WAL-mode
// pattern (internal/store/sqlite_bm25.go) for concurrent reader/writer
// access.
package registry

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codexlens/codexlens/internal/cerrors"
)

// ProjectInfo mirrors spec.md §3's Project entity.
type ProjectInfo struct {
	ID           int64
	SourceRoot   string
	IndexRoot    string
	TotalFiles   int
	TotalDirs    int
	Status       string
	CreatedAt    time.Time
	LastIndexed  time.Time
}

// DirMapping mirrors spec.md §3's DirMapping entity.
type DirMapping struct {
	ProjectID  int64
	SourcePath string
	IndexPath  string
	Depth      int
	FilesCount int
}

// Store is the global registry database (spec.md §6: single SQLite DB
// keyed by absolute source paths).
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if necessary) the registry database at path.
// An empty path opens an in-memory database, used by tests.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	} else {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cerrors.StorageError("open registry db", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_root TEXT NOT NULL UNIQUE,
	index_root TEXT NOT NULL,
	total_files INTEGER NOT NULL DEFAULT 0,
	total_dirs INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TEXT NOT NULL,
	last_indexed TEXT
);
CREATE TABLE IF NOT EXISTS dir_mappings (
	project_id INTEGER NOT NULL,
	source_path TEXT NOT NULL UNIQUE,
	index_path TEXT NOT NULL,
	depth INTEGER NOT NULL,
	files_count INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (project_id) REFERENCES projects(id)
);
CREATE INDEX IF NOT EXISTS idx_dir_mappings_source_path ON dir_mappings(source_path);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return cerrors.StorageError("migrate registry schema", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterProject upserts a project by source_root, assigning a stable id
// on first registration (spec.md §4.2).
func (s *Store) RegisterProject(sourceRoot, indexRoot string) (ProjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sourceRoot = filepath.Clean(sourceRoot)
	now := time.Now().UTC()

	var err error
	runErr := cerrors.Retry(context.Background(), func() error {
		_, err = s.db.Exec(`
INSERT INTO projects (source_root, index_root, created_at, status)
VALUES (?, ?, ?, 'active')
ON CONFLICT(source_root) DO UPDATE SET index_root = excluded.index_root`,
			sourceRoot, indexRoot, now.Format(time.RFC3339))
		return classify(err)
	})
	if runErr != nil {
		return ProjectInfo{}, runErr
	}

	return s.projectBySourceRoot(sourceRoot)
}

// ProjectStats returns the registered project info for sourceRoot, for
// reporting by the CLI status command. ok is false if no project is
// registered at that exact root.
func (s *Store) ProjectStats(sourceRoot string) (ProjectInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sourceRoot = filepath.Clean(sourceRoot)
	row := s.db.QueryRow(`SELECT id, source_root, index_root, total_files, total_dirs, status, created_at, last_indexed
		FROM projects WHERE source_root = ?`, sourceRoot)

	var p ProjectInfo
	var created string
	var lastIndexed sql.NullString
	err := row.Scan(&p.ID, &p.SourceRoot, &p.IndexRoot, &p.TotalFiles, &p.TotalDirs, &p.Status, &created, &lastIndexed)
	if err == sql.ErrNoRows {
		return ProjectInfo{}, false, nil
	}
	if err != nil {
		return ProjectInfo{}, false, cerrors.StorageError("load project", err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, created)
	if lastIndexed.Valid {
		p.LastIndexed, _ = time.Parse(time.RFC3339, lastIndexed.String)
	}
	return p, true, nil
}

func (s *Store) projectBySourceRoot(sourceRoot string) (ProjectInfo, error) {
	row := s.db.QueryRow(`SELECT id, source_root, index_root, total_files, total_dirs, status, created_at, last_indexed
		FROM projects WHERE source_root = ?`, sourceRoot)

	var p ProjectInfo
	var created string
	var lastIndexed sql.NullString
	if err := row.Scan(&p.ID, &p.SourceRoot, &p.IndexRoot, &p.TotalFiles, &p.TotalDirs, &p.Status, &created, &lastIndexed); err != nil {
		return ProjectInfo{}, cerrors.StorageError("load project", err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, created)
	if lastIndexed.Valid {
		p.LastIndexed, _ = time.Parse(time.RFC3339, lastIndexed.String)
	}
	return p, nil
}

// RegisterDir idempotently registers a directory mapping for a project.
func (s *Store) RegisterDir(projectID int64, sourcePath, indexPath string, depth, filesCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sourcePath = filepath.Clean(sourcePath)
	return cerrors.Retry(context.Background(), func() error {
		_, err := s.db.Exec(`
INSERT INTO dir_mappings (project_id, source_path, index_path, depth, files_count)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(source_path) DO UPDATE SET
	index_path = excluded.index_path,
	depth = excluded.depth,
	files_count = excluded.files_count`,
			projectID, sourcePath, indexPath, depth, filesCount)
		return classify(err)
	})
}

// FindNearestIndex returns the deepest registered DirMapping whose
// source_path is an ancestor of (or equal to) p. Walks p's ancestor chain,
// issuing one indexed point lookup per level — O(depth), not O(N) over all
// mappings (spec.md §4.2).
func (s *Store) FindNearestIndex(p string) (DirMapping, bool, error) {
	current := filepath.Clean(p)
	for {
		row := s.db.QueryRow(`SELECT project_id, source_path, index_path, depth, files_count
			FROM dir_mappings WHERE source_path = ?`, current)

		var m DirMapping
		err := row.Scan(&m.ProjectID, &m.SourcePath, &m.IndexPath, &m.Depth, &m.FilesCount)
		if err == nil {
			return m, true, nil
		}
		if err != sql.ErrNoRows {
			return DirMapping{}, false, cerrors.StorageError("find nearest index", err)
		}

		parent := filepath.Dir(current)
		if parent == current {
			return DirMapping{}, false, nil
		}
		current = parent
	}
}

// UpdateProjectStats updates the file/dir counts and last_indexed timestamp.
func (s *Store) UpdateProjectStats(sourceRoot string, files, dirs int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sourceRoot = filepath.Clean(sourceRoot)
	now := time.Now().UTC().Format(time.RFC3339)
	return cerrors.Retry(context.Background(), func() error {
		_, err := s.db.Exec(`UPDATE projects SET total_files = ?, total_dirs = ?, last_indexed = ? WHERE source_root = ?`,
			files, dirs, now, sourceRoot)
		return classify(err)
	})
}

// UnregisterProject removes a project and its directory mappings.
func (s *Store) UnregisterProject(sourceRoot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sourceRoot = filepath.Clean(sourceRoot)
	return cerrors.Retry(context.Background(), func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()

		var id int64
		if err := tx.QueryRow(`SELECT id FROM projects WHERE source_root = ?`, sourceRoot).Scan(&id); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return classify(err)
		}
		if _, err := tx.Exec(`DELETE FROM dir_mappings WHERE project_id = ?`, id); err != nil {
			return classify(err)
		}
		if _, err := tx.Exec(`DELETE FROM projects WHERE id = ?`, id); err != nil {
			return classify(err)
		}
		return classify(tx.Commit())
	})
}

// UpdateIndexPaths rewrites a project's index_root for migrations
// (spec.md §4.2). Only the projects row changes; the index_path entries of
// the project's directory mappings are left as they were.
func (s *Store) UpdateIndexPaths(oldSourceRoot, newIndexRoot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldSourceRoot = filepath.Clean(oldSourceRoot)
	return cerrors.Retry(context.Background(), func() error {
		_, err := s.db.Exec(`UPDATE projects SET index_root = ? WHERE source_root = ?`, newIndexRoot, oldSourceRoot)
		return classify(err)
	})
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if cerrors.LooksTransient(err) {
		return cerrors.StorageBusyError("registry operation", err)
	}
	return cerrors.StorageError("registry operation", err)
}

