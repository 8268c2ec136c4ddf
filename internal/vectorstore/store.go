// Package vectorstore implements C6, the centralized vector store
// (spec.md §4.6): a single `_vectors_meta.db` SQLite database of chunk
// metadata, paired with a pure-Go HNSW dense index and binary sign-bit
// sketches for coarse Hamming-distance prefiltering. A ModelLock pins the
// project to one embedding model and dimensionality at a time.
package vectorstore

import (
	"context"
	"database/sql"
	"os"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/codexlens/codexlens/internal/cerrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

CREATE TABLE IF NOT EXISTS model_lock (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	model_name TEXT NOT NULL,
	dimensions INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunk_metadata (
	chunk_id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	sketch BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunk_metadata_file ON chunk_metadata(file_path);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// Chunk is one embeddable unit of source, spec.md §3's Chunk entity.
type Chunk struct {
	ID        string
	FilePath  string
	StartLine int
	EndLine   int
	Text      string
}

// SimilarMatch is one search_similar hit.
type SimilarMatch struct {
	ChunkID  string
	FilePath string
	Score    float32
}

// Store is the centralized vector store.
type Store struct {
	mu        sync.Mutex
	db        *sql.DB
	ann       *annIndex
	embedder  Embedder
	projector *randomProjector
	annPath   string // sidecar path for the persisted HNSW graph; empty for in-memory stores
}

// Open opens or creates the vector store metadata database at path (an
// empty path opens an in-memory store for tests) using embedder for new
// chunks. The database's model_lock row, once set, rejects embeds from a
// different model/dimension pair unless Reembed is called explicitly
// (spec.md §4.6 ModelLock: "single active embedding model/dimension per
// project, rejecting mismatched embeds without a force flag").
func Open(path string, embedder Embedder) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	} else {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cerrors.StorageError("open vector store db", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, cerrors.StorageError("migrate vector store schema", err)
	}

	annPath := ""
	if path != "" {
		annPath = path + ".hnsw"
	}

	s := &Store{
		db:        db,
		ann:       newANNIndex(embedder.Dimensions()),
		embedder:  embedder,
		projector: newRandomProjector(embedder.Dimensions()),
		annPath:   annPath,
	}
	if err := s.enforceModelLock(embedder); err != nil {
		db.Close()
		return nil, err
	}

	if annPath != "" {
		if _, statErr := os.Stat(annPath); statErr == nil {
			if err := s.LoadANN(annPath); err != nil {
				db.Close()
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *Store) enforceModelLock(embedder Embedder) error {
	var modelName string
	var dims int
	err := s.db.QueryRow(`SELECT model_name, dimensions FROM model_lock WHERE id = 1`).Scan(&modelName, &dims)
	if err == sql.ErrNoRows {
		_, err := s.db.Exec(`INSERT INTO model_lock (id, model_name, dimensions) VALUES (1, ?, ?)`,
			embedder.ModelName(), embedder.Dimensions())
		if err != nil {
			return cerrors.StorageError("write model lock", err)
		}
		return nil
	}
	if err != nil {
		return cerrors.StorageError("read model lock", err)
	}
	if modelName != embedder.ModelName() || dims != embedder.Dimensions() {
		return cerrors.ModelLockConflictError("embedding model mismatch").WithDetails(map[string]any{
			"locked_model": modelName, "locked_dimensions": dims,
			"requested_model": embedder.ModelName(), "requested_dimensions": embedder.Dimensions(),
		})
	}
	return nil
}

// Reembed clears the model lock, every chunk_metadata row and the ANN
// index, allowing a new embedder
// with a different model/dimension to take over (the explicit "force
// flag" path the ModelLock invariant requires — spec.md §4.6).
func (s *Store) Reembed(embedder Embedder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM model_lock`); err != nil {
		return cerrors.StorageError("clear model lock", err)
	}
	if _, err := s.db.Exec(`DELETE FROM chunk_metadata`); err != nil {
		return cerrors.StorageError("clear chunk metadata", err)
	}
	s.embedder = embedder
	s.ann = newANNIndex(embedder.Dimensions())
	s.projector = newRandomProjector(embedder.Dimensions())
	_, err := s.db.Exec(`INSERT INTO model_lock (id, model_name, dimensions) VALUES (1, ?, ?)`,
		embedder.ModelName(), embedder.Dimensions())
	if err != nil {
		return cerrors.StorageError("write model lock", err)
	}
	return nil
}

// Close persists the ANN graph (when backed by a file, not an in-memory
// store) and releases the database handle. Auto-saving here, paired with
// Open's auto-load, means the HNSW graph survives process restarts without
// a caller ever invoking SaveANN/LoadANN directly.
func (s *Store) Close() error {
	if s.annPath != "" {
		if err := s.SaveANN(s.annPath); err != nil {
			s.db.Close()
			return err
		}
	}
	return s.db.Close()
}

// AddChunk embeds chunk.Text and atomically writes its metadata row, ANN
// entry, and binary sketch (spec.md §4.6 add_chunk — "atomicity across all
// three artifacts"). A failure after the metadata write but before the ANN
// add is prevented by computing the embedding and sketch first, so the
// only write that can fail mid-way is the SQL insert itself.
func (s *Store) AddChunk(ctx context.Context, chunk Chunk) error {
	vec, err := s.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return cerrors.StorageError("embed chunk", err)
	}
	sketch := s.projector.packSketch(vec)

	s.mu.Lock()
	defer s.mu.Unlock()

	err = cerrors.Retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO chunk_metadata (chunk_id, file_path, start_line, end_line, sketch) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(chunk_id) DO UPDATE SET
	file_path = excluded.file_path, start_line = excluded.start_line,
	end_line = excluded.end_line, sketch = excluded.sketch`,
			chunk.ID, chunk.FilePath, chunk.StartLine, chunk.EndLine, sketch)
		return classify(err)
	})
	if err != nil {
		return err
	}

	return s.ann.add(chunk.ID, vec)
}

// DeleteChunksForFile removes every chunk recorded for filePath from both
// the metadata table and the ANN index.
func (s *Store) DeleteChunksForFile(ctx context.Context, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM chunk_metadata WHERE file_path = ?`, filePath)
	if err != nil {
		return cerrors.StorageError("list chunks for deletion", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return cerrors.StorageError("scan chunk id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return cerrors.StorageError("iterate chunks for deletion", err)
	}

	err = cerrors.Retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM chunk_metadata WHERE file_path = ?`, filePath)
		return classify(err)
	})
	if err != nil {
		return err
	}

	s.ann.delete(ids)
	return nil
}

// SearchSimilar runs a dense vector search for query, returning up to k
// nearest chunks by cosine similarity (spec.md §4.6 search_similar).
func (s *Store) SearchSimilar(ctx context.Context, query string, k int) ([]SimilarMatch, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, cerrors.SearchError("embed query", err)
	}

	s.mu.Lock()
	results, err := s.ann.search(vec, k)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]SimilarMatch, 0, len(results))
	for _, r := range results {
		path, err := s.filePathForChunk(ctx, r.ID)
		if err != nil {
			continue
		}
		out = append(out, SimilarMatch{ChunkID: r.ID, FilePath: path, Score: r.Score})
	}
	return out, nil
}

// CoarseCandidates returns chunk IDs whose sketch is within maxDistance
// Hamming bits of query's sketch, the stage-1 coarse filter ahead of a
// full ANN search (spec.md §4.9 stage 1).
func (s *Store) CoarseCandidates(ctx context.Context, query string, maxDistance, limit int) ([]string, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, cerrors.SearchError("embed coarse query", err)
	}
	querySketch := s.projector.packSketch(vec)

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, sketch FROM chunk_metadata`)
	if err != nil {
		return nil, cerrors.SearchError("scan sketches", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		var sketch []byte
		if err := rows.Scan(&id, &sketch); err != nil {
			return nil, cerrors.SearchError("scan sketch row", err)
		}
		if hammingDistance(querySketch, sketch) <= maxDistance {
			out = append(out, id)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, rows.Err()
}

// ChunkMetadata resolves a chunk id's file path and line range, used by
// stage 1 of the chain search engine to turn CoarseCandidates' bare ids
// into addressable search results.
func (s *Store) ChunkMetadata(ctx context.Context, chunkID string) (filePath string, startLine, endLine int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `SELECT file_path, start_line, end_line FROM chunk_metadata WHERE chunk_id = ?`, chunkID)
	if scanErr := row.Scan(&filePath, &startLine, &endLine); scanErr != nil {
		return "", 0, 0, cerrors.StorageError("lookup chunk metadata", scanErr)
	}
	return filePath, startLine, endLine, nil
}

// ScoredCandidate pairs a coarse hit's chunk id with its Hamming distance.
type ScoredCandidate struct {
	ChunkID  string
	Distance int
}

// CoarseCandidatesScored is CoarseCandidates plus each hit's raw Hamming
// distance, letting stage 1 of the chain search engine derive a
// score = 1 - distance/totalBits without a second full sketch scan.
func (s *Store) CoarseCandidatesScored(ctx context.Context, query string, maxDistance, limit int) ([]ScoredCandidate, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, cerrors.SearchError("embed coarse query", err)
	}
	querySketch := s.projector.packSketch(vec)

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, sketch FROM chunk_metadata`)
	if err != nil {
		return nil, cerrors.SearchError("scan sketches", err)
	}
	defer rows.Close()

	var out []ScoredCandidate
	for rows.Next() {
		var id string
		var sketch []byte
		if err := rows.Scan(&id, &sketch); err != nil {
			return nil, cerrors.SearchError("scan sketch row", err)
		}
		if dist := hammingDistance(querySketch, sketch); dist <= maxDistance {
			out = append(out, ScoredCandidate{ChunkID: id, Distance: dist})
			if len(out) >= limit {
				break
			}
		}
	}
	return out, rows.Err()
}

func (s *Store) filePathForChunk(ctx context.Context, chunkID string) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT file_path FROM chunk_metadata WHERE chunk_id = ?`, chunkID).Scan(&path)
	if err != nil {
		return "", cerrors.StorageError("lookup chunk file path", err)
	}
	return path, nil
}

// RebuildANNIndex re-embeds every stored chunk's text and rebuilds the ANN
// graph from scratch, used to repair a corrupted in-memory graph (spec.md
// §4.6 rebuild_ann_index). Reembed deletes every chunk_metadata row, so a
// rebuild right after it has no chunks to re-embed.
// textLookup supplies the original chunk text, since chunk_metadata itself
// only stores the sketch and location, not the raw text.
func (s *Store) RebuildANNIndex(ctx context.Context, textLookup func(chunkID string) (string, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM chunk_metadata`)
	if err != nil {
		return cerrors.StorageError("list chunks for rebuild", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return cerrors.StorageError("scan chunk id for rebuild", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return cerrors.StorageError("iterate chunks for rebuild", err)
	}

	s.ann = newANNIndex(s.embedder.Dimensions())
	for _, id := range ids {
		text, err := textLookup(id)
		if err != nil {
			continue
		}
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			continue
		}
		if err := s.ann.add(id, vec); err != nil {
			return err
		}
	}
	return nil
}

// Dimensions returns the active embedder's dense vector width.
func (s *Store) Dimensions() int { return s.embedder.Dimensions() }

// SketchBits returns the fixed bit width of a coarse binary sketch (spec.md
// §4.6: 256 dims / 32 bytes), independent of the active embedder's dense
// dimension — callers normalizing a Hamming distance into a score must use
// this, not Dimensions.
func (s *Store) SketchBits() int { return sketchDims }

// Count returns the number of vectors currently in the ANN index.
func (s *Store) Count() int {
	return s.ann.count()
}

// SaveANN persists the ANN graph to path.
func (s *Store) SaveANN(path string) error { return s.ann.save(path) }

// LoadANN restores the ANN graph from path.
func (s *Store) LoadANN(path string) error { return s.ann.load(path) }

func classify(err error) error {
	if err == nil {
		return nil
	}
	if cerrors.LooksTransient(err) {
		return cerrors.StorageBusyError("vector store operation", err)
	}
	return cerrors.StorageError("vector store operation", err)
}
