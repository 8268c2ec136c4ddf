package vectorstore

import (
	"bufio"
	"math"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"github.com/codexlens/codexlens/internal/cerrors"
)

// annIndex wraps coder/hnsw's pure-Go graph with a string-ID <-> internal
// uint64 key mapping, grounded on the teacher's internal/store/hnsw.go.
// Deletion is lazy (orphan the mapping, leave the node in the graph) to
// avoid coder/hnsw's instability when the last node is removed.
type annIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
	dims    int
}

func newANNIndex(dims int) *annIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &annIndex{
		graph:  graph,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		dims:   dims,
	}
}

func (a *annIndex) add(id string, vec []float32) error {
	if len(vec) != a.dims {
		return cerrors.StorageError("vector dimension mismatch", nil).WithDetails(map[string]any{
			"expected": a.dims, "got": len(vec),
		})
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if existingKey, exists := a.idMap[id]; exists {
		delete(a.keyMap, existingKey)
		delete(a.idMap, id)
	}

	key := a.nextKey
	a.nextKey++

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeInPlace(normalized)

	a.graph.Add(hnsw.MakeNode(key, normalized))
	a.idMap[id] = key
	a.keyMap[key] = id
	return nil
}

type annResult struct {
	ID    string
	Score float32
}

func (a *annIndex) search(query []float32, k int) ([]annResult, error) {
	if len(query) != a.dims {
		return nil, cerrors.SearchError("query dimension mismatch", nil)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.graph.Len() == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := a.graph.Search(normalized, k)
	out := make([]annResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := a.keyMap[node.Key]
		if !ok {
			continue
		}
		distance := a.graph.Distance(normalized, node.Value)
		out = append(out, annResult{ID: id, Score: 1.0 - distance/2.0})
	}
	return out, nil
}

func (a *annIndex) delete(ids []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		if key, ok := a.idMap[id]; ok {
			delete(a.keyMap, key)
			delete(a.idMap, id)
		}
	}
}

func (a *annIndex) count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.idMap)
}

func (a *annIndex) save(path string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return cerrors.StorageError("create ann index file", err)
	}
	defer f.Close()
	if err := a.graph.Export(f); err != nil {
		return cerrors.StorageError("export ann graph", err)
	}
	return nil
}

func (a *annIndex) load(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return cerrors.StorageError("open ann index file", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	if err := a.graph.Import(reader); err != nil {
		return cerrors.StorageError("import ann graph", err)
	}
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
