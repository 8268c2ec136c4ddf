package vectorstore

import (
	"math/bits"
	"math/rand"
)

// sketchDims is the fixed width of a coarse binary sketch, independent of
// the active embedding model's dense dimension (spec.md §3 SemanticChunk
// invariant, §4.6: "projecting the dense vector to 256 dimensions... packed
// into 32 bytes", §6 `_binary_vectors.mmap.meta.json: {dimension: 256,
// record_bytes: 32}`).
const (
	sketchDims  = 256
	sketchBytes = sketchDims / 8
)

// sketchSeed fixes the random-projection matrix across process restarts, so
// a chunk's sketch is reproducible given only its dense vector and the
// active model's dimension count — nothing about the projection matrix
// itself is persisted.
const sketchSeed = 0x5bd1e995

// randomProjector projects an arbitrary-width dense embedding down to
// sketchDims via a fixed set of random hyperplanes (one per output bit),
// the standard random-projection / SimHash construction for turning a dense
// embedding into a Hamming-comparable binary sketch. The matrix is
// regenerated deterministically from (sketchSeed, dims) rather than stored,
// so any two stores opened against the same embedding model produce
// identical sketches for identical text.
type randomProjector struct {
	dims   int
	planes [][]float32 // sketchDims x dims
}

func newRandomProjector(dims int) *randomProjector {
	rng := rand.New(rand.NewSource(sketchSeed + int64(dims)))
	planes := make([][]float32, sketchDims)
	for i := range planes {
		row := make([]float32, dims)
		for j := range row {
			row[j] = float32(rng.NormFloat64())
		}
		planes[i] = row
	}
	return &randomProjector{dims: dims, planes: planes}
}

// packSketch projects vec through the random hyperplanes and packs one sign
// bit per plane (1 when the dot product is non-negative) into a fixed
// sketchBytes-length sketch, giving stage 1 of the chain search engine a
// cheap Hamming-distance coarse filter ahead of the full HNSW search
// (spec.md §4.9 stage 1 "binary coarse" retrieval).
func (p *randomProjector) packSketch(vec []float32) []byte {
	out := make([]byte, sketchBytes)
	n := len(vec)
	if p.dims < n {
		n = p.dims
	}
	for i, plane := range p.planes {
		var dot float64
		for j := 0; j < n; j++ {
			dot += float64(vec[j]) * float64(plane[j])
		}
		if dot >= 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// hammingDistance counts differing bits between two equal-length sketches.
func hammingDistance(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	dist := 0
	for i := 0; i < n; i++ {
		dist += bits.OnesCount8(a[i] ^ b[i])
	}
	return dist
}
