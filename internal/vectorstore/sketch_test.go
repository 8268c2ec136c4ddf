package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackSketchIsFixedWidthRegardlessOfEmbedderDimension(t *testing.T) {
	for _, dims := range []int{64, 256, 768, 1536} {
		p := newRandomProjector(dims)
		vec := make([]float32, dims)
		for i := range vec {
			vec[i] = float32(i%7) - 3
		}
		sketch := p.packSketch(vec)
		require.Len(t, sketch, sketchBytes)
	}
}

func TestPackSketchIsDeterministicAcrossInstances(t *testing.T) {
	vec := []float32{0.1, -0.2, 0.3, -0.4, 0.5, -0.6, 0.7, -0.8}
	a := newRandomProjector(len(vec)).packSketch(vec)
	b := newRandomProjector(len(vec)).packSketch(vec)
	require.Equal(t, a, b)
}

func TestHammingDistanceZeroForIdenticalSketches(t *testing.T) {
	p := newRandomProjector(32)
	vec := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16,
		17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32}
	a := p.packSketch(vec)
	b := p.packSketch(vec)
	require.Equal(t, 0, hammingDistance(a, b))
}

func TestHammingDistanceDiffersForDissimilarVectors(t *testing.T) {
	p := newRandomProjector(16)
	a := p.packSketch([]float32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1})
	b := p.packSketch([]float32{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1})
	require.Equal(t, sketchDims, hammingDistance(a, b))
}
