package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathStrategyKeepsBestPerFile(t *testing.T) {
	s := New(Path, false)
	out := s.FitPredict([]Candidate{
		{Path: "a.go", Score: 0.5},
		{Path: "a.go", Score: 0.9},
		{Path: "b.go", Score: 0.2},
	})
	require.Len(t, out, 2)
	require.Equal(t, "a.go", out[0].Path)
	require.Equal(t, 0.9, out[0].Score)
}

func TestDirRoundRobinInterleavesDirectories(t *testing.T) {
	s := New(DirRR, false)
	out := s.FitPredict([]Candidate{
		{Path: "pkg1/a.go", Score: 0.9},
		{Path: "pkg1/b.go", Score: 0.8},
		{Path: "pkg2/c.go", Score: 0.7},
	})
	require.Len(t, out, 3)
	require.Equal(t, "pkg1/a.go", out[0].Path)
	require.Equal(t, "pkg2/c.go", out[1].Path)
	require.Equal(t, "pkg1/b.go", out[2].Path)
}

func TestUnknownStrategyFallsBackToAutoWhenFlagSet(t *testing.T) {
	s := New("not-a-real-strategy", true)
	require.Equal(t, Auto, s.Name())

	s2 := New("not-a-real-strategy", false)
	require.Equal(t, Noop, s2.Name())
}

func TestDBSCANGroupsNearDuplicateEmbeddings(t *testing.T) {
	s := New(DBSCAN, false)
	out := s.FitPredict([]Candidate{
		{Path: "a.go", Score: 0.9, Embedding: []float32{1, 0, 0}},
		{Path: "a2.go", Score: 0.5, Embedding: []float32{0.99, 0.01, 0}},
		{Path: "b.go", Score: 0.6, Embedding: []float32{0, 1, 0}},
	})
	require.LessOrEqual(t, len(out), 2)
}
