package pathmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	m := New("/index-root")
	for _, src := range []string{
		"/home/user/project",
		"/home/user/project/src/internal",
		"/",
	} {
		idx := m.SourceToIndexDir(src)
		back := m.IndexToSource(idx)
		assert.Equal(t, src, back, "round trip for %s", src)
	}
}

func TestSourceToIndexDB(t *testing.T) {
	m := New("/index-root")
	assert.Equal(t, "/index-root/home/user/project/_index.db", m.SourceToIndexDB("/home/user/project"))
}

func TestIndexToSourceRejectsForeignRoot(t *testing.T) {
	m := New("/index-root")
	assert.Equal(t, "", m.IndexToSource("/somewhere/else"))
}

func TestNearestAncestorPicksDeepest(t *testing.T) {
	registered := []string{"/home/user", "/home/user/project", "/home/user/project/src"}
	best, ok := NearestAncestor(registered, "/home/user/project/src/pkg/foo.go")
	assert.True(t, ok)
	assert.Equal(t, "/home/user/project/src", best)
}

func TestNearestAncestorNoMatch(t *testing.T) {
	_, ok := NearestAncestor([]string{"/home/other"}, "/home/user/project")
	assert.False(t, ok)
}
