package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndFindNearestIndex(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	proj, err := store.RegisterProject("/home/user/project", "/idx/home/user/project")
	require.NoError(t, err)
	require.NotZero(t, proj.ID)

	require.NoError(t, store.RegisterDir(proj.ID, "/home/user/project", "/idx/home/user/project", 0, 3))
	require.NoError(t, store.RegisterDir(proj.ID, "/home/user/project/src", "/idx/home/user/project/src", 1, 5))

	mapping, ok, err := store.FindNearestIndex("/home/user/project/src/pkg/file.go")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/home/user/project/src", mapping.SourcePath)

	mapping, ok, err = store.FindNearestIndex("/home/user/project/other")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/home/user/project", mapping.SourcePath)

	_, ok, err = store.FindNearestIndex("/unrelated/tree")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegisterProjectIsUpsert(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	first, err := store.RegisterProject("/p", "/idx/p")
	require.NoError(t, err)

	second, err := store.RegisterProject("/p", "/idx/p-new")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "/idx/p-new", second.IndexRoot)
}

func TestUnregisterProjectCascadesDirMappings(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	proj, err := store.RegisterProject("/p", "/idx/p")
	require.NoError(t, err)
	require.NoError(t, store.RegisterDir(proj.ID, "/p", "/idx/p", 0, 1))

	require.NoError(t, store.UnregisterProject("/p"))

	_, ok, err := store.FindNearestIndex("/p")
	require.NoError(t, err)
	require.False(t, ok)
}
