package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimensify/dimensify/internal/core/protocol"
)

func TestKindRegistry(t *testing.T) {
	seen := map[protocol.ComponentID]bool{}
	for _, k := range Kinds() {
		id := k.ID()
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true

		back, ok := KindOf(id)
		require.True(t, ok)
		assert.Equal(t, k, back)
	}

	_, ok := KindOf(999)
	assert.False(t, ok)

	assert.Equal(t, "Transform", KindTransform.String())
	assert.True(t, KindCamera.IsInfrastructure())
	assert.False(t, KindMesh3d.IsInfrastructure())
	assert.Equal(t, KindMeshMaterial3d, KindOfComponent(protocol.MeshMaterial3d{Material: protocol.Color{}}))
}

func TestSpawnAndGenerations(t *testing.T) {
	w := NewWorld()

	a := w.SpawnEmpty()
	b := w.Spawn(Name("b"))
	assert.Equal(t, uint32(0), a.Index())
	assert.Equal(t, uint32(1), a.Generation())
	assert.Equal(t, uint32(1), b.Index())
	assert.Equal(t, 2, w.Len())

	removed, err := w.Despawn(a)
	require.NoError(t, err)
	assert.Equal(t, []protocol.EntityRef{a}, removed)
	assert.False(t, w.Contains(a))

	c := w.SpawnEmpty()
	assert.Equal(t, a.Index(), c.Index())
	assert.Equal(t, uint32(2), c.Generation())
	assert.False(t, w.Contains(a), "stale reference must not resolve")

	_, err = w.Despawn(a)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestInsertRemove(t *testing.T) {
	w := NewWorld()
	e := w.SpawnEmpty()

	require.NoError(t, w.Insert(e, Name("arm")))
	require.NoError(t, w.Insert(e, Transform(protocol.IdentityTransform())))
	require.NoError(t, w.Insert(e, Name("arm2")))

	name, ok := w.Name(e)
	require.True(t, ok)
	assert.Equal(t, "arm2", name)
	assert.Equal(t, []Kind{KindName, KindTransform}, w.Kinds(e))

	had, err := w.Remove(e, KindTransform)
	require.NoError(t, err)
	assert.True(t, had)

	had, err = w.Remove(e, KindTransform)
	require.NoError(t, err)
	assert.False(t, had)

	_, err = w.Remove(e, Kind(200))
	assert.ErrorIs(t, err, ErrInvalidKind)

	err = w.Insert(protocol.NewEntityRef(42, 1), Name("ghost"))
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestHierarchyDespawnIsRecursive(t *testing.T) {
	w := NewWorld()
	root := w.Spawn(Name("root"))
	child := w.Spawn(Name("child"))
	grandchild := w.Spawn(Name("grandchild"))
	other := w.Spawn(Name("other"))

	require.NoError(t, w.SetParent(child, root))
	require.NoError(t, w.SetParent(grandchild, child))
	assert.ErrorIs(t, w.SetParent(root, grandchild), ErrHierarchyCycle)
	assert.ErrorIs(t, w.SetParent(root, root), ErrHierarchyCycle)

	p, ok := w.Parent(grandchild)
	require.True(t, ok)
	assert.Equal(t, child, p)

	removed, err := w.Despawn(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []protocol.EntityRef{root, child, grandchild}, removed)
	assert.Equal(t, root, removed[0])
	assert.Equal(t, []protocol.EntityRef{other}, w.Entities())
	assert.Equal(t, 1, w.Len())
}

func TestDespawnChildDetachesFromParent(t *testing.T) {
	w := NewWorld()
	parent := w.SpawnEmpty()
	child := w.SpawnEmpty()
	require.NoError(t, w.SetParent(child, parent))

	_, err := w.Despawn(child)
	require.NoError(t, err)
	assert.Empty(t, w.Children(parent))
}

func TestQueryAndInfrastructure(t *testing.T) {
	w := NewWorld()
	w.Spawn(Window{Title: "main"})
	cam := w.Spawn(Camera{}, Transform(protocol.IdentityTransform()))
	cube := w.Spawn(Name("cube"), Transform(protocol.IdentityTransform()))

	it := w.Query(KindTransform)
	assert.Equal(t, 2, it.Count())
	assert.Equal(t, []protocol.EntityRef{cam, cube}, it.ToSlice())
	assert.False(t, it.Next())
	require.NoError(t, it.Close())

	assert.True(t, w.IsInfrastructure(cam))
	assert.False(t, w.IsInfrastructure(cube))

	found, ok := w.FindByName("cube")
	require.True(t, ok)
	assert.Equal(t, cube, found)
	_, ok = w.FindByName("sphere")
	assert.False(t, ok)
}

func TestDigest(t *testing.T) {
	build := func(x float32) *World {
		w := NewWorld()
		e := w.Spawn(Name("e"))
		tr := protocol.IdentityTransform()
		tr.Translation.X = x
		require.NoError(t, w.Insert(e, Transform(tr)))
		return w
	}

	assert.Equal(t, build(1).Digest(), build(1).Digest())
	assert.NotEqual(t, build(1).Digest(), build(2).Digest())
	assert.NotEqual(t, NewWorld().Digest(), build(1).Digest())
}
