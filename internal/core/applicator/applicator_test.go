package applicator

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimensify/dimensify/internal/core/assets"
	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
	"github.com/dimensify/dimensify/internal/core/scene"
)

var (
	cube = protocol.Mesh3d{Shape: protocol.Cuboid{HalfSize: protocol.Vec3{X: 0.5, Y: 0.5, Z: 0.5}}}
	red  = protocol.MeshMaterial3d{Material: protocol.Color{R: 1, A: 1}}
)

func newApplicator() *Applicator {
	return New(scene.NewWorld(), log.NewNop())
}

func mustApply(t *testing.T, a *Applicator, cmd protocol.WorldCommand) protocol.EntityRef {
	t.Helper()
	ref, err := a.Apply(cmd)
	require.NoError(t, err)
	return ref
}

func TestSpawnAttachesTrivialComponentsImmediately(t *testing.T) {
	a := newApplicator()
	tr := protocol.IdentityTransform()
	tr.Translation = protocol.Vec3{X: 1, Y: 2, Z: 3}

	ref := mustApply(t, a, protocol.NewSpawn(protocol.Name("cube"), protocol.Transform(tr), cube, red))

	w := a.World()
	name, ok := w.Name(ref)
	require.True(t, ok)
	assert.Equal(t, "cube", name)
	got, ok := w.Transform(ref)
	require.True(t, ok)
	assert.Equal(t, tr, got)

	assert.False(t, w.Has(ref, scene.KindMesh3d), "mesh waits for materialize")
	assert.False(t, w.Has(ref, scene.KindMeshMaterial3d))
	require.Len(t, a.PendingMeshes(), 1)
	require.Len(t, a.PendingMaterials(), 1)
	assert.Equal(t, ref, a.PendingMeshes()[0].Entity)

	store := assets.NewStore()
	stats := a.Materialize(store)
	assert.Equal(t, MaterializeStats{Meshes: 1, Materials: 1}, stats)
	assert.True(t, w.Has(ref, scene.KindMesh3d))
	assert.True(t, w.Has(ref, scene.KindMeshMaterial3d))
	assert.Empty(t, a.PendingMeshes())
	assert.Equal(t, assets.Stats{Meshes: 1, Materials: 1}, store.Stats())

	found, ok := a.Lookup("cube")
	require.True(t, ok)
	assert.Equal(t, ref, found)
}

func TestIdempotentRemoval(t *testing.T) {
	a := newApplicator()
	ref := mustApply(t, a, protocol.NewSpawn(protocol.Name("x"), protocol.Transform(protocol.IdentityTransform())))

	transformID := scene.KindTransform.ID()
	mustApply(t, a, protocol.Remove{Entity: ref, Component: transformID})
	after := a.World().Digest()

	got, err := a.Apply(protocol.Remove{Entity: ref, Component: transformID})
	require.NoError(t, err)
	assert.Equal(t, ref, got)
	assert.Equal(t, after, a.World().Digest())
	assert.False(t, a.World().Has(ref, scene.KindTransform))
}

func TestRemoveUnregisteredComponent(t *testing.T) {
	a := newApplicator()
	ref := mustApply(t, a, protocol.NewSpawn(protocol.Name("x")))

	_, err := a.Apply(protocol.Remove{Entity: ref, Component: 9999})
	require.ErrorIs(t, err, ErrUnknownComponent)
	var uc *UnknownComponentError
	require.ErrorAs(t, err, &uc)
	assert.Equal(t, protocol.ComponentID(9999), uc.Component)
	assert.Contains(t, err.Error(), "9999")
}

func TestRemoveCancelsPendingIntent(t *testing.T) {
	a := newApplicator()
	ref := mustApply(t, a, protocol.NewSpawn(cube, red))
	mustApply(t, a, protocol.Remove{Entity: ref, Component: scene.KindMesh3d.ID()})

	assert.Empty(t, a.PendingMeshes())
	stats := a.Materialize(assets.NewStore())
	assert.Equal(t, 0, stats.Meshes)
	assert.Equal(t, 1, stats.Materials)
	assert.False(t, a.World().Has(ref, scene.KindMesh3d))
}

func TestUnknownEntityRejectionLeavesSceneUntouched(t *testing.T) {
	a := newApplicator()
	alive := mustApply(t, a, protocol.NewSpawn(protocol.Name("alive")))
	gone := mustApply(t, a, protocol.NewSpawn(protocol.Name("gone")))
	mustApply(t, a, protocol.Despawn{Entity: gone})

	before := a.World().Digest()
	stale := gone
	cmds := []protocol.WorldCommand{
		protocol.NewInsert(stale, protocol.Name("zombie"), cube),
		protocol.Update{Entity: stale, Component: protocol.Name("zombie")},
		protocol.Remove{Entity: stale, Component: 0},
		protocol.Despawn{Entity: stale},
		protocol.Despawn{Entity: protocol.NewEntityRef(42, 1)},
	}
	for _, cmd := range cmds {
		_, err := a.Apply(cmd)
		require.ErrorIs(t, err, ErrUnknownEntity, cmd.Variant())
		var ue *UnknownEntityError
		require.ErrorAs(t, err, &ue)
		assert.Contains(t, err.Error(), ue.Entity.String())
	}
	assert.Equal(t, before, a.World().Digest())
	assert.Empty(t, a.PendingMeshes())
	assert.True(t, a.World().Contains(alive))
}

func TestUpdateReplacesOnlyCarriedSlots(t *testing.T) {
	a := newApplicator()
	ref := mustApply(t, a, protocol.NewSpawn(protocol.Name("a"), cube))

	mustApply(t, a, protocol.Update{Entity: ref, Component: protocol.Name("b")})
	name, _ := a.World().Name(ref)
	assert.Equal(t, "b", name)
	_, ok := a.Lookup("a")
	assert.False(t, ok, "old name is released")

	// pending mesh counts as carried
	sphere := protocol.Mesh3d{Shape: protocol.Sphere{Radius: 2}}
	mustApply(t, a, protocol.Update{Entity: ref, Component: sphere})
	require.Len(t, a.PendingMeshes(), 1)
	assert.Equal(t, protocol.Shape3d(protocol.Sphere{Radius: 2}), a.PendingMeshes()[0].Value)

	before := a.World().Digest()
	_, err := a.Apply(protocol.Update{Entity: ref, Component: protocol.Transform(protocol.IdentityTransform())})
	require.ErrorIs(t, err, ErrUnknownComponent)
	assert.Equal(t, before, a.World().Digest())
	assert.False(t, a.World().Has(ref, scene.KindTransform))
}

func TestDuplicateNameRejected(t *testing.T) {
	a := newApplicator()
	first := mustApply(t, a, protocol.NewSpawn(protocol.Name("dup")))
	other := mustApply(t, a, protocol.NewSpawn(protocol.Name("other")))

	before := a.World().Len()
	_, err := a.Apply(protocol.NewSpawn(protocol.Name("dup"), cube))
	require.ErrorIs(t, err, ErrDuplicateName)
	var de *DuplicateNameError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, first, de.Owner)
	assert.Equal(t, before, a.World().Len())
	assert.Empty(t, a.PendingMeshes())

	_, err = a.Apply(protocol.NewInsert(other, protocol.Name("dup")))
	require.ErrorIs(t, err, ErrDuplicateName)

	// renaming an entity to its own name is fine
	mustApply(t, a, protocol.NewInsert(first, protocol.Name("dup")))

	// a despawned owner releases the name
	mustApply(t, a, protocol.Despawn{Entity: first})
	mustApply(t, a, protocol.NewInsert(other, protocol.Name("dup")))
	found, ok := a.Lookup("dup")
	require.True(t, ok)
	assert.Equal(t, other, found)
}

func TestDespawnIsRecursive(t *testing.T) {
	a := newApplicator()
	parent := mustApply(t, a, protocol.NewSpawn(protocol.Name("parent")))
	child := mustApply(t, a, protocol.NewSpawn(protocol.Name("child"), cube))
	require.NoError(t, a.World().SetParent(child, parent))

	mustApply(t, a, protocol.Despawn{Entity: parent})
	assert.False(t, a.World().Contains(child))
	assert.Empty(t, a.PendingMeshes())
	_, ok := a.Lookup("child")
	assert.False(t, ok)
	assert.Empty(t, a.Tracked())
}

func TestClearSemantics(t *testing.T) {
	a := newApplicator()
	w := a.World()
	camera := w.Spawn(scene.Camera{Order: 0}, scene.Transform(protocol.IdentityTransform()))
	window := w.Spawn(scene.Window{Title: "dimensify"})

	for _, n := range []string{"a", "b", "c"} {
		mustApply(t, a, protocol.NewSpawn(protocol.Name(n), cube))
	}
	ref, err := a.Apply(protocol.Clear{})
	require.NoError(t, err)
	assert.Equal(t, protocol.EntityRef(0), ref)
	assert.Equal(t, protocol.Ack{}, Respond(protocol.Clear{}, ref, err))

	assert.Empty(t, a.List())
	assert.Empty(t, a.Tracked())
	assert.Empty(t, a.PendingMeshes())
	assert.True(t, w.Contains(camera))
	assert.True(t, w.Contains(window))
	assert.Equal(t, 2, w.Len())

	// names are free again
	mustApply(t, a, protocol.NewSpawn(protocol.Name("a")))
}

func TestListExcludesInfrastructure(t *testing.T) {
	a := newApplicator()
	w := a.World()
	w.Spawn(scene.Window{Title: "main"})
	w.Spawn(scene.DirectionalLight{Illuminance: 1000})

	x := mustApply(t, a, protocol.NewSpawn(protocol.Name("x")))
	y := mustApply(t, a, protocol.NewSpawn(protocol.Transform(protocol.IdentityTransform())))

	got := a.List()
	require.Len(t, got, 2)
	assert.Equal(t, x.Bits(), got[0].ID)
	require.NotNil(t, got[0].Name)
	assert.Equal(t, "x", *got[0].Name)
	assert.Equal(t, []protocol.ComponentInfo{{ID: 0, Name: "Name"}}, got[0].Components)
	assert.Equal(t, y.Bits(), got[1].ID)
	assert.Nil(t, got[1].Name)
	assert.Equal(t, []protocol.ComponentInfo{{ID: 1, Name: "Transform"}}, got[1].Components)
}

// failingResources accepts every material and refuses every mesh.
type failingResources struct{ *assets.Store }

func (failingResources) AddMesh(protocol.Shape3d) (assets.MeshHandle, error) {
	return 0, errors.New("mesh budget exhausted")
}

func TestMaterializeDiscardsDeadEntitiesAndLogsFailures(t *testing.T) {
	a := newApplicator()
	dead := mustApply(t, a, protocol.NewSpawn(cube))
	refused := mustApply(t, a, protocol.NewSpawn(cube))
	// bypass the applicator so the queued intent outlives its entity
	_, err := a.World().Despawn(dead)
	require.NoError(t, err)

	stats := a.Materialize(failingResources{assets.NewStore()})
	assert.Equal(t, MaterializeStats{Discarded: 1, Failed: 1}, stats)
	assert.False(t, a.World().Has(refused, scene.KindMesh3d))
	assert.Empty(t, a.PendingMeshes())
}

func TestInvalidResourcePayloadRejectsWholeCommand(t *testing.T) {
	a := newApplicator()
	target := mustApply(t, a, protocol.NewSpawn(protocol.Name("target")))
	before := a.World().Digest()
	count := a.World().Len()

	_, err := a.Apply(protocol.NewSpawn(protocol.Name("x"), protocol.Mesh3d{Shape: protocol.Sphere{Radius: -1}}, red))
	require.ErrorIs(t, err, ErrInvalidCommand)
	assert.ErrorIs(t, err, assets.ErrInvalidShape)

	_, err = a.Apply(protocol.NewInsert(target, protocol.Name("renamed"), protocol.MeshMaterial3d{
		Material: protocol.Color{R: float32(math.NaN()), A: 1},
	}))
	require.ErrorIs(t, err, ErrInvalidCommand)
	assert.ErrorIs(t, err, assets.ErrInvalidMaterial)

	_, err = a.Apply(protocol.Update{Entity: target, Component: protocol.Mesh3d{}})
	assert.ErrorIs(t, err, assets.ErrInvalidShape)

	_, found := a.Lookup("x")
	assert.False(t, found)
	name, _ := a.World().Name(target)
	assert.Equal(t, "target", name)
	assert.Equal(t, count, a.World().Len())
	assert.Equal(t, before, a.World().Digest())
	assert.Empty(t, a.PendingMeshes())
	assert.Empty(t, a.PendingMaterials())
}

func TestRespond(t *testing.T) {
	ref := protocol.NewEntityRef(3, 1)
	assert.Equal(t, protocol.CommandResponseEntity{Entity: ref}, Respond(protocol.Despawn{Entity: ref}, ref, nil))
	err := &UnknownEntityError{Op: "Despawn", Entity: ref}
	assert.Equal(t, protocol.ErrorResponse{Message: "Despawn refers to unknown entity '3v1'"}, Respond(protocol.Despawn{Entity: ref}, 0, err))
}
