package assets

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimensify/dimensify/internal/core/protocol"
)

func TestStoreHandles(t *testing.T) {
	s := NewStore()

	m1, err := s.AddMesh(protocol.Sphere{Radius: 1})
	require.NoError(t, err)
	m2, err := s.AddMesh(protocol.Cuboid{HalfSize: protocol.Vec3{X: 1, Y: 2, Z: 3}})
	require.NoError(t, err)
	assert.NotZero(t, m1)
	assert.NotEqual(t, m1, m2)

	mesh, ok := s.Mesh(m2)
	require.True(t, ok)
	assert.Equal(t, protocol.Vec3{X: 1, Y: 2, Z: 3}, mesh.Bounds.Max)

	_, ok = s.Mesh(0)
	assert.False(t, ok)
	_, ok = s.Mesh(99)
	assert.False(t, ok)

	mat, err := s.AddMaterial(protocol.Color{R: 1, A: 1})
	require.NoError(t, err)
	got, ok := s.Material(mat)
	require.True(t, ok)
	assert.Equal(t, protocol.Color{R: 1, A: 1}, got)

	assert.Equal(t, Stats{Meshes: 2, Materials: 1}, s.Stats())
}

func TestStoreRejectsInvalid(t *testing.T) {
	s := NewStore()

	_, err := s.AddMesh(protocol.Sphere{Radius: -1})
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = s.AddMesh(nil)
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = s.AddMesh(protocol.Plane3d{HalfSize: protocol.Vec2{X: 1, Y: 1}})
	assert.ErrorIs(t, err, ErrInvalidShape)

	nan := float32(math.NaN())
	_, err = s.AddMaterial(protocol.Color{R: nan})
	assert.ErrorIs(t, err, ErrInvalidMaterial)

	assert.Equal(t, Stats{}, s.Stats())
}

func TestValidateMatchesStore(t *testing.T) {
	nan := float32(math.NaN())
	shapes := []protocol.Shape3d{
		nil,
		protocol.Sphere{Radius: -1},
		protocol.Sphere{Radius: 2},
		protocol.Plane3d{HalfSize: protocol.Vec2{X: 1, Y: 1}},
		protocol.Cuboid{HalfSize: protocol.Vec3{X: 1, Y: nan, Z: 1}},
	}
	for _, shape := range shapes {
		_, addErr := NewStore().AddMesh(shape)
		assert.Equal(t, addErr == nil, ValidateShape(shape) == nil, "%#v", shape)
	}

	assert.NoError(t, ValidateMaterial(protocol.Color{G: 1, A: 1}))
	assert.ErrorIs(t, ValidateMaterial(protocol.Color{A: nan}), ErrInvalidMaterial)
	assert.ErrorIs(t, ValidateMaterial(nil), ErrInvalidMaterial)
}

func TestBounds(t *testing.T) {
	cases := []struct {
		shape protocol.Shape3d
		want  AABB
	}{
		{protocol.Cylinder{Radius: 1, HalfHeight: 2}, symmetric(1, 2, 1)},
		{protocol.Capsule3d{Radius: 0.5, HalfLength: 1}, symmetric(0.5, 1.5, 0.5)},
		{protocol.Cone{Radius: 1, Height: 4}, symmetric(1, 2, 1)},
		{protocol.ConicalFrustum{RadiusTop: 0.5, RadiusBottom: 2, Height: 1}, symmetric(2, 0.5, 2)},
		{protocol.Torus{MinorRadius: 0.25, MajorRadius: 1}, symmetric(1.25, 0.25, 1.25)},
		{
			protocol.Triangle3d{Vertices: [3]protocol.Vec3{{X: 0, Y: 0, Z: 0}, {X: 2, Y: -1, Z: 0}, {X: 1, Y: 3, Z: 5}}},
			AABB{Min: protocol.Vec3{X: 0, Y: -1, Z: 0}, Max: protocol.Vec3{X: 2, Y: 3, Z: 5}},
		},
		{protocol.Polyline3d{}, AABB{}},
		{
			protocol.Plane3d{Normal: protocol.Vec3{Y: 1}, HalfSize: protocol.Vec2{X: 2, Y: 3}},
			AABB{Min: protocol.Vec3{X: -2, Y: 0, Z: -3}, Max: protocol.Vec3{X: 2, Y: 0, Z: 3}},
		},
	}
	for _, tc := range cases {
		got, err := Bounds(tc.shape)
		require.NoError(t, err, tc.shape.Variant())
		assert.Equal(t, tc.want, got, tc.shape.Variant())
	}
}

func TestPlaneBoundsFollowNormal(t *testing.T) {
	got, err := Bounds(protocol.Plane3d{Normal: protocol.Vec3{Z: 1}, HalfSize: protocol.Vec2{X: 1, Y: 2}})
	require.NoError(t, err)

	const eps = 1e-5
	assert.InDelta(t, 0, got.Min.Z, eps)
	assert.InDelta(t, 0, got.Max.Z, eps)
	assert.InDelta(t, 1, got.Max.X, eps)
	assert.InDelta(t, 2, got.Max.Y, eps)
	assert.InDelta(t, -2, got.Min.Y, eps)
}
