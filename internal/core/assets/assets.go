package assets

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/dimensify/dimensify/internal/core/protocol"
)

var (
	ErrInvalidShape    = errors.New("invalid shape")
	ErrInvalidMaterial = errors.New("invalid material")
)

// MeshHandle and MaterialHandle index into a Store. Zero is never issued.
type (
	MeshHandle     uint32
	MaterialHandle uint32
)

// AABB is an axis-aligned bounding box in the mesh's local space.
type AABB struct {
	Min protocol.Vec3
	Max protocol.Vec3
}

// Mesh is a built mesh resource.
type Mesh struct {
	Shape  protocol.Shape3d
	Bounds AABB
}

// Stats is a point-in-time count of allocated resources.
type Stats struct {
	Meshes    int
	Materials int
}

// Store owns mesh and material resources. Resources are never freed; the
// scene may drop its last reference but the handle stays valid.
type Store struct {
	mu        sync.RWMutex
	meshes    []Mesh
	materials []protocol.Material
}

func NewStore() *Store {
	return &Store{}
}

// AddMesh builds a mesh from shape and returns its handle.
func (s *Store) AddMesh(shape protocol.Shape3d) (MeshHandle, error) {
	if shape == nil {
		return 0, fmt.Errorf("%w: nil shape", ErrInvalidShape)
	}
	bounds, err := Bounds(shape)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.meshes = append(s.meshes, Mesh{Shape: shape, Bounds: bounds})
	return MeshHandle(len(s.meshes)), nil
}

// AddMaterial registers a material and returns its handle.
func (s *Store) AddMaterial(material protocol.Material) (MaterialHandle, error) {
	if err := ValidateMaterial(material); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials = append(s.materials, material)
	return MaterialHandle(len(s.materials)), nil
}

// ValidateShape reports whether AddMesh would accept shape.
func ValidateShape(shape protocol.Shape3d) error {
	if shape == nil {
		return fmt.Errorf("%w: nil shape", ErrInvalidShape)
	}
	_, err := Bounds(shape)
	return err
}

// ValidateMaterial reports whether AddMaterial would accept material.
func ValidateMaterial(material protocol.Material) error {
	switch m := material.(type) {
	case protocol.Color:
		if !finite(m.R, m.G, m.B, m.A) {
			return fmt.Errorf("%w: non-finite color channel", ErrInvalidMaterial)
		}
	case nil:
		return fmt.Errorf("%w: nil material", ErrInvalidMaterial)
	}
	return nil
}

func (s *Store) Mesh(h MeshHandle) (Mesh, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h == 0 || int(h) > len(s.meshes) {
		return Mesh{}, false
	}
	return s.meshes[h-1], true
}

func (s *Store) Material(h MaterialHandle) (protocol.Material, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h == 0 || int(h) > len(s.materials) {
		return nil, false
	}
	return s.materials[h-1], true
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Meshes: len(s.meshes), Materials: len(s.materials)}
}

// Bounds computes the local bounding box of a shape. Negative or
// non-finite dimensions are rejected.
func Bounds(shape protocol.Shape3d) (AABB, error) {
	switch s := shape.(type) {
	case protocol.Sphere:
		if err := dims(s, s.Radius); err != nil {
			return AABB{}, err
		}
		return symmetric(s.Radius, s.Radius, s.Radius), nil
	case protocol.Cuboid:
		if err := dims(s, s.HalfSize.X, s.HalfSize.Y, s.HalfSize.Z); err != nil {
			return AABB{}, err
		}
		return symmetric(s.HalfSize.X, s.HalfSize.Y, s.HalfSize.Z), nil
	case protocol.Cylinder:
		if err := dims(s, s.Radius, s.HalfHeight); err != nil {
			return AABB{}, err
		}
		return symmetric(s.Radius, s.HalfHeight, s.Radius), nil
	case protocol.Capsule3d:
		if err := dims(s, s.Radius, s.HalfLength); err != nil {
			return AABB{}, err
		}
		return symmetric(s.Radius, s.HalfLength+s.Radius, s.Radius), nil
	case protocol.Cone:
		if err := dims(s, s.Radius, s.Height); err != nil {
			return AABB{}, err
		}
		return symmetric(s.Radius, s.Height/2, s.Radius), nil
	case protocol.ConicalFrustum:
		if err := dims(s, s.RadiusTop, s.RadiusBottom, s.Height); err != nil {
			return AABB{}, err
		}
		r := max(s.RadiusTop, s.RadiusBottom)
		return symmetric(r, s.Height/2, r), nil
	case protocol.Torus:
		if err := dims(s, s.MinorRadius, s.MajorRadius); err != nil {
			return AABB{}, err
		}
		outer := s.MajorRadius + s.MinorRadius
		return symmetric(outer, s.MinorRadius, outer), nil
	case protocol.Plane3d:
		return planeBounds(s)
	case protocol.Segment3d:
		return pointBounds(s, s.Vertices[:])
	case protocol.Polyline3d:
		return pointBounds(s, s.Vertices)
	case protocol.Triangle3d:
		return pointBounds(s, s.Vertices[:])
	case protocol.Tetrahedron:
		return pointBounds(s, s.Vertices[:])
	default:
		return AABB{}, fmt.Errorf("%w: unsupported shape %T", ErrInvalidShape, shape)
	}
}

func symmetric(x, y, z float32) AABB {
	return AABB{Min: protocol.Vec3{X: -x, Y: -y, Z: -z}, Max: protocol.Vec3{X: x, Y: y, Z: z}}
}

func dims(shape protocol.Shape3d, values ...float32) error {
	for _, v := range values {
		if !finite(v) || v < 0 {
			return fmt.Errorf("%w: %s has dimension %v", ErrInvalidShape, shape.Variant(), v)
		}
	}
	return nil
}

func finite(values ...float32) bool {
	for _, v := range values {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func pointBounds(shape protocol.Shape3d, points []protocol.Vec3) (AABB, error) {
	if len(points) == 0 {
		return AABB{}, nil
	}
	box := AABB{Min: points[0], Max: points[0]}
	for _, p := range points {
		if !finite(p.X, p.Y, p.Z) {
			return AABB{}, fmt.Errorf("%w: %s has a non-finite vertex", ErrInvalidShape, shape.Variant())
		}
		box.Min = protocol.Vec3{X: min(box.Min.X, p.X), Y: min(box.Min.Y, p.Y), Z: min(box.Min.Z, p.Z)}
		box.Max = protocol.Vec3{X: max(box.Max.X, p.X), Y: max(box.Max.Y, p.Y), Z: max(box.Max.Z, p.Z)}
	}
	return box, nil
}

// planeBounds rotates the XZ rectangle so that +Y maps onto the plane normal.
func planeBounds(p protocol.Plane3d) (AABB, error) {
	if err := dims(p, p.HalfSize.X, p.HalfSize.Y); err != nil {
		return AABB{}, err
	}
	n, ok := normalize(p.Normal)
	if !ok {
		return AABB{}, fmt.Errorf("%w: Plane3d normal is zero or non-finite", ErrInvalidShape)
	}
	rot := rotationArc(protocol.Vec3{Y: 1}, n)
	hx, hz := p.HalfSize.X, p.HalfSize.Y
	corners := []protocol.Vec3{
		rotate(rot, protocol.Vec3{X: -hx, Z: -hz}),
		rotate(rot, protocol.Vec3{X: hx, Z: -hz}),
		rotate(rot, protocol.Vec3{X: -hx, Z: hz}),
		rotate(rot, protocol.Vec3{X: hx, Z: hz}),
	}
	return pointBounds(p, corners)
}

func normalize(v protocol.Vec3) (protocol.Vec3, bool) {
	l := float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
	if l == 0 || !finite(l) {
		return protocol.Vec3{}, false
	}
	return protocol.Vec3{X: v.X / l, Y: v.Y / l, Z: v.Z / l}, true
}

func cross(a, b protocol.Vec3) protocol.Vec3 {
	return protocol.Vec3{X: a.Y*b.Z - a.Z*b.Y, Y: a.Z*b.X - a.X*b.Z, Z: a.X*b.Y - a.Y*b.X}
}

func dot(a, b protocol.Vec3) float32 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

// rotationArc returns the shortest rotation taking unit vector from onto to.
func rotationArc(from, to protocol.Vec3) protocol.Quat {
	d := dot(from, to)
	if d < -0.999999 {
		// Opposite vectors: half turn about any axis perpendicular to from.
		axis := cross(protocol.Vec3{X: 1}, from)
		if dot(axis, axis) < 1e-12 {
			axis = cross(protocol.Vec3{Y: 1}, from)
		}
		axis, _ = normalize(axis)
		return protocol.Quat{X: axis.X, Y: axis.Y, Z: axis.Z}
	}
	c := cross(from, to)
	q := protocol.Quat{X: c.X, Y: c.Y, Z: c.Z, W: 1 + d}
	l := float32(math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
	return protocol.Quat{X: q.X / l, Y: q.Y / l, Z: q.Z / l, W: q.W / l}
}

func rotate(q protocol.Quat, v protocol.Vec3) protocol.Vec3 {
	u := protocol.Vec3{X: q.X, Y: q.Y, Z: q.Z}
	t := cross(u, v)
	t = protocol.Vec3{X: 2 * t.X, Y: 2 * t.Y, Z: 2 * t.Z}
	c := cross(u, t)
	return protocol.Vec3{
		X: v.X + q.W*t.X + c.X,
		Y: v.Y + q.W*t.Y + c.Y,
		Z: v.Z + q.W*t.Z + c.Z,
	}
}
