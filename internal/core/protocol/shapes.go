package protocol

import "encoding/json"

// Shape3d is a primitive mesh description. The set of variants is closed.
type Shape3d interface {
	json.Marshaler
	Variant() string
	isShape3d()
}

type Sphere struct {
	Radius float32 `json:"radius"`
}

type Plane3d struct {
	Normal   Vec3 `json:"normal"`
	HalfSize Vec2 `json:"half_size"`
}

type Segment3d struct {
	Vertices [2]Vec3 `json:"vertices"`
}

type Polyline3d struct {
	Vertices []Vec3 `json:"vertices"`
}

type Cuboid struct {
	HalfSize Vec3 `json:"half_size"`
}

type Cylinder struct {
	Radius     float32 `json:"radius"`
	HalfHeight float32 `json:"half_height"`
}

type Capsule3d struct {
	Radius     float32 `json:"radius"`
	HalfLength float32 `json:"half_length"`
}

type Cone struct {
	Radius float32 `json:"radius"`
	Height float32 `json:"height"`
}

type ConicalFrustum struct {
	RadiusTop    float32 `json:"radius_top"`
	RadiusBottom float32 `json:"radius_bottom"`
	Height       float32 `json:"height"`
}

type Torus struct {
	MinorRadius float32 `json:"minor_radius"`
	MajorRadius float32 `json:"major_radius"`
}

type Triangle3d struct {
	Vertices [3]Vec3 `json:"vertices"`
}

type Tetrahedron struct {
	Vertices [4]Vec3 `json:"vertices"`
}

func (Sphere) isShape3d()         {}
func (Plane3d) isShape3d()        {}
func (Segment3d) isShape3d()      {}
func (Polyline3d) isShape3d()     {}
func (Cuboid) isShape3d()         {}
func (Cylinder) isShape3d()       {}
func (Capsule3d) isShape3d()      {}
func (Cone) isShape3d()           {}
func (ConicalFrustum) isShape3d() {}
func (Torus) isShape3d()          {}
func (Triangle3d) isShape3d()     {}
func (Tetrahedron) isShape3d()    {}

func (Sphere) Variant() string         { return "Sphere" }
func (Plane3d) Variant() string        { return "Plane3d" }
func (Segment3d) Variant() string      { return "Segment3d" }
func (Polyline3d) Variant() string     { return "Polyline3d" }
func (Cuboid) Variant() string         { return "Cuboid" }
func (Cylinder) Variant() string       { return "Cylinder" }
func (Capsule3d) Variant() string      { return "Capsule3d" }
func (Cone) Variant() string           { return "Cone" }
func (ConicalFrustum) Variant() string { return "ConicalFrustum" }
func (Torus) Variant() string          { return "Torus" }
func (Triangle3d) Variant() string     { return "Triangle3d" }
func (Tetrahedron) Variant() string    { return "Tetrahedron" }

func (s Sphere) MarshalJSON() ([]byte, error) {
	type body Sphere
	return marshalTagged(s.Variant(), body(s))
}

func (s Plane3d) MarshalJSON() ([]byte, error) {
	type body Plane3d
	return marshalTagged(s.Variant(), body(s))
}

func (s Segment3d) MarshalJSON() ([]byte, error) {
	type body Segment3d
	return marshalTagged(s.Variant(), body(s))
}

func (s Polyline3d) MarshalJSON() ([]byte, error) {
	type body Polyline3d
	b := body(s)
	if b.Vertices == nil {
		b.Vertices = []Vec3{}
	}
	return marshalTagged(s.Variant(), b)
}

func (s Cuboid) MarshalJSON() ([]byte, error) {
	type body Cuboid
	return marshalTagged(s.Variant(), body(s))
}

func (s Cylinder) MarshalJSON() ([]byte, error) {
	type body Cylinder
	return marshalTagged(s.Variant(), body(s))
}

func (s Capsule3d) MarshalJSON() ([]byte, error) {
	type body Capsule3d
	return marshalTagged(s.Variant(), body(s))
}

func (s Cone) MarshalJSON() ([]byte, error) {
	type body Cone
	return marshalTagged(s.Variant(), body(s))
}

func (s ConicalFrustum) MarshalJSON() ([]byte, error) {
	type body ConicalFrustum
	return marshalTagged(s.Variant(), body(s))
}

func (s Torus) MarshalJSON() ([]byte, error) {
	type body Torus
	return marshalTagged(s.Variant(), body(s))
}

func (s Triangle3d) MarshalJSON() ([]byte, error) {
	type body Triangle3d
	return marshalTagged(s.Variant(), body(s))
}

func (s Tetrahedron) MarshalJSON() ([]byte, error) {
	type body Tetrahedron
	return marshalTagged(s.Variant(), body(s))
}

// DecodeShape parses the tagged JSON form of a Shape3d.
func DecodeShape(data []byte) (Shape3d, error) {
	variant, body, err := splitTagged("Shape3d", data)
	if err != nil {
		return nil, err
	}

	switch variant {
	case "Sphere":
		return decodeShapeAs[Sphere](variant, body)
	case "Plane3d":
		return decodeShapeAs[Plane3d](variant, body)
	case "Segment3d":
		return decodeShapeAs[Segment3d](variant, body)
	case "Polyline3d":
		shape, err := decodeShapeAs[Polyline3d](variant, body)
		if err != nil {
			return nil, err
		}
		if p := shape.(Polyline3d); len(p.Vertices) == 0 {
			return Polyline3d{}, nil
		}
		return shape, nil
	case "Cuboid":
		return decodeShapeAs[Cuboid](variant, body)
	case "Cylinder":
		return decodeShapeAs[Cylinder](variant, body)
	case "Capsule3d":
		return decodeShapeAs[Capsule3d](variant, body)
	case "Cone":
		return decodeShapeAs[Cone](variant, body)
	case "ConicalFrustum":
		return decodeShapeAs[ConicalFrustum](variant, body)
	case "Torus":
		return decodeShapeAs[Torus](variant, body)
	case "Triangle3d":
		return decodeShapeAs[Triangle3d](variant, body)
	case "Tetrahedron":
		return decodeShapeAs[Tetrahedron](variant, body)
	default:
		return nil, unknownVariant("Shape3d", variant)
	}
}

// Variant structs have no UnmarshalJSON, so the body decodes field by field.
func decodeShapeAs[T Shape3d](variant string, body json.RawMessage) (Shape3d, error) {
	var shape T
	if err := decodeBody(variant, body, &shape); err != nil {
		return nil, err
	}
	return shape, nil
}
