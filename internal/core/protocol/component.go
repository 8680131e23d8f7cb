package protocol

import (
	"encoding/json"
	"fmt"
)

// ProtoComponent is a component payload carried by Spawn, Insert and Update.
type ProtoComponent interface {
	json.Marshaler
	Variant() string
	isComponent()
}

// Name labels an entity. Names are unique among live entities.
type Name string

// Mesh3d asks for a mesh built from a primitive shape.
type Mesh3d struct {
	Shape Shape3d
}

// MeshMaterial3d asks for a material to shade the entity's mesh.
type MeshMaterial3d struct {
	Material Material
}

func (Name) isComponent()           {}
func (Transform) isComponent()      {}
func (Mesh3d) isComponent()         {}
func (MeshMaterial3d) isComponent() {}

func (Name) Variant() string           { return "Name" }
func (Transform) Variant() string      { return "Transform" }
func (Mesh3d) Variant() string         { return "Mesh3d" }
func (MeshMaterial3d) Variant() string { return "MeshMaterial3d" }

func (n Name) MarshalJSON() ([]byte, error) {
	return marshalTagged(n.Variant(), string(n))
}

func (t Transform) MarshalJSON() ([]byte, error) {
	type body Transform
	return marshalTagged(t.Variant(), body(t))
}

func (m Mesh3d) MarshalJSON() ([]byte, error) {
	if m.Shape == nil {
		return nil, fmt.Errorf("marshal Mesh3d: nil shape")
	}
	return marshalTagged(m.Variant(), m.Shape)
}

func (m MeshMaterial3d) MarshalJSON() ([]byte, error) {
	if m.Material == nil {
		return nil, fmt.Errorf("marshal MeshMaterial3d: nil material")
	}
	return marshalTagged(m.Variant(), m.Material)
}

// DecodeComponent parses the tagged JSON form of a ProtoComponent.
func DecodeComponent(data []byte) (ProtoComponent, error) {
	variant, body, err := splitTagged("ProtoComponent", data)
	if err != nil {
		return nil, err
	}

	switch variant {
	case "Name":
		var name string
		if err := decodeBody(variant, body, &name); err != nil {
			return nil, err
		}
		return Name(name), nil
	case "Transform":
		var t struct {
			Translation Vec3 `json:"translation"`
			Rotation    Quat `json:"rotation"`
			Scale       Vec3 `json:"scale"`
		}
		if err := decodeBody(variant, body, &t); err != nil {
			return nil, err
		}
		return Transform(t), nil
	case "Mesh3d":
		if isNullBody(body) {
			return nil, malformed(variant, fmt.Errorf("missing shape"))
		}
		shape, err := DecodeShape(body)
		if err != nil {
			return nil, err
		}
		return Mesh3d{Shape: shape}, nil
	case "MeshMaterial3d":
		if isNullBody(body) {
			return nil, malformed(variant, fmt.Errorf("missing material"))
		}
		material, err := DecodeMaterial(body)
		if err != nil {
			return nil, err
		}
		return MeshMaterial3d{Material: material}, nil
	default:
		return nil, unknownVariant("ProtoComponent", variant)
	}
}
