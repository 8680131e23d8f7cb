package protocol

import "encoding/json"

// Material describes how a mesh is shaded. Only flat colors exist today.
type Material interface {
	json.Marshaler
	Variant() string
	isMaterial()
}

// Color is a linear RGBA color with channels in [0, 1].
type Color struct {
	R float32 `json:"r"`
	G float32 `json:"g"`
	B float32 `json:"b"`
	A float32 `json:"a"`
}

// ColorSize is the length of a Color in its binary form.
const ColorSize = 16

func (Color) isMaterial()     {}
func (Color) Variant() string { return "Color" }

func (c Color) MarshalJSON() ([]byte, error) {
	type body Color
	return marshalTagged(c.Variant(), body(c))
}

func (c Color) MarshalBinary() ([]byte, error) {
	return putFloats(c.R, c.G, c.B, c.A), nil
}

func (c *Color) UnmarshalBinary(data []byte) error {
	f, err := readFloats("Color", data, 4)
	if err != nil {
		return err
	}
	*c = Color{f[0], f[1], f[2], f[3]}
	return nil
}

// DecodeMaterial parses the tagged JSON form of a Material.
func DecodeMaterial(data []byte) (Material, error) {
	variant, body, err := splitTagged("Material", data)
	if err != nil {
		return nil, err
	}

	switch variant {
	case "Color":
		var c struct {
			R float32 `json:"r"`
			G float32 `json:"g"`
			B float32 `json:"b"`
			A float32 `json:"a"`
		}
		if err := decodeBody(variant, body, &c); err != nil {
			return nil, err
		}
		return Color(c), nil
	default:
		return nil, unknownVariant("Material", variant)
	}
}
