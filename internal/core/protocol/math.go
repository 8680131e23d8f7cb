package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// Vectors and quaternions travel as JSON arrays ([x, y, z]) and as packed
// little-endian float32 in their binary form.

type Vec2 struct{ X, Y float32 }

type Vec3 struct{ X, Y, Z float32 }

type Vec4 struct{ X, Y, Z, W float32 }

// Quat is a rotation quaternion stored as x, y, z, w.
type Quat struct{ X, Y, Z, W float32 }

var (
	Vec3Zero     = Vec3{}
	Vec3One      = Vec3{1, 1, 1}
	QuatIdentity = Quat{W: 1}
)

const (
	vec2Size = 8
	vec3Size = 12
	vec4Size = 16
)

func (v Vec2) MarshalJSON() ([]byte, error) { return json.Marshal([2]float32{v.X, v.Y}) }
func (v Vec3) MarshalJSON() ([]byte, error) { return json.Marshal([3]float32{v.X, v.Y, v.Z}) }
func (v Vec4) MarshalJSON() ([]byte, error) { return json.Marshal([4]float32{v.X, v.Y, v.Z, v.W}) }
func (q Quat) MarshalJSON() ([]byte, error) { return json.Marshal([4]float32{q.X, q.Y, q.Z, q.W}) }

func (v *Vec2) UnmarshalJSON(data []byte) error {
	f, err := floatArray(data, 2)
	if err != nil {
		return err
	}
	*v = Vec2{f[0], f[1]}
	return nil
}

func (v *Vec3) UnmarshalJSON(data []byte) error {
	f, err := floatArray(data, 3)
	if err != nil {
		return err
	}
	*v = Vec3{f[0], f[1], f[2]}
	return nil
}

func (v *Vec4) UnmarshalJSON(data []byte) error {
	f, err := floatArray(data, 4)
	if err != nil {
		return err
	}
	*v = Vec4{f[0], f[1], f[2], f[3]}
	return nil
}

func (q *Quat) UnmarshalJSON(data []byte) error {
	f, err := floatArray(data, 4)
	if err != nil {
		return err
	}
	*q = Quat{f[0], f[1], f[2], f[3]}
	return nil
}

func floatArray(data []byte, n int) ([]float32, error) {
	var f []float32
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f) != n {
		return nil, fmt.Errorf("expected %d components, got %d", n, len(f))
	}
	return f, nil
}

func (v Vec2) MarshalBinary() ([]byte, error) { return putFloats(v.X, v.Y), nil }
func (v Vec3) MarshalBinary() ([]byte, error) { return putFloats(v.X, v.Y, v.Z), nil }
func (v Vec4) MarshalBinary() ([]byte, error) { return putFloats(v.X, v.Y, v.Z, v.W), nil }
func (q Quat) MarshalBinary() ([]byte, error) { return putFloats(q.X, q.Y, q.Z, q.W), nil }

func (v *Vec2) UnmarshalBinary(data []byte) error {
	f, err := readFloats("Vec2", data, 2)
	if err != nil {
		return err
	}
	*v = Vec2{f[0], f[1]}
	return nil
}

func (v *Vec3) UnmarshalBinary(data []byte) error {
	f, err := readFloats("Vec3", data, 3)
	if err != nil {
		return err
	}
	*v = Vec3{f[0], f[1], f[2]}
	return nil
}

func (v *Vec4) UnmarshalBinary(data []byte) error {
	f, err := readFloats("Vec4", data, 4)
	if err != nil {
		return err
	}
	*v = Vec4{f[0], f[1], f[2], f[3]}
	return nil
}

func (q *Quat) UnmarshalBinary(data []byte) error {
	f, err := readFloats("Quat", data, 4)
	if err != nil {
		return err
	}
	*q = Quat{f[0], f[1], f[2], f[3]}
	return nil
}

func putFloats(values ...float32) []byte {
	return appendFloats(make([]byte, 0, 4*len(values)), values...)
}

func appendFloats(buf []byte, values ...float32) []byte {
	for _, f := range values {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func readFloats(typ string, data []byte, n int) ([]float32, error) {
	if len(data) != 4*n {
		return nil, &DecodeError{Type: typ, Err: fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidLength, 4*n, len(data))}
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out, nil
}

// Transform is the position, orientation and scale of an entity.
type Transform struct {
	Translation Vec3 `json:"translation"`
	Rotation    Quat `json:"rotation"`
	Scale       Vec3 `json:"scale"`
}

// TransformSize is the length of a Transform in its binary form.
const TransformSize = vec3Size + vec4Size + vec3Size

// IdentityTransform has no translation, no rotation and unit scale.
func IdentityTransform() Transform {
	return Transform{Rotation: QuatIdentity, Scale: Vec3One}
}

func (t Transform) MarshalBinary() ([]byte, error) {
	return t.AppendBinary(make([]byte, 0, TransformSize))
}

// AppendBinary appends the packed form of t to buf.
func (t Transform) AppendBinary(buf []byte) ([]byte, error) {
	return appendFloats(buf,
		t.Translation.X, t.Translation.Y, t.Translation.Z,
		t.Rotation.X, t.Rotation.Y, t.Rotation.Z, t.Rotation.W,
		t.Scale.X, t.Scale.Y, t.Scale.Z,
	), nil
}

func (t *Transform) UnmarshalBinary(data []byte) error {
	f, err := readFloats("Transform", data, TransformSize/4)
	if err != nil {
		return err
	}
	*t = Transform{
		Translation: Vec3{f[0], f[1], f[2]},
		Rotation:    Quat{f[3], f[4], f[5], f[6]},
		Scale:       Vec3{f[7], f[8], f[9]},
	}
	return nil
}
