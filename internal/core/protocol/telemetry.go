package protocol

import (
	"encoding/json"
	"fmt"
)

// TelemetryEvent is one sample on a telemetry path, e.g. "robot/imu/accel".
type TelemetryEvent struct {
	Path     string             `json:"path"`
	Time     TelemetryTime      `json:"time"`
	Payload  TelemetryPayload   `json:"payload"`
	Metadata *TelemetryMetadata `json:"metadata"`
}

// TelemetryTime places an event on a named timeline ("sim_time", "frame").
type TelemetryTime struct {
	Timeline string  `json:"timeline"`
	Value    float64 `json:"value"`
}

type TelemetryMetadata struct {
	Unit        *string `json:"unit"`
	Description *string `json:"description"`
}

// TelemetryPayload is internally tagged with a "type" field.
type TelemetryPayload interface {
	json.Marshaler
	Variant() string
	isTelemetryPayload()
}

type ScalarPayload struct{ Value float64 }

type Vec2Payload struct{ Value Vec2 }

type Vec3Payload struct{ Value Vec3 }

type Vec4Payload struct{ Value Vec4 }

type TextPayload struct{ Value string }

// BlobPayload carries opaque bytes. Data travels as an array of byte values.
type BlobPayload struct {
	Mime *string
	Data []byte
}

func (ScalarPayload) isTelemetryPayload() {}
func (Vec2Payload) isTelemetryPayload()   {}
func (Vec3Payload) isTelemetryPayload()   {}
func (Vec4Payload) isTelemetryPayload()   {}
func (TextPayload) isTelemetryPayload()   {}
func (BlobPayload) isTelemetryPayload()   {}

func (ScalarPayload) Variant() string { return "Scalar" }
func (Vec2Payload) Variant() string   { return "Vec2" }
func (Vec3Payload) Variant() string   { return "Vec3" }
func (Vec4Payload) Variant() string   { return "Vec4" }
func (TextPayload) Variant() string   { return "Text" }
func (BlobPayload) Variant() string   { return "Blob" }

func (p ScalarPayload) MarshalJSON() ([]byte, error) { return marshalInternal(p.Variant(), p.Value) }
func (p Vec2Payload) MarshalJSON() ([]byte, error)   { return marshalInternal(p.Variant(), p.Value) }
func (p Vec3Payload) MarshalJSON() ([]byte, error)   { return marshalInternal(p.Variant(), p.Value) }
func (p Vec4Payload) MarshalJSON() ([]byte, error)   { return marshalInternal(p.Variant(), p.Value) }
func (p TextPayload) MarshalJSON() ([]byte, error)   { return marshalInternal(p.Variant(), p.Value) }

func (p BlobPayload) MarshalJSON() ([]byte, error) {
	data := make([]uint16, len(p.Data))
	for i, b := range p.Data {
		data[i] = uint16(b)
	}
	return json.Marshal(struct {
		Type string   `json:"type"`
		Mime *string  `json:"mime"`
		Data []uint16 `json:"data"`
	}{p.Variant(), p.Mime, data})
}

func marshalInternal(variant string, value any) ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Value any    `json:"value"`
	}{variant, value})
}

// Numeric payloads return their value as float64 components.
func (p ScalarPayload) Floats() []float64 { return []float64{p.Value} }
func (p Vec2Payload) Floats() []float64   { return f64s(p.Value.X, p.Value.Y) }
func (p Vec3Payload) Floats() []float64   { return f64s(p.Value.X, p.Value.Y, p.Value.Z) }
func (p Vec4Payload) Floats() []float64 {
	return f64s(p.Value.X, p.Value.Y, p.Value.Z, p.Value.W)
}

func f64s(values ...float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

// DecodeTelemetryPayload parses the "type"-tagged form of a payload.
func DecodeTelemetryPayload(data []byte) (TelemetryPayload, error) {
	var head struct {
		Type  *string         `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, malformed("TelemetryPayload", err)
	}
	if head.Type == nil {
		return nil, missingField("TelemetryPayload", "type")
	}

	variant := *head.Type
	switch variant {
	case "Scalar":
		var v float64
		if err := decodeBody(variant, head.Value, &v); err != nil {
			return nil, err
		}
		return ScalarPayload{Value: v}, nil
	case "Vec2":
		var v Vec2
		if err := decodeBody(variant, head.Value, &v); err != nil {
			return nil, err
		}
		return Vec2Payload{Value: v}, nil
	case "Vec3":
		var v Vec3
		if err := decodeBody(variant, head.Value, &v); err != nil {
			return nil, err
		}
		return Vec3Payload{Value: v}, nil
	case "Vec4":
		var v Vec4
		if err := decodeBody(variant, head.Value, &v); err != nil {
			return nil, err
		}
		return Vec4Payload{Value: v}, nil
	case "Text":
		var v string
		if err := decodeBody(variant, head.Value, &v); err != nil {
			return nil, err
		}
		return TextPayload{Value: v}, nil
	case "Blob":
		var b struct {
			Mime *string `json:"mime"`
			Data []int   `json:"data"`
		}
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, malformed(variant, err)
		}
		out := make([]byte, len(b.Data))
		for i, v := range b.Data {
			if v < 0 || v > 255 {
				return nil, malformed(variant, fmt.Errorf("byte %d out of range: %d", i, v))
			}
			out[i] = byte(v)
		}
		return BlobPayload{Mime: b.Mime, Data: out}, nil
	default:
		return nil, unknownVariant("TelemetryPayload", variant)
	}
}

// DecodeTelemetryEvent parses one telemetry event.
func DecodeTelemetryEvent(data []byte) (TelemetryEvent, error) {
	var ev TelemetryEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return TelemetryEvent{}, malformed("TelemetryEvent", err)
	}
	return ev, nil
}

func (e *TelemetryEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Path     *string            `json:"path"`
		Time     *TelemetryTime     `json:"time"`
		Payload  json.RawMessage    `json:"payload"`
		Metadata *TelemetryMetadata `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Path == nil:
		return missingField("TelemetryEvent", "path")
	case raw.Time == nil:
		return missingField("TelemetryEvent", "time")
	case isNullBody(raw.Payload):
		return missingField("TelemetryEvent", "payload")
	}
	payload, err := DecodeTelemetryPayload(raw.Payload)
	if err != nil {
		return err
	}
	*e = TelemetryEvent{
		Path:     *raw.Path,
		Time:     *raw.Time,
		Payload:  payload,
		Metadata: raw.Metadata,
	}
	return nil
}
