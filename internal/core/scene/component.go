package scene

import (
	"encoding/binary"
	"math"

	"github.com/dimensify/dimensify/internal/core/assets"
	"github.com/dimensify/dimensify/internal/core/protocol"
)

// Component is a value stored in one slot of an entity.
type Component interface {
	Kind() Kind
	// AppendDigest appends a stable byte form of the value, used by World.Digest.
	AppendDigest(buf []byte) []byte
}

type Name string

type Transform protocol.Transform

// Mesh points at a built mesh resource.
type Mesh struct{ Handle assets.MeshHandle }

// Material points at a registered material resource.
type Material struct{ Handle assets.MaterialHandle }

// Window, Monitor, Camera, DirectionalLight and NetworkEndpoint mark
// engine-owned entities.
type (
	Window           struct{ Title string }
	Monitor          struct{ Name string }
	Camera           struct{ Order int32 }
	DirectionalLight struct{ Illuminance float32 }
	NetworkEndpoint  struct{ Addr string }
)

func (Name) Kind() Kind             { return KindName }
func (Transform) Kind() Kind        { return KindTransform }
func (Mesh) Kind() Kind             { return KindMesh3d }
func (Material) Kind() Kind         { return KindMeshMaterial3d }
func (Window) Kind() Kind           { return KindWindow }
func (Monitor) Kind() Kind          { return KindMonitor }
func (Camera) Kind() Kind           { return KindCamera }
func (DirectionalLight) Kind() Kind { return KindDirectionalLight }
func (NetworkEndpoint) Kind() Kind  { return KindNetworkEndpoint }

func (n Name) AppendDigest(buf []byte) []byte { return appendString(buf, string(n)) }

func (t Transform) AppendDigest(buf []byte) []byte {
	out, _ := protocol.Transform(t).AppendBinary(buf)
	return out
}

func (m Mesh) AppendDigest(buf []byte) []byte {
	return binary.LittleEndian.AppendUint32(buf, uint32(m.Handle))
}

func (m Material) AppendDigest(buf []byte) []byte {
	return binary.LittleEndian.AppendUint32(buf, uint32(m.Handle))
}

func (w Window) AppendDigest(buf []byte) []byte  { return appendString(buf, w.Title) }
func (m Monitor) AppendDigest(buf []byte) []byte { return appendString(buf, m.Name) }

func (c Camera) AppendDigest(buf []byte) []byte {
	return binary.LittleEndian.AppendUint32(buf, uint32(c.Order))
}

func (d DirectionalLight) AppendDigest(buf []byte) []byte {
	return binary.LittleEndian.AppendUint32(buf, math.Float32bits(d.Illuminance))
}

func (n NetworkEndpoint) AppendDigest(buf []byte) []byte { return appendString(buf, n.Addr) }

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
