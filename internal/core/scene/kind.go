package scene

import (
	"fmt"

	"github.com/dimensify/dimensify/internal/core/protocol"
)

// Kind is a component slot on an entity. The set is closed; every kind has a
// stable ComponentID that clients see in List and pass back to Remove.
type Kind uint8

const (
	KindName Kind = iota
	KindTransform
	KindMesh3d
	KindMeshMaterial3d
	KindWindow
	KindMonitor
	KindCamera
	KindDirectionalLight
	KindNetworkEndpoint

	kindCount
)

type kindInfo struct {
	id             protocol.ComponentID
	name           string
	infrastructure bool
}

var kinds = [kindCount]kindInfo{
	KindName:             {id: 0, name: "Name"},
	KindTransform:        {id: 1, name: "Transform"},
	KindMesh3d:           {id: 2, name: "Mesh3d"},
	KindMeshMaterial3d:   {id: 3, name: "MeshMaterial3d"},
	KindWindow:           {id: 4, name: "Window", infrastructure: true},
	KindMonitor:          {id: 5, name: "Monitor", infrastructure: true},
	KindCamera:           {id: 6, name: "Camera", infrastructure: true},
	KindDirectionalLight: {id: 7, name: "DirectionalLight", infrastructure: true},
	KindNetworkEndpoint:  {id: 8, name: "NetworkEndpoint", infrastructure: true},
}

var kindByID = func() map[protocol.ComponentID]Kind {
	m := make(map[protocol.ComponentID]Kind, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		m[kinds[k].id] = k
	}
	return m
}()

// KindOf resolves a wire component id.
func KindOf(id protocol.ComponentID) (Kind, bool) {
	k, ok := kindByID[id]
	return k, ok
}

// Kinds returns every registered kind in id order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

func (k Kind) Valid() bool { return k < kindCount }

func (k Kind) ID() protocol.ComponentID {
	if !k.Valid() {
		panic(fmt.Sprintf("scene: invalid kind %d", k))
	}
	return kinds[k].id
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kinds[k].name
}

// IsInfrastructure reports kinds that mark engine-owned entities such as
// windows and cameras. Entities carrying one are hidden from listings.
func (k Kind) IsInfrastructure() bool {
	return k.Valid() && kinds[k].infrastructure
}

// KindOfComponent maps a wire payload onto its slot.
func KindOfComponent(c protocol.ProtoComponent) Kind {
	switch c.(type) {
	case protocol.Name:
		return KindName
	case protocol.Transform:
		return KindTransform
	case protocol.Mesh3d:
		return KindMesh3d
	case protocol.MeshMaterial3d:
		return KindMeshMaterial3d
	default:
		panic(fmt.Sprintf("scene: unknown component payload %T", c))
	}
}
