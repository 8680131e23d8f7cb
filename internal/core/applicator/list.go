package applicator

import (
	"github.com/dimensify/dimensify/internal/core/protocol"
	"github.com/dimensify/dimensify/internal/core/scene"
)

// List describes every live entity that is not engine infrastructure,
// ordered by entity index.
func List(world *scene.World) []protocol.EntityInfo {
	var out []protocol.EntityInfo
	for _, ref := range world.Entities() {
		if world.IsInfrastructure(ref) {
			continue
		}
		info := protocol.EntityInfo{ID: ref.Bits()}
		if n, ok := world.Name(ref); ok {
			info.Name = &n
		}
		for _, k := range world.Kinds(ref) {
			info.Components = append(info.Components, protocol.ComponentInfo{ID: k.ID(), Name: k.String()})
		}
		out = append(out, info)
	}
	return out
}

func (a *Applicator) List() []protocol.EntityInfo { return List(a.world) }
