package applicator

import (
	"slices"

	"github.com/dimensify/dimensify/internal/core/assets"
	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
	"github.com/dimensify/dimensify/internal/core/scene"
)

// Resources allocates render resources. It is only called from Materialize.
type Resources interface {
	AddMesh(shape protocol.Shape3d) (assets.MeshHandle, error)
	AddMaterial(material protocol.Material) (assets.MaterialHandle, error)
}

var _ Resources = (*assets.Store)(nil)

// Intent is a deferred component attachment waiting for a resource.
type Intent[T any] struct {
	Entity protocol.EntityRef
	Value  T
}

type (
	MeshIntent     = Intent[protocol.Shape3d]
	MaterialIntent = Intent[protocol.Material]
)

// pendingQueue keeps at most one intent per entity, in first-queued order.
// A later intent for the same entity replaces the earlier value.
type pendingQueue[T any] struct {
	items []Intent[T]
	index map[protocol.EntityRef]int
}

func (q *pendingQueue[T]) put(ref protocol.EntityRef, v T) {
	if q.index == nil {
		q.index = make(map[protocol.EntityRef]int)
	}
	if i, ok := q.index[ref]; ok {
		q.items[i].Value = v
		return
	}
	q.index[ref] = len(q.items)
	q.items = append(q.items, Intent[T]{Entity: ref, Value: v})
}

func (q *pendingQueue[T]) has(ref protocol.EntityRef) bool {
	_, ok := q.index[ref]
	return ok
}

func (q *pendingQueue[T]) cancel(ref protocol.EntityRef) bool {
	i, ok := q.index[ref]
	if !ok {
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	delete(q.index, ref)
	for j := i; j < len(q.items); j++ {
		q.index[q.items[j].Entity] = j
	}
	return true
}

func (q *pendingQueue[T]) drain() []Intent[T] {
	out := q.items
	q.items = nil
	clear(q.index)
	return out
}

func (q *pendingQueue[T]) snapshot() []Intent[T] {
	return slices.Clone(q.items)
}

// MaterializeStats counts what one Materialize call did.
type MaterializeStats struct {
	Meshes    int
	Materials int
	Discarded int
	Failed    int
}

// PendingMeshes returns the queued mesh intents.
func (a *Applicator) PendingMeshes() []MeshIntent { return a.meshes.snapshot() }

// PendingMaterials returns the queued material intents.
func (a *Applicator) PendingMaterials() []MaterialIntent { return a.materials.snapshot() }

// Materialize allocates every pending resource and attaches the resulting
// handle to its entity. Intents whose entity is gone are discarded. A failed
// allocation is logged and the slot stays empty.
func (a *Applicator) Materialize(res Resources) MaterializeStats {
	var stats MaterializeStats
	for _, it := range a.meshes.drain() {
		if !a.world.Contains(it.Entity) {
			stats.Discarded++
			continue
		}
		h, err := res.AddMesh(it.Value)
		if err == nil {
			err = a.world.Insert(it.Entity, scene.Mesh{Handle: h})
		}
		if err != nil {
			stats.Failed++
			a.logger.Warn("failed to build mesh", log.String("entity", it.Entity.String()), log.Error(err))
			continue
		}
		stats.Meshes++
	}
	for _, it := range a.materials.drain() {
		if !a.world.Contains(it.Entity) {
			stats.Discarded++
			continue
		}
		h, err := res.AddMaterial(it.Value)
		if err == nil {
			err = a.world.Insert(it.Entity, scene.Material{Handle: h})
		}
		if err != nil {
			stats.Failed++
			a.logger.Warn("failed to build material", log.String("entity", it.Entity.String()), log.Error(err))
			continue
		}
		stats.Materials++
	}
	return stats
}
