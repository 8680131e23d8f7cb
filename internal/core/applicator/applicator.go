// Package applicator turns logged world commands into scene mutations.
//
// Commands are applied one at a time in log order. Each command is fully
// validated before anything is committed, so a rejected command leaves the
// scene exactly as it was. Components that need a render resource (meshes
// and materials) are queued as intents and only built by Materialize, which
// runs after the whole batch.
package applicator

import (
	"fmt"
	"slices"

	"github.com/dimensify/dimensify/internal/core/assets"
	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
	"github.com/dimensify/dimensify/internal/core/scene"
)

// Applicator owns the command-driven part of a scene. It is not safe for
// concurrent use.
type Applicator struct {
	world  *scene.World
	logger log.Log

	names   map[string]protocol.EntityRef
	nameOf  map[protocol.EntityRef]string
	tracked map[protocol.EntityRef]struct{}

	meshes    pendingQueue[protocol.Shape3d]
	materials pendingQueue[protocol.Material]
}

func New(world *scene.World, logger log.Log) *Applicator {
	return &Applicator{
		world:   world,
		logger:  logger.With(log.Component("applicator")),
		names:   make(map[string]protocol.EntityRef),
		nameOf:  make(map[protocol.EntityRef]string),
		tracked: make(map[protocol.EntityRef]struct{}),
	}
}

func (a *Applicator) World() *scene.World { return a.world }

// Lookup resolves a name bound by a command.
func (a *Applicator) Lookup(name string) (protocol.EntityRef, bool) {
	ref, ok := a.names[name]
	if !ok || !a.world.Contains(ref) {
		return 0, false
	}
	return ref, true
}

// Tracked returns the entities spawned by commands that are still alive,
// ordered by index.
func (a *Applicator) Tracked() []protocol.EntityRef {
	out := make([]protocol.EntityRef, 0, len(a.tracked))
	for ref := range a.tracked {
		if a.world.Contains(ref) {
			out = append(out, ref)
		}
	}
	slices.SortFunc(out, func(x, y protocol.EntityRef) int {
		return int(x.Index()) - int(y.Index())
	})
	return out
}

// Apply runs one command. Spawn returns the new entity, Clear returns the
// zero ref, every other command returns its target.
func (a *Applicator) Apply(cmd protocol.WorldCommand) (protocol.EntityRef, error) {
	switch c := cmd.(type) {
	case protocol.Spawn:
		if err := a.validate(c.Variant(), 0, false, c.Components); err != nil {
			return 0, err
		}
		ref := a.world.SpawnEmpty()
		a.tracked[ref] = struct{}{}
		return ref, a.attach(ref, c.Components)

	case protocol.Insert:
		if err := a.resolve(c.Variant(), c.Entity); err != nil {
			return 0, err
		}
		if err := a.validate(c.Variant(), c.Entity, true, c.Components); err != nil {
			return 0, err
		}
		return c.Entity, a.attach(c.Entity, c.Components)

	case protocol.Update:
		if err := a.resolve(c.Variant(), c.Entity); err != nil {
			return 0, err
		}
		components := []protocol.ProtoComponent{c.Component}
		if err := a.validate(c.Variant(), c.Entity, true, components); err != nil {
			return 0, err
		}
		kind := scene.KindOfComponent(c.Component)
		if !a.carries(c.Entity, kind) {
			return 0, &UnknownComponentError{Op: c.Variant(), Entity: c.Entity, Component: kind.ID()}
		}
		return c.Entity, a.attach(c.Entity, components)

	case protocol.Remove:
		if err := a.resolve(c.Variant(), c.Entity); err != nil {
			return 0, err
		}
		kind, ok := scene.KindOf(c.Component)
		if !ok {
			return 0, &UnknownComponentError{Op: c.Variant(), Entity: c.Entity, Component: c.Component}
		}
		return c.Entity, a.detach(c.Entity, kind)

	case protocol.Despawn:
		if err := a.resolve(c.Variant(), c.Entity); err != nil {
			return 0, err
		}
		return c.Entity, a.despawn(c.Entity)

	case protocol.Clear:
		a.Clear()
		return 0, nil

	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedCommand, cmd)
	}
}

func (a *Applicator) resolve(op string, ref protocol.EntityRef) error {
	if !a.world.Contains(ref) {
		return &UnknownEntityError{Op: op, Entity: ref}
	}
	return nil
}

// validate checks payloads, mesh shapes and materials included, and name
// uniqueness before any part of a command is committed. target is only
// meaningful when hasTarget is set.
func (a *Applicator) validate(op string, target protocol.EntityRef, hasTarget bool, components []protocol.ProtoComponent) error {
	for i, c := range components {
		var err error
		switch v := c.(type) {
		case nil:
			return fmt.Errorf("%w: %s component %d is nil", ErrInvalidCommand, op, i)
		case protocol.Mesh3d:
			err = assets.ValidateShape(v.Shape)
		case protocol.MeshMaterial3d:
			err = assets.ValidateMaterial(v.Material)
		}
		if err != nil {
			return fmt.Errorf("%w: %s component %d: %w", ErrInvalidCommand, op, i, err)
		}
		n, ok := c.(protocol.Name)
		if !ok {
			continue
		}
		owner, bound := a.names[string(n)]
		if !bound || !a.world.Contains(owner) {
			continue
		}
		if hasTarget && owner == target {
			continue
		}
		return &DuplicateNameError{Name: string(n), Owner: owner}
	}
	return nil
}

// carries reports whether the slot is attached or has a pending intent.
func (a *Applicator) carries(ref protocol.EntityRef, kind scene.Kind) bool {
	switch kind {
	case scene.KindMesh3d:
		if a.meshes.has(ref) {
			return true
		}
	case scene.KindMeshMaterial3d:
		if a.materials.has(ref) {
			return true
		}
	}
	return a.world.Has(ref, kind)
}

func (a *Applicator) attach(ref protocol.EntityRef, components []protocol.ProtoComponent) error {
	for _, c := range components {
		switch v := c.(type) {
		case protocol.Name:
			a.unbindName(ref)
			if err := a.world.Insert(ref, scene.Name(v)); err != nil {
				return err
			}
			a.names[string(v)] = ref
			a.nameOf[ref] = string(v)
		case protocol.Transform:
			if err := a.world.Insert(ref, scene.Transform(v)); err != nil {
				return err
			}
		case protocol.Mesh3d:
			a.meshes.put(ref, v.Shape)
		case protocol.MeshMaterial3d:
			a.materials.put(ref, v.Material)
		default:
			return fmt.Errorf("%w: component %T", ErrInvalidCommand, c)
		}
	}
	return nil
}

// detach clears a slot. Clearing an empty slot is not an error.
func (a *Applicator) detach(ref protocol.EntityRef, kind scene.Kind) error {
	switch kind {
	case scene.KindName:
		a.unbindName(ref)
	case scene.KindMesh3d:
		a.meshes.cancel(ref)
	case scene.KindMeshMaterial3d:
		a.materials.cancel(ref)
	}
	_, err := a.world.Remove(ref, kind)
	return err
}

func (a *Applicator) unbindName(ref protocol.EntityRef) {
	old, ok := a.nameOf[ref]
	if !ok {
		return
	}
	delete(a.nameOf, ref)
	if a.names[old] == ref {
		delete(a.names, old)
	}
}

func (a *Applicator) despawn(ref protocol.EntityRef) error {
	removed, err := a.world.Despawn(ref)
	if err != nil {
		return err
	}
	for _, r := range removed {
		a.unbindName(r)
		a.meshes.cancel(r)
		a.materials.cancel(r)
		delete(a.tracked, r)
	}
	return nil
}

// Clear despawns every command-spawned entity and resets the name index.
// Entities the host spawned directly are left alone.
func (a *Applicator) Clear() {
	for _, ref := range a.Tracked() {
		if a.world.Contains(ref) {
			_ = a.despawn(ref)
		}
	}
	clear(a.tracked)
	clear(a.names)
	clear(a.nameOf)
}

// Respond maps an Apply result onto the response sent to the command's
// origin.
func Respond(cmd protocol.WorldCommand, ref protocol.EntityRef, err error) protocol.ProtoResponse {
	if err != nil {
		return protocol.ErrorResponse{Message: err.Error()}
	}
	if _, ok := cmd.(protocol.Clear); ok {
		return protocol.Ack{}
	}
	return protocol.CommandResponseEntity{Entity: ref}
}
