package scene

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/dimensify/dimensify/internal/core/protocol"
	"github.com/dimensify/dimensify/pkg/generic"
)

var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrInvalidKind    = errors.New("invalid component kind")
	ErrHierarchyCycle = errors.New("parent would create a cycle")
)

type slot struct {
	generation uint32
	alive      bool
	components [kindCount]Component
	parent     protocol.EntityRef
	hasParent  bool
	children   []protocol.EntityRef
}

// World is a headless scene graph: generational entity slots, one value per
// component kind, and a parent/child hierarchy. It is not safe for
// concurrent use; a single goroutine owns it.
type World struct {
	slots []slot
	free  []uint32
	live  int
}

func NewWorld() *World {
	return &World{}
}

// SpawnEmpty allocates an entity with no components. Freed index slots are
// reused with a bumped generation so stale references never resolve.
func (w *World) SpawnEmpty() protocol.EntityRef {
	w.live++
	if n := len(w.free); n > 0 {
		index := w.free[n-1]
		w.free = w.free[:n-1]
		s := &w.slots[index]
		s.generation++
		s.alive = true
		return protocol.NewEntityRef(index, s.generation)
	}
	w.slots = append(w.slots, slot{generation: 1, alive: true})
	return protocol.NewEntityRef(uint32(len(w.slots)-1), 1)
}

// Spawn allocates an entity and attaches the given components.
func (w *World) Spawn(components ...Component) protocol.EntityRef {
	ref := w.SpawnEmpty()
	s := w.slot(ref)
	for _, c := range components {
		s.components[c.Kind()] = c
	}
	return ref
}

func (w *World) slot(ref protocol.EntityRef) *slot {
	index := ref.Index()
	if int(index) >= len(w.slots) {
		return nil
	}
	s := &w.slots[index]
	if !s.alive || s.generation != ref.Generation() {
		return nil
	}
	return s
}

func (w *World) Contains(ref protocol.EntityRef) bool {
	return w.slot(ref) != nil
}

func (w *World) Len() int { return w.live }

// Get returns the component in the given slot.
func (w *World) Get(ref protocol.EntityRef, kind Kind) (Component, bool) {
	s := w.slot(ref)
	if s == nil || !kind.Valid() {
		return nil, false
	}
	c := s.components[kind]
	return c, c != nil
}

func (w *World) Has(ref protocol.EntityRef, kind Kind) bool {
	_, ok := w.Get(ref, kind)
	return ok
}

// Name returns the entity's name if it has one.
func (w *World) Name(ref protocol.EntityRef) (string, bool) {
	c, ok := w.Get(ref, KindName)
	if !ok {
		return "", false
	}
	return string(c.(Name)), true
}

// Transform returns the entity's transform if it has one.
func (w *World) Transform(ref protocol.EntityRef) (protocol.Transform, bool) {
	c, ok := w.Get(ref, KindTransform)
	if !ok {
		return protocol.Transform{}, false
	}
	return protocol.Transform(c.(Transform)), true
}

// Insert sets the component's slot, replacing any previous value.
func (w *World) Insert(ref protocol.EntityRef, c Component) error {
	s := w.slot(ref)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, ref)
	}
	if !c.Kind().Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidKind, c.Kind())
	}
	s.components[c.Kind()] = c
	return nil
}

// Remove clears a slot and reports whether it held a value.
func (w *World) Remove(ref protocol.EntityRef, kind Kind) (bool, error) {
	s := w.slot(ref)
	if s == nil {
		return false, fmt.Errorf("%w: %s", ErrEntityNotFound, ref)
	}
	if !kind.Valid() {
		return false, fmt.Errorf("%w: %d", ErrInvalidKind, kind)
	}
	had := s.components[kind] != nil
	s.components[kind] = nil
	return had, nil
}

// Kinds lists the occupied slots of an entity in id order.
func (w *World) Kinds(ref protocol.EntityRef) []Kind {
	s := w.slot(ref)
	if s == nil {
		return nil
	}
	var out []Kind
	for k, c := range s.components {
		if c != nil {
			out = append(out, Kind(k))
		}
	}
	return out
}

// IsInfrastructure reports whether the entity carries an engine-owned marker.
func (w *World) IsInfrastructure(ref protocol.EntityRef) bool {
	for _, k := range w.Kinds(ref) {
		if k.IsInfrastructure() {
			return true
		}
	}
	return false
}

// SetParent attaches child under parent, detaching it from any previous parent.
func (w *World) SetParent(child, parent protocol.EntityRef) error {
	cs := w.slot(child)
	if cs == nil {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, child)
	}
	if w.slot(parent) == nil {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, parent)
	}
	for p := parent; ; {
		if p == child {
			return fmt.Errorf("%w: %s under %s", ErrHierarchyCycle, child, parent)
		}
		ps := w.slot(p)
		if !ps.hasParent {
			break
		}
		p = ps.parent
	}

	w.detach(child, cs)
	cs.parent = parent
	cs.hasParent = true
	ps := w.slot(parent)
	ps.children = append(ps.children, child)
	return nil
}

// Parent returns the entity's parent if it has one.
func (w *World) Parent(ref protocol.EntityRef) (protocol.EntityRef, bool) {
	s := w.slot(ref)
	if s == nil || !s.hasParent {
		return 0, false
	}
	return s.parent, true
}

func (w *World) Children(ref protocol.EntityRef) []protocol.EntityRef {
	s := w.slot(ref)
	if s == nil {
		return nil
	}
	return slices.Clone(s.children)
}

func (w *World) detach(ref protocol.EntityRef, s *slot) {
	if !s.hasParent {
		return
	}
	if ps := w.slot(s.parent); ps != nil {
		ps.children = slices.DeleteFunc(ps.children, func(c protocol.EntityRef) bool { return c == ref })
	}
	s.hasParent = false
	s.parent = 0
}

// Despawn destroys the entity and all its descendants. It returns every
// destroyed reference, the entity itself first.
func (w *World) Despawn(ref protocol.EntityRef) ([]protocol.EntityRef, error) {
	s := w.slot(ref)
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, ref)
	}
	w.detach(ref, s)

	var removed []protocol.EntityRef
	stack := []protocol.EntityRef{ref}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cs := w.slot(cur)
		if cs == nil {
			continue
		}
		for i := len(cs.children) - 1; i >= 0; i-- {
			stack = append(stack, cs.children[i])
		}
		removed = append(removed, cur)
		index := cur.Index()
		*cs = slot{generation: cs.generation}
		w.free = append(w.free, index)
		w.live--
	}
	return removed, nil
}

// Entities returns every live entity ordered by index.
func (w *World) Entities() []protocol.EntityRef {
	out := make([]protocol.EntityRef, 0, w.live)
	for i := range w.slots {
		s := &w.slots[i]
		if s.alive {
			out = append(out, protocol.NewEntityRef(uint32(i), s.generation))
		}
	}
	return out
}

// Query iterates live entities that carry every listed kind, in index order.
func (w *World) Query(with ...Kind) Iterator[protocol.EntityRef] {
	var out []protocol.EntityRef
	for i := range w.slots {
		s := &w.slots[i]
		if !s.alive {
			continue
		}
		match := true
		for _, k := range with {
			if !k.Valid() || s.components[k] == nil {
				match = false
				break
			}
		}
		if match {
			out = append(out, protocol.NewEntityRef(uint32(i), s.generation))
		}
	}
	return newSliceIterator(out)
}

// FindByName returns the first live entity, by index, with the given name.
func (w *World) FindByName(name string) (protocol.EntityRef, bool) {
	it := w.Query(KindName)
	defer it.Close()
	for it.Next() {
		ref := it.Item()
		if n, _ := w.Name(ref); n == name {
			return ref, true
		}
	}
	return 0, false
}

// Digest hashes the live scene: references, occupied slots with their
// values, and parent links. Equal scenes built by the same command sequence
// hash equal.
func (w *World) Digest() uint64 {
	st := digestStates.Get()
	defer digestStates.Put(st)

	for i := range w.slots {
		s := &w.slots[i]
		if !s.alive {
			continue
		}
		buf := st.buf[:0]
		buf = binary.LittleEndian.AppendUint64(buf, protocol.NewEntityRef(uint32(i), s.generation).Bits())
		for k, c := range s.components {
			if c == nil {
				continue
			}
			buf = append(buf, byte(k))
			buf = c.AppendDigest(buf)
		}
		if s.hasParent {
			buf = append(buf, 0xff)
			buf = binary.LittleEndian.AppendUint64(buf, s.parent.Bits())
		}
		_, _ = st.h.Write(buf)
		st.buf = buf
	}
	return st.h.Sum64()
}

type digestState struct {
	h   *xxhash.Digest
	buf []byte
}

var digestStates = generic.NewResetPool(
	func() *digestState { return &digestState{h: xxhash.New(), buf: make([]byte, 0, 256)} },
	func(st *digestState) *digestState {
		st.h.Reset()
		st.buf = st.buf[:0]
		return st
	},
)
