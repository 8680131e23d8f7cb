package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// EntityRef is an opaque scene handle. The low 32 bits hold the slot index,
// the high 32 bits its generation. It travels as the raw 64-bit integer.
type EntityRef uint64

// NewEntityRef packs an index and generation into a handle.
func NewEntityRef(index, generation uint32) EntityRef {
	return EntityRef(uint64(generation)<<32 | uint64(index))
}

func (e EntityRef) Index() uint32      { return uint32(e) }
func (e EntityRef) Generation() uint32 { return uint32(uint64(e) >> 32) }
func (e EntityRef) Bits() uint64       { return uint64(e) }

// String renders the handle as "<index>v<generation>".
func (e EntityRef) String() string {
	return strconv.FormatUint(uint64(e.Index()), 10) + "v" + strconv.FormatUint(uint64(e.Generation()), 10)
}

// ComponentID names a registered component kind. Clients learn ids from List
// and pass them back in Remove.
type ComponentID uint

// WorldCommand is one mutation of the scene, applied in log order.
type WorldCommand interface {
	json.Marshaler
	Variant() string
	isWorldCommand()
}

// Spawn creates an entity carrying the given components.
type Spawn struct {
	Components []ProtoComponent
}

// Insert attaches components to an existing entity.
type Insert struct {
	Entity     EntityRef
	Components []ProtoComponent
}

// Update overwrites one component the entity already carries.
type Update struct {
	Entity    EntityRef
	Component ProtoComponent
}

// Remove detaches a component by id.
type Remove struct {
	Entity    EntityRef
	Component ComponentID
}

// Despawn destroys an entity and its descendants.
type Despawn struct {
	Entity EntityRef
}

// Clear despawns every entity created through commands.
type Clear struct{}

// NewSpawn builds a Spawn, normalizing an empty component list to nil.
func NewSpawn(components ...ProtoComponent) Spawn {
	if len(components) == 0 {
		return Spawn{}
	}
	return Spawn{Components: components}
}

// NewInsert builds an Insert, normalizing an empty component list to nil.
func NewInsert(entity EntityRef, components ...ProtoComponent) Insert {
	if len(components) == 0 {
		return Insert{Entity: entity}
	}
	return Insert{Entity: entity, Components: components}
}

func (Spawn) isWorldCommand()   {}
func (Insert) isWorldCommand()  {}
func (Update) isWorldCommand()  {}
func (Remove) isWorldCommand()  {}
func (Despawn) isWorldCommand() {}
func (Clear) isWorldCommand()   {}

func (Spawn) Variant() string   { return "Spawn" }
func (Insert) Variant() string  { return "Insert" }
func (Update) Variant() string  { return "Update" }
func (Remove) Variant() string  { return "Remove" }
func (Despawn) Variant() string { return "Despawn" }
func (Clear) Variant() string   { return "Clear" }

func (c Spawn) MarshalJSON() ([]byte, error) {
	return marshalTagged(c.Variant(), struct {
		Components []ProtoComponent `json:"components"`
	}{componentsOrEmpty(c.Components)})
}

func (c Insert) MarshalJSON() ([]byte, error) {
	return marshalTagged(c.Variant(), struct {
		Entity     EntityRef        `json:"entity"`
		Components []ProtoComponent `json:"components"`
	}{c.Entity, componentsOrEmpty(c.Components)})
}

func (c Update) MarshalJSON() ([]byte, error) {
	if c.Component == nil {
		return nil, fmt.Errorf("marshal Update: nil component")
	}
	return marshalTagged(c.Variant(), struct {
		Entity    EntityRef      `json:"entity"`
		Component ProtoComponent `json:"component"`
	}{c.Entity, c.Component})
}

func (c Remove) MarshalJSON() ([]byte, error) {
	return marshalTagged(c.Variant(), struct {
		Entity    EntityRef   `json:"entity"`
		Component ComponentID `json:"component"`
	}{c.Entity, c.Component})
}

func (c Despawn) MarshalJSON() ([]byte, error) {
	return marshalTagged(c.Variant(), struct {
		Entity EntityRef `json:"entity"`
	}{c.Entity})
}

func (c Clear) MarshalJSON() ([]byte, error) {
	return marshalUnit(c.Variant())
}

// DecodeCommand parses the tagged JSON form of a WorldCommand.
func DecodeCommand(data []byte) (WorldCommand, error) {
	variant, body, err := splitTagged("WorldCommand", data)
	if err != nil {
		return nil, err
	}

	switch variant {
	case "Spawn":
		var b struct {
			Components []json.RawMessage `json:"components"`
		}
		if err := decodeBody(variant, body, &b); err != nil {
			return nil, err
		}
		components, err := decodeComponents(b.Components)
		if err != nil {
			return nil, err
		}
		return Spawn{Components: components}, nil
	case "Insert":
		var b struct {
			Entity     *EntityRef        `json:"entity"`
			Components []json.RawMessage `json:"components"`
		}
		if err := decodeBody(variant, body, &b); err != nil {
			return nil, err
		}
		if b.Entity == nil {
			return nil, missingField(variant, "entity")
		}
		components, err := decodeComponents(b.Components)
		if err != nil {
			return nil, err
		}
		return Insert{Entity: *b.Entity, Components: components}, nil
	case "Update":
		var b struct {
			Entity    *EntityRef      `json:"entity"`
			Component json.RawMessage `json:"component"`
		}
		if err := decodeBody(variant, body, &b); err != nil {
			return nil, err
		}
		if b.Entity == nil {
			return nil, missingField(variant, "entity")
		}
		if isNullBody(b.Component) {
			return nil, missingField(variant, "component")
		}
		component, err := DecodeComponent(b.Component)
		if err != nil {
			return nil, err
		}
		return Update{Entity: *b.Entity, Component: component}, nil
	case "Remove":
		var b struct {
			Entity    *EntityRef   `json:"entity"`
			Component *ComponentID `json:"component"`
		}
		if err := decodeBody(variant, body, &b); err != nil {
			return nil, err
		}
		if b.Entity == nil {
			return nil, missingField(variant, "entity")
		}
		if b.Component == nil {
			return nil, missingField(variant, "component")
		}
		return Remove{Entity: *b.Entity, Component: *b.Component}, nil
	case "Despawn":
		var b struct {
			Entity *EntityRef `json:"entity"`
		}
		if err := decodeBody(variant, body, &b); err != nil {
			return nil, err
		}
		if b.Entity == nil {
			return nil, missingField(variant, "entity")
		}
		return Despawn{Entity: *b.Entity}, nil
	case "Clear":
		if !isNullBody(body) {
			return nil, malformed(variant, fmt.Errorf("unit variant has a body"))
		}
		return Clear{}, nil
	default:
		return nil, unknownVariant("WorldCommand", variant)
	}
}

func missingField(typ, field string) error {
	return malformed(typ, fmt.Errorf("missing field %q", field))
}
