package applicator

import (
	"errors"
	"fmt"

	"github.com/dimensify/dimensify/internal/core/protocol"
)

var (
	ErrUnknownEntity      = errors.New("unknown entity")
	ErrUnknownComponent   = errors.New("unknown component")
	ErrDuplicateName      = errors.New("duplicate name")
	ErrInvalidCommand     = errors.New("invalid command")
	ErrNoRoute            = errors.New("no route for origin")
	ErrUnsupportedCommand = errors.New("unsupported command")
)

// UnknownEntityError is returned when a command targets an entity that is
// not alive.
type UnknownEntityError struct {
	Op     string
	Entity protocol.EntityRef
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("%s refers to unknown entity '%s'", e.Op, e.Entity)
}

func (e *UnknownEntityError) Is(target error) bool { return target == ErrUnknownEntity }

// UnknownComponentError is returned when a component id is not registered,
// or when Update targets a slot the entity does not carry.
type UnknownComponentError struct {
	Op        string
	Entity    protocol.EntityRef
	Component protocol.ComponentID
}

func (e *UnknownComponentError) Error() string {
	return fmt.Sprintf("%s refers to unknown component %d on entity '%s'", e.Op, e.Component, e.Entity)
}

func (e *UnknownComponentError) Is(target error) bool { return target == ErrUnknownComponent }

// DuplicateNameError is returned when a Name is already bound to another
// live entity.
type DuplicateNameError struct {
	Name  string
	Owner protocol.EntityRef
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("name %q is already bound to entity '%s'", e.Name, e.Owner)
}

func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateName }
