package protocol

import (
	"encoding/json"
	"fmt"
)

// ProtoRequest is a message from a controller.
type ProtoRequest interface {
	json.Marshaler
	Variant() string
	isRequest()
}

// ApplyCommand queues a world command for the next tick.
type ApplyCommand struct {
	Command WorldCommand
}

// List asks for the current scene contents. It never enters the command log.
type List struct{}

func (ApplyCommand) isRequest() {}
func (List) isRequest()         {}

func (ApplyCommand) Variant() string { return "ApplyCommand" }
func (List) Variant() string         { return "List" }

func (r ApplyCommand) MarshalJSON() ([]byte, error) {
	if r.Command == nil {
		return nil, fmt.Errorf("marshal ApplyCommand: nil command")
	}
	return marshalTagged(r.Variant(), r.Command)
}

func (r List) MarshalJSON() ([]byte, error) {
	return marshalUnit(r.Variant())
}

// DecodeRequest parses the tagged JSON form of a ProtoRequest.
func DecodeRequest(data []byte) (ProtoRequest, error) {
	variant, body, err := splitTagged("ProtoRequest", data)
	if err != nil {
		return nil, err
	}

	switch variant {
	case "ApplyCommand":
		if isNullBody(body) {
			return nil, missingField(variant, "command")
		}
		command, err := DecodeCommand(body)
		if err != nil {
			return nil, err
		}
		return ApplyCommand{Command: command}, nil
	case "List":
		if !isNullBody(body) {
			return nil, malformed(variant, fmt.Errorf("unit variant has a body"))
		}
		return List{}, nil
	default:
		return nil, unknownVariant("ProtoRequest", variant)
	}
}

// ProtoResponse answers exactly one ProtoRequest.
type ProtoResponse interface {
	json.Marshaler
	Variant() string
	isResponse()
}

// Ack reports success for commands that produce no entity.
type Ack struct{}

// CommandResponseEntity reports the entity a successful command touched.
type CommandResponseEntity struct {
	Entity EntityRef
}

// Entities is the answer to List.
type Entities struct {
	Entities []EntityInfo
}

// ErrorResponse carries a human readable failure. Its wire tag is "Error".
type ErrorResponse struct {
	Message string
}

// EntityInfo describes one listed entity.
type EntityInfo struct {
	ID         uint64          `json:"id"`
	Name       *string         `json:"name"`
	Components []ComponentInfo `json:"components"`
}

// ComponentInfo pairs a component id with its display name.
type ComponentInfo struct {
	ID   ComponentID `json:"id"`
	Name string      `json:"name"`
}

// Errorf builds an ErrorResponse from a format string.
func Errorf(format string, args ...any) ErrorResponse {
	return ErrorResponse{Message: fmt.Sprintf(format, args...)}
}

func (Ack) isResponse()                   {}
func (CommandResponseEntity) isResponse() {}
func (Entities) isResponse()              {}
func (ErrorResponse) isResponse()         {}

func (Ack) Variant() string                   { return "Ack" }
func (CommandResponseEntity) Variant() string { return "CommandResponseEntity" }
func (Entities) Variant() string              { return "Entities" }
func (ErrorResponse) Variant() string         { return "Error" }

func (r ErrorResponse) Error() string { return r.Message }

func (r Ack) MarshalJSON() ([]byte, error) {
	return marshalUnit(r.Variant())
}

func (r CommandResponseEntity) MarshalJSON() ([]byte, error) {
	return marshalTagged(r.Variant(), r.Entity)
}

func (r Entities) MarshalJSON() ([]byte, error) {
	entities := r.Entities
	if entities == nil {
		entities = []EntityInfo{}
	}
	out := make([]EntityInfo, len(entities))
	for i, e := range entities {
		out[i] = e
		if out[i].Components == nil {
			out[i].Components = []ComponentInfo{}
		}
	}
	return marshalTagged(r.Variant(), struct {
		Entities []EntityInfo `json:"entities"`
	}{out})
}

func (r ErrorResponse) MarshalJSON() ([]byte, error) {
	return marshalTagged(r.Variant(), struct {
		Message string `json:"message"`
	}{r.Message})
}

// DecodeResponse parses the tagged JSON form of a ProtoResponse.
func DecodeResponse(data []byte) (ProtoResponse, error) {
	variant, body, err := splitTagged("ProtoResponse", data)
	if err != nil {
		return nil, err
	}

	switch variant {
	case "Ack":
		if !isNullBody(body) {
			return nil, malformed(variant, fmt.Errorf("unit variant has a body"))
		}
		return Ack{}, nil
	case "CommandResponseEntity":
		var entity EntityRef
		if err := decodeBody(variant, body, &entity); err != nil {
			return nil, err
		}
		return CommandResponseEntity{Entity: entity}, nil
	case "Entities":
		var b struct {
			Entities []EntityInfo `json:"entities"`
		}
		if err := decodeBody(variant, body, &b); err != nil {
			return nil, err
		}
		if len(b.Entities) == 0 {
			return Entities{}, nil
		}
		for i := range b.Entities {
			if len(b.Entities[i].Components) == 0 {
				b.Entities[i].Components = nil
			}
		}
		return Entities{Entities: b.Entities}, nil
	case "Error":
		var b struct {
			Message string `json:"message"`
		}
		if err := decodeBody(variant, body, &b); err != nil {
			return nil, err
		}
		return ErrorResponse{Message: b.Message}, nil
	default:
		return nil, unknownVariant("ProtoResponse", variant)
	}
}
