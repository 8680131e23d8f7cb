package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Unions use the externally tagged layout: a unit variant is a bare string
// ("Clear"), any other variant is an object with exactly one key naming it.

func marshalTagged(variant string, body any) ([]byte, error) {
	return json.Marshal(map[string]any{variant: body})
}

func marshalUnit(variant string) ([]byte, error) {
	return json.Marshal(variant)
}

// splitTagged returns the variant name and its body. Body is nil for unit
// variants written as bare strings.
func splitTagged(typ string, data []byte) (string, json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", nil, malformed(typ, fmt.Errorf("empty input"))
	}
	if data[0] == '"' {
		var variant string
		if err := json.Unmarshal(data, &variant); err != nil {
			return "", nil, malformed(typ, err)
		}
		return variant, nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", nil, malformed(typ, err)
	}
	if len(fields) != 1 {
		return "", nil, malformed(typ, fmt.Errorf("expected exactly one variant key, got %d", len(fields)))
	}
	for variant, body := range fields {
		return variant, body, nil
	}
	return "", nil, nil
}

func isNullBody(body json.RawMessage) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeBody(typ string, body json.RawMessage, v any) error {
	if isNullBody(body) {
		return malformed(typ, fmt.Errorf("missing body"))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return malformed(typ, err)
	}
	return nil
}

func decodeComponents(raw []json.RawMessage) ([]ProtoComponent, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]ProtoComponent, 0, len(raw))
	for _, r := range raw {
		c, err := DecodeComponent(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func componentsOrEmpty(components []ProtoComponent) []ProtoComponent {
	if components == nil {
		return []ProtoComponent{}
	}
	return components
}
