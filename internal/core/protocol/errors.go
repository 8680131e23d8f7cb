package protocol

import (
	"errors"
	"fmt"
)

// Codec errors
var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnknownVariant   = errors.New("unknown variant")
	ErrInvalidLength    = errors.New("invalid binary length")
	ErrFrameTooLarge    = errors.New("frame too large")
)

// DecodeError reports a wire payload that could not be turned into a protocol value.
// Err is ErrUnknownVariant, ErrInvalidLength or wraps ErrMalformedPayload.
type DecodeError struct {
	Type    string
	Variant string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Variant != "" {
		return fmt.Sprintf("decode %s: %v %q", e.Type, e.Err, e.Variant)
	}
	return fmt.Sprintf("decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func unknownVariant(typ, variant string) error {
	return &DecodeError{Type: typ, Variant: variant, Err: ErrUnknownVariant}
}

func malformed(typ string, cause error) error {
	var de *DecodeError
	if errors.As(cause, &de) {
		return cause
	}
	return &DecodeError{Type: typ, Err: fmt.Errorf("%w: %v", ErrMalformedPayload, cause)}
}
