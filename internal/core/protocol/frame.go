package protocol

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// MaxFrameBody bounds the JSON body of a single frame.
const MaxFrameBody = 4 << 20

// Frame is the envelope used on byte-stream transports. Body holds one JSON
// encoded ProtoRequest or ProtoResponse. A response echoes the Seq of the
// request it answers.
type Frame struct {
	Seq  uint64 `cbor:"1,keyasint"`
	Body []byte `cbor:"2,keyasint"`
}

// Frames use core deterministic encoding. CBOR items are self-delimiting,
// so a stream needs no extra length prefix.
var (
	frameEncMode cbor.EncMode
	frameDecMode cbor.DecMode
)

func init() {
	var err error
	frameEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	frameDecMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeFrame returns the CBOR form of f.
func EncodeFrame(f Frame) ([]byte, error) {
	if len(f.Body) > MaxFrameBody {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(f.Body))
	}
	return frameEncMode.Marshal(f)
}

// DecodeFrame parses a single CBOR frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := frameDecMode.Unmarshal(data, &f); err != nil {
		return Frame{}, malformed("Frame", err)
	}
	if len(f.Body) > MaxFrameBody {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(f.Body))
	}
	return f, nil
}

// FrameWriter writes frames to a stream. It is not safe for concurrent use.
type FrameWriter struct {
	enc *cbor.Encoder
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{enc: frameEncMode.NewEncoder(w)}
}

func (w *FrameWriter) WriteFrame(f Frame) error {
	if len(f.Body) > MaxFrameBody {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(f.Body))
	}
	return w.enc.Encode(f)
}

// FrameReader reads frames from a stream. It is not safe for concurrent use.
type FrameReader struct {
	dec *cbor.Decoder
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{dec: frameDecMode.NewDecoder(r)}
}

// ReadFrame returns io.EOF once the stream ends between frames.
func (r *FrameReader) ReadFrame() (Frame, error) {
	var f Frame
	if err := r.dec.Decode(&f); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, malformed("Frame", err)
	}
	if len(f.Body) > MaxFrameBody {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(f.Body))
	}
	return f, nil
}
