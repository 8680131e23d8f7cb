// Package jsonl reads newline-delimited records with a per-line size cap.
package jsonl

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrLineTooLong is returned for a line above the cap. The line is consumed
// and the Reader stays usable.
var ErrLineTooLong = errors.New("line too long")

// Reader splits a stream into lines without their terminator.
type Reader struct {
	r   *bufio.Reader
	max int
	buf []byte
}

// NewReader caps each line at maxLine bytes.
func NewReader(r io.Reader, maxLine int) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024), max: maxLine}
}

// Next returns the next line. The slice is only valid until the next call.
// io.EOF is returned once the stream is exhausted.
func (r *Reader) Next() ([]byte, error) {
	r.buf = r.buf[:0]
	overflow := false
	for {
		chunk, err := r.r.ReadSlice('\n')
		if !overflow && len(r.buf)+len(chunk) > r.max+1 {
			overflow = true
			r.buf = r.buf[:0]
		}
		if !overflow {
			r.buf = append(r.buf, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if err != nil && len(chunk) == 0 && len(r.buf) == 0 && !overflow {
			return nil, io.EOF
		}
		break
	}

	line := bytes.TrimSuffix(r.buf, []byte("\n"))
	if overflow || len(line) > r.max {
		return nil, ErrLineTooLong
	}
	return line, nil
}
