package commandlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/dimensify/dimensify/internal/core/events"
	"github.com/dimensify/dimensify/internal/core/events/bus"
)

var ErrRecorderClosed = errors.New("recorder closed")

// Recorder writes appended commands to a replay file, one JSON command per
// line, so a session can be loaded again with LoadReplay. Paths ending in
// ".zst" are zstd compressed. Replayed commands are not recorded again.
type Recorder struct {
	mu     sync.Mutex
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
	sub    bus.Subscription
	count  int
	closed bool
}

// NewRecorder creates path (truncating it) and starts recording
// command.appended events from eventBus.
func NewRecorder(path string, eventBus bus.EventBus) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open record file: %w", err)
	}

	r := &Recorder{f: f}
	if strings.HasSuffix(path, ".zst") {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		r.enc = enc
		r.w = bufio.NewWriterSize(enc, 128*1024)
	} else {
		r.w = bufio.NewWriterSize(f, 64*1024)
	}

	sub, err := eventBus.Subscribe(events.CommandAppended, r.handle)
	if err != nil {
		_ = r.closeLocked()
		return nil, fmt.Errorf("subscribe recorder: %w", err)
	}
	r.sub = sub
	return r, nil
}

func (r *Recorder) handle(e bus.Event) error {
	d, ok := e.Data().(events.CommandAppendedData)
	if !ok || Origin(d.Origin) == ReplayOrigin {
		return nil
	}
	b, err := json.Marshal(d.Command)
	if err != nil {
		return fmt.Errorf("encode command %d: %w", d.Seq, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}
	if _, err := r.w.Write(b); err != nil {
		return err
	}
	if err := r.w.WriteByte('\n'); err != nil {
		return err
	}
	r.count++
	return r.w.Flush()
}

// Count returns the number of commands written so far.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close stops recording and flushes the file.
func (r *Recorder) Close() error {
	if r.sub != nil {
		_ = r.sub.Cancel()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.closeLocked()
}

func (r *Recorder) closeLocked() error {
	r.closed = true
	var errs []error
	if r.w != nil {
		errs = append(errs, r.w.Flush())
	}
	if r.enc != nil {
		errs = append(errs, r.enc.Close())
	}
	if r.f != nil {
		errs = append(errs, r.f.Close())
	}
	return errors.Join(errs...)
}
