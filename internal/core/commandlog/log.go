package commandlog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dimensify/dimensify/internal/core/events"
	"github.com/dimensify/dimensify/internal/core/events/bus"
	"github.com/dimensify/dimensify/internal/core/protocol"
)

// ErrSeqOrder is returned when a restored entry does not follow the log.
var ErrSeqOrder = errors.New("sequence out of order")

// Origin identifies where a command came from. Responses are routed back to
// the origin that produced the command.
type Origin string

// ReplayOrigin marks commands loaded from a replay file or a durable store.
// Nobody listens on it, so their responses are dropped.
const ReplayOrigin Origin = "replay"

// Entry is one logged command.
type Entry struct {
	Seq     int
	Origin  Origin
	Command protocol.WorldCommand
}

// Cursor is a consumer's read position in a Log. The zero value starts at the
// beginning.
type Cursor struct {
	Index int
}

// Log is an append-only, ordered command sequence. Entries are never removed;
// consumers read forward with their own Cursor. Sequence numbers increase
// strictly but may have gaps after RestoreAt or SkipTo.
type Log struct {
	// appendMu serializes producers so events leave in log order.
	appendMu sync.Mutex
	mu       sync.RWMutex
	entries  []Entry
	next     int
	bus      bus.EventBus
}

// New creates an empty log. When eventBus is non-nil every Append publishes
// a command.appended event after the entry is visible.
func New(eventBus bus.EventBus) *Log {
	return &Log{bus: eventBus}
}

// Append adds a command at the end of the log and returns its sequence
// number. Event handlers run on the caller's goroutine and must not append.
func (l *Log) Append(origin Origin, cmd protocol.WorldCommand) (int, error) {
	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	seq := l.push(origin, cmd)
	if l.bus == nil {
		return seq, nil
	}
	err := l.bus.Publish(events.NewCommandAppended("commandlog", events.CommandAppendedData{
		Seq:     seq,
		Origin:  string(origin),
		Command: cmd,
	}))
	return seq, err
}

// RestoreAt appends one entry under a sequence number taken from a durable
// store, without publishing. seq must be above every sequence in the log.
func (l *Log) RestoreAt(seq int, origin Origin, cmd protocol.WorldCommand) error {
	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if seq < l.next {
		return fmt.Errorf("%w: restoring %d, next is %d", ErrSeqOrder, seq, l.next)
	}
	l.next = seq
	l.pushLocked(origin, cmd)
	return nil
}

// SkipTo makes the next Append use at least seq.
func (l *Log) SkipTo(seq int) {
	l.appendMu.Lock()
	defer l.appendMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next = max(l.next, seq)
}

// NextSeq is the sequence number the next Append will use.
func (l *Log) NextSeq() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next
}

func (l *Log) push(origin Origin, cmd protocol.WorldCommand) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pushLocked(origin, cmd)
}

func (l *Log) pushLocked(origin Origin, cmd protocol.WorldCommand) int {
	seq := l.next
	l.next++
	l.entries = append(l.entries, Entry{Seq: seq, Origin: origin, Command: cmd})
	return seq
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// DrainNew returns the entries in [cursor.Index, Len()) and moves the cursor
// to the length observed at call time. The returned slice is owned by the
// caller.
func (l *Log) DrainNew(cursor *Cursor) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	end := len(l.entries)
	if cursor.Index >= end {
		return nil
	}
	start := max(cursor.Index, 0)
	out := make([]Entry, end-start)
	copy(out, l.entries[start:end])
	cursor.Index = end
	return out
}

// Entries returns a snapshot of the whole log.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
