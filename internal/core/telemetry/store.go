// Package telemetry keeps a bounded, time-indexed history of telemetry
// samples and derives the latest value per path for a playback time.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/dimensify/dimensify/internal/core/events"
	"github.com/dimensify/dimensify/internal/core/events/bus"
	"github.com/dimensify/dimensify/internal/core/protocol"
)

const DefaultCapacity = 10_000

var (
	ErrInvalidTime = errors.New("invalid telemetry time")
	ErrEmptyPath   = errors.New("empty telemetry path")
)

// Store is a ring buffer of telemetry events. When full, pushing evicts the
// oldest event. Every (timeline, path) pair keeps its events sorted by time
// so LatestAt is a binary search. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	ring     []protocol.TelemetryEvent
	capacity int
	// first is the sequence number of the oldest retained event, next the
	// sequence number the next push gets.
	first    uint64
	next     uint64
	index    map[string]map[string][]uint64
	revision uint64
	bus      bus.EventBus
}

// NewStore creates a store holding at most capacity events. A non-positive
// capacity uses DefaultCapacity. eventBus may be nil.
func NewStore(capacity int, eventBus bus.EventBus) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		ring:     make([]protocol.TelemetryEvent, capacity),
		capacity: capacity,
		index:    make(map[string]map[string][]uint64),
		bus:      eventBus,
	}
}

func (s *Store) at(seq uint64) *protocol.TelemetryEvent {
	return &s.ring[seq%uint64(s.capacity)]
}

// Push stores e, evicting the oldest event when the store is full.
func (s *Store) Push(e protocol.TelemetryEvent) error {
	if math.IsNaN(e.Time.Value) {
		return fmt.Errorf("%w: NaN on %s", ErrInvalidTime, e.Path)
	}
	if e.Path == "" {
		return ErrEmptyPath
	}

	s.mu.Lock()
	if s.next-s.first == uint64(s.capacity) {
		s.evictLocked()
	}
	seq := s.next
	s.next++
	*s.at(seq) = e
	s.insertLocked(seq)
	s.revision++
	s.mu.Unlock()

	if s.bus != nil {
		return s.bus.Publish(events.NewTelemetryIngested("telemetry", events.TelemetryIngestedData{Event: e}))
	}
	return nil
}

func (s *Store) insertLocked(seq uint64) {
	e := s.at(seq)
	paths, ok := s.index[e.Time.Timeline]
	if !ok {
		paths = make(map[string][]uint64)
		s.index[e.Time.Timeline] = paths
	}
	seqs := paths[e.Path]
	// after any equal timestamps, so the later push wins in LatestAt
	i := sort.Search(len(seqs), func(i int) bool { return s.at(seqs[i]).Time.Value > e.Time.Value })
	paths[e.Path] = slices.Insert(seqs, i, seq)
}

func (s *Store) evictLocked() {
	seq := s.first
	e := s.at(seq)
	paths := s.index[e.Time.Timeline]
	seqs := slices.DeleteFunc(paths[e.Path], func(v uint64) bool { return v == seq })
	if len(seqs) == 0 {
		delete(paths, e.Path)
		if len(paths) == 0 {
			delete(s.index, e.Time.Timeline)
		}
	} else {
		paths[e.Path] = seqs
	}
	*e = protocol.TelemetryEvent{}
	s.first++
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.next - s.first)
}

func (s *Store) Capacity() int { return s.capacity }

// Revision changes on every push.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Events returns the retained events, oldest first.
func (s *Store) Events() []protocol.TelemetryEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.TelemetryEvent, 0, s.next-s.first)
	for seq := s.first; seq < s.next; seq++ {
		out = append(out, *s.at(seq))
	}
	return out
}

// LatestAt returns the event on path with the greatest time not after t.
func (s *Store) LatestAt(timeline, path string, t float64) (protocol.TelemetryEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seqs := s.index[timeline][path]
	i := sort.Search(len(seqs), func(i int) bool { return s.at(seqs[i]).Time.Value > t })
	if i == 0 {
		return protocol.TelemetryEvent{}, false
	}
	return *s.at(seqs[i-1]), true
}

// Paths lists the paths that have events on timeline, sorted.
func (s *Store) Paths(timeline string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := s.index[timeline]
	out := make([]string, 0, len(paths))
	for p := range paths {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Timelines lists every timeline with retained events, sorted.
func (s *Store) Timelines() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.index))
	for tl := range s.index {
		out = append(out, tl)
	}
	slices.Sort(out)
	return out
}

// TimelineBounds returns the smallest and largest time on timeline.
func (s *Store) TimelineBounds(timeline string) (lo, hi float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, seqs := range s.index[timeline] {
		if len(seqs) == 0 {
			continue
		}
		first := s.at(seqs[0]).Time.Value
		last := s.at(seqs[len(seqs)-1]).Time.Value
		if !ok {
			lo, hi, ok = first, last, true
			continue
		}
		lo = min(lo, first)
		hi = max(hi, last)
	}
	return lo, hi, ok
}
