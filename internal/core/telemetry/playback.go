package telemetry

import (
	"fmt"
	"maps"
	"strings"

	"github.com/dimensify/dimensify/internal/core/protocol"
)

const DefaultTimeline = "sim_time"

// Mode controls how the playback time moves.
type Mode uint8

const (
	// ModeLive follows wall time since start.
	ModeLive Mode = iota
	// ModeFixed holds the time where it was set.
	ModeFixed
)

func (m Mode) String() string {
	if m == ModeFixed {
		return "fixed"
	}
	return "live"
}

// ParseMode accepts "live" and "fixed" in any case. Anything else is live.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "fixed") {
		return ModeFixed
	}
	return ModeLive
}

// Playback is the time cursor telemetry is rendered at.
type Playback struct {
	Timeline string
	Time     float64
	Mode     Mode
}

func DefaultPlayback() Playback {
	return Playback{Timeline: DefaultTimeline, Mode: ModeLive}
}

// Advance moves a live playback to elapsed seconds. Fixed playbacks do not
// move.
func (p *Playback) Advance(elapsed float64) {
	if p.Mode == ModeLive {
		p.Time = elapsed
	}
}

// Seek pins the playback to t and switches it to fixed mode.
func (p *Playback) Seek(t float64) {
	p.Time = t
	p.Mode = ModeFixed
}

func (p Playback) String() string {
	return fmt.Sprintf("%s@%g(%s)", p.Timeline, p.Time, p.Mode)
}

// State is the latest event per path for one playback position.
type State struct {
	Timeline string
	Time     float64
	Latest   map[string]protocol.TelemetryEvent

	lastRevision uint64
	valid        bool
}

// Refresh recomputes Latest when the store or the playback moved. It
// reports whether anything was recomputed.
func (st *State) Refresh(s *Store, p Playback) bool {
	rev := s.Revision()
	if st.valid && rev == st.lastRevision && st.Time == p.Time && st.Timeline == p.Timeline {
		return false
	}
	st.Timeline = p.Timeline
	st.Time = p.Time
	if st.Latest == nil {
		st.Latest = make(map[string]protocol.TelemetryEvent)
	}
	clear(st.Latest)
	for _, path := range s.Paths(p.Timeline) {
		if e, ok := s.LatestAt(p.Timeline, path, p.Time); ok {
			st.Latest[path] = e
		}
	}
	st.lastRevision = rev
	st.valid = true
	return true
}

// Snapshot copies Latest.
func (st *State) Snapshot() map[string]protocol.TelemetryEvent {
	return maps.Clone(st.Latest)
}
