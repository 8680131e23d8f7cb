package telemetry

import (
	"strings"

	"github.com/dimensify/dimensify/internal/core/protocol"
	"github.com/dimensify/dimensify/internal/core/scene"
)

// Sync drives named entity transforms from telemetry paths of the form
// "entity/<name>/transform/<field>", where field is translation (or
// position) and scale with a Vec3 payload, or rotation with a Vec4 payload
// in x, y, z, w order.
type Sync struct {
	Enabled bool

	lastRevision uint64
	lastTime     float64
	lastTimeline string
	ran          bool
}

// Apply writes the latest transform samples in st into world and returns
// how many entities changed. It does nothing when disabled or when neither
// the store nor the playback moved since the last call.
func (y *Sync) Apply(world *scene.World, s *Store, st *State) int {
	if !y.Enabled {
		return 0
	}
	rev := s.Revision()
	if y.ran && y.lastRevision == rev && y.lastTime == st.Time && y.lastTimeline == st.Timeline {
		return 0
	}

	byName := make(map[string]protocol.EntityRef)
	it := world.Query(scene.KindName, scene.KindTransform)
	for it.Next() {
		ref := it.Item()
		if n, ok := world.Name(ref); ok {
			if _, seen := byName[n]; !seen {
				byName[n] = ref
			}
		}
	}
	_ = it.Close()

	changed := make(map[protocol.EntityRef]protocol.Transform)
	for path, e := range st.Latest {
		name, field, ok := parseTransformPath(path)
		if !ok {
			continue
		}
		ref, ok := byName[name]
		if !ok {
			continue
		}
		t, ok := changed[ref]
		if !ok {
			t, _ = world.Transform(ref)
		}
		if !applyField(&t, field, e.Payload) {
			continue
		}
		changed[ref] = t
	}
	for ref, t := range changed {
		_ = world.Insert(ref, scene.Transform(t))
	}

	y.lastRevision = rev
	y.lastTime = st.Time
	y.lastTimeline = st.Timeline
	y.ran = true
	return len(changed)
}

func applyField(t *protocol.Transform, field string, payload protocol.TelemetryPayload) bool {
	switch field {
	case "translation", "position":
		if v, ok := payload.(protocol.Vec3Payload); ok {
			t.Translation = v.Value
			return true
		}
	case "scale":
		if v, ok := payload.(protocol.Vec3Payload); ok {
			t.Scale = v.Value
			return true
		}
	case "rotation":
		if v, ok := payload.(protocol.Vec4Payload); ok {
			t.Rotation = protocol.Quat{X: v.Value.X, Y: v.Value.Y, Z: v.Value.Z, W: v.Value.W}
			return true
		}
	}
	return false
}

func parseTransformPath(path string) (name, field string, ok bool) {
	parts := strings.Split(path, "/")
	if len(parts) < 4 || parts[0] != "entity" || parts[2] != "transform" {
		return "", "", false
	}
	return parts[1], parts[3], true
}
