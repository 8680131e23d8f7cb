package applicator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dimensify/dimensify/internal/core/assets"
	"github.com/dimensify/dimensify/internal/core/commandlog"
	"github.com/dimensify/dimensify/internal/core/events"
	"github.com/dimensify/dimensify/internal/core/events/bus"
	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
	"github.com/dimensify/dimensify/internal/core/scene"
)

type routed struct {
	origin commandlog.Origin
	resp   protocol.ProtoResponse
}

// recordingRouter captures responses; origins listed in dead have no route.
type recordingRouter struct {
	mu     sync.Mutex
	got    []routed
	dead   map[commandlog.Origin]bool
	onSend func(routed)
}

func (r *recordingRouter) Route(origin commandlog.Origin, resp protocol.ProtoResponse) error {
	if r.dead[origin] {
		return ErrNoRoute
	}
	rt := routed{origin: origin, resp: resp}
	if r.onSend != nil {
		r.onSend(rt)
	}
	r.mu.Lock()
	r.got = append(r.got, rt)
	r.mu.Unlock()
	return nil
}

func (r *recordingRouter) responses() []routed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]routed(nil), r.got...)
}

func newPipeline(t *testing.T, router Router, eventBus bus.EventBus) (*Pipeline, *commandlog.Log, *assets.Store) {
	t.Helper()
	l := commandlog.New(eventBus)
	store := assets.NewStore()
	p := NewPipeline(l, New(scene.NewWorld(), log.NewNop()), store, router, eventBus, log.NewNop())
	return p, l, store
}

func TestSpawnThenList(t *testing.T) {
	router := &recordingRouter{}
	p, l, _ := newPipeline(t, router, nil)

	_, err := l.Append("c1", protocol.NewSpawn(protocol.Name("x")))
	require.NoError(t, err)
	p.Tick()
	p.RequestList("c1")
	stats := p.Tick()
	assert.Equal(t, 1, stats.Lists)

	got := router.responses()
	require.Len(t, got, 2)
	entityResp, ok := got[0].resp.(protocol.CommandResponseEntity)
	require.True(t, ok)

	listing, ok := got[1].resp.(protocol.Entities)
	require.True(t, ok)
	var found bool
	for _, e := range listing.Entities {
		if e.Name != nil && *e.Name == "x" {
			found = true
			assert.Equal(t, entityResp.Entity.Bits(), e.ID)
		}
	}
	assert.True(t, found)
}

func TestInvalidMeshAnswersWithError(t *testing.T) {
	router := &recordingRouter{}
	p, l, store := newPipeline(t, router, nil)

	_, err := l.Append("c1", protocol.NewSpawn(protocol.Name("x"), protocol.Mesh3d{Shape: protocol.Sphere{Radius: -1}}))
	require.NoError(t, err)
	stats := p.Tick()
	assert.Equal(t, 1, stats.Rejected)
	assert.Zero(t, stats.Applied)
	assert.Equal(t, MaterializeStats{}, stats.Materialize)

	got := router.responses()
	require.Len(t, got, 1)
	errResp, ok := got[0].resp.(protocol.ErrorResponse)
	require.True(t, ok)
	assert.Contains(t, errResp.Message, "invalid shape")

	assert.Zero(t, p.Applicator().World().Len())
	_, found := p.Applicator().Lookup("x")
	assert.False(t, found)
	assert.Equal(t, assets.Stats{}, store.Stats())
}

func TestDeferredResourceOrdering(t *testing.T) {
	router := &recordingRouter{}
	p, l, store := newPipeline(t, router, nil)
	w := p.Applicator().World()

	var meshAtResponse []bool
	router.onSend = func(r routed) {
		if e, ok := r.resp.(protocol.CommandResponseEntity); ok {
			meshAtResponse = append(meshAtResponse, w.Has(e.Entity, scene.KindMesh3d))
		}
	}

	_, _ = l.Append("c1", protocol.NewSpawn(protocol.Name("a"), cube))
	_, _ = l.Append("c1", protocol.NewSpawn(protocol.Name("b"), cube, red))
	stats := p.Tick()

	assert.Equal(t, []bool{false, false}, meshAtResponse, "responses leave before resources are built")
	assert.Equal(t, 2, stats.Materialize.Meshes)
	assert.Equal(t, assets.Stats{Meshes: 2, Materials: 1}, store.Stats())

	for _, r := range router.responses() {
		ref := r.resp.(protocol.CommandResponseEntity).Entity
		c, ok := w.Get(ref, scene.KindMesh3d)
		require.True(t, ok)
		m, ok := store.Mesh(c.(scene.Mesh).Handle)
		require.True(t, ok)
		assert.Equal(t, protocol.Shape3d(cube.Shape), m.Shape)
	}
}

func TestPipelineRoutesPerOriginAndPublishes(t *testing.T) {
	b := bus.New()
	var mu sync.Mutex
	var applied, rejected []int
	_, err := b.Subscribe(events.CommandApplied, func(e bus.Event) error {
		mu.Lock()
		applied = append(applied, e.Data().(events.CommandAppliedData).Seq)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	_, err = b.Subscribe(events.CommandRejected, func(e bus.Event) error {
		d := e.Data().(events.CommandRejectedData)
		assert.ErrorIs(t, d.Err, ErrUnknownEntity)
		mu.Lock()
		rejected = append(rejected, d.Seq)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	router := &recordingRouter{dead: map[commandlog.Origin]bool{commandlog.ReplayOrigin: true}}
	core, logs := observer.New(zapcore.DebugLevel)
	l := commandlog.New(b)
	p := NewPipeline(l, New(scene.NewWorld(), log.NewNop()), assets.NewStore(), router, b, log.NewWithCore(core))

	_, _ = l.Append(commandlog.ReplayOrigin, protocol.NewSpawn(protocol.Name("seed")))
	_, _ = l.Append("c1", protocol.Despawn{Entity: protocol.NewEntityRef(7, 1)})
	_, _ = l.Append("c2", protocol.Clear{})
	_, _ = l.Append("c1", protocol.NewSpawn())

	stats := p.Tick()
	assert.Equal(t, 3, stats.Applied)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 3, stats.Delivered)
	assert.Equal(t, 4, p.Cursor().Index)

	got := router.responses()
	require.Len(t, got, 3)
	assert.Equal(t, commandlog.Origin("c1"), got[0].origin)
	assert.IsType(t, protocol.ErrorResponse{}, got[0].resp)
	assert.Equal(t, commandlog.Origin("c1"), got[1].origin)
	assert.IsType(t, protocol.CommandResponseEntity{}, got[1].resp)
	assert.Equal(t, routed{origin: "c2", resp: protocol.Ack{}}, got[2])

	assert.Equal(t, []int{0, 2, 3}, applied)
	assert.Equal(t, []int{1}, rejected)
	assert.Equal(t, 1, logs.FilterMessage("dropping response for unreachable origin").Len())
	assert.Equal(t, 1, logs.FilterMessage("failed to apply command").Len())

	// nothing new
	assert.Equal(t, TickStats{}, p.Tick())
}

func TestPipelineRunStopsOnCancel(t *testing.T) {
	router := &recordingRouter{}
	p, l, _ := newPipeline(t, router, nil)
	_, _ = l.Append("c1", protocol.NewSpawn())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, time.Millisecond) }()

	require.Eventually(t, func() bool { return len(router.responses()) == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
