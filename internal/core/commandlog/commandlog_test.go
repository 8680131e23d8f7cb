package commandlog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dimensify/dimensify/internal/core/events"
	"github.com/dimensify/dimensify/internal/core/events/bus"
	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
)

func TestCursorMonotonicity(t *testing.T) {
	l := New(nil)
	var c Cursor

	assert.Empty(t, l.DrainNew(&c))
	assert.Equal(t, 0, c.Index)

	for i := 0; i < 3; i++ {
		_, err := l.Append("a", protocol.Despawn{Entity: protocol.EntityRef(i)})
		require.NoError(t, err)
	}
	first := l.DrainNew(&c)
	require.Len(t, first, 3)
	assert.Equal(t, 3, c.Index)
	for i, e := range first {
		assert.Equal(t, i, e.Seq)
		assert.Equal(t, protocol.Despawn{Entity: protocol.EntityRef(i)}, e.Command)
	}

	assert.Empty(t, l.DrainNew(&c))
	assert.Equal(t, 3, c.Index)

	_, _ = l.Append("b", protocol.Clear{})
	second := l.DrainNew(&c)
	require.Len(t, second, 1)
	assert.Equal(t, Origin("b"), second[0].Origin)
	assert.Equal(t, 4, c.Index)

	// a second cursor is independent and sees everything
	var other Cursor
	assert.Len(t, l.DrainNew(&other), 4)
	assert.Equal(t, 4, l.Len())

	// returned slices are copies
	first[0].Origin = "mutated"
	assert.Equal(t, Origin("a"), l.Entries()[0].Origin)
}

func TestConcurrentAppendsPublishInOrder(t *testing.T) {
	b := bus.New()
	var mu sync.Mutex
	var seqs []int
	_, err := b.Subscribe(events.CommandAppended, func(e bus.Event) error {
		mu.Lock()
		seqs = append(seqs, e.Data().(events.CommandAppendedData).Seq)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	l := New(b)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = l.Append("p", protocol.Clear{})
			}
		}()
	}

	var c Cursor
	drained := 0
	for drained < 200 {
		drained += len(l.DrainNew(&c))
	}
	wg.Wait()

	require.Len(t, seqs, 200)
	for i, s := range seqs {
		assert.Equal(t, i, s)
	}
}

func TestRestoreDoesNotPublish(t *testing.T) {
	b := bus.New()
	published := 0
	_, _ = b.Subscribe(events.CommandAppended, func(bus.Event) error { published++; return nil })

	l := New(b)
	require.NoError(t, l.RestoreAt(0, ReplayOrigin, protocol.Clear{}))
	require.NoError(t, l.RestoreAt(1, ReplayOrigin, protocol.Despawn{Entity: 1}))
	assert.Equal(t, 2, l.Len())
	assert.Zero(t, published)
}

func TestRestoreAtKeepsStoredSequence(t *testing.T) {
	b := bus.New()
	var published []int
	_, _ = b.Subscribe(events.CommandAppended, func(e bus.Event) error {
		published = append(published, e.Data().(events.CommandAppendedData).Seq)
		return nil
	})

	l := New(b)
	require.NoError(t, l.RestoreAt(0, "c1/1", protocol.Clear{}))
	require.NoError(t, l.RestoreAt(2, "c1/3", protocol.Clear{}))
	assert.ErrorIs(t, l.RestoreAt(2, "c1/4", protocol.Clear{}), ErrSeqOrder)
	assert.Equal(t, 3, l.NextSeq())

	l.SkipTo(5)
	l.SkipTo(4)
	seq, err := l.Append("c2/1", protocol.Clear{})
	require.NoError(t, err)
	assert.Equal(t, 5, seq)
	assert.Equal(t, []int{5}, published)

	var c Cursor
	entries := l.DrainNew(&c)
	require.Len(t, entries, 3)
	assert.Equal(t, []int{0, 2, 5}, []int{entries[0].Seq, entries[1].Seq, entries[2].Seq})
	assert.Equal(t, 3, c.Index)
}

func observedLogger() (log.Log, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return log.NewWithCore(core), logs
}

func TestReplayTolerance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	content := strings.Join([]string{
		`{"Spawn":{"components":[{"Name":"a"}]}}`,
		``,
		`{"Spawn":{"components":[{"Nme":"b"}]}}`,
		`"Clear"`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	logger, logs := observedLogger()
	l := New(nil)
	stats, err := LoadReplay(context.Background(), path, l, logger)
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Lines: 4, Loaded: 2, Skipped: 1}, stats)

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, protocol.NewSpawn(protocol.Name("a")), entries[0].Command)
	assert.Equal(t, protocol.Clear{}, entries[1].Command)
	assert.Equal(t, ReplayOrigin, entries[0].Origin)

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, int64(3), warnings[0].ContextMap()["line"])
}

func TestReplaySkipsOversizedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	oversized := `{"Spawn":{"components":[{"Name":"` + strings.Repeat("x", 9<<20) + `"}]}}`
	content := strings.Join([]string{`"Clear"`, oversized, `"Clear"`, `"Clear"`}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	logger, logs := observedLogger()
	l := New(nil)
	stats, err := LoadReplay(context.Background(), path, l, logger)
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Lines: 4, Loaded: 3, Skipped: 1}, stats)
	assert.Equal(t, 3, l.Len())

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "failed to parse replay command", warnings[0].Message)
	assert.Equal(t, int64(2), warnings[0].ContextMap()["line"])
}

func TestReplayMissingFile(t *testing.T) {
	logger, logs := observedLogger()
	l := New(nil)
	stats, err := LoadReplay(context.Background(), filepath.Join(t.TempDir(), "nope.jsonl"), l, logger)
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{}, stats)
	assert.Zero(t, l.Len())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestReplayCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("\"Clear\"\n\"Clear\"\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LoadReplay(ctx, path, New(nil), log.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplayZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl.zst")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte("{\"Despawn\":{\"entity\":4294967296}}\n\"Clear\"\n"))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	l := New(nil)
	stats, err := LoadReplay(context.Background(), path, l, log.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Loaded)
	assert.Equal(t, protocol.Despawn{Entity: protocol.NewEntityRef(0, 1)}, l.Entries()[0].Command)
}

func TestRecorderRoundTrip(t *testing.T) {
	for _, name := range []string{"rec.jsonl", "rec.jsonl.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", name)
			b := bus.New()
			rec, err := NewRecorder(path, b)
			require.NoError(t, err)

			l := New(b)
			cmds := []protocol.WorldCommand{
				protocol.NewSpawn(protocol.Name("cube"), protocol.Mesh3d{Shape: protocol.Cuboid{HalfSize: protocol.Vec3{X: 1, Y: 1, Z: 1}}}),
				protocol.Update{Entity: protocol.NewEntityRef(0, 1), Component: protocol.IdentityTransform()},
				protocol.Clear{},
			}
			for _, cmd := range cmds {
				_, err := l.Append("session-1", cmd)
				require.NoError(t, err)
			}
			_, err = l.Append(ReplayOrigin, protocol.Clear{})
			require.NoError(t, err)
			assert.Equal(t, 3, rec.Count())
			require.NoError(t, rec.Close())
			require.NoError(t, rec.Close())

			// closed recorders are unsubscribed
			_, err = l.Append("session-1", protocol.Clear{})
			require.NoError(t, err)

			replayed := New(nil)
			stats, err := LoadReplay(context.Background(), path, replayed, log.NewNop())
			require.NoError(t, err)
			assert.Equal(t, 3, stats.Loaded)
			for i, e := range replayed.Entries() {
				assert.Equal(t, cmds[i], e.Command)
			}
		})
	}
}
