package injector

import (
	"context"
	"fmt"

	"github.com/google/wire"

	"github.com/dimensify/dimensify/internal/config"
	"github.com/dimensify/dimensify/internal/core/applicator"
	"github.com/dimensify/dimensify/internal/core/assets"
	"github.com/dimensify/dimensify/internal/core/commandlog"
	"github.com/dimensify/dimensify/internal/core/events/bus"
	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/scene"
	"github.com/dimensify/dimensify/internal/core/storage/sqlite"
	"github.com/dimensify/dimensify/internal/core/telemetry"
	"github.com/dimensify/dimensify/internal/server"
)

// ProviderSet builds a ready-to-run App from a loaded configuration.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideEventBus,
	ProvideCommandLog,
	ProvideApplicator,
	assets.NewStore,
	wire.Bind(new(applicator.Resources), new(*assets.Store)),
	ProvideTelemetryStore,
	ProvideDataSource,
	ProvideServerConfig,
	ProvideServer,
	wire.Struct(new(App), "*"),
)

// App is the assembled server process.
type App struct {
	Config    config.Config
	Logger    log.Log
	Log       *commandlog.Log
	Telemetry *telemetry.Store
	Data      DataSource
	Server    *server.Server
}

// DataSource reports how the command log was seeded.
type DataSource struct {
	Source   config.Source
	Replay   commandlog.ReplayStats
	Restored int
	// Recording is set when appended commands are written to a replay file.
	Recording string
}

func ProvideLogger(cfg config.Config) log.Log {
	return log.New(cfg.LogLevel())
}

func ProvideEventBus(logger log.Log) bus.EventBus {
	b := bus.New()
	b.AddObserver(bus.NewLogObserver(logger))
	return b
}

func ProvideCommandLog(eventBus bus.EventBus) *commandlog.Log {
	return commandlog.New(eventBus)
}

func ProvideApplicator(logger log.Log) *applicator.Applicator {
	return applicator.New(scene.NewWorld(), logger)
}

// ProvideTelemetryStore creates the ring buffer and preloads the telemetry
// file when one is configured.
func ProvideTelemetryStore(ctx context.Context, cfg config.Config, eventBus bus.EventBus, logger log.Log) (*telemetry.Store, error) {
	capacity := cfg.Telemetry.Capacity
	if capacity <= 0 {
		capacity = telemetry.DefaultCapacity
	}
	store := telemetry.NewStore(capacity, eventBus)

	src := cfg.Telemetry.ResolveSource(logger)
	if src.Kind == config.SourceFile {
		if _, err := telemetry.LoadFile(ctx, src.Path, store, logger); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// ProvideDataSource seeds the command log from the configured source and
// attaches the durable sinks. The cleanup closes them.
func ProvideDataSource(ctx context.Context, cfg config.Config, l *commandlog.Log, eventBus bus.EventBus, logger log.Log) (DataSource, func(), error) {
	ds := DataSource{Source: cfg.Data.ResolveSource(logger)}
	var closers []func() error

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("failed to close data sink", log.Error(err))
			}
		}
	}

	switch ds.Source.Kind {
	case config.SourceFile:
		stats, err := commandlog.LoadReplay(ctx, ds.Source.Path, l, logger)
		if err != nil {
			return DataSource{}, nil, err
		}
		ds.Replay = stats
	case config.SourceDB:
		store, err := sqlite.Open(ds.Source.Path, logger)
		if err != nil {
			return DataSource{}, nil, fmt.Errorf("open command store: %w", err)
		}
		closers = append(closers, store.Close)

		records, err := store.Load(ctx)
		if err != nil {
			cleanup()
			return DataSource{}, nil, fmt.Errorf("load command store: %w", err)
		}
		for _, rec := range records {
			if err := l.RestoreAt(rec.Seq, commandlog.Origin(rec.Origin), rec.Command); err != nil {
				cleanup()
				return DataSource{}, nil, fmt.Errorf("restore command log: %w", err)
			}
			ds.Restored++
		}
		// skipped rows still own their seq
		stats, err := store.Statistics(ctx)
		if err != nil {
			cleanup()
			return DataSource{}, nil, fmt.Errorf("command store statistics: %w", err)
		}
		l.SkipTo(stats.LastSeq + 1)

		sub, err := store.Attach(eventBus)
		if err != nil {
			cleanup()
			return DataSource{}, nil, fmt.Errorf("attach command store: %w", err)
		}
		closers = append(closers, func() error { return eventBus.Unsubscribe(sub) })
		logger.Info("restored command log", log.String("path", ds.Source.Path), log.Int("commands", ds.Restored))
	}

	if cfg.Data.RecordFile != "" {
		rec, err := commandlog.NewRecorder(cfg.Data.RecordFile, eventBus)
		if err != nil {
			cleanup()
			return DataSource{}, nil, err
		}
		closers = append(closers, func() error {
			err := rec.Close()
			logger.Info("recording closed", log.String("path", cfg.Data.RecordFile), log.Int("commands", rec.Count()))
			return err
		})
		ds.Recording = cfg.Data.RecordFile
	}

	return ds, cleanup, nil
}

func ProvideServerConfig(cfg config.Config) (server.Config, error) {
	sc := server.DefaultServerConfig()
	sc.ListenAddr = cfg.Server.ListenAddr
	sc.QUICAddr = cfg.Server.QUICAddr
	sc.TickInterval = cfg.Server.TickInterval
	sc.MaxMessageSize = cfg.Server.MaxMessageSize
	if cfg.Server.WriteTimeout > 0 {
		sc.WriteTimeout = cfg.Server.WriteTimeout
	}
	sc.Playback = cfg.Telemetry.Playback()
	sc.ECSSync = bool(cfg.Telemetry.ECSSync)

	if sc.QUICAddr != "" {
		tlsConf, err := server.GenerateSelfSignedTLS()
		if err != nil {
			return server.Config{}, fmt.Errorf("generate tls config: %w", err)
		}
		sc.TLSConfig = tlsConf
	}
	return sc, nil
}

// ProvideServer takes the DataSource so the log is seeded before the
// server starts applying it.
func ProvideServer(sc server.Config, l *commandlog.Log, app *applicator.Applicator, res applicator.Resources, tel *telemetry.Store, eventBus bus.EventBus, logger log.Log, _ DataSource) *server.Server {
	return server.NewServer(sc, l, app, res, tel, eventBus, logger)
}
