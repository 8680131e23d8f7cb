package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/dimensify/dimensify/internal/config"
	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/injector"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, logLevel, listenAddr, quicAddr string

	flagSet := pflag.NewFlagSet("dimensify-server", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")
	flagSet.StringVar(&listenAddr, "listen", "", "websocket listen address; overrides config")
	flagSet.StringVar(&quicAddr, "quic", "", "QUIC listen address; overrides config")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		if _, err := log.ParseLevel(logLevel); err != nil {
			return err
		}
		cfg.Log.Level = logLevel
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}
	if quicAddr != "" {
		cfg.Server.QUICAddr = quicAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := injector.InitializeApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	app.Logger.Info("starting dimensify",
		log.String("data_source", string(app.Data.Source.Kind)),
		log.Int("commands", app.Log.Len()),
		log.Int("telemetry_events", app.Telemetry.Len()),
	)
	return app.Server.Run(ctx)
}
