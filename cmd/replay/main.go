// replay applies a recorded command file to an empty scene without
// starting a server, then prints the scene digest and entity listing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/dimensify/dimensify/internal/core/applicator"
	"github.com/dimensify/dimensify/internal/core/assets"
	"github.com/dimensify/dimensify/internal/core/commandlog"
	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
	"github.com/dimensify/dimensify/internal/core/scene"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		path     string
		logLevel string
		asJSON   bool
	)
	flagSet := pflag.NewFlagSet("dimensify-replay", pflag.ContinueOnError)
	flagSet.StringVarP(&path, "file", "f", "", "replay file (.jsonl or .jsonl.zst)")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level")
	flagSet.BoolVar(&asJSON, "json", false, "print the listing as a JSON Entities response")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if path == "" && flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	if path == "" {
		return fmt.Errorf("missing --file")
	}

	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger := log.New(level)

	l := commandlog.New(nil)
	stats, err := commandlog.LoadReplay(context.Background(), path, l, logger)
	if err != nil {
		return err
	}

	res := assets.NewStore()
	p := applicator.NewPipeline(l, applicator.New(scene.NewWorld(), logger), res, applicator.RouterFunc(discard), nil, logger)
	tick := p.Tick()

	world := p.Applicator().World()
	fmt.Printf("lines=%d loaded=%d skipped=%d applied=%d rejected=%d meshes=%d materials=%d\n",
		stats.Lines, stats.Loaded, stats.Skipped, tick.Applied, tick.Rejected,
		res.Stats().Meshes, res.Stats().Materials)
	fmt.Printf("entities=%d digest=%016x\n", world.Len(), world.Digest())

	entities := p.Applicator().List()
	if asJSON {
		out, err := json.MarshalIndent(protocol.Entities{Entities: entities}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	for _, e := range entities {
		name := "-"
		if e.Name != nil {
			name = *e.Name
		}
		fmt.Printf("%s\t%s", protocol.EntityRef(e.ID), name)
		for _, c := range e.Components {
			fmt.Printf("\t%s", c.Name)
		}
		fmt.Println()
	}
	return nil
}

func discard(commandlog.Origin, protocol.ProtoResponse) error { return nil }
