// cmd/perlin generates a terrain heightfield and mesh and writes them to
// disk as PNG, TIFF, OBJ and JSON.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogpu/gg"

	"github.com/opd-ai/go-perlin/pkg/config"
	"github.com/opd-ai/go-perlin/pkg/event"
	"github.com/opd-ai/go-perlin/pkg/export"
	"github.com/opd-ai/go-perlin/pkg/logging"
	"github.com/opd-ai/go-perlin/pkg/pipeline"
)

func main() {
	logger := logging.NewLogger()
	gg.SetLogger(logger.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := flag.String("config", "", "Path to configuration file")
	createDefault := flag.Bool("default", false, "Write the default configuration to -config and exit")
	seed := flag.Uint64("seed", 0, "Random seed")
	grid := flag.Int("grid", 0, "Lattice cells per side")
	width := flag.Int("width", 0, "Domain width in samples")
	scale := flag.Float64("scale", 0, "Mesh height scale")
	rotate := flag.Float64("rotate", 0, "Rotate every gradient by this many radians")
	outDir := flag.String("out", "", "Output directory")
	ascii := flag.Bool("ascii", false, "Print an ASCII preview to stdout")
	tiffOut := flag.Bool("tiff", false, "Also write a 16-bit TIFF heightmap")
	jsonOut := flag.Bool("json", false, "Also write the heightfield and mesh as JSON")
	flag.Parse()

	if *createDefault {
		if *configPath == "" {
			*configPath = "perlin.json"
		}
		if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
			logger.Error(ctx, "Failed to create default configuration", err, "config_path", *configPath)
			os.Exit(1)
		}
		logger.Info(ctx, "Created default configuration file", "config_path", *configPath)
		return
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			logger.Error(ctx, "Failed to load configuration", err, "config_path", *configPath)
			os.Exit(1)
		}
		cfg = loaded
	}

	if err := config.ApplyEnvironmentOverrides(cfg); err != nil {
		logger.Error(ctx, "Failed to apply environment configuration", err)
		os.Exit(1)
	}

	// Flags win over file and environment, but only when given.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			cfg.Generator.Seed = *seed
		case "grid":
			cfg.Generator.GridSize = *grid
		case "width":
			cfg.Generator.DomainWidth = *width
		case "scale":
			cfg.Generator.HeightScale = *scale
		case "rotate":
			cfg.Generator.Rotation = *rotate
		case "out":
			cfg.Output.Dir = *outDir
		case "ascii":
			cfg.Output.ASCII = *ascii
		case "tiff":
			cfg.Output.TIFF = *tiffOut
		case "json":
			cfg.Output.JSON = *jsonOut
		}
	})

	if err := cfg.Validate(); err != nil {
		logger.Error(ctx, "Invalid configuration", err)
		os.Exit(1)
	}

	bus := event.NewEventBus()
	bus.Subscribe(event.ArtifactWritten, func(e event.Event) {
		a := e.(*event.ArtifactEvent)
		logger.Debug(ctx, "Artifact event", "run_id", a.RunID, "path", a.Path, "bytes", a.Bytes)
	})

	runID := logging.GenerateCorrelationID()
	ctx = logging.WithCorrelationID(ctx, runID)

	gen, err := pipeline.New(cfg.Generator, pipeline.WithLogger(logger), pipeline.WithEventBus(bus))
	if err != nil {
		logger.Error(ctx, "Failed to create generator", err)
		os.Exit(1)
	}
	res, err := gen.Run(ctx)
	if err != nil {
		os.Exit(1)
	}

	svc := export.NewService(cfg.Export,
		export.WithLogger(logger),
		export.WithEventBus(bus),
		export.WithRunID(runID),
	)
	if err := writeArtifacts(ctx, svc, cfg.Generator, cfg.Output, res, os.Stdout); err != nil {
		logger.Error(ctx, "Failed to write artifacts", err, "dir", cfg.Output.Dir)
		os.Exit(1)
	}
}
