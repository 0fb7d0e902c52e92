// Package pipeline runs a complete terrain generation: gradient field,
// heightfield sampling and mesh construction, reporting each stage on an
// event bus.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/go-perlin/pkg/config"
	"github.com/opd-ai/go-perlin/pkg/event"
	"github.com/opd-ai/go-perlin/pkg/logging"
	"github.com/opd-ai/go-perlin/pkg/noise"
	"github.com/opd-ai/go-perlin/pkg/terrain"
)

// Stage names used in events and logs.
const (
	StageField       = "field"
	StageHeightfield = "heightfield"
	StageMesh        = "mesh"
)

// Result is the output of one run.
type Result struct {
	RunID       string
	Field       *noise.GradientField
	CellWidth   int
	Heightfield noise.Heightfield
	// Mesh is nil when the generator is configured with SkipMesh.
	Mesh    *terrain.Mesh
	Elapsed time.Duration
}

// Generator produces terrain from a fixed configuration.
type Generator struct {
	cfg    config.GeneratorConfig
	logger *logging.Logger
	bus    *event.Bus

	// rngMu guards source, which is shared across runs when set.
	rngMu  sync.Mutex
	source noise.RandomSource

	runsMu sync.Mutex
	runs   uint64
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the generator logger.
func WithLogger(logger *logging.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// WithEventBus publishes stage events on bus.
func WithEventBus(bus *event.Bus) Option {
	return func(g *Generator) { g.bus = bus }
}

// WithSource draws gradients from rng instead of a fresh source seeded from
// the configuration on every run. Successive runs then yield different
// fields.
func WithSource(rng noise.RandomSource) Option {
	return func(g *Generator) { g.source = rng }
}

// New validates cfg and creates a Generator.
func New(cfg config.GeneratorConfig, opts ...Option) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", noise.ErrInvalidConfiguration, err)
	}
	g := &Generator{cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logging.NewLogger()
	}
	return g, nil
}

// Config returns the generator configuration.
func (g *Generator) Config() config.GeneratorConfig {
	return g.cfg
}

// Runs reports how many runs completed successfully.
func (g *Generator) Runs() uint64 {
	g.runsMu.Lock()
	defer g.runsMu.Unlock()
	return g.runs
}

// Run generates one terrain. The run ID is taken from the correlation ID in
// ctx when present, otherwise a new one is generated. Run is safe for
// concurrent use.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	runID := logging.GetCorrelationID(ctx)
	if runID == "" {
		runID = logging.GenerateCorrelationID()
		ctx = logging.WithCorrelationID(ctx, runID)
	}
	start := time.Now()

	res, err := g.run(ctx, runID)
	if err != nil {
		g.logger.Error(ctx, "Terrain generation failed", err, "run_id", runID)
		ev := event.NewRunEvent(event.RunFailed, g, runID)
		ev.Err = err
		ev.Elapsed = time.Since(start)
		g.bus.Publish(ev)
		return nil, err
	}

	res.Elapsed = time.Since(start)
	g.runsMu.Lock()
	g.runs++
	g.runsMu.Unlock()

	g.logger.Info(ctx, "Terrain generated",
		"run_id", runID,
		"rows", res.Heightfield.Rows(),
		"cols", res.Heightfield.Cols(),
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func (g *Generator) run(ctx context.Context, runID string) (*Result, error) {
	res := &Result{RunID: runID}

	stageStart := time.Now()
	field, err := g.buildField()
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", StageField, err)
	}
	if g.cfg.Rotation != 0 {
		field = field.Rotate(g.cfg.Rotation)
	}
	res.Field = field
	ev := event.NewRunEvent(event.FieldGenerated, g, runID)
	ev.Stage = StageField
	ev.Elapsed = time.Since(stageStart)
	g.bus.Publish(ev)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stageStart = time.Now()
	cellWidth, err := noise.CellWidth(g.cfg.DomainWidth, g.cfg.GridSize)
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", StageHeightfield, err)
	}
	var samplerOpts []noise.SamplerOption
	if g.cfg.Workers > 0 {
		samplerOpts = append(samplerOpts, noise.WithWorkers(g.cfg.Workers))
	}
	sampler, err := noise.NewSampler(field, cellWidth, samplerOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", StageHeightfield, err)
	}
	h, err := sampler.SampleField(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", StageHeightfield, err)
	}
	res.CellWidth = cellWidth
	res.Heightfield = h
	ev = event.NewRunEvent(event.HeightfieldSampled, g, runID)
	ev.Stage = StageHeightfield
	ev.Rows, ev.Cols = h.Rows(), h.Cols()
	ev.Elapsed = time.Since(stageStart)
	g.bus.Publish(ev)

	if g.cfg.SkipMesh {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stageStart = time.Now()
	mesh, err := terrain.BuildWithOptions(h, terrain.Options{
		HeightScale: g.cfg.HeightScale,
		UnitNormals: g.cfg.UnitNormals,
	})
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", StageMesh, err)
	}
	res.Mesh = mesh
	ev = event.NewRunEvent(event.MeshBuilt, g, runID)
	ev.Stage = StageMesh
	ev.Rows, ev.Cols = h.Rows(), h.Cols()
	ev.Vertices = mesh.VertexCount()
	ev.Elapsed = time.Since(stageStart)
	g.bus.Publish(ev)

	return res, nil
}

func (g *Generator) buildField() (*noise.GradientField, error) {
	if g.source == nil {
		return noise.NewGradientField(g.cfg.GridSize, noise.NewSource(g.cfg.Seed))
	}
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return noise.NewGradientField(g.cfg.GridSize, g.source)
}
