package noise

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/go-perlin/pkg/geom"
)

// Sampler evaluates gradient noise over the cells of a GradientField.
type Sampler struct {
	field     *GradientField
	cellWidth int
	workers   int
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithWorkers bounds the number of cells evaluated concurrently.
// Values below 1 fall back to a single worker.
func WithWorkers(n int) SamplerOption {
	return func(s *Sampler) {
		if n < 1 {
			n = 1
		}
		s.workers = n
	}
}

// NewSampler creates a sampler producing cellWidth x cellWidth samples per
// lattice cell.
func NewSampler(field *GradientField, cellWidth int, opts ...SamplerOption) (*Sampler, error) {
	if field == nil {
		return nil, fmt.Errorf("gradient field is nil: %w", ErrInvalidConfiguration)
	}
	if cellWidth < 1 {
		return nil, fmt.Errorf("cell width %d must be at least 1: %w", cellWidth, ErrInvalidConfiguration)
	}

	s := &Sampler{
		field:     field,
		cellWidth: cellWidth,
		workers:   runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CellWidth derives the number of samples per cell from a domain width,
// floor(domainWidth / gridSize).
func CellWidth(domainWidth, gridSize int) (int, error) {
	if gridSize < 1 {
		return 0, fmt.Errorf("grid size %d must be at least 1: %w", gridSize, ErrInvalidConfiguration)
	}
	cw := domainWidth / gridSize
	if cw < 1 {
		return 0, fmt.Errorf("domain width %d too small for grid size %d: %w", domainWidth, gridSize, ErrInvalidConfiguration)
	}
	return cw, nil
}

// CellWidth returns the number of samples per cell side.
func (s *Sampler) CellWidth() int {
	return s.cellWidth
}

// Size returns the side length of the heightfield SampleField produces.
func (s *Sampler) Size() int {
	return s.field.GridSize() * s.cellWidth
}

// SampleCell returns the raw noise values of cell (gridX, gridY), row-major,
// cellWidth*cellWidth entries in roughly [-1, 1].
func (s *Sampler) SampleCell(gridX, gridY int) ([]float64, error) {
	out := make([]float64, s.cellWidth*s.cellWidth)
	if err := s.sampleCellInto(gridX, gridY, func(cy, cx int, v float64) {
		out[cy*s.cellWidth+cx] = v
	}); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Sampler) sampleCellInto(gridX, gridY int, store func(cy, cx int, v float64)) error {
	g, err := s.field.corners(gridX, gridY)
	if err != nil {
		return err
	}

	width := float64(s.cellWidth)
	for cy := 0; cy < s.cellWidth; cy++ {
		relY := float64(cy) / width
		sy := Smoothstep(relY)
		for cx := 0; cx < s.cellWidth; cx++ {
			relX := float64(cx) / width

			// offsets from each corner to the sample point
			topLeft := geom.Vector2D{X: relX, Y: relY}
			topRight := geom.Vector2D{X: relX - 1, Y: relY}
			bottomRight := geom.Vector2D{X: relX - 1, Y: relY - 1}
			bottomLeft := geom.Vector2D{X: relX, Y: relY - 1}

			d1 := topLeft.Dot(g[0])
			d2 := topRight.Dot(g[1])
			d3 := bottomRight.Dot(g[2])
			d4 := bottomLeft.Dot(g[3])

			sx := Smoothstep(relX)
			top := Lerp(d1, d2, sx)
			bottom := Lerp(d4, d3, sx)
			store(cy, cx, Lerp(top, bottom, sy))
		}
	}
	return nil
}

// SampleRaw evaluates every cell and assembles the raw values into one
// heightfield. Cells are independent and run concurrently; the result does
// not depend on scheduling.
func (s *Sampler) SampleRaw(ctx context.Context) (Heightfield, error) {
	size := s.Size()
	h := NewHeightfield(size, size)
	gridSize := s.field.GridSize()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for gridY := 0; gridY < gridSize; gridY++ {
		for gridX := 0; gridX < gridSize; gridX++ {
			gridX, gridY := gridX, gridY
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				offY, offX := gridY*s.cellWidth, gridX*s.cellWidth
				return s.sampleCellInto(gridX, gridY, func(cy, cx int, v float64) {
					h[offY+cy][offX+cx] = v
				})
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sampling heightfield: %w", err)
	}
	return h, nil
}

// SampleField returns the full heightfield with values remapped to [0, 1].
func (s *Sampler) SampleField(ctx context.Context) (Heightfield, error) {
	h, err := s.SampleRaw(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range h {
		for x, v := range row {
			row[x] = Remap(v)
		}
	}
	return h, nil
}

// Generate builds a fresh gradient field and samples it over a square domain
// of domainWidth samples, returning values in [0, 1].
func Generate(ctx context.Context, gridSize, domainWidth int, rng RandomSource) (Heightfield, error) {
	cellWidth, err := CellWidth(domainWidth, gridSize)
	if err != nil {
		return nil, err
	}
	field, err := NewGradientField(gridSize, rng)
	if err != nil {
		return nil, err
	}
	sampler, err := NewSampler(field, cellWidth)
	if err != nil {
		return nil, err
	}
	return sampler.SampleField(ctx)
}
