// Package noise generates 2D gradient noise from a lattice of random unit
// vectors and assembles the samples into heightfields.
package noise

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/opd-ai/go-perlin/pkg/geom"
)

// RandomSource yields uniform floats in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// NewSource returns a deterministic source for the given seed.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// GradientField holds one gradient vector per lattice node. A field with
// gridSize cells per side has gridSize+1 nodes per side. It is never
// modified after construction, so any number of samplers may read it.
type GradientField struct {
	gridSize int
	nodes    [][]geom.Vector2D
}

// NewGradientField draws an independent uniform angle in [0, 2π) for every
// node and stores the matching unit vector.
func NewGradientField(gridSize int, rng RandomSource) (*GradientField, error) {
	if gridSize < 1 {
		return nil, fmt.Errorf("grid size %d must be at least 1: %w", gridSize, ErrInvalidConfiguration)
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is nil: %w", ErrInvalidConfiguration)
	}

	side := gridSize + 1
	nodes := make([][]geom.Vector2D, side)
	for row := range nodes {
		nodes[row] = make([]geom.Vector2D, side)
		for col := range nodes[row] {
			nodes[row][col] = geom.UnitFromAngle(rng.Float64() * 2 * math.Pi)
		}
	}

	return &GradientField{gridSize: gridSize, nodes: nodes}, nil
}

// GradientFieldFromVectors builds a field from explicit node vectors. The
// vectors are copied as given and not normalized, so zero vectors survive.
func GradientFieldFromVectors(nodes [][]geom.Vector2D) (*GradientField, error) {
	side := len(nodes)
	if side < 2 {
		return nil, fmt.Errorf("need at least 2x2 nodes, got %d rows: %w", side, ErrInvalidInput)
	}

	copied := make([][]geom.Vector2D, side)
	for row, src := range nodes {
		if len(src) != side {
			return nil, fmt.Errorf("row %d has %d nodes, expected %d: %w", row, len(src), side, ErrInvalidInput)
		}
		copied[row] = append([]geom.Vector2D(nil), src...)
	}

	return &GradientField{gridSize: side - 1, nodes: copied}, nil
}

// GridSize returns the number of cells per side.
func (f *GradientField) GridSize() int {
	return f.gridSize
}

// NodeCount returns the total number of lattice nodes.
func (f *GradientField) NodeCount() int {
	side := f.gridSize + 1
	return side * side
}

// Lookup returns the gradient at the given node.
func (f *GradientField) Lookup(row, col int) (geom.Vector2D, error) {
	if row < 0 || row > f.gridSize || col < 0 || col > f.gridSize {
		return geom.Vector2D{}, fmt.Errorf("node (%d, %d) outside [0, %d]: %w", row, col, f.gridSize, ErrIndexOutOfRange)
	}
	return f.nodes[row][col], nil
}

// corners returns the gradients at the four corners of cell (gridX, gridY)
// in the order top-left, top-right, bottom-right, bottom-left.
func (f *GradientField) corners(gridX, gridY int) ([4]geom.Vector2D, error) {
	var out [4]geom.Vector2D
	if gridX < 0 || gridX >= f.gridSize || gridY < 0 || gridY >= f.gridSize {
		return out, fmt.Errorf("cell (%d, %d) outside [0, %d): %w", gridX, gridY, f.gridSize, ErrIndexOutOfRange)
	}
	out[0] = f.nodes[gridY][gridX]
	out[1] = f.nodes[gridY][gridX+1]
	out[2] = f.nodes[gridY+1][gridX+1]
	out[3] = f.nodes[gridY+1][gridX]
	return out, nil
}

// Rotate returns a new field with every gradient rotated by phi radians.
// The receiver is left unchanged.
func (f *GradientField) Rotate(phi float64) *GradientField {
	nodes := make([][]geom.Vector2D, len(f.nodes))
	for row, src := range f.nodes {
		nodes[row] = make([]geom.Vector2D, len(src))
		for col, v := range src {
			nodes[row][col] = v.Rotate(phi)
		}
	}
	return &GradientField{gridSize: f.gridSize, nodes: nodes}
}
