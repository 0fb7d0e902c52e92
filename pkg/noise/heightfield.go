package noise

import (
	"fmt"
	"math"
)

// Heightfield is a dense row-major grid of samples: h[y][x].
type Heightfield [][]float64

// NewHeightfield allocates a zeroed rows x cols heightfield.
func NewHeightfield(rows, cols int) Heightfield {
	h := make(Heightfield, rows)
	backing := make([]float64, rows*cols)
	for y := range h {
		h[y] = backing[y*cols : (y+1)*cols : (y+1)*cols]
	}
	return h
}

// Rows returns the number of rows.
func (h Heightfield) Rows() int {
	return len(h)
}

// Cols returns the length of the first row, or 0 for an empty heightfield.
func (h Heightfield) Cols() int {
	if len(h) == 0 {
		return 0
	}
	return len(h[0])
}

// Validate reports ErrInvalidInput for an empty or ragged heightfield.
func (h Heightfield) Validate() error {
	if len(h) == 0 || len(h[0]) == 0 {
		return fmt.Errorf("heightfield is empty: %w", ErrInvalidInput)
	}
	cols := len(h[0])
	for y, row := range h {
		if len(row) != cols {
			return fmt.Errorf("row %d has %d samples, expected %d: %w", y, len(row), cols, ErrInvalidInput)
		}
	}
	return nil
}

// At returns the sample at row y, column x.
func (h Heightfield) At(y, x int) float64 {
	return h[y][x]
}

// Bounds returns the smallest and largest sample. An empty heightfield
// yields (0, 0).
func (h Heightfield) Bounds() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range h {
		for _, v := range row {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 0
	}
	return lo, hi
}

// Clone returns a deep copy.
func (h Heightfield) Clone() Heightfield {
	out := make(Heightfield, len(h))
	for y, row := range h {
		out[y] = append([]float64(nil), row...)
	}
	return out
}

// Map returns a new heightfield with fn applied to every sample.
func (h Heightfield) Map(fn func(float64) float64) Heightfield {
	out := NewHeightfield(h.Rows(), h.Cols())
	for y, row := range h {
		for x, v := range row {
			out[y][x] = fn(v)
		}
	}
	return out
}
