// Package terrain turns heightfields into flat-shaded triangle meshes.
package terrain

import (
	"fmt"

	"github.com/opd-ai/go-perlin/pkg/geom"
	"github.com/opd-ai/go-perlin/pkg/noise"
)

// ErrInvalidInput is returned for empty or ragged heightfields.
var ErrInvalidInput = noise.ErrInvalidInput

// Mesh is a non-indexed triangle list. Positions and Normals hold three
// floats per vertex and three vertices per triangle.
type Mesh struct {
	Positions []float32 `json:"positions"`
	Normals   []float32 `json:"normals"`
}

// Triangle is one face of a Mesh.
type Triangle struct {
	Vertices [3]geom.Vector3D
	Normal   geom.Vector3D
}

// Options controls mesh construction.
type Options struct {
	// HeightScale multiplies every sample to get the vertex height.
	HeightScale float64
	// UnitNormals scales each face normal to length 1. When false the raw
	// cross product is stored and the consumer normalizes.
	UnitNormals bool
}

// Build meshes h with raw cross-product normals.
func Build(h noise.Heightfield, heightScale float64) (*Mesh, error) {
	return BuildWithOptions(h, Options{HeightScale: heightScale})
}

// BuildWithOptions emits two triangles for every 2x2 block of samples,
// always split along the top-left to bottom-right diagonal. Each triangle
// carries a single face normal on all three of its vertices.
func BuildWithOptions(h noise.Heightfield, opts Options) (*Mesh, error) {
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("building mesh: %w", err)
	}

	rows, cols := h.Rows(), h.Cols()
	quads := 0
	if rows > 1 && cols > 1 {
		quads = (rows - 1) * (cols - 1)
	}
	m := &Mesh{
		Positions: make([]float32, 0, quads*18),
		Normals:   make([]float32, 0, quads*18),
	}

	halfWidth := float64(cols) / 2
	corner := func(y, x int) geom.Vector3D {
		return geom.Vector3D{
			X: float64(x) - halfWidth,
			Y: h[y][x] * opts.HeightScale,
			Z: -float64(y),
		}
	}

	for y := 0; y < rows-1; y++ {
		for x := 0; x < cols-1; x++ {
			c00 := corner(y, x)
			c01 := corner(y, x+1)
			c11 := corner(y+1, x+1)
			c10 := corner(y+1, x)

			m.appendTriangle(c00, c01, c11, opts.UnitNormals)
			m.appendTriangle(c00, c11, c10, opts.UnitNormals)
		}
	}

	return m, nil
}

// faceNormal returns (v0-v1) × (v0-v2). For the winding Build uses this
// points up (+Y) on a flat surface.
func faceNormal(v0, v1, v2 geom.Vector3D) geom.Vector3D {
	return v0.Sub(v1).Cross(v0.Sub(v2))
}

func (m *Mesh) appendTriangle(v0, v1, v2 geom.Vector3D, unit bool) {
	n := faceNormal(v0, v1, v2)
	if unit {
		n = n.Normalized()
	}
	for _, v := range [3]geom.Vector3D{v0, v1, v2} {
		m.Positions = append(m.Positions, float32(v.X), float32(v.Y), float32(v.Z))
		m.Normals = append(m.Normals, float32(n.X), float32(n.Y), float32(n.Z))
	}
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Positions) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return m.VertexCount() / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Positions) == 0
}

// Triangle returns face i.
func (m *Mesh) Triangle(i int) (Triangle, error) {
	if i < 0 || i >= m.TriangleCount() {
		return Triangle{}, fmt.Errorf("triangle %d outside [0, %d): %w", i, m.TriangleCount(), noise.ErrIndexOutOfRange)
	}

	var t Triangle
	base := i * 9
	for k := 0; k < 3; k++ {
		p := m.Positions[base+k*3 : base+k*3+3]
		t.Vertices[k] = geom.Vector3D{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
	}
	n := m.Normals[base : base+3]
	t.Normal = geom.Vector3D{X: float64(n[0]), Y: float64(n[1]), Z: float64(n[2])}
	return t, nil
}

// Bounds returns the axis-aligned bounding box of all positions.
func (m *Mesh) Bounds() (lo, hi geom.Vector3D) {
	if m.IsEmpty() {
		return lo, hi
	}
	lo = geom.Vector3D{X: float64(m.Positions[0]), Y: float64(m.Positions[1]), Z: float64(m.Positions[2])}
	hi = lo
	for i := 3; i < len(m.Positions); i += 3 {
		x, y, z := float64(m.Positions[i]), float64(m.Positions[i+1]), float64(m.Positions[i+2])
		lo = geom.Vector3D{X: min(lo.X, x), Y: min(lo.Y, y), Z: min(lo.Z, z)}
		hi = geom.Vector3D{X: max(hi.X, x), Y: max(hi.Y, y), Z: max(hi.Z, z)}
	}
	return lo, hi
}
