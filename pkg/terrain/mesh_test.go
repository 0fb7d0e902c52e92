package terrain

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/opd-ai/go-perlin/pkg/geom"
	"github.com/opd-ai/go-perlin/pkg/noise"
)

func flatHeightfield(rows, cols int) noise.Heightfield {
	return noise.NewHeightfield(rows, cols)
}

func TestBuild_VertexCount(t *testing.T) {
	tests := []struct {
		name string
		rows int
		cols int
	}{
		{"single_sample", 1, 1},
		{"single_quad", 2, 2},
		{"square", 8, 8},
		{"wide", 3, 5},
		{"tall", 6, 2},
		{"single_row", 1, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mesh, err := Build(flatHeightfield(tt.rows, tt.cols), 1)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			expected := 6 * (tt.cols - 1) * (tt.rows - 1)
			if mesh.VertexCount() != expected {
				t.Errorf("VertexCount() = %d, expected %d", mesh.VertexCount(), expected)
			}
			if len(mesh.Normals) != len(mesh.Positions) {
				t.Errorf("normals has %d floats, positions has %d", len(mesh.Normals), len(mesh.Positions))
			}
			if mesh.TriangleCount()*3 != mesh.VertexCount() {
				t.Errorf("TriangleCount() = %d for %d vertices", mesh.TriangleCount(), mesh.VertexCount())
			}
		})
	}
}

func TestBuild_FlatHeightfield(t *testing.T) {
	for _, scale := range []float64{0, 1, 180, -3.5} {
		mesh, err := Build(flatHeightfield(5, 5), scale)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		for i := 1; i < len(mesh.Positions); i += 3 {
			if mesh.Positions[i] != 0 {
				t.Fatalf("scale %v: vertex %d has y = %v, expected 0", scale, i/3, mesh.Positions[i])
			}
		}
		for i := 0; i < len(mesh.Normals); i += 3 {
			nx, ny, nz := mesh.Normals[i], mesh.Normals[i+1], mesh.Normals[i+2]
			if nx != 0 || nz != 0 || ny <= 0 {
				t.Fatalf("scale %v: normal %d = (%v, %v, %v), expected (0, +k, 0)", scale, i/3, nx, ny, nz)
			}
		}
	}
}

func TestBuild_TriangleLayout(t *testing.T) {
	h := noise.Heightfield{
		{0.5, 0.25},
		{0.75, 1},
	}
	mesh, err := Build(h, 10)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	c00 := []float32{-1, 5, 0}
	c01 := []float32{0, 2.5, 0}
	c11 := []float32{0, 10, -1}
	c10 := []float32{-1, 7.5, -1}
	var expected []float32
	for _, c := range [][]float32{c00, c01, c11, c00, c11, c10} {
		expected = append(expected, c...)
	}

	if len(mesh.Positions) != len(expected) {
		t.Fatalf("Positions has %d floats, expected %d", len(mesh.Positions), len(expected))
	}
	for i := range expected {
		if mesh.Positions[i] != expected[i] {
			t.Errorf("Positions[%d] = %v, expected %v", i, mesh.Positions[i], expected[i])
		}
	}
}

func TestBuild_FlatShadingPerFace(t *testing.T) {
	// Plane rising along x: both faces share the normal (-1, 1, 0).
	h := noise.Heightfield{
		{0, 1},
		{0, 1},
	}
	mesh, err := Build(h, 1)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	for tri := 0; tri < mesh.TriangleCount(); tri++ {
		face, err := mesh.Triangle(tri)
		if err != nil {
			t.Fatalf("Triangle(%d) error = %v", tri, err)
		}
		if face.Normal != (geom.Vector3D{X: -1, Y: 1, Z: 0}) {
			t.Errorf("triangle %d normal = %v, expected (-1, 1, 0)", tri, face.Normal)
		}
		for v := 0; v < 3; v++ {
			base := (tri*3 + v) * 3
			n := geom.Vector3D{
				X: float64(mesh.Normals[base]),
				Y: float64(mesh.Normals[base+1]),
				Z: float64(mesh.Normals[base+2]),
			}
			if n != face.Normal {
				t.Errorf("triangle %d vertex %d normal = %v, expected face normal %v", tri, v, n, face.Normal)
			}
		}
	}
}

func TestBuild_FacesAreNotAveraged(t *testing.T) {
	// A ridge along the diagonal: the two triangles of the quad tilt differently.
	h := noise.Heightfield{
		{0, 0},
		{1, 0},
	}
	mesh, err := Build(h, 1)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	a, _ := mesh.Triangle(0)
	b, _ := mesh.Triangle(1)
	if a.Normal == b.Normal {
		t.Errorf("expected distinct face normals, both are %v", a.Normal)
	}
	if a.Normal != (geom.Vector3D{Y: 1}) {
		t.Errorf("flat triangle normal = %v, expected (0, 1, 0)", a.Normal)
	}
}

func TestBuildWithOptions_UnitNormals(t *testing.T) {
	h, err := noise.Generate(context.Background(), 4, 16, noise.NewSource(3))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	mesh, err := BuildWithOptions(h, Options{HeightScale: 180, UnitNormals: true})
	if err != nil {
		t.Fatalf("BuildWithOptions() error = %v", err)
	}
	for i := 0; i < len(mesh.Normals); i += 3 {
		n := geom.Vector3D{X: float64(mesh.Normals[i]), Y: float64(mesh.Normals[i+1]), Z: float64(mesh.Normals[i+2])}
		if math.Abs(n.Length()-1) > 1e-5 {
			t.Fatalf("normal %d length = %v, expected 1", i/3, n.Length())
		}
		if n.Y <= 0 {
			t.Fatalf("normal %d = %v points down", i/3, n)
		}
	}
}

func TestBuild_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		h    noise.Heightfield
	}{
		{"nil", nil},
		{"empty_rows", noise.Heightfield{{}, {}}},
		{"ragged", noise.Heightfield{{0, 0, 0}, {0, 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mesh, err := Build(tt.h, 1)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Build() error = %v, expected ErrInvalidInput", err)
			}
			if mesh != nil {
				t.Error("Build() returned a mesh alongside an error")
			}
		})
	}
}

func TestMesh_TriangleOutOfRange(t *testing.T) {
	mesh, _ := Build(flatHeightfield(2, 2), 1)
	for _, i := range []int{-1, 2} {
		if _, err := mesh.Triangle(i); !errors.Is(err, noise.ErrIndexOutOfRange) {
			t.Errorf("Triangle(%d) error = %v, expected ErrIndexOutOfRange", i, err)
		}
	}
}

func TestMesh_Bounds(t *testing.T) {
	h := noise.Heightfield{
		{0, 0.5, 0},
		{0, 1, 0},
		{0, 0, 0},
	}
	mesh, _ := Build(h, 2)
	lo, hi := mesh.Bounds()
	if lo != (geom.Vector3D{X: -1.5, Y: 0, Z: -2}) {
		t.Errorf("Bounds() lo = %v", lo)
	}
	if hi != (geom.Vector3D{X: 0.5, Y: 2, Z: 0}) {
		t.Errorf("Bounds() hi = %v", hi)
	}
}

func TestMesh_WriteOBJ(t *testing.T) {
	mesh, _ := Build(noise.Heightfield{{0, 0}, {0, 0}}, 1)

	var sb strings.Builder
	if err := mesh.WriteOBJ(&sb); err != nil {
		t.Fatalf("WriteOBJ() error = %v", err)
	}
	out := sb.String()

	if got := strings.Count(out, "\nv "); got != 6 {
		t.Errorf("OBJ has %d vertex lines, expected 6", got)
	}
	if got := strings.Count(out, "\nvn "); got != 6 {
		t.Errorf("OBJ has %d normal lines, expected 6", got)
	}
	if !strings.Contains(out, "f 1//1 2//2 3//3\n") || !strings.Contains(out, "f 4//4 5//5 6//6\n") {
		t.Errorf("OBJ faces missing:\n%s", out)
	}
}

func BenchmarkBuild(b *testing.B) {
	h, err := noise.Generate(context.Background(), 20, 200, noise.NewSource(1))
	if err != nil {
		b.Fatal(err)
	}

	for i := 0; i < b.N; i++ {
		if _, err := Build(h, 180); err != nil {
			b.Fatal(err)
		}
	}
}
