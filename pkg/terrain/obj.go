package terrain

import (
	"bufio"
	"fmt"
	"io"
)

// WriteOBJ encodes the mesh as Wavefront OBJ. Every vertex gets its own
// "v" and "vn" line so the flat normals survive; faces use the v//vn form.
func (m *Mesh) WriteOBJ(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# go-perlin terrain: %d vertices, %d triangles\n", m.VertexCount(), m.TriangleCount())
	for i := 0; i < len(m.Positions); i += 3 {
		fmt.Fprintf(bw, "v %g %g %g\n", m.Positions[i], m.Positions[i+1], m.Positions[i+2])
	}
	for i := 0; i < len(m.Normals); i += 3 {
		fmt.Fprintf(bw, "vn %g %g %g\n", m.Normals[i], m.Normals[i+1], m.Normals[i+2])
	}
	for t := 0; t < m.TriangleCount(); t++ {
		a, b, c := t*3+1, t*3+2, t*3+3
		fmt.Fprintf(bw, "f %d//%d %d//%d %d//%d\n", a, a, b, b, c, c)
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing obj: %w", err)
	}
	return nil
}
