package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/opd-ai/go-perlin/pkg/config"
	"github.com/opd-ai/go-perlin/pkg/export"
	"github.com/opd-ai/go-perlin/pkg/noise"
	"github.com/opd-ai/go-perlin/pkg/pipeline"
	"github.com/opd-ai/go-perlin/pkg/render"
	"github.com/opd-ai/go-perlin/pkg/terrain"
)

// Artifact file names inside the output directory.
const (
	pngName  = "heightmap.png"
	tiffName = "heightmap.tiff"
	objName  = "terrain.obj"
	jsonName = "terrain.json"
)

// terrainDocument is the JSON artifact.
type terrainDocument struct {
	RunID       string            `json:"runId"`
	Seed        uint64            `json:"seed"`
	GridSize    int               `json:"gridSize"`
	CellWidth   int               `json:"cellWidth"`
	Rows        int               `json:"rows"`
	Cols        int               `json:"cols"`
	HeightScale float64           `json:"heightScale"`
	Heightfield noise.Heightfield `json:"heightfield"`
	Mesh        *terrain.Mesh     `json:"mesh,omitempty"`
}

// writeArtifacts writes every artifact enabled in out and, when requested,
// prints the ASCII preview to stdout.
func writeArtifacts(ctx context.Context, svc *export.Service, gen config.GeneratorConfig, out config.OutputConfig, res *pipeline.Result, stdout io.Writer) error {
	h := res.Heightfield

	if out.PNG {
		err := svc.WriteFile(ctx, filepath.Join(out.Dir, pngName), "png", func(w io.Writer) error {
			return render.NewImageSink(w).Consume(ctx, h)
		})
		if err != nil {
			return err
		}
	}

	if out.TIFF {
		err := svc.WriteFile(ctx, filepath.Join(out.Dir, tiffName), "tiff", func(w io.Writer) error {
			return render.NewTIFFSink(w).Consume(ctx, h)
		})
		if err != nil {
			return err
		}
	}

	if out.OBJ {
		if res.Mesh == nil {
			return fmt.Errorf("obj output requested but mesh generation is disabled")
		}
		err := svc.WriteFile(ctx, filepath.Join(out.Dir, objName), "obj", res.Mesh.WriteOBJ)
		if err != nil {
			return err
		}
	}

	if out.JSON {
		doc := terrainDocument{
			RunID:       res.RunID,
			Seed:        gen.Seed,
			GridSize:    res.Field.GridSize(),
			CellWidth:   res.CellWidth,
			Rows:        h.Rows(),
			Cols:        h.Cols(),
			HeightScale: gen.HeightScale,
			Heightfield: h,
			Mesh:        res.Mesh,
		}
		err := svc.WriteFile(ctx, filepath.Join(out.Dir, jsonName), "json", func(w io.Writer) error {
			return json.NewEncoder(w).Encode(doc)
		})
		if err != nil {
			return err
		}
	}

	if out.ASCII {
		if err := render.NewTerminalSink(stdout, out.ASCIIWidth).Consume(ctx, h); err != nil {
			return err
		}
	}

	return nil
}
