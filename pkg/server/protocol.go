package server

import (
	"github.com/opd-ai/go-perlin/pkg/config"
	"github.com/opd-ai/go-perlin/pkg/noise"
	"github.com/opd-ai/go-perlin/pkg/terrain"
	"github.com/opd-ai/go-perlin/pkg/validation"
)

// GenerateRequest is the JSON message a client sends on /ws.
type GenerateRequest struct {
	// RequestID is echoed in the response so clients can pipeline requests.
	RequestID   string  `json:"requestId,omitempty"`
	GridSize    int     `json:"gridSize"`
	DomainWidth int     `json:"domainWidth"`
	HeightScale float64 `json:"heightScale"`
	Seed        uint64  `json:"seed"`
	Rotation    float64 `json:"rotation"`
	// Mesh requests the triangle mesh alongside the heightfield.
	Mesh bool `json:"mesh"`
}

// Params returns the fields subject to validation.
func (r GenerateRequest) Params() validation.GenerateParams {
	return validation.GenerateParams{
		GridSize:    r.GridSize,
		DomainWidth: r.DomainWidth,
		HeightScale: r.HeightScale,
		Rotation:    r.Rotation,
	}
}

// GeneratorConfig converts the request into a generator configuration.
func (r GenerateRequest) GeneratorConfig(workers int) config.GeneratorConfig {
	return config.GeneratorConfig{
		GridSize:    r.GridSize,
		DomainWidth: r.DomainWidth,
		HeightScale: r.HeightScale,
		Seed:        r.Seed,
		Workers:     workers,
		Rotation:    r.Rotation,
		SkipMesh:    !r.Mesh,
	}
}

// GenerateResponse is the reply to a GenerateRequest. On failure only
// RequestID and Error are set.
type GenerateResponse struct {
	RunID       string            `json:"runId,omitempty"`
	RequestID   string            `json:"requestId,omitempty"`
	Rows        int               `json:"rows,omitempty"`
	Cols        int               `json:"cols,omitempty"`
	CellWidth   int               `json:"cellWidth,omitempty"`
	Heightfield noise.Heightfield `json:"heightfield,omitempty"`
	Mesh        *terrain.Mesh     `json:"mesh,omitempty"`
	ElapsedMs   float64           `json:"elapsedMs,omitempty"`
	Error       string            `json:"error,omitempty"`
}
