// Package render provides heightfield sinks: an ASCII terminal preview,
// PNG and 16-bit TIFF encoders, and a logging null sink.
package render

import (
	"context"
	"math"

	"github.com/opd-ai/go-perlin/pkg/logging"
	"github.com/opd-ai/go-perlin/pkg/noise"
)

// NullSink is a noise.Sink that only logs what it receives.
type NullSink struct {
	logger *logging.Logger
}

// NewNullSink creates a NullSink. A nil logger uses logging.NewLogger.
func NewNullSink(logger *logging.Logger) *NullSink {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &NullSink{logger: logger}
}

// Consume implements noise.Sink.
func (d *NullSink) Consume(ctx context.Context, h noise.Heightfield) error {
	lo, hi := h.Bounds()
	d.logger.Debug(ctx, "Heightfield consumed",
		"rows", h.Rows(),
		"cols", h.Cols(),
		"min", lo,
		"max", hi,
	)
	return nil
}

// clamp01 limits v to [0, 1]; NaN becomes 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ noise.Sink = (*NullSink)(nil)
