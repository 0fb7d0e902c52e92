package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"

	"golang.org/x/image/tiff"

	"github.com/opd-ai/go-perlin/pkg/noise"
)

// TIFFSink writes a 16-bit grayscale TIFF, the usual interchange format for
// heightmaps in terrain tools. Values are clamped to [0, 1] and scaled to
// the full uint16 range.
type TIFFSink struct {
	out io.Writer
}

// NewTIFFSink creates a TIFF sink writing to out.
func NewTIFFSink(out io.Writer) *TIFFSink {
	return &TIFFSink{out: out}
}

// Consume implements noise.Sink.
func (s *TIFFSink) Consume(ctx context.Context, h noise.Heightfield) error {
	img, err := Gray16(ctx, h)
	if err != nil {
		return err
	}
	if err := tiff.Encode(s.out, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
		return fmt.Errorf("encoding tiff: %w", err)
	}
	return nil
}

// Gray16 converts h into a 16-bit grayscale image.
func Gray16(ctx context.Context, h noise.Heightfield) (*image.Gray16, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	img := image.NewGray16(image.Rect(0, 0, h.Cols(), h.Rows()))
	fill := noise.PixelFunc(func(x, y int, v float64) {
		img.SetGray16(x, y, color.Gray16{Y: uint16(clamp01(v)*65535 + 0.5)})
	})
	if err := fill.Consume(ctx, h); err != nil {
		return nil, err
	}
	return img, nil
}

var _ noise.Sink = (*TIFFSink)(nil)
