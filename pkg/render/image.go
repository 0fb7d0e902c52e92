package render

import (
	"context"
	"fmt"
	"io"

	"github.com/gogpu/gg"

	"github.com/opd-ai/go-perlin/pkg/noise"
)

// ImageSink encodes a heightfield as a grayscale PNG, one pixel per sample,
// brightness = value.
type ImageSink struct {
	out io.Writer
}

// NewImageSink creates a PNG sink writing to out.
func NewImageSink(out io.Writer) *ImageSink {
	return &ImageSink{out: out}
}

// Consume implements noise.Sink.
func (s *ImageSink) Consume(ctx context.Context, h noise.Heightfield) error {
	dc, err := Draw(ctx, h)
	if err != nil {
		return err
	}
	defer dc.Close()

	if err := dc.EncodePNG(s.out); err != nil {
		return fmt.Errorf("encoding png: %w", err)
	}
	return nil
}

// Draw paints h onto a new gg context. The caller owns the context.
func Draw(ctx context.Context, h noise.Heightfield) (*gg.Context, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}

	dc := gg.NewContext(h.Cols(), h.Rows())
	paint := noise.PixelFunc(func(x, y int, v float64) {
		b := clamp01(v)
		dc.SetPixel(x, y, gg.RGB(b, b, b))
	})
	if err := paint.Consume(ctx, h); err != nil {
		dc.Close()
		return nil, err
	}
	return dc, nil
}

var _ noise.Sink = (*ImageSink)(nil)
