package noise

import (
	"context"
	"fmt"
)

// Sink consumes a finished heightfield, for example to draw or store it.
type Sink interface {
	Consume(ctx context.Context, h Heightfield) error
}

// PixelFunc adapts a per-sample callback to a Sink. It is called once per
// sample in row-major order with the sample's column, row and value.
type PixelFunc func(x, y int, brightness float64)

// Consume implements Sink.
func (f PixelFunc) Consume(ctx context.Context, h Heightfield) error {
	for y, row := range h {
		if err := ctx.Err(); err != nil {
			return err
		}
		for x, v := range row {
			f(x, y, v)
		}
	}
	return nil
}

// Emit validates h once and hands it to each sink in order, stopping at the
// first failure.
func Emit(ctx context.Context, h Heightfield, sinks ...Sink) error {
	if err := h.Validate(); err != nil {
		return err
	}
	for i, sink := range sinks {
		if sink == nil {
			continue
		}
		if err := sink.Consume(ctx, h); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}
