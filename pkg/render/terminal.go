package render

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/opd-ai/go-perlin/pkg/noise"
)

// ramp orders characters from low to high.
const ramp = " .:-=+*#%@"

// TerminalSink renders a heightfield as ASCII art. Values are expected in
// [0, 1]; anything outside is clamped.
type TerminalSink struct {
	out    io.Writer
	width  int
	buffer [][]rune
}

// NewTerminalSink creates a terminal sink that writes at most width columns.
func NewTerminalSink(out io.Writer, width int) *TerminalSink {
	if width < 1 {
		width = 80
	}
	return &TerminalSink{out: out, width: width}
}

// Consume implements noise.Sink.
func (r *TerminalSink) Consume(ctx context.Context, h noise.Heightfield) error {
	r.Rasterize(h)
	return r.Present()
}

// Rasterize downsamples h into the character buffer. Terminal cells are
// about twice as tall as wide, so rows are skipped twice as often.
func (r *TerminalSink) Rasterize(h noise.Heightfield) {
	cols := h.Cols()
	step := (cols + r.width - 1) / r.width
	if step < 1 {
		step = 1
	}
	rowStep := step * 2

	r.buffer = r.buffer[:0]
	for y := 0; y < h.Rows(); y += rowStep {
		line := make([]rune, 0, cols/step+1)
		for x := 0; x < cols; x += step {
			line = append(line, shade(h[y][x]))
		}
		r.buffer = append(r.buffer, line)
	}
}

func shade(v float64) rune {
	levels := len(ramp)
	i := int(clamp01(v) * float64(levels))
	if i >= levels {
		i = levels - 1
	}
	return rune(ramp[i])
}

// Present writes the buffer with a border.
func (r *TerminalSink) Present() error {
	w := bufio.NewWriter(r.out)

	lineWidth := 0
	if len(r.buffer) > 0 {
		lineWidth = len(r.buffer[0])
	}
	border := "+" + strings.Repeat("-", lineWidth) + "+\n"

	w.WriteString(border)
	for _, line := range r.buffer {
		w.WriteString("|")
		w.WriteString(string(line))
		w.WriteString("|\n")
	}
	w.WriteString(border)

	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing terminal preview: %w", err)
	}
	return nil
}

// Lines returns a copy of the rasterized rows.
func (r *TerminalSink) Lines() []string {
	out := make([]string, len(r.buffer))
	for i, line := range r.buffer {
		out[i] = string(line)
	}
	return out
}

var _ noise.Sink = (*TerminalSink)(nil)
