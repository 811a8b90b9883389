package state

import (
	"image/color"

	"wlbar/internal/compositor"
	"wlbar/internal/config"
	"wlbar/internal/render"
)

// Bar is one drawable strip bound to one output. It is created as soon as
// the output is known, becomes sized when the first configure arrives, and
// is torn down when the compositor closes it or its output disappears.
type Bar struct {
	cfg      config.Bar
	cfgIndex int
	output   compositor.Output
	surface  compositor.LayerSurface
	items    []render.Item
	bg       color.RGBA

	width  int
	height int
	sized  bool
	dirty  bool

	// sink holds the click and popup regions recorded by the last render.
	sink render.Sink
}

// renderInto draws the bar's items left to right and replaces the region
// sink with what this pass recorded.
func (b *Bar) renderInto(ctx *render.Context) {
	ctx.MoveTo(0, barBaseline(float64(b.height), ctx.Metrics().LineHeight()))
	var sink render.Sink
	for _, item := range b.items {
		sink.Merge(item.Render(ctx))
	}
	b.sink = sink
}

func barBaseline(height, line float64) float64 {
	if line >= height {
		return 0
	}
	return (height - line) / 2
}
