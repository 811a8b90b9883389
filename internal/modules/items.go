package modules

import "wlbar/internal/render"

// Text draws a format string resolved against the variable table. A format
// that fails to resolve draws nothing; the runtime logs the failure.
type Text struct {
	format string
}

func NewText(format string) *Text { return &Text{format: format} }

func (t *Text) Render(ctx *render.Context) render.Sink {
	s, err := ctx.Env().Format(t.format)
	if err != nil {
		return render.Sink{}
	}
	ctx.DrawText(s)
	return render.Sink{}
}

// Spacer advances the pen without drawing.
type Spacer struct {
	width float64
}

func NewSpacer(width int) *Spacer { return &Spacer{width: float64(width)} }

func (s *Spacer) Render(ctx *render.Context) render.Sink {
	ctx.RelMoveTo(s.width, 0)
	return render.Sink{}
}
