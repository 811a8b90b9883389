// Package render turns abstract bar content into pixels. A Context is a
// scoped borrow of one surface's byte range inside the shared-memory arena:
// it is created at the start of a paint, drawn through, and finished before
// the range is handed to the compositor. Text metrics and drawing go through
// golang.org/x/image/font so the same Face measures popups before any pixels
// exist.
package render

import (
	"image"
	"image/color"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"wlbar/internal/notify"
)

// Env is the slice of the runtime context visible to content while it
// renders: template formatting, future-wake requests, and the waker that
// interest registries capture.
type Env interface {
	notify.Waker

	// Format resolves a "{name.key}" template against the variable table.
	Format(format string) (string, error)

	// RequestWakeAt asks for a redraw no later than t.
	RequestWakeAt(t time.Time)
}

// Item is one node of a surface's content tree. Render draws at the current
// pen position, advances the pen, and returns the input regions the drawn
// content responds to.
type Item interface {
	Render(ctx *Context) Sink
}

// IconRenderer looks up and draws a named or path-addressed icon at the
// current pen position. Implementations live outside this core; a nil
// IconRenderer simply fails every lookup, falling back to text.
type IconRenderer interface {
	Render(ctx *Context, nameOrPath string) error
}

// Metrics measures text without a drawing target, for sizing surfaces that
// do not exist yet (popup menus measure before their surface is created).
type Metrics struct {
	face font.Face
}

// NewMetrics returns Metrics over face; a nil face selects the built-in
// fixed-width face.
func NewMetrics(face font.Face) *Metrics {
	if face == nil {
		face = basicfont.Face7x13
	}
	return &Metrics{face: face}
}

// TextSize reports the advance width and line height of s.
func (m *Metrics) TextSize(s string) (w, h float64) {
	adv := font.MeasureString(m.face, s)
	return fixedToFloat(adv), m.LineHeight()
}

// LineHeight reports the face's line height.
func (m *Metrics) LineHeight() float64 {
	return fixedToFloat(m.face.Metrics().Height)
}

func (m *Metrics) ascent() float64 {
	return fixedToFloat(m.face.Metrics().Ascent)
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

func floatToFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(v * 64)
}

// Context is a drawing surface backed by one exact byte range of the shared
// arena, plus the pen state content uses to lay itself out left to right.
// A Context must be finished before its range is reused or attached to a
// compositor buffer; using it after Finish is a programming error.
type Context struct {
	img     *argbImage
	metrics *Metrics
	env     Env
	icons   IconRenderer

	penX, penY float64
	fg         color.RGBA
	done       bool
}

// NewContext wraps the byte range buf as a width×height ARGB surface with
// the given row stride. env supplies formatting and wake requests to the
// content being drawn; icons may be nil.
func NewContext(buf []byte, width, height, stride int, metrics *Metrics, env Env, icons IconRenderer) *Context {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Context{
		img:     newARGBImage(buf, width, height, stride),
		metrics: metrics,
		env:     env,
		icons:   icons,
		fg:      color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	}
}

// Env returns the rendering environment.
func (c *Context) Env() Env { return c.env }

// Metrics returns the text metrics shared with popup sizing.
func (c *Context) Metrics() *Metrics { return c.metrics }

// Icons returns the icon lookup collaborator, or nil when none is wired.
func (c *Context) Icons() IconRenderer { return c.icons }

// Size reports the pixel dimensions of the surface.
func (c *Context) Size() (w, h int) {
	c.check()
	return c.img.rect.Dx(), c.img.rect.Dy()
}

// SetForeground changes the pen color for subsequent text and lines.
func (c *Context) SetForeground(fg color.RGBA) { c.fg = fg }

// Clear fills the whole surface with bg (transparent black clears).
func (c *Context) Clear(bg color.RGBA) {
	c.check()
	c.img.fill(bg)
}

// MoveTo places the pen.
func (c *Context) MoveTo(x, y float64) {
	c.penX, c.penY = x, y
}

// RelMoveTo shifts the pen.
func (c *Context) RelMoveTo(dx, dy float64) {
	c.penX += dx
	c.penY += dy
}

// Pen reports the current pen position.
func (c *Context) Pen() (x, y float64) { return c.penX, c.penY }

// DrawText draws s at the pen, advances the pen by its width, and returns
// that width.
func (c *Context) DrawText(s string) float64 {
	c.check()
	d := font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(c.fg),
		Face: c.metrics.face,
		Dot: fixed.Point26_6{
			X: floatToFixed(c.penX),
			Y: floatToFixed(c.penY + c.metrics.ascent()),
		},
	}
	d.DrawString(s)
	w := fixedToFloat(font.MeasureString(c.metrics.face, s))
	c.penX += w
	return w
}

// HLine strokes a one-pixel horizontal line from x0 to x1 at height y.
func (c *Context) HLine(x0, x1, y float64) {
	c.check()
	row := int(y)
	for x := int(x0); x < int(x1); x++ {
		c.img.Set(x, row, c.fg)
	}
}

// FillRect fills the given rectangle with the pen color; used by square
// placeholder glyphs and hover highlights.
func (c *Context) FillRect(x0, y0, x1, y1 float64) {
	c.check()
	for y := int(y0); y < int(y1); y++ {
		for x := int(x0); x < int(x1); x++ {
			c.img.Set(x, y, c.fg)
		}
	}
}

// Finish finalizes the surface. The drawing backend buffers nothing beyond
// this point: after Finish the byte range may be attached to a compositor
// buffer or reused, and any further drawing through this Context panics.
func (c *Context) Finish() {
	c.check()
	c.done = true
	c.img = nil
}

func (c *Context) check() {
	if c.done {
		panic("render: Context used after Finish")
	}
}
