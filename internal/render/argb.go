package render

import (
	"image"
	"image/color"
)

// argbImage exposes a compositor pixel range as a draw target. The wire
// format is ARGB8888 on a little-endian machine, so bytes run B, G, R, A with
// premultiplied alpha; color.RGBA is premultiplied as well, which makes the
// conversion a pure byte shuffle.
type argbImage struct {
	pix    []byte
	stride int
	rect   image.Rectangle
}

func newARGBImage(pix []byte, width, height, stride int) *argbImage {
	return &argbImage{
		pix:    pix,
		stride: stride,
		rect:   image.Rect(0, 0, width, height),
	}
}

func (m *argbImage) ColorModel() color.Model { return color.RGBAModel }

func (m *argbImage) Bounds() image.Rectangle { return m.rect }

func (m *argbImage) At(x, y int) color.Color {
	if !(image.Point{x, y}).In(m.rect) {
		return color.RGBA{}
	}
	i := y*m.stride + x*4
	return color.RGBA{R: m.pix[i+2], G: m.pix[i+1], B: m.pix[i], A: m.pix[i+3]}
}

func (m *argbImage) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}).In(m.rect) {
		return
	}
	i := y*m.stride + x*4
	r, g, b, a := c.RGBA()
	m.pix[i] = byte(b >> 8)
	m.pix[i+1] = byte(g >> 8)
	m.pix[i+2] = byte(r >> 8)
	m.pix[i+3] = byte(a >> 8)
}

func (m *argbImage) fill(c color.RGBA) {
	w := m.rect.Dx()
	for y := 0; y < m.rect.Dy(); y++ {
		row := m.pix[y*m.stride : y*m.stride+w*4]
		for x := 0; x < w; x++ {
			row[x*4] = c.B
			row[x*4+1] = c.G
			row[x*4+2] = c.R
			row[x*4+3] = c.A
		}
	}
}
