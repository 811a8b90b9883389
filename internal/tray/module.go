package tray

import (
	"path/filepath"

	"wlbar/internal/render"
)

// Module renders the directory's items side by side on a bar, wiring each
// icon's region to click dispatch and a hover popup. It implements
// render.Item.
type Module struct {
	dir     *Directory
	spacing float64
}

// NewModule returns a bar item showing dir's contents with the given gap
// before and between icons.
func NewModule(dir *Directory, spacing float64) *Module {
	return &Module{dir: dir, spacing: spacing}
}

// Render draws every live item and re-registers the caller's interest, so
// the next directory change repaints the bar.
func (m *Module) Render(ctx *render.Context) render.Sink {
	env := ctx.Env()
	m.dir.Watch(env)

	var sink render.Sink
	ctx.RelMoveTo(m.spacing, 0)
	for _, it := range m.dir.Items() {
		it := it // the closures below must capture this iteration's item
		x0, _ := ctx.Pen()
		drawItemIcon(ctx, &it)
		x1, _ := ctx.Pen()

		sink.Add(render.Region{
			X0: x0,
			X1: x1,
			Click: func(code uint32) {
				m.dir.Click(it.Owner, it.Path, code)
			},
			Popup: func() render.Popup {
				return &Popup{
					Owner:    it.Owner,
					Title:    it.Title,
					MenuPath: it.MenuPath,
					menu:     it.menu,
					waker:    env,
				}
			},
		})
		ctx.RelMoveTo(m.spacing, 0)
	}
	return sink
}

// drawItemIcon tries the item's themed SVG, then its themed PNG, then the
// bare icon name, and finally falls back to the title as text.
func drawItemIcon(ctx *render.Context, it *Item) {
	icons := ctx.Icons()
	if icons != nil && it.IconThemePath != "" && it.IconName != "" {
		if icons.Render(ctx, filepath.Join(it.IconThemePath, it.IconName+".svg")) == nil {
			return
		}
		if icons.Render(ctx, filepath.Join(it.IconThemePath, it.IconName+".png")) == nil {
			return
		}
	}
	if icons != nil && it.IconName != "" {
		if icons.Render(ctx, it.IconName) == nil {
			return
		}
	}
	ctx.DrawText(it.Title)
}
