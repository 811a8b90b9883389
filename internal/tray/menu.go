package tray

import (
	"context"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"wlbar/internal/notify"
	"wlbar/internal/render"
)

// Popup layout constants, in pixels.
const (
	menuSeparatorGap = 9.0
	menuEntryPad     = 5.0
	popupMargin      = 4
	separatorInset   = 5.0
)

// MenuEntry is one row of a fetched context menu: either a separator or a
// labeled action identified by the remote's own id.
type MenuEntry struct {
	ID        int32
	Separator bool
	Label     string
}

type menuState int

const (
	menuUnfetched menuState = iota
	menuFetching
	menuPopulated
)

// MenuCache lazily fetches and holds one item's dbusmenu layout. All
// popups of the same item share one cache, so the layout is fetched at
// most once until invalidated. The first Entries call triggers the fetch;
// the explicit state tag keeps a second call during the fetch window from
// triggering another.
type MenuCache struct {
	bus Bus
	log zerolog.Logger

	mu       sync.Mutex
	state    menuState
	entries  []MenuEntry
	interest notify.List
}

func newMenuCache(bus Bus, log zerolog.Logger) *MenuCache {
	return &MenuCache{bus: bus, log: log}
}

// Entries registers w for the next layout change and returns the current
// entries, starting the one-shot background fetch if it has not run yet.
// Before the fetch lands the result is empty.
func (c *MenuCache) Entries(w notify.Waker, owner string, path dbus.ObjectPath) []MenuEntry {
	c.interest.Add(w)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == menuUnfetched && path != "" {
		c.state = menuFetching
		go c.fetch(owner, path)
	}
	return append([]MenuEntry(nil), c.entries...)
}

// Invalidate discards the cached layout so the next Entries call fetches
// it again. Called when an item moves its menu to a different path.
func (c *MenuCache) Invalidate() {
	c.mu.Lock()
	c.state = menuUnfetched
	c.entries = nil
	c.mu.Unlock()
}

func (c *MenuCache) fetch(owner string, path dbus.ObjectPath) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	obj := c.bus.Object(owner, path)

	// Absence of a dynamic submenu is not an error; the reply is ignored
	// either way.
	obj.CallWithContext(ctx, "com.canonical.dbusmenu.AboutToShow", 0, int32(0))

	call := obj.CallWithContext(ctx, "com.canonical.dbusmenu.GetLayout", 0,
		int32(0), int32(-1), []string{"type", "label"})
	if call.Err != nil {
		c.log.Warn().Err(call.Err).Str("owner", owner).Msg("menu layout fetch failed")
		return
	}
	var revision uint32
	var root []interface{}
	if err := call.Store(&revision, &root); err != nil {
		c.log.Warn().Err(err).Str("owner", owner).Msg("unexpected menu layout shape")
		return
	}

	entries := decodeMenuLayout(root)
	c.mu.Lock()
	c.entries = entries
	c.state = menuPopulated
	c.mu.Unlock()
	c.interest.NotifyData()
}

// decodeMenuLayout walks the top level of a GetLayout reply. Each child is
// a variant over (id, properties, children); nesting below the first level
// is not shown. Malformed children are skipped, and within a child any
// missing or mistyped property simply leaves its field at the default.
func decodeMenuLayout(root []interface{}) []MenuEntry {
	if len(root) < 3 {
		return nil
	}
	children, ok := root[2].([]dbus.Variant)
	if !ok {
		return nil
	}
	entries := make([]MenuEntry, 0, len(children))
	for _, child := range children {
		node, ok := child.Value().([]interface{})
		if !ok || len(node) < 2 {
			continue
		}
		var e MenuEntry
		if id, ok := node[0].(int32); ok {
			e.ID = id
		}
		if props, ok := node[1].(map[string]dbus.Variant); ok {
			if v, present := props["label"]; present {
				storeString(v, &e.Label)
			}
			if v, present := props["type"]; present {
				if s, ok := v.Value().(string); ok && s == "separator" {
					e.Separator = true
				}
			}
		}
		entries = append(entries, e)
	}
	return entries
}

// entrySpan records the vertical extent one rendered menu entry occupies,
// for hit-testing clicks.
type entrySpan struct {
	top, bottom float64
	id          int32
}

// Popup shows one tray item's title and context menu. It carries enough
// identity to render and dispatch independently of the directory, so it
// keeps working for the duration of a hover even if the item vanishes.
type Popup struct {
	Owner    string
	Title    string
	MenuPath dbus.ObjectPath

	menu     *MenuCache
	waker    notify.Waker
	rendered []entrySpan
}

// Size measures the popup: the title line, then a gap ahead of the entries
// if there are any, then each entry's height, all padded by a fixed
// margin. The width is the widest of the title and the entry labels.
func (p *Popup) Size(m *render.Metrics) (int, int) {
	w, h := m.TextSize(p.Title)
	entries := p.menu.Entries(p.waker, p.Owner, p.MenuPath)
	if len(entries) > 0 {
		h += menuSeparatorGap
	}
	for _, e := range entries {
		if e.Separator {
			h += menuSeparatorGap
			continue
		}
		lw, lh := m.TextSize(e.Label)
		if lw > w {
			w = lw
		}
		h += lh + menuEntryPad
	}
	return int(w) + popupMargin, int(h) + popupMargin
}

// Render paints the popup top to bottom and records each labeled entry's
// extent for Click. The extents are rebuilt from scratch every pass.
func (p *Popup) Render(ctx *render.Context) {
	w, _ := ctx.Size()
	line := ctx.Metrics().LineHeight()

	ctx.MoveTo(2, 2)
	ctx.DrawText(p.Title)
	pos := 2 + line

	entries := p.menu.Entries(p.waker, p.Owner, p.MenuPath)
	p.rendered = p.rendered[:0]
	if len(entries) > 0 {
		ctx.HLine(0, float64(w), pos+4)
		pos += menuSeparatorGap
	}
	for _, e := range entries {
		if e.Separator {
			ctx.HLine(separatorInset, float64(w)-separatorInset, pos+4)
			pos += menuSeparatorGap
			continue
		}
		ctx.MoveTo(2, pos)
		ctx.DrawText(e.Label)
		end := pos + line
		p.rendered = append(p.rendered, entrySpan{top: pos, bottom: end, id: e.ID})
		pos = end + menuEntryPad
	}
}

// Click fires the remote "clicked" event for the entry whose rendered
// extent contains y. A miss is a no-op.
func (p *Popup) Click(y float64, code uint32) {
	for _, span := range p.rendered {
		if y < span.top || y > span.bottom {
			continue
		}
		p.activate(span.id)
	}
}

func (p *Popup) activate(id int32) {
	ts := uint32(time.Now().UnixMilli())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		obj := p.menu.bus.Object(p.Owner, p.MenuPath)
		call := obj.CallWithContext(ctx, "com.canonical.dbusmenu.Event", 0,
			id, "clicked", dbus.MakeVariant(int32(0)), ts)
		if call.Err != nil {
			p.menu.log.Debug().Err(call.Err).Str("owner", p.Owner).Msg("menu event failed")
		}
	}()
}
