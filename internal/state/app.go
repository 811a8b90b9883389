package state

import (
	"context"
	"image/color"
	"time"

	"github.com/rs/zerolog"

	"wlbar/internal/compositor"
	"wlbar/internal/config"
	"wlbar/internal/render"
	"wlbar/internal/tray"
)

var popupBackground = color.RGBA{R: 0x20, G: 0x20, B: 0x24, A: 0xff}

// popupSurface is the at-most-one hover popup, keyed to the bar region
// that opened it.
type popupSurface struct {
	content render.Popup
	bar     *Bar
	anchorX float64
	surface compositor.LayerSurface
	width   int
	height  int
	sized   bool
	dirty   bool
}

// AppOptions carries the dependencies an App is assembled from. Tray and
// Icons may be nil; Metrics defaults to the built-in face.
type AppOptions struct {
	Log     zerolog.Logger
	Config  *config.Config
	Runtime *Runtime
	Conn    compositor.Conn
	Tray    *tray.Directory
	Icons   render.IconRenderer
	Metrics *render.Metrics
}

// App owns the surfaces and drives them through the event loop and the
// render tick. Everything below Run happens on one goroutine; the only
// state shared with producers is the Runtime.
type App struct {
	log     zerolog.Logger
	cfg     *config.Config
	rt      *Runtime
	conn    compositor.Conn
	dir     *tray.Directory
	icons   render.IconRenderer
	metrics *render.Metrics

	pool  compositor.Pool
	bars  []*Bar
	popup *popupSurface
}

func NewApp(opts AppOptions) *App {
	m := opts.Metrics
	if m == nil {
		m = render.NewMetrics(nil)
	}
	return &App{
		log:     opts.Log,
		cfg:     opts.Config,
		rt:      opts.Runtime,
		conn:    opts.Conn,
		dir:     opts.Tray,
		icons:   opts.Icons,
		metrics: m,
	}
}

// Run drives the application until ctx ends. It starts the wake scheduler
// and the tray directory, creates bars for the outputs already present,
// and then loops over compositor events and redraw requests.
func (a *App) Run(ctx context.Context) error {
	go a.rt.wake.Run(ctx)
	if a.dir != nil {
		go func() {
			if err := a.dir.Run(ctx); err != nil && ctx.Err() == nil {
				a.log.Warn().Err(err).Msg("tray directory stopped")
			}
		}()
	}

	a.bootstrap()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-a.conn.Events():
			if !ok {
				return nil
			}
			a.handleEvent(ev)
		case <-a.rt.redraw.Wait():
			a.tick(time.Now())
		}
	}
}

// RenderOnce drives a single bootstrap, configure, and paint cycle, then
// returns with the pixels committed. Offline rendering uses it with the
// headless driver.
func (a *App) RenderOnce() error {
	a.bootstrap()
	a.drainEvents()
	a.tick(time.Now())
	return nil
}

func (a *App) bootstrap() {
	for _, out := range a.conn.Outputs() {
		a.outputReady(out)
	}
}

func (a *App) drainEvents() {
	for {
		select {
		case ev, ok := <-a.conn.Events():
			if !ok {
				return
			}
			a.handleEvent(ev)
		default:
			return
		}
	}
}

func (a *App) handleEvent(ev compositor.Event) {
	switch e := ev.(type) {
	case compositor.OutputAdded:
		a.outputReady(e.Output)
	case compositor.OutputRemoved:
		a.outputGone(e.Output)
	case compositor.Configure:
		a.configure(e)
	case compositor.Closed:
		a.closed(e.Surface)
	case compositor.PointerEnter:
		a.pointer(e.Surface, e.X)
	case compositor.PointerMotion:
		a.pointer(e.Surface, e.X)
	case compositor.PointerButton:
		a.button(e.Surface, e.X, e.Y, e.Code)
	case compositor.PointerLeave:
		a.pointerGone(e.Surface)
	}
}

// outputReady creates a bar for every configuration matching the output.
// An output announced twice keeps its existing bars.
func (a *App) outputReady(out compositor.Output) {
	for i, bc := range a.cfg.Bars {
		if !bc.Matches(out.Name) {
			continue
		}
		if a.haveBar(i, out.Name) {
			continue
		}
		a.createBar(i, bc, out)
	}
}

func (a *App) haveBar(cfgIndex int, output string) bool {
	for _, b := range a.bars {
		if b.cfgIndex == cfgIndex && b.output.Name == output {
			return true
		}
	}
	return false
}

func (a *App) createBar(cfgIndex int, bc config.Bar, out compositor.Output) {
	anchor := compositor.AnchorTop | compositor.AnchorLeft | compositor.AnchorRight
	if bc.Side == "bottom" {
		anchor = compositor.AnchorBottom | compositor.AnchorLeft | compositor.AnchorRight
	}
	surface, err := a.conn.CreateLayerSurface(out.Name, compositor.LayerOptions{
		Namespace: "wlbar",
		Anchor:    anchor,
		Height:    bc.Height,
		Exclusive: bc.Height,
		Layer:     compositor.LayerTop,
	})
	if err != nil {
		a.log.Warn().Err(err).Str("output", out.Name).Msg("cannot create bar surface")
		return
	}
	bg, err := config.ParseColor(bc.Background)
	if err != nil {
		bg, _ = config.ParseColor(config.DefaultBackground)
	}
	b := &Bar{
		cfg:      bc,
		cfgIndex: cfgIndex,
		output:   out,
		surface:  surface,
		items:    a.resolveItems(bc.Modules),
		bg:       bg,
	}
	a.bars = append(a.bars, b)
	// The initial empty commit is what makes the compositor send the
	// first configure.
	surface.Commit()
	a.flush()
	a.log.Info().Str("output", out.Name).Str("side", bc.Side).Int("height", bc.Height).Msg("bar created")
}

func (a *App) resolveItems(names []string) []render.Item {
	items := make([]render.Item, 0, len(names))
	for _, name := range names {
		item, ok := a.rt.Item(name)
		if !ok {
			a.log.Warn().Str("module", name).Msg("bar references unknown module")
			continue
		}
		items = append(items, item)
	}
	return items
}

func (a *App) barFor(s compositor.LayerSurface) *Bar {
	for _, b := range a.bars {
		if b.surface == s {
			return b
		}
	}
	return nil
}

// configure matches by surface identity; configures for surfaces no
// longer tracked are dropped.
func (a *App) configure(e compositor.Configure) {
	if b := a.barFor(e.Surface); b != nil {
		b.width, b.height = e.Width, e.Height
		b.surface.AckConfigure(e.Serial)
		b.sized = true
		b.dirty = true
		a.rt.Redraw()
		return
	}
	if p := a.popup; p != nil && p.surface == e.Surface {
		p.width, p.height = e.Width, e.Height
		p.surface.AckConfigure(e.Serial)
		p.sized = true
		p.dirty = true
		a.rt.Redraw()
	}
}

func (a *App) closed(s compositor.LayerSurface) {
	if p := a.popup; p != nil && p.surface == s {
		a.closePopup()
		return
	}
	for i, b := range a.bars {
		if b.surface != s {
			continue
		}
		if p := a.popup; p != nil && p.bar == b {
			a.closePopup()
		}
		b.surface.Destroy()
		a.bars = append(a.bars[:i], a.bars[i+1:]...)
		a.flush()
		a.log.Info().Str("output", b.output.Name).Msg("bar closed")
		return
	}
}

func (a *App) outputGone(out compositor.Output) {
	kept := a.bars[:0]
	removed := 0
	for _, b := range a.bars {
		if b.output.Name != out.Name {
			kept = append(kept, b)
			continue
		}
		if p := a.popup; p != nil && p.bar == b {
			a.closePopup()
		}
		b.surface.Destroy()
		removed++
	}
	a.bars = kept
	if removed > 0 {
		a.flush()
		a.log.Info().Str("output", out.Name).Int("bars", removed).Msg("output removed")
	}
}

// pointer tracks hover over bar regions. Moving onto a region with a
// popup opens it (replacing any other popup); moving off every region
// closes the popup anchored to this bar. The popup itself needs no hover
// tracking, so motion there is ignored.
func (a *App) pointer(s compositor.LayerSurface, x float64) {
	b := a.barFor(s)
	if b == nil {
		return
	}
	content, x0, _ := b.sink.PopupAt(x)
	if content == nil {
		if a.popup != nil && a.popup.bar == b {
			a.closePopup()
		}
		return
	}
	if a.popup != nil && a.popup.bar == b && a.popup.anchorX == x0 {
		return
	}
	a.closePopup()
	a.openPopup(b, content, x0)
}

func (a *App) button(s compositor.LayerSurface, x, y float64, code uint32) {
	if b := a.barFor(s); b != nil {
		b.sink.ClickAt(x, code)
		return
	}
	if p := a.popup; p != nil && p.surface == s {
		p.content.Click(y, code)
	}
}

// pointerGone closes the popup when the pointer leaves it. Leaving the
// bar keeps the popup alive so the pointer can travel into it.
func (a *App) pointerGone(s compositor.LayerSurface) {
	if p := a.popup; p != nil && p.surface == s {
		a.closePopup()
	}
}

func (a *App) createPopupSurface(b *Bar, anchorX float64, w, h int) (compositor.LayerSurface, error) {
	anchor := compositor.AnchorTop | compositor.AnchorLeft
	if b.cfg.Side == "bottom" {
		anchor = compositor.AnchorBottom | compositor.AnchorLeft
	}
	return a.conn.CreateLayerSurface(b.output.Name, compositor.LayerOptions{
		Namespace: "wlbar-popup",
		Anchor:    anchor,
		Width:     w,
		Height:    h,
		Layer:     compositor.LayerOverlay,
		MarginX:   int(anchorX),
		MarginY:   b.height,
	})
}

func (a *App) openPopup(b *Bar, content render.Popup, anchorX float64) {
	w, h := content.Size(a.metrics)
	surface, err := a.createPopupSurface(b, anchorX, w, h)
	if err != nil {
		a.log.Warn().Err(err).Msg("cannot create popup surface")
		return
	}
	a.popup = &popupSurface{content: content, bar: b, anchorX: anchorX, surface: surface}
	surface.Commit()
	a.flush()
}

func (a *App) closePopup() {
	if a.popup == nil {
		return
	}
	a.popup.surface.Destroy()
	a.popup = nil
	a.flush()
}

// refreshPopupSize recreates the popup surface when its content wants a
// different size than the compositor granted, which happens when menu
// entries arrive after the popup opened.
func (a *App) refreshPopupSize() {
	p := a.popup
	if p == nil || !p.sized || !p.dirty {
		return
	}
	w, h := p.content.Size(a.metrics)
	if w == p.width && h == p.height {
		return
	}
	p.surface.Destroy()
	surface, err := a.createPopupSurface(p.bar, p.anchorX, w, h)
	if err != nil {
		a.log.Warn().Err(err).Msg("cannot resize popup surface")
		a.popup = nil
		a.flush()
		return
	}
	p.surface = surface
	p.sized = false
	surface.Commit()
	a.flush()
}

type paintTarget struct {
	bar    *Bar
	popup  *popupSurface
	w      int
	h      int
	stride int
	offset int
}

func (t paintTarget) surface() compositor.LayerSurface {
	if t.bar != nil {
		return t.bar.surface
	}
	return t.popup.surface
}

// tick runs one update and paint cycle: consume the change flag, update
// every variable in order, mark surfaces dirty on change, and paint the
// dirty ones out of a single pool sized to exactly their sum. A tick with
// nothing dirty touches neither the pool nor the connection.
func (a *App) tick(now time.Time) {
	if a.rt.updateAll(now) {
		for _, b := range a.bars {
			if b.sized {
				b.dirty = true
			}
		}
		if a.popup != nil && a.popup.sized {
			a.popup.dirty = true
		}
	}

	a.refreshPopupSize()

	var targets []paintTarget
	total := 0
	for _, b := range a.bars {
		if !b.dirty || !b.sized {
			continue
		}
		stride := b.width * 4
		targets = append(targets, paintTarget{bar: b, w: b.width, h: b.height, stride: stride, offset: total})
		total += stride * b.height
	}
	if p := a.popup; p != nil && p.dirty && p.sized {
		stride := p.width * 4
		targets = append(targets, paintTarget{popup: p, w: p.width, h: p.height, stride: stride, offset: total})
		total += stride * p.height
	}
	if len(targets) == 0 {
		return
	}

	if a.pool == nil {
		pool, err := a.conn.NewPool(total)
		if err != nil {
			a.log.Fatal().Err(err).Int("bytes", total).Msg("cannot allocate pixel pool")
		}
		a.pool = pool
	} else if err := a.pool.Resize(total); err != nil {
		a.log.Fatal().Err(err).Int("bytes", total).Msg("cannot grow pixel pool")
	}

	buf := a.pool.Bytes()
	for _, t := range targets {
		end := t.offset + t.stride*t.h
		ctx := render.NewContext(buf[t.offset:end], t.w, t.h, t.stride, a.metrics, a.rt, a.icons)
		if t.bar != nil {
			ctx.Clear(t.bar.bg)
			t.bar.renderInto(ctx)
			t.bar.dirty = false
		} else {
			ctx.Clear(popupBackground)
			t.popup.content.Render(ctx)
			t.popup.dirty = false
		}
		ctx.Finish()

		s := t.surface()
		s.Attach(a.pool.Buffer(t.offset, t.w, t.h, t.stride))
		s.Damage(0, 0, t.w, t.h)
		s.Commit()
	}
	a.flush()
}

func (a *App) flush() {
	if err := a.conn.Flush(); err != nil {
		a.log.Warn().Err(err).Msg("compositor flush failed")
	}
}
