package render

// Popup is a menu or tooltip anchored to a hit region. It is sized before
// its surface exists and clicked through surface-local coordinates.
type Popup interface {
	// Size reports the desired pixel size, measured with the same metrics
	// the bar renders with.
	Size(m *Metrics) (w, h int)

	// Render paints into a surface of at least the reported size.
	Render(ctx *Context)

	// Click routes a press at vertical offset y with the given button code.
	Click(y float64, code uint32)
}

// Region is one span of a rendered surface that responds to input. X0 and X1
// are surface-local horizontal bounds; the span covers the surface's full
// height. Click and Popup may each be nil.
type Region struct {
	X0, X1 float64
	Click  func(code uint32)
	Popup  func() Popup
}

// Sink collects the input regions produced by one render pass. Each tick
// replaces a surface's sink wholesale, so stale closures never outlive the
// frame that produced them.
type Sink struct {
	regions []Region
}

// Add appends a region.
func (s *Sink) Add(r Region) {
	s.regions = append(s.regions, r)
}

// AddClick appends a click-only region spanning x0..x1.
func (s *Sink) AddClick(x0, x1 float64, fn func(code uint32)) {
	s.Add(Region{X0: x0, X1: x1, Click: fn})
}

// Merge appends all of other's regions to s.
func (s *Sink) Merge(other Sink) {
	s.regions = append(s.regions, other.regions...)
}

// Len reports the number of regions.
func (s *Sink) Len() int { return len(s.regions) }

// ClickAt dispatches a button press at horizontal offset x to the first
// region containing it, and reports whether any region handled it.
func (s *Sink) ClickAt(x float64, code uint32) bool {
	for _, r := range s.regions {
		if x >= r.X0 && x < r.X1 && r.Click != nil {
			r.Click(code)
			return true
		}
	}
	return false
}

// PopupAt returns the popup anchored at horizontal offset x along with the
// anchor region's bounds, or nil when nothing there owns a popup.
func (s *Sink) PopupAt(x float64) (Popup, float64, float64) {
	for _, r := range s.regions {
		if x >= r.X0 && x < r.X1 && r.Popup != nil {
			if p := r.Popup(); p != nil {
				return p, r.X0, r.X1
			}
		}
	}
	return nil, 0, 0
}
