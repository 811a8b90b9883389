// Package compositor defines the seam between the bar core and the display
// server. The core never speaks the wire protocol itself; it drives a Conn
// through surface, buffer, and event primitives, and any driver that can
// honor the configure/ack/attach/commit contract can sit on the other side.
// The in-tree headless driver serves tests and offline rendering.
package compositor

import "errors"

// ErrClosed is returned by operations on a connection that has been closed.
var ErrClosed = errors.New("compositor: connection closed")

// Anchor selects which output edge a layer surface sticks to.
type Anchor uint32

const (
	AnchorTop Anchor = 1 << iota
	AnchorBottom
	AnchorLeft
	AnchorRight
)

// Layer is the stacking layer a surface is created on.
type Layer uint32

const (
	LayerBackground Layer = iota
	LayerBottom
	LayerTop
	LayerOverlay
)

// Output describes one connected display.
type Output struct {
	Name   string
	Make   string
	Model  string
	Width  int
	Height int
	Scale  int
}

// LayerOptions configures a new layer surface. A zero Width or Height asks
// the compositor to choose, which for an edge-anchored surface means
// stretching along that edge; the chosen size arrives in the first
// Configure event.
type LayerOptions struct {
	Namespace string
	Anchor    Anchor
	Width     int
	Height    int
	Exclusive int
	Layer     Layer
	MarginX   int
	MarginY   int
}

// Buffer is an opaque handle to a byte range of a Pool, ready to attach.
type Buffer interface {
	// Size reports the pixel dimensions the buffer was created with.
	Size() (w, h int)
}

// Pool is a growable shared-memory arena buffers are carved from. Bytes
// returns the live mapping; a Resize invalidates previously returned slices
// and buffers.
type Pool interface {
	Resize(size int) error
	Bytes() []byte
	Buffer(offset, width, height, stride int) Buffer
	Close() error
}

// LayerSurface is one mapped surface. The configure contract applies: after
// a Configure event the serial must be acknowledged before the next attach,
// and nothing may be attached before the first Configure arrives.
type LayerSurface interface {
	AckConfigure(serial uint32)
	Attach(buf Buffer)
	Damage(x, y, w, h int)
	Commit()
	Destroy()
}

// Conn is a live connection to the display server.
type Conn interface {
	// Outputs lists the displays known at connect time; later arrivals are
	// delivered as OutputAdded events.
	Outputs() []Output

	// CreateLayerSurface requests a new surface on the named output.
	CreateLayerSurface(output string, opts LayerOptions) (LayerSurface, error)

	// NewPool allocates a shared-memory pool of the given size.
	NewPool(size int) (Pool, error)

	// Events returns the stream of compositor events. The channel closes
	// when the connection does.
	Events() <-chan Event

	// Flush pushes buffered requests to the server. Drivers buffer
	// everything; nothing is visible until the tick's final Flush.
	Flush() error

	Close() error
}

// Event is one compositor-to-client notification.
type Event interface{ event() }

// OutputAdded reports a display that appeared after connect.
type OutputAdded struct{ Output Output }

// OutputRemoved reports a display that disappeared. Surfaces on it also
// receive Closed events, but the removal is delivered for bookkeeping
// regardless.
type OutputRemoved struct{ Output Output }

// Configure carries the size the compositor granted a surface. The serial
// must be passed to AckConfigure before the next attach.
type Configure struct {
	Surface LayerSurface
	Serial  uint32
	Width   int
	Height  int
}

// Closed reports that the compositor withdrew a surface; the client must
// destroy it and drop all state keyed to it.
type Closed struct{ Surface LayerSurface }

// PointerEnter reports the pointer entering a surface.
type PointerEnter struct {
	Surface LayerSurface
	X, Y    float64
}

// PointerMotion reports pointer movement inside a surface.
type PointerMotion struct {
	Surface LayerSurface
	X, Y    float64
}

// PointerButton reports a press already mapped to a small button code:
// 0 left, 1 right, 2 middle, 3 back, 4 forward, 5/6 vertical scroll
// up/down, 7/8 horizontal scroll left/right.
type PointerButton struct {
	Surface LayerSurface
	X, Y    float64
	Code    uint32
}

// PointerLeave reports the pointer leaving a surface.
type PointerLeave struct{ Surface LayerSurface }

func (OutputAdded) event()   {}
func (OutputRemoved) event() {}
func (Configure) event()     {}
func (Closed) event()        {}
func (PointerEnter) event()  {}
func (PointerMotion) event() {}
func (PointerButton) event() {}
func (PointerLeave) event()  {}
