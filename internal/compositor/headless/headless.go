// Package headless implements the compositor boundary with no display
// server behind it. Outputs are fabricated, every surface request is
// granted, and attaches, damage, and commits are recorded so tests and
// offline rendering can inspect exactly what would have been presented.
package headless

import (
	"fmt"
	"image"
	"sync"

	"wlbar/internal/compositor"
)

// Conn is an in-process compositor connection.
type Conn struct {
	mu       sync.Mutex
	outputs  []compositor.Output
	events   chan compositor.Event
	serial   uint32
	surfaces []*Surface
	flushes  int
	closed   bool
}

// Option configures New.
type Option func(*Conn)

// WithOutput adds a fabricated output. Without options New provides a
// single 1920x1080 output named HEADLESS-1.
func WithOutput(out compositor.Output) Option {
	return func(c *Conn) { c.outputs = append(c.outputs, out) }
}

// New opens a headless connection.
func New(opts ...Option) *Conn {
	c := &Conn{events: make(chan compositor.Event, 64)}
	for _, o := range opts {
		o(c)
	}
	if len(c.outputs) == 0 {
		c.outputs = []compositor.Output{{Name: "HEADLESS-1", Width: 1920, Height: 1080, Scale: 1}}
	}
	return c
}

func (c *Conn) Outputs() []compositor.Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]compositor.Output(nil), c.outputs...)
}

// CreateLayerSurface grants the request immediately: the initial Configure
// event is queued before the call returns, with zero dimensions stretched
// to the output size.
func (c *Conn) CreateLayerSurface(output string, opts compositor.LayerOptions) (compositor.LayerSurface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, compositor.ErrClosed
	}
	out, ok := c.findOutput(output)
	if !ok {
		return nil, fmt.Errorf("headless: no output %q", output)
	}
	s := &Surface{conn: c, output: out, opts: opts}
	c.surfaces = append(c.surfaces, s)
	c.configureLocked(s, opts.Width, opts.Height)
	return s, nil
}

func (c *Conn) findOutput(name string) (compositor.Output, bool) {
	if name == "" && len(c.outputs) > 0 {
		return c.outputs[0], true
	}
	for _, out := range c.outputs {
		if out.Name == name {
			return out, true
		}
	}
	return compositor.Output{}, false
}

func (c *Conn) configureLocked(s *Surface, w, h int) {
	if w == 0 {
		w = s.output.Width
	}
	if h == 0 {
		h = s.output.Height
	}
	c.serial++
	s.mu.Lock()
	s.pendingAck = c.serial
	s.width, s.height = w, h
	s.mu.Unlock()
	c.events <- compositor.Configure{Surface: s, Serial: c.serial, Width: w, Height: h}
}

// Reconfigure queues a new Configure event for s with the given size, as a
// compositor does when an output or anchor region changes.
func (c *Conn) Reconfigure(s compositor.LayerSurface, w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configureLocked(s.(*Surface), w, h)
}

// CloseSurface queues a Closed event for s.
func (c *Conn) CloseSurface(s compositor.LayerSurface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events <- compositor.Closed{Surface: s}
}

// AddOutput announces an output that appears after connect.
func (c *Conn) AddOutput(out compositor.Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs = append(c.outputs, out)
	c.events <- compositor.OutputAdded{Output: out}
}

// RemoveOutput withdraws a previously announced output. Surfaces created
// on it receive Closed events first, then the OutputRemoved itself.
func (c *Conn) RemoveOutput(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, out := range c.outputs {
		if out.Name != name {
			continue
		}
		c.outputs = append(c.outputs[:i], c.outputs[i+1:]...)
		for _, s := range c.surfaces {
			if s.output.Name == name && !s.Destroyed() {
				c.events <- compositor.Closed{Surface: s}
			}
		}
		c.events <- compositor.OutputRemoved{Output: out}
		return
	}
}

// Inject queues an arbitrary event, letting tests drive pointer traffic.
func (c *Conn) Inject(ev compositor.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events <- ev
}

func (c *Conn) NewPool(size int) (compositor.Pool, error) {
	return compositor.NewShmPool(size)
}

// Surfaces returns every surface created on the connection, in creation
// order, destroyed ones included.
func (c *Conn) Surfaces() []*Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Surface(nil), c.surfaces...)
}

func (c *Conn) Events() <-chan compositor.Event { return c.events }

func (c *Conn) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return compositor.ErrClosed
	}
	c.flushes++
	return nil
}

// Flushes reports how many times Flush has been called.
func (c *Conn) Flushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.events)
	return nil
}

// Surface is one headless layer surface. It enforces the configure
// contract the way a display server would: attaching before the initial
// Configure, or with one unacknowledged, is a protocol error and panics.
type Surface struct {
	conn   *Conn
	output compositor.Output
	opts   compositor.LayerOptions

	mu          sync.Mutex
	width       int
	height      int
	configured  bool
	pendingAck  uint32
	acked       []uint32
	pending     compositor.Buffer
	damage      []image.Rectangle
	commits     int
	shown       []byte
	shownW      int
	shownH      int
	shownStride int
	destroyed   bool
}

func (s *Surface) AckConfigure(serial uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingAck == serial {
		s.pendingAck = 0
	}
	s.acked = append(s.acked, serial)
	s.configured = true
}

func (s *Surface) Attach(buf compositor.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkAlive()
	if !s.configured {
		panic("headless: attach before initial configure")
	}
	if s.pendingAck != 0 {
		panic("headless: attach with unacknowledged configure")
	}
	s.pending = buf
}

func (s *Surface) Damage(x, y, w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkAlive()
	s.damage = append(s.damage, image.Rect(x, y, x+w, y+h))
}

// Commit latches the pending buffer as shown content, snapshotting its
// pixels so later pool reuse cannot alter what was presented.
func (s *Surface) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkAlive()
	s.commits++
	s.damage = nil
	if s.pending == nil {
		return
	}
	if shm, ok := s.pending.(*compositor.ShmBuffer); ok {
		s.shown = append(s.shown[:0], shm.Bytes()...)
		s.shownW, s.shownH, s.shownStride = shm.Width, shm.Height, shm.Stride
	}
	s.pending = nil
}

func (s *Surface) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
}

func (s *Surface) checkAlive() {
	if s.destroyed {
		panic("headless: use of destroyed surface")
	}
}

// Size reports the size granted by the latest configure.
func (s *Surface) Size() (w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Commits reports how many commits the surface has received.
func (s *Surface) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Acked returns the configure serials acknowledged so far.
func (s *Surface) Acked() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.acked...)
}

// Destroyed reports whether Destroy has been called.
func (s *Surface) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Options returns the options the surface was created with.
func (s *Surface) Options() compositor.LayerOptions { return s.opts }

// Output returns the output the surface was created on.
func (s *Surface) Output() compositor.Output { return s.output }

// Image returns the shown content as an RGBA image, or nil before the
// first commit with a buffer.
func (s *Surface) Image() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shown == nil {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, s.shownW, s.shownH))
	for y := 0; y < s.shownH; y++ {
		src := s.shown[y*s.shownStride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < s.shownW; x++ {
			dst[x*4+0] = src[x*4+2]
			dst[x*4+1] = src[x*4+1]
			dst[x*4+2] = src[x*4+0]
			dst[x*4+3] = src[x*4+3]
		}
	}
	return img
}
