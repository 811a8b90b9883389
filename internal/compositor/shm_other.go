//go:build !linux

package compositor

// heapPool backs a Pool with ordinary memory on platforms without memfd.
// Wire drivers cannot hand it to a display server; the headless driver has
// no server to hand it to.
type heapPool struct {
	data []byte
}

// NewShmPool allocates a pool of size bytes.
func NewShmPool(size int) (Pool, error) {
	return &heapPool{data: make([]byte, size)}, nil
}

// Resize grows the pool to at least size bytes, preserving contents. Pools
// never shrink.
func (p *heapPool) Resize(size int) error {
	if size <= len(p.data) {
		return nil
	}
	grown := make([]byte, size)
	copy(grown, p.data)
	p.data = grown
	return nil
}

func (p *heapPool) Bytes() []byte { return p.data }

func (p *heapPool) Buffer(offset, width, height, stride int) Buffer {
	return &ShmBuffer{Pool: p, Offset: offset, Width: width, Height: height, Stride: stride}
}

func (p *heapPool) Close() error {
	p.data = nil
	return nil
}
