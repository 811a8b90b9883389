package compositor

// ShmBuffer is the Buffer implementation shared by the pool backends.
// Drivers reach the backing pixels through Bytes at commit time; the range
// stays valid until the pool is resized or closed.
type ShmBuffer struct {
	Pool   Pool
	Offset int
	Width  int
	Height int
	Stride int
}

// Size reports the pixel dimensions the buffer was created with.
func (b *ShmBuffer) Size() (w, h int) { return b.Width, b.Height }

// Bytes returns the buffer's window into the pool mapping.
func (b *ShmBuffer) Bytes() []byte {
	return b.Pool.Bytes()[b.Offset : b.Offset+b.Height*b.Stride]
}
