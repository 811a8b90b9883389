//go:build linux

package compositor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// memfdPool backs a Pool with an anonymous memfd mapping, the same file a
// wire driver passes to the compositor over the socket.
type memfdPool struct {
	fd   int
	data []byte
}

// NewShmPool allocates a shared-memory pool of size bytes.
func NewShmPool(size int) (Pool, error) {
	fd, err := unix.MemfdCreate("wlbar-pool", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	p := &memfdPool{fd: fd}
	if err := p.Resize(size); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return p, nil
}

// Resize grows the pool to at least size bytes. Pools never shrink; a size
// at or below the current mapping is a no-op.
func (p *memfdPool) Resize(size int) error {
	if size <= len(p.data) {
		return nil
	}
	if p.data != nil {
		if err := unix.Munmap(p.data); err != nil {
			return fmt.Errorf("munmap: %w", err)
		}
		p.data = nil
	}
	if err := unix.Ftruncate(p.fd, int64(size)); err != nil {
		return fmt.Errorf("ftruncate: %w", err)
	}
	data, err := unix.Mmap(p.fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	p.data = data
	return nil
}

func (p *memfdPool) Bytes() []byte { return p.data }

func (p *memfdPool) Buffer(offset, width, height, stride int) Buffer {
	return &ShmBuffer{Pool: p, Offset: offset, Width: width, Height: height, Stride: stride}
}

// Fd exposes the backing file descriptor for drivers that send the pool to
// a display server.
func (p *memfdPool) Fd() int { return p.fd }

func (p *memfdPool) Close() error {
	var first error
	if p.data != nil {
		first = unix.Munmap(p.data)
		p.data = nil
	}
	if p.fd >= 0 {
		if err := unix.Close(p.fd); err != nil && first == nil {
			first = err
		}
		p.fd = -1
	}
	return first
}
