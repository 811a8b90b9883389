package compositor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolGrowOnly(t *testing.T) {
	p, err := NewShmPool(64)
	require.NoError(t, err)
	defer p.Close()

	assert.Len(t, p.Bytes(), 64)

	require.NoError(t, p.Resize(128))
	assert.Len(t, p.Bytes(), 128)

	require.NoError(t, p.Resize(32))
	assert.Len(t, p.Bytes(), 128, "pools never shrink")
}

func TestPoolBytesWritable(t *testing.T) {
	p, err := NewShmPool(16)
	require.NoError(t, err)
	defer p.Close()

	b := p.Bytes()
	for i := range b {
		b[i] = byte(i)
	}
	assert.Equal(t, byte(5), p.Bytes()[5])
}

func TestBufferWindowsPool(t *testing.T) {
	p, err := NewShmPool(4 * 4 * 4 * 2)
	require.NoError(t, err)
	defer p.Close()

	for i := range p.Bytes() {
		p.Bytes()[i] = byte(i % 251)
	}

	buf := p.Buffer(4*4*4, 4, 4, 4*4)
	w, h := buf.Size()
	assert.Equal(t, 4, w)
	assert.Equal(t, 4, h)

	shm, ok := buf.(*ShmBuffer)
	require.True(t, ok)
	window := shm.Bytes()
	require.Len(t, window, 4*4*4)
	assert.Equal(t, p.Bytes()[4*4*4], window[0])
	assert.Equal(t, p.Bytes()[4*4*4*2-1], window[len(window)-1])
}
