package udc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferExtend(t *testing.T) {
	b := NewBuffer(8)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 8, b.Cap())
	assert.Len(t, b.Room(), 8)

	copy(b.Room(), []byte{1, 2, 3})
	b.Extend(3)
	assert.Equal(t, []byte{1, 2, 3}, b.Bytes())
	assert.Len(t, b.Room(), 5)

	// Extend clamps to capacity and ignores negative growth.
	b.Extend(100)
	assert.Equal(t, 8, b.Len())
	b.Extend(-1)
	assert.Equal(t, 8, b.Len())
}

func TestBufferAppend(t *testing.T) {
	b := NewBuffer(SetupPacketSize)
	b.Append([]byte{0x80, 0x06})
	assert.Equal(t, []byte{0x80, 0x06}, b.Bytes())
}

func TestBufferFlags(t *testing.T) {
	b := NewBufferFrom(make([]byte, 64))
	assert.Equal(t, 64, b.Len())
	assert.False(t, b.IsSetup())
	assert.False(t, b.NeedsZLP())

	b.MarkSetup()
	b.SetZLP()
	assert.True(t, b.IsSetup())
	assert.True(t, b.NeedsZLP())

	b.clearZLP()
	assert.False(t, b.NeedsZLP())
}

func TestEndpointQueueFIFO(t *testing.T) {
	e := &endpoint{}
	assert.Nil(t, e.peek())
	assert.Nil(t, e.pop())

	a, b := NewBuffer(1), NewBuffer(2)
	e.push(a)
	e.push(b)

	assert.Same(t, a, e.peek())
	assert.Same(t, a, e.pop())
	assert.Same(t, b, e.pop())
	assert.Nil(t, e.pop())

	e.push(a)
	e.push(b)
	drained := e.drain()
	assert.Equal(t, []*Buffer{a, b}, drained)
	assert.Nil(t, e.peek())
}
