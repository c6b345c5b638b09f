package udc

// Buffer is a transfer buffer with a fixed capacity and a current length.
// Buffers are created by the Allocator the upper stack provides, held
// exclusively by the engine while queued or in flight, and handed back to the
// Notifier exactly once: on completion, error or abort.
type Buffer struct {
	data  []byte // len() is the current content, cap() the capacity
	setup bool
	zlp   bool
}

// NewBuffer returns an empty buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// NewBufferFrom wraps data as a full buffer, typically the payload of an IN
// transfer.
func NewBufferFrom(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the current content.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the current content length.
func (b *Buffer) Len() int { return len(b.data) }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Room returns the unused tail of the buffer, the window an OUT transfer
// receives into.
func (b *Buffer) Room() []byte {
	return b.data[len(b.data):cap(b.data)]
}

// Extend grows the content length by n after data has been received into
// Room. It is clamped to the capacity.
func (b *Buffer) Extend(n int) {
	if n < 0 {
		return
	}
	if len(b.data)+n > cap(b.data) {
		n = cap(b.data) - len(b.data)
	}
	b.data = b.data[:len(b.data)+n]
}

// Append copies p into the buffer, growing the content length.
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// MarkSetup flags the buffer as carrying a SETUP packet.
func (b *Buffer) MarkSetup() { b.setup = true }

// IsSetup reports whether the buffer carries a SETUP packet.
func (b *Buffer) IsSetup() bool { return b.setup }

// SetZLP flags the buffer as requiring zero-length-packet termination. The
// upper stack sets it when an IN transfer length is an exact non-zero
// multiple of the endpoint's max packet size.
func (b *Buffer) SetZLP() { b.zlp = true }

// NeedsZLP reports whether ZLP termination is still pending.
func (b *Buffer) NeedsZLP() bool { return b.zlp }

func (b *Buffer) clearZLP() { b.zlp = false }

// Allocator provides transfer buffers for the control endpoint. The upper
// stack supplies it so buffer ownership and pooling stay above the engine.
type Allocator interface {
	// Alloc returns a buffer with at least size bytes of capacity for the
	// given endpoint. An error means the allocation failed and is reported
	// upstream as an out-of-memory condition.
	Alloc(addr Address, size int) (*Buffer, error)
}
