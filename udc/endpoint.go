package udc

import "fmt"

// Endpoint transfer types (USB 2.0 Spec Table 9-13).
type EndpointType uint8

const (
	EndpointControl EndpointType = iota
	EndpointIsochronous
	EndpointBulk
	EndpointInterrupt
)

// String returns a human-readable transfer type name.
func (t EndpointType) String() string {
	switch t {
	case EndpointControl:
		return "control"
	case EndpointIsochronous:
		return "isochronous"
	case EndpointBulk:
		return "bulk"
	case EndpointInterrupt:
		return "interrupt"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Address identifies an endpoint by number and direction instead of a raw
// direction-bit-packed byte.
type Address struct {
	Number uint8
	In     bool
}

// Control endpoint pair (address 0).
var (
	ControlOut = Address{Number: 0, In: false}
	ControlIn  = Address{Number: 0, In: true}
)

// ParseAddress converts a bEndpointAddress byte into an Address.
func ParseAddress(b uint8) Address {
	return Address{Number: b & 0x0f, In: b&0x80 != 0}
}

// Byte returns the bEndpointAddress encoding of the address.
func (a Address) Byte() uint8 {
	b := a.Number & 0x0f
	if a.In {
		b |= 0x80
	}
	return b
}

// IsControl reports whether this is one of the control endpoint addresses.
func (a Address) IsControl() bool {
	return a.Number == 0
}

func (a Address) String() string {
	return fmt.Sprintf("0x%02x", a.Byte())
}

// EndpointDescriptor is the minimal endpoint description handed to the
// Controller when an endpoint is opened.
type EndpointDescriptor struct {
	Address       Address
	Type          EndpointType
	MaxPacketSize uint16
	Interval      uint8
}

// endpoint holds the engine-side runtime state of one endpoint. All fields
// are guarded by the owning Device mutex.
type endpoint struct {
	desc   EndpointDescriptor
	halted bool

	// busy is true while a hardware transfer issued for this endpoint has
	// not yet been matched by a completion event.
	busy bool

	// queue is the FIFO of pending transfer buffers; the head is in flight
	// iff busy is set.
	queue []*Buffer
}

func (e *endpoint) push(b *Buffer) {
	e.queue = append(e.queue, b)
}

// peek returns the head buffer without removing it.
func (e *endpoint) peek() *Buffer {
	if len(e.queue) == 0 {
		return nil
	}
	return e.queue[0]
}

// pop removes and returns the head buffer.
func (e *endpoint) pop() *Buffer {
	if len(e.queue) == 0 {
		return nil
	}
	b := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return b
}

// drain removes and returns every queued buffer in order.
func (e *endpoint) drain() []*Buffer {
	out := e.queue
	e.queue = nil
	return out
}
