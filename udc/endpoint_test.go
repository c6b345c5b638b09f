package udc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressByteRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		raw  uint8
		want Address
	}{
		{name: "control out", raw: 0x00, want: ControlOut},
		{name: "control in", raw: 0x80, want: ControlIn},
		{name: "bulk out 1", raw: 0x01, want: Address{Number: 1}},
		{name: "bulk in 1", raw: 0x81, want: Address{Number: 1, In: true}},
		{name: "interrupt in 15", raw: 0x8f, want: Address{Number: 15, In: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := ParseAddress(tt.raw)
			assert.Equal(t, tt.want, addr)
			assert.Equal(t, tt.raw, addr.Byte())
		})
	}
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, "0x81", Address{Number: 1, In: true}.String())
	assert.Equal(t, "0x02", Address{Number: 2}.String())
}

func TestAddressIsControl(t *testing.T) {
	assert.True(t, ControlOut.IsControl())
	assert.True(t, ControlIn.IsControl())
	assert.False(t, Address{Number: 1, In: true}.IsControl())
}

func TestEndpointTypeString(t *testing.T) {
	assert.Equal(t, "control", EndpointControl.String())
	assert.Equal(t, "bulk", EndpointBulk.String())
	assert.Equal(t, "interrupt", EndpointInterrupt.String())
	assert.Equal(t, "isochronous", EndpointIsochronous.String())
}

// A status-stage IN request racing an abort can find the control IN queue
// already empty; the engine treats that as a defined no-op.
func TestStatusInWithEmptyQueueIsIgnored(t *testing.T) {
	ctrl := &nopController{}
	dev := New(ctrl, &nopNotifier{}, nopAllocator{}, Config{})

	err := dev.EnableEndpoint(EndpointDescriptor{Address: ControlIn, Type: EndpointControl, MaxPacketSize: 64})
	assert.NoError(t, err)

	dev.handleStatusIn()
	assert.Zero(t, ctrl.starts)
}

type nopController struct {
	starts int
}

func (c *nopController) Open(EventCallback) error                 { return nil }
func (c *nopController) Close() error                             { return nil }
func (c *nopController) Connect() error                           { return nil }
func (c *nopController) Disconnect() error                        { return nil }
func (c *nopController) EndpointOpen(EndpointDescriptor) error    { return nil }
func (c *nopController) EndpointClose(Address) error              { return nil }
func (c *nopController) TransferStart(Address, []byte) error      { c.starts++; return nil }
func (c *nopController) TransferAbort(Address) error              { return nil }
func (c *nopController) Stall(Address) error                      { return nil }
func (c *nopController) ClearStall(Address) error                 { return nil }
func (c *nopController) RemoteWakeup() error                      { return nil }
func (c *nopController) Speed() Speed                             { return SpeedFull }

type nopNotifier struct{}

func (nopNotifier) BusEvent(BusEventKind)                 {}
func (nopNotifier) Transfer(Address, *Buffer, Status)     {}

type nopAllocator struct{}

func (nopAllocator) Alloc(_ Address, size int) (*Buffer, error) {
	return NewBuffer(size), nil
}
