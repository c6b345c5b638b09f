// Package vendorecho implements a minimal upper stack for the transfer
// engine: a vendor-request echo store reachable over the default control
// pipe, plus a bulk loopback pair on endpoint 1.
package vendorecho

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Alia5/udcore/udc"
)

// Vendor requests understood by the device.
const (
	ReqEchoWrite uint8 = 0x01 // host->device, stores the data stage payload
	ReqEchoRead  uint8 = 0x02 // device->host, returns the stored payload
	ReqPing      uint8 = 0x03 // no data stage, bumps a counter
)

const maxPacket = 64

// BulkOut and BulkIn form the loopback pair.
var (
	BulkOut = udc.Address{Number: 1}
	BulkIn  = udc.Address{Number: 1, In: true}
)

// Device is a Notifier/Allocator pair backed by an in-memory echo store.
type Device struct {
	logger *slog.Logger

	mu     sync.Mutex
	engine *udc.Device
	stored []byte
	pings  int
}

func New(logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{logger: logger}
}

// Bind attaches the device to an engine and opens the loopback pair with a
// receive buffer already queued. Call after the engine is attached.
func (d *Device) Bind(engine *udc.Device) error {
	d.mu.Lock()
	d.engine = engine
	d.mu.Unlock()

	for _, desc := range []udc.EndpointDescriptor{
		{Address: BulkOut, Type: udc.EndpointBulk, MaxPacketSize: maxPacket},
		{Address: BulkIn, Type: udc.EndpointBulk, MaxPacketSize: maxPacket},
	} {
		if err := engine.EnableEndpoint(desc); err != nil {
			return fmt.Errorf("enable ep %s: %w", desc.Address, err)
		}
	}
	return engine.Enqueue(BulkOut, udc.NewBuffer(maxPacket))
}

// Stored returns a copy of the last payload written via ReqEchoWrite.
func (d *Device) Stored() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.stored...)
}

// Pings returns how many ReqPing requests were handled.
func (d *Device) Pings() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pings
}

func (d *Device) Alloc(_ udc.Address, size int) (*udc.Buffer, error) {
	return udc.NewBuffer(size), nil
}

func (d *Device) BusEvent(kind udc.BusEventKind) {
	d.logger.Info("bus event", "kind", kind)
}

func (d *Device) Transfer(addr udc.Address, buf *udc.Buffer, status udc.Status) {
	if status != udc.StatusOK {
		d.logger.Warn("transfer finished abnormally", "ep", addr, "status", status)
		return
	}

	if buf.IsSetup() {
		var pkt udc.SetupPacket
		if !udc.ParseSetupPacket(buf.Bytes(), &pkt) {
			d.logger.Error("malformed setup packet", "len", buf.Len())
			return
		}
		d.handleSetup(pkt)
		return
	}

	switch {
	case addr == udc.ControlOut && buf.Len() > 0:
		d.mu.Lock()
		d.stored = append([]byte(nil), buf.Bytes()...)
		engine := d.engine
		d.mu.Unlock()
		d.logger.Debug("echo payload stored", "len", buf.Len())
		// Data accepted, arm the status stage.
		if err := engine.Enqueue(udc.ControlIn, udc.NewBuffer(0)); err != nil {
			d.logger.Error("queue status stage", "err", err)
		}

	case addr.IsControl():
		d.logger.Debug("control stage complete", "ep", addr, "len", buf.Len())

	case addr == BulkOut:
		d.loopback(buf)

	case addr == BulkIn:
		d.logger.Debug("loopback reply sent", "len", buf.Len())

	default:
		d.logger.Warn("transfer on unexpected endpoint", "ep", addr)
	}
}

func (d *Device) handleSetup(pkt udc.SetupPacket) {
	if pkt.RequestType&0x60 != 0x40 {
		d.logger.Warn("unsupported request type", "bmRequestType", fmt.Sprintf("0x%02x", pkt.RequestType))
		return
	}

	d.mu.Lock()
	engine := d.engine
	if pkt.Request == ReqPing {
		d.pings++
	}
	d.mu.Unlock()

	switch {
	case pkt.Length == 0:
		// ReqPing and degenerate writes have no data stage; answer with
		// a zero-length status.
		if err := engine.Enqueue(udc.ControlIn, udc.NewBuffer(0)); err != nil {
			d.logger.Error("queue status stage", "err", err)
		}

	case pkt.Request == ReqEchoRead && pkt.DirectionIn():
		d.mu.Lock()
		payload := append([]byte(nil), d.stored...)
		d.mu.Unlock()
		if len(payload) > int(pkt.Length) {
			payload = payload[:pkt.Length]
		}
		buf := udc.NewBufferFrom(payload)
		if len(payload) > 0 && len(payload)%maxPacket == 0 && len(payload) < int(pkt.Length) {
			buf.SetZLP()
		}
		if err := engine.Enqueue(udc.ControlIn, buf); err != nil {
			d.logger.Error("queue echo reply", "err", err)
		}

	case pkt.Request == ReqEchoWrite && !pkt.DirectionIn():
		// The engine armed the data stage already; the payload arrives
		// through Transfer on the control OUT endpoint.

	default:
		d.logger.Warn("unknown vendor request", "bRequest", pkt.Request)
	}
}

func (d *Device) loopback(buf *udc.Buffer) {
	d.mu.Lock()
	engine := d.engine
	d.mu.Unlock()

	reply := udc.NewBufferFrom(append([]byte(nil), buf.Bytes()...))
	if reply.Len() > 0 && reply.Len()%maxPacket == 0 {
		reply.SetZLP()
	}
	if err := engine.Enqueue(BulkIn, reply); err != nil {
		d.logger.Error("queue loopback reply", "err", err)
	}
	// Keep a receive window open for the next packet.
	if err := engine.Enqueue(BulkOut, udc.NewBuffer(maxPacket)); err != nil {
		d.logger.Error("rearm loopback receive", "err", err)
	}
}
