// Package virtualhost provides an in-process Controller whose bus is driven
// programmatically: the caller plays the host role, sending SETUP packets,
// feeding OUT data and collecting IN payloads. It lets the engine run
// without hardware, for demos and integration tests.
package virtualhost

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Alia5/udcore/udc"
)

// Controller implements udc.Controller over in-memory state.
type Controller struct {
	logger *slog.Logger

	mu        sync.Mutex
	cb        udc.EventCallback
	opened    bool
	connected bool
	speed     udc.Speed
	eps       map[udc.Address]*epState
	inflight  map[udc.Address][]byte

	// armed is signalled on every TransferStart so host-side waiters can
	// re-check for their endpoint.
	armed chan struct{}
}

type epState struct {
	desc    udc.EndpointDescriptor
	stalled bool
}

// New returns a full-speed virtual controller.
func New(logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		logger:   logger,
		speed:    udc.SpeedFull,
		eps:      make(map[udc.Address]*epState),
		inflight: make(map[udc.Address][]byte),
		armed:    make(chan struct{}, 64),
	}
}

// Open registers the event callback and opens the control endpoint pair.
func (c *Controller) Open(cb udc.EventCallback) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		return fmt.Errorf("virtualhost: already open")
	}
	c.cb = cb
	c.opened = true
	for _, addr := range []udc.Address{udc.ControlOut, udc.ControlIn} {
		c.eps[addr] = &epState{desc: udc.EndpointDescriptor{
			Address: addr, Type: udc.EndpointControl, MaxPacketSize: 64,
		}}
	}
	return nil
}

func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = false
	c.connected = false
	c.inflight = make(map[udc.Address][]byte)
	return nil
}

func (c *Controller) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return fmt.Errorf("virtualhost: not open")
	}
	c.connected = true
	return nil
}

func (c *Controller) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *Controller) EndpointOpen(desc udc.EndpointDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return fmt.Errorf("virtualhost: not open")
	}
	c.eps[desc.Address] = &epState{desc: desc}
	return nil
}

func (c *Controller) EndpointClose(addr udc.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.eps, addr)
	delete(c.inflight, addr)
	return nil
}

// TransferStart arms a transfer: the slice is held until the host side
// feeds or collects it.
func (c *Controller) TransferStart(addr udc.Address, data []byte) error {
	c.mu.Lock()
	if !c.opened {
		c.mu.Unlock()
		return fmt.Errorf("virtualhost: not open")
	}
	if _, ok := c.eps[addr]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("virtualhost: ep %s not open", addr)
	}
	if _, busy := c.inflight[addr]; busy {
		c.mu.Unlock()
		return fmt.Errorf("virtualhost: ep %s already has a transfer in flight", addr)
	}
	if data == nil {
		data = []byte{}
	}
	c.inflight[addr] = data
	c.mu.Unlock()

	select {
	case c.armed <- struct{}{}:
	default:
	}
	return nil
}

func (c *Controller) TransferAbort(addr udc.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, addr)
	return nil
}

func (c *Controller) Stall(addr udc.Address) error {
	return c.setStall(addr, true)
}

func (c *Controller) ClearStall(addr udc.Address) error {
	return c.setStall(addr, false)
}

func (c *Controller) setStall(addr udc.Address, stalled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ep, ok := c.eps[addr]
	if !ok {
		return fmt.Errorf("virtualhost: ep %s not open", addr)
	}
	ep.stalled = stalled
	return nil
}

func (c *Controller) RemoteWakeup() error {
	c.logger.Debug("remote wakeup requested")
	return nil
}

func (c *Controller) Speed() udc.Speed {
	return c.speed
}

// Stalled reports whether the endpoint is currently stalled.
func (c *Controller) Stalled(addr udc.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ep, ok := c.eps[addr]
	return ok && ep.stalled
}

func (c *Controller) raise(ev udc.ControllerEvent) {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// Host-side bus operations.

// Reset raises a bus reset.
func (c *Controller) Reset() {
	c.raise(udc.ControllerEvent{Kind: udc.EventBusReset})
}

// SetVBus raises vbus-ready or vbus-removed.
func (c *Controller) SetVBus(ready bool) {
	kind := udc.EventVBusRemoved
	if ready {
		kind = udc.EventVBusReady
	}
	c.raise(udc.ControllerEvent{Kind: kind})
}

// Suspend and Resume raise the respective bus events.
func (c *Controller) Suspend() {
	c.raise(udc.ControllerEvent{Kind: udc.EventSuspend})
}

func (c *Controller) Resume() {
	c.raise(udc.ControllerEvent{Kind: udc.EventResume})
}

// FrameTick raises a start-of-frame event.
func (c *Controller) FrameTick() {
	c.raise(udc.ControllerEvent{Kind: udc.EventSOF})
}

// SendSetup delivers a SETUP packet to the device.
func (c *Controller) SendSetup(pkt udc.SetupPacket) {
	ev := udc.ControllerEvent{Kind: udc.EventSetupReceived}
	pkt.MarshalTo(ev.Setup[:])
	c.raise(ev)
}

// takeArmed waits until a transfer is armed on addr and removes it.
func (c *Controller) takeArmed(addr udc.Address, timeout time.Duration) ([]byte, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		c.mu.Lock()
		if data, ok := c.inflight[addr]; ok {
			delete(c.inflight, addr)
			c.mu.Unlock()
			return data, nil
		}
		c.mu.Unlock()

		select {
		case <-c.armed:
		case <-deadline.C:
			return nil, fmt.Errorf("virtualhost: no transfer armed on ep %s within %s", addr, timeout)
		}
	}
}

// FeedOut plays the host sending data on an OUT endpoint: it waits for the
// device to arm a receive window, fills it and raises the completion.
// Returns the number of bytes accepted.
func (c *Controller) FeedOut(addr udc.Address, data []byte, timeout time.Duration) (int, error) {
	window, err := c.takeArmed(addr, timeout)
	if err != nil {
		return 0, err
	}

	n := copy(window, data)
	c.raise(udc.ControllerEvent{
		Kind:     udc.EventTransferComplete,
		Endpoint: addr,
		Result:   udc.ResultSuccess,
		Length:   n,
	})
	return n, nil
}

// CollectIn plays the host reading from an IN endpoint: it waits for the
// device to arm a payload, raises the completion and returns a copy of the
// data. A zero-length result is the device's status or ZLP packet.
func (c *Controller) CollectIn(addr udc.Address, timeout time.Duration) ([]byte, error) {
	payload, err := c.takeArmed(addr, timeout)
	if err != nil {
		return nil, err
	}

	out := append([]byte(nil), payload...)
	c.raise(udc.ControllerEvent{
		Kind:     udc.EventTransferComplete,
		Endpoint: addr,
		Result:   udc.ResultSuccess,
		Length:   len(out),
	})
	return out, nil
}

// FailNext completes the currently armed transfer on addr with an error,
// playing a wire-level failure.
func (c *Controller) FailNext(addr udc.Address, timeout time.Duration) error {
	if _, err := c.takeArmed(addr, timeout); err != nil {
		return err
	}
	c.raise(udc.ControllerEvent{
		Kind:     udc.EventTransferComplete,
		Endpoint: addr,
		Result:   udc.ResultError,
	})
	return nil
}
