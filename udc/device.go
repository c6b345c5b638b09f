package udc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// BusEventKind identifies bus-level events forwarded to the Notifier.
type BusEventKind uint8

const (
	BusReset BusEventKind = iota
	BusVBusReady
	BusVBusRemoved
	BusSuspend
	BusResume
	BusSOF
)

func (k BusEventKind) String() string {
	switch k {
	case BusReset:
		return "reset"
	case BusVBusReady:
		return "vbus-ready"
	case BusVBusRemoved:
		return "vbus-removed"
	case BusSuspend:
		return "suspend"
	case BusResume:
		return "resume"
	case BusSOF:
		return "sof"
	default:
		return "unknown"
	}
}

// Notifier is the upper USB stack. BusEvent is called synchronously from the
// controller callback context and must not block. Transfer delivers the
// single terminal notification for a buffer; ownership passes to the
// Notifier with the call.
type Notifier interface {
	BusEvent(kind BusEventKind)
	Transfer(addr Address, buf *Buffer, status Status)
}

// Tracer receives raw bus traffic for debugging. in is true for host-to-
// device data.
type Tracer interface {
	Log(in bool, data []byte)
}

// Config carries Device construction options.
type Config struct {
	// QueueDepth bounds the event queue; DefaultQueueDepth when zero.
	QueueDepth int
	// ControlMaxPacket is the EP0 max packet size; 64 when zero.
	ControlMaxPacket uint16
	// Logger for engine diagnostics; slog.Default when nil.
	Logger *slog.Logger
	// Trace optionally receives raw setup and data payloads.
	Trace Tracer
}

// DefaultQueueDepth is the event queue capacity used when Config leaves it
// unset.
const DefaultQueueDepth = 16

// note is a pending upstream notification, collected under the device mutex
// and emitted after it is released.
type note struct {
	addr   Address
	buf    *Buffer
	status Status
}

// Device is the engine instance for one controller: event queue, dispatch
// loop, per-endpoint transfer queues and the EP0 control state machine.
type Device struct {
	ctrl     Controller
	notifier Notifier
	alloc    Allocator
	logger   *slog.Logger
	trace    Tracer
	queue    *eventQueue
	ctrlMPS  uint16

	// mu guards the endpoint map and control-stage state. The dispatch
	// loop takes it per event; DequeueAll takes it from arbitrary
	// goroutines.
	mu    sync.Mutex
	eps   map[Address]*endpoint
	stage Stage
	setup SetupPacket

	attached bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a Device for the given controller, upper stack and allocator.
func New(ctrl Controller, notifier Notifier, alloc Allocator, cfg Config) *Device {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	mps := cfg.ControlMaxPacket
	if mps == 0 {
		mps = 64
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		ctrl:     ctrl,
		notifier: notifier,
		alloc:    alloc,
		logger:   logger,
		trace:    cfg.Trace,
		queue:    newEventQueue(depth),
		ctrlMPS:  mps,
		eps:      make(map[Address]*endpoint),
		stage:    StageSetup,
		done:     make(chan struct{}),
	}
}

// Attach opens the controller, enables the control endpoint pair and starts
// the dispatch loop. The loop runs until Detach or ctx cancellation.
func (d *Device) Attach(ctx context.Context) error {
	if d.attached {
		return ErrAttached
	}

	if err := d.ctrl.Open(d.controllerEvent); err != nil {
		return fmt.Errorf("open controller: %w", err)
	}

	for _, addr := range []Address{ControlOut, ControlIn} {
		if err := d.EnableEndpoint(EndpointDescriptor{
			Address:       addr,
			Type:          EndpointControl,
			MaxPacketSize: d.ctrlMPS,
		}); err != nil {
			return fmt.Errorf("enable control endpoint %s: %w", addr, err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.attached = true
	go d.dispatch(loopCtx)

	d.logger.Debug("device attached", "speed", d.Speed())
	return nil
}

// Detach stops the dispatch loop, disables the control endpoints and closes
// the controller.
func (d *Device) Detach() error {
	if !d.attached {
		return ErrDetached
	}

	d.cancel()
	<-d.done
	d.attached = false

	for _, addr := range []Address{ControlOut, ControlIn} {
		if err := d.DisableEndpoint(addr); err != nil {
			d.logger.Error("disable control endpoint failed", "ep", addr, "error", err)
		}
	}

	if err := d.ctrl.Close(); err != nil {
		return fmt.Errorf("close controller: %w", err)
	}

	d.logger.Debug("device detached")
	return nil
}

// Connect attaches the device to the bus.
func (d *Device) Connect() error {
	if err := d.ctrl.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	d.logger.Debug("device enabled")
	return nil
}

// Disconnect detaches the device from the bus.
func (d *Device) Disconnect() error {
	if err := d.ctrl.Disconnect(); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	d.logger.Debug("device disabled")
	return nil
}

// RemoteWakeup signals resume to a suspended host.
func (d *Device) RemoteWakeup() error {
	if err := d.ctrl.RemoteWakeup(); err != nil {
		return fmt.Errorf("remote wakeup: %w", err)
	}
	d.logger.Debug("remote wakeup")
	return nil
}

// Speed returns the negotiated bus speed.
func (d *Device) Speed() Speed {
	return d.ctrl.Speed()
}

// EnableEndpoint registers endpoint state and opens the hardware endpoint.
// The control endpoint pair is state-only; the controller keeps EP0 open for
// its lifetime.
func (d *Device) EnableEndpoint(desc EndpointDescriptor) error {
	if !desc.Address.IsControl() {
		if err := d.ctrl.EndpointOpen(desc); err != nil {
			return fmt.Errorf("endpoint open %s: %w", desc.Address, err)
		}
	}

	d.mu.Lock()
	d.eps[desc.Address] = &endpoint{desc: desc}
	d.mu.Unlock()

	d.logger.Debug("enable ep", "ep", desc.Address, "type", desc.Type, "mps", desc.MaxPacketSize)
	return nil
}

// DisableEndpoint closes the hardware endpoint and removes its state. Any
// buffers still queued are returned upstream as aborted.
func (d *Device) DisableEndpoint(addr Address) error {
	d.mu.Lock()
	ep, ok := d.eps[addr]
	if !ok {
		d.mu.Unlock()
		return ErrNoEndpoint
	}
	bufs := ep.drain()
	ep.busy = false
	delete(d.eps, addr)
	d.mu.Unlock()

	for _, b := range bufs {
		d.notifier.Transfer(addr, b, StatusAborted)
	}

	if !addr.IsControl() {
		if err := d.ctrl.EndpointClose(addr); err != nil {
			return fmt.Errorf("endpoint close %s: %w", addr, err)
		}
	}

	d.logger.Debug("disable ep", "ep", addr)
	return nil
}

// SetHalt stalls the endpoint.
func (d *Device) SetHalt(addr Address) error {
	d.mu.Lock()
	ep, ok := d.eps[addr]
	d.mu.Unlock()
	if !ok {
		return ErrNoEndpoint
	}

	if err := d.ctrl.Stall(addr); err != nil {
		return fmt.Errorf("set halt %s: %w", addr, err)
	}

	d.mu.Lock()
	ep.halted = true
	d.mu.Unlock()

	d.logger.Debug("set halt", "ep", addr)
	return nil
}

// ClearHalt clears a stall condition on the endpoint.
func (d *Device) ClearHalt(addr Address) error {
	d.mu.Lock()
	ep, ok := d.eps[addr]
	d.mu.Unlock()
	if !ok {
		return ErrNoEndpoint
	}

	if err := d.ctrl.ClearStall(addr); err != nil {
		return fmt.Errorf("clear halt %s: %w", addr, err)
	}

	d.mu.Lock()
	ep.halted = false
	d.mu.Unlock()

	d.logger.Debug("clear halt", "ep", addr)
	return nil
}

// Enqueue appends buf to the endpoint's transfer queue and posts the event
// that will start it. A zero-length buffer on the control IN endpoint is the
// request to perform the status-stage IN rather than a data transfer.
func (d *Device) Enqueue(addr Address, buf *Buffer) error {
	d.mu.Lock()
	ep, ok := d.eps[addr]
	if !ok {
		d.mu.Unlock()
		return ErrNoEndpoint
	}
	ep.push(buf)
	halted := ep.halted
	d.mu.Unlock()

	ev := event{kind: eventStartTransfer, ep: addr}
	if addr == ControlIn && buf.Len() == 0 {
		ev.kind = eventControlStatusIn
	}

	if err := d.queue.put(ev); err != nil {
		d.logger.Error("event queue full", "ep", addr)
		return err
	}

	if halted {
		d.logger.Debug("ep halted", "ep", addr)
	}
	return nil
}

// DequeueAll removes every queued buffer on the endpoint, reports each as
// aborted, aborts any in-flight hardware transfer and clears busy. It may be
// called from any goroutine; when it returns, all affected buffers have been
// handed back. It is idempotent: on an empty queue only the controller abort
// is performed.
func (d *Device) DequeueAll(addr Address) error {
	d.mu.Lock()
	ep, ok := d.eps[addr]
	if !ok {
		d.mu.Unlock()
		return ErrNoEndpoint
	}
	bufs := ep.drain()
	abortErr := d.ctrl.TransferAbort(addr)
	ep.busy = false
	d.mu.Unlock()

	for _, b := range bufs {
		d.notifier.Transfer(addr, b, StatusAborted)
	}

	if abortErr != nil {
		return fmt.Errorf("transfer abort %s: %w", addr, abortErr)
	}
	return nil
}

// controllerEvent is the Controller callback. Bus-level events carry no
// buffer and are forwarded upstream immediately; everything else is queued
// for the dispatch loop. Runs in the producer context and never blocks.
func (d *Device) controllerEvent(ev ControllerEvent) {
	switch ev.Kind {
	case EventBusReset:
		d.notifier.BusEvent(BusReset)
	case EventVBusReady:
		d.notifier.BusEvent(BusVBusReady)
	case EventVBusRemoved:
		d.notifier.BusEvent(BusVBusRemoved)
	case EventSuspend:
		d.notifier.BusEvent(BusSuspend)
	case EventResume:
		d.notifier.BusEvent(BusResume)
	case EventSOF:
		d.notifier.BusEvent(BusSOF)
	default:
		if err := d.queue.put(event{kind: eventHardware, hw: ev}); err != nil {
			d.logger.Error("event dropped", "kind", ev.Kind, "ep", ev.Endpoint, "error", err)
		}
	}
}

// emit delivers collected notifications outside the device mutex so the
// Notifier may call back into the engine.
func (d *Device) emit(notes []note) {
	for _, n := range notes {
		d.notifier.Transfer(n.addr, n.buf, n.status)
	}
}
