package udc

import (
	"context"
	"errors"
	"fmt"
)

// dispatch is the engine's lifetime loop: it blocks on the event queue and
// executes each handler synchronously, preserving strict enqueue order.
// Control-transfer stage advancement depends on that order.
func (d *Device) dispatch(ctx context.Context) {
	defer close(d.done)
	d.logger.Debug("dispatch loop started")

	for {
		ev, ok := d.queue.get(ctx)
		if !ok {
			d.logger.Debug("dispatch loop stopped")
			return
		}

		switch ev.kind {
		case eventHardware:
			switch ev.hw.Kind {
			case EventSetupReceived:
				d.handleSetup(ev.hw)
			case EventTransferComplete:
				d.handleComplete(ev.hw)
			}
		case eventStartTransfer:
			d.handleStartTransfer(ev.ep)
		case eventControlStatusIn:
			d.handleStatusIn()
		}
	}
}

// handleStartTransfer starts the next queued transfer on the endpoint.
func (d *Device) handleStartTransfer(addr Address) {
	var notes []note

	d.mu.Lock()
	d.startNextLocked(addr, &notes)
	d.mu.Unlock()

	d.emit(notes)
}

// startNextLocked asks the controller to begin the head buffer's hardware
// transfer. No-op while the endpoint is busy. A refused start removes the
// buffer, reports it, and moves on to the next one.
func (d *Device) startNextLocked(addr Address, notes *[]note) {
	ep, ok := d.eps[addr]
	if !ok {
		return
	}

	for !ep.busy {
		buf := ep.peek()
		if buf == nil {
			return
		}

		data := buf.Bytes()
		if !addr.In {
			data = buf.Room()
		}

		if err := d.ctrl.TransferStart(addr, data); err != nil {
			d.logger.Error("ep transfer start error", "ep", addr, "error", err)
			ep.pop()
			*notes = append(*notes, note{addr, buf, StatusRefused})
			continue
		}

		if addr.In && d.trace != nil {
			d.trace.Log(false, buf.Bytes())
		}
		ep.busy = true
	}
}

// handleSetup runs the SETUP stage: it copies the packet into a fresh
// control buffer, advances the stage and either arms the OUT data stage or
// hands the setup packet upstream so the upper stack can produce the IN data
// or status enqueue.
func (d *Device) handleSetup(hw ControllerEvent) {
	var pkt SetupPacket
	ParseSetupPacket(hw.Setup[:], &pkt)

	if d.trace != nil {
		d.trace.Log(true, hw.Setup[:])
	}

	buf, err := d.alloc.Alloc(ControlOut, SetupPacketSize)
	if err != nil {
		d.logger.Error("failed to allocate for setup", "error", err)
		return
	}
	buf.MarkSetup()
	buf.Append(hw.Setup[:])

	var notes []note

	d.mu.Lock()
	d.setup = pkt
	d.stage = stageFromSetup(pkt)
	d.logger.Debug("setup received",
		"request_type", pkt.RequestType, "request", pkt.Request,
		"length", pkt.Length, "stage", d.stage)

	if d.stage == StageDataOut {
		// Arm the receive buffer for the data OUT stage before the host
		// starts sending.
		if err := d.feedControlOutLocked(int(pkt.Length)); err != nil {
			if errors.Is(err, errNoMemory) {
				notes = append(notes, note{ControlOut, buf, StatusNoMemory})
			} else {
				d.logger.Error("feed control out failed", "error", err)
				notes = append(notes, note{ControlOut, buf, StatusOK})
			}
		} else {
			notes = append(notes, note{ControlOut, buf, StatusOK})
		}
	} else {
		// DATA_IN or NO_DATA: the upper stack answers the setup packet
		// with the IN data or the zero-length status enqueue.
		notes = append(notes, note{ControlOut, buf, StatusOK})
	}
	d.mu.Unlock()

	d.emit(notes)
}

// feedControlOutLocked allocates a receive buffer of the given size, queues
// it on the control OUT endpoint and starts the hardware transfer. A zero
// size arms the status-stage OUT.
func (d *Device) feedControlOutLocked(size int) error {
	buf, err := d.alloc.Alloc(ControlOut, size)
	if err != nil {
		return fmt.Errorf("%w: %s", errNoMemory, err)
	}

	ep, ok := d.eps[ControlOut]
	if !ok {
		return ErrNoEndpoint
	}
	ep.push(buf)

	if err := d.ctrl.TransferStart(ControlOut, buf.Room()); err != nil {
		return fmt.Errorf("start control out transfer: %w", err)
	}
	return nil
}

// handleStatusIn performs the control status-stage IN, triggered by the
// upper stack enqueueing a zero-length buffer on the control IN endpoint.
// An empty queue is not an error: the transfer may already have been
// completed or aborted.
func (d *Device) handleStatusIn() {
	var notes []note

	d.mu.Lock()
	var buf *Buffer
	if ep, ok := d.eps[ControlIn]; ok {
		buf = ep.pop()
	}
	if buf == nil {
		d.logger.Debug("ep queue is empty", "ep", ControlIn)
		d.mu.Unlock()
		return
	}

	if err := d.ctrl.TransferStart(ControlIn, nil); err != nil {
		d.logger.Error("status in start error", "error", err)
	}

	d.ctrlInCompleteLocked(buf, &notes)
	d.mu.Unlock()

	d.emit(notes)
}

// handleComplete processes a controller transfer-completion event.
func (d *Device) handleComplete(hw ControllerEvent) {
	addr := hw.Endpoint
	var notes []note

	d.mu.Lock()
	defer func() {
		d.mu.Unlock()
		d.emit(notes)
	}()

	ep, ok := d.eps[addr]
	if !ok {
		return
	}
	ep.busy = false

	buf := ep.peek()
	if buf == nil {
		// Completion may arrive after a dequeue or abort; benign.
		return
	}

	if hw.Result != ResultSuccess {
		ep.pop()
		notes = append(notes, note{addr, buf, StatusIOError})
		if !addr.IsControl() {
			d.startNextLocked(addr, &notes)
		}
		return
	}

	if addr.In && buf.NeedsZLP() {
		// Terminate with a zero-length packet on the same buffer; the
		// second completion finishes it and the upstream still sees a
		// single notification.
		buf.clearZLP()
		if err := d.ctrl.TransferStart(addr, nil); err != nil {
			d.logger.Error("zlp start error", "ep", addr, "error", err)
			ep.pop()
			notes = append(notes, note{addr, buf, StatusIOError})
			if !addr.IsControl() {
				d.startNextLocked(addr, &notes)
			}
			return
		}
		ep.busy = true
		return
	}

	ep.pop()

	switch addr {
	case ControlIn:
		d.ctrlInCompleteLocked(buf, &notes)
	case ControlOut:
		d.ctrlOutCompleteLocked(buf, hw.Length, &notes)
	default:
		if !addr.In {
			buf.Extend(hw.Length)
			if d.trace != nil {
				d.trace.Log(true, buf.Bytes())
			}
		}
		notes = append(notes, note{addr, buf, StatusOK})
		d.startNextLocked(addr, &notes)
	}
}

// ctrlInCompleteLocked advances the control stage after an IN completion.
func (d *Device) ctrlInCompleteLocked(buf *Buffer, notes *[]note) {
	completed := d.stage == StageStatusIn || d.stage == StageNoData
	if completed {
		// Status stage finished; the control transfer is done.
		*notes = append(*notes, note{ControlIn, buf, StatusOK})
	}

	if d.stage == StageDataIn {
		// IN data stage finished: arm the zero-length OUT status stage
		// and release the IN buffer.
		d.stage = StageStatusOut
		if err := d.feedControlOutLocked(0); err != nil {
			d.logger.Error("feed status out failed", "error", err)
		}
		*notes = append(*notes, note{ControlIn, buf, StatusOK})
		return
	}

	if !completed {
		d.logger.Debug("control in completion out of sequence", "stage", d.stage)
		*notes = append(*notes, note{ControlIn, buf, StatusOK})
	}
	d.stage = StageSetup
}

// ctrlOutCompleteLocked appends the received bytes and advances the control
// stage after an OUT completion.
func (d *Device) ctrlOutCompleteLocked(buf *Buffer, length int, notes *[]note) {
	buf.Extend(length)
	if d.trace != nil && buf.Len() > 0 {
		d.trace.Log(true, buf.Bytes())
	}

	switch d.stage {
	case StageStatusOut:
		// Status stage finished; the control transfer is done.
		d.stage = StageSetup
		*notes = append(*notes, note{ControlOut, buf, StatusOK})
	case StageDataOut:
		// Data stage finished: hand the data upstream. The upper stack
		// answers with a zero-length IN enqueue to run the status stage.
		d.stage = StageStatusIn
		*notes = append(*notes, note{ControlOut, buf, StatusOK})
	default:
		d.logger.Debug("control out completion out of sequence", "stage", d.stage)
		d.stage = StageSetup
		*notes = append(*notes, note{ControlOut, buf, StatusOK})
	}
}
