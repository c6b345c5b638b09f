package udc

import "context"

// eventKind discriminates dispatch-loop events.
type eventKind uint8

const (
	// eventHardware wraps a queued controller event (setup received or
	// transfer complete).
	eventHardware eventKind = iota
	// eventStartTransfer asks the engine to start the next queued transfer
	// on an endpoint.
	eventStartTransfer
	// eventControlStatusIn asks the engine to perform the control
	// status-stage IN.
	eventControlStatusIn
)

// event is one dispatch-loop work item. Events are copied by value; the
// queue owns them from put to get.
type event struct {
	kind eventKind
	hw   ControllerEvent
	ep   Address
}

// eventQueue is the bounded FIFO between the controller callback context and
// the dispatch loop: non-blocking put, blocking get, strict enqueue order.
type eventQueue struct {
	ch chan event
}

func newEventQueue(depth int) *eventQueue {
	return &eventQueue{ch: make(chan event, depth)}
}

// put enqueues ev without blocking. It returns ErrQueueFull when the queue
// is at capacity; the event is dropped.
func (q *eventQueue) put(ev event) error {
	select {
	case q.ch <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// get blocks until the next event is available or the context is cancelled.
func (q *eventQueue) get(ctx context.Context) (event, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	case <-ctx.Done():
		return event{}, false
	}
}
