package udc

import "errors"

// Status is the terminal outcome of a transfer buffer, delivered to the
// Notifier exactly once per buffer.
type Status uint8

const (
	// StatusOK means the transfer completed.
	StatusOK Status = iota
	// StatusRefused means the Controller rejected the start request.
	StatusRefused
	// StatusIOError means the Controller reported a transfer failure.
	StatusIOError
	// StatusAborted means the buffer was removed by DequeueAll.
	StatusAborted
	// StatusNoMemory means buffer allocation failed while arming the
	// control data stage.
	StatusNoMemory
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRefused:
		return "refused"
	case StatusIOError:
		return "io-error"
	case StatusAborted:
		return "aborted"
	case StatusNoMemory:
		return "out-of-memory"
	default:
		return "invalid"
	}
}

var (
	// ErrQueueFull is returned when the bounded event queue cannot accept
	// another event. The event is dropped; nothing blocks the producer.
	ErrQueueFull = errors.New("udc: event queue full")

	// ErrNoEndpoint is returned for operations on an address that has not
	// been enabled.
	ErrNoEndpoint = errors.New("udc: endpoint not enabled")

	// ErrAttached is returned when Attach is called on an attached device.
	ErrAttached = errors.New("udc: device already attached")

	// ErrDetached is returned when an operation requires an attached device.
	ErrDetached = errors.New("udc: device not attached")

	// errNoMemory marks a failed control buffer allocation internally.
	errNoMemory = errors.New("udc: buffer allocation failed")
)
