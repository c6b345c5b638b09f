package udc

// Speed is the negotiated USB bus speed.
type Speed uint8

const (
	SpeedFull Speed = iota // Full Speed (12 Mbit/s)
	SpeedHigh              // High Speed (480 Mbit/s)
)

func (s Speed) String() string {
	switch s {
	case SpeedFull:
		return "full-speed"
	case SpeedHigh:
		return "high-speed"
	default:
		return "unknown"
	}
}

// TransferResult is the controller-reported outcome of a hardware transfer.
type TransferResult uint8

const (
	ResultSuccess TransferResult = iota
	ResultError
)

// EventKind discriminates the events a Controller raises through its
// callback.
type EventKind uint8

const (
	EventBusReset EventKind = iota
	EventVBusReady
	EventVBusRemoved
	EventSuspend
	EventResume
	EventSOF
	EventSetupReceived
	EventTransferComplete
)

// ControllerEvent is the payload of the Controller callback. Setup is valid
// for EventSetupReceived; Endpoint, Result and Length are valid for
// EventTransferComplete.
type ControllerEvent struct {
	Kind     EventKind
	Setup    [SetupPacketSize]byte
	Endpoint Address
	Result   TransferResult
	Length   int
}

// EventCallback receives controller events. It is invoked from the
// controller's interrupt context and must never block.
type EventCallback func(ControllerEvent)

// Controller abstracts the hardware transfer engine that performs actual
// wire-level transmission and raises completion notifications. Pin and clock
// configuration, interrupt wiring and descriptor handling live behind this
// boundary.
type Controller interface {
	// Open initializes the controller and registers the event callback.
	Open(cb EventCallback) error
	// Close shuts the controller down.
	Close() error

	// Connect attaches the device to the bus; after it returns the device
	// is visible to the host.
	Connect() error
	// Disconnect detaches the device from the bus.
	Disconnect() error

	// EndpointOpen configures a hardware endpoint.
	EndpointOpen(desc EndpointDescriptor) error
	// EndpointClose releases a hardware endpoint.
	EndpointClose(addr Address) error

	// TransferStart begins a hardware transfer. For IN endpoints data is
	// the payload to send; for OUT endpoints it is the window to receive
	// into. A nil or empty slice starts a zero-length transfer.
	TransferStart(addr Address, data []byte) error
	// TransferAbort cancels any in-flight transfer on the endpoint. It must
	// be safe to call with nothing in flight.
	TransferAbort(addr Address) error

	// Stall halts the endpoint; ClearStall resumes it.
	Stall(addr Address) error
	ClearStall(addr Address) error

	// RemoteWakeup signals resume to a suspended host.
	RemoteWakeup() error

	// Speed returns the negotiated bus speed.
	Speed() Speed
}
