// Package udc implements the device-side engine of a USB peripheral.
//
// The engine sits between a hardware transfer engine (the Controller) and an
// upper USB stack (the Notifier). Controller callbacks arrive from an
// interrupt-like producer context and are serialized through a bounded event
// queue into a single dispatch goroutine, which runs the EP0 control-transfer
// state machine and the per-endpoint transfer queues. Bus-level events
// (reset, vbus, suspend, resume, SOF) bypass the queue and are forwarded to
// the Notifier synchronously; they carry no buffer and cannot race with
// buffer ownership.
//
// One Device instance serves one controller. It is created with New, started
// with Attach and torn down with Detach.
package udc
