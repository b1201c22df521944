// Package proactor is the platform-abstraction core of a completion-style
// asynchronous I/O runtime: a proactor driver that mediates between
// user-issued I/O operations and the host operating system's
// asynchronous-completion facility.
//
// On Windows, operations ride an I/O Completion Port. Elsewhere, they ride
// a readiness-polling facility (epoll on Linux, kqueue on the BSDs and
// Darwin). Both shapes are unified behind a single Driver: callers create an
// operation with CreateOp, submit it with Push, drain results with Poll,
// and may ask for best-effort Cancel. A NotifyHandle lets any goroutine
// wake a blocked Poll from outside the driver's owning thread.
//
// The driver is single-owner: Push, Cancel, Poll, CreateOp and Attach must
// only ever be called from the goroutine that owns the Driver. NotifyHandle
// is the only piece of this package safe to use from other goroutines.
//
// This package does not provide high-level file or socket types, a task
// scheduler, or buffer pooling; it exposes the primitives those layers are
// built on top of.
package proactor
