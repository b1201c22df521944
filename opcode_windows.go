//go:build windows

package proactor

import (
	"errors"

	"golang.org/x/sys/windows"
)

// OpType classifies how a Windows OpCode must be submitted.
type OpType int

const (
	// TypeOverlapped operations ride the completion port directly. This
	// is the zero value: most built-in operations are Overlapped.
	TypeOverlapped OpType = iota
	// TypeBlocking operations have no async form and run on the
	// asyncify pool.
	TypeBlocking
	// TypeEvent operations complete when a waitable handle becomes
	// signalled; see the wait-packet registry.
	TypeEvent
)

// OpCode describes one asynchronous operation on Windows.
type OpCode interface {
	// OpType reports how this operation must be submitted.
	OpType() OpType
	// TargetFd reports the handle or socket this operation acts on, so
	// the driver can issue CancelIoEx against it without knowing the
	// operation's concrete type. Named to avoid colliding with each
	// operation's own Fd field.
	TargetFd() RawFd
	// EventHandle returns the waitable handle for TypeEvent-classified
	// operations. Unused for the other two classifications.
	EventHandle() windows.Handle
	// Operate performs the Win32 call, given a pointer to this cell's
	// OVERLAPPED. Must not move self. Reports (n, nil) if the call
	// completed inline, or returns an error wrapping
	// windows.ERROR_IO_PENDING if the kernel took ownership.
	Operate(ol *windows.Overlapped) (int, error)
	// Cancel requests that an in-flight kernel operation stop, typically
	// via CancelIoEx. Must tolerate the race that the operation already
	// completed.
	Cancel(ol *windows.Overlapped) error
}

// NoCancel is embedded by OpCodes with no kernel-native cancellation,
// giving them a no-op Cancel that satisfies the OpCode interface.
type NoCancel struct{}

// Cancel is a no-op; cancellation for this operation relies entirely on
// the driver's own CancelIoEx call (overlapped operations), its
// wait-packet path, or asyncify advisory semantics.
func (NoCancel) Cancel(*windows.Overlapped) error { return nil }

// NotEvent is embedded by OpCodes that are never TypeEvent, giving them an
// EventHandle that is never consulted.
type NotEvent struct{}

// EventHandle returns an invalid handle; TypeOverlapped and TypeBlocking
// operations never have this method called.
func (NotEvent) EventHandle() windows.Handle { return windows.InvalidHandle }

// completionHeader begins every operation cell with the kernel's
// OVERLAPPED, so GetQueuedCompletionStatus's completion pointer can be
// cast back (via unsafe.Pointer) to recover the cell, followed by the
// driver-id field.
type completionHeader struct {
	ol       windows.Overlapped
	driverID uint64
}

// cell is the stable heap allocation backing one in-flight operation.
type cell[T any] struct {
	hdr    completionHeader
	op     T
	pushed bool
	fd     RawFd
}

func newCell[T any](driverID uint64, op T) *cell[T] {
	c := &cell[T]{op: op}
	c.hdr.driverID = driverID
	return c
}

var errNotBlocking = errors.New("proactor: operation has no blocking body")

func (c *cell[T]) operateBlocking() (int, error) {
	if b, ok := any(&c.op).(BlockingOpCode); ok {
		return b.OperateBlocking()
	}
	return 0, errNotBlocking
}
