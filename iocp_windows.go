//go:build windows

package proactor

import (
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// port wraps a Windows I/O completion port. Its four core primitives
// — CreateIoCompletionPort, GetQueuedCompletionStatusEx,
// PostQueuedCompletionStatus, CancelIoEx — are exported directly by
// golang.org/x/sys/windows, unlike SetFileCompletionNotificationModes
// (resolved by hand below) and the thread-pool wait-object API this
// package also needs (see wait_windows.go).
type port struct {
	handle windows.Handle
	batch  int
}

// newPort creates a completion port with a concurrency hint of 0 (let the
// OS pick; this driver only ever has one thread draining it, consistent
// with its single-owner concurrency model). batch bounds how many
// OVERLAPPED_ENTRY records poll requests per GetQueuedCompletionStatusEx
// call.
func newPort(batch int) (*port, error) {
	if batch <= 0 {
		batch = 128
	}
	h, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	return &port{handle: h, batch: batch}, nil
}

// attach associates fd with the port. There is no native idempotency
// check in CreateIoCompletionPort itself; the driver tracks attached fds
// to surface ErrAlreadyAttached consistently with the Unix side.
func (p *port) attach(fd RawFd) error {
	_, err := windows.CreateIoCompletionPort(windows.Handle(fd), p.handle, 0, 0)
	return err
}

// golang.org/x/sys/windows does not export
// SetFileCompletionNotificationModes, so it is resolved by hand like the
// rest of this package's kernel32/mswsock extension functions.
var procSetFileCompletionNotificationModes = modkernel32.NewProc("SetFileCompletionNotificationModes")

const fileSkipCompletionPortOnSuccess = 0x1

// skipCompletionPortOnSuccess tells the kernel not to also queue a
// completion packet for fd when an overlapped call on it finishes
// synchronously. Without this, Operate's inline-success return and the
// port's natural completion can both report the same operation: the
// second one would address a cell Push has already unpinned (and whose
// storage may since be reused), not a merely redundant notification.
func skipCompletionPortOnSuccess(fd RawFd) error {
	r1, _, errno := procSetFileCompletionNotificationModes.Call(uintptr(fd), fileSkipCompletionPortOnSuccess)
	if r1 == 0 {
		return errno
	}
	return nil
}

func (p *port) poll(timeout time.Duration, sentinel uintptr, out []Entry) ([]Entry, error) {
	entries := make([]windows.OverlappedEntry, p.batch)
	ms := uint32(windows.INFINITE)
	if timeout >= 0 {
		ms = uint32(timeout / time.Millisecond)
	}
	var n uint32
	err := windows.GetQueuedCompletionStatusEx(p.handle, &entries[0], uint32(len(entries)), &n, ms, false)
	if err == windows.WAIT_TIMEOUT {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	for i := uint32(0); i < n; i++ {
		e := entries[i]
		ud := uintptr(unsafe.Pointer(e.Overlapped))
		if ud == sentinel {
			continue
		}
		out = append(out, Entry{userData: ud, N: int(e.BytesTransferred)})
	}
	return out, nil
}

// postRaw enqueues a synthetic completion carrying headerPtr as the
// OVERLAPPED pointer. The driver uses it to post the notify sentinel,
// which wakes Poll after an asyncify worker or the wait registry has
// handed a result over the driver's completion channel.
func (p *port) postRaw(headerPtr unsafe.Pointer, bytes uint32) error {
	return windows.PostQueuedCompletionStatus(p.handle, bytes, 0, (*windows.Overlapped)(headerPtr))
}

func (p *port) close() error {
	return windows.CloseHandle(p.handle)
}

// portHandle is the send-cloneable, concurrency-safe half of port used by
// NotifyHandle: it can only postRaw.
type portHandle struct {
	handle windows.Handle
}

func (p *port) handleClone() portHandle { return portHandle{handle: p.handle} }

func (h portHandle) postRaw(headerPtr unsafe.Pointer, bytes uint32) error {
	return windows.PostQueuedCompletionStatus(h.handle, bytes, 0, (*windows.Overlapped)(headerPtr))
}
