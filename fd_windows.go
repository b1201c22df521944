//go:build windows

package proactor

import "golang.org/x/sys/windows"

// RawFd is a platform-sized integer uniquely identifying a kernel object
// for the driver's purposes. On Windows, handles and sockets fit the same
// integer and are both attachable to the completion port.
type RawFd uintptr

// AsRawFd is implemented by anything that can hand the driver a raw kernel
// handle to attach and submit operations against.
type AsRawFd interface {
	Fd() RawFd
}

// fdKind distinguishes how an OwnedFd must be released: CloseHandle for
// files, closesocket for sockets. The two calls are not interchangeable on
// Windows, unlike the flat fd namespace on Unix.
type fdKind int

const (
	fdKindFile fdKind = iota
	fdKindSocket
)

// OwnedFd is a tagged union over {File(handle), Socket(socket)}; it owns
// the underlying kernel object and closes it with the call appropriate to
// its kind.
type OwnedFd struct {
	kind   fdKind
	handle windows.Handle
	sock   windows.Handle
	closed bool
}

// NewOwnedFile wraps a Win32 handle obtained from CreateFile et al.
func NewOwnedFile(h windows.Handle) OwnedFd { return OwnedFd{kind: fdKindFile, handle: h} }

// NewOwnedSocket wraps a SOCKET obtained from socket()/accept().
func NewOwnedSocket(s windows.Handle) OwnedFd { return OwnedFd{kind: fdKindSocket, sock: s} }

// Fd returns the raw fd for attaching to a Driver.
func (o OwnedFd) Fd() RawFd {
	if o.kind == fdKindSocket {
		return RawFd(o.sock)
	}
	return RawFd(o.handle)
}

// Close releases the underlying kernel object. Close is idempotent.
func (o *OwnedFd) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	if o.kind == fdKindSocket {
		return windows.Closesocket(o.sock)
	}
	return windows.CloseHandle(o.handle)
}
