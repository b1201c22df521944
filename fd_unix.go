//go:build !windows

package proactor

import "golang.org/x/sys/unix"

// RawFd is a platform-sized integer uniquely identifying a kernel object
// for the driver's purposes: a Unix file descriptor.
type RawFd int

// AsRawFd is implemented by anything that can hand the driver a raw kernel
// handle to attach and submit operations against.
type AsRawFd interface {
	Fd() RawFd
}

// OwnedFd owns a Unix file descriptor and closes it on Close. It is the
// flat (non-tagged-union) shape this type takes on Unix, where files and
// sockets share one fd namespace.
type OwnedFd struct {
	fd     int
	closed bool
}

// NewOwnedFd wraps an fd obtained from a system open/accept/socket call.
func NewOwnedFd(fd int) OwnedFd { return OwnedFd{fd: fd} }

// Fd returns the raw fd for attaching to a Driver.
func (o OwnedFd) Fd() RawFd { return RawFd(o.fd) }

// Close releases the underlying fd. Close is idempotent.
func (o *OwnedFd) Close() error {
	if o.closed || o.fd < 0 {
		return nil
	}
	o.closed = true
	return unix.Close(o.fd)
}
