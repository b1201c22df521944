package proactor

// Built-in operations. Fields are platform-agnostic; each platform file
// (ops_unix.go, ops_windows.go) supplies the OpCode method set that
// performs the actual kernel call for these shapes. Address-bearing
// operations (Accept, Connect, RecvFrom, SendTo) are declared entirely in
// the platform files instead, since a sockaddr's representation
// (unix.Sockaddr vs. Windows' SOCKADDR_STORAGE) is not something this
// package can paper over without losing the zero-cost-per-platform shape
// called out in the design notes.

// ReadAt reads into Buf from Fd at Offset without moving the fd's file
// position.
type ReadAt struct {
	Fd     RawFd
	Buf    []byte
	Offset int64
}

// WriteAt writes Buf to Fd at Offset without moving the fd's file
// position.
type WriteAt struct {
	Fd     RawFd
	Buf    []byte
	Offset int64
}

// Recv reads a single contiguous buffer from a connected or datagram
// socket Fd.
type Recv struct {
	Fd  RawFd
	Buf []byte
}

// Send writes a single contiguous buffer to a connected socket Fd.
type Send struct {
	Fd  RawFd
	Buf []byte
}

// Sync flushes Fd's data, and — unless Datasync is set — its metadata, to
// stable storage. No mainstream kernel offers a true asynchronous fsync,
// so Sync is always dispatched to the asyncify pool rather than
// submitted through the completion port or poller.
type Sync struct {
	Fd       RawFd
	Datasync bool
}

// RecvVectored reads into multiple buffers (scatter I/O) from Fd in one
// call.
type RecvVectored struct {
	Fd   RawFd
	Bufs [][]byte
}

// SendVectored writes multiple buffers (gather I/O) to Fd in one call.
type SendVectored struct {
	Fd   RawFd
	Bufs [][]byte
}
