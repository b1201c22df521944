//go:build windows

package proactor

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// AcceptEx is already exported by golang.org/x/sys/windows (it resolves
// mswsock.dll internally). ConnectEx is not, so it is resolved the same
// way the momentics-hioload-ws transport resolves AcceptEx by hand (see
// other_examples): a LazySystemDLL plus NewProc, rather than a
// syscall.Syscall9 stub or the older WSAIoctl
// (SIO_GET_EXTENSION_FUNCTION_POINTER) dance ConnectEx historically
// required — modern mswsock.dll exports it by name.
var (
	modmswsock  = windows.NewLazySystemDLL("mswsock.dll")
	procConnect = modmswsock.NewProc("ConnectEx")
)

func (r *ReadAt) OpType() OpType { return TypeOverlapped }
func (r *ReadAt) TargetFd() RawFd { return r.Fd }
func (r *ReadAt) EventHandle() windows.Handle { return windows.InvalidHandle }
func (r *ReadAt) Cancel(ol *windows.Overlapped) error { return nil }

func (r *ReadAt) Operate(ol *windows.Overlapped) (int, error) {
	ol.Offset = uint32(r.Offset)
	ol.OffsetHigh = uint32(r.Offset >> 32)
	var n uint32
	err := windows.ReadFile(windows.Handle(r.Fd), r.Buf, &n, ol)
	return int(n), err
}

func (w *WriteAt) OpType() OpType { return TypeOverlapped }
func (w *WriteAt) TargetFd() RawFd { return w.Fd }
func (w *WriteAt) EventHandle() windows.Handle { return windows.InvalidHandle }
func (w *WriteAt) Cancel(ol *windows.Overlapped) error { return nil }

func (w *WriteAt) Operate(ol *windows.Overlapped) (int, error) {
	ol.Offset = uint32(w.Offset)
	ol.OffsetHigh = uint32(w.Offset >> 32)
	var n uint32
	err := windows.WriteFile(windows.Handle(w.Fd), w.Buf, &n, ol)
	return int(n), err
}

// Sync has no overlapped form on Windows either: FlushFileBuffers is
// synchronous, so Sync is dispatched to the asyncify pool on both
// platforms, matching the original's treatment of fsync.
func (s *Sync) OpType() OpType { return TypeBlocking }
func (s *Sync) TargetFd() RawFd { return s.Fd }
func (s *Sync) EventHandle() windows.Handle { return windows.InvalidHandle }
func (s *Sync) Cancel(ol *windows.Overlapped) error { return nil }
func (s *Sync) Operate(ol *windows.Overlapped) (int, error) {
	return 0, errNotBlocking
}
func (s *Sync) OperateBlocking() (int, error) {
	return 0, windows.FlushFileBuffers(windows.Handle(s.Fd))
}

func (r *Recv) OpType() OpType { return TypeOverlapped }
func (r *Recv) TargetFd() RawFd { return r.Fd }
func (r *Recv) EventHandle() windows.Handle { return windows.InvalidHandle }
func (r *Recv) Cancel(ol *windows.Overlapped) error { return nil }
func (r *Recv) Operate(ol *windows.Overlapped) (int, error) {
	buf := windows.WSABuf{Len: uint32(len(r.Buf)), Buf: bufPtr(r.Buf)}
	var n, flags uint32
	err := windows.WSARecv(windows.Handle(r.Fd), &buf, 1, &n, &flags, ol, nil)
	return int(n), err
}

func (s *Send) OpType() OpType { return TypeOverlapped }
func (s *Send) TargetFd() RawFd { return s.Fd }
func (s *Send) EventHandle() windows.Handle { return windows.InvalidHandle }
func (s *Send) Cancel(ol *windows.Overlapped) error { return nil }
func (s *Send) Operate(ol *windows.Overlapped) (int, error) {
	buf := windows.WSABuf{Len: uint32(len(s.Buf)), Buf: bufPtr(s.Buf)}
	var n uint32
	err := windows.WSASend(windows.Handle(s.Fd), &buf, 1, &n, 0, ol, nil)
	return int(n), err
}

func (r *RecvVectored) OpType() OpType { return TypeOverlapped }
func (r *RecvVectored) TargetFd() RawFd { return r.Fd }
func (r *RecvVectored) EventHandle() windows.Handle { return windows.InvalidHandle }
func (r *RecvVectored) Cancel(ol *windows.Overlapped) error { return nil }
func (r *RecvVectored) Operate(ol *windows.Overlapped) (int, error) {
	bufs := make([]windows.WSABuf, len(r.Bufs))
	for i, b := range r.Bufs {
		bufs[i] = windows.WSABuf{Len: uint32(len(b)), Buf: bufPtr(b)}
	}
	var n, flags uint32
	var first *windows.WSABuf
	if len(bufs) > 0 {
		first = &bufs[0]
	}
	err := windows.WSARecv(windows.Handle(r.Fd), first, uint32(len(bufs)), &n, &flags, ol, nil)
	return int(n), err
}

func (s *SendVectored) OpType() OpType { return TypeOverlapped }
func (s *SendVectored) TargetFd() RawFd { return s.Fd }
func (s *SendVectored) EventHandle() windows.Handle { return windows.InvalidHandle }
func (s *SendVectored) Cancel(ol *windows.Overlapped) error { return nil }
func (s *SendVectored) Operate(ol *windows.Overlapped) (int, error) {
	bufs := make([]windows.WSABuf, len(s.Bufs))
	for i, b := range s.Bufs {
		bufs[i] = windows.WSABuf{Len: uint32(len(b)), Buf: bufPtr(b)}
	}
	var n uint32
	var first *windows.WSABuf
	if len(bufs) > 0 {
		first = &bufs[0]
	}
	err := windows.WSASend(windows.Handle(s.Fd), first, uint32(len(bufs)), &n, 0, ol, nil)
	return int(n), err
}

// Accept accepts a connection on the listening socket Fd via AcceptEx,
// which (unlike unix accept) requires a pre-created client socket and a
// fixed-size address buffer big enough for the local and remote address
// lengths AcceptEx is given: a RawSockaddrAny plus 16 padding bytes each,
// per MSDN.
type Accept struct {
	NoCancel

	Fd       RawFd
	accepted windows.Handle
	addrBuf  [2 * (unsafe.Sizeof(windows.RawSockaddrAny{}) + 16)]byte
}

func (a *Accept) OpType() OpType { return TypeOverlapped }
func (a *Accept) TargetFd() RawFd { return a.Fd }
func (a *Accept) EventHandle() windows.Handle { return windows.InvalidHandle }

// Accepted returns the handle of the accepted connection. Valid only
// once the operation has completed successfully.
func (a *Accept) Accepted() windows.Handle { return a.accepted }

func (a *Accept) Operate(ol *windows.Overlapped) (int, error) {
	sock, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, 0)
	if err != nil {
		return 0, err
	}
	a.accepted = sock
	var n uint32
	const sockaddrSlack = unsafe.Sizeof(windows.RawSockaddrAny{}) + 16
	err = windows.AcceptEx(
		windows.Handle(a.Fd), sock,
		&a.addrBuf[0], 0,
		uint32(sockaddrSlack), uint32(sockaddrSlack),
		&n, ol,
	)
	return int(n), err
}

// Connect connects socket Fd (which must already be bound, e.g. via
// windows.Bind to the wildcard address) to Addr using ConnectEx. Addr is
// a raw sockaddr buffer (the caller fills it via windows.RawSockaddrAny
// plus AddrLen) rather than the windows.Sockaddr interface: that
// interface's conversion to wire bytes is an unexported method of the
// golang.org/x/sys/windows package, so callers constructing an address
// for ConnectEx/WSASendto must produce the raw form directly, the same
// boundary AcceptEx's own address buffer convention already imposes.
type Connect struct {
	NoCancel
	NotEvent

	Fd      RawFd
	Addr    *windows.RawSockaddrAny
	AddrLen int32
}

func (c *Connect) OpType() OpType { return TypeOverlapped }
func (c *Connect) TargetFd() RawFd { return c.Fd }

func (c *Connect) Operate(ol *windows.Overlapped) (int, error) {
	r1, _, e1 := procConnect.Call(
		uintptr(c.Fd),
		uintptr(unsafe.Pointer(c.Addr)),
		uintptr(c.AddrLen),
		0, 0, 0, 0,
		uintptr(unsafe.Pointer(ol)),
	)
	if r1 == 0 {
		return 0, e1
	}
	return 0, nil
}

// RecvFrom reads a datagram from Fd, capturing the sender's address.
type RecvFrom struct {
	NoCancel
	NotEvent

	Fd      RawFd
	Buf     []byte
	From    windows.RawSockaddrAny
	FromLen int32
}

func (r *RecvFrom) OpType() OpType { return TypeOverlapped }
func (r *RecvFrom) TargetFd() RawFd { return r.Fd }

func (r *RecvFrom) Operate(ol *windows.Overlapped) (int, error) {
	buf := windows.WSABuf{Len: uint32(len(r.Buf)), Buf: bufPtr(r.Buf)}
	var n, flags uint32
	r.FromLen = int32(unsafe.Sizeof(r.From))
	err := windows.WSARecvFrom(windows.Handle(r.Fd), &buf, 1, &n, &flags, &r.From, &r.FromLen, ol, nil)
	return int(n), err
}

// SendTo writes a datagram to Addr (see Connect for why this takes a raw
// sockaddr rather than windows.Sockaddr).
type SendTo struct {
	NoCancel
	NotEvent

	Fd      RawFd
	Buf     []byte
	Addr    *windows.RawSockaddrAny
	AddrLen int32
}

func (s *SendTo) OpType() OpType { return TypeOverlapped }
func (s *SendTo) TargetFd() RawFd { return s.Fd }

func (s *SendTo) Operate(ol *windows.Overlapped) (int, error) {
	buf := windows.WSABuf{Len: uint32(len(s.Buf)), Buf: bufPtr(s.Buf)}
	var n uint32
	err := windows.WSASendto(windows.Handle(s.Fd), &buf, 1, &n, 0, s.Addr, s.AddrLen, ol, nil)
	return int(n), err
}

func bufPtr(b []byte) *byte {
	if len(b) == 0 {
		return nil
	}
	return &b[0]
}
