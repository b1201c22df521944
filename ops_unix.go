//go:build !windows

package proactor

import (
	"golang.org/x/sys/unix"
)

// Grounded on the original poll-driver OpCode implementations
// (compio/src/driver/poll/op.rs, kept under _examples/original_source):
// ReadAt, WriteAt, Accept, Connect, RecvFrom and SendTo attempt their
// syscall non-blockingly and finish inline (Decision.Completed) unless it
// would block, in which case they fall back to arming readiness and
// retrying from OnEvent. Recv, Send and the vectored forms always arm
// readiness first; Sync runs on the asyncify pool. The syscalls themselves come from
// golang.org/x/sys/unix, the same package this driver's pollers already
// import for epoll and kqueue.

func (r *ReadAt) PreSubmit() (Decision, error) {
	n, err := unix.Pread(int(r.Fd), r.Buf, r.Offset)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return WaitReadable(r.Fd), nil
	}
	if err != nil {
		return Decision{}, err
	}
	return Completed(n), nil
}

func (r *ReadAt) OnEvent(readable, writable bool) (int, error) {
	return unix.Pread(int(r.Fd), r.Buf, r.Offset)
}

func (w *WriteAt) PreSubmit() (Decision, error) {
	n, err := unix.Pwrite(int(w.Fd), w.Buf, w.Offset)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return WaitWritable(w.Fd), nil
	}
	if err != nil {
		return Decision{}, err
	}
	return Completed(n), nil
}

func (w *WriteAt) OnEvent(readable, writable bool) (int, error) {
	return unix.Pwrite(int(w.Fd), w.Buf, w.Offset)
}

// PreSubmit is never called: Sync is always routed to the asyncify pool
// by the driver.
func (s *Sync) PreSubmit() (Decision, error) {
	panic("proactor: Sync.PreSubmit should never be called; Sync is Blocking")
}

func (s *Sync) OnEvent(readable, writable bool) (int, error) {
	panic("proactor: Sync.OnEvent should never be called; Sync is Blocking")
}

// OperateBlocking performs the fsync/fdatasync call on a worker goroutine.
func (s *Sync) OperateBlocking() (int, error) {
	var err error
	if s.Datasync {
		err = unix.Fdatasync(int(s.Fd))
	} else {
		err = unix.Fsync(int(s.Fd))
	}
	return 0, err
}

func (r *Recv) PreSubmit() (Decision, error) { return WaitReadable(r.Fd), nil }

func (r *Recv) OnEvent(readable, writable bool) (int, error) {
	return unix.Read(int(r.Fd), r.Buf)
}

func (s *Send) PreSubmit() (Decision, error) { return WaitWritable(s.Fd), nil }

func (s *Send) OnEvent(readable, writable bool) (int, error) {
	return unix.Write(int(s.Fd), s.Buf)
}

func (r *RecvVectored) PreSubmit() (Decision, error) { return WaitReadable(r.Fd), nil }

func (r *RecvVectored) OnEvent(readable, writable bool) (int, error) {
	return unix.Readv(int(r.Fd), r.Bufs)
}

func (s *SendVectored) PreSubmit() (Decision, error) { return WaitWritable(s.Fd), nil }

func (s *SendVectored) OnEvent(readable, writable bool) (int, error) {
	return unix.Writev(int(s.Fd), s.Bufs)
}

// Accept accepts a connection on the listening socket Fd.
type Accept struct {
	Fd       RawFd
	accepted RawFd
	addr     unix.Sockaddr
}

// Accepted returns the fd of the accepted connection and its peer
// address. Valid only once the operation has completed successfully.
func (a *Accept) Accepted() (RawFd, unix.Sockaddr) { return a.accepted, a.addr }

func (a *Accept) PreSubmit() (Decision, error) {
	nfd, sa, err := unix.Accept4(int(a.Fd), unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return WaitReadable(a.Fd), nil
	}
	if err != nil {
		return Decision{}, err
	}
	a.accepted, a.addr = RawFd(nfd), sa
	return Completed(0), nil
}

func (a *Accept) OnEvent(readable, writable bool) (int, error) {
	nfd, sa, err := unix.Accept4(int(a.Fd), unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
	if err != nil {
		return 0, err
	}
	a.accepted, a.addr = RawFd(nfd), sa
	return 0, nil
}

// Connect connects the socket Fd to Addr.
type Connect struct {
	Fd   RawFd
	Addr unix.Sockaddr
}

func (c *Connect) PreSubmit() (Decision, error) {
	err := unix.Connect(int(c.Fd), c.Addr)
	if err == unix.EINPROGRESS {
		return WaitWritable(c.Fd), nil
	}
	if err != nil {
		return Decision{}, err
	}
	return Completed(0), nil
}

func (c *Connect) OnEvent(readable, writable bool) (int, error) {
	errno, err := unix.GetsockoptInt(int(c.Fd), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return 0, err
	}
	if errno != 0 {
		return 0, unix.Errno(errno)
	}
	return 0, nil
}

// RecvFrom reads a datagram from Fd, capturing the sender's address.
type RecvFrom struct {
	Fd   RawFd
	Buf  []byte
	From unix.Sockaddr
}

func (r *RecvFrom) PreSubmit() (Decision, error) {
	n, from, err := unix.Recvfrom(int(r.Fd), r.Buf, 0)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return WaitReadable(r.Fd), nil
	}
	if err != nil {
		return Decision{}, err
	}
	r.From = from
	return Completed(n), nil
}

func (r *RecvFrom) OnEvent(readable, writable bool) (int, error) {
	n, from, err := unix.Recvfrom(int(r.Fd), r.Buf, 0)
	if err != nil {
		return 0, err
	}
	r.From = from
	return n, nil
}

// SendTo writes a datagram to Addr.
type SendTo struct {
	Fd   RawFd
	Buf  []byte
	Addr unix.Sockaddr
}

func (s *SendTo) PreSubmit() (Decision, error) {
	err := unix.Sendto(int(s.Fd), s.Buf, 0, s.Addr)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return WaitWritable(s.Fd), nil
	}
	if err != nil {
		return Decision{}, err
	}
	return Completed(len(s.Buf)), nil
}

func (s *SendTo) OnEvent(readable, writable bool) (int, error) {
	if err := unix.Sendto(int(s.Fd), s.Buf, 0, s.Addr); err != nil {
		return 0, err
	}
	return len(s.Buf), nil
}
