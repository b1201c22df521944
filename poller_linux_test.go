//go:build linux

package proactor

import (
	"net"
	"testing"
	"time"
)

// TestEpollWaitReportsBothDirectionsSeparately exercises a TCP loopback pair
// where one side has both a readable and a writable interest armed under
// distinct userData (mirroring a concurrent Recv and Send on the same
// socket). A connected, non-full socket is writable essentially immediately,
// so writing from the peer typically makes epoll_wait observe EPOLLIN and
// EPOLLOUT for the fd in the very same batch. wait must surface this as two
// separate readyEvents, one per userData, rather than folding the write
// interest's userData into the read event and losing it to EPOLLONESHOT's
// disarm.
func TestEpollWaitReportsBothDirectionsSeparately(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	srvCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			srvCh <- c
		}
	}()

	cli, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cli.Close()

	srv := <-srvCh
	defer srv.Close()

	tcpSrv, ok := srv.(*net.TCPConn)
	if !ok {
		t.Fatalf("server conn is %T, want *net.TCPConn", srv)
	}
	sc, err := tcpSrv.SyscallConn()
	if err != nil {
		t.Fatalf("SyscallConn: %v", err)
	}
	var fd RawFd
	if err := sc.Control(func(rawFd uintptr) { fd = RawFd(rawFd) }); err != nil {
		t.Fatalf("Control: %v", err)
	}
	if err := setNonblock(fd); err != nil {
		t.Fatalf("setNonblock: %v", err)
	}

	p, err := newPoller(^uintptr(0), 32)
	if err != nil {
		t.Fatalf("newPoller: %v", err)
	}
	defer p.close()

	const readUD, writeUD = uintptr(0x1000), uintptr(0x2000)
	if err := p.arm(fd, true, false, readUD); err != nil {
		t.Fatalf("arm readable: %v", err)
	}
	if err := p.arm(fd, false, true, writeUD); err != nil {
		t.Fatalf("arm writable: %v", err)
	}

	if _, err := cli.Write([]byte("hello")); err != nil {
		t.Fatalf("client write: %v", err)
	}

	seen := map[uintptr]readyEvent{}
	deadline := time.Now().Add(2 * time.Second)
	for (len(seen) < 2) && time.Now().Before(deadline) {
		events, err := p.wait(200 * time.Millisecond)
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
		for _, ev := range events {
			seen[ev.userData] = ev
		}
	}

	readEv, ok := seen[readUD]
	if !ok {
		t.Fatalf("no readyEvent for the read userData; seen = %+v", seen)
	}
	if !readEv.readable {
		t.Fatalf("read event not marked readable: %+v", readEv)
	}

	writeEv, ok := seen[writeUD]
	if !ok {
		t.Fatalf("no readyEvent for the write userData; seen = %+v, a single EPOLLONESHOT report folded both directions together and lost the write interest", seen)
	}
	if !writeEv.writable {
		t.Fatalf("write event not marked writable: %+v", writeEv)
	}
}
