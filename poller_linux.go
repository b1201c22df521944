//go:build linux

package proactor

import (
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// linuxPoller wraps epoll as a real level-triggered, one-shot readiness
// primitive keyed by the operation's user_data. The epoll instance is
// created close-on-exec, as any newly created kernel object here is.
type linuxPoller struct {
	epfd  int
	batch int

	mu     sync.Mutex
	fds    map[int]*fdState
	wakeFd int

	sentinel uintptr
}

func newPoller(sentinelUserData uintptr, batch int) (poller, error) {
	if batch <= 0 {
		batch = 128
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	p := &linuxPoller{epfd: epfd, batch: batch, fds: make(map[int]*fdState), wakeFd: wakeFd, sentinel: sentinelUserData}
	// The wake fd is registered once, level-triggered, for the life of
	// the poller: Notify writes to it, wait() drains and reports it.
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, err
	}
	return p, nil
}

func (p *linuxPoller) arm(fd RawFd, readable, writable bool, userData uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ifd := int(fd)
	st, ok := p.fds[ifd]
	if !ok {
		st = &fdState{}
		p.fds[ifd] = st
	}
	if readable {
		st.readUD = userData
	}
	if writable {
		st.writeUD = userData
	}
	var events uint32
	if st.readUD != 0 {
		events |= unix.EPOLLIN
	}
	if st.writeUD != 0 {
		events |= unix.EPOLLOUT
	}
	events |= unix.EPOLLONESHOT

	op := unix.EPOLL_CTL_MOD
	if !ok {
		op = unix.EPOLL_CTL_ADD
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(ifd)}
	return unix.EpollCtl(p.epfd, op, ifd, &ev)
}

func (p *linuxPoller) disarm(fd RawFd, userData uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ifd := int(fd)
	st, ok := p.fds[ifd]
	if !ok {
		return nil
	}
	if st.readUD == userData {
		st.readUD = 0
	}
	if st.writeUD == userData {
		st.writeUD = 0
	}
	if st.readUD == 0 && st.writeUD == 0 {
		delete(p.fds, ifd)
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, ifd, nil)
	}
	return nil
}

func (p *linuxPoller) wait(timeout time.Duration) ([]readyEvent, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	events := make([]unix.EpollEvent, p.batch)
	n, err := unix.EpollWait(p.epfd, events, ms)
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := events[i]
		if int(ev.Fd) == p.wakeFd {
			var buf [8]byte
			for {
				if _, err := unix.Read(p.wakeFd, buf[:]); err != nil {
					break
				}
			}
			out = append(out, readyEvent{userData: p.sentinel, readable: true})
			continue
		}
		p.mu.Lock()
		st := p.fds[int(ev.Fd)]
		p.mu.Unlock()
		if st == nil {
			continue
		}
		readFired := ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 && st.readUD != 0
		writeFired := ev.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 && st.writeUD != 0

		// A single EPOLLONESHOT registration covers both directions for a
		// given fd, so one epoll_wait report can carry both EPOLLIN and
		// EPOLLOUT for two independently armed operations (distinct
		// userData per direction). Each must be reported as its own
		// readyEvent, or the direction not surfaced here is disarmed by
		// the one-shot semantics with no future event left to reach it.
		if readFired && writeFired && st.readUD != st.writeUD {
			out = append(out, readyEvent{userData: st.readUD, readable: true})
			out = append(out, readyEvent{userData: st.writeUD, writable: true})
			continue
		}
		re := readyEvent{}
		if readFired {
			re.userData, re.readable = st.readUD, true
		}
		if writeFired {
			if re.userData == 0 {
				re.userData = st.writeUD
			}
			re.writable = true
		}
		if re.userData != 0 {
			out = append(out, re)
		}
	}
	return out, nil
}

func (p *linuxPoller) wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakeFd, buf[:])
	return err
}

func (p *linuxPoller) close() error {
	unix.Close(p.wakeFd)
	return unix.Close(p.epfd)
}
