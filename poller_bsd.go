//go:build darwin || freebsd || netbsd || openbsd

package proactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// bsdPoller wraps kqueue: EV_ADD/EV_DELETE per-filter registration keyed
// by the operation's user_data rather than by net.Conn (EV_ADD is paired
// with EV_ONESHOT rather than EV_ENABLE, since a submission consumes its
// own readiness exactly once). Cross-thread wakeup uses EVFILT_USER rather
// than a self-pipe, since no separate fd is needed to signal in-kernel.
type bsdPoller struct {
	kq    int
	batch int

	mu  sync.Mutex
	fds map[int]*fdState

	sentinel uintptr
}

const wakeIdent = 1

func newPoller(sentinelUserData uintptr, batch int) (poller, error) {
	if batch <= 0 {
		batch = 128
	}
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	p := &bsdPoller{kq: kq, batch: batch, fds: make(map[int]*fdState), sentinel: sentinelUserData}
	reg := unix.Kevent_t{Ident: wakeIdent, Filter: unix.EVFILT_USER, Flags: unix.EV_ADD | unix.EV_CLEAR}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{reg}, nil, nil); err != nil {
		unix.Close(kq)
		return nil, err
	}
	return p, nil
}

func (p *bsdPoller) arm(fd RawFd, readable, writable bool, userData uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ifd := int(fd)
	st, ok := p.fds[ifd]
	if !ok {
		st = &fdState{}
		p.fds[ifd] = st
	}
	var changes []unix.Kevent_t
	if readable {
		st.readUD = userData
		changes = append(changes, unix.Kevent_t{Ident: uint64(ifd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ONESHOT})
	}
	if writable {
		st.writeUD = userData
		changes = append(changes, unix.Kevent_t{Ident: uint64(ifd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ONESHOT})
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *bsdPoller) disarm(fd RawFd, userData uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ifd := int(fd)
	st, ok := p.fds[ifd]
	if !ok {
		return nil
	}
	var changes []unix.Kevent_t
	if st.readUD == userData {
		st.readUD = 0
		changes = append(changes, unix.Kevent_t{Ident: uint64(ifd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if st.writeUD == userData {
		st.writeUD = 0
		changes = append(changes, unix.Kevent_t{Ident: uint64(ifd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	if st.readUD == 0 && st.writeUD == 0 {
		delete(p.fds, ifd)
	}
	if len(changes) == 0 {
		return nil
	}
	// EV_DELETE on an already-fired EV_ONESHOT interest returns ENOENT;
	// that's the expected race between Cancel and completion, not an error.
	if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil && err != unix.ENOENT {
		return err
	}
	return nil
}

func (p *bsdPoller) wait(timeout time.Duration) ([]readyEvent, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	events := make([]unix.Kevent_t, p.batch)
	n, err := unix.Kevent(p.kq, nil, events, ts)
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := events[i]
		if ev.Filter == unix.EVFILT_USER && ev.Ident == wakeIdent {
			out = append(out, readyEvent{userData: p.sentinel, readable: true})
			continue
		}
		p.mu.Lock()
		st := p.fds[int(ev.Ident)]
		p.mu.Unlock()
		if st == nil {
			continue
		}
		switch ev.Filter {
		case unix.EVFILT_READ:
			if st.readUD != 0 {
				out = append(out, readyEvent{userData: st.readUD, readable: true})
			}
		case unix.EVFILT_WRITE:
			if st.writeUD != 0 {
				out = append(out, readyEvent{userData: st.writeUD, writable: true})
			}
		}
	}
	return out, nil
}

func (p *bsdPoller) wake() error {
	trigger := unix.Kevent_t{Ident: wakeIdent, Filter: unix.EVFILT_USER, Fflags: unix.NOTE_TRIGGER}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{trigger}, nil, nil)
	return err
}

func (p *bsdPoller) close() error {
	return unix.Close(p.kq)
}
