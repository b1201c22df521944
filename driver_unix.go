//go:build !windows

package proactor

import (
	"errors"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/nexusruntime/proactor/internal/asyncify"
)

// errUnknownCompletion marks a completion whose userData no longer has a
// live cell in the inflight registry — normally unreachable, since a cell
// is only unpinned at the moment its completion is produced, but guarded
// rather than indexed unsafely in case a poller implementation ever
// double-reports an interest.
var errUnknownCompletion = errors.New("proactor: completion for unknown operation")

func setNonblock(fd RawFd) error {
	return unix.SetNonblock(int(fd), true)
}

// notifyOp is the operation type backing the driver's notify sentinel. It
// is never pushed through the normal Push path; only its cell's address
// matters, as the token the poller reports on a cross-thread wakeup.
type notifyOp struct{}

func (notifyOp) PreSubmit() (Decision, error)                 { return Decision{}, errNotBlocking }
func (notifyOp) OnEvent(readable, writable bool) (int, error) { return 0, errNotBlocking }

// rawCompletion is how asyncify workers hand a finished Blocking
// operation's result back to the owner goroutine; it crosses goroutines,
// unlike everything else the Driver touches.
type rawCompletion struct {
	userData uintptr
	n        int
	err      error
}

// Driver mediates between user-issued I/O operations and the host
// kernel's readiness-polling facility (epoll on Linux, kqueue on the BSDs
// and Darwin). Not safe for concurrent use of any method except Handle's
// returned NotifyHandle; see the package-level design notes in doc.go.
type Driver struct {
	id uint64

	poller poller
	pool   *asyncify.Pool

	inflight map[uintptr]pinned
	attached map[RawFd]struct{}

	synthetic []Entry

	workDone chan rawCompletion

	notifyCell *cell[notifyOp]

	closed bool
}

var driverIDs int64

// New constructs a Driver: an epoll or kqueue instance, an asyncify pool
// sized by cfg, and the notify sentinel used to interpret cross-thread
// wakeups.
func New(cfg Builder) (*Driver, error) {
	d := &Driver{
		id:       uint64(atomic.AddInt64(&driverIDs, 1)),
		inflight: make(map[uintptr]pinned),
		attached: make(map[RawFd]struct{}),
		workDone: make(chan rawCompletion, 256),
	}
	d.notifyCell = newCell[notifyOp](d.id, notifyOp{})
	sentinel := uintptr(unsafe.Pointer(d.notifyCell))

	p, err := newPoller(sentinel, cfg.pollBatch())
	if err != nil {
		return nil, err
	}
	d.poller = p
	d.pool = asyncify.New(cfg.poolConfig())
	return d, nil
}

func (d *Driver) pin(userData uintptr, c pinned) {
	d.inflight[userData] = c
}

func (d *Driver) unpin(userData uintptr) {
	delete(d.inflight, userData)
}

// Attach marks fd as owned by this driver and puts it in non-blocking
// mode, required before any operation on fd can be pushed. Idempotent
// attachment is rejected: an fd may be attached to a given driver once.
func (d *Driver) Attach(fd RawFd) error {
	if d.closed {
		return ErrClosed
	}
	if _, ok := d.attached[fd]; ok {
		return ErrAlreadyAttached
	}
	if err := setNonblock(fd); err != nil {
		return err
	}
	d.attached[fd] = struct{}{}
	return nil
}

// Push submits the operation addressed by k. It returns (n, nil, false)
// if the operation ran to completion synchronously, (0, err, false) if
// submission failed outright, or (0, nil, true) if the kernel or an
// asyncify worker now owns it and its result will arrive through Poll.
func Push[T any, PT interface {
	*T
	OpCode
}](d *Driver, k *Key[T]) (int, error, bool) {
	c := k.cell
	if c.pushed {
		return 0, ErrAlreadyPushed, false
	}
	ud := k.UserData()
	op := PT(&c.op)

	if bop, ok := any(op).(BlockingOpCode); ok {
		accepted := d.pool.Dispatch(func() {
			n, err := bop.OperateBlocking()
			d.workDone <- rawCompletion{userData: ud, n: n, err: err}
			_ = d.poller.wake()
		})
		if !accepted {
			d.unpin(ud)
			return 0, ErrBusy, false
		}
		c.pushed = true
		return 0, nil, true
	}

	dec, err := op.PreSubmit()
	if err != nil {
		d.unpin(ud)
		return 0, err, false
	}
	if dec.completed {
		d.unpin(ud)
		return dec.n, dec.err, false
	}

	c.waitFd = dec.fd
	c.waitWritable = dec.writable
	if err := d.poller.arm(dec.fd, !dec.writable, dec.writable, ud); err != nil {
		d.unpin(ud)
		return 0, err, false
	}
	c.pushed = true
	return 0, nil, true
}

// Cancel requests best-effort cancellation of the operation addressed by
// k. It never blocks. If the completion has not yet been delivered, the
// interest is disarmed and a Canceled entry is synthesized for the next
// Poll; if Poll already delivered the real completion (the cell is no
// longer pinned), Cancel is a no-op.
// Blocking operations have no poller registration to disarm: cancellation
// of those is advisory only, and the asyncify worker's real result is what
// Poll eventually delivers.
func Cancel[T any](d *Driver, k Key[T]) {
	c := k.cell
	if !c.pushed || c.isBlocking() {
		return
	}
	ud := k.UserData()
	if _, live := d.inflight[ud]; !live {
		return
	}
	if err := d.poller.disarm(c.waitFd, ud); err != nil {
		return
	}
	d.unpin(ud)
	d.synthetic = append(d.synthetic, Entry{userData: ud, Err: ErrCanceled})
}

// Poll drains pending completions into out, blocking up to timeout if
// none are immediately available. A negative timeout blocks indefinitely.
func (d *Driver) Poll(timeout time.Duration, out []Entry) ([]Entry, error) {
	out = out[:0]

	if len(d.synthetic) > 0 {
		out = append(out, d.synthetic...)
		d.synthetic = d.synthetic[:0]
	}
	out = d.drainWorkDone(out)
	if len(out) > 0 {
		return out, nil
	}

	events, err := d.poller.wait(timeout)
	if err != nil {
		return out, err
	}
	out = d.drainWorkDone(out)
	for _, ev := range events {
		if ev.userData == uintptr(unsafe.Pointer(d.notifyCell)) {
			continue
		}
		entry := d.deliver(ev)
		out = append(out, entry)
	}
	return out, nil
}

func (d *Driver) drainWorkDone(out []Entry) []Entry {
	for {
		select {
		case rc := <-d.workDone:
			d.unpin(rc.userData)
			out = append(out, Entry{userData: rc.userData, N: rc.n, Err: rc.err})
		default:
			return out
		}
	}
}

// deliver calls OnEvent through the erased cell for ev and produces the
// resulting Entry. Because OnEvent's concrete signature depends on T,
// which Poll does not know, the driver asserts the pinned cell to
// onEventer and calls the cell's own onEvent method rather than
// reflecting into the operation.
func (d *Driver) deliver(ev readyEvent) Entry {
	c, ok := d.inflight[ev.userData]
	if !ok {
		return Entry{userData: ev.userData, Err: errUnknownCompletion}
	}
	oc, ok := c.(onEventer)
	if !ok {
		return Entry{userData: ev.userData, Err: errUnknownCompletion}
	}
	d.unpin(ev.userData)
	n, err := oc.onEvent(ev.readable, ev.writable)
	return Entry{userData: ev.userData, N: n, Err: err}
}

// Handle returns a cloneable, thread-safe NotifyHandle that interrupts a
// concurrent or future Poll call.
func (d *Driver) Handle() NotifyHandle {
	return NotifyHandle{poster: unixNotifyPoster{poller: d.poller}}
}

type unixNotifyPoster struct {
	poller poller
}

func (p unixNotifyPoster) postSentinel() error { return p.poller.wake() }

// Close releases the poller and stops the asyncify pool. No further
// method of d may be called afterward.
func (d *Driver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.pool.Close()
	return d.poller.close()
}
