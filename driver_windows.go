//go:build windows

package proactor

import (
	"errors"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/nexusruntime/proactor/internal/asyncify"
)

// notifyOp is the operation type backing the driver's notify sentinel.
// Like its Unix counterpart it is never pushed; only its cell's address
// (used as the sentinel OVERLAPPED pointer) matters.
type notifyOp struct {
	NoCancel
	NotEvent
}

func (notifyOp) OpType() OpType          { return TypeOverlapped }
func (notifyOp) TargetFd() RawFd         { return RawFd(windows.InvalidHandle) }
func (notifyOp) Operate(ol *windows.Overlapped) (int, error) {
	return 0, errNotBlocking
}

// rawCompletion is how asyncify workers and the wait registry hand a
// finished operation's result back to the owner goroutine.
type rawCompletion struct {
	userData uintptr
	n        int
	err      error
}

// Driver mediates between user-issued I/O operations and the Windows I/O
// completion port. Not safe for concurrent use of any method except
// Handle's returned NotifyHandle; see the package-level design notes in
// doc.go.
type Driver struct {
	id uint64

	port  *port
	pool  *asyncify.Pool
	waits *waitRegistry

	inflight map[uintptr]pinned
	attached map[RawFd]struct{}

	workDone chan rawCompletion

	notifyCell *cell[notifyOp]
	sentinel   uintptr

	closed bool
}

var driverIDs int64

// New constructs a Driver: a completion port, an asyncify pool sized by
// cfg, a wait-packet registry, and the notify sentinel used to interpret
// cross-thread wakeups. Acquires the process-wide socket library
// reference (WSAStartup), released on Close.
func New(cfg Builder) (*Driver, error) {
	if err := socklibAcquire(); err != nil {
		return nil, err
	}
	p, err := newPort(cfg.pollBatch())
	if err != nil {
		socklibRelease()
		return nil, err
	}
	d := &Driver{
		id:       uint64(atomic.AddInt64(&driverIDs, 1)),
		port:     p,
		inflight: make(map[uintptr]pinned),
		attached: make(map[RawFd]struct{}),
		workDone: make(chan rawCompletion, 256),
	}
	d.waits = newWaitRegistry(d)
	d.notifyCell = newCell[notifyOp](d.id, notifyOp{})
	d.sentinel = uintptr(unsafe.Pointer(d.notifyCell))
	d.pool = asyncify.New(cfg.poolConfig())
	return d, nil
}

func (d *Driver) pin(userData uintptr, c pinned) {
	d.inflight[userData] = c
}

func (d *Driver) unpin(userData uintptr) {
	delete(d.inflight, userData)
}

// Attach associates fd (a file handle or socket) with the completion
// port. An fd may be attached to a given driver once.
func (d *Driver) Attach(fd RawFd) error {
	if d.closed {
		return ErrClosed
	}
	if _, ok := d.attached[fd]; ok {
		return ErrAlreadyAttached
	}
	if err := d.port.attach(fd); err != nil {
		return err
	}
	if err := skipCompletionPortOnSuccess(fd); err != nil {
		return err
	}
	d.attached[fd] = struct{}{}
	return nil
}

// Push submits the operation addressed by k. It returns (n, nil, false)
// if the operation ran to completion synchronously, (0, err, false) if
// submission failed outright, or (0, nil, true) if the kernel, the
// asyncify pool, or the wait registry now owns it.
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

	switch op.OpType() {
	case TypeBlocking:
		accepted := d.pool.Dispatch(func() {
			n, err := c.operateBlocking()
			d.workDone <- rawCompletion{userData: ud, n: n, err: err}
			d.wakePort()
		})
		if !accepted {
			d.unpin(ud)
			return 0, ErrBusy, false
		}
		c.pushed = true
		return 0, nil, true

	case TypeEvent:
		if err := d.waits.register(op.EventHandle(), ud, c); err != nil {
			d.unpin(ud)
			return 0, err, false
		}
		c.pushed = true
		return 0, nil, true

	default: // TypeOverlapped
		c.fd = op.TargetFd()
		n, err := op.Operate(&c.hdr.ol)
		if errors.Is(err, windows.ERROR_IO_PENDING) {
			c.pushed = true
			return 0, nil, true
		}
		d.unpin(ud)
		return n, err, false
	}
}

// Cancel requests best-effort cancellation of the operation addressed by
// k. It never blocks.
func Cancel[T any, PT interface {
	*T
	OpCode
}](d *Driver, k Key[T]) {
	c := k.cell
	if !c.pushed {
		return
	}
	ud := k.UserData()
	op := PT(&c.op)

	switch op.OpType() {
	case TypeEvent:
		if d.waits.cancel(ud) {
			d.unpin(ud)
			d.workDone <- rawCompletion{userData: ud, err: ErrCanceled}
			d.wakePort()
		}
	case TypeOverlapped:
		_ = op.Cancel(&c.hdr.ol)
		_ = windows.CancelIoEx(windows.Handle(c.fd), &c.hdr.ol)
		// The port will report the natural (now-aborted) completion; no
		// synthetic entry is produced here to avoid double-delivery.
	}
}

// wakePort interrupts a concurrent or future Poll call by posting the
// sentinel through the completion port. Safe to call from any goroutine.
func (d *Driver) wakePort() {
	_ = d.port.postRaw(unsafe.Pointer(d.notifyCell), 0)
}

// Poll drains pending completions into out, blocking up to timeout if
// none are immediately available. A negative timeout blocks indefinitely.
func (d *Driver) Poll(timeout time.Duration, out []Entry) ([]Entry, error) {
	out = out[:0]
	out = d.drainWorkDone(out)
	if len(out) > 0 {
		return out, nil
	}

	batch, err := d.port.poll(timeout, d.sentinel, out)
	if err != nil {
		return batch, err
	}
	for _, e := range batch {
		d.unpin(e.userData)
	}
	out = d.drainWorkDone(batch)
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

// Handle returns a cloneable, thread-safe NotifyHandle that interrupts a
// concurrent or future Poll call.
func (d *Driver) Handle() NotifyHandle {
	return NotifyHandle{poster: windowsNotifyPoster{handle: d.port.handleClone(), sentinel: unsafe.Pointer(d.notifyCell)}}
}

type windowsNotifyPoster struct {
	handle   portHandle
	sentinel unsafe.Pointer
}

func (p windowsNotifyPoster) postSentinel() error {
	return p.handle.postRaw(p.sentinel, 0)
}

// Close releases the completion port, stops the asyncify pool, and
// releases the process-wide socket library reference.
func (d *Driver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.pool.Close()
	err := d.port.close()
	socklibRelease()
	return err
}
