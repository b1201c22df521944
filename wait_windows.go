//go:build windows

package proactor

import (
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// golang.org/x/sys/windows does not export the Vista+ thread-pool
// wait-object API (CreateThreadpoolWait and friends), so it is resolved
// via a LazySystemDLL plus NewProc, rather than a hand-written //sys stub.
var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procCreateThreadpoolWait            = modkernel32.NewProc("CreateThreadpoolWait")
	procSetThreadpoolWait               = modkernel32.NewProc("SetThreadpoolWait")
	procCloseThreadpoolWait             = modkernel32.NewProc("CloseThreadpoolWait")
	procWaitForThreadpoolWaitCallbacks  = modkernel32.NewProc("WaitForThreadpoolWaitCallbacks")
)

// waitCallbackCtx is the PVOID payload handed to CreateThreadpoolWait.
// The registry keeps it alive (by holding the same pointer in regs) for
// as long as the packet is armed, for the same reason the driver pins
// in-flight cells elsewhere: a bare uintptr handed to the kernel does not
// keep its pointee alive on its own.
type waitCallbackCtx struct {
	registry *waitRegistry
	userData uintptr
}

var waitCallback = syscall.NewCallback(waitCallbackGo)

// waitCallbackGo is invoked on a thread-pool thread when a registered
// event handle becomes signalled. instance and wait are unused.
func waitCallbackGo(instance uintptr, param uintptr, wait uintptr, result uintptr) uintptr {
	ctx := (*waitCallbackCtx)(unsafe.Pointer(param))
	ctx.registry.fire(ctx.userData)
	return 0
}

// waitReg tracks one live wait-packet.
type waitReg struct {
	tpWait uintptr
	ctx    *waitCallbackCtx
	cell   pinned
}

// waitRegistry adapts waitable event handles (TypeEvent operations) into
// this driver's completion path. There is one per Driver. Its own mutex
// guards regs, which is accessed both from the owner goroutine (register,
// cancel) and from thread-pool callback threads (fire) — the one place in
// this package where cross-thread synchronization is unavoidable, since
// the OS thread pool runs the callback on a thread this driver does not
// own.
type waitRegistry struct {
	mu   sync.Mutex
	regs map[uintptr]*waitReg

	d *Driver
}

func newWaitRegistry(d *Driver) *waitRegistry {
	return &waitRegistry{regs: make(map[uintptr]*waitReg), d: d}
}

// register arms a wait-packet for event, associated with userData and its
// owning pinned cell (needed to run the operation's blocking body once
// the wait fires).
func (r *waitRegistry) register(event windows.Handle, userData uintptr, cell pinned) error {
	ctx := &waitCallbackCtx{registry: r, userData: userData}
	h, _, errno := procCreateThreadpoolWait.Call(waitCallback, uintptr(unsafe.Pointer(ctx)), 0)
	if h == 0 {
		return errno
	}
	procSetThreadpoolWait.Call(h, uintptr(event), 0)

	r.mu.Lock()
	r.regs[userData] = &waitReg{tpWait: h, ctx: ctx, cell: cell}
	r.mu.Unlock()
	return nil
}

// fire runs when the thread pool observes the event to have signalled:
// removes the registration and completes the operation by running its
// blocking body to fetch the real result.
func (r *waitRegistry) fire(userData uintptr) {
	r.mu.Lock()
	reg, ok := r.regs[userData]
	if ok {
		delete(r.regs, userData)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	procCloseThreadpoolWait.Call(reg.tpWait)

	n, err := reg.cell.operateBlocking()
	r.d.workDone <- rawCompletion{userData: userData, n: n, err: err}
	r.d.wakePort()
}

// cancel deregisters userData's wait-packet before it fires, if possible.
// Returns true if deregistration won the race (the caller should
// synthesize a canceled completion itself); false means fire had already
// started — WaitForThreadpoolWaitCallbacks blocks until it finishes, so
// by the time cancel observes the registration gone, fire has already
// delivered the real completion and owns the outcome.
func (r *waitRegistry) cancel(userData uintptr) bool {
	r.mu.Lock()
	reg, ok := r.regs[userData]
	r.mu.Unlock()
	if !ok {
		return false
	}
	procSetThreadpoolWait.Call(reg.tpWait, 0, 0)
	procWaitForThreadpoolWaitCallbacks.Call(reg.tpWait, 1)

	r.mu.Lock()
	_, stillThere := r.regs[userData]
	if stillThere {
		delete(r.regs, userData)
	}
	r.mu.Unlock()
	if !stillThere {
		return false
	}
	procCloseThreadpoolWait.Call(reg.tpWait)
	return true
}
