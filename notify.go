package proactor

// notifyPoster is the thread-safe, send-cloneable sliver of the kernel
// primitive a NotifyHandle is allowed to touch: enough to post the
// driver's sentinel from any goroutine, nothing that would let it reach
// into driver-private state. It references the driver's port/poller and
// notify sentinel by shared ownership, never the Driver struct itself, so
// no reference cycle forms between a long-lived NotifyHandle and its
// Driver.
type notifyPoster interface {
	postSentinel() error
}

// NotifyHandle is a cheap, thread-safe handle that wakes a Driver's
// blocked Poll from any goroutine. It is safe to clone (copy) and to call
// concurrently with itself and with other NotifyHandles derived from the
// same Driver. Multiple notifies that Poll has not yet observed coalesce
// at the kernel queue level: a Poll call returning once, even with zero
// entries, is a valid response to one or more pending notifies.
type NotifyHandle struct {
	poster notifyPoster
}

// Notify wakes the owning driver's Poll loop. Poll drops the resulting
// wakeup entry silently; it never appears in Poll's output.
func (h NotifyHandle) Notify() error { return h.poster.postSentinel() }
