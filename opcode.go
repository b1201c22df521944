package proactor

// BlockingOpCode is implemented by operations with no asynchronous kernel
// form on the current platform (fsync is the built-in example on both
// Unix and Windows). Push dispatches these to the asyncify pool (on
// Windows, those classified TypeBlocking; TypeEvent operations implement
// it too, and the wait-packet registry runs it once the event fires);
// OperateBlocking runs on a worker goroutine and must not touch
// driver-private state — it communicates its result back only through the
// completion-post path the Driver wires up around it.
type BlockingOpCode interface {
	OperateBlocking() (int, error)
}
