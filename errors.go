package proactor

import "errors"

// ErrBusy is returned from Push when a Blocking operation could not be
// dispatched because the asyncify pool has no free worker slot. The
// operation was never submitted; the caller may retry the same Key.
var ErrBusy = errors.New("proactor: asyncify pool is busy")

// ErrCanceled is delivered as an Entry's error when cancellation won the
// race against natural completion.
var ErrCanceled = errors.New("proactor: operation canceled")

// ErrAlreadyAttached is returned by Attach when the fd is already
// associated with this driver's kernel facility.
var ErrAlreadyAttached = errors.New("proactor: fd already attached")

// ErrClosed is returned by driver operations performed after Close.
var ErrClosed = errors.New("proactor: driver closed")

// ErrAlreadyPushed is returned by Push when a Key whose earlier Push went
// pending (to the kernel, a worker or the wait registry) is submitted
// again. The mark is not cleared when that completion is delivered, so
// such a Key is pushed at most once.
var ErrAlreadyPushed = errors.New("proactor: key already pushed")
