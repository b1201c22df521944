package proactor

import "unsafe"

// pinned is the type-erased view every *cell[T] satisfies. The driver
// keeps a pinned reference to each in-flight cell so the cell stays
// reachable to the Go garbage collector for as long as the kernel (or an
// asyncify worker) holds only a bare uintptr to it — converting a pointer
// to uintptr, as CreateOp does to produce user_data, does not itself keep
// the pointee alive. It also lets the driver recover an operation's
// blocking body generically, which is the one place (the Windows
// wait-packet table) the completion path must act on an operation without
// knowing its concrete type.
type pinned interface {
	operateBlocking() (int, error)
}

// Key addresses a single in-flight operation slot: a stable identifier
// that is valid from CreateOp until the corresponding completion (or
// synthesized cancellation) entry is observed by Poll.
type Key[T any] struct {
	cell *cell[T]
}

// CreateOp allocates a stable, pinned cell holding op and returns a Key
// addressing it. The cell's address becomes the user_data presented to
// the kernel and reported back on completion. The driver retains a
// type-erased reference to the cell until it is released by Push failing
// synchronously or by the completion path consuming it.
//
// T is the operation's plain value type (ReadAt, Sync, ...); OpCode's
// methods are defined on *T, so the constraint is expressed on the type
// parameter PT rather than T itself — the standard Go idiom for generic
// code built around pointer-receiver interfaces (the same shape
// encoding/json and google.golang.org/protobuf use for Marshaler-style
// hooks), and the Go-idiomatic analogue of the fat-pointer/vtable pattern
// called out in the design notes, without resorting to reflect.
func CreateOp[T any, PT interface {
	*T
	OpCode
}](d *Driver, op T) Key[T] {
	c := newCell[T](d.id, op)
	k := Key[T]{cell: c}
	d.pin(k.UserData(), c)
	return k
}

// UserData returns the process-unique token identifying this slot: the
// address of its backing cell.
func (k Key[T]) UserData() uintptr { return uintptr(unsafe.Pointer(k.cell)) }

// Op returns a pointer to the pinned operation value carried by this key.
// The pointer is valid only while the Key has not yet been consumed by a
// completion.
func (k Key[T]) Op() *T { return &k.cell.op }
