//go:build !windows

package proactor

import (
	"os"
	"testing"
	"time"
)

func TestPushDeferredCompletionDeliversOnPoll(t *testing.T) {
	d, err := New(DefaultBuilder())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	rfd := RawFd(r.Fd())
	if err := d.Attach(rfd); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	buf := make([]byte, 5)
	k := CreateOp(d, Recv{Fd: rfd, Buf: buf})
	_, err, pending := Push(d, &k)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !pending {
		t.Fatal("a read from an empty pipe must not complete inline")
	}

	done := make(chan struct{})
	go func() {
		w.Write([]byte("hello"))
		close(done)
	}()
	<-done

	var out []Entry
	deadline := time.Now().Add(2 * time.Second)
	for len(out) == 0 && time.Now().Before(deadline) {
		out, err = d.Poll(200*time.Millisecond, out)
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}
	if len(out) != 1 {
		t.Fatalf("got %d entries, want 1", len(out))
	}
	if out[0].Err != nil {
		t.Fatalf("completion error: %v", out[0].Err)
	}
	if out[0].N != 5 {
		t.Fatalf("n = %d, want 5", out[0].N)
	}
	if string(buf) != "hello" {
		t.Fatalf("buf = %q, want %q", buf, "hello")
	}
}

func TestCancelBeforeNaturalCompletionSynthesizesCanceled(t *testing.T) {
	d, err := New(DefaultBuilder())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	rfd := RawFd(r.Fd())
	if err := d.Attach(rfd); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	buf := make([]byte, 5)
	k := CreateOp(d, Recv{Fd: rfd, Buf: buf})
	if _, err, pending := Push(d, &k); err != nil || !pending {
		t.Fatalf("Push: err=%v pending=%v", err, pending)
	}

	Cancel(d, k)

	out, err := d.Poll(0, nil)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d entries, want 1", len(out))
	}
	if out[0].Err != ErrCanceled {
		t.Fatalf("err = %v, want ErrCanceled", out[0].Err)
	}
}

func TestNotifyHandleWakesBlockedPoll(t *testing.T) {
	d, err := New(DefaultBuilder())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	h := d.Handle()

	result := make(chan error, 1)
	go func() {
		_, err := d.Poll(5*time.Second, nil)
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := h.Notify(); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Poll did not return after Notify")
	}
}

// blockingOp is a test-only OpCode whose OperateBlocking blocks until
// release is closed, letting a test pin down exactly when the asyncify
// pool's single worker is occupied.
type blockingOp struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingOp) PreSubmit() (Decision, error) {
	panic("proactor: blockingOp is Blocking, PreSubmit must not be called")
}

func (b *blockingOp) OnEvent(readable, writable bool) (int, error) {
	panic("proactor: blockingOp is Blocking, OnEvent must not be called")
}

func (b *blockingOp) OperateBlocking() (int, error) {
	close(b.started)
	<-b.release
	return 0, nil
}

func TestPushRefusesWhenAsyncifyPoolSaturated(t *testing.T) {
	d, err := New(Builder{PoolThreads: 1, PoolQueueLen: 0, PollBatch: 128})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	op1 := blockingOp{started: make(chan struct{}), release: make(chan struct{})}
	k1 := CreateOp(d, op1)
	if _, err, pending := Push(d, &k1); err != nil || !pending {
		t.Fatalf("first Push: err=%v pending=%v", err, pending)
	}
	<-op1.started

	op2 := blockingOp{started: make(chan struct{}), release: make(chan struct{})}
	k2 := CreateOp(d, op2)
	_, err, pending := Push(d, &k2)
	if err != ErrBusy {
		t.Fatalf("second Push: err = %v, want ErrBusy", err)
	}
	if pending {
		t.Fatal("a refused Push must not be pending")
	}

	close(op1.release)
	out, err := d.Poll(2*time.Second, nil)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(out) != 1 || out[0].Err != nil {
		t.Fatalf("out = %+v, want one successful completion", out)
	}
}

func TestCancelOnBlockingOpDoesNotDoubleDeliver(t *testing.T) {
	d, err := New(DefaultBuilder())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	op := blockingOp{started: make(chan struct{}), release: make(chan struct{})}
	k := CreateOp(d, op)
	if _, err, pending := Push(d, &k); err != nil || !pending {
		t.Fatalf("Push: err=%v pending=%v", err, pending)
	}
	<-op.started

	// Cancel on a Blocking operation is advisory: it must not unpin the
	// cell or synthesize an entry, since the asyncify worker is still
	// running and will deliver the real completion.
	Cancel(d, k)

	out, err := d.Poll(0, nil)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %d entries before the worker finished, want 0", len(out))
	}

	close(op.release)

	out, err = d.Poll(2*time.Second, nil)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d entries, want exactly 1 (no double-delivery)", len(out))
	}
	if out[0].Err != nil {
		t.Fatalf("completion error: %v, want the real (nil) result, not a synthesized cancellation", out[0].Err)
	}
}

func TestSyncRunsOnAsyncifyPool(t *testing.T) {
	d, err := New(DefaultBuilder())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	f, err := os.CreateTemp(t.TempDir(), "proactor-sync-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	k := CreateOp(d, Sync{Fd: RawFd(f.Fd())})
	if _, err, pending := Push(d, &k); err != nil || !pending {
		t.Fatalf("Push: err=%v pending=%v", err, pending)
	}

	out, err := d.Poll(2*time.Second, nil)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d entries, want 1", len(out))
	}
	if out[0].Err != nil {
		t.Fatalf("completion error: %v", out[0].Err)
	}
}
