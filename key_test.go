package proactor

import (
	"os"
	"testing"
)

func TestCreateOpPinsAndUnpinsOnInlineCompletion(t *testing.T) {
	d, err := New(DefaultBuilder())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	f, err := os.CreateTemp(t.TempDir(), "proactor-key-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString("hello"); err != nil {
		t.Fatalf("write: %v", err)
	}

	fd := RawFd(f.Fd())
	if err := d.Attach(fd); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	buf := make([]byte, 5)
	k := CreateOp(d, ReadAt{Fd: fd, Buf: buf, Offset: 0})
	ud := k.UserData()
	if ud == 0 {
		t.Fatal("UserData must be non-zero")
	}
	if _, ok := d.inflight[ud]; !ok {
		t.Fatal("CreateOp must pin the cell before Push")
	}

	n, err, pending := Push(d, &k)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if pending {
		t.Fatal("a regular file read must complete inline, not go pending")
	}
	if n != 5 {
		t.Fatalf("n = %d, want 5", n)
	}
	if string(buf) != "hello" {
		t.Fatalf("buf = %q, want %q", buf, "hello")
	}
	if _, ok := d.inflight[ud]; ok {
		t.Fatal("Push must unpin the cell once it completes inline")
	}
}

func TestKeyOpAliasesTheSameOperation(t *testing.T) {
	d, err := New(DefaultBuilder())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	k := CreateOp(d, Sync{Fd: 0})

	// CreateOp stores its own copy of the operation; Op() addresses that
	// copy directly, so mutating through it is what Push later observes.
	k.Op().Datasync = true
	if got := k.Op().Datasync; !got {
		t.Fatal("Op() must address the cell's own stored operation")
	}
}
