package asyncify

import (
	"sync"
	"testing"
	"time"
)

func TestPoolDispatchRunsWork(t *testing.T) {
	p := New(Config{Threads: 2, QueueLen: 0})
	defer p.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	ran := false
	ok := p.Dispatch(func() {
		ran = true
		wg.Done()
	})
	if !ok {
		t.Fatal("expected Dispatch to accept work")
	}
	wg.Wait()
	if !ran {
		t.Fatal("expected dispatched closure to run")
	}
}

func TestPoolRefusesWhenSaturated(t *testing.T) {
	p := New(Config{Threads: 1, QueueLen: 0})
	defer p.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	if !p.Dispatch(func() {
		close(started)
		<-block
	}) {
		t.Fatal("expected first dispatch to be accepted")
	}
	<-started

	if p.Dispatch(func() {}) {
		t.Fatal("expected second dispatch to be refused while pool is saturated")
	}

	close(block)

	// Once the worker frees up, a subsequent dispatch must succeed.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p.Dispatch(func() {}) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected dispatch to succeed once the worker freed up")
}
