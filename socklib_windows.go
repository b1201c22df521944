//go:build windows

package proactor

import (
	"sync"

	"golang.org/x/sys/windows"
)

// WSAStartup/WSACleanup are process-wide: multiple Drivers may coexist in
// one process, so initialization is reference-counted rather than tied to
// a single Driver's lifetime.
var (
	socklibMu  sync.Mutex
	socklibRef int
)

func socklibAcquire() error {
	socklibMu.Lock()
	defer socklibMu.Unlock()
	if socklibRef > 0 {
		socklibRef++
		return nil
	}
	var data windows.WSAData
	if err := windows.WSAStartup(uint32(0x0202), &data); err != nil {
		return err
	}
	socklibRef = 1
	return nil
}

func socklibRelease() {
	socklibMu.Lock()
	defer socklibMu.Unlock()
	if socklibRef == 0 {
		return
	}
	socklibRef--
	if socklibRef == 0 {
		_ = windows.WSACleanup()
	}
}
