//go:build windows

package session

import (
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	kernel32             = windows.NewLazySystemDLL("kernel32.dll")
	procGetLastInputInfo = user32.NewProc("GetLastInputInfo")
	procGetTickCount     = kernel32.NewProc("GetTickCount")
)

type lastInputInfo struct {
	cbSize uint32
	dwTime uint32
}

// SystemIdle reports the time since the last keyboard or mouse input.
func SystemIdle() (time.Duration, bool) {
	info := lastInputInfo{cbSize: uint32(unsafe.Sizeof(lastInputInfo{}))}
	if err := procGetLastInputInfo.Find(); err != nil {
		return 0, false
	}
	r, _, _ := procGetLastInputInfo.Call(uintptr(unsafe.Pointer(&info)))
	if r == 0 {
		return 0, false
	}
	tick, _, _ := procGetTickCount.Call()
	// Both counters wrap every ~49.7 days; uint32 subtraction handles it.
	idleMs := uint32(tick) - info.dwTime
	return time.Duration(idleMs) * time.Millisecond, true
}
