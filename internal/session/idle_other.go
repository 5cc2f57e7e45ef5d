//go:build !windows

package session

import "time"

// SystemIdle reports the time since the last user input. It is only
// available on Windows; elsewhere polling never pauses.
func SystemIdle() (time.Duration, bool) {
	return 0, false
}
