//go:build linux

package tasklet

import "golang.org/x/sys/unix"

// osThreadID returns the kernel thread id of the calling OS thread. The
// caller must have called runtime.LockOSThread first, or the result is
// meaningless the instant the calling goroutine is rescheduled onto a
// different thread. No code in this package calls it at present; log
// fields identify a scheduler by Scheduler.id.
func osThreadID() (int64, bool) {
	return int64(unix.Gettid()), true
}
