// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

// Package thread pins a goroutine to its own kernel thread and raises that
// thread's scheduling priority, for code that must not be delayed behind
// the Go scheduler's normal preemption (the LL task is the only consumer:
// it must drain ll_evq with as little jitter as the host OS allows).
package thread

import (
	"runtime"
	"syscall"
	"unsafe"
)

// FIFO and RR are the two real-time scheduling policies accepted by Realtime.
const (
	FIFO = 1 // fifo scheduling policy
	RR   = 2 // round-robin scheduling policy
)

// Realtime locks the calling goroutine to its own kernel thread and elevates
// that thread's priority to the given real-time policy and priority level.
// Call it once, from the goroutine that is to run at elevated priority,
// before it enters its event loop.
func Realtime(policy, priority int) error {
	// First pin goroutine to its own kernel thread.
	runtime.LockOSThread()
	// Get the ID of the thread.
	tid := syscall.Gettid()
	// Give this thread the requested priority.
	res, _, err := syscall.RawSyscall(syscall.SYS_SCHED_SETSCHEDULER, uintptr(tid),
		uintptr(policy), uintptr(unsafe.Pointer(&schedParam{priority})))
	if res == 0 {
		return nil
	}
	return err
}

type schedParam struct {
	Priority int
}
